package models

// ExportCreateRequest is the request body for submitting an export.
type ExportCreateRequest struct {
	Kind    string            `json:"kind"`
	Format  string            `json:"format"`
	Filters map[string]string `json:"filters,omitempty"`
}

// ExportJob represents an export job as seen by the portals.
type ExportJob struct {
	ID            string            `json:"id"`
	Kind          string            `json:"kind"`
	Format        string            `json:"format"`
	Filters       map[string]string `json:"filters,omitempty"`
	Status        string            `json:"status"`
	RequestedAt   Timestamp         `json:"requestedAt"`
	StartedAt     *Timestamp        `json:"startedAt,omitempty"`
	FinishedAt    *Timestamp        `json:"finishedAt,omitempty"`
	ExpiresAt     *Timestamp        `json:"expiresAt,omitempty"`
	FailureReason *string           `json:"failureReason,omitempty"`
}

// PagedExportJobs represents a paginated list of export jobs.
type PagedExportJobs struct {
	Items []ExportJob `json:"items"`
	Meta  PageMeta    `json:"meta"`
}

// DownloadGrant is the response body of a granted download request.
type DownloadGrant struct {
	ExportID    string    `json:"exportId"`
	DownloadURL string    `json:"downloadUrl"`
	Token       string    `json:"token"`
	ExpiresAt   Timestamp `json:"expiresAt"`
}
