// Package export implements the report export job lifecycle: submission,
// timer-driven background progression, filtered listing, and expiry-guarded
// download grants.
package export

import (
	"errors"
	"time"
)

// Errors returned by the export subsystem. Handlers match these with
// errors.Is and map them to distinct problem responses.
var (
	ErrJobNotFound        = errors.New("export job not found")
	ErrInvalidFormat      = errors.New("format not supported for this export kind")
	ErrNotReady           = errors.New("export job is not ready for download")
	ErrExpired            = errors.New("export artifact has expired")
	ErrDuplicateID        = errors.New("export job id already exists")
	ErrTransitionConflict = errors.New("export job transition conflict")
)

// Status represents the lifecycle state of an export job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired"
)

// Terminal reports whether no further automatic transition can occur.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusExpired
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusExpired:
		return true
	}
	return false
}

// Kind represents the subject of an export.
type Kind string

const (
	KindConsolidatedReport Kind = "CONSOLIDATED_REPORT"
	KindSchoolReport       Kind = "SCHOOL_REPORT"
	KindCampaignResults    Kind = "CAMPAIGN_RESULTS"
	KindStudentRoster      Kind = "STUDENT_ROSTER"
)

// Format represents the output format of an export artifact.
type Format string

const (
	FormatCSV Format = "CSV"
	FormatPDF Format = "PDF"
)

// allowedFormats maps each kind to the formats its renderer supports.
var allowedFormats = map[Kind][]Format{
	KindConsolidatedReport: {FormatCSV, FormatPDF},
	KindSchoolReport:       {FormatCSV, FormatPDF},
	KindCampaignResults:    {FormatCSV},
	KindStudentRoster:      {FormatCSV},
}

// Valid reports whether k is a known export kind.
func (k Kind) Valid() bool {
	_, ok := allowedFormats[k]
	return ok
}

// Supports reports whether format f is allowed for kind k.
func (k Kind) Supports(f Format) bool {
	for _, allowed := range allowedFormats[k] {
		if allowed == f {
			return true
		}
	}
	return false
}

// Formats returns the allowed formats for kind k.
func (k Kind) Formats() []Format {
	formats := allowedFormats[k]
	out := make([]Format, len(formats))
	copy(out, formats)
	return out
}

// Filters is the opaque scope of an export (date range, school id, team id,
// and so on). It is stored verbatim and never interpreted by the lifecycle.
type Filters map[string]string

// Clone returns a copy of the filter map.
func (f Filters) Clone() Filters {
	if f == nil {
		return nil
	}
	out := make(Filters, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Job is an export job record. All mutation goes through the Repository so
// per-job updates stay atomic.
type Job struct {
	ID      string
	Kind    Kind
	Format  Format
	Filters Filters

	Status       Status
	ErrorMessage string

	RequestedAt time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
	ExpiresAt   *time.Time

	// Version increments on every committed mutation; transitions assert
	// against it to detect races.
	Version int64
}

// Clone returns a deep copy of the job. The repository hands out clones so
// readers never alias the stored record.
func (j *Job) Clone() *Job {
	out := *j
	out.Filters = j.Filters.Clone()
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		out.FinishedAt = &t
	}
	if j.ExpiresAt != nil {
		t := *j.ExpiresAt
		out.ExpiresAt = &t
	}
	return &out
}

// DownloadableAt reports whether the job's artifact is downloadable at the
// given instant: completed and not yet past its expiry.
func (j *Job) DownloadableAt(now time.Time) bool {
	if j.Status != StatusCompleted {
		return false
	}
	return j.ExpiresAt == nil || !now.After(*j.ExpiresAt)
}
