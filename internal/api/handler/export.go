// Package handler provides HTTP handlers for the exports API.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quadra/exports-api/internal/api/models"
	"github.com/quadra/exports-api/internal/api/response"
	"github.com/quadra/exports-api/internal/export"
)

// dateLayout is the wire format of the from/to listing filters.
const dateLayout = "2006-01-02"

// ExportHandler handles the export job endpoints.
type ExportHandler struct {
	service *export.Service
}

// NewExportHandler creates a new ExportHandler.
func NewExportHandler(service *export.Service) *ExportHandler {
	return &ExportHandler{service: service}
}

// CreateExport handles POST /v1/exports - submit a new export job.
func (h *ExportHandler) CreateExport(w http.ResponseWriter, r *http.Request) {
	var input models.ExportCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	var fieldErrors []models.FieldError
	if input.Kind == "" {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "kind", Message: "kind is required"})
	}
	if input.Format == "" {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "format", Message: "format is required"})
	}
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "missing required fields", fieldErrors)
		return
	}

	job, err := h.service.Submit(r.Context(), export.Kind(input.Kind), export.Format(input.Format), export.Filters(input.Filters))
	if err != nil {
		if errors.Is(err, export.ErrInvalidFormat) {
			response.BadRequest(w, r, "format not supported for this export kind", []models.FieldError{
				{Field: "format", Message: fmt.Sprintf("%q does not support format %q", input.Kind, input.Format), Code: "INVALID_FORMAT"},
			})
			return
		}
		response.InternalError(w, r, "failed to submit export")
		return
	}

	location := fmt.Sprintf("/v1/exports/%s", job.ID)
	response.Created(w, r, location, toAPIJob(job))
}

// ListExports handles GET /v1/exports - filtered, paginated listing.
func (h *ExportHandler) ListExports(w http.ResponseWriter, r *http.Request) {
	opts, fieldErrors := parseListOptions(r)
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "invalid listing filters", fieldErrors)
		return
	}

	page, err := h.service.List(r.Context(), opts)
	if err != nil {
		response.InternalError(w, r, "failed to list exports")
		return
	}

	items := make([]models.ExportJob, 0, len(page.Items))
	for _, job := range page.Items {
		items = append(items, toAPIJob(job))
	}

	response.JSON(w, r, http.StatusOK, models.PagedExportJobs{
		Items: items,
		Meta: models.PageMeta{
			Total:    page.Total,
			Page:     page.Page,
			PageSize: page.PageSize,
		},
	})
}

// GetExport handles GET /v1/exports/{exportId}.
func (h *ExportHandler) GetExport(w http.ResponseWriter, r *http.Request) {
	exportID := chi.URLParam(r, "exportId")
	if exportID == "" {
		response.BadRequest(w, r, "exportId is required", nil)
		return
	}

	job, err := h.service.Get(r.Context(), exportID)
	if err != nil {
		if errors.Is(err, export.ErrJobNotFound) {
			response.NotFound(w, r, "export not found")
			return
		}
		response.InternalError(w, r, "failed to fetch export")
		return
	}

	response.JSON(w, r, http.StatusOK, toAPIJob(job))
}

// RequestDownload handles POST /v1/exports/{exportId}/downloads - mint a
// time-limited download reference for a completed export.
func (h *ExportHandler) RequestDownload(w http.ResponseWriter, r *http.Request) {
	exportID := chi.URLParam(r, "exportId")
	if exportID == "" {
		response.BadRequest(w, r, "exportId is required", nil)
		return
	}

	grant, err := h.service.RequestDownload(r.Context(), exportID)
	if err != nil {
		switch {
		case errors.Is(err, export.ErrJobNotFound):
			response.NotFound(w, r, "export not found")
		case errors.Is(err, export.ErrNotReady):
			response.Conflict(w, r, "export is not ready for download")
		case errors.Is(err, export.ErrExpired):
			response.Gone(w, r, "export artifact has expired")
		default:
			response.InternalError(w, r, "failed to grant download")
		}
		return
	}

	response.Created(w, r, "", models.DownloadGrant{
		ExportID:    grant.JobID,
		DownloadURL: grant.URL,
		Token:       grant.Token,
		ExpiresAt:   models.Timestamp(grant.ExpiresAt),
	})
}

// parseListOptions maps listing query parameters onto export.ListOptions.
func parseListOptions(r *http.Request) (export.ListOptions, []models.FieldError) {
	q := r.URL.Query()
	var fieldErrors []models.FieldError

	opts := export.ListOptions{
		Search: q.Get("q"),
	}

	if status := q.Get("status"); status != "" {
		s := export.Status(status)
		if !s.Valid() {
			fieldErrors = append(fieldErrors, models.FieldError{Field: "status", Message: "unknown status value"})
		}
		opts.Status = s
	}

	if format := q.Get("format"); format != "" {
		opts.Format = export.Format(format)
	}

	if from := q.Get("from"); from != "" {
		t, err := time.Parse(dateLayout, from)
		if err != nil {
			fieldErrors = append(fieldErrors, models.FieldError{Field: "from", Message: "expected YYYY-MM-DD"})
		}
		opts.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse(dateLayout, to)
		if err != nil {
			fieldErrors = append(fieldErrors, models.FieldError{Field: "to", Message: "expected YYYY-MM-DD"})
		}
		opts.To = t
	}

	if page := q.Get("page"); page != "" {
		n, err := strconv.Atoi(page)
		if err != nil || n < 1 {
			fieldErrors = append(fieldErrors, models.FieldError{Field: "page", Message: "expected a positive integer"})
		}
		opts.Page = n
	}
	if pageSize := q.Get("pageSize"); pageSize != "" {
		n, err := strconv.Atoi(pageSize)
		if err != nil || n < 1 {
			fieldErrors = append(fieldErrors, models.FieldError{Field: "pageSize", Message: "expected a positive integer"})
		}
		opts.PageSize = n
	}

	return opts, fieldErrors
}

// toAPIJob maps a domain job onto its API representation.
func toAPIJob(job *export.Job) models.ExportJob {
	out := models.ExportJob{
		ID:          job.ID,
		Kind:        string(job.Kind),
		Format:      string(job.Format),
		Filters:     job.Filters,
		Status:      string(job.Status),
		RequestedAt: models.Timestamp(job.RequestedAt),
	}
	if job.StartedAt != nil {
		t := models.Timestamp(*job.StartedAt)
		out.StartedAt = &t
	}
	if job.FinishedAt != nil {
		t := models.Timestamp(*job.FinishedAt)
		out.FinishedAt = &t
	}
	if job.ExpiresAt != nil {
		t := models.Timestamp(*job.ExpiresAt)
		out.ExpiresAt = &t
	}
	if job.ErrorMessage != "" {
		msg := job.ErrorMessage
		out.FailureReason = &msg
	}
	return out
}
