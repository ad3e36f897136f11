package models_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quadra/exports-api/internal/api/models"
)

func TestNewProblem(t *testing.T) {
	p := models.NewProblem(models.ProblemTypeValidation, "Validation error", http.StatusBadRequest, "req_abc")

	assert.Equal(t, models.ProblemTypeValidation, p.Type)
	assert.Equal(t, "Validation error", p.Title)
	assert.Equal(t, http.StatusBadRequest, p.Status)
	assert.Equal(t, "req_abc", p.TraceID)
	assert.Empty(t, p.Detail)
	assert.Empty(t, p.Instance)
}

func TestProblem_WithDetail(t *testing.T) {
	p := models.NewProblem(models.ProblemTypeNotFound, "Not found", http.StatusNotFound, "req_abc").
		WithDetail("export not found")

	assert.Equal(t, "export not found", p.Detail)
}

func TestProblem_WithInstance(t *testing.T) {
	p := models.NewProblem(models.ProblemTypeNotFound, "Not found", http.StatusNotFound, "req_abc").
		WithInstance("/v1/exports/exp_missing")

	assert.Equal(t, "/v1/exports/exp_missing", p.Instance)
}

func TestProblem_Write(t *testing.T) {
	p := models.NewGone("req_abc", "export artifact has expired")
	rec := httptest.NewRecorder()

	p.Write(rec)

	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "req_abc", rec.Header().Get("X-Request-Id"))

	var decoded models.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	assert.Equal(t, models.ProblemTypeGone, decoded.Type)
	assert.Equal(t, "Gone", decoded.Title)
	assert.Equal(t, "export artifact has expired", decoded.Detail)
}

func TestProblemConstructors(t *testing.T) {
	tests := []struct {
		name       string
		problem    *models.Problem
		wantType   string
		wantStatus int
	}{
		{"bad request", models.NewBadRequest("t", "d", nil), models.ProblemTypeValidation, http.StatusBadRequest},
		{"not found", models.NewNotFound("t", "d"), models.ProblemTypeNotFound, http.StatusNotFound},
		{"conflict", models.NewConflict("t", "d"), models.ProblemTypeConflict, http.StatusConflict},
		{"gone", models.NewGone("t", "d"), models.ProblemTypeGone, http.StatusGone},
		{"too many requests", models.NewTooManyRequests("t", "d"), models.ProblemTypeTooManyRequests, http.StatusTooManyRequests},
		{"internal", models.NewInternalError("t", "d"), models.ProblemTypeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.problem.Type)
			assert.Equal(t, tt.wantStatus, tt.problem.Status)
			assert.Equal(t, "d", tt.problem.Detail)
		})
	}
}

func TestNewBadRequest_FieldErrors(t *testing.T) {
	p := models.NewBadRequest("req_abc", "invalid listing filters", []models.FieldError{
		{Field: "status", Message: "unknown status value"},
		{Field: "from", Message: "expected YYYY-MM-DD"},
	})

	require.Len(t, p.Errors, 2)
	assert.Equal(t, "status", p.Errors[0].Field)
	assert.Equal(t, "from", p.Errors[1].Field)
}
