package export

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// seedJobs inserts n jobs, oldest first, one minute apart starting at base.
func seedJobs(t *testing.T, repo *InMemoryRepository, base time.Time, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		job := &Job{
			ID:          fmt.Sprintf("exp_%03d", i),
			Kind:        KindSchoolReport,
			Format:      FormatCSV,
			Status:      StatusPending,
			RequestedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Insert(context.Background(), job); err != nil {
			t.Fatalf("seed insert failed: %v", err)
		}
	}
}

func TestQuery_EmptyStore(t *testing.T) {
	repo := NewInMemoryRepository()
	q := NewQuery(repo, NewFakeClock(time.Now()), zerolog.Nop())

	page, err := q.List(context.Background(), ListOptions{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if page.Total != 0 {
		t.Errorf("expected total 0, got %d", page.Total)
	}
	if len(page.Items) != 0 {
		t.Errorf("expected no items, got %d", len(page.Items))
	}
}

func TestQuery_Pagination(t *testing.T) {
	repo := NewInMemoryRepository()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	seedJobs(t, repo, base, 45)
	q := NewQuery(repo, NewFakeClock(base.Add(time.Hour)), zerolog.Nop())
	ctx := context.Background()

	page, err := q.List(ctx, ListOptions{Page: 1, PageSize: 20})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if page.Total != 45 {
		t.Errorf("expected total 45, got %d", page.Total)
	}
	if len(page.Items) != 20 {
		t.Errorf("expected 20 items on page 1, got %d", len(page.Items))
	}
	// Reverse chronological: the newest seed comes first.
	if page.Items[0].ID != "exp_044" {
		t.Errorf("expected newest job first, got %s", page.Items[0].ID)
	}

	// Last page carries the remainder: 45 - 20*2 = 5.
	page, _ = q.List(ctx, ListOptions{Page: 3, PageSize: 20})
	if len(page.Items) != 5 {
		t.Errorf("expected 5 items on last page, got %d", len(page.Items))
	}

	// Out-of-range page clamps to the last valid page.
	page, _ = q.List(ctx, ListOptions{Page: 99, PageSize: 20})
	if page.Page != 3 {
		t.Errorf("expected clamp to page 3, got %d", page.Page)
	}
	if len(page.Items) != 5 {
		t.Errorf("expected last-page items after clamping, got %d", len(page.Items))
	}
}

func TestQuery_PageSizeClamping(t *testing.T) {
	repo := NewInMemoryRepository()
	seedJobs(t, repo, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), 5)
	q := NewQuery(repo, NewFakeClock(time.Now()), zerolog.Nop())
	ctx := context.Background()

	page, _ := q.List(ctx, ListOptions{})
	if page.PageSize != DefaultPageSize {
		t.Errorf("expected default page size %d, got %d", DefaultPageSize, page.PageSize)
	}

	page, _ = q.List(ctx, ListOptions{PageSize: 9999})
	if page.PageSize != MaxPageSize {
		t.Errorf("expected page size clamped to %d, got %d", MaxPageSize, page.PageSize)
	}
}

func TestQuery_SearchFilter(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	jobs := []*Job{
		{ID: "exp_alpha", Kind: KindSchoolReport, Format: FormatCSV, Status: StatusPending, RequestedAt: base},
		{ID: "exp_beta", Kind: KindCampaignResults, Format: FormatCSV, Status: StatusPending, RequestedAt: base.Add(time.Minute)},
		{ID: "exp_gamma", Kind: KindConsolidatedReport, Format: FormatPDF, Status: StatusPending, RequestedAt: base.Add(2 * time.Minute)},
	}
	for _, j := range jobs {
		if err := repo.Insert(ctx, j); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	q := NewQuery(repo, NewFakeClock(base), zerolog.Nop())

	// Substring of an id, case-insensitive.
	page, _ := q.List(ctx, ListOptions{Search: "ALPHA"})
	if page.Total != 1 || page.Items[0].ID != "exp_alpha" {
		t.Errorf("id search failed: total=%d", page.Total)
	}

	// Substring of a kind.
	page, _ = q.List(ctx, ListOptions{Search: "campaign"})
	if page.Total != 1 || page.Items[0].Kind != KindCampaignResults {
		t.Errorf("kind search failed: total=%d", page.Total)
	}

	// Substring of a format.
	page, _ = q.List(ctx, ListOptions{Search: "pdf"})
	if page.Total != 1 || page.Items[0].Format != FormatPDF {
		t.Errorf("format search failed: total=%d", page.Total)
	}

	page, _ = q.List(ctx, ListOptions{Search: "no-such-thing"})
	if page.Total != 0 {
		t.Errorf("expected empty result, got %d", page.Total)
	}
}

func TestQuery_StatusAndFormatFilters(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	statuses := []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed}
	for i, st := range statuses {
		job := &Job{
			ID:          fmt.Sprintf("exp_%d", i),
			Kind:        KindSchoolReport,
			Format:      FormatCSV,
			Status:      st,
			RequestedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if st == StatusCompleted {
			expires := base.Add(48 * time.Hour)
			job.ExpiresAt = &expires
		}
		if err := repo.Insert(ctx, job); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	q := NewQuery(repo, NewFakeClock(base.Add(time.Hour)), zerolog.Nop())

	page, _ := q.List(ctx, ListOptions{Status: StatusFailed})
	if page.Total != 1 || page.Items[0].Status != StatusFailed {
		t.Errorf("status filter failed: total=%d", page.Total)
	}

	page, _ = q.List(ctx, ListOptions{Format: FormatCSV})
	if page.Total != 4 {
		t.Errorf("format filter failed: total=%d", page.Total)
	}
}

func TestQuery_DateRangeDayGranularity(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	days := []time.Time{
		time.Date(2025, 3, 1, 23, 59, 0, 0, time.UTC),
		time.Date(2025, 3, 2, 0, 1, 0, 0, time.UTC),
		time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC),
	}
	for i, d := range days {
		job := &Job{
			ID:          fmt.Sprintf("exp_%d", i),
			Kind:        KindSchoolReport,
			Format:      FormatCSV,
			Status:      StatusPending,
			RequestedAt: d,
		}
		if err := repo.Insert(ctx, job); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	q := NewQuery(repo, NewFakeClock(days[2]), zerolog.Nop())

	// Inclusive on both ends at day granularity: a job requested at 23:59
	// on the From day is in range.
	page, _ := q.List(ctx, ListOptions{
		From: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC),
	})
	if page.Total != 2 {
		t.Errorf("expected 2 jobs in range, got %d", page.Total)
	}

	page, _ = q.List(ctx, ListOptions{From: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)})
	if page.Total != 1 || page.Items[0].ID != "exp_2" {
		t.Errorf("open-ended from filter failed: total=%d", page.Total)
	}
}

func TestQuery_CompletedFilterNeverStale(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := NewFakeClock(base)

	fresh := base.Add(48 * time.Hour)
	overdue := base.Add(1 * time.Hour)
	jobs := []*Job{
		{ID: "exp_fresh", Kind: KindSchoolReport, Format: FormatCSV, Status: StatusCompleted, RequestedAt: base, ExpiresAt: &fresh},
		{ID: "exp_overdue", Kind: KindSchoolReport, Format: FormatCSV, Status: StatusCompleted, RequestedAt: base, ExpiresAt: &overdue},
	}
	for _, j := range jobs {
		if err := repo.Insert(ctx, j); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	q := NewQuery(repo, clock, zerolog.Nop())

	// Past the overdue job's expiry: the listing sweep flips it before
	// filtering, so status=completed only returns the fresh one. This is
	// the read path's documented write side effect.
	clock.Advance(2 * time.Hour)
	page, _ := q.List(ctx, ListOptions{Status: StatusCompleted})
	if page.Total != 1 || page.Items[0].ID != "exp_fresh" {
		t.Fatalf("expected only the unexpired completed job, got total=%d", page.Total)
	}

	// The flip is persisted in the store, not just the view.
	got, _ := repo.Get(ctx, "exp_overdue")
	if got.Status != StatusExpired {
		t.Errorf("expected overdue job persisted as expired, got %s", got.Status)
	}

	page, _ = q.List(ctx, ListOptions{Status: StatusExpired})
	if page.Total != 1 || page.Items[0].ID != "exp_overdue" {
		t.Errorf("expected expired job listable by status, got total=%d", page.Total)
	}
}
