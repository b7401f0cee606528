package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/alecgard/gabelle/internal/usage"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
)

// usageStore is the persistence dependency of the admin usage handlers.
type usageStore interface {
	GetSummary(ctx context.Context, q usage.Query) (*usage.Summary, error)
	List(ctx context.Context, q usage.Query) ([]*usage.Record, string, error)
	ListUnprocessed(ctx context.Context, limit int) ([]*usage.Record, error)
	MarkProcessed(ctx context.Context, id string) error
}

// usageHandler groups the admin usage and record HTTP handlers.
type usageHandler struct {
	store usageStore
}

func newUsageHandler(store usageStore) *usageHandler {
	return &usageHandler{store: store}
}

// parseTimeParam parses a date query param in YYYY-MM-DD or RFC3339 format.
func parseTimeParam(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	// Try RFC3339 first.
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	// Fall back to date-only.
	t, err = time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// buildUsageQuery constructs a usage.Query from query params.
func buildUsageQuery(r *http.Request) (*usage.Query, error) {
	q := &usage.Query{
		SubscriptionID: r.URL.Query().Get("subscription_id"),
		DimensionID:    r.URL.Query().Get("dimension_id"),
		Cursor:         r.URL.Query().Get("cursor"),
	}

	from, err := parseTimeParam(r.URL.Query().Get("from"))
	if err != nil {
		return nil, err
	}
	q.From = from

	to, err := parseTimeParam(r.URL.Query().Get("to"))
	if err != nil {
		return nil, err
	}
	q.To = to

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, lErr := strconv.Atoi(limitStr)
		if lErr != nil || l < 1 {
			return nil, errors.New("limit must be a positive integer")
		}
		q.Limit = l
	}

	return q, nil
}

// GetSummary handles GET /api/v1/admin/usage.
func (h *usageHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	q, err := buildUsageQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_params", "invalid query parameters: "+err.Error())
		return
	}

	summary, err := h.store.GetSummary(r.Context(), *q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to get usage summary")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// ListRecords handles GET /api/v1/admin/usage/records.
func (h *usageHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	q, err := buildUsageQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_params", "invalid query parameters: "+err.Error())
		return
	}

	records, nextCursor, err := h.store.List(r.Context(), *q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list usage records")
		return
	}

	resp := map[string]interface{}{
		"records": records,
	}
	if nextCursor != "" {
		resp["next_cursor"] = nextCursor
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListUnprocessed handles GET /api/v1/admin/usage/records/unprocessed. It
// feeds the downstream metering submitter: oldest unbilled records first.
func (h *usageHandler) ListUnprocessed(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l < 1 {
			writeError(w, http.StatusBadRequest, "invalid_params", "limit must be a positive integer")
			return
		}
		limit = l
	}

	records, err := h.store.ListUnprocessed(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list unprocessed records")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"records": records})
}

// MarkProcessed handles POST /api/v1/admin/usage/records/{id}/processed.
// The transition is one-way: a record already marked processed returns 404
// so the metering submitter cannot double-bill on retry.
func (h *usageHandler) MarkProcessed(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_params", "record id is required")
		return
	}

	err := h.store.MarkProcessed(r.Context(), id)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "not_found", "no unprocessed record with that id")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to mark record processed")
		return
	}

	auditLog(r, "usage_record.mark_processed", "usage_record", id)
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "processed"})
}
