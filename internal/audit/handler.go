package audit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/postplan/postplan/internal/api"
	"github.com/postplan/postplan/internal/auth"
)

type eventLister interface {
	ListByUser(ctx context.Context, userID string, params ListParams) ([]UsageEvent, int64, error)
}

type Handler struct {
	repo eventLister
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// ListEvents handles GET /api/v1/usage/events?userId=.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.ResolveUserID(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	if userID == "" {
		api.HandleError(w, api.NewBadRequestError("Missing fields: userId"))
		return
	}

	params := parseListParams(r)

	events, total, err := h.repo.ListByUser(r.Context(), userID, params)
	if err != nil {
		slog.Error("listing usage events", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, events, total, params.Page, params.PageSize)
}

func parseListParams(r *http.Request) ListParams {
	params := DefaultListParams()
	q := r.URL.Query()

	params.EventType = q.Get("event_type")
	params.Severity = q.Get("severity")

	if page, err := strconv.Atoi(q.Get("page")); err == nil && page > 0 {
		params.Page = page
	}
	if size, err := strconv.Atoi(q.Get("page_size")); err == nil && size > 0 && size <= 100 {
		params.PageSize = size
	}
	if t, err := time.Parse(time.RFC3339, q.Get("from")); err == nil {
		params.From = &t
	}
	if t, err := time.Parse(time.RFC3339, q.Get("to")); err == nil {
		params.To = &t
	}

	return params
}
