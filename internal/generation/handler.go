package generation

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/postplan/postplan/internal/api"
	"github.com/postplan/postplan/internal/auth"
)

const maxRequestBodyBytes = 64 << 10

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Generate handles POST /api/v1/generate.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
		api.HandleError(w, api.ErrInvalidBody)
		return
	}

	userID, err := auth.ResolveUserID(r.Context(), req.UserID)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	req.UserID = userID

	result, err := h.svc.Generate(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	api.JSON(w, http.StatusOK, result)
}

// Usage handles GET /api/v1/usage?userId=.
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.ResolveUserID(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	usage, err := h.svc.Usage(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	api.JSON(w, http.StatusOK, usage)
}

func writeError(w http.ResponseWriter, err error) {
	var gErr *Error
	if !errors.As(err, &gErr) {
		api.HandleError(w, err)
		return
	}

	status := gErr.Kind.HTTPStatus()
	msg := gErr.Message
	if msg == "" {
		msg = msgInternal
	}

	if gErr.Usage != nil {
		api.JSONErrorUsage(w, status, msg, gErr.Usage)
		return
	}
	api.JSONErrorMessage(w, status, msg)
}
