package api

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every failed request. Usage is set only for quota rejections.
type ErrorResponse struct {
	Error string `json:"error"`
	Usage any    `json:"usage,omitempty"`
}

type PaginatedResponse struct {
	Data       any   `json:"data"`
	TotalCount int64 `json:"total_count"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
}

// JSON writes data as the whole response body.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data) //nolint:errcheck
}

func JSONPaginated(w http.ResponseWriter, status int, data any, totalCount int64, page, pageSize int) {
	JSON(w, status, PaginatedResponse{
		Data:       data,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	})
}

func JSONErrorMessage(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// JSONErrorUsage writes an error body that also reports the caller's usage.
func JSONErrorUsage(w http.ResponseWriter, status int, message string, usage any) {
	JSON(w, status, ErrorResponse{Error: message, Usage: usage})
}
