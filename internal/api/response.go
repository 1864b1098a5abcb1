package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"market_pulse/internal/domain"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", slog.Any("error", err))
	}
}

// statusFor maps an error to its HTTP status. Only malformed input is the
// caller's fault.
func statusFor(err error) int {
	var inputErr *domain.InputError
	if errors.As(err, &inputErr) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		msg = "internal server error"
	}
	writeJSON(w, status, ErrorResponse{Error: msg})
}
