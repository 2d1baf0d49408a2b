package httpauth

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Stable error codes returned in {"error": code} bodies.
const (
	CodeInvalidRequest = "invalid_request"
	CodeUnauthorized   = "unauthorized"
	CodeInvalidToken   = "invalid_token"
	CodeForbidden      = "forbidden"
	CodeUnavailable    = "temporarily_unavailable"
	CodeInternal       = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, logger *zap.Logger, status int, code string) {
	writeJSON(w, logger, status, errorResponse{Error: code})
}
