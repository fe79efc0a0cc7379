package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/emiliopalmerini/mexp/internal/domain"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

const (
	msgNotFound         = "Experiment not found"
	msgValidationFailed = "Validation failed"
	msgInvalidInput     = "Invalid input: "
	msgMissingID        = "Experiment id is required"
)

type errorResponse struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into v. On failure it writes a 400 and
// returns false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.logger.Debug("rejected request body", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: msgInvalidInput + err.Error()})
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: msgValidationFailed, Errors: verr.Fields})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Message: msgNotFound})
	case errors.Is(err, domain.ErrMissingID):
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: msgMissingID})
	default:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", RequestIDFromContext(r.Context()),
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: err.Error()})
	}
}
