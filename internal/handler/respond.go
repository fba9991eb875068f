package handler

import (
	"encoding/json"
	"net/http"

	"github.com/AlexZinkM/split-custody/internal/apperr"
	"github.com/AlexZinkM/split-custody/internal/model"

	"go.uber.org/zap"
)

// UserIDHeader carries the caller identity set by the upstream auth layer.
const UserIDHeader = "X-User-ID"

// maxBodyBytes bounds request bodies; signed transactions are at most 1232 bytes.
const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindInvalidCredentials:
		return http.StatusUnauthorized
	case apperr.KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err by kind. Internal causes go to the log only.
func writeError(w http.ResponseWriter, logger *zap.Logger, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	code := statusFor(kind)
	if code >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
	writeJSON(w, code, model.ErrorResponse{Error: apperr.PublicMessage(err), Kind: string(kind)})
}

func decode(r *http.Request, w http.ResponseWriter, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation("invalid request body: %v", err)
	}
	return nil
}

func callerID(r *http.Request) (string, error) {
	id := r.Header.Get(UserIDHeader)
	if id == "" {
		return "", apperr.InvalidCredentials("missing " + UserIDHeader + " header")
	}
	return id, nil
}
