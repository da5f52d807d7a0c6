package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/timekeeper-hq/authcore/internal/service"
)

type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
	Meta    meta      `json:"meta"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type meta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data, Meta: buildMeta(r)})
}

func Error(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: &apiError{Code: code, Message: message}, Meta: buildMeta(r)})
}

// FromError maps the service error kinds onto HTTP statuses and stable
// codes. Unknown errors collapse to a generic 500 with no detail.
func FromError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		Error(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", err.Error())
	case errors.Is(err, service.ErrMFARequired):
		Error(w, r, http.StatusUnauthorized, "MFA_REQUIRED", err.Error())
	case errors.Is(err, service.ErrMFAInvalid):
		Error(w, r, http.StatusUnauthorized, "MFA_INVALID", err.Error())
	case errors.Is(err, service.ErrAccountLocked):
		Error(w, r, http.StatusForbidden, "ACCOUNT_LOCKED", err.Error())
	case errors.Is(err, service.ErrInvalidToken), errors.Is(err, service.ErrTokenReuseDetected):
		Error(w, r, http.StatusUnauthorized, "INVALID_TOKEN", service.ErrInvalidToken.Error())
	case errors.Is(err, service.ErrRateLimited):
		Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", err.Error())
	case errors.Is(err, service.ErrResetTokenInvalid), errors.Is(err, service.ErrResetTokenExpired):
		Error(w, r, http.StatusBadRequest, "RESET_TOKEN_REJECTED", err.Error())
	case errors.Is(err, service.ErrPasswordTooWeak):
		Error(w, r, http.StatusBadRequest, "PASSWORD_TOO_WEAK", err.Error())
	case errors.Is(err, service.ErrMFAAlreadyEnabled),
		errors.Is(err, service.ErrMFANotEnabled),
		errors.Is(err, service.ErrMFANotPending):
		Error(w, r, http.StatusConflict, "MFA_STATE", err.Error())
	case errors.Is(err, service.ErrInfrastructureUnavailable):
		// Never echo the wrapped driver detail.
		Error(w, r, http.StatusServiceUnavailable, "UNAVAILABLE", service.ErrInfrastructureUnavailable.Error())
	default:
		Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

func buildMeta(r *http.Request) meta {
	id := chimiddleware.GetReqID(r.Context())
	if id == "" {
		id = r.Header.Get("X-Request-Id")
	}
	if id == "" {
		id = "req-unknown"
	}
	return meta{RequestID: id, Timestamp: time.Now().UTC()}
}
