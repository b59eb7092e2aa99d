package httputil

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/tendant/school-crm/pkg/domain"
)

var errorStatus = []struct {
	err    error
	status int
}{
	{domain.ErrInvalidCredentials, http.StatusUnauthorized},
	{domain.ErrInvalidToken, http.StatusUnauthorized},
	{domain.ErrSessionNotFound, http.StatusUnauthorized},
	{domain.ErrSessionExpired, http.StatusUnauthorized},
	{domain.ErrSessionRevoked, http.StatusUnauthorized},
	{domain.ErrSessionFingerprint, http.StatusUnauthorized},
	{domain.ErrAccountLocked, http.StatusTooManyRequests},
	{domain.ErrMFARequired, http.StatusForbidden},
	{domain.ErrForbidden, http.StatusForbidden},
	{domain.ErrTenantSuspended, http.StatusForbidden},
	{domain.ErrTenantPendingDeletion, http.StatusForbidden},
	{domain.ErrTenantNotProvisioned, http.StatusForbidden},
	{domain.ErrUserNotFound, http.StatusNotFound},
	{domain.ErrTenantNotFound, http.StatusNotFound},
	{domain.ErrNotFound, http.StatusNotFound},
	{domain.ErrUserAlreadyExists, http.StatusConflict},
	{domain.ErrTenantExists, http.StatusConflict},
	{domain.ErrConflict, http.StatusConflict},
	{domain.ErrClassFull, http.StatusConflict},
	{domain.ErrBookUnavailable, http.StatusConflict},
	{domain.ErrBookAlreadyReturn, http.StatusConflict},
	{domain.ErrTenantTransition, http.StatusConflict},
	{domain.ErrTenantNotPurgeable, http.StatusConflict},
	{domain.ErrMFAAlreadyEnabled, http.StatusConflict},
	{domain.ErrInvalidInput, http.StatusBadRequest},
	{domain.ErrInvalidEmail, http.StatusBadRequest},
	{domain.ErrWeakPassword, http.StatusBadRequest},
	{domain.ErrInvalidSubdomain, http.StatusBadRequest},
	{domain.ErrInvalidReference, http.StatusBadRequest},
	{domain.ErrInvalidMFACode, http.StatusBadRequest},
	{domain.ErrMFANotEnabled, http.StatusBadRequest},
	{domain.ErrMFANotSetup, http.StatusBadRequest},
}

// StatusFor maps a domain error to an HTTP status. Unknown errors are 500.
func StatusFor(err error) int {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// WriteError responds with the status for err. Server errors are logged
// and their message hidden from the client.
func WriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		Error(w, status, "internal server error")
		return
	}
	Error(w, status, publicMessage(err))
}

// publicMessage returns the sentinel text for err rather than any wrapped
// detail, so joined validation errors do not leak internals.
func publicMessage(err error) string {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			if errors.Is(e.err, domain.ErrWeakPassword) {
				return err.Error()
			}
			return e.err.Error()
		}
	}
	return err.Error()
}
