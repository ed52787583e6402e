package httphandler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ericfisherdev/certregistry/internal/application"
)

var (
	passwordCheckFields  = []string{"app_id", "password"}
	passwordChangeFields = []string{"app_id", "old_password", "new_password"}
	passwordStatusFields = []string{"app_id"}
)

// CheckPassword evaluates an application password against the lockout gate.
func (h *Handler) CheckPassword(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.signedPayload(w, r, passwordCheckFields)
	if !ok {
		return
	}

	err := h.guard.Check(r.Context(), payload["app_id"], payload["password"])

	var locked *application.LockedError
	var invalid *application.InvalidSecretError
	switch {
	case err == nil:
		h.metrics.passwordCheck("ok")
		writeJSON(w, http.StatusOK, PasswordOKResponse{OK: true})
	case errors.As(err, &locked):
		h.metrics.passwordCheck("locked")
		writeLocked(w, locked)
	case errors.As(err, &invalid):
		resp := PasswordErrorResponse{
			Error:     "invalid password",
			Locked:    invalid.Locked,
			Attempts:  invalid.Attempts,
			Remaining: invalid.Remaining,
		}
		if invalid.Locked {
			h.metrics.passwordCheck("lockout_started")
			resp.RetryAfter = application.RetryAfterSeconds(invalid.RetryAfter)
			w.Header().Set("Retry-After", strconv.Itoa(resp.RetryAfter))
		} else {
			h.metrics.passwordCheck("invalid")
		}
		writeJSON(w, http.StatusUnauthorized, resp)
	case errors.Is(err, application.ErrEmptyAppID):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.internalError(w, r, "failed to check password", err)
	}
}

// ChangePassword replaces an application password when the old one matches.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.signedPayload(w, r, passwordChangeFields)
	if !ok {
		return
	}

	err := h.guard.Change(r.Context(), payload["app_id"], payload["old_password"], payload["new_password"])

	var locked *application.LockedError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, PasswordOKResponse{OK: true})
	case errors.As(err, &locked):
		writeLocked(w, locked)
	case errors.Is(err, application.ErrOldSecretWrong):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, application.ErrEmptyAppID), errors.Is(err, application.ErrEmptySecret):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.internalError(w, r, "failed to change password", err)
	}
}

// PasswordStatus reports the failure counter and lock state of an app_id.
func (h *Handler) PasswordStatus(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.signedPayload(w, r, passwordStatusFields)
	if !ok {
		return
	}

	st, err := h.guard.Status(r.Context(), payload["app_id"])
	if errors.Is(err, application.ErrEmptyAppID) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.internalError(w, r, "failed to read password status", err)
		return
	}

	writeJSON(w, http.StatusOK, PasswordStatusResponse{
		AppID:          st.AppID,
		FailedAttempts: st.FailedAttempts,
		Locked:         st.Locked,
		RetryAfter:     application.RetryAfterSeconds(st.RetryAfter),
	})
}

func writeLocked(w http.ResponseWriter, locked *application.LockedError) {
	retry := application.RetryAfterSeconds(locked.RetryAfter)
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	writeJSON(w, http.StatusLocked, PasswordErrorResponse{
		Error:      "locked",
		Locked:     true,
		RetryAfter: retry,
	})
}
