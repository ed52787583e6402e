package application

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Request authentication failures, in the order SignatureVerifier checks them.
var (
	ErrMissingAuthorization = errors.New("missing authorization")
	ErrInvalidAPIKey        = errors.New("invalid api key")
	ErrInvalidTimestamp     = errors.New("invalid timestamp")
	ErrTimestampOutOfRange  = errors.New("timestamp out of range")
	ErrInvalidSignature     = errors.New("invalid signature")
)

// Password gate failures that carry no extra state.
var (
	ErrOldSecretWrong = errors.New("old password is incorrect")
	ErrEmptySecret    = errors.New("new password must not be empty")
	ErrEmptyAppID     = errors.New("app_id is required")
)

// Certificate validation failures.
var (
	ErrIncompleteCertificate = errors.New("firstname, lastname, birthdate, cert_name and cert_serial_sn are required")
	ErrIncompleteIdentity    = errors.New("firstname, lastname and birthdate are required")
	ErrIncompleteLookup      = errors.New("cert_serial_sn and cert_random_code are required")
)

// LockedError is returned while a credential is inside its lockout window.
// The attempt is rejected without being evaluated.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("credential locked, retry after %ds", RetryAfterSeconds(e.RetryAfter))
}

// InvalidSecretError is returned when a candidate password does not match.
// Locked is set when this failure reached the attempt threshold and started
// a lockout lasting RetryAfter.
type InvalidSecretError struct {
	Attempts   int
	Remaining  int
	Locked     bool
	RetryAfter time.Duration
}

func (e *InvalidSecretError) Error() string {
	if e.Locked {
		return fmt.Sprintf("invalid password, locked for %ds", RetryAfterSeconds(e.RetryAfter))
	}
	return fmt.Sprintf("invalid password, %d attempts remaining", e.Remaining)
}

// IsAuthError reports whether err is one of the request authentication
// failures returned by SignatureVerifier.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrMissingAuthorization) ||
		errors.Is(err, ErrInvalidAPIKey) ||
		errors.Is(err, ErrInvalidTimestamp) ||
		errors.Is(err, ErrTimestampOutOfRange) ||
		errors.Is(err, ErrInvalidSignature)
}

// RetryAfterSeconds rounds d up to whole seconds, the unit clients receive.
func RetryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
