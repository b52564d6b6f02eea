package gateway

import "errors"

// ErrReauthRequired means the session could not be refreshed and was
// cleared; the user has to log in again.
var ErrReauthRequired = errors.New("gateway: re-authentication required")

// ReauthError is returned when a refresh fails. It matches both
// ErrReauthRequired and the underlying refresh error.
type ReauthError struct {
	Cause error
}

func (e *ReauthError) Error() string {
	if e.Cause == nil {
		return ErrReauthRequired.Error()
	}
	return ErrReauthRequired.Error() + ": " + e.Cause.Error()
}

func (e *ReauthError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrReauthRequired}
	}
	return []error{ErrReauthRequired, e.Cause}
}

// IsReauthRequired reports whether err signals that the user must log in again.
func IsReauthRequired(err error) bool {
	return errors.Is(err, ErrReauthRequired)
}
