// Package apperr classifies errors from the session, gateway and API layers
// and turns them into messages for the user.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/roach88/linkctl/internal/api"
	"github.com/roach88/linkctl/internal/gateway"
	"github.com/roach88/linkctl/internal/session"
	"github.com/roach88/linkctl/internal/validate"
)

// Kind is the broad category of an error.
type Kind int

const (
	// KindOther covers network failures, server errors and anything unrecognised.
	KindOther Kind = iota
	// KindValidation: input rejected before it was sent.
	KindValidation
	// KindAuth: bad credentials or a deactivated account.
	KindAuth
	// KindTokenLifecycle: the session expired and could not be refreshed.
	KindTokenLifecycle
	// KindConflict: the resource already exists.
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindOther:
		return "other"
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindTokenLifecycle:
		return "token_lifecycle"
	case KindConflict:
		return "conflict"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Op names the user action an error came from. Some messages depend on it.
type Op string

const (
	OpLogin    Op = "login"
	OpRegister Op = "register"
	OpShorten  Op = "shorten"
	OpOther    Op = ""
)

// User-facing messages.
const (
	MsgInvalidCredentials = "Invalid email or password. Please check your credentials and try again."
	MsgAccountDeactivated = "Your account has been deactivated. Please contact support."
	MsgAlreadyRegistered  = "This email or username is already registered. Please use a different email or username."
	MsgShortCodeTaken     = "Short code already exists. Please choose a different short code or leave it empty for auto-generation"
	MsgSessionExpired     = "Your session has expired. Please log in again."

	MsgLoginFailed        = "Login failed. Please try again."
	MsgRegistrationFailed = "Registration failed. Please try again."
	MsgUnexpected         = "An unexpected error occurred"
)

// Classify returns the Kind of err. A nil err is KindOther.
func Classify(err error) Kind {
	if err == nil {
		return KindOther
	}
	if validate.IsValidationError(err) {
		return KindValidation
	}
	if gateway.IsReauthRequired(err) || errors.Is(err, session.ErrNoRefreshToken) {
		return KindTokenLifecycle
	}

	apiErr, ok := api.AsError(err)
	if !ok {
		return KindOther
	}
	switch apiErr.Code {
	case api.CodeInvalidCredentials, api.CodeUnauthorized:
		return KindAuth
	case api.CodeInvalidToken, api.CodeTokenExpired:
		return KindTokenLifecycle
	case api.CodeEmailAlreadyUsed, api.CodeShortCodeAlreadyExists:
		return KindConflict
	}
	if apiErr.Status == http.StatusConflict {
		return KindConflict
	}
	return KindOther
}

// Message returns the text to show the user for an error from op.
func Message(op Op, err error) string {
	if err == nil {
		return ""
	}
	if ve, ok := validate.AsError(err); ok {
		return ve.Error()
	}
	if Classify(err) == KindTokenLifecycle {
		return MsgSessionExpired
	}

	switch code := api.ErrorCode(err); {
	case op == OpLogin && code == api.CodeInvalidCredentials:
		return MsgInvalidCredentials
	case op == OpLogin && code == api.CodeUnauthorized:
		return MsgAccountDeactivated
	case op == OpRegister && code == api.CodeEmailAlreadyUsed:
		return MsgAlreadyRegistered
	case op == OpShorten && code == api.CodeShortCodeAlreadyExists:
		return MsgShortCodeTaken
	}

	if apiErr, ok := api.AsError(err); ok && apiErr.Message != "" {
		return apiErr.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback(op)
}

func fallback(op Op) string {
	switch op {
	case OpLogin:
		return MsgLoginFailed
	case OpRegister:
		return MsgRegistrationFailed
	default:
		return MsgUnexpected
	}
}
