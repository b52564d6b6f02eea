package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/linkctl/internal/api"
	"github.com/roach88/linkctl/internal/gateway"
	"github.com/roach88/linkctl/internal/session"
	"github.com/roach88/linkctl/internal/validate"
)

func apiErr(status int, code, msg string) error {
	return &api.Error{Status: status, Code: code, Message: msg}
}

// emptyErr has no text of its own.
type emptyErr struct{}

func (emptyErr) Error() string { return "" }

func TestClassify(t *testing.T) {
	reauth := &url.Error{Op: "Get", URL: "http://x/urls", Err: &gateway.ReauthError{Cause: session.ErrRefreshFailed}}

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindOther},
		{"validation", validate.Check(&validate.Shorten{}), KindValidation},
		{"invalid credentials", apiErr(401, api.CodeInvalidCredentials, ""), KindAuth},
		{"deactivated", apiErr(401, api.CodeUnauthorized, ""), KindAuth},
		{"reauth through url.Error", reauth, KindTokenLifecycle},
		{"no refresh token", fmt.Errorf("refresh: %w", session.ErrNoRefreshToken), KindTokenLifecycle},
		{"token expired code", apiErr(401, api.CodeTokenExpired, ""), KindTokenLifecycle},
		{"email used", apiErr(409, api.CodeEmailAlreadyUsed, ""), KindConflict},
		{"short code taken", apiErr(409, api.CodeShortCodeAlreadyExists, ""), KindConflict},
		{"bare 409", apiErr(409, "", ""), KindConflict},
		{"server error", apiErr(500, "INTERNAL", "boom"), KindOther},
		{"network", errors.New("dial tcp: connection refused"), KindOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestMessage(t *testing.T) {
	tests := []struct {
		name string
		op   Op
		err  error
		want string
	}{
		{"login bad credentials", OpLogin, apiErr(401, api.CodeInvalidCredentials, "invalid credentials"), MsgInvalidCredentials},
		{"login deactivated", OpLogin, apiErr(401, api.CodeUnauthorized, "account is deactivated"), MsgAccountDeactivated},
		{"register duplicate", OpRegister, apiErr(409, api.CodeEmailAlreadyUsed, "exists"), MsgAlreadyRegistered},
		{"shorten duplicate", OpShorten, apiErr(409, api.CodeShortCodeAlreadyExists, "exists"), MsgShortCodeTaken},
		{"session expired", OpOther, &gateway.ReauthError{Cause: session.ErrRefreshFailed}, MsgSessionExpired},
		{"validation", OpShorten, validate.Check(&validate.Shorten{}), "URL is required"},
		{"server message", OpOther, apiErr(500, "INTERNAL", "database unavailable"), "database unavailable"},
		{"code on other op uses server message", OpOther, apiErr(409, api.CodeShortCodeAlreadyExists, "Short code already exists"), "Short code already exists"},
		{"error text", OpLogin, errors.New("dial tcp: connection refused"), "dial tcp: connection refused"},
		{"login fallback", OpLogin, emptyErr{}, MsgLoginFailed},
		{"register fallback", OpRegister, emptyErr{}, MsgRegistrationFailed},
		{"generic fallback", OpShorten, emptyErr{}, MsgUnexpected},
		{"nil", OpOther, nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Message(tt.op, tt.err))
		})
	}
}

func TestMessage_APIErrorWithoutMessage(t *testing.T) {
	err := apiErr(http.StatusBadGateway, "", "")
	assert.Equal(t, "api: 502: Bad Gateway", Message(OpOther, err))
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "token_lifecycle", KindTokenLifecycle.String())
	assert.Equal(t, "Kind(42)", Kind(42).String())
}
