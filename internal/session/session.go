package session

import (
	"strconv"
	"time"

	"github.com/roach88/linkctl/internal/api"
)

// Session is the client's credential record. The zero value is logged out.
//
// Sessions are values; the User pointer is shared between snapshots and
// must not be modified.
type Session struct {
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         *api.User `json:"user,omitempty"`
}

// IsAuthenticated reports whether s holds an access token.
func IsAuthenticated(s Session) bool {
	return s.AccessToken != ""
}

// Expired reports whether the access token's expiry is strictly before now.
// A session without an expiry never expires client-side.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && s.ExpiresAt.Before(now)
}

// IsZero reports whether every field is empty.
func (s Session) IsZero() bool {
	return s.AccessToken == "" && s.RefreshToken == "" && s.ExpiresAt.IsZero() && s.User == nil
}

// Identity names who the session acts for: the user ID when the profile is
// known, else the access token itself. It is empty when logged out.
func (s Session) Identity() string {
	switch {
	case !IsAuthenticated(s):
		return ""
	case s.User != nil:
		return "user:" + strconv.FormatUint(uint64(s.User.ID), 10)
	default:
		return "token:" + s.AccessToken
	}
}
