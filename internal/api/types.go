package api

import (
	"encoding/json"
	"net/url"
	"strconv"
	"time"
)

// User is the authenticated user's profile.
type User struct {
	ID       uint   `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	IsActive bool   `json:"is_active"`
}

// AuthResponse is returned by login, register and refresh.
type AuthResponse struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         *User     `json:"user"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Link is a shortened URL as stored by the backend.
type Link struct {
	ID          uint       `json:"id"`
	OriginalURL string     `json:"original_url"`
	ShortCode   string     `json:"short_code"`
	UserID      *uint      `json:"user_id,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	ClickCount  int64      `json:"click_count"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// CreateLinkRequest is the body of POST /urls and POST /urls/public.
type CreateLinkRequest struct {
	OriginalURL string     `json:"original_url"`
	ShortCode   *string    `json:"short_code,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// UpdateLinkRequest is the body of PUT /urls/:id. Nil fields are left unchanged.
type UpdateLinkRequest struct {
	OriginalURL *string    `json:"original_url,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	IsActive    *bool      `json:"is_active,omitempty"`
}

// Sort directions accepted by ListParams.SortDir.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// ListParams filters and paginates GET /urls. Zero values are omitted.
type ListParams struct {
	Page     int
	Limit    int
	Search   string
	IsActive *bool
	SortBy   string // created_at | updated_at | click_count
	SortDir  string // asc | desc
}

// Values encodes the params as a query string.
func (p ListParams) Values() url.Values {
	v := url.Values{}
	if p.Page > 0 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	if p.Limit > 0 {
		v.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Search != "" {
		v.Set("search", p.Search)
	}
	if p.IsActive != nil {
		v.Set("is_active", strconv.FormatBool(*p.IsActive))
	}
	if p.SortBy != "" {
		v.Set("sort_by", p.SortBy)
	}
	if p.SortDir != "" {
		v.Set("sort_dir", p.SortDir)
	}
	return v
}

// Pagination describes one page of a list response.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// HasNext reports whether a later page exists.
func (p Pagination) HasNext() bool { return p.Page < p.TotalPages }

// HasPrev reports whether an earlier page exists.
func (p Pagination) HasPrev() bool { return p.Page > 1 }

// LinkPage is one page of links.
type LinkPage struct {
	Links      []Link     `json:"links"`
	Pagination Pagination `json:"pagination"`
}

// ClickEvent is a single recorded visit of a short link.
type ClickEvent struct {
	ID        uint      `json:"id"`
	URLID     uint      `json:"url_id"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	Referer   *string   `json:"referer,omitempty"`
	ClickedAt time.Time `json:"clicked_at"`
}

// LinkStats is a link with its most recent clicks.
type LinkStats struct {
	Link
	RecentClicks []ClickEvent `json:"recent_clicks,omitempty"`
}

// envelope is the backend's standard response wrapper.
type envelope struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Error      string          `json:"error,omitempty"`
	Code       string          `json:"code,omitempty"`
	Details    string          `json:"details,omitempty"`
	Pagination *Pagination     `json:"pagination,omitempty"`
}
