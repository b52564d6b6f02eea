package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"

	"github.com/roach88/linkctl/internal/api"
)

// APIPrefix is the path under which Backend serves the API.
const APIPrefix = "/api/v1"

// RecordedRequest is one request observed by Backend.
type RecordedRequest struct {
	Method        string
	Path          string // without APIPrefix
	Authorization string
	RequestID     string
	Status        int
}

// Key returns "METHOD /path".
func (r RecordedRequest) Key() string {
	return r.Method + " " + r.Path
}

type backendUser struct {
	api.User
	password string
}

type failure struct {
	status int
	code   string
}

type tokenClaims struct {
	Gen int `json:"gen"`
	jwt.RegisteredClaims
}

type ctxKey struct{}

// Backend is an in-memory stand-in for the URL-shortening API.
//
// Access tokens are HS256 JWTs checked against Clock, so tests control expiry
// by advancing the clock. Refresh tokens rotate on every refresh like the
// real service.
type Backend struct {
	Server    *httptest.Server
	Clock     *FakeClock
	AccessTTL time.Duration

	mu          sync.Mutex
	secret      []byte
	generation  int
	seq         int
	nextUserID  uint
	nextLinkID  uint
	users       map[string]*backendUser
	refresh     map[string]uint
	links       map[uint]*api.Link
	clicks      map[uint][]api.ClickEvent
	requests    []RecordedRequest
	failures    map[string][]failure
	refreshFail bool
	refreshGate chan struct{}
}

// NewBackend starts a backend that is closed when the test ends.
// A nil clock gets a fresh FakeClock.
func NewBackend(t testing.TB, clock *FakeClock) *Backend {
	t.Helper()
	if clock == nil {
		clock = NewFakeClock()
	}
	b := &Backend{
		Clock:      clock,
		AccessTTL:  15 * time.Minute,
		secret:     []byte("linkctl-test-secret"),
		nextUserID: 1,
		nextLinkID: 1,
		users:      make(map[string]*backendUser),
		refresh:    make(map[string]uint),
		links:      make(map[uint]*api.Link),
		clicks:     make(map[uint][]api.ClickEvent),
		failures:   make(map[string][]failure),
	}
	b.Server = httptest.NewServer(b.routes())
	t.Cleanup(b.Server.Close)
	return b
}

// BaseURL is the API base URL clients should be configured with.
func (b *Backend) BaseURL() string {
	return b.Server.URL + APIPrefix
}

func (b *Backend) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(b.record)
	r.Route(APIPrefix, func(r chi.Router) {
		r.Post("/auth/login", b.handleLogin)
		r.Post("/auth/register", b.handleRegister)
		r.Post("/auth/refresh", b.handleRefresh)
		r.Post("/urls/public", b.handleCreate)

		r.Group(func(r chi.Router) {
			r.Use(b.requireAuth)
			r.Post("/urls", b.handleCreate)
			r.Get("/urls", b.handleList)
			r.Get("/urls/{id}", b.handleGet)
			r.Put("/urls/{id}", b.handleUpdate)
			r.Delete("/urls/{id}", b.handleDelete)
			r.Get("/urls/{id}/stats", b.handleStats)
		})
	})
	return r
}

// record logs every request and serves queued failures.
func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		path := strings.TrimPrefix(r.URL.Path, APIPrefix)
		key := r.Method + " " + path

		b.mu.Lock()
		var forced *failure
		if q := b.failures[key]; len(q) > 0 {
			forced = &q[0]
			b.failures[key] = q[1:]
		}
		b.mu.Unlock()

		if forced != nil {
			writeError(ww, forced.status, forced.code, http.StatusText(forced.status))
		} else {
			next.ServeHTTP(ww, r)
		}

		b.mu.Lock()
		b.requests = append(b.requests, RecordedRequest{
			Method:        r.Method,
			Path:          path,
			Authorization: r.Header.Get("Authorization"),
			RequestID:     r.Header.Get("X-Request-ID"),
			Status:        ww.Status(),
		})
		b.mu.Unlock()
	})
}

func (b *Backend) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, http.StatusUnauthorized, api.CodeUnauthorized, "Authorization header is required")
			return
		}
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			writeError(w, http.StatusUnauthorized, api.CodeUnauthorized, "Invalid authorization header format")
			return
		}

		claims := &tokenClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return b.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(b.Clock.Now))

		b.mu.Lock()
		gen := b.generation
		b.mu.Unlock()

		if err != nil || claims.Gen != gen {
			writeError(w, http.StatusUnauthorized, api.CodeInvalidToken, "Invalid or expired token")
			return
		}
		id, err := strconv.ParseUint(claims.Subject, 10, 64)
		if err != nil {
			writeError(w, http.StatusUnauthorized, api.CodeInvalidToken, "Invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, uint(id))))
	})
}

// AddUser registers an active user directly.
func (b *Backend) AddUser(email, username, password, fullName string) api.User {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addUserLocked(email, username, password, fullName)
}

func (b *Backend) addUserLocked(email, username, password, fullName string) api.User {
	u := &backendUser{
		User: api.User{
			ID:       b.nextUserID,
			Email:    email,
			Username: username,
			FullName: fullName,
			IsActive: true,
		},
		password: password,
	}
	b.nextUserID++
	b.users[email] = u
	return u.User
}

// DeactivateUser marks a user inactive so login fails with UNAUTHORIZED.
func (b *Backend) DeactivateUser(email string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if u, ok := b.users[email]; ok {
		u.IsActive = false
	}
}

// IssueTokens returns a fresh token pair for an existing user, as login would.
func (b *Backend) IssueTokens(email string) api.AuthResponse {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[email]
	if !ok {
		panic("testutil: unknown user " + email)
	}
	return b.issueLocked(u)
}

func (b *Backend) issueLocked(u *backendUser) api.AuthResponse {
	now := b.Clock.Now()
	b.seq++
	expiresAt := now.Add(b.AccessTTL)
	claims := tokenClaims{
		Gen: b.generation,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(u.ID), 10),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        strconv.Itoa(b.seq),
		},
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.secret)
	if err != nil {
		panic(err)
	}
	refresh := fmt.Sprintf("refresh-%d", b.seq)
	b.refresh[refresh] = u.ID

	user := u.User
	return api.AuthResponse{
		Token:        access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
		User:         &user,
	}
}

// InvalidateAccessTokens makes every issued access token fail with 401
// while leaving refresh tokens usable.
func (b *Backend) InvalidateAccessTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.generation++
}

// SetRefreshFailure makes every refresh call fail with 401 INVALID_TOKEN.
func (b *Backend) SetRefreshFailure(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshFail = fail
}

// HoldRefresh blocks refresh calls until the returned func is called.
func (b *Backend) HoldRefresh() (release func()) {
	gate := make(chan struct{})
	b.mu.Lock()
	b.refreshGate = gate
	b.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// FailNext makes the next request to "METHOD /path" fail with status and code.
func (b *Backend) FailNext(method, path string, status int, code string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := method + " " + path
	b.failures[key] = append(b.failures[key], failure{status: status, code: code})
}

// SeedLink stores a link owned by userID (0 for anonymous).
func (b *Backend) SeedLink(userID uint, originalURL, shortCode string) api.Link {
	b.mu.Lock()
	defer b.mu.Unlock()
	var owner *uint
	if userID != 0 {
		owner = &userID
	}
	return *b.createLocked(owner, originalURL, shortCode, nil)
}

// RecordClick adds a click to a link.
func (b *Backend) RecordClick(id uint, ip, userAgent string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	link, ok := b.links[id]
	if !ok {
		return
	}
	link.ClickCount++
	b.clicks[id] = append(b.clicks[id], api.ClickEvent{
		ID:        uint(len(b.clicks[id]) + 1),
		URLID:     id,
		IPAddress: ip,
		UserAgent: userAgent,
		ClickedAt: b.Clock.Now(),
	})
}

// Requests returns a copy of all recorded requests.
func (b *Backend) Requests() []RecordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]RecordedRequest, len(b.requests))
	copy(out, b.requests)
	return out
}

// Count returns how many requests hit "METHOD /path".
func (b *Backend) Count(method, path string) int {
	key := method + " " + path
	n := 0
	for _, r := range b.Requests() {
		if r.Key() == key {
			n++
		}
	}
	return n
}

// ResetRequests clears the request log.
func (b *Backend) ResetRequests() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = nil
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if !decode(w, r, &req) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[req.Email]
	if !ok || u.password != req.Password {
		writeError(w, http.StatusUnauthorized, api.CodeInvalidCredentials, "invalid credentials")
		return
	}
	if !u.IsActive {
		writeError(w, http.StatusUnauthorized, api.CodeUnauthorized, "account is deactivated")
		return
	}
	writeJSON(w, http.StatusOK, b.issueLocked(u))
}

func (b *Backend) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRequest
	if !decode(w, r, &req) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, u := range b.users {
		if u.Email == req.Email || u.Username == req.Username {
			writeError(w, http.StatusConflict, api.CodeEmailAlreadyUsed, "user with this email or username already exists")
			return
		}
	}
	b.addUserLocked(req.Email, req.Username, req.Password, req.FullName)
	writeJSON(w, http.StatusCreated, b.issueLocked(b.users[req.Email]))
}

func (b *Backend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	gate := b.refreshGate
	b.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decode(w, r, &req) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	userID, ok := b.refresh[req.RefreshToken]
	if b.refreshFail || !ok {
		writeError(w, http.StatusUnauthorized, api.CodeInvalidToken, "invalid refresh token")
		return
	}
	delete(b.refresh, req.RefreshToken)

	for _, u := range b.users {
		if u.ID == userID {
			writeJSON(w, http.StatusOK, b.issueLocked(u))
			return
		}
	}
	writeError(w, http.StatusNotFound, "USER_NOT_FOUND", "user not found")
}

func (b *Backend) createLocked(owner *uint, originalURL, shortCode string, expiresAt *time.Time) *api.Link {
	id := b.nextLinkID
	b.nextLinkID++
	if shortCode == "" {
		shortCode = fmt.Sprintf("s%04d", id)
	}
	now := b.Clock.Now()
	link := &api.Link{
		ID:          id,
		OriginalURL: originalURL,
		ShortCode:   shortCode,
		UserID:      owner,
		ExpiresAt:   expiresAt,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	b.links[id] = link
	return link
}

func (b *Backend) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req api.CreateLinkRequest
	if !decode(w, r, &req) {
		return
	}
	if req.OriginalURL == "" {
		writeError(w, http.StatusBadRequest, api.CodeValidation, "original_url is required")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	code := ""
	if req.ShortCode != nil {
		code = *req.ShortCode
	}
	if code != "" {
		for _, l := range b.links {
			if l.ShortCode == code {
				writeError(w, http.StatusConflict, api.CodeShortCodeAlreadyExists, "Short code already exists")
				return
			}
		}
	}

	var owner *uint
	if id, ok := r.Context().Value(ctxKey{}).(uint); ok {
		owner = &id
	}
	link := b.createLocked(owner, req.OriginalURL, code, req.ExpiresAt)
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "URL created successfully",
		"data":    link,
	})
}

func (b *Backend) handleList(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(ctxKey{}).(uint)
	q := r.URL.Query()
	page := atoiDefault(q.Get("page"), 1)
	limit := atoiDefault(q.Get("limit"), 10)
	search := strings.ToLower(q.Get("search"))

	b.mu.Lock()
	var matched []api.Link
	for _, l := range b.links {
		if l.UserID == nil || *l.UserID != userID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(l.OriginalURL), search) && !strings.Contains(strings.ToLower(l.ShortCode), search) {
			continue
		}
		if v := q.Get("is_active"); v != "" && strconv.FormatBool(l.IsActive) != v {
			continue
		}
		matched = append(matched, *l)
	}
	b.mu.Unlock()

	sortLinks(matched, q.Get("sort_by"), q.Get("sort_dir"))

	total := len(matched)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	pageLinks := matched[start:end]
	if pageLinks == nil {
		pageLinks = []api.Link{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "URLs retrieved successfully",
		"data":    pageLinks,
		"pagination": api.Pagination{
			Page:       page,
			Limit:      limit,
			Total:      int64(total),
			TotalPages: (total + limit - 1) / limit,
		},
	})
}

func sortLinks(links []api.Link, by, dir string) {
	less := func(i, j int) bool { return links[i].ID < links[j].ID }
	switch by {
	case "created_at":
		less = func(i, j int) bool { return links[i].CreatedAt.Before(links[j].CreatedAt) }
	case "updated_at":
		less = func(i, j int) bool { return links[i].UpdatedAt.Before(links[j].UpdatedAt) }
	case "click_count":
		less = func(i, j int) bool { return links[i].ClickCount < links[j].ClickCount }
	}
	if dir == api.SortDesc {
		sort.SliceStable(links, func(i, j int) bool { return less(j, i) })
		return
	}
	sort.SliceStable(links, less)
}

// ownedLink resolves {id} to a link owned by the caller, or writes 404.
func (b *Backend) ownedLink(w http.ResponseWriter, r *http.Request) *api.Link {
	userID := r.Context().Value(ctxKey{}).(uint)
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err == nil {
		if l, ok := b.links[uint(id)]; ok && l.UserID != nil && *l.UserID == userID {
			return l
		}
	}
	writeError(w, http.StatusNotFound, api.CodeURLNotFound, "URL not found")
	return nil
}

func (b *Backend) handleGet(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if l := b.ownedLink(w, r); l != nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": l})
	}
}

func (b *Backend) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateLinkRequest
	if !decode(w, r, &req) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	l := b.ownedLink(w, r)
	if l == nil {
		return
	}
	if req.OriginalURL != nil {
		l.OriginalURL = *req.OriginalURL
	}
	if req.ExpiresAt != nil {
		l.ExpiresAt = req.ExpiresAt
	}
	if req.IsActive != nil {
		l.IsActive = *req.IsActive
	}
	l.UpdatedAt = b.Clock.Now()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "URL updated successfully", "data": l})
}

func (b *Backend) handleDelete(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	l := b.ownedLink(w, r)
	if l == nil {
		return
	}
	delete(b.links, l.ID)
	delete(b.clicks, l.ID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "URL deleted successfully"})
}

func (b *Backend) handleStats(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	l := b.ownedLink(w, r)
	if l == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    api.LinkStats{Link: *l, RecentClicks: b.clicks[l.ID]},
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, api.CodeValidation, "invalid JSON body")
		return false
	}
	return true
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
		"code":    code,
	})
}
