package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/linkctl/internal/session"
)

// HeaderRequestID carries the per-request correlation ID. A retry reuses the
// ID of the request it replays.
const HeaderRequestID = "X-Request-ID"

// SessionHandle is the part of the session the gateway needs.
// *session.Manager implements it.
type SessionHandle interface {
	Snapshot() session.Session
	Now() time.Time
	RefreshAccessToken(ctx context.Context) error
	Logout(ctx context.Context) error
}

// ReauthFunc is called once each time a refresh fails and the session is
// cleared. cause is the refresh error.
type ReauthFunc func(ctx context.Context, cause error)

// Gateway is an http.RoundTripper that authenticates outgoing requests.
// It is safe for concurrent use.
type Gateway struct {
	session  SessionHandle
	next     http.RoundTripper
	onReauth ReauthFunc
	logger   *slog.Logger
	metrics  *metrics
	newID    func() string
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithTransport sets the transport requests are sent on.
// Defaults to http.DefaultTransport.
func WithTransport(rt http.RoundTripper) Option {
	return func(g *Gateway) { g.next = rt }
}

// WithReauthFunc sets the callback run when the user must log in again.
func WithReauthFunc(fn ReauthFunc) Option {
	return func(g *Gateway) { g.onReauth = fn }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithRegisterer registers the gateway's counters on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(g *Gateway) { g.metrics = newMetrics(reg) }
}

// WithRequestIDs overrides how request IDs are generated.
func WithRequestIDs(fn func() string) Option {
	return func(g *Gateway) { g.newID = fn }
}

// New creates a Gateway over s.
func New(s SessionHandle, opts ...Option) *Gateway {
	g := &Gateway{
		session: s,
		next:    http.DefaultTransport,
		logger:  slog.Default(),
		newID:   newRequestID,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.metrics == nil {
		g.metrics = newMetrics(nil)
	}
	return g
}

// Client returns an *http.Client that sends through g.
func (g *Gateway) Client(timeout time.Duration) *http.Client {
	return &http.Client{Transport: g, Timeout: timeout}
}

// IsAuthEndpoint reports whether path belongs to the authentication API.
// Those requests are never intercepted.
func IsAuthEndpoint(path string) bool {
	return strings.Contains(path, "/auth/")
}

// RoundTrip implements http.RoundTripper.
func (g *Gateway) RoundTrip(req *http.Request) (*http.Response, error) {
	if IsAuthEndpoint(req.URL.Path) {
		return g.next.RoundTrip(req)
	}

	ctx := req.Context()
	replay, err := replayableBody(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: read request body: %w", err)
	}

	x := &exchange{id: req.Header.Get(HeaderRequestID)}
	if x.id == "" {
		x.id = g.newID()
	}
	log := g.logger.With("request_id", x.id, "method", req.Method, "path", req.URL.Path)

	token, err := g.tokenForSend(ctx, x, log)
	if err != nil {
		closeBody(req)
		return nil, err
	}

	first, err := g.prepare(req, x, token, replay, false)
	if err != nil {
		closeBody(req)
		return nil, err
	}
	resp, err := g.next.RoundTrip(first)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || !x.canRefresh() {
		return resp, nil
	}

	x.advance(StateRefreshing)
	log.Debug("got 401, refreshing token")
	discard(resp)

	token, err = g.refresh(ctx, reasonUnauthorized, log)
	if err != nil {
		return nil, err
	}

	x.advance(StateRetried)
	retry, err := g.prepare(req, x, token, replay, true)
	if err != nil {
		return nil, err
	}
	g.metrics.retries.Inc()
	log.Debug("retrying with refreshed token")
	return g.next.RoundTrip(retry)
}

// tokenForSend returns the token to attach before the first send, refreshing
// it if it has expired. An empty token means send unauthenticated. A refresh
// here uses up x's one refresh, so a later 401 passes through.
func (g *Gateway) tokenForSend(ctx context.Context, x *exchange, log *slog.Logger) (string, error) {
	snap := g.session.Snapshot()
	if !session.IsAuthenticated(snap) {
		return "", nil
	}
	if !snap.Expired(g.session.Now()) {
		return snap.AccessToken, nil
	}
	log.Debug("access token expired, refreshing before send", "expires_at", snap.ExpiresAt)
	x.advance(StateRefreshing)
	return g.refresh(ctx, reasonExpired, log)
}

// refresh renews the session and returns the new access token. If the
// refresh fails, the session is cleared and a *ReauthError returned. A
// cancelled ctx is returned as-is.
func (g *Gateway) refresh(ctx context.Context, reason string, log *slog.Logger) (string, error) {
	err := g.session.RefreshAccessToken(ctx)
	if err == nil {
		g.metrics.refreshes.WithLabelValues(reason, outcomeOK).Inc()
		return g.session.Snapshot().AccessToken, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		g.metrics.refreshes.WithLabelValues(reason, outcomeCanceled).Inc()
		return "", err
	}

	g.metrics.refreshes.WithLabelValues(reason, outcomeFailed).Inc()
	g.metrics.reauths.Inc()
	log.Warn("token refresh failed, re-authentication required", "reason", reason, "error", err)
	// A failed refresh call clears the session itself. Without a refresh
	// token nothing was called, so clear it here.
	if errors.Is(err, session.ErrNoRefreshToken) {
		if lerr := g.session.Logout(ctx); lerr != nil {
			log.Error("failed to clear session", "error", lerr)
		}
	}
	if g.onReauth != nil {
		g.onReauth(ctx, err)
	}
	return "", &ReauthError{Cause: err}
}

// prepare clones req for one send with the given token and a fresh body.
func (g *Gateway) prepare(req *http.Request, x *exchange, token string, replay func() (io.ReadCloser, error), again bool) (*http.Request, error) {
	out := req.Clone(req.Context())
	out.Header.Set(HeaderRequestID, x.id)
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	} else {
		out.Header.Del("Authorization")
	}
	if replay != nil && (again || req.GetBody == nil) {
		body, err := replay()
		if err != nil {
			return nil, fmt.Errorf("gateway: replay request body: %w", err)
		}
		out.Body = body
	}
	return out, nil
}

// replayableBody returns a function yielding a fresh copy of req's body, or
// nil if the request has none. Bodies without GetBody are read into memory.
func replayableBody(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		return req.GetBody, nil
	}
	buf, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, err
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(buf)), nil
	}, nil
}

func closeBody(req *http.Request) {
	if req.Body != nil && req.GetBody != nil {
		req.Body.Close()
	}
}

// discard drains and closes resp so the connection can be reused.
func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

func newRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
