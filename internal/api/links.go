package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Link endpoint paths, relative to the API base URL.
const (
	PathLinks       = "/urls"
	PathPublicLinks = "/urls/public"
)

// LinkClient manages short links. Reads are cached for the configured TTL and
// the cache is dropped after every successful create, update or delete, and
// whenever the cache scope reports a different identity.
//
// Cached values are shared; callers must not modify returned slices.
type LinkClient struct {
	ep    endpoint
	cache *queryCache
}

// LinkOption configures a LinkClient.
type LinkOption func(*linkConfig)

type linkConfig struct {
	cacheTTL time.Duration
	now      func() time.Time
	scope    func() string
}

// WithCacheTTL enables read caching for ttl. Zero disables it.
func WithCacheTTL(ttl time.Duration) LinkOption {
	return func(c *linkConfig) { c.cacheTTL = ttl }
}

// WithCacheScope ties cached reads to the identity scope returns, typically
// the logged-in user. A change of identity drops the cache.
func WithCacheScope(scope func() string) LinkOption {
	return func(c *linkConfig) { c.scope = scope }
}

// WithNow overrides the cache's time source.
func WithNow(now func() time.Time) LinkOption {
	return func(c *linkConfig) { c.now = now }
}

// NewLinkClient returns a client for baseURL. hc should carry the
// authenticated gateway as its transport.
func NewLinkClient(baseURL string, hc *http.Client, opts ...LinkOption) *LinkClient {
	cfg := linkConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &LinkClient{
		ep:    newEndpoint(baseURL, hc),
		cache: newQueryCache(cfg.cacheTTL, cfg.now, cfg.scope),
	}
}

// Create shortens a URL on behalf of the logged-in user.
func (c *LinkClient) Create(ctx context.Context, req CreateLinkRequest) (*Link, error) {
	return c.create(ctx, PathLinks, req)
}

// CreatePublic shortens a URL anonymously.
func (c *LinkClient) CreatePublic(ctx context.Context, req CreateLinkRequest) (*Link, error) {
	return c.create(ctx, PathPublicLinks, req)
}

func (c *LinkClient) create(ctx context.Context, path string, req CreateLinkRequest) (*Link, error) {
	body, err := c.ep.call(ctx, http.MethodPost, path, nil, req)
	if err != nil {
		return nil, err
	}
	c.cache.purge()

	var link Link
	if _, err := decodeEnvelope(body, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

// List returns one page of the user's links.
func (c *LinkClient) List(ctx context.Context, params ListParams) (*LinkPage, error) {
	query := params.Values()
	key := "list?" + query.Encode()
	if v, ok := c.cache.get(key); ok {
		return v.(*LinkPage), nil
	}

	body, err := c.ep.call(ctx, http.MethodGet, PathLinks, query, nil)
	if err != nil {
		return nil, err
	}

	page := &LinkPage{}
	env, err := decodeEnvelope(body, &page.Links)
	if err != nil {
		return nil, err
	}
	if env.Pagination != nil {
		page.Pagination = *env.Pagination
	}
	if page.Links == nil {
		page.Links = []Link{}
	}

	c.cache.set(key, page)
	return page, nil
}

// Get returns a single link.
func (c *LinkClient) Get(ctx context.Context, id uint) (*Link, error) {
	key := fmt.Sprintf("get/%d", id)
	if v, ok := c.cache.get(key); ok {
		return v.(*Link), nil
	}

	body, err := c.ep.call(ctx, http.MethodGet, linkPath(id), nil, nil)
	if err != nil {
		return nil, err
	}
	var link Link
	if _, err := decodeEnvelope(body, &link); err != nil {
		return nil, err
	}

	c.cache.set(key, &link)
	return &link, nil
}

// Update changes the non-nil fields of a link.
func (c *LinkClient) Update(ctx context.Context, id uint, req UpdateLinkRequest) (*Link, error) {
	body, err := c.ep.call(ctx, http.MethodPut, linkPath(id), nil, req)
	if err != nil {
		return nil, err
	}
	c.cache.purge()

	var link Link
	if _, err := decodeEnvelope(body, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

// Delete removes a link.
func (c *LinkClient) Delete(ctx context.Context, id uint) error {
	if _, err := c.ep.call(ctx, http.MethodDelete, linkPath(id), nil, nil); err != nil {
		return err
	}
	c.cache.purge()
	return nil
}

// Stats returns a link with its recent clicks.
func (c *LinkClient) Stats(ctx context.Context, id uint) (*LinkStats, error) {
	key := fmt.Sprintf("stats/%d", id)
	if v, ok := c.cache.get(key); ok {
		return v.(*LinkStats), nil
	}

	body, err := c.ep.call(ctx, http.MethodGet, linkPath(id)+"/stats", nil, nil)
	if err != nil {
		return nil, err
	}
	var stats LinkStats
	if _, err := decodeEnvelope(body, &stats); err != nil {
		return nil, err
	}

	c.cache.set(key, &stats)
	return &stats, nil
}

func linkPath(id uint) string {
	return fmt.Sprintf("%s/%d", PathLinks, id)
}

// PublicBaseURL derives the short-link host from the API base URL by
// dropping a trailing /api/v1.
func PublicBaseURL(apiBaseURL string) string {
	base := strings.TrimRight(apiBaseURL, "/")
	return strings.TrimSuffix(base, "/api/v1")
}

// ShortURL joins the public base URL and a short code.
func ShortURL(publicBase, shortCode string) string {
	return strings.TrimRight(publicBase, "/") + "/" + shortCode
}
