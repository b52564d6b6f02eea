package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/linkctl/internal/api"
	"github.com/roach88/linkctl/internal/testutil"
)

// bearer adds a fixed access token to every request.
type bearer struct {
	token string
}

func (b bearer) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+b.token)
	return http.DefaultTransport.RoundTrip(req)
}

func loggedIn(t *testing.T, b *testutil.Backend, opts ...api.LinkOption) (*api.LinkClient, api.User) {
	t.Helper()
	user := b.AddUser("ada@example.com", "ada", "secret1", "Ada Lovelace")
	tokens := b.IssueTokens(user.Email)
	hc := &http.Client{Transport: bearer{token: tokens.Token}}
	return api.NewLinkClient(b.BaseURL(), hc, opts...), user
}

func ptr[T any](v T) *T { return &v }

func TestAuthClient_Login(t *testing.T) {
	b := testutil.NewBackend(t, nil)
	user := b.AddUser("ada@example.com", "ada", "secret1", "Ada Lovelace")
	c := api.NewAuthClient(b.BaseURL(), nil)

	resp, err := c.Login(context.Background(), api.LoginRequest{Email: "ada@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, b.Clock.Now().Add(b.AccessTTL), resp.ExpiresAt)
	assert.Equal(t, &user, resp.User)
}

func TestAuthClient_LoginErrors(t *testing.T) {
	b := testutil.NewBackend(t, nil)
	b.AddUser("ada@example.com", "ada", "secret1", "")
	b.AddUser("bob@example.com", "bob", "secret1", "")
	b.DeactivateUser("bob@example.com")
	c := api.NewAuthClient(b.BaseURL(), nil)

	tests := []struct {
		name  string
		email string
		pass  string
		code  string
	}{
		{"wrong password", "ada@example.com", "nope", api.CodeInvalidCredentials},
		{"unknown user", "eve@example.com", "secret1", api.CodeInvalidCredentials},
		{"deactivated", "bob@example.com", "secret1", api.CodeUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Login(context.Background(), api.LoginRequest{Email: tt.email, Password: tt.pass})
			require.Error(t, err)
			assert.True(t, api.IsCode(err, tt.code), "got %v", err)
			assert.True(t, api.IsUnauthorized(err))
		})
	}
}

func TestAuthClient_RegisterAndDuplicate(t *testing.T) {
	b := testutil.NewBackend(t, nil)
	c := api.NewAuthClient(b.BaseURL(), nil)
	req := api.RegisterRequest{Email: "ada@example.com", Username: "ada", Password: "secret1", FullName: "Ada"}

	resp, err := c.Register(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "ada", resp.User.Username)

	_, err = c.Register(context.Background(), req)
	require.Error(t, err)
	apiErr, ok := api.AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, api.CodeEmailAlreadyUsed, apiErr.Code)
}

func TestAuthClient_RefreshRotates(t *testing.T) {
	b := testutil.NewBackend(t, nil)
	b.AddUser("ada@example.com", "ada", "secret1", "")
	first := b.IssueTokens("ada@example.com")
	c := api.NewAuthClient(b.BaseURL(), nil)

	resp, err := c.Refresh(context.Background(), first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, resp.RefreshToken)

	_, err = c.Refresh(context.Background(), first.RefreshToken)
	assert.True(t, api.IsCode(err, api.CodeInvalidToken), "a used refresh token is rejected")
}

func TestAuthClient_MissingTokenIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"refresh_token":"r1"}`))
	}))
	defer srv.Close()

	_, err := api.NewAuthClient(srv.URL, nil).Refresh(context.Background(), "r0")
	assert.ErrorContains(t, err, "missing token")
}

func TestDecodeError_NonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := api.NewLinkClient(srv.URL, nil).Get(context.Background(), 1)
	apiErr, ok := api.AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Empty(t, apiErr.Code)
	assert.Equal(t, "api: 502: Bad Gateway", apiErr.Error())
}

func TestLinkClient_CreateAndGet(t *testing.T) {
	b := testutil.NewBackend(t, nil)
	c, user := loggedIn(t, b)
	ctx := context.Background()
	exp := testutil.Epoch.Add(24 * time.Hour)

	link, err := c.Create(ctx, api.CreateLinkRequest{OriginalURL: "https://go.dev", ShortCode: ptr("godev"), ExpiresAt: &exp})
	require.NoError(t, err)
	assert.Equal(t, "godev", link.ShortCode)
	require.NotNil(t, link.UserID)
	assert.Equal(t, user.ID, *link.UserID)
	require.NotNil(t, link.ExpiresAt)
	assert.True(t, exp.Equal(*link.ExpiresAt))

	got, err := c.Get(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, link.ShortCode, got.ShortCode)
}

func TestLinkClient_CreateDuplicateCode(t *testing.T) {
	b := testutil.NewBackend(t, nil)
	c, _ := loggedIn(t, b)
	ctx := context.Background()

	_, err := c.Create(ctx, api.CreateLinkRequest{OriginalURL: "https://go.dev", ShortCode: ptr("go")})
	require.NoError(t, err)
	_, err = c.Create(ctx, api.CreateLinkRequest{OriginalURL: "https://go.dev/doc", ShortCode: ptr("go")})
	assert.True(t, api.IsCode(err, api.CodeShortCodeAlreadyExists))
}

func TestLinkClient_CreatePublicGeneratesCode(t *testing.T) {
	b := testutil.NewBackend(t, nil)
	c := api.NewLinkClient(b.BaseURL(), nil)

	link, err := c.CreatePublic(context.Background(), api.CreateLinkRequest{OriginalURL: "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, "s0001", link.ShortCode)
	assert.Nil(t, link.UserID)
}

func TestLinkClient_ListPaginatesAndFilters(t *testing.T) {
	b := testutil.NewBackend(t, nil)
	c, user := loggedIn(t, b)
	for i, u := range []string{"https://a.example", "https://b.example", "https://c.example"} {
		b.SeedLink(user.ID, u, string(rune('a'+i)))
	}
	b.SeedLink(0, "https://anon.example", "anon")
	ctx := context.Background()

	page, err := c.List(ctx, api.ListParams{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Links, 2)
	assert.Equal(t, api.Pagination{Page: 1, Limit: 2, Total: 3, TotalPages: 2}, page.Pagination)
	assert.True(t, page.Pagination.HasNext())
	assert.False(t, page.Pagination.HasPrev())

	page, err = c.List(ctx, api.ListParams{Search: "b.example"})
	require.NoError(t, err)
	require.Len(t, page.Links, 1)
	assert.Equal(t, "b", page.Links[0].ShortCode)

	page, err = c.List(ctx, api.ListParams{SortBy: "created_at", SortDir: api.SortDesc, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Links, 3)
}

func TestLinkClient_ListEmptyIsNonNil(t *testing.T) {
	b := testutil.NewBackend(t, nil)
	c, _ := loggedIn(t, b)

	page, err := c.List(context.Background(), api.ListParams{})
	require.NoError(t, err)
	assert.NotNil(t, page.Links)
	assert.Empty(t, page.Links)
}

func TestLinkClient_UpdateAndDelete(t *testing.T) {
	b := testutil.NewBackend(t, nil)
	c, user := loggedIn(t, b)
	seeded := b.SeedLink(user.ID, "https://old.example", "old")
	ctx := context.Background()

	link, err := c.Update(ctx, seeded.ID, api.UpdateLinkRequest{OriginalURL: ptr("https://new.example"), IsActive: ptr(false)})
	require.NoError(t, err)
	assert.Equal(t, "https://new.example", link.OriginalURL)
	assert.False(t, link.IsActive)

	require.NoError(t, c.Delete(ctx, seeded.ID))
	_, err = c.Get(ctx, seeded.ID)
	assert.True(t, api.IsCode(err, api.CodeURLNotFound))
}

func TestLinkClient_Stats(t *testing.T) {
	b := testutil.NewBackend(t, nil)
	c, user := loggedIn(t, b)
	link := b.SeedLink(user.ID, "https://go.dev", "go")
	b.RecordClick(link.ID, "10.0.0.1", "curl/8.0")
	b.RecordClick(link.ID, "10.0.0.2", "Mozilla/5.0")

	stats, err := c.Stats(context.Background(), link.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.ClickCount)
	require.Len(t, stats.RecentClicks, 2)
	assert.Equal(t, "curl/8.0", stats.RecentClicks[0].UserAgent)
}

func TestLinkClient_CachesReadsUntilMutation(t *testing.T) {
	b := testutil.NewBackend(t, nil)
	c, user := loggedIn(t, b, api.WithCacheTTL(time.Minute), api.WithNow(b.Clock.Now))
	link := b.SeedLink(user.ID, "https://go.dev", "go")
	ctx := context.Background()

	_, err := c.List(ctx, api.ListParams{})
	require.NoError(t, err)
	_, err = c.List(ctx, api.ListParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, b.Count(http.MethodGet, "/urls"), "second read served from cache")

	_, err = c.Update(ctx, link.ID, api.UpdateLinkRequest{IsActive: ptr(false)})
	require.NoError(t, err)
	page, err := c.List(ctx, api.ListParams{})
	require.NoError(t, err)
	assert.Equal(t, 2, b.Count(http.MethodGet, "/urls"), "mutation drops the cache")
	assert.False(t, page.Links[0].IsActive)

	b.Clock.Advance(time.Minute)
	_, err = c.List(ctx, api.ListParams{})
	require.NoError(t, err)
	assert.Equal(t, 3, b.Count(http.MethodGet, "/urls"), "entry expires after TTL")
}

func TestListParams_Values(t *testing.T) {
	assert.Empty(t, api.ListParams{}.Values().Encode())

	v := api.ListParams{Page: 2, Limit: 5, Search: "go", IsActive: ptr(true), SortBy: "click_count", SortDir: api.SortAsc}.Values()
	assert.Equal(t, "is_active=true&limit=5&page=2&search=go&sort_by=click_count&sort_dir=asc", v.Encode())
}

func TestShortURL(t *testing.T) {
	assert.Equal(t, "http://localhost:8080", api.PublicBaseURL("http://localhost:8080/api/v1/"))
	assert.Equal(t, "https://sho.rt", api.PublicBaseURL("https://sho.rt"))
	assert.Equal(t, "https://sho.rt/abc", api.ShortURL("https://sho.rt/", "abc"))
}
