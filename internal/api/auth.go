package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Authentication endpoint paths, relative to the API base URL.
const (
	PathLogin    = "/auth/login"
	PathRegister = "/auth/register"
	PathRefresh  = "/auth/refresh"
)

// AuthClient calls the backend's token-issuing endpoints.
type AuthClient struct {
	ep endpoint
}

// NewAuthClient returns a client for baseURL. A nil hc uses http.DefaultClient.
func NewAuthClient(baseURL string, hc *http.Client) *AuthClient {
	return &AuthClient{ep: newEndpoint(baseURL, hc)}
}

// Login exchanges credentials for a token pair and profile.
func (c *AuthClient) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	return c.post(ctx, PathLogin, req)
}

// Register creates an account and returns its token pair and profile.
func (c *AuthClient) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	return c.post(ctx, PathRegister, req)
}

// Refresh exchanges a refresh token for a new token pair.
func (c *AuthClient) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	return c.post(ctx, PathRefresh, refreshRequest{RefreshToken: refreshToken})
}

func (c *AuthClient) post(ctx context.Context, path string, in any) (*AuthResponse, error) {
	body, err := c.ep.call(ctx, http.MethodPost, path, nil, in)
	if err != nil {
		return nil, err
	}
	var out AuthResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", path, err)
	}
	if out.Token == "" {
		return nil, fmt.Errorf("decode %s response: missing token", path)
	}
	return &out, nil
}
