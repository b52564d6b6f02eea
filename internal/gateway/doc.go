// Package gateway provides the authenticated HTTP transport used for every
// protected backend call.
//
// Gateway is an http.RoundTripper. Before a request goes out it attaches the
// session's bearer token, refreshing first if the token has already expired.
// If the backend still answers 401, the gateway refreshes once and replays
// the request once. When a refresh fails the session is cleared, the
// ReauthFunc is called, and the caller gets an error wrapping
// ErrReauthRequired.
//
// Requests to authentication endpoints (any path containing "/auth/") pass
// through untouched, so the refresh call itself is never intercepted.
//
// Each request moves through at most three states:
//
//	Unattempted --401--> Refreshing --ok--> Retried
//	     |                   |
//	     +--expired----------+--fail--> re-authenticate
//
// A refresh made because the token had expired counts as the request's one
// refresh: a 401 on the send that follows passes through to the caller. So
// no request causes more than one refresh or more than one retry.
package gateway
