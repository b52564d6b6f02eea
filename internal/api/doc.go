// Package api is a typed client for the URL-shortening backend's REST API.
//
// AuthClient talks to the /auth/* endpoints and is meant to run on a plain
// http.Client. LinkClient talks to the /urls endpoints and is meant to run on
// an http.Client whose transport is the authenticated gateway, so it never
// handles tokens itself.
//
// Every non-2xx response is returned as *Error carrying the backend's
// machine-readable code (INVALID_CREDENTIALS, SHORT_CODE_ALREADY_EXISTS, ...).
package api
