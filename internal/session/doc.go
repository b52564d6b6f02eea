// Package session holds the client's credentials and profile.
//
// A Manager owns the single Session record for the process. Readers take
// immutable snapshots; every mutation swaps the whole record at once, so a
// reader never sees a new access token paired with a stale expiry. Each
// mutation is written through to a Persister, and Load restores the record
// at startup.
//
// Whether the client is logged in is never stored: IsAuthenticated derives
// it from the access token on every call.
package session
