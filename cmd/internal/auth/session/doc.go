// Package session implements codeplat's server-side session core.
//
// A session is an opaque bearer token bound to one user. Tokens carry 256 bits
// of crypto/rand entropy and are stored only as a digest (HMAC-SHA256 when a
// key is configured, SHA-256 otherwise).
//
// Policy enforced by Service:
//   - a session is live while now-created_at < ExpirationWindow (absolute,
//     never extended by activity);
//   - creating a session sweeps the user's expired rows, then evicts the
//     oldest session when the user already holds MaxConcurrentSessions live ones;
//   - validation touches last_activity_at and never fails for bad tokens, it
//     returns a negative ValidationResult instead.
//
// Transport (HTTP) integration lives in cmd/internal/auth/api.
package session
