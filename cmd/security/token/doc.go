// Package token provides the opaque session token primitives for codeplat.
//
// It is the single source of truth for how bearer tokens are generated and
// how they are digested before they reach storage.
//
// Design goals:
// - Tokens are >= 256 bits from crypto/rand, base64url encoded without padding.
// - Storage only ever sees a 64-char hex digest of a token.
// - Dev mode: SHA-256(token) when no HMAC key is configured.
// - Enforced mode: HMAC-SHA256(token, key) when policy requires it.
package token
