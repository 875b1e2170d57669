// Package identity owns codeplat's user records: creation, lookup and the
// argon2id credential check the login gateway runs before a session is issued.
//
// Sessions reference users but are managed by cmd/internal/auth/session.
// Deleting a user cascades to its sessions at the schema level.
package identity
