// Package verify issues and checks short-lived email verification codes.
//
// A code is six decimal digits from crypto/rand. Only its keyed digest is
// stored, in Redis (TTL keys) or Postgres (codeplat.verification_codes), with
// an expiry and a wrong-attempt counter. Sends are throttled per email.
// Delivery goes through Mailer; the default NoopMailer delivers nothing.
package verify
