// Package identity canonicalizes phone numbers and email addresses so that
// conversation matching and allowlist checks compare like with like.
package identity
