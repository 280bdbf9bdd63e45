// Package allowlist holds the senders that may receive automated replies.
package allowlist
