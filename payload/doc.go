// Package payload turns carrier webhook bodies into canonical messages. Each
// carrier and channel pair has its own Parser; Registry selects one and
// implements core.PayloadNormalizer.
package payload
