// Package ratelimit provides the fixed-window reply gate and the adaptive
// throttle policy the router consults before calling a provider.
package ratelimit
