// Package providers contains the shared carrier send path used by the
// built-in outbound providers under providers/*.
package providers
