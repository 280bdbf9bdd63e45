// Package inbound dispatches carrier webhooks to per-channel handlers.
//
// Deliveries are claimed by carrier message id before the handler runs so a
// carrier retry of a delivery that already succeeded does not send a second
// automated reply. Transient handler failures release the claim for retry.
package inbound
