// Package conversation resolves which conversation an inbound message belongs
// to. Phone channels match on the unordered participant pair; email tries
// thread references, then subject, then participants. In-memory stores are
// provided for tests and single process deployments.
package conversation
