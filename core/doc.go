// Package core contains the canonical messaging domain: messages,
// conversations, provider and store contracts, and the Service that
// orchestrates ingest, gating and reply routing. Carrier parsers, providers
// and stores live in sibling packages and depend on core, never the reverse.
package core
