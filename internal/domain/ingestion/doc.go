// Package ingestion contains the domain model for multi-platform review
// ingestion: sellers and their credential lifecycle, fetch jobs and their
// per-item progress, the canonical review schema, and the port interfaces
// (auth client, fetcher, normalizer) that platform adapters implement.
//
// Following the Ports & Adapters pattern, this package defines only
// interfaces and value objects; concrete platform integrations live in
// the infrastructure layer.
package ingestion
