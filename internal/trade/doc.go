// Package trade defines the normalized exporter, buyer, and news records consumed by the
// matching engine, along with the recency weighting shared by every record type.
//
// Records are plain values. Enrichment steps (see internal/ingest) return new values with
// derived fields populated and never mutate their input.
package trade
