// Package storage is the sqlite audit database: every message a connection
// delivers, clean or errored, lands here with its raw bytes, decoded forms
// and envelope metadata, alongside the connection lifecycle rows.
//
// The database is a chain of segment files. A background Writer serializes
// all writes, batching message inserts, and rotates to a fresh segment on a
// configured interval. Rotation copies the still-open connections and their
// recent registration, status and detection messages forward, so each
// segment answers replay and API queries without its predecessors; the old
// segment records its successor's filename.
//
// Query helpers back the read-only HTTP API: registered nodes, the latest
// registration or status report per node, and filtered detection reports
// decoded from the per-message JSON mirror.
package storage
