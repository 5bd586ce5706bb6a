// Package api serves the read-only HTTP query interface over the audit
// database: registered nodes, last known locations and fields of view from
// status reports, filtered detection reports, and node definitions from
// registrations. All answers come from the current storage segment; the
// gateway's live state is never consulted.
package api
