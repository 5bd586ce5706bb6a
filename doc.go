// Package apex is a middleware gateway for the SAPIENT autonomous sensor
// protocol (BSI Flex 335). It sits between edge nodes (sensors and
// effectors), fusion processes and higher-echelon peers, forwarding
// messages between them while recording everything to a SQLite audit
// trail.
//
// # Architecture
//
// One process hosts a set of TCP connection endpoints, a shared routing
// core, a storage writer and two HTTP surfaces:
//
//	┌──────────┐   ┌──────────┐   ┌──────────┐
//	│  Child   │   │  Fusion  │   │  Parent  │   TCP endpoints
//	│ listener │   │ listener │   │  dialer  │   (server package)
//	└────┬─────┘   └────┬─────┘   └────┬─────┘
//	     │              │              │
//	     └──────────────┼──────────────┘
//	                    ↓
//	          ┌──────────────────┐
//	          │   Gateway core   │   per-connection handlers,
//	          │ (gateway package)│   routing and fan-out
//	          └────────┬─────────┘
//	                   │ message.Record callbacks
//	                   ↓
//	          ┌──────────────────┐      ┌───────────────┐
//	          │  Storage writer  │─────→│ SQLite segment│
//	          │(storage package) │      │ chain on disk │
//	          └────────┬─────────┘      └───────────────┘
//	                   │
//	                   ↓
//	          ┌──────────────────┐
//	          │    Query API     │   REST endpoints over the
//	          │  (api package)   │   current segment
//	          └──────────────────┘
//
// Every inbound frame is decoded, validated, optionally converted
// between protocol versions and wire formats, routed to the interested
// peers, and enqueued for storage. Failures downgrade gracefully: a
// message that cannot be parsed is still forwarded verbatim where the
// formats match, and still recorded with its error.
//
// # Protocol handling
//
//   - sapient: protocol versions and message content model
//   - parse: frame decoding and content classification
//   - translate: version up/down conversion and time sync adjustment
//   - xmlcodec: XML encode/decode plus legacy Version 6 translation
//   - validate: configurable per-message validation checks
//   - idmap: node identity registry (ULID to legacy integer IDs)
//
// # Infrastructure
//
//   - server: TCP endpoint lifecycle, framing and send queues
//   - gateway: connection handlers, routing core and shared state
//   - storage: batched audit writer, segment rollover, query helpers
//   - api: REST query surface over the audit store
//   - config: single JSON configuration file
//   - metric: Prometheus metrics and the metrics HTTP server
//   - errors: structured error handling with severity records
//   - pkg/worker, pkg/retry, pkg/timeutil: shared utilities
//
// # Binary
//
// cmd/apex wires the packages together:
//
//	apex --config apex_config.json
//	apex --config apex_config.json --validate
//	apex --version
package apex
