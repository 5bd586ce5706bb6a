// Package gateway implements the per-connection state machines and the
// routing fabric between them.
//
// Each accepted connection gets a Handler for its configured role:
//
//   - Child: an edge sensor. Must register first; everything it sends is
//     forwarded to Peers and to the Parent writer sets.
//   - Peer: a fusion or mission system. Receives every Child message, can
//     address messages to a specific Child, and gets a replay of current
//     Child state when it connects.
//   - Parent: a downstream consumer, either high-level-only or forward-all.
//     Anything a Parent sends is forwarded to Peers and other Parents.
//   - Recorder: a pure audit sink.
//
// Handlers share one SharedData instance per gateway: the registered-sensor
// registry and the Peer and Parent writer sets. Handlers run on their
// connection's goroutine, so SharedData guards its state with a mutex and
// all compound updates go through its methods.
package gateway
