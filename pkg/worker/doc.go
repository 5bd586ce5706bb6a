// Package worker provides a bounded capacity limiter for CPU-bound work.
//
// # Overview
//
// Apex's network side is cooperative and I/O-bound: many connections, each
// cheap. Decoding, validating and converting a message is not cheap, and
// letting every connection do it inline would let a burst of traffic starve
// the rest of the process. The Limiter bounds how much of that work runs at
// once, process-wide:
//
//	limiter := worker.NewLimiter(1)
//
//	record, err := worker.Run(ctx, limiter, func() *message.Record {
//	    return parser.Binary(received)
//	})
//
// The default capacity of 1 serializes all parse work. The workload across
// connections is dominated by waiting on sockets, so a single parsing slot
// keeps worst-case CPU contention flat without measurably delaying any
// individual connection. Raise the capacity only when profiling shows the
// slot itself is the bottleneck.
//
// # Semantics
//
//   - Do blocks until a slot is free or the context is cancelled. Once fn
//     starts it always runs to completion; cancellation only interrupts the
//     wait, never the work.
//   - Run is the generic convenience wrapper returning fn's result.
//   - Slot acquisition follows Go channel semantics; fairness across
//     connections is good enough in practice because hold times are short.
//
// # Observability
//
// Statistics are always available via Stats(). Prometheus metrics are
// optional and registered through the process registry:
//
//	limiter := worker.NewLimiter(1,
//	    worker.WithMetricsRegistry(registry, "parse_limiter"))
//
// This exposes <prefix>_waiting, <prefix>_acquired_total and
// <prefix>_hold_duration_seconds.
package worker
