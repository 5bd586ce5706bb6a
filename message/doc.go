// Package message defines the records that flow through the Apex pipeline.
//
// Connection and Disconnection are small self-contained records emitted when
// a connection opens or closes. Record is the unit of work for every message
// received (almost everything Apex sends is a received message forwarded on);
// the remaining types are its component parts. A Record is created at
// ingestion, filled in by the parse and validation stages, annotated by the
// connection handler, and finally handed to storage, after which it is never
// mutated again.
package message
