// Package server owns the network edge: accept loops, outbound dials with
// persistent retry, wire framing, and one task group per connection.
//
// Each connection runs three tasks:
//
//   - a reader that frames messages off the wire as fast as possible and
//     pushes them, stamped with the receipt time and a process-wide message
//     id, onto an unbounded queue;
//   - a processor that pulls from the queue in order, parses under the
//     shared worker limiter, runs the connection's gateway handler, and
//     hands stored records to the OnMessage callback;
//   - a buffered writer that drains outbound bytes so a slow downstream
//     reader cannot stall the routing fabric. The buffer has a hard ceiling;
//     hitting it tears the connection down.
//
// Teardown always runs the handler's HandleClosed and the OnDisconnect
// callback, whatever ended the connection. A fatal message error closes the
// connection only after the message has been offered to storage.
package server
