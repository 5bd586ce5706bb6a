package gateway

import (
	"log/slog"

	"github.com/dstl/Apex-SAPIENT-Middleware/errors"
	"github.com/dstl/Apex-SAPIENT-Middleware/message"
)

// Peer handles a fusion or mission system connection. It receives every
// Child message and can address tasks to specific Children.
type Peer struct {
	shared *SharedData
	writer *ConnectionWriter
	logger *slog.Logger

	peerID string
}

func newPeer(shared *SharedData, w *ConnectionWriter, logger *slog.Logger) *Peer {
	p := &Peer{shared: shared, writer: w, logger: logger}
	shared.AddPeer(w)
	// A late-joining Peer still needs the current picture.
	shared.ReplaySensorState(w)
	return p
}

// HandleMessage runs the Peer state machine for one record.
func (p *Peer) HandleMessage(rec *message.Record) {
	func() {
		defer recoverToFatal(rec)
		p.handleInner(rec)
	}()
	p.shared.sendErrorReply(p.writer, "Peer", rec, p.peerID)
}

func (p *Peer) handleInner(rec *message.Record) {
	if rec.Error != nil {
		return
	}

	if rec.Registration != nil {
		p.handleRegistration(rec)
		if rec.Error != nil {
			return
		}
	}

	if p.peerID != "" && (rec.Parsed == nil || rec.Parsed.NodeID != p.peerID) {
		got := ""
		if rec.Parsed != nil {
			got = rec.Parsed.NodeID
		}
		rec.AddError(errors.Noisy("Expected node ID %s, got node ID %s", p.peerID, got))
		return
	}

	destination := ""
	if rec.Parsed != nil {
		destination = rec.Parsed.DestinationID
	}
	if destination != "" {
		w, offset, ok := p.shared.SensorRoute(destination)
		if !ok {
			rec.AddError(errors.Noisy("Unknown node ID %s", destination))
			return
		}
		p.shared.applyTimestampOffset(rec, offset, w.Encoding())
		if err := w.WriteRecord(rec); err != nil {
			p.logger.Warn("child write failed", "node", destination, "error", err)
		} else {
			rec.ForwardedCount = 1
		}
	}

	// Destination-less Peer messages are high-level output.
	p.shared.SendToParents(rec, destination == "", nil)
}

func (p *Peer) handleRegistration(rec *message.Record) {
	if !p.shared.opts.AllowPeerRegistration {
		rec.AddError(errors.Noisy("Peer should not send registration"))
		return
	}
	if rec.Parsed == nil || rec.Parsed.NodeID == "" {
		rec.AddError(errors.Fatal("Peer sent registration message with no ID"))
		return
	}
	if p.peerID != "" && rec.Parsed.NodeID != p.peerID {
		rec.AddError(errors.Fatal("Peer sent registration with inconsistent ID (%s -> %s)",
			p.peerID, rec.Parsed.NodeID))
		return
	}
	p.peerID = rec.Parsed.NodeID

	// Peers are acknowledged regardless of the Child ack setting.
	p.shared.SendRegistrationAck(p.writer, p.peerID)
}

// HandleClosed removes the Peer from the fan-out set.
func (p *Peer) HandleClosed() {
	p.shared.RemovePeer(p.writer)
}
