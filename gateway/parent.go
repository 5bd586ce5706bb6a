package gateway

import (
	"log/slog"

	"github.com/dstl/Apex-SAPIENT-Middleware/message"
)

// Parent handles a downstream consumer connection: forward-all Parents see
// everything, high-level Parents only destination-less traffic. A Parent may
// also inject messages; they fan out to Peers and to other Parents, which is
// the supported path for synthetic traffic.
type Parent struct {
	shared     *SharedData
	writer     *ConnectionWriter
	logger     *slog.Logger
	forwardAll bool
}

func newParent(shared *SharedData, w *ConnectionWriter, logger *slog.Logger, forwardAll bool) *Parent {
	p := &Parent{shared: shared, writer: w, logger: logger, forwardAll: forwardAll}
	shared.AddParent(w, forwardAll)
	if forwardAll {
		shared.ReplaySensorState(w)
	}
	return p
}

// HandleMessage forwards an injected message to Peers and other Parents.
func (p *Parent) HandleMessage(rec *message.Record) {
	func() {
		defer recoverToFatal(rec)
		rec.AdjustedData = rec.Received.Data
		if rec.Error != nil {
			return
		}
		p.shared.SendToPeers(rec)
		p.shared.SendToParents(rec, false, p.writer)
	}()
	p.shared.sendErrorReply(p.writer, "Parent", rec, "")
}

// HandleClosed removes the Parent from its writer set.
func (p *Parent) HandleClosed() {
	p.shared.RemoveParent(p.writer, p.forwardAll)
}
