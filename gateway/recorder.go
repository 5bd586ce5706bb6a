package gateway

import (
	"github.com/dstl/Apex-SAPIENT-Middleware/message"
)

// Recorder handles a pure audit connection: incoming messages are persisted
// and mirrored to the Parent sets but never routed or replied to.
type Recorder struct {
	shared *SharedData
}

func newRecorder(shared *SharedData) *Recorder {
	return &Recorder{shared: shared}
}

// HandleMessage mirrors the record to the Parent sets.
func (r *Recorder) HandleMessage(rec *message.Record) {
	defer recoverToFatal(rec)
	rec.AdjustedData = rec.Received.Data
	r.shared.SendToParents(rec, false, nil)
}

// HandleClosed is a no-op; Recorders hold no shared state.
func (r *Recorder) HandleClosed() {}
