package gateway

import (
	"log/slog"
	"time"

	"github.com/dstl/Apex-SAPIENT-Middleware/errors"
	"github.com/dstl/Apex-SAPIENT-Middleware/message"
)

// messageDelay is folded into the derived clock offset to account for wire
// and processing latency between a sensor's send and our receipt.
const messageDelay = 100 * time.Millisecond

// Child handles a sensor connection. The first non-errored message must be a
// registration; afterwards everything is forwarded to Peers and Parents.
type Child struct {
	shared *SharedData
	writer *ConnectionWriter
	logger *slog.Logger

	registration *message.Record
	nodeID       string

	// timeOffset is added to every embedded timestamp before forwarding.
	timeOffset time.Duration

	lastStatusSystem string
	haveStatus       bool
}

func newChild(shared *SharedData, w *ConnectionWriter, logger *slog.Logger) *Child {
	return &Child{shared: shared, writer: w, logger: logger}
}

// HandleMessage runs the Child state machine for one record.
func (c *Child) HandleMessage(rec *message.Record) {
	func() {
		defer recoverToFatal(rec)
		if c.registration == nil {
			c.handleRegistration(rec)
		} else {
			c.handleOther(rec)
		}
		c.shared.SendToParents(rec, false, nil)
	}()
	c.shared.sendErrorReply(c.writer, c.describe(), rec, c.nodeID)
}

func (c *Child) handleRegistration(rec *message.Record) {
	if rec.Error != nil {
		return
	}
	if rec.Registration == nil {
		rec.AddError(errors.Silent("Registration message expected"))
		return
	}
	if rec.Parsed == nil || rec.Parsed.NodeID == "" {
		rec.AddError(errors.Fatal("Child sent registration message with no ID"))
		return
	}

	// Clock offset: how far the sensor's clock trails our receipt time.
	rawOffset := rec.Received.Timestamp.Sub(rec.Parsed.Timestamp)
	c.timeOffset = rawOffset - messageDelay
	c.shared.applyTimestampOffset(rec, c.timeOffset, c.writer.Encoding())

	c.nodeID = rec.Parsed.NodeID
	c.registration = rec
	// Negated so Peer-to-Child traffic shifts back into the sensor's time.
	c.shared.RegisterSensor(c.nodeID, &SensorInfo{
		Writer:       c.writer,
		Registration: rec,
		PeerOffset:   -rawOffset,
	})

	c.shared.SendToPeers(rec)

	if c.shared.opts.SendRegistrationAck {
		c.shared.SendRegistrationAck(c.writer, c.nodeID)
	}
}

func (c *Child) handleOther(rec *message.Record) {
	if rec.Error != nil {
		return
	}
	if rec.Parsed == nil || rec.Parsed.NodeID != c.nodeID {
		got := ""
		if rec.Parsed != nil {
			got = rec.Parsed.NodeID
		}
		rec.AddError(errors.Noisy("Expected node ID %s, got node ID %s", c.nodeID, got))
		return
	}
	if !c.shared.SensorOwnedBy(c.nodeID, c.writer) {
		// A later connection took over the id. Silent, so the losing sensor
		// is not told about the other one's existence.
		rec.AddError(errors.Silent("Node ID %s hijacked by another connection", c.nodeID))
		return
	}

	c.shared.applyTimestampOffset(rec, c.timeOffset, c.writer.Encoding())

	if rec.Registration != nil {
		// Re-registration with the same node id is allowed. It resets the
		// status cache so stale reports are not replayed.
		c.logger.Info("duplicate registration",
			"node", c.nodeID,
			"previous", c.registration.Registration.NodeName,
			"current", rec.Registration.NodeName)
		c.registration = rec
		c.lastStatusSystem = ""
		c.haveStatus = false
		c.shared.ResetSensorRegistration(c.nodeID, rec)

		if c.shared.opts.SendRegistrationAck {
			c.shared.SendRegistrationAck(c.writer, c.nodeID)
		}
	}

	if sr := rec.StatusReport; sr != nil {
		if sr.IsUnchanged {
			if !c.haveStatus {
				rec.AddError(errors.Noisy(`Status report "Unchanged" received before "New"`))
				return
			}
			if c.lastStatusSystem != sr.System {
				rec.AddError(errors.Noisy(
					`Status report "Unchanged" has system %q different from last "New" system %q`,
					sr.System, c.lastStatusSystem))
				return
			}
		} else {
			c.lastStatusSystem = sr.System
			c.haveStatus = true
		}
		c.shared.CacheStatus(c.nodeID, rec, sr.IsUnchanged)
	}

	c.filterDetection(rec)
	if rec.Error != nil {
		return
	}

	c.shared.SendToPeers(rec)
}

// filterDetection downgrades low-confidence detections to an error so they
// are neither forwarded nor, depending on configuration, persisted.
func (c *Child) filterDetection(rec *message.Record) {
	f := c.shared.opts.DetectionFilter
	if !f.Enable || rec.Parsed == nil || rec.Parsed.DetectionConfidence == 0 {
		return
	}
	if rec.Parsed.ContentKind != "detection_report" {
		return
	}
	if rec.Parsed.DetectionConfidence >= f.Threshold {
		return
	}
	severity := errors.Unstored
	if f.StoreInDatabase {
		severity = errors.Silent
	}
	rec.AddError(severity("Detection confidence %v less than filter threshold %v",
		rec.Parsed.DetectionConfidence, f.Threshold))
}

func (c *Child) describe() string {
	if c.registration == nil {
		return "Child: ?"
	}
	return "Child " + c.nodeID + ": " + c.registration.Registration.NodeName
}

// HandleClosed deregisters the Child unless another connection already took
// over its node id.
func (c *Child) HandleClosed() {
	if c.nodeID == "" {
		return
	}
	if c.shared.UnregisterSensor(c.nodeID, c.writer) {
		c.logger.Info("sensor deregistered", "node", c.nodeID)
	}
}
