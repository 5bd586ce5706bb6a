package gateway

import (
	"strconv"
	"time"

	"github.com/beevik/etree"

	"github.com/dstl/Apex-SAPIENT-Middleware/errors"
	"github.com/dstl/Apex-SAPIENT-Middleware/message"
	"github.com/dstl/Apex-SAPIENT-Middleware/pkg/timeutil"
	"github.com/dstl/Apex-SAPIENT-Middleware/sapient"
)

// sendErrorReply reports a Noisy record error back to the connection it came
// from. Lesser severities are logged only; replying to everything would let
// two gateways bounce errors at each other forever.
func (s *SharedData) sendErrorReply(w *ConnectionWriter, desc string, rec *message.Record, destinationID string) {
	if rec.Error == nil {
		return
	}
	s.logger.Debug("error in message",
		"connection", rec.Received.ConnectionID,
		"description", desc,
		"severity", rec.Error.Severity.String(),
		"error", rec.Error.Description)
	if rec.Error.Severity != errors.SeverityNoisy {
		return
	}

	if w.Encoding() == EncodingXML {
		elem := etree.NewElement("Error")
		elem.CreateElement("timestamp").SetText(
			strconv.FormatInt(timeutil.ToMicros(time.Now().UTC()), 10))
		elem.CreateElement("packet").SetText(rec.DecodedXML)
		elem.CreateElement("errorMessage").SetText(rec.Error.Description)
		if err := w.WriteXML(elem); err != nil {
			s.logger.Warn("error reply write failed", "error", err)
		}
		return
	}

	env := sapient.New(sapient.EnvelopeV2)
	env.Set("timestamp", time.Now().UTC())
	env.Set("node_id", s.middlewareID)
	if destinationID != "" {
		env.Set("destination_id", destinationID)
	}
	errMsg := env.Mutable("error")
	errMsg.Set("packet", append([]byte(nil), rec.Received.Data...))
	errMsg.Append("error_message", rec.Error.Description)
	if err := w.WriteEnvelope(env, sapient.VersionBSIFlex335V2); err != nil {
		s.logger.Warn("error reply write failed", "error", err)
	}
}

// applyTimestampOffset shifts a record's embedded timestamp by the clock
// offset before forwarding. With time sync disabled the record's bytes pass
// through untouched.
func (s *SharedData) applyTimestampOffset(rec *message.Record, offset time.Duration, encoding Encoding) {
	if !s.opts.EnableTimeSync {
		if encoding == EncodingXML {
			rec.AdjustedData = rec.Received.Data
		} else {
			rec.AdjustedData = rec.Binary
		}
		return
	}
	if rec.Parsed == nil {
		return
	}
	rec.Parsed.Timestamp = rec.Parsed.Timestamp.Add(offset)
	if env := rec.Parsed.Envelope; env != nil {
		env.Set("timestamp", rec.Parsed.Timestamp)
		if data, err := sapient.Marshal(env); err == nil {
			rec.AdjustedData = data
		}
	}
	if elem := rec.Parsed.XML; elem != nil {
		if tsElem := elem.SelectElement("timestamp"); tsElem != nil {
			tsElem.SetText(timeutil.Format(rec.Parsed.Timestamp))
		}
	}
}
