package message

import (
	"time"

	"github.com/beevik/etree"

	"github.com/dstl/Apex-SAPIENT-Middleware/errors"
	"github.com/dstl/Apex-SAPIENT-Middleware/sapient"
)

// Connection is recorded when a connection is opened.
type Connection struct {
	ID     int64
	Type   string
	Format string
	Peer   string
	Time   time.Time
}

// Disconnection is recorded when a connection closes.
type Disconnection struct {
	ConnectionID int64
	Time         time.Time
	Reason       string
}

// ReceivedData is one framed message as it came off the wire: the raw bytes
// plus the receipt timestamp taken by the reader task before any parsing.
type ReceivedData struct {
	ConnectionID int64
	MessageID    int64
	Timestamp    time.Time
	Data         []byte
}

// ParsedInfo carries the envelope fields extracted from a decoded message,
// plus both decoded representations.
type ParsedInfo struct {
	// ContentKind is the envelope's content field name, e.g. "detection_report".
	ContentKind string
	// NodeID is the sender's external id; empty if the message carried none.
	NodeID string
	// LegacyID is the sender's legacy integer id, or zero when unknown.
	LegacyID int32
	// DestinationID is the target node's external id, if addressed.
	DestinationID string
	// Timestamp is the message's embedded timestamp.
	Timestamp time.Time
	// DetectionConfidence is set for detection reports that carry one.
	DetectionConfidence float64
	// Envelope is the decoded message in the record's protocol version.
	Envelope *sapient.Message
	// XML is the legacy-dialect rendering, when conversion produced one.
	XML *etree.Element
}

// Registration summarizes a registration message for the shared registry.
type Registration struct {
	NodeName string
}

// StatusReport summarizes a status report for the new/unchanged bookkeeping.
type StatusReport struct {
	System      string
	IsUnchanged bool
}

// Record is the unit of work flowing through the pipeline. Both raw
// representations are kept on the record so they reach the audit store even
// when a later stage fails.
type Record struct {
	Received ReceivedData

	// DecodedXML is the legacy-dialect text, whether it arrived on the wire
	// or was derived by conversion. Empty if neither happened.
	DecodedXML string
	// Binary is the binary-encoded payload, received or re-serialized.
	Binary []byte
	// JSON mirrors the decoded message for storage and the query API.
	JSON string

	DecodedAt time.Time
	SavedAt   time.Time
	// AdjustedData holds the re-encoded bytes after clock-offset adjustment.
	AdjustedData []byte

	ForwardedCount int
	Version        sapient.Version

	Parsed       *ParsedInfo
	Registration *Registration
	StatusReport *StatusReport
	Error        *errors.Record
}

// TypeString names the message's content kind for logs and storage, or "--"
// when the message never parsed far enough to have one.
func (r *Record) TypeString() string {
	if r.Parsed == nil || r.Parsed.ContentKind == "" {
		return "--"
	}
	return r.Parsed.ContentKind
}

// AddError merges an error into the record, keeping the stricter severity.
func (r *Record) AddError(rec *errors.Record) {
	r.Error = errors.Merge(r.Error, rec)
}

// Severity returns the record's error severity; ok is false when the record
// carries no error.
func (r *Record) Severity() (errors.Severity, bool) {
	if r.Error == nil {
		return errors.SeverityUnstored, false
	}
	return r.Error.Severity, true
}
