package storage

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dstl/Apex-SAPIENT-Middleware/errors"
	"github.com/dstl/Apex-SAPIENT-Middleware/message"
	"github.com/dstl/Apex-SAPIENT-Middleware/pkg/timeutil"
	"github.com/dstl/Apex-SAPIENT-Middleware/sapient"
)

// schemaVariant identifies this schema lineage in the Version table.
const (
	schemaVariant = "Apex"
	schemaVersion = 1
)

// Store is one sqlite segment file of the audit database. A Store is safe
// for concurrent use; writes funnel through transactions and sqlite's own
// locking covers readers.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or reopens a segment file, applying pragmas and schema. The
// parent directory is created if missing. conversionEnabled is recorded in
// the Version row so a reader knows how to interpret the xml column.
func Open(path string, conversionEnabled bool) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "storage", "Open", "create data directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "storage", "Open", "open database")
	}
	if _, err := db.Exec(pragmaDDL); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "storage", "Open", "apply pragmas")
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "storage", "Open", "apply schema")
	}

	conv := 0
	if conversionEnabled {
		conv = 1
	}
	_, err = db.Exec(`INSERT INTO Version (variant, version, conversion_enabled)
		SELECT ?, ?, ?
		WHERE NOT EXISTS (SELECT 1 FROM Version)`, schemaVariant, schemaVersion, conv)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "storage", "Open", "record schema version")
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the segment's file path.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertConnection records a newly opened connection.
func (s *Store) InsertConnection(c message.Connection) error {
	_, err := s.db.Exec(`INSERT INTO Connection (id, client_type, peer, connect_time)
		VALUES (?, ?, ?, ?)`,
		c.ID, c.Type, c.Peer, timeutil.ToMicros(c.Time))
	return errors.Wrap(err, "storage", "InsertConnection", "insert")
}

// UpdateDisconnection stamps a connection's close time and reason.
func (s *Store) UpdateDisconnection(d message.Disconnection) error {
	_, err := s.db.Exec(`UPDATE Connection SET disconnect_time = ?, disconnect_reason = ?
		WHERE id = ?`,
		timeutil.ToMicros(d.Time), d.Reason, d.ConnectionID)
	return errors.Wrap(err, "storage", "UpdateDisconnection", "update")
}

// InsertMessages writes one batch of records in a single transaction,
// stamping every record's SavedAt with the batch time, then advances the
// owning connections' recent-message pointers. Records carrying an error do
// not move the pointers; a replayed registration or status report must be a
// message the peer actually accepted.
func (s *Store) InsertMessages(recs []*message.Record) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "storage", "InsertMessages", "begin")
	}
	defer tx.Rollback()

	savedAt := time.Now().UTC()
	for _, rec := range recs {
		rec.SavedAt = savedAt
		if err := insertMessage(tx, rec); err != nil {
			return err
		}
		if rec.Error != nil {
			continue
		}
		if err := updateRecentPointers(tx, rec); err != nil {
			return err
		}
	}
	return errors.Wrap(tx.Commit(), "storage", "InsertMessages", "commit")
}

func insertMessage(tx *sql.Tx, rec *message.Record) error {
	var (
		decodedAt    any
		version      any
		xml          any
		proto        any
		jsonDoc      any
		parsedType   any
		parsedNode   any
		parsedTime   any
		regNodeType  any
		statusSystem any
		statusUnch   any
		errSeverity  any
		errDesc      any
	)
	if !rec.DecodedAt.IsZero() {
		decodedAt = timeutil.ToMicros(rec.DecodedAt)
	}
	if rec.Version != sapient.VersionUnknown {
		version = rec.Version.String()
	}
	if rec.DecodedXML != "" {
		xml = rec.DecodedXML
	}
	if len(rec.Binary) > 0 {
		proto = rec.Binary
	}
	if rec.JSON != "" {
		jsonDoc = rec.JSON
	}
	if p := rec.Parsed; p != nil {
		if p.ContentKind != "" {
			parsedType = p.ContentKind
		}
		if p.NodeID != "" {
			parsedNode = p.NodeID
		}
		if !p.Timestamp.IsZero() {
			parsedTime = timeutil.ToMicros(p.Timestamp)
		}
	}
	if rec.Registration != nil {
		regNodeType = rec.Registration.NodeName
	}
	if sr := rec.StatusReport; sr != nil {
		statusSystem = sr.System
		if sr.IsUnchanged {
			statusUnch = 1
		} else {
			statusUnch = 0
		}
	}
	if rec.Error != nil {
		errSeverity = rec.Error.Severity.String()
		errDesc = rec.Error.Description
	}

	_, err := tx.Exec(`INSERT INTO Message (
			id, connection_id, timestamp_received, timestamp_decoded,
			timestamp_saved, sapient_version, xml, proto, json,
			forwarded_count, parsed_type, parsed_node_id, parsed_timestamp,
			registration_node_type, status_report_system,
			status_report_is_unchanged, error_severity, error_description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Received.MessageID, rec.Received.ConnectionID,
		timeutil.ToMicros(rec.Received.Timestamp), decodedAt,
		timeutil.ToMicros(rec.SavedAt), version, xml, proto, jsonDoc,
		rec.ForwardedCount, parsedType, parsedNode, parsedTime,
		regNodeType, statusSystem, statusUnch, errSeverity, errDesc)
	return errors.Wrap(err, "storage", "InsertMessages", "insert message")
}

// updateRecentPointers keeps the Connection row pointing at the rows needed
// to replay sensor state: the accepted registration, the newest full status
// report, the newest unchanged report after it, and the latest detection. A
// fresh registration invalidates everything cached before it.
func updateRecentPointers(tx *sql.Tx, rec *message.Record) error {
	var stmt string
	switch {
	case rec.Registration != nil:
		stmt = `UPDATE Connection SET
			recent_msg_id_registration = ?,
			recent_msg_id_status_new = NULL,
			recent_msg_id_status_unchanged = NULL,
			recent_msg_id_detection = NULL
			WHERE id = ?`
	case rec.StatusReport != nil && !rec.StatusReport.IsUnchanged:
		stmt = `UPDATE Connection SET
			recent_msg_id_status_new = ?,
			recent_msg_id_status_unchanged = NULL
			WHERE id = ?`
	case rec.StatusReport != nil:
		stmt = `UPDATE Connection SET recent_msg_id_status_unchanged = ? WHERE id = ?`
	case rec.Parsed != nil && rec.Parsed.ContentKind == "detection_report":
		stmt = `UPDATE Connection SET recent_msg_id_detection = ? WHERE id = ?`
	default:
		return nil
	}
	_, err := tx.Exec(stmt, rec.Received.MessageID, rec.Received.ConnectionID)
	return errors.Wrap(err, "storage", "InsertMessages", "update recent pointers")
}
