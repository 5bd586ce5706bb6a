package storage

import (
	"database/sql"
	"path/filepath"
	"strings"
	"time"

	"github.com/dstl/Apex-SAPIENT-Middleware/errors"
	"github.com/dstl/Apex-SAPIENT-Middleware/pkg/timeutil"
)

// SegmentFilename names a new segment after its creation time, in the same
// directory as the current segment. Colons are unusable on some filesystems.
func SegmentFilename(dir string, now time.Time) string {
	ts := strings.ReplaceAll(timeutil.Format(now), ":", "-")
	return filepath.Join(dir, "data-"+ts+".sqlite")
}

// Rollover closes out the current segment into a fresh one. Connections
// still open, together with the messages their recent pointers reference,
// are copied forward so the new segment can stand alone; the old segment
// gets a RolloverFilename row naming its successor, then stays untouched.
// The old store remains open; the caller closes it once queries have moved
// over.
func Rollover(old *Store, now time.Time, conversionEnabled bool) (*Store, error) {
	snap, err := old.exportActiveState()
	if err != nil {
		return nil, err
	}

	path := SegmentFilename(filepath.Dir(old.path), now)
	next, err := Open(path, conversionEnabled)
	if err != nil {
		return nil, err
	}
	if err := next.importState(snap); err != nil {
		next.Close()
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	_, err = old.db.Exec(`INSERT INTO RolloverFilename (relative_filepath, absolute_filepath)
		VALUES (?, ?)`, filepath.Base(path), abs)
	if err != nil {
		next.Close()
		return nil, errors.Wrap(err, "storage", "Rollover", "record successor")
	}
	return next, nil
}

// connectionState is one open connection's carried-forward row.
type connectionState struct {
	id          int64
	clientType  string
	peer        string
	connectTime int64
	recentIDs   [4]sql.NullInt64
}

// messageState is one carried-forward Message row, columns as stored.
type messageState struct {
	id           int64
	connectionID int64
	cols         [16]any
}

type segmentState struct {
	connections []connectionState
	messages    []messageState
}

const messageColumns = `timestamp_received, timestamp_decoded, timestamp_saved,
	sapient_version, xml, proto, json, forwarded_count, parsed_type,
	parsed_node_id, parsed_timestamp, registration_node_type,
	status_report_system, status_report_is_unchanged, error_severity,
	error_description`

func (s *Store) exportActiveState() (*segmentState, error) {
	rows, err := s.db.Query(`SELECT id, client_type, peer, connect_time,
			recent_msg_id_registration, recent_msg_id_status_new,
			recent_msg_id_status_unchanged, recent_msg_id_detection
		FROM Connection WHERE disconnect_time IS NULL`)
	if err != nil {
		return nil, errors.Wrap(err, "storage", "Rollover", "select open connections")
	}
	defer rows.Close()

	state := &segmentState{}
	var msgIDs []int64
	for rows.Next() {
		var c connectionState
		err := rows.Scan(&c.id, &c.clientType, &c.peer, &c.connectTime,
			&c.recentIDs[0], &c.recentIDs[1], &c.recentIDs[2], &c.recentIDs[3])
		if err != nil {
			return nil, errors.Wrap(err, "storage", "Rollover", "scan connection")
		}
		state.connections = append(state.connections, c)
		for _, id := range c.recentIDs {
			if id.Valid {
				msgIDs = append(msgIDs, id.Int64)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "storage", "Rollover", "iterate connections")
	}

	for _, id := range msgIDs {
		var m messageState
		dest := make([]any, 0, 18)
		dest = append(dest, &m.id, &m.connectionID)
		for i := range m.cols {
			dest = append(dest, &m.cols[i])
		}
		err := s.db.QueryRow(`SELECT id, connection_id, `+messageColumns+`
			FROM Message WHERE id = ?`, id).Scan(dest...)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "storage", "Rollover", "select recent message")
		}
		state.messages = append(state.messages, m)
	}
	return state, nil
}

func (s *Store) importState(state *segmentState) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "storage", "Rollover", "begin import")
	}
	defer tx.Rollback()

	for _, c := range state.connections {
		_, err := tx.Exec(`INSERT INTO Connection (id, client_type, peer, connect_time,
				recent_msg_id_registration, recent_msg_id_status_new,
				recent_msg_id_status_unchanged, recent_msg_id_detection)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			c.id, c.clientType, c.peer, c.connectTime,
			c.recentIDs[0], c.recentIDs[1], c.recentIDs[2], c.recentIDs[3])
		if err != nil {
			return errors.Wrap(err, "storage", "Rollover", "import connection")
		}
	}
	for _, m := range state.messages {
		args := make([]any, 0, 18)
		args = append(args, m.id, m.connectionID)
		args = append(args, m.cols[:]...)
		_, err := tx.Exec(`INSERT INTO Message (id, connection_id, `+messageColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
		if err != nil {
			return errors.Wrap(err, "storage", "Rollover", "import message")
		}
	}
	return errors.Wrap(tx.Commit(), "storage", "Rollover", "commit import")
}
