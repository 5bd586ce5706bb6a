package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dstl/Apex-SAPIENT-Middleware/errors"
	"github.com/dstl/Apex-SAPIENT-Middleware/pkg/timeutil"
)

// DetectionSource selects which detections a query returns. A detection
// carrying associated detections came from a fusion node; one without came
// straight from a sensor.
type DetectionSource string

const (
	DetectionSourceAll   DetectionSource = "all"
	DetectionSourceEdge  DetectionSource = "edge"
	DetectionSourceFused DetectionSource = "fused"
)

// ParseDetectionSource parses a query-string source value.
func ParseDetectionSource(s string) (DetectionSource, error) {
	switch DetectionSource(strings.ToLower(s)) {
	case DetectionSourceAll, DetectionSourceEdge, DetectionSourceFused:
		return DetectionSource(strings.ToLower(s)), nil
	}
	return "", fmt.Errorf("unknown detection source %q", s)
}

// NodeMessage is one stored message's query view: the sender, the embedded
// timestamp, and the content section of the JSON mirror.
type NodeMessage struct {
	NodeID    string
	Timestamp time.Time
	Message   map[string]any
}

// DetectionQuery filters stored detection reports.
type DetectionQuery struct {
	// NodeIDs limits results to these senders. Empty, or any entry "all",
	// means every registered node.
	NodeIDs []string
	Source  DetectionSource
	// MinConfidence excludes detections at or below it. Detections that
	// carry no confidence are always excluded.
	MinConfidence float64
	// Classification keeps detections whose classification type contains it
	// as a substring. Empty matches everything.
	Classification string
	// From and To bound the embedded timestamp; both must be set to apply.
	// Interval, when positive, overrides them with (now-Interval, now).
	From     time.Time
	To       time.Time
	Interval time.Duration
	// Limit caps results per node. Zero or negative means 10.
	Limit int
}

// RegisteredNodeIDs returns the senders of every cleanly stored
// registration, sorted.
func (s *Store) RegisteredNodeIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT parsed_node_id FROM Message
		WHERE parsed_type = 'registration'
			AND parsed_node_id IS NOT NULL
			AND error_severity IS NULL
		ORDER BY parsed_node_id`)
	if err != nil {
		return nil, errors.Wrap(err, "storage", "RegisteredNodeIDs", "select")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "storage", "RegisteredNodeIDs", "scan")
		}
		ids = append(ids, id)
	}
	return ids, errors.Wrap(rows.Err(), "storage", "RegisteredNodeIDs", "iterate")
}

// LatestRegistration returns a node's most recent cleanly stored
// registration. ok is false when the node never registered.
func (s *Store) LatestRegistration(nodeID string) (NodeMessage, bool, error) {
	return s.latestOfType(nodeID, "registration")
}

// LatestStatusReport returns a node's most recent cleanly stored status
// report. ok is false when none exists.
func (s *Store) LatestStatusReport(nodeID string) (NodeMessage, bool, error) {
	return s.latestOfType(nodeID, "status_report")
}

func (s *Store) latestOfType(nodeID, kind string) (NodeMessage, bool, error) {
	var doc string
	err := s.db.QueryRow(`SELECT json FROM Message
		WHERE parsed_type = ? AND parsed_node_id = ?
			AND error_severity IS NULL AND json IS NOT NULL
		ORDER BY id DESC LIMIT 1`, kind, nodeID).Scan(&doc)
	if err == sql.ErrNoRows {
		return NodeMessage{}, false, nil
	}
	if err != nil {
		return NodeMessage{}, false, errors.Wrap(err, "storage", "latestOfType", "select")
	}
	msg, err := decodeNodeMessage(doc)
	if err != nil {
		return NodeMessage{}, false, err
	}
	return msg, true, nil
}

// Detections returns stored detection reports matching the query, newest
// first per node.
func (s *Store) Detections(q DetectionQuery) ([]NodeMessage, error) {
	nodeIDs, err := s.resolveNodeIDs(q.NodeIDs)
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	stmt := `SELECT json FROM Message
		WHERE parsed_type = 'detection_report' AND parsed_node_id = ?
			AND error_severity IS NULL AND json IS NOT NULL`
	var window []any
	if q.Interval > 0 {
		now := time.Now().UTC()
		stmt += ` AND parsed_timestamp BETWEEN ? AND ?`
		window = append(window, timeutil.ToMicros(now.Add(-q.Interval)), timeutil.ToMicros(now))
	} else if !q.From.IsZero() && !q.To.IsZero() {
		stmt += ` AND parsed_timestamp BETWEEN ? AND ?`
		window = append(window, timeutil.ToMicros(q.From), timeutil.ToMicros(q.To))
	}
	stmt += ` ORDER BY id DESC LIMIT ?`

	var out []NodeMessage
	for _, nodeID := range nodeIDs {
		args := append([]any{nodeID}, window...)
		args = append(args, limit)
		rows, err := s.db.Query(stmt, args...)
		if err != nil {
			return nil, errors.Wrap(err, "storage", "Detections", "select")
		}
		for rows.Next() {
			var doc string
			if err := rows.Scan(&doc); err != nil {
				rows.Close()
				return nil, errors.Wrap(err, "storage", "Detections", "scan")
			}
			msg, err := decodeNodeMessage(doc)
			if err != nil {
				rows.Close()
				return nil, err
			}
			if matchesDetection(msg.Message, q) {
				out = append(out, msg)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "storage", "Detections", "iterate")
		}
		rows.Close()
	}
	return out, nil
}

// resolveNodeIDs expands the "all" wildcard into the registered set.
func (s *Store) resolveNodeIDs(ids []string) ([]string, error) {
	if len(ids) == 0 {
		return s.RegisteredNodeIDs()
	}
	for _, id := range ids {
		if id == "all" {
			return s.RegisteredNodeIDs()
		}
	}
	return ids, nil
}

func matchesDetection(content map[string]any, q DetectionQuery) bool {
	confidence := -1.0
	if v, ok := content["detection_confidence"].(float64); ok {
		confidence = v
	}
	if confidence <= q.MinConfidence {
		return false
	}

	if q.Classification != "" && !hasClassification(content, q.Classification) {
		return false
	}

	associated, _ := content["associated_detection"].([]any)
	switch q.Source {
	case DetectionSourceFused:
		return len(associated) > 0
	case DetectionSourceEdge:
		return len(associated) == 0
	}
	return true
}

func hasClassification(content map[string]any, substr string) bool {
	classifications, _ := content["classification"].([]any)
	for _, c := range classifications {
		entry, ok := c.(map[string]any)
		if !ok {
			continue
		}
		if typ, ok := entry["type"].(string); ok && strings.Contains(typ, substr) {
			return true
		}
	}
	return false
}

// jsonMirror matches the document shape written by message.EnvelopeJSON.
type jsonMirror struct {
	NodeID    string         `json:"node_id"`
	Timestamp string         `json:"timestamp"`
	Message   map[string]any `json:"message"`
}

func decodeNodeMessage(doc string) (NodeMessage, error) {
	var mirror jsonMirror
	if err := json.Unmarshal([]byte(doc), &mirror); err != nil {
		return NodeMessage{}, errors.Wrap(err, "storage", "decodeNodeMessage", "unmarshal")
	}
	ts, err := timeutil.Parse(mirror.Timestamp)
	if err != nil {
		ts = time.Time{}
	}
	return NodeMessage{NodeID: mirror.NodeID, Timestamp: ts, Message: mirror.Message}, nil
}
