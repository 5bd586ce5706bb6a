package storage

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dstl/Apex-SAPIENT-Middleware/errors"
	"github.com/dstl/Apex-SAPIENT-Middleware/message"
	"github.com/dstl/Apex-SAPIENT-Middleware/pkg/timeutil"
	"github.com/dstl/Apex-SAPIENT-Middleware/sapient"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data.sqlite"), true)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testConnection(id int64) message.Connection {
	return message.Connection{
		ID:   id,
		Type: "Child",
		Peer: "127.0.0.1:5000",
		Time: time.Now().UTC(),
	}
}

// mirrorJSON builds the stored JSON document the way the parse pipeline
// writes it.
func mirrorJSON(t *testing.T, nodeID, kind string, ts time.Time, content map[string]any) string {
	t.Helper()
	doc, err := json.Marshal(map[string]any{
		"node_id":      nodeID,
		"timestamp":    timeutil.Format(ts),
		"message_type": kind,
		"message":      content,
	})
	require.NoError(t, err)
	return string(doc)
}

type recordSpec struct {
	connID  int64
	msgID   int64
	kind    string
	nodeID  string
	content map[string]any
	err     *errors.Record
}

func makeRecord(t *testing.T, spec recordSpec) *message.Record {
	t.Helper()
	ts := time.Now().UTC()
	rec := &message.Record{
		Received: message.ReceivedData{
			ConnectionID: spec.connID,
			MessageID:    spec.msgID,
			Timestamp:    ts,
			Data:         []byte("raw"),
		},
		DecodedAt: ts,
		Version:   sapient.VersionBSIFlex335V2,
		Parsed: &message.ParsedInfo{
			ContentKind: spec.kind,
			NodeID:      spec.nodeID,
			Timestamp:   ts,
		},
		Error: spec.err,
	}
	switch spec.kind {
	case "registration":
		rec.Registration = &message.Registration{NodeName: "Test Camera"}
	case "status_report":
		unchanged, _ := spec.content["__unchanged"].(bool)
		delete(spec.content, "__unchanged")
		rec.StatusReport = &message.StatusReport{System: "OK", IsUnchanged: unchanged}
	}
	if spec.content == nil {
		spec.content = map[string]any{}
	}
	rec.JSON = mirrorJSON(t, spec.nodeID, spec.kind, ts, spec.content)
	return rec
}

func recentPointers(t *testing.T, s *Store, connID int64) (reg, statusNew, statusUnch, detection *int64) {
	t.Helper()
	row := s.db.QueryRow(`SELECT recent_msg_id_registration, recent_msg_id_status_new,
		recent_msg_id_status_unchanged, recent_msg_id_detection
		FROM Connection WHERE id = ?`, connID)
	require.NoError(t, row.Scan(&reg, &statusNew, &statusUnch, &detection))
	return reg, statusNew, statusUnch, detection
}

func TestOpenRecordsSchemaVersionOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.sqlite")

	s, err := Open(path, true)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path, true)
	require.NoError(t, err)
	defer s.Close()

	var count, conv int
	var variant string
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM Version`).Scan(&count))
	require.NoError(t, s.db.QueryRow(`SELECT variant, conversion_enabled FROM Version`).
		Scan(&variant, &conv))
	assert.Equal(t, 1, count)
	assert.Equal(t, "Apex", variant)
	assert.Equal(t, 1, conv)
}

func TestConnectionLifecycleRow(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.InsertConnection(testConnection(1)))

	closed := time.Now().UTC()
	require.NoError(t, s.UpdateDisconnection(message.Disconnection{
		ConnectionID: 1,
		Time:         closed,
		Reason:       "Connection closed",
	}))

	var reason string
	var disconnectMicros int64
	require.NoError(t, s.db.QueryRow(
		`SELECT disconnect_reason, disconnect_time FROM Connection WHERE id = 1`).
		Scan(&reason, &disconnectMicros))
	assert.Equal(t, "Connection closed", reason)
	assert.Equal(t, timeutil.ToMicros(closed), disconnectMicros)
}

func TestInsertMessagesStampsSavedAt(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.InsertConnection(testConnection(1)))

	rec := makeRecord(t, recordSpec{connID: 1, msgID: 1, kind: "registration", nodeID: "node-a"})
	require.NoError(t, s.InsertMessages([]*message.Record{rec}))

	assert.False(t, rec.SavedAt.IsZero())

	var saved int64
	var version string
	require.NoError(t, s.db.QueryRow(
		`SELECT timestamp_saved, sapient_version FROM Message WHERE id = 1`).
		Scan(&saved, &version))
	assert.Equal(t, timeutil.ToMicros(rec.SavedAt), saved)
	assert.Equal(t, "BSI Flex 335 v2.0", version)
}

func TestRecentPointerProgression(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.InsertConnection(testConnection(1)))

	insert := func(id int64, kind string, content map[string]any) {
		rec := makeRecord(t, recordSpec{connID: 1, msgID: id, kind: kind, nodeID: "node-a", content: content})
		require.NoError(t, s.InsertMessages([]*message.Record{rec}))
	}

	insert(1, "registration", nil)
	insert(2, "status_report", map[string]any{})
	insert(3, "status_report", map[string]any{"__unchanged": true})
	insert(4, "detection_report", map[string]any{"detection_confidence": 0.9})

	reg, statusNew, statusUnch, det := recentPointers(t, s, 1)
	require.NotNil(t, reg)
	require.NotNil(t, statusNew)
	require.NotNil(t, statusUnch)
	require.NotNil(t, det)
	assert.Equal(t, int64(1), *reg)
	assert.Equal(t, int64(2), *statusNew)
	assert.Equal(t, int64(3), *statusUnch)
	assert.Equal(t, int64(4), *det)

	// A new full status report supersedes the unchanged one.
	insert(5, "status_report", map[string]any{})
	_, statusNew, statusUnch, _ = recentPointers(t, s, 1)
	assert.Equal(t, int64(5), *statusNew)
	assert.Nil(t, statusUnch)

	// Re-registration invalidates everything cached before it.
	insert(6, "registration", nil)
	reg, statusNew, statusUnch, det = recentPointers(t, s, 1)
	assert.Equal(t, int64(6), *reg)
	assert.Nil(t, statusNew)
	assert.Nil(t, statusUnch)
	assert.Nil(t, det)
}

func TestErroredMessageDoesNotMovePointers(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.InsertConnection(testConnection(1)))

	rec := makeRecord(t, recordSpec{
		connID: 1, msgID: 1, kind: "registration", nodeID: "node-a",
		err: errors.Noisy("node id mismatch"),
	})
	require.NoError(t, s.InsertMessages([]*message.Record{rec}))

	reg, _, _, _ := recentPointers(t, s, 1)
	assert.Nil(t, reg)

	var severity, description string
	require.NoError(t, s.db.QueryRow(
		`SELECT error_severity, error_description FROM Message WHERE id = 1`).
		Scan(&severity, &description))
	assert.Equal(t, "noisy", severity)
	assert.Equal(t, "node id mismatch", description)
}

func TestRegisteredNodeIDs(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.InsertConnection(testConnection(1)))
	require.NoError(t, s.InsertConnection(testConnection(2)))

	require.NoError(t, s.InsertMessages([]*message.Record{
		makeRecord(t, recordSpec{connID: 1, msgID: 1, kind: "registration", nodeID: "node-b"}),
		makeRecord(t, recordSpec{connID: 2, msgID: 2, kind: "registration", nodeID: "node-a"}),
	}))

	ids, err := s.RegisteredNodeIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"node-a", "node-b"}, ids)
}

func TestLatestStatusReport(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.InsertConnection(testConnection(1)))

	require.NoError(t, s.InsertMessages([]*message.Record{
		makeRecord(t, recordSpec{connID: 1, msgID: 1, kind: "registration", nodeID: "node-a"}),
		makeRecord(t, recordSpec{connID: 1, msgID: 2, kind: "status_report", nodeID: "node-a",
			content: map[string]any{"node_location": map[string]any{"x": 1.0, "y": 2.0}}}),
		makeRecord(t, recordSpec{connID: 1, msgID: 3, kind: "status_report", nodeID: "node-a",
			content: map[string]any{"node_location": map[string]any{"x": 3.0, "y": 4.0}}}),
	}))

	msg, ok, err := s.LatestStatusReport("node-a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "node-a", msg.NodeID)
	loc, ok := msg.Message["node_location"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 3.0, loc["x"])

	_, ok, err = s.LatestStatusReport("node-z")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDetectionsFiltering(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.InsertConnection(testConnection(1)))

	detection := func(id int64, content map[string]any) *message.Record {
		return makeRecord(t, recordSpec{
			connID: 1, msgID: id, kind: "detection_report", nodeID: "node-a", content: content,
		})
	}
	require.NoError(t, s.InsertMessages([]*message.Record{
		makeRecord(t, recordSpec{connID: 1, msgID: 1, kind: "registration", nodeID: "node-a"}),
		detection(2, map[string]any{"detection_confidence": 0.9,
			"classification": []any{map[string]any{"type": "Human"}}}),
		detection(3, map[string]any{"detection_confidence": 0.3,
			"classification": []any{map[string]any{"type": "Vehicle Land"}}}),
		detection(4, map[string]any{"detection_confidence": 0.8,
			"associated_detection": []any{map[string]any{"node_id": "node-x"}}}),
		detection(5, map[string]any{}),
	}))

	all, err := s.Detections(DetectionQuery{NodeIDs: []string{"all"}, Source: DetectionSourceAll})
	require.NoError(t, err)
	// The detection with no confidence field is always excluded.
	assert.Len(t, all, 3)

	confident, err := s.Detections(DetectionQuery{Source: DetectionSourceAll, MinConfidence: 0.5})
	require.NoError(t, err)
	assert.Len(t, confident, 2)

	humans, err := s.Detections(DetectionQuery{Source: DetectionSourceAll, Classification: "Human"})
	require.NoError(t, err)
	require.Len(t, humans, 1)

	fused, err := s.Detections(DetectionQuery{Source: DetectionSourceFused})
	require.NoError(t, err)
	require.Len(t, fused, 1)

	edge, err := s.Detections(DetectionQuery{Source: DetectionSourceEdge})
	require.NoError(t, err)
	assert.Len(t, edge, 2)

	// The per-node cap applies to the newest rows before content filtering,
	// so the confidence-less newest detection consumes a slot.
	capped, err := s.Detections(DetectionQuery{Source: DetectionSourceAll, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, capped, 1)

	none, err := s.Detections(DetectionQuery{NodeIDs: []string{"node-z"}, Source: DetectionSourceAll})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestParseDetectionSource(t *testing.T) {
	src, err := ParseDetectionSource("Fused")
	require.NoError(t, err)
	assert.Equal(t, DetectionSourceFused, src)

	_, err = ParseDetectionSource("bogus")
	assert.Error(t, err)
}

func TestSegmentFilenameHasNoColons(t *testing.T) {
	name := SegmentFilename("data", time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC))
	assert.NotContains(t, filepath.Base(name), ":")
	assert.Equal(t, "data", filepath.Dir(name))
}

func TestRolloverCarriesOpenConnectionState(t *testing.T) {
	dir := t.TempDir()
	old, err := Open(filepath.Join(dir, "data.sqlite"), true)
	require.NoError(t, err)
	defer old.Close()

	require.NoError(t, old.InsertConnection(testConnection(1)))
	require.NoError(t, old.InsertConnection(testConnection(2)))
	require.NoError(t, old.InsertMessages([]*message.Record{
		makeRecord(t, recordSpec{connID: 1, msgID: 1, kind: "registration", nodeID: "node-a"}),
		makeRecord(t, recordSpec{connID: 1, msgID: 2, kind: "status_report", nodeID: "node-a",
			content: map[string]any{"node_location": map[string]any{"x": 7.0}}}),
		makeRecord(t, recordSpec{connID: 2, msgID: 3, kind: "registration", nodeID: "node-b"}),
	}))
	require.NoError(t, old.UpdateDisconnection(message.Disconnection{
		ConnectionID: 2, Time: time.Now().UTC(), Reason: "Connection closed",
	}))

	before, ok, err := old.LatestStatusReport("node-a")
	require.NoError(t, err)
	require.True(t, ok)

	next, err := Rollover(old, time.Now().UTC(), true)
	require.NoError(t, err)
	defer next.Close()

	// The open connection's replay state survives the segment boundary.
	after, ok, err := next.LatestStatusReport("node-a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, before.Message, after.Message)

	reg, _, _, _ := recentPointers(t, next, 1)
	require.NotNil(t, reg)
	assert.Equal(t, int64(1), *reg)

	// The closed connection is not carried forward.
	var count int
	require.NoError(t, next.db.QueryRow(`SELECT COUNT(*) FROM Connection`).Scan(&count))
	assert.Equal(t, 1, count)

	// The old segment names its successor.
	var relative string
	require.NoError(t, old.db.QueryRow(`SELECT relative_filepath FROM RolloverFilename`).Scan(&relative))
	assert.Equal(t, filepath.Base(next.Path()), relative)
}

func TestRolloverConfigInterval(t *testing.T) {
	interval, err := RolloverConfig{Enabled: true, Unit: "hours", Value: 6}.Interval()
	require.NoError(t, err)
	assert.Equal(t, 6*time.Hour, interval)

	interval, err = RolloverConfig{}.Interval()
	require.NoError(t, err)
	assert.Equal(t, 52*7*24*time.Hour, interval)

	_, err = RolloverConfig{Enabled: true, Unit: "hours", Value: 0}.Interval()
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)

	_, err = RolloverConfig{Enabled: true, Unit: "fortnights", Value: 1}.Interval()
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestWriterDrainsCallbacks(t *testing.T) {
	logger := testLogger()
	w, err := NewWriter(WriterDeps{Logger: logger}, WriterOptions{
		Path:              filepath.Join(t.TempDir(), "data.sqlite"),
		ConversionEnabled: true,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	w.OnConnect(testConnection(1))
	w.OnMessage(makeRecord(t, recordSpec{connID: 1, msgID: 1, kind: "registration", nodeID: "node-a"}))
	w.OnDisconnect(message.Disconnection{
		ConnectionID: 1, Time: time.Now().UTC(), Reason: "Connection closed",
	})

	require.Eventually(t, func() bool {
		var reason *string
		if err := w.Store().db.QueryRow(
			`SELECT disconnect_reason FROM Connection WHERE id = 1`).Scan(&reason); err != nil {
			return false
		}
		return reason != nil
	}, 2*time.Second, 10*time.Millisecond)

	ids, err := w.Store().RegisteredNodeIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"node-a"}, ids)

	cancel()
	require.NoError(t, <-done)
}

func TestWriterFlushesPendingOnShutdown(t *testing.T) {
	w, err := NewWriter(WriterDeps{Logger: testLogger()}, WriterOptions{
		Path:              filepath.Join(t.TempDir(), "data.sqlite"),
		ConversionEnabled: true,
	})
	require.NoError(t, err)

	// Queue before Run ever drains, then start with an already-cancelled
	// context: the final flush must still land the rows.
	w.OnConnect(testConnection(1))
	w.OnMessage(makeRecord(t, recordSpec{connID: 1, msgID: 1, kind: "registration", nodeID: "node-a"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Run(ctx))

	s, err := Open(w.opts.Path, true)
	require.NoError(t, err)
	defer s.Close()
	ids, err := s.RegisteredNodeIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"node-a"}, ids)
}

func TestNewWriterValidation(t *testing.T) {
	_, err := NewWriter(WriterDeps{}, WriterOptions{Path: "x.sqlite"})
	assert.ErrorIs(t, err, errors.ErrMissingConfig)

	_, err = NewWriter(WriterDeps{Logger: testLogger()}, WriterOptions{})
	assert.ErrorIs(t, err, errors.ErrMissingConfig)

	_, err = NewWriter(WriterDeps{Logger: testLogger()}, WriterOptions{
		Path:     "x.sqlite",
		Rollover: RolloverConfig{Enabled: true, Unit: "days", Value: 0},
	})
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}
