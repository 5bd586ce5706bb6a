package gateway

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dstl/Apex-SAPIENT-Middleware/errors"
	"github.com/dstl/Apex-SAPIENT-Middleware/idmap"
	"github.com/dstl/Apex-SAPIENT-Middleware/message"
	"github.com/dstl/Apex-SAPIENT-Middleware/sapient"
	"github.com/dstl/Apex-SAPIENT-Middleware/xmlcodec"
)

type memSink struct {
	payloads [][]byte
}

func (m *memSink) write(p []byte) error {
	m.payloads = append(m.payloads, p)
	return nil
}

type testGateway struct {
	creator *Creator
	ids     *idmap.Registry
	legacy  *xmlcodec.LegacyTranslator
}

func newTestGateway(t *testing.T, opts Options) *testGateway {
	t.Helper()
	ids, err := idmap.New(idmap.Options{})
	require.NoError(t, err)
	creator, err := NewCreator(Deps{Logger: slog.Default(), IDs: ids}, opts)
	require.NoError(t, err)
	return &testGateway{
		creator: creator,
		ids:     ids,
		legacy:  xmlcodec.NewLegacyTranslator(xmlcodec.NewCache(), ids),
	}
}

func (g *testGateway) binaryConn(t *testing.T, connType string, cfg ConnectionConfig) (Handler, *memSink) {
	t.Helper()
	sink := &memSink{}
	w, err := NewConnectionWriter(sink.write, g.legacy, EncodingBinary, sapient.VersionBSIFlex335V2)
	require.NoError(t, err)
	_, handler, err := g.creator.Create(connType, cfg, w)
	require.NoError(t, err)
	return handler, sink
}

func decodeV2(t *testing.T, payload []byte) *sapient.Message {
	t.Helper()
	env, err := sapient.Unmarshal(sapient.EnvelopeV2, payload)
	require.NoError(t, err)
	return env
}

// binaryRecord builds a record the way the parse package would for a valid
// binary message.
func binaryRecord(t *testing.T, receivedAt time.Time, form map[string]any) *message.Record {
	t.Helper()
	env, err := sapient.FromMap(sapient.EnvelopeV2, form)
	require.NoError(t, err)
	data, err := sapient.Marshal(env)
	require.NoError(t, err)
	return &message.Record{
		Received: message.ReceivedData{Timestamp: receivedAt, Data: data},
		Binary:   data,
		Version:  sapient.VersionBSIFlex335V2,
		Parsed: &message.ParsedInfo{
			ContentKind:   env.WhichOneof("content"),
			NodeID:        env.GetString("node_id"),
			DestinationID: env.GetString("destination_id"),
			Timestamp:     env.GetTime("timestamp"),
			Envelope:      env,
		},
	}
}

func registrationRecord(t *testing.T, node string, at time.Time) *message.Record {
	t.Helper()
	rec := binaryRecord(t, at, map[string]any{
		"timestamp": at,
		"node_id":   node,
		"registration": map[string]any{
			"icd_version": "BSI Flex 335 v2.0",
			"short_name":  "PTZ Camera",
			"node_definition": []any{
				map[string]any{"node_type": "NODE_TYPE_CAMERA"},
			},
			"config_data": []any{
				map[string]any{"manufacturer": "Acme", "model": "X1"},
			},
		},
	})
	rec.Registration = &message.Registration{NodeName: "PTZ Camera"}
	return rec
}

func statusRecord(t *testing.T, g *testGateway, node, system string, unchanged bool, at time.Time) *message.Record {
	t.Helper()
	info := "INFO_NEW"
	if unchanged {
		info = "INFO_UNCHANGED"
	}
	rec := binaryRecord(t, at, map[string]any{
		"timestamp": at,
		"node_id":   node,
		"status_report": map[string]any{
			"report_id": g.ids.NewULID(),
			"system":    "SYSTEM_" + system,
			"info":      info,
		},
	})
	rec.StatusReport = &message.StatusReport{System: system, IsUnchanged: unchanged}
	return rec
}

func detectionRecord(t *testing.T, g *testGateway, node string, confidence float64, at time.Time) *message.Record {
	t.Helper()
	rec := binaryRecord(t, at, map[string]any{
		"timestamp": at,
		"node_id":   node,
		"detection_report": map[string]any{
			"report_id":            g.ids.NewULID(),
			"object_id":            g.ids.NewULID(),
			"detection_confidence": confidence,
			"location":             map[string]any{"x": 1.5, "y": 2.5},
		},
	})
	rec.Parsed.DetectionConfidence = confidence
	return rec
}

func TestChildRegistrationForwardsAndAcks(t *testing.T) {
	g := newTestGateway(t, Options{SendRegistrationAck: true})
	_, peerSink := g.binaryConn(t, "Peer", ConnectionConfig{})
	child, childSink := g.binaryConn(t, "Child", ConnectionConfig{})

	node := g.ids.NewULID()
	now := time.Now().UTC()
	reg := registrationRecord(t, node, now)
	child.HandleMessage(reg)

	require.Nil(t, reg.Error)
	assert.Equal(t, 1, reg.ForwardedCount)

	require.Len(t, peerSink.payloads, 1)
	forwarded := decodeV2(t, peerSink.payloads[0])
	assert.Equal(t, "registration", forwarded.WhichOneof("content"))
	assert.Equal(t, node, forwarded.GetString("node_id"))

	require.Len(t, childSink.payloads, 1)
	ack := decodeV2(t, childSink.payloads[0])
	assert.Equal(t, "registration_ack", ack.WhichOneof("content"))
	assert.Equal(t, node, ack.GetString("destination_id"))
	assert.True(t, ack.GetMessage("registration_ack").GetBool("acceptance"))
}

func TestChildFirstMessageMustBeRegistration(t *testing.T) {
	g := newTestGateway(t, Options{})
	_, peerSink := g.binaryConn(t, "Peer", ConnectionConfig{})
	child, _ := g.binaryConn(t, "Child", ConnectionConfig{})

	node := g.ids.NewULID()
	status := statusRecord(t, g, node, "OK", false, time.Now().UTC())
	child.HandleMessage(status)

	require.NotNil(t, status.Error)
	assert.Equal(t, errors.SeveritySilent, status.Error.Severity)
	assert.Equal(t, "Registration message expected", status.Error.Description)
	assert.Empty(t, peerSink.payloads)
}

func TestChildNodeIDMismatchErrorsAndReplies(t *testing.T) {
	g := newTestGateway(t, Options{})
	child, childSink := g.binaryConn(t, "Child", ConnectionConfig{})

	node := g.ids.NewULID()
	now := time.Now().UTC()
	child.HandleMessage(registrationRecord(t, node, now))
	require.Empty(t, childSink.payloads)

	other := g.ids.NewULID()
	status := statusRecord(t, g, other, "OK", false, now)
	child.HandleMessage(status)

	require.NotNil(t, status.Error)
	assert.Equal(t, errors.SeverityNoisy, status.Error.Severity)
	assert.Contains(t, status.Error.Description, "Expected node ID "+node)

	// Noisy errors are echoed back as an Error message.
	require.Len(t, childSink.payloads, 1)
	reply := decodeV2(t, childSink.payloads[0])
	assert.Equal(t, "error", reply.WhichOneof("content"))
	msgs := reply.GetMessage("error").List("error_message")
	require.Len(t, msgs, 1)
	assert.Equal(t, status.Error.Description, msgs[0])
}

func TestChildStatusUnchangedRules(t *testing.T) {
	g := newTestGateway(t, Options{})
	_, peerSink := g.binaryConn(t, "Peer", ConnectionConfig{})
	child, _ := g.binaryConn(t, "Child", ConnectionConfig{})

	node := g.ids.NewULID()
	now := time.Now().UTC()
	child.HandleMessage(registrationRecord(t, node, now))
	require.Len(t, peerSink.payloads, 1)

	unchanged := statusRecord(t, g, node, "OK", true, now)
	child.HandleMessage(unchanged)
	require.NotNil(t, unchanged.Error)
	assert.Equal(t, `Status report "Unchanged" received before "New"`, unchanged.Error.Description)
	assert.Len(t, peerSink.payloads, 1)

	fresh := statusRecord(t, g, node, "OK", false, now)
	child.HandleMessage(fresh)
	require.Nil(t, fresh.Error)
	assert.Len(t, peerSink.payloads, 2)

	mismatched := statusRecord(t, g, node, "Tamper", true, now)
	child.HandleMessage(mismatched)
	require.NotNil(t, mismatched.Error)
	assert.Contains(t, mismatched.Error.Description, `different from last "New" system "OK"`)

	unchangedOK := statusRecord(t, g, node, "OK", true, now)
	child.HandleMessage(unchangedOK)
	require.Nil(t, unchangedOK.Error)
	assert.Len(t, peerSink.payloads, 3)
}

func TestPeerReplayOnConnect(t *testing.T) {
	g := newTestGateway(t, Options{})
	child, _ := g.binaryConn(t, "Child", ConnectionConfig{})

	node := g.ids.NewULID()
	now := time.Now().UTC()
	child.HandleMessage(registrationRecord(t, node, now))
	child.HandleMessage(statusRecord(t, g, node, "OK", false, now))
	child.HandleMessage(statusRecord(t, g, node, "OK", true, now))

	_, peerSink := g.binaryConn(t, "Peer", ConnectionConfig{})
	require.Len(t, peerSink.payloads, 3)
	assert.Equal(t, "registration", decodeV2(t, peerSink.payloads[0]).WhichOneof("content"))
	assert.Equal(t, "status_report", decodeV2(t, peerSink.payloads[1]).WhichOneof("content"))
	assert.Equal(t, "status_report", decodeV2(t, peerSink.payloads[2]).WhichOneof("content"))
}

func TestReRegistrationResetsStatusCache(t *testing.T) {
	g := newTestGateway(t, Options{})
	child, _ := g.binaryConn(t, "Child", ConnectionConfig{})

	node := g.ids.NewULID()
	now := time.Now().UTC()
	child.HandleMessage(registrationRecord(t, node, now))
	child.HandleMessage(statusRecord(t, g, node, "OK", false, now))
	child.HandleMessage(registrationRecord(t, node, now))

	_, peerSink := g.binaryConn(t, "Peer", ConnectionConfig{})
	require.Len(t, peerSink.payloads, 1)
	assert.Equal(t, "registration", decodeV2(t, peerSink.payloads[0]).WhichOneof("content"))

	// The unchanged-before-new rule starts over too.
	unchanged := statusRecord(t, g, node, "OK", true, now)
	child.HandleMessage(unchanged)
	require.NotNil(t, unchanged.Error)
}

func TestChildHijackedNodeDroppedSilently(t *testing.T) {
	g := newTestGateway(t, Options{})
	first, firstSink := g.binaryConn(t, "Child", ConnectionConfig{})
	second, _ := g.binaryConn(t, "Child", ConnectionConfig{})

	node := g.ids.NewULID()
	now := time.Now().UTC()
	first.HandleMessage(registrationRecord(t, node, now))
	second.HandleMessage(registrationRecord(t, node, now))

	status := statusRecord(t, g, node, "OK", false, now)
	first.HandleMessage(status)
	require.NotNil(t, status.Error)
	assert.Equal(t, errors.SeveritySilent, status.Error.Severity)
	assert.Contains(t, status.Error.Description, "hijacked")
	// Silent, so no error reply goes back to the losing sensor.
	assert.Empty(t, firstSink.payloads)

	// Closing the losing connection must not deregister the winner.
	first.HandleClosed()
	_, _, ok := g.creator.Shared().SensorRoute(node)
	assert.True(t, ok)
}

func TestDetectionConfidenceFilter(t *testing.T) {
	g := newTestGateway(t, Options{
		DetectionFilter: DetectionFilterOptions{Enable: true, Threshold: 0.5},
	})
	_, peerSink := g.binaryConn(t, "Peer", ConnectionConfig{})
	child, _ := g.binaryConn(t, "Child", ConnectionConfig{})

	node := g.ids.NewULID()
	now := time.Now().UTC()
	child.HandleMessage(registrationRecord(t, node, now))
	require.Len(t, peerSink.payloads, 1)

	low := detectionRecord(t, g, node, 0.3, now)
	child.HandleMessage(low)
	require.NotNil(t, low.Error)
	assert.Equal(t, errors.SeverityUnstored, low.Error.Severity)
	assert.Equal(t, "Detection confidence 0.3 less than filter threshold 0.5", low.Error.Description)
	assert.Len(t, peerSink.payloads, 1)

	high := detectionRecord(t, g, node, 0.9, now)
	child.HandleMessage(high)
	require.Nil(t, high.Error)
	assert.Len(t, peerSink.payloads, 2)
}

func TestDetectionFilterStoreInDatabaseIsSilent(t *testing.T) {
	g := newTestGateway(t, Options{
		DetectionFilter: DetectionFilterOptions{Enable: true, Threshold: 0.5, StoreInDatabase: true},
	})
	child, _ := g.binaryConn(t, "Child", ConnectionConfig{})

	node := g.ids.NewULID()
	now := time.Now().UTC()
	child.HandleMessage(registrationRecord(t, node, now))

	low := detectionRecord(t, g, node, 0.2, now)
	child.HandleMessage(low)
	require.NotNil(t, low.Error)
	assert.Equal(t, errors.SeveritySilent, low.Error.Severity)
}

func TestPeerRoutesToDestinationChild(t *testing.T) {
	g := newTestGateway(t, Options{})
	child, childSink := g.binaryConn(t, "Child", ConnectionConfig{})
	peer, _ := g.binaryConn(t, "Peer", ConnectionConfig{})

	node := g.ids.NewULID()
	now := time.Now().UTC()
	child.HandleMessage(registrationRecord(t, node, now))

	task := binaryRecord(t, now, map[string]any{
		"timestamp":      now,
		"node_id":        g.ids.NewULID(),
		"destination_id": node,
		"task": map[string]any{
			"task_id": g.ids.NewULID(),
			"control": "CONTROL_START",
		},
	})
	peer.HandleMessage(task)

	require.Nil(t, task.Error)
	assert.Equal(t, 1, task.ForwardedCount)
	require.Len(t, childSink.payloads, 1)
	got := decodeV2(t, childSink.payloads[0])
	assert.Equal(t, "task", got.WhichOneof("content"))
}

func TestPeerUnknownDestination(t *testing.T) {
	g := newTestGateway(t, Options{})
	peer, peerSink := g.binaryConn(t, "Peer", ConnectionConfig{})

	unknown := g.ids.NewULID()
	now := time.Now().UTC()
	task := binaryRecord(t, now, map[string]any{
		"timestamp":      now,
		"node_id":        g.ids.NewULID(),
		"destination_id": unknown,
		"task": map[string]any{
			"task_id": g.ids.NewULID(),
			"control": "CONTROL_START",
		},
	})
	peer.HandleMessage(task)

	require.NotNil(t, task.Error)
	assert.Equal(t, errors.SeverityNoisy, task.Error.Severity)
	assert.Equal(t, "Unknown node ID "+unknown, task.Error.Description)
	assert.Zero(t, task.ForwardedCount)

	require.Len(t, peerSink.payloads, 1)
	reply := decodeV2(t, peerSink.payloads[0])
	assert.Equal(t, "error", reply.WhichOneof("content"))
}

func TestPeerRegistrationPolicy(t *testing.T) {
	now := time.Now().UTC()

	g := newTestGateway(t, Options{})
	peer, _ := g.binaryConn(t, "Peer", ConnectionConfig{})
	reg := registrationRecord(t, g.ids.NewULID(), now)
	peer.HandleMessage(reg)
	require.NotNil(t, reg.Error)
	assert.Equal(t, "Peer should not send registration", reg.Error.Description)

	g = newTestGateway(t, Options{AllowPeerRegistration: true})
	peer, peerSink := g.binaryConn(t, "Peer", ConnectionConfig{})
	node := g.ids.NewULID()
	reg = registrationRecord(t, node, now)
	peer.HandleMessage(reg)
	require.Nil(t, reg.Error)
	// Peer acks are sent even with SendRegistrationAck off.
	require.Len(t, peerSink.payloads, 1)
	assert.Equal(t, "registration_ack", decodeV2(t, peerSink.payloads[0]).WhichOneof("content"))

	inconsistent := registrationRecord(t, g.ids.NewULID(), now)
	peer.HandleMessage(inconsistent)
	require.NotNil(t, inconsistent.Error)
	assert.Equal(t, errors.SeverityFatal, inconsistent.Error.Severity)
	assert.Contains(t, inconsistent.Error.Description, "inconsistent ID")
}

func TestParentForwardingSets(t *testing.T) {
	g := newTestGateway(t, Options{})
	_, highSink := g.binaryConn(t, "Parent", ConnectionConfig{})
	_, allSink := g.binaryConn(t, "Parent", ConnectionConfig{ForwardAll: true})
	child, _ := g.binaryConn(t, "Child", ConnectionConfig{})
	peer, _ := g.binaryConn(t, "Peer", ConnectionConfig{})

	node := g.ids.NewULID()
	now := time.Now().UTC()
	child.HandleMessage(registrationRecord(t, node, now))

	// Child traffic reaches only the forward-all Parent.
	assert.Empty(t, highSink.payloads)
	assert.Len(t, allSink.payloads, 1)

	// A destination-less Peer message is high level, so both sets get it.
	alert := binaryRecord(t, now, map[string]any{
		"timestamp": now,
		"node_id":   g.ids.NewULID(),
		"alert": map[string]any{
			"alert_id": g.ids.NewULID(),
		},
	})
	peer.HandleMessage(alert)
	require.Nil(t, alert.Error)
	assert.Len(t, highSink.payloads, 1)
	assert.Len(t, allSink.payloads, 2)

	// An addressed Peer message is not high level.
	task := binaryRecord(t, now, map[string]any{
		"timestamp":      now,
		"node_id":        g.ids.NewULID(),
		"destination_id": node,
		"task": map[string]any{
			"task_id": g.ids.NewULID(),
			"control": "CONTROL_START",
		},
	})
	peer.HandleMessage(task)
	require.Nil(t, task.Error)
	assert.Len(t, highSink.payloads, 1)
	assert.Len(t, allSink.payloads, 3)
}

func TestParentInjectionFansOut(t *testing.T) {
	g := newTestGateway(t, Options{})
	parent, parentSink := g.binaryConn(t, "Parent", ConnectionConfig{ForwardAll: true})
	_, otherSink := g.binaryConn(t, "Parent", ConnectionConfig{ForwardAll: true})
	_, peerSink := g.binaryConn(t, "Peer", ConnectionConfig{})

	now := time.Now().UTC()
	alert := binaryRecord(t, now, map[string]any{
		"timestamp": now,
		"node_id":   g.ids.NewULID(),
		"alert": map[string]any{
			"alert_id": g.ids.NewULID(),
		},
	})
	parent.HandleMessage(alert)

	require.Nil(t, alert.Error)
	assert.Len(t, peerSink.payloads, 1)
	assert.Len(t, otherSink.payloads, 1)
	// Never echoed back to the injecting Parent.
	assert.Empty(t, parentSink.payloads)
}

func TestRecorderIsASink(t *testing.T) {
	g := newTestGateway(t, Options{})
	recorder, _ := g.binaryConn(t, "Recorder", ConnectionConfig{})
	_, peerSink := g.binaryConn(t, "Peer", ConnectionConfig{})
	_, allSink := g.binaryConn(t, "Parent", ConnectionConfig{ForwardAll: true})

	now := time.Now().UTC()
	alert := binaryRecord(t, now, map[string]any{
		"timestamp": now,
		"node_id":   g.ids.NewULID(),
		"alert": map[string]any{
			"alert_id": g.ids.NewULID(),
		},
	})
	recorder.HandleMessage(alert)

	// Mirrored to Parents for audit completeness, never to Peers.
	assert.Empty(t, peerSink.payloads)
	assert.Len(t, allSink.payloads, 1)
	assert.Equal(t, alert.Received.Data, alert.AdjustedData)
}

func TestTimeSyncAdjustment(t *testing.T) {
	g := newTestGateway(t, Options{EnableTimeSync: true})
	child, childSink := g.binaryConn(t, "Child", ConnectionConfig{})
	peer, _ := g.binaryConn(t, "Peer", ConnectionConfig{})

	node := g.ids.NewULID()
	embedded := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	// The sensor's clock trails receipt by one second.
	receipt := embedded.Add(time.Second)

	reg := registrationRecord(t, node, embedded)
	reg.Received.Timestamp = receipt
	child.HandleMessage(reg)
	require.Nil(t, reg.Error)

	// Forwarded timestamps gain offset minus the assumed 100ms delay.
	adjusted := reg.Parsed.Envelope.GetTime("timestamp")
	assert.Equal(t, embedded.Add(time.Second-messageDelay), adjusted)
	assert.NotEmpty(t, reg.AdjustedData)

	// Peer-to-Child tasks shift the other way by the full offset.
	taskTime := embedded.Add(time.Minute)
	task := binaryRecord(t, taskTime, map[string]any{
		"timestamp":      taskTime,
		"node_id":        g.ids.NewULID(),
		"destination_id": node,
		"task": map[string]any{
			"task_id": g.ids.NewULID(),
			"control": "CONTROL_START",
		},
	})
	peer.HandleMessage(task)
	require.Nil(t, task.Error)
	require.Len(t, childSink.payloads, 1)
	got := decodeV2(t, childSink.payloads[0])
	assert.Equal(t, taskTime.Add(-time.Second), got.GetTime("timestamp"))
}

func TestCreateRejectsUnknownType(t *testing.T) {
	g := newTestGateway(t, Options{})
	sink := &memSink{}
	w, err := NewConnectionWriter(sink.write, g.legacy, EncodingBinary, sapient.VersionBSIFlex335V2)
	require.NoError(t, err)
	_, _, err = g.creator.Create("Sibling", ConnectionConfig{}, w)
	require.ErrorIs(t, err, errors.ErrInvalidConfig)
}
