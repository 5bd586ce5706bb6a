package message

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dstl/Apex-SAPIENT-Middleware/errors"
	"github.com/dstl/Apex-SAPIENT-Middleware/sapient"
)

func TestTypeString(t *testing.T) {
	r := &Record{}
	assert.Equal(t, "--", r.TypeString())

	r.Parsed = &ParsedInfo{ContentKind: "detection_report"}
	assert.Equal(t, "detection_report", r.TypeString())
}

func TestAddErrorKeepsStricter(t *testing.T) {
	r := &Record{}
	_, ok := r.Severity()
	assert.False(t, ok)

	r.AddError(errors.Noisy("first"))
	r.AddError(errors.Silent("second"))
	sev, ok := r.Severity()
	require.True(t, ok)
	assert.Equal(t, errors.SeverityNoisy, sev)
	assert.Equal(t, "first", r.Error.Description)

	r.AddError(errors.Fatal("third"))
	sev, _ = r.Severity()
	assert.Equal(t, errors.SeverityFatal, sev)
}

func TestEnvelopeJSON(t *testing.T) {
	env, err := sapient.FromMap(sapient.EnvelopeV1, map[string]any{
		"timestamp": time.Date(2025, 3, 14, 9, 26, 53, 589793000, time.UTC),
		"node_id":   "01HKWW8S7R4G2Q6M0B3E9Z5XTD",
		"task_ack": map[string]any{
			"task_id":     "01HKWW8S7R4G2Q6M0B3E9Z5XTD",
			"task_status": "TASK_STATUS_ACCEPTED",
		},
	})
	require.NoError(t, err)

	out, err := EnvelopeJSON(env)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "task_ack", decoded["message_type"])
	assert.Equal(t, "01HKWW8S7R4G2Q6M0B3E9Z5XTD", decoded["node_id"])
	assert.Equal(t, "2025-03-14T09:26:53.589793Z", decoded["timestamp"])

	body, ok := decoded["message"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "TASK_STATUS_ACCEPTED", body["task_status"])
}

func TestEnvelopeJSONRequiresContent(t *testing.T) {
	env := sapient.New(sapient.EnvelopeV1)
	_, err := EnvelopeJSON(env)
	require.Error(t, err)
}
