package sapient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMapFromMapRoundTrip(t *testing.T) {
	orig := registrationV2Fixture(t)

	form := ToMap(orig)
	reg, ok := form["registration"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "BSI Flex 335 v2.0", reg["icd_version"])
	nodes := reg["node_definition"].([]any)
	require.Len(t, nodes, 1)
	assert.Equal(t, "NODE_TYPE_CAMERA", nodes[0].(map[string]any)["node_type"])

	back, err := FromMap(EnvelopeV2, form)
	require.NoError(t, err)
	assert.Equal(t, form, ToMap(back))
}

func TestFromMapUnknownKey(t *testing.T) {
	_, err := FromMap(ConfigDataDesc, map[string]any{
		"manufacturer": "Acme",
		"model":        "M1",
		"serial":       "nope",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serial")
}

func TestFromMapUnknownEnumName(t *testing.T) {
	_, err := FromMap(NodeDefinitionDesc, map[string]any{
		"node_type": "NODE_TYPE_SUBMARINE",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NODE_TYPE_SUBMARINE")
}

func TestFromMapTypeMismatch(t *testing.T) {
	_, err := FromMap(ConfigDataDesc, map[string]any{
		"manufacturer": 42,
	})
	assert.Error(t, err)
}

func TestFromMapNumericCoercion(t *testing.T) {
	m, err := FromMap(PowerV2Desc, map[string]any{
		"source": "POWERSOURCE_MAINS",
		"level":  80,
	})
	require.NoError(t, err)
	assert.Equal(t, int32(80), m.GetInt32("level"))
	assert.Equal(t, "POWERSOURCE_MAINS", m.GetEnumName("source"))
}

func TestToMapUnknownEnumNumberKeptNumeric(t *testing.T) {
	m := New(PowerV2Desc)
	require.NoError(t, m.Set("source", int32(99)))
	form := ToMap(m)
	assert.Equal(t, int32(99), form["source"])
}

func TestToMapTimestampPassthrough(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := New(EnvelopeV1)
	require.NoError(t, m.Set("timestamp", at))
	require.NoError(t, m.Set("node_id", "01HKWW8S7R4G2Q6M0B3E9Z5XTD"))

	form := ToMap(m)
	assert.Equal(t, at, form["timestamp"])

	back, err := FromMap(EnvelopeV1, form)
	require.NoError(t, err)
	assert.Equal(t, at, back.GetTime("timestamp"))
}
