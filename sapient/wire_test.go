package sapient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registrationV2Fixture(t *testing.T) *Message {
	t.Helper()
	m := New(EnvelopeV2)
	require.NoError(t, m.Set("timestamp", time.Date(2025, 3, 14, 9, 26, 53, 589793000, time.UTC)))
	require.NoError(t, m.Set("node_id", "01HKWW8S7R4G2Q6M0B3E9Z5XTD"))

	reg := m.Mutable("registration")
	require.NoError(t, reg.Set("icd_version", "BSI Flex 335 v2.0"))
	require.NoError(t, reg.Set("short_name", "PTZ Camera"))

	nd, err := FromMap(NodeDefinitionDesc, map[string]any{
		"node_type":     "NODE_TYPE_CAMERA",
		"node_sub_type": "PTZ",
	})
	require.NoError(t, err)
	require.NoError(t, reg.Append("node_definition", nd))

	cfg, err := FromMap(ConfigDataDesc, map[string]any{
		"manufacturer": "Acme Optics",
		"model":        "AO-500",
	})
	require.NoError(t, err)
	require.NoError(t, reg.Append("config_data", cfg))
	return m
}

func TestMarshalRoundTrip(t *testing.T) {
	orig := registrationV2Fixture(t)

	data, err := Marshal(orig)
	require.NoError(t, err)

	got, err := Unmarshal(EnvelopeV2, data)
	require.NoError(t, err)

	assert.Equal(t, "registration", got.Kind())
	assert.Equal(t, "01HKWW8S7R4G2Q6M0B3E9Z5XTD", got.GetString("node_id"))
	assert.Equal(t, time.Date(2025, 3, 14, 9, 26, 53, 589793000, time.UTC), got.GetTime("timestamp"))

	reg := got.GetMessage("registration")
	require.NotNil(t, reg)
	assert.Equal(t, "BSI Flex 335 v2.0", reg.GetString("icd_version"))
	assert.Equal(t, "PTZ Camera", reg.GetString("short_name"))

	nodes := reg.List("node_definition")
	require.Len(t, nodes, 1)
	assert.Equal(t, "NODE_TYPE_CAMERA", nodes[0].(*Message).GetEnumName("node_type"))

	cfgs := reg.List("config_data")
	require.Len(t, cfgs, 1)
	assert.Equal(t, "Acme Optics", cfgs[0].(*Message).GetString("manufacturer"))
}

func TestMarshalScalarKinds(t *testing.T) {
	desc := newMessage("ScalarProbe",
		&FieldDescriptor{Name: "flag", Number: 1, Kind: KindBool},
		&FieldDescriptor{Name: "count", Number: 2, Kind: KindInt32},
		&FieldDescriptor{Name: "wide", Number: 3, Kind: KindInt64},
		&FieldDescriptor{Name: "ratio", Number: 4, Kind: KindFloat},
		&FieldDescriptor{Name: "precise", Number: 5, Kind: KindDouble},
		&FieldDescriptor{Name: "label", Number: 6, Kind: KindString},
		&FieldDescriptor{Name: "blob", Number: 7, Kind: KindBytes},
	)

	m := New(desc)
	require.NoError(t, m.Set("flag", true))
	require.NoError(t, m.Set("count", int32(-17)))
	require.NoError(t, m.Set("wide", int64(1<<40)))
	require.NoError(t, m.Set("ratio", float32(0.25)))
	require.NoError(t, m.Set("precise", 52.123456))
	require.NoError(t, m.Set("label", "coverage"))
	require.NoError(t, m.Set("blob", []byte{0x00, 0xff, 0x7f}))

	data, err := Marshal(m)
	require.NoError(t, err)
	got, err := Unmarshal(desc, data)
	require.NoError(t, err)

	assert.Equal(t, true, got.GetBool("flag"))
	assert.Equal(t, int32(-17), got.GetInt32("count"))
	assert.Equal(t, int64(1<<40), got.GetInt64("wide"))
	assert.Equal(t, float32(0.25), got.fields["ratio"])
	assert.Equal(t, 52.123456, got.GetDouble("precise"))
	assert.Equal(t, "coverage", got.GetString("label"))
	assert.Equal(t, []byte{0x00, 0xff, 0x7f}, got.GetBytes("blob"))
}

// A peer speaking a newer dialect may send fields this table does not know.
// They must survive a decode and re-encode unchanged.
func TestUnknownFieldRetention(t *testing.T) {
	full := newMessage("Probe",
		&FieldDescriptor{Name: "known", Number: 1, Kind: KindString},
		&FieldDescriptor{Name: "extra", Number: 2, Kind: KindString},
		&FieldDescriptor{Name: "more", Number: 3, Kind: KindInt32},
	)
	partial := newMessage("Probe",
		&FieldDescriptor{Name: "known", Number: 1, Kind: KindString},
	)

	m := New(full)
	require.NoError(t, m.Set("known", "kept"))
	require.NoError(t, m.Set("extra", "opaque"))
	require.NoError(t, m.Set("more", int32(9)))
	data, err := Marshal(m)
	require.NoError(t, err)

	got, err := Unmarshal(partial, data)
	require.NoError(t, err)
	assert.Equal(t, "kept", got.GetString("known"))
	require.Len(t, got.Unknown(), 2)
	assert.Equal(t, int32(2), got.Unknown()[0].Number)
	assert.Equal(t, int32(3), got.Unknown()[1].Number)

	// Raw bytes include the tag so a re-encode reproduces the input.
	reenc, err := Marshal(got)
	require.NoError(t, err)
	assert.Equal(t, data, reenc)
}

func TestUnmarshalWireTypeMismatchKeptAsUnknown(t *testing.T) {
	asString := newMessage("Probe",
		&FieldDescriptor{Name: "v", Number: 1, Kind: KindString},
	)
	asInt := newMessage("Probe",
		&FieldDescriptor{Name: "v", Number: 1, Kind: KindInt32},
	)

	m := New(asString)
	require.NoError(t, m.Set("v", "not a varint"))
	data, err := Marshal(m)
	require.NoError(t, err)

	got, err := Unmarshal(asInt, data)
	require.NoError(t, err)
	assert.False(t, got.Has("v"))
	require.Len(t, got.Unknown(), 1)
	assert.Equal(t, wireBytes, got.Unknown()[0].WireType)
}

func TestUnmarshalTruncated(t *testing.T) {
	desc := newMessage("Probe",
		&FieldDescriptor{Name: "v", Number: 1, Kind: KindString},
	)
	m := New(desc)
	require.NoError(t, m.Set("v", "payload"))
	data, err := Marshal(m)
	require.NoError(t, err)

	_, err = Unmarshal(desc, data[:len(data)-3])
	assert.Error(t, err)
}

func TestRepeatedAccumulatesSingularLastWins(t *testing.T) {
	desc := newMessage("Probe",
		&FieldDescriptor{Name: "one", Number: 1, Kind: KindString},
		&FieldDescriptor{Name: "many", Number: 2, Kind: KindString, Repeated: true},
	)

	var data []byte
	for _, s := range []string{"first", "second"} {
		m := New(desc)
		require.NoError(t, m.Set("one", s))
		require.NoError(t, m.Append("many", s))
		chunk, err := Marshal(m)
		require.NoError(t, err)
		data = append(data, chunk...)
	}

	got, err := Unmarshal(desc, data)
	require.NoError(t, err)
	assert.Equal(t, "second", got.GetString("one"))
	assert.Equal(t, []any{"first", "second"}, got.List("many"))
}

// Standard proto3 encoders pack repeated scalars into one length-delimited
// value. The decoder must accept that form alongside per-element tags.
func TestUnmarshalPackedRepeatedEnum(t *testing.T) {
	// field 2 (region_type), wire type 2, two packed varints.
	data := []byte{0x12, 0x02, 0x01, 0x02}

	got, err := Unmarshal(TaskDefinitionV1Desc, data)
	require.NoError(t, err)
	assert.Empty(t, got.Unknown())
	assert.Equal(t, []any{int32(1), int32(2)}, got.List("region_type"))
}

func TestUnmarshalMixedPackedAndUnpacked(t *testing.T) {
	// One packed run, then a per-element occurrence of the same field.
	data := []byte{
		0x12, 0x02, 0x01, 0x03, // packed: AREA_OF_INTEREST, BOUNDARY
		0x10, 0x02, // unpacked: IGNORE
	}

	got, err := Unmarshal(TaskDefinitionV2Desc, data)
	require.NoError(t, err)
	assert.Equal(t, []any{int32(1), int32(3), int32(2)}, got.List("region_type"))
}

func TestUnmarshalPackedFixedWidth(t *testing.T) {
	desc := newMessage("Probe",
		&FieldDescriptor{Name: "ratios", Number: 1, Kind: KindFloat, Repeated: true},
	)
	data := []byte{
		0x0a, 0x08,
		0x00, 0x00, 0x80, 0x3f, // 1.0
		0x00, 0x00, 0x00, 0x40, // 2.0
	}

	got, err := Unmarshal(desc, data)
	require.NoError(t, err)
	assert.Equal(t, []any{float32(1.0), float32(2.0)}, got.List("ratios"))
}

func TestUnmarshalPackedTruncatedElement(t *testing.T) {
	desc := newMessage("Probe",
		&FieldDescriptor{Name: "ratios", Number: 1, Kind: KindFloat, Repeated: true},
	)
	// Payload length 6 cannot hold two fixed32 values.
	data := []byte{0x0a, 0x06, 0x00, 0x00, 0x80, 0x3f, 0x00, 0x00}

	_, err := Unmarshal(desc, data)
	assert.Error(t, err)
}

// A length-delimited occurrence of a repeated string field is a normal
// element, not a packed run.
func TestUnmarshalRepeatedStringNotTreatedAsPacked(t *testing.T) {
	desc := newMessage("Probe",
		&FieldDescriptor{Name: "names", Number: 1, Kind: KindString, Repeated: true},
	)
	m := New(desc)
	require.NoError(t, m.Append("names", "ab"))
	require.NoError(t, m.Append("names", "cd"))
	data, err := Marshal(m)
	require.NoError(t, err)

	got, err := Unmarshal(desc, data)
	require.NoError(t, err)
	assert.Equal(t, []any{"ab", "cd"}, got.List("names"))
}

func TestTimestampZeroComponents(t *testing.T) {
	desc := newMessage("Probe",
		&FieldDescriptor{Name: "at", Number: 1, Kind: KindTimestamp},
	)
	m := New(desc)
	require.NoError(t, m.Set("at", time.Unix(1700000000, 0).UTC()))

	data, err := Marshal(m)
	require.NoError(t, err)
	got, err := Unmarshal(desc, data)
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), got.GetTime("at"))
}
