package sapient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	cases := map[string]Version{
		"VERSION6":            VersionXML6,
		"version6":            VersionXML6,
		"BSI Flex 335 v1.0":   VersionBSIFlex335V1,
		"BSI_FLEX_335_V1_0":   VersionBSIFlex335V1,
		"bsi flex 335 v2.0":   VersionBSIFlex335V2,
		"BSI FLEX 335 V2.0  ": VersionUnknown,
	}
	for in, want := range cases {
		got, err := ParseVersion(in)
		if want == VersionUnknown {
			assert.Error(t, err, in)
			continue
		}
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestVersionEnvelope(t *testing.T) {
	assert.Same(t, EnvelopeV1, VersionXML6.Envelope())
	assert.Same(t, EnvelopeV1, VersionBSIFlex335V1.Envelope())
	assert.Same(t, EnvelopeV2, VersionBSIFlex335V2.Envelope())
}

func TestVersionBinaryClampsLegacy(t *testing.T) {
	assert.Equal(t, VersionBSIFlex335V1, VersionXML6.Binary())
	assert.Equal(t, VersionBSIFlex335V2, VersionBSIFlex335V2.Binary())
}

func TestVersionChain(t *testing.T) {
	assert.Equal(t, VersionBSIFlex335V1, VersionXML6.Next())
	assert.Equal(t, VersionBSIFlex335V2, VersionBSIFlex335V1.Next())
	assert.Equal(t, VersionBSIFlex335V1, VersionBSIFlex335V2.Prev())
	assert.Equal(t, VersionXML6, VersionBSIFlex335V1.Prev())
}
