// Package sapient models the SAPIENT protocol schema as explicit descriptor
// tables: message, field and enum descriptors for each supported protocol
// version, a dynamic message value driven by those descriptors, a binary
// wire codec that retains unknown fields, and a generic map form used by the
// version translator.
//
// The schema is a given of the protocol. Version differences are encoded in
// two explicit envelope tables (no runtime reflection); the legacy XML
// dialect shares the V1 table and differs only in naming and shape, which is
// the xmlcodec package's concern.
package sapient

import (
	"fmt"
	"strings"
)

// Version identifies a protocol version in the supported chain. Versions
// are ordered; translation proceeds stepwise between adjacent versions.
type Version int

const (
	// VersionUnknown is the zero value, never valid in a record.
	VersionUnknown Version = iota
	// VersionXML6 is the legacy XML dialect (Version 6).
	VersionXML6
	// VersionBSIFlex335V1 is the first binary version.
	VersionBSIFlex335V1
	// VersionBSIFlex335V2 is the second binary version.
	VersionBSIFlex335V2
)

// Chain endpoints.
const (
	VersionOldest       = VersionXML6
	VersionLowestBinary = VersionBSIFlex335V1
	VersionLatest       = VersionBSIFlex335V2
)

// String returns the canonical protocol name.
func (v Version) String() string {
	switch v {
	case VersionXML6:
		return "VERSION6"
	case VersionBSIFlex335V1:
		return "BSI Flex 335 v1.0"
	case VersionBSIFlex335V2:
		return "BSI Flex 335 v2.0"
	default:
		return "unknown"
	}
}

// ParseVersion parses a configured version name. Matching is tolerant of
// case and of spaces, dots or underscores as separators.
func ParseVersion(s string) (Version, error) {
	normalized := strings.ToUpper(s)
	normalized = strings.NewReplacer(" ", "_", ".", "_").Replace(normalized)
	switch normalized {
	case "VERSION6":
		return VersionXML6, nil
	case "BSI_FLEX_335_V1_0":
		return VersionBSIFlex335V1, nil
	case "BSI_FLEX_335_V2_0":
		return VersionBSIFlex335V2, nil
	}
	return VersionUnknown, fmt.Errorf("unknown protocol version %q", s)
}

// Envelope returns the envelope descriptor used for this version. The
// legacy XML dialect carries V1 semantics once decoded.
func (v Version) Envelope() *MessageDescriptor {
	switch v {
	case VersionXML6, VersionBSIFlex335V1:
		return EnvelopeV1
	case VersionBSIFlex335V2:
		return EnvelopeV2
	default:
		return nil
	}
}

// Binary clamps the version to the binary chain: the XML dialect decodes
// into V1 form.
func (v Version) Binary() Version {
	if v == VersionXML6 {
		return VersionBSIFlex335V1
	}
	return v
}

// Next returns the following version in the chain, or VersionUnknown at the
// end.
func (v Version) Next() Version {
	switch v {
	case VersionXML6:
		return VersionBSIFlex335V1
	case VersionBSIFlex335V1:
		return VersionBSIFlex335V2
	default:
		return VersionUnknown
	}
}

// Prev returns the preceding version in the chain, or VersionUnknown at the
// start.
func (v Version) Prev() Version {
	switch v {
	case VersionBSIFlex335V2:
		return VersionBSIFlex335V1
	case VersionBSIFlex335V1:
		return VersionXML6
	default:
		return VersionUnknown
	}
}
