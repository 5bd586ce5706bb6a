// Package validate checks decoded SAPIENT messages against the schema's
// mandatory-field, identifier-format and enum rules, and against
// receipt-time sanity windows for message and detection timestamps.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dstl/Apex-SAPIENT-Middleware/sapient"
)

// CheckType identifies one category of validation.
type CheckType int

const (
	// CheckMandatoryFields flags missing mandatory singular fields.
	CheckMandatoryFields CheckType = iota + 1
	// CheckMandatoryOneofs flags mandatory oneof groups with no member set.
	CheckMandatoryOneofs
	// CheckMandatoryRepeated flags missing mandatory repeated fields.
	CheckMandatoryRepeated
	// CheckNoUnknownFields flags wire fields absent from the descriptor.
	CheckNoUnknownFields
	// CheckNoUnknownEnumValues flags numeric enum values outside the enum.
	CheckNoUnknownEnumValues
	// CheckIDFormat flags ULID and UUID fields in the wrong format.
	CheckIDFormat
	// CheckMessageTimestamp flags message timestamps far from receipt time.
	CheckMessageTimestamp
	// CheckDetectionTimestamp flags implausibly fast or reordered detections.
	CheckDetectionTimestamp
	// CheckICDVersion flags icd_version values outside the supported list.
	CheckICDVersion
)

var checkNames = map[CheckType]string{
	CheckMandatoryFields:     "mandatory fields present",
	CheckMandatoryOneofs:     "mandatory oneof present",
	CheckMandatoryRepeated:   "mandatory repeated present",
	CheckNoUnknownFields:     "no unknown fields",
	CheckNoUnknownEnumValues: "no unknown enum values",
	CheckIDFormat:            "id format valid",
	CheckMessageTimestamp:    "message timestamp reasonable",
	CheckDetectionTimestamp:  "detection timestamp reasonable",
	CheckICDVersion:          "supported icd version",
}

func (c CheckType) String() string {
	if name, ok := checkNames[c]; ok {
		return name
	}
	return fmt.Sprintf("check %d", int(c))
}

// ParseCheckType parses a configured check name such as
// "MANDATORY_FIELDS_PRESENT".
func ParseCheckType(s string) (CheckType, error) {
	want := strings.ToLower(strings.ReplaceAll(s, "_", " "))
	for c, name := range checkNames {
		if name == want {
			return c, nil
		}
	}
	return 0, fmt.Errorf("invalid validation type %q", s)
}

// AllChecks enables every category.
func AllChecks() map[CheckType]bool {
	enabled := make(map[CheckType]bool, len(checkNames))
	for c := range checkNames {
		enabled[c] = true
	}
	return enabled
}

// Error is one validation finding. Path locates the offending field from
// the envelope root.
type Error struct {
	Type    CheckType
	Message string
	Path    []string
}

// String renders the finding as "path (check name): message".
func (e Error) String() string {
	path := "(root)"
	if len(e.Path) > 0 {
		path = strings.Join(e.Path, ".")
	}
	return fmt.Sprintf("%s (%s): %s", path, e.Type, e.Message)
}

// Options configures a Validator.
type Options struct {
	// Checks enables validation categories; an empty map disables
	// validation entirely.
	Checks map[CheckType]bool
	// StrictIDFormat requires canonical case for ULIDs and canonical
	// lower-case UUID v4 form. When false, case is ignored.
	StrictIDFormat bool
	// MessageTimestampMin and MessageTimestampMax bound the difference
	// between the embedded message timestamp and the receipt time.
	MessageTimestampMin time.Duration
	MessageTimestampMax time.Duration
	// DetectionMinimumGap is the smallest plausible interval between
	// consecutive detection reports from one connection.
	DetectionMinimumGap time.Duration
	// SupportedICDVersions lists accepted icd_version strings.
	SupportedICDVersions []string
}

// DefaultOptions mirrors the deployed defaults: every check on, strict id
// formats, a [-0.9s, +0.1s] timestamp window and an 80ms detection gap.
func DefaultOptions() Options {
	return Options{
		Checks:              AllChecks(),
		StrictIDFormat:      true,
		MessageTimestampMin: -900 * time.Millisecond,
		MessageTimestampMax: 100 * time.Millisecond,
		DetectionMinimumGap: 80 * time.Millisecond,
		SupportedICDVersions: []string{
			sapient.VersionBSIFlex335V1.String(),
			sapient.VersionBSIFlex335V2.String(),
		},
	}
}

var (
	ulidStrict  = regexp.MustCompile(`^[0-7][0-9A-HJKMNP-TV-Z]{25}$`)
	ulidLenient = regexp.MustCompile(`(?i)^[0-7][0-9A-HJKMNP-TV-Z]{25}$`)
	uuid4Strict = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	uuidLenient = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

// Validator applies the configured checks. The detection gap check is
// stateful, so each connection owns one Validator.
type Validator struct {
	opts                  Options
	previousDetectionTime time.Time
	hasPreviousDetection  bool
}

// New builds a validator from options.
func New(opts Options) *Validator {
	return &Validator{opts: opts}
}

// Required reports whether any check is enabled.
func (v *Validator) Required() bool {
	return len(v.opts.Checks) > 0
}

func (v *Validator) enabled(c CheckType) bool {
	return v.opts.Checks[c]
}

// ValidateEnvelope checks a decoded envelope against the receipt time.
// When contents is false only the timestamp and detection-rate checks run;
// the legacy XML path uses this, since its schema rules differ.
func (v *Validator) ValidateEnvelope(m *sapient.Message, receivedAt time.Time, contents bool) []Error {
	var errs []Error
	if v.enabled(CheckMessageTimestamp) {
		errs = v.checkMessageTimestamp(m, receivedAt, errs)
	}
	if v.enabled(CheckDetectionTimestamp) && m.Has("detection_report") {
		errs = v.checkDetectionTimestamp(m, errs)
	}
	if contents {
		errs = v.validateMessage(m, nil, errs)
	}
	return errs
}

func (v *Validator) checkMessageTimestamp(m *sapient.Message, receivedAt time.Time, errs []Error) []Error {
	delta := m.GetTime("timestamp").Sub(receivedAt)
	if delta < v.opts.MessageTimestampMin {
		errs = append(errs, Error{
			Type:    CheckMessageTimestamp,
			Message: fmt.Sprintf("Timestamp delta %s < %s", delta, v.opts.MessageTimestampMin),
		})
	}
	if delta > v.opts.MessageTimestampMax {
		errs = append(errs, Error{
			Type:    CheckMessageTimestamp,
			Message: fmt.Sprintf("Timestamp delta %s > %s", delta, v.opts.MessageTimestampMax),
		})
	}
	return errs
}

func (v *Validator) checkDetectionTimestamp(m *sapient.Message, errs []Error) []Error {
	at := m.GetTime("timestamp")
	if v.hasPreviousDetection {
		delta := at.Sub(v.previousDetectionTime)
		if delta > 0 && delta < v.opts.DetectionMinimumGap {
			errs = append(errs, Error{
				Type:    CheckDetectionTimestamp,
				Message: fmt.Sprintf("Detection time delta %s too small", delta),
			})
		}
		if delta < 0 {
			errs = append(errs, Error{
				Type: CheckDetectionTimestamp,
				Message: fmt.Sprintf("Detection time %s earlier than previous %s",
					at.Format(time.RFC3339Nano), v.previousDetectionTime.Format(time.RFC3339Nano)),
			})
		}
	}
	v.previousDetectionTime = at
	v.hasPreviousDetection = true
	return errs
}

func (v *Validator) validateMessage(m *sapient.Message, path []string, errs []Error) []Error {
	desc := m.Descriptor()

	if v.enabled(CheckNoUnknownFields) {
		for _, u := range m.Unknown() {
			errs = append(errs, Error{
				Type:    CheckNoUnknownFields,
				Message: "Unknown " + u.Describe(),
				Path:    path,
			})
		}
	}

	if v.enabled(CheckMandatoryOneofs) {
		for _, group := range desc.MandatoryOneofs {
			if m.WhichOneof(group) == "" {
				errs = append(errs, Error{
					Type:    CheckMandatoryOneofs,
					Message: fmt.Sprintf("Missing mandatory OneOf field: %s", group),
					Path:    path,
				})
			}
		}
	}

	for _, fd := range desc.Fields {
		errs = v.validateField(m, fd, append(path[:len(path):len(path)], fd.Name), errs)
	}
	return errs
}

func (v *Validator) validateField(m *sapient.Message, fd *sapient.FieldDescriptor, path []string, errs []Error) []Error {
	present := m.Has(fd.Name)

	if v.enabled(CheckMandatoryFields) && fd.Mandatory && !fd.Repeated && !present {
		errs = append(errs, Error{
			Type:    CheckMandatoryFields,
			Message: fmt.Sprintf("Missing mandatory field: %s", fd.Name),
			Path:    path,
		})
	}
	if v.enabled(CheckMandatoryRepeated) && fd.Mandatory && fd.Repeated && !present {
		errs = append(errs, Error{
			Type:    CheckMandatoryRepeated,
			Message: fmt.Sprintf("Missing mandatory repeated field: %s", fd.Name),
			Path:    path,
		})
	}

	if v.enabled(CheckICDVersion) && fd.Kind == sapient.KindString &&
		strings.Contains(fd.Name, "icd_version") && present {
		// Tolerate nodes that report "BSI_Flex_335_v1.0" with underscores.
		adjusted := strings.ReplaceAll(m.GetString(fd.Name), "_", " ")
		supported := false
		for _, s := range v.opts.SupportedICDVersions {
			if adjusted == s {
				supported = true
				break
			}
		}
		if !supported {
			errs = append(errs, Error{
				Type:    CheckICDVersion,
				Message: fmt.Sprintf("Unsupported ICD version: %s: %s", fd.Name, m.GetString(fd.Name)),
				Path:    path,
			})
		}
	}

	if v.enabled(CheckIDFormat) && !fd.Repeated && present {
		if fd.IsULID {
			errs = v.checkULID(m.GetString(fd.Name), path, errs)
		}
		if fd.IsUUID {
			errs = v.checkUUID(m.GetString(fd.Name), path, errs)
		}
	}

	if v.enabled(CheckNoUnknownEnumValues) && fd.Kind == sapient.KindEnum && !fd.Repeated && present {
		n := m.GetInt32(fd.Name)
		if fd.Enum.ValueByNumber(n) == nil {
			errs = append(errs, Error{
				Type:    CheckNoUnknownEnumValues,
				Message: fmt.Sprintf("Unknown enum value: %d", n),
				Path:    path,
			})
		}
	}

	if fd.Kind == sapient.KindMessage && present {
		if fd.Repeated {
			for i, elem := range m.List(fd.Name) {
				elemPath := append(path[:len(path):len(path)], fmt.Sprintf("%d", i))
				errs = v.validateMessage(elem.(*sapient.Message), elemPath, errs)
			}
		} else {
			errs = v.validateMessage(m.GetMessage(fd.Name), path, errs)
		}
	}
	return errs
}

func (v *Validator) checkULID(value string, path []string, errs []Error) []Error {
	re := ulidStrict
	if !v.opts.StrictIDFormat {
		re = ulidLenient
	}
	if !re.MatchString(value) {
		errs = append(errs, Error{
			Type:    CheckIDFormat,
			Message: fmt.Sprintf("Invalid ULID: %s", value),
			Path:    path,
		})
	}
	return errs
}

func (v *Validator) checkUUID(value string, path []string, errs []Error) []Error {
	re := uuid4Strict
	if !v.opts.StrictIDFormat {
		re = uuidLenient
	}
	if !re.MatchString(value) {
		errs = append(errs, Error{
			Type:    CheckIDFormat,
			Message: fmt.Sprintf("Invalid UUID: %s", value),
			Path:    path,
		})
	}
	return errs
}

// Summarize joins findings into the single description used for stored
// error records.
func Summarize(errs []Error) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.String())
	}
	return fmt.Sprintf("Validation %d errors:\n%s", len(errs), strings.Join(parts, "\n"))
}
