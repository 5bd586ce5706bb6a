package sapient

import "fmt"

// Kind is the scalar or composite kind of a field.
type Kind int

const (
	KindBool Kind = iota
	KindInt32
	KindInt64
	KindUInt32
	KindUInt64
	KindFloat
	KindDouble
	KindString
	KindBytes
	KindEnum
	KindTimestamp
	KindMessage
)

// String returns the kind name used in error messages.
func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindUInt32:
		return "uint32"
	case KindUInt64:
		return "uint64"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindEnum:
		return "enum"
	case KindTimestamp:
		return "timestamp"
	case KindMessage:
		return "message"
	default:
		return "unknown"
	}
}

// FieldDescriptor describes one field of a message, including the options
// that drive the legacy XML dialect.
type FieldDescriptor struct {
	Name      string
	Number    int32
	Kind      Kind
	Repeated  bool
	Mandatory bool
	// Oneof names the oneof group this field belongs to, if any.
	Oneof string
	// Enum is set for KindEnum fields.
	Enum *EnumDescriptor
	// Message is set for KindMessage fields.
	Message *MessageDescriptor

	// IsULID marks string fields holding external sortable ids which the
	// legacy dialect carries as small integers.
	IsULID bool
	// IsUUID marks string fields holding UUID4 values.
	IsUUID bool
	// TimeValue marks int64 fields holding epoch microseconds which the
	// legacy dialect carries as ISO-8601 text.
	TimeValue bool
	// Tentative marks fields excluded from official-fields output.
	Tentative bool

	// XMLName overrides the derived legacy element or attribute name.
	XMLName string
	// XMLIgnore excludes the field from legacy output except at the
	// all-fields detail level.
	XMLIgnore bool
	// XMLAttribute places the field in an attribute of the parent element.
	XMLAttribute bool
	// XMLText places the field in the parent element's text content.
	XMLText bool
	// XMLNested names a singly-nested wrapper: repeated field elements
	// appear as children of a wrapper element of this name.
	XMLNested string
}

// MessageDescriptor describes one message type.
type MessageDescriptor struct {
	Name string
	// XMLName is the legacy root or element name where it differs from the
	// field name carrying the message.
	XMLName string
	Fields  []*FieldDescriptor
	// MandatoryOneofs lists oneof groups where exactly one member must be
	// set.
	MandatoryOneofs []string

	byName   map[string]*FieldDescriptor
	byNumber map[int32]*FieldDescriptor
}

// EnumValue is one member of an enum, with its legacy dialect spelling.
type EnumValue struct {
	Name    string
	Number  int32
	XMLName string
}

// EnumDescriptor describes an enum type.
type EnumDescriptor struct {
	Name   string
	Values []EnumValue

	byNumber map[int32]*EnumValue
	byName   map[string]*EnumValue
}

func newMessage(name string, fields ...*FieldDescriptor) *MessageDescriptor {
	md := &MessageDescriptor{
		Name:     name,
		Fields:   fields,
		byName:   make(map[string]*FieldDescriptor, len(fields)),
		byNumber: make(map[int32]*FieldDescriptor, len(fields)),
	}
	for _, f := range fields {
		if _, ok := md.byName[f.Name]; ok {
			panic(fmt.Sprintf("duplicate field name %s.%s", name, f.Name))
		}
		if _, ok := md.byNumber[f.Number]; ok {
			panic(fmt.Sprintf("duplicate field number %s.%d", name, f.Number))
		}
		md.byName[f.Name] = f
		md.byNumber[f.Number] = f
	}
	return md
}

func newEnum(name string, values ...EnumValue) *EnumDescriptor {
	ed := &EnumDescriptor{
		Name:     name,
		Values:   values,
		byNumber: make(map[int32]*EnumValue, len(values)),
		byName:   make(map[string]*EnumValue, len(values)),
	}
	for i := range values {
		v := &ed.Values[i]
		ed.byNumber[v.Number] = v
		ed.byName[v.Name] = v
	}
	return ed
}

// FieldByName returns the named field, or nil.
func (md *MessageDescriptor) FieldByName(name string) *FieldDescriptor {
	return md.byName[name]
}

// FieldByNumber returns the field with the given number, or nil.
func (md *MessageDescriptor) FieldByNumber(n int32) *FieldDescriptor {
	return md.byNumber[n]
}

// OneofFields returns the members of the named oneof group in declaration
// order.
func (md *MessageDescriptor) OneofFields(group string) []*FieldDescriptor {
	var out []*FieldDescriptor
	for _, f := range md.Fields {
		if f.Oneof == group {
			out = append(out, f)
		}
	}
	return out
}

// ValueByNumber returns the enum member with the given number, or nil.
func (ed *EnumDescriptor) ValueByNumber(n int32) *EnumValue {
	return ed.byNumber[n]
}

// ValueByName returns the enum member with the given name, or nil.
func (ed *EnumDescriptor) ValueByName(name string) *EnumValue {
	return ed.byName[name]
}

// NameOf returns the name for an enum number, or an empty string when the
// number is not a member.
func (ed *EnumDescriptor) NameOf(n int32) string {
	if v := ed.byNumber[n]; v != nil {
		return v.Name
	}
	return ""
}
