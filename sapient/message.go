package sapient

import (
	"fmt"
	"time"
)

// Message is a dynamic message value: field values keyed by field name,
// typed according to the owning descriptor. Unknown wire fields survive a
// decode/encode round trip untouched.
type Message struct {
	desc    *MessageDescriptor
	fields  map[string]any
	unknown []UnknownField
}

// UnknownField is a wire field not present in the descriptor, retained
// verbatim for round-tripping and flagged by validation.
type UnknownField struct {
	Number   int32
	WireType int
	// Raw is the complete encoded field including its tag.
	Raw []byte
}

// Describe returns a short human-readable summary of the unknown field.
func (u UnknownField) Describe() string {
	var wt string
	switch u.WireType {
	case wireVarint:
		wt = "varint"
	case wireFixed64:
		wt = "64-bit"
	case wireBytes:
		wt = "length-delimited"
	case wireFixed32:
		wt = "32-bit"
	default:
		wt = fmt.Sprintf("wire type %d", u.WireType)
	}
	return fmt.Sprintf("field %d (%s)", u.Number, wt)
}

// New creates an empty message for the given descriptor.
func New(desc *MessageDescriptor) *Message {
	return &Message{desc: desc, fields: make(map[string]any)}
}

// Descriptor returns the message's descriptor.
func (m *Message) Descriptor() *MessageDescriptor { return m.desc }

// Has reports whether the named field has a value. Repeated fields count as
// set once they have at least one element.
func (m *Message) Has(name string) bool {
	v, ok := m.fields[name]
	if !ok {
		return false
	}
	if list, isList := v.([]any); isList {
		return len(list) > 0
	}
	return true
}

// Get returns the raw value of the named field, or nil when unset.
// Repeated fields return []any.
func (m *Message) Get(name string) any {
	return m.fields[name]
}

// Set assigns a value to a singular field, checking it against the
// descriptor. Setting a member of a oneof group clears its siblings.
func (m *Message) Set(name string, v any) error {
	fd := m.desc.FieldByName(name)
	if fd == nil {
		return fmt.Errorf("%s has no field %q", m.desc.Name, name)
	}
	if fd.Repeated {
		return fmt.Errorf("%s.%s is repeated, use Append", m.desc.Name, name)
	}
	if err := checkValue(fd, v); err != nil {
		return err
	}
	if fd.Oneof != "" {
		for _, sibling := range m.desc.OneofFields(fd.Oneof) {
			if sibling.Name != name {
				delete(m.fields, sibling.Name)
			}
		}
	}
	m.fields[name] = v
	return nil
}

// Append adds an element to a repeated field, checking it against the
// descriptor.
func (m *Message) Append(name string, v any) error {
	fd := m.desc.FieldByName(name)
	if fd == nil {
		return fmt.Errorf("%s has no field %q", m.desc.Name, name)
	}
	if !fd.Repeated {
		return fmt.Errorf("%s.%s is singular, use Set", m.desc.Name, name)
	}
	if err := checkValue(fd, v); err != nil {
		return err
	}
	list, _ := m.fields[name].([]any)
	m.fields[name] = append(list, v)
	return nil
}

// Clear removes any value from the named field.
func (m *Message) Clear(name string) {
	delete(m.fields, name)
}

// List returns the elements of a repeated field, nil when empty.
func (m *Message) List(name string) []any {
	list, _ := m.fields[name].([]any)
	return list
}

// WhichOneof returns the name of the set member of a oneof group, or an
// empty string when none is set.
func (m *Message) WhichOneof(group string) string {
	for _, f := range m.desc.OneofFields(group) {
		if m.Has(f.Name) {
			return f.Name
		}
	}
	return ""
}

// Kind returns the set member of the "content" oneof. Only meaningful on
// envelope messages.
func (m *Message) Kind() string {
	return m.WhichOneof("content")
}

// Mutable returns the singular sub-message of the named field, creating it
// if unset. Panics when the field is not a singular message field; callers
// pass descriptor-known names.
func (m *Message) Mutable(name string) *Message {
	fd := m.desc.FieldByName(name)
	if fd == nil || fd.Kind != KindMessage || fd.Repeated {
		panic(fmt.Sprintf("%s.%s is not a singular message field", m.desc.Name, name))
	}
	if sub, ok := m.fields[name].(*Message); ok {
		return sub
	}
	sub := New(fd.Message)
	if fd.Oneof != "" {
		for _, sibling := range m.desc.OneofFields(fd.Oneof) {
			if sibling.Name != name {
				delete(m.fields, sibling.Name)
			}
		}
	}
	m.fields[name] = sub
	return sub
}

// Typed accessors; each returns the zero value when the field is unset or
// holds a different type.

func (m *Message) GetString(name string) string {
	v, _ := m.fields[name].(string)
	return v
}

func (m *Message) GetBool(name string) bool {
	v, _ := m.fields[name].(bool)
	return v
}

func (m *Message) GetInt32(name string) int32 {
	v, _ := m.fields[name].(int32)
	return v
}

func (m *Message) GetInt64(name string) int64 {
	v, _ := m.fields[name].(int64)
	return v
}

func (m *Message) GetDouble(name string) float64 {
	v, _ := m.fields[name].(float64)
	return v
}

func (m *Message) GetTime(name string) time.Time {
	v, _ := m.fields[name].(time.Time)
	return v
}

func (m *Message) GetMessage(name string) *Message {
	v, _ := m.fields[name].(*Message)
	return v
}

func (m *Message) GetBytes(name string) []byte {
	v, _ := m.fields[name].([]byte)
	return v
}

// GetEnumName returns the symbolic name of an enum field's value, or an
// empty string when unset or out of range.
func (m *Message) GetEnumName(name string) string {
	fd := m.desc.FieldByName(name)
	if fd == nil || fd.Enum == nil {
		return ""
	}
	n, ok := m.fields[name].(int32)
	if !ok {
		return ""
	}
	return fd.Enum.NameOf(n)
}

// Unknown returns the retained unknown wire fields.
func (m *Message) Unknown() []UnknownField { return m.unknown }

func (m *Message) addUnknown(u UnknownField) {
	m.unknown = append(m.unknown, u)
}

// checkValue verifies the Go type of v against the field kind. Enum values
// are range-checked only by the validator, not here, so unknown wire
// numbers survive decoding.
func checkValue(fd *FieldDescriptor, v any) error {
	ok := false
	switch fd.Kind {
	case KindBool:
		_, ok = v.(bool)
	case KindInt32, KindEnum:
		_, ok = v.(int32)
	case KindInt64:
		_, ok = v.(int64)
	case KindUInt32:
		_, ok = v.(uint32)
	case KindUInt64:
		_, ok = v.(uint64)
	case KindFloat:
		_, ok = v.(float32)
	case KindDouble:
		_, ok = v.(float64)
	case KindString:
		_, ok = v.(string)
	case KindBytes:
		_, ok = v.([]byte)
	case KindTimestamp:
		_, ok = v.(time.Time)
	case KindMessage:
		var sub *Message
		sub, ok = v.(*Message)
		if ok && sub.desc != fd.Message {
			return fmt.Errorf("field %s wants message %s, got %s",
				fd.Name, fd.Message.Name, sub.desc.Name)
		}
	}
	if !ok {
		return fmt.Errorf("field %s wants %s, got %T", fd.Name, fd.Kind, v)
	}
	return nil
}
