package sapient

import (
	"fmt"
	"time"
)

// ToMap converts the message to its generic structural form: a map keyed by
// field name with scalars as native Go values, enums as symbolic names,
// sub-messages as nested maps and repeated fields as slices. Unknown wire
// fields are not carried; the validator flags them before translation.
func ToMap(m *Message) map[string]any {
	out := make(map[string]any, len(m.fields))
	for _, fd := range m.desc.Fields {
		v, ok := m.fields[fd.Name]
		if !ok {
			continue
		}
		if fd.Repeated {
			list := v.([]any)
			elems := make([]any, 0, len(list))
			for _, elem := range list {
				elems = append(elems, valueToMap(fd, elem))
			}
			out[fd.Name] = elems
			continue
		}
		out[fd.Name] = valueToMap(fd, v)
	}
	return out
}

func valueToMap(fd *FieldDescriptor, v any) any {
	switch fd.Kind {
	case KindEnum:
		n := v.(int32)
		if name := fd.Enum.NameOf(n); name != "" {
			return name
		}
		return n
	case KindMessage:
		return ToMap(v.(*Message))
	default:
		return v
	}
}

// FromMap builds a message of the given descriptor from its generic
// structural form. Unknown keys, unknown enum names and type mismatches are
// errors; this is the check that makes a translation step's output
// well-formed against the target version.
func FromMap(desc *MessageDescriptor, form map[string]any) (*Message, error) {
	m := New(desc)
	for key, v := range form {
		fd := desc.FieldByName(key)
		if fd == nil {
			return nil, fmt.Errorf("message %s has no field %q", desc.Name, key)
		}
		if fd.Repeated {
			list, ok := v.([]any)
			if !ok {
				return nil, fmt.Errorf("%s.%s wants a list, got %T", desc.Name, key, v)
			}
			for _, elem := range list {
				decoded, err := valueFromMap(desc, fd, elem)
				if err != nil {
					return nil, err
				}
				if err := m.Append(key, decoded); err != nil {
					return nil, err
				}
			}
			continue
		}
		decoded, err := valueFromMap(desc, fd, v)
		if err != nil {
			return nil, err
		}
		if err := m.Set(key, decoded); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func valueFromMap(desc *MessageDescriptor, fd *FieldDescriptor, v any) (any, error) {
	switch fd.Kind {
	case KindEnum:
		switch val := v.(type) {
		case string:
			member := fd.Enum.ValueByName(val)
			if member == nil {
				return nil, fmt.Errorf("%s.%s: enum %s has no value %q",
					desc.Name, fd.Name, fd.Enum.Name, val)
			}
			return member.Number, nil
		case int32:
			return val, nil
		case int:
			return int32(val), nil
		}
		return nil, fmt.Errorf("%s.%s wants an enum name, got %T", desc.Name, fd.Name, v)
	case KindMessage:
		sub, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s.%s wants a map, got %T", desc.Name, fd.Name, v)
		}
		return FromMap(fd.Message, sub)
	case KindInt32:
		return coerceInt32(desc, fd, v)
	case KindInt64:
		switch val := v.(type) {
		case int64:
			return val, nil
		case int:
			return int64(val), nil
		case int32:
			return int64(val), nil
		}
	case KindUInt32:
		if val, ok := v.(uint32); ok {
			return val, nil
		}
		if val, ok := v.(int); ok && val >= 0 {
			return uint32(val), nil
		}
	case KindUInt64:
		if val, ok := v.(uint64); ok {
			return val, nil
		}
		if val, ok := v.(int); ok && val >= 0 {
			return uint64(val), nil
		}
	case KindFloat:
		switch val := v.(type) {
		case float32:
			return val, nil
		case float64:
			return float32(val), nil
		}
	case KindDouble:
		switch val := v.(type) {
		case float64:
			return val, nil
		case float32:
			return float64(val), nil
		case int:
			return float64(val), nil
		}
	case KindBool:
		if val, ok := v.(bool); ok {
			return val, nil
		}
	case KindString:
		if val, ok := v.(string); ok {
			return val, nil
		}
	case KindBytes:
		if val, ok := v.([]byte); ok {
			return val, nil
		}
	case KindTimestamp:
		if val, ok := v.(time.Time); ok {
			return val, nil
		}
	}
	return nil, fmt.Errorf("%s.%s wants %s, got %T", desc.Name, fd.Name, fd.Kind, v)
}

func coerceInt32(desc *MessageDescriptor, fd *FieldDescriptor, v any) (any, error) {
	switch val := v.(type) {
	case int32:
		return val, nil
	case int:
		return int32(val), nil
	case int64:
		return int32(val), nil
	}
	return nil, fmt.Errorf("%s.%s wants %s, got %T", desc.Name, fd.Name, fd.Kind, v)
}
