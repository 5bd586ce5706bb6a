package sapient

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Protobuf wire types.
const (
	wireVarint  = 0
	wireFixed64 = 1
	wireBytes   = 2
	wireFixed32 = 5
)

// Marshal encodes the message in protobuf wire format. Fields are written
// in descriptor order followed by retained unknown fields.
func Marshal(m *Message) ([]byte, error) {
	var buf []byte
	return appendMessage(buf, m)
}

func appendMessage(buf []byte, m *Message) ([]byte, error) {
	var err error
	for _, fd := range m.desc.Fields {
		v, ok := m.fields[fd.Name]
		if !ok {
			continue
		}
		if fd.Repeated {
			for _, elem := range v.([]any) {
				if buf, err = appendField(buf, fd, elem); err != nil {
					return nil, err
				}
			}
			continue
		}
		if buf, err = appendField(buf, fd, v); err != nil {
			return nil, err
		}
	}
	for _, u := range m.unknown {
		buf = append(buf, u.Raw...)
	}
	return buf, nil
}

func appendField(buf []byte, fd *FieldDescriptor, v any) ([]byte, error) {
	switch fd.Kind {
	case KindBool:
		buf = appendTag(buf, fd.Number, wireVarint)
		if v.(bool) {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case KindInt32, KindEnum:
		buf = appendTag(buf, fd.Number, wireVarint)
		buf = binary.AppendUvarint(buf, uint64(int64(v.(int32))))
	case KindInt64:
		buf = appendTag(buf, fd.Number, wireVarint)
		buf = binary.AppendUvarint(buf, uint64(v.(int64)))
	case KindUInt32:
		buf = appendTag(buf, fd.Number, wireVarint)
		buf = binary.AppendUvarint(buf, uint64(v.(uint32)))
	case KindUInt64:
		buf = appendTag(buf, fd.Number, wireVarint)
		buf = binary.AppendUvarint(buf, v.(uint64))
	case KindFloat:
		buf = appendTag(buf, fd.Number, wireFixed32)
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v.(float32)))
	case KindDouble:
		buf = appendTag(buf, fd.Number, wireFixed64)
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v.(float64)))
	case KindString:
		buf = appendTag(buf, fd.Number, wireBytes)
		s := v.(string)
		buf = binary.AppendUvarint(buf, uint64(len(s)))
		buf = append(buf, s...)
	case KindBytes:
		buf = appendTag(buf, fd.Number, wireBytes)
		b := v.([]byte)
		buf = binary.AppendUvarint(buf, uint64(len(b)))
		buf = append(buf, b...)
	case KindTimestamp:
		buf = appendTag(buf, fd.Number, wireBytes)
		t := v.(time.Time)
		var ts []byte
		if secs := t.Unix(); secs != 0 {
			ts = appendTag(ts, 1, wireVarint)
			ts = binary.AppendUvarint(ts, uint64(secs))
		}
		if nanos := int64(t.Nanosecond()); nanos != 0 {
			ts = appendTag(ts, 2, wireVarint)
			ts = binary.AppendUvarint(ts, uint64(nanos))
		}
		buf = binary.AppendUvarint(buf, uint64(len(ts)))
		buf = append(buf, ts...)
	case KindMessage:
		sub, err := appendMessage(nil, v.(*Message))
		if err != nil {
			return nil, err
		}
		buf = appendTag(buf, fd.Number, wireBytes)
		buf = binary.AppendUvarint(buf, uint64(len(sub)))
		buf = append(buf, sub...)
	default:
		return nil, fmt.Errorf("field %s has unsupported kind %s", fd.Name, fd.Kind)
	}
	return buf, nil
}

func appendTag(buf []byte, number int32, wireType int) []byte {
	return binary.AppendUvarint(buf, uint64(number)<<3|uint64(wireType))
}

// Unmarshal decodes protobuf wire data into a message of the given
// descriptor. Fields absent from the descriptor are retained as unknown
// fields; later occurrences of a singular field win, repeated fields
// accumulate. Repeated scalars are accepted in both packed and unpacked
// form.
func Unmarshal(desc *MessageDescriptor, data []byte) (*Message, error) {
	m := New(desc)
	for len(data) > 0 {
		tagStart := data
		tag, n := binary.Uvarint(data)
		if n <= 0 {
			return nil, fmt.Errorf("%s: truncated tag", desc.Name)
		}
		data = data[n:]
		number := int32(tag >> 3)
		wireType := int(tag & 7)
		if number <= 0 {
			return nil, fmt.Errorf("%s: invalid field number %d", desc.Name, number)
		}

		value, rest, err := splitValue(data, wireType)
		if err != nil {
			return nil, fmt.Errorf("%s field %d: %w", desc.Name, number, err)
		}

		fd := desc.FieldByNumber(number)
		packed := fd != nil && fd.Repeated && wireType == wireBytes && packable(fd.Kind)
		if fd == nil || (wireTypeFor(fd.Kind) != wireType && !packed) {
			rawLen := len(tagStart) - len(rest)
			m.addUnknown(UnknownField{
				Number:   number,
				WireType: wireType,
				Raw:      append([]byte(nil), tagStart[:rawLen]...),
			})
			data = rest
			continue
		}
		if packed {
			if err := appendPacked(m, fd, value); err != nil {
				return nil, fmt.Errorf("%s.%s: %w", desc.Name, fd.Name, err)
			}
			data = rest
			continue
		}

		decoded, err := decodeValue(fd, value)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", desc.Name, fd.Name, err)
		}
		if fd.Repeated {
			err = m.Append(fd.Name, decoded)
		} else {
			err = m.Set(fd.Name, decoded)
		}
		if err != nil {
			return nil, err
		}
		data = rest
	}
	return m, nil
}

// splitValue separates one wire value from the remainder of the buffer. For
// length-delimited values the returned slice is the payload without its
// length prefix.
func splitValue(data []byte, wireType int) (value, rest []byte, err error) {
	switch wireType {
	case wireVarint:
		_, n := binary.Uvarint(data)
		if n <= 0 {
			return nil, nil, fmt.Errorf("truncated varint")
		}
		return data[:n], data[n:], nil
	case wireFixed64:
		if len(data) < 8 {
			return nil, nil, fmt.Errorf("truncated fixed64")
		}
		return data[:8], data[8:], nil
	case wireFixed32:
		if len(data) < 4 {
			return nil, nil, fmt.Errorf("truncated fixed32")
		}
		return data[:4], data[4:], nil
	case wireBytes:
		length, n := binary.Uvarint(data)
		if n <= 0 || uint64(len(data)-n) < length {
			return nil, nil, fmt.Errorf("truncated length-delimited value")
		}
		return data[n : n+int(length)], data[n+int(length):], nil
	default:
		return nil, nil, fmt.Errorf("unsupported wire type %d", wireType)
	}
}

// packable reports whether a repeated field of this kind may arrive as one
// length-delimited run of scalar values. Standard proto3 encoders pack
// repeated scalars and enums, so the decoder has to accept both forms.
func packable(k Kind) bool {
	switch k {
	case KindString, KindBytes, KindTimestamp, KindMessage:
		return false
	}
	return true
}

// appendPacked decodes a packed run of scalar values into the field's list.
func appendPacked(m *Message, fd *FieldDescriptor, payload []byte) error {
	elemType := wireTypeFor(fd.Kind)
	for len(payload) > 0 {
		raw, rest, err := splitValue(payload, elemType)
		if err != nil {
			return err
		}
		decoded, err := decodeValue(fd, raw)
		if err != nil {
			return err
		}
		if err := m.Append(fd.Name, decoded); err != nil {
			return err
		}
		payload = rest
	}
	return nil
}

func wireTypeFor(k Kind) int {
	switch k {
	case KindBool, KindInt32, KindInt64, KindUInt32, KindUInt64, KindEnum:
		return wireVarint
	case KindFloat:
		return wireFixed32
	case KindDouble:
		return wireFixed64
	default:
		return wireBytes
	}
}

func decodeValue(fd *FieldDescriptor, value []byte) (any, error) {
	switch fd.Kind {
	case KindBool:
		v, _ := binary.Uvarint(value)
		return v != 0, nil
	case KindInt32, KindEnum:
		v, _ := binary.Uvarint(value)
		return int32(int64(v)), nil
	case KindInt64:
		v, _ := binary.Uvarint(value)
		return int64(v), nil
	case KindUInt32:
		v, _ := binary.Uvarint(value)
		return uint32(v), nil
	case KindUInt64:
		v, _ := binary.Uvarint(value)
		return v, nil
	case KindFloat:
		return math.Float32frombits(binary.LittleEndian.Uint32(value)), nil
	case KindDouble:
		return math.Float64frombits(binary.LittleEndian.Uint64(value)), nil
	case KindString:
		return string(value), nil
	case KindBytes:
		return append([]byte(nil), value...), nil
	case KindTimestamp:
		return decodeTimestamp(value)
	case KindMessage:
		return Unmarshal(fd.Message, value)
	default:
		return nil, fmt.Errorf("unsupported kind %s", fd.Kind)
	}
}

func decodeTimestamp(data []byte) (time.Time, error) {
	var secs, nanos int64
	for len(data) > 0 {
		tag, n := binary.Uvarint(data)
		if n <= 0 {
			return time.Time{}, fmt.Errorf("truncated timestamp")
		}
		data = data[n:]
		value, rest, err := splitValue(data, int(tag&7))
		if err != nil {
			return time.Time{}, err
		}
		v, _ := binary.Uvarint(value)
		switch tag >> 3 {
		case 1:
			secs = int64(v)
		case 2:
			nanos = int64(v)
		}
		data = rest
	}
	return time.Unix(secs, nanos).UTC(), nil
}
