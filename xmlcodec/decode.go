package xmlcodec

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/dstl/Apex-SAPIENT-Middleware/idmap"
	"github.com/dstl/Apex-SAPIENT-Middleware/pkg/timeutil"
	"github.com/dstl/Apex-SAPIENT-Middleware/sapient"
)

// Decoder converts legacy XML elements into decoded messages. Problems are
// reported by accumulating error strings rather than aborting, so one bad
// field does not discard the rest of a message.
type Decoder struct {
	cache *Cache
	ids   *idmap.Registry
}

// NewDecoder builds a decoder over a shared cache and identifier registry.
func NewDecoder(cache *Cache, ids *idmap.Registry) *Decoder {
	return &Decoder{cache: cache, ids: ids}
}

// decodeState carries the per-message context through the recursion.
type decodeState struct {
	// sapientMessage relaxes unknown-element handling for the envelope
	// fields the legacy dialect writes at top level.
	sapientMessage bool
	// nodeULID scopes node-local identifier fields.
	nodeULID string
	errors   []string
}

func (s *decodeState) errorf(format string, args ...any) {
	s.errors = append(s.errors, fmt.Sprintf(format, args...))
}

// DecodeContent fills the envelope's content from the root element, picking
// the content field whose message XML name matches the element tag.
func (d *Decoder) DecodeContent(env *sapient.Message, root *etree.Element, nodeULID string) []string {
	st := &decodeState{sapientMessage: true, nodeULID: nodeULID}
	desc := env.Descriptor()
	for _, fd := range desc.Fields {
		if fd.Kind == sapient.KindMessage && !fd.Repeated && MessageXMLName(fd.Message) == root.Tag {
			d.populateMessage(env.Mutable(fd.Name), root, st)
			return st.errors
		}
	}
	st.errorf("Message type %s not recognised", root.Tag)
	return st.errors
}

// DecodeMessage fills a message of the given descriptor from an element.
func (d *Decoder) DecodeMessage(desc *sapient.MessageDescriptor, elem *etree.Element, nodeULID string) (*sapient.Message, []string) {
	st := &decodeState{sapientMessage: true, nodeULID: nodeULID}
	m := sapient.New(desc)
	d.populateMessage(m, elem, st)
	return m, st.errors
}

// ignorableElement reports whether an unknown child element is one the
// legacy dialect is allowed to carry: the envelope fields it writes at top
// level, or anything alongside a region wrapper.
func ignorableElement(child *etree.Element, elements map[string]*sapient.FieldDescriptor, st *decodeState) bool {
	if !st.sapientMessage {
		return false
	}
	switch child.Tag {
	case "sourceID", "timestamp", "sensorID":
		return true
	}
	if _, ok := elements["region"]; ok {
		return true
	}
	if _, ok := elements["regionArea"]; ok {
		return true
	}
	return false
}

func (d *Decoder) populateMessage(m *sapient.Message, elem *etree.Element, st *decodeState) {
	fm, err := d.cache.maps(m.Descriptor())
	if err != nil {
		st.errorf("%v", err)
		return
	}
	name := m.Descriptor().Name

	if text := strings.TrimSpace(elem.Text()); text != "" {
		if fm.text == nil {
			st.errorf("In message %s, unexpected text in element", name)
		} else {
			d.populateBasicField(m, fm.text, text, st)
		}
	}

	// Unknown attributes are silently ignored; old sensors decorate
	// elements freely.
	for _, attr := range elem.Attr {
		if fd, ok := fm.attrs[attr.Key]; ok {
			d.populateBasicField(m, fd, attr.Value, st)
		}
	}

	for _, child := range elem.ChildElements() {
		fd, ok := fm.elements[child.Tag]
		if !ok {
			if !ignorableElement(child, fm.elements, st) {
				st.errorf("In message %s, unknown element %s", name, child.Tag)
			}
			continue
		}
		if fd.Kind == sapient.KindMessage {
			switch {
			case fd.XMLNested != "":
				d.populateSinglyNested(m, fd, child, st)
			default:
				sub := d.childMessage(m, fd, child.Tag, st)
				d.populateMessage(sub, child, st)
			}
			continue
		}
		if value := strings.TrimSpace(child.Text()); value != "" {
			d.populateBasicField(m, fd, value, st)
		}
	}
}

// childMessage returns the sub-message an element populates, appending for
// repeated fields and flagging duplicated singular elements.
func (d *Decoder) childMessage(m *sapient.Message, fd *sapient.FieldDescriptor, tag string, st *decodeState) *sapient.Message {
	if fd.Repeated {
		sub := sapient.New(fd.Message)
		if err := m.Append(fd.Name, sub); err != nil {
			st.errorf("%v", err)
		}
		return sub
	}
	if m.Has(fd.Name) {
		st.errorf("In message %s, got duplicated element %s", m.Descriptor().Name, tag)
	}
	return m.Mutable(fd.Name)
}

func (d *Decoder) populateSinglyNested(m *sapient.Message, fd *sapient.FieldDescriptor, elem *etree.Element, st *decodeState) {
	for _, child := range elem.ChildElements() {
		if child.Tag != fd.XMLNested {
			st.errorf("In singly-nested field %s got unexpected element %s", fd.Name, child.Tag)
			continue
		}
		sub := d.childMessage(m, fd, child.Tag, st)
		d.populateMessage(sub, child, st)
	}
}

func (d *Decoder) populateBasicField(m *sapient.Message, fd *sapient.FieldDescriptor, value string, st *decodeState) {
	parsed, err := d.parseValue(fd, value, st.nodeULID)
	if err != nil {
		st.errorf("In message %s field %s with value %q got error: %v",
			m.Descriptor().Name, fd.Name, value, err)
		return
	}
	if fd.Repeated {
		if err := m.Append(fd.Name, parsed); err != nil {
			st.errorf("%v", err)
		}
		return
	}
	if m.Has(fd.Name) {
		st.errorf("Got duplicated element for %s", fd.Name)
	}
	if err := m.Set(fd.Name, parsed); err != nil {
		st.errorf("%v", err)
	}
}

func (d *Decoder) parseValue(fd *sapient.FieldDescriptor, value, nodeULID string) (any, error) {
	switch {
	case fd.Kind == sapient.KindTimestamp:
		return timeutil.Parse(value)
	case fd.Kind == sapient.KindBool:
		return strings.EqualFold(strings.TrimSpace(value), "true"), nil
	case fd.Kind == sapient.KindFloat:
		f, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return nil, err
		}
		return float32(f), nil
	case fd.Kind == sapient.KindDouble:
		return strconv.ParseFloat(value, 64)
	case fd.Kind == sapient.KindInt32:
		n, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return nil, err
		}
		return int32(n), nil
	case fd.Kind == sapient.KindInt64:
		if fd.TimeValue {
			t, err := timeutil.Parse(value)
			if err != nil {
				return nil, err
			}
			return timeutil.ToMicros(t), nil
		}
		return strconv.ParseInt(value, 10, 64)
	case fd.Kind == sapient.KindUInt32:
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return nil, err
		}
		return uint32(n), nil
	case fd.Kind == sapient.KindUInt64:
		return strconv.ParseUint(value, 10, 64)
	case fd.Kind == sapient.KindEnum:
		return d.parseEnum(fd, value)
	case fd.Kind == sapient.KindString && fd.IsULID:
		legacy, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return nil, err
		}
		return d.ids.Virtualize(fd.Name, nodeULID, int32(legacy))
	case fd.Kind == sapient.KindString:
		return value, nil
	case fd.Kind == sapient.KindBytes:
		return base64.StdEncoding.DecodeString(value)
	}
	return nil, fmt.Errorf("unknown field kind %s", fd.Kind)
}

func (d *Decoder) parseEnum(fd *sapient.FieldDescriptor, value string) (any, error) {
	values, err := d.cache.enumValues(fd.Enum)
	if err != nil {
		return nil, err
	}
	if n, ok := values[NormalizeEnumText(value)]; ok {
		return n, nil
	}
	candidates := make([]string, 0, len(values))
	for k := range values {
		candidates = append(candidates, k)
	}
	sort.Strings(candidates)
	return nil, fmt.Errorf("Unknown enum value %s, expected one of %s",
		value, strings.Join(candidates, ","))
}
