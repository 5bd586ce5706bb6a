package xmlcodec

import (
	"encoding/base64"
	"errors"
	"strconv"
	"time"

	"github.com/beevik/etree"

	"github.com/dstl/Apex-SAPIENT-Middleware/idmap"
	"github.com/dstl/Apex-SAPIENT-Middleware/pkg/timeutil"
	"github.com/dstl/Apex-SAPIENT-Middleware/sapient"
)

var (
	errNoContent       = errors.New("xmlcodec: envelope has no content set")
	errUnsupportedKind = errors.New("xmlcodec: unsupported field kind")
)

// WhichFields selects the level of detail included in XML output.
type WhichFields int

const (
	// FieldsOfficial emits only fields in the official standard.
	FieldsOfficial WhichFields = iota
	// FieldsTentative also emits fields submitted for inclusion.
	FieldsTentative
	// FieldsAll emits everything.
	FieldsAll
)

// Encoder renders decoded messages as legacy XML elements. ULID fields are
// written as their legacy integers, assigning a fresh integer when a ULID
// has never been seen before.
type Encoder struct {
	ids   *idmap.Registry
	which WhichFields
}

// NewEncoder builds an encoder over the identifier registry.
func NewEncoder(ids *idmap.Registry, which WhichFields) *Encoder {
	return &Encoder{ids: ids, which: which}
}

// EncodeContent renders the single set content field of an envelope as an
// element. The envelope's own fields (timestamp, identifiers) are the
// caller's concern; the legacy dialect writes them inside the content.
func (e *Encoder) EncodeContent(env *sapient.Message, nodeULID string) (*etree.Element, error) {
	kind := env.Kind()
	if kind == "" {
		return nil, errNoContent
	}
	return e.Encode(env.GetMessage(kind), nodeULID)
}

// Encode renders a message as an element named after its descriptor.
func (e *Encoder) Encode(m *sapient.Message, nodeULID string) (*etree.Element, error) {
	elem := etree.NewElement(MessageXMLName(m.Descriptor()))
	if err := e.populateElement(m, elem, nodeULID); err != nil {
		return nil, err
	}
	return elem, nil
}

func (e *Encoder) populateElement(m *sapient.Message, elem *etree.Element, nodeULID string) error {
	for _, fd := range m.Descriptor().Fields {
		if !m.Has(fd.Name) {
			continue
		}
		name := FieldXMLName(fd)
		parent := elem
		if fd.XMLNested != "" {
			parent = elem.CreateElement(name)
			name = fd.XMLNested
		}
		if fd.Repeated {
			for _, v := range m.List(fd.Name) {
				if err := e.populateField(parent, name, fd, v, nodeULID); err != nil {
					return err
				}
			}
			continue
		}
		if err := e.populateField(parent, name, fd, m.Get(fd.Name), nodeULID); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) populateField(parent *etree.Element, name string, fd *sapient.FieldDescriptor, v any, nodeULID string) error {
	if e.which != FieldsAll && fd.XMLIgnore {
		return nil
	}
	if e.which == FieldsOfficial && fd.Tentative {
		return nil
	}

	if fd.Kind == sapient.KindMessage {
		return e.populateElement(v.(*sapient.Message), parent.CreateElement(name), nodeULID)
	}

	text, err := e.renderValue(fd, v, nodeULID)
	if err != nil {
		return err
	}
	switch {
	case fd.XMLText:
		parent.SetText(text)
	case fd.XMLAttribute:
		parent.CreateAttr(name, text)
	default:
		parent.CreateElement(name).SetText(text)
	}
	return nil
}

func (e *Encoder) renderValue(fd *sapient.FieldDescriptor, v any, nodeULID string) (string, error) {
	switch {
	case fd.IsULID:
		legacy, err := e.ids.Devirtualize(fd.Name, nodeULID, v.(string))
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(int64(legacy), 10), nil
	case fd.Kind == sapient.KindBool:
		if v.(bool) {
			return "true", nil
		}
		return "false", nil
	case fd.Kind == sapient.KindTimestamp:
		return timeutil.Format(v.(time.Time)), nil
	case fd.TimeValue:
		return timeutil.Format(timeutil.FromMicros(v.(int64))), nil
	case fd.Kind == sapient.KindEnum:
		ev := fd.Enum.ValueByNumber(v.(int32))
		if ev == nil {
			return strconv.FormatInt(int64(v.(int32)), 10), nil
		}
		return ev.XMLName, nil
	case fd.Kind == sapient.KindBytes:
		return base64.StdEncoding.EncodeToString(v.([]byte)), nil
	case fd.Kind == sapient.KindString:
		return v.(string), nil
	case fd.Kind == sapient.KindFloat:
		return strconv.FormatFloat(float64(v.(float32)), 'g', -1, 32), nil
	case fd.Kind == sapient.KindDouble:
		return strconv.FormatFloat(v.(float64), 'g', -1, 64), nil
	case fd.Kind == sapient.KindInt32:
		return strconv.FormatInt(int64(v.(int32)), 10), nil
	case fd.Kind == sapient.KindInt64:
		return strconv.FormatInt(v.(int64), 10), nil
	case fd.Kind == sapient.KindUInt32:
		return strconv.FormatUint(uint64(v.(uint32)), 10), nil
	case fd.Kind == sapient.KindUInt64:
		return strconv.FormatUint(v.(uint64), 10), nil
	}
	return "", errUnsupportedKind
}
