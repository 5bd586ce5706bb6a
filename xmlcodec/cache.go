// Package xmlcodec converts between the legacy XML dialect and decoded
// protocol messages. The mapping is driven entirely by the descriptor
// tables: field placement (element, attribute or parent text), XML names
// and enum value spellings all come from the schema, with ULID fields
// rendered as legacy integers through the identifier registry.
package xmlcodec

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dstl/Apex-SAPIENT-Middleware/sapient"
)

// fieldMaps indexes one message's fields by their XML placement.
type fieldMaps struct {
	text     *sapient.FieldDescriptor
	attrs    map[string]*sapient.FieldDescriptor
	elements map[string]*sapient.FieldDescriptor
}

// Cache precomputes XML name lookups per message descriptor and normalised
// value lookups per enum. Lookups during decoding would otherwise be linear
// in the field count for every element. Population is lazy, idempotent and
// fails fast on ambiguous names.
type Cache struct {
	mu       sync.Mutex
	messages map[*sapient.MessageDescriptor]*fieldMaps
	enums    map[*sapient.EnumDescriptor]map[string]int32
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		messages: make(map[*sapient.MessageDescriptor]*fieldMaps),
		enums:    make(map[*sapient.EnumDescriptor]map[string]int32),
	}
}

// maps returns the field maps for a descriptor, populating the cache for it
// and every message type reachable from it.
func (c *Cache) maps(desc *sapient.MessageDescriptor) (*fieldMaps, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.populateLocked(desc); err != nil {
		return nil, err
	}
	return c.messages[desc], nil
}

// enumValues returns the normalised XML value map for an enum.
func (c *Cache) enumValues(ed *sapient.EnumDescriptor) (map[string]int32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.enums[ed]; ok {
		return m, nil
	}
	m, err := buildEnumValues(ed)
	if err != nil {
		return nil, err
	}
	c.enums[ed] = m
	return m, nil
}

func (c *Cache) populateLocked(desc *sapient.MessageDescriptor) error {
	if _, ok := c.messages[desc]; ok {
		return nil
	}

	fm := &fieldMaps{
		attrs:    make(map[string]*sapient.FieldDescriptor),
		elements: make(map[string]*sapient.FieldDescriptor),
	}
	for _, fd := range desc.Fields {
		name := FieldXMLName(fd)
		switch {
		case fd.XMLText:
			if fm.text != nil {
				return fmt.Errorf("multiple parent text fields in %s", desc.Name)
			}
			if fd.Kind == sapient.KindMessage {
				return fmt.Errorf("invalid parent text option for message field %s.%s", desc.Name, fd.Name)
			}
			fm.text = fd
		case fd.XMLAttribute:
			if fd.Kind == sapient.KindMessage {
				return fmt.Errorf("invalid attribute option for message field %s.%s", desc.Name, fd.Name)
			}
			if _, ok := fm.attrs[name]; ok {
				return fmt.Errorf("attribute name %q used for multiple fields in %s", name, desc.Name)
			}
			fm.attrs[name] = fd
		default:
			if _, ok := fm.elements[name]; ok {
				return fmt.Errorf("element name %q used for multiple fields in %s", name, desc.Name)
			}
			fm.elements[name] = fd
		}
	}
	c.messages[desc] = fm

	for _, fd := range desc.Fields {
		if fd.Enum != nil {
			if _, ok := c.enums[fd.Enum]; !ok {
				m, err := buildEnumValues(fd.Enum)
				if err != nil {
					return err
				}
				c.enums[fd.Enum] = m
			}
		}
		if fd.Kind == sapient.KindMessage {
			if err := c.populateLocked(fd.Message); err != nil {
				return err
			}
		}
	}
	return nil
}

func buildEnumValues(ed *sapient.EnumDescriptor) (map[string]int32, error) {
	m := make(map[string]int32, len(ed.Values))
	for _, v := range ed.Values {
		key := NormalizeEnumText(v.XMLName)
		if _, ok := m[key]; ok {
			return nil, fmt.Errorf("in enum %s, ambiguous value %s", ed.Name, key)
		}
		m[key] = v.Number
	}
	return m, nil
}

// MessageXMLName returns the element name of a message; usually PascalCase.
func MessageXMLName(desc *sapient.MessageDescriptor) string {
	if desc.XMLName != "" {
		return desc.XMLName
	}
	return desc.Name
}

// FieldXMLName returns the XML name of a field; usually camelCase.
func FieldXMLName(fd *sapient.FieldDescriptor) string {
	if fd.XMLName != "" {
		return fd.XMLName
	}
	return camelCase(fd.Name)
}

// NormalizeEnumText strips spaces and upper-cases an enum's XML spelling,
// so "Sensor Status", "SENSOR STATUS" and "SensorStatus" all match.
func NormalizeEnumText(s string) string {
	return strings.ToUpper(strings.ReplaceAll(s, " ", ""))
}

func camelCase(snake string) string {
	parts := strings.Split(snake, "_")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i == 0 {
			b.WriteString(p)
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}
