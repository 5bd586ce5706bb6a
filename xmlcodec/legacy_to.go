package xmlcodec

import (
	"fmt"

	"github.com/beevik/etree"

	"github.com/dstl/Apex-SAPIENT-Middleware/idmap"
	"github.com/dstl/Apex-SAPIENT-Middleware/pkg/timeutil"
	"github.com/dstl/Apex-SAPIENT-Middleware/sapient"
)

// LegacyTranslator converts between BSI Flex 335 v1.0 envelopes and the
// legacy Version 6 XML dialect, sharing one descriptor cache and one
// identifier registry across both directions.
type LegacyTranslator struct {
	cache *Cache
	ids   *idmap.Registry
	dec   *Decoder
	enc   *Encoder
}

// NewLegacyTranslator builds a translator over the cache and registry.
func NewLegacyTranslator(cache *Cache, ids *idmap.Registry) *LegacyTranslator {
	return &LegacyTranslator{
		cache: cache,
		ids:   ids,
		dec:   NewDecoder(cache, ids),
		enc:   NewEncoder(ids, FieldsOfficial),
	}
}

// FromV1 converts a v1 envelope into a legacy content element. Only fields
// in the official standard are rendered; the envelope's timestamp and
// identifiers reappear as the dialect's timestamp and sourceID or sensorID
// elements.
func (t *LegacyTranslator) FromV1(env *sapient.Message) (*etree.Element, error) {
	// Both endpoint ids must have legacy integers before rendering.
	nodeULID := env.GetString("node_id")
	t.ids.EnsureNode(nodeULID)
	if dest := env.GetString("destination_id"); dest != "" {
		t.ids.EnsureNode(dest)
	}

	elem, err := t.enc.EncodeContent(env, nodeULID)
	if err != nil {
		return nil, err
	}

	elem.CreateElement("timestamp").SetText(timeutil.Format(env.GetTime("timestamp")))

	switch elem.Tag {
	case "Alert", "AlertResponse", "DetectionReport", "StatusReport":
		legacy, ok := t.ids.NodeLegacy(nodeULID)
		if !ok {
			return nil, fmt.Errorf("node %s has no legacy id", nodeULID)
		}
		elem.CreateElement("sourceID").SetText(fmt.Sprintf("%d", legacy))
	case "SensorTask", "SensorTaskACK":
		dest := env.GetString("destination_id")
		legacy, ok := t.ids.NodeLegacy(dest)
		if !ok {
			return nil, fmt.Errorf("destination %s has no legacy id", dest)
		}
		elem.CreateElement("sensorID").SetText(fmt.Sprintf("%d", legacy))
	default:
		legacy, ok := t.ids.NodeLegacy(nodeULID)
		if !ok {
			return nil, fmt.Errorf("node %s has no legacy id", nodeULID)
		}
		elem.CreateElement("sensorID").SetText(fmt.Sprintf("%d", legacy))
	}

	switch elem.Tag {
	case "SensorTask":
		unwrapRegionAreas(elem)
	case "DetectionReport":
		// The legacy dialect kept the sub-class value in a value attribute.
		for _, sub := range elem.FindElements(".//subClass") {
			if attr := sub.SelectAttr("type"); attr != nil {
				sub.CreateAttr("value", attr.Value)
			}
		}
	case "SensorRegistration":
		reshapeRegistrationToLegacy(elem)
	}

	return elem, nil
}

// unwrapRegionAreas lifts each region's locationList or rangeBearingCone
// back out of its regionArea wrapper.
func unwrapRegionAreas(elem *etree.Element) {
	for _, region := range elem.SelectElements("region") {
		area := region.SelectElement("regionArea")
		if area == nil {
			continue
		}
		inner := area.SelectElement("locationList")
		if inner == nil {
			inner = area.SelectElement("rangeBearingCone")
		}
		if inner != nil {
			area.RemoveChild(inner)
			region.AddChild(inner)
		}
		region.RemoveChild(area)
	}
}

func reshapeRegistrationToLegacy(elem *etree.Element) {
	// The dialect keeps nodeType at the registration's top level.
	for _, nodeDef := range elem.FindElements(".//nodeDefinition") {
		if nodeType := nodeDef.SelectElement("nodeType"); nodeType != nil {
			elem.CreateElement("nodeType").SetText(nodeType.Text())
		}
		elem.RemoveChild(nodeDef)
	}

	for _, lt := range elem.FindElements(".//locationType") {
		if attr := lt.SelectAttr("locationUnits"); attr != nil {
			lt.CreateAttr("units", attr.Value)
			text := "GPS"
			if attr.Value == "UTM" {
				text = "UTM"
			}
			lt.SetText(text)
			lt.CreateAttr("value", text)
		}
		if attr := lt.SelectAttr("locationDatum"); attr != nil {
			lt.CreateAttr("datum", attr.Value)
		}
	}
}
