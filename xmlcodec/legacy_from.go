package xmlcodec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/dstl/Apex-SAPIENT-Middleware/pkg/timeutil"
	"github.com/dstl/Apex-SAPIENT-Middleware/sapient"
)

// ToV1 converts a legacy Version 6 content element into a BSI Flex 335 v1.0
// envelope. The element is reshaped in place on a copy until the schema
// tables can decode it; non-fatal problems accumulate as error strings.
//
// Node identifiers are resolved through the registry. A fresh mapping is
// created only for registrations; any other message from an unknown sensor
// is an error, since nothing downstream could ever route it.
func (t *LegacyTranslator) ToV1(root *etree.Element) (*sapient.Message, []string) {
	content := root.Copy()
	env := sapient.New(sapient.EnvelopeV1)

	if tsElem := content.SelectElement("timestamp"); tsElem != nil {
		at, err := timeutil.Parse(strings.TrimSpace(tsElem.Text()))
		if err != nil {
			return nil, []string{fmt.Sprintf("Invalid timestamp %q: %v", tsElem.Text(), err)}
		}
		content.RemoveChild(tsElem)
		if err := env.Set("timestamp", at); err != nil {
			return nil, []string{err.Error()}
		}
	} else {
		return nil, []string{"Message has no timestamp element"}
	}

	legacyID, err := takeLegacyID(content)
	if err != nil {
		return nil, []string{err.Error()}
	}
	nodeULID, ok := t.ids.NodeULID(legacyID)
	if !ok {
		if content.Tag != "SensorRegistration" {
			return nil, []string{fmt.Sprintf("Sensor with ID [%d] has no corresponding ULID.", legacyID)}
		}
		nodeULID, err = t.ids.CreateNode(legacyID)
		if err != nil {
			return nil, []string{err.Error()}
		}
	}
	if err := env.Set("node_id", nodeULID); err != nil {
		return nil, []string{err.Error()}
	}

	var errs []string
	switch content.Tag {
	case "SensorRegistration":
		t.reshapeRegistration(content)
	case "StatusReport":
		// Legacy status regions have no v1 shape and are dropped.
		for _, sr := range content.SelectElements("statusRegion") {
			content.RemoveChild(sr)
		}
	case "DetectionReport":
		for _, class := range content.SelectElements("class") {
			for _, sub := range class.SelectElements("subClass") {
				sub.RemoveAttr("value")
			}
		}
	case "Alert":
		// Alerts over the legacy link flow from the fusion node to the
		// sensor; the envelope records the fusion node as sender.
		errs = t.reshapeAlert(content, env, nodeULID, errs)
	case "SensorTask":
		errs = t.reshapeTask(content, env, nodeULID, legacyID, errs)
	}

	defaultLocationFrames(content)

	errs = append(errs, t.dec.DecodeContent(env, content, nodeULID)...)
	return env, errs
}

// takeLegacyID removes the sourceID or sensorID element and returns its
// integer value.
func takeLegacyID(content *etree.Element) (int32, error) {
	elem := content.SelectElement("sourceID")
	if elem == nil {
		elem = content.SelectElement("sensorID")
	}
	if elem == nil {
		return 0, fmt.Errorf("Message has no sourceID or sensorID element")
	}
	n, err := strconv.ParseInt(strings.TrimSpace(elem.Text()), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("Invalid sensor ID %q: %v", elem.Text(), err)
	}
	content.RemoveChild(elem)
	return int32(n), nil
}

func (t *LegacyTranslator) reshapeAlert(content *etree.Element, env *sapient.Message, sensorULID string, errs []string) []string {
	fusionULID, err := t.ids.Virtualize("node_id", "", 0)
	if err != nil {
		return append(errs, err.Error())
	}
	if err := env.Set("node_id", fusionULID); err != nil {
		errs = append(errs, err.Error())
	}
	if err := env.Set("destination_id", sensorULID); err != nil {
		errs = append(errs, err.Error())
	}
	for _, assoc := range content.SelectElements("associatedDetection") {
		if loc := assoc.SelectElement("location"); loc != nil {
			assoc.RemoveChild(loc)
		}
		if desc := assoc.SelectElement("description"); desc != nil {
			assoc.RemoveChild(desc)
		}
	}
	return errs
}

func (t *LegacyTranslator) reshapeTask(content *etree.Element, env *sapient.Message, sensorULID string, legacyID int32, errs []string) []string {
	wrapRegionAreas(content, "region", "regionArea")

	fusionULID, err := t.ids.Virtualize("node_id", "", 0)
	if err != nil {
		return append(errs, err.Error())
	}
	if err := env.Set("node_id", fusionULID); err != nil {
		errs = append(errs, err.Error())
	}
	if err := env.Set("destination_id", sensorULID); err != nil {
		errs = append(errs, err.Error())
	}

	// The task id must resolve from both ends of the conversation, so the
	// pair is recorded against the sensor and the fusion node alike.
	if taskElem := content.SelectElement("taskID"); taskElem != nil {
		taskID, err := strconv.ParseInt(strings.TrimSpace(taskElem.Text()), 10, 32)
		if err != nil {
			errs = append(errs, fmt.Sprintf("Invalid taskID %q: %v", taskElem.Text(), err))
		} else {
			taskULID := t.ids.NewULID()
			if err := t.ids.Insert("task_id", sensorULID, int32(taskID), taskULID); err != nil {
				errs = append(errs, err.Error())
			}
			if err := t.ids.Insert("task_id", fusionULID, int32(taskID), taskULID); err != nil {
				errs = append(errs, err.Error())
			}
		}
	}

	// A command's objectID refers to a node; it travels as the ULID text of
	// the commandParameter field in v1.
	if command := content.SelectElement("command"); command != nil {
		if objectElem := command.SelectElement("objectID"); objectElem != nil {
			objectID, err := strconv.ParseInt(strings.TrimSpace(objectElem.Text()), 10, 32)
			if err != nil {
				errs = append(errs, fmt.Sprintf("Invalid objectID %q: %v", objectElem.Text(), err))
			} else {
				u, err := t.ids.Virtualize("node_id", "", int32(objectID))
				if err != nil {
					errs = append(errs, err.Error())
				} else {
					command.CreateElement("commandParameter").SetText(u)
				}
			}
			command.RemoveChild(objectElem)
		}
	}
	return errs
}

// wrapRegionAreas moves each region's locationList or rangeBearingCone
// inside a nested wrapper element.
func wrapRegionAreas(content *etree.Element, regionTag, wrapperTag string) {
	for _, region := range content.SelectElements(regionTag) {
		inner := region.SelectElement("locationList")
		if inner == nil {
			inner = region.SelectElement("rangeBearingCone")
		}
		if inner == nil {
			continue
		}
		region.RemoveChild(inner)
		region.CreateElement(wrapperTag).AddChild(inner)
	}
}

// defaultLocationFrames fills in the coordinate system and datum the legacy
// dialect never carried.
func defaultLocationFrames(content *etree.Element) {
	for _, tag := range []string{"location", "rangeBearing", "rangeBearingCone"} {
		for _, elem := range content.FindElements(".//" + tag) {
			if elem.SelectElement("coordinateSystem") == nil {
				elem.CreateElement("coordinateSystem").SetText("Unspecified")
			}
			if elem.SelectElement("datum") == nil {
				elem.CreateElement("datum").SetText("Unspecified")
			}
		}
	}
}

func (t *LegacyTranslator) reshapeRegistration(content *etree.Element) {
	// nodeType elements nest inside a nodeDefinition wrapper in v1.
	if nodeTypes := content.SelectElements("nodeType"); len(nodeTypes) > 0 {
		nodeDef := content.CreateElement("nodeDefinition")
		for _, nt := range nodeTypes {
			content.RemoveChild(nt)
			nodeDef.AddChild(nt)
		}
	}

	for _, lt := range content.FindElements(".//locationType") {
		// Legacy WGS84 had no ellipsoid/geoid distinction; assume ellipsoid.
		lt.CreateAttr("datum", "WGS84 Ellipsoid")
		retargetLocationTypeAttr(lt, "units", "locationUnits", "rangeBearingUnits",
			sapient.LocationCoordinateSystemEnum, sapient.RangeBearingCoordinateSystemEnum)
		retargetLocationTypeAttr(lt, "datum", "locationDatum", "rangeBearingDatum",
			sapient.LocationDatumEnum, sapient.RangeBearingDatumEnum)
		lt.SetText("")
	}

	// The confidence units move onto the owning definition element.
	for _, tag := range []string{"classDefinition", "subClassDefinition", "behaviourDefinition"} {
		for _, def := range content.FindElements(".//" + tag) {
			if conf := def.SelectElement("confidence"); conf != nil {
				if units := conf.SelectAttr("units"); units != nil {
					def.CreateAttr("units", units.Value)
				}
				def.RemoveChild(conf)
			}
		}
	}

	for _, command := range content.FindElements(".//command") {
		ct := retargetCompletionTime(command, "completionTime", "value", nil)
		retargetCompletionTime(command, "completionTimeUnits", "units", ct)
		if name := command.SelectAttr("name"); name != nil {
			command.CreateAttr("type", commandTypeFor(name.Value))
		}
	}

	for _, cp := range content.FindElements(".//classPerformance") {
		if uv := cp.SelectAttr("unitValue"); uv != nil {
			cp.CreateAttr("value", uv.Value)
			cp.RemoveAttr("unitValue")
		}
		for _, pv := range cp.SelectElements("performanceValue") {
			cp.RemoveChild(pv)
		}
	}

	// Each performanceValue becomes one detectionPerformance entry with the
	// type and value lifted onto it.
	for _, dd := range content.FindElements(".//detectionDefinition") {
		var replacements []*etree.Element
		for _, dp := range dd.SelectElements("detectionPerformance") {
			for _, pv := range dp.SelectElements("performanceValue") {
				repl := etree.NewElement("detectionPerformance")
				for _, attr := range dp.Attr {
					repl.CreateAttr(attr.Key, attr.Value)
				}
				if attr := pv.SelectAttr("type"); attr != nil {
					repl.CreateAttr("type", attr.Value)
				}
				if attr := pv.SelectAttr("value"); attr != nil {
					repl.CreateAttr("value", attr.Value)
				}
				replacements = append(replacements, repl)
			}
			dd.RemoveChild(dp)
		}
		for _, repl := range replacements {
			dd.AddChild(repl)
		}
	}

	for _, pv := range content.FindElements(".//performanceValue") {
		if attr := pv.SelectAttr("type"); attr != nil {
			pv.CreateAttr("units", attr.Value)
		}
	}

	// Legacy capability attributes may be capitalised either way.
	for _, cap := range content.FindElements(".//capabilities") {
		attrs := append([]etree.Attr(nil), cap.Attr...)
		for _, attr := range attrs {
			cap.RemoveAttr(attr.Key)
		}
		for _, attr := range attrs {
			cap.CreateAttr(strings.ToLower(attr.Key), attr.Value)
		}
	}

	if content.SelectElement("icdVersion") == nil {
		content.CreateElement("icdVersion").SetText(sapient.VersionBSIFlex335V1.String())
	}
	if content.SelectElement("nodeDefinition") == nil {
		nodeDef := content.CreateElement("nodeDefinition")
		nodeDef.CreateElement("nodeType").SetText("Other")
		if st := content.SelectElement("sensorType"); st != nil {
			nodeDef.CreateElement("nodeSubType").SetText(st.Text())
		}
	}
}

// retargetLocationTypeAttr renames a legacy locationType attribute to its
// location or range-bearing form, chosen by which enum's spellings contain
// the value.
func retargetLocationTypeAttr(lt *etree.Element, attrName, locationName, rangeBearingName string, locationEnum, rangeBearingEnum *sapient.EnumDescriptor) {
	attr := lt.SelectAttr(attrName)
	if attr == nil {
		return
	}
	target := ""
	if enumHasXMLName(locationEnum, attr.Value) {
		target = locationName
	} else if enumHasXMLName(rangeBearingEnum, attr.Value) {
		target = rangeBearingName
	}
	if target != "" {
		value := attr.Value
		lt.RemoveAttr(attrName)
		lt.CreateAttr(target, value)
	}
}

func enumHasXMLName(ed *sapient.EnumDescriptor, value string) bool {
	for _, v := range ed.Values {
		if v.XMLName == value {
			return true
		}
	}
	return false
}

// retargetCompletionTime moves a legacy completion time attribute into the
// nested completionTime element, creating it on first use.
func retargetCompletionTime(command *etree.Element, attrName, targetAttr string, ct *etree.Element) *etree.Element {
	attr := command.SelectAttr(attrName)
	if attr == nil {
		return ct
	}
	if ct == nil {
		ct = command.CreateElement("completionTime")
	}
	ct.CreateAttr(targetAttr, attr.Value)
	command.RemoveAttr(attrName)
	return ct
}

// commandTypeFor maps a legacy command name onto the v1 command type,
// falling back to Request for free-form names.
func commandTypeFor(name string) string {
	titled := titleCase(name)
	for _, v := range sapient.CommandTypeEnum.Values {
		if titleCase(v.XMLName) == titled {
			return titled
		}
	}
	return "Request"
}

// titleCase upper-cases the first letter of each alphabetic run and
// lower-cases the rest, matching the legacy feed's loose capitalisation.
func titleCase(s string) string {
	out := []rune(s)
	prevAlpha := false
	for i, r := range out {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		switch {
		case isAlpha && !prevAlpha:
			out[i] = toUpper(r)
		case isAlpha:
			out[i] = toLower(r)
		}
		prevAlpha = isAlpha
	}
	return string(out)
}

func toUpper(r rune) rune {
	if r >= 'a' && r <= 'z' {
		return r - 'a' + 'A'
	}
	return r
}

func toLower(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r - 'A' + 'a'
	}
	return r
}
