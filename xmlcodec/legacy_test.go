package xmlcodec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dstl/Apex-SAPIENT-Middleware/idmap"
	"github.com/dstl/Apex-SAPIENT-Middleware/sapient"
)

func newTranslator(t *testing.T) (*LegacyTranslator, *idmap.Registry) {
	t.Helper()
	ids := testRegistry(t)
	return NewLegacyTranslator(NewCache(), ids), ids
}

const legacyRegistration = `
<SensorRegistration>
  <timestamp>2025-03-14T09:26:53.589793Z</timestamp>
  <sensorID>12</sensorID>
  <sensorType>PTZ Camera</sensorType>
  <nodeType>Camera</nodeType>
  <modeDefinition>
    <modeName>default</modeName>
    <detectionDefinition>
      <locationType units="UTM">UTM</locationType>
      <detectionPerformance type="FAR">
        <performanceValue type="Pd" value="0.9"/>
        <performanceValue type="FAR" value="0.1"/>
      </detectionPerformance>
      <classDefinition type="Human">
        <confidence units="probability"/>
      </classDefinition>
    </detectionDefinition>
    <task>
      <command name="lookat" completionTime="10" completionTimeUnits="Seconds"/>
    </task>
  </modeDefinition>
  <capabilities Category="sensor" Type="zoom">30</capabilities>
</SensorRegistration>`

func TestToV1Registration(t *testing.T) {
	tr, ids := newTranslator(t)

	env, errs := tr.ToV1(parseElement(t, legacyRegistration))
	require.NotNil(t, env)
	require.Empty(t, errs)

	assert.Equal(t, time.Date(2025, 3, 14, 9, 26, 53, 589793000, time.UTC), env.GetTime("timestamp"))

	nodeULID := env.GetString("node_id")
	legacy, ok := ids.NodeLegacy(nodeULID)
	require.True(t, ok)
	assert.Equal(t, int32(12), legacy)

	reg := env.GetMessage("registration")
	require.NotNil(t, reg)
	assert.Equal(t, "BSI Flex 335 v1.0", reg.GetString("icd_version"))
	assert.Equal(t, "PTZ Camera", reg.GetString("short_name"))

	nodes := reg.List("node_definition")
	require.Len(t, nodes, 1)
	assert.Equal(t, "NODE_TYPE_CAMERA", nodes[0].(*sapient.Message).GetEnumName("node_type"))

	modes := reg.List("mode_definition")
	require.Len(t, modes, 1)
	mode := modes[0].(*sapient.Message)
	assert.Equal(t, "default", mode.GetString("mode_name"))

	dd := mode.GetMessage("detection_definition")
	require.NotNil(t, dd)

	lt := dd.GetMessage("location_type")
	require.NotNil(t, lt)
	assert.Equal(t, "LOCATION_COORDINATE_SYSTEM_UTM_M", lt.GetEnumName("location_units"))
	assert.Equal(t, "LOCATION_DATUM_WGS84_ELLIPSOID", lt.GetEnumName("location_datum"))

	// One performanceValue becomes one detectionPerformance entry each.
	perfs := dd.List("detection_performance")
	require.Len(t, perfs, 2)
	first := perfs[0].(*sapient.Message)
	assert.Equal(t, "Pd", first.GetString("type"))
	assert.Equal(t, "0.9", first.GetString("value"))

	classes := dd.List("class_definition")
	require.Len(t, classes, 1)
	assert.Equal(t, "probability", classes[0].(*sapient.Message).GetString("units"))

	tasks := mode.List("task")
	require.Len(t, tasks, 1)
	commands := tasks[0].(*sapient.Message).List("command")
	require.Len(t, commands, 1)
	cmd := commands[0].(*sapient.Message)
	assert.Equal(t, "lookat", cmd.GetString("name"))
	assert.Equal(t, "COMMAND_TYPE_LOOK_AT", cmd.GetEnumName("type"))
	ct := cmd.GetMessage("completion_time")
	require.NotNil(t, ct)
	assert.Equal(t, "Seconds", ct.GetString("units"))
	assert.Equal(t, int64(10), ct.GetInt64("value"))

	caps := reg.List("capabilities")
	require.Len(t, caps, 1)
	cap := caps[0].(*sapient.Message)
	assert.Equal(t, "zoom", cap.GetString("type"))
	assert.Equal(t, "30", cap.GetString("value"))
}

func TestToV1RegistrationDefaultsNodeDefinition(t *testing.T) {
	tr, _ := newTranslator(t)
	env, errs := tr.ToV1(parseElement(t, `
<SensorRegistration>
  <timestamp>2025-03-14T09:26:53.589793Z</timestamp>
  <sensorID>13</sensorID>
  <sensorType>Fence Sensor</sensorType>
</SensorRegistration>`))
	require.NotNil(t, env)
	require.Empty(t, errs)

	reg := env.GetMessage("registration")
	nodes := reg.List("node_definition")
	require.Len(t, nodes, 1)
	nd := nodes[0].(*sapient.Message)
	assert.Equal(t, "NODE_TYPE_OTHER", nd.GetEnumName("node_type"))
	assert.Equal(t, "Fence Sensor", nd.GetString("node_sub_type"))
}

func TestToV1UnknownSensorRejected(t *testing.T) {
	tr, _ := newTranslator(t)
	env, errs := tr.ToV1(parseElement(t, `
<DetectionReport>
  <timestamp>2025-03-14T09:26:53.589793Z</timestamp>
  <sourceID>99</sourceID>
  <reportID>1</reportID>
</DetectionReport>`))
	assert.Nil(t, env)
	require.Len(t, errs, 1)
	assert.Equal(t, "Sensor with ID [99] has no corresponding ULID.", errs[0])
}

func TestToV1DetectionLocationDefaults(t *testing.T) {
	tr, ids := newTranslator(t)
	_, err := ids.CreateNode(7)
	require.NoError(t, err)

	env, errs := tr.ToV1(parseElement(t, `
<DetectionReport>
  <timestamp>2025-03-14T09:26:53.589793Z</timestamp>
  <sourceID>7</sourceID>
  <reportID>2</reportID>
  <objectID>4</objectID>
  <location>
    <X>1.5</X>
    <Y>2.5</Y>
  </location>
  <class type="Human">
    <subClass type="Walking" value="legacy"/>
  </class>
</DetectionReport>`))
	require.NotNil(t, env)
	require.Empty(t, errs)

	loc := env.GetMessage("detection_report").GetMessage("location")
	require.NotNil(t, loc)
	assert.Equal(t, "LOCATION_COORDINATE_SYSTEM_UNSPECIFIED", loc.GetEnumName("coordinate_system"))
	assert.Equal(t, "LOCATION_DATUM_UNSPECIFIED", loc.GetEnumName("datum"))
}

func TestToV1TaskReversesDirection(t *testing.T) {
	tr, ids := newTranslator(t)
	sensor, err := ids.CreateNode(7)
	require.NoError(t, err)

	env, errs := tr.ToV1(parseElement(t, `
<SensorTask>
  <timestamp>2025-03-14T09:26:53.589793Z</timestamp>
  <sensorID>7</sensorID>
  <taskID>41</taskID>
  <control>Start</control>
  <region>
    <regionID>1</regionID>
    <locationList>
      <location><X>1</X><Y>2</Y></location>
    </locationList>
  </region>
  <command>
    <objectID>7</objectID>
  </command>
</SensorTask>`))
	require.NotNil(t, env)
	require.Empty(t, errs)

	fusion, err := ids.Virtualize("node_id", "", 0)
	require.NoError(t, err)
	assert.Equal(t, fusion, env.GetString("node_id"))
	assert.Equal(t, sensor, env.GetString("destination_id"))

	task := env.GetMessage("task")
	require.NotNil(t, task)
	assert.Equal(t, "CONTROL_START", task.GetEnumName("control"))

	// The task id resolves from both the sensor's and the fusion node's maps.
	taskULID := task.GetString("task_id")
	fromSensor, err := ids.Devirtualize("task_id", sensor, taskULID)
	require.NoError(t, err)
	assert.Equal(t, int32(41), fromSensor)
	fromFusion, err := ids.Devirtualize("task_id", fusion, taskULID)
	require.NoError(t, err)
	assert.Equal(t, int32(41), fromFusion)

	regions := task.List("region")
	require.Len(t, regions, 1)
	area := regions[0].(*sapient.Message).GetMessage("region_area")
	require.NotNil(t, area)
	assert.NotNil(t, area.GetMessage("location_list"))

	cmd := task.GetMessage("command")
	require.NotNil(t, cmd)
	assert.Equal(t, sensor, cmd.GetString("command_parameter"))
}

func TestToV1AlertDirection(t *testing.T) {
	tr, ids := newTranslator(t)
	sensor, err := ids.CreateNode(7)
	require.NoError(t, err)

	env, errs := tr.ToV1(parseElement(t, `
<Alert>
  <timestamp>2025-03-14T09:26:53.589793Z</timestamp>
  <sourceID>7</sourceID>
  <alertID>5</alertID>
  <description>perimeter breach</description>
  <associatedDetection>
    <objectID>3</objectID>
    <location><X>1</X><Y>2</Y></location>
    <description>to drop</description>
  </associatedDetection>
</Alert>`))
	require.NotNil(t, env)
	require.Empty(t, errs)

	fusion, err := ids.Virtualize("node_id", "", 0)
	require.NoError(t, err)
	assert.Equal(t, fusion, env.GetString("node_id"))
	assert.Equal(t, sensor, env.GetString("destination_id"))

	alert := env.GetMessage("alert")
	require.NotNil(t, alert)
	assert.Equal(t, "perimeter breach", alert.GetString("description"))
	assocs := alert.List("associated_detection")
	require.Len(t, assocs, 1)
	assoc := assocs[0].(*sapient.Message)
	assert.False(t, assoc.Has("timestamp"))
	assert.True(t, assoc.Has("object_id"))
}

func TestToV1StatusReportDropsStatusRegion(t *testing.T) {
	tr, ids := newTranslator(t)
	_, err := ids.CreateNode(7)
	require.NoError(t, err)

	env, errs := tr.ToV1(parseElement(t, `
<StatusReport>
  <timestamp>2025-03-14T09:26:53.589793Z</timestamp>
  <sourceID>7</sourceID>
  <reportID>9</reportID>
  <system>OK</system>
  <info>New</info>
  <statusRegion>
    <locationList><location><X>1</X><Y>2</Y></location></locationList>
  </statusRegion>
</StatusReport>`))
	require.NotNil(t, env)
	require.Empty(t, errs)

	sr := env.GetMessage("status_report")
	require.NotNil(t, sr)
	assert.Equal(t, "SYSTEM_OK", sr.GetEnumName("system"))
	assert.Empty(t, sr.List("region"))
}

func TestFromV1StatusReport(t *testing.T) {
	tr, ids := newTranslator(t)
	node, err := ids.CreateNode(3)
	require.NoError(t, err)

	env := sapient.New(sapient.EnvelopeV1)
	require.NoError(t, env.Set("timestamp", time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)))
	require.NoError(t, env.Set("node_id", node))
	sr := env.Mutable("status_report")
	reportULID, err := ids.Virtualize("report_id", node, 6)
	require.NoError(t, err)
	require.NoError(t, sr.Set("report_id", reportULID))
	require.NoError(t, sr.Set("system", int32(1)))
	require.NoError(t, sr.Set("info", int32(1)))

	elem, err := tr.FromV1(env)
	require.NoError(t, err)

	assert.Equal(t, "StatusReport", elem.Tag)
	assert.Equal(t, "2025-03-14T09:26:53.000000Z", elem.SelectElement("timestamp").Text())
	assert.Equal(t, "3", elem.SelectElement("sourceID").Text())
	assert.Nil(t, elem.SelectElement("sensorID"))
	assert.Equal(t, "6", elem.SelectElement("reportID").Text())
}

func TestFromV1TaskUnwrapsRegionArea(t *testing.T) {
	tr, ids := newTranslator(t)
	sensor, err := ids.CreateNode(3)
	require.NoError(t, err)
	fusion, err := ids.Virtualize("node_id", "", 0)
	require.NoError(t, err)

	env := sapient.New(sapient.EnvelopeV1)
	require.NoError(t, env.Set("timestamp", time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)))
	require.NoError(t, env.Set("node_id", fusion))
	require.NoError(t, env.Set("destination_id", sensor))

	task := env.Mutable("task")
	taskULID, err := ids.Virtualize("task_id", sensor, 41)
	require.NoError(t, err)
	require.NoError(t, task.Set("task_id", taskULID))
	require.NoError(t, task.Set("control", int32(1)))

	region, err := sapient.FromMap(sapient.RegionDesc, map[string]any{
		"region_id": ids.NewULID(),
		"region_area": map[string]any{
			"location_list": map[string]any{
				"location": []any{map[string]any{
					"x": 1.0, "y": 2.0,
					"coordinate_system": "LOCATION_COORDINATE_SYSTEM_UTM_M",
					"datum":             "LOCATION_DATUM_WGS84_ELLIPSOID",
				}},
			},
		},
	})
	require.NoError(t, err)
	require.NoError(t, task.Append("region", region))

	elem, err := tr.FromV1(env)
	require.NoError(t, err)

	assert.Equal(t, "SensorTask", elem.Tag)
	assert.Equal(t, "3", elem.SelectElement("sensorID").Text())

	regions := elem.SelectElements("region")
	require.Len(t, regions, 1)
	assert.Nil(t, regions[0].SelectElement("regionArea"))
	assert.NotNil(t, regions[0].SelectElement("locationList"))
}

func TestFromV1RegistrationLegacyShape(t *testing.T) {
	tr, ids := newTranslator(t)
	node, err := ids.CreateNode(3)
	require.NoError(t, err)

	env := sapient.New(sapient.EnvelopeV1)
	require.NoError(t, env.Set("timestamp", time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)))
	require.NoError(t, env.Set("node_id", node))

	reg := env.Mutable("registration")
	require.NoError(t, reg.Set("icd_version", "BSI Flex 335 v1.0"))
	require.NoError(t, reg.Set("short_name", "PTZ Camera"))
	nd, err := sapient.FromMap(sapient.NodeDefinitionDesc, map[string]any{"node_type": "NODE_TYPE_CAMERA"})
	require.NoError(t, err)
	require.NoError(t, reg.Append("node_definition", nd))

	mode, err := sapient.FromMap(sapient.ModeDefinitionV1Desc, map[string]any{
		"mode_name": "default",
		"detection_definition": map[string]any{
			"location_type": map[string]any{
				"location_units": "LOCATION_COORDINATE_SYSTEM_UTM_M",
				"location_datum": "LOCATION_DATUM_WGS84_ELLIPSOID",
			},
		},
	})
	require.NoError(t, err)
	require.NoError(t, reg.Append("mode_definition", mode))

	elem, err := tr.FromV1(env)
	require.NoError(t, err)

	assert.Equal(t, "SensorRegistration", elem.Tag)
	require.NotNil(t, elem.SelectElement("nodeType"))
	assert.Equal(t, "Camera", elem.SelectElement("nodeType").Text())
	assert.Nil(t, elem.SelectElement("nodeDefinition"))

	lt := elem.FindElement(".//locationType")
	require.NotNil(t, lt)
	assert.Equal(t, "UTM", lt.SelectAttrValue("units", ""))
	assert.Equal(t, "UTM", lt.Text())
	assert.Equal(t, "WGS84 Ellipsoid", lt.SelectAttrValue("datum", ""))
}

func TestLegacyRoundTripDetection(t *testing.T) {
	tr, ids := newTranslator(t)
	_, err := ids.CreateNode(7)
	require.NoError(t, err)

	env, errs := tr.ToV1(parseElement(t, `
<DetectionReport>
  <timestamp>2025-03-14T09:26:53.589793Z</timestamp>
  <sourceID>7</sourceID>
  <reportID>2</reportID>
  <objectID>4</objectID>
  <location><X>1.5</X><Y>2.5</Y></location>
</DetectionReport>`))
	require.NotNil(t, env)
	require.Empty(t, errs)

	elem, err := tr.FromV1(env)
	require.NoError(t, err)
	assert.Equal(t, "DetectionReport", elem.Tag)
	assert.Equal(t, "7", elem.SelectElement("sourceID").Text())
	assert.Equal(t, "2", elem.SelectElement("reportID").Text())
	assert.Equal(t, "4", elem.SelectElement("objectID").Text())
	assert.Equal(t, "1.5", elem.FindElement(".//X").Text())
}
