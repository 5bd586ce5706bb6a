package sapient

// Enum and message descriptors shared between the two binary versions. The
// XMLName on each enum value is its legacy dialect spelling; matching on
// input is case-insensitive with spaces and underscores stripped.

var LocationCoordinateSystemEnum = newEnum("LocationCoordinateSystem",
	EnumValue{"LOCATION_COORDINATE_SYSTEM_UNSPECIFIED", 0, "Unspecified"},
	EnumValue{"LOCATION_COORDINATE_SYSTEM_LAT_LNG_DEG_M", 1, "GPS"},
	EnumValue{"LOCATION_COORDINATE_SYSTEM_UTM_M", 2, "UTM"},
)

var LocationDatumEnum = newEnum("LocationDatum",
	EnumValue{"LOCATION_DATUM_UNSPECIFIED", 0, "Unspecified"},
	EnumValue{"LOCATION_DATUM_WGS84_ELLIPSOID", 1, "WGS84 Ellipsoid"},
	EnumValue{"LOCATION_DATUM_WGS84_GEOID", 2, "WGS84 Geoid"},
)

var RangeBearingCoordinateSystemEnum = newEnum("RangeBearingCoordinateSystem",
	EnumValue{"RANGE_BEARING_COORDINATE_SYSTEM_UNSPECIFIED", 0, "Unspecified"},
	EnumValue{"RANGE_BEARING_COORDINATE_SYSTEM_DEGREES_M", 1, "Degrees Metres"},
	EnumValue{"RANGE_BEARING_COORDINATE_SYSTEM_RADIANS_M", 2, "Radians Metres"},
)

var RangeBearingDatumEnum = newEnum("RangeBearingDatum",
	EnumValue{"RANGE_BEARING_DATUM_UNSPECIFIED", 0, "Unspecified"},
	EnumValue{"RANGE_BEARING_DATUM_TRUE", 1, "True"},
	EnumValue{"RANGE_BEARING_DATUM_MAGNETIC", 2, "Magnetic"},
	EnumValue{"RANGE_BEARING_DATUM_GRID", 3, "Grid"},
	EnumValue{"RANGE_BEARING_DATUM_PLATFORM", 4, "Platform"},
)

var NodeTypeEnum = newEnum("NodeType",
	EnumValue{"NODE_TYPE_UNSPECIFIED", 0, "Unspecified"},
	EnumValue{"NODE_TYPE_RADAR", 1, "Radar"},
	EnumValue{"NODE_TYPE_CAMERA", 2, "Camera"},
	EnumValue{"NODE_TYPE_ACOUSTIC", 3, "Acoustic"},
	EnumValue{"NODE_TYPE_OTHER", 4, "Other"},
)

var ModeTypeEnum = newEnum("ModeType",
	EnumValue{"MODE_TYPE_UNSPECIFIED", 0, "Unspecified"},
	EnumValue{"MODE_TYPE_PERMANENT", 1, "Permanent"},
	EnumValue{"MODE_TYPE_TEMPORARY", 2, "Temporary"},
)

var CommandTypeEnum = newEnum("CommandType",
	EnumValue{"COMMAND_TYPE_UNSPECIFIED", 0, "Unspecified"},
	EnumValue{"COMMAND_TYPE_REQUEST", 1, "Request"},
	EnumValue{"COMMAND_TYPE_DETECTION_THRESHOLD", 2, "DetectionThreshold"},
	EnumValue{"COMMAND_TYPE_LOOK_AT", 3, "LookAt"},
	EnumValue{"COMMAND_TYPE_MOVE_TO", 4, "MoveTo"},
	EnumValue{"COMMAND_TYPE_PATROL", 5, "Patrol"},
	EnumValue{"COMMAND_TYPE_FOLLOW", 6, "Follow"},
)

var RegionTypeEnum = newEnum("RegionType",
	EnumValue{"REGION_TYPE_UNSPECIFIED", 0, "Unspecified"},
	EnumValue{"REGION_TYPE_AREA_OF_INTEREST", 1, "Area Of Interest"},
	EnumValue{"REGION_TYPE_IGNORE", 2, "Ignore"},
	EnumValue{"REGION_TYPE_BOUNDARY", 3, "Boundary"},
)

var StatusSystemEnum = newEnum("System",
	EnumValue{"SYSTEM_UNSPECIFIED", 0, "Unspecified"},
	EnumValue{"SYSTEM_OK", 1, "OK"},
	EnumValue{"SYSTEM_ERROR", 2, "Error"},
	EnumValue{"SYSTEM_TAMPER", 3, "Tamper"},
	EnumValue{"SYSTEM_GOODBYE", 4, "GoodBye"},
)

var StatusInfoEnum = newEnum("Info",
	EnumValue{"INFO_UNSPECIFIED", 0, "Unspecified"},
	EnumValue{"INFO_NEW", 1, "New"},
	EnumValue{"INFO_UNCHANGED", 2, "Unchanged"},
)

var TaskStatusEnum = newEnum("TaskStatus",
	EnumValue{"TASK_STATUS_UNSPECIFIED", 0, "Unspecified"},
	EnumValue{"TASK_STATUS_ACCEPTED", 1, "Accepted"},
	EnumValue{"TASK_STATUS_REJECTED", 2, "Rejected"},
	EnumValue{"TASK_STATUS_COMPLETED", 3, "Completed"},
	EnumValue{"TASK_STATUS_FAILED", 4, "Failed"},
)

var AlertTypeEnum = newEnum("AlertType",
	EnumValue{"ALERT_TYPE_UNSPECIFIED", 0, "Unspecified"},
	EnumValue{"ALERT_TYPE_INFORMATION", 1, "Information"},
	EnumValue{"ALERT_TYPE_WARNING", 2, "Warning"},
	EnumValue{"ALERT_TYPE_CRITICAL", 3, "Critical"},
	EnumValue{"ALERT_TYPE_MODE_CHANGE", 4, "Mode Change"},
)

var AlertStatusEnum = newEnum("AlertStatus",
	EnumValue{"ALERT_STATUS_UNSPECIFIED", 0, "Unspecified"},
	EnumValue{"ALERT_STATUS_ACKNOWLEDGED", 1, "Acknowledged"},
	EnumValue{"ALERT_STATUS_REJECTED", 2, "Rejected"},
	EnumValue{"ALERT_STATUS_CANCELLED", 3, "Cancelled"},
)

// Shared component messages; identical shape in both binary versions.

var LocationDesc = newMessage("Location",
	&FieldDescriptor{Name: "x", Number: 1, Kind: KindDouble, Mandatory: true, XMLName: "X"},
	&FieldDescriptor{Name: "y", Number: 2, Kind: KindDouble, Mandatory: true, XMLName: "Y"},
	&FieldDescriptor{Name: "z", Number: 3, Kind: KindDouble, XMLName: "Z"},
	&FieldDescriptor{Name: "x_error", Number: 4, Kind: KindDouble, XMLName: "eX"},
	&FieldDescriptor{Name: "y_error", Number: 5, Kind: KindDouble, XMLName: "eY"},
	&FieldDescriptor{Name: "z_error", Number: 6, Kind: KindDouble, XMLName: "eZ"},
	&FieldDescriptor{Name: "coordinate_system", Number: 7, Kind: KindEnum, Enum: LocationCoordinateSystemEnum, Mandatory: true},
	&FieldDescriptor{Name: "datum", Number: 8, Kind: KindEnum, Enum: LocationDatumEnum, Mandatory: true},
)

var RangeBearingDesc = newMessage("RangeBearing",
	&FieldDescriptor{Name: "elevation", Number: 1, Kind: KindDouble, XMLName: "Ele"},
	&FieldDescriptor{Name: "azimuth", Number: 2, Kind: KindDouble, Mandatory: true, XMLName: "Az"},
	&FieldDescriptor{Name: "range", Number: 3, Kind: KindDouble, Mandatory: true, XMLName: "R"},
	&FieldDescriptor{Name: "elevation_error", Number: 4, Kind: KindDouble, XMLName: "eEle"},
	&FieldDescriptor{Name: "azimuth_error", Number: 5, Kind: KindDouble, XMLName: "eAz"},
	&FieldDescriptor{Name: "range_error", Number: 6, Kind: KindDouble, XMLName: "eR"},
	&FieldDescriptor{Name: "coordinate_system", Number: 7, Kind: KindEnum, Enum: RangeBearingCoordinateSystemEnum, Mandatory: true},
	&FieldDescriptor{Name: "datum", Number: 8, Kind: KindEnum, Enum: RangeBearingDatumEnum, Mandatory: true},
)

var RangeBearingConeDesc = newMessage("RangeBearingCone",
	&FieldDescriptor{Name: "elevation", Number: 1, Kind: KindDouble, XMLName: "Ele"},
	&FieldDescriptor{Name: "azimuth", Number: 2, Kind: KindDouble, Mandatory: true, XMLName: "Az"},
	&FieldDescriptor{Name: "range", Number: 3, Kind: KindDouble, XMLName: "R"},
	&FieldDescriptor{Name: "horizontal_extent", Number: 4, Kind: KindDouble, Mandatory: true, XMLName: "hExtent"},
	&FieldDescriptor{Name: "vertical_extent", Number: 5, Kind: KindDouble, XMLName: "vExtent"},
	&FieldDescriptor{Name: "coordinate_system", Number: 6, Kind: KindEnum, Enum: RangeBearingCoordinateSystemEnum, Mandatory: true},
	&FieldDescriptor{Name: "datum", Number: 7, Kind: KindEnum, Enum: RangeBearingDatumEnum, Mandatory: true},
)

var LocationListDesc = newMessage("LocationList",
	&FieldDescriptor{Name: "location", Number: 1, Kind: KindMessage, Message: LocationDesc, Repeated: true, Mandatory: true},
)

var RegionAreaDesc = func() *MessageDescriptor {
	md := newMessage("RegionArea",
		&FieldDescriptor{Name: "location_list", Number: 1, Kind: KindMessage, Message: LocationListDesc, Oneof: "area"},
		&FieldDescriptor{Name: "range_bearing_cone", Number: 2, Kind: KindMessage, Message: RangeBearingConeDesc, Oneof: "area"},
	)
	md.MandatoryOneofs = []string{"area"}
	return md
}()

var RegionDesc = newMessage("Region",
	&FieldDescriptor{Name: "type", Number: 1, Kind: KindEnum, Enum: RegionTypeEnum},
	&FieldDescriptor{Name: "region_id", Number: 2, Kind: KindString, IsULID: true, Mandatory: true, XMLName: "regionID"},
	&FieldDescriptor{Name: "region_name", Number: 3, Kind: KindString},
	&FieldDescriptor{Name: "region_area", Number: 4, Kind: KindMessage, Message: RegionAreaDesc, Mandatory: true},
)

var AssociatedDetectionDesc = newMessage("AssociatedDetection",
	&FieldDescriptor{Name: "timestamp", Number: 1, Kind: KindInt64, TimeValue: true},
	&FieldDescriptor{Name: "object_id", Number: 2, Kind: KindString, IsULID: true, Mandatory: true, XMLName: "objectID"},
)

var SubClassDesc = newMessage("SubClass",
	&FieldDescriptor{Name: "type", Number: 1, Kind: KindString, Mandatory: true, XMLAttribute: true},
	&FieldDescriptor{Name: "confidence", Number: 2, Kind: KindDouble, XMLAttribute: true},
	&FieldDescriptor{Name: "level", Number: 3, Kind: KindInt32, XMLAttribute: true},
)

var ClassificationDesc = newMessage("Classification",
	&FieldDescriptor{Name: "type", Number: 1, Kind: KindString, Mandatory: true, XMLAttribute: true},
	&FieldDescriptor{Name: "confidence", Number: 2, Kind: KindDouble, XMLAttribute: true},
	&FieldDescriptor{Name: "sub_class", Number: 3, Kind: KindMessage, Message: SubClassDesc, Repeated: true, XMLName: "subClass"},
)

var DetectionReportDesc = func() *MessageDescriptor {
	md := newMessage("DetectionReport",
		&FieldDescriptor{Name: "report_id", Number: 1, Kind: KindString, IsULID: true, Mandatory: true, XMLName: "reportID"},
		&FieldDescriptor{Name: "object_id", Number: 2, Kind: KindString, IsULID: true, Mandatory: true, XMLName: "objectID"},
		&FieldDescriptor{Name: "task_id", Number: 3, Kind: KindString, IsULID: true, XMLName: "taskID"},
		&FieldDescriptor{Name: "state", Number: 4, Kind: KindString},
		&FieldDescriptor{Name: "detection_confidence", Number: 5, Kind: KindDouble},
		&FieldDescriptor{Name: "location", Number: 6, Kind: KindMessage, Message: LocationDesc, Oneof: "location_oneof"},
		&FieldDescriptor{Name: "range_bearing", Number: 7, Kind: KindMessage, Message: RangeBearingDesc, Oneof: "location_oneof"},
		&FieldDescriptor{Name: "classification", Number: 8, Kind: KindMessage, Message: ClassificationDesc, Repeated: true, XMLName: "class"},
		&FieldDescriptor{Name: "associated_detection", Number: 9, Kind: KindMessage, Message: AssociatedDetectionDesc, Repeated: true},
		&FieldDescriptor{Name: "colour", Number: 10, Kind: KindString, Tentative: true},
	)
	md.XMLName = "DetectionReport"
	md.MandatoryOneofs = []string{"location_oneof"}
	return md
}()

var AlertDesc = func() *MessageDescriptor {
	md := newMessage("Alert",
		&FieldDescriptor{Name: "alert_id", Number: 1, Kind: KindString, IsULID: true, Mandatory: true, XMLName: "alertID"},
		&FieldDescriptor{Name: "alert_type", Number: 2, Kind: KindEnum, Enum: AlertTypeEnum},
		&FieldDescriptor{Name: "status", Number: 3, Kind: KindEnum, Enum: AlertStatusEnum},
		&FieldDescriptor{Name: "description", Number: 4, Kind: KindString},
		&FieldDescriptor{Name: "location", Number: 5, Kind: KindMessage, Message: LocationDesc, Oneof: "location_oneof"},
		&FieldDescriptor{Name: "range_bearing", Number: 6, Kind: KindMessage, Message: RangeBearingDesc, Oneof: "location_oneof"},
		&FieldDescriptor{Name: "region_id", Number: 7, Kind: KindString, IsULID: true, XMLName: "regionID"},
		&FieldDescriptor{Name: "priority", Number: 8, Kind: KindString},
		&FieldDescriptor{Name: "ranking", Number: 9, Kind: KindFloat},
		&FieldDescriptor{Name: "confidence", Number: 10, Kind: KindDouble},
		&FieldDescriptor{Name: "associated_detection", Number: 11, Kind: KindMessage, Message: AssociatedDetectionDesc, Repeated: true},
	)
	md.XMLName = "Alert"
	return md
}()

// Registration components shared by both versions.

var NodeDefinitionDesc = newMessage("NodeDefinition",
	&FieldDescriptor{Name: "node_type", Number: 1, Kind: KindEnum, Enum: NodeTypeEnum},
	&FieldDescriptor{Name: "node_sub_type", Number: 2, Kind: KindString},
)

var CapabilityDesc = newMessage("Capability",
	&FieldDescriptor{Name: "category", Number: 1, Kind: KindString, XMLAttribute: true},
	&FieldDescriptor{Name: "type", Number: 2, Kind: KindString, Mandatory: true, XMLAttribute: true},
	&FieldDescriptor{Name: "units", Number: 3, Kind: KindString, XMLAttribute: true},
	&FieldDescriptor{Name: "value", Number: 4, Kind: KindString, XMLText: true},
)

var LocationTypeDesc = newMessage("LocationType",
	&FieldDescriptor{Name: "location_units", Number: 1, Kind: KindEnum, Enum: LocationCoordinateSystemEnum, Oneof: "units", XMLAttribute: true},
	&FieldDescriptor{Name: "range_bearing_units", Number: 2, Kind: KindEnum, Enum: RangeBearingCoordinateSystemEnum, Oneof: "units", XMLAttribute: true},
	&FieldDescriptor{Name: "location_datum", Number: 3, Kind: KindEnum, Enum: LocationDatumEnum, Oneof: "datum", XMLAttribute: true},
	&FieldDescriptor{Name: "range_bearing_datum", Number: 4, Kind: KindEnum, Enum: RangeBearingDatumEnum, Oneof: "datum", XMLAttribute: true},
)

var DetectionPerformanceDesc = newMessage("DetectionPerformance",
	&FieldDescriptor{Name: "type", Number: 1, Kind: KindString, Mandatory: true, XMLAttribute: true},
	&FieldDescriptor{Name: "value", Number: 2, Kind: KindString, XMLAttribute: true},
	&FieldDescriptor{Name: "units", Number: 3, Kind: KindString, XMLAttribute: true},
)

var ClassPerformanceDesc = newMessage("ClassPerformance",
	&FieldDescriptor{Name: "type", Number: 1, Kind: KindString, Mandatory: true, XMLAttribute: true},
	&FieldDescriptor{Name: "value", Number: 2, Kind: KindString, XMLAttribute: true},
	&FieldDescriptor{Name: "units", Number: 3, Kind: KindString, XMLAttribute: true},
)

var SubClassDefinitionDesc = newMessage("SubClassDefinition",
	&FieldDescriptor{Name: "type", Number: 1, Kind: KindString, Mandatory: true, XMLAttribute: true},
	&FieldDescriptor{Name: "level", Number: 2, Kind: KindInt32, XMLAttribute: true},
	&FieldDescriptor{Name: "units", Number: 3, Kind: KindString, XMLAttribute: true},
)

var ClassDefinitionDesc = newMessage("ClassDefinition",
	&FieldDescriptor{Name: "type", Number: 1, Kind: KindString, Mandatory: true, XMLAttribute: true},
	&FieldDescriptor{Name: "units", Number: 2, Kind: KindString, XMLAttribute: true},
	&FieldDescriptor{Name: "sub_class_definition", Number: 3, Kind: KindMessage, Message: SubClassDefinitionDesc, Repeated: true, XMLName: "subClassDefinition"},
)

var DetectionDefinitionDesc = newMessage("DetectionDefinition",
	&FieldDescriptor{Name: "location_type", Number: 1, Kind: KindMessage, Message: LocationTypeDesc, Mandatory: true},
	&FieldDescriptor{Name: "detection_performance", Number: 2, Kind: KindMessage, Message: DetectionPerformanceDesc, Repeated: true},
	&FieldDescriptor{Name: "class_performance", Number: 3, Kind: KindMessage, Message: ClassPerformanceDesc, Repeated: true},
	&FieldDescriptor{Name: "class_definition", Number: 4, Kind: KindMessage, Message: ClassDefinitionDesc, Repeated: true},
)

var CompletionTimeDesc = newMessage("CompletionTime",
	&FieldDescriptor{Name: "units", Number: 1, Kind: KindString, XMLAttribute: true},
	&FieldDescriptor{Name: "value", Number: 2, Kind: KindInt64, XMLAttribute: true},
)

var ConfigDataDesc = newMessage("ConfigData",
	&FieldDescriptor{Name: "manufacturer", Number: 1, Kind: KindString, Mandatory: true},
	&FieldDescriptor{Name: "model", Number: 2, Kind: KindString, Mandatory: true},
)

var TaskCommandDesc = newMessage("TaskCommand",
	&FieldDescriptor{Name: "request", Number: 1, Kind: KindString},
	&FieldDescriptor{Name: "command_parameter", Number: 2, Kind: KindString},
)
