package sapient

// BSI Flex 335 v1.0 envelope and the content messages whose shape differs
// from v2. The legacy XML dialect decodes into this table.

var StatusLevelV1Enum = newEnum("StatusLevel",
	EnumValue{"STATUS_LEVEL_UNSPECIFIED", 0, "Unspecified"},
	EnumValue{"STATUS_LEVEL_SENSOR_STATUS", 1, "Sensor Status"},
	EnumValue{"STATUS_LEVEL_INFORMATION_STATUS", 2, "Information"},
	EnumValue{"STATUS_LEVEL_WARNING_STATUS", 3, "Warning"},
	EnumValue{"STATUS_LEVEL_ERROR_STATUS", 4, "Error"},
)

var TaskControlV1Enum = newEnum("TaskControl",
	EnumValue{"CONTROL_UNSPECIFIED", 0, "Unspecified"},
	EnumValue{"CONTROL_START", 1, "Start"},
	EnumValue{"CONTROL_STOP", 2, "Stop"},
	EnumValue{"CONTROL_PAUSE", 3, "Pause"},
	EnumValue{"CONTROL_DEFAULT", 4, "Default"},
)

var CommandV1Desc = newMessage("Command",
	&FieldDescriptor{Name: "name", Number: 1, Kind: KindString, Mandatory: true, XMLAttribute: true},
	&FieldDescriptor{Name: "units", Number: 2, Kind: KindString, XMLAttribute: true},
	&FieldDescriptor{Name: "completion_time", Number: 3, Kind: KindMessage, Message: CompletionTimeDesc},
	&FieldDescriptor{Name: "type", Number: 4, Kind: KindEnum, Enum: CommandTypeEnum, XMLAttribute: true},
)

var TaskDefinitionV1Desc = newMessage("TaskDefinition",
	&FieldDescriptor{Name: "command", Number: 1, Kind: KindMessage, Message: CommandV1Desc, Repeated: true},
	&FieldDescriptor{Name: "region_type", Number: 2, Kind: KindEnum, Enum: RegionTypeEnum, Repeated: true},
)

// ModeDefinition in v1 carries a singular detection definition and repeated
// tasks; v2 swaps both, matching the published standard.
var ModeDefinitionV1Desc = newMessage("ModeDefinition",
	&FieldDescriptor{Name: "mode_name", Number: 1, Kind: KindString, Mandatory: true},
	&FieldDescriptor{Name: "mode_type", Number: 2, Kind: KindEnum, Enum: ModeTypeEnum},
	&FieldDescriptor{Name: "mode_description", Number: 3, Kind: KindString},
	&FieldDescriptor{Name: "detection_definition", Number: 4, Kind: KindMessage, Message: DetectionDefinitionDesc},
	&FieldDescriptor{Name: "task", Number: 5, Kind: KindMessage, Message: TaskDefinitionV1Desc, Repeated: true},
)

var RegistrationV1Desc = func() *MessageDescriptor {
	md := newMessage("Registration",
		&FieldDescriptor{Name: "icd_version", Number: 1, Kind: KindString, Mandatory: true},
		&FieldDescriptor{Name: "name", Number: 2, Kind: KindString},
		&FieldDescriptor{Name: "short_name", Number: 3, Kind: KindString, XMLName: "sensorType"},
		&FieldDescriptor{Name: "node_definition", Number: 4, Kind: KindMessage, Message: NodeDefinitionDesc, Repeated: true, Mandatory: true},
		&FieldDescriptor{Name: "mode_definition", Number: 5, Kind: KindMessage, Message: ModeDefinitionV1Desc, Repeated: true},
		&FieldDescriptor{Name: "capabilities", Number: 6, Kind: KindMessage, Message: CapabilityDesc, Repeated: true},
	)
	md.XMLName = "SensorRegistration"
	return md
}()

var RegistrationAckV1Desc = func() *MessageDescriptor {
	md := newMessage("RegistrationAck",
		&FieldDescriptor{Name: "acceptance", Number: 1, Kind: KindBool, Mandatory: true},
		&FieldDescriptor{Name: "ack_response_reason", Number: 2, Kind: KindString},
	)
	md.XMLName = "SensorRegistrationACK"
	return md
}()

var PowerV1Desc = newMessage("Power",
	&FieldDescriptor{Name: "source", Number: 1, Kind: KindString},
	&FieldDescriptor{Name: "status", Number: 2, Kind: KindString},
	&FieldDescriptor{Name: "level", Number: 3, Kind: KindInt32},
)

var StatusV1Desc = newMessage("Status",
	&FieldDescriptor{Name: "status_level", Number: 1, Kind: KindEnum, Enum: StatusLevelV1Enum},
	&FieldDescriptor{Name: "status_type", Number: 2, Kind: KindString},
	&FieldDescriptor{Name: "status_value", Number: 3, Kind: KindString},
)

var StatusReportV1Desc = func() *MessageDescriptor {
	md := newMessage("StatusReport",
		&FieldDescriptor{Name: "report_id", Number: 1, Kind: KindString, IsULID: true, Mandatory: true, XMLName: "reportID"},
		&FieldDescriptor{Name: "system", Number: 2, Kind: KindEnum, Enum: StatusSystemEnum, Mandatory: true},
		&FieldDescriptor{Name: "info", Number: 3, Kind: KindEnum, Enum: StatusInfoEnum, Mandatory: true},
		&FieldDescriptor{Name: "active_task_id", Number: 4, Kind: KindString, IsULID: true, XMLName: "activeTaskID"},
		&FieldDescriptor{Name: "mode", Number: 5, Kind: KindString},
		&FieldDescriptor{Name: "power", Number: 6, Kind: KindMessage, Message: PowerV1Desc},
		&FieldDescriptor{Name: "sensor_location", Number: 7, Kind: KindMessage, Message: LocationDesc},
		&FieldDescriptor{Name: "field_of_view", Number: 8, Kind: KindMessage, Message: RangeBearingConeDesc},
		&FieldDescriptor{Name: "coverage", Number: 9, Kind: KindMessage, Message: LocationListDesc},
		&FieldDescriptor{Name: "status", Number: 10, Kind: KindMessage, Message: StatusV1Desc, Repeated: true},
		&FieldDescriptor{Name: "region", Number: 11, Kind: KindMessage, Message: RegionDesc, Repeated: true},
	)
	md.XMLName = "StatusReport"
	return md
}()

var TaskV1Desc = func() *MessageDescriptor {
	md := newMessage("Task",
		&FieldDescriptor{Name: "task_id", Number: 1, Kind: KindString, IsULID: true, Mandatory: true, XMLName: "taskID"},
		&FieldDescriptor{Name: "task_name", Number: 2, Kind: KindString},
		&FieldDescriptor{Name: "description", Number: 3, Kind: KindString},
		&FieldDescriptor{Name: "region", Number: 4, Kind: KindMessage, Message: RegionDesc, Repeated: true},
		&FieldDescriptor{Name: "command", Number: 5, Kind: KindMessage, Message: TaskCommandDesc},
		&FieldDescriptor{Name: "control", Number: 6, Kind: KindEnum, Enum: TaskControlV1Enum, Mandatory: true},
	)
	md.XMLName = "SensorTask"
	return md
}()

var TaskAckV1Desc = func() *MessageDescriptor {
	md := newMessage("TaskAck",
		&FieldDescriptor{Name: "task_id", Number: 1, Kind: KindString, IsULID: true, Mandatory: true, XMLName: "taskID"},
		&FieldDescriptor{Name: "task_status", Number: 2, Kind: KindEnum, Enum: TaskStatusEnum, Mandatory: true},
		&FieldDescriptor{Name: "reason", Number: 3, Kind: KindString},
	)
	md.XMLName = "SensorTaskACK"
	return md
}()

var AlertAckV1Desc = func() *MessageDescriptor {
	md := newMessage("AlertAck",
		&FieldDescriptor{Name: "alert_id", Number: 1, Kind: KindString, IsULID: true, Mandatory: true, XMLName: "alertID"},
		&FieldDescriptor{Name: "alert_status", Number: 2, Kind: KindEnum, Enum: AlertStatusEnum},
		&FieldDescriptor{Name: "reason", Number: 3, Kind: KindString},
	)
	md.XMLName = "AlertResponse"
	return md
}()

var ErrorV1Desc = func() *MessageDescriptor {
	md := newMessage("Error",
		&FieldDescriptor{Name: "packet", Number: 1, Kind: KindBytes},
		&FieldDescriptor{Name: "error_message", Number: 2, Kind: KindString},
	)
	md.XMLName = "Error"
	return md
}()

// EnvelopeV1 is the top-level SapientMessage for BSI Flex 335 v1.0.
var EnvelopeV1 = func() *MessageDescriptor {
	md := newMessage("SapientMessage",
		&FieldDescriptor{Name: "timestamp", Number: 1, Kind: KindTimestamp, Mandatory: true},
		&FieldDescriptor{Name: "node_id", Number: 2, Kind: KindString, IsULID: true, Mandatory: true, XMLName: "nodeId"},
		&FieldDescriptor{Name: "destination_id", Number: 3, Kind: KindString, IsULID: true, XMLName: "destinationId"},
		&FieldDescriptor{Name: "registration", Number: 5, Kind: KindMessage, Message: RegistrationV1Desc, Oneof: "content"},
		&FieldDescriptor{Name: "registration_ack", Number: 6, Kind: KindMessage, Message: RegistrationAckV1Desc, Oneof: "content"},
		&FieldDescriptor{Name: "status_report", Number: 7, Kind: KindMessage, Message: StatusReportV1Desc, Oneof: "content"},
		&FieldDescriptor{Name: "detection_report", Number: 8, Kind: KindMessage, Message: DetectionReportDesc, Oneof: "content"},
		&FieldDescriptor{Name: "task", Number: 9, Kind: KindMessage, Message: TaskV1Desc, Oneof: "content"},
		&FieldDescriptor{Name: "task_ack", Number: 10, Kind: KindMessage, Message: TaskAckV1Desc, Oneof: "content"},
		&FieldDescriptor{Name: "alert", Number: 11, Kind: KindMessage, Message: AlertDesc, Oneof: "content"},
		&FieldDescriptor{Name: "alert_ack", Number: 12, Kind: KindMessage, Message: AlertAckV1Desc, Oneof: "content"},
		&FieldDescriptor{Name: "error", Number: 13, Kind: KindMessage, Message: ErrorV1Desc, Oneof: "content"},
	)
	md.XMLName = "SapientMessage"
	md.MandatoryOneofs = []string{"content"}
	return md
}()
