// Package translate converts decoded envelopes between adjacent binary
// protocol versions. Each step works on the generic map form: the source
// envelope is flattened, reshaped by explicit per-content transforms, and
// rebuilt against the target version's descriptor table. A step that cannot
// produce a well-formed target message returns an error; nothing is ever
// silently replaced with an empty message.
package translate

import (
	"fmt"
	"strings"

	"github.com/dstl/Apex-SAPIENT-Middleware/sapient"
)

// ToVersion translates an envelope from one version to another, stepping
// through adjacent versions in order. The legacy XML dialect shares the V1
// table, so both endpoints are clamped to the binary chain first. When no
// step is needed the input message is returned unchanged.
func ToVersion(m *sapient.Message, from, to sapient.Version) (*sapient.Message, error) {
	cur := from.Binary()
	target := to.Binary()
	for cur != target {
		var err error
		if cur < target {
			m, err = Upgrade(m, cur)
			cur = cur.Next()
		} else {
			m, err = Downgrade(m, cur)
			cur = cur.Prev().Binary()
		}
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Upgrade translates an envelope one version up the chain.
func Upgrade(m *sapient.Message, from sapient.Version) (*sapient.Message, error) {
	if from.Binary() != sapient.VersionBSIFlex335V1 {
		return nil, fmt.Errorf("no upgrade step from %s", from)
	}
	form := sapient.ToMap(m)
	if err := upgradeContent(form); err != nil {
		return nil, fmt.Errorf("upgrade to %s: %w", sapient.VersionBSIFlex335V2, err)
	}
	out, err := sapient.FromMap(sapient.EnvelopeV2, form)
	if err != nil {
		return nil, fmt.Errorf("upgrade to %s: %w", sapient.VersionBSIFlex335V2, err)
	}
	return out, nil
}

// Downgrade translates an envelope one version down the chain.
func Downgrade(m *sapient.Message, from sapient.Version) (*sapient.Message, error) {
	if from != sapient.VersionBSIFlex335V2 {
		return nil, fmt.Errorf("no downgrade step from %s", from)
	}
	form := sapient.ToMap(m)
	if err := downgradeContent(form); err != nil {
		return nil, fmt.Errorf("downgrade to %s: %w", sapient.VersionBSIFlex335V1, err)
	}
	out, err := sapient.FromMap(sapient.EnvelopeV1, form)
	if err != nil {
		return nil, fmt.Errorf("downgrade to %s: %w", sapient.VersionBSIFlex335V1, err)
	}
	return out, nil
}

func upgradeContent(form map[string]any) error {
	switch {
	case form["registration"] != nil:
		return upgradeRegistration(form)
	case form["registration_ack"] != nil:
		return singleToRepeated(form, "registration_ack", "ack_response_reason")
	case form["status_report"] != nil:
		return upgradeStatusReport(form)
	case form["task"] != nil:
		return upgradeTask(form)
	case form["task_ack"] != nil:
		return singleToRepeated(form, "task_ack", "reason")
	case form["alert_ack"] != nil:
		return upgradeAlertAck(form)
	case form["error"] != nil:
		return singleToRepeated(form, "error", "error_message")
	}
	// Detections and alerts are shaped identically in both versions.
	return nil
}

func downgradeContent(form map[string]any) error {
	switch {
	case form["registration"] != nil:
		return downgradeRegistration(form)
	case form["registration_ack"] != nil:
		return repeatedToSingle(form, "registration_ack", "ack_response_reason")
	case form["status_report"] != nil:
		return downgradeStatusReport(form)
	case form["task"] != nil:
		// CONTROL_DEFAULT no longer exists above v1; there is nothing to
		// restore on the way down.
		return nil
	case form["task_ack"] != nil:
		return repeatedToSingle(form, "task_ack", "reason")
	case form["alert_ack"] != nil:
		return downgradeAlertAck(form)
	case form["error"] != nil:
		return repeatedToSingle(form, "error", "error_message")
	}
	return nil
}

func contentMap(form map[string]any, key string) (map[string]any, error) {
	sub, ok := form[key].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("content %s is %T, want a message", key, form[key])
	}
	return sub, nil
}

func upgradeRegistration(form map[string]any) error {
	reg, err := contentMap(form, "registration")
	if err != nil {
		return err
	}
	reg["icd_version"] = sapient.VersionBSIFlex335V2.String()

	// config_data is new and mandatory; nothing in v1 carries the real
	// values, so a placeholder entry is filled in.
	reg["config_data"] = []any{map[string]any{
		"manufacturer": "manufacturer",
		"model":        "model",
	}}

	for _, md := range listOf(reg, "mode_definition") {
		mode, ok := md.(map[string]any)
		if !ok {
			return fmt.Errorf("mode_definition entry is %T, want a message", md)
		}
		// The v1 shapes of these two fields contradicted the standard;
		// v2 swaps their cardinality.
		convertSingleToRepeated(mode, "detection_definition")
		convertRepeatedToSingle(mode, "task")

		if task, ok := mode["task"].(map[string]any); ok {
			for _, c := range listOf(task, "command") {
				if command, ok := c.(map[string]any); ok {
					delete(command, "name")
				}
			}
		}
	}
	return nil
}

func downgradeRegistration(form map[string]any) error {
	reg, err := contentMap(form, "registration")
	if err != nil {
		return err
	}
	reg["icd_version"] = sapient.VersionBSIFlex335V1.String()
	delete(reg, "dependent_nodes")
	delete(reg, "reporting_region")
	delete(reg, "config_data")

	for _, md := range listOf(reg, "mode_definition") {
		mode, ok := md.(map[string]any)
		if !ok {
			return fmt.Errorf("mode_definition entry is %T, want a message", md)
		}
		convertRepeatedToSingle(mode, "detection_definition")
		convertSingleToRepeated(mode, "task")

		// The v1 command name is mandatory; rebuild it from the type enum.
		for _, tv := range listOf(mode, "task") {
			task, ok := tv.(map[string]any)
			if !ok {
				continue
			}
			for _, c := range listOf(task, "command") {
				command, ok := c.(map[string]any)
				if !ok {
					continue
				}
				if typeName, ok := command["type"].(string); ok {
					if name := enumNameToString(typeName, "COMMAND_TYPE_"); name != "" {
						command["name"] = name
					}
				}
			}
		}
	}
	return nil
}

func upgradeStatusReport(form map[string]any) error {
	sr, err := contentMap(form, "status_report")
	if err != nil {
		return err
	}
	convertSingleToRepeated(sr, "coverage")

	if power, ok := sr["power"].(map[string]any); ok {
		stringToEnumName(power, "source", "POWERSOURCE_")
		stringToEnumName(power, "status", "POWERSTATUS_")
	}

	for _, sv := range listOf(sr, "status") {
		status, ok := sv.(map[string]any)
		if !ok {
			return fmt.Errorf("status entry is %T, want a message", sv)
		}
		// The sensor-status level was removed in v2.
		if status["status_level"] == "STATUS_LEVEL_SENSOR_STATUS" {
			status["status_level"] = "STATUS_LEVEL_UNSPECIFIED"
		}
		stringToEnumName(status, "status_type", "STATUS_TYPE_")
	}
	return nil
}

func downgradeStatusReport(form map[string]any) error {
	sr, err := contentMap(form, "status_report")
	if err != nil {
		return err
	}
	convertRepeatedToSingle(sr, "coverage")

	if power, ok := sr["power"].(map[string]any); ok {
		enumNameToStringField(power, "source", "POWERSOURCE_")
		enumNameToStringField(power, "status", "POWERSTATUS_")
	}

	for _, sv := range listOf(sr, "status") {
		status, ok := sv.(map[string]any)
		if !ok {
			return fmt.Errorf("status entry is %T, want a message", sv)
		}
		enumNameToStringField(status, "status_type", "STATUS_TYPE_")
	}
	return nil
}

func upgradeTask(form map[string]any) error {
	task, err := contentMap(form, "task")
	if err != nil {
		return err
	}
	// The default-task control was removed in v2. Unspecified will fail
	// validation against the target version, which is the correct outcome
	// for a task that cannot be expressed there.
	if task["control"] == "CONTROL_DEFAULT" {
		task["control"] = "CONTROL_UNSPECIFIED"
	}
	return nil
}

func upgradeAlertAck(form map[string]any) error {
	ack, err := contentMap(form, "alert_ack")
	if err != nil {
		return err
	}
	convertSingleToRepeated(ack, "reason")
	if status, ok := ack["alert_status"].(string); ok {
		delete(ack, "alert_status")
		ack["alert_ack_status"] = strings.Replace(status, "ALERT_STATUS_", "ALERT_ACK_STATUS_", 1)
	}
	return nil
}

func downgradeAlertAck(form map[string]any) error {
	ack, err := contentMap(form, "alert_ack")
	if err != nil {
		return err
	}
	convertRepeatedToSingle(ack, "reason")
	if status, ok := ack["alert_ack_status"].(string); ok {
		delete(ack, "alert_ack_status")
		ack["alert_status"] = strings.Replace(status, "ALERT_ACK_STATUS_", "ALERT_STATUS_", 1)
	}
	return nil
}

func singleToRepeated(form map[string]any, content, field string) error {
	sub, err := contentMap(form, content)
	if err != nil {
		return err
	}
	convertSingleToRepeated(sub, field)
	return nil
}

func repeatedToSingle(form map[string]any, content, field string) error {
	sub, err := contentMap(form, content)
	if err != nil {
		return err
	}
	convertRepeatedToSingle(sub, field)
	return nil
}

func listOf(form map[string]any, key string) []any {
	list, _ := form[key].([]any)
	return list
}

func convertSingleToRepeated(form map[string]any, key string) {
	if v, ok := form[key]; ok {
		form[key] = []any{v}
	}
}

// convertRepeatedToSingle flattens a repeated field: strings are joined with
// commas, anything else keeps only the first entry.
func convertRepeatedToSingle(form map[string]any, key string) {
	list := listOf(form, key)
	if len(list) == 0 {
		delete(form, key)
		return
	}
	if _, ok := list[0].(string); ok {
		parts := make([]string, 0, len(list))
		for _, v := range list {
			s, _ := v.(string)
			parts = append(parts, s)
		}
		form[key] = strings.Join(parts, ",")
		return
	}
	form[key] = list[0]
}

// stringToEnumName rewrites a free-form value like "LookAt" or "Mains" into
// the prefixed enum name, inserting an underscore before each upper-case
// letter that follows a lower-case one.
func stringToEnumName(form map[string]any, key, prefix string) {
	value, ok := form[key].(string)
	if !ok || value == "" {
		return
	}
	var b strings.Builder
	for i, r := range value {
		if i > 0 && isUpper(r) && !isUpper(rune(value[i-1])) {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	form[key] = prefix + strings.ToUpper(b.String())
}

func enumNameToStringField(form map[string]any, key, prefix string) {
	if value, ok := form[key].(string); ok && value != "" {
		form[key] = enumNameToString(value, prefix)
	}
}

// enumNameToString rewrites a prefixed enum name like COMMAND_TYPE_LOOK_AT
// into its display form LookAt. OK stays as-is.
func enumNameToString(value, prefix string) string {
	value = strings.Replace(value, prefix, "", 1)
	if value == "" || value == "OK" {
		return value
	}
	parts := strings.Split(value, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + strings.ToLower(p[1:])
	}
	return strings.Join(parts, "")
}

func isUpper(r rune) bool {
	return r >= 'A' && r <= 'Z'
}
