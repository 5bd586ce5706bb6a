// Package parse turns framed wire bytes into message records. The binary
// and legacy-text paths converge on the same record shape so everything
// downstream is encoding-agnostic. Problems found while parsing become
// severity-classified errors on the record; only the record's owner decides
// what they mean for the connection.
package parse

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/beevik/etree"

	"github.com/dstl/Apex-SAPIENT-Middleware/errors"
	"github.com/dstl/Apex-SAPIENT-Middleware/idmap"
	"github.com/dstl/Apex-SAPIENT-Middleware/message"
	"github.com/dstl/Apex-SAPIENT-Middleware/pkg/timeutil"
	"github.com/dstl/Apex-SAPIENT-Middleware/sapient"
	"github.com/dstl/Apex-SAPIENT-Middleware/translate"
	"github.com/dstl/Apex-SAPIENT-Middleware/validate"
	"github.com/dstl/Apex-SAPIENT-Middleware/xmlcodec"
)

// Deps carries the collaborators a Parser needs.
type Deps struct {
	Logger    *slog.Logger
	Validator *validate.Validator
	IDs       *idmap.Registry
	Legacy    *xmlcodec.LegacyTranslator
}

// Options fixes the per-connection parsing behavior.
type Options struct {
	// Version is the connection's declared protocol version.
	Version sapient.Version
	// EnableConversion keeps a legacy-text mirror of every binary message.
	EnableConversion bool
	// AutoAssignNodeID splices a fresh sensor id into legacy registrations
	// that carry none.
	AutoAssignNodeID bool
}

// Parser decodes one connection's messages. It is not safe for concurrent
// use; the validator inside carries per-connection detection state.
type Parser struct {
	logger    *slog.Logger
	validator *validate.Validator
	ids       *idmap.Registry
	legacy    *xmlcodec.LegacyTranslator
	opts      Options
}

// New validates the dependencies and builds a parser.
func New(deps Deps, opts Options) (*Parser, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("parse.New: missing logger")
	}
	if deps.Validator == nil {
		return nil, fmt.Errorf("parse.New: missing validator")
	}
	if deps.IDs == nil {
		return nil, fmt.Errorf("parse.New: missing identifier registry")
	}
	if deps.Legacy == nil {
		return nil, fmt.Errorf("parse.New: missing legacy translator")
	}
	if opts.Version == sapient.VersionUnknown {
		return nil, fmt.Errorf("parse.New: missing protocol version")
	}
	return &Parser{
		logger:    deps.Logger.With("component", "parse"),
		validator: deps.Validator,
		ids:       deps.IDs,
		legacy:    deps.Legacy,
		opts:      opts,
	}, nil
}

// Binary parses one length-framed binary message.
func (p *Parser) Binary(received message.ReceivedData) *message.Record {
	record := &message.Record{
		Received:  received,
		Binary:    received.Data,
		DecodedAt: time.Now().UTC(),
		Version:   p.opts.Version,
	}

	env, err := sapient.Unmarshal(p.opts.Version.Envelope(), received.Data)
	if err != nil {
		record.AddError(errors.Noisy("DecodeError: %v", err))
		return record
	}
	if mirror, err := message.EnvelopeJSON(env); err == nil {
		record.JSON = mirror
	}

	if p.validator.Required() {
		if errs := p.validator.ValidateEnvelope(env, received.Timestamp, true); len(errs) > 0 {
			record.AddError(errors.Noisy("%s", validate.Summarize(errs)))
			return record
		}
	}

	nodeULID := env.GetString("node_id")
	var legacyID int32
	var legacyElem *etree.Element
	if p.opts.EnableConversion {
		legacyElem, err = p.legacyMirror(env, record)
		if err != nil {
			record.AddError(errors.Noisy("TranslationError: %v", err))
			return record
		}
		if nodeULID != "" {
			legacyID, _ = p.ids.NodeLegacy(nodeULID)
		} else {
			nodeULID = p.ids.NewULID()
			legacyID = p.ids.EnsureNode(nodeULID)
		}
	}

	if done := p.summarizeContent(env, nodeULID, record); done {
		return record
	}

	record.Parsed = parsedInfo(env, nodeULID, legacyID, legacyElem)
	return record
}

// legacyMirror translates the envelope to v1 and renders the legacy text
// onto the record.
func (p *Parser) legacyMirror(env *sapient.Message, record *message.Record) (*etree.Element, error) {
	v1, err := translate.ToVersion(env, p.opts.Version, sapient.VersionBSIFlex335V1)
	if err != nil {
		return nil, err
	}
	elem, err := p.legacy.FromV1(v1)
	if err != nil {
		return nil, err
	}
	text, err := renderXML(elem)
	if err != nil {
		return nil, err
	}
	record.DecodedXML = text
	return elem, nil
}

// summarizeContent fills the registration or status-report summary and the
// silent handling of received Error payloads. Returns true when the record
// is complete and must not be forwarded further through parsing.
func (p *Parser) summarizeContent(env *sapient.Message, nodeULID string, record *message.Record) bool {
	switch env.WhichOneof("content") {
	case "registration":
		if nodeULID == "" {
			record.AddError(errors.Noisy("Registration missing node ID"))
			return true
		}
		record.Registration = &message.Registration{
			NodeName: env.GetMessage("registration").GetString("short_name"),
		}
	case "status_report":
		sr := env.GetMessage("status_report")
		info := sr.GetInt32("info")
		if info != statusInfoNew && info != statusInfoUnchanged {
			record.AddError(errors.Noisy("Unknown status info: %s", sr.GetEnumName("info")))
			return true
		}
		record.StatusReport = &message.StatusReport{
			System:      strings.TrimPrefix(sr.GetEnumName("system"), "SYSTEM_"),
			IsUnchanged: info == statusInfoUnchanged,
		}
	case "error":
		record.AddError(errors.Silent("%s", errorText(env.GetMessage("error"))))
	}
	return false
}

const (
	statusInfoNew       = int32(1)
	statusInfoUnchanged = int32(2)
)

// errorText joins a received Error payload's messages; the field is singular
// in v1 and repeated in v2.
func errorText(errMsg *sapient.Message) string {
	if errMsg.Descriptor().FieldByName("error_message").Repeated {
		parts := make([]string, 0, 1)
		for _, v := range errMsg.List("error_message") {
			if s, ok := v.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ",")
	}
	return errMsg.GetString("error_message")
}

func parsedInfo(env *sapient.Message, nodeULID string, legacyID int32, xml *etree.Element) *message.ParsedInfo {
	info := &message.ParsedInfo{
		ContentKind:   env.WhichOneof("content"),
		NodeID:        nodeULID,
		LegacyID:      legacyID,
		DestinationID: env.GetString("destination_id"),
		Timestamp:     env.GetTime("timestamp"),
		Envelope:      env,
		XML:           xml,
	}
	if dr := env.GetMessage("detection_report"); dr != nil {
		info.DetectionConfidence = dr.GetDouble("detection_confidence")
	}
	return info
}

// XML parses one NUL-terminated legacy-text message.
func (p *Parser) XML(received message.ReceivedData) *message.Record {
	record := &message.Record{
		Received:  received,
		DecodedAt: time.Now().UTC(),
		Version:   sapient.VersionXML6,
	}

	data := received.Data
	if n := len(data); n > 0 && data[n-1] == 0 {
		data = data[:n-1]
	}
	if !utf8.Valid(data) {
		record.DecodedXML = strings.ToValidUTF8(string(data), "�")
		record.AddError(errors.Noisy("message is not valid UTF-8"))
		return record
	}
	record.DecodedXML = string(data)

	doc := etree.NewDocument()
	if err := doc.ReadFromString(strings.TrimSpace(record.DecodedXML)); err != nil {
		record.AddError(errors.Noisy("%v", err))
		return record
	}
	root := doc.Root()
	if root == nil {
		record.AddError(errors.Noisy("message has no root element"))
		return record
	}

	// Silence errors about errors, or two gateways ping-pong forever.
	if root.Tag == "Error" {
		record.AddError(errors.Silent(`Received "Error" message`))
		return record
	}

	children, err := legacyChildren(root, p.opts.AutoAssignNodeID)
	if err != nil {
		record.AddError(errors.Noisy("%v", err))
		return record
	}

	_, haveSensorID := children["sensorID"]
	if root.Tag == "SensorRegistration" && !haveSensorID && p.opts.AutoAssignNodeID {
		id := p.ids.NextLegacyID()
		if err := spliceSensorID(root, id); err != nil {
			record.AddError(errors.Noisy("%v", err))
			return record
		}
		children["sensorID"] = strconv.FormatInt(int64(id), 10)
	}

	info := &message.ParsedInfo{XML: root}
	if raw := children["sensorID"]; raw != "" {
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			record.AddError(errors.Noisy("Invalid sensor ID %q: %v", raw, err))
			return record
		}
		info.LegacyID = int32(n)
	}
	at, err := timeutil.Parse(strings.TrimSpace(children["timestamp"]))
	if err != nil {
		record.AddError(errors.Noisy("Invalid timestamp %q: %v", children["timestamp"], err))
		return record
	}
	info.Timestamp = at
	if raw, ok := children["detectionConfidence"]; ok {
		conf, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			record.AddError(errors.Noisy("Invalid detectionConfidence %q: %v", raw, err))
			return record
		}
		info.DetectionConfidence = conf
	}
	record.Parsed = info

	env, convErrs := p.legacy.ToV1(root)
	if env == nil {
		record.AddError(errors.Noisy("%s", strings.Join(convErrs, "\n")))
		return record
	}
	if len(convErrs) > 0 {
		p.logger.Error("errors while converting legacy message",
			"tag", root.Tag, "errors", strings.Join(convErrs, "\n"))
	}
	info.Envelope = env
	info.ContentKind = env.WhichOneof("content")

	// Contents were produced by our own translation; only the envelope
	// checks apply to what actually arrived on the wire.
	if p.validator.Required() {
		if errs := p.validator.ValidateEnvelope(env, received.Timestamp, false); len(errs) > 0 {
			record.AddError(errors.Noisy("%s", validate.Summarize(errs)))
			return record
		}
	}

	switch root.Tag {
	case "SensorRegistration":
		record.Registration = &message.Registration{NodeName: children["sensorType"]}
	case "StatusReport":
		switch strings.ToLower(children["info"]) {
		case "new":
			record.StatusReport = &message.StatusReport{System: children["system"]}
		case "unchanged":
			record.StatusReport = &message.StatusReport{System: children["system"], IsUnchanged: true}
		default:
			record.AddError(errors.Noisy(`Field "info" of StatusReport must be "New" or "Unchanged"`))
			return record
		}
	}

	if encoded, err := sapient.Marshal(env); err == nil {
		record.Binary = encoded
	} else {
		record.AddError(errors.Noisy("re-encoding failed: %v", err))
		return record
	}
	if mirror, err := message.EnvelopeJSON(env); err == nil {
		record.JSON = mirror
	}
	info.NodeID = env.GetString("node_id")
	info.DestinationID = env.GetString("destination_id")
	return record
}

// legacyChildren extracts the envelope-level child elements the pipeline
// needs before full conversion. sourceID and sensorID are equivalent.
func legacyChildren(root *etree.Element, allowMissingRegistrationID bool) (map[string]string, error) {
	required := map[string]bool{"timestamp": true}
	optional := map[string]bool{}
	if allowMissingRegistrationID && root.Tag == "SensorRegistration" {
		optional["sensorID"] = true
	} else {
		required["sensorID"] = true
	}
	switch root.Tag {
	case "StatusReport":
		required["system"] = true
		required["info"] = true
	case "SensorRegistration":
		required["sensorType"] = true
	case "DetectionReport":
		optional["detectionConfidence"] = true
	}

	children := make(map[string]string)
	for _, elem := range root.ChildElements() {
		tag := elem.Tag
		if tag == "sourceID" {
			tag = "sensorID"
		}
		if required[tag] {
			children[tag] = elem.Text()
			delete(required, tag)
		} else if optional[tag] {
			children[tag] = elem.Text()
			delete(optional, tag)
		}
	}
	if len(required) > 0 {
		missing := make([]string, 0, len(required))
		for tag := range required {
			if tag == "sensorID" {
				tag = "sensorID/sourceID"
			}
			missing = append(missing, tag)
		}
		sort.Strings(missing)
		return nil, fmt.Errorf("Missing element(s) [%s] in %s", strings.Join(missing, ","), root.Tag)
	}
	return children, nil
}

// spliceSensorID inserts a synthesized sensorID element immediately after
// the timestamp element, marked so the insertion is visible in the audit
// trail.
func spliceSensorID(root *etree.Element, id int32) error {
	for i, child := range root.Child {
		elem, ok := child.(*etree.Element)
		if !ok || elem.Tag != "timestamp" {
			continue
		}
		sensorID := etree.NewElement("sensorID")
		sensorID.SetText(strconv.FormatInt(int64(id), 10))
		root.InsertChildAt(i+1, sensorID)
		root.InsertChildAt(i+2, etree.NewComment("Added by Apex"))
		return nil
	}
	return fmt.Errorf("timestamp element not found")
}

func renderXML(elem *etree.Element) (string, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	doc.AddChild(elem.Copy())
	return doc.WriteToString()
}
