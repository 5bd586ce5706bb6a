package gateway

import (
	"fmt"

	"github.com/beevik/etree"

	"github.com/dstl/Apex-SAPIENT-Middleware/message"
	"github.com/dstl/Apex-SAPIENT-Middleware/sapient"
	"github.com/dstl/Apex-SAPIENT-Middleware/translate"
	"github.com/dstl/Apex-SAPIENT-Middleware/xmlcodec"
)

// Encoding names a connection's wire encoding, matching the configuration
// surface's "format" values.
type Encoding string

const (
	// EncodingBinary is the length-framed binary schema encoding.
	EncodingBinary Encoding = "PROTO"
	// EncodingXML is the NUL-terminated legacy text encoding.
	EncodingXML Encoding = "XML"
)

// Sink accepts one encoded payload for a connection. The server supplies it;
// framing and write buffering happen behind it.
type Sink func(payload []byte) error

// ConnectionWriter binds a sink to the connection's encoding and protocol
// version. Every message written through it is translated to that version
// and encoded for that wire, whatever form it started in.
type ConnectionWriter struct {
	sink     Sink
	legacy   *xmlcodec.LegacyTranslator
	encoding Encoding
	version  sapient.Version
}

// NewConnectionWriter builds a writer. The legacy translator is needed even
// for binary connections' peers, so it is always required.
func NewConnectionWriter(sink Sink, legacy *xmlcodec.LegacyTranslator, encoding Encoding, version sapient.Version) (*ConnectionWriter, error) {
	if sink == nil {
		return nil, fmt.Errorf("gateway.NewConnectionWriter: missing sink")
	}
	if legacy == nil {
		return nil, fmt.Errorf("gateway.NewConnectionWriter: missing legacy translator")
	}
	if encoding != EncodingBinary && encoding != EncodingXML {
		return nil, fmt.Errorf("gateway.NewConnectionWriter: unknown encoding %q", encoding)
	}
	if encoding == EncodingXML && version != sapient.VersionXML6 {
		return nil, fmt.Errorf("gateway.NewConnectionWriter: XML encoding requires version %s", sapient.VersionXML6)
	}
	return &ConnectionWriter{
		sink:     sink,
		legacy:   legacy,
		encoding: encoding,
		version:  version,
	}, nil
}

// Encoding returns the connection's wire encoding.
func (w *ConnectionWriter) Encoding() Encoding { return w.encoding }

// Version returns the connection's protocol version.
func (w *ConnectionWriter) Version() sapient.Version { return w.version }

// WriteRecord re-encodes a parsed record for this connection and writes it.
func (w *ConnectionWriter) WriteRecord(rec *message.Record) error {
	if rec.Parsed == nil {
		return fmt.Errorf("record has no parsed message")
	}
	if w.encoding == EncodingXML {
		if rec.Parsed.XML == nil {
			return fmt.Errorf("record has no legacy rendering; is conversion enabled?")
		}
		return w.writeElement(rec.Parsed.XML)
	}
	if rec.Parsed.Envelope == nil {
		return fmt.Errorf("record has no decoded envelope")
	}
	return w.WriteEnvelope(rec.Parsed.Envelope, rec.Version)
}

// WriteEnvelope translates a decoded envelope from the given version to the
// connection's version and writes it.
func (w *ConnectionWriter) WriteEnvelope(env *sapient.Message, from sapient.Version) error {
	if w.encoding == EncodingXML {
		v1, err := translate.ToVersion(env, from, sapient.VersionBSIFlex335V1)
		if err != nil {
			return err
		}
		elem, err := w.legacy.FromV1(v1)
		if err != nil {
			return err
		}
		return w.writeElement(elem)
	}
	out, err := translate.ToVersion(env, from, w.version)
	if err != nil {
		return err
	}
	data, err := sapient.Marshal(out)
	if err != nil {
		return err
	}
	return w.sink(data)
}

// WriteXML writes a legacy element directly. Only valid on XML connections.
func (w *ConnectionWriter) WriteXML(elem *etree.Element) error {
	if w.encoding != EncodingXML {
		return fmt.Errorf("connection is not XML encoded")
	}
	return w.writeElement(elem)
}

func (w *ConnectionWriter) writeElement(elem *etree.Element) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	doc.AddChild(elem.Copy())
	data, err := doc.WriteToBytes()
	if err != nil {
		return err
	}
	return w.sink(data)
}
