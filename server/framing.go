package server

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dstl/Apex-SAPIENT-Middleware/errors"
	"github.com/dstl/Apex-SAPIENT-Middleware/gateway"
)

// readChunkSize is how much the frame reader pulls off the socket at a time.
const readChunkSize = 4096

// Frame wraps one encoded payload for the wire: binary payloads get a 4-byte
// little-endian length prefix, legacy text gets a trailing NUL.
func Frame(encoding gateway.Encoding, payload []byte) []byte {
	if encoding == gateway.EncodingXML {
		out := make([]byte, 0, len(payload)+1)
		out = append(out, payload...)
		return append(out, 0)
	}
	out := make([]byte, 4, 4+len(payload))
	binary.LittleEndian.PutUint32(out, uint32(len(payload)))
	return append(out, payload...)
}

// frameReader splits a connection's byte stream into messages. Not safe for
// concurrent use; one reader task owns it.
type frameReader struct {
	r        io.Reader
	encoding gateway.Encoding
	max      int

	buf []byte
}

func newFrameReader(r io.Reader, encoding gateway.Encoding, maxSize int) *frameReader {
	return &frameReader{r: r, encoding: encoding, max: maxSize}
}

// Next returns the next framed message. Legacy frames keep their trailing
// NUL; binary frames are returned without the length prefix. io.EOF means a
// clean close; any pending bytes stay readable via Outstanding.
func (f *frameReader) Next() ([]byte, error) {
	for {
		if msg, ok, err := f.takeFrame(); err != nil || ok {
			return msg, err
		}
		chunk := make([]byte, readChunkSize)
		n, err := f.r.Read(chunk)
		if n > 0 {
			f.buf = append(f.buf, chunk[:n]...)
		}
		if err != nil {
			// A frame completed by the final chunk still counts.
			if msg, ok, ferr := f.takeFrame(); ferr != nil || ok {
				return msg, ferr
			}
			return nil, err
		}
	}
}

// Outstanding returns bytes read off the wire but not part of any complete
// frame. Used for the disconnect reason when a peer closes mid-message.
func (f *frameReader) Outstanding() []byte {
	return f.buf
}

func (f *frameReader) takeFrame() ([]byte, bool, error) {
	if f.encoding == gateway.EncodingXML {
		return f.takeDelimited()
	}
	return f.takeSizePrefixed()
}

func (f *frameReader) takeDelimited() ([]byte, bool, error) {
	for i, b := range f.buf {
		if b == 0 {
			msg := f.buf[:i+1]
			f.buf = f.buf[i+1:]
			return msg, true, nil
		}
	}
	if len(f.buf) > f.max {
		return nil, false, fmt.Errorf("%w (pending %d > %d)",
			errors.ErrMessageTooLong, len(f.buf), f.max)
	}
	return nil, false, nil
}

func (f *frameReader) takeSizePrefixed() ([]byte, bool, error) {
	if len(f.buf) < 4 {
		return nil, false, nil
	}
	size := int(binary.LittleEndian.Uint32(f.buf))
	if size > f.max {
		return nil, false, fmt.Errorf("%w (%d > %d)",
			errors.ErrMessageTooLong, size, f.max)
	}
	if len(f.buf) < 4+size {
		return nil, false, nil
	}
	msg := f.buf[4 : 4+size]
	f.buf = f.buf[4+size:]
	return msg, true, nil
}
