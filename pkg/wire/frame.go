package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Frame layout constants. All header integers are big-endian.
const (
	// LengthSize is the size of the length prefix in bytes.
	LengthSize = 4

	// FrameOverhead is the number of header bytes covered by the length
	// prefix: one opcode byte plus eight request-id bytes.
	FrameOverhead = 9

	// HeaderSize is the complete header size including the length prefix.
	HeaderSize = LengthSize + FrameOverhead

	// DefaultMaxPayload is the payload limit applied by the zero-value
	// Codec. Peers exchanging larger payloads must agree on a higher
	// limit out of band.
	DefaultMaxPayload = 1 << 20 // 1 MiB
)

// Frame codec errors.
var (
	// ErrTruncated reports that the input ends before the frame does.
	// The caller should read more bytes and decode again.
	ErrTruncated = errors.New("wire: truncated frame")

	// ErrMalformedFrame reports a frame that can never become valid.
	// Malformed frames are fatal to the connection that produced them.
	ErrMalformedFrame = errors.New("wire: malformed frame")
)

// Opcode identifies the kind of a frame.
type Opcode uint8

const (
	// OpRequest expects a Response carrying the same request id.
	OpRequest Opcode = 1

	// OpResponse answers exactly one earlier Request.
	OpResponse Opcode = 2

	// OpNotify is one-way and never answered.
	OpNotify Opcode = 3
)

// IsValid returns true if the opcode is one of the defined values.
func (o Opcode) IsValid() bool {
	return o >= OpRequest && o <= OpNotify
}

// String returns a human-readable opcode name.
func (o Opcode) String() string {
	switch o {
	case OpRequest:
		return "Request"
	case OpResponse:
		return "Response"
	case OpNotify:
		return "Notify"
	default:
		return fmt.Sprintf("Opcode(%d)", uint8(o))
	}
}

// NotifyRequestID is the request id carried by Notify frames. The
// multiplexer never allocates it for a Request.
const NotifyRequestID uint64 = 0

// Frame is the atomic unit of transmission. The payload is arbitrary
// bytes, possibly empty, and binary-safe.
type Frame struct {
	Op        Opcode
	RequestID uint64
	Payload   []byte
}

// Validate checks that the frame uses a defined opcode.
func (f *Frame) Validate() error {
	if !f.Op.IsValid() {
		return fmt.Errorf("%w: unknown opcode %d", ErrMalformedFrame, uint8(f.Op))
	}
	return nil
}

// Codec encodes and decodes frames. The zero value is ready to use and
// applies DefaultMaxPayload. Codec performs no I/O and holds no
// connection state.
type Codec struct {
	// MaxPayload limits the payload size accepted in either direction.
	// Zero means DefaultMaxPayload.
	MaxPayload uint32
}

func (c Codec) maxPayload() uint32 {
	if c.MaxPayload == 0 {
		return DefaultMaxPayload
	}
	return c.MaxPayload
}

// Encode serializes a frame into a single contiguous buffer.
func (c Codec) Encode(f *Frame) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: nil frame", ErrMalformedFrame)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if uint64(len(f.Payload)) > uint64(c.maxPayload()) {
		return nil, fmt.Errorf("%w: payload %d bytes exceeds limit %d",
			ErrMalformedFrame, len(f.Payload), c.maxPayload())
	}

	buf := make([]byte, HeaderSize+len(f.Payload))
	binary.BigEndian.PutUint32(buf[0:LengthSize], uint32(FrameOverhead+len(f.Payload)))
	buf[LengthSize] = byte(f.Op)
	binary.BigEndian.PutUint64(buf[LengthSize+1:HeaderSize], f.RequestID)
	copy(buf[HeaderSize:], f.Payload)
	return buf, nil
}

// Decode parses one frame from the front of buf and returns it together
// with the number of bytes consumed. The payload is copied, so buf may
// be reused afterwards.
//
// An incomplete header or fewer payload bytes than the header declares
// yield ErrTruncated with zero bytes consumed.
func (c Codec) Decode(buf []byte) (*Frame, int, error) {
	if len(buf) < LengthSize {
		return nil, 0, fmt.Errorf("%w: %d of %d length bytes", ErrTruncated, len(buf), LengthSize)
	}

	length := binary.BigEndian.Uint32(buf[0:LengthSize])
	if length < FrameOverhead {
		return nil, 0, fmt.Errorf("%w: declared length %d below frame overhead %d",
			ErrMalformedFrame, length, FrameOverhead)
	}
	if payloadLen := length - FrameOverhead; payloadLen > c.maxPayload() {
		return nil, 0, fmt.Errorf("%w: payload %d bytes exceeds limit %d",
			ErrMalformedFrame, payloadLen, c.maxPayload())
	}

	total := LengthSize + int(length)
	if len(buf) < total {
		return nil, 0, fmt.Errorf("%w: %d of %d frame bytes", ErrTruncated, len(buf), total)
	}

	f := &Frame{
		Op:        Opcode(buf[LengthSize]),
		RequestID: binary.BigEndian.Uint64(buf[LengthSize+1 : HeaderSize]),
	}
	if err := f.Validate(); err != nil {
		return nil, 0, err
	}
	if length > FrameOverhead {
		f.Payload = make([]byte, length-FrameOverhead)
		copy(f.Payload, buf[HeaderSize:total])
	}
	return f, total, nil
}

// Encode serializes a frame with the default payload limit.
func Encode(f *Frame) ([]byte, error) {
	return Codec{}.Encode(f)
}

// Decode parses one frame with the default payload limit.
func Decode(buf []byte) (*Frame, int, error) {
	return Codec{}.Decode(buf)
}
