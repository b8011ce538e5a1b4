package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/weft-protocol/weft-go/pkg/log"
	"github.com/weft-protocol/weft-go/pkg/wire"
)

// MaxLogFrameDataSize limits how much raw frame data is captured in
// log events. Larger frames are truncated.
const MaxLogFrameDataSize = 4096

// FrameWriter writes length-prefixed frames to an underlying writer.
// It is safe for concurrent use; each frame is written as a single
// contiguous buffer so frames from different goroutines never
// interleave on the wire.
type FrameWriter struct {
	mu     sync.Mutex
	w      io.Writer
	codec  wire.Codec
	logger log.Logger
	connID string
}

// NewFrameWriter creates a FrameWriter with the default payload limit.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return NewFrameWriterWithMaxPayload(w, wire.DefaultMaxPayload)
}

// NewFrameWriterWithMaxPayload creates a FrameWriter with a custom
// payload limit.
func NewFrameWriterWithMaxPayload(w io.Writer, maxPayload uint32) *FrameWriter {
	return &FrameWriter{
		w:     w,
		codec: wire.Codec{MaxPayload: maxPayload},
	}
}

// SetLogger enables frame logging for this writer.
func (fw *FrameWriter) SetLogger(logger log.Logger, connID string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.logger = logger
	fw.connID = connID
}

// WriteFrame encodes f and writes it to the underlying writer.
func (fw *FrameWriter) WriteFrame(f *wire.Frame) error {
	data, err := fw.codec.Encode(f)
	if err != nil {
		return err
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if _, err := fw.w.Write(data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	if fw.logger != nil {
		fw.logger.Log(makeFrameEvent(fw.connID, log.DirectionOut, data))
	}
	return nil
}

// FrameReader reads length-prefixed frames from an underlying reader.
// Not safe for concurrent use; a connection has a single read loop.
type FrameReader struct {
	r          io.Reader
	codec      wire.Codec
	maxPayload uint32
	lengthBuf  [wire.LengthSize]byte
	logger     log.Logger
	connID     string
}

// NewFrameReader creates a FrameReader with the default payload limit.
func NewFrameReader(r io.Reader) *FrameReader {
	return NewFrameReaderWithMaxPayload(r, wire.DefaultMaxPayload)
}

// NewFrameReaderWithMaxPayload creates a FrameReader with a custom
// payload limit. Zero means wire.DefaultMaxPayload.
func NewFrameReaderWithMaxPayload(r io.Reader, maxPayload uint32) *FrameReader {
	if maxPayload == 0 {
		maxPayload = wire.DefaultMaxPayload
	}
	return &FrameReader{
		r:          r,
		codec:      wire.Codec{MaxPayload: maxPayload},
		maxPayload: maxPayload,
	}
}

// SetLogger enables frame logging for this reader.
func (fr *FrameReader) SetLogger(logger log.Logger, connID string) {
	fr.logger = logger
	fr.connID = connID
}

// ReadFrame reads and decodes one complete frame.
//
// A clean close between frames returns io.EOF. A stream that ends
// inside a frame returns an error wrapping wire.ErrTruncated. A frame
// whose declared length violates protocol bounds returns an error
// wrapping wire.ErrMalformedFrame; the stream position is then
// undefined and the connection must be dropped.
func (fr *FrameReader) ReadFrame() (*wire.Frame, error) {
	// The length prefix is read separately so a clean close between
	// frames surfaces as io.EOF rather than a truncation error.
	if _, err := io.ReadFull(fr.r, fr.lengthBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: stream ended inside length prefix", wire.ErrTruncated)
		}
		return nil, fmt.Errorf("read length prefix: %w", err)
	}

	length := binary.BigEndian.Uint32(fr.lengthBuf[:])

	// Validate the declared length before allocating so a corrupt
	// prefix cannot trigger a huge allocation.
	if length < wire.FrameOverhead {
		return nil, fmt.Errorf("%w: declared length %d below frame overhead %d",
			wire.ErrMalformedFrame, length, wire.FrameOverhead)
	}
	if length-wire.FrameOverhead > fr.maxPayload {
		return nil, fmt.Errorf("%w: payload %d exceeds limit %d",
			wire.ErrMalformedFrame, length-wire.FrameOverhead, fr.maxPayload)
	}

	buf := make([]byte, wire.LengthSize+int(length))
	copy(buf, fr.lengthBuf[:])
	if _, err := io.ReadFull(fr.r, buf[wire.LengthSize:]); err != nil {
		if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: stream ended inside frame body", wire.ErrTruncated)
		}
		return nil, fmt.Errorf("read frame body: %w", err)
	}

	frame, _, err := fr.codec.Decode(buf)
	if err != nil {
		return nil, err
	}

	if fr.logger != nil {
		fr.logger.Log(makeFrameEvent(fr.connID, log.DirectionIn, buf))
	}
	return frame, nil
}

// Framer combines a FrameReader and FrameWriter over a single
// bidirectional stream.
type Framer struct {
	*FrameReader
	*FrameWriter
}

// NewFramer creates a Framer with the default payload limit.
func NewFramer(rw io.ReadWriter) *Framer {
	return NewFramerWithMaxPayload(rw, wire.DefaultMaxPayload)
}

// NewFramerWithMaxPayload creates a Framer with a custom payload limit.
func NewFramerWithMaxPayload(rw io.ReadWriter, maxPayload uint32) *Framer {
	return &Framer{
		FrameReader: NewFrameReaderWithMaxPayload(rw, maxPayload),
		FrameWriter: NewFrameWriterWithMaxPayload(rw, maxPayload),
	}
}

// SetLogger enables frame logging in both directions.
func (f *Framer) SetLogger(logger log.Logger, connID string) {
	f.FrameReader.SetLogger(logger, connID)
	f.FrameWriter.SetLogger(logger, connID)
}

func makeFrameEvent(connID string, dir log.Direction, data []byte) log.Event {
	fe := &log.FrameEvent{Size: len(data)}
	if len(data) > MaxLogFrameDataSize {
		fe.Data = append([]byte(nil), data[:MaxLogFrameDataSize]...)
		fe.Truncated = true
	} else {
		fe.Data = append([]byte(nil), data...)
	}
	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Frame:        fe,
	}
}
