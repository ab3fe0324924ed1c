package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Error is a typed I/O or framing failure, carrying a §7 error kind.
type Error struct {
	Kind    string
	Message string
}

func (e *Error) Error() string { return e.Message }

const (
	KindFrameTooLarge = "FrameTooLarge"
	KindInvalidFrame  = "InvalidFrame"
	KindIoError       = "IoError"
)

// FrameReader reads length-prefixed CBOR frames from a stream.
type FrameReader struct {
	r      io.Reader
	limits Limits
}

// NewFrameReader wraps r with the default limits.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r, limits: DefaultLimits()}
}

// SetLimits updates the limits enforced on subsequent reads.
func (fr *FrameReader) SetLimits(l Limits) { fr.limits = l }

// ReadFrame reads one frame. It returns (nil, nil) on a clean EOF before
// any length byte; a truncated prefix or body is an IoError; a declared
// length exceeding max_frame is a FrameTooLarge without consuming the
// body.
func (fr *FrameReader) ReadFrame() (*Frame, error) {
	var lengthBuf [4]byte
	n, err := io.ReadFull(fr.r, lengthBuf[:])
	if err != nil {
		if n == 0 && err == io.EOF {
			return nil, nil
		}
		return nil, &Error{Kind: KindIoError, Message: fmt.Sprintf("reading frame length: %v", err)}
	}

	length := binary.BigEndian.Uint32(lengthBuf[:])
	if int(length) > fr.limits.MaxFrame || int(length) > MaxFrameHardLimit {
		return nil, &Error{Kind: KindFrameTooLarge, Message: fmt.Sprintf("frame of %d bytes exceeds limit", length)}
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(fr.r, body); err != nil {
		return nil, &Error{Kind: KindIoError, Message: fmt.Sprintf("reading frame body: %v", err)}
	}

	f, err := DecodeFrame(body)
	if err != nil {
		return nil, &Error{Kind: KindInvalidFrame, Message: err.Error()}
	}
	return f, nil
}

// FrameWriter writes length-prefixed CBOR frames to a stream.
type FrameWriter struct {
	w      io.Writer
	limits Limits
}

// NewFrameWriter wraps w with the default limits.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w, limits: DefaultLimits()}
}

// SetLimits updates the limits enforced on subsequent writes.
func (fw *FrameWriter) SetLimits(l Limits) { fw.limits = l }

// WriteFrame encodes and writes f. Exceeding max_frame fails with
// FrameTooLarge without writing any partial bytes.
func (fw *FrameWriter) WriteFrame(f *Frame) error {
	body, err := EncodeFrame(f)
	if err != nil {
		return &Error{Kind: KindInvalidFrame, Message: err.Error()}
	}
	if len(body) > fw.limits.MaxFrame || len(body) > MaxFrameHardLimit {
		return &Error{Kind: KindFrameTooLarge, Message: fmt.Sprintf("encoded frame of %d bytes exceeds limit", len(body))}
	}

	var lengthBuf [4]byte
	binary.BigEndian.PutUint32(lengthBuf[:], uint32(len(body)))
	if _, err := fw.w.Write(lengthBuf[:]); err != nil {
		return &Error{Kind: KindIoError, Message: fmt.Sprintf("writing frame length: %v", err)}
	}
	if _, err := fw.w.Write(body); err != nil {
		return &Error{Kind: KindIoError, Message: fmt.Sprintf("writing frame body: %v", err)}
	}
	return nil
}
