// Package wire implements the length-prefixed CBOR frame protocol spoken
// between a PluginHost and its attached plugins: frame encoding, the
// chunked substream writer and reassembly, limit negotiation, and the
// HELLO handshake.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ProtocolVersion is the only version this package speaks.
const ProtocolVersion uint8 = 2

// Default and hard frame/chunk size limits, in bytes.
const (
	DefaultMaxFrame   = 10 * 1024 * 1024
	DefaultMaxChunk   = 1 * 1024 * 1024
	MaxFrameHardLimit = 16 * 1024 * 1024
)

// FrameType is the integer discriminant fixed by the wire format. Value 2
// is reserved for the removed single-response protocol and MUST NOT be
// emitted or accepted.
type FrameType uint8

const (
	FrameTypeHello FrameType = 0
	FrameTypeReq   FrameType = 1
	// 2 reserved, never emitted.
	FrameTypeChunk       FrameType = 3
	FrameTypeEnd         FrameType = 4
	FrameTypeLog         FrameType = 5
	FrameTypeErr         FrameType = 6
	FrameTypeHeartbeat   FrameType = 7
	FrameTypeStreamStart FrameType = 8
	FrameTypeStreamEnd   FrameType = 9
	FrameTypeRelayNotify FrameType = 10
	FrameTypeRelayState  FrameType = 11
)

func (ft FrameType) String() string {
	switch ft {
	case FrameTypeHello:
		return "HELLO"
	case FrameTypeReq:
		return "REQ"
	case FrameTypeChunk:
		return "CHUNK"
	case FrameTypeEnd:
		return "END"
	case FrameTypeLog:
		return "LOG"
	case FrameTypeErr:
		return "ERR"
	case FrameTypeHeartbeat:
		return "HEARTBEAT"
	case FrameTypeStreamStart:
		return "STREAM_START"
	case FrameTypeStreamEnd:
		return "STREAM_END"
	case FrameTypeRelayNotify:
		return "RELAY_NOTIFY"
	case FrameTypeRelayState:
		return "RELAY_STATE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(ft))
	}
}

// MessageId identifies one in-flight request across all its frames. It is
// either a 16-byte UUID or a small unsigned integer; the two variants are
// never mixed in Equals.
type MessageId struct {
	uuidBytes []byte
	uintValue *uint64
}

// NewMessageIdFromUUID wraps 16 raw UUID bytes.
func NewMessageIdFromUUID(b []byte) (MessageId, error) {
	if len(b) != 16 {
		return MessageId{}, errors.New("uuid id must be exactly 16 bytes")
	}
	return MessageId{uuidBytes: b}, nil
}

// NewMessageIdFromUint wraps a small unsigned integer id.
func NewMessageIdFromUint(v uint64) MessageId {
	return MessageId{uintValue: &v}
}

// NewMessageIdRandom generates a fresh random UUID-based id.
func NewMessageIdRandom() MessageId {
	b, _ := uuid.New().MarshalBinary()
	return MessageId{uuidBytes: b}
}

// IsUUID reports whether this id is the UUID variant.
func (m MessageId) IsUUID() bool { return m.uuidBytes != nil }

// ToString renders either variant as a display string.
func (m MessageId) ToString() string {
	if m.uuidBytes != nil {
		if id, err := uuid.FromBytes(m.uuidBytes); err == nil {
			return id.String()
		}
	}
	if m.uintValue != nil {
		return fmt.Sprintf("%d", *m.uintValue)
	}
	return "0"
}

// AsBytes returns a byte representation suitable for use as a map key.
func (m MessageId) AsBytes() []byte {
	if m.uuidBytes != nil {
		return m.uuidBytes
	}
	buf := make([]byte, 8)
	if m.uintValue != nil {
		binary.BigEndian.PutUint64(buf, *m.uintValue)
	}
	return buf
}

// Equals compares two ids of the same variant; cross-variant ids are
// never equal.
func (m MessageId) Equals(other MessageId) bool {
	if m.uuidBytes != nil && other.uuidBytes != nil {
		return string(m.uuidBytes) == string(other.uuidBytes)
	}
	if m.uintValue != nil && other.uintValue != nil {
		return *m.uintValue == *other.uintValue
	}
	return false
}

// Frame is one message unit of the protocol: an integer-keyed map,
// fields present only where the frame's type uses them.
type Frame struct {
	Version     uint8
	Type        FrameType
	Id          MessageId
	Seq         uint64
	ContentType *string
	Meta        map[string]interface{}
	Payload     []byte
	Len         *uint64
	Offset      *uint64
	Eof         *bool
	Cap         *string
	StreamId    *string
	MediaUrn    *string
}

func newFrame(t FrameType, id MessageId) *Frame {
	return &Frame{Version: ProtocolVersion, Type: t, Id: id}
}

// NewReq builds a REQ frame opening a request for capability cap.
func NewReq(id MessageId, cap string, payload []byte, contentType string) *Frame {
	f := newFrame(FrameTypeReq, id)
	f.Cap = &cap
	f.Payload = payload
	f.ContentType = &contentType
	return f
}

// NewStreamStart opens a substream carrying mediaUrn-typed data.
func NewStreamStart(id MessageId, streamId, mediaUrn string) *Frame {
	f := newFrame(FrameTypeStreamStart, id)
	f.StreamId = &streamId
	f.MediaUrn = &mediaUrn
	return f
}

// NewChunk builds a CHUNK fragment. len and contentType are set only on
// the first chunk of a stream; eof marks the last.
func NewChunk(id MessageId, streamId string, seq uint64, payload []byte, totalLen *uint64, contentType *string, eof bool) *Frame {
	f := newFrame(FrameTypeChunk, id)
	f.StreamId = &streamId
	f.Seq = seq
	f.Payload = payload
	f.Len = totalLen
	f.ContentType = contentType
	if eof {
		f.Eof = &eof
	}
	return f
}

// NewStreamEnd closes a substream.
func NewStreamEnd(id MessageId, streamId string) *Frame {
	f := newFrame(FrameTypeStreamEnd, id)
	f.StreamId = &streamId
	return f
}

// NewEnd terminates a request, optionally carrying a final payload.
func NewEnd(id MessageId, payload []byte) *Frame {
	f := newFrame(FrameTypeEnd, id)
	f.Payload = payload
	eof := true
	f.Eof = &eof
	return f
}

// NewErr builds a terminal ERR frame for a request.
func NewErr(id MessageId, code, message string) *Frame {
	f := newFrame(FrameTypeErr, id)
	f.Meta = map[string]interface{}{"code": code, "message": message}
	return f
}

// NewLog builds an out-of-band LOG frame.
func NewLog(id MessageId, level, message string) *Frame {
	f := newFrame(FrameTypeLog, id)
	f.Meta = map[string]interface{}{"level": level, "message": message}
	return f
}

// NewHeartbeat builds a keep-alive frame; the receiver echoes it back
// with the same id.
func NewHeartbeat(id MessageId) *Frame {
	return newFrame(FrameTypeHeartbeat, id)
}

// NewHello builds a handshake frame carrying this side's limits. manifest
// is nil on the host side; the plugin side passes its manifest bytes.
func NewHello(maxFrame, maxChunk int, manifest []byte) *Frame {
	f := newFrame(FrameTypeHello, NewMessageIdFromUint(0))
	f.Meta = map[string]interface{}{
		"max_frame": maxFrame,
		"max_chunk": maxChunk,
	}
	if manifest != nil {
		f.Meta["manifest"] = manifest
	}
	return f
}

// NewRelayNotify carries a manifest/limits refresh during relaying.
func NewRelayNotify(manifest []byte, maxFrame, maxChunk int) *Frame {
	f := newFrame(FrameTypeRelayNotify, NewMessageIdFromUint(0))
	f.Meta = map[string]interface{}{
		"manifest":  manifest,
		"max_frame": maxFrame,
		"max_chunk": maxChunk,
	}
	return f
}

// NewRelayState carries an opaque resource-state payload.
func NewRelayState(resources []byte) *Frame {
	f := newFrame(FrameTypeRelayState, NewMessageIdFromUint(0))
	f.Payload = resources
	return f
}

// ErrorCode returns the ERR frame's code, or "" for any other frame type
// or a missing field.
func (f *Frame) ErrorCode() string {
	if f.Type != FrameTypeErr || f.Meta == nil {
		return ""
	}
	s, _ := f.Meta["code"].(string)
	return s
}

// ErrorMessage returns the ERR frame's message, or "".
func (f *Frame) ErrorMessage() string {
	if f.Type != FrameTypeErr || f.Meta == nil {
		return ""
	}
	s, _ := f.Meta["message"].(string)
	return s
}

// LogLevel returns the LOG frame's level, or "".
func (f *Frame) LogLevel() string {
	if f.Type != FrameTypeLog || f.Meta == nil {
		return ""
	}
	s, _ := f.Meta["level"].(string)
	return s
}

// LogMessage returns the LOG frame's message, or "".
func (f *Frame) LogMessage() string {
	if f.Type != FrameTypeLog || f.Meta == nil {
		return ""
	}
	s, _ := f.Meta["message"].(string)
	return s
}

// HelloManifest returns the manifest bytes carried on a HELLO frame, or
// nil if absent or wrong-typed.
func (f *Frame) HelloManifest() []byte {
	if f.Type != FrameTypeHello || f.Meta == nil {
		return nil
	}
	b, _ := f.Meta["manifest"].([]byte)
	return b
}

// HelloLimits extracts the Limits advertised on a HELLO or RELAY_NOTIFY
// frame, or nil if either bound is absent or non-positive.
func (f *Frame) HelloLimits() *Limits {
	if (f.Type != FrameTypeHello && f.Type != FrameTypeRelayNotify) || f.Meta == nil {
		return nil
	}
	mf := extractInt(f.Meta, "max_frame")
	mc := extractInt(f.Meta, "max_chunk")
	if mf <= 0 || mc <= 0 {
		return nil
	}
	return &Limits{MaxFrame: mf, MaxChunk: mc}
}

// extractInt tolerates the CBOR decoder's type variance for integers
// (int, int64, uint64, float64 all appear depending on source and sign).
func extractInt(meta map[string]interface{}, key string) int {
	switch v := meta[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case uint64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// IsEof reports whether this is the final frame of its stream.
func (f *Frame) IsEof() bool { return f.Eof != nil && *f.Eof }
