package wire

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Integer CBOR map keys, fixed by the wire format (§3).
const (
	keyVersion     = 0
	keyFrameType   = 1
	keyId          = 2
	keySeq         = 3
	keyContentType = 4
	keyMeta        = 5
	keyPayload     = 6
	keyLen         = 7
	keyOffset      = 8
	keyEof         = 9
	keyCap         = 10
	keyStreamId    = 11
	keyMediaUrn    = 12
)

// EncodeFrame encodes a Frame to its CBOR map representation.
func EncodeFrame(f *Frame) ([]byte, error) {
	m := make(map[int]interface{})

	m[keyVersion] = uint8(ProtocolVersion)
	m[keyFrameType] = uint8(f.Type)

	if f.Id.IsUUID() {
		m[keyId] = f.Id.uuidBytes
	} else if f.Id.uintValue != nil {
		m[keyId] = *f.Id.uintValue
	} else {
		m[keyId] = uint64(0)
	}

	if f.Seq != 0 {
		m[keySeq] = f.Seq
	}
	if f.ContentType != nil && *f.ContentType != "" {
		m[keyContentType] = *f.ContentType
	}
	if len(f.Meta) > 0 {
		m[keyMeta] = f.Meta
	}
	if f.Payload != nil {
		m[keyPayload] = f.Payload
	}
	if f.Len != nil {
		m[keyLen] = *f.Len
	}
	if f.Offset != nil {
		m[keyOffset] = *f.Offset
	}
	if f.Eof != nil && *f.Eof {
		m[keyEof] = true
	}
	if f.Cap != nil && *f.Cap != "" {
		m[keyCap] = *f.Cap
	}
	if f.StreamId != nil && *f.StreamId != "" {
		m[keyStreamId] = *f.StreamId
	}
	if f.MediaUrn != nil && *f.MediaUrn != "" {
		m[keyMediaUrn] = *f.MediaUrn
	}

	return cbor.Marshal(m)
}

// DecodeFrame decodes CBOR bytes into a Frame. Decoding rejects a
// non-map top level, a missing version, an unknown frame_type, and a
// missing id.
func DecodeFrame(data []byte) (*Frame, error) {
	var m map[int]interface{}
	if err := cbor.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid frame: %w", err)
	}

	f := &Frame{}

	verVal, ok := m[keyVersion]
	if !ok {
		return nil, errors.New("invalid frame: missing version")
	}
	ver, ok := verVal.(uint64)
	if !ok {
		return nil, errors.New("invalid frame: version must be an unsigned integer")
	}
	f.Version = uint8(ver)
	if f.Version != ProtocolVersion {
		return nil, fmt.Errorf("invalid frame: unsupported version %d", f.Version)
	}

	ftVal, ok := m[keyFrameType]
	if !ok {
		return nil, errors.New("invalid frame: missing frame_type")
	}
	ft, ok := ftVal.(uint64)
	if !ok {
		return nil, errors.New("invalid frame: frame_type must be an unsigned integer")
	}
	if ft == 2 || ft > uint64(FrameTypeRelayState) {
		return nil, fmt.Errorf("invalid frame: unknown frame_type %d", ft)
	}
	f.Type = FrameType(ft)

	idVal, ok := m[keyId]
	if !ok {
		return nil, errors.New("invalid frame: missing id")
	}
	switch v := idVal.(type) {
	case []byte:
		id, err := NewMessageIdFromUUID(v)
		if err != nil {
			return nil, fmt.Errorf("invalid frame: %w", err)
		}
		f.Id = id
	case uint64:
		f.Id = NewMessageIdFromUint(v)
	default:
		return nil, errors.New("invalid frame: id must be bytes or an unsigned integer")
	}

	if v, ok := m[keySeq].(uint64); ok {
		f.Seq = v
	}
	if v, ok := m[keyContentType].(string); ok {
		f.ContentType = &v
	}
	if raw, ok := m[keyMeta]; ok {
		f.Meta = normalizeMeta(raw)
	}
	if v, ok := m[keyPayload].([]byte); ok {
		f.Payload = v
	}
	if v, ok := m[keyLen].(uint64); ok {
		f.Len = &v
	}
	if v, ok := m[keyOffset].(uint64); ok {
		f.Offset = &v
	}
	if v, ok := m[keyEof].(bool); ok {
		f.Eof = &v
	}
	if v, ok := m[keyCap].(string); ok {
		f.Cap = &v
	}
	if v, ok := m[keyStreamId].(string); ok {
		f.StreamId = &v
	}
	if v, ok := m[keyMediaUrn].(string); ok {
		f.MediaUrn = &v
	}

	return f, nil
}

// normalizeMeta handles both map shapes the CBOR decoder may hand back
// for a "meta" value depending on how it was originally encoded.
func normalizeMeta(raw interface{}) map[string]interface{} {
	switch m := raw.(type) {
	case map[string]interface{}:
		return m
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, v := range m {
			if ks, ok := k.(string); ok {
				out[ks] = v
			}
		}
		return out
	default:
		return nil
	}
}
