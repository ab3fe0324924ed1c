// Package runtime implements the plugin side of the protocol: reading REQ
// and argument substreams off stdin, dispatching to a registered handler,
// and writing the response substream back onto stdout.
package runtime

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/tetraplex/capmesh/capkey"
	"github.com/tetraplex/capmesh/peer"
	"github.com/tetraplex/capmesh/wire"
)

const (
	KindNoHandler            = "NoHandler"
	KindManifestError        = "ManifestError"
	KindDeserializationError = "DeserializationError"
	KindCapUrnError          = "CapUrnError"
)

// Error is a typed runtime failure, carrying a §7 error kind.
type Error struct {
	Kind    string
	CapUrn  string
	Message string
}

func (e *Error) Error() string { return e.Message }

// StreamEmitter lets a handler write response values and out-of-band log
// lines onto its request's outbound substream. EmitCbor may be called any
// number of times; each call produces one CHUNK frame.
type StreamEmitter interface {
	EmitCbor(value interface{}) error
	EmitLog(level, message string)
}

// HandlerFunc handles one capability invocation. payload is the request's
// effective payload, already extracted by the runtime from the wire's
// argument substreams per §4.6.
type HandlerFunc func(payload []byte, emitter StreamEmitter, router peer.Router) error

// PluginRuntime owns the set of registered handlers and drives the
// stdin/stdout frame loop for a plugin process.
type PluginRuntime struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	manifest []byte
	router   peer.Router
}

// NewPluginRuntime creates a runtime that will present manifest (raw
// bytes, exchanged byte-for-byte) during the HELLO handshake. Peer
// invocation is rejected by NoPeerRouter until SetPeerRouter is called.
func NewPluginRuntime(manifest []byte) *PluginRuntime {
	return &PluginRuntime{
		handlers: make(map[string]HandlerFunc),
		manifest: manifest,
		router:   peer.NoPeerRouter{},
	}
}

// SetPeerRouter installs the Router passed to every handler invoked after
// this call.
func (pr *PluginRuntime) SetPeerRouter(router peer.Router) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	pr.router = router
}

// RegisterRaw stores handler keyed by the exact canonical cap string.
// Re-registration replaces the prior handler.
func (pr *PluginRuntime) RegisterRaw(capUrn string, handler HandlerFunc) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	pr.handlers[capUrn] = handler
}

// RegisterTyped registers a handler whose effective payload is JSON-
// decoded into a fresh T before dispatch. A deserialization failure
// becomes a DeserializationError ERR, and the handler is never called.
func RegisterTyped[T any](pr *PluginRuntime, capUrn string, handler func(value T, emitter StreamEmitter, router peer.Router) error) {
	pr.RegisterRaw(capUrn, func(payload []byte, emitter StreamEmitter, router peer.Router) error {
		var value T
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &value); err != nil {
				return &Error{Kind: KindDeserializationError, CapUrn: capUrn, Message: fmt.Sprintf("decoding payload for %s: %v", capUrn, err)}
			}
		}
		return handler(value, emitter, router)
	})
}

// FindHandler looks up capUrn by exact canonical string. Unlike the host's
// routing table, there is no pattern-matching fallback: plugin-side
// lookup is exact per spec.md §4.6.
func (pr *PluginRuntime) FindHandler(capUrn string) (HandlerFunc, bool) {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	h, ok := pr.handlers[capUrn]
	return h, ok
}

// ExtractEffectivePayload implements §4.6's effective payload extraction.
// A non-CBOR content type is returned verbatim. A CBOR one MUST decode to
// an array of maps, each carrying media_urn and value; the entry whose
// media_urn matches capUrn's declared input ("in" tag) is returned.
func ExtractEffectivePayload(contentType string, payload []byte, capUrn string) ([]byte, error) {
	if contentType != "application/cbor" {
		return payload, nil
	}
	if len(payload) == 0 {
		return payload, nil
	}

	key, err := capkey.FromString(capUrn)
	if err != nil {
		return nil, &Error{Kind: KindCapUrnError, CapUrn: capUrn, Message: err.Error()}
	}
	declaredInput, _ := key.Tag("in")

	var args []map[string]interface{}
	if err := cbor.Unmarshal(payload, &args); err != nil {
		return nil, &Error{Kind: KindDeserializationError, CapUrn: capUrn, Message: fmt.Sprintf("decoding CBOR argument array: %v", err)}
	}

	for _, arg := range args {
		mediaUrn, ok := arg["media_urn"].(string)
		if !ok || mediaUrn != declaredInput {
			continue
		}
		value, ok := arg["value"]
		if !ok {
			continue
		}
		b, ok := value.([]byte)
		if !ok {
			return nil, &Error{Kind: KindDeserializationError, CapUrn: capUrn, Message: fmt.Sprintf("argument %q value is not a byte string", mediaUrn)}
		}
		return b, nil
	}

	return nil, &Error{Kind: KindDeserializationError, CapUrn: capUrn, Message: fmt.Sprintf("no argument matching declared input %q", declaredInput)}
}

// pendingStream accumulates one argument substream's CHUNK frames.
type pendingStream struct {
	reassembler *wire.Reassembler
}

// pendingRequest tracks a REQ awaiting its terminating END.
type pendingRequest struct {
	capUrn      string
	contentType string
	handler     HandlerFunc
	order       []string
	streams     map[string]*pendingStream
}

// safeWriter serializes FrameWriter access across the concurrent handler
// goroutines a single Run loop may have in flight.
type safeWriter struct {
	mu sync.Mutex
	w  *wire.FrameWriter
}

func (s *safeWriter) WriteFrame(f *wire.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.WriteFrame(f)
}

// Run performs the HELLO handshake (presenting manifest) over r/w, then
// drives the frame loop until r is exhausted: every REQ is matched
// against the registered handlers, its argument substreams are reas-
// sembled, and the handler runs in its own goroutine so that concurrent
// request ids make independent progress. Run returns when r reaches EOF,
// after every in-flight handler has finished.
func (pr *PluginRuntime) Run(r io.Reader, w io.Writer) error {
	reader := wire.NewFrameReader(r)
	rawWriter := wire.NewFrameWriter(w)

	limits, err := wire.HandshakeAccept(reader, rawWriter, pr.manifest)
	if err != nil {
		return err
	}
	reader.SetLimits(limits)
	rawWriter.SetLimits(limits)

	writer := &safeWriter{w: rawWriter}

	pending := make(map[string]*pendingRequest)
	var wg sync.WaitGroup

	for {
		frame, err := reader.ReadFrame()
		if err != nil {
			wg.Wait()
			return err
		}
		if frame == nil {
			wg.Wait()
			return nil
		}

		idKey := frame.Id.ToString()

		switch frame.Type {
		case wire.FrameTypeHeartbeat:
			writer.WriteFrame(wire.NewHeartbeat(frame.Id))

		case wire.FrameTypeReq:
			capUrn := ""
			if frame.Cap != nil {
				capUrn = *frame.Cap
			}
			contentType := ""
			if frame.ContentType != nil {
				contentType = *frame.ContentType
			}
			handler, ok := pr.FindHandler(capUrn)
			if !ok {
				writer.WriteFrame(wire.NewErr(frame.Id, KindNoHandler, fmt.Sprintf("no handler registered for cap: %s", capUrn)))
				continue
			}
			pending[idKey] = &pendingRequest{
				capUrn:      capUrn,
				contentType: contentType,
				handler:     handler,
				streams:     make(map[string]*pendingStream),
			}

		case wire.FrameTypeStreamStart:
			req, ok := pending[idKey]
			if !ok || frame.StreamId == nil {
				continue
			}
			streamID := *frame.StreamId
			req.streams[streamID] = &pendingStream{reassembler: wire.NewReassembler()}
			req.order = append(req.order, streamID)

		case wire.FrameTypeChunk:
			req, ok := pending[idKey]
			if !ok || frame.StreamId == nil {
				continue
			}
			if s, ok := req.streams[*frame.StreamId]; ok {
				s.reassembler.AddChunk(frame)
			}

		case wire.FrameTypeStreamEnd:
			continue

		case wire.FrameTypeEnd:
			req, ok := pending[idKey]
			if !ok {
				continue
			}
			delete(pending, idKey)

			var joined []byte
			for _, streamID := range req.order {
				joined = append(joined, req.streams[streamID].reassembler.Concatenated()...)
			}
			if frame.Payload != nil {
				joined = append(joined, frame.Payload...)
			}

			wg.Add(1)
			go pr.invoke(writer, frame.Id, req, joined, &wg)

		default:
			continue
		}
	}
}

// invoke extracts the effective payload, runs req.handler, and writes the
// response substream (or a translated ERR) back to writer.
func (pr *PluginRuntime) invoke(writer *safeWriter, id wire.MessageId, req *pendingRequest, payload []byte, wg *sync.WaitGroup) {
	defer wg.Done()

	effective, err := ExtractEffectivePayload(req.contentType, payload, req.capUrn)
	if err != nil {
		pr.writeErr(writer, id, err)
		return
	}

	emitter := newFrameEmitter(writer, id, fmt.Sprintf("resp-%s", id.ToString()), "media:")

	pr.mu.RLock()
	router := pr.router
	pr.mu.RUnlock()

	if err := req.handler(effective, emitter, router); err != nil {
		pr.writeErr(writer, id, err)
		return
	}

	emitter.finalize()
}

// writeErr translates err into an ERR frame, preferring a typed Kind/
// message when available and falling back to a generic code otherwise.
func (pr *PluginRuntime) writeErr(writer *safeWriter, id wire.MessageId, err error) {
	switch e := err.(type) {
	case *Error:
		writer.WriteFrame(wire.NewErr(id, e.Kind, e.Message))
	case *peer.Error:
		writer.WriteFrame(wire.NewErr(id, e.Kind, e.Message))
	default:
		writer.WriteFrame(wire.NewErr(id, "HANDLER_ERROR", err.Error()))
	}
}

// frameEmitter implements StreamEmitter by writing CBOR-encoded CHUNK
// frames onto one response substream, opening it lazily on first use and
// closing it (STREAM_END + END) on finalize.
type frameEmitter struct {
	mu            sync.Mutex
	writer        *safeWriter
	id            wire.MessageId
	streamID      string
	mediaUrn      string
	streamStarted bool
	seq           uint64
}

func newFrameEmitter(writer *safeWriter, id wire.MessageId, streamID, mediaUrn string) *frameEmitter {
	return &frameEmitter{writer: writer, id: id, streamID: streamID, mediaUrn: mediaUrn}
}

func (e *frameEmitter) ensureStarted() error {
	if e.streamStarted {
		return nil
	}
	e.streamStarted = true
	return e.writer.WriteFrame(wire.NewStreamStart(e.id, e.streamID, e.mediaUrn))
}

func (e *frameEmitter) EmitCbor(value interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	payload, err := cbor.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding response value: %w", err)
	}
	if err := e.ensureStarted(); err != nil {
		return err
	}
	seq := e.seq
	e.seq++
	return e.writer.WriteFrame(wire.NewChunk(e.id, e.streamID, seq, payload, nil, nil, false))
}

func (e *frameEmitter) EmitLog(level, message string) {
	e.writer.WriteFrame(wire.NewLog(e.id, level, message))
}

func (e *frameEmitter) finalize() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.ensureStarted()
	e.writer.WriteFrame(wire.NewStreamEnd(e.id, e.streamID))
	e.writer.WriteFrame(wire.NewEnd(e.id, nil))
}
