// Package host implements the N-to-1 router that sits between one
// engine-facing relay stream and any number of attached plugin stdio
// streams: a capability→plugin routing table plus the relay loop that
// multiplexes requests across them by id.
package host

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/tetraplex/capmesh/capability"
	"github.com/tetraplex/capmesh/wire"
)

// Error kinds the host surfaces, named to match the ERR codes an engine
// sees on the wire wherever one exists.
const (
	KindNoHandler       = "NO_HANDLER"
	KindHandshakeFailed = "HandshakeFailed"
	KindManifestInvalid = "ManifestInvalid"
	KindProcessExited   = "PROCESS_EXITED"
	KindClosed          = "CLOSED"
)

// Error is a typed PluginHost failure.
type Error struct {
	Kind    string
	Message string
}

func (e *Error) Error() string { return e.Message }

// capTableEntry maps one canonical capability string to the plugin that
// serves it.
type capTableEntry struct {
	capUrn    string
	pluginIdx int
}

// routingEntry records which plugin owns an in-flight request id, and the
// id itself so a death event can address an ERR frame back to the engine.
type routingEntry struct {
	pluginIdx int
	msgID     wire.MessageId
}

// managedPlugin is one entry in the host's plugin table. A plugin is
// either planned (registered by path, not yet attached) or live (attached,
// with a running writer/reader pair).
type managedPlugin struct {
	path      string
	knownCaps []string

	attached bool
	manifest []byte
	limits   wire.Limits
	caps     []string

	writerCh chan *wire.Frame
}

// pluginEvent crosses from a plugin's reader goroutine into Run's select
// loop: either a decoded frame or a death notification.
type pluginEvent struct {
	pluginIdx int
	frame     *wire.Frame
	died      bool
}

// PluginHost owns every attached plugin's byte streams and the routing
// table built from their advertised capabilities.
type PluginHost struct {
	mu             sync.Mutex
	plugins        []*managedPlugin
	capTable       []capTableEntry
	requestRouting map[string]routingEntry

	eventCh chan pluginEvent
}

// NewPluginHost creates an empty host with no plugins attached.
func NewPluginHost() *PluginHost {
	return &PluginHost{
		requestRouting: make(map[string]routingEntry),
		eventCh:        make(chan pluginEvent, 256),
	}
}

// RegisterPlugin adds a planned entry for path without performing any I/O.
// Its known caps become resolvable through FindPluginForCap immediately,
// ahead of the plugin process ever being attached.
func (h *PluginHost) RegisterPlugin(path string, knownCaps []string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx := len(h.plugins)
	h.plugins = append(h.plugins, &managedPlugin{path: path, knownCaps: knownCaps})
	for _, c := range knownCaps {
		h.capTable = append(h.capTable, capTableEntry{capUrn: c, pluginIdx: idx})
	}
	return idx
}

// AttachPlugin performs the HELLO handshake over pluginStdout/pluginStdin,
// parses the plugin's manifest to extract its capability set, and updates
// the routing table. Returns the plugin's 0-based index. A handshake or
// manifest failure leaves the plugin table unchanged.
func (h *PluginHost) AttachPlugin(pluginStdout io.Reader, pluginStdin io.Writer) (int, error) {
	reader := wire.NewFrameReader(pluginStdout)
	writer := wire.NewFrameWriter(pluginStdin)

	manifest, limits, err := wire.HandshakeInitiate(reader, writer)
	if err != nil {
		return -1, &Error{Kind: KindHandshakeFailed, Message: err.Error()}
	}
	reader.SetLimits(limits)
	writer.SetLimits(limits)

	caps, err := parseCapStrings(manifest)
	if err != nil {
		return -1, &Error{Kind: KindManifestInvalid, Message: err.Error()}
	}

	h.mu.Lock()
	idx := len(h.plugins)
	writerCh := make(chan *wire.Frame, 64)
	plugin := &managedPlugin{
		attached: true,
		manifest: manifest,
		limits:   limits,
		caps:     caps,
		writerCh: writerCh,
	}
	h.plugins = append(h.plugins, plugin)
	for _, c := range caps {
		h.capTable = append(h.capTable, capTableEntry{capUrn: c, pluginIdx: idx})
	}
	h.mu.Unlock()

	go h.writerLoop(writer, writerCh)
	go h.readerLoop(idx, reader)

	return idx, nil
}

// FindPluginForCap resolves a canonical capability string to the index of
// the plugin that serves it. On ambiguity, the most recently attached
// plugin wins, since capTable entries are appended in attach order and
// this scans from the end.
func (h *PluginHost) FindPluginForCap(capUrn string) (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.findPluginForCapLocked(capUrn)
}

func (h *PluginHost) findPluginForCapLocked(capUrn string) (int, bool) {
	for i := len(h.capTable) - 1; i >= 0; i-- {
		if h.capTable[i].capUrn == capUrn {
			return h.capTable[i].pluginIdx, true
		}
	}
	return -1, false
}

// Capabilities returns the canonical string of every routable capability,
// in attach order.
func (h *PluginHost) Capabilities() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.capTable))
	for _, e := range h.capTable {
		out = append(out, e.capUrn)
	}
	return out
}

// Run drives the relay loop: it reads frames from relayRead and from every
// attached plugin concurrently, routes each per the forwarding rules in
// §4.5, and blocks until relayRead closes (the engine-side writer closing)
// or a fatal error occurs. resourceSnapshot, if non-nil, is consulted when
// forwarding a plugin's RELAY_NOTIFY/RELAY_STATE frame onward.
func (h *PluginHost) Run(relayRead io.Reader, relayWrite io.Writer, resourceSnapshot func() []byte) error {
	relayReader := wire.NewFrameReader(relayRead)
	relayWriter := wire.NewFrameWriter(relayWrite)

	relayCh := make(chan *wire.Frame, 64)
	relayDone := make(chan error, 1)
	go func() {
		for {
			frame, err := relayReader.ReadFrame()
			if err != nil {
				relayDone <- err
				close(relayCh)
				return
			}
			if frame == nil {
				relayDone <- nil
				close(relayCh)
				return
			}
			relayCh <- frame
		}
	}()

	for {
		select {
		case frame, ok := <-relayCh:
			if !ok {
				err := <-relayDone
				h.closeAll()
				return err
			}
			h.handleRelayFrame(frame, relayWriter)

		case ev := <-h.eventCh:
			if ev.died {
				h.handlePluginDeath(ev.pluginIdx, relayWriter)
			} else {
				h.handlePluginFrame(ev.pluginIdx, ev.frame, relayWriter, resourceSnapshot)
			}
		}
	}
}

// handleRelayFrame routes one frame arriving from the engine.
func (h *PluginHost) handleRelayFrame(frame *wire.Frame, relayWriter *wire.FrameWriter) {
	h.mu.Lock()
	defer h.mu.Unlock()

	idKey := frame.Id.ToString()

	switch frame.Type {
	case wire.FrameTypeReq:
		capUrn := ""
		if frame.Cap != nil {
			capUrn = *frame.Cap
		}

		pluginIdx, found := h.findPluginForCapLocked(capUrn)
		if !found {
			relayWriter.WriteFrame(wire.NewErr(frame.Id, KindNoHandler, fmt.Sprintf("no plugin handles cap: %s", capUrn)))
			return
		}

		h.requestRouting[idKey] = routingEntry{pluginIdx: pluginIdx, msgID: frame.Id}
		h.sendToPlugin(pluginIdx, frame)

	case wire.FrameTypeHeartbeat:
		// Engine-level heartbeat; this layer has nothing to echo to.
		return

	case wire.FrameTypeHello:
		// A HELLO reaching the relay loop after the initial handshake is
		// a protocol violation on the engine's part; ignore it rather
		// than tearing down unrelated in-flight requests.
		return

	default:
		// Continuation frames (STREAM_START, CHUNK, STREAM_END, END, ERR)
		// addressed by an id already routed to a plugin.
		if entry, ok := h.requestRouting[idKey]; ok {
			h.sendToPlugin(entry.pluginIdx, frame)
		}
	}
}

// handlePluginFrame processes one frame arriving from an attached plugin.
func (h *PluginHost) handlePluginFrame(pluginIdx int, frame *wire.Frame, relayWriter *wire.FrameWriter, resourceSnapshot func() []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	idKey := frame.Id.ToString()

	switch frame.Type {
	case wire.FrameTypeHeartbeat:
		// Answered locally; never forwarded to the engine.
		h.sendToPlugin(pluginIdx, wire.NewHeartbeat(frame.Id))

	case wire.FrameTypeHello:
		// HELLO after the handshake is a protocol violation; drop it.
		return

	case wire.FrameTypeEnd, wire.FrameTypeErr:
		relayWriter.WriteFrame(frame)
		delete(h.requestRouting, idKey)

	case wire.FrameTypeRelayNotify, wire.FrameTypeRelayState:
		if resourceSnapshot != nil {
			if frame.Meta == nil {
				frame.Meta = make(map[string]interface{})
			}
			frame.Meta["host_resources"] = resourceSnapshot()
		}
		relayWriter.WriteFrame(frame)

	default:
		// LOG, STREAM_START, CHUNK, STREAM_END: forwarded verbatim.
		relayWriter.WriteFrame(frame)
	}
}

// handlePluginDeath retires a plugin: its routing-table entries are
// dropped and every request still routed to it is failed with
// PROCESS_EXITED.
func (h *PluginHost) handlePluginDeath(pluginIdx int, relayWriter *wire.FrameWriter) {
	h.mu.Lock()
	defer h.mu.Unlock()

	plugin := h.plugins[pluginIdx]
	plugin.attached = false
	if plugin.writerCh != nil {
		close(plugin.writerCh)
		plugin.writerCh = nil
	}

	var failedKeys []string
	for reqID, entry := range h.requestRouting {
		if entry.pluginIdx == pluginIdx {
			relayWriter.WriteFrame(wire.NewErr(entry.msgID, KindProcessExited, fmt.Sprintf("plugin %d died", pluginIdx)))
			failedKeys = append(failedKeys, reqID)
		}
	}
	for _, key := range failedKeys {
		delete(h.requestRouting, key)
	}

	h.removeCapTableEntriesLocked(pluginIdx)
}

func (h *PluginHost) removeCapTableEntriesLocked(pluginIdx int) {
	kept := h.capTable[:0]
	for _, e := range h.capTable {
		if e.pluginIdx != pluginIdx {
			kept = append(kept, e)
		}
	}
	h.capTable = kept
}

// sendToPlugin enqueues frame on pluginIdx's writer channel. A full or
// absent channel drops the frame silently — the plugin is presumed dead
// and its death event will arrive shortly via readerLoop.
func (h *PluginHost) sendToPlugin(pluginIdx int, frame *wire.Frame) {
	plugin := h.plugins[pluginIdx]
	if plugin.writerCh == nil {
		return
	}
	select {
	case plugin.writerCh <- frame:
	default:
	}
}

// writerLoop drains ch onto the plugin's stdin until the channel closes.
func (h *PluginHost) writerLoop(writer *wire.FrameWriter, ch chan *wire.Frame) {
	for frame := range ch {
		if err := writer.WriteFrame(frame); err != nil {
			return
		}
	}
}

// readerLoop reads frames from a plugin until it errors or returns EOF,
// then reports a death event.
func (h *PluginHost) readerLoop(pluginIdx int, reader *wire.FrameReader) {
	for {
		frame, err := reader.ReadFrame()
		if err != nil || frame == nil {
			h.eventCh <- pluginEvent{pluginIdx: pluginIdx, died: true}
			return
		}
		h.eventCh <- pluginEvent{pluginIdx: pluginIdx, frame: frame}
	}
}

// closeAll shuts down every attached plugin's writer channel once the
// relay stream itself has closed.
func (h *PluginHost) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, p := range h.plugins {
		if p.writerCh != nil {
			close(p.writerCh)
			p.writerCh = nil
		}
		p.attached = false
	}
}

// parseCapStrings decodes manifest as a JSON-encoded capability.Manifest
// and returns the canonical string of each capability it declares.
func parseCapStrings(manifest []byte) ([]string, error) {
	if len(manifest) == 0 {
		return nil, fmt.Errorf("manifest is empty")
	}
	var m capability.Manifest
	if err := json.Unmarshal(manifest, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return m.KeyStrings(), nil
}
