package wire

const KindHandshakeFailed = "HandshakeFailed"

// HandshakeAccept performs the plugin side of the HELLO exchange: read
// the host's HELLO, then reply with this side's limits and manifest.
// Returns the negotiated limits.
func HandshakeAccept(r *FrameReader, w *FrameWriter, manifest []byte) (Limits, error) {
	hostHello, err := r.ReadFrame()
	if err != nil {
		return Limits{}, err
	}
	if hostHello == nil || hostHello.Type != FrameTypeHello {
		return Limits{}, &Error{Kind: KindHandshakeFailed, Message: "expected HELLO from host"}
	}

	hostLimits := hostHello.HelloLimits()
	if hostLimits == nil {
		d := DefaultLimits()
		hostLimits = &d
	}

	local := DefaultLimits()
	if err := w.WriteFrame(NewHello(local.MaxFrame, local.MaxChunk, manifest)); err != nil {
		return Limits{}, err
	}

	return NegotiateLimits(local, *hostLimits), nil
}

// HandshakeInitiate performs the host side of the HELLO exchange: send
// this side's HELLO, then require a HELLO back carrying the plugin's
// manifest bytes. Returns the manifest and the negotiated limits.
func HandshakeInitiate(r *FrameReader, w *FrameWriter) ([]byte, Limits, error) {
	local := DefaultLimits()
	if err := w.WriteFrame(NewHello(local.MaxFrame, local.MaxChunk, nil)); err != nil {
		return nil, Limits{}, err
	}

	reply, err := r.ReadFrame()
	if err != nil {
		return nil, Limits{}, err
	}
	if reply == nil || reply.Type != FrameTypeHello {
		return nil, Limits{}, &Error{Kind: KindHandshakeFailed, Message: "expected HELLO from plugin"}
	}

	manifest := reply.HelloManifest()
	if manifest == nil {
		return nil, Limits{}, &Error{Kind: KindHandshakeFailed, Message: "HELLO from plugin is missing required manifest"}
	}

	pluginLimits := reply.HelloLimits()
	if pluginLimits == nil {
		d := DefaultLimits()
		pluginLimits = &d
	}

	return manifest, NegotiateLimits(local, *pluginLimits), nil
}
