package wire

// WriteChunked splits data into CHUNK frames of at most the writer's
// negotiated max_chunk and writes STREAM_START, the CHUNK sequence, then
// STREAM_END, per §4.3. The first CHUNK carries len (total byte count)
// and contentType; later CHUNKs omit both. The last CHUNK sets eof=true.
// Empty data produces a single zero-length eof chunk.
func (fw *FrameWriter) WriteChunked(id MessageId, streamId, mediaUrn, contentType string, data []byte) error {
	if err := fw.WriteFrame(NewStreamStart(id, streamId, mediaUrn)); err != nil {
		return err
	}

	total := uint64(len(data))
	ct := contentType

	if len(data) == 0 {
		zero := uint64(0)
		if err := fw.WriteFrame(NewChunk(id, streamId, 0, nil, &zero, &ct, true)); err != nil {
			return err
		}
		return fw.WriteFrame(NewStreamEnd(id, streamId))
	}

	offset := 0
	seq := uint64(0)
	for offset < len(data) {
		remaining := len(data) - offset
		size := remaining
		if size > fw.limits.MaxChunk {
			size = fw.limits.MaxChunk
		}
		chunkData := data[offset : offset+size]
		eof := offset+size == len(data)

		var lenPtr *uint64
		var ctPtr *string
		if seq == 0 {
			lenPtr = &total
			ctPtr = &ct
		}

		if err := fw.WriteFrame(NewChunk(id, streamId, seq, chunkData, lenPtr, ctPtr, eof)); err != nil {
			return err
		}

		offset += size
		seq++
	}

	return fw.WriteFrame(NewStreamEnd(id, streamId))
}

// Reassembler accumulates CHUNK frames for a single (id, stream_id) pair
// in sequence order and exposes the two divergent views §4.3 requires:
// the full concatenation and the last chunk alone.
type Reassembler struct {
	chunks    [][]byte
	nextSeq   uint64
	done      bool
	endPayload []byte
	hasEnd     bool
}

// NewReassembler starts an empty reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{}
}

// AddChunk appends a CHUNK frame's payload. Chunks MUST arrive in
// strictly increasing seq with no gaps; out-of-order delivery is a
// caller error (the relay/runtime layers are responsible for ordering
// within one substream).
func (r *Reassembler) AddChunk(f *Frame) {
	if f.Type != FrameTypeChunk {
		return
	}
	r.chunks = append(r.chunks, f.Payload)
	r.nextSeq++
	if f.IsEof() {
		r.done = true
	}
}

// AddEnd records a terminating END frame's payload, appended by
// Concatenated.
func (r *Reassembler) AddEnd(f *Frame) {
	if f.Payload != nil {
		r.endPayload = f.Payload
		r.hasEnd = true
	}
	r.done = true
}

// Done reports whether an EOF chunk or an END frame (via AddEnd) has been
// observed.
func (r *Reassembler) Done() bool { return r.done }

// Concatenated returns every chunk's payload joined in sequence order,
// plus any END-frame payload appended at the end.
func (r *Reassembler) Concatenated() []byte {
	total := 0
	for _, c := range r.chunks {
		total += len(c)
	}
	if r.hasEnd {
		total += len(r.endPayload)
	}
	out := make([]byte, 0, total)
	for _, c := range r.chunks {
		out = append(out, c...)
	}
	if r.hasEnd {
		out = append(out, r.endPayload...)
	}
	return out
}

// FinalPayload returns only the last chunk's bytes (or the END payload
// if no chunks were ever written). This diverges from Concatenated for
// any multi-chunk response; callers MUST choose deliberately.
func (r *Reassembler) FinalPayload() []byte {
	if len(r.chunks) > 0 {
		return r.chunks[len(r.chunks)-1]
	}
	if r.hasEnd {
		return r.endPayload
	}
	return nil
}
