package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipe simulates two independent byte streams, one per direction,
// connecting a simulated host and plugin. HandshakeAccept reads before it
// writes, so the host's side of the exchange is written and read by hand
// around a single HandshakeAccept call, with no real concurrency needed.
type pipe struct {
	hostToPlugin bytes.Buffer
	pluginToHost bytes.Buffer
}

func TestHandshakeRoundtrip(t *testing.T) {
	var p pipe

	hostWriter := NewFrameWriter(&p.hostToPlugin)
	hostReader := NewFrameReader(&p.pluginToHost)
	pluginWriter := NewFrameWriter(&p.pluginToHost)
	pluginReader := NewFrameReader(&p.hostToPlugin)

	manifest := []byte("plugin-manifest-bytes")

	// HandshakeInitiate writes its HELLO first, then blocks on a read
	// that isn't satisfiable until the plugin has replied. Since both
	// sides here are in-process and ordered, drive the host's write,
	// then the plugin's full exchange, then let the host read the reply.
	require.NoError(t, hostWriter.WriteFrame(NewHello(DefaultMaxFrame, DefaultMaxChunk, nil)))

	pluginLimits, err := HandshakeAccept(pluginReader, pluginWriter, manifest)
	require.NoError(t, err)

	replyFrame, err := hostReader.ReadFrame()
	require.NoError(t, err)
	require.NotNil(t, replyFrame)
	assert.Equal(t, manifest, replyFrame.HelloManifest())

	hostLimits := replyFrame.HelloLimits()
	require.NotNil(t, hostLimits)
	negotiated := NegotiateLimits(DefaultLimits(), *hostLimits)
	assert.Equal(t, pluginLimits, negotiated)
}

func TestHandshakeAcceptRejectsNonHello(t *testing.T) {
	var buf bytes.Buffer
	w := NewFrameWriter(&buf)
	require.NoError(t, w.WriteFrame(NewHeartbeat(NewMessageIdFromUint(1))))

	r := NewFrameReader(&buf)
	_, err := HandshakeAccept(r, NewFrameWriter(&bytes.Buffer{}), nil)
	require.Error(t, err)
	assert.Equal(t, KindHandshakeFailed, err.(*Error).Kind)
}

func TestHandshakeInitiateRejectsMissingManifest(t *testing.T) {
	var buf bytes.Buffer
	w := NewFrameWriter(&buf)
	require.NoError(t, w.WriteFrame(NewHello(DefaultMaxFrame, DefaultMaxChunk, nil)))

	r := NewFrameReader(&buf)
	_, _, err := HandshakeInitiate(r, NewFrameWriter(&bytes.Buffer{}))
	require.Error(t, err)
	assert.Equal(t, KindHandshakeFailed, err.(*Error).Kind)
}
