package speech

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFullClientRequestEncoding(t *testing.T) {
	f := newFullClientRequest([]byte(`{"a":1}`), gzipCompression)
	data := f.encode()

	assert.Equal(t, []byte{0x11, 0x10, 0x11, 0x00}, data[:4])
	assert.Equal(t, []byte{0, 0, 0, 7}, data[4:8])
	assert.Equal(t, `{"a":1}`, string(data[8:]))
}

func TestAudioRequestLastPacketNegatesSequence(t *testing.T) {
	f := newAudioRequest([]byte("pcm"), 4, true, noCompression)
	assert.Equal(t, flagNegativeSequence, f.header.flags)
	assert.EqualValues(t, -4, f.sequence)
	assert.True(t, f.isLast())

	decoded, err := decodeFrame(f.encode())
	require.NoError(t, err)
	assert.EqualValues(t, -4, decoded.sequence)
	assert.Equal(t, []byte("pcm"), decoded.payload)
}

func TestDecodeFrameWithEvent(t *testing.T) {
	f := &frame{
		header:    frameHeader{kind: fullServerResponse, flags: flagWithEvent, serialization: jsonSerialization},
		event:     eventSessionFinished,
		sessionID: "sess-1",
		payload:   []byte(`{}`),
	}

	decoded, err := decodeFrame(f.encode())
	require.NoError(t, err)
	assert.Equal(t, eventSessionFinished, decoded.event)
	assert.Equal(t, "sess-1", decoded.sessionID)
	assert.Equal(t, "{}", string(decoded.payload))
}

func TestDecodeErrorFrame(t *testing.T) {
	f := &frame{
		header:    frameHeader{kind: errorMessage},
		errorCode: 45000001,
		payload:   []byte("bad request"),
	}

	decoded, err := decodeFrame(f.encode())
	require.NoError(t, err)
	assert.EqualValues(t, 45000001, decoded.errorCode)
	assert.Equal(t, "bad request", string(decoded.payload))
}

func TestDecodeFrameRejectsTruncated(t *testing.T) {
	data := newFullClientRequest([]byte("abcdef"), noCompression).encode()
	_, err := decodeFrame(data[:len(data)-2])
	assert.Error(t, err)

	_, err = decodeFrame([]byte{0x21, 0, 0, 0})
	assert.Error(t, err)
}

func TestCompressionRoundTrip(t *testing.T) {
	in := []byte("namaste namaste namaste")
	packed, err := compressPayload(in, gzipCompression)
	require.NoError(t, err)

	out, err := decompressPayload(packed, gzipCompression)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
