package gateway

import (
	"bytes"
	"compress/zlib"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// zlibStream mimics the server side of a zlib-stream connection: one shared
// compressor whose Flush terminates each message with the sync marker.
type zlibStream struct {
	buf bytes.Buffer
	w   *zlib.Writer
}

func newZlibStream() *zlibStream {
	s := &zlibStream{}
	s.w = zlib.NewWriter(&s.buf)
	return s
}

func (s *zlibStream) message(t *testing.T, payload []byte) []byte {
	t.Helper()
	_, err := s.w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, s.w.Flush())
	out := make([]byte, s.buf.Len())
	copy(out, s.buf.Bytes())
	s.buf.Reset()
	return out
}

func TestInflatorDecodesMessages(t *testing.T) {
	stream := newZlibStream()
	z := newInflator()

	out, err := z.push(stream.message(t, []byte(`{"op":10}`)))
	require.NoError(t, err)
	assert.Equal(t, `{"op":10}`, string(out))
}

func TestInflatorCarriesWindowAcrossMessages(t *testing.T) {
	stream := newZlibStream()
	z := newInflator()

	// Repeated content makes the later messages back-reference the first
	// one, which only decodes if the sliding window carried over.
	first := []byte(`{"op":0,"t":"MESSAGE_CREATE","d":{"content":"hello hello hello"}}`)
	second := []byte(`{"op":0,"t":"MESSAGE_CREATE","d":{"content":"hello hello again"}}`)

	out, err := z.push(stream.message(t, first))
	require.NoError(t, err)
	assert.Equal(t, first, out)

	out, err = z.push(stream.message(t, second))
	require.NoError(t, err)
	assert.Equal(t, second, out)

	third := []byte(`{"op":11}`)
	out, err = z.push(stream.message(t, third))
	require.NoError(t, err)
	assert.Equal(t, third, out)
}

func TestInflatorBuffersPartialFrames(t *testing.T) {
	stream := newZlibStream()
	z := newInflator()

	payload := []byte(`{"op":0,"s":5,"t":"GUILD_CREATE","d":{"id":"1234567890"}}`)
	message := stream.message(t, payload)
	require.Greater(t, len(message), 8)

	split := len(message) / 2
	_, err := z.push(message[:split])
	assert.ErrorIs(t, err, ErrIncompleteFrame)

	out, err := z.push(message[split:])
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func TestInflatorRejectsGarbage(t *testing.T) {
	z := newInflator()
	_, err := z.push([]byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x00, 0xff, 0xff})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrIncompleteFrame)
}
