package gateway

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"errors"
	"io"
)

// zlibSuffix is the Z_SYNC_FLUSH marker Discord appends to every complete
// compressed message on a zlib-stream connection.
var zlibSuffix = []byte{0x00, 0x00, 0xff, 0xff}

const inflateWindowSize = 32 * 1024

var ErrIncompleteFrame = errors.New("gateway: compressed frame does not end a message")

// inflator decompresses a shared zlib stream one transport frame at a time.
// The sync-flush marker closes the current deflate block and aligns the
// stream to a byte boundary, so every complete message can be inflated on
// its own as long as the 32KB sliding window of earlier output is carried
// over as a preset dictionary. Frames without the marker are buffered until
// the rest of the message arrives.
type inflator struct {
	pending []byte
	window  []byte
	started bool
}

func newInflator() *inflator { return &inflator{} }

func (z *inflator) push(frame []byte) ([]byte, error) {
	z.pending = append(z.pending, frame...)
	if len(z.pending) < 4 || !bytes.HasSuffix(z.pending, zlibSuffix) {
		return nil, ErrIncompleteFrame
	}
	data := z.pending
	z.pending = nil

	var r io.ReadCloser
	var err error
	if !z.started {
		// Only the very first message carries the zlib stream header.
		r, err = zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
	} else {
		r = flate.NewReaderDict(bytes.NewReader(data), z.window)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	// The stream never contains a final block, so the reader reports
	// running out of input once the sync marker has been consumed.
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}

	z.started = true
	z.window = append(z.window, out...)
	if len(z.window) > inflateWindowSize {
		z.window = z.window[len(z.window)-inflateWindowSize:]
	}
	return out, nil
}
