package conn

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxFrameSize bounds the payload of a single frame.
const DefaultMaxFrameSize = 16 << 20

var ErrFrameTooLarge = errors.New("frame exceeds the maximum size")

// WriteFrame writes the length prefix and the payload.
func WriteFrame(w io.Writer, data []byte) error {
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(data)))
	if _, err := w.Write(prefix[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// ReadFrame reads one frame. A length above maxSize is a protocol violation: the
// stream cannot be resynchronised, so the caller must drop the connection.
func ReadFrame(r io.Reader, maxSize uint32) ([]byte, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(prefix[:])
	if size > maxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
