// Package codec defines how items are framed inside a segment file.
//
// A frame must be self-delimiting: Decode is handed whatever bytes a reader
// has seen so far, possibly ending in the middle of a frame that a writer is
// still appending, and reports ErrIncomplete until a whole frame is present.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderSize is the length prefix in front of every frame body.
	HeaderSize = 4
	// MaxFrameSize bounds a single frame body. Larger prefixes are treated as
	// corruption rather than a very long pending write.
	MaxFrameSize = 64 << 20
)

var (
	ErrIncomplete    = errors.New("codec: incomplete frame")
	ErrFrameTooLarge = errors.New("codec: frame exceeds max size")
)

// Codec turns items into frames and back. Implementations must be
// deterministic and safe to reuse across calls.
type Codec[T any] interface {
	// Encode appends one frame holding item to dst.
	Encode(dst []byte, item T) ([]byte, error)
	// Decode reads the first frame of src and returns the item and the number
	// of bytes it spanned, or ErrIncomplete.
	Decode(src []byte) (T, int, error)
}

type framed[T any] struct {
	marshal   func(T) ([]byte, error)
	unmarshal func([]byte) (T, error)
}

// Framed builds a Codec that writes a big-endian uint32 length followed by the
// marshalled body.
func Framed[T any](marshal func(T) ([]byte, error), unmarshal func([]byte) (T, error)) Codec[T] {
	return framed[T]{marshal: marshal, unmarshal: unmarshal}
}

func (f framed[T]) Encode(dst []byte, item T) ([]byte, error) {
	body, err := f.marshal(item)
	if err != nil {
		return dst, fmt.Errorf("marshal item: %w", err)
	}
	if len(body) > MaxFrameSize {
		return dst, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(body))
	}
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(body)))
	return append(dst, body...), nil
}

func (f framed[T]) Decode(src []byte) (T, int, error) {
	var zero T
	size, err := FrameSize(src)
	if err != nil {
		return zero, 0, err
	}
	item, err := f.unmarshal(src[HeaderSize:size])
	if err != nil {
		return zero, 0, fmt.Errorf("unmarshal item: %w", err)
	}
	return item, size, nil
}

// FrameSize reports the total length of the first frame in src, header
// included.
func FrameSize(src []byte) (int, error) {
	if len(src) < HeaderSize {
		return 0, ErrIncomplete
	}
	bodyLen := binary.BigEndian.Uint32(src[:HeaderSize])
	if bodyLen > MaxFrameSize {
		return 0, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, bodyLen)
	}
	total := HeaderSize + int(bodyLen)
	if len(src) < total {
		return 0, ErrIncomplete
	}
	return total, nil
}

// Raw frames byte slices as-is. Decoded slices are copies.
func Raw() Codec[[]byte] {
	return Framed(
		func(b []byte) ([]byte, error) { return b, nil },
		func(b []byte) ([]byte, error) { return append([]byte(nil), b...), nil },
	)
}

// String frames UTF-8 strings.
func String() Codec[string] {
	return Framed(
		func(s string) ([]byte, error) { return []byte(s), nil },
		func(b []byte) (string, error) { return string(b), nil },
	)
}
