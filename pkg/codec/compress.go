package codec

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compressed wraps inner so every frame body is stored compressed. kind is
// one of none, gzip, snappy, lz4 or zstd; none returns inner unchanged.
func Compressed[T any](inner Codec[T], kind string) (Codec[T], error) {
	var comp compressor
	switch kind {
	case "none", "":
		return inner, nil
	case "gzip":
		comp = gzipCompressor{}
	case "snappy":
		comp = snappyCompressor{}
	case "lz4":
		comp = lz4Compressor{}
	case "zstd":
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		comp = zstdCompressor{enc: enc, dec: dec}
	default:
		return nil, fmt.Errorf("unsupported compression type: %s", kind)
	}
	return compressed[T]{inner: inner, comp: comp}, nil
}

type compressor interface {
	compress(data []byte) ([]byte, error)
	decompress(data []byte) ([]byte, error)
}

type compressed[T any] struct {
	inner Codec[T]
	comp  compressor
}

func (c compressed[T]) Encode(dst []byte, item T) ([]byte, error) {
	frame, err := c.inner.Encode(nil, item)
	if err != nil {
		return dst, err
	}
	body, err := c.comp.compress(frame[HeaderSize:])
	if err != nil {
		return dst, fmt.Errorf("compress item: %w", err)
	}
	if len(body) > MaxFrameSize {
		return dst, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(body))
	}
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(body)))
	return append(dst, body...), nil
}

func (c compressed[T]) Decode(src []byte) (T, int, error) {
	var zero T
	size, err := FrameSize(src)
	if err != nil {
		return zero, 0, err
	}
	plain, err := c.comp.decompress(src[HeaderSize:size])
	if err != nil {
		return zero, 0, fmt.Errorf("decompress item: %w", err)
	}
	frame := binary.BigEndian.AppendUint32(make([]byte, 0, HeaderSize+len(plain)), uint32(len(plain)))
	item, _, err := c.inner.Decode(append(frame, plain...))
	if err != nil {
		return zero, 0, err
	}
	return item, size, nil
}

type gzipCompressor struct{}

func (gzipCompressor) compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(data); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gzipCompressor) decompress(data []byte) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gr.Close()
	return io.ReadAll(gr)
}

type snappyCompressor struct{}

func (snappyCompressor) compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (snappyCompressor) decompress(data []byte) ([]byte, error) {
	return snappy.Decode(nil, data)
}

type lz4Compressor struct{}

func (lz4Compressor) compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (lz4Compressor) decompress(data []byte) ([]byte, error) {
	return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
}

// zstd encoders and decoders are safe for concurrent EncodeAll/DecodeAll.
type zstdCompressor struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func (z zstdCompressor) compress(data []byte) ([]byte, error) {
	return z.enc.EncodeAll(data, nil), nil
}

func (z zstdCompressor) decompress(data []byte) ([]byte, error) {
	return z.dec.DecodeAll(data, nil)
}
