package codec_test

import (
	"errors"
	"testing"

	"github.com/downfa11-org/spillq/pkg/codec"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type record struct {
	ID    int    `json:"id"`
	Value string `json:"value"`
}

func TestJSONBackToBackFrames(t *testing.T) {
	c := codec.JSON[record]()

	var buf []byte
	var err error
	for i := 0; i < 3; i++ {
		buf, err = c.Encode(buf, record{ID: i, Value: "v"})
		if err != nil {
			t.Fatalf("encode %d: %v", i, err)
		}
	}

	for i := 0; i < 3; i++ {
		got, n, err := c.Decode(buf)
		if err != nil {
			t.Fatalf("decode %d: %v", i, err)
		}
		if got.ID != i {
			t.Fatalf("expected id %d, got %d", i, got.ID)
		}
		buf = buf[n:]
	}
	if len(buf) != 0 {
		t.Fatalf("expected all bytes consumed, %d left", len(buf))
	}
}

func TestDecodePartialFrame(t *testing.T) {
	c := codec.String()
	frame, err := c.Encode(nil, "hello world")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	for cut := 0; cut < len(frame); cut++ {
		if _, _, err := c.Decode(frame[:cut]); !errors.Is(err, codec.ErrIncomplete) {
			t.Fatalf("cut at %d: expected ErrIncomplete, got %v", cut, err)
		}
	}

	got, n, err := c.Decode(frame)
	if err != nil {
		t.Fatalf("decode full frame: %v", err)
	}
	if got != "hello world" || n != len(frame) {
		t.Fatalf("unexpected decode result %q (%d bytes)", got, n)
	}
}

func TestDecodeRejectsOversizedPrefix(t *testing.T) {
	bogus := []byte{0xFF, 0xFF, 0xFF, 0xFF, 'x'}
	if _, _, err := codec.Raw().Decode(bogus); !errors.Is(err, codec.ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestJSONDecodeError(t *testing.T) {
	frame, _ := codec.String().Encode(nil, "{not json")
	if _, _, err := codec.JSON[record]().Decode(frame); err == nil || errors.Is(err, codec.ErrIncomplete) {
		t.Fatalf("expected unmarshal error, got %v", err)
	}
}

func TestProtoCodec(t *testing.T) {
	c := codec.Proto(func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} })

	buf, err := c.Encode(nil, wrapperspb.String("spilled"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, n, err := c.Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("expected %d bytes consumed, got %d", len(buf), n)
	}
	if !proto.Equal(got, wrapperspb.String("spilled")) {
		t.Fatalf("unexpected message %v", got)
	}
}

func TestRawDecodeCopies(t *testing.T) {
	c := codec.Raw()
	buf, _ := c.Encode(nil, []byte("abc"))
	got, _, _ := c.Decode(buf)
	buf[codec.HeaderSize] = 'z'
	if string(got) != "abc" {
		t.Fatalf("decoded slice aliases input: %q", got)
	}
}
