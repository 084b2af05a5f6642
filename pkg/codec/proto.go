package codec

import "google.golang.org/protobuf/proto"

// Proto frames protobuf messages using their binary wire encoding. newMsg
// returns an empty message to unmarshal into.
func Proto[T proto.Message](newMsg func() T) Codec[T] {
	opts := proto.MarshalOptions{Deterministic: true}
	return Framed(
		func(m T) ([]byte, error) { return opts.Marshal(m) },
		func(b []byte) (T, error) {
			m := newMsg()
			err := proto.Unmarshal(b, m)
			return m, err
		},
	)
}
