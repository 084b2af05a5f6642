package codec

import "encoding/json"

// JSON frames any JSON-marshallable value.
func JSON[T any]() Codec[T] {
	return Framed(
		func(item T) ([]byte, error) { return json.Marshal(item) },
		func(b []byte) (T, error) {
			var item T
			err := json.Unmarshal(b, &item)
			return item, err
		},
	)
}
