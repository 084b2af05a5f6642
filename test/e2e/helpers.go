package e2e

import (
	"encoding/json"

	"github.com/downfa11-org/spillq/pkg/codec"
)

type idOnly struct {
	ID string `json:"id"`
}

// codecForQueue decodes only the message IDs of spilled records.
func codecForQueue() codec.Codec[string] {
	return codec.Framed(
		func(id string) ([]byte, error) { return json.Marshal(idOnly{ID: id}) },
		func(b []byte) (string, error) {
			var m idOnly
			err := json.Unmarshal(b, &m)
			return m.ID, err
		},
	)
}
