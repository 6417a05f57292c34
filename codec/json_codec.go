package codec

import (
	"encoding/json"
	"fmt"
)

// JSONCodec uses Go's standard library encoding/json for serialization.
// Pros: human-readable, cross-language, easy to debug.
// Cons: slower due to reflection + string parsing, []byte fields travel as base64.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &DecodeError{Codec: c.Name(), Into: fmt.Sprintf("%T", v), Err: err}
	}
	return nil
}

func (c *JSONCodec) Name() string {
	return "json"
}
