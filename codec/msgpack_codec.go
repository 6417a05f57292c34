package codec

import (
	"fmt"

	"github.com/vmihailenco/msgpack"
)

// MsgpackCodec serializes with MessagePack: compact, binary-safe for []byte
// fields, and still schema-less like JSON.
type MsgpackCodec struct{}

func (c *MsgpackCodec) Encode(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (c *MsgpackCodec) Decode(data []byte, v any) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return &DecodeError{Codec: c.Name(), Into: fmt.Sprintf("%T", v), Err: err}
	}
	return nil
}

func (c *MsgpackCodec) Name() string {
	return "msgpack"
}
