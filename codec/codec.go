// Package codec is the serialization port: it turns values into opaque byte
// payloads and back. Both whole messages and individual arguments/results go
// through a Codec, so the two peers of a connection must agree on one.
package codec

import (
	"fmt"
	"strings"

	"proxyrpc/message"
)

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error // failures are *DecodeError
	Name() string
}

// DecodeError reports bytes that do not match the expected type.
// It matches message.ErrDecode with errors.Is.
type DecodeError struct {
	Codec string
	Into  string // Go type the bytes were decoded into
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: decode into %s: %v", e.Codec, e.Into, e.Err)
}

func (e *DecodeError) Unwrap() []error {
	return []error{message.ErrDecode, e.Err}
}

// ByName selects a codec from configuration ("json" or "msgpack").
func ByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return &JSONCodec{}, nil
	case "msgpack":
		return &MsgpackCodec{}, nil
	}
	return nil, fmt.Errorf("codec: unknown codec %q", name)
}
