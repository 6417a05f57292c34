// Package protocol implements the length-prefixed frame protocol used by proxyrpc.
//
// Every message on the wire is one frame: a 4-byte big-endian unsigned length
// followed by exactly that many payload bytes. The payload is a serialized
// Request or Response; this package never looks inside it.
//
// Frame format:
//
//	0         4
//	┌─────────┬───────────────────┐
//	│   len   │     payload ...   │
//	│ uint32  │    len bytes      │
//	└─────────┴───────────────────┘
//
// A zero-length frame carries no message and is used as a keepalive.
package protocol

import (
	"encoding/binary"
	"fmt"

	"proxyrpc/message"
)

const (
	// PrefixSize is the width of the length prefix in bytes.
	PrefixSize = 4
	// DefaultMaxFrameSize bounds a single payload. Larger frames are skipped.
	DefaultMaxFrameSize uint32 = 16 << 20
)

// ErrFrameTooLarge is reported when a length prefix exceeds the decoder's limit.
var ErrFrameTooLarge = fmt.Errorf("%w: frame exceeds maximum size", message.ErrFraming)

// Status is the outcome of a single decode attempt.
type Status int

const (
	// NeedMoreData means the buffer holds no complete frame yet. Nothing was consumed.
	NeedMoreData Status = iota
	// Decoded means one complete frame was extracted.
	Decoded
	// Malformed means a frame boundary was found but its content was unusable.
	// The frame's bytes were consumed so the stream stays in sync.
	Malformed
	// Keepalive means a zero-length frame was consumed.
	Keepalive
)

func (s Status) String() string {
	switch s {
	case NeedMoreData:
		return "need-more-data"
	case Decoded:
		return "decoded"
	case Malformed:
		return "malformed"
	case Keepalive:
		return "keepalive"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Frame describes a frame located at the front of a buffer by TryDecode.
type Frame struct {
	Payload  []byte // aliases the input buffer
	Consumed int    // bytes to drop from the front of the buffer
	Skip     uint32 // payload bytes of an oversized frame still to discard after Consumed
}

// Encode returns lengthPrefix(len(payload)) || payload.
func Encode(payload []byte) []byte {
	buf := make([]byte, PrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:PrefixSize], uint32(len(payload)))
	copy(buf[PrefixSize:], payload)
	return buf
}

// Heartbeat returns an encoded zero-length frame.
func Heartbeat() []byte {
	return make([]byte, PrefixSize)
}

// TryDecode looks for one complete frame at the front of buf.
//
// It returns NeedMoreData (with a zero Frame) when fewer than PrefixSize bytes
// are present or the payload is incomplete, so a later call with more bytes
// appended sees the same unconsumed input. A prefix larger than max yields
// Malformed with Consumed covering the prefix and whatever part of the
// oversized payload is already buffered; Skip holds the remainder.
func TryDecode(buf []byte, max uint32) (Frame, Status) {
	if len(buf) < PrefixSize {
		return Frame{}, NeedMoreData
	}
	n := binary.BigEndian.Uint32(buf[:PrefixSize])
	if max > 0 && n > max {
		avail := uint32(len(buf) - PrefixSize)
		if avail >= n {
			return Frame{Consumed: PrefixSize + int(n)}, Malformed
		}
		return Frame{Consumed: len(buf), Skip: n - avail}, Malformed
	}
	if uint64(len(buf)-PrefixSize) < uint64(n) {
		return Frame{}, NeedMoreData
	}
	end := PrefixSize + int(n)
	if n == 0 {
		return Frame{Payload: buf[PrefixSize:end], Consumed: end}, Keepalive
	}
	return Frame{Payload: buf[PrefixSize:end], Consumed: end}, Decoded
}
