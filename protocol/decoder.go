package protocol

import (
	"fmt"
)

// Unmarshaler turns one frame payload into a message value.
type Unmarshaler[T any] func(payload []byte) (T, error)

// Decoder accumulates bytes from a stream and yields whole messages.
//
// A Decoder is not safe for concurrent use; a transport feeds it from the
// single goroutine that reads the connection.
type Decoder[T any] struct {
	buf       []byte
	skip      uint64
	max       uint32
	unmarshal Unmarshaler[T]
}

// NewDecoder returns a Decoder that unmarshals payloads with fn.
// A max of 0 selects DefaultMaxFrameSize.
func NewDecoder[T any](fn Unmarshaler[T], max uint32) *Decoder[T] {
	if max == 0 {
		max = DefaultMaxFrameSize
	}
	return &Decoder[T]{max: max, unmarshal: fn}
}

// Feed appends received bytes. Bytes belonging to an oversized frame being
// skipped are dropped here.
func (d *Decoder[T]) Feed(p []byte) {
	if d.skip > 0 {
		if uint64(len(p)) <= d.skip {
			d.skip -= uint64(len(p))
			return
		}
		p = p[d.skip:]
		d.skip = 0
	}
	d.buf = append(d.buf, p...)
}

// Buffered reports how many unconsumed bytes are held.
func (d *Decoder[T]) Buffered() int {
	return len(d.buf)
}

// Next extracts at most one message.
//
// On Malformed the returned error describes why and exactly the bad frame's
// bytes have been consumed; calling Next again continues with the next frame.
// When the unmarshaler rejects a frame, whatever value it returned alongside
// its error is passed through.
func (d *Decoder[T]) Next() (T, Status, error) {
	var zero T
	f, st := TryDecode(d.buf, d.max)
	switch st {
	case NeedMoreData:
		return zero, st, nil
	case Keepalive:
		d.consume(f.Consumed)
		return zero, st, nil
	case Malformed:
		d.consume(f.Consumed)
		d.skip = uint64(f.Skip)
		return zero, st, fmt.Errorf("%w (limit %d)", ErrFrameTooLarge, d.max)
	}

	payload := make([]byte, len(f.Payload))
	copy(payload, f.Payload)
	d.consume(f.Consumed)

	v, err := d.unmarshal(payload)
	if err != nil {
		return v, Malformed, err
	}
	return v, Decoded, nil
}

func (d *Decoder[T]) consume(n int) {
	rest := copy(d.buf, d.buf[n:])
	d.buf = d.buf[:rest]
}
