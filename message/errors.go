package message

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// Error taxonomy. Framing, decode, routing and correlation errors are
// recovered where they happen; only invocation failures and the failures of
// a caller's own call reach that caller.
var (
	ErrFraming         = errors.New("rpc: framing error")
	ErrDecode          = errors.New("rpc: payload does not match expected type")
	ErrUnroutable      = errors.New("rpc: no service registered for interface")
	ErrCorrelationMiss = errors.New("rpc: response for unknown correlation id")
	ErrTransportLost   = errors.New("rpc: transport lost")
	ErrCancelled       = errors.New("rpc: call cancelled")
)

// Fault kinds set by this module. Errors may report their own kind by
// implementing Kinder.
const (
	KindRemote            = "remote"
	KindPanic             = "panic"
	KindSignatureMismatch = "signature_mismatch"
	KindBadArgument       = "bad_argument"
	KindTransportLost     = "transport_lost"
	KindTimeout           = "timeout"
	KindRateLimited       = "rate_limited"
	KindCancelled         = "cancelled"
	KindFraming           = "framing"
)

// Kinder is implemented by errors that carry a stable category name.
type Kinder interface {
	Kind() string
}

// Fault is the portable description of an error: a category, a message and
// an optional cause, recursively.
type Fault struct {
	Kind    string `json:"kind" msgpack:"kind"`
	Message string `json:"message" msgpack:"message"`
	Cause   *Fault `json:"cause,omitempty" msgpack:"cause"`
}

// NewFault returns a Fault without a cause.
func NewFault(kind, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (f *Fault) Error() string {
	var sb strings.Builder
	for cur := f; cur != nil; cur = cur.Cause {
		if cur != f {
			sb.WriteString(": ")
		}
		fmt.Fprintf(&sb, "[%s] %s", cur.Kind, cur.Message)
	}
	return sb.String()
}

// FaultFrom describes err and its wrapped chain.
//
// Each level keeps only the message text that is not already repeated by the
// level below it, so "read args: EOF" wrapping "EOF" becomes "read args" with
// cause "EOF".
func FaultFrom(err error) *Fault {
	if err == nil {
		return nil
	}
	if f, ok := err.(*Fault); ok {
		return f
	}
	f := &Fault{Kind: kindOf(err), Message: err.Error()}
	if next := errors.Unwrap(err); next != nil {
		f.Cause = FaultFrom(next)
		if msg, ok := strings.CutSuffix(f.Message, ": "+next.Error()); ok {
			f.Message = msg
		}
	}
	return f
}

func kindOf(err error) string {
	if k, ok := err.(Kinder); ok {
		return k.Kind()
	}
	t := reflect.TypeOf(err)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	// Anonymous errors from errors.New and fmt.Errorf carry no useful type.
	switch t.PkgPath() {
	case "errors", "fmt":
		return KindRemote
	}
	return reflect.TypeOf(err).String()
}

// RemoteError is returned to a caller whose call produced a Failure.
type RemoteError struct {
	Target string // "InterfaceID.Method"
	Fault  *Fault
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rpc: %s: %s", e.Target, e.Fault.Error())
}

// Unwrap maps locally synthesized failures back to their sentinels so callers
// can use errors.Is(err, ErrTransportLost).
func (e *RemoteError) Unwrap() error {
	switch e.Fault.Kind {
	case KindTransportLost:
		return ErrTransportLost
	case KindCancelled:
		return ErrCancelled
	case KindFraming:
		return ErrFraming
	}
	return e.Fault
}
