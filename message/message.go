// Package message defines the values exchanged between a proxy and a dispatcher.
//
// A Request names a method on a contract interface and carries its arguments,
// each already serialized by the codec layer. A Response carries the same
// correlation id plus either a serialized result or a Fault. Both are
// serialized as a whole and wrapped in a protocol frame for transmission.
package message

import (
	"errors"
	"fmt"
)

// Request asks for one method invocation on a remote contract.
//
// Requests are treated as immutable once built; WithCorrelationID returns a copy.
type Request struct {
	InterfaceID   string   `json:"iface" msgpack:"iface"`   // Fully-qualified contract name, e.g. "proxyrpc/example.Greeter"
	Method        string   `json:"method" msgpack:"method"` // Method name on the contract
	ParamTypes    []string `json:"params" msgpack:"params"` // Parameter type ids, used to reject mismatched signatures
	Args          [][]byte `json:"args" msgpack:"args"`     // One serialized value per parameter
	CorrelationID string   `json:"id" msgpack:"id"`         // Unique per outstanding call on a connection
	OneWay        bool     `json:"oneway,omitempty" msgpack:"oneway"`
}

// WithCorrelationID returns a copy of r carrying id.
func (r *Request) WithCorrelationID(id string) *Request {
	c := *r
	c.CorrelationID = id
	return &c
}

// Target returns "InterfaceID.Method" for logs.
func (r *Request) Target() string {
	return r.InterfaceID + "." + r.Method
}

// Response answers exactly one Request.
//
//   - On success: Result holds the serialized return value (the serialized nil for void methods).
//   - On failure: Failure describes the error; Result is empty.
type Response struct {
	CorrelationID string `json:"id" msgpack:"id"`
	Result        []byte `json:"result" msgpack:"result"`
	Failure       *Fault `json:"failure,omitempty" msgpack:"failure"`
}

// NewResult builds a successful Response.
func NewResult(id string, result []byte) *Response {
	return &Response{CorrelationID: id, Result: result}
}

// NewFailure builds a failed Response.
func NewFailure(id string, f *Fault) *Response {
	return &Response{CorrelationID: id, Failure: f}
}

// Validate checks that exactly one of Result and Failure is populated.
func (r *Response) Validate() error {
	if r.CorrelationID == "" {
		return errors.New("response has no correlation id")
	}
	hasResult := len(r.Result) > 0
	hasFailure := r.Failure != nil
	if hasResult == hasFailure {
		return fmt.Errorf("response %s must carry exactly one of result and failure", r.CorrelationID)
	}
	return nil
}
