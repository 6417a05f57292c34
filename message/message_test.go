package message

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quotaError struct{ left int }

func (e *quotaError) Error() string { return fmt.Sprintf("quota exhausted, %d left", e.left) }
func (e *quotaError) Kind() string  { return "quota" }

type notFound struct{}

func (notFound) Error() string { return "not found" }

func TestResponseValidate(t *testing.T) {
	assert.NoError(t, NewResult("1", []byte(`"OK"`)).Validate())
	assert.NoError(t, NewFailure("1", NewFault(KindRemote, "boom")).Validate())

	assert.Error(t, (&Response{CorrelationID: "1"}).Validate(), "neither populated")
	assert.Error(t, (&Response{CorrelationID: "1", Result: []byte("x"), Failure: &Fault{}}).Validate(), "both populated")
	assert.Error(t, NewResult("", []byte("x")).Validate(), "missing id")
}

func TestWithCorrelationIDCopies(t *testing.T) {
	req := &Request{InterfaceID: "a.B", Method: "C"}
	c := req.WithCorrelationID("42")
	assert.Empty(t, req.CorrelationID)
	assert.Equal(t, "42", c.CorrelationID)
	assert.Equal(t, "a.B.C", c.Target())
}

func TestFaultFromChain(t *testing.T) {
	base := &quotaError{left: 0}
	err := fmt.Errorf("charge account: %w", base)

	f := FaultFrom(err)
	require.NotNil(t, f)
	assert.Equal(t, KindRemote, f.Kind)
	assert.Equal(t, "charge account", f.Message)
	require.NotNil(t, f.Cause)
	assert.Equal(t, "quota", f.Cause.Kind)
	assert.Equal(t, "quota exhausted, 0 left", f.Cause.Message)
	assert.Equal(t, "[remote] charge account: [quota] quota exhausted, 0 left", f.Error())
}

func TestFaultFromTypedError(t *testing.T) {
	f := FaultFrom(notFound{})
	assert.Equal(t, "message.notFound", f.Kind)
	assert.Equal(t, "not found", f.Message)
	assert.Nil(t, f.Cause)

	assert.Nil(t, FaultFrom(nil))
}

func TestRemoteErrorUnwrap(t *testing.T) {
	lost := &RemoteError{Target: "a.B.C", Fault: NewFault(KindTransportLost, "connection reset")}
	assert.ErrorIs(t, lost, ErrTransportLost)

	cancelled := &RemoteError{Target: "a.B.C", Fault: NewFault(KindCancelled, "context canceled")}
	assert.ErrorIs(t, cancelled, ErrCancelled)

	remote := &RemoteError{Target: "a.B.C", Fault: NewFault(KindRemote, "boom")}
	var f *Fault
	require.True(t, errors.As(remote, &f))
	assert.Equal(t, "boom", f.Message)
	assert.Equal(t, "rpc: a.B.C: [remote] boom", remote.Error())
}
