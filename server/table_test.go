package server

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxyrpc/codec"
	"proxyrpc/contract"
	"proxyrpc/message"
)

type Student struct {
	Name string
	Age  int
}

type Greeter interface {
	Hello(ctx context.Context, s Student) (string, error)
	Touch(name string) error
}

type Counter interface {
	Add(a, b int) (int, error)
}

type Unrelated interface {
	Nothing() error
}

var (
	greeterContract   = contract.MustOf[Greeter](contract.OneWay("Touch"))
	counterContract   = contract.MustOf[Counter]()
	unrelatedContract = contract.MustOf[Unrelated]()
)

var errUnderage = errors.New("too young")

type school struct {
	tag     string
	touched chan string
}

func (s *school) Hello(ctx context.Context, st Student) (string, error) {
	switch {
	case st.Name == "panic":
		panic("hello exploded")
	case st.Age < 10:
		return "", errUnderage
	}
	return "OK" + s.tag, nil
}

func (s *school) Touch(name string) error {
	if s.touched != nil {
		s.touched <- name
	}
	return nil
}

func (s *school) Add(a, b int) (int, error) { return a + b, nil }

func newTable() *Table {
	return NewTable(&codec.JSONCodec{}, greeterContract, counterContract, unrelatedContract)
}

func helloRequest(t *testing.T, c codec.Codec, st Student) *message.Request {
	arg, err := c.Encode(st)
	require.NoError(t, err)
	return &message.Request{
		InterfaceID:   greeterContract.ID,
		Method:        "Hello",
		ParamTypes:    []string{"proxyrpc/server.Student"},
		Args:          [][]byte{arg},
		CorrelationID: "c-1",
	}
}

func TestRegisterUnderEveryContract(t *testing.T) {
	tbl := newTable()
	ids, err := tbl.Register(&school{})
	require.NoError(t, err)
	assert.Equal(t, []string{counterContract.ID, greeterContract.ID}, ids)
	assert.Equal(t, ids, tbl.IDs())

	_, ok := tbl.Resolve(unrelatedContract.ID)
	assert.False(t, ok)

	_, err = tbl.Register(struct{}{})
	assert.Error(t, err)
	_, err = tbl.Register(nil)
	assert.Error(t, err)
}

func TestLastRegistrationWins(t *testing.T) {
	tbl := newTable()
	first, second := &school{tag: "1"}, &school{tag: "2"}
	_, err := tbl.Register(first)
	require.NoError(t, err)
	require.NoError(t, tbl.RegisterAs(greeterContract, second))

	svc, ok := tbl.Resolve(greeterContract.ID)
	require.True(t, ok)
	assert.Same(t, second, svc.Instance)

	assert.True(t, tbl.Unregister(greeterContract.ID))
	assert.False(t, tbl.Unregister(greeterContract.ID))
	_, ok = tbl.Resolve(greeterContract.ID)
	assert.False(t, ok)

	assert.Error(t, tbl.RegisterAs(unrelatedContract, first))
}

func TestInvoke(t *testing.T) {
	tbl := newTable()
	_, err := tbl.Register(&school{})
	require.NoError(t, err)
	svc, _ := tbl.Resolve(greeterContract.ID)
	c := tbl.Codec()

	t.Run("result", func(t *testing.T) {
		resp := tbl.Invoke(context.Background(), helloRequest(t, c, Student{"sqg", 18}), svc)
		require.NoError(t, resp.Validate())
		require.Nil(t, resp.Failure)
		var got string
		require.NoError(t, c.Decode(resp.Result, &got))
		assert.Equal(t, "OK", got)
		assert.Equal(t, "c-1", resp.CorrelationID)
	})

	t.Run("returned error", func(t *testing.T) {
		resp := tbl.Invoke(context.Background(), helloRequest(t, c, Student{"kid", 5}), svc)
		require.NotNil(t, resp.Failure)
		assert.Equal(t, message.KindRemote, resp.Failure.Kind)
		assert.Equal(t, "too young", resp.Failure.Message)
	})

	t.Run("panic", func(t *testing.T) {
		resp := tbl.Invoke(context.Background(), helloRequest(t, c, Student{"panic", 30}), svc)
		require.NotNil(t, resp.Failure)
		assert.Equal(t, message.KindPanic, resp.Failure.Kind)
		assert.Contains(t, resp.Failure.Message, "hello exploded")
	})

	t.Run("unknown method", func(t *testing.T) {
		req := helloRequest(t, c, Student{"sqg", 18})
		req.Method = "Goodbye"
		resp := tbl.Invoke(context.Background(), req, svc)
		require.NotNil(t, resp.Failure)
		assert.Equal(t, message.KindSignatureMismatch, resp.Failure.Kind)
	})

	t.Run("mismatched parameter types", func(t *testing.T) {
		req := helloRequest(t, c, Student{"sqg", 18})
		req.ParamTypes = []string{"string"}
		resp := tbl.Invoke(context.Background(), req, svc)
		require.NotNil(t, resp.Failure)
		assert.Equal(t, message.KindSignatureMismatch, resp.Failure.Kind)
		assert.Contains(t, resp.Failure.Message, "called with (string)")
	})

	t.Run("undecodable argument", func(t *testing.T) {
		req := helloRequest(t, c, Student{"sqg", 18})
		req.Args = [][]byte{[]byte(`"not a student"`)}
		resp := tbl.Invoke(context.Background(), req, svc)
		require.NotNil(t, resp.Failure)
		assert.Equal(t, message.KindBadArgument, resp.Failure.Kind)
		require.NotNil(t, resp.Failure.Cause)
	})

	t.Run("argument count", func(t *testing.T) {
		req := helloRequest(t, c, Student{"sqg", 18})
		req.Args = nil
		resp := tbl.Invoke(context.Background(), req, svc)
		require.NotNil(t, resp.Failure)
		assert.Equal(t, message.KindBadArgument, resp.Failure.Kind)
	})
}

func TestInvokeVoidMethod(t *testing.T) {
	tbl := newTable()
	_, err := tbl.Register(&school{})
	require.NoError(t, err)
	svc, _ := tbl.Resolve(greeterContract.ID)

	arg, _ := tbl.Codec().Encode("bob")
	resp := tbl.Invoke(context.Background(), &message.Request{
		InterfaceID:   greeterContract.ID,
		Method:        "Touch",
		ParamTypes:    []string{"string"},
		Args:          [][]byte{arg},
		CorrelationID: "v",
	}, svc)
	require.NoError(t, resp.Validate())
	assert.Equal(t, "null", string(resp.Result))
}
