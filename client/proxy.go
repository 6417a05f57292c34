package client

import (
	"context"
	"fmt"
	"reflect"

	"proxyrpc/contract"
	"proxyrpc/message"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Proxy presents one remote contract over a Session.
//
// Go cannot conjure a value implementing an arbitrary interface at run time,
// so a Proxy fills a stub: a struct whose exported func fields are named
// after contract methods and have their exact signatures.
//
//	type greeterStub struct {
//		Hello func(ctx context.Context, s Student) (string, error)
//	}
//
//	var g greeterStub
//	client.Bind[Greeter](session, &g)
//	reply, err := g.Hello(ctx, Student{Name: "sqg", Age: 18})
type Proxy struct {
	session  *Session
	contract *contract.Contract
}

func NewProxy(s *Session, c *contract.Contract) *Proxy {
	return &Proxy{session: s, contract: c}
}

// Bind derives the contract from interface type T and fills stub.
func Bind[T any](s *Session, stub any, opts ...contract.Option) (*Proxy, error) {
	c, err := contract.Of[T](opts...)
	if err != nil {
		return nil, err
	}
	p := NewProxy(s, c)
	if err := p.Bind(stub); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Proxy) Contract() *contract.Contract {
	return p.contract
}

// Call invokes method with args and decodes the result into reply, which may
// be nil to discard it. Remote failures are returned as *message.RemoteError.
// One-way methods return as soon as the request is written.
func (p *Proxy) Call(ctx context.Context, method string, reply any, args ...any) error {
	m, ok := p.contract.Method(method)
	if !ok {
		return fmt.Errorf("rpc: %s has no method %s", p.contract.ID, method)
	}
	if len(args) != len(m.In) {
		return fmt.Errorf("rpc: %s.%s takes %d arguments, got %d", p.contract.ID, m.Name, len(m.In), len(args))
	}

	c := p.session.Codec()
	encoded := make([][]byte, len(args))
	for i, a := range args {
		b, err := c.Encode(a)
		if err != nil {
			return fmt.Errorf("rpc: encode argument %d of %s.%s: %w", i, p.contract.ID, m.Name, err)
		}
		encoded[i] = b
	}
	req := &message.Request{
		InterfaceID: p.contract.ID,
		Method:      m.Name,
		ParamTypes:  m.ParamTypes,
		Args:        encoded,
		OneWay:      m.OneWay,
	}

	if m.OneWay {
		return p.session.Notify(ctx, req)
	}
	resp, err := p.session.Call(ctx, req)
	if err != nil {
		return err
	}
	if resp.Failure != nil {
		return &message.RemoteError{Target: req.Target(), Fault: resp.Failure}
	}
	if reply == nil {
		return nil
	}
	if err := c.Decode(resp.Result, reply); err != nil {
		return fmt.Errorf("rpc: decode result of %s: %w", req.Target(), err)
	}
	return nil
}

// Invoke is Call with a typed result.
func Invoke[R any](ctx context.Context, p *Proxy, method string, args ...any) (R, error) {
	var r R
	err := p.Call(ctx, method, &r, args...)
	return r, err
}

// Bind fills every exported func field of the struct stub points to. A field
// binds to the method of the same name, or to the name in an `rpc:"Name"`
// tag; `rpc:"-"` skips the field.
func (p *Proxy) Bind(stub any) error {
	v := reflect.ValueOf(stub)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("rpc: stub must be a pointer to a struct, got %T", stub)
	}
	sv := v.Elem()
	st := sv.Type()

	bound := 0
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if !f.IsExported() || f.Type.Kind() != reflect.Func {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup("rpc"); ok {
			if tag == "-" {
				continue
			}
			name = tag
		}
		m, ok := p.contract.Method(name)
		if !ok {
			return fmt.Errorf("rpc: stub field %s.%s matches no method of %s", st.Name(), f.Name, p.contract.ID)
		}
		if f.Type != m.FuncType() {
			return fmt.Errorf("rpc: stub field %s.%s is %s, want %s", st.Name(), f.Name, f.Type, m.FuncType())
		}
		sv.Field(i).Set(reflect.MakeFunc(f.Type, p.invoker(m)))
		bound++
	}
	if bound == 0 {
		return fmt.Errorf("rpc: stub %s has no func fields for %s", st, p.contract.ID)
	}
	return nil
}

func (p *Proxy) invoker(m *contract.Method) func([]reflect.Value) []reflect.Value {
	return func(in []reflect.Value) []reflect.Value {
		ctx := context.Background()
		if m.HasContext {
			if c, ok := in[0].Interface().(context.Context); ok && c != nil {
				ctx = c
			}
			in = in[1:]
		}
		args := make([]any, len(in))
		for i, a := range in {
			args[i] = a.Interface()
		}

		var reply reflect.Value
		var replyPtr any
		if m.Out != nil {
			reply = reflect.New(m.Out)
			replyPtr = reply.Interface()
		}

		err := p.Call(ctx, m.Name, replyPtr, args...)
		errv := reflect.Zero(errorType)
		if err != nil {
			errv = reflect.ValueOf(&err).Elem()
		}
		switch {
		case m.Out == nil:
			return []reflect.Value{errv}
		case err != nil:
			return []reflect.Value{reflect.Zero(m.Out), errv}
		}
		return []reflect.Value{reply.Elem(), errv}
	}
}
