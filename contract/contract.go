// Package contract describes RPC contract interfaces.
//
// A contract is a Go interface type whose methods follow the RPC shape:
//
//	Method([ctx context.Context,] args...) (Result, error)
//	Method([ctx context.Context,] args...) error
//
// The optional leading context is never transmitted; it bounds the call on
// the client and is the server's per-request context. Every other parameter
// is serialized in order. A contract's identity is the fully-qualified name of
// its interface type, e.g. "proxyrpc/example.Greeter".
package contract

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// Method is one callable entry of a contract.
type Method struct {
	Name       string
	ParamTypes []string       // type ids of the transmitted parameters, in order
	In         []reflect.Type // transmitted parameter types
	Out        reflect.Type   // result type, nil for methods returning only error
	HasContext bool
	OneWay     bool
	funcType   reflect.Type
}

// FuncType is the method's signature without a receiver. Stub fields bound
// by the client must have exactly this type.
func (m *Method) FuncType() reflect.Type {
	return m.funcType
}

// Matches reports whether a request's parameter type ids select this method.
func (m *Method) Matches(paramTypes []string) bool {
	if len(paramTypes) != len(m.ParamTypes) {
		return false
	}
	for i, p := range paramTypes {
		if p != m.ParamTypes[i] {
			return false
		}
	}
	return true
}

func (m *Method) Signature() string {
	return m.Name + "(" + strings.Join(m.ParamTypes, ", ") + ")"
}

// Contract is the method table of one contract interface.
type Contract struct {
	ID      string
	Type    reflect.Type
	methods map[string]*Method
}

type options struct {
	id     string
	oneWay map[string]bool
}

type Option func(*options)

// OneWay marks methods as fire-and-forget: the client returns once the
// request is sent and the server sends no response. Such methods must return
// only error.
func OneWay(methods ...string) Option {
	return func(o *options) {
		for _, m := range methods {
			o.oneWay[m] = true
		}
	}
}

// WithID overrides the contract id derived from the interface type.
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

// Of describes the interface type T.
func Of[T any](opts ...Option) (*Contract, error) {
	return New(reflect.TypeOf((*T)(nil)).Elem(), opts...)
}

// MustOf is Of for package-level declarations; it panics on an invalid contract.
func MustOf[T any](opts ...Option) *Contract {
	c, err := Of[T](opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// New describes iface, which must be an interface type with at least one method.
func New(iface reflect.Type, opts ...Option) (*Contract, error) {
	if iface == nil || iface.Kind() != reflect.Interface {
		return nil, fmt.Errorf("contract: %v is not an interface type", iface)
	}
	if iface.NumMethod() == 0 {
		return nil, fmt.Errorf("contract: %s declares no methods", TypeID(iface))
	}
	o := options{oneWay: make(map[string]bool)}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Contract{
		ID:      TypeID(iface),
		Type:    iface,
		methods: make(map[string]*Method, iface.NumMethod()),
	}
	if o.id != "" {
		c.ID = o.id
	}
	for i := 0; i < iface.NumMethod(); i++ {
		m, err := newMethod(iface.Method(i), o.oneWay[iface.Method(i).Name])
		if err != nil {
			return nil, fmt.Errorf("contract %s: %w", c.ID, err)
		}
		c.methods[m.Name] = m
	}
	for name := range o.oneWay {
		if _, ok := c.methods[name]; !ok {
			return nil, fmt.Errorf("contract %s: one-way method %s does not exist", c.ID, name)
		}
	}
	return c, nil
}

func newMethod(rm reflect.Method, oneWay bool) (*Method, error) {
	ft := rm.Type
	m := &Method{Name: rm.Name, OneWay: oneWay, funcType: ft}

	switch ft.NumOut() {
	case 1:
	case 2:
		m.Out = ft.Out(0)
	default:
		return nil, fmt.Errorf("method %s must return (error) or (T, error)", rm.Name)
	}
	if ft.Out(ft.NumOut()-1) != errorType {
		return nil, fmt.Errorf("method %s: last result must be error", rm.Name)
	}
	if oneWay && m.Out != nil {
		return nil, fmt.Errorf("one-way method %s must return only error", rm.Name)
	}
	if ft.IsVariadic() {
		return nil, fmt.Errorf("method %s: variadic parameters are not supported", rm.Name)
	}

	for i := 0; i < ft.NumIn(); i++ {
		in := ft.In(i)
		if i == 0 && in == contextType {
			m.HasContext = true
			continue
		}
		m.In = append(m.In, in)
		m.ParamTypes = append(m.ParamTypes, TypeID(in))
	}
	return m, nil
}

// Method looks up a method by name.
func (c *Contract) Method(name string) (*Method, bool) {
	m, ok := c.methods[name]
	return m, ok
}

// Methods returns all methods sorted by name.
func (c *Contract) Methods() []*Method {
	out := make([]*Method, 0, len(c.methods))
	for _, m := range c.methods {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ImplementedBy reports whether v's dynamic type satisfies the contract.
func (c *Contract) ImplementedBy(v any) bool {
	if v == nil {
		return false
	}
	return reflect.TypeOf(v).Implements(c.Type)
}

// TypeID returns a stable, fully-qualified identifier for t. Named types use
// their import path ("proxyrpc/example.Student"); composite types are built
// from their element ids ("[]*proxyrpc/example.Student").
func TypeID(t reflect.Type) string {
	if t.Name() != "" {
		if t.PkgPath() == "" {
			return t.Name()
		}
		return t.PkgPath() + "." + t.Name()
	}
	switch t.Kind() {
	case reflect.Pointer:
		return "*" + TypeID(t.Elem())
	case reflect.Slice:
		return "[]" + TypeID(t.Elem())
	case reflect.Array:
		return fmt.Sprintf("[%d]%s", t.Len(), TypeID(t.Elem()))
	case reflect.Map:
		return "map[" + TypeID(t.Key()) + "]" + TypeID(t.Elem())
	}
	return t.String()
}
