package server

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"proxyrpc/codec"
	"proxyrpc/contract"
	"proxyrpc/message"
)

// Service is one registration entry: a contract bound to the instance serving it.
type Service struct {
	Contract *contract.Contract
	Instance any
	methods  map[string]reflect.Value // bound methods of Instance, by name
}

func newService(c *contract.Contract, instance any) *Service {
	rcvr := reflect.ValueOf(instance)
	svc := &Service{
		Contract: c,
		Instance: instance,
		methods:  make(map[string]reflect.Value),
	}
	for _, m := range c.Methods() {
		svc.methods[m.Name] = rcvr.MethodByName(m.Name)
	}
	return svc
}

// Table maps contract ids to the instances serving them.
//
// Lookups are lock-free (sync.Map): registration usually happens once at
// startup while every request performs a Resolve.
type Table struct {
	codec     codec.Codec
	contracts sync.Map // id -> *contract.Contract, declared contracts
	services  sync.Map // id -> *Service
}

// NewTable returns an empty table that decodes arguments and encodes results with c.
func NewTable(c codec.Codec, contracts ...*contract.Contract) *Table {
	t := &Table{codec: c}
	t.Declare(contracts...)
	return t
}

func (t *Table) Codec() codec.Codec {
	return t.codec
}

// Declare makes contracts known to Register.
func (t *Table) Declare(contracts ...*contract.Contract) {
	for _, c := range contracts {
		t.contracts.Store(c.ID, c)
	}
}

// Register stores instance under every declared contract it implements and
// returns their ids. A later registration for the same id replaces this one.
func (t *Table) Register(instance any) ([]string, error) {
	if instance == nil {
		return nil, fmt.Errorf("rpc: cannot register nil service")
	}
	var ids []string
	t.contracts.Range(func(_, v any) bool {
		c := v.(*contract.Contract)
		if c.ImplementedBy(instance) {
			t.services.Store(c.ID, newService(c, instance))
			ids = append(ids, c.ID)
		}
		return true
	})
	if len(ids) == 0 {
		return nil, fmt.Errorf("rpc: %T implements no declared contract", instance)
	}
	sort.Strings(ids)
	return ids, nil
}

// RegisterAs declares c and registers instance under it only.
func (t *Table) RegisterAs(c *contract.Contract, instance any) error {
	if !c.ImplementedBy(instance) {
		return fmt.Errorf("rpc: %T does not implement %s", instance, c.ID)
	}
	t.Declare(c)
	t.services.Store(c.ID, newService(c, instance))
	return nil
}

// Unregister removes the service for id. It reports whether one was present.
func (t *Table) Unregister(id string) bool {
	_, ok := t.services.LoadAndDelete(id)
	return ok
}

// Resolve returns the service registered for id.
func (t *Table) Resolve(id string) (*Service, bool) {
	v, ok := t.services.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Service), true
}

// IDs lists the ids that currently have a service, sorted.
func (t *Table) IDs() []string {
	var ids []string
	t.services.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
	sort.Strings(ids)
	return ids
}

// Invoke executes req against svc. It never panics: signature mismatches,
// undecodable arguments, returned errors and panics all come back as a
// Response carrying a Failure.
func (t *Table) Invoke(ctx context.Context, req *message.Request, svc *Service) (resp *message.Response) {
	id := req.CorrelationID
	defer func() {
		if r := recover(); r != nil {
			resp = message.NewFailure(id, message.NewFault(message.KindPanic, "%s: %v", req.Target(), r))
		}
	}()

	m, ok := svc.Contract.Method(req.Method)
	if !ok {
		return message.NewFailure(id, message.NewFault(message.KindSignatureMismatch,
			"%s has no method %s", svc.Contract.ID, req.Method))
	}
	if !m.Matches(req.ParamTypes) {
		return message.NewFailure(id, message.NewFault(message.KindSignatureMismatch,
			"%s.%s expects (%s), called with (%s)", svc.Contract.ID, m.Name,
			strings.Join(m.ParamTypes, ", "), strings.Join(req.ParamTypes, ", ")))
	}
	if len(req.Args) != len(m.In) {
		return message.NewFailure(id, message.NewFault(message.KindBadArgument,
			"%s expects %d arguments, got %d", m.Signature(), len(m.In), len(req.Args)))
	}

	in := make([]reflect.Value, 0, len(m.In)+1)
	if m.HasContext {
		if ctx == nil {
			ctx = context.Background()
		}
		in = append(in, reflect.ValueOf(ctx))
	}
	for i, typ := range m.In {
		argv := reflect.New(typ)
		if err := t.codec.Decode(req.Args[i], argv.Interface()); err != nil {
			f := message.NewFault(message.KindBadArgument, "argument %d of %s", i, m.Signature())
			f.Cause = message.FaultFrom(err)
			return message.NewFailure(id, f)
		}
		in = append(in, argv.Elem())
	}

	out := svc.methods[m.Name].Call(in)
	if errv := out[len(out)-1]; !errv.IsNil() {
		return message.NewFailure(id, message.FaultFrom(errv.Interface().(error)))
	}

	var result any
	if m.Out != nil {
		result = out[0].Interface()
	}
	data, err := t.codec.Encode(result)
	if err != nil {
		f := message.NewFault(message.KindBadArgument, "encode result of %s", m.Signature())
		f.Cause = message.FaultFrom(err)
		return message.NewFailure(id, f)
	}
	return message.NewResult(id, data)
}
