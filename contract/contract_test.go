package contract

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Student struct {
	Name string
	Age  int
}

type Greeter interface {
	Hello(ctx context.Context, s Student) (string, error)
	Roster(group []*Student, limit int) (map[string]int, error)
	Notify(msg string) error
}

type greeter struct{}

func (greeter) Hello(context.Context, Student) (string, error) { return "OK", nil }
func (greeter) Roster([]*Student, int) (map[string]int, error) { return nil, nil }
func (greeter) Notify(string) error                            { return nil }

type noError interface {
	Get() string
}

type tooMany interface {
	Get() (string, int, error)
}

type variadic interface {
	Sum(xs ...int) (int, error)
}

type oneWayWithResult interface {
	Ping() (string, error)
}

func TestOfGreeter(t *testing.T) {
	c, err := Of[Greeter](OneWay("Notify"))
	require.NoError(t, err)
	assert.Equal(t, "proxyrpc/contract.Greeter", c.ID)

	hello, ok := c.Method("Hello")
	require.True(t, ok)
	assert.True(t, hello.HasContext)
	assert.Equal(t, []string{"proxyrpc/contract.Student"}, hello.ParamTypes)
	assert.Equal(t, reflect.TypeOf(""), hello.Out)
	assert.False(t, hello.OneWay)
	assert.Equal(t, "Hello(proxyrpc/contract.Student)", hello.Signature())

	roster, _ := c.Method("Roster")
	assert.False(t, roster.HasContext)
	assert.Equal(t, []string{"[]*proxyrpc/contract.Student", "int"}, roster.ParamTypes)
	assert.Equal(t, "map[string]int", TypeID(roster.Out))

	notify, _ := c.Method("Notify")
	assert.True(t, notify.OneWay)
	assert.Nil(t, notify.Out)

	names := []string{}
	for _, m := range c.Methods() {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"Hello", "Notify", "Roster"}, names)

	assert.True(t, c.ImplementedBy(greeter{}))
	assert.False(t, c.ImplementedBy(struct{}{}))
	assert.False(t, c.ImplementedBy(nil))
}

func TestMatches(t *testing.T) {
	c := MustOf[Greeter]()
	hello, _ := c.Method("Hello")
	assert.True(t, hello.Matches([]string{"proxyrpc/contract.Student"}))
	assert.False(t, hello.Matches([]string{"string"}))
	assert.False(t, hello.Matches(nil))
}

func TestWithID(t *testing.T) {
	c, err := Of[Greeter](WithID("org.sqg.rmi.Greeter"))
	require.NoError(t, err)
	assert.Equal(t, "org.sqg.rmi.Greeter", c.ID)
}

func TestInvalidContracts(t *testing.T) {
	_, err := Of[Student]()
	assert.ErrorContains(t, err, "not an interface")

	_, err = Of[interface{}]()
	assert.ErrorContains(t, err, "no methods")

	_, err = Of[noError]()
	assert.ErrorContains(t, err, "last result must be error")

	_, err = Of[tooMany]()
	assert.ErrorContains(t, err, "must return")

	_, err = Of[variadic]()
	assert.ErrorContains(t, err, "variadic")

	_, err = Of[oneWayWithResult](OneWay("Ping"))
	assert.ErrorContains(t, err, "must return only error")

	_, err = Of[Greeter](OneWay("Missing"))
	assert.ErrorContains(t, err, "does not exist")
}
