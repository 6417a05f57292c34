package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxyrpc/message"
)

type student struct {
	Name string
	Age  int
}

func allCodecs() []Codec {
	return []Codec{&JSONCodec{}, &MsgpackCodec{}}
}

func TestRequestRoundTrip(t *testing.T) {
	for _, c := range allCodecs() {
		t.Run(c.Name(), func(t *testing.T) {
			arg, err := c.Encode(student{Name: "sqg", Age: 18})
			require.NoError(t, err)

			orig := &message.Request{
				InterfaceID:   "proxyrpc/example.Greeter",
				Method:        "Hello",
				ParamTypes:    []string{"proxyrpc/example.Student"},
				Args:          [][]byte{arg},
				CorrelationID: "6f1c0d9e-1b7a-4c55-9d0e-2f1a3b4c5d6e",
				OneWay:        true,
			}
			data, err := c.Encode(orig)
			require.NoError(t, err)

			var got message.Request
			require.NoError(t, c.Decode(data, &got))
			assert.Equal(t, *orig, got)

			var s student
			require.NoError(t, c.Decode(got.Args[0], &s))
			assert.Equal(t, student{Name: "sqg", Age: 18}, s)
		})
	}
}

func TestResponseRoundTrip(t *testing.T) {
	for _, c := range allCodecs() {
		t.Run(c.Name(), func(t *testing.T) {
			ok := message.NewResult("1", []byte{0x01, 0x02, 0xff})
			fail := message.NewFailure("2", &message.Fault{
				Kind:    message.KindRemote,
				Message: "charge account",
				Cause:   &message.Fault{Kind: "quota", Message: "exhausted"},
			})

			for _, orig := range []*message.Response{ok, fail} {
				data, err := c.Encode(orig)
				require.NoError(t, err)

				var got message.Response
				require.NoError(t, c.Decode(data, &got))
				assert.Equal(t, *orig, got)
			}
		})
	}
}

func TestDecodeError(t *testing.T) {
	garbage := map[string][]byte{
		"json":    []byte("not json at all"),
		"msgpack": {0xc1},
	}
	for _, c := range allCodecs() {
		t.Run(c.Name(), func(t *testing.T) {
			var req message.Request
			err := c.Decode(garbage[c.Name()], &req)
			require.Error(t, err)

			var de *DecodeError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, c.Name(), de.Codec)
			assert.Equal(t, "*message.Request", de.Into)
			assert.ErrorIs(t, err, message.ErrDecode)
		})
	}
}

func TestByName(t *testing.T) {
	c, err := ByName("msgpack")
	require.NoError(t, err)
	assert.Equal(t, "msgpack", c.Name())

	c, err = ByName("")
	require.NoError(t, err)
	assert.Equal(t, "json", c.Name())

	c, err = ByName("JSON")
	require.NoError(t, err)
	assert.IsType(t, &JSONCodec{}, c)

	_, err = ByName("xml")
	assert.Error(t, err)
}
