package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const etcdContract = "proxyrpc/registry.Arith"

// newEtcd connects to a local etcd, skipping the test when none is running.
func newEtcd(t *testing.T) *EtcdRegistry {
	t.Helper()
	reg, err := NewEtcdRegistry([]string{"localhost:2379"}, time.Second)
	if err != nil {
		t.Skipf("etcd unavailable: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := reg.client.Get(ctx, keyRoot); err != nil {
		_ = reg.Close()
		t.Skipf("etcd unavailable: %v", err)
	}
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}

func TestEtcdRegisterAndDiscover(t *testing.T) {
	reg := newEtcd(t)
	ctx := context.Background()

	inst1 := ServiceInstance{Addr: "127.0.0.1:8001", Codec: "json", Version: "1.0"}
	inst2 := ServiceInstance{Addr: "127.0.0.1:8002", Codec: "json", Version: "1.0"}
	require.NoError(t, reg.Register(ctx, etcdContract, inst1, 10))
	require.NoError(t, reg.Register(ctx, etcdContract, inst2, 10))
	t.Cleanup(func() {
		_ = reg.Deregister(ctx, etcdContract, inst1.Addr)
		_ = reg.Deregister(ctx, etcdContract, inst2.Addr)
	})

	instances, err := reg.Discover(ctx, etcdContract)
	require.NoError(t, err)
	assert.ElementsMatch(t, []ServiceInstance{inst1, inst2}, instances)

	// A contract whose id is a prefix of another sees nothing of it.
	other, err := reg.Discover(ctx, "proxyrpc/registry")
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, reg.Deregister(ctx, etcdContract, inst1.Addr))
	instances, err = reg.Discover(ctx, etcdContract)
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, inst2.Addr, instances[0].Addr)
}

func TestEtcdWatch(t *testing.T) {
	reg := newEtcd(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := reg.Watch(ctx, etcdContract+"Watched")
	// Give the watch a moment to be established.
	time.Sleep(100 * time.Millisecond)

	inst := ServiceInstance{Addr: "127.0.0.1:8003"}
	require.NoError(t, reg.Register(ctx, etcdContract+"Watched", inst, 10))
	defer reg.Deregister(context.Background(), etcdContract+"Watched", inst.Addr)

	select {
	case got := <-updates:
		assert.Equal(t, []ServiceInstance{inst}, got)
	case <-time.After(3 * time.Second):
		t.Fatal("no watch update")
	}
}
