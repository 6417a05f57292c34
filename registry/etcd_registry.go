package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	clientv3 "go.etcd.io/etcd/client/v3"

	"proxyrpc/logging"
)

// EtcdRegistry implements Registry on etcd v3. Registrations hold a TTL
// lease kept alive in the background, so a crashed server's entries expire.
type EtcdRegistry struct {
	client *clientv3.Client
	log    *logrus.Entry

	// Lease keep-alives outlive the Register call, so they hang off this
	// context rather than the caller's.
	ctx    context.Context
	cancel context.CancelFunc
	leases sync.Map // key -> *lease
}

type lease struct {
	id     clientv3.LeaseID
	cancel context.CancelFunc
}

// NewEtcdRegistry connects to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string, dialTimeout time.Duration) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("registry: connect etcd %v: %w", endpoints, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &EtcdRegistry{
		client: c,
		log:    logging.For("registry").WithField("backend", "etcd"),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Register puts the instance under a fresh lease and keeps the lease alive.
// Registering the same address again replaces the previous entry.
func (r *EtcdRegistry) Register(ctx context.Context, contractID string, instance ServiceInstance, ttl int64) error {
	grant, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return fmt.Errorf("registry: grant lease: %w", err)
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	k := key(contractID, instance.Addr)
	if _, err = r.client.Put(ctx, k, string(val), clientv3.WithLease(grant.ID)); err != nil {
		return fmt.Errorf("registry: put %s: %w", k, err)
	}

	kaCtx, cancel := context.WithCancel(r.ctx)
	ch, err := r.client.KeepAlive(kaCtx, grant.ID)
	if err != nil {
		cancel()
		return fmt.Errorf("registry: keep lease alive: %w", err)
	}
	if old, loaded := r.leases.Swap(k, &lease{id: grant.ID, cancel: cancel}); loaded {
		old.(*lease).cancel()
	}

	// Drain responses so the keep-alive channel never fills up.
	go func() {
		for range ch {
		}
		r.log.WithField("key", k).Debug("lease keep-alive stopped")
	}()
	return nil
}

// Deregister removes the entry and revokes its lease.
func (r *EtcdRegistry) Deregister(ctx context.Context, contractID string, addr string) error {
	k := key(contractID, addr)
	if v, ok := r.leases.LoadAndDelete(k); ok {
		l := v.(*lease)
		l.cancel()
		if _, err := r.client.Revoke(ctx, l.id); err != nil {
			r.log.WithError(err).WithField("key", k).Warn("failed to revoke lease")
		}
	}
	if _, err := r.client.Delete(ctx, k); err != nil {
		return fmt.Errorf("registry: delete %s: %w", k, err)
	}
	return nil
}

// Discover lists every live instance of contractID.
func (r *EtcdRegistry) Discover(ctx context.Context, contractID string) ([]ServiceInstance, error) {
	resp, err := r.client.Get(ctx, prefix(contractID), clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("registry: discover %s: %w", contractID, err)
	}

	instances := make([]ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance ServiceInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			r.log.WithError(err).WithField("key", string(kv.Key)).Warn("skipping malformed instance")
			continue
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

// Watch re-reads the full list on every change under the contract's prefix.
func (r *EtcdRegistry) Watch(ctx context.Context, contractID string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)

	go func() {
		defer close(ch)
		for wresp := range r.client.Watch(ctx, prefix(contractID), clientv3.WithPrefix()) {
			if err := wresp.Err(); err != nil {
				r.log.WithError(err).WithField("contract", contractID).Warn("watch failed")
				return
			}
			instances, err := r.Discover(ctx, contractID)
			if err != nil {
				continue
			}
			select {
			case ch <- instances:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

// Close stops every keep-alive and closes the etcd client. Leases are left to
// expire.
func (r *EtcdRegistry) Close() error {
	r.cancel()
	return r.client.Close()
}
