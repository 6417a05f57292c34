package registry

import (
	"context"
	"sort"
	"sync"
)

// MemoryRegistry is an in-process Registry for tests and single-binary
// deployments. TTLs are ignored.
type MemoryRegistry struct {
	mu        sync.Mutex
	instances map[string]map[string]ServiceInstance // contract id -> addr -> instance
	watchers  map[string][]chan []ServiceInstance
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		instances: make(map[string]map[string]ServiceInstance),
		watchers:  make(map[string][]chan []ServiceInstance),
	}
}

func (m *MemoryRegistry) Register(_ context.Context, contractID string, instance ServiceInstance, _ int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byAddr, ok := m.instances[contractID]
	if !ok {
		byAddr = make(map[string]ServiceInstance)
		m.instances[contractID] = byAddr
	}
	byAddr[instance.Addr] = instance
	m.notify(contractID)
	return nil
}

func (m *MemoryRegistry) Deregister(_ context.Context, contractID string, addr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.instances[contractID][addr]; !ok {
		return nil
	}
	delete(m.instances[contractID], addr)
	m.notify(contractID)
	return nil
}

// Discover returns instances sorted by address.
func (m *MemoryRegistry) Discover(_ context.Context, contractID string) ([]ServiceInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list(contractID), nil
}

func (m *MemoryRegistry) Watch(ctx context.Context, contractID string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)
	m.mu.Lock()
	m.watchers[contractID] = append(m.watchers[contractID], ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		ws := m.watchers[contractID]
		for i, w := range ws {
			if w == ch {
				m.watchers[contractID] = append(ws[:i], ws[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

func (m *MemoryRegistry) list(contractID string) []ServiceInstance {
	out := make([]ServiceInstance, 0, len(m.instances[contractID]))
	for _, inst := range m.instances[contractID] {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

// notify must be called with mu held. A watcher that has not consumed the
// previous list gets it replaced by the newer one.
func (m *MemoryRegistry) notify(contractID string) {
	for _, ch := range m.watchers[contractID] {
		list := m.list(contractID)
		select {
		case <-ch:
		default:
		}
		ch <- list
	}
}
