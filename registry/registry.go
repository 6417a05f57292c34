// Package registry advertises and discovers the endpoints serving a contract.
//
//	Key:   /proxyrpc/{escaped contract id}/{addr}
//	Value: JSON-encoded ServiceInstance
package registry

import (
	"context"
	"errors"
	"net/url"
)

// ErrNoInstance is returned when a contract has no live endpoint.
var ErrNoInstance = errors.New("registry: no instance serving contract")

// ServiceInstance is one endpoint serving a contract.
type ServiceInstance struct {
	Addr    string            `json:"addr"`
	Codec   string            `json:"codec,omitempty"` // serialization backend name, see codec.ByName
	Version string            `json:"version,omitempty"`
	Meta    map[string]string `json:"meta,omitempty"`
}

type Registry interface {
	// Register advertises instance under contractID for ttl seconds, renewed
	// until Deregister.
	Register(ctx context.Context, contractID string, instance ServiceInstance, ttl int64) error
	Deregister(ctx context.Context, contractID string, addr string) error
	Discover(ctx context.Context, contractID string) ([]ServiceInstance, error)
	// Watch emits the full instance list after every change until ctx is done,
	// then closes the channel.
	Watch(ctx context.Context, contractID string) <-chan []ServiceInstance
}

const keyRoot = "/proxyrpc/"

// Contract ids contain slashes; escaping keeps one contract's prefix from
// matching another's keys.
func prefix(contractID string) string {
	return keyRoot + url.PathEscape(contractID) + "/"
}

func key(contractID, addr string) string {
	return prefix(contractID) + addr
}
