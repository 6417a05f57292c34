package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxyrpc/registry"
)

const sample = `
log:
  level: debug
  format: json
server:
  address: ":9000"
  advertise: "10.0.0.5:9000"
  codec: msgpack
  max_concurrent: 64
  idle_timeout: 90s
  request_timeout: 2s
  rate_limit: 100
  recovery: false
client:
  codec: msgpack
  max_outstanding: 1
  call_timeout: 1500ms
registry:
  type: memory
  ttl: 5
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "proxyrpc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, "msgpack", cfg.Server.Codec)
	assert.Equal(t, 64, cfg.Server.MaxConcurrent)
	assert.Equal(t, 90*time.Second, cfg.Server.IdleTimeout.Duration)
	assert.Equal(t, 2*time.Second, cfg.Server.RequestTimeout.Duration)
	assert.False(t, cfg.Server.Recovery)
	assert.Equal(t, 1, cfg.Client.MaxOutstanding)
	assert.Equal(t, 1500*time.Millisecond, cfg.Client.CallTimeout.Duration)
	// Untouched keys keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Client.Heartbeat.Duration)
	assert.Equal(t, int64(5), cfg.Registry.TTL)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("PROXYRPC_SERVER_MAX_CONCURRENT", "8")
	t.Setenv("PROXYRPC_CLIENT_CALL_TIMEOUT", "250ms")
	t.Setenv("PROXYRPC_REGISTRY_ENDPOINTS", "etcd-a:2379,etcd-b:2379")
	t.Setenv("PROXYRPC_LOG_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Server.MaxConcurrent)
	assert.Equal(t, 250*time.Millisecond, cfg.Client.CallTimeout.Duration)
	assert.Equal(t, []string{"etcd-a:2379", "etcd-b:2379"}, cfg.Registry.Endpoints)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "server:\n  idle_timeout: soon\n"))
	assert.ErrorContains(t, err, "invalid duration")

	_, err = Load(writeConfig(t, "registry:\n  type: zookeeper\n"))
	assert.ErrorContains(t, err, "zookeeper")

	t.Setenv("PROXYRPC_CLIENT_HEARTBEAT", "often")
	_, err = Load("")
	assert.Error(t, err)
}

func TestBuilders(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	tbl, err := cfg.Server.NewTable()
	require.NoError(t, err)
	assert.Equal(t, "msgpack", tbl.Codec().Name())

	// max concurrent, frame size and one middleware option
	assert.Len(t, cfg.Server.ServerOptions(), 3)

	reg, err := cfg.Registry.Open()
	require.NoError(t, err)
	assert.IsType(t, &registry.MemoryRegistry{}, reg)
	assert.NotEmpty(t, cfg.Server.TCPOptions(reg, cfg.Registry.TTL))

	copts, err := cfg.Client.ClientOptions()
	require.NoError(t, err)
	assert.Len(t, copts, 4)
	_, err = cfg.Client.DialOptions()
	require.NoError(t, err)

	cfg.Client.Codec = "xml"
	_, err = cfg.Client.ClientOptions()
	assert.Error(t, err)

	none, err := RegistryConfig{}.Open()
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestLogApply(t *testing.T) {
	assert.NoError(t, LogConfig{Level: "info", Format: "text"}.Apply())
	assert.Error(t, LogConfig{Format: "xml"}.Apply())
}
