package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/homestar/pkg/config"
)

// TestLoad_DefaultsWithoutFile verifies the node boots with safe
// defaults when no config file is present and no env vars are set.
func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Setenv("HOMESTAR_LOG_LEVEL", "")
	t.Setenv("HOMESTAR_DB_URL", "")
	t.Setenv("HOMESTAR_RPC_PORT", "")
	t.Setenv("HOMESTAR_METRICS_PORT", "")
	t.Setenv("HOMESTAR_LIBP2P_LISTEN_ADDRESS", "")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Monitoring.LogLevel)
	assert.Equal(t, 9091, cfg.Node.Network.RPC.Port)
	assert.Equal(t, "homestar.db", cfg.Node.DB.URL)
	assert.True(t, cfg.Node.Network.Libp2p.MDNS.Enable)
	assert.Equal(t, 20, int(cfg.Node.ShutdownTimeout))
}

// TestLoad_ParsesYAMLDocument verifies a config file's sections override
// the corresponding defaults while leaving unset sections untouched.
func TestLoad_ParsesYAMLDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "homestar.yaml")
	doc := `
monitoring:
  log_level: debug
node:
  network:
    rpc:
      port: 9999
    libp2p:
      listen_address: /ip4/0.0.0.0/tcp/4001
      dht:
        bootstrap_peers:
          - /ip4/1.2.3.4/tcp/4001/p2p/Qmabc
  db:
    url: /var/lib/homestar/receipts.db
    max_pool_size: 25
  gc_interval: 3600
  shutdown_timeout: 5
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Monitoring.LogLevel)
	assert.Equal(t, 9999, cfg.Node.Network.RPC.Port)
	assert.Equal(t, "/ip4/0.0.0.0/tcp/4001", cfg.Node.Network.Libp2p.ListenAddress)
	assert.Equal(t, []string{"/ip4/1.2.3.4/tcp/4001/p2p/Qmabc"}, cfg.Node.Network.Libp2p.DHT.BootstrapPeers)
	assert.Equal(t, "/var/lib/homestar/receipts.db", cfg.Node.DB.URL)
	assert.Equal(t, 25, cfg.Node.DB.MaxPoolSize)
	assert.Equal(t, 3600, int(cfg.Node.GCInterval))
	assert.Equal(t, 5, int(cfg.Node.ShutdownTimeout))
	// Sections absent from the document keep their default (metrics port untouched).
	assert.Equal(t, 9090, cfg.Node.Network.Metrics.Port)
}

// TestLoad_EnvOverridesWinOverFile verifies environment variables take
// priority over both defaults and a loaded file, the same layering order
// the teacher's Load() uses.
func TestLoad_EnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "homestar.yaml")
	require.NoError(t, os.WriteFile(path, []byte("monitoring:\n  log_level: warn\n"), 0o644))

	t.Setenv("HOMESTAR_LOG_LEVEL", "error")
	t.Setenv("HOMESTAR_RPC_PORT", "7777")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.Monitoring.LogLevel)
	assert.Equal(t, 7777, cfg.Node.Network.RPC.Port)
}

// TestSeconds_DurationConversion verifies Seconds converts to the
// equivalent time.Duration.
func TestSeconds_DurationConversion(t *testing.T) {
	assert.Equal(t, 20*time.Second, config.Seconds(20).Duration())
}
