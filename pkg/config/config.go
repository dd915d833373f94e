// Package config loads the node's structured configuration document: a
// YAML file with monitoring, network, database, and runtime sections,
// with environment-variable overrides layered on top the way
// pkg/config/config.go does for its own settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the node's full configuration document.
type Config struct {
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Node       NodeConfig       `yaml:"node"`
}

// MonitoringConfig controls structured logging and trace/metric export.
type MonitoringConfig struct {
	LogLevel    string `yaml:"log_level"`
	OTLPEnabled bool   `yaml:"otlp_enabled"`
	OTLPAddr    string `yaml:"otlp_addr"`
}

// NodeConfig is the `node` section: networking, storage, and lifecycle.
type NodeConfig struct {
	Network         NetworkConfig `yaml:"network"`
	DB              DBConfig      `yaml:"db"`
	GCInterval      Seconds       `yaml:"gc_interval"`
	ShutdownTimeout Seconds       `yaml:"shutdown_timeout"`
}

// Seconds is a YAML-scalar duration, always written and read in whole
// seconds (per spec.md §6's "all durations are seconds unless the name
// ends `_ms`" convention) rather than time.Duration's native nanosecond
// int form.
type Seconds int

// Duration converts s to a time.Duration for use with the standard
// library's timers and contexts.
func (s Seconds) Duration() time.Duration {
	return time.Duration(s) * time.Second
}

// NetworkConfig is `node.network`: the node's RPC, metrics, webserver,
// and libp2p listening surfaces.
type NetworkConfig struct {
	Metrics   PortConfig      `yaml:"metrics"`
	RPC       PortConfig      `yaml:"rpc"`
	Webserver PortConfig      `yaml:"webserver"`
	Libp2p    Libp2pConfig    `yaml:"libp2p"`
}

// PortConfig is a bare TCP listen port, shared by the metrics, RPC, and
// webserver subsections.
type PortConfig struct {
	Port int `yaml:"port"`
}

// Libp2pConfig is `node.network.libp2p`: listen address and the discovery
// and pubsub/dht knobs pkg/p2p.Config is built from.
type Libp2pConfig struct {
	ListenAddress string             `yaml:"listen_address"`
	MDNS          MDNSConfig         `yaml:"mdns"`
	Pubsub        PubsubConfig       `yaml:"pubsub"`
	DHT           DHTConfig          `yaml:"dht"`
	Rendezvous    RendezvousConfig   `yaml:"rendezvous"`
}

// MDNSConfig toggles local-network peer discovery.
type MDNSConfig struct {
	Enable bool `yaml:"enable"`
}

// PubsubConfig is gossipsub's heartbeat tuning.
type PubsubConfig struct {
	HeartbeatMs int `yaml:"heartbeat_ms"`
}

// DHTConfig is the Kademlia DHT's bootstrap peer list.
type DHTConfig struct {
	BootstrapPeers []string `yaml:"bootstrap_peers"`
}

// RendezvousConfig is the optional rendezvous discovery string.
type RendezvousConfig struct {
	Enable bool   `yaml:"enable"`
	String string `yaml:"string"`
}

// DBConfig is `node.db`: the receipt store's connection pool.
type DBConfig struct {
	URL         string `yaml:"url"`
	MaxPoolSize int    `yaml:"max_pool_size"`
}

// Defaults returns the configuration a bare `homestar init` scaffolds.
func Defaults() Config {
	return Config{
		Monitoring: MonitoringConfig{LogLevel: "info"},
		Node: NodeConfig{
			Network: NetworkConfig{
				Metrics:   PortConfig{Port: 9090},
				RPC:       PortConfig{Port: 9091},
				Webserver: PortConfig{Port: 8080},
				Libp2p: Libp2pConfig{
					ListenAddress: "/ip4/0.0.0.0/tcp/7000",
					MDNS:          MDNSConfig{Enable: true},
					Pubsub:        PubsubConfig{HeartbeatMs: 1000},
					Rendezvous:    RendezvousConfig{Enable: false, String: "homestar"},
				},
			},
			DB:              DBConfig{URL: "homestar.db", MaxPoolSize: 10},
			GCInterval:      Seconds(6 * time.Hour / time.Second),
			ShutdownTimeout: Seconds(20),
		},
	}
}

// Load reads and parses a YAML config document at path, then applies
// environment-variable overrides on top of it. A missing file is not an
// error: Load falls back to Defaults() before applying overrides, the
// same "env wins over a sensible default" layering as the teacher's
// Load().
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// fall through to defaults
		default:
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HOMESTAR_LOG_LEVEL"); v != "" {
		cfg.Monitoring.LogLevel = v
	}
	if v := os.Getenv("HOMESTAR_DB_URL"); v != "" {
		cfg.Node.DB.URL = v
	}
	if v := os.Getenv("HOMESTAR_LIBP2P_LISTEN_ADDRESS"); v != "" {
		cfg.Node.Network.Libp2p.ListenAddress = v
	}
	if v := os.Getenv("HOMESTAR_RPC_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Node.Network.RPC.Port = p
		}
	}
	if v := os.Getenv("HOMESTAR_METRICS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Node.Network.Metrics.Port = p
		}
	}
}
