package p2p

import "time"

// Config configures one Node's libp2p stack.
type Config struct {
	// ListenAddrs are multiaddr strings the host listens on, e.g.
	// "/ip4/0.0.0.0/tcp/4001". Empty means an ephemeral random port on
	// all interfaces.
	ListenAddrs []string

	// BootstrapPeers are multiaddr strings (including the /p2p/<id>
	// suffix) this node dials on startup to join the DHT.
	BootstrapPeers []string

	// Rendezvous is the namespace this node advertises itself and
	// discovers others under via the DHT-backed rendezvous discovery.
	Rendezvous string

	// EnableMDNS turns on local-network peer discovery.
	EnableMDNS bool

	// GossipHeartbeat is the gossipsub mesh heartbeat interval.
	GossipHeartbeat time.Duration

	// RequestTimeout bounds opening a request-response stream to a peer;
	// reading the reply is not bounded by it.
	RequestTimeout time.Duration

	// Limiter, if non-nil, gates inbound gossip and request-response
	// traffic per remote peer.
	Limiter *PeerLimiter
}

const (
	defaultGossipHeartbeat = time.Second
	defaultRequestTimeout  = 10 * time.Second
)

func (c Config) withDefaults() Config {
	if c.GossipHeartbeat == 0 {
		c.GossipHeartbeat = defaultGossipHeartbeat
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	return c
}
