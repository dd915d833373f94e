package p2p

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	drouting "github.com/libp2p/go-libp2p/p2p/discovery/routing"
	"github.com/multiformats/go-multiaddr"

	"github.com/Mindburn-Labs/homestar/pkg/events"
)

// Node is one Homestar peer's network stack: a libp2p host, a
// gossipsub router subscribed to ReceiptsTopic, a Kademlia DHT for
// content-routed record lookups, and rendezvous/mDNS discovery layered
// on top of both.
type Node struct {
	cfg Config
	bus *events.Bus

	host  host.Host
	pub   *pubsub.PubSub
	topic *pubsub.Topic
	sub   *pubsub.Subscription
	dht   *dht.IpfsDHT

	sinkMu sync.RWMutex
	sink   ReceiptSink

	infoMu sync.RWMutex
	info   WorkflowInfoSource

	cancel context.CancelFunc
}

// New builds and starts a Node: it creates the libp2p host, joins the
// DHT, dials any configured bootstrap peers, subscribes to
// ReceiptsTopic, and (if configured) starts mDNS and rendezvous
// discovery. Call Close to tear everything down.
func New(ctx context.Context, cfg Config, bus *events.Bus) (*Node, error) {
	cfg = cfg.withDefaults()
	if bus == nil {
		bus = events.NewBus()
	}

	ctx, cancel := context.WithCancel(ctx)

	opts := []libp2p.Option{libp2p.DefaultTransports}
	for _, a := range cfg.ListenAddrs {
		opts = append(opts, libp2p.ListenAddrStrings(a))
	}
	opts = append(opts, libp2p.EnableNATService(), libp2p.EnableHolePunching())

	h, err := libp2p.New(opts...)
	if err != nil {
		cancel()
		return nil, newError(ErrTransport, "", "creating libp2p host: "+err.Error())
	}

	kdht, err := dht.New(ctx, h, dht.Mode(dht.ModeAutoServer))
	if err != nil {
		cancel()
		_ = h.Close()
		return nil, newError(ErrTransport, "", "creating DHT: "+err.Error())
	}
	if err := kdht.Bootstrap(ctx); err != nil {
		cancel()
		_ = h.Close()
		return nil, newError(ErrTransport, "", "bootstrapping DHT: "+err.Error())
	}

	ps, err := pubsub.NewGossipSub(ctx, h, pubsub.WithMessageSignaturePolicy(pubsub.StrictSign))
	if err != nil {
		cancel()
		_ = h.Close()
		return nil, newError(ErrTransport, "", "creating gossipsub: "+err.Error())
	}
	topic, err := ps.Join(ReceiptsTopic)
	if err != nil {
		cancel()
		_ = h.Close()
		return nil, newError(ErrTransport, "", "joining receipts topic: "+err.Error())
	}
	sub, err := topic.Subscribe()
	if err != nil {
		cancel()
		_ = h.Close()
		return nil, newError(ErrTransport, "", "subscribing to receipts topic: "+err.Error())
	}

	n := &Node{cfg: cfg, bus: bus, host: h, pub: ps, topic: topic, sub: sub, dht: kdht, cancel: cancel}

	n.dialBootstrapPeers(ctx)
	n.registerRequestResponseHandler()

	go n.receiveGossipLoop(ctx)
	go n.watchReachability(ctx)
	if cfg.EnableMDNS {
		if err := n.startMDNS(); err != nil {
			n.emit(events.NetworkConnectionEstablished, map[string]string{"mdns_error": err.Error()})
		}
	}
	if cfg.Rendezvous != "" {
		go n.runRendezvousDiscovery(ctx, drouting.NewRoutingDiscovery(kdht))
	}

	return n, nil
}

// ID returns this node's peer ID text form.
func (n *Node) ID() string {
	return n.host.ID().String()
}

// Addrs returns this node's currently known listen multiaddrs,
// including the trailing /p2p/<id> component.
func (n *Node) Addrs() []string {
	addrs := n.host.Addrs()
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = fmt.Sprintf("%s/p2p/%s", a, n.host.ID())
	}
	return out
}

// Close tears down discovery, pubsub, the DHT, and the host.
func (n *Node) Close() error {
	n.cancel()
	n.sub.Cancel()
	n.topic.Close()
	if err := n.dht.Close(); err != nil {
		return err
	}
	return n.host.Close()
}

func (n *Node) dialBootstrapPeers(ctx context.Context) {
	for _, addr := range n.cfg.BootstrapPeers {
		maddr, err := multiaddr.NewMultiaddr(addr)
		if err != nil {
			continue
		}
		info, err := peer.AddrInfoFromP2pAddr(maddr)
		if err != nil {
			continue
		}
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_ = n.host.Connect(dialCtx, *info)
		cancel()
	}
}

func (n *Node) emit(eventType string, data interface{}) {
	n.bus.Publish(events.Event{Type: eventType, Data: data, Timestamp: time.Now().UnixMilli()})
}
