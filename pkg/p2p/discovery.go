package p2p

import (
	"context"
	"time"

	"github.com/libp2p/go-libp2p/core/event"
	"github.com/libp2p/go-libp2p/core/peer"
	mdnsdisc "github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	drouting "github.com/libp2p/go-libp2p/p2p/discovery/routing"
	dutil "github.com/libp2p/go-libp2p/p2p/discovery/util"

	"github.com/Mindburn-Labs/homestar/pkg/events"
)

// mdnsServiceTag namespaces this node's mDNS announcements so it only
// discovers other Homestar peers on the local network, not unrelated
// libp2p services.
const mdnsServiceTag = "homestar-mdns"

// mdnsNotifee dials every peer mDNS reports on the local network.
type mdnsNotifee struct {
	n *Node
}

func (m *mdnsNotifee) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == m.n.host.ID() {
		return
	}
	dialCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.n.host.Connect(dialCtx, info); err != nil {
		return
	}
	m.n.emit(events.NetworkRendezvousDiscovered, map[string]string{"peer": info.ID.String(), "via": "mdns"})
}

// startMDNS begins local-network peer discovery via multicast DNS.
func (n *Node) startMDNS() error {
	svc := mdnsdisc.NewMdnsService(n.host, mdnsServiceTag, &mdnsNotifee{n: n})
	return svc.Start()
}

// runRendezvousDiscovery advertises this node under its configured
// rendezvous string and periodically polls the DHT for other peers
// advertising the same string, dialing any it hasn't already connected
// to. It runs until ctx is cancelled.
func (n *Node) runRendezvousDiscovery(ctx context.Context, disc *drouting.RoutingDiscovery) {
	dutil.Advertise(ctx, disc, n.cfg.Rendezvous)

	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	n.discoverRendezvousPeers(ctx, disc)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.discoverRendezvousPeers(ctx, disc)
		}
	}
}

func (n *Node) discoverRendezvousPeers(ctx context.Context, disc *drouting.RoutingDiscovery) {
	peerCh, err := disc.FindPeers(ctx, n.cfg.Rendezvous)
	if err != nil {
		return
	}
	for info := range peerCh {
		if info.ID == n.host.ID() || len(info.Addrs) == 0 {
			continue
		}
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := n.host.Connect(dialCtx, info)
		cancel()
		if err != nil {
			continue
		}
		n.emit(events.NetworkRendezvousDiscovered, map[string]string{"peer": info.ID.String(), "via": "rendezvous"})
	}
}

// watchReachability republishes the host's own AutoNAT-derived
// reachability changes (public/private/unknown) onto the event bus, so
// observability consumers don't need their own libp2p event subscription.
func (n *Node) watchReachability(ctx context.Context) {
	sub, err := n.host.EventBus().Subscribe(new(event.EvtLocalReachabilityChanged))
	if err != nil {
		return
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.Out():
			if !ok {
				return
			}
			e := evt.(event.EvtLocalReachabilityChanged)
			n.emit(events.NetworkAutoNATStatusChanged, map[string]string{"reachability": e.Reachability.String()})
		}
	}
}
