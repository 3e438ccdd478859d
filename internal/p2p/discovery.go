package p2p

import (
	"context"
	"fmt"
	"time"

	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	drouting "github.com/libp2p/go-libp2p/p2p/discovery/routing"
	dutil "github.com/libp2p/go-libp2p/p2p/discovery/util"
)

const (
	// dhtRendezvousFallback is the discovery namespace when no network id
	// is configured.
	dhtRendezvousFallback = "leap-bridge"

	dhtDiscoveryInterval = 30 * time.Second
	dhtQueryTimeout      = 20 * time.Second
	seedRetryInterval    = 10 * time.Second
)

// rendezvous returns the namespace peers advertise under. Each network
// gets its own so testnet and mainnet nodes never meet.
func (n *Node) rendezvous() string {
	if n.config.NetworkID == "" {
		return dhtRendezvousFallback
	}
	return "leap/" + n.config.NetworkID
}

// mdnsNotifee dials peers found on the local network.
type mdnsNotifee struct {
	node *Node
}

func (m *mdnsNotifee) HandlePeerFound(info peer.AddrInfo) {
	_ = m.node.dial(info, SourceMDNS)
}

func (n *Node) startMDNS() {
	svc := mdns.NewMdnsService(n.host, n.rendezvous(), &mdnsNotifee{node: n})
	if err := svc.Start(); err != nil {
		n.logger.Debug().Err(err).Msg("mDNS unavailable")
	}
}

// ── Seeds ───────────────────────────────────────────────────────────

// dialSeeds tries every seed once and reports how many connected.
func (n *Node) dialSeeds() int {
	connected := 0
	for _, addr := range n.config.Seeds {
		info, err := peer.AddrInfoFromString(addr)
		if err != nil {
			n.logger.Warn().Str("addr", addr).Err(err).Msg("Bad seed address")
			continue
		}
		if err := n.dial(*info, SourceSeed); err != nil {
			n.logger.Warn().Str("peer", shortID(info.ID)).Err(err).Msg("Seed connect failed")
			continue
		}
		n.logger.Info().Str("peer", shortID(info.ID)).Msg("Seed connected")
		connected++
	}
	return connected
}

// retrySeeds redials the seeds whenever the node has lost all its peers.
func (n *Node) retrySeeds() {
	if len(n.config.Seeds) == 0 {
		return
	}
	ticker := time.NewTicker(seedRetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			if n.PeerCount() > 0 {
				continue
			}
			n.logger.Info().Int("seeds", len(n.config.Seeds)).Msg("No peers, retrying seeds")
			n.dialSeeds()
		}
	}
}

// ── DHT ─────────────────────────────────────────────────────────────

func (n *Node) initDHT() error {
	mode := dht.ModeClient
	if n.config.DHTServer {
		mode = dht.ModeServer
	}
	kad, err := dht.New(n.ctx, n.host, dht.Mode(mode))
	if err != nil {
		return fmt.Errorf("create kad-dht: %w", err)
	}
	n.dht = kad
	return kad.Bootstrap(n.ctx)
}

func (n *Node) closeDHT() {
	if n.dht != nil {
		n.dht.Close()
		n.dht = nil
	}
}

// runDHTDiscovery advertises the rendezvous and periodically dials peers
// found under it until MaxPeers is reached.
func (n *Node) runDHTDiscovery() {
	if n.dht == nil {
		return
	}
	disc := drouting.NewRoutingDiscovery(n.dht)
	dutil.Advertise(n.ctx, disc, n.rendezvous())

	ticker := time.NewTicker(dhtDiscoveryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.dialDHTPeers(disc)
		}
	}
}

func (n *Node) dialDHTPeers(disc *drouting.RoutingDiscovery) {
	ctx, cancel := context.WithTimeout(n.ctx, dhtQueryTimeout)
	defer cancel()

	found, err := disc.FindPeers(ctx, n.rendezvous())
	if err != nil {
		return
	}
	for info := range found {
		if n.config.MaxPeers > 0 && n.PeerCount() >= n.config.MaxPeers {
			return
		}
		if len(info.Addrs) == 0 {
			continue
		}
		_ = n.dial(info, SourceDHT)
	}
}
