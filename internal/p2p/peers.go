package p2p

import (
	"context"
	"errors"
	"time"

	"github.com/libp2p/go-libp2p/core/control"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

// Peer sources.
const (
	SourceSeed      = "seed"
	SourceMDNS      = "mdns"
	SourceDHT       = "dht"
	SourceGossip    = "gossip"
	SourcePersisted = "persisted"
)

// peerConnectTimeout bounds a single outbound dial.
const peerConnectTimeout = 5 * time.Second

var errSelfDial = errors.New("dial to self")

// Peer is a connected peer.
type Peer struct {
	ID          peer.ID
	ConnectedAt time.Time
	Source      string // empty for inbound peers
}

// PeerCount returns the number of connected peers.
func (n *Node) PeerCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.peers)
}

// PeerList returns a copy of the connected peers.
func (n *Node) PeerList() []*Peer {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		cp := *p
		out = append(out, &cp)
	}
	return out
}

// DisconnectPeer closes every connection to id.
func (n *Node) DisconnectPeer(id peer.ID) error {
	if n.host == nil {
		return errNotStarted
	}
	n.removePeer(id)
	return n.host.Network().ClosePeer(id)
}

func (n *Node) addPeer(id peer.ID) {
	n.addPeerFrom(id, "")
}

// addPeerFrom tracks id. A peer keeps the first non-empty source it is
// seen with.
func (n *Node) addPeerFrom(id peer.ID, source string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if p, ok := n.peers[id]; ok {
		if p.Source == "" {
			p.Source = source
		}
		return
	}
	n.peers[id] = &Peer{ID: id, ConnectedAt: time.Now(), Source: source}
}

func (n *Node) removePeer(id peer.ID) {
	n.mu.Lock()
	delete(n.peers, id)
	n.mu.Unlock()
}

// dial connects to info and tracks it under source.
func (n *Node) dial(info peer.AddrInfo, source string) error {
	if info.ID == n.host.ID() {
		return errSelfDial
	}
	ctx, cancel := context.WithTimeout(n.ctx, peerConnectTimeout)
	defer cancel()
	if err := n.host.Connect(ctx, info); err != nil {
		return err
	}
	n.addPeerFrom(info.ID, source)
	return nil
}

func shortID(id peer.ID) string {
	s := id.String()
	if len(s) > 16 {
		return s[:16]
	}
	return s
}

// connNotifier keeps the peer table in step with the swarm.
type connNotifier struct {
	node *Node
}

func (cn *connNotifier) Connected(_ network.Network, conn network.Conn) {
	n := cn.node
	remote := conn.RemotePeer()
	if remote == n.host.ID() {
		return
	}
	n.addPeer(remote)
	if fn := n.onPeerConnected; fn != nil {
		go fn(remote)
	}
	// The dialing side opens the handshake; the listener answers it.
	if n.handshakeEnabled && conn.Stat().Direction == network.DirOutbound {
		go n.doHandshake(remote)
	}
}

func (cn *connNotifier) Disconnected(net network.Network, conn network.Conn) {
	remote := conn.RemotePeer()
	if len(net.ConnsToPeer(remote)) == 0 {
		cn.node.removePeer(remote)
	}
}

func (cn *connNotifier) Listen(network.Network, multiaddr.Multiaddr)      {}
func (cn *connNotifier) ListenClose(network.Network, multiaddr.Multiaddr) {}

// banGater refuses banned peers at dial time and once their identity is
// known on inbound connections.
type banGater struct {
	bans *BanManager
}

func (g *banGater) InterceptPeerDial(p peer.ID) bool { return !g.bans.IsBanned(p) }

func (g *banGater) InterceptAddrDial(peer.ID, multiaddr.Multiaddr) bool { return true }

func (g *banGater) InterceptAccept(network.ConnMultiaddrs) bool { return true }

func (g *banGater) InterceptSecured(_ network.Direction, p peer.ID, _ network.ConnMultiaddrs) bool {
	return !g.bans.IsBanned(p)
}

func (g *banGater) InterceptUpgraded(network.Conn) (bool, control.DisconnectReason) {
	return true, 0
}
