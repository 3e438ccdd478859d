package p2p

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
)

func TestBanGater(t *testing.T) {
	bm := NewBanManager(nil, nil)
	g := &banGater{bans: bm}
	bad := peer.ID("bad-peer")
	good := peer.ID("good-peer")
	bm.RecordOffense(bad, PenaltyHandshakeFail, "genesis mismatch")

	if g.InterceptPeerDial(bad) {
		t.Error("dial to banned peer allowed")
	}
	if !g.InterceptPeerDial(good) {
		t.Error("dial to clean peer refused")
	}
	if g.InterceptSecured(network.DirInbound, bad, nil) {
		t.Error("secured inbound from banned peer allowed")
	}
	if !g.InterceptSecured(network.DirInbound, good, nil) {
		t.Error("secured inbound from clean peer refused")
	}
	if !g.InterceptAccept(nil) {
		t.Error("InterceptAccept should defer to InterceptSecured")
	}
	if ok, _ := g.InterceptUpgraded(nil); !ok {
		t.Error("InterceptUpgraded refused")
	}

	bm.Unban(bad)
	if !g.InterceptPeerDial(bad) {
		t.Error("dial refused after Unban")
	}
}

func TestShortID(t *testing.T) {
	id := generateTestPeerID(t)
	if got := shortID(id); len(got) != 16 || got != id.String()[:16] {
		t.Errorf("shortID = %q", got)
	}
	if got := shortID(peer.ID("")); got != "" {
		t.Errorf("shortID(empty) = %q", got)
	}
}

func TestNode_DialSelf(t *testing.T) {
	n := startTestNode(t)
	err := n.dial(peer.AddrInfo{ID: n.host.ID(), Addrs: n.host.Addrs()}, SourceSeed)
	if !errors.Is(err, errSelfDial) {
		t.Errorf("dial self: err = %v, want errSelfDial", err)
	}
	if n.PeerCount() != 0 {
		t.Error("self should not be tracked as a peer")
	}
}

func TestNode_DialTracksSource(t *testing.T) {
	nodeA := startTestNode(t)
	nodeB := startTestNode(t)

	info := peer.AddrInfo{ID: nodeA.host.ID(), Addrs: nodeA.host.Addrs()}
	if err := nodeB.dial(info, SourcePersisted); err != nil {
		t.Fatalf("dial: %v", err)
	}

	var found *Peer
	for _, p := range nodeB.PeerList() {
		if p.ID == nodeA.host.ID() {
			found = p
		}
	}
	if found == nil {
		t.Fatal("dialed peer not tracked")
	}
	if found.Source != SourcePersisted {
		t.Errorf("Source = %q, want %q", found.Source, SourcePersisted)
	}
}

func TestConnNotifier_ConnectDisconnect(t *testing.T) {
	nodeA := New(Config{ListenAddr: "127.0.0.1", Port: 0, NoDiscover: true})
	var connected atomic.Int32
	nodeA.SetPeerConnectedHandler(func(peer.ID) { connected.Add(1) })
	if err := nodeA.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { nodeA.Stop() })
	nodeB := startTestNode(t)

	info := peer.AddrInfo{ID: nodeA.host.ID(), Addrs: nodeA.host.Addrs()}
	if err := nodeB.dial(info, SourceSeed); err != nil {
		t.Fatalf("dial: %v", err)
	}

	// The inbound side learns about the peer through the notifier alone.
	waitFor(t, "inbound peer tracked", func() bool { return nodeA.PeerCount() == 1 })
	waitFor(t, "connect handler", func() bool { return connected.Load() == 1 })

	if err := nodeB.DisconnectPeer(nodeA.host.ID()); err != nil {
		t.Fatalf("DisconnectPeer: %v", err)
	}
	waitFor(t, "inbound peer dropped", func() bool { return nodeA.PeerCount() == 0 })
	if nodeB.PeerCount() != 0 {
		t.Error("dialer still tracks disconnected peer")
	}
}

func TestNode_BannedPeerCannotDial(t *testing.T) {
	nodeA := startTestNode(t)
	nodeB := startTestNode(t)

	nodeA.BanManager.RecordOffense(nodeB.host.ID(), PenaltyHandshakeFail, "test ban")

	info := peer.AddrInfo{ID: nodeA.host.ID(), Addrs: nodeA.host.Addrs()}
	if err := nodeB.dial(info, SourceSeed); err == nil {
		// The dial may complete before the gater closes the connection.
		waitFor(t, "banned peer dropped", func() bool { return nodeA.PeerCount() == 0 })
	}
}
