// Package p2p gossips block seals, bridge events and operator heartbeats
// between bridge nodes over libp2p.
package p2p

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/ltlmaps/leap-contracts/internal/events"
	klog "github.com/ltlmaps/leap-contracts/internal/log"
	"github.com/ltlmaps/leap-contracts/internal/storage"
	"github.com/ltlmaps/leap-contracts/pkg/block"
	"github.com/ltlmaps/leap-contracts/pkg/types"
	"github.com/rs/zerolog"
)

// Config holds P2P node configuration.
type Config struct {
	ListenAddr string
	Port       int
	Seeds      []string // full multiaddrs including /p2p/<id>
	MaxPeers   int
	NoDiscover bool
	DHTServer  bool       // run the DHT in server mode (seed nodes)
	DB         storage.DB // peer and ban persistence; nil disables it
	NetworkID  string     // chain id; scopes discovery and the handshake
	DataDir    string     // where the node identity is kept; empty = ephemeral
}

// SealHandler receives a well-formed seal gossiped by a peer.
type SealHandler func(from peer.ID, s *block.Seal)

// EventHandler receives a bridge event gossiped by a peer.
type EventHandler func(from peer.ID, ev events.Event)

// Node is a bridge node's presence on the libp2p network.
type Node struct {
	config Config
	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger

	host   host.Host
	pubsub *pubsub.PubSub
	dht    *dht.IpfsDHT // nil when discovery is off

	topicSeal  *pubsub.Topic
	topicEvent *pubsub.Topic
	subSeal    *pubsub.Subscription
	subEvent   *pubsub.Subscription

	topicHeartbeat   *pubsub.Topic
	subHeartbeat     *pubsub.Subscription
	heartbeatHandler func(*HeartbeatMessage)

	sealHandler     SealHandler
	eventHandler    EventHandler
	onPeerConnected func(peer.ID)

	mu    sync.RWMutex
	peers map[peer.ID]*Peer

	// BanManager is created by Start.
	BanManager *BanManager
	peerStore  *PeerStore
	connNotify *connNotifier

	genesisHash      types.Hash
	handshakeEnabled bool
	heightFn         func() uint64
}

// New returns an unstarted node.
func New(cfg Config) *Node {
	ctx, cancel := context.WithCancel(context.Background())
	n := &Node{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
		logger: klog.P2P,
		peers:  make(map[peer.ID]*Peer),
	}
	if cfg.DB != nil {
		n.peerStore = NewPeerStore(cfg.DB)
	}
	return n
}

// Start brings up the host, joins the gossip topics and begins finding
// peers.
func (n *Node) Start() error {
	n.startBanManager()

	if err := n.startHost(); err != nil {
		return err
	}
	if err := n.startPubSub(); err != nil {
		n.closeDHT()
		n.host.Close()
		return err
	}
	if n.handshakeEnabled {
		n.registerHandshakeHandler()
	}

	go n.readLoop(n.subSeal, n.handleSealMessage)
	go n.readLoop(n.subEvent, n.handleEventMessage)
	go n.redialPersisted()

	if len(n.config.Seeds) > 0 {
		n.logger.Info().Int("seeds", len(n.config.Seeds)).Msg("Connecting to seeds")
		n.dialSeeds()
	}
	go n.retrySeeds()

	if !n.config.NoDiscover {
		n.startMDNS()
		go n.runDHTDiscovery()
	}
	if n.peerStore != nil {
		go n.runPersistLoop()
	}
	go n.BanManager.RunPruneLoop(n.ctx.Done())

	n.logger.Info().
		Str("id", shortID(n.host.ID())).
		Strs("addrs", n.Addrs()).
		Msg("P2P node started")
	return nil
}

// startBanManager creates the ban manager before the host so the
// connection gater can consult it.
func (n *Node) startBanManager() {
	var store *BanStore
	if n.config.DB != nil {
		store = NewBanStore(n.config.DB)
	}
	n.BanManager = NewBanManager(store, func(id peer.ID) { n.DisconnectPeer(id) })
	if active := n.BanManager.LoadBans(); active > 0 {
		n.logger.Info().Int("bans", active).Msg("Restored peer bans")
	}
}

func (n *Node) startHost() error {
	opts := []libp2p.Option{
		libp2p.ListenAddrStrings(fmt.Sprintf("/ip4/%s/tcp/%d", n.config.ListenAddr, n.config.Port)),
		libp2p.ConnectionGater(&banGater{bans: n.BanManager}),
	}
	if n.config.DataDir != "" {
		key, err := loadOrCreateIdentity(n.config.DataDir)
		if err != nil {
			return fmt.Errorf("load p2p identity: %w", err)
		}
		opts = append(opts, libp2p.Identity(key))
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return fmt.Errorf("create libp2p host: %w", err)
	}
	n.host = h
	n.connNotify = &connNotifier{node: n}
	h.Network().Notify(n.connNotify)

	// The DHT comes up before GossipSub so it can feed it peers.
	if !n.config.NoDiscover {
		if err := n.initDHT(); err != nil {
			h.Close()
			return fmt.Errorf("init dht: %w", err)
		}
	}
	return nil
}

func (n *Node) startPubSub() error {
	ps, err := pubsub.NewGossipSub(n.ctx, n.host, pubsub.WithMaxMessageSize(maxMessageSize))
	if err != nil {
		return fmt.Errorf("create pubsub: %w", err)
	}
	n.pubsub = ps

	if n.topicSeal, n.subSeal, err = n.join(TopicSeals); err != nil {
		return err
	}
	if n.topicEvent, n.subEvent, err = n.join(TopicEvents); err != nil {
		return err
	}
	return nil
}

// join joins and subscribes to a GossipSub topic.
func (n *Node) join(name string) (*pubsub.Topic, *pubsub.Subscription, error) {
	topic, err := n.pubsub.Join(name)
	if err != nil {
		return nil, nil, fmt.Errorf("join %s: %w", name, err)
	}
	sub, err := topic.Subscribe()
	if err != nil {
		topic.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", name, err)
	}
	return topic, sub, nil
}

// Stop persists the peer table and shuts the node down. It is safe to
// call on a node that never started.
func (n *Node) Stop() error {
	n.persistPeers()
	n.cancel()

	for _, sub := range []*pubsub.Subscription{n.subSeal, n.subEvent} {
		if sub != nil {
			sub.Cancel()
		}
	}
	n.LeaveHeartbeat()
	n.closeDHT()

	if n.host == nil {
		return nil
	}
	return n.host.Close()
}

// Host returns the libp2p host, or nil before Start.
func (n *Node) Host() host.Host {
	return n.host
}

// ID returns the node's peer ID, or "" before Start.
func (n *Node) ID() peer.ID {
	if n.host == nil {
		return ""
	}
	return n.host.ID()
}

// Addrs returns the node's dialable multiaddrs including its peer ID.
func (n *Node) Addrs() []string {
	if n.host == nil {
		return nil
	}
	out := make([]string, 0, len(n.host.Addrs()))
	for _, a := range n.host.Addrs() {
		out = append(out, fmt.Sprintf("%s/p2p/%s", a, n.host.ID()))
	}
	return out
}

// SetGenesisHash sets the genesis identity peers must share. A non-zero
// hash turns the handshake on.
func (n *Node) SetGenesisHash(h types.Hash) {
	n.genesisHash = h
	n.handshakeEnabled = !h.IsZero()
}

// SetHeightFn sets where the handshake reads the local tip height.
func (n *Node) SetHeightFn(fn func() uint64) {
	n.heightFn = fn
}

// SetPeerConnectedHandler registers a callback run for each new peer.
func (n *Node) SetPeerConnectedHandler(fn func(peer.ID)) {
	n.onPeerConnected = fn
}

// SetSealHandler registers the callback for gossiped seals.
func (n *Node) SetSealHandler(fn SealHandler) {
	n.sealHandler = fn
}

// SetEventHandler registers the callback for gossiped events.
func (n *Node) SetEventHandler(fn EventHandler) {
	n.eventHandler = fn
}

// readLoop feeds every message from other peers on sub to handle until
// the node stops.
func (n *Node) readLoop(sub *pubsub.Subscription, handle func(*pubsub.Message)) {
	for {
		msg, err := sub.Next(n.ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == n.host.ID() {
			continue
		}
		n.safely(msg.ReceivedFrom, func() { handle(msg) })
	}
}

// safely runs fn, logging instead of crashing if a handler panics.
func (n *Node) safely(from peer.ID, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error().Interface("panic", r).Str("peer", shortID(from)).Msg("Gossip handler panicked")
		}
	}()
	fn()
}

func (n *Node) handleSealMessage(msg *pubsub.Message) {
	n.addPeerFrom(msg.ReceivedFrom, SourceGossip)

	var s block.Seal
	if err := json.Unmarshal(msg.Data, &s); err != nil {
		n.BanManager.RecordOffense(msg.ReceivedFrom, PenaltyMalformed, "malformed seal")
		return
	}
	if err := s.Validate(); err != nil {
		n.BanManager.RecordOffense(msg.ReceivedFrom, PenaltyMalformed, err.Error())
		return
	}
	if n.sealHandler != nil {
		n.sealHandler(msg.ReceivedFrom, &s)
	}
}

func (n *Node) handleEventMessage(msg *pubsub.Message) {
	n.addPeerFrom(msg.ReceivedFrom, SourceGossip)

	var ev events.Event
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		n.BanManager.RecordOffense(msg.ReceivedFrom, PenaltyMalformed, "malformed event")
		return
	}
	if n.eventHandler != nil {
		n.eventHandler(msg.ReceivedFrom, ev)
	}
}
