// Package node wires the bridge engine, token ledger, P2P network and RPC
// server into a runnable node that can be embedded in any binary.
package node

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/ltlmaps/leap-contracts/config"
	"github.com/ltlmaps/leap-contracts/internal/consensus"
	"github.com/ltlmaps/leap-contracts/internal/events"
	klog "github.com/ltlmaps/leap-contracts/internal/log"
	"github.com/ltlmaps/leap-contracts/internal/metrics"
	"github.com/ltlmaps/leap-contracts/internal/p2p"
	"github.com/ltlmaps/leap-contracts/internal/parent"
	"github.com/ltlmaps/leap-contracts/internal/rpc"
	"github.com/ltlmaps/leap-contracts/internal/storage"
	"github.com/ltlmaps/leap-contracts/internal/token"
	"github.com/ltlmaps/leap-contracts/pkg/block"
	"github.com/ltlmaps/leap-contracts/pkg/crypto"
	"github.com/ltlmaps/leap-contracts/pkg/types"
	"github.com/rs/zerolog"
)

// sealCacheSize bounds the seals kept for serving sync requests.
const sealCacheSize = 4096

// Database namespaces.
var (
	prefixLedger = []byte("tok/")
	prefixBridge = []byte("br/")
	prefixRPC    = []byte("rpc/")
	prefixP2P    = []byte("p2p/")
	prefixMeta   = []byte("meta/")
)

// Node is a fully-initialized bridge node.
type Node struct {
	cfg     *config.Config
	genesis *config.Genesis
	logger  zerolog.Logger

	// Core
	db     storage.DB
	ledger *token.Store
	engine *consensus.Engine
	bus    *events.Bus
	stats  *metrics.Metrics
	// seals holds recently accepted seals by block id. The block tree
	// keeps ids only, so these are what sync can serve.
	seals *lru.Cache[types.Hash, *block.Seal]

	// Networking
	p2pNode *p2p.Node
	syncer  *p2p.Syncer
	syncing atomic.Bool

	// RPC
	rpcServer *rpc.Server

	// Operator identity (nil = observer)
	operatorKey *crypto.PrivateKey

	// Lifecycle
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates and initializes a new Node. It performs all setup steps
// (logger, genesis, storage, ledger, engine, P2P, RPC) but does NOT start
// background goroutines (sync, heartbeat). Call Start() for that.
func New(cfg *config.Config) (*Node, error) {
	// ── 1. Init logger ──────────────────────────────────────────────
	logFile := cfg.Log.File
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = filepath.Join(logsDir, "leapd.log")
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.Node

	// ── 2. Genesis ──────────────────────────────────────────────────
	genesis, err := loadGenesis(cfg)
	if err != nil {
		return nil, err
	}
	hasher, err := genesis.Hasher()
	if err != nil {
		return nil, fmt.Errorf("genesis hash function: %w", err)
	}

	logger.Info().
		Str("chain_id", genesis.ChainID).
		Str("network", string(cfg.Network)).
		Uint64("epoch_length", genesis.Protocol.EpochLength).
		Str("hash", hasher.Name()).
		Msg("Starting Leap bridge node")

	// ── 3. Open storage ─────────────────────────────────────────────
	db, err := storage.NewBadger(cfg.DBDir())
	if err != nil {
		return nil, err
	}
	logger.Info().Str("path", cfg.DBDir()).Msg("Database opened")

	ctx, cancel := context.WithCancel(context.Background())
	n := &Node{
		cfg:     cfg,
		genesis: genesis,
		logger:  logger,
		db:      db,
		bus:     events.NewBus(),
		ctx:     ctx,
		cancel:  cancel,
	}

	// ── 4. Operator key ─────────────────────────────────────────────
	if cfg.Operator.Key != "" {
		n.operatorKey, err = loadOperatorKey(cfg.Operator.Key)
		if err != nil {
			n.Stop()
			return nil, fmt.Errorf("load operator key %s: %w", cfg.Operator.Key, err)
		}
		logger.Info().Str("operator", n.operatorKey.Address().String()).Msg("Operator key loaded")
	}

	// ── 5. Ledger and engine ────────────────────────────────────────
	n.ledger = token.NewStore(storage.NewPrefixDB(db, prefixLedger))
	n.bus.Subscribe(events.LogSink{Logger: klog.Bridge})
	n.stats = metrics.New()
	n.bus.Subscribe(n.stats)

	engineCfg := consensus.Config{
		Params:  genesis.Params(),
		Address: genesis.BridgeAddress(),
		Parent:  parent.NewClock(genesis.Time(), genesis.ParentInterval()),
		Hasher:  hasher,
	}
	fresh, err := bootstrap(db, genesis, engineCfg)
	if err != nil {
		n.Stop()
		return nil, fmt.Errorf("apply genesis: %w", err)
	}

	engineCfg.Ledger, engineCfg.Events = n.ledger, n.bus
	n.engine, err = consensus.New(storage.NewPrefixDB(db, prefixBridge), engineCfg)
	if err != nil {
		n.Stop()
		return nil, fmt.Errorf("create engine: %w", err)
	}
	height, tipID := n.tip()
	if fresh {
		logger.Info().
			Str("root", tipID.String()).
			Int("operators", len(genesis.Operators)).
			Msg("Bridge initialized from genesis")
	} else {
		logger.Info().
			Uint64("height", height).
			Str("tip", tipID.Short()).
			Msg("Bridge resumed from database")
	}

	n.seals, err = lru.New[types.Hash, *block.Seal](sealCacheSize)
	if err != nil {
		n.Stop()
		return nil, fmt.Errorf("seal cache: %w", err)
	}

	if n.operatorKey != nil {
		if staked, err := n.engine.IsStaked(n.operatorKey.Address()); err == nil && !staked {
			logger.Warn().
				Str("operator", n.operatorKey.Address().String()).
				Msg("Operator key is not staked; blocks it signs will be rejected")
		}
	}

	// ── 6. P2P ──────────────────────────────────────────────────────
	if cfg.P2P.Enabled {
		if err := n.setupP2P(); err != nil {
			n.Stop()
			return nil, err
		}
	} else {
		logger.Warn().Msg("P2P disabled by config; node will run offline")
	}

	// ── 7. RPC server ───────────────────────────────────────────────
	if cfg.RPC.Enabled {
		rpcAddr := fmt.Sprintf("%s:%d", cfg.RPC.Addr, cfg.RPC.Port)
		n.rpcServer = rpc.New(rpcAddr, n.engine, n.ledger, genesis,
			storage.NewPrefixDB(db, prefixRPC), n.p2pNode, cfg.RPC)
		n.rpcServer.SetSealObserver(n.rememberSeal)
		n.rpcServer.SetMetrics(n.stats)
		if err := n.rpcServer.Start(); err != nil {
			n.rpcServer = nil
			n.Stop()
			return nil, fmt.Errorf("start RPC at %s: %w", rpcAddr, err)
		}
		logger.Info().Str("addr", n.rpcServer.Addr()).Msg("RPC server started")
	} else {
		logger.Warn().Msg("RPC disabled by config")
	}

	return n, nil
}

func (n *Node) setupP2P() error {
	cfg := n.cfg
	n.p2pNode = p2p.New(p2p.Config{
		ListenAddr: cfg.P2P.ListenAddr,
		Port:       cfg.P2P.Port,
		Seeds:      cfg.P2P.Seeds,
		MaxPeers:   cfg.P2P.MaxPeers,
		NoDiscover: cfg.P2P.NoDiscover,
		DB:         storage.NewPrefixDB(n.db, prefixP2P),
		DHTServer:  cfg.P2P.DHTServer,
		NetworkID:  n.genesis.ChainID,
		DataDir:    cfg.ChainDataDir(),
	})

	genesisHash, err := n.genesis.Hash()
	if err != nil {
		return fmt.Errorf("genesis hash: %w", err)
	}
	n.p2pNode.SetGenesisHash(genesisHash)
	n.p2pNode.SetHeightFn(func() uint64 {
		h, _ := n.tip()
		return h
	})
	n.p2pNode.SetSealHandler(n.handleGossipSeal)
	n.p2pNode.SetEventHandler(n.handleGossipEvent)

	if err := n.p2pNode.Start(); err != nil {
		n.p2pNode = nil
		return fmt.Errorf("start P2P: %w", err)
	}
	n.bus.Subscribe(n.p2pNode)
	n.registerPeerGauges()

	n.logger.Info().
		Str("id", n.p2pNode.ID().String()).
		Int("port", cfg.P2P.Port).
		Bool("discovery", !cfg.P2P.NoDiscover).
		Msg("P2P node started")

	// Heartbeat topic.
	if err := n.p2pNode.JoinHeartbeat(); err != nil {
		n.logger.Warn().Err(err).Msg("Failed to join heartbeat topic")
	} else {
		n.p2pNode.SetHeartbeatHandler(n.handleHeartbeat)
		n.logger.Info().Msg("Heartbeat protocol joined")
	}

	// Sync protocol.
	n.syncer = p2p.NewSyncer(n.p2pNode)
	n.syncer.RegisterHandler(n.sealsFrom)
	n.syncer.RegisterHeightHandler(n.tip)
	n.p2pNode.SetPeerConnectedHandler(func(peer.ID) { n.triggerSync() })
	n.logger.Info().Msg("Seal sync protocol registered")
	return nil
}

// registerPeerGauges exposes the peer and ban counts on /metrics.
func (n *Node) registerPeerGauges() {
	p2pNode := n.p2pNode
	gauges := []struct {
		name, help string
		fn         func() float64
	}{
		{"peers", "Connected peers.", func() float64 { return float64(p2pNode.PeerCount()) }},
		{"banned_peers", "Peers currently banned.", func() float64 { return float64(len(p2pNode.BanManager.BanList())) }},
	}
	for _, g := range gauges {
		if err := n.stats.GaugeFunc(g.name, g.help, g.fn); err != nil {
			n.logger.Warn().Err(err).Str("gauge", g.name).Msg("Metric registration failed")
		}
	}
}

// Start launches background goroutines: startup sync, sync loop and
// operator heartbeats.
func (n *Node) Start() error {
	if n.p2pNode != nil && n.syncer != nil {
		if n.syncing.CompareAndSwap(false, true) {
			n.runStartupSync()
			n.syncing.Store(false)
		}
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.runSyncLoop()
		}()
	}

	if n.p2pNode != nil && n.operatorKey != nil && n.cfg.Operator.Heartbeat {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.runHeartbeat(heartbeatInterval(n.cfg.Operator.HeartbeatInterval))
		}()
	}

	height, tipID := n.tip()
	n.logger.Info().
		Uint64("height", height).
		Str("tip", tipID.Short()).
		Bool("operator", n.operatorKey != nil).
		Msg("Node started successfully")
	return nil
}

// Stop performs graceful shutdown in reverse order. It is safe to call
// more than once.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		n.cancel()
		n.wg.Wait()

		if n.rpcServer != nil {
			n.rpcServer.Stop()
		}
		if n.p2pNode != nil {
			n.p2pNode.Stop()
		}
		if n.operatorKey != nil {
			n.operatorKey.Zero()
		}
		if n.db != nil {
			n.db.Close()
		}

		n.logger.Info().Msg("Goodbye!")
	})
}

// RPCAddr returns the address the RPC server is listening on.
func (n *Node) RPCAddr() string {
	if n.rpcServer == nil {
		return ""
	}
	return n.rpcServer.Addr()
}

// Engine returns the bridge engine.
func (n *Node) Engine() *consensus.Engine {
	return n.engine
}

// Ledger returns the token ledger.
func (n *Node) Ledger() *token.Store {
	return n.ledger
}

// Genesis returns the genesis the node runs.
func (n *Node) Genesis() *config.Genesis {
	return n.genesis
}

// P2P returns the P2P node, or nil when P2P is disabled.
func (n *Node) P2P() *p2p.Node {
	return n.p2pNode
}

// Height returns the current tip height.
func (n *Node) Height() uint64 {
	h, _ := n.tip()
	return h
}

// tip returns the tip height and id, or zeros if the engine cannot be read.
func (n *Node) tip() (uint64, types.Hash) {
	tip, err := n.engine.GetHighest()
	if err != nil {
		return 0, types.Hash{}
	}
	return tip.Height, tip.ID
}
