package node

import (
	"context"
	"errors"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/ltlmaps/leap-contracts/internal/consensus"
	"github.com/ltlmaps/leap-contracts/internal/events"
	"github.com/ltlmaps/leap-contracts/internal/metrics"
	"github.com/ltlmaps/leap-contracts/internal/p2p"
	"github.com/ltlmaps/leap-contracts/pkg/block"
	"github.com/ltlmaps/leap-contracts/pkg/types"
)

const (
	syncInterval = 10 * time.Second
	// syncPeers is how many peers are asked for their tip.
	syncPeers = 3
	// maxSyncBackoffs bounds how far sync steps back looking for a known
	// parent after a fork.
	maxSyncBackoffs = 8
)

// rememberSeal caches an accepted seal for serving to syncing peers.
func (n *Node) rememberSeal(id types.Hash, s *block.Seal) {
	n.seals.Add(id, s)
}

// ingestSeal submits a seal received from source to the engine and caches
// it on acceptance.
func (n *Node) ingestSeal(source string, s *block.Seal) (*consensus.SubmitResult, error) {
	res, err := n.engine.SubmitBlock(s.Prev, s.Root, s.Signature)
	n.stats.ObserveSeal(source, err)
	if err != nil {
		return nil, err
	}
	n.rememberSeal(res.Node.ID, s)
	return res, nil
}

// handleGossipSeal processes a seal gossiped by a peer. Only seals that
// fail authorization cost the peer score; the other rejections depend on
// arrival order and happen between honest nodes.
func (n *Node) handleGossipSeal(from peer.ID, s *block.Seal) {
	res, err := n.ingestSeal(metrics.SourceGossip, s)
	if err != nil {
		switch {
		case errors.Is(err, consensus.ErrDuplicateBlock):
			return
		case errors.Is(err, consensus.ErrDanglingParent):
			n.triggerSync()
		case errors.Is(err, consensus.ErrAuthorization):
			n.p2pNode.BanManager.RecordOffense(from, p2p.PenaltyInvalidSeal, err.Error())
		}
		n.logger.Debug().Err(err).Uint64("height", s.Height).Msg("Gossiped seal rejected")
		return
	}

	n.logger.Info().
		Uint64("height", res.Node.Height).
		Str("id", res.Node.ID.Short()).
		Str("operator", res.Node.Operator.String()).
		Bool("advanced", res.Advanced).
		Msg("Block received and applied")
}

// handleGossipEvent logs an event announced by a peer. Peer events are
// informational; local state only changes through seals.
func (n *Node) handleGossipEvent(from peer.ID, ev events.Event) {
	n.logger.Debug().
		Str("peer", from.String()).
		Str("event", string(ev.Kind)).
		Uint64("height", ev.Height).
		Msg("Peer event")
}

// sealsFrom returns up to max cached canonical seals starting at
// fromHeight. It stops at the first height it has no seal for.
func (n *Node) sealsFrom(fromHeight uint64, max uint32) []*block.Seal {
	if fromHeight == 0 {
		fromHeight = 1 // The root block has no seal.
	}
	var out []*block.Seal
	for h := fromHeight; uint32(len(out)) < max; h++ {
		b, err := n.engine.GetBlock(h)
		if err != nil {
			break
		}
		s, ok := n.seals.Get(b.ID)
		if !ok {
			break
		}
		out = append(out, s)
	}
	return out
}

// triggerSync starts a background sync unless one is already running.
func (n *Node) triggerSync() {
	if n.syncer == nil || n.ctx.Err() != nil {
		return
	}
	if !n.syncing.CompareAndSwap(false, true) {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer n.syncing.Store(false)
		n.runStartupSync()
	}()
}

// ── Sync ────────────────────────────────────────────────────────────

func (n *Node) runSyncLoop() {
	if n.p2pNode == nil {
		return
	}
	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			if n.p2pNode.PeerCount() == 0 {
				continue
			}
			n.triggerSync()
		}
	}
}

// runStartupSync asks a few peers for their tip and pulls seals from the
// highest one.
func (n *Node) runStartupSync() {
	if n.p2pNode == nil || n.syncer == nil {
		return
	}
	peers := n.p2pNode.PeerList()
	if len(peers) == 0 {
		n.logger.Info().Msg("No peers for startup sync")
		return
	}

	var bestPeer peer.ID
	var bestHeight uint64
	limit := min(syncPeers, len(peers))
	for _, p := range peers[:limit] {
		reqCtx, cancel := context.WithTimeout(n.ctx, 5*time.Second)
		resp, err := n.syncer.RequestHeight(reqCtx, p.ID)
		cancel()
		if err != nil {
			continue
		}
		if resp.Height > bestHeight {
			bestHeight = resp.Height
			bestPeer = p.ID
		}
	}

	localHeight, _ := n.tip()
	if bestHeight <= localHeight {
		n.logger.Debug().Uint64("height", localHeight).Msg("Bridge is up to date")
		return
	}

	n.logger.Info().
		Uint64("local", localHeight).
		Uint64("remote", bestHeight).
		Msg("Syncing seals")
	start := time.Now()
	n.syncFrom(bestPeer, localHeight+1, bestHeight)

	height, tipID := n.tip()
	n.logger.Info().
		Uint64("height", height).
		Str("tip", tipID.Short()).
		Dur("elapsed", time.Since(start)).
		Msg("Sync complete")
}

// syncFrom requests seals from peerID starting at from until target is
// reached. A seal whose parent is unknown means the peer's canonical branch
// forked below from; sync then steps back one epoch and retries.
func (n *Node) syncFrom(peerID peer.ID, from, target uint64) {
	step := n.genesis.Protocol.EpochLength
	backoffs := 0

	for from <= target {
		reqCtx, cancel := context.WithTimeout(n.ctx, 30*time.Second)
		seals, err := n.syncer.RequestSeals(reqCtx, peerID, from, p2p.MaxSyncSeals)
		cancel()
		if err != nil {
			n.logger.Warn().Err(err).Uint64("from", from).Msg("Sync request failed")
			return
		}
		if len(seals) == 0 {
			return
		}

		forked := false
		for _, s := range seals {
			_, err := n.ingestSeal(metrics.SourceSync, s)
			switch {
			case err == nil, errors.Is(err, consensus.ErrDuplicateBlock):
				continue
			case errors.Is(err, consensus.ErrDanglingParent):
				forked = true
			default:
				n.logger.Warn().Err(err).Uint64("height", s.Height).Msg("Sync seal rejected")
				return
			}
			break
		}

		if forked {
			if backoffs >= maxSyncBackoffs || from <= 1 {
				n.logger.Warn().Uint64("from", from).Msg("Sync found no common ancestor")
				return
			}
			backoffs++
			from -= min(step, from-1)
			n.logger.Info().Uint64("from", from).Msg("Fork detected during sync, stepping back")
			continue
		}
		from = seals[len(seals)-1].Height + 1
	}
}
