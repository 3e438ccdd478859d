package p2p

import (
	"context"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/ltlmaps/leap-contracts/pkg/block"
)

const (
	syncReadTimeout      = 30 * time.Second
	maxSyncRequestBytes  = 1024
	maxSyncResponseBytes = 4 * 1024 * 1024

	// MaxSyncSeals caps the seals served per request.
	MaxSyncSeals = 500
)

// SyncRequest asks for canonical seals from a height upward.
type SyncRequest struct {
	FromHeight uint64 `json:"from_height"`
	MaxSeals   uint32 `json:"max_seals"`
}

// SyncResponse carries seals in height order.
type SyncResponse struct {
	Seals []*block.Seal `json:"seals"`
}

// SealProvider returns up to max canonical seals starting at fromHeight.
type SealProvider func(fromHeight uint64, max uint32) []*block.Seal

// Syncer serves and fetches seals a node missed while offline.
type Syncer struct {
	node *Node
	host host.Host
}

// NewSyncer attaches a syncer to a started node.
func NewSyncer(node *Node) *Syncer {
	return &Syncer{node: node, host: node.host}
}

// RegisterHandler serves sync requests from provider.
func (s *Syncer) RegisterHandler(provider SealProvider) {
	s.host.SetStreamHandler(SyncProtocol, func(stream network.Stream) {
		defer stream.Close()

		var req SyncRequest
		if err := readJSON(stream, maxSyncRequestBytes, syncReadTimeout, &req); err != nil {
			return
		}
		if req.MaxSeals == 0 || req.MaxSeals > MaxSyncSeals {
			req.MaxSeals = MaxSyncSeals
		}
		writeJSON(stream, &SyncResponse{Seals: provider(req.FromHeight, req.MaxSeals)})
	})
}

// RequestSeals fetches canonical seals from a peer. A reply carrying a
// malformed seal is rejected as a whole and costs the peer score.
func (s *Syncer) RequestSeals(ctx context.Context, id peer.ID, fromHeight uint64, maxSeals uint32) ([]*block.Seal, error) {
	stream, err := s.host.NewStream(ctx, id, SyncProtocol)
	if err != nil {
		return nil, fmt.Errorf("open sync stream: %w", err)
	}
	defer stream.Close()

	var resp SyncResponse
	req := SyncRequest{FromHeight: fromHeight, MaxSeals: maxSeals}
	if err := request(stream, &req, maxSyncResponseBytes, syncReadTimeout, &resp); err != nil {
		return nil, fmt.Errorf("sync request: %w", err)
	}

	for i, seal := range resp.Seals {
		if seal == nil {
			return nil, fmt.Errorf("seal %d: missing", i)
		}
		if err := seal.Validate(); err != nil {
			if s.node != nil && s.node.BanManager != nil {
				s.node.BanManager.RecordOffense(id, PenaltyMalformed, "malformed sync seal")
			}
			return nil, fmt.Errorf("seal %d: %w", i, err)
		}
	}
	return resp.Seals, nil
}
