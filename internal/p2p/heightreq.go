package p2p

import (
	"context"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/ltlmaps/leap-contracts/pkg/types"
)

const (
	heightReadTimeout = 5 * time.Second
	maxHeightBytes    = 1024
)

// HeightResponse is a peer's tip.
type HeightResponse struct {
	Height uint64     `json:"height"`
	TipID  types.Hash `json:"tip_id"`
}

// RegisterHeightHandler answers tip queries with tipFn.
func (s *Syncer) RegisterHeightHandler(tipFn func() (uint64, types.Hash)) {
	s.host.SetStreamHandler(HeightProtocol, func(stream network.Stream) {
		defer stream.Close()
		height, id := tipFn()
		writeJSON(stream, &HeightResponse{Height: height, TipID: id})
	})
}

// RequestHeight asks a peer for its tip. Opening the stream is the whole
// request.
func (s *Syncer) RequestHeight(ctx context.Context, id peer.ID) (*HeightResponse, error) {
	stream, err := s.host.NewStream(ctx, id, HeightProtocol)
	if err != nil {
		return nil, fmt.Errorf("open height stream: %w", err)
	}
	defer stream.Close()

	var resp HeightResponse
	if err := request(stream, nil, maxHeightBytes, heightReadTimeout, &resp); err != nil {
		return nil, fmt.Errorf("read height response: %w", err)
	}
	return &resp, nil
}
