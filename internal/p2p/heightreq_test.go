package p2p

import (
	"context"
	"testing"
	"time"

	"github.com/ltlmaps/leap-contracts/pkg/types"
)

func TestHeightRequest_RoundTrip(t *testing.T) {
	nodeA := startTestNode(t)
	nodeB := startTestNode(t)
	connectNodes(t, nodeA, nodeB)

	tip := types.Hash{0xAB, 0xCD}
	NewSyncer(nodeA).RegisterHeightHandler(func() (uint64, types.Hash) { return 42, tip })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := NewSyncer(nodeB).RequestHeight(ctx, nodeA.host.ID())
	if err != nil {
		t.Fatalf("RequestHeight: %v", err)
	}
	if resp.Height != 42 || resp.TipID != tip {
		t.Errorf("RequestHeight = %d %s, want 42 %s", resp.Height, resp.TipID, tip)
	}
}

func TestHeightRequest_Unsupported(t *testing.T) {
	nodeA := startTestNode(t)
	nodeB := startTestNode(t)
	connectNodes(t, nodeA, nodeB)

	// nodeA never registered the height handler.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := NewSyncer(nodeB).RequestHeight(ctx, nodeA.host.ID()); err == nil {
		t.Fatal("RequestHeight succeeded against a peer without the protocol")
	}
}

func TestHeightRequest_NoPeer(t *testing.T) {
	n := startTestNode(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := NewSyncer(n).RequestHeight(ctx, generateTestPeerID(t)); err == nil {
		t.Fatal("RequestHeight succeeded against an unknown peer")
	}
}
