package node

import (
	"time"

	"github.com/ltlmaps/leap-contracts/internal/p2p"
)

// minHeartbeatInterval keeps a misconfigured interval from flooding the
// heartbeat topic.
const minHeartbeatInterval = 5 * time.Second

// heartbeatInterval converts a configured interval in seconds.
func heartbeatInterval(secs int) time.Duration {
	d := time.Duration(secs) * time.Second
	if d < minHeartbeatInterval {
		return minHeartbeatInterval
	}
	return d
}

// ── Heartbeat ───────────────────────────────────────────────────────

func (n *Node) runHeartbeat(interval time.Duration) {
	if n.p2pNode == nil || n.operatorKey == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	n.logger.Info().Dur("interval", interval).Msg("Heartbeat broadcast started")
	n.sendHeartbeat()

	for {
		select {
		case <-n.ctx.Done():
			n.logger.Info().Msg("Heartbeat broadcast stopped")
			return
		case <-ticker.C:
			n.sendHeartbeat()
		}
	}
}

func (n *Node) sendHeartbeat() {
	height, _ := n.tip()
	msg := p2p.NewHeartbeat(n.operatorKey, height, time.Now().Unix())
	if err := n.p2pNode.BroadcastHeartbeat(msg); err != nil {
		n.logger.Debug().Err(err).Msg("Failed to broadcast heartbeat")
	}
}

// handleHeartbeat records liveness for staked operators. Heartbeats from
// other keys are ignored.
func (n *Node) handleHeartbeat(msg *p2p.HeartbeatMessage) {
	staked, err := n.engine.IsStaked(msg.Operator)
	if err != nil || !staked {
		n.logger.Debug().Str("operator", msg.Operator.String()).Msg("Heartbeat from non-operator ignored")
		return
	}
	n.engine.Tracker().RecordHeartbeat(msg.Operator)
}
