package p2p

import (
	"encoding/json"
	"errors"
	"fmt"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/ltlmaps/leap-contracts/internal/events"
	"github.com/ltlmaps/leap-contracts/pkg/block"
)

var errNotStarted = errors.New("p2p node not started")

func (n *Node) publishJSON(topic *pubsub.Topic, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %T: %w", v, err)
	}
	return topic.Publish(n.ctx, data)
}

// BroadcastSeal gossips a block seal.
func (n *Node) BroadcastSeal(s *block.Seal) error {
	if n.topicSeal == nil {
		return errNotStarted
	}
	return n.publishJSON(n.topicSeal, s)
}

// Publish gossips a bridge event. It makes Node an events.Sink; failures
// are logged and dropped.
func (n *Node) Publish(ev events.Event) {
	if n.topicEvent == nil {
		return
	}
	if err := n.publishJSON(n.topicEvent, ev); err != nil {
		n.logger.Debug().Err(err).Str("kind", string(ev.Kind)).Msg("Event publish failed")
	}
}
