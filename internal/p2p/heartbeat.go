package p2p

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/ltlmaps/leap-contracts/pkg/crypto"
	"github.com/ltlmaps/leap-contracts/pkg/types"
)

// HeartbeatMessage is a signed operator liveness announcement.
type HeartbeatMessage struct {
	Operator  types.Address `json:"operator"`
	Height    uint64        `json:"height"`    // sender's tip height
	Timestamp int64         `json:"timestamp"` // unix seconds
	Signature []byte        `json:"signature"` // compact sig over HeartbeatDigest
}

// HeartbeatDigest returns the digest an operator signs for a heartbeat.
func HeartbeatDigest(op types.Address, height uint64, timestamp int64) types.Hash {
	buf := make([]byte, 0, 10+types.AddressSize+16)
	buf = append(buf, "leap-hb\x00"...)
	buf = append(buf, op[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, height)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(timestamp))
	return crypto.Hash(buf)
}

// NewHeartbeat builds a heartbeat signed by key.
func NewHeartbeat(key *crypto.PrivateKey, height uint64, timestamp int64) *HeartbeatMessage {
	op := key.Address()
	return &HeartbeatMessage{
		Operator:  op,
		Height:    height,
		Timestamp: timestamp,
		Signature: key.SignCompact(HeartbeatDigest(op, height, timestamp)),
	}
}

// VerifyHeartbeat reports whether msg is signed by its operator.
func VerifyHeartbeat(msg *HeartbeatMessage) bool {
	if len(msg.Signature) != crypto.SignatureSize || msg.Operator.IsZero() {
		return false
	}
	signer, err := crypto.RecoverAddress(HeartbeatDigest(msg.Operator, msg.Height, msg.Timestamp), msg.Signature)
	return err == nil && signer == msg.Operator
}

// SetHeartbeatHandler registers fn for heartbeats whose signature checks
// out.
func (n *Node) SetHeartbeatHandler(fn func(msg *HeartbeatMessage)) {
	n.heartbeatHandler = fn
}

// JoinHeartbeat subscribes to the heartbeat topic. Joining twice is a no-op.
func (n *Node) JoinHeartbeat() error {
	if n.pubsub == nil {
		return errNotStarted
	}
	if n.topicHeartbeat != nil {
		return nil
	}
	topic, sub, err := n.join(TopicHeartbeat)
	if err != nil {
		return err
	}
	n.topicHeartbeat, n.subHeartbeat = topic, sub
	go n.readLoop(sub, n.handleHeartbeatMessage)
	return nil
}

// LeaveHeartbeat drops the heartbeat subscription, if any.
func (n *Node) LeaveHeartbeat() {
	if n.subHeartbeat != nil {
		n.subHeartbeat.Cancel()
	}
	if n.topicHeartbeat != nil {
		n.topicHeartbeat.Close()
	}
	n.topicHeartbeat, n.subHeartbeat = nil, nil
}

// BroadcastHeartbeat gossips msg. JoinHeartbeat must have succeeded.
func (n *Node) BroadcastHeartbeat(msg *HeartbeatMessage) error {
	if n.topicHeartbeat == nil {
		return fmt.Errorf("heartbeat topic not joined")
	}
	return n.publishJSON(n.topicHeartbeat, msg)
}

func (n *Node) handleHeartbeatMessage(msg *pubsub.Message) {
	var hb HeartbeatMessage
	if err := json.Unmarshal(msg.Data, &hb); err != nil {
		n.BanManager.RecordOffense(msg.ReceivedFrom, PenaltyMalformed, "malformed heartbeat")
		return
	}
	if !VerifyHeartbeat(&hb) {
		n.BanManager.RecordOffense(msg.ReceivedFrom, PenaltyBadSignature, "heartbeat signature")
		return
	}
	if n.heartbeatHandler != nil {
		n.heartbeatHandler(&hb)
	}
}
