package p2p

import (
	"github.com/libp2p/go-libp2p/core/protocol"
)

// GossipSub topic names.
const (
	TopicSeals     = "/leap/seal/1.0.0"
	TopicEvents    = "/leap/event/1.0.0"
	TopicHeartbeat = "/leap/heartbeat/1.0.0"
)

// Stream protocol IDs.
const (
	// HandshakeProtocol is the stream protocol ID for peer compatibility checking.
	HandshakeProtocol = protocol.ID("/leap/handshake/1.0.0")

	// SyncProtocol serves canonical seals by height.
	SyncProtocol = protocol.ID("/leap/sync/1.0.0")

	// HeightProtocol reports a peer's tip.
	HeightProtocol = protocol.ID("/leap/height/1.0.0")

	// ProtocolVersion is the current protocol version advertised during handshake.
	ProtocolVersion uint32 = 1

	// MinProtocolVersion is the minimum protocol version we accept from peers.
	MinProtocolVersion uint32 = 1
)

// maxMessageSize caps gossip payloads. Seals, events and heartbeats are
// all well under a kilobyte.
const maxMessageSize = 64 * 1024
