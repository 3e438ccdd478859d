package p2p

import (
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/ltlmaps/leap-contracts/pkg/types"
)

const (
	handshakeTimeout  = 10 * time.Second
	maxHandshakeBytes = 4096
)

// HandshakeMessage is exchanged on connect so peers running a different
// bridge are cut off before they gossip.
type HandshakeMessage struct {
	ProtocolVersion uint32     `json:"protocol_version"`
	GenesisID       types.Hash `json:"genesis_id"`
	NetworkID       string     `json:"network_id"`
	TipHeight       uint64     `json:"tip_height"`
}

// registerHandshakeHandler answers handshakes opened by dialing peers.
func (n *Node) registerHandshakeHandler() {
	n.host.SetStreamHandler(HandshakeProtocol, func(s network.Stream) {
		defer s.Close()
		remote := s.Conn().RemotePeer()

		var theirs HandshakeMessage
		if err := readJSON(s, maxHandshakeBytes, handshakeTimeout, &theirs); err != nil {
			n.logger.Debug().Err(err).Str("peer", shortID(remote)).Msg("Handshake read failed")
			return
		}
		ours := n.buildHandshakeMessage()
		if err := writeJSON(s, &ours); err != nil {
			n.logger.Debug().Err(err).Str("peer", shortID(remote)).Msg("Handshake write failed")
			return
		}
		n.checkHandshake(remote, theirs)
	})
}

// doHandshake opens a handshake with a peer we dialed.
func (n *Node) doHandshake(id peer.ID) {
	s, err := n.host.NewStream(n.ctx, id, HandshakeProtocol)
	if err != nil {
		// Peers without the protocol are tolerated.
		n.logger.Debug().Str("peer", shortID(id)).Msg("Peer does not support handshake protocol")
		return
	}
	defer s.Close()

	ours := n.buildHandshakeMessage()
	var theirs HandshakeMessage
	if err := request(s, &ours, maxHandshakeBytes, handshakeTimeout, &theirs); err != nil {
		n.logger.Debug().Err(err).Str("peer", shortID(id)).Msg("Handshake failed")
		return
	}
	n.checkHandshake(id, theirs)
}

// checkHandshake bans and drops a peer whose handshake does not match.
func (n *Node) checkHandshake(id peer.ID, msg HandshakeMessage) {
	reason := n.validateHandshake(msg)
	if reason == "" {
		n.logger.Debug().Str("peer", shortID(id)).Uint64("tip_height", msg.TipHeight).Msg("Handshake ok")
		return
	}
	n.logger.Warn().Str("peer", shortID(id)).Str("reason", reason).Msg("Handshake rejected, banning peer")
	if n.BanManager != nil {
		n.BanManager.RecordOffense(id, PenaltyHandshakeFail, reason)
	}
	n.DisconnectPeer(id)
}

// validateHandshake returns why msg is incompatible, or "" if it is not.
func (n *Node) validateHandshake(msg HandshakeMessage) string {
	switch {
	case msg.GenesisID != n.genesisHash:
		return fmt.Sprintf("genesis mismatch: peer=%s local=%s", msg.GenesisID.Short(), n.genesisHash.Short())
	case n.config.NetworkID != "" && msg.NetworkID != n.config.NetworkID:
		return fmt.Sprintf("network mismatch: peer=%q local=%q", msg.NetworkID, n.config.NetworkID)
	case msg.ProtocolVersion < MinProtocolVersion:
		return fmt.Sprintf("protocol version too low: peer=%d min=%d", msg.ProtocolVersion, MinProtocolVersion)
	}
	return ""
}

func (n *Node) buildHandshakeMessage() HandshakeMessage {
	msg := HandshakeMessage{
		ProtocolVersion: ProtocolVersion,
		GenesisID:       n.genesisHash,
		NetworkID:       n.config.NetworkID,
	}
	if n.heightFn != nil {
		msg.TipHeight = n.heightFn()
	}
	return msg
}
