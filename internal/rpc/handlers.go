package rpc

import (
	"fmt"
	"time"

	"github.com/ltlmaps/leap-contracts/internal/consensus"
	"github.com/ltlmaps/leap-contracts/internal/metrics"
	"github.com/ltlmaps/leap-contracts/pkg/block"
	"github.com/ltlmaps/leap-contracts/pkg/crypto"
	"github.com/ltlmaps/leap-contracts/pkg/types"
)

// ── Bridge queries ──────────────────────────────────────────────────────

func (s *Server) handleBridgeGetInfo(_ *Request) (interface{}, *Error) {
	info, err := s.engine.Info()
	if err != nil {
		return nil, toError(err)
	}
	supply, err := s.ledger.TotalSupply()
	if err != nil {
		return nil, toError(err)
	}
	return &InfoResult{
		ChainID:             s.genesis.ChainID,
		ChainName:           s.genesis.ChainName,
		Symbol:              s.genesis.Token.Symbol,
		TipID:               info.TipID.String(),
		TipHeight:           info.TipHeight,
		LastParentBlock:     info.LastParentBlock,
		Operators:           info.Operators,
		EpochLength:         info.Params.EpochLength,
		ParentBlockInterval: info.Params.ParentBlockInterval,
		BlockReward:         info.Params.BlockReward,
		StakePeriod:         info.Params.StakePeriod,
		Hash:                info.Hash,
		BridgeAddress:       info.Address,
		TotalSupply:         supply,
	}, nil
}

func (s *Server) handleBridgeGetHighest(_ *Request) (interface{}, *Error) {
	n, err := s.engine.GetHighest()
	if err != nil {
		return nil, toError(err)
	}
	return NewBlockResult(n), nil
}

func (s *Server) handleBridgeGetBlock(req *Request) (interface{}, *Error) {
	var params HashParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	id, rpcErr := decodeHash("hash", params.Hash)
	if rpcErr != nil {
		return nil, rpcErr
	}
	n, err := s.engine.GetBlockByID(id)
	if err != nil {
		return nil, toError(err)
	}
	return NewBlockResult(n), nil
}

func (s *Server) handleBridgeGetBlockByHeight(req *Request) (interface{}, *Error) {
	var params HeightParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	n, err := s.engine.GetBlock(params.Height)
	if err != nil {
		return nil, toError(err)
	}
	return NewBlockResult(n), nil
}

func (s *Server) handleBridgeGetBranchCount(req *Request) (interface{}, *Error) {
	var params HashParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	id, rpcErr := decodeHash("hash", params.Hash)
	if rpcErr != nil {
		return nil, rpcErr
	}
	count, err := s.engine.GetBranchCount(id)
	if err != nil {
		return nil, toError(err)
	}
	return &BranchCountResult{Count: count}, nil
}

func (s *Server) handleBridgeGetBranchAtIndex(req *Request) (interface{}, *Error) {
	var params BranchParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	id, rpcErr := decodeHash("hash", params.Hash)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if params.Index < 0 {
		return nil, &Error{Code: CodeInvalidParams, Message: "index must be non-negative"}
	}
	child, err := s.engine.GetBranchAtIndex(id, params.Index)
	if err != nil {
		return nil, toError(err)
	}
	return &BranchResult{ID: child.String()}, nil
}

func (s *Server) handleBridgeGetTip(req *Request) (interface{}, *Error) {
	var params TipParam
	if hasParams(req) {
		if err := parseParams(req, &params); err != nil {
			return nil, err
		}
	}

	var ops []types.Address
	if len(params.Operators) > 0 {
		ops = make([]types.Address, len(params.Operators))
		for i, a := range params.Operators {
			addr, rpcErr := decodeAddress("operators", a)
			if rpcErr != nil {
				return nil, rpcErr
			}
			ops[i] = addr
		}
	} else {
		records, err := s.engine.Operators()
		if err != nil {
			return nil, toError(err)
		}
		for _, r := range records {
			if r.Staked() {
				ops = append(ops, r.Address)
			}
		}
	}

	res, err := s.engine.GetTip(ops)
	if err != nil {
		return nil, toError(err)
	}
	return &TipResult{ID: res.ID.String(), Score: res.Score}, nil
}

func (s *Server) handleBridgeGetOperator(req *Request) (interface{}, *Error) {
	var params AddressParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	addr, rpcErr := decodeAddress("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	rec, err := s.engine.Operator(addr)
	if err != nil {
		return nil, toError(err)
	}
	tracker := s.engine.Tracker()
	return newOperatorResult(rec, tracker.Stats(addr), tracker.IsActive(addr, s.activityWindow())), nil
}

func (s *Server) handleBridgeGetOperators(_ *Request) (interface{}, *Error) {
	records, err := s.engine.Operators()
	if err != nil {
		return nil, toError(err)
	}
	tracker := s.engine.Tracker()
	window := s.activityWindow()
	out := make([]*OperatorResult, len(records))
	for i, r := range records {
		out[i] = newOperatorResult(r, tracker.Stats(r.Address), tracker.IsActive(r.Address, window))
	}
	return &OperatorsResult{Count: len(out), Operators: out}, nil
}

func (s *Server) handleBridgeGetArchived(req *Request) (interface{}, *Error) {
	var params HeightParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	ids, err := s.engine.Archived(params.Height)
	if err != nil {
		return nil, toError(err)
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return &ArchivedResult{Height: params.Height, IDs: out}, nil
}

func (s *Server) handleBridgeGetNonce(req *Request) (interface{}, *Error) {
	var params AddressParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	addr, rpcErr := decodeAddress("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	n, err := s.nonces.Last(addr)
	if err != nil {
		return nil, toError(err)
	}
	return &NonceResult{Address: addr.String(), Nonce: n}, nil
}

// activityWindow is how recently an operator must have produced a block to
// count as active: one epoch of parent blocks.
func (s *Server) activityWindow() time.Duration {
	blocks := s.genesis.Protocol.EpochLength * max(s.genesis.Protocol.ParentBlockInterval, 1)
	return time.Duration(blocks) * s.genesis.ParentInterval()
}

// ── Bridge transitions ──────────────────────────────────────────────────

func (s *Server) handleBridgeSubmitBlock(req *Request) (interface{}, *Error) {
	var params SubmitBlockParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	prev, rpcErr := decodeHash("prev", params.Prev)
	if rpcErr != nil {
		return nil, rpcErr
	}
	root, rpcErr := decodeHash("root", params.Root)
	if rpcErr != nil {
		return nil, rpcErr
	}
	sig, decErr := decodeHex(params.Signature)
	if decErr != nil || len(sig) != crypto.SignatureSize {
		return nil, &Error{Code: CodeInvalidParams, Message: "invalid signature: must be 65-byte hex"}
	}
	orphans := make([]types.Hash, len(params.Orphans))
	for i, o := range params.Orphans {
		id, rpcErr := decodeHash("orphans", o)
		if rpcErr != nil {
			return nil, rpcErr
		}
		orphans[i] = id
	}

	var (
		res *consensus.SubmitResult
		err error
	)
	if len(orphans) > 0 {
		res, err = s.engine.SubmitBlockAndPrune(prev, root, sig, orphans)
	} else {
		res, err = s.engine.SubmitBlock(prev, root, sig)
	}
	s.metrics.ObserveSeal(metrics.SourceRPC, err)
	if err != nil {
		return nil, toError(err)
	}

	seal := &block.Seal{Prev: prev, Height: res.Node.Height, Root: root, Signature: sig}
	if s.onSeal != nil {
		s.onSeal(res.Node.ID, seal)
	}
	if s.p2pNode != nil {
		if err := s.p2pNode.BroadcastSeal(seal); err != nil {
			s.logger.Warn().Err(err).Str("id", res.Node.ID.String()).Msg("Seal broadcast failed")
		}
	}

	return &SubmitResult{
		ID:       res.Node.ID.String(),
		Height:   res.Node.Height,
		Advanced: res.Advanced,
		Pruned:   res.Pruned,
		Archived: res.Archived,
		Deleted:  res.Deleted,
	}, nil
}

func (s *Server) handleBridgeJoin(req *Request) (interface{}, *Error) {
	var params JoinParam
	from, rpcErr := s.parseSigned(req, &params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	rec, err := s.engine.Join(from, params.Amount)
	if err != nil {
		return nil, toError(err)
	}
	tracker := s.engine.Tracker()
	return newOperatorResult(rec, tracker.Stats(from), tracker.IsActive(from, s.activityWindow())), nil
}

func (s *Server) handleBridgeRequestLeave(req *Request) (interface{}, *Error) {
	var params LeaveParam
	from, rpcErr := s.parseSigned(req, &params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	rec, err := s.engine.RequestLeave(from)
	if err != nil {
		return nil, toError(err)
	}
	tracker := s.engine.Tracker()
	return newOperatorResult(rec, tracker.Stats(from), tracker.IsActive(from, s.activityWindow())), nil
}

func (s *Server) handleBridgePayout(req *Request) (interface{}, *Error) {
	var params PayoutParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	op, rpcErr := decodeAddress("operator", params.Operator)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, err := s.engine.Payout(op)
	if err != nil {
		return nil, toError(err)
	}
	return &PayoutResult{Operator: op.String(), Amount: amount}, nil
}

func (s *Server) handleBridgeClaimReward(req *Request) (interface{}, *Error) {
	var params ClaimParam
	from, rpcErr := s.parseSigned(req, &params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	id, rpcErr := decodeHash("block_id", params.BlockID)
	if rpcErr != nil {
		return nil, rpcErr
	}
	coinbase, rpcErr := decodeHashes("coinbase", params.Coinbase)
	if rpcErr != nil {
		return nil, rpcErr
	}
	proof, rpcErr := decodeHashes("proof", params.Proof)
	if rpcErr != nil {
		return nil, rpcErr
	}
	sig, decErr := decodeHex(params.BlockSig)
	if decErr != nil || len(sig) != crypto.SignatureSize {
		return nil, &Error{Code: CodeInvalidParams, Message: "invalid block_signature: must be 65-byte hex"}
	}

	res, err := s.engine.ClaimReward(from, &consensus.Claim{
		BlockID:   id,
		Coinbase:  coinbase,
		Proof:     proof,
		Signature: sig,
	})
	if err != nil {
		return nil, toError(err)
	}
	return &ClaimResult{Epoch: res.Epoch, Blocks: res.Blocks, Amount: res.Amount}, nil
}

// ── Token endpoints ─────────────────────────────────────────────────────

func (s *Server) handleTokenGetInfo(_ *Request) (interface{}, *Error) {
	meta, err := s.ledger.Metadata()
	if err != nil {
		return nil, toError(err)
	}
	supply, err := s.ledger.TotalSupply()
	if err != nil {
		return nil, toError(err)
	}
	return &TokenInfoResult{
		Name:        meta.Name,
		Symbol:      meta.Symbol,
		Decimals:    meta.Decimals,
		TotalSupply: supply,
	}, nil
}

func (s *Server) handleTokenGetBalance(req *Request) (interface{}, *Error) {
	var params AddressParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	addr, rpcErr := decodeAddress("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	bal, err := s.ledger.BalanceOf(addr)
	if err != nil {
		return nil, toError(err)
	}
	stake, err := s.engine.Stake(addr)
	if err != nil {
		return nil, toError(err)
	}
	return &BalanceResult{Address: addr.String(), Balance: bal, Stake: stake}, nil
}

func (s *Server) handleTokenGetAllowance(req *Request) (interface{}, *Error) {
	var params AllowanceParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	owner, rpcErr := decodeAddress("owner", params.Owner)
	if rpcErr != nil {
		return nil, rpcErr
	}
	spender := s.engine.Address()
	if params.Spender != "" {
		if spender, rpcErr = decodeAddress("spender", params.Spender); rpcErr != nil {
			return nil, rpcErr
		}
	}
	amount, err := s.ledger.Allowance(owner, spender)
	if err != nil {
		return nil, toError(err)
	}
	return &AllowanceResult{Owner: owner.String(), Spender: spender.String(), Allowance: amount}, nil
}

func (s *Server) handleTokenApprove(req *Request) (interface{}, *Error) {
	var params ApproveParam
	from, rpcErr := s.parseSigned(req, &params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	spender := s.engine.Address()
	if params.Spender != "" {
		if spender, rpcErr = decodeAddress("spender", params.Spender); rpcErr != nil {
			return nil, rpcErr
		}
	}
	if err := s.ledger.Approve(from, spender, params.Amount); err != nil {
		return nil, toError(err)
	}
	return &AllowanceResult{Owner: from.String(), Spender: spender.String(), Allowance: params.Amount}, nil
}

func (s *Server) handleTokenTransfer(req *Request) (interface{}, *Error) {
	var params TransferParam
	from, rpcErr := s.parseSigned(req, &params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	to, rpcErr := decodeAddress("to", params.To)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.ledger.Transfer(from, to, params.Amount); err != nil {
		return nil, toError(err)
	}
	return &OKResult{OK: true}, nil
}

// ── Network endpoints ───────────────────────────────────────────────────

func (s *Server) handleNetGetNodeInfo(_ *Request) (interface{}, *Error) {
	if s.p2pNode == nil {
		return &NodeInfoResult{ID: "", Addrs: []string{}}, nil
	}
	return &NodeInfoResult{
		ID:    s.p2pNode.ID().String(),
		Addrs: s.p2pNode.Addrs(),
		Peers: s.p2pNode.PeerCount(),
	}, nil
}

func (s *Server) handleNetGetPeerInfo(_ *Request) (interface{}, *Error) {
	if s.p2pNode == nil {
		return &PeerInfoResult{Count: 0, Peers: []PeerInfo{}}, nil
	}

	peers := s.p2pNode.PeerList()
	infos := make([]PeerInfo, len(peers))
	for i, p := range peers {
		infos[i] = PeerInfo{
			ID:          p.ID.String(),
			ConnectedAt: p.ConnectedAt.UTC().Format("2006-01-02T15:04:05Z"),
			Source:      p.Source,
		}
	}
	return &PeerInfoResult{Count: len(infos), Peers: infos}, nil
}

// ── Decoding helpers ────────────────────────────────────────────────────

func decodeHash(field, s string) (types.Hash, *Error) {
	if s == "" {
		return types.Hash{}, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("%s is required", field)}
	}
	h, err := types.HexToHash(s)
	if err != nil {
		return types.Hash{}, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid %s: must be 32-byte hex", field)}
	}
	return h, nil
}

func decodeHashes(field string, in []string) ([]types.Hash, *Error) {
	out := make([]types.Hash, len(in))
	for i, s := range in {
		h, rpcErr := decodeHash(field, s)
		if rpcErr != nil {
			return nil, rpcErr
		}
		out[i] = h
	}
	return out, nil
}

func decodeAddress(field, s string) (types.Address, *Error) {
	if s == "" {
		return types.Address{}, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("%s is required", field)}
	}
	addr, err := types.ParseAddress(s)
	if err != nil {
		return types.Address{}, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid %s: %v", field, err)}
	}
	return addr, nil
}
