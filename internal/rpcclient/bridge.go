package rpcclient

import (
	"encoding/hex"
	"fmt"

	"github.com/ltlmaps/leap-contracts/internal/rpc"
	"github.com/ltlmaps/leap-contracts/pkg/block"
	"github.com/ltlmaps/leap-contracts/pkg/crypto"
	"github.com/ltlmaps/leap-contracts/pkg/types"
)

// Info returns the node's bridge summary.
func (c *Client) Info() (*rpc.InfoResult, error) {
	var out rpc.InfoResult
	if err := c.Call("bridge_getInfo", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Highest returns the current tip block.
func (c *Client) Highest() (*rpc.BlockResult, error) {
	var out rpc.BlockResult
	if err := c.Call("bridge_getHighest", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Block returns the block with the given id.
func (c *Client) Block(id types.Hash) (*rpc.BlockResult, error) {
	var out rpc.BlockResult
	if err := c.Call("bridge_getBlock", rpc.HashParam{Hash: id.String()}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BlockByHeight returns the canonical block at height.
func (c *Client) BlockByHeight(height uint64) (*rpc.BlockResult, error) {
	var out rpc.BlockResult
	if err := c.Call("bridge_getBlockByHeight", rpc.HeightParam{Height: height}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BranchCount returns the number of children of id.
func (c *Client) BranchCount(id types.Hash) (int, error) {
	var out rpc.BranchCountResult
	if err := c.Call("bridge_getBranchCount", rpc.HashParam{Hash: id.String()}, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// BranchAt returns the child of id at index.
func (c *Client) BranchAt(id types.Hash, index int) (types.Hash, error) {
	var out rpc.BranchResult
	if err := c.Call("bridge_getBranchAtIndex", rpc.BranchParam{Hash: id.String(), Index: index}, &out); err != nil {
		return types.Hash{}, err
	}
	return types.HexToHash(out.ID)
}

// Tip runs fork choice over ops, or over every staked operator if ops is
// empty.
func (c *Client) Tip(ops ...types.Address) (*rpc.TipResult, error) {
	var params interface{}
	if len(ops) > 0 {
		p := rpc.TipParam{Operators: make([]string, len(ops))}
		for i, op := range ops {
			p.Operators[i] = op.String()
		}
		params = p
	}
	var out rpc.TipResult
	if err := c.Call("bridge_getTip", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Operator returns addr's registry record.
func (c *Client) Operator(addr types.Address) (*rpc.OperatorResult, error) {
	var out rpc.OperatorResult
	if err := c.Call("bridge_getOperator", rpc.AddressParam{Address: addr.String()}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Operators returns every registry record.
func (c *Client) Operators() (*rpc.OperatorsResult, error) {
	var out rpc.OperatorsResult
	if err := c.Call("bridge_getOperators", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Archived returns the block ids archived at height.
func (c *Client) Archived(height uint64) (*rpc.ArchivedResult, error) {
	var out rpc.ArchivedResult
	if err := c.Call("bridge_getArchived", rpc.HeightParam{Height: height}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Nonce returns the last signed-call nonce the node accepted from addr.
func (c *Client) Nonce(addr types.Address) (uint64, error) {
	var out rpc.NonceResult
	if err := c.Call("bridge_getNonce", rpc.AddressParam{Address: addr.String()}, &out); err != nil {
		return 0, err
	}
	return out.Nonce, nil
}

// SubmitBlock submits a sealed block. Orphans, if any, are cleaned up
// after it is accepted.
func (c *Client) SubmitBlock(seal *block.Seal, orphans ...types.Hash) (*rpc.SubmitResult, error) {
	p := rpc.SubmitBlockParam{
		Prev:      seal.Prev.String(),
		Root:      seal.Root.String(),
		Signature: hex.EncodeToString(seal.Signature),
	}
	for _, o := range orphans {
		p.Orphans = append(p.Orphans, o.String())
	}
	var out rpc.SubmitResult
	if err := c.Call("bridge_submitBlock", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Payout pays out op's stake once its exit delay has passed.
func (c *Client) Payout(op types.Address) (*rpc.PayoutResult, error) {
	var out rpc.PayoutResult
	if err := c.Call("bridge_payout", rpc.PayoutParam{Operator: op.String()}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Join stakes amount for key. The bridge must hold a sufficient token
// allowance; see Approve.
func (c *Client) Join(key *crypto.PrivateKey, amount uint64) (*rpc.OperatorResult, error) {
	var out rpc.OperatorResult
	if err := c.callSigned(key, "bridge_join", &rpc.JoinParam{Amount: amount}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RequestLeave starts key's exit from the committee.
func (c *Client) RequestLeave(key *crypto.PrivateKey) (*rpc.OperatorResult, error) {
	var out rpc.OperatorResult
	if err := c.callSigned(key, "bridge_requestLeave", &rpc.LeaveParam{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ClaimReward claims the epoch reward proven by the block with id and the
// body committed in its root. sig is the block's seal signature.
func (c *Client) ClaimReward(key *crypto.PrivateKey, h crypto.Hasher, id types.Hash, body *block.Body, sig []byte) (*rpc.ClaimResult, error) {
	p := &rpc.ClaimParam{
		BlockID:  id.String(),
		Coinbase: make([]string, len(body.Coinbase)),
		BlockSig: hex.EncodeToString(sig),
	}
	for i, cb := range body.Coinbase {
		p.Coinbase[i] = cb.String()
	}
	for _, step := range body.CoinbaseProof(h) {
		p.Proof = append(p.Proof, step.String())
	}
	var out rpc.ClaimResult
	if err := c.callSigned(key, "bridge_claimReward", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TokenInfo returns the ledger token description.
func (c *Client) TokenInfo() (*rpc.TokenInfoResult, error) {
	var out rpc.TokenInfoResult
	if err := c.Call("token_getInfo", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Balance returns addr's token balance and stake.
func (c *Client) Balance(addr types.Address) (*rpc.BalanceResult, error) {
	var out rpc.BalanceResult
	if err := c.Call("token_getBalance", rpc.AddressParam{Address: addr.String()}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Allowance returns how much spender may move for owner. A zero spender
// means the bridge account.
func (c *Client) Allowance(owner, spender types.Address) (uint64, error) {
	p := rpc.AllowanceParam{Owner: owner.String()}
	if !spender.IsZero() {
		p.Spender = spender.String()
	}
	var out rpc.AllowanceResult
	if err := c.Call("token_getAllowance", p, &out); err != nil {
		return 0, err
	}
	return out.Allowance, nil
}

// Approve lets spender move up to amount of key's tokens. A zero spender
// means the bridge account.
func (c *Client) Approve(key *crypto.PrivateKey, spender types.Address, amount uint64) (*rpc.AllowanceResult, error) {
	p := &rpc.ApproveParam{Amount: amount}
	if !spender.IsZero() {
		p.Spender = spender.String()
	}
	var out rpc.AllowanceResult
	if err := c.callSigned(key, "token_approve", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Transfer sends amount of key's tokens to to.
func (c *Client) Transfer(key *crypto.PrivateKey, to types.Address, amount uint64) error {
	return c.callSigned(key, "token_transfer", &rpc.TransferParam{To: to.String(), Amount: amount}, nil)
}

// NodeInfo returns the node's p2p identity.
func (c *Client) NodeInfo() (*rpc.NodeInfoResult, error) {
	var out rpc.NodeInfoResult
	if err := c.Call("net_getNodeInfo", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Peers returns the node's connected peers.
func (c *Client) Peers() (*rpc.PeerInfoResult, error) {
	var out rpc.PeerInfoResult
	if err := c.Call("net_getPeerInfo", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// callSigned signs params for key with its next nonce and calls method.
func (c *Client) callSigned(key *crypto.PrivateKey, method string, params rpc.Signed, result interface{}) error {
	chainID, err := c.chain()
	if err != nil {
		return err
	}
	last, err := c.Nonce(key.Address())
	if err != nil {
		return fmt.Errorf("nonce: %w", err)
	}
	if err := rpc.SignCall(key, chainID, method, last+1, params); err != nil {
		return err
	}
	return c.Call(method, params, result)
}

func (c *Client) chain() (string, error) {
	c.chainMu.Lock()
	defer c.chainMu.Unlock()
	if c.chainID != "" {
		return c.chainID, nil
	}
	info, err := c.Info()
	if err != nil {
		return "", fmt.Errorf("chain id: %w", err)
	}
	c.chainID = info.ChainID
	return c.chainID, nil
}
