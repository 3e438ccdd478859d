package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ltlmaps/leap-contracts/internal/rpc"
	"github.com/ltlmaps/leap-contracts/internal/rpcclient"
	"github.com/ltlmaps/leap-contracts/pkg/block"
	"github.com/ltlmaps/leap-contracts/pkg/crypto"
	"github.com/ltlmaps/leap-contracts/pkg/types"
)

// ── status ──────────────────────────────────────────────────────────────

func cmdStatus(client *rpcclient.Client) {
	info, err := client.Info()
	if err != nil {
		fatal("bridge_getInfo: %v", err)
	}

	fmt.Printf("Chain:        %s (%s)\n", info.ChainID, info.ChainName)
	fmt.Printf("Tip:          %s\n", info.TipID)
	fmt.Printf("Height:       %d\n", info.TipHeight)
	fmt.Printf("Parent block: %d\n", info.LastParentBlock)
	fmt.Printf("Operators:    %d\n", info.Operators)
	fmt.Printf("Epoch length: %d\n", info.EpochLength)
	fmt.Printf("Block reward: %s %s\n", formatAmount(info.BlockReward), info.Symbol)
	fmt.Printf("Hash:         %s\n", info.Hash)
	fmt.Printf("Bridge:       %s\n", info.BridgeAddress)
	fmt.Printf("Supply:       %s %s\n", formatAmount(info.TotalSupply), info.Symbol)

	if peers, err := client.Peers(); err == nil {
		fmt.Printf("Peers:        %d\n", peers.Count)
	}
}

// ── tree queries ────────────────────────────────────────────────────────

func cmdTip(client *rpcclient.Client, args []string) {
	ops := make([]types.Address, 0, len(args))
	for _, a := range args {
		addr, err := types.ParseAddress(a)
		if err != nil {
			fatal("invalid address %q: %v", a, err)
		}
		ops = append(ops, addr)
	}
	tip, err := client.Tip(ops...)
	if err != nil {
		fatal("bridge_getTip: %v", err)
	}
	fmt.Printf("Tip:   %s\n", tip.ID)
	fmt.Printf("Score: %d\n", tip.Score)
}

func cmdBlock(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: leap-cli block <id|height>")
	}

	var b *rpc.BlockResult
	var err error
	if height, perr := strconv.ParseUint(args[0], 10, 64); perr == nil {
		b, err = client.BlockByHeight(height)
	} else {
		b, err = client.Block(mustHash(args[0]))
	}
	if err != nil {
		fatal("get block: %v", err)
	}

	fmt.Printf("ID:        %s\n", b.ID)
	fmt.Printf("Height:    %d\n", b.Height)
	fmt.Printf("Parent:    %s\n", b.Parent)
	fmt.Printf("Operator:  %s\n", b.Operator)
	fmt.Printf("Root:      %s\n", b.Root)
	fmt.Printf("Branch:    %d\n", b.ParentIndex)
	fmt.Printf("Children:  %d\n", len(b.Children))
	for i, c := range b.Children {
		fmt.Printf("  [%d] %s\n", i, c)
	}
}

func cmdBranches(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: leap-cli branches <id>")
	}
	id := mustHash(args[0])
	count, err := client.BranchCount(id)
	if err != nil {
		fatal("bridge_getBranchCount: %v", err)
	}
	fmt.Printf("Branches: %d\n", count)
	for i := 0; i < count; i++ {
		child, err := client.BranchAt(id, i)
		if err != nil {
			fatal("bridge_getBranchAtIndex: %v", err)
		}
		fmt.Printf("  [%d] %s\n", i, child)
	}
}

func cmdArchived(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: leap-cli archived <height>")
	}
	height, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		fatal("invalid height: %v", err)
	}
	res, err := client.Archived(height)
	if err != nil {
		fatal("bridge_getArchived: %v", err)
	}
	if len(res.IDs) == 0 {
		fmt.Printf("Nothing archived at height %d.\n", height)
		return
	}
	for _, id := range res.IDs {
		fmt.Println(id)
	}
}

// ── operators ───────────────────────────────────────────────────────────

func cmdOperators(client *rpcclient.Client) {
	res, err := client.Operators()
	if err != nil {
		fatal("bridge_getOperators: %v", err)
	}
	if res.Count == 0 {
		fmt.Println("No operators registered.")
		return
	}
	fmt.Printf("Operators (%d):\n", res.Count)
	for _, op := range res.Operators {
		state := "staked"
		if op.Leaving {
			state = fmt.Sprintf("leaving at %d", op.LeaveHeight)
		}
		fmt.Printf("  %s  stake=%s  %s  blocks=%d\n", op.Address, formatAmount(op.Stake), state, op.Blocks)
	}
}

func cmdOperator(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: leap-cli operator <addr>")
	}
	addr, err := types.ParseAddress(args[0])
	if err != nil {
		fatal("invalid address: %v", err)
	}
	op, err := client.Operator(addr)
	if err != nil {
		fatal("bridge_getOperator: %v", err)
	}
	printOperator(op)
}

func printOperator(op *rpc.OperatorResult) {
	fmt.Printf("Address:       %s\n", op.Address)
	fmt.Printf("Stake:         %s\n", formatAmount(op.Stake))
	fmt.Printf("Joined at:     %d\n", op.JoinedAt)
	fmt.Printf("Claimed until: %d\n", op.ClaimedUntil)
	fmt.Printf("Leaving:       %v\n", op.Leaving)
	if op.Leaving {
		fmt.Printf("Leave height:  %d\n", op.LeaveHeight)
	}
	fmt.Printf("Blocks:        %d\n", op.Blocks)
	fmt.Printf("Active:        %v\n", op.Active)
}

// ── transitions ─────────────────────────────────────────────────────────

// hasherFor returns the block hash function the node runs with.
func hasherFor(client *rpcclient.Client) crypto.Hasher {
	info, err := client.Info()
	if err != nil {
		fatal("bridge_getInfo: %v", err)
	}
	h, err := crypto.HasherByName(info.Hash)
	if err != nil {
		fatal("%v", err)
	}
	return h
}

func readBody(path string) *block.Body {
	data, err := os.ReadFile(path)
	if err != nil {
		fatal("read body: %v", err)
	}
	var body block.Body
	if err := json.Unmarshal(data, &body); err != nil {
		fatal("decode body: %v", err)
	}
	return &body
}

func cmdSubmit(client *rpcclient.Client, args []string, keysDir string) {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	keyName := fs.String("key", "", "Operator key name")
	bodyPath := fs.String("body", "", "Block body JSON file")
	prevStr := fs.String("prev", "", "Parent block id (default: current tip)")
	orphansStr := fs.String("orphans", "", "Orphaned block ids to clean up (comma-separated)")
	fs.Parse(args)

	if *keyName == "" || *bodyPath == "" {
		fatal("Usage: leap-cli submit --key <name> --body <file.json> [--prev <id>] [--orphans <id,...>]")
	}
	orphans, err := parseHashList(*orphansStr)
	if err != nil {
		fatal("%v", err)
	}

	var parent *rpc.BlockResult
	if *prevStr == "" {
		parent, err = client.Highest()
	} else {
		parent, err = client.Block(mustHash(*prevStr))
	}
	if err != nil {
		fatal("parent block: %v", err)
	}
	prev := mustHash(parent.ID)
	height := parent.Height + 1

	key := loadKey(keysDir, *keyName)
	defer key.Zero()

	body := readBody(*bodyPath)
	if body.Height == 0 {
		body.Height = height
	} else if body.Height != height {
		fatal("body height %d does not extend parent at height %d", body.Height, parent.Height)
	}
	if body.Operator.IsZero() {
		body.Operator = key.Address()
	} else if body.Operator != key.Address() {
		fatal("body operator %s does not match key %s", body.Operator, key.Address())
	}

	h := hasherFor(client)
	seal := block.Sign(h, key, prev, height, body.Root(h))
	res, err := client.SubmitBlock(seal, orphans...)
	if err != nil {
		fatal("bridge_submitBlock: %v", err)
	}

	fmt.Printf("Block submitted!\n")
	fmt.Printf("  ID:        %s\n", res.ID)
	fmt.Printf("  Height:    %d\n", res.Height)
	fmt.Printf("  Signature: %s\n", hex.EncodeToString(seal.Signature))
	fmt.Printf("  Advanced:  %v\n", res.Advanced)
	if res.Pruned+res.Archived+res.Deleted > 0 {
		fmt.Printf("  Pruned %d, archived %d, deleted %d\n", res.Pruned, res.Archived, res.Deleted)
	}
}

func cmdJoin(client *rpcclient.Client, args []string, keysDir string) {
	fs := flag.NewFlagSet("join", flag.ExitOnError)
	keyName := fs.String("key", "", "Operator key name")
	amountStr := fs.String("amount", "", "Stake amount (e.g. 1000)")
	fs.Parse(args)

	if *keyName == "" || *amountStr == "" {
		fatal("Usage: leap-cli join --key <name> --amount <amt>")
	}
	amount, err := parseAmount(*amountStr)
	if err != nil {
		fatal("invalid amount: %v", err)
	}

	key := loadKey(keysDir, *keyName)
	defer key.Zero()

	if _, err := client.Approve(key, types.Address{}, amount); err != nil {
		fatal("token_approve: %v", err)
	}
	op, err := client.Join(key, amount)
	if err != nil {
		fatal("bridge_join: %v", err)
	}
	fmt.Printf("Staked %s\n", formatAmount(amount))
	printOperator(op)
}

func cmdLeave(client *rpcclient.Client, args []string, keysDir string) {
	fs := flag.NewFlagSet("leave", flag.ExitOnError)
	keyName := fs.String("key", "", "Operator key name")
	fs.Parse(args)

	if *keyName == "" {
		fatal("Usage: leap-cli leave --key <name>")
	}
	key := loadKey(keysDir, *keyName)
	defer key.Zero()

	op, err := client.RequestLeave(key)
	if err != nil {
		fatal("bridge_requestLeave: %v", err)
	}
	fmt.Printf("Leave requested. Stake can be paid out after height %d.\n", op.LeaveHeight)
}

func cmdPayout(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: leap-cli payout <addr>")
	}
	addr, err := types.ParseAddress(args[0])
	if err != nil {
		fatal("invalid address: %v", err)
	}
	res, err := client.Payout(addr)
	if err != nil {
		fatal("bridge_payout: %v", err)
	}
	fmt.Printf("Paid out %s to %s\n", formatAmount(res.Amount), res.Operator)
}

func cmdClaim(client *rpcclient.Client, args []string, keysDir string) {
	fs := flag.NewFlagSet("claim", flag.ExitOnError)
	keyName := fs.String("key", "", "Operator key name")
	blockStr := fs.String("block", "", "Block id carrying the coinbase")
	bodyPath := fs.String("body", "", "Block body JSON file")
	sigStr := fs.String("sig", "", "Block seal signature (hex)")
	fs.Parse(args)

	if *keyName == "" || *blockStr == "" || *bodyPath == "" || *sigStr == "" {
		fatal("Usage: leap-cli claim --key <name> --block <id> --body <file.json> --sig <hex>")
	}
	id := mustHash(*blockStr)
	sig, err := hex.DecodeString(strings.TrimPrefix(*sigStr, "0x"))
	if err != nil {
		fatal("invalid signature: %v", err)
	}
	body := readBody(*bodyPath)

	key := loadKey(keysDir, *keyName)
	defer key.Zero()

	res, err := client.ClaimReward(key, hasherFor(client), id, body, sig)
	if err != nil {
		fatal("bridge_claimReward: %v", err)
	}
	fmt.Printf("Claimed epoch %d: %d blocks, %s\n", res.Epoch, res.Blocks, formatAmount(res.Amount))
}

// ── peers ───────────────────────────────────────────────────────────────

func cmdPeers(client *rpcclient.Client) {
	res, err := client.Peers()
	if err != nil {
		fatal("net_getPeerInfo: %v", err)
	}
	fmt.Printf("Peers: %d\n", res.Count)
	for _, p := range res.Peers {
		if p.Source != "" {
			fmt.Printf("  %s  since %s  (%s)\n", p.ID, p.ConnectedAt, p.Source)
		} else {
			fmt.Printf("  %s  since %s\n", p.ID, p.ConnectedAt)
		}
	}
}

func mustHash(s string) types.Hash {
	h, err := types.HexToHash(s)
	if err != nil {
		fatal("invalid id %q: %v", s, err)
	}
	return h
}
