package main

import (
	"flag"
	"fmt"

	"github.com/ltlmaps/leap-contracts/internal/rpcclient"
	"github.com/ltlmaps/leap-contracts/pkg/types"
)

func cmdToken(client *rpcclient.Client, args []string, keysDir string) {
	if len(args) < 1 {
		fatal("Usage: leap-cli token <info|balance|allowance|approve|transfer> [args]")
	}
	switch args[0] {
	case "info":
		cmdTokenInfo(client)
	case "balance":
		cmdTokenBalance(client, args[1:])
	case "allowance":
		cmdTokenAllowance(client, args[1:])
	case "approve":
		cmdTokenApprove(client, args[1:], keysDir)
	case "transfer":
		cmdTokenTransfer(client, args[1:], keysDir)
	default:
		fatal("Unknown token command: %s", args[0])
	}
}

func mustAddress(s string) types.Address {
	addr, err := types.ParseAddress(s)
	if err != nil {
		fatal("invalid address %q: %v", s, err)
	}
	return addr
}

func cmdTokenInfo(client *rpcclient.Client) {
	info, err := client.TokenInfo()
	if err != nil {
		fatal("token_getInfo: %v", err)
	}
	fmt.Printf("Name:     %s\n", info.Name)
	fmt.Printf("Symbol:   %s\n", info.Symbol)
	fmt.Printf("Decimals: %d\n", info.Decimals)
	fmt.Printf("Supply:   %s\n", formatAmount(info.TotalSupply))
}

func cmdTokenBalance(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: leap-cli token balance <addr>")
	}
	res, err := client.Balance(mustAddress(args[0]))
	if err != nil {
		fatal("token_getBalance: %v", err)
	}
	fmt.Printf("Address: %s\n", res.Address)
	fmt.Printf("Balance: %s\n", formatAmount(res.Balance))
	if res.Stake > 0 {
		fmt.Printf("Staked:  %s\n", formatAmount(res.Stake))
	}
}

func cmdTokenAllowance(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: leap-cli token allowance <owner> [spender]")
	}
	var spender types.Address
	if len(args) > 1 {
		spender = mustAddress(args[1])
	}
	amount, err := client.Allowance(mustAddress(args[0]), spender)
	if err != nil {
		fatal("token_getAllowance: %v", err)
	}
	fmt.Printf("Allowance: %s\n", formatAmount(amount))
}

func cmdTokenApprove(client *rpcclient.Client, args []string, keysDir string) {
	fs := flag.NewFlagSet("token approve", flag.ExitOnError)
	keyName := fs.String("key", "", "Owner key name")
	amountStr := fs.String("amount", "", "Allowance amount")
	spenderStr := fs.String("spender", "", "Spender address (default: bridge)")
	fs.Parse(args)

	if *keyName == "" || *amountStr == "" {
		fatal("Usage: leap-cli token approve --key <name> --amount <amt> [--spender <addr>]")
	}
	amount, err := parseAmount(*amountStr)
	if err != nil {
		fatal("invalid amount: %v", err)
	}
	var spender types.Address
	if *spenderStr != "" {
		spender = mustAddress(*spenderStr)
	}

	key := loadKey(keysDir, *keyName)
	defer key.Zero()

	res, err := client.Approve(key, spender, amount)
	if err != nil {
		fatal("token_approve: %v", err)
	}
	fmt.Printf("Approved %s to spend %s\n", res.Spender, formatAmount(res.Allowance))
}

func cmdTokenTransfer(client *rpcclient.Client, args []string, keysDir string) {
	fs := flag.NewFlagSet("token transfer", flag.ExitOnError)
	keyName := fs.String("key", "", "Sender key name")
	toStr := fs.String("to", "", "Recipient address")
	amountStr := fs.String("amount", "", "Amount")
	fs.Parse(args)

	if *keyName == "" || *toStr == "" || *amountStr == "" {
		fatal("Usage: leap-cli token transfer --key <name> --to <addr> --amount <amt>")
	}
	amount, err := parseAmount(*amountStr)
	if err != nil {
		fatal("invalid amount: %v", err)
	}
	to := mustAddress(*toStr)

	key := loadKey(keysDir, *keyName)
	defer key.Zero()

	if err := client.Transfer(key, to, amount); err != nil {
		fatal("token_transfer: %v", err)
	}
	fmt.Printf("Sent %s to %s\n", formatAmount(amount), to)
}
