// leap-cli is a command-line client for interacting with a leapd node.
package main

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/ltlmaps/leap-contracts/config"
	"github.com/ltlmaps/leap-contracts/internal/rpcclient"
	"golang.org/x/term"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	rpcURL := ""
	dataDir := config.DefaultDataDir()
	network := config.Mainnet

	// Scan for --rpc, --datadir and --network before the subcommand.
	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--rpc" && len(args) > 1:
			rpcURL = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--rpc="):
			rpcURL = args[0][len("--rpc="):]
			args = args[1:]
		case args[0] == "--datadir" && len(args) > 1:
			dataDir = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--datadir="):
			dataDir = args[0][len("--datadir="):]
			args = args[1:]
		case args[0] == "--network" && len(args) > 1:
			network = config.NetworkType(args[1])
			args = args[2:]
		case strings.HasPrefix(args[0], "--network="):
			network = config.NetworkType(args[0][len("--network="):])
			args = args[1:]
		case args[0] == "--testnet":
			network = config.Testnet
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	cfg := config.Default(network)
	cfg.DataDir = dataDir
	if rpcURL == "" {
		rpcURL = cfg.RPCEndpoint()
	}
	keysDir := cfg.KeysDir()
	client := rpcclient.New(rpcURL)
	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "status":
		cmdStatus(client)
	case "tip":
		cmdTip(client, cmdArgs)
	case "block":
		cmdBlock(client, cmdArgs)
	case "branches":
		cmdBranches(client, cmdArgs)
	case "archived":
		cmdArchived(client, cmdArgs)
	case "operators":
		cmdOperators(client)
	case "operator":
		cmdOperator(client, cmdArgs)
	case "submit":
		cmdSubmit(client, cmdArgs, keysDir)
	case "join":
		cmdJoin(client, cmdArgs, keysDir)
	case "leave":
		cmdLeave(client, cmdArgs, keysDir)
	case "payout":
		cmdPayout(client, cmdArgs)
	case "claim":
		cmdClaim(client, cmdArgs, keysDir)
	case "token":
		cmdToken(client, cmdArgs, keysDir)
	case "peers":
		cmdPeers(client)
	case "key":
		cmdKey(cmdArgs, keysDir)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: leap-cli [global flags] <command> [flags]

Global flags:
  --rpc <url>         RPC endpoint (default: the network's local leapd)
  --datadir <path>    Data directory (default: ~/.leap)
  --network <net>     mainnet (default) or testnet
  --testnet           Shorthand for --network testnet

Bridge:
  status                          Show bridge status
  tip [addr...]                   Run fork choice (default: all staked operators)
  block <id|height>               Show a block
  branches <id>                   List the children of a block
  archived <height>               List blocks archived at a height
  operators                       List registered operators
  operator <addr>                 Show an operator record
  submit --key <k> --body <file.json> [--prev <id>] [--orphans <id,...>]
                                  Seal and submit a block
  join --key <k> --amount <amt>   Approve and stake tokens
  leave --key <k>                 Request to leave the committee
  payout <addr>                   Pay out a departed operator's stake
  claim --key <k> --block <id> --body <file.json> --sig <hex>
                                  Claim the epoch reward proven by a block

Token:
  token info                      Show token metadata
  token balance <addr>            Show balance and stake
  token allowance <owner> [spender]
                                  Show an allowance (default spender: bridge)
  token approve --key <k> --amount <amt> [--spender <addr>]
                                  Approve a spender (default: bridge)
  token transfer --key <k> --to <addr> --amount <amt>
                                  Transfer tokens

Network:
  peers                           Show connected peers

Keys:
  key new --name <n>              Generate a mnemonic and operator key
  key import --name <n> (--mnemonic "..." | --hex <key>) [--account <a> --index <i>]
                                  Import an operator key
  key list                        List stored keys
  key show --name <n>             Show a key's address
  key delete --name <n>           Delete a stored key
`)
}

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return nil, err
	}
	return password, nil
}

// ── Error helper ────────────────────────────────────────────────────────

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
