// derive_key.go prints the operator address for a hex-encoded key file, the
// format leapd reads with --operator-key. With --testnet it writes the
// well-known testnet operator key to the file instead.
//
// Usage: go run scripts/derive_key.go [--testnet] <keyfile>
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/ltlmaps/leap-contracts/config"
	"github.com/ltlmaps/leap-contracts/pkg/crypto"
)

func main() {
	args := os.Args[1:]
	testnet := len(args) > 0 && args[0] == "--testnet"
	if testnet {
		args = args[1:]
	}
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: derive_key [--testnet] <keyfile>")
		os.Exit(1)
	}

	var key *crypto.PrivateKey
	var err error
	if testnet {
		key, err = config.TestnetOperatorKey()
		if err == nil {
			raw := key.Serialize()
			err = os.WriteFile(args[0], []byte(hex.EncodeToString(raw)+"\n"), 0o600)
		}
	} else {
		var data []byte
		data, err = os.ReadFile(args[0])
		if err == nil {
			var raw []byte
			raw, err = hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(string(data)), "0x"))
			if err == nil {
				key, err = crypto.PrivateKeyFromBytes(raw)
			}
		}
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer key.Zero()

	fmt.Printf("address=%s\n", key.Address())
}
