package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"strings"

	"github.com/ltlmaps/leap-contracts/internal/keys"
	"github.com/ltlmaps/leap-contracts/pkg/crypto"
)

func cmdKey(args []string, keysDir string) {
	if len(args) < 1 {
		fatal("Usage: leap-cli key <new|import|list|show|delete> [flags]")
	}
	switch args[0] {
	case "new":
		cmdKeyNew(args[1:], keysDir)
	case "import":
		cmdKeyImport(args[1:], keysDir)
	case "list":
		cmdKeyList(keysDir)
	case "show":
		cmdKeyShow(args[1:], keysDir)
	case "delete":
		cmdKeyDelete(args[1:], keysDir)
	default:
		fatal("Unknown key command: %s", args[0])
	}
}

func openKeys(keysDir string) *keys.Dir {
	d, err := keys.OpenDir(keysDir, keys.DefaultKDF())
	if err != nil {
		fatal("open key dir: %v", err)
	}
	return d
}

// newPassword prompts for a password twice.
func newPassword() []byte {
	password, err := readPassword("Enter password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	if string(password) != string(confirm) {
		fatal("passwords do not match")
	}
	return password
}

// loadKey decrypts the named key after prompting for its password.
func loadKey(keysDir, name string) *crypto.PrivateKey {
	if name == "" {
		fatal("--key is required")
	}
	password, err := readPassword(fmt.Sprintf("Password for %s: ", name))
	if err != nil {
		fatal("read password: %v", err)
	}
	key, err := openKeys(keysDir).Load(name, password)
	if err != nil {
		fatal("load key %s: %v", name, err)
	}
	return key
}

func cmdKeyNew(args []string, keysDir string) {
	fs := flag.NewFlagSet("key new", flag.ExitOnError)
	name := fs.String("name", "", "Key name")
	fs.Parse(args)

	if *name == "" {
		fatal("Usage: leap-cli key new --name <name>")
	}

	mnemonic, err := keys.NewMnemonic()
	if err != nil {
		fatal("generate mnemonic: %v", err)
	}
	fmt.Println("Mnemonic (write this down!):")
	fmt.Printf("  %s\n\n", mnemonic)

	key, err := keys.FromMnemonic(mnemonic, "", 0, 0)
	if err != nil {
		fatal("derive key: %v", err)
	}
	defer key.Zero()

	password := newPassword()
	if err := openKeys(keysDir).Save(*name, key, password); err != nil {
		fatal("save key: %v", err)
	}

	fmt.Printf("\nKey created: %s\n", *name)
	fmt.Printf("Address: %s\n", key.Address())
}

func cmdKeyImport(args []string, keysDir string) {
	fs := flag.NewFlagSet("key import", flag.ExitOnError)
	name := fs.String("name", "", "Key name")
	mnemonic := fs.String("mnemonic", "", "BIP-39 mnemonic")
	rawHex := fs.String("hex", "", "Hex-encoded private key")
	account := fs.Uint("account", 0, "Derivation account")
	index := fs.Uint("index", 0, "Derivation index")
	fs.Parse(args)

	if *name == "" || (*mnemonic == "") == (*rawHex == "") {
		fatal("Usage: leap-cli key import --name <name> (--mnemonic \"...\" | --hex <key>)")
	}

	var key *crypto.PrivateKey
	var err error
	if *mnemonic != "" {
		key, err = keys.FromMnemonic(strings.TrimSpace(*mnemonic), "", uint32(*account), uint32(*index))
	} else {
		var raw []byte
		raw, err = hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(*rawHex), "0x"))
		if err == nil {
			key, err = crypto.PrivateKeyFromBytes(raw)
		}
	}
	if err != nil {
		fatal("import key: %v", err)
	}
	defer key.Zero()

	password := newPassword()
	if err := openKeys(keysDir).Save(*name, key, password); err != nil {
		fatal("save key: %v", err)
	}
	fmt.Printf("Key imported: %s\n", *name)
	fmt.Printf("Address: %s\n", key.Address())
}

func cmdKeyList(keysDir string) {
	d := openKeys(keysDir)
	names, err := d.List()
	if err != nil {
		fatal("list keys: %v", err)
	}
	if len(names) == 0 {
		fmt.Println("No keys found.")
		return
	}
	for _, name := range names {
		addr, err := d.Address(name)
		if err != nil {
			fmt.Printf("  %-20s (unreadable: %v)\n", name, err)
			continue
		}
		fmt.Printf("  %-20s %s\n", name, addr)
	}
}

func cmdKeyShow(args []string, keysDir string) {
	fs := flag.NewFlagSet("key show", flag.ExitOnError)
	name := fs.String("name", "", "Key name")
	fs.Parse(args)

	if *name == "" {
		fatal("Usage: leap-cli key show --name <name>")
	}
	addr, err := openKeys(keysDir).Address(*name)
	if err != nil {
		fatal("%v", err)
	}
	fmt.Printf("Name:    %s\n", *name)
	fmt.Printf("Address: %s\n", addr)
}

func cmdKeyDelete(args []string, keysDir string) {
	fs := flag.NewFlagSet("key delete", flag.ExitOnError)
	name := fs.String("name", "", "Key name")
	fs.Parse(args)

	if *name == "" {
		fatal("Usage: leap-cli key delete --name <name>")
	}
	if err := openKeys(keysDir).Delete(*name); err != nil {
		fatal("%v", err)
	}
	fmt.Printf("Key deleted: %s\n", *name)
}
