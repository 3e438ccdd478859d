package keys

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ltlmaps/leap-contracts/pkg/crypto"
	"github.com/ltlmaps/leap-contracts/pkg/types"
)

const (
	keyfileVersion = 1
	keyfileExt     = ".key"
)

// ErrKeyNotFound is returned for an unknown key name.
var ErrKeyNotFound = errors.New("key not found")

// keyfile is the on-disk JSON layout. The address is bound into the
// ciphertext as associated data.
type keyfile struct {
	Version   int           `json:"version"`
	Address   types.Address `json:"address"`
	CreatedAt time.Time     `json:"created_at"`
	Crypto    *Sealed       `json:"crypto"`
}

// Dir stores one encrypted operator key per file.
type Dir struct {
	path string
	kdf  KDF
}

// OpenDir opens (creating if needed) a key directory.
func OpenDir(path string, kdf KDF) (*Dir, error) {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	return &Dir{path: path, kdf: kdf}, nil
}

func (d *Dir) file(name string) string {
	return filepath.Join(d.path, name+keyfileExt)
}

// Save encrypts key under password as name. It refuses to overwrite.
func (d *Dir) Save(name string, key *crypto.PrivateKey, password []byte) error {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid key name %q", name)
	}
	path := d.file(name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("key %q already exists", name)
	}
	addr := key.Address()
	raw := key.Serialize()
	defer zero(raw)
	sealed, err := Seal(raw, password, addr[:], d.kdf)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(&keyfile{
		Version:   keyfileVersion,
		Address:   addr,
		CreatedAt: time.Now().UTC(),
		Crypto:    sealed,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal key file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

// Load decrypts the key stored as name.
func (d *Dir) Load(name string, password []byte) (*crypto.PrivateKey, error) {
	kf, err := d.read(name)
	if err != nil {
		return nil, err
	}
	raw, err := kf.Crypto.Open(password, kf.Address[:])
	if err != nil {
		return nil, err
	}
	defer zero(raw)
	key, err := crypto.PrivateKeyFromBytes(raw)
	if err != nil {
		return nil, err
	}
	if key.Address() != kf.Address {
		return nil, fmt.Errorf("key file %q address mismatch", name)
	}
	return key, nil
}

// Address returns the address of name without decrypting it.
func (d *Dir) Address(name string) (types.Address, error) {
	kf, err := d.read(name)
	if err != nil {
		return types.Address{}, err
	}
	return kf.Address, nil
}

// List returns the stored key names in order.
func (d *Dir) List() ([]string, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, fmt.Errorf("read key dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != keyfileExt {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), keyfileExt))
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes name.
func (d *Dir) Delete(name string) error {
	err := os.Remove(d.file(name))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, name)
	}
	return err
}

func (d *Dir) read(name string) (*keyfile, error) {
	data, err := os.ReadFile(d.file(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	var kf keyfile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse key file: %w", err)
	}
	if kf.Version != keyfileVersion {
		return nil, fmt.Errorf("unsupported key file version %d", kf.Version)
	}
	if kf.Crypto == nil {
		return nil, fmt.Errorf("key file %q has no ciphertext", name)
	}
	return &kf, nil
}
