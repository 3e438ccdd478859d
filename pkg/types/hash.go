// Package types defines the primitive identifiers shared by the bridge:
// content hashes and operator addresses. Both travel as 0x-prefixed hex in
// JSON and as raw bytes in storage.
package types

import (
	"encoding/hex"
	"fmt"
)

const HashSize = 32

// Hash is a 256-bit content hash. Block ids, parent links, merkle roots
// and seal digests are all Hashes.
type Hash [HashSize]byte

// ZeroHash is the parent of the genesis block.
var ZeroHash Hash

func (h Hash) IsZero() bool { return h == ZeroHash }

func (h Hash) String() string { return encode0x(h[:]) }

// Short is the first four bytes in hex, for log lines.
func (h Hash) Short() string { return hex.EncodeToString(h[:4]) }

func (h Hash) Bytes() []byte { return append([]byte(nil), h[:]...) }

func (h Hash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

// UnmarshalText accepts hex with or without 0x. An empty string is the
// zero hash.
func (h *Hash) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*h = ZeroHash
		return nil
	}
	parsed, err := HexToHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// HexToHash parses 64 hex characters, optionally 0x-prefixed.
func HexToHash(s string) (Hash, error) {
	var h Hash
	if err := decodeFixed(h[:], s, "hash"); err != nil {
		return Hash{}, err
	}
	return h, nil
}

// BytesToHash copies b, which must be exactly HashSize long.
func BytesToHash(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}
