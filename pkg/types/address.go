package types

import (
	"bytes"
	"encoding/hex"
	"errors"
)

const AddressSize = 20

// Address identifies an operator or token holder: the truncated hash of a
// compressed secp256k1 public key.
type Address [AddressSize]byte

func (a Address) IsZero() bool { return a == Address{} }

func (a Address) String() string { return encode0x(a[:]) }

// Hex is String without the 0x prefix.
func (a Address) Hex() string { return hex.EncodeToString(a[:]) }

func (a Address) Bytes() []byte { return append([]byte(nil), a[:]...) }

// Less orders addresses bytewise.
func (a Address) Less(other Address) bool { return bytes.Compare(a[:], other[:]) < 0 }

// MarshalText makes addresses usable as JSON strings and map keys.
func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText parses an address. An empty string is the zero address.
func (a *Address) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress parses 40 hex characters, optionally 0x-prefixed.
func ParseAddress(s string) (Address, error) {
	var a Address
	if s == "" {
		return a, errors.New("empty address")
	}
	if err := decodeFixed(a[:], s, "address"); err != nil {
		return Address{}, err
	}
	return a, nil
}
