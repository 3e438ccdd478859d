package keys

import (
	"bytes"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ltlmaps/leap-contracts/pkg/crypto"
)

const testPhrase = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

// fastKDF keeps Argon2 cheap in tests.
func fastKDF() KDF {
	return KDF{Memory: 64, Iterations: 1, Parallelism: 1}
}

func TestNewMnemonic(t *testing.T) {
	a, err := NewMnemonic()
	if err != nil {
		t.Fatalf("NewMnemonic: %v", err)
	}
	if n := len(strings.Fields(a)); n != 24 {
		t.Errorf("word count = %d, want 24", n)
	}
	b, _ := NewMnemonic()
	if a == b {
		t.Error("two phrases are identical")
	}
	if _, err := Seed(a, ""); err != nil {
		t.Errorf("generated phrase rejected: %v", err)
	}
}

func TestSeed_KnownVector(t *testing.T) {
	seed, err := Seed(testPhrase, "TREZOR")
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	want, _ := hex.DecodeString("c55257c360c07c72029aebc1b53c05ed0362ada38ead3e3e9efa3708e53495531f09a6987599d18264c1e1c92f2cf141630c7a3c4ab7c81b2f001698e7463b04")
	if !bytes.Equal(seed, want) {
		t.Errorf("seed = %x", seed)
	}
}

func TestSeed_Invalid(t *testing.T) {
	for _, phrase := range []string{"", "abandon abandon", strings.Replace(testPhrase, "about", "abandon", 1)} {
		if _, err := Seed(phrase, ""); !errors.Is(err, ErrInvalidMnemonic) {
			t.Errorf("Seed(%q) err = %v", phrase, err)
		}
	}
}

func TestDerive(t *testing.T) {
	seed, _ := Seed(testPhrase, "")

	k0, err := Derive(seed, OperatorPath(0, 0)...)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	again, _ := Derive(seed, OperatorPath(0, 0)...)
	if k0.Address() != again.Address() {
		t.Error("derivation is not deterministic")
	}
	k1, _ := Derive(seed, OperatorPath(0, 1)...)
	acct1, _ := Derive(seed, OperatorPath(1, 0)...)
	if k0.Address() == k1.Address() || k0.Address() == acct1.Address() {
		t.Error("distinct paths gave the same key")
	}

	viaPhrase, err := FromMnemonic(testPhrase, "", 0, 0)
	if err != nil {
		t.Fatalf("FromMnemonic: %v", err)
	}
	if viaPhrase.Address() != k0.Address() {
		t.Error("FromMnemonic disagrees with Derive")
	}

	if _, err := Derive(seed[:32]); err == nil {
		t.Error("short seed accepted")
	}
}

func TestDerive_Signs(t *testing.T) {
	key, err := FromMnemonic(testPhrase, "", 0, 0)
	if err != nil {
		t.Fatalf("FromMnemonic: %v", err)
	}
	digest := crypto.Hash([]byte("seal"))
	got, err := crypto.RecoverAddress(digest, key.SignCompact(digest))
	if err != nil || got != key.Address() {
		t.Errorf("recovered %s, %v; want %s", got, err, key.Address())
	}
}

func TestSeal(t *testing.T) {
	secret := []byte("operator secret")
	ad := []byte("bound")
	s, err := Seal(secret, []byte("pw"), ad, fastKDF())
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains(s.Ciphertext, secret) {
		t.Error("ciphertext contains plaintext")
	}

	out, err := s.Open([]byte("pw"), ad)
	if err != nil || !bytes.Equal(out, secret) {
		t.Fatalf("Open = %q, %v", out, err)
	}
	if _, err := s.Open([]byte("nope"), ad); !errors.Is(err, ErrWrongPassword) {
		t.Errorf("wrong password err = %v", err)
	}
	if _, err := s.Open([]byte("pw"), []byte("other")); !errors.Is(err, ErrWrongPassword) {
		t.Errorf("wrong associated data err = %v", err)
	}

	s2, _ := Seal(secret, []byte("pw"), ad, fastKDF())
	if bytes.Equal(s.Salt, s2.Salt) || bytes.Equal(s.Nonce, s2.Nonce) {
		t.Error("salt or nonce reused")
	}

	s.Ciphertext[0] ^= 0xff
	if _, err := s.Open([]byte("pw"), ad); !errors.Is(err, ErrWrongPassword) {
		t.Errorf("tampered ciphertext err = %v", err)
	}
}

func TestDir(t *testing.T) {
	dir := t.TempDir()
	d, err := OpenDir(dir, fastKDF())
	if err != nil {
		t.Fatalf("OpenDir: %v", err)
	}
	key, _ := crypto.GenerateKey()
	pw := []byte("hunter2")

	if err := d.Save("op", key, pw); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := d.Save("op", key, pw); err == nil {
		t.Error("overwrite allowed")
	}
	if err := d.Save("../escape", key, pw); err == nil {
		t.Error("path in key name allowed")
	}

	info, err := os.Stat(filepath.Join(dir, "op.key"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %o, want 600", perm)
	}

	addr, err := d.Address("op")
	if err != nil || addr != key.Address() {
		t.Errorf("Address = %s, %v", addr, err)
	}
	loaded, err := d.Load("op", pw)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(loaded.Serialize(), key.Serialize()) {
		t.Error("loaded key differs")
	}
	if _, err := d.Load("op", []byte("bad")); !errors.Is(err, ErrWrongPassword) {
		t.Errorf("wrong password err = %v", err)
	}

	other, _ := crypto.GenerateKey()
	if err := d.Save("a-first", other, pw); err != nil {
		t.Fatalf("Save: %v", err)
	}
	names, _ := d.List()
	if len(names) != 2 || names[0] != "a-first" || names[1] != "op" {
		t.Errorf("List = %v", names)
	}

	if err := d.Delete("op"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := d.Load("op", pw); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Load after delete err = %v", err)
	}
	if err := d.Delete("op"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("second Delete err = %v", err)
	}
}
