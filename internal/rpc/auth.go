package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ltlmaps/leap-contracts/pkg/crypto"
	"github.com/ltlmaps/leap-contracts/pkg/types"
)

// Auth authenticates a call made on behalf of an account. Signature is a
// compact secp256k1 signature over CallDigest of the params with
// Signature set to "". Nonce must exceed the last nonce the node accepted
// from the account.
type Auth struct {
	From      string `json:"from"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature"`
}

func (a *Auth) auth() *Auth { return a }

// Signed is implemented by the param types that embed Auth.
type Signed interface {
	auth() *Auth
}

// CallDigest is the digest signed for a call to method on chainID.
func CallDigest(chainID, method string, payload []byte) types.Hash {
	return crypto.Blake3{}.Sum(
		[]byte("leap-rpc\x00"),
		[]byte(chainID+"\x00"),
		[]byte(method+"\x00"),
		payload,
	)
}

// SignCall fills in params' Auth for key and signs it.
func SignCall(key *crypto.PrivateKey, chainID, method string, nonce uint64, params Signed) error {
	a := params.auth()
	a.From = key.Address().String()
	a.Nonce = nonce
	a.Signature = ""
	payload, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	a.Signature = hex.EncodeToString(key.SignCompact(CallDigest(chainID, method, payload)))
	return nil
}

// verifyCall recovers the signer of params and checks it against From.
func verifyCall(chainID, method string, params Signed) (types.Address, *Error) {
	a := params.auth()
	from, err := types.ParseAddress(a.From)
	if err != nil {
		return types.Address{}, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid from: %v", err)}
	}
	sig, err := decodeHex(a.Signature)
	if err != nil || len(sig) != crypto.SignatureSize {
		return types.Address{}, &Error{Code: CodeInvalidParams, Message: "invalid signature: must be 65-byte hex"}
	}

	a.Signature = ""
	payload, err := json.Marshal(params)
	if err != nil {
		return types.Address{}, &Error{Code: CodeInternalError, Message: "marshal params"}
	}
	signer, err := crypto.RecoverAddress(CallDigest(chainID, method, payload), sig)
	if err != nil {
		return types.Address{}, &Error{Code: CodeSignatureInvalid, Message: fmt.Sprintf("signature: %v", err)}
	}
	if signer != from {
		return types.Address{}, &Error{Code: CodeSignatureInvalid, Message: "signature does not match from"}
	}
	return from, nil
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
}
