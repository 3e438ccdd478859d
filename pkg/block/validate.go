package block

import (
	"errors"
	"fmt"

	"github.com/ltlmaps/leap-contracts/pkg/crypto"
)

// Validation errors.
var (
	ErrSignatureLength = errors.New("seal signature has wrong length")
	ErrZeroHeight      = errors.New("seal height is zero")
)

// Validate checks the seal's shape. It does not check the signer or the
// tree position; the consensus engine does that.
func (s *Seal) Validate() error {
	if len(s.Signature) != crypto.SignatureSize {
		return fmt.Errorf("%w: got %d, want %d", ErrSignatureLength, len(s.Signature), crypto.SignatureSize)
	}
	if s.Height == 0 {
		return ErrZeroHeight
	}
	return nil
}
