package crypto

import (
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// commitmentDomain separates order commitments from any other keccak use.
const commitmentDomain = "darkpool.order.commitment.v1"

// OrderFields is the tuple a commitment binds to. The secret nonce is kept
// separate so it is never serialized alongside the public fields by accident.
type OrderFields struct {
	Trader    string
	TokenIn   string
	TokenOut  string
	AmountIn  *big.Int
	AmountOut *big.Int
	IsBuy     bool
}

// Commit computes the 32-byte commitment over the canonical field encoding.
// Deterministic, order-sensitive and type-distinguishing: every field is
// length-prefixed, amounts are fixed-width big-endian, the side is a tagged
// byte. Identical tuples always hash equal; any single-field change changes
// the digest.
func Commit(f OrderFields, secretNonce uint64) (common.Hash, error) {
	if f.AmountIn == nil || f.AmountOut == nil {
		return common.Hash{}, fmt.Errorf("commitment: nil amount")
	}
	if f.AmountIn.Sign() <= 0 || f.AmountOut.Sign() <= 0 {
		return common.Hash{}, fmt.Errorf("commitment: non-positive amount")
	}
	if f.AmountIn.BitLen() > 256 || f.AmountOut.BitLen() > 256 {
		return common.Hash{}, fmt.Errorf("commitment: amount exceeds 256 bits")
	}

	var buf []byte
	buf = appendField(buf, []byte(commitmentDomain))
	buf = appendField(buf, []byte(strings.ToLower(f.Trader)))
	buf = appendField(buf, []byte(strings.ToLower(f.TokenIn)))
	buf = appendField(buf, []byte(strings.ToLower(f.TokenOut)))
	buf = appendField(buf, padAmount(f.AmountIn))
	buf = appendField(buf, padAmount(f.AmountOut))
	if f.IsBuy {
		buf = appendField(buf, []byte{1})
	} else {
		buf = appendField(buf, []byte{0})
	}

	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], secretNonce)
	buf = appendField(buf, nonceBytes[:])

	return common.BytesToHash(ethcrypto.Keccak256(buf)), nil
}

// Verify recomputes the commitment from the claimed fields and compares in
// constant time.
func Verify(commitment common.Hash, f OrderFields, secretNonce uint64) bool {
	recomputed, err := Commit(f, secretNonce)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(commitment[:], recomputed[:]) == 1
}

// IsZeroCommitment reports whether the commitment is all-zero. Zero
// commitments are rejected at intake.
func IsZeroCommitment(commitment common.Hash) bool {
	return commitment == (common.Hash{})
}

// ParseCommitment decodes a 0x-prefixed 64-hex-char commitment string.
func ParseCommitment(s string) (common.Hash, error) {
	if !strings.HasPrefix(s, "0x") || len(s) != 66 {
		return common.Hash{}, fmt.Errorf("commitment must be 0x + 64 hex chars, got %d chars", len(s))
	}
	b := common.FromHex(s)
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid commitment hex")
	}
	return common.BytesToHash(b), nil
}

// appendField writes a uint32 length prefix followed by the field bytes.
func appendField(buf, field []byte) []byte {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(field)))
	buf = append(buf, l[:]...)
	return append(buf, field...)
}

// padAmount renders an amount as 32-byte big-endian.
func padAmount(v *big.Int) []byte {
	out := make([]byte, 32)
	v.FillBytes(out)
	return out
}
