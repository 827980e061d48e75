package crypto

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// channelDomain separates channel-update digests from order commitments.
const channelDomain = "darkpool.channel.update.v1"

// ChannelUpdateDigest computes the digest a participant signs to authorize a
// balance mutation: (participant, newBalance, nonce, timestamp). The nonce in
// the digest is the post-update nonce, so a captured signature can never be
// replayed against a later state.
func ChannelUpdateDigest(participant, newBalance string, nonce uint64, timestamp int64) common.Hash {
	var buf []byte
	buf = appendField(buf, []byte(channelDomain))
	buf = appendField(buf, []byte(strings.ToLower(participant)))
	buf = appendField(buf, []byte(newBalance))

	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], nonce)
	buf = appendField(buf, nonceBytes[:])

	var tsBytes [8]byte
	binary.BigEndian.PutUint64(tsBytes[:], uint64(timestamp))
	buf = appendField(buf, tsBytes[:])

	return common.BytesToHash(ethcrypto.Keccak256(buf))
}

// RecoverSigner recovers the signing address from a 65-byte secp256k1
// signature over the digest. Accepts both V in {0,1} and the legacy {27,28}.
func RecoverSigner(digest common.Hash, signature []byte) (common.Address, error) {
	if len(signature) != 65 {
		return common.Address{}, fmt.Errorf("signature must be 65 bytes, got %d", len(signature))
	}

	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pub, err := ethcrypto.SigToPub(digest[:], sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("signature recovery failed: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// VerifyChannelSignature checks that signature signs digest and was produced
// by the claimed participant. A wrong signer is an error, not a bool, so
// callers log it as security-relevant.
func VerifyChannelSignature(participant string, digest common.Hash, signature []byte) error {
	signer, err := RecoverSigner(digest, signature)
	if err != nil {
		return err
	}
	if !strings.EqualFold(signer.Hex(), participant) {
		return fmt.Errorf("signature recovers %s, not participant %s", signer.Hex(), participant)
	}
	return nil
}

// SignDigest signs a digest with a hex private key. Used by operator tooling
// and tests; production clients sign in their own wallets.
func SignDigest(privHex string, digest common.Hash) ([]byte, error) {
	privHex = strings.TrimPrefix(strings.TrimSpace(privHex), "0x")
	key, err := ethcrypto.HexToECDSA(privHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return ethcrypto.Sign(digest[:], key)
}

// AddressOfKey derives the 0x address for a hex private key.
func AddressOfKey(privHex string) (common.Address, error) {
	privHex = strings.TrimPrefix(strings.TrimSpace(privHex), "0x")
	key, err := ethcrypto.HexToECDSA(privHex)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid private key: %w", err)
	}
	return ethcrypto.PubkeyToAddress(key.PublicKey), nil
}
