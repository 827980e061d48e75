package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/ecies"
)

// ErrUndecryptable marks a ciphertext that does not decrypt under the
// engine's private key: corrupted bytes, a foreign key, or a truncated
// envelope. Callers drop the item; they never see plausible garbage.
var ErrUndecryptable = errors.New("envelope: ciphertext undecryptable")

// EncryptEnvelope seals a plaintext order payload to the engine's public key
// using ECIES over secp256k1. Only the holder of the matching private key can
// open it.
func EncryptEnvelope(pub *ecies.PublicKey, payload []byte) ([]byte, error) {
	if pub == nil {
		return nil, fmt.Errorf("envelope: nil public key")
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("envelope: empty payload")
	}
	ct, err := ecies.Encrypt(rand.Reader, pub, payload, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("envelope: encrypt: %w", err)
	}
	return ct, nil
}

// DecryptEnvelope opens an ECIES envelope. Authentication is part of the
// scheme, so any tampering or key mismatch surfaces as ErrUndecryptable.
func DecryptEnvelope(priv *ecies.PrivateKey, ciphertext []byte) ([]byte, error) {
	if priv == nil {
		return nil, fmt.Errorf("envelope: nil private key")
	}
	payload, err := priv.Decrypt(ciphertext, nil, nil)
	if err != nil {
		return nil, ErrUndecryptable
	}
	return payload, nil
}

// ParseEnginePrivateKey decodes a hex secp256k1 private key into its ECIES
// form. Accepts an optional 0x prefix.
func ParseEnginePrivateKey(hexKey string) (*ecies.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	ecdsaKey, err := ethcrypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("envelope: invalid engine private key: %w", err)
	}
	return ecies.ImportECDSA(ecdsaKey), nil
}

// PublicKeyHex renders the engine public key as uncompressed hex (0x04...),
// the form handed to clients for envelope encryption.
func PublicKeyHex(priv *ecies.PrivateKey) string {
	pub := priv.PublicKey.ExportECDSA()
	return "0x" + hex.EncodeToString(ethcrypto.FromECDSAPub(pub))
}

// ParseEnginePublicKey decodes an uncompressed hex public key (0x04...) into
// its ECIES form. This is the client-side half of the envelope contract.
func ParseEnginePublicKey(hexKey string) (*ecies.PublicKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("envelope: invalid engine public key hex: %w", err)
	}
	pub, err := ethcrypto.UnmarshalPubkey(raw)
	if err != nil {
		return nil, fmt.Errorf("envelope: invalid engine public key: %w", err)
	}
	return ecies.ImportECDSAPublic(pub), nil
}
