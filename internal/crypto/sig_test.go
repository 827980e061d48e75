package crypto

import (
	"encoding/hex"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
)

func genSigner(t *testing.T) (privHex, address string) {
	key, err := ethcrypto.GenerateKey()
	assert.NoError(t, err)
	return hex.EncodeToString(ethcrypto.FromECDSA(key)), ethcrypto.PubkeyToAddress(key.PublicKey).Hex()
}

func TestChannelUpdateDigestSensitivity(t *testing.T) {
	base := ChannelUpdateDigest("0x1111111111111111111111111111111111111111", "8.5", 1, 1700000000)

	assert.Equal(t, base, ChannelUpdateDigest("0x1111111111111111111111111111111111111111", "8.5", 1, 1700000000))
	assert.NotEqual(t, base, ChannelUpdateDigest("0x2222222222222222222222222222222222222222", "8.5", 1, 1700000000))
	assert.NotEqual(t, base, ChannelUpdateDigest("0x1111111111111111111111111111111111111111", "8.6", 1, 1700000000))
	assert.NotEqual(t, base, ChannelUpdateDigest("0x1111111111111111111111111111111111111111", "8.5", 2, 1700000000))
	assert.NotEqual(t, base, ChannelUpdateDigest("0x1111111111111111111111111111111111111111", "8.5", 1, 1700000001))
}

func TestSignAndRecover(t *testing.T) {
	privHex, address := genSigner(t)
	digest := ChannelUpdateDigest(address, "10", 1, 1700000000)

	sig, err := SignDigest(privHex, digest)
	assert.NoError(t, err)
	assert.Len(t, sig, 65)

	signer, err := RecoverSigner(digest, sig)
	assert.NoError(t, err)
	assert.Equal(t, address, signer.Hex())
}

func TestRecoverSignerLegacyV(t *testing.T) {
	privHex, address := genSigner(t)
	digest := ChannelUpdateDigest(address, "10", 1, 1700000000)

	sig, err := SignDigest(privHex, digest)
	assert.NoError(t, err)
	sig[64] += 27 // wallet-style V

	signer, err := RecoverSigner(digest, sig)
	assert.NoError(t, err)
	assert.Equal(t, address, signer.Hex())
}

func TestVerifyChannelSignature(t *testing.T) {
	privHex, address := genSigner(t)
	otherPriv, otherAddress := genSigner(t)

	digest := ChannelUpdateDigest(address, "10", 1, 1700000000)
	sig, _ := SignDigest(privHex, digest)

	assert.NoError(t, VerifyChannelSignature(address, digest, sig))

	// Right signature, wrong claimed participant.
	assert.Error(t, VerifyChannelSignature(otherAddress, digest, sig))

	// Signature from another key.
	foreign, _ := SignDigest(otherPriv, digest)
	assert.Error(t, VerifyChannelSignature(address, digest, foreign))

	// Signature over a different digest does not transfer.
	staleDigest := ChannelUpdateDigest(address, "10", 2, 1700000000)
	assert.Error(t, VerifyChannelSignature(address, staleDigest, sig))
}

func TestRecoverSignerRejectsBadLength(t *testing.T) {
	digest := ChannelUpdateDigest("0x1111111111111111111111111111111111111111", "1", 1, 0)
	_, err := RecoverSigner(digest, []byte{1, 2, 3})
	assert.Error(t, err)
}

func TestAddressOfKey(t *testing.T) {
	privHex, address := genSigner(t)
	derived, err := AddressOfKey(privHex)
	assert.NoError(t, err)
	assert.Equal(t, address, derived.Hex())

	derived2, err := AddressOfKey("0x" + privHex)
	assert.NoError(t, err)
	assert.Equal(t, derived, derived2)
}
