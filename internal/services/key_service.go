package services

import (
	"fmt"
	"os"
	"strings"

	"darkpool-backend/internal/config"
	dpcrypto "darkpool-backend/internal/crypto"

	"github.com/ethereum/go-ethereum/crypto/ecies"
)

// KeyProvider supplies the engine keypair at startup. The core never
// generates or rotates keys itself.
type KeyProvider interface {
	EnginePrivateKey() *ecies.PrivateKey
	EnginePublicKeyHex() string
}

// ConfigKeyProvider loads the engine key from configuration: an inline hex
// key, or a key file holding one hex line.
type ConfigKeyProvider struct {
	priv *ecies.PrivateKey
}

// NewConfigKeyProvider reads and parses the configured engine key.
func NewConfigKeyProvider(cfg *config.EngineConfig) (*ConfigKeyProvider, error) {
	hexKey := cfg.PrivateKey
	if hexKey == "" && cfg.KeyFile != "" {
		data, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read engine key file: %w", err)
		}
		hexKey = strings.TrimSpace(string(data))
	}
	if hexKey == "" {
		return nil, fmt.Errorf("engine private key not configured (set engine.privateKey, engine.keyFile or ENGINE_PRIVATE_KEY)")
	}

	priv, err := dpcrypto.ParseEnginePrivateKey(hexKey)
	if err != nil {
		return nil, err
	}
	return &ConfigKeyProvider{priv: priv}, nil
}

// EnginePrivateKey returns the engine's ECIES private key.
func (p *ConfigKeyProvider) EnginePrivateKey() *ecies.PrivateKey {
	return p.priv
}

// EnginePublicKeyHex returns the uncompressed public key clients encrypt to.
func (p *ConfigKeyProvider) EnginePublicKeyHex() string {
	return dpcrypto.PublicKeyHex(p.priv)
}
