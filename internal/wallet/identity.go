// Package wallet holds the operator identity used to submit program
// instructions and the connection context that pairs it with a program
// client.
package wallet

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/btcsuite/btcutil/base58"
)

// SeedSize is the length of an ed25519 seed.
const SeedSize = ed25519.SeedSize

// Identity is an ed25519 keypair whose public key is rendered in base58, the
// way the chain names accounts.
type Identity struct {
	priv ed25519.PrivateKey
}

// NewIdentity derives an identity from a 32-byte seed.
func NewIdentity(seed []byte) (*Identity, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("wallet: expected %d-byte seed, got %d bytes", SeedSize, len(seed))
	}
	return &Identity{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// GenerateIdentity returns a fresh random identity. The orchestrator uses one
// per market as the event account.
func GenerateIdentity() (*Identity, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("wallet: generate key: %w", err)
	}
	return &Identity{priv: priv}, nil
}

// PublicKey returns the base58-encoded public key.
func (id *Identity) PublicKey() string {
	return base58.Encode(id.priv.Public().(ed25519.PublicKey))
}

// Sign signs msg with the identity's private key.
func (id *Identity) Sign(msg []byte) []byte {
	return ed25519.Sign(id.priv, msg)
}

// Verify checks sig over msg against a base58 public key.
func Verify(publicKey string, msg, sig []byte) bool {
	pub := base58.Decode(publicKey)
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
}

// KeyConfig names where the operator key comes from.
type KeyConfig struct {
	// RawKey is either a hex-encoded 32-byte seed (optional 0x prefix) or a
	// base58-encoded 64-byte secret key as exported by browser wallets.
	RawKey string
	// EncryptedKeyPath is a key file written by EncryptSeed.
	EncryptedKeyPath string
	KeyPassword      string
}

// LoadIdentity resolves the operator identity. A raw key takes precedence
// over an encrypted key file.
func LoadIdentity(cfg KeyConfig) (*Identity, error) {
	if raw := strings.TrimSpace(cfg.RawKey); raw != "" {
		seed, err := parseRawKey(raw)
		if err != nil {
			return nil, err
		}
		return NewIdentity(seed)
	}

	if cfg.EncryptedKeyPath != "" {
		data, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return nil, fmt.Errorf("wallet: reading key file: %w", err)
		}
		seed, err := DecryptSeed(data, cfg.KeyPassword)
		if err != nil {
			return nil, err
		}
		return NewIdentity(seed)
	}

	return nil, errors.New("wallet: no key source configured")
}

func parseRawKey(raw string) ([]byte, error) {
	hexKey := strings.TrimPrefix(raw, "0x")
	if len(hexKey) == 2*SeedSize {
		if seed, err := hex.DecodeString(hexKey); err == nil {
			return seed, nil
		}
	}

	secret := base58.Decode(raw)
	if len(secret) == ed25519.PrivateKeySize {
		// A secret key is seed || public key; check the halves agree.
		seed := secret[:SeedSize]
		derived := ed25519.NewKeyFromSeed(seed)
		if string(derived[SeedSize:]) != string(secret[SeedSize:]) {
			return nil, errors.New("wallet: secret key public half does not match seed")
		}
		return seed, nil
	}
	return nil, errors.New("wallet: raw key is neither a 32-byte hex seed nor a 64-byte base58 secret key")
}
