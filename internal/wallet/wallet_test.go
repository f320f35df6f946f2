package wallet

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcutil/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pascal/internal/domain"
)

func init() {
	// Keep key file tests fast.
	kdfIterations = 1_000
}

var testSeed = bytes.Repeat([]byte{7}, SeedSize)

func TestIdentitySignVerify(t *testing.T) {
	id, err := NewIdentity(testSeed)
	require.NoError(t, err)

	pk := id.PublicKey()
	assert.GreaterOrEqual(t, len(pk), 32)
	assert.LessOrEqual(t, len(pk), 44)

	msg := []byte("monaco_createMarket:1700000000")
	sig := id.Sign(msg)
	assert.True(t, Verify(pk, msg, sig))
	assert.False(t, Verify(pk, []byte("tampered"), sig))
	assert.False(t, Verify("not-base58!", msg, sig))
}

func TestGenerateIdentityIsRandom(t *testing.T) {
	a, err := GenerateIdentity()
	require.NoError(t, err)
	b, err := GenerateIdentity()
	require.NoError(t, err)
	assert.NotEqual(t, a.PublicKey(), b.PublicKey())
}

func TestKeyFileRoundTrip(t *testing.T) {
	blob, err := EncryptSeed(testSeed, "hunter2")
	require.NoError(t, err)

	seed, err := DecryptSeed(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testSeed, seed)

	_, err = DecryptSeed(blob, "wrong")
	assert.ErrorContains(t, err, "wrong password")

	_, err = EncryptSeed(testSeed, "")
	assert.Error(t, err)
	_, err = EncryptSeed([]byte{1, 2, 3}, "pw")
	assert.Error(t, err)
}

func TestLoadIdentitySources(t *testing.T) {
	want, err := NewIdentity(testSeed)
	require.NoError(t, err)

	t.Run("hex seed", func(t *testing.T) {
		id, err := LoadIdentity(KeyConfig{RawKey: "0x" + hex.EncodeToString(testSeed)})
		require.NoError(t, err)
		assert.Equal(t, want.PublicKey(), id.PublicKey())
	})

	t.Run("base58 secret key", func(t *testing.T) {
		secret := ed25519.NewKeyFromSeed(testSeed)
		id, err := LoadIdentity(KeyConfig{RawKey: base58.Encode(secret)})
		require.NoError(t, err)
		assert.Equal(t, want.PublicKey(), id.PublicKey())
	})

	t.Run("mismatched secret key halves", func(t *testing.T) {
		secret := append([]byte(nil), ed25519.NewKeyFromSeed(testSeed)...)
		secret[40] ^= 0xff
		_, err := LoadIdentity(KeyConfig{RawKey: base58.Encode(secret)})
		assert.Error(t, err)
	})

	t.Run("encrypted key file", func(t *testing.T) {
		blob, err := EncryptSeed(testSeed, "pw")
		require.NoError(t, err)
		path := filepath.Join(t.TempDir(), "operator.json")
		require.NoError(t, os.WriteFile(path, blob, 0o600))

		id, err := LoadIdentity(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
		require.NoError(t, err)
		assert.Equal(t, want.PublicKey(), id.PublicKey())
	})

	t.Run("nothing configured", func(t *testing.T) {
		_, err := LoadIdentity(KeyConfig{})
		assert.Error(t, err)
	})
}

type closingProgram struct {
	domain.ProgramClient
	closed bool
}

func (p *closingProgram) Close() error {
	p.closed = true
	return nil
}

func TestContextLifecycle(t *testing.T) {
	var nilCtx *Context
	assert.ErrorIs(t, nilCtx.Ready(), domain.ErrNotReady)
	assert.Empty(t, nilCtx.PublicKey())

	program := &closingProgram{}
	wc, err := Connect(KeyConfig{RawKey: hex.EncodeToString(testSeed)}, func(id *Identity) (domain.ProgramClient, error) {
		assert.NotEmpty(t, id.PublicKey())
		return program, nil
	})
	require.NoError(t, err)
	require.NoError(t, wc.Ready())
	assert.NotEmpty(t, wc.PublicKey())
	assert.Same(t, program, wc.Program())

	require.NoError(t, wc.Close())
	assert.True(t, program.closed)
	assert.ErrorIs(t, wc.Ready(), domain.ErrNotReady)
	assert.Nil(t, wc.Program())
}

func TestContextMissingProgram(t *testing.T) {
	id, err := NewIdentity(testSeed)
	require.NoError(t, err)

	err = NewContext(id, nil).Ready()
	assert.ErrorIs(t, err, domain.ErrNotReady)
	assert.Contains(t, err.Error(), "program not initialized")
}

func TestConnectDialFailure(t *testing.T) {
	_, err := Connect(KeyConfig{RawKey: hex.EncodeToString(testSeed)}, func(*Identity) (domain.ProgramClient, error) {
		return nil, errors.New("refused")
	})
	assert.ErrorContains(t, err, "refused")
}
