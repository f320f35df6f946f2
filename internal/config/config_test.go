package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "api", cfg.Mode)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 0.5, cfg.Lending.LTV)
	assert.Equal(t, 0.001, cfg.TokenPrice.FallbackPrice)
	assert.False(t, cfg.Documents.Configured())
	assert.False(t, cfg.Supabase.Configured())
}

func TestValidateFullModeNeedsOperatorAndGateway(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "full"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "private_key or encrypted_key_path")
	assert.Contains(t, err.Error(), "rpc_url")

	cfg.Operator.PrivateKey = "00"
	cfg.Program.RPCURL = "http://localhost:8545"
	assert.NoError(t, cfg.Validate())
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "paper"
	cfg.Lending.LTV = 1.5
	cfg.Server.Port = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "paper"`)
	assert.Contains(t, err.Error(), "lending: ltv")
	assert.Contains(t, err.Error(), "server: port")
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pascal.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "full"

[program]
rpc_url = "http://gateway:8899"
call_timeout = "15s"

[server]
port = 9000
`), 0o600))

	t.Setenv("CREATE_MARKET_API_KEY", "abc, def,")
	t.Setenv("NEXT_PUBLIC_PROGRAM_ID", "monaco111")
	t.Setenv("PASCAL_DOCUMENTS_DSN", "postgres://localhost/pascal")
	t.Setenv("PASCAL_LENDING_LTV", "0.25")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, "http://gateway:8899", cfg.Program.RPCURL)
	assert.Equal(t, "15s", cfg.Program.CallTimeout.String())
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, []string{"abc", "def"}, cfg.Server.APIKeys)
	assert.Equal(t, "monaco111", cfg.Program.ProgramID)
	assert.True(t, cfg.Documents.Configured())
	assert.Equal(t, 0.25, cfg.Lending.LTV)
}

func TestPrefixedEnvWinsOverCompatibilityName(t *testing.T) {
	t.Setenv("CREATE_MARKET_API_KEY", "old")
	t.Setenv("PASCAL_SERVER_API_KEYS", "new")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, cfg.Server.APIKeys)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Operator.PrivateKey = "seed"
	cfg.Supabase.DSN = "postgres://user:pw@host/db"
	cfg.Server.APIKeys = []string{"abc", "def"}

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Operator.PrivateKey)
	assert.Equal(t, "***", out.Supabase.DSN)
	assert.Equal(t, []string{"***", "***"}, out.Server.APIKeys)
	assert.Empty(t, out.Redis.Password)

	// The original is untouched.
	assert.Equal(t, "seed", cfg.Operator.PrivateKey)
	assert.Equal(t, []string{"abc", "def"}, cfg.Server.APIKeys)
}
