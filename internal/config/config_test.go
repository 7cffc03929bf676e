package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setMinimumEnv provides the startup-fatal required variables so Load can
// succeed; individual tests override from there.
func setMinimumEnv(t *testing.T) {
	t.Helper()
	t.Setenv("RPC_URL", "https://mainnet.base.org")
	t.Setenv("AGENT_PRIVATE_KEY", "deadbeef")
	t.Setenv("STABLECOIN_ADDRESS", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	t.Setenv("CURRENT_CONTRACT_ADDRESS", "0x1111111111111111111111111111111111111111")
	// Keep host environment out of the test.
	for _, k := range []string{
		"AGENT_CONFIG_FILE", "LEGACY_CONTRACT_ADDRESS", "POOL_CREATION_MODE",
		"SOCIAL_ONLY_MODE", "PAUSE_POOL_CREATION", "PORT", "SOCIAL_HANDLE",
		"REDIS_ADDR", "ENCLAVE_MODE", "CHAIN_ID", "SNAPSHOT_PATH",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	setMinimumEnv(t)
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(8453), cfg.Chain.ChainID)
	assert.Equal(t, ModeCurrent, cfg.Chain.Mode)
	assert.Equal(t, 5*time.Minute, cfg.Lifecycle.HeartbeatInterval)
	assert.Equal(t, 3, cfg.Lifecycle.CreationCooldown)
	assert.Equal(t, 15, cfg.Lifecycle.MaxLivePools)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "parapool-agent", cfg.Social.Handle)
	assert.Equal(t, "agent_state.json", cfg.Snapshot.Path)
	assert.Equal(t, 60*time.Second, cfg.Cache.TTL)
	assert.False(t, cfg.Lifecycle.SocialOnly)
}

func TestLoadEnvOverrides(t *testing.T) {
	setMinimumEnv(t)
	t.Setenv("CHAIN_ID", "84532")
	t.Setenv("PORT", "9090")
	t.Setenv("SOCIAL_HANDLE", "testbot")
	t.Setenv("PAUSE_POOL_CREATION", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int64(84532), cfg.Chain.ChainID)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "testbot", cfg.Social.Handle)
	assert.True(t, cfg.Lifecycle.PauseCreation)
}

func TestLoadSocialOnlyHalvesHeartbeat(t *testing.T) {
	setMinimumEnv(t)
	t.Setenv("SOCIAL_ONLY_MODE", "1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Lifecycle.SocialOnly)
	assert.Equal(t, 10*time.Minute, cfg.Lifecycle.HeartbeatInterval)
}

func TestLoadYAMLOverlayEnvWins(t *testing.T) {
	setMinimumEnv(t)
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"server:\n  port: \"7000\"\nsocial:\n  handle: file-handle\n"), 0o600))
	t.Setenv("AGENT_CONFIG_FILE", path)
	t.Setenv("SOCIAL_HANDLE", "env-handle")

	cfg, err := Load()
	require.NoError(t, err)
	// File value survives where no env var is set.
	assert.Equal(t, "7000", cfg.Server.Port)
	// Env beats file.
	assert.Equal(t, "env-handle", cfg.Social.Handle)
}

func TestLoadMissingOverlayFile(t *testing.T) {
	setMinimumEnv(t)
	t.Setenv("AGENT_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := Load()
	assert.Error(t, err)
}

func TestValidateRequirements(t *testing.T) {
	base := func() *Config {
		c := defaults()
		c.Chain.RPCURL = "https://rpc"
		c.Chain.PrivateKey = "deadbeef"
		c.Chain.StablecoinAddress = "0xstable"
		c.Chain.CurrentAddress = "0xcurrent"
		return c
	}

	assert.NoError(t, base().Validate())

	c := base()
	c.Chain.RPCURL = ""
	assert.Error(t, c.Validate())

	c = base()
	c.Chain.PrivateKey = ""
	assert.Error(t, c.Validate())

	// Enclave mode derives the key, so its absence is allowed.
	c = base()
	c.Chain.PrivateKey = ""
	c.Enclave.Enabled = true
	assert.NoError(t, c.Validate())

	c = base()
	c.Chain.CurrentAddress = ""
	assert.Error(t, c.Validate())

	c = base()
	c.Chain.StablecoinAddress = ""
	assert.Error(t, c.Validate())

	c = base()
	c.Chain.Mode = "experimental"
	assert.Error(t, c.Validate())

	// Creation mode must have its contract configured.
	c = base()
	c.Chain.Mode = ModeLegacy
	assert.Error(t, c.Validate())

	c = base()
	c.Chain.Mode = ModeLegacy
	c.Chain.LegacyAddress = "0xlegacy"
	assert.NoError(t, c.Validate())
}
