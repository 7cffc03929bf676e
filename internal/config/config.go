// Package config loads agent configuration from the environment with an
// optional YAML overlay for tunables that rarely change between deployments.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// Pool creation mode selects which contract generation receives new pools.
const (
	ModeLegacy  = "legacy"
	ModeCurrent = "current"
)

type Config struct {
	Chain     ChainConfig     `yaml:"chain"`
	Social    SocialConfig    `yaml:"social"`
	Oracle    OracleConfig    `yaml:"oracle"`
	Risk      RiskConfig      `yaml:"risk"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	Server    ServerConfig    `yaml:"server"`
	Cache     CacheConfig     `yaml:"cache"`
	Enclave   EnclaveConfig   `yaml:"enclave"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
}

type ChainConfig struct {
	RPCURL            string        `yaml:"rpc_url"`
	ChainID           int64         `yaml:"chain_id"`
	PrivateKey        string        `yaml:"-"` // never serialized
	StablecoinAddress string        `yaml:"stablecoin_address"`
	LegacyAddress     string        `yaml:"legacy_address"`
	CurrentAddress    string        `yaml:"current_address"`
	Mode              string        `yaml:"mode"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	MaxRetries        int           `yaml:"max_retries"`
}

type SocialConfig struct {
	APIKey          string        `yaml:"-"`
	BaseURL         string        `yaml:"base_url"`
	Handle          string        `yaml:"handle"`
	CallTimeout     time.Duration `yaml:"call_timeout"`
	CommentDelay    time.Duration `yaml:"comment_delay"`
	MaxRepliesCycle int           `yaml:"max_replies_per_cycle"`
	MaxLikesCycle   int           `yaml:"max_likes_per_cycle"`
	MaxDailyPosts   int           `yaml:"max_daily_posts"`
	MaxDailyComment int           `yaml:"max_daily_comments"`
}

type OracleConfig struct {
	LLMKey       string        `yaml:"-"`
	LLMBaseURL   string        `yaml:"llm_base_url"`
	LLMModel     string        `yaml:"llm_model"`
	LLMTimeout   time.Duration `yaml:"llm_timeout"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

type RiskConfig struct {
	HistoricalAPIKey string `yaml:"-"`
	PriceAPIBaseURL  string `yaml:"price_api_base_url"`
}

type LifecycleConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	PauseCreation     bool          `yaml:"pause_creation"`
	CreationCooldown  int           `yaml:"creation_cooldown_cycles"`
	MaxLivePools      int           `yaml:"max_live_pools"`
	SocialOnly        bool          `yaml:"social_only"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type CacheConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	ReadDelay     time.Duration `yaml:"read_delay"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"-"`
	RedisDB       int           `yaml:"redis_db"`
}

type EnclaveConfig struct {
	Enabled bool `yaml:"enabled"`
}

type SnapshotConfig struct {
	Path string `yaml:"path"`
}

// Load builds the configuration from environment variables, applying an
// optional YAML overlay first when AGENT_CONFIG_FILE points at one.
// Environment values always win over the file.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("AGENT_CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, fmt.Errorf("config overlay %s: %w", path, err)
		}
	}

	cfg.Chain.RPCURL = envOr("RPC_URL", cfg.Chain.RPCURL)
	cfg.Chain.ChainID = envInt64("CHAIN_ID", cfg.Chain.ChainID)
	cfg.Chain.PrivateKey = os.Getenv("AGENT_PRIVATE_KEY")
	cfg.Chain.StablecoinAddress = envOr("STABLECOIN_ADDRESS", cfg.Chain.StablecoinAddress)
	cfg.Chain.LegacyAddress = envOr("LEGACY_CONTRACT_ADDRESS", cfg.Chain.LegacyAddress)
	cfg.Chain.CurrentAddress = envOr("CURRENT_CONTRACT_ADDRESS", cfg.Chain.CurrentAddress)
	cfg.Chain.Mode = envOr("POOL_CREATION_MODE", cfg.Chain.Mode)

	cfg.Social.APIKey = os.Getenv("SOCIAL_API_KEY")
	cfg.Social.BaseURL = envOr("SOCIAL_BASE_URL", cfg.Social.BaseURL)
	cfg.Social.Handle = envOr("SOCIAL_HANDLE", cfg.Social.Handle)

	cfg.Oracle.LLMKey = os.Getenv("LLM_API_KEY")
	cfg.Oracle.LLMBaseURL = envOr("LLM_BASE_URL", cfg.Oracle.LLMBaseURL)
	cfg.Oracle.LLMModel = envOr("LLM_MODEL", cfg.Oracle.LLMModel)

	cfg.Risk.HistoricalAPIKey = os.Getenv("HISTORICAL_API_KEY")
	cfg.Risk.PriceAPIBaseURL = envOr("PRICE_API_BASE_URL", cfg.Risk.PriceAPIBaseURL)

	cfg.Lifecycle.PauseCreation = envBool("PAUSE_POOL_CREATION", cfg.Lifecycle.PauseCreation)
	cfg.Lifecycle.SocialOnly = envBool("SOCIAL_ONLY_MODE", cfg.Lifecycle.SocialOnly)

	cfg.Cache.RedisAddr = envOr("REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = os.Getenv("REDIS_PASSWORD")

	cfg.Enclave.Enabled = envBool("ENCLAVE_MODE", cfg.Enclave.Enabled)

	cfg.Snapshot.Path = envOr("SNAPSHOT_PATH", cfg.Snapshot.Path)
	cfg.Server.Port = envOr("PORT", cfg.Server.Port)

	if cfg.Lifecycle.SocialOnly {
		// Social-only deployments heartbeat at half cadence.
		cfg.Lifecycle.HeartbeatInterval = 10 * time.Minute
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Chain: ChainConfig{
			ChainID:      8453,
			Mode:         ModeCurrent,
			ReadTimeout:  20 * time.Second,
			WriteTimeout: 120 * time.Second,
			MaxRetries:   4,
		},
		Social: SocialConfig{
			Handle:          "parapool-agent",
			CallTimeout:     15 * time.Second,
			CommentDelay:    20 * time.Second,
			MaxRepliesCycle: 5,
			MaxLikesCycle:   10,
			MaxDailyPosts:   20,
			MaxDailyComment: 60,
		},
		Oracle: OracleConfig{
			LLMModel:     "gpt-4o-mini",
			LLMTimeout:   60 * time.Second,
			FetchTimeout: 15 * time.Second,
		},
		Lifecycle: LifecycleConfig{
			HeartbeatInterval: 5 * time.Minute,
			CreationCooldown:  3,
			MaxLivePools:      15,
		},
		Server: ServerConfig{Port: "8080"},
		Cache: CacheConfig{
			TTL:       60 * time.Second,
			ReadDelay: 200 * time.Millisecond,
		},
		Snapshot: SnapshotConfig{Path: "agent_state.json"},
	}
}

func (c *Config) overlayFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return yaml.NewDecoder(f).Decode(c)
}

// Validate enforces the startup-fatal requirements: a signing key (unless
// the enclave derives one), an RPC endpoint, and at least one contract.
func (c *Config) Validate() error {
	if c.Chain.RPCURL == "" {
		return errors.New("RPC_URL is required")
	}
	if c.Chain.PrivateKey == "" && !c.Enclave.Enabled {
		return errors.New("AGENT_PRIVATE_KEY is required outside enclave mode")
	}
	if c.Chain.LegacyAddress == "" && c.Chain.CurrentAddress == "" {
		return errors.New("at least one of LEGACY_CONTRACT_ADDRESS or CURRENT_CONTRACT_ADDRESS is required")
	}
	if c.Chain.StablecoinAddress == "" {
		return errors.New("STABLECOIN_ADDRESS is required")
	}
	if c.Chain.Mode != ModeLegacy && c.Chain.Mode != ModeCurrent {
		return fmt.Errorf("unknown POOL_CREATION_MODE %q", c.Chain.Mode)
	}
	if c.Chain.Mode == ModeLegacy && c.Chain.LegacyAddress == "" {
		return errors.New("POOL_CREATION_MODE=legacy requires LEGACY_CONTRACT_ADDRESS")
	}
	if c.Chain.Mode == ModeCurrent && c.Chain.CurrentAddress == "" {
		return errors.New("POOL_CREATION_MODE=current requires CURRENT_CONTRACT_ADDRESS")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
