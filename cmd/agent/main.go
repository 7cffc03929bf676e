package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"

	"github.com/parapool/agent/internal/api"
	"github.com/parapool/agent/internal/cache"
	"github.com/parapool/agent/internal/chain"
	"github.com/parapool/agent/internal/commerce"
	"github.com/parapool/agent/internal/config"
	"github.com/parapool/agent/internal/enclave"
	"github.com/parapool/agent/internal/evidence"
	"github.com/parapool/agent/internal/infra"
	"github.com/parapool/agent/internal/lifecycle"
	"github.com/parapool/agent/internal/monitoring"
	"github.com/parapool/agent/internal/oracle"
	"github.com/parapool/agent/internal/registry"
	"github.com/parapool/agent/internal/risk"
	"github.com/parapool/agent/internal/social"
)

func main() {
	_ = godotenv.Load()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(),
	})))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Chain plumbing.
	backend, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		log.Fatalf("rpc dial: %v", err)
	}
	defer backend.Close()

	keys := enclave.NewEnvKeyProvider(cfg.Chain.PrivateKey)
	key, err := keys.Key()
	if err != nil {
		log.Fatalf("wallet key: %v", err)
	}
	client, err := chain.New(backend, cfg.Chain, key)
	if err != nil {
		log.Fatalf("chain client: %v", err)
	}
	slog.Info("agent wallet ready", "address", client.WalletAddress().Hex())

	// State.
	reg := registry.New()
	if err := reg.Load(cfg.Snapshot.Path); err != nil {
		slog.Warn("snapshot load failed, starting empty", "path", cfg.Snapshot.Path, "err", err)
	}
	poolCache := cache.New(client, cfg.Cache.TTL, cfg.Cache.ReadDelay)
	metrics := monitoring.New()

	// Risk and oracle.
	catalog := risk.NewCatalog()
	engine := risk.NewEngine(catalog, risk.NewLiveHistory(cfg.Risk.HistoricalAPIKey, cfg.Risk.PriceAPIBaseURL))
	fetcher := evidence.NewFetcher(cfg.Oracle.FetchTimeout, cfg.Enclave.Enabled)
	llm := oracle.NewHTTPLLMClient(cfg.Oracle.LLMBaseURL, cfg.Oracle.LLMKey, cfg.Oracle.LLMModel, cfg.Oracle.LLMTimeout)
	var attester oracle.Attester
	if cfg.Enclave.Enabled {
		attester = enclave.NewSoftwareAttester(key)
	}
	auditor := oracle.NewDualAuditor(fetcher, llm, evidence.NewAuditTrail(), attester)

	// Social surface.
	platform := social.NewHTTPClient(cfg.Social.BaseURL, cfg.Social.APIKey, cfg.Social.Handle, cfg.Social.CallTimeout)
	limiter := social.NewLimiter(platform, reg, cfg.Social)
	if cfg.Cache.RedisAddr != "" {
		guard, err := infra.NewRedisContentGuard(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			slog.Warn("redis unavailable, local duplicate suppression only", "err", err)
		} else {
			defer guard.Close()
			limiter.SetGuard(guard)
		}
	}
	contracts := make(map[chain.Variant]common.Address)
	for _, v := range client.Variants() {
		if addr, ok := client.ContractAddress(v); ok {
			contracts[v] = addr
		}
	}
	builder := social.NewArtifactBuilder(cfg.Chain.ChainID,
		common.HexToAddress(cfg.Chain.StablecoinAddress), contracts, "")

	mode := chain.VariantCurrent
	if cfg.Chain.Mode == config.ModeLegacy {
		mode = chain.VariantLegacy
	}

	controller := lifecycle.New(cfg.Lifecycle, mode, cfg.Snapshot.Path, lifecycle.Deps{
		Client:    client,
		Cache:     poolCache,
		Registry:  reg,
		Engine:    engine,
		Auditor:   auditor,
		Social:    limiter,
		Artifacts: builder,
		Metrics:   metrics,
	})
	commerceHandler := commerce.NewHandler(engine, client, reg, mode, metrics)
	server := api.New(cfg.Server.Port, reg, commerceHandler, catalog, client.WalletAddress().Hex())

	errCh := make(chan error, 3)
	go func() { errCh <- controller.Run(ctx) }()
	go func() { commerceHandler.Run(ctx); errCh <- nil }()
	go func() { errCh <- server.Run(ctx) }()

	slog.Info("agent running",
		"mode", mode, "heartbeat", cfg.Lifecycle.HeartbeatInterval.String(),
		"social_only", cfg.Lifecycle.SocialOnly)

	<-ctx.Done()
	slog.Info("shutdown signal received, draining")
	for i := 0; i < cap(errCh); i++ {
		if err := <-errCh; err != nil && err != context.Canceled {
			slog.Error("component exited with error", "err", err)
		}
	}
	slog.Info("agent stopped")
}

func logLevel() slog.Level {
	if os.Getenv("LOG_LEVEL") == "debug" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
