package gateway

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/tinyland-inc/reefbot/cmd/reefbot/internal"
	"github.com/tinyland-inc/reefbot/pkg/bus"
	"github.com/tinyland-inc/reefbot/pkg/command"
	"github.com/tinyland-inc/reefbot/pkg/config"
	"github.com/tinyland-inc/reefbot/pkg/dispatch"
	gw "github.com/tinyland-inc/reefbot/pkg/gateway"
	"github.com/tinyland-inc/reefbot/pkg/health"
	"github.com/tinyland-inc/reefbot/pkg/logger"
	"github.com/tinyland-inc/reefbot/pkg/ratelimit"
	"github.com/tinyland-inc/reefbot/pkg/security"
	"github.com/tinyland-inc/reefbot/pkg/session"
	"github.com/tinyland-inc/reefbot/pkg/store"
	"github.com/tinyland-inc/reefbot/pkg/transport"
)

func gatewayCmd(debug bool) error {
	if debug {
		logger.SetLevel(logger.DEBUG)
		fmt.Println("🔍 Debug mode enabled")
	}

	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	provider, err := internal.CreateProvider(cfg)
	if err != nil {
		return fmt.Errorf("error creating provider: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cache, err := openCache(ctx, cfg)
	if err != nil {
		return fmt.Errorf("error connecting to redis: %w", err)
	}
	defer cache.Close()

	sessions := session.NewStore(cache, session.Options{
		MaxTurns:   cfg.Session.MaxTurns,
		SessionTTL: cfg.Session.SessionTTL(),
		PendingTTL: cfg.Session.PendingTTL(),
	})
	limiter := ratelimit.NewLimiter(cfg.Pipeline.RateWindow(), cfg.Pipeline.RateMaxEvents)
	gate := security.NewGate(security.Config{
		Blacklist:     cfg.Security.Blacklist,
		Whitelist:     cfg.Security.Whitelist,
		WhitelistOnly: cfg.Security.WhitelistOnly,
		AdminOnly:     cfg.Security.AdminOnly,
		Admins:        cfg.Security.Admins,
		MaxBodyLength: cfg.Security.MaxBodyLength,
	})

	eb := bus.NewEventBus()
	transports := buildTransports(cfg, eb)
	if len(transports) == 0 {
		fmt.Println("⚠ Warning: no channels enabled, the gateway will sit idle")
	} else {
		names := make([]string, 0, len(transports))
		for name := range transports {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Printf("✓ Channels enabled: %v\n", names)
	}

	stats := gw.NewAggregateStats()
	registry := command.NewRegistry()
	if err := dispatch.RegisterBuiltins(registry, provider, sessions, stats,
		internal.GetVersion(), transports, dispatch.AIOptions{
			Model:        cfg.Provider.Model,
			SystemPrompt: cfg.Session.SystemPrompt,
			MaxTokens:    cfg.Provider.MaxTokens,
			Temperature:  cfg.Provider.Temperature,
		}); err != nil {
		return fmt.Errorf("error registering commands: %w", err)
	}

	dispatcher := dispatch.NewDispatcher(registry, gate, limiter, sessions, transports, stats,
		dispatch.Options{
			HandlerTimeout:  cfg.Pipeline.HandlerTimeout(),
			DefaultCooldown: cfg.Pipeline.DefaultCooldown(),
		})

	orch := gw.NewOrchestrator(eb, dispatcher, transports, sessions, limiter, cache, stats,
		gw.Options{
			StatsSchedule:   cfg.Maintenance.StatsSchedule,
			HealthInterval:  cfg.Maintenance.HealthInterval(),
			CleanupInterval: cfg.Maintenance.CleanupInterval(),
			ShutdownGrace:   cfg.Pipeline.ShutdownGrace(),
		})
	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("error starting orchestrator: %w", err)
	}

	healthServer := health.NewServer(cfg.Gateway.Host, cfg.Gateway.Port, orch, stats, internal.GetVersion())
	if err := healthServer.Start(); err != nil {
		fmt.Printf("⚠ Health server failed to start: %v\n", err)
	} else {
		fmt.Printf("✓ Health endpoints available at http://%s:%d/health and /ready\n",
			cfg.Gateway.Host, cfg.Gateway.Port)
	}

	fmt.Println("✓ Gateway started")
	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
	_ = healthServer.Stop(context.Background())
	_ = orch.Stop(context.Background())
	fmt.Println("✓ Gateway stopped")

	return nil
}

// openCache connects to redis when configured. A configured store that
// cannot be reached is a startup failure; without one the in-process
// cache is used.
func openCache(ctx context.Context, cfg *config.Config) (store.Cache, error) {
	if cfg.Store.RedisAddr == "" {
		return store.NewMemoryCache(), nil
	}
	cache, err := store.NewRedisCache(ctx, cfg.Store.RedisAddr, cfg.Store.RedisPassword,
		cfg.Store.RedisDB, cfg.Store.KeyPrefix)
	if err != nil {
		logger.ErrorCF("gateway", "Redis unavailable", map[string]any{
			"addr": cfg.Store.RedisAddr, "error": err.Error(),
		})
		return nil, err
	}
	fmt.Printf("✓ Session mirror on redis at %s\n", cfg.Store.RedisAddr)
	return cache, nil
}

func buildTransports(cfg *config.Config, eb *bus.EventBus) map[string]transport.Transport {
	transports := make(map[string]transport.Transport)
	if cfg.Channels.Discord.Enabled {
		tr := transport.NewDiscord(transport.DiscordConfig{Token: cfg.Channels.Discord.Token}, eb)
		transports[tr.Name()] = tr
	}
	if cfg.Channels.Bridge.Enabled {
		tr := transport.NewBridge(transport.BridgeConfig{URL: cfg.Channels.Bridge.URL}, eb)
		transports[tr.Name()] = tr
	}
	return transports
}
