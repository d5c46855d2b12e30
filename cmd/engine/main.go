// Command engine runs the unattended strategy execution engine: a
// single scheduler that resolves one market snapshot per cycle and
// trades every active agent sequentially.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/alphapilot/internal/config"
	"github.com/ajitpratap0/alphapilot/internal/engine"
	"github.com/ajitpratap0/alphapilot/internal/exchange"
	"github.com/ajitpratap0/alphapilot/internal/market"
	"github.com/ajitpratap0/alphapilot/internal/metrics"
	"github.com/ajitpratap0/alphapilot/internal/signer"
	"github.com/ajitpratap0/alphapilot/internal/store"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: ./configs/config.yaml)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Printf("%s %s\n", cfg.App.Name, cfg.App.Version)
		return
	}

	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	log.Info().
		Str("version", cfg.App.Version).
		Str("environment", cfg.App.Environment).
		Str("mode", cfg.Exchange.Mode).
		Str("symbol", cfg.Engine.Symbol).
		Msg("Starting AlphaPilot engine")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Engine exited with error")
	}
	log.Info().Msg("Engine shut down cleanly")
}

func run(ctx context.Context, cfg *config.Config) error {
	pair := exchange.Market{
		Symbol:     cfg.Engine.Symbol,
		BaseAsset:  cfg.Engine.BaseAsset,
		QuoteAsset: cfg.Engine.QuoteAsset,
	}

	var gateway exchange.Gateway
	if cfg.Exchange.Mode == "paper" {
		gateway = exchange.NewMockGateway(pair)
	} else {
		gateway = exchange.NewBinanceGateway(pair, cfg.Exchange, config.NewLogger("exchange"))
	}
	gateway = exchange.WithCallTimeout(gateway, cfg.Engine.CallTimeout)

	pool, err := pgxpool.New(ctx, cfg.Database.GetDSN())
	if err != nil {
		return fmt.Errorf("failed to create database pool: %w", err)
	}
	defer pool.Close()
	agents := store.NewAgentStoreWithPool(pool)

	var cache *market.SnapshotCache
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetRedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		cancel()
		cache = market.NewSnapshotCache(redisClient, cfg.Engine.SnapshotTTL)
		log.Info().Str("host", cfg.Redis.Host).Msg("Snapshot cache enabled")
	}

	var creds signer.Resolver
	if cfg.Exchange.Mode == "paper" {
		creds = &signer.StaticResolver{Creds: exchange.Credentials{APIKey: "paper", APISecret: "paper"}}
	} else {
		vaultResolver, err := signer.NewVaultResolver(cfg.Vault)
		if err != nil {
			return fmt.Errorf("failed to create Vault resolver: %w", err)
		}
		creds = vaultResolver
	}

	resolver := market.NewResolver(gateway, cache, cfg.Engine)
	cooldowns := engine.NewTracker(cfg.Engine.BuyCooldown, cfg.Engine.SellCooldown)
	eng := engine.New(gateway, resolver, agents, creds, cooldowns, cfg.Strategies, cfg.Engine.TransferBuffer)
	scheduler := engine.NewScheduler(eng, cfg.Engine.CycleInterval)

	var metricsServer *metrics.Server
	if cfg.Monitoring.EnableMetrics {
		metricsServer = metrics.NewServer(
			cfg.Monitoring.PrometheusPort,
			func() interface{} { return scheduler.Status() },
			config.NewLogger("metrics"),
		)
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		scheduler.Start(gctx)
		<-gctx.Done()
		log.Info().Msg("Shutdown signal received, stopping scheduler")
		scheduler.Stop()
		return nil
	})

	if metricsServer != nil {
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}
