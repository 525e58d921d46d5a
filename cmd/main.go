package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ngoyal88/studybuddy-relay/pkg/api"
	"github.com/ngoyal88/studybuddy-relay/pkg/config"
	"github.com/ngoyal88/studybuddy-relay/pkg/ledger"
	"github.com/ngoyal88/studybuddy-relay/pkg/ratelimit"
	"github.com/ngoyal88/studybuddy-relay/pkg/redisstore"
	"github.com/ngoyal88/studybuddy-relay/pkg/relay"
	"github.com/ngoyal88/studybuddy-relay/pkg/telemetry"
	"github.com/ngoyal88/studybuddy-relay/pkg/upstream"
)

var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("relay stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load Config with hot reload
	cfgStore, err := config.LoadAndWatch()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := cfgStore.Get()

	setupLogger(cfg.Server.LogLevel)
	if cfg.Upstream.APIKey == "" {
		slog.Warn("no upstream API key configured, set OPENAI_API_KEY")
	}

	// 2. Tracing
	shutdownTelemetry, err := telemetry.Init(ctx, version, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			slog.Error("telemetry shutdown failed", "error", err)
		}
	}()

	// 3. Initialize Redis (if enabled)
	var rdb *redisstore.Client
	if cfg.Redis.Enabled {
		rdb, err = redisstore.New(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		fmt.Println("✅ Connected to Redis successfully!")
	}

	// 4. Admission control (distributed if Redis is the backend)
	limitOpts := limiterOptions(cfg)
	var limiter ratelimit.Limiter
	if cfg.RateLimit.Backend == "redis" {
		limiter = ratelimit.NewRedisLimiter(rdb.Redis(), limitOpts)
	} else {
		fw := ratelimit.NewFixedWindow(limitOpts)
		fw.StartSweeper(cfg.RateLimit.SweepInterval)
		defer fw.Close()
		limiter = fw
	}
	fmt.Printf("✅ Rate limiting (%s): %d requests per %s\n",
		cfg.RateLimit.Backend, cfg.RateLimit.MaxPerWindow, cfg.RateLimit.Window)

	if cfg.RateLimit.GlobalRPS > 0 {
		limiter = ratelimit.WithCeiling(limiter, cfg.RateLimit.GlobalRPS, cfg.RateLimit.GlobalBurst)
		fmt.Printf("✅ Global ceiling: %.1f req/s (burst: %d)\n", cfg.RateLimit.GlobalRPS, cfg.RateLimit.GlobalBurst)
	}

	// 5. Upstream behind a circuit breaker
	breaker := upstream.NewBreaker(
		upstream.NewOpenAI(cfg.Upstream.APIKey, cfg.Upstream.BaseURL),
		upstream.BreakerSettings{Name: "openai"},
	)
	fmt.Printf("✅ Upstream: %s (model: %s)\n", cfg.Upstream.BaseURL, cfg.Upstream.Model)

	// 6. Usage ledger and relay
	usage := ledger.New(cfg.Ledger.Capacity)
	rel := relay.New(limiter, breaker, usage, relay.OptionsFromConfig(cfg))

	cfgStore.OnChange(func(next *config.Config) {
		rel.Reconfigure(relay.OptionsFromConfig(next))
		if rc, ok := limiter.(ratelimit.Reconfigurable); ok {
			rc.SetOptions(limiterOptions(next))
		}
		if err := usage.Resize(next.Ledger.Capacity); err != nil {
			slog.Error("ledger resize failed", "capacity", next.Ledger.Capacity, "error", err)
		}
	})

	deps := api.Deps{Relay: rel, Usage: usage, Circuit: breaker}
	if rdb != nil {
		deps.Redis = rdb
	}

	// 7. Setup HTTP Server
	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Println("\n🚀 Relay Features Active:")
	fmt.Println("   - Chat:            http://localhost" + cfg.Server.Port + "/api/chat")
	fmt.Println("   - Dashboard:       http://localhost" + cfg.Server.Port + "/api/dashboard")
	fmt.Println("   - Metrics:         http://localhost" + cfg.Server.Port + "/metrics")
	fmt.Println("   - Health Check:    http://localhost" + cfg.Server.Port + "/health")
	fmt.Println("\n📊 Configuration can be hot-reloaded by editing configs/config.yaml")
	fmt.Printf("\n🎯 Server listening on %s\n", cfg.Server.Port)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func setupLogger(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}

func limiterOptions(cfg *config.Config) ratelimit.Options {
	return ratelimit.Options{
		Window:        cfg.RateLimit.Window,
		MaxPerWindow:  cfg.RateLimit.MaxPerWindow,
		MaxIdentities: cfg.RateLimit.MaxIdentities,
	}
}
