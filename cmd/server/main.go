package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"bookworm/internal/app"
	"bookworm/internal/call"
	"bookworm/internal/call/provider"
	"bookworm/internal/config"
	"bookworm/internal/match"
	"bookworm/internal/quota"
	"bookworm/internal/ratelimit"
	"bookworm/internal/server"
	"bookworm/internal/util"
	"bookworm/internal/webhook"
	"bookworm/pkg/domain"
	"bookworm/pkg/notify"
	"bookworm/pkg/storage"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	sessionTTL, err := config.ParseSessionTTL(cfg.SessionTTL)
	if err != nil {
		log.Fatalf("failed to parse session TTL: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	var avatars storage.ObjectStore
	if cfg.MinioEndpoint != "" {
		avatars, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey,
			cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			util.Fatal("failed to init object storage", "err", err)
		}
	}

	appCore, err := app.New(app.Config{
		DatabaseURL:   cfg.DatabaseURL,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		SessionTTL:    sessionTTL,
		Avatars:       avatars,
	})
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}

	var publisher notify.Publisher = notify.NoopPublisher{}
	if cfg.AMQPURL != "" {
		amqpPub, err := notify.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			util.Fatal("failed to connect to broker", "err", err)
		}
		defer amqpPub.Close()
		publisher = amqpPub
	}

	fallback := domain.ProviderDaily
	if cfg.DefaultProvider != "" {
		fallback = domain.VoipProvider(strings.ToUpper(cfg.DefaultProvider))
	}
	registry := provider.NewRegistry(fallback)
	registry.Register(provider.NewDailyAdapter(cfg.Providers.DailyAPIKey, cfg.Providers.DailyBaseURL))
	registry.Register(provider.NewLiveKitAdapter(cfg.Providers.LiveKitAPIKey, cfg.Providers.LiveKitAPISecret))
	registry.Register(provider.NewAgoraAdapter(cfg.Providers.AgoraAppID, cfg.Providers.AgoraAppCert))
	registry.Register(provider.NewTwilioAdapter(cfg.Providers.TwilioAccountSID, cfg.Providers.TwilioAuthToken,
		cfg.Providers.TwilioAPIKey, cfg.Providers.TwilioAPISecret, cfg.Providers.TwilioBaseURL))

	tracker := quota.NewTracker(appCore.Store())
	engine := match.NewEngine(appCore.Store(), tracker, publisher, logger)
	calls := call.NewManager(appCore.Store(), registry, publisher, logger)
	webhooks := webhook.NewNormalizer(appCore.Store(), calls, webhook.Secrets{
		Daily:   cfg.Providers.DailyWebhookSecret,
		LiveKit: cfg.Providers.LiveKitWebhookSecret,
		Agora:   cfg.Providers.AgoraWebhookToken,
	}, logger)

	trustedProxies, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		util.Fatal("failed to parse trusted proxies", "err", err)
	}

	httpServer := server.New(server.Config{
		App:            appCore,
		Matches:        engine,
		Calls:          calls,
		Quota:          tracker,
		Webhooks:       webhooks,
		CronSecret:     cfg.CronSecret,
		AuthLimiter:    newLimiter(cfg, "rl:auth", cfg.AuthRateLimitPerMinute),
		MatchLimiter:   newLimiter(cfg, "rl:match", cfg.MatchRateLimitPerMinute),
		WebhookLimiter: newLimiter(cfg, "rl:webhook", cfg.WebhookRateLimitPerMinute),
		TrustedProxies: trustedProxies,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  server.ReadTimeout,
		WriteTimeout: server.WriteTimeout,
		IdleTimeout:  server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", addr, "voip_provider", registry.Default())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
	}
}

// newLimiter builds a Redis-backed limiter, or nil when the limit is unset.
func newLimiter(cfg config.FileConfig, prefix string, perMinute int) *ratelimit.FixedWindowLimiter {
	if perMinute <= 0 {
		return nil
	}
	limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, perMinute, time.Minute)
	if err != nil {
		util.Fatal("failed to init rate limiter", "err", err)
	}
	return limiter
}
