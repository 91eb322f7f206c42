package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/licensebot/licensebot/internal/bot"
	"github.com/licensebot/licensebot/internal/config"
	"github.com/licensebot/licensebot/internal/database"
	"github.com/licensebot/licensebot/internal/health"
	"github.com/licensebot/licensebot/internal/http/handler"
	"github.com/licensebot/licensebot/internal/http/router"
	"github.com/licensebot/licensebot/internal/observability"
	"github.com/licensebot/licensebot/internal/repository"
	"github.com/licensebot/licensebot/internal/security"
	"github.com/licensebot/licensebot/internal/service"

	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const (
	sessionIssuer   = "licensebot"
	sessionAudience = "licensebot-dashboard"
)

// Build wires the whole process from cfg. A bot token is mandatory: the
// dashboard never runs without the bot.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, lp *sdklog.LoggerProvider) (a *App, err error) {
	var cleanup []func() error
	defer func() {
		if err != nil {
			for i := len(cleanup) - 1; i >= 0; i-- {
				_ = cleanup[i]()
			}
		}
	}()

	if cfg.Discord.Token == "" {
		return nil, errors.New("DISCORD_BOT_TOKEN is required")
	}

	runtime, err := observability.InitRuntime(ctx, cfg, logger, lp)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}
	cleanup = append(cleanup, func() error { return runtime.Shutdown(context.Background()) })

	db, err := database.Open(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	cleanup = append(cleanup, func() error { return database.Close(db) })
	if err := database.Migrate(db); err != nil {
		return nil, err
	}

	store, closeStore := newSessionStore(cfg, db, logger)
	cleanup = append(cleanup, closeStore)

	licenses := service.NewLicenseService(repository.NewLicenseRepository(db), logger)
	sessions := service.NewSessionService(
		store,
		security.NewJWTManager(sessionIssuer, sessionAudience, cfg.Session.Secret),
		security.NewSecretVerifier(cfg.Admin.Password),
		cfg.Session.TTL,
	)

	readiness := health.NewProbeRunner(2*time.Second, time.Second,
		health.CheckFunc{Name: "database", Fn: func(ctx context.Context) error { return database.Ping(ctx, db) }},
		health.CheckFunc{Name: "sessions", Fn: sessions.Ping},
	)

	server := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: router.NewRouter(router.Dependencies{
			AuthHandler:    handler.NewAuthHandler(sessions, cfg.Session.CookieSecure),
			LicenseHandler: handler.NewLicenseHandler(licenses),
			Sessions:       sessions,
			Readiness:      readiness,
			StaticDir:      cfg.HTTP.StaticDir,
			EnableOTelHTTP: cfg.OTEL.TracingEnabled,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	b, reconciler, err := newBot(cfg.Discord, db, licenses, logger)
	if err != nil {
		return nil, err
	}
	a = New(cfg, logger, server, b, reconciler, runtime)

	a.OnClose(func() error { return database.Close(db) })
	a.OnClose(closeStore)
	return a, nil
}

func newSessionStore(cfg *config.Config, db *gorm.DB, logger *slog.Logger) (service.SessionStore, func() error) {
	noop := func() error { return nil }
	switch cfg.Session.Store {
	case config.SessionStoreMemory:
		logger.Warn("session store: in-memory; logins end on restart")
		return service.NewInMemorySessionStore(), noop
	case config.SessionStoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		logger.Info("session store: redis", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
		return service.NewRedisSessionStore(client, ""), func() error {
			if err := client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
				return err
			}
			return nil
		}
	default:
		logger.Info("session store: database")
		return service.NewDatabaseSessionStore(repository.NewSessionRepository(db)), noop
	}
}

func newBot(cfg config.DiscordConfig, db *gorm.DB, licenses *service.LicenseService, logger *slog.Logger) (*bot.Bot, *bot.Reconciler, error) {
	session, err := bot.NewSession(cfg.Token)
	if err != nil {
		return nil, nil, err
	}
	platform := bot.NewDiscordPlatform(session)
	roles := bot.NewMarkerRoles(platform, repository.NewGuildRepository(db), cfg.MarkerRoleName, logger)
	commands := bot.NewCommands(licenses, roles, platform, logger)
	return bot.New(session, commands, logger), bot.NewReconciler(licenses, roles, platform, logger), nil
}
