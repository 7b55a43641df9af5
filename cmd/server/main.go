// Command server runs the premium entitlement bot: a Gin HTTP server that
// receives Telegram webhook updates, routes them through the session state
// machine, and persists entitlement state in SQLite.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-premium-bot/internal/config"
	httpapi "github.com/tbourn/go-premium-bot/internal/http"
	"github.com/tbourn/go-premium-bot/internal/observability"
	"github.com/tbourn/go-premium-bot/internal/repo"
	"github.com/tbourn/go-premium-bot/internal/services"
	"github.com/tbourn/go-premium-bot/internal/sysutil"
	"github.com/tbourn/go-premium-bot/internal/telegram"
)

// version is stamped into traces; overridden at build time via -ldflags.
var version = "dev"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown failed")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if cfg.OTEL.Enabled {
		if err := repo.EnableTracing(db); err != nil {
			log.Warn().Err(err).Msg("gorm tracing plugin failed")
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	tele, err := telegram.New(cfg.BotToken, cfg.AdminID)
	if err != nil {
		log.Fatal().Err(err).Msg("telegram client failed")
	}

	keys := services.NewKeyService(db)
	keys.TokenLength = cfg.KeyTokenLength
	admin := services.NewAdminService(db, keys, tele, cfg.AdminID)
	session := services.NewSessionService(db, keys, admin, tele, cfg.DevContact)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, session, tele, cfg)

	if cfg.PublicURL != "" {
		if err := tele.RemoveWebhook(ctx); err != nil {
			log.Warn().Err(err).Msg("webhook removal failed")
		}
		if err := tele.InstallWebhook(ctx, cfg.PublicURL, cfg.BotToken); err != nil {
			log.Error().Err(err).Msg("webhook installation failed")
		} else {
			log.Info().Str("base_url", cfg.PublicURL).Msg("webhook installed")
		}
	} else {
		log.Info().Msg("PUBLIC_URL not set, skipping webhook installation")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
