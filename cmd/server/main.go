// Command server runs the refund-monitoring API: portal check orchestration,
// case status tracking, staleness alarms, and the admin HTTP surface.
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

	"github.com/cotte4/portal-jai1-backend-sub001/internal/config"
	"github.com/cotte4/portal-jai1-backend-sub001/internal/extract"
	httpapi "github.com/cotte4/portal-jai1-backend-sub001/internal/http"
	"github.com/cotte4/portal-jai1-backend-sub001/internal/notify"
	"github.com/cotte4/portal-jai1-backend-sub001/internal/observability"
	"github.com/cotte4/portal-jai1-backend-sub001/internal/portal"
	"github.com/cotte4/portal-jai1-backend-sub001/internal/repo"
	"github.com/cotte4/portal-jai1-backend-sub001/internal/secrets"
	"github.com/cotte4/portal-jai1-backend-sub001/internal/services"
	"github.com/cotte4/portal-jai1-backend-sub001/internal/storage"
	"github.com/cotte4/portal-jai1-backend-sub001/internal/sysutil"
	"github.com/cotte4/portal-jai1-backend-sub001/internal/vision"
)

const version = "1.0.0"

func main() {
	// Local development convenience; in deployment env comes from the platform.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Info().Str("version", version).Str("port", cfg.Port).Msg("starting refund monitor")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(c); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	// Persistence
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database failed")
	}

	// Identifier decryption. Checks cannot run without it; fail fast rather
	// than discover the missing key on the first lookup.
	box, err := secrets.New(cfg.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("ENCRYPTION_KEY invalid or missing")
	}

	// Browser engine: stealth preferred, plain fallback, resolved once.
	engine, err := portal.Resolve(portal.Config{
		BrowserPath: cfg.Checks.BrowserPath,
		Headless:    cfg.Checks.Headless,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("no usable browser engine")
	}
	log.Info().Str("engine", engine.Name()).Msg("browser engine resolved")

	// Screenshot storage is optional; without it checks still run, they just
	// carry no screenshot reference.
	var store storage.ScreenshotStore
	if cfg.Storage.Endpoint != "" {
		ms, err := storage.NewMinioStore(ctx, cfg.Storage.Endpoint, cfg.Storage.AccessKey, cfg.Storage.SecretKey, cfg.Storage.Bucket, cfg.Storage.UseSSL)
		if err != nil {
			log.Fatal().Err(err).Str("endpoint", cfg.Storage.Endpoint).Msg("screenshot storage unavailable")
		}
		ms.UploadTimeout = cfg.Storage.UploadTimeout
		store = ms
	} else {
		log.Warn().Msg("no screenshot storage configured; checks run without screenshots")
	}

	automator := &portal.Automator{
		Engine:       engine,
		Store:        store,
		FederalURL:   cfg.Checks.FederalURL,
		StateURL:     cfg.Checks.StateURL,
		NavTimeout:   cfg.Checks.NavTimeout,
		CheckTimeout: cfg.Checks.CheckTimeout,
		Log:          log.With().Str("component", "automator").Logger(),
	}

	extractor := &extract.Extractor{
		Timeout: cfg.Vision.Timeout,
		Log:     log.With().Str("component", "extract").Logger(),
	}
	if cfg.Vision.Enabled {
		extractor.Vision = vision.New(cfg.Vision.APIKey, cfg.Vision.BaseURL, cfg.Vision.Model, cfg.Vision.Timeout)
	} else {
		log.Warn().Msg("vision extraction disabled; using text fallback only")
	}

	var notifier notify.Notifier
	if cfg.NotifyWebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.NotifyWebhookURL, 10*time.Second)
	} else {
		notifier = &notify.LogNotifier{Log: log.With().Str("component", "notify").Logger()}
	}

	checkSvc := services.NewCheckService(db, automator, extractor, notifier, box, store)
	checkSvc.FederalAutoApply = cfg.Checks.FederalAutoApply
	checkSvc.StateAutoApply = cfg.Checks.StateAutoApply
	checkSvc.RetryDelay = cfg.Checks.RetryDelay
	checkSvc.Log = log.With().Str("component", "checks").Logger()

	// HTTP transport
	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, checkSvc, cfg)

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
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()
	log.Info().Str("addr", srv.Addr).Str("base_path", cfg.APIBasePath).Msg("listening")

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
