package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"capillaire/internal/app"
	"capillaire/internal/config"
	"capillaire/internal/logging"
	"capillaire/internal/server"
	"capillaire/internal/telegram"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if cfg.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Connect to Telegram
	api, err := telegram.Connect(cfg.TelegramBotToken, cfg.TelegramWebhookURL, logger)
	if err != nil {
		logger.Errorf("Failed to initialize Telegram Bot: %v", err)
		os.Exit(1)
	}

	// 3. Initialize storage, generation and metrics
	a, err := app.New(ctx, cfg, logger, app.WithObserver(telegram.NewAlerter(api, cfg.AdminTelegramID, logger)))
	if err != nil {
		logger.Errorf("Failed to initialize app: %v", err)
		os.Exit(1)
	}
	defer a.Close()

	// 4. Journeys and the bot
	registry := telegram.NewRegistry(ctx, telegram.JourneyDeps{
		Generator:   a.Gateway,
		Writer:      a.Writer,
		Repos:       a.Repos,
		Preferences: a.Preferences,
		Tokens:      a.AuthSessions,
		Issuer:      a.Issuer,
		Watchdog:    cfg.SessionWatchdog,
		Collectors:  a.Collectors,
	}, logger)
	defer registry.Close()

	bot := telegram.NewBot(api, registry, a.Assistant, a.Metrics, telegram.Options{
		AdminID:         cfg.AdminTelegramID,
		DataDir:         a.DataDir(),
		ExportTaskCount: cfg.ExportTaskCount,
	}, logger)
	go bot.Run(ctx)

	go sweepSessions(ctx, a, logger)

	// 5. Start Server with Graceful Shutdown
	router := server.NewRouter(server.Deps{
		Plans:           a.Repos.Plans,
		Subscriptions:   a.Repos.Subscriptions,
		Issuer:          a.Issuer,
		Generator:       a.Gateway,
		Tipper:          a.Assistant,
		Webhook:         bot,
		Gatherer:        a.Registry,
		Collectors:      a.Collectors,
		DatabasePath:    cfg.DatabasePath,
		ExportTaskCount: cfg.ExportTaskCount,
		Logger:          logger,
	})
	srv := server.NewHTTPServer(":"+cfg.Port, router)

	go func() {
		logger.Infof("Capillaire server listening on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exiting")
}

// sweepSessions deletes expired chat sessions once an hour.
func sweepSessions(ctx context.Context, a *app.App, logger logging.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n, err := a.AuthSessions.CleanupExpired(ctx)
			if err != nil {
				logger.Warnf("Warning: session cleanup failed: %v", err)
				continue
			}
			if n > 0 {
				logger.Infof("Removed %d expired sessions", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
