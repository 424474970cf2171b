package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"mailwatch/classifier"
	"mailwatch/config"
	"mailwatch/middleware"
	"mailwatch/relay"
	"mailwatch/routes"
	"mailwatch/store"
	"mailwatch/utils"
	"mailwatch/worker"
)

func main() {
	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := config.AppConfig

	utils.InitLogger(cfg.LogLevel, cfg.LogFormat)
	if err := utils.InitSentry(cfg.SentryDSN, cfg.Environment); err != nil {
		logrus.WithError(err).Warn("Sentry disabled")
	}
	defer utils.FlushSentry()

	logger := utils.Component("server")

	st, err := openStore(cfg)
	if err != nil {
		logger.Fatalf("Failed to open store: %v", err)
	}

	hub := relay.NewHub(relay.Options{
		SendBuffer: cfg.RelaySendBuffer,
		Logger:     utils.Component("relay"),
	})

	app := fiber.New(fiber.Config{
		AppName:               "mailwatch",
		DisableStartupMessage: true,
	})

	limiterStorage := middleware.CreateRateLimitStorage(cfg.Redis)
	routes.SetupRoutes(app, routes.Dependencies{
		Store:              st,
		Hub:                hub,
		StaticDir:          cfg.StaticDir,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		WordMutationMax:    cfg.RateLimitWordMutations,
		RateLimitStorage:   limiterStorage,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var publisher *worker.RelayPublisher
	if cfg.IMAP.Enabled() {
		publisher = worker.NewRelayPublisher(cfg.RelayURL, utils.Component("relay_publisher"))
		inboxWorker := newInboxWorker(cfg, st, publisher)
		go inboxWorker.Start(ctx)
	} else {
		logger.Info("IMAP_HOST not set, inbox monitor disabled")
	}

	go func() {
		logger.Printf("🚀 Server starting on port %s", cfg.ServerPort)
		if err := app.Listen(":" + cfg.ServerPort); err != nil {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	cancel()
	if publisher != nil {
		_ = publisher.Close()
	}
	hub.Close()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}
	if closer, ok := limiterStorage.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}

func openStore(cfg config.Config) (store.Store, error) {
	if cfg.DBDriver == config.DriverMemory {
		return store.NewMemoryStore(), nil
	}
	db, err := config.ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	return store.NewGormStore(db)
}

func newInboxWorker(cfg config.Config, st store.Store, publisher worker.Publisher) *worker.InboxWorker {
	var analyzer classifier.Analyzer
	if a := classifier.NewOpenAIAnalyzer(cfg.OpenAI, utils.Component("openai")); a != nil {
		analyzer = a
	}

	var alerter worker.Alerter
	if m := utils.NewAlertMailer(cfg.SMTP); m != nil {
		alerter = m
	}

	return worker.NewInboxWorker(
		worker.NewIMAPSource(cfg.IMAP),
		classifier.New(st, analyzer, utils.Component("classifier")),
		st,
		publisher,
		alerter,
		cfg.IMAP.PollInterval,
		utils.Component("inbox_worker"),
	)
}
