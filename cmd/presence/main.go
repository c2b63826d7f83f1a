package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"quillroom/internal/core/services"
	"quillroom/internal/infrastructure/directory"
	"quillroom/internal/infrastructure/distributed"
	"quillroom/internal/infrastructure/middleware"
	"quillroom/internal/infrastructure/monitoring"
	presenceinfra "quillroom/internal/infrastructure/presence"
	"quillroom/internal/infrastructure/reliability"
	repositories "quillroom/internal/infrastructure/repositories"
	"quillroom/pkg/circuitbreaker"
	"quillroom/pkg/config"
	"quillroom/pkg/logger"
	"quillroom/pkg/utils"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/quillroom/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	documentRepo := repoFactory.CreateDocumentRepository()
	membershipRepo := repoFactory.CreateMembershipRepository()

	directoryClient, err := directory.NewClient(directory.ClientOptions{
		BaseURL:        cfg.Directory.BaseURL,
		SecretKey:      cfg.Directory.SecretKey,
		RequestTimeout: cfg.Directory.RequestTimeout,
		RetryAttempts:  cfg.Directory.RetryAttempts,
	}, log)
	if err != nil {
		log.Fatalw("failed to create directory client", "error", err)
	}
	guardedDirectory := reliability.NewDirectoryClientWrapper(directoryClient, circuitbreaker.DefaultConfig(), log)

	directoryService := services.NewDirectoryService(guardedDirectory, cfg.Directory.ProfileCacheTTL, log)
	accessService := services.NewAccessService(documentRepo, membershipRepo, directoryService, log)
	presenceService := services.NewPresenceService(
		directoryService,
		cfg.Presence.SettleDelay,
		cfg.Presence.SnapshotBuffer,
		log,
	)
	authService := services.NewAuthService(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
	)

	// Membership changes made on other instances refresh local rooms so
	// revoked viewers lose identity visibility without a reconnect.
	if client := repoFactory.RedisClient(); client != nil {
		eventBus := distributed.NewEventBus(client, utils.GenerateID("presence"), log)
		defer eventBus.Close()

		go func() {
			err := eventBus.Subscribe(context.Background(), func(event *distributed.Event) error {
				presenceService.Refresh(event.DocumentID)
				return nil
			})
			if err != nil && err != context.Canceled {
				log.Warnw("event bus subscription ended", "error", err)
			}
		}()
	}

	prometheusCollector := monitoring.NewPrometheusCollector()
	wsLimits := middleware.NewWebSocketLimits(cfg)

	wsServer := presenceinfra.NewWebSocketServer(
		accessService,
		presenceService,
		documentRepo,
		authService,
		wsLimits,
		prometheusCollector,
		presenceinfra.Options{
			PingInterval:   cfg.Presence.PingInterval,
			PongTimeout:    cfg.Presence.PongTimeout,
			AllowedOrigins: cfg.Auth.AllowedOrigins,
		},
		log,
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsServer.HandleWebSocket)
	mux.HandleFunc("/health", wsServer.HealthCheck)
	if cfg.Monitoring.PrometheusEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	srv := &http.Server{
		Addr:    cfg.Presence.Address,
		Handler: mux,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting Quillroom presence server on %s", cfg.Presence.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Presence.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
	}

	log.Info("Quillroom presence server stopped")
}
