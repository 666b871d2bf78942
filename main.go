package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Renzo-Juli-M/proyecto-cero/internal/attendance"
	"github.com/Renzo-Juli-M/proyecto-cero/internal/config"
	"github.com/Renzo-Juli-M/proyecto-cero/internal/database"
	"github.com/Renzo-Juli-M/proyecto-cero/internal/logging"
	"github.com/Renzo-Juli-M/proyecto-cero/internal/notify"
	"github.com/Renzo-Juli-M/proyecto-cero/internal/router"

	"github.com/joho/godotenv"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	// load configuration
	cfg, err := config.Load(os.Getenv("PCERO_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	slog.SetDefault(logger)

	err = run(cfg, logger)
	if err != nil {
		logger.Error("server stopped", "error", err)
	}
	_ = logCloser.Close()
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// init database
	db, err := database.Init(cfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer database.Close(db)

	// run migrations
	if err := database.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	created, err := database.SeedAdmin(db, cfg.Admin.Username, cfg.Admin.Password, cfg.Security.BcryptCost)
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if created {
		logger.Info("admin account created", "username", cfg.Admin.Username)
	}

	// real-time notifications
	var sink notify.Publisher = notify.NewLogPublisher(logger)
	if cfg.Pusher.Enabled {
		sink = notify.NewPusherPublisher(cfg.Pusher)
		logger.Info("pusher notifications enabled", "cluster", cfg.Pusher.Cluster)
	}
	dispatcher := notify.NewDispatcher(sink, cfg.Pusher.QueueSize, logger)

	svc := attendance.NewService(db, attendance.Config{
		Secret: cfg.QR.Secret,
		Issuer: cfg.QR.Issuer,
		TTL:    cfg.QR.TTL(),
	}, dispatcher, logger)

	// setup router
	r := router.SetupRouter(cfg, db, svc, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("run server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Warn("notification queue not drained", "error", err)
	}
	return nil
}
