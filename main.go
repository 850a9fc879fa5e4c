package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"imvqa/internal/config"
	"imvqa/internal/container"
	"imvqa/ui"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Load application configuration
	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := run(appConfig); err != nil {
		log.Printf("Server stopped: %v", err)
		os.Exit(1)
	}
}

// run serves until a signal arrives or a listener fails. The container is
// shut down on every return path.
func run(appConfig *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Create dependency injection container
	appContainer, err := container.New(appConfig)
	if err != nil {
		return fmt.Errorf("failed to create application container: %w", err)
	}
	logger := appContainer.Logger.WithComponent("Main")
	defer func() {
		if err := appContainer.Shutdown(context.Background()); err != nil {
			logger.Warn("container shutdown: %v", err)
		}
	}()
	if err := appContainer.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize container: %w", err)
	}

	server := ui.NewServer(appContainer.Service, ui.Config{
		Addr:           ":" + appConfig.Server.Port,
		GinMode:        appConfig.Server.GinMode,
		MaxUploadBytes: appConfig.Server.MaxUploadBytes,
		Logger:         appContainer.Logger,
	})

	var ops *ui.App
	if appConfig.Ops.Enabled {
		ops = ui.NewApp(ui.OpsConfig{Addr: ":" + appConfig.Ops.Port, Logger: appContainer.Logger}, appContainer.Metrics, map[string]ui.HealthCheck{
			"database": appContainer.HealthCheck,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	if ops != nil {
		g.Go(ops.Start)
	}

	// Idle sessions hold whole uploads in memory
	if appConfig.Server.SessionTTL > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(appConfig.Server.SessionTTL / 4)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					appContainer.Service.PruneSessions()
				}
			}
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		logger.Info("shutting down")
		if ops != nil {
			if err := ops.Shutdown(shutdownCtx); err != nil {
				logger.Warn("ops shutdown: %v", err)
			}
		}
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
