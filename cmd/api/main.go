package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anime-shed/image-editor-go/internal/config"
	"github.com/anime-shed/image-editor-go/internal/container"
	"github.com/anime-shed/image-editor-go/internal/logger"
)

func main() {
	// Load .env file if present
	config.LoadDotEnv()

	// Load configuration
	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load config")
	}

	// Initialize dependency injection container
	c, err := container.NewContainer(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize container")
	}
	defer c.Close()

	// Get HTTP handler from container (already configured with all dependencies)
	handler := c.Handler()

	// Create HTTP server with configurable timeouts
	server := &http.Server{
		Addr:              cfg.ServerAddress(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.RequestTimeout,
		WriteTimeout:      cfg.RequestTimeout,
	}
	// Event streams never finish on their own
	server.RegisterOnShutdown(c.CloseStreams)

	// Start server in a goroutine
	go func() {
		logger.WithFields(logrus.Fields{
			"address":      cfg.ServerAddress(),
			"timeout":      cfg.RequestTimeout,
			"backend_url":  cfg.BackendURL,
			"backend_mode": cfg.BackendMode,
			"storage":      cfg.StorageType,
		}).Info("Starting HTTP server")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// A running batch is stopped so its items settle and the job is recorded.
	editor := c.Editor()
	if job, err := editor.CancelBatch(); err == nil {
		waitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if _, err := editor.WaitJob(waitCtx, job.ID); err != nil {
			logger.WithError(err).WithField("job_id", job.ID).Warn("Batch job did not settle before shutdown")
		}
		cancel()
	}

	// Create a deadline for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Attempt graceful shutdown
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
