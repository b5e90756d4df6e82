// Package main starts the FormSync background agent: it connects the
// template backend, the persisted cache and the message coordinator,
// and serves the extension bridge over HTTP.
package main

import (
	"cmp"
	"context"
	"fmt"
	"time"

	nethttp "net/http"

	"github.com/formsync/extension-core/internal/config"
	"github.com/formsync/extension-core/internal/coordinator"
	"github.com/formsync/extension-core/internal/cryptofield"
	"github.com/formsync/extension-core/internal/logger"
	"github.com/formsync/extension-core/internal/store"
	"go.uber.org/zap"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	// Parse command-line and environment configuration.
	options := config.Parse()

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	// Field decoder with the backend's fixed credentials.
	decoder := cryptofield.New(cryptofield.DefaultKey, cryptofield.DefaultIV, zapLogger)

	// Backend client, file cache, and the cached read path on top.
	client := store.NewClient(options.BackendURL, options.ExtensionKey, options.UserID, decoder, zapLogger, nil)
	cache := store.NewCache(options.CachePath, zapLogger)
	service := store.NewCachedService(client, cache, zapLogger)

	// Probe the backend once at startup so misconfiguration shows up
	// immediately; the agent still starts, templates degrade to empty.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := service.Health(ctx); err != nil {
		zapLogger.Warn("backend health check failed", zap.Error(err))
	} else {
		zapLogger.Info("backend reachable", zap.String("backend", options.BackendURL))
	}
	cancel()

	// Message coordinator and its HTTP bridge.
	coord := coordinator.New(service, cache, zapLogger)
	router := coordinator.NewRouter(coord, options.ExtensionKey, zapLogger)

	server := &nethttp.Server{
		Addr:    options.ListenAddr,
		Handler: router,
	}

	zapLogger.Info("starting bridge server",
		zap.String("addr", options.ListenAddr),
		zap.String("backend", options.BackendURL))
	if err := server.ListenAndServe(); err != nil {
		zapLogger.Fatal("failed to start bridge server", zap.Error(err))
	}
}
