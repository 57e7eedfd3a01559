package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"routinely/internal/api"
	"routinely/internal/bus"
	"routinely/internal/config"
	"routinely/internal/coordinator"
	"routinely/internal/core"
	"routinely/internal/logging"
	routinelymcp "routinely/internal/mcp"
	"routinely/internal/notify"
	"routinely/internal/store"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	logger := logging.New(cfg.Log.Level)

	baseCtx := context.Background()
	storeInst, err := store.Open(baseCtx, cfg.StateDir)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer storeInst.DB.Close()

	events := bus.New()
	dispatcher := buildDispatcher(cfg, logger)
	engine := core.NewEngine(storeInst, dispatcher, events, logger)
	coord := coordinator.New(engine, storeInst, events, logger)

	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	go coord.Run(ctx)

	switch cfg.Mode {
	case "http", "":
		runHTTPMode(cfg, storeInst, engine, coord, dispatcher, logger, cancel)
	case "mcp":
		runMCPMode(storeInst, engine, coord, logger, cancel)
	case "both":
		runBothMode(cfg, storeInst, engine, coord, dispatcher, logger, cancel)
	default:
		logger.Error("invalid mode", "mode", cfg.Mode, "valid", []string{"http", "mcp", "both"})
		os.Exit(1)
	}
}

// buildDispatcher wires the configured delivery channels. Returns a dispatcher
// with zero channels when nothing is configured; sends then just no-op.
func buildDispatcher(cfg *config.Config, logger *slog.Logger) *notify.Dispatcher {
	var channels []notify.Channel

	if cfg.Notification.Webhook.Enabled {
		webhook, err := notify.NewWebhookChannel(cfg.Notification.Webhook.URL)
		if err != nil {
			logger.Warn("webhook channel disabled", "err", err)
		} else {
			channels = append(channels, webhook)
		}
	}
	if cfg.Notification.Telegram.Enabled {
		telegram, err := notify.NewTelegramChannel(cfg.Notification.Telegram.Token, cfg.Notification.Telegram.ChatIDs)
		if err != nil {
			logger.Warn("telegram channel disabled", "err", err)
		} else {
			channels = append(channels, telegram)
		}
	}
	if cfg.Notification.Voice.Enabled {
		voice, err := notify.NewVoiceChannel(cfg.Notification.Voice.URL)
		if err != nil {
			logger.Warn("voice channel disabled", "err", err)
		} else {
			channels = append(channels, voice)
		}
	}

	logger.Info("notification channels configured", "count", len(channels))
	return notify.NewDispatcher(logger, channels...)
}

// runHTTPMode starts only the HTTP server.
func runHTTPMode(cfg *config.Config, st *store.Store, engine *core.Engine, coord *coordinator.Coordinator, notifier core.Notifier, logger *slog.Logger, cancel context.CancelFunc) {
	server, err := api.NewServer(cfg.Server.Addr, cfg.Server.AuthToken, st, engine, coord, notifier, logger)
	if err != nil {
		logger.Error("create server", "err", err)
		os.Exit(1)
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server error", "err", err)
	}

	shutdown(cfg, server, engine, logger, cancel)
}

// runMCPMode starts only the MCP server.
func runMCPMode(st *store.Store, engine *core.Engine, coord *coordinator.Coordinator, logger *slog.Logger, cancel context.CancelFunc) {
	mcpServer := routinelymcp.NewMCPServer(st, engine, coord, logger)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigs
		logger.Info("received signal, shutting down...")
		cancel()
	}()

	if err := mcpServer.Run(); err != nil {
		logger.Error("mcp server error", "err", err)
		os.Exit(1)
	}
}

// runBothMode starts both HTTP and MCP servers.
func runBothMode(cfg *config.Config, st *store.Store, engine *core.Engine, coord *coordinator.Coordinator, notifier core.Notifier, logger *slog.Logger, cancel context.CancelFunc) {
	mcpServer := routinelymcp.NewMCPServer(st, engine, coord, logger)
	mcpErr := make(chan error, 1)
	go func() {
		if err := mcpServer.Run(); err != nil {
			mcpErr <- err
		}
	}()

	server, err := api.NewServer(cfg.Server.Addr, cfg.Server.AuthToken, st, engine, coord, notifier, logger)
	if err != nil {
		logger.Error("create server", "err", err)
		os.Exit(1)
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server error", "err", err)
	case err := <-mcpErr:
		logger.Error("mcp server error", "err", err)
	}

	shutdown(cfg, server, engine, logger, cancel)
}

// shutdown pauses any active session so no time drifts during restart, then
// stops the HTTP server.
func shutdown(cfg *config.Config, server *api.Server, engine *core.Engine, logger *slog.Logger, cancel context.CancelFunc) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()

	if engine.IsActive() {
		engine.Pause(shutdownCtx)
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "err", err)
	}
	cancel()
	logger.Info("shutdown complete")
}
