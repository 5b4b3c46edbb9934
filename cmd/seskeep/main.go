// Command seskeep runs the session keeper as a daemon.
//
// Usage:
//
//	seskeep -config seskeep.yaml          # admin HTTP surface from YAML config
//	seskeep -config seskeep.yaml -mcp     # additionally serve MCP tools on stdio
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/seskeep/seskeep"
)

func main() {
	configPath := flag.String("config", "", "path to seskeep.yaml config file")
	adminAddr := flag.String("admin", "", "admin listen address (overrides config)")
	mcpStdio := flag.Bool("mcp", false, "serve MCP tools on stdio")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *adminAddr, *mcpStdio); err != nil {
		logger.Error("seskeep: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, adminAddr string, mcpStdio bool) error {
	cfg := &seskeep.Config{}
	if configPath != "" {
		loaded, err := seskeep.LoadConfigFile(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if adminAddr != "" {
		cfg.AdminAddr = adminAddr
	}

	k, err := seskeep.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("new keeper: %w", err)
	}
	defer k.Close()

	if err := k.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	errCh := make(chan error, 2)

	srv := &http.Server{
		Addr:    cfg.AdminAddr,
		Handler: k.AdminRouter(),
	}
	go func() {
		logger.Info("seskeep: admin listening", "addr", cfg.AdminAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("admin server: %w", err)
		}
	}()

	if mcpStdio {
		mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "seskeep", Version: "0.1.0"}, nil)
		k.RegisterMCP(mcpSrv)
		go func() {
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil {
				errCh <- fmt.Errorf("mcp server: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		logger.Warn("seskeep: admin shutdown", "error", err)
	}
	return nil
}
