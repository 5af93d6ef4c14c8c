package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rpggio/hubwatch/internal/app"
	"github.com/rpggio/hubwatch/internal/config"
	"github.com/rpggio/hubwatch/internal/mcp"
	"github.com/rpggio/hubwatch/internal/sqlite"
	"github.com/rpggio/hubwatch/internal/telemetry"
)

var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, ".env error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// Use stderr for logs in mcp mode to keep stdout clean for JSON-RPC.
	logWriter := io.Writer(os.Stdout)
	if cfg.Console.Mode == config.ModeMCP {
		logWriter = os.Stderr
	}
	if cfg.Log.Path != "" {
		fileWriter, err := newLogFileWriter(cfg.Log.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "log file error: %v\n", err)
		} else {
			defer fileWriter.Close()
			logWriter = fileWriter
		}
	}
	logger := slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))

	if err := run(cfg, logger); err != nil {
		logger.Error("hubwatch exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := ensureParentDir(cfg.State.Path); err != nil {
		return fmt.Errorf("prepare state path: %w", err)
	}
	db, err := sqlite.New(cfg.State.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.RunMigrations(); err != nil {
		return err
	}
	store := sqlite.NewCredentialStore(db, cfg.State.Profile)

	metrics := telemetry.New()
	if cfg.Console.MetricsAddr != "" {
		srv := serveMetrics(logger, cfg.Console.MetricsAddr, metrics)
		defer shutdownServer(logger, srv)
	}

	client, err := app.New(ctx, store, app.Options{
		BaseURL:        cfg.API.BaseURL,
		RequestTimeout: cfg.API.RequestTimeout,
		PollInterval:   cfg.Sync.Interval,
		NudgeDelay:     cfg.Sync.NudgeDelay,
		Logger:         logger,
		Metrics:        metrics,
	})
	if err != nil {
		return err
	}
	client.Start(ctx)
	defer client.Close()

	logger.Info("hubwatch started",
		"version", version,
		"mode", cfg.Console.Mode,
		"api", cfg.API.BaseURL,
		"profile", cfg.State.Profile,
		"state", client.State(),
	)

	switch cfg.Console.Mode {
	case config.ModeMCP:
		return runMCP(ctx, logger, client)
	default:
		return runWatch(ctx, logger, client, cfg.Console)
	}
}

// runWatch logs in with configured credentials when no session was resumed,
// then logs every published snapshot until ctx ends.
func runWatch(ctx context.Context, logger *slog.Logger, client *app.Client, cfg config.ConsoleConfig) error {
	if !client.Running() {
		if cfg.Username == "" {
			return errors.New("no stored session: set HUBWATCH_USERNAME and HUBWATCH_PASSWORD to log in")
		}
		if err := client.Login(ctx, cfg.Username, cfg.Password); err != nil {
			return fmt.Errorf("login: %w", err)
		}
	}

	updates, cancel := client.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case snap := <-updates:
			logger.Info("snapshot",
				"session", client.State(),
				"health", snap.Health,
				"metrics_known", snap.MetricsKnown,
				"total_sales", snap.Metrics.TotalSales,
				"total_orders", snap.Metrics.TotalOrders,
				"last_error", snap.LastError,
			)
			if !client.Running() && client.Reason() != "" {
				return fmt.Errorf("session ended: %s", client.Reason())
			}
		}
	}
}

func runMCP(ctx context.Context, logger *slog.Logger, client *app.Client) error {
	logger.Info("starting stdio transport")

	server := mcp.NewServer(mcp.Config{
		Console: client,
		Version: version,
		Logger:  logger,
	})
	// Run blocks until stdin closes or ctx is canceled.
	if err := server.Run(ctx, &sdkmcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("stdio server: %w", err)
	}
	return nil
}

func serveMetrics(logger *slog.Logger, addr string, metrics *telemetry.Metrics) *http.Server {
	router := http.NewServeMux()
	router.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
	return srv
}

func shutdownServer(logger *slog.Logger, srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("metrics shutdown error", "error", err)
	}
}
