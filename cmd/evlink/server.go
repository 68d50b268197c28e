package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/evlink/internal/api"
	"github.com/kalambet/evlink/internal/clock"
	"github.com/kalambet/evlink/internal/config"
	"github.com/kalambet/evlink/internal/extract"
	"github.com/kalambet/evlink/internal/linking"
	"github.com/kalambet/evlink/internal/pipeline"
	"github.com/kalambet/evlink/internal/storage"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run an MCP server on stdio with its own in-memory store",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP on stdio, sharing the HTTP server's store")
}

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// newService builds the pipeline from config. Seed 0 seeds the scorer from
// the current time.
func newService(store *storage.Store, cfg config.Config, sleeper clock.Sleeper) *pipeline.Service {
	seed := uint64(cfg.Linking.Seed)
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return pipeline.NewService(store, pipeline.Options{
		Clock:   clock.Real(),
		Sleeper: sleeper,
		Scorer:  linking.NewRandomScorer(seed, cfg.Linking.Probability),
		ExtractLatency: extract.Latency{
			Base:    cfg.Latency.ExtractBase,
			PerFile: cfg.Latency.ExtractPerFile,
			Max:     cfg.Latency.ExtractMax,
		},
		LinkLatency:        cfg.Latency.Link,
		SummaryLatency:     cfg.Latency.Summary,
		ExtractConcurrency: cfg.Extract.Concurrency,
		StudentID:          cfg.Report.StudentID,
	})
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "evlink version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	store, err := storage.Open()
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	svc := newService(store, cfg, clock.Timer())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	if cfg.Server.MaxConns > 0 {
		ln = netutil.LimitListener(ln, cfg.Server.MaxConns)
	}

	srv := &http.Server{
		Handler:           api.NewHandler(svc),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("evlink listening", "addr", addr, "max_conns", cfg.Server.MaxConns)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if withMCP {
		g.Go(func() error {
			return serveMCPStdio(gctx, svc)
		})
	}

	return g.Wait()
}

func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	store, err := storage.Open()
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serveMCPStdio(ctx, newService(store, cfg, clock.Timer()))
}

func serveMCPStdio(ctx context.Context, svc *pipeline.Service) error {
	stdioSrv := server.NewStdioServer(api.NewMCPServer(svc, version))
	slog.Info("MCP server started (stdio transport)")
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}
