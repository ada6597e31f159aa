package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/ekisa-team/rfworker/internal/archive"
	"github.com/ekisa-team/rfworker/internal/config"
	"github.com/ekisa-team/rfworker/internal/env"
	"github.com/ekisa-team/rfworker/internal/job"
	"github.com/ekisa-team/rfworker/internal/logger"
	grpcserver "github.com/ekisa-team/rfworker/internal/server/grpc"
	httpserver "github.com/ekisa-team/rfworker/internal/server/http"
)

func main() {
	var (
		flagHTTPPort   = flag.Int("http-port", 0, "HTTP port to listen on (overrides config)")
		flagGRPCPort   = flag.Int("grpc-port", 0, "gRPC health port to listen on (overrides config)")
		flagConfigPath = flag.String("config", filepath.Join(config.DefaultConfigPath(), "config.yaml"), "Path to config file")
		flagTestInput  = flag.String("test-input", "", "Run a single job from this JSON file, print the response and exit")
		flagExtract    = flag.String("extract", "", "With -test-input, unpack the result archive into this directory")
		flagDebug      = flag.Bool("debug", false, "Enable debug logging in any environment")
	)
	flag.Parse()

	environment := env.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, watcher, err := loadConfig(*flagConfigPath)
	if err != nil {
		slog.Error("Failed to load config", "path", *flagConfigPath, "error", err)
		os.Exit(1)
	}
	if watcher != nil {
		defer watcher.Close()
	}

	logOpts := []logger.Option{
		logger.WithLogToFile(cfg.Log.ToFile),
		logger.WithLogFile(cfg.Log.File),
	}
	if *flagDebug {
		logOpts = append(logOpts, logger.WithLevel(slog.LevelDebug))
	}
	slog.SetDefault(logger.New(environment, logOpts...))

	if *flagTestInput != "" {
		if err := runTestInput(ctx, cfg, *flagTestInput, *flagExtract); err != nil {
			slog.Error("Test job failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if *flagHTTPPort != 0 {
		cfg.Server.HTTPPort = *flagHTTPPort
	}
	if *flagGRPCPort != 0 {
		cfg.Server.GRPCPort = *flagGRPCPort
	}

	httpSrv := httpserver.NewServer(job.NewHandlerFromConfig(cfg), cfg.Server.MaxConcurrency)
	if watcher != nil {
		watcher.OnReload(func(next *config.Config, err error) {
			if err != nil {
				slog.Error("Keeping previous config", "error", err)
				return
			}
			httpSrv.SetHandler(job.NewHandlerFromConfig(next))
			slog.Info("Job handler rebuilt from reloaded config")
		})
	}
	grpcSrv := grpcserver.NewHealthServer()

	slog.Info("Worker starting",
		"environment", environment,
		"config", *flagConfigPath,
		"http_port", cfg.Server.HTTPPort,
		"grpc_port", cfg.Server.GRPCPort,
		"max_concurrency", cfg.Server.MaxConcurrency)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpSrv.ListenAndServe(gctx, cfg.Server.HTTPPort) })
	g.Go(func() error { return grpcSrv.ListenAndServe(gctx, cfg.Server.GRPCPort) })

	if err := g.Wait(); err != nil {
		slog.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Worker shut down gracefully")
}

// loadConfig watches the config file when it exists and otherwise falls back
// to defaults plus environment overrides.
func loadConfig(path string) (*config.Config, *config.Watcher, error) {
	if _, err := os.Stat(path); err != nil {
		cfg, err := config.Load("")
		return cfg, nil, err
	}

	watcher, err := config.NewWatcher(path, nil)
	if err != nil {
		return nil, nil, err
	}
	return watcher.Snapshot(), watcher, nil
}

// runTestInput runs one job read from path and prints the response.
func runTestInput(ctx context.Context, cfg *config.Config, path, extractDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read test input: %w", err)
	}

	var j job.Job
	if err := json.Unmarshal(data, &j); err != nil {
		return fmt.Errorf("failed to parse test input: %w", err)
	}

	resp := job.NewHandlerFromConfig(cfg).Handle(ctx, &j)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return err
	}

	if resp.Status != job.StatusCompleted {
		return fmt.Errorf("job %s failed: %s", resp.ID, resp.Output.Error)
	}

	if extractDir != "" {
		raw, err := archive.Decode(resp.Output.ResultZipB64)
		if err != nil {
			return err
		}
		names, err := archive.NewOSBuilder().Extract(raw, extractDir)
		if err != nil {
			return err
		}
		slog.Info("Extracted results", "dir", extractDir, "files", names)
	}

	return nil
}
