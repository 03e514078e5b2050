// Package main provides the HTTP harvest server.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/raphaelgruber/stadtzhharvest-go/internal/config"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/server"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/service"
)

func main() {
	runOnStart := flag.String("run", "", "comma-separated sources to harvest on startup")
	flag.Parse()

	cfg := config.Load()

	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer closeLog()
	slog.SetDefault(logger)

	slog.Info("starting stadtzhharvest-server", "port", cfg.ServerPort, "store", cfg.Store, "ckan", cfg.CKANURL)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	rt, err := service.Bootstrap(ctx, cfg, logger)
	cancel()
	if err != nil {
		slog.Error("failed to bootstrap harvester", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := rt.Close(context.Background()); err != nil {
			slog.Error("failed to close store", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *runOnStart != "" {
		for _, name := range strings.Split(*runOnStart, ",") {
			job, err := rt.Jobs.Start(ctx, strings.TrimSpace(name), "startup")
			if err != nil {
				slog.Error("failed to start job", "source", name, "error", err)
				continue
			}
			slog.Info("started job", "source", name, "job_id", job.Snapshot().ID)
		}
	}

	if err := server.New(rt.Jobs, logger).Serve(ctx, ":"+cfg.ServerPort); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
