// Package main is the Apex gateway entry point: it loads the JSON
// configuration and runs the TCP gateway, the audit database writer, the
// query API and the metrics endpoint until interrupted.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dstl/Apex-SAPIENT-Middleware/api"
	"github.com/dstl/Apex-SAPIENT-Middleware/config"
	"github.com/dstl/Apex-SAPIENT-Middleware/gateway"
	"github.com/dstl/Apex-SAPIENT-Middleware/idmap"
	"github.com/dstl/Apex-SAPIENT-Middleware/metric"
	"github.com/dstl/Apex-SAPIENT-Middleware/pkg/worker"
	"github.com/dstl/Apex-SAPIENT-Middleware/server"
	"github.com/dstl/Apex-SAPIENT-Middleware/storage"
	"github.com/dstl/Apex-SAPIENT-Middleware/xmlcodec"
)

const (
	// Version is the release version reported by --version and the API root.
	Version = "4.2.0"
	appName = "apex"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, buf[:n])
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("apex failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cli, exit := parseFlags()
	if exit {
		return nil
	}

	cfg, err := config.Load(cli.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := setupLogger(cfg, cli)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if cli.Validate {
		logger.Info("configuration is valid", "path", cli.ConfigPath)
		return nil
	}
	logger.Info("starting apex", "version", Version, "config", cli.ConfigPath)

	registry := metric.NewMetricsRegistry()
	metrics := registry.CoreMetrics()

	ids, err := idmap.New(cfg.IDMapOptions())
	if err != nil {
		return fmt.Errorf("identifier registry: %w", err)
	}
	legacy := xmlcodec.NewLegacyTranslator(xmlcodec.NewCache(), ids)

	creator, err := gateway.NewCreator(gateway.Deps{Logger: logger, IDs: ids}, cfg.GatewayOptions())
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}

	writer, err := storage.NewWriter(
		storage.WriterDeps{Logger: logger, Metrics: metrics},
		cfg.StorageOptions(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	validation, err := cfg.ValidationOptions()
	if err != nil {
		return err
	}
	srv, err := server.New(server.Deps{
		Logger:  logger,
		Creator: creator,
		Legacy:  legacy,
		Limiter: worker.NewLimiter(1, worker.WithMetricsRegistry(registry, "parse")),
		Metrics: metrics,
	}, server.Options{
		Connections:      cfg.ConnectionSpecs(),
		MessageMaxSizeKB: cfg.MessageMaxSizeKB,
		EnableConversion: cfg.ConversionEnabled(),
		AutoAssignNodeID: cfg.AutoAssignSensorID.Enabled,
		Validation:       validation,
		Callbacks: server.Callbacks{
			OnConnect:    writer.OnConnect,
			OnMessage:    writer.OnMessage,
			OnDisconnect: writer.OnDisconnect,
		},
	})
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	// The writer outlives the server so disconnect records from the final
	// teardown still reach the database before the segment closes.
	writerCtx, writerDone := context.WithCancel(context.Background())
	g.Go(func() error { return writer.Run(writerCtx) })
	g.Go(func() error {
		defer writerDone()
		return srv.Run(gctx)
	})

	if cfg.API.Enabled {
		apiServer, err := api.New(
			api.Deps{Logger: logger, Provider: writer},
			api.Options{Host: cfg.API.Host, Port: cfg.API.Port, Version: Version})
		if err != nil {
			stop()
			g.Wait()
			return fmt.Errorf("api: %w", err)
		}
		g.Go(apiServer.Start)
		g.Go(func() error {
			<-gctx.Done()
			return apiServer.Stop()
		})
	}
	if cfg.Metrics.Enabled {
		metricServer := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)
		g.Go(metricServer.Start)
		g.Go(func() error {
			<-gctx.Done()
			return metricServer.Stop()
		})
	}

	logger.Info("apex running", "connections", len(cfg.Connections))
	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	logger.Info("apex shutdown complete")
	return nil
}
