// Package main is the entry point for vlaude-daemon: the host-local daemon
// that tails AI-assistant conversation transcripts and bridges them to a
// remote control server over a persistent socket.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/vimo-ai/vlaude-daemon/internal/approval"
	"github.com/vimo-ai/vlaude-daemon/internal/config"
	"github.com/vimo-ai/vlaude-daemon/internal/daemoncore"
	"github.com/vimo-ai/vlaude-daemon/internal/directory"
	"github.com/vimo-ai/vlaude-daemon/internal/health"
	"github.com/vimo-ai/vlaude-daemon/internal/journal"
	"github.com/vimo-ai/vlaude-daemon/internal/sharedstore/postgres"
	"github.com/vimo-ai/vlaude-daemon/internal/socket"
	"github.com/vimo-ai/vlaude-daemon/internal/tailer"
	"github.com/vimo-ai/vlaude-daemon/internal/telemetry"
	"github.com/vimo-ai/vlaude-daemon/internal/transcriptstore"
	"github.com/vimo-ai/vlaude-daemon/internal/writerelection"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	opts, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); otelEndpoint != "" {
		tp, err := telemetry.InitTracer(ctx, "vlaude-daemon", otelEndpoint)
		if err != nil {
			logger.Warn("failed to init OTel tracer", zap.Error(err))
		} else {
			defer tp.Shutdown(context.Background())
		}

		mp, err := telemetry.InitMeterProvider(ctx, "vlaude-daemon", otelEndpoint)
		if err != nil {
			logger.Warn("failed to init OTel meter provider", zap.Error(err))
		} else {
			defer mp.Shutdown(context.Background())
		}
	}

	var dir *directory.Directory
	if opts.DirectoryAddr != "" {
		dir = directory.New(directory.Config{
			Host:      opts.DirectoryAddr,
			Password:  opts.DirectoryPass,
			KeyPrefix: opts.KeyPrefix,
		}, logger)
		defer dir.Close()
	}

	sessionCfg := socket.Config{
		ServerURL: opts.ServerURL,
		TLS: socket.TLSConfig{
			CACertPath:         opts.TLSCACertPath,
			ClientCertPath:     opts.TLSClientCertPath,
			ClientKeyPath:      opts.TLSClientKeyPath,
			PKCS12Path:         opts.TLSPKCS12Path,
			PKCS12Password:     opts.TLSPKCS12Password,
			InsecureSkipVerify: opts.TLSInsecure,
		},
	}
	sess := socket.New(sessionCfg, dir, logger)

	t := tailer.New()
	approvals := approval.New(sess)
	transcript := transcriptstore.NewFake() // swapped for a real store by the embedding application

	core := daemoncore.New(daemoncore.Config{
		DeviceID:   opts.DeviceID,
		DeviceName: opts.DeviceName,
		Platform:   opts.Platform,
		Version:    opts.Version,
	}, logger, sess, t, approvals, transcript)

	if dir != nil {
		core.WithDirectory(dir)
	}

	if pgURL := os.Getenv("VLAUDE_SHARED_STORE_URL"); pgURL != "" {
		store, err := postgres.Open(ctx, pgURL)
		if err != nil {
			logger.Warn("shared store unavailable, running without writer election", zap.Error(err))
		} else {
			defer store.Close()
			election := writerelection.New(store, opts.DeviceID, logger)
			core.WithWriterElection(election, store)
		}
	}

	if natsURL := os.Getenv("VLAUDE_JOURNAL_NATS_URL"); natsURL != "" {
		j, err := journal.Connect(natsURL, logger)
		if err != nil {
			logger.Warn("event journal unavailable", zap.Error(err))
		} else {
			defer j.Close()
			core.WithJournal(j)
		}
	}

	healthAddr := "127.0.0.1:9797"
	if v := os.Getenv("VLAUDE_HEALTH_ADDR"); v != "" {
		healthAddr = v
	}
	startedAt := time.Now()
	healthSrv := health.New(healthAddr, func() health.Snapshot {
		return health.Snapshot{
			Connected:     core.Connected(),
			ServerAddress: opts.ServerURL,
			WriterHeld:    core.IsWriter(),
			WatchedCount:  core.WatchedCount(),
			PendingCount:  core.PendingApprovalCount(),
			DirectoryUp:   dir != nil,
			UptimeSeconds: int64(time.Since(startedAt).Seconds()),
		}
	}, logger)
	healthSrv.Start()

	if err := core.Start(ctx); err != nil {
		logger.Fatal("failed to start daemon core", zap.Error(err))
	}
	logger.Info("vlaude-daemon started",
		zap.String("deviceId", opts.DeviceID),
		zap.String("serverUrl", opts.ServerURL),
		zap.String("healthAddr", healthAddr),
	)

	go core.Run(ctx)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	core.Stop(shutdownCtx)
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("health server shutdown error", zap.Error(err))
	}
	logger.Info("vlaude-daemon shut down cleanly")
}
