package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/alfredjeanlab/threadlive/internal/archive"
	"github.com/alfredjeanlab/threadlive/internal/config"
	"github.com/alfredjeanlab/threadlive/internal/delivery"
	"github.com/alfredjeanlab/threadlive/internal/eventlog"
	eventsbus "github.com/alfredjeanlab/threadlive/internal/events"
	"github.com/alfredjeanlab/threadlive/internal/presence"
	"github.com/alfredjeanlab/threadlive/internal/server"
	"github.com/alfredjeanlab/threadlive/internal/store"
	"github.com/alfredjeanlab/threadlive/internal/store/memory"
	"github.com/alfredjeanlab/threadlive/internal/store/postgres"
)

// newLogger builds the process logger from configuration.
func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func openStore(cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.Store == "memory" {
		logger.Warn("using in-memory store; data is lost on exit")
		return memory.New(), nil
	}
	return postgres.New(cfg.DatabaseURL)
}

// archiveDestinations builds the configured export targets. A destination
// that fails to initialize is logged and skipped.
func archiveDestinations(ctx context.Context, cfg *config.Config, logger *slog.Logger) []archive.Destination {
	var dests []archive.Destination
	if cfg.ArchiveS3Bucket != "" {
		s3Dest, err := archive.NewS3Destination(ctx,
			cfg.ArchiveS3Bucket,
			cfg.ArchiveS3Prefix,
			cfg.ArchiveS3Region,
			cfg.ArchiveS3Endpoint,
		)
		if err != nil {
			logger.Error("failed to create S3 archive destination", "err", err)
		} else {
			dests = append(dests, s3Dest)
			logger.Info("archive S3 destination enabled", "bucket", cfg.ArchiveS3Bucket, "prefix", cfg.ArchiveS3Prefix)
		}
	}
	if cfg.ArchiveGitRepo != "" {
		dests = append(dests, archive.NewGitDestination(cfg.ArchiveGitRepo, cfg.ArchiveGitDir, cfg.ArchiveGitBranch))
		logger.Info("archive git destination enabled", "repo", cfg.ArchiveGitRepo, "dir", cfg.ArchiveGitDir)
	}
	return dests
}

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the threadlive HTTP and gRPC server",
	GroupID: "system",
	// Override PersistentPreRunE so we don't create a client connection.
	PersistentPreRunE: noClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Load configuration.
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)
		slog.SetDefault(logger)

		st, err := openStore(cfg, logger)
		if err != nil {
			return err
		}

		// Wake-ups always go to the local hub; NATS carries them to other instances.
		hub := eventsbus.NewHub()
		publisher := eventsbus.MultiPublisher{hub}
		bridgeCtx, stopBridge := context.WithCancel(context.Background())
		defer stopBridge()
		if cfg.NATSURL != "" {
			bus, err := eventsbus.NewNATSBus(cfg.NATSURL)
			if err != nil {
				st.Close()
				return err
			}
			publisher = append(publisher, bus)
			go func() {
				if err := eventsbus.Bridge(bridgeCtx, bus, hub, logger); err != nil {
					logger.Error("NATS bridge error", "err", err)
				}
			}()
			logger.Info("cross-instance wake-ups enabled", "nats_url", cfg.NATSURL, "origin", bus.Origin())
		} else {
			logger.Info("cross-instance wake-ups disabled (THREADLIVE_NATS_URL not set)")
		}

		// Metrics.
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics := delivery.MustNewMetrics(reg)

		// Create server components.
		log := eventlog.New(st, publisher, logger)
		svc := delivery.New(log, hub, cfg.Delivery, metrics, logger)
		srv := server.New(st, log, svc, server.Options{
			AnswersPerHour:   cfg.AnswersPerHour,
			ViewerStaleAfter: cfg.ViewerStaleAfter,
			Gatherer:         reg,
			Logger:           logger,
		})
		srv.Presence.StartReaper(&presence.ReaperConfig{
			IdleThreshold: cfg.ViewerStaleAfter,
			OnLeave: func(threadID int64, viewer string) {
				logger.Debug("viewer left", "thread", threadID, "viewer", viewer)
			},
		})

		// Start gRPC listener.
		var grpcServer *grpc.Server
		if cfg.GRPCAddr != "" {
			lis, err := net.Listen("tcp", cfg.GRPCAddr)
			if err != nil {
				srv.Presence.Stop()
				publisher.Close()
				st.Close()
				return err
			}
			grpcServer = server.NewGRPCServer(srv, cfg.AuthToken)
			go func() {
				logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
				if err := grpcServer.Serve(lis); err != nil {
					logger.Error("gRPC server error", "err", err)
				}
			}()
		}

		// Start HTTP server. No write timeout: streams stay open for minutes.
		// Request contexts derive from serveCtx so shutdown ends open streams.
		serveCtx, endRequests := context.WithCancel(context.Background())
		defer endRequests()
		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           srv.NewHTTPHandler(cfg.AuthToken),
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return serveCtx },
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		// Start the retention scheduler.
		var scheduler *archive.Scheduler
		if cfg.Retention.Interval > 0 {
			dests := archiveDestinations(context.Background(), cfg, logger)
			scheduler = archive.NewScheduler(log, dests, cfg.Retention, logger)
			scheduler.Start()
			logger.Info("retention scheduler started",
				"interval", cfg.Retention.Interval,
				"max_age", cfg.Retention.MaxAge,
				"destinations", len(dests),
			)
		}

		logger.Info("threadlive server started",
			"grpc_addr", cfg.GRPCAddr,
			"http_addr", cfg.HTTPAddr,
			"store", cfg.Store,
		)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		// Graceful shutdown.
		if scheduler != nil {
			scheduler.Stop()
			logger.Info("retention scheduler stopped")
		}

		endRequests()
		if grpcServer != nil {
			stopped := make(chan struct{})
			go func() {
				grpcServer.GracefulStop()
				close(stopped)
			}()
			select {
			case <-stopped:
			case <-time.After(10 * time.Second):
				grpcServer.Stop()
			}
			logger.Info("gRPC server stopped")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		srv.Presence.Stop()
		stopBridge()
		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}
