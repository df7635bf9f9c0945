package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/balaji-balu/vps-screener/internal/api"
	"github.com/balaji-balu/vps-screener/internal/config"
	"github.com/balaji-balu/vps-screener/internal/fleet"
	"github.com/balaji-balu/vps-screener/internal/lifecycle"
	"github.com/balaji-balu/vps-screener/internal/logger"
	"github.com/balaji-balu/vps-screener/internal/metrics"
	"github.com/balaji-balu/vps-screener/internal/natsbroker"
	"github.com/balaji-balu/vps-screener/internal/reporter"
	"github.com/balaji-balu/vps-screener/internal/rpc"
	"github.com/balaji-balu/vps-screener/internal/streammanager"
	"github.com/balaji-balu/vps-screener/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingestion service",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Env, cfg.ServiceName, logger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()
	log.RedirectStdLog()
	zl := log.Zap()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.ServiceName, telemetry.Options{
		Exporter: cfg.Telemetry.Exporter,
		Endpoint: cfg.Telemetry.Endpoint,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracer(sctx); err != nil {
			zl.Warn("tracer shutdown", zap.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg, "fleet")

	var broker *natsbroker.Broker
	if cfg.NATS.URL != "" {
		broker, err = natsbroker.New(cfg.NATS.URL, zl)
		if err != nil {
			return err
		}
		defer broker.Close()
	}

	hub := streammanager.NewStreamManager()
	svcOpts := []fleet.ServiceOption{fleet.WithPublisher(hub)}
	if broker != nil && cfg.NATS.StatusSubject != "" {
		svcOpts = append(svcOpts, fleet.WithPublisher(broker.StatusPublisher(cfg.NATS.StatusSubject)))
	}
	projector := fleet.NewProjector(cfg.Fleet.StaleAfter)
	svc := fleet.NewService(zl,
		fleet.NewRegistry(fleet.WithShards(cfg.Fleet.Shards)),
		projector,
		fleet.NoTasks{},
		m,
		svcOpts...,
	)
	zl.Info("fleet ready",
		zap.Int("shards", cfg.Fleet.Shards),
		zap.Duration("stale_after", projector.StaleAfter()))

	life, err := lifecycle.New(zl)
	if err != nil {
		return err
	}

	var rep *reporter.Reporter
	if cfg.Fleet.SummarySchedule != "" {
		rep, err = reporter.New(svc, cfg.Fleet.SummarySchedule, zl)
		if err != nil {
			return err
		}
	}

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	opts := api.Options{CORSOrigins: cfg.Server.CORSOrigins, Updates: hub}
	if cfg.Metrics.Enabled {
		opts.MetricsPath = cfg.Metrics.Path
		opts.MetricsHandler = metrics.Handler(reg)
	}
	httpSrv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewRouter(svc, life, zl, m, opts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	httpLis, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen http %s: %w", cfg.Server.Addr, err)
	}

	var grpcLis net.Listener
	if cfg.GRPC.Enabled {
		grpcLis, err = net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			httpLis.Close()
			return fmt.Errorf("listen grpc %s: %w", cfg.GRPC.Addr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zl.Info("http server started", zap.String("addr", httpLis.Addr().String()))
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		if err := life.Drain(context.Background()); err != nil {
			zl.Warn("lifecycle drain", zap.Error(err))
		}
		// end open status streams so Shutdown does not wait on them
		hub.Close()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(sctx)
	})

	if grpcLis != nil {
		grpcSrv := rpc.NewServer(svc, life, zl)
		g.Go(func() error {
			zl.Info("grpc server started", zap.String("addr", grpcLis.Addr().String()))
			return rpc.Serve(gctx, grpcSrv, grpcLis)
		})
	}
	if broker != nil {
		g.Go(func() error {
			return broker.ServeIngest(gctx, svc, cfg.NATS.Subject, cfg.NATS.QueueGroup, cfg.NATS.Workers)
		})
	}
	if rep != nil {
		g.Go(func() error { return rep.Run(gctx) })
	}

	if err := life.MarkReady(ctx); err != nil {
		zl.Warn("lifecycle ready", zap.Error(err))
	}

	err = g.Wait()
	if serr := life.Stop(context.Background()); serr != nil {
		zl.Warn("lifecycle stop", zap.Error(serr))
	}
	if err != nil {
		log.Error("server stopped with error", err)
		return err
	}
	zl.Info("server stopped")
	return nil
}
