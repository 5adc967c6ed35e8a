package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/turnstile/internal/config"
	"github.com/BrandonDHaskell/turnstile/internal/gate/service"
	"github.com/BrandonDHaskell/turnstile/internal/httpapi"
	"github.com/BrandonDHaskell/turnstile/internal/logging"
	"github.com/BrandonDHaskell/turnstile/internal/telemetry"
)

func main() {
	configPath := pflag.StringP("config", "c", os.Getenv("TURNSTILE_CONFIG"), "path to a YAML config file")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "turnstile-gate: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "turnstile-gate: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.With(zap.String("device_id", cfg.Device.ID))

	if err := run(cfg, logger); err != nil {
		logger.Error("exiting", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Metrics + event sinks
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := telemetry.NewMetrics(reg)
	if err != nil {
		return err
	}
	events := telemetry.Multi(telemetry.NewLogEmitter(logger), metrics)

	// Stores (SQLite, memory if the database is unusable)
	st := openStores(ctx, cfg, logger)
	defer st.close()

	// Authority
	client, closeClient, err := newAuthorityClient(ctx, cfg, st)
	if err != nil {
		return err
	}
	defer closeClient()

	// Services
	cache := service.NewTicketCache(st.tickets, events)
	cache.Load(ctx)

	validator := service.NewValidator(cache, st.records, service.ValidatorConfig{DeviceID: cfg.Device.ID}, events)
	access := service.NewAccessControl(st.staff, st.accessLog, events)
	queue := service.NewActionQueue(st.actions, service.QueueConfig{
		MaxRetries: cfg.Queue.MaxRetries,
		Policy:     service.RequeuePolicy(cfg.Queue.Requeue),
	}, events)
	dispatcher := service.NewAuthorityDispatcher(client)

	syncer := service.NewSyncCoordinator(service.SyncDeps{
		Client:     client,
		Queue:      queue,
		Dispatcher: dispatcher,
		Records:    st.records,
		Cache:      cache,
		Staff:      st.staff,
	}, service.SyncConfig{
		EventIDs:  cfg.Device.EventIDs,
		BatchSize: cfg.Sync.BatchSize,
		Interval:  cfg.Sync.Interval,
	}, events, logger)

	gate := service.NewGate(service.GateDeps{
		Access:     access,
		Validator:  validator,
		Queue:      queue,
		Dispatcher: dispatcher,
		Conn:       syncer,
	}, cfg.Device.ID, events)

	retention := func(days int) time.Duration { return time.Duration(days) * 24 * time.Hour }
	pruner := service.NewRetentionPruner([]service.PruneTarget{
		{Name: "access_log", Store: st.accessLog, Retention: retention(cfg.Retention.AccessLogDays)},
		{Name: "validation_records", Store: st.records, Retention: retention(cfg.Retention.ValidationRecordDays)},
	}, time.Duration(cfg.Retention.PruneIntervalHours)*time.Hour, logger, events)

	// Background loops
	pruner.Start(ctx)
	defer pruner.Stop()
	syncer.Start(ctx)
	defer syncer.Stop()

	go func() {
		probeCtx, cancel := context.WithTimeout(ctx, cfg.Authority.Timeout)
		defer cancel()
		if err := client.Ping(probeCtx); err != nil {
			logger.Info("authority unreachable at startup; running offline", zap.Error(err))
			return
		}
		syncer.SetOnline(ctx, true)
	}()

	// HTTP
	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:       logger,
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		DeviceID:     cfg.Device.ID,
		GateID:       cfg.Device.GateID,
		EventIDs:     cfg.Device.EventIDs,
		Gate:         gate,
		Sync:         syncer,
		Cache:        cache,
		Queue:        queue,
		Metrics:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
