package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aifusion/gateway/config"
	"github.com/aifusion/gateway/internal/admin"
	"github.com/aifusion/gateway/internal/circuitbreaker"
	"github.com/aifusion/gateway/internal/handler"
	"github.com/aifusion/gateway/internal/health"
	"github.com/aifusion/gateway/internal/httpserver"
	"github.com/aifusion/gateway/internal/metrics"
	"github.com/aifusion/gateway/internal/registry"
	"github.com/aifusion/gateway/internal/upstream"
	"github.com/aifusion/gateway/pkg/logger"
)

const version = "2.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg, err := buildRegistry(cfg)
	if err != nil {
		log.Error("Failed to build service registry", slog.Any("err", err))
		os.Exit(1)
	}

	healthCfg, err := monitorConfig(cfg.HealthCheck)
	if err != nil {
		log.Error("Invalid health check configuration", slog.Any("err", err))
		os.Exit(1)
	}

	policy, err := breakerPolicy(cfg.CircuitBreaker)
	if err != nil {
		log.Error("Invalid circuit breaker configuration", slog.Any("err", err))
		os.Exit(1)
	}

	backoff, err := time.ParseDuration(cfg.Retry.Backoff)
	if err != nil {
		log.Error("Invalid retry backoff", slog.Any("err", err))
		os.Exit(1)
	}

	collector := metrics.NewCollector(1024, log)
	collector.Start(ctx)

	prober := health.NewServiceProber(healthCfg.ProbeTimeout)
	defer prober.Close()

	monitor := health.NewMonitor(reg.All(), prober, healthCfg, collector.EventChannel(), log)
	monitor.Start(ctx)

	breakers := circuitbreaker.NewRegistry(reg.Names(), policy)

	pool := upstream.NewPool(reg.All())
	defer pool.Close()

	dispatcher := handler.NewDispatcher(log, reg, breakers, monitor, pool, collector, backoff)
	adminAPI := admin.New(log, reg, monitor, breakers, version)

	srv, err := httpserver.New(cfg.Server.Address, setupRouter(log, dispatcher, adminAPI, collector))
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("Gateway starting",
		slog.String("addr", srv.Addr()),
		slog.Int("services", len(reg.All())),
		slog.Int("routes", len(reg.Routes())))

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting gateway", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

// buildRegistry converts the validated configuration into the immutable
// service catalog and route table.
func buildRegistry(cfg *config.Config) (*registry.Registry, error) {
	descriptors := make([]*registry.Descriptor, 0, len(cfg.Services))
	for _, sc := range cfg.Services {
		timeout, err := time.ParseDuration(sc.Timeout)
		if err != nil {
			return nil, err
		}

		descriptors = append(descriptors, &registry.Descriptor{
			Name:        sc.Name,
			Host:        sc.Host,
			Port:        sc.Port,
			RPCPort:     sc.RPCPort,
			Protocol:    registry.Protocol(sc.Protocol),
			Required:    sc.Required,
			CallTimeout: timeout,
			MaxRetries:  sc.MaxRetries,
		})
	}

	routes := make([]registry.Route, 0, len(cfg.Routes))
	for _, rc := range cfg.Routes {
		routes = append(routes, registry.Route{Prefix: rc.Prefix, Service: rc.Service})
	}

	return registry.New(descriptors, routes)
}

func monitorConfig(hc config.HealthCheckConfig) (health.Config, error) {
	interval, err := time.ParseDuration(hc.Interval)
	if err != nil {
		return health.Config{}, err
	}

	timeout, err := time.ParseDuration(hc.Timeout)
	if err != nil {
		return health.Config{}, err
	}

	return health.Config{
		Interval:           interval,
		ProbeTimeout:       timeout,
		DegradedThreshold:  hc.DegradedThreshold,
		UnhealthyThreshold: hc.UnhealthyThreshold,
	}, nil
}

func breakerPolicy(cb config.CircuitBreakerConfig) (circuitbreaker.Policy, error) {
	window, err := time.ParseDuration(cb.Window)
	if err != nil {
		return circuitbreaker.Policy{}, err
	}

	cooldown, err := time.ParseDuration(cb.Cooldown)
	if err != nil {
		return circuitbreaker.Policy{}, err
	}

	return circuitbreaker.Policy{
		FailureThreshold: cb.FailureThreshold,
		Window:           window,
		Cooldown:         cooldown,
	}, nil
}
