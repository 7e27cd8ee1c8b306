package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/launchkit/edge-middleware/config"
	"github.com/launchkit/edge-middleware/internal/cache"
	"github.com/launchkit/edge-middleware/internal/circuitbreaker"
	"github.com/launchkit/edge-middleware/internal/dedup"
	"github.com/launchkit/edge-middleware/internal/handler"
	"github.com/launchkit/edge-middleware/internal/httpserver"
	"github.com/launchkit/edge-middleware/internal/metrics"
	"github.com/launchkit/edge-middleware/internal/ratelimit"
	"github.com/launchkit/edge-middleware/internal/tagproxy"
	"github.com/launchkit/edge-middleware/internal/upstream"
	"github.com/launchkit/edge-middleware/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	collector := metrics.NewCollector(1000, log)
	collector.Start(ctx)

	registry, err := buildRegistry(cfg)
	if err != nil {
		log.Error("Failed to build breaker registry", slog.Any("err", err))
		os.Exit(1)
	}

	suppressor, err := buildSuppressor(cfg)
	if err != nil {
		log.Error("Failed to build suppressor", slog.Any("err", err))
		os.Exit(1)
	}
	suppressor.Start(ctx, log)

	proxy, err := buildProxy(cfg, log, registry)
	if err != nil {
		log.Error("Failed to build tag proxy", slog.Any("err", err))
		os.Exit(1)
	}

	crm, mailerlite, stripe, err := buildUpstreams(cfg, log, registry)
	if err != nil {
		log.Error("Failed to build upstream clients", slog.Any("err", err))
		os.Exit(1)
	}

	leadLimiter, collectLimiter, err := buildLimiters(cfg)
	if err != nil {
		log.Error("Failed to build rate limiters", slog.Any("err", err))
		os.Exit(1)
	}

	collectHandler := handler.NewCollectHandler(log, collectLimiter, proxy, collector)
	leadHandler := handler.NewLeadHandler(log, leadLimiter, crm, mailerlite, collector)
	conversionHandler := handler.NewConversionHandler(log, suppressor, stripe, proxy, collector)

	mux := setupRouter(cfg.Proxy.MountPath, collectHandler, leadHandler, conversionHandler, collector, registry)

	srv, err := httpserver.New(cfg.Server.Address, mux)
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("Middleware listening",
		slog.String("address", cfg.Server.Address),
		slog.String("mount_path", cfg.Proxy.MountPath))

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
			log.Error("Error starting server", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func buildRegistry(cfg *config.Config) (*circuitbreaker.Registry, error) {
	resetTimeout, err := time.ParseDuration(cfg.CircuitBreaker.ResetTimeout)
	if err != nil {
		return nil, err
	}

	return circuitbreaker.NewRegistry(cfg.CircuitBreaker.FailureThreshold, resetTimeout), nil
}

func buildSuppressor(cfg *config.Config) (*dedup.Suppressor, error) {
	ttl, err := time.ParseDuration(cfg.Dedup.TTL)
	if err != nil {
		return nil, err
	}

	return dedup.NewSuppressor(ttl, cfg.Dedup.MaxSize), nil
}

func buildProxy(cfg *config.Config, log *slog.Logger, registry *circuitbreaker.Registry) (*tagproxy.Proxy, error) {
	timeout, err := time.ParseDuration(cfg.Proxy.Timeout)
	if err != nil {
		return nil, err
	}

	return tagproxy.New(log, registry.GetBreaker("tagserver"), tagproxy.Options{
		ProductionHost: cfg.Proxy.ProductionHost,
		PreviewHost:    cfg.Proxy.PreviewHost,
		PublicOrigin:   cfg.Proxy.PublicOrigin,
		MountPath:      cfg.Proxy.MountPath,
		Timeout:        timeout,
	})
}

func buildUpstreams(cfg *config.Config, log *slog.Logger, registry *circuitbreaker.Registry) (*upstream.CRM, *upstream.MailerLite, *upstream.Stripe, error) {
	timeout, err := time.ParseDuration(cfg.Upstreams.Timeout)
	if err != nil {
		return nil, nil, nil, err
	}

	cacheTTL, err := time.ParseDuration(cfg.CustomerCache.TTL)
	if err != nil {
		return nil, nil, nil, err
	}

	customers := cache.New[upstream.Subscriber](cacheTTL, cfg.CustomerCache.MaxSize)

	crm := upstream.NewCRM(cfg.Upstreams.CRMURL, cfg.Upstreams.CRMKey, timeout, registry, log)
	mailerlite := upstream.NewMailerLite(cfg.Upstreams.MailerLiteURL, cfg.Upstreams.MailerLiteKey, timeout, registry, customers, log)
	stripe := upstream.NewStripe(cfg.Upstreams.StripeURL, cfg.Upstreams.StripeKey, timeout, registry, log)

	return crm, mailerlite, stripe, nil
}

func buildLimiters(cfg *config.Config) (*ratelimit.Limiter, *ratelimit.Limiter, error) {
	leadWindow, err := time.ParseDuration(cfg.RateLimit.Lead.Window)
	if err != nil {
		return nil, nil, err
	}

	collectWindow, err := time.ParseDuration(cfg.RateLimit.Collect.Window)
	if err != nil {
		return nil, nil, err
	}

	lead := ratelimit.NewLimiter(leadWindow, cfg.RateLimit.Lead.MaxRequests, cfg.RateLimit.MaxKeys)
	collect := ratelimit.NewLimiter(collectWindow, cfg.RateLimit.Collect.MaxRequests, cfg.RateLimit.MaxKeys)

	return lead, collect, nil
}
