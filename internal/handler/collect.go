package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/launchkit/edge-middleware/internal/metrics"
	"github.com/launchkit/edge-middleware/internal/ratelimit"
	"github.com/launchkit/edge-middleware/internal/tagproxy"
)

// CollectHandler gates the tag collection endpoints with the rate limiter
// and hands admitted requests to the preview/production proxy.
type CollectHandler struct {
	logger    *slog.Logger
	limiter   *ratelimit.Limiter
	proxy     *tagproxy.Proxy
	collector *metrics.Collector
}

func NewCollectHandler(logger *slog.Logger, limiter *ratelimit.Limiter, proxy *tagproxy.Proxy, collector *metrics.Collector) *CollectHandler {
	return &CollectHandler{
		logger:    logger,
		limiter:   limiter,
		proxy:     proxy,
		collector: collector,
	}
}

func (h *CollectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	clientIP := extractClientIP(r)

	h.logger.Info("Received collect request",
		slog.String("request_id", requestID),
		slog.String("from", clientIP),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path))

	emitEvent(h.collector, metrics.MetricEvent{
		Type:     metrics.EventRequestReceived,
		Endpoint: r.URL.Path,
	})

	// Preflight is never throttled; it must always answer 200
	if r.Method != http.MethodOptions {
		if d := h.limiter.Admit(clientIP); !d.Allowed {
			h.logger.Warn("Rate limited",
				slog.String("request_id", requestID),
				slog.String("client", clientIP),
				slog.Int("retry_after", d.RetryAfterSeconds))

			emitEvent(h.collector, metrics.MetricEvent{
				Type:     metrics.EventRateLimited,
				Endpoint: r.URL.Path,
			})

			writeRateLimited(w, d)
			return
		}
	}

	start := time.Now()
	wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
	h.proxy.ServeHTTP(wrapped, r)

	emitEvent(h.collector, metrics.MetricEvent{
		Type:       metrics.EventResponseRelayed,
		Endpoint:   r.URL.Path,
		Duration:   time.Since(start),
		StatusCode: wrapped.statusCode,
	})
}
