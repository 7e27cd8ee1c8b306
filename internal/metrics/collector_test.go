package metrics_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/launchkit/edge-middleware/internal/circuitbreaker"
	"github.com/launchkit/edge-middleware/internal/metrics"
)

func TestMetrics(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Metrics Suite")
}

var _ = Describe("Collector", func() {
	var (
		collector *metrics.Collector
		ctx       context.Context
		cancel    context.CancelFunc
	)

	BeforeEach(func() {
		log := slog.New(slog.NewTextHandler(os.Stdout, nil))
		collector = metrics.NewCollector(100, log)
		ctx, cancel = context.WithCancel(context.Background())
		collector.Start(ctx)
	})

	AfterEach(func() {
		cancel()
	})

	It("should count received requests per endpoint", func() {
		collector.EventChannel() <- metrics.MetricEvent{
			Type:     metrics.EventRequestReceived,
			Endpoint: "/g/collect",
		}
		collector.EventChannel() <- metrics.MetricEvent{
			Type:     metrics.EventRequestReceived,
			Endpoint: "/g/collect",
		}

		Eventually(func() int64 {
			return collector.Snapshot().Endpoints["/g/collect"].Requests
		}).Should(Equal(int64(2)))
	})

	It("should count rate-limit denials", func() {
		collector.EventChannel() <- metrics.MetricEvent{
			Type:     metrics.EventRateLimited,
			Endpoint: "/api/lead",
		}

		Eventually(func() int64 {
			return collector.Snapshot().Endpoints["/api/lead"].RateLimited
		}).Should(Equal(int64(1)))
	})

	It("should record relay latencies and status codes", func() {
		collector.EventChannel() <- metrics.MetricEvent{
			Type:       metrics.EventResponseRelayed,
			Endpoint:   "/g/collect",
			Duration:   120 * time.Millisecond,
			StatusCode: 200,
		}

		Eventually(func() map[int]int64 {
			return collector.Snapshot().Endpoints["/g/collect"].StatusCodes
		}).Should(HaveKeyWithValue(200, int64(1)))

		Expect(collector.Snapshot().Endpoints["/g/collect"].P50Response).To(Equal(120 * time.Millisecond))
	})

	It("should count blocked duplicates", func() {
		collector.EventChannel() <- metrics.MetricEvent{Type: metrics.EventDuplicateBlocked}

		Eventually(func() int64 {
			return collector.Snapshot().DuplicatesBlocked
		}).Should(Equal(int64(1)))
	})

	It("should track upstream calls and failures", func() {
		collector.EventChannel() <- metrics.MetricEvent{
			Type:    metrics.EventUpstreamCall,
			Service: "crm",
		}
		collector.EventChannel() <- metrics.MetricEvent{
			Type:    metrics.EventUpstreamCall,
			Service: "crm",
			Failed:  true,
		}

		Eventually(func() metrics.UpstreamMetrics {
			return collector.Snapshot().Upstreams["crm"]
		}).Should(Equal(metrics.UpstreamMetrics{Calls: 2, Failures: 1}))
	})

	Describe("Handler", func() {
		It("should serve the snapshot with breaker states as JSON", func() {
			registry := circuitbreaker.NewRegistry(3, 30*time.Second)
			registry.GetBreaker("crm")

			w := httptest.NewRecorder()
			collector.Handler(registry)(w, httptest.NewRequest("GET", "/metrics", nil))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("Content-Type")).To(Equal("application/json"))

			var body map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &body)).To(Succeed())
			Expect(body).To(HaveKey("breakers"))
			Expect(body["breakers"]).To(HaveKey("crm"))
		})
	})
})
