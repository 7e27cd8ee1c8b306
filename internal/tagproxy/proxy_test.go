package tagproxy_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/launchkit/edge-middleware/internal/circuitbreaker"
	"github.com/launchkit/edge-middleware/internal/tagproxy"
)

var _ = Describe("Proxy", func() {
	var (
		proxy      *tagproxy.Proxy
		breaker    *circuitbreaker.CircuitBreaker
		production *httptest.Server
		preview    *httptest.Server
		prodSeen   *http.Request
		prevSeen   *http.Request
		log        *slog.Logger
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(os.Stdout, nil))
		prodSeen = nil
		prevSeen = nil

		production = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			prodSeen = r.Clone(r.Context())
			w.Header().Set("Content-Type", "text/plain")
			w.Header().Set("Cache-Control", "no-store")
			w.Header().Set("X-Internal", "secret")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("prod-ok"))
		}))

		preview = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			prevSeen = r.Clone(r.Context())
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("preview-ok"))
		}))

		breaker = circuitbreaker.NewCircuitBreaker("tagserver", 3, 30*time.Second)

		var err error
		proxy, err = tagproxy.New(log, breaker, tagproxy.Options{
			ProductionHost: production.URL,
			PreviewHost:    preview.URL,
			PublicOrigin:   "https://www.example.com",
			MountPath:      "/api/tag",
			Timeout:        2 * time.Second,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		production.Close()
		preview.Close()
	})

	Describe("TargetURL", func() {
		It("should prefix the production host for production requests", func() {
			url := proxy.TargetURL("/api/tag/g/collect", "v=2&tid=G-X", false)
			Expect(url).To(Equal(production.URL + "/g/collect?v=2&tid=G-X"))
		})

		It("should prefix the preview host for preview requests", func() {
			url := proxy.TargetURL("/api/tag/g/collect", "gtm_debug=1", true)
			Expect(url).To(Equal(preview.URL + "/g/collect?gtm_debug=1"))
		})

		It("should pass the query through unmodified", func() {
			url := proxy.TargetURL("/api/tag/mp/collect", "v=2&en=purchase&epn.value=99", false)
			Expect(url).To(HaveSuffix("/mp/collect?v=2&en=purchase&epn.value=99"))
		})
	})

	Describe("ServeHTTP", func() {
		It("should answer OPTIONS with 200, empty body and CORS headers", func() {
			w := httptest.NewRecorder()
			proxy.ServeHTTP(w, httptest.NewRequest("OPTIONS", "/api/tag/g/collect", nil))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.Len()).To(Equal(0))
			Expect(w.Header().Get("Access-Control-Allow-Origin")).To(Equal("*"))
			Expect(w.Header().Get("Access-Control-Allow-Methods")).To(Equal("GET, POST, OPTIONS"))
			Expect(w.Header().Get("Access-Control-Allow-Headers")).To(ContainSubstring("X-Gtm-Server-Preview"))
			Expect(prodSeen).To(BeNil())
			Expect(prevSeen).To(BeNil())
		})

		It("should reject DELETE with 405 and an Allow header", func() {
			w := httptest.NewRecorder()
			proxy.ServeHTTP(w, httptest.NewRequest("DELETE", "/api/tag/g/collect", nil))

			Expect(w.Code).To(Equal(http.StatusMethodNotAllowed))
			Expect(w.Header().Get("Allow")).To(Equal("GET, POST, OPTIONS"))
		})

		It("should forward a production GET and relay the body", func() {
			w := httptest.NewRecorder()
			proxy.ServeHTTP(w, httptest.NewRequest("GET", "/api/tag/g/collect?v=2&tid=G-X", nil))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(Equal("prod-ok"))
			Expect(prodSeen).NotTo(BeNil())
			Expect(prodSeen.URL.Path).To(Equal("/g/collect"))
			Expect(prodSeen.URL.RawQuery).To(Equal("v=2&tid=G-X"))
		})

		It("should route a preview-classified POST to the preview host", func() {
			r := httptest.NewRequest("POST", "/api/tag/g/collect?v=2&tid=G-X", strings.NewReader("payload"))
			r.Header.Set("X-Gtm-Server-Preview", "tok")

			w := httptest.NewRecorder()
			proxy.ServeHTTP(w, r)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(Equal("preview-ok"))
			Expect(prodSeen).To(BeNil())
			Expect(prevSeen).NotTo(BeNil())
			Expect(prevSeen.URL.RawQuery).To(Equal("v=2&tid=G-X"))
			Expect(prevSeen.Header.Get("X-Gtm-Server-Preview")).To(Equal("tok"))
		})

		It("should forward only allow-listed request headers", func() {
			r := httptest.NewRequest("GET", "/api/tag/g/collect", nil)
			r.Header.Set("User-Agent", "test-agent")
			r.Header.Set("Cookie", "session=abc")
			r.Header.Set("Authorization", "Bearer secret")

			w := httptest.NewRecorder()
			proxy.ServeHTTP(w, r)

			Expect(prodSeen.Header.Get("User-Agent")).To(Equal("test-agent"))
			Expect(prodSeen.Header.Get("Cookie")).To(Equal("session=abc"))
			Expect(prodSeen.Header.Get("Authorization")).To(BeEmpty())
		})

		It("should present the proxy's own origin to the backend", func() {
			w := httptest.NewRecorder()
			proxy.ServeHTTP(w, httptest.NewRequest("GET", "/api/tag/g/collect", nil))

			Expect(prodSeen.Header.Get("Origin")).To(Equal("https://www.example.com"))
			Expect(prodSeen.Header.Get("X-Forwarded-Proto")).To(Equal("https"))
			Expect(prodSeen.Header.Get("X-Forwarded-Host")).To(Equal("www.example.com"))
		})

		It("should relay only content-type and cache-control from upstream", func() {
			w := httptest.NewRecorder()
			proxy.ServeHTTP(w, httptest.NewRequest("GET", "/api/tag/g/collect", nil))

			Expect(w.Header().Get("Content-Type")).To(Equal("text/plain"))
			Expect(w.Header().Get("Cache-Control")).To(Equal("no-store"))
			Expect(w.Header().Get("X-Internal")).To(BeEmpty())
		})

		It("should relay a non-2xx upstream status and body verbatim", func() {
			failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				w.Write([]byte("bad backend"))
			}))
			defer failing.Close()

			p, err := tagproxy.New(log, breaker, tagproxy.Options{
				ProductionHost: failing.URL,
				PreviewHost:    preview.URL,
				PublicOrigin:   "https://www.example.com",
				MountPath:      "/api/tag",
				Timeout:        2 * time.Second,
			})
			Expect(err).NotTo(HaveOccurred())

			w := httptest.NewRecorder()
			p.ServeHTTP(w, httptest.NewRequest("GET", "/api/tag/g/collect", nil))

			Expect(w.Code).To(Equal(http.StatusBadGateway))
			Expect(w.Body.String()).To(Equal("bad backend"))
		})

		It("should answer 500 with a structured body on transport failure", func() {
			down := httptest.NewServer(nil)
			down.Close()

			p, err := tagproxy.New(log, breaker, tagproxy.Options{
				ProductionHost: down.URL,
				PreviewHost:    preview.URL,
				PublicOrigin:   "https://www.example.com",
				MountPath:      "/api/tag",
				Timeout:        time.Second,
			})
			Expect(err).NotTo(HaveOccurred())

			w := httptest.NewRecorder()
			p.ServeHTTP(w, httptest.NewRequest("GET", "/api/tag/g/collect", nil))

			Expect(w.Code).To(Equal(http.StatusInternalServerError))
			Expect(w.Body.String()).To(ContainSubstring(`"error":"network_error"`))
			Expect(w.Body.String()).To(ContainSubstring(`"message"`))
		})

		It("should fail fast once the breaker opens", func() {
			down := httptest.NewServer(nil)
			down.Close()

			cb := circuitbreaker.NewCircuitBreaker("tagserver", 2, 30*time.Second)
			p, err := tagproxy.New(log, cb, tagproxy.Options{
				ProductionHost: down.URL,
				PreviewHost:    preview.URL,
				PublicOrigin:   "https://www.example.com",
				MountPath:      "/api/tag",
				Timeout:        time.Second,
			})
			Expect(err).NotTo(HaveOccurred())

			for i := 0; i < 2; i++ {
				w := httptest.NewRecorder()
				p.ServeHTTP(w, httptest.NewRequest("GET", "/api/tag/g/collect", nil))
			}
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))

			w := httptest.NewRecorder()
			p.ServeHTTP(w, httptest.NewRequest("GET", "/api/tag/g/collect", nil))
			Expect(w.Code).To(Equal(http.StatusInternalServerError))
			Expect(w.Body.String()).To(ContainSubstring("upstream_unavailable"))
		})

		It("should count timeouts as breaker failures", func() {
			slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(300 * time.Millisecond)
			}))
			defer slow.Close()

			cb := circuitbreaker.NewCircuitBreaker("tagserver", 1, 30*time.Second)
			p, err := tagproxy.New(log, cb, tagproxy.Options{
				ProductionHost: slow.URL,
				PreviewHost:    preview.URL,
				PublicOrigin:   "https://www.example.com",
				MountPath:      "/api/tag",
				Timeout:        50 * time.Millisecond,
			})
			Expect(err).NotTo(HaveOccurred())

			w := httptest.NewRecorder()
			p.ServeHTTP(w, httptest.NewRequest("GET", "/api/tag/g/collect", nil))

			Expect(w.Code).To(Equal(http.StatusInternalServerError))
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
		})
	})

	Describe("Forward", func() {
		It("should relay an upstream POST body", func() {
			res, err := proxy.Forward("POST", "/api/tag/mp/collect", "v=2", http.Header{}, strings.NewReader("event"), false)
			Expect(err).NotTo(HaveOccurred())
			defer res.Body.Close()

			body, _ := io.ReadAll(res.Body)
			Expect(string(body)).To(Equal("prod-ok"))
			Expect(prodSeen.URL.Path).To(Equal("/mp/collect"))
		})
	})
})
