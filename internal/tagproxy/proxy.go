package tagproxy

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/launchkit/edge-middleware/internal/circuitbreaker"
)

// Headers copied from the inbound request onto the forwarded one. Nothing
// outside this list crosses the proxy.
var forwardedRequestHeaders = []string{
	"User-Agent",
	"Accept",
	"Accept-Language",
	"Referer",
	"Cookie",
	PreviewHeader,
}

// Upstream response headers relayed back to the caller.
var relayedResponseHeaders = []string{
	"Content-Type",
	"Cache-Control",
}

// Options configures a Proxy. Hosts are origins without trailing slash,
// e.g. "https://tags.example.com". MountPath is the prefix under which the
// proxy is served; everything after it is forwarded verbatim.
type Options struct {
	ProductionHost string
	PreviewHost    string
	PublicOrigin   string
	MountPath      string
	Timeout        time.Duration
}

// Proxy relays collection requests to the production or preview tag
// backend, chosen per request by IsPreviewRequest.
type Proxy struct {
	logger         *slog.Logger
	client         *http.Client
	breaker        *circuitbreaker.CircuitBreaker
	productionHost string
	previewHost    string
	publicOrigin   string
	originProto    string
	originHost     string
	mountPath      string
}

func New(logger *slog.Logger, breaker *circuitbreaker.CircuitBreaker, opts Options) (*Proxy, error) {
	origin, err := url.Parse(opts.PublicOrigin)
	if err != nil {
		return nil, err
	}

	return &Proxy{
		logger:         logger,
		client:         &http.Client{Timeout: opts.Timeout},
		breaker:        breaker,
		productionHost: strings.TrimSuffix(opts.ProductionHost, "/"),
		previewHost:    strings.TrimSuffix(opts.PreviewHost, "/"),
		publicOrigin:   opts.PublicOrigin,
		originProto:    origin.Scheme,
		originHost:     origin.Host,
		mountPath:      opts.MountPath,
	}, nil
}

// TargetURL resolves the backend URL for an inbound path and query. The
// path suffix after the mount path and the query string pass through
// unmodified; only the host depends on the preview classification.
func (p *Proxy) TargetURL(path, rawQuery string, preview bool) string {
	host := p.productionHost
	if preview {
		host = p.previewHost
	}

	suffix := strings.TrimPrefix(path, p.mountPath)
	if !strings.HasPrefix(suffix, "/") {
		suffix = "/" + suffix
	}

	target := host + suffix
	if rawQuery != "" {
		target += "?" + rawQuery
	}

	return target
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w.Header())

	switch r.Method {
	case http.MethodOptions:
		// Preflight, no upstream call
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodGet, http.MethodPost:
	default:
		w.Header().Set("Allow", "GET, POST, OPTIONS")
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed",
			"only GET, POST and OPTIONS are supported")
		return
	}

	preview := IsPreviewRequest(r)

	var body io.Reader
	if r.Method == http.MethodPost {
		body = r.Body
	}

	res, err := p.Forward(r.Method, r.URL.Path, r.URL.RawQuery, r.Header, body, preview)
	if err != nil {
		p.logger.Warn("Tag relay failed",
			slog.String("path", r.URL.Path),
			slog.Bool("preview", preview),
			slog.String("error", err.Error()))

		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			writeError(w, http.StatusInternalServerError, "upstream_unavailable",
				"tag endpoint is temporarily unavailable")
			return
		}

		writeError(w, http.StatusInternalServerError, "network_error",
			"failed to reach tag endpoint")
		return
	}
	defer res.Body.Close()

	for _, name := range relayedResponseHeaders {
		if v := res.Header.Get(name); v != "" {
			w.Header().Set(name, v)
		}
	}

	w.WriteHeader(res.StatusCode)
	if _, err := io.Copy(w, res.Body); err != nil {
		p.logger.Warn("Relay body copy interrupted", slog.String("error", err.Error()))
	}
}

// Forward sends one request to the chosen backend through the circuit
// breaker. Non-2xx responses are returned as-is for verbatim relay; only
// transport failures and timeouts are errors and count against the
// breaker.
func (p *Proxy) Forward(method, path, rawQuery string, inbound http.Header, body io.Reader, preview bool) (*http.Response, error) {
	req, err := http.NewRequest(method, p.TargetURL(path, rawQuery, preview), body)
	if err != nil {
		return nil, err
	}

	for _, name := range forwardedRequestHeaders {
		if v := inbound.Get(name); v != "" {
			req.Header.Set(name, v)
		}
	}

	// The backend sees the proxy's own origin, not the caller's
	req.Header.Set("Origin", p.publicOrigin)
	req.Header.Set("X-Forwarded-Proto", p.originProto)
	req.Header.Set("X-Forwarded-Host", p.originHost)

	var res *http.Response
	err = p.breaker.Do(func() error {
		var callErr error
		res, callErr = p.client.Do(req)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

func setCORSHeaders(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, "+PreviewHeader)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}
