package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/launchkit/edge-middleware/internal/circuitbreaker"
)

// Error reports a non-2xx response from an upstream service. It is
// relayed, never retried here; retries are the caller's business.
type Error struct {
	Service    string
	StatusCode int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: upstream returned %d", e.Service, e.StatusCode)
}

// client is the shared transport for all upstream services: one breaker
// and one timeout-bounded HTTP client per service name.
type client struct {
	name    string
	baseURL string
	apiKey  string
	http    *http.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger
}

func newClient(name, baseURL, apiKey string, timeout time.Duration, breaker *circuitbreaker.CircuitBreaker, logger *slog.Logger) *client {
	return &client{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		breaker: breaker,
		logger:  logger,
	}
}

// doJSON sends a JSON request through the breaker and decodes a 2xx
// response into out (when out is non-nil). Transport failures and
// timeouts count as breaker failures; a non-2xx response is an *Error and
// does not trip the breaker.
func (c *client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	var res *http.Response
	if err := c.breaker.Do(func() error {
		var callErr error
		res, callErr = c.http.Do(req)
		return callErr
	}); err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		io.Copy(io.Discard, res.Body)
		return &Error{Service: c.name, StatusCode: res.StatusCode}
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(res.Body).Decode(out)
}
