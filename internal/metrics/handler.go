package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/launchkit/edge-middleware/internal/circuitbreaker"
)

// Handler serves the metrics snapshot together with the current state of
// every circuit breaker.
func (c *Collector) Handler(registry *circuitbreaker.Registry) http.HandlerFunc {
	type payload struct {
		Snapshot
		Breakers map[string]circuitbreaker.Counts `json:"breakers"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		body := payload{
			Snapshot: c.metrics.Snapshot(),
			Breakers: registry.Stats(),
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(body); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}
