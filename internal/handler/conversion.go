package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/launchkit/edge-middleware/internal/dedup"
	"github.com/launchkit/edge-middleware/internal/metrics"
	"github.com/launchkit/edge-middleware/internal/tagproxy"
	"github.com/launchkit/edge-middleware/internal/upstream"
)

// ConversionRequest is the purchase-completed event posted after checkout.
// TransactionID carries the Stripe Payment Intent id.
type ConversionRequest struct {
	TransactionID string `json:"transaction_id"`
}

// ConversionHandler records purchase conversions exactly once per
// suppression window and relays fresh ones to the tag endpoint. Repeats
// from reloads and back-button navigation answer success without
// re-emitting, carrying the original first-seen timestamp.
type ConversionHandler struct {
	logger     *slog.Logger
	suppressor *dedup.Suppressor
	stripe     *upstream.Stripe
	proxy      *tagproxy.Proxy
	collector  *metrics.Collector
}

func NewConversionHandler(logger *slog.Logger, suppressor *dedup.Suppressor, stripe *upstream.Stripe, proxy *tagproxy.Proxy, collector *metrics.Collector) *ConversionHandler {
	return &ConversionHandler{
		logger:     logger,
		suppressor: suppressor,
		stripe:     stripe,
		proxy:      proxy,
		collector:  collector,
	}
}

func (h *ConversionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()

	emitEvent(h.collector, metrics.MetricEvent{
		Type:     metrics.EventRequestReceived,
		Endpoint: r.URL.Path,
	})

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{
			"error":   "method_not_allowed",
			"message": "only POST is supported",
		})
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "invalid_request",
			"message": "unreadable body",
		})
		return
	}

	var conversion ConversionRequest
	if err := json.Unmarshal(body, &conversion); err != nil || conversion.TransactionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "invalid_request",
			"message": "transaction_id is required",
		})
		return
	}

	if suppress, firstSeen := h.suppressor.ShouldSuppress(conversion.TransactionID); suppress {
		h.logger.Info("Blocked duplicate conversion",
			slog.String("request_id", requestID),
			slog.String("transaction_id", conversion.TransactionID),
			slog.Time("first_seen", firstSeen))

		emitEvent(h.collector, metrics.MetricEvent{
			Type:     metrics.EventDuplicateBlocked,
			Endpoint: r.URL.Path,
		})

		writeJSON(w, http.StatusOK, map[string]any{
			"ok":         true,
			"duplicate":  true,
			"first_seen": firstSeen.Format(time.RFC3339),
		})
		return
	}

	if !h.verifyPayment(r, requestID, conversion.TransactionID) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":   "payment_not_completed",
			"message": "transaction has not succeeded",
		})
		return
	}

	h.suppressor.Record(conversion.TransactionID)
	h.relay(r, requestID, body)

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"duplicate": false,
	})
}

// verifyPayment checks the transaction with Stripe. A Stripe outage or an
// open breaker does not block the conversion; only a definitive
// not-succeeded answer rejects it.
func (h *ConversionHandler) verifyPayment(r *http.Request, requestID, transactionID string) bool {
	intent, err := h.stripe.PaymentIntent(r.Context(), transactionID)

	emitEvent(h.collector, metrics.MetricEvent{
		Type:    metrics.EventUpstreamCall,
		Service: upstream.ServiceStripe,
		Failed:  err != nil,
	})

	if err != nil {
		h.logger.Warn("Payment verification skipped",
			slog.String("request_id", requestID),
			slog.String("transaction_id", transactionID),
			slog.String("error", err.Error()))
		return true
	}

	return intent.Status == "succeeded"
}

// relay forwards the conversion payload to the tag endpoint. Failures are
// logged and dropped; the user-facing request already succeeded.
func (h *ConversionHandler) relay(r *http.Request, requestID string, body []byte) {
	res, err := h.proxy.Forward(http.MethodPost, "/mp/collect", r.URL.RawQuery,
		r.Header, bytes.NewReader(body), tagproxy.IsPreviewRequest(r))
	if err != nil {
		h.logger.Warn("Conversion relay skipped",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return
	}

	io.Copy(io.Discard, res.Body)
	res.Body.Close()
}
