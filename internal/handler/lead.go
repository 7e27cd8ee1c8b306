package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/launchkit/edge-middleware/internal/metrics"
	"github.com/launchkit/edge-middleware/internal/ratelimit"
	"github.com/launchkit/edge-middleware/internal/upstream"
)

// LeadRequest is the lead-capture payload posted by the landing page.
type LeadRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// LeadHandler captures a lead and fans it out to the CRM and MailerLite.
// Upstream failures are logged and skipped, never failing the user-facing
// request: a degraded CRM must not lose the signup.
type LeadHandler struct {
	logger     *slog.Logger
	limiter    *ratelimit.Limiter
	crm        *upstream.CRM
	mailerlite *upstream.MailerLite
	collector  *metrics.Collector
}

func NewLeadHandler(logger *slog.Logger, limiter *ratelimit.Limiter, crm *upstream.CRM, mailerlite *upstream.MailerLite, collector *metrics.Collector) *LeadHandler {
	return &LeadHandler{
		logger:     logger,
		limiter:    limiter,
		crm:        crm,
		mailerlite: mailerlite,
		collector:  collector,
	}
}

func (h *LeadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	clientIP := extractClientIP(r)

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

	if d := h.limiter.Admit(clientIP); !d.Allowed {
		h.logger.Warn("Lead capture rate limited",
			slog.String("request_id", requestID),
			slog.String("client", clientIP))

		emitEvent(h.collector, metrics.MetricEvent{
			Type:     metrics.EventRateLimited,
			Endpoint: r.URL.Path,
		})

		writeRateLimited(w, d)
		return
	}

	var lead LeadRequest
	if err := json.NewDecoder(r.Body).Decode(&lead); err != nil || lead.Email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "invalid_request",
			"message": "email is required",
		})
		return
	}

	h.logger.Info("Capturing lead",
		slog.String("request_id", requestID),
		slog.String("email", upstream.NormalizeEmail(lead.Email)))

	ctx := r.Context()

	crmErr := h.crm.UpsertContact(ctx, upstream.ContactCard{Email: lead.Email, Name: lead.Name})
	if crmErr != nil {
		h.logger.Warn("CRM upsert skipped",
			slog.String("request_id", requestID),
			slog.String("error", crmErr.Error()))
	}
	emitEvent(h.collector, metrics.MetricEvent{
		Type:    metrics.EventUpstreamCall,
		Service: upstream.ServiceCRM,
		Failed:  crmErr != nil,
	})

	h.subscribe(r, requestID, lead)

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// subscribe adds the lead to the mailing list unless a cached or live
// lookup shows an active subscription already.
func (h *LeadHandler) subscribe(r *http.Request, requestID string, lead LeadRequest) {
	ctx := r.Context()

	if sub, err := h.mailerlite.FindSubscriber(ctx, lead.Email); err == nil && sub.Status == "active" {
		h.logger.Debug("Already subscribed",
			slog.String("request_id", requestID),
			slog.String("email", upstream.NormalizeEmail(lead.Email)))
		return
	}

	err := h.mailerlite.Subscribe(ctx, lead.Email, lead.Name)
	if err != nil {
		h.logger.Warn("Subscription skipped",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
	}

	emitEvent(h.collector, metrics.MetricEvent{
		Type:    metrics.EventUpstreamCall,
		Service: upstream.ServiceMailerLite,
		Failed:  err != nil,
	})
}
