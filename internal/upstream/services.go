package upstream

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/launchkit/edge-middleware/internal/cache"
	"github.com/launchkit/edge-middleware/internal/circuitbreaker"
)

// Breaker names, one per upstream dependency.
const (
	ServiceCRM        = "crm"
	ServiceMailerLite = "mailerlite"
	ServiceStripe     = "stripe"
)

// ContactCard is the shape the CRM accepts for lead upserts.
type ContactCard struct {
	Email string   `json:"email"`
	Name  string   `json:"name,omitempty"`
	Tags  []string `json:"tags,omitempty"`
}

// Subscriber is a MailerLite subscriber record. Only the fields the
// middleware touches are modeled.
type Subscriber struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Status string `json:"status"`
}

// PaymentIntent is the slice of Stripe's Payment Intent the conversion
// path reads: the id and the metadata carrying the order reference.
type PaymentIntent struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata"`
}

// CRM upserts contact cards for captured leads.
type CRM struct {
	client *client
}

func NewCRM(baseURL, apiKey string, timeout time.Duration, registry *circuitbreaker.Registry, logger *slog.Logger) *CRM {
	return &CRM{
		client: newClient(ServiceCRM, baseURL, apiKey, timeout, registry.GetBreaker(ServiceCRM), logger),
	}
}

func (c *CRM) UpsertContact(ctx context.Context, card ContactCard) error {
	return c.client.doJSON(ctx, http.MethodPost, "/contacts", card, nil)
}

// MailerLite manages subscribers, with a TTL cache in front of lookups so
// a warm instance answers repeat lookups without a round-trip.
type MailerLite struct {
	client    *client
	customers *cache.Cache[Subscriber]
}

func NewMailerLite(baseURL, apiKey string, timeout time.Duration, registry *circuitbreaker.Registry, customers *cache.Cache[Subscriber], logger *slog.Logger) *MailerLite {
	return &MailerLite{
		client:    newClient(ServiceMailerLite, baseURL, apiKey, timeout, registry.GetBreaker(ServiceMailerLite), logger),
		customers: customers,
	}
}

// NormalizeEmail is the cache key for subscriber lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FindSubscriber returns the subscriber for email, from cache when fresh.
func (m *MailerLite) FindSubscriber(ctx context.Context, email string) (Subscriber, error) {
	key := NormalizeEmail(email)

	if sub, ok := m.customers.Get(key); ok {
		return sub, nil
	}

	var sub Subscriber
	if err := m.client.doJSON(ctx, http.MethodGet, "/subscribers/"+key, nil, &sub); err != nil {
		return Subscriber{}, err
	}

	m.customers.Set(key, sub)
	return sub, nil
}

func (m *MailerLite) Subscribe(ctx context.Context, email, name string) error {
	payload := map[string]string{
		"email": NormalizeEmail(email),
		"name":  name,
	}

	var sub Subscriber
	if err := m.client.doJSON(ctx, http.MethodPost, "/subscribers", payload, &sub); err != nil {
		return err
	}

	m.customers.Set(NormalizeEmail(email), sub)
	return nil
}

// Stripe reads Payment Intents to verify conversion events.
type Stripe struct {
	client *client
}

func NewStripe(baseURL, apiKey string, timeout time.Duration, registry *circuitbreaker.Registry, logger *slog.Logger) *Stripe {
	return &Stripe{
		client: newClient(ServiceStripe, baseURL, apiKey, timeout, registry.GetBreaker(ServiceStripe), logger),
	}
}

func (s *Stripe) PaymentIntent(ctx context.Context, id string) (PaymentIntent, error) {
	var intent PaymentIntent
	if err := s.client.doJSON(ctx, http.MethodGet, "/v1/payment_intents/"+id, nil, &intent); err != nil {
		return PaymentIntent{}, err
	}

	return intent, nil
}
