// Package upstream provides thin clients for the third-party services the
// functions layer talks to: the CRM contact-card API, the MailerLite
// subscriber API and the Stripe Payment Intents API.
//
// Every call goes through a named circuit breaker and a per-call timeout,
// so a degraded service fails fast instead of holding request handlers.
// Subscriber lookups consult a TTL cache first to avoid redundant
// round-trips from a warm instance.
package upstream
