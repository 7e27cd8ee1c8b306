// Package config handles loading and parsing of configuration from YAML
// files and environment variables. It defines the application
// configuration structure: server settings, rate-limit policies, cache
// and dedup windows, circuit breaker tuning, proxy hosts and upstream
// endpoints.
package config
