package config

import (
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type RateLimitPolicy struct {
	Window      string `mapstructure:"window"`
	MaxRequests int    `mapstructure:"max_requests"`
}

type RateLimitConfig struct {
	Lead    RateLimitPolicy `mapstructure:"lead"`
	Collect RateLimitPolicy `mapstructure:"collect"`
	MaxKeys int             `mapstructure:"max_keys"`
}

type CustomerCacheConfig struct {
	TTL     string `mapstructure:"ttl"`
	MaxSize int    `mapstructure:"max_size"`
}

type DedupConfig struct {
	TTL     string `mapstructure:"ttl"`
	MaxSize int    `mapstructure:"max_size"`
}

type CircuitBreakerConfig struct {
	FailureThreshold int    `mapstructure:"failure_threshold"`
	ResetTimeout     string `mapstructure:"reset_timeout"`
}

type ProxyConfig struct {
	ProductionHost string `mapstructure:"production_host"`
	PreviewHost    string `mapstructure:"preview_host"`
	PublicOrigin   string `mapstructure:"public_origin"`
	MountPath      string `mapstructure:"mount_path"`
	Timeout        string `mapstructure:"timeout"`
}

type UpstreamsConfig struct {
	CRMURL        string `mapstructure:"crm_url"`
	CRMKey        string `mapstructure:"crm_key"`
	MailerLiteURL string `mapstructure:"mailerlite_url"`
	MailerLiteKey string `mapstructure:"mailerlite_key"`
	StripeURL     string `mapstructure:"stripe_url"`
	StripeKey     string `mapstructure:"stripe_key"`
	Timeout       string `mapstructure:"timeout"`
}

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	CustomerCache  CustomerCacheConfig  `mapstructure:"customer_cache"`
	Dedup          DedupConfig          `mapstructure:"dedup"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Proxy          ProxyConfig          `mapstructure:"proxy"`
	Upstreams      UpstreamsConfig      `mapstructure:"upstreams"`
}

func Load() (*Config, error) {
	viper.SetDefault("server.environment", EnvDev)
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("logging.level", LogLevelInfo)
	viper.SetDefault("rate_limit.lead.window", "10m")
	viper.SetDefault("rate_limit.lead.max_requests", 8)
	viper.SetDefault("rate_limit.collect.window", "1m")
	viper.SetDefault("rate_limit.collect.max_requests", 120)
	viper.SetDefault("rate_limit.max_keys", 500)
	viper.SetDefault("customer_cache.ttl", "10m")
	viper.SetDefault("customer_cache.max_size", 500)
	viper.SetDefault("dedup.ttl", "30m")
	viper.SetDefault("dedup.max_size", 1000)
	viper.SetDefault("circuit_breaker.failure_threshold", 5)
	viper.SetDefault("circuit_breaker.reset_timeout", "30s")
	viper.SetDefault("proxy.mount_path", "/api/tag")
	viper.SetDefault("proxy.timeout", "10s")
	viper.SetDefault("upstreams.mailerlite_url", "https://connect.mailerlite.com/api")
	viper.SetDefault("upstreams.stripe_url", "https://api.stripe.com")
	viper.SetDefault("upstreams.timeout", "5s")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Error("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", viper.ConfigFileUsed()))
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.RateLimit,
			validation.Required,
			validation.By(func(value interface{}) error {
				rl, ok := value.(RateLimitConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a RateLimitConfig")
				}
				return validation.ValidateStruct(&rl,
					validation.Field(&rl.Lead, validation.Required, validation.By(validateRateLimitPolicy)),
					validation.Field(&rl.Collect, validation.Required, validation.By(validateRateLimitPolicy)),
					validation.Field(&rl.MaxKeys, validation.Required, validation.Min(1)),
				)
			}),
		),
		validation.Field(&c.CustomerCache,
			validation.Required,
			validation.By(func(value interface{}) error {
				cc, ok := value.(CustomerCacheConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a CustomerCacheConfig")
				}
				return validation.ValidateStruct(&cc,
					validation.Field(&cc.TTL, validation.Required, validation.By(validateDuration)),
					validation.Field(&cc.MaxSize, validation.Required, validation.Min(1)),
				)
			}),
		),
		validation.Field(&c.Dedup,
			validation.Required,
			validation.By(func(value interface{}) error {
				dc, ok := value.(DedupConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a DedupConfig")
				}
				return validation.ValidateStruct(&dc,
					validation.Field(&dc.TTL, validation.Required, validation.By(validateDuration)),
					validation.Field(&dc.MaxSize, validation.Required, validation.Min(1)),
				)
			}),
		),
		validation.Field(&c.CircuitBreaker,
			validation.Required,
			validation.By(func(value interface{}) error {
				cb, ok := value.(CircuitBreakerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a CircuitBreakerConfig")
				}
				return validation.ValidateStruct(&cb,
					validation.Field(&cb.FailureThreshold, validation.Required, validation.Min(1)),
					validation.Field(&cb.ResetTimeout, validation.Required, validation.By(validateDuration)),
				)
			}),
		),
		validation.Field(&c.Proxy,
			validation.Required,
			validation.By(func(value interface{}) error {
				pc, ok := value.(ProxyConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ProxyConfig")
				}
				return validation.ValidateStruct(&pc,
					validation.Field(&pc.ProductionHost, validation.Required, validation.By(validateServerURL)),
					validation.Field(&pc.PreviewHost, validation.Required, validation.By(validateServerURL)),
					validation.Field(&pc.PublicOrigin, validation.Required, validation.By(validateServerURL)),
					validation.Field(&pc.MountPath, validation.Required, validation.By(validateMountPath)),
					validation.Field(&pc.Timeout, validation.Required, validation.By(validateDuration)),
				)
			}),
		),
		validation.Field(&c.Upstreams,
			validation.Required,
			validation.By(func(value interface{}) error {
				uc, ok := value.(UpstreamsConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be an UpstreamsConfig")
				}
				return validation.ValidateStruct(&uc,
					validation.Field(&uc.CRMURL, validation.Required, validation.By(validateServerURL)),
					validation.Field(&uc.MailerLiteURL, validation.Required, validation.By(validateServerURL)),
					validation.Field(&uc.StripeURL, validation.Required, validation.By(validateServerURL)),
					validation.Field(&uc.Timeout, validation.Required, validation.By(validateDuration)),
				)
			}),
		),
	)
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if _, err := time.ParseDuration(durationStr); err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}

	return nil
}

func validateServerURL(value interface{}) error {
	serverURL, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if serverURL == "" {
		return validation.NewError("validation_empty_url", "URL cannot be empty")
	}

	parsedURL, err := url.Parse(serverURL)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	return nil
}

func validateMountPath(value interface{}) error {
	path, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if !strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") {
		return validation.NewError("validation_invalid_mount_path", "must start with '/' and not end with one")
	}

	return nil
}

func validateRateLimitPolicy(value interface{}) error {
	policy, ok := value.(RateLimitPolicy)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a RateLimitPolicy")
	}

	if err := validateDuration(policy.Window); err != nil {
		return err
	}

	if policy.MaxRequests < 1 {
		return validation.NewError("validation_invalid_max_requests", "max_requests must be at least 1")
	}

	return nil
}
