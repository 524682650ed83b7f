package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/joho/godotenv"
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

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type ForwarderConfig struct {
	APIPrefix string `mapstructure:"api_prefix"`
	Origin    string `mapstructure:"origin"`
	Timeout   string `mapstructure:"timeout"`
}

// BackendConfig describes one candidate. NaturalOrigin candidates never
// receive a forced Origin header.
type BackendConfig struct {
	URL           string `mapstructure:"url"`
	NaturalOrigin bool   `mapstructure:"natural_origin"`
}

type BackendsConfig struct {
	Preferred BackendConfig   `mapstructure:"preferred"`
	Fallbacks []BackendConfig `mapstructure:"fallbacks"`
}

type PassthroughConfig struct {
	URL string `mapstructure:"url"`
}

type StoreConfig struct {
	Type     string `mapstructure:"type"`
	RedisURL string `mapstructure:"redis_url"`
}

type LifecycleConfig struct {
	CacheName string      `mapstructure:"cache_name"`
	Store     StoreConfig `mapstructure:"store"`
}

type MetricsConfig struct {
	Path string `mapstructure:"path"`
}

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Forwarder   ForwarderConfig   `mapstructure:"forwarder"`
	Backends    BackendsConfig    `mapstructure:"backends"`
	Passthrough PassthroughConfig `mapstructure:"passthrough"`
	Lifecycle   LifecycleConfig   `mapstructure:"lifecycle"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to read .env file", slog.String("error", err.Error()))
	}

	v := viper.New()

	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("logging.level", LogLevelInfo)
	v.SetDefault("forwarder.api_prefix", "/api/")
	v.SetDefault("forwarder.origin", "http://localhost:3000")
	v.SetDefault("forwarder.timeout", "10s")
	v.SetDefault("backends.preferred.url", "http://localhost:8000")
	v.SetDefault("backends.preferred.natural_origin", false)
	v.SetDefault("passthrough.url", "")
	v.SetDefault("lifecycle.cache_name", "api-failover-v1")
	v.SetDefault("lifecycle.store.type", StoreMemory)
	v.SetDefault("lifecycle.store.redis_url", "")
	v.SetDefault("metrics.path", "/_failover/metrics")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Warn("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if cfg.Passthrough.URL == "" {
		cfg.Passthrough.URL = cfg.Forwarder.Origin
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

// Candidates returns the preferred backend followed by the fallbacks,
// in attempt order.
func (c *Config) Candidates() []BackendConfig {
	candidates := make([]BackendConfig, 0, len(c.Backends.Fallbacks)+1)
	candidates = append(candidates, c.Backends.Preferred)
	return append(candidates, c.Backends.Fallbacks...)
}

// AttemptTimeout returns the parsed per-attempt timeout. Validate guarantees
// it parses.
func (c *Config) AttemptTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Forwarder.Timeout)
	return d
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
		validation.Field(&c.Forwarder,
			validation.Required,
			validation.By(func(value interface{}) error {
				fc, ok := value.(ForwarderConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ForwarderConfig")
				}
				return validation.ValidateStruct(&fc,
					validation.Field(&fc.APIPrefix,
						validation.Required,
						validation.By(validatePrefix),
					),
					validation.Field(&fc.Origin,
						validation.Required,
						validation.By(validateServerURL),
					),
					validation.Field(&fc.Timeout,
						validation.Required,
						validation.By(validateDuration),
					),
				)
			}),
		),
		validation.Field(&c.Backends,
			validation.By(func(value interface{}) error {
				bc, ok := value.(BackendsConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a BackendsConfig")
				}
				return validation.ValidateStruct(&bc,
					validation.Field(&bc.Preferred, validation.By(validateBackendConfig)),
					validation.Field(&bc.Fallbacks, validation.Each(validation.By(validateBackendConfig))),
				)
			}),
		),
		validation.Field(&c.Passthrough,
			validation.By(func(value interface{}) error {
				pc, ok := value.(PassthroughConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a PassthroughConfig")
				}
				return validation.ValidateStruct(&pc,
					validation.Field(&pc.URL, validation.Required, validation.By(validateServerURL)),
				)
			}),
		),
		validation.Field(&c.Lifecycle,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LifecycleConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LifecycleConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.CacheName, validation.Required),
					validation.Field(&lc.Store, validation.By(validateStoreConfig)),
				)
			}),
		),
		validation.Field(&c.Metrics,
			validation.By(func(value interface{}) error {
				mc, ok := value.(MetricsConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a MetricsConfig")
				}
				return validation.ValidateStruct(&mc,
					validation.Field(&mc.Path,
						validation.Required,
						validation.By(validatePrefix),
						validation.By(outsidePrefix(c.Forwarder.APIPrefix)),
					),
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

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 500ms, 10s)")
	}

	if d <= 0 {
		return validation.NewError("validation_invalid_duration", "must be positive")
	}

	return nil
}

func validatePrefix(value interface{}) error {
	prefix, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if !strings.HasPrefix(prefix, "/") {
		return validation.NewError("validation_invalid_prefix", "must start with /")
	}

	return nil
}

// outsidePrefix rejects paths that would shadow part of the forwarded scope.
func outsidePrefix(apiPrefix string) validation.RuleFunc {
	return func(value interface{}) error {
		path, ok := value.(string)
		if !ok {
			return validation.NewError("validation_invalid_type", "must be a string")
		}

		if apiPrefix != "" && strings.HasPrefix(path, apiPrefix) {
			return validation.NewError("validation_path_in_scope", "must not start with the API prefix "+apiPrefix)
		}

		return nil
	}
}

func validateServerURL(value interface{}) error {
	serverURL, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if serverURL == "" {
		return validation.NewError("validation_empty_url", "server URL cannot be empty")
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

func validateBackendConfig(value interface{}) error {
	backend, ok := value.(BackendConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a BackendConfig")
	}

	if backend.URL == "" {
		return validation.NewError("validation_empty_url", "backend URL cannot be empty")
	}

	return validateServerURL(backend.URL)
}

func validateStoreConfig(value interface{}) error {
	sc, ok := value.(StoreConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a StoreConfig")
	}

	return validation.ValidateStruct(&sc,
		validation.Field(&sc.Type,
			validation.Required,
			validation.In(StoreMemory, StoreRedis),
		),
		validation.Field(&sc.RedisURL,
			validation.When(sc.Type == StoreRedis, validation.Required, is.RequestURI),
		),
	)
}
