// Package config manages the networking core's daemon configuration using
// koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete peer daemon configuration.
type Config struct {
	Host    HostConfig    `koanf:"host"`
	Client  ClientConfig  `koanf:"client"`
	Admin   AdminConfig   `koanf:"admin"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
}

// HostConfig holds cmd/nethost's listen and session-wide parameters.
type HostConfig struct {
	// ListenAddr is the UDP address the host binds (e.g., ":7777").
	ListenAddr string `koanf:"listen_addr"`

	// UpdatePeriod is the property-stream send-pass rate limit, applied per
	// (peer, MessageType). Zero selects peer.DefaultUpdatePeriod (120 Hz).
	UpdatePeriod time.Duration `koanf:"update_period"`

	// OutboundRatePerSecond and OutboundBurst configure the peer-wide
	// outbound send limiter (rate <= 0 disables limiting).
	OutboundRatePerSecond float64 `koanf:"outbound_rate_per_second"`
	OutboundBurst         int     `koanf:"outbound_burst"`

	// MaxClients bounds how many clients may be connected simultaneously;
	// 0 means unbounded.
	MaxClients int `koanf:"max_clients"`
}

// ClientConfig holds cmd/netclient's connection parameters.
type ClientConfig struct {
	// HostAddr is the host's UDP address to connect to.
	HostAddr string `koanf:"host_addr"`

	// ConnectTimeout bounds how long Connect waits for the host's
	// handshake before giving up.
	ConnectTimeout time.Duration `koanf:"connect_timeout"`

	UpdatePeriod          time.Duration `koanf:"update_period"`
	OutboundRatePerSecond float64       `koanf:"outbound_rate_per_second"`
	OutboundBurst         int           `koanf:"outbound_burst"`
}

// AdminConfig holds the internal/adminapi HTTP introspection surface.
type AdminConfig struct {
	// Addr is the HTTP listen address for the admin API (e.g.,
	// "127.0.0.1:8088"). Empty disables the admin API entirely.
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Host: HostConfig{
			ListenAddr:            ":7777",
			UpdatePeriod:          time.Second / 120,
			OutboundRatePerSecond: 0,
			OutboundBurst:         0,
			MaxClients:            0,
		},
		Client: ClientConfig{
			ConnectTimeout:        5 * time.Second,
			UpdatePeriod:          time.Second / 120,
			OutboundRatePerSecond: 0,
			OutboundBurst:         0,
		},
		Admin: AdminConfig{
			Addr: "127.0.0.1:8088",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for peer-daemon
// configuration. Variables are named NETPEER_<section>_<key>, e.g.
// NETPEER_HOST_LISTEN_ADDR.
const envPrefix = "NETPEER_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (NETPEER_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	NETPEER_HOST_LISTEN_ADDR   -> host.listen_addr
//	NETPEER_CLIENT_HOST_ADDR   -> client.host_addr
//	NETPEER_ADMIN_ADDR         -> admin.addr
//	NETPEER_METRICS_ADDR       -> metrics.addr
//	NETPEER_LOG_LEVEL          -> log.level
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms NETPEER_HOST_LISTEN_ADDR -> host.listen_addr.
// Only the first underscore separates the section from the key; the rest
// belong to the key name itself.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"host.listen_addr":               defaults.Host.ListenAddr,
		"host.update_period":             defaults.Host.UpdatePeriod.String(),
		"host.outbound_rate_per_second":  defaults.Host.OutboundRatePerSecond,
		"host.outbound_burst":            defaults.Host.OutboundBurst,
		"host.max_clients":               defaults.Host.MaxClients,
		"client.connect_timeout":         defaults.Client.ConnectTimeout.String(),
		"client.update_period":           defaults.Client.UpdatePeriod.String(),
		"client.outbound_rate_per_second": defaults.Client.OutboundRatePerSecond,
		"client.outbound_burst":          defaults.Client.OutboundBurst,
		"admin.addr":                     defaults.Admin.Addr,
		"metrics.addr":                   defaults.Metrics.Addr,
		"metrics.path":                   defaults.Metrics.Path,
		"log.level":                      defaults.Log.Level,
		"log.format":                     defaults.Log.Format,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyHostListenAddr indicates the host's UDP listen address is empty.
	ErrEmptyHostListenAddr = errors.New("host.listen_addr must not be empty")

	// ErrInvalidUpdatePeriod indicates an update period is negative.
	ErrInvalidUpdatePeriod = errors.New("update_period must be >= 0")

	// ErrInvalidConnectTimeout indicates the client connect timeout is not positive.
	ErrInvalidConnectTimeout = errors.New("client.connect_timeout must be > 0")

	// ErrInvalidMaxClients indicates host.max_clients is negative.
	ErrInvalidMaxClients = errors.New("host.max_clients must be >= 0")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Host.ListenAddr == "" {
		return ErrEmptyHostListenAddr
	}
	if cfg.Host.UpdatePeriod < 0 || cfg.Client.UpdatePeriod < 0 {
		return ErrInvalidUpdatePeriod
	}
	if cfg.Client.ConnectTimeout <= 0 {
		return ErrInvalidConnectTimeout
	}
	if cfg.Host.MaxClients < 0 {
		return ErrInvalidMaxClients
	}
	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
