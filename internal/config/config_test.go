package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nginetechnologies/sceneri-core-sub009/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.Host.ListenAddr != ":7777" {
		t.Errorf("Host.ListenAddr = %q, want %q", cfg.Host.ListenAddr, ":7777")
	}

	if cfg.Host.UpdatePeriod != time.Second/120 {
		t.Errorf("Host.UpdatePeriod = %v, want %v", cfg.Host.UpdatePeriod, time.Second/120)
	}

	if cfg.Client.ConnectTimeout != 5*time.Second {
		t.Errorf("Client.ConnectTimeout = %v, want %v", cfg.Client.ConnectTimeout, 5*time.Second)
	}

	if cfg.Admin.Addr != "127.0.0.1:8088" {
		t.Errorf("Admin.Addr = %q, want %q", cfg.Admin.Addr, "127.0.0.1:8088")
	}

	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}

	// Defaults must pass validation.
	if err := config.Validate(cfg); err != nil {
		t.Errorf("DefaultConfig() failed validation: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
host:
  listen_addr: ":60000"
  max_clients: 64
client:
  host_addr: "127.0.0.1:7777"
  connect_timeout: "10s"
admin:
  addr: "127.0.0.1:9999"
metrics:
  addr: ":9200"
  path: "/custom-metrics"
log:
  level: "debug"
  format: "text"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Host.ListenAddr != ":60000" {
		t.Errorf("Host.ListenAddr = %q, want %q", cfg.Host.ListenAddr, ":60000")
	}

	if cfg.Host.MaxClients != 64 {
		t.Errorf("Host.MaxClients = %d, want %d", cfg.Host.MaxClients, 64)
	}

	if cfg.Client.HostAddr != "127.0.0.1:7777" {
		t.Errorf("Client.HostAddr = %q, want %q", cfg.Client.HostAddr, "127.0.0.1:7777")
	}

	if cfg.Client.ConnectTimeout != 10*time.Second {
		t.Errorf("Client.ConnectTimeout = %v, want %v", cfg.Client.ConnectTimeout, 10*time.Second)
	}

	if cfg.Admin.Addr != "127.0.0.1:9999" {
		t.Errorf("Admin.Addr = %q, want %q", cfg.Admin.Addr, "127.0.0.1:9999")
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Metrics.Path != "/custom-metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/custom-metrics")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}

	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	t.Parallel()

	// Partial YAML: only override host.listen_addr and log.level.
	// Everything else should inherit from defaults.
	yamlContent := `
host:
  listen_addr: ":55555"
log:
  level: "warn"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	// Overridden values.
	if cfg.Host.ListenAddr != ":55555" {
		t.Errorf("Host.ListenAddr = %q, want %q", cfg.Host.ListenAddr, ":55555")
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}

	// Default values should be preserved.
	if cfg.Admin.Addr != "127.0.0.1:8088" {
		t.Errorf("Admin.Addr = %q, want default %q", cfg.Admin.Addr, "127.0.0.1:8088")
	}

	if cfg.Metrics.Addr != ":9100" {
		t.Errorf("Metrics.Addr = %q, want default %q", cfg.Metrics.Addr, ":9100")
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want default %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want default %q", cfg.Log.Format, "json")
	}

	if cfg.Client.ConnectTimeout != 5*time.Second {
		t.Errorf("Client.ConnectTimeout = %v, want default %v", cfg.Client.ConnectTimeout, 5*time.Second)
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name: "empty host listen addr",
			modify: func(cfg *config.Config) {
				cfg.Host.ListenAddr = ""
			},
			wantErr: config.ErrEmptyHostListenAddr,
		},
		{
			name: "negative host update period",
			modify: func(cfg *config.Config) {
				cfg.Host.UpdatePeriod = -1 * time.Second
			},
			wantErr: config.ErrInvalidUpdatePeriod,
		},
		{
			name: "negative client update period",
			modify: func(cfg *config.Config) {
				cfg.Client.UpdatePeriod = -1 * time.Second
			},
			wantErr: config.ErrInvalidUpdatePeriod,
		},
		{
			name: "zero client connect timeout",
			modify: func(cfg *config.Config) {
				cfg.Client.ConnectTimeout = 0
			},
			wantErr: config.ErrInvalidConnectTimeout,
		},
		{
			name: "negative client connect timeout",
			modify: func(cfg *config.Config) {
				cfg.Client.ConnectTimeout = -1 * time.Second
			},
			wantErr: config.ErrInvalidConnectTimeout,
		},
		{
			name: "negative max clients",
			modify: func(cfg *config.Config) {
				cfg.Host.MaxClients = -1
			},
			wantErr: config.ErrInvalidMaxClients,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "INFO", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "WARN", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "Error", want: slog.LevelError},
		{input: "unknown", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
		{input: "trace", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got := config.ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load("/nonexistent/path/config.yml")
	if err == nil {
		t.Fatal("Load() returned nil error for nonexistent file")
	}
}

// -------------------------------------------------------------------------
// Environment Variable Override Tests
// -------------------------------------------------------------------------

func TestLoadEnvOverrides(t *testing.T) {
	// Environment variable tests cannot be parallel because they modify
	// process-wide state (os.Setenv).

	yamlContent := `
host:
  listen_addr: ":7777"
log:
  level: "info"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("NETPEER_HOST_LISTEN_ADDR", ":60000")
	t.Setenv("NETPEER_LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Host.ListenAddr != ":60000" {
		t.Errorf("Host.ListenAddr = %q, want %q (from env)", cfg.Host.ListenAddr, ":60000")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (from env)", cfg.Log.Level, "debug")
	}
}

func TestLoadEnvOverridesMetrics(t *testing.T) {
	yamlContent := `
host:
  listen_addr: ":7777"
metrics:
  addr: ":9100"
  path: "/metrics"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("NETPEER_METRICS_ADDR", ":9200")
	t.Setenv("NETPEER_METRICS_PATH", "/custom")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Metrics.Addr != ":9200" {
		t.Errorf("Metrics.Addr = %q, want %q (from env)", cfg.Metrics.Addr, ":9200")
	}

	if cfg.Metrics.Path != "/custom" {
		t.Errorf("Metrics.Path = %q, want %q (from env)", cfg.Metrics.Path, "/custom")
	}
}

// writeTemp creates a temporary YAML file and returns its path.
// The file is automatically cleaned up when the test finishes.
func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}
