// netclient is the connecting side of a session: it dials a nethost over
// UDP and runs a ClientPeer until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/nginetechnologies/sceneri-core-sub009/internal/config"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/netid"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/peer"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/transport"
	appversion "github.com/nginetechnologies/sceneri-core-sub009/internal/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	// 1. Parse flags.
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	hostAddr := flag.String("host", "", "override client.host_addr from config")
	flag.Parse()

	// 2. Load config.
	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}
	if *hostAddr != "" {
		cfg.Client.HostAddr = *hostAddr
	}

	// 3. Set up logger.
	logger := newLogger(cfg.Log)

	logger.Info("netclient starting",
		slog.String("version", appversion.Version),
		slog.String("host_addr", cfg.Client.HostAddr),
	)

	// 4. Create the UDP transport bound to an ephemeral local port and the
	// ClientPeer.
	t, err := transport.NewUDPTransport(":0", logger)
	if err != nil {
		logger.Error("failed to bind client transport",
			slog.String("error", err.Error()),
		)
		return 1
	}
	defer t.Close()

	client := peer.NewClientPeer(logger, t, cfg.Client.UpdatePeriod)
	if cfg.Client.OutboundRatePerSecond > 0 {
		client.SetSendRateLimit(cfg.Client.OutboundRatePerSecond, cfg.Client.OutboundBurst)
	}
	var disconnected atomic.Bool
	wireClientLogging(client, logger, &disconnected)

	// 5. Connect and run until interrupted or the host session ends.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := connectWithTimeout(ctx, client, cfg.Client.HostAddr, cfg.Client.ConnectTimeout); err != nil {
		logger.Error("failed to connect to host",
			slog.String("error", err.Error()),
		)
		return 1
	}
	defer client.Disconnect() //nolint:errcheck // best-effort on shutdown.

	runClientLoop(ctx, client, cfg.Client.UpdatePeriod, &disconnected)

	logger.Info("netclient stopped")
	return 0
}

// wireClientLogging attaches connect/disconnect callbacks that log the
// session lifecycle and flip disconnected once the host tears down the
// session.
func wireClientLogging(client *peer.ClientPeer, logger *slog.Logger, disconnected *atomic.Bool) {
	client.OnConnected(func(selfClient netid.ClientIdentifier, selfObject netid.BoundObjectIdentifier) {
		logger.Info("connected to host",
			slog.Uint64("client_id", uint64(selfClient)),
			slog.Uint64("self_object_id", uint64(selfObject)),
		)
	})
	client.OnDisconnected(func() {
		logger.Info("disconnected from host")
		disconnected.Store(true)
	})
}

// connectWithTimeout dials addr, bounding the handshake wait by timeout.
func connectWithTimeout(ctx context.Context, client *peer.ClientPeer, addr string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Connect(connectCtx, addr); err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}
	return nil
}

// runClientLoop services the transport and ticks the ClientPeer on
// updatePeriod until ctx is cancelled or the host disconnects the session.
func runClientLoop(ctx context.Context, client *peer.ClientPeer, updatePeriod time.Duration, disconnected *atomic.Bool) {
	if updatePeriod <= 0 {
		updatePeriod = time.Second / 120
	}
	ticker := time.NewTicker(updatePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			client.Tick(now)
		default:
		}

		if disconnected.Load() {
			return
		}

		time.Sleep(time.Millisecond)
	}
}

// loadConfig loads configuration from a file path or returns defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

// newLogger creates a structured logger per the configured level and format.
func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: config.ParseLogLevel(cfg.Level)}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
