// nethost is the accepting side of a session: it binds a UDP transport,
// runs a HostPeer, and serves metrics and admin HTTP endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/nginetechnologies/sceneri-core-sub009/internal/adminapi"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/config"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/metrics"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/netid"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/peer"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/transport"
	appversion "github.com/nginetechnologies/sceneri-core-sub009/internal/version"
)

// shutdownTimeout is the maximum time to wait for HTTP servers to drain
// active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// 1. Parse flags.
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	// 2. Load config.
	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	// 3. Set up logger.
	logger := newLogger(cfg.Log)

	logger.Info("nethost starting",
		slog.String("version", appversion.Version),
		slog.String("listen_addr", cfg.Host.ListenAddr),
		slog.String("admin_addr", cfg.Admin.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	// 4. Create Prometheus metrics collector.
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	// 5. Create the UDP transport and HostPeer.
	t, err := transport.NewUDPTransport(cfg.Host.ListenAddr, logger)
	if err != nil {
		logger.Error("failed to bind host transport",
			slog.String("error", err.Error()),
		)
		return 1
	}
	defer t.Close()

	host := peer.NewHostPeer(logger, t, cfg.Host.UpdatePeriod)
	if cfg.Host.OutboundRatePerSecond > 0 {
		host.SetSendRateLimit(cfg.Host.OutboundRatePerSecond, cfg.Host.OutboundBurst)
	}
	wireHostMetrics(host, collector, cfg.Host.MaxClients, logger)

	// 6. Run servers.
	if err := runServers(cfg, host, reg, logger); err != nil {
		logger.Error("nethost exited with error",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logger.Info("nethost stopped")
	return 0
}

// wireHostMetrics attaches connect/disconnect callbacks that update the
// ConnectedClients gauge and enforce max_clients by force-disconnecting
// clients over the configured limit.
func wireHostMetrics(host *peer.HostPeer, collector *metrics.Collector, maxClients int, logger *slog.Logger) {
	host.OnClientConnected(func(client netid.ClientIdentifier, _ transport.PeerHandle, _ netid.BoundObjectIdentifier) {
		collector.IncConnectedClients()
		if maxClients > 0 && len(host.Clients()) > maxClients {
			logger.Warn("rejecting client over max_clients limit",
				slog.Int("max_clients", maxClients),
			)
			if err := host.ForceDisconnectClient(client); err != nil {
				logger.Warn("failed to disconnect over-limit client",
					slog.String("error", err.Error()),
				)
			}
		}
	})
	host.OnClientDisconnected(func(netid.ClientIdentifier) {
		collector.DecConnectedClients()
	})
}

// runServers sets up and runs the transport service loop, the admin HTTP
// API, and the metrics HTTP server using an errgroup with signal-aware
// context for graceful shutdown.
func runServers(
	cfg *config.Config,
	host *peer.HostPeer,
	reg *prometheus.Registry,
	logger *slog.Logger,
) error {
	metricsSrv := newMetricsServer(cfg.Metrics, reg)
	adminSrv := adminapi.New(host, logger)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runHostLoop(gCtx, host, cfg.Host.UpdatePeriod, logger)
	})

	startHTTPServers(gCtx, g, cfg, adminSrv, metricsSrv, logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, logger, adminSrv, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

// runHostLoop ticks the HostPeer on updatePeriod until ctx is cancelled.
// Each tick sends the due property-stream pass first and then drains all
// pending transport events (see HostPeer.Tick).
func runHostLoop(ctx context.Context, host *peer.HostPeer, updatePeriod time.Duration, _ *slog.Logger) error {
	if updatePeriod <= 0 {
		updatePeriod = time.Second / 120
	}
	ticker := time.NewTicker(updatePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			host.Tick(now)
		}
	}
}

// startHTTPServers registers the admin and metrics HTTP server goroutines.
func startHTTPServers(
	ctx context.Context,
	g *errgroup.Group,
	cfg *config.Config,
	adminSrv *adminapi.Server,
	metricsSrv *http.Server,
	logger *slog.Logger,
) {
	if cfg.Admin.Addr != "" {
		g.Go(func() error {
			logger.Info("admin server listening", slog.String("addr", cfg.Admin.Addr))
			if err := adminSrv.Run(cfg.Admin.Addr); err != nil {
				return fmt.Errorf("serve admin api: %w", err)
			}
			return nil
		})
	}

	lc := net.ListenConfig{}
	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(ctx, &lc, metricsSrv, cfg.Metrics.Addr)
	})
}

// gracefulShutdown shuts down the admin and metrics HTTP servers within
// shutdownTimeout.
func gracefulShutdown(
	ctx context.Context,
	logger *slog.Logger,
	adminSrv *adminapi.Server,
	metricsSrv *http.Server,
) error {
	logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	if err := adminSrv.Echo().Shutdown(shutdownCtx); err != nil {
		shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown admin api: %w", err))
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown metrics server: %w", err))
	}
	return shutdownErr
}

// listenAndServe creates a TCP listener using the ListenConfig (for noctx
// compliance) and serves HTTP requests until the server is shut down.
func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

// newMetricsServer creates an HTTP server for the Prometheus metrics endpoint.
func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
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
