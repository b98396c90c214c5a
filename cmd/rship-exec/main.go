// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/rship-exec/internal/statichost"
	"github.com/bureau-foundation/rship-exec/lib/clock"
	"github.com/bureau-foundation/rship-exec/lib/config"
	"github.com/bureau-foundation/rship-exec/lib/idstore"
	"github.com/bureau-foundation/rship-exec/lib/rshiplink"
	"github.com/bureau-foundation/rship-exec/lib/targettree"
	"github.com/bureau-foundation/rship-exec/lib/version"
	"github.com/bureau-foundation/rship-exec/lifecycle"
	"github.com/bureau-foundation/rship-exec/syncclient"
	"github.com/bureau-foundation/rship-exec/transport"
)

// loopCapacity bounds events queued for the lifecycle loop. Posting
// to a full queue drops the event and logs a warning.
const loopCapacity = 1024

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("rship-exec", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the configuration file (default: $"+config.EnvVar+")")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("rship-exec %s\n", version.Full())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, logger)
}

func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store, err := openStore(cfg.Paths.IDStore, logger)
	if err != nil {
		return err
	}

	address, err := lifecycle.ParseServerAddress(cfg.ServerURL())
	if err != nil {
		return fmt.Errorf("server address: %w", err)
	}

	loop := lifecycle.NewLoop(loopCapacity)
	post := func(event func()) bool {
		if !loop.Post(event) {
			logger.Warn("lifecycle loop full or stopped, event dropped")
			return false
		}
		return true
	}

	events := &socketEvents{post: post, logger: logger.With("component", "socket")}
	socket, err := transport.NewSocket(transport.SocketConfig{
		URL:              address.URL(),
		ReconnectBackoff: cfg.Server.ReconnectBackoff,
		PingInterval:     cfg.Server.PingInterval,
		Logger:           logger.With("component", "socket"),
		Handler:          events,
	})
	if err != nil {
		return err
	}

	client, err := syncclient.New(syncclient.Config{
		Sender:        socket,
		Logger:        logger.With("component", "sync"),
		Registerer:    registry,
		QueryCapacity: cfg.Sync.QueryCapacity,
	})
	if err != nil {
		return err
	}

	host, err := statichost.New(cfg.Host, targettree.Env{
		ServiceID: cfg.Service.ID,
		Store:     store,
		Pulser:    client,
		Clock:     clock.Real(),
		Logger:    logger.With("component", "host"),
	})
	if err != nil {
		return fmt.Errorf("building host: %w", err)
	}

	var relay *transport.Relay
	media, err := transport.NewPeerMedia(
		transport.ICEConfigFromSettings(cfg.WebRTC),
		mediaEvents(post, &relay),
		logger.With("component", "media"),
	)
	if err != nil {
		return err
	}
	relay, err = transport.NewRelay(transport.RelayConfig{
		Media:    media,
		Commands: client,
		Logger:   logger.With("component", "relay"),
	})
	if err != nil {
		return err
	}

	var identity lifecycle.IdentitySource
	if cfg.Link.URL != "" {
		link, err := rshiplink.NewClient(rshiplink.Config{
			BaseURL:       cfg.Link.URL,
			MachineIDPath: cfg.Link.MachineIDPath,
			ServerURLPath: cfg.Link.ServerURLPath,
			Timeout:       cfg.Link.Timeout,
			Logger:        logger.With("component", "link"),
		})
		if err != nil {
			return err
		}
		identity = link
	}

	hostname, _ := os.Hostname()
	machine, err := lifecycle.New(lifecycle.Config{
		Client:            client,
		Connection:        socket,
		Host:              host,
		Identity:          identity,
		Relay:             relay,
		Post:              post,
		ServiceID:         cfg.Service.ID,
		ServiceTypeCode:   cfg.Service.TypeCode,
		Color:             cfg.Service.Color,
		FallbackMachineID: fallbackMachineID(cfg.Service.FallbackMachineID, hostname),
		Hostname:          hostname,
		MachineAddress:    localAddress(),
		Address:           address,
		Logger:            logger.With("component", "lifecycle"),
		Registerer:        registry,
	})
	if err != nil {
		return err
	}
	events.machine = machine

	metricsServer := startMetrics(cfg.Metrics.Address, registry, logger)

	// The socket outlives the loop so shutdown records still reach
	// the server.
	socketCtx, stopSocket := context.WithCancel(context.Background())
	socketDone := make(chan error, 1)
	go func() { socketDone <- socket.Run(socketCtx) }()

	go tick(ctx, clock.Real(), cfg.Sync.TickInterval, func() {
		post(func() { machine.Tick(ctx) })
	})

	logger.Info("rship-exec started",
		"version", version.Info(),
		"server", address.URL(),
		"service_id", cfg.Service.ID,
		"components", len(cfg.Host.Components),
	)

	_ = loop.Run(ctx)

	logger.Info("shutting down")
	machine.Shutdown()
	media.CloseAll()

	stopSocket()
	<-socketDone

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown failed", "error", err)
		}
	}
	return nil
}

// tick calls fire immediately and then every interval until ctx is
// cancelled.
func tick(ctx context.Context, clk clock.Clock, interval time.Duration, fire func()) {
	fire()
	ticker := clk.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fire()
		}
	}
}

func startMetrics(address string, registry *prometheus.Registry, logger *slog.Logger) *http.Server {
	if address == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	server := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "address", address, "error", err)
		}
	}()
	logger.Info("metrics listening", "address", address)
	return server
}

// openStore opens the persistent id store, or an in-memory one when
// no path is configured. Target ids then change on every restart.
func openStore(path string, logger *slog.Logger) (targettree.IDStore, error) {
	if path == "" {
		logger.Warn("paths.id_store not set, target ids will not persist")
		return idstore.NewMemory(), nil
	}
	store, err := idstore.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening id store: %w", err)
	}
	return store, nil
}

// fallbackMachineID prefers the configured id, then the hostname.
func fallbackMachineID(configured, hostname string) string {
	if configured != "" {
		return configured
	}
	if hostname != "" {
		return hostname
	}
	return "rship-exec"
}

// localAddress returns the first non-loopback IPv4 address, or "" if
// there is none.
func localAddress() string {
	addresses, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, address := range addresses {
		prefix, ok := address.(*net.IPNet)
		if !ok || prefix.IP.IsLoopback() {
			continue
		}
		if ip := prefix.IP.To4(); ip != nil {
			return ip.String()
		}
	}
	return ""
}
