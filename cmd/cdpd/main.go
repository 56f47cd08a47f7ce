package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"cdpproxy/config"
	"cdpproxy/core"
	"cdpproxy/core/genesis"
	"cdpproxy/gateway/middleware"
	"cdpproxy/gateway/routes"
	"cdpproxy/indexer"
	"cdpproxy/observability/logging"
	telemetry "cdpproxy/observability/otel"
	"cdpproxy/storage"
)

const shutdownGrace = 15 * time.Second

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./cdpd.toml", "path to the node configuration")
	flag.Parse()

	if err := run(cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "cdpd: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logOpts := logging.Options{Level: cfg.Log.Level}
	if strings.TrimSpace(cfg.Log.File) != "" {
		logOpts.File = &logging.FileConfig{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Compress:   cfg.Log.Compress,
		}
	}
	logger := logging.SetupWithOptions("cdpd", cfg.Environment, logOpts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exporters := strings.TrimSpace(cfg.Telemetry.Endpoint) != ""
	host, _ := os.Hostname()
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "cdpd",
		Environment: cfg.Environment,
		InstanceID:  host,
		Attributes: map[string]string{
			"cdp.gateway.auth":   strconv.FormatBool(cfg.Gateway.Auth.Enabled),
			"cdp.indexer.driver": indexerDriver(cfg.Indexer),
		},
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		Headers:        telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:        exporters,
		Traces:         exporters,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		MetricInterval: time.Duration(cfg.Telemetry.MetricIntervalSeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}()

	spec, err := genesis.LoadSpec(cfg.GenesisFile)
	if err != nil {
		return err
	}
	db, err := storage.NewLevelDB(cfg.StateDir())
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()

	hub := routes.NewHub(0, logger)
	opts := []core.Option{core.WithLogger(logger), core.WithListener(hub.Listener())}
	var ix *indexer.Indexer
	if cfg.Indexer.Enabled {
		gdb, err := indexer.Open(cfg.Indexer.Driver, cfg.Indexer.DSN)
		if err != nil {
			return fmt.Errorf("open event index: %w", err)
		}
		if ix, err = indexer.New(gdb, logger); err != nil {
			return fmt.Errorf("migrate event index: %w", err)
		}
		opts = append(opts, core.WithListener(ix.Listener()))
		logger.Info("event index open",
			slog.String("driver", cfg.Indexer.Driver),
			slog.String("dsn", logging.MaskDSN(cfg.Indexer.DSN)))
	}

	node, err := core.NewNode(db, spec, opts...)
	if err != nil {
		return fmt.Errorf("start node: %w", err)
	}
	defer node.Close()
	seq, err := node.Sequence()
	if err != nil {
		return fmt.Errorf("read sequence: %w", err)
	}
	logger.Info("node ready",
		slog.String("state", cfg.StateDir()),
		slog.Uint64("sequence", seq),
		slog.Bool("indexer", ix != nil))

	handler, err := gatewayHandler(cfg, node, ix, hub, logger)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout(),
		WriteTimeout:      cfg.WriteTimeout(),
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", slog.String("addr", cfg.ListenAddress))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("gateway: %w", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func gatewayHandler(cfg *config.Config, node *core.Node, ix *indexer.Indexer, hub *routes.Hub, logger *slog.Logger) (http.Handler, error) {
	authCfg := cfg.Gateway.Auth
	secret := ""
	if authCfg.Enabled {
		var err error
		if secret, err = authCfg.HMACSecret(); err != nil {
			return nil, fmt.Errorf("gateway auth: %w", err)
		}
	}
	if !authCfg.Enabled {
		if cfg.Gateway.AllowUnauthenticatedWrites {
			logger.Warn("gateway auth disabled; transactions are accepted from any client")
		} else {
			logger.Warn("gateway auth disabled; transaction submission is refused")
		}
	}
	if authCfg.Enabled {
		logger.Info("gateway auth enabled",
			slog.String("issuer", authCfg.Issuer),
			logging.MaskField("hmac_secret", secret))
	}
	auth := middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled:    authCfg.Enabled,
		HMACSecret: secret,
		Issuer:     authCfg.Issuer,
		Audience:   authCfg.Audience,
		ClockSkew:  time.Duration(authCfg.ClockSkewSeconds) * time.Second,
	}, logger)
	limiter := middleware.NewRateLimiter(map[string]middleware.RateLimit{
		routes.GroupReads:  {RequestsPerMinute: cfg.Gateway.Reads.RequestsPerMinute, Burst: cfg.Gateway.Reads.Burst},
		routes.GroupWrites: {RequestsPerMinute: cfg.Gateway.Writes.RequestsPerMinute, Burst: cfg.Gateway.Writes.Burst},
	}, logger)
	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName: "cdpd",
		LogRequests: cfg.Environment != "prod",
	}, logger)

	h, err := routes.New(routes.Config{
		Node:          node,
		Indexer:       ix,
		Hub:           hub,
		Authenticator: auth,
		RateLimiter:   limiter,
		Observability: obs,
		CORS:          middleware.CORSConfig{AllowedOrigins: cfg.Gateway.AllowedOrigins},
		Logger:        logger,

		AllowUnauthenticatedWrites: cfg.Gateway.AllowUnauthenticatedWrites,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	return h, nil
}

// indexerDriver is the telemetry label for the event index, empty when off.
func indexerDriver(cfg config.Indexer) string {
	if !cfg.Enabled {
		return ""
	}
	return cfg.Driver
}
