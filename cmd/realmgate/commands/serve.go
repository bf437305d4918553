package commands

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/fzdarsky/realmgate/internal/account"
	"github.com/fzdarsky/realmgate/internal/api"
	"github.com/fzdarsky/realmgate/internal/audit"
	"github.com/fzdarsky/realmgate/internal/auth"
	"github.com/fzdarsky/realmgate/internal/authserver"
	"github.com/fzdarsky/realmgate/internal/config"
	"github.com/fzdarsky/realmgate/internal/iplocation"
	"github.com/fzdarsky/realmgate/internal/lifecycle"
	"github.com/fzdarsky/realmgate/internal/logging"
	"github.com/fzdarsky/realmgate/internal/metrics"
	"github.com/fzdarsky/realmgate/internal/server"
	tlspkg "github.com/fzdarsky/realmgate/internal/tls"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the logon gateway",
	Long: `Run the logon gateway in the foreground.

SIGTERM and SIGINT shut the gateway down gracefully. SIGHUP reloads the IP
location database.

Examples:
  realmgate serve --config /etc/realmgate/config.yaml
  REALMGATE_LOGGING_LEVEL=debug realmgate serve`,
	RunE: runServe,
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	logger.Info("realmgate starting", map[string]any{
		"version":    Version,
		"commit":     Commit,
		"log_level":  cfg.Logging.Level,
		"database":   string(cfg.Database.Type),
		"ratelimit":  cfg.RateLimit.Backend,
		"builds":     cfg.Builds,
		"port":       cfg.Server.Port,
		"metrics":    cfg.Metrics.Enabled,
		"audit":      cfg.Audit.Enabled,
		"iplocation": cfg.IPLocation.Path != "",
	})

	store, err := account.NewGORMStore(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open account database: %w", err)
	}
	defer store.Close()

	tracker, err := newTracker(cfg.RateLimit)
	if err != nil {
		return err
	}
	defer tracker.Close()

	sm := lifecycle.NewShutdownManager()
	defer sm.Stop()

	deps := authserver.Dependencies{
		Accounts: store,
		Realms:   store,
		Recorder: store,
		Tracker:  tracker,
		Logger:   logger,
	}

	if cfg.IPLocation.Path != "" {
		resolver, err := iplocation.NewResolver(cfg.IPLocation.Path)
		if err != nil {
			return fmt.Errorf("failed to load ip location database: %w", err)
		}
		logger.Info("ip location database loaded", map[string]any{"ranges": resolver.Len()})
		deps.Locations = resolver

		sm.OnReload(func() {
			if err := resolver.Reload(); err != nil {
				logger.Error("failed to reload ip location database", map[string]any{"error": err.Error()})
				return
			}
			logger.Info("ip location database reloaded", map[string]any{"ranges": resolver.Len()})
		})
	}

	dispatcher, closeAudit, err := newAuditDispatcher(cfg.Audit)
	if err != nil {
		return err
	}
	defer closeAudit()
	if dispatcher != nil {
		deps.Audit = dispatcher
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	deps.Metrics = m

	handler, err := authserver.NewHandler(authserver.Config{
		AcceptedBuilds: cfg.Builds,
		WrongPass: authserver.WrongPassPolicy{
			MaxCount:    cfg.WrongPass.MaxCount,
			BanDuration: cfg.WrongPass.BanDuration,
		},
	}, deps)
	if err != nil {
		return fmt.Errorf("failed to create logon handler: %w", err)
	}

	srv := server.New(server.Config{
		ListenAddress:   cfg.Server.ListenAddress,
		Port:            cfg.Server.Port,
		MaxConnections:  cfg.Server.MaxConnections,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, handler, logger, m)

	var opsTLS *tls.Config
	if cfg.Metrics.Enabled {
		if opsTLS, err = newOpsTLS(cfg.Metrics, logger); err != nil {
			return err
		}
	}

	ctx := sm.Start(context.Background())
	errs := make(chan error, 2)

	go func() { errs <- srv.ListenAndServe(ctx) }()

	var opsServer *api.Server
	if cfg.Metrics.Enabled {
		opsServer = api.New(api.Config{
			Address: cfg.Metrics.Address,
			Token:   cfg.Metrics.Token,
			TLS:     opsTLS,
		}, api.Dependencies{
			Store:    store,
			Realms:   store,
			Sessions: srv.Sessions(),
			Metrics:  m,
		}, logger)
		go func() { errs <- opsServer.Start(ctx) }()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated", map[string]any{"reason": sm.Reason()})
	case runErr = <-errs:
		if runErr != nil {
			logger.Error("server failed", map[string]any{"error": runErr.Error()})
		}
		sm.Shutdown("server stopped")
	}

	steps := []lifecycle.Step{{Name: "logon server", Fn: srv.Stop}}
	if opsServer != nil {
		steps = append(steps, lifecycle.Step{Name: "operations server", Fn: opsServer.Shutdown})
	}
	steps = append(steps, lifecycle.Step{Name: "audit", Fn: func(context.Context) error {
		dispatcher.Close()
		return nil
	}})

	if err := lifecycle.GracefulShutdown(context.Background(), cfg.Server.ShutdownTimeout+5*time.Second, steps...); err != nil {
		logger.Warn("graceful shutdown incomplete", map[string]any{"error": err.Error()})
	}

	logger.Info("realmgate stopped", map[string]any{"audit_dropped": dispatcher.Dropped()})
	return runErr
}

func newTracker(cfg config.RateLimitConfig) (auth.FailureTracker, error) {
	trackerCfg := auth.TrackerConfig{
		MaxFailures:     cfg.MaxFailures,
		LockoutDuration: cfg.LockoutDuration,
	}

	if cfg.Backend != config.RateLimitRedis {
		return auth.NewMemoryTracker(trackerCfg), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Address, err)
	}

	return auth.NewRedisTracker(client, trackerCfg), nil
}

// newOpsTLS returns the TLS configuration of the operations endpoint, or nil
// when it serves plain HTTP.
func newOpsTLS(cfg config.MetricsConfig, logger *logging.Logger) (*tls.Config, error) {
	if !cfg.TLS.Enabled {
		return nil, nil
	}

	if cfg.TLS.Generate {
		host, _, _ := net.SplitHostPort(cfg.Address)
		generated, err := tlspkg.EnsureCertificate(cfg.TLS.CertFile, cfg.TLS.KeyFile, host)
		if err != nil {
			return nil, fmt.Errorf("failed to generate operations certificate: %w", err)
		}
		if generated {
			logger.Info("generated self-signed operations certificate", map[string]any{"cert_file": cfg.TLS.CertFile})
		}
	}

	return tlspkg.NewServerConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile)
}

// newAuditDispatcher opens the audit log and starts the dispatcher. An empty
// path writes events to stdout. The returned close function is always safe
// to call.
func newAuditDispatcher(cfg config.AuditConfig) (*audit.Dispatcher, func(), error) {
	if !cfg.Enabled {
		return nil, func() {}, nil
	}

	var w io.Writer = os.Stdout
	closeFile := func() {}
	if cfg.Path != "" {
		f, err := os.OpenFile(filepath.Clean(cfg.Path), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		w = f
		closeFile = func() { _ = f.Close() }
	}

	d := audit.NewDispatcher(audit.Config{
		Enabled:    true,
		BufferSize: cfg.BufferSize,
		DropIfFull: cfg.DropIfFull,
	}, audit.NewJSONWriterSink(w))

	return d, func() {
		d.Close()
		closeFile()
	}, nil
}

var (
	_ authserver.AuditHook       = (*audit.Dispatcher)(nil)
	_ authserver.CountryResolver = (*iplocation.Resolver)(nil)
)
