package config

import (
	"slices"
	"strings"
	"time"

	"github.com/fzdarsky/realmgate/internal/account"
	"github.com/fzdarsky/realmgate/internal/auth"
	"github.com/fzdarsky/realmgate/internal/authserver"
	"github.com/fzdarsky/realmgate/internal/server"
)

// Defaults for values that have no natural zero.
const (
	DefaultMetricsAddress  = "127.0.0.1:9724"
	DefaultAuditBufferSize = 1024
	DefaultRedisAddress    = "localhost:6379"
	DefaultTLSCertFile     = "/etc/realmgate/tls/ops.crt"
	DefaultTLSKeyFile      = "/etc/realmgate/tls/ops.key"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
// Explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyLoggingDefaults(&cfg.Logging)
	cfg.Database.ApplyDefaults()
	applyRateLimitDefaults(&cfg.RateLimit)

	if len(cfg.Builds) == 0 {
		cfg.Builds = slices.Clone(authserver.DefaultAcceptedBuilds)
	}

	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = DefaultMetricsAddress
	}
	if cfg.Metrics.TLS.Enabled {
		if cfg.Metrics.TLS.CertFile == "" {
			cfg.Metrics.TLS.CertFile = DefaultTLSCertFile
		}
		if cfg.Metrics.TLS.KeyFile == "" {
			cfg.Metrics.TLS.KeyFile = DefaultTLSKeyFile
		}
	}

	if cfg.Audit.BufferSize == 0 {
		cfg.Audit.BufferSize = DefaultAuditBufferSize
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Port == 0 {
		cfg.Port = server.DefaultPort
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = server.DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = server.DefaultWriteTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = server.DefaultShutdownTimeout
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	cfg.Level = strings.ToLower(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "json"
	}
}

func applyRateLimitDefaults(cfg *RateLimitConfig) {
	if cfg.Backend == "" {
		cfg.Backend = RateLimitMemory
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = auth.DefaultMaxFailures
	}
	if cfg.LockoutDuration == 0 {
		cfg.LockoutDuration = auth.DefaultLockoutDuration
	}
	if cfg.Backend == RateLimitRedis && cfg.Redis.Address == "" {
		cfg.Redis.Address = DefaultRedisAddress
	}
}

// Default returns a configuration with every default applied, suitable for
// writing out with Save.
func Default() *Config {
	cfg := &Config{
		Database: account.Config{Type: account.DatabaseTypeSQLite},
		WrongPass: WrongPassConfig{
			MaxCount:    3,
			BanDuration: 10 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled: true,
			Path:    "/var/log/realmgate/audit.log",
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
