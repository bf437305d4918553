// Package config provides configuration loading and validation for the realm gateway.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/fzdarsky/realmgate/internal/account"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variable overrides, e.g.
// REALMGATE_SERVER_PORT=3725.
const EnvPrefix = "REALMGATE"

// DefaultConfigPath is where the service looks for its configuration when no
// path is given.
const DefaultConfigPath = "/etc/realmgate/config.yaml"

// Config represents the realm gateway configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (REALMGATE_*)
//  2. Configuration file
//  3. Default values
type Config struct {
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Database   account.Config   `mapstructure:"database" yaml:"database"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit" yaml:"ratelimit"`
	WrongPass  WrongPassConfig  `mapstructure:"wrong_pass" yaml:"wrong_pass"`
	Builds     []uint16         `mapstructure:"builds" validate:"required,min=1,dive,gt=0" yaml:"builds"`
	IPLocation IPLocationConfig `mapstructure:"iplocation" yaml:"iplocation"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	Audit      AuditConfig      `mapstructure:"audit" yaml:"audit"`
}

// ServerConfig controls the client-facing TCP listener.
type ServerConfig struct {
	ListenAddress   string        `mapstructure:"listen_address" validate:"omitempty,ip" yaml:"listen_address"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535" yaml:"port"`
	MaxConnections  int           `mapstructure:"max_connections" validate:"min=0" yaml:"max_connections"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gt=0" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0" yaml:"shutdown_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=json human" yaml:"format"`
}

// RateLimit backends.
const (
	RateLimitMemory = "memory"
	RateLimitRedis  = "redis"
)

// RateLimitConfig controls per-address lockout after repeated failed logons.
type RateLimitConfig struct {
	Backend         string        `mapstructure:"backend" validate:"required,oneof=memory redis" yaml:"backend"`
	MaxFailures     int           `mapstructure:"max_failures" validate:"gt=0" yaml:"max_failures"`
	LockoutDuration time.Duration `mapstructure:"lockout_duration" validate:"gt=0" yaml:"lockout_duration"`
	Redis           RedisConfig   `mapstructure:"redis" yaml:"redis"`
}

// RedisConfig locates the shared tracker store.
type RedisConfig struct {
	Address  string `mapstructure:"address" validate:"omitempty,hostname_port" yaml:"address"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	DB       int    `mapstructure:"db" validate:"min=0" yaml:"db"`
}

// WrongPassConfig controls automatic bans after repeated wrong passwords.
// MaxCount zero disables the policy. BanDuration zero bans permanently.
type WrongPassConfig struct {
	MaxCount    uint32        `mapstructure:"max_count" yaml:"max_count"`
	BanDuration time.Duration `mapstructure:"ban_duration" validate:"min=0" yaml:"ban_duration"`
}

// IPLocationConfig points at the country range CSV. An empty path disables
// country locks.
type IPLocationConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// MetricsConfig controls the operations HTTP endpoint serving health,
// metrics and realm listings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" validate:"omitempty,hostname_port" yaml:"address"`
	// Token, when set, is required as a bearer token on /realms and /sessions.
	Token string           `mapstructure:"token" yaml:"token,omitempty"`
	TLS   MetricsTLSConfig `mapstructure:"tls" yaml:"tls"`
}

// MetricsTLSConfig serves the operations endpoint over HTTPS. With Generate
// set, a self-signed certificate is created at CertFile and KeyFile when
// they are missing or about to expire.
type MetricsTLSConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	CertFile string `mapstructure:"cert_file" yaml:"cert_file,omitempty"`
	KeyFile  string `mapstructure:"key_file" yaml:"key_file,omitempty"`
	Generate bool   `mapstructure:"generate" yaml:"generate"`
}

// AuditConfig controls the audit event stream.
type AuditConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	BufferSize int    `mapstructure:"buffer_size" validate:"min=0" yaml:"buffer_size"`
	DropIfFull bool   `mapstructure:"drop_if_full" yaml:"drop_if_full"`
	Path       string `mapstructure:"path" yaml:"path"`
}

// Load reads configuration from file, environment and defaults. A missing
// file is not an error: defaults and environment overrides still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setupViper(v, path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Save writes cfg as YAML. The file may carry database and redis passwords,
// so it is created owner-readable only.
func Save(cfg *Config, path string) error {
	//nolint:gosec // G301: 0755 is standard for directory permissions
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper registers every known key so that environment overrides work
// even when the file does not mention the key.
func setupViper(v *viper.Viper, path string) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range knownKeys {
		_ = v.BindEnv(key)
	}

	if path != "" {
		v.SetConfigFile(path)
		return
	}
	v.AddConfigPath(filepath.Dir(DefaultConfigPath))
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

var knownKeys = []string{
	"server.listen_address", "server.port", "server.max_connections",
	"server.read_timeout", "server.write_timeout", "server.shutdown_timeout",
	"logging.level", "logging.format", "builds",
	"database.type", "database.sqlite.path",
	"database.postgres.host", "database.postgres.port", "database.postgres.database",
	"database.postgres.user", "database.postgres.password", "database.postgres.sslmode",
	"ratelimit.backend", "ratelimit.max_failures", "ratelimit.lockout_duration",
	"ratelimit.redis.address", "ratelimit.redis.password", "ratelimit.redis.db",
	"wrong_pass.max_count", "wrong_pass.ban_duration",
	"iplocation.path",
	"metrics.enabled", "metrics.address", "metrics.token",
	"metrics.tls.enabled", "metrics.tls.cert_file", "metrics.tls.key_file", "metrics.tls.generate",
	"audit.enabled", "audit.buffer_size", "audit.drop_if_full", "audit.path",
}

func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// durationDecodeHook accepts "30s" style strings and raw nanosecond numbers.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(_ reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}
