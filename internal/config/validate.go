package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator reports fields by their yaml key rather than the Go name.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate performs comprehensive validation on the configuration.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := cfg.Database.Validate(); err != nil {
		return fmt.Errorf("database validation failed: %w", err)
	}

	if err := validateRateLimit(&cfg.RateLimit); err != nil {
		return fmt.Errorf("ratelimit validation failed: %w", err)
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Address == "" {
		return fmt.Errorf("metrics.address is required when metrics are enabled")
	}

	if err := validateMetricsTLS(&cfg.Metrics.TLS); err != nil {
		return err
	}

	if err := validateFiles(cfg); err != nil {
		return fmt.Errorf("path validation failed: %w", err)
	}

	return nil
}

func validateMetricsTLS(cfg *MetricsTLSConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.CertFile == "" || cfg.KeyFile == "" {
		return fmt.Errorf("metrics.tls.cert_file and metrics.tls.key_file are required when tls is enabled")
	}
	if cfg.Generate {
		return nil
	}
	for _, path := range []string{cfg.CertFile, cfg.KeyFile} {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("metrics.tls: %w", err)
		}
	}
	return nil
}

func validateRateLimit(cfg *RateLimitConfig) error {
	if cfg.Backend == RateLimitRedis && cfg.Redis.Address == "" {
		return fmt.Errorf("redis.address is required when backend is redis")
	}
	return nil
}

func validateFiles(cfg *Config) error {
	if cfg.IPLocation.Path != "" {
		if _, err := os.Stat(cfg.IPLocation.Path); err != nil {
			return fmt.Errorf("iplocation.path: %w", err)
		}
	}

	if cfg.Audit.Enabled && cfg.Audit.Path != "" {
		dir := filepath.Dir(cfg.Audit.Path)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return fmt.Errorf("audit.path directory does not exist: %s", dir)
		}
	}

	return nil
}

// formatValidationError turns validator output into one line per field using
// the yaml key path, e.g. "server.port must satisfy max=65535".
func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		msgs = append(msgs, fmt.Sprintf("%s must satisfy %s", fieldPath(fe.Namespace()), rule))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// fieldPath maps "Config.server.port" to "server.port".
func fieldPath(namespace string) string {
	_, path, ok := strings.Cut(namespace, ".")
	if !ok {
		return namespace
	}
	return path
}
