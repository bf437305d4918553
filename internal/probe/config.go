package probe

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort    = 3724
	defaultBuild   = 12340
	defaultVersion = "3.3.5"
	defaultLocale  = "enUS"
	defaultTimeout = 10 * time.Second

	appName        = "realmgate"
	configFileName = "probe.yaml"

	envHost  = "REALMPROBE_HOST"
	envPort  = "REALMPROBE_PORT"
	envBuild = "REALMPROBE_BUILD"

	minPort = 1
	maxPort = 65535
)

// Config holds the connection settings of the probe.
type Config struct {
	Host    string        `yaml:"host"`
	Port    int           `yaml:"port"`
	Build   uint16        `yaml:"build"`
	Version string        `yaml:"version"`
	Locale  string        `yaml:"locale"`
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns the settings of a 3.3.5a client talking to a local
// gateway.
func DefaultConfig() *Config {
	return &Config{
		Port:    defaultPort,
		Build:   defaultBuild,
		Version: defaultVersion,
		Locale:  defaultLocale,
		Timeout: defaultTimeout,
	}
}

// LoadConfig builds the configuration from defaults, the user config file
// and the environment, in increasing order of precedence. Flags are applied
// afterwards with ApplyFlags.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.loadFromFile(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UserConfigPath returns the probe config file location, e.g.
// ~/.config/realmgate/probe.yaml on Linux.
func UserConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(dir, appName, configFileName), nil
}

func (c *Config) loadFromFile() error {
	path, err := UserConfigPath()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path) // #nosec G304 - path is in the user config directory
	if err != nil {
		return err
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if file.Host != "" {
		c.Host = file.Host
	}
	if file.Port != 0 {
		c.Port = file.Port
	}
	if file.Build != 0 {
		c.Build = file.Build
	}
	if file.Version != "" {
		c.Version = file.Version
	}
	if file.Locale != "" {
		c.Locale = file.Locale
	}
	if file.Timeout != 0 {
		c.Timeout = file.Timeout
	}
	return nil
}

func (c *Config) loadFromEnv() error {
	if host := os.Getenv(envHost); host != "" {
		c.Host = host
	}

	if s := os.Getenv(envPort); s != "" {
		port, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", envPort, s, err)
		}
		c.Port = port
	}

	if s := os.Getenv(envBuild); s != "" {
		build, err := strconv.ParseUint(s, 10, 16)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", envBuild, s, err)
		}
		c.Build = uint16(build)
	}
	return nil
}

// ApplyFlags overrides settings with non-zero flag values.
func (c *Config) ApplyFlags(host string, port int, build uint16) {
	if host != "" {
		c.Host = host
	}
	if port != 0 {
		c.Port = port
	}
	if build != 0 {
		c.Build = build
	}
}

// Validate checks the configuration values. The host may be empty here;
// RequireHost checks it before connecting.
func (c *Config) Validate() error {
	if c.Port < minPort || c.Port > maxPort {
		return fmt.Errorf("invalid port %d: must be between %d and %d", c.Port, minPort, maxPort)
	}
	if c.Build == 0 {
		return errors.New("invalid build 0")
	}
	if _, _, _, err := c.versionTriple(); err != nil {
		return err
	}
	if len(c.Locale) != 4 {
		return fmt.Errorf("invalid locale %q: must be four characters, e.g. enUS", c.Locale)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("invalid timeout %v", c.Timeout)
	}
	return nil
}

// RequireHost returns an error explaining how to set the host when it is
// missing.
func (c *Config) RequireHost() error {
	if c.Host == "" {
		return fmt.Errorf("gateway host not specified\n"+
			"Use --host flag, %s environment variable, or add 'host:' to the config file:\n"+
			"  Config file location: <UserConfigDir>/%s/%s\n"+
			"  Example: host: logon.example.com", envHost, appName, configFileName)
	}
	return nil
}

// Address returns host:port.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Config) versionTriple() (major, minor, patch uint8, err error) {
	if _, err := fmt.Sscanf(c.Version, "%d.%d.%d", &major, &minor, &patch); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid version %q: expected major.minor.patch", c.Version)
	}
	return major, minor, patch, nil
}
