// Package config loads MorningTrio settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. TRIO_CLIENT_API.
const EnvPrefix = "TRIO"

// ServerConfig configures the remote task service.
type ServerConfig struct {
	// Listen is the address the HTTP API binds to.
	Listen string `mapstructure:"listen"`
	// DB is the server's SQLite database path.
	DB string `mapstructure:"db"`
	// Tokens lists the bearer tokens the service accepts. They are a list
	// rather than a map because viper lower-cases map keys.
	Tokens []TokenConfig `mapstructure:"tokens"`
}

// TokenConfig grants one bearer token access as one user.
type TokenConfig struct {
	Token string `mapstructure:"token"`
	User  string `mapstructure:"user"`
}

// TokenMap returns the tokens as token -> user id.
func (c ServerConfig) TokenMap() map[string]string {
	m := make(map[string]string, len(c.Tokens))
	for _, t := range c.Tokens {
		if t.Token != "" && t.User != "" {
			m[t.Token] = t.User
		}
	}
	return m
}

// ClientConfig configures the local app and its sync engine.
type ClientConfig struct {
	API             string        `mapstructure:"api"`
	DB              string        `mapstructure:"db"`
	AllowAnonymous  bool          `mapstructure:"allow_anonymous"`
	FailurePolicy   string        `mapstructure:"failure_policy"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	PushTimeout     time.Duration `mapstructure:"push_timeout"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	// KeyringDir holds the file keyring when no OS keyring is available.
	KeyringDir string `mapstructure:"keyring_dir"`
}

// PlanningConfig configures the planning ritual.
type PlanningConfig struct {
	WelcomeDelay time.Duration `mapstructure:"welcome_delay"`
}

// Config is the top-level configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Client   ClientConfig   `mapstructure:"client"`
	Planning PlanningConfig `mapstructure:"planning"`
}

// Dir returns ~/.config/morningtrio.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".morningtrio"
	}
	return filepath.Join(home, ".config", "morningtrio")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

func setDefaults(v *viper.Viper) {
	dir := Dir()
	v.SetDefault("server.listen", "127.0.0.1:7466")
	v.SetDefault("server.db", filepath.Join(dir, "server.db"))

	v.SetDefault("client.api", "http://127.0.0.1:7466")
	v.SetDefault("client.db", filepath.Join(dir, "trio.db"))
	v.SetDefault("client.allow_anonymous", true)
	v.SetDefault("client.failure_policy", "repull")
	v.SetDefault("client.request_timeout", 10*time.Second)
	v.SetDefault("client.push_timeout", 15*time.Second)
	v.SetDefault("client.refresh_interval", time.Duration(0))
	v.SetDefault("client.keyring_dir", filepath.Join(dir, "credentials"))

	v.SetDefault("planning.welcome_delay", 2*time.Second)
}

// Load reads path, or the default path when empty. A missing file is not
// an error; defaults and environment overrides still apply.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Client.FailurePolicy {
	case "rollback", "repull":
	default:
		return fmt.Errorf("client.failure_policy must be rollback or repull, got %q", c.Client.FailurePolicy)
	}
	if c.Client.RequestTimeout <= 0 {
		return fmt.Errorf("client.request_timeout must be positive")
	}
	if c.Client.PushTimeout <= 0 {
		return fmt.Errorf("client.push_timeout must be positive")
	}
	if c.Client.RefreshInterval < 0 {
		return fmt.Errorf("client.refresh_interval must not be negative")
	}
	return nil
}
