package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/takutakahashi/ghclient/pkg/utils"
)

const (
	// EnvPrefix prefixes every environment override, e.g. GHCLIENT_API_BASE
	EnvPrefix = "GHCLIENT"

	// KeyToken is the config key consulted by the config credential probe
	KeyToken = "token"

	// PlaceholderToken is written by WriteDefault and never treated as a credential
	PlaceholderToken = "your-token-here"

	defaultUserAgent = "ghclient"
)

// CLIConfig controls the GitHub CLI credential probe
type CLIConfig struct {
	Disabled bool          `json:"disabled" mapstructure:"disabled" yaml:"disabled"`
	Command  string        `json:"command" mapstructure:"command" yaml:"command"`
	Timeout  time.Duration `json:"timeout" mapstructure:"timeout" yaml:"timeout"`
}

// OAuthConfig holds the OAuth App registration supplied by the embedding application
type OAuthConfig struct {
	ClientID     string   `json:"client_id" mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string   `json:"client_secret" mapstructure:"client_secret" yaml:"client_secret"`
	RedirectURL  string   `json:"redirect_url" mapstructure:"redirect_url" yaml:"redirect_url"`
	Scopes       []string `json:"scopes" mapstructure:"scopes" yaml:"scopes"`
}

// AppConfig holds GitHub App credentials
type AppConfig struct {
	AppID          string `json:"app_id" mapstructure:"app_id" yaml:"app_id"`
	InstallationID string `json:"installation_id" mapstructure:"installation_id" yaml:"installation_id"`
	// PrivateKey is the PEM itself, raw or base64 wrapped
	PrivateKey string `json:"private_key" mapstructure:"private_key" yaml:"private_key,omitempty"`
	// PrivateKeyPath is read when PrivateKey is empty
	PrivateKeyPath string `json:"private_key_path" mapstructure:"private_key_path" yaml:"private_key_path"`
}

// LogConfig configures the root logger
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level" yaml:"level"`
	Format string `json:"format" mapstructure:"format" yaml:"format"`
}

// Config is the full client configuration. EnvFile names a dotenv file
// layered over the process environment for token lookup. An empty APIBase or
// WebBase falls back to GITHUB_API / GITHUB_URL, then github.com.
type Config struct {
	Token     string        `json:"token" mapstructure:"token" yaml:"token"`
	EnvFile   string        `json:"env_file" mapstructure:"env_file" yaml:"env_file,omitempty"`
	APIBase   string        `json:"api_base" mapstructure:"api_base" yaml:"api_base,omitempty"`
	WebBase   string        `json:"web_base" mapstructure:"web_base" yaml:"web_base,omitempty"`
	UserAgent string        `json:"user_agent" mapstructure:"user_agent" yaml:"user_agent"`
	Timeout   time.Duration `json:"timeout" mapstructure:"timeout" yaml:"timeout"`
	CLI       CLIConfig     `json:"cli" mapstructure:"cli" yaml:"cli"`
	OAuth     OAuthConfig   `json:"oauth" mapstructure:"oauth" yaml:"oauth"`
	App       AppConfig     `json:"app" mapstructure:"app" yaml:"app"`
	Log       LogConfig     `json:"log" mapstructure:"log" yaml:"log"`
}

// DefaultConfig returns the configuration used when no file or env override is present
func DefaultConfig() *Config {
	return &Config{
		UserAgent: defaultUserAgent,
		Timeout:   30 * time.Second,
		CLI: CLIConfig{
			Command: "gh",
			Timeout: 5 * time.Second,
		},
		OAuth: OAuthConfig{
			Scopes: []string{"repo", "user", "read:org"},
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "console",
		},
	}
}

// DefaultPath is $XDG_CONFIG_HOME/ghclient/config.yaml (or the OS equivalent)
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(dir, "ghclient", "config.yaml")
}

// NewViper builds a viper instance with defaults, env overrides and the file at
// path. An empty path means DefaultPath, which may be absent; an explicit
// path must exist.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
		if explicit || !missing {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	return v, nil
}

// FromViper decodes v into a Config
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// LoadConfig reads the configuration at path (see NewViper for path rules)
func LoadConfig(path string) (*Config, error) {
	v, err := NewViper(path)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("token", d.Token)
	v.SetDefault("env_file", d.EnvFile)
	v.SetDefault("api_base", d.APIBase)
	v.SetDefault("web_base", d.WebBase)
	v.SetDefault("user_agent", d.UserAgent)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("cli.disabled", d.CLI.Disabled)
	v.SetDefault("cli.command", d.CLI.Command)
	v.SetDefault("cli.timeout", d.CLI.Timeout)
	v.SetDefault("oauth.client_id", d.OAuth.ClientID)
	v.SetDefault("oauth.client_secret", d.OAuth.ClientSecret)
	v.SetDefault("oauth.redirect_url", d.OAuth.RedirectURL)
	v.SetDefault("oauth.scopes", d.OAuth.Scopes)
	v.SetDefault("app.app_id", d.App.AppID)
	v.SetDefault("app.installation_id", d.App.InstallationID)
	v.SetDefault("app.private_key", d.App.PrivateKey)
	v.SetDefault("app.private_key_path", d.App.PrivateKeyPath)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// LoadPrivateKey returns the inline key, or the contents of PrivateKeyPath
func (a AppConfig) LoadPrivateKey() (string, error) {
	if strings.TrimSpace(a.PrivateKey) != "" {
		return a.PrivateKey, nil
	}
	if a.PrivateKeyPath == "" {
		return "", nil
	}
	data, err := os.ReadFile(a.PrivateKeyPath)
	if err != nil {
		return "", fmt.Errorf("failed to read private key %s: %w", a.PrivateKeyPath, err)
	}
	return string(data), nil
}

// WriteDefault renders a starter config file at path. It refuses to overwrite.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}

	cfg := DefaultConfig()
	cfg.Token = PlaceholderToken
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}

	header := []byte("# ghclient configuration. Replace the token placeholder or remove it.\n")
	if err := utils.AtomicWriteFile(path, append(header, data...), 0o600); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}
