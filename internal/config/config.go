package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	PlainPort = 143
	TLSPort   = 993

	MatchStrict = "strict"
	MatchLegacy = "legacy"
)

type Config struct {
	IMAP     IMAPConfig     `mapstructure:"imap" yaml:"imap"`
	Auth     AuthConfig     `mapstructure:"auth" yaml:"auth"`
	Defaults DefaultsConfig `mapstructure:"defaults" yaml:"defaults"`
	Keyring  KeyringConfig  `mapstructure:"keyring" yaml:"keyring"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

type IMAPConfig struct {
	Host               string        `mapstructure:"host" yaml:"host"`
	Port               int           `mapstructure:"port" yaml:"port"`
	TLS                bool          `mapstructure:"tls" yaml:"tls"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
	Timeout            time.Duration `mapstructure:"timeout" yaml:"timeout"`
	ChunkSize          int           `mapstructure:"chunk_size" yaml:"chunk_size"`
	Match              string        `mapstructure:"match" yaml:"match"`
	LoginConfirmation  string        `mapstructure:"login_confirmation" yaml:"login_confirmation"`
}

type AuthConfig struct {
	Username       string `mapstructure:"username" yaml:"username"`
	Password       string `mapstructure:"password" yaml:"password,omitempty"`
	PasswordSource string `yaml:"-"`
}

type DefaultsConfig struct {
	Folder string `mapstructure:"folder" yaml:"folder"`
	Decode bool   `mapstructure:"decode" yaml:"decode"`
}

// KeyringConfig selects where stored passwords live: "auto", "keychain"
// or "file".
type KeyringConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

func DefaultConfig() Config {
	return Config{
		IMAP: IMAPConfig{
			TLS:               false,
			Timeout:           10 * time.Second,
			ChunkSize:         1024,
			Match:             MatchStrict,
			LoginConfirmation: "Logged in",
		},
		Defaults: DefaultsConfig{
			Folder: "INBOX",
		},
		Keyring: KeyringConfig{
			Backend: "auto",
		},
		Log: LogConfig{
			Level: "warn",
		},
	}
}

// EffectivePort returns the configured port, or the IMAP default for the
// selected transport when none is set.
func (c IMAPConfig) EffectivePort() int {
	if c.Port > 0 {
		return c.Port
	}
	if c.TLS {
		return TLSPort
	}
	return PlainPort
}

func (c IMAPConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.EffectivePort())
}

func ConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func Load() (Config, error) {
	cfg := DefaultConfig()

	path, err := ConfigPath()
	if err != nil {
		return cfg, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("IMAPFETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func Save(cfg Config) (string, error) {
	path, err := ConfigPath()
	if err != nil {
		return "", err
	}

	if _, err := EnsureDir(); err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}

	return path, nil
}

func Redact(cfg Config) Config {
	masked := cfg
	if masked.Auth.Password != "" {
		masked.Auth.Password = "****"
	}
	return masked
}

func setDefaults(v *viper.Viper, cfg Config) {
	// Every key needs a default (or a file value) for AutomaticEnv to see it.
	v.SetDefault("imap.host", cfg.IMAP.Host)
	v.SetDefault("imap.port", cfg.IMAP.Port)
	v.SetDefault("imap.tls", cfg.IMAP.TLS)
	v.SetDefault("imap.insecure_skip_verify", cfg.IMAP.InsecureSkipVerify)
	v.SetDefault("imap.timeout", cfg.IMAP.Timeout)
	v.SetDefault("imap.chunk_size", cfg.IMAP.ChunkSize)
	v.SetDefault("imap.match", cfg.IMAP.Match)
	v.SetDefault("imap.login_confirmation", cfg.IMAP.LoginConfirmation)

	v.SetDefault("auth.username", cfg.Auth.Username)
	v.SetDefault("auth.password", cfg.Auth.Password)

	v.SetDefault("defaults.folder", cfg.Defaults.Folder)
	v.SetDefault("defaults.decode", cfg.Defaults.Decode)

	v.SetDefault("keyring.backend", cfg.Keyring.Backend)

	v.SetDefault("log.level", cfg.Log.Level)
}

func Validate(cfg Config) error {
	if cfg.IMAP.Host == "" {
		return fmt.Errorf("imap.host is required")
	}
	if cfg.Auth.Username == "" {
		return fmt.Errorf("auth.username is required")
	}
	if cfg.Auth.Password == "" {
		return fmt.Errorf("auth.password is required")
	}
	if cfg.IMAP.Port < 0 || cfg.IMAP.Port > 65535 {
		return fmt.Errorf("imap.port %d is out of range", cfg.IMAP.Port)
	}
	if cfg.IMAP.Timeout <= 0 {
		return fmt.Errorf("imap.timeout must be positive")
	}
	if cfg.IMAP.ChunkSize <= 0 {
		return fmt.Errorf("imap.chunk_size must be positive")
	}
	switch cfg.IMAP.Match {
	case MatchStrict, MatchLegacy:
	default:
		return fmt.Errorf("imap.match must be %q or %q, got %q", MatchStrict, MatchLegacy, cfg.IMAP.Match)
	}
	return nil
}
