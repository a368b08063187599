package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"imapfetch/internal/config"
	"imapfetch/internal/imap"
	"imapfetch/internal/secrets"
	"imapfetch/internal/transport"
)

const (
	passwordSourceFlag    = "flag"
	passwordSourceEnv     = "env"
	passwordSourceConfig  = "config"
	passwordSourceKeyring = "keyring"

	passwordEnv = "IMAPFETCH_AUTH_PASSWORD" //nolint:gosec // env var name, not a credential
)

// openStore is replaced in tests.
var openStore = func(cfg config.KeyringConfig) (passwordStore, error) {
	return secrets.Open(cfg)
}

type passwordStore interface {
	Password(host, username string) (string, error)
	SetPassword(host, username, password string) error
	DeletePassword(host, username string) error
}

// loadConfig reads the config file and environment and records where the
// password came from.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}

	if v, ok := os.LookupEnv(passwordEnv); ok && v != "" {
		cfg.Auth.PasswordSource = passwordSourceEnv
	} else if cfg.Auth.Password != "" {
		cfg.Auth.PasswordSource = passwordSourceConfig
	}
	return cfg, nil
}

func lookupKeyring(cfg *config.Config, log *slog.Logger) {
	if cfg.Auth.Password != "" || cfg.Auth.Username == "" || cfg.IMAP.Host == "" {
		return
	}
	store, err := openStore(cfg.Keyring)
	if err != nil {
		log.Debug("keyring unavailable", "error", err)
		return
	}
	password, err := store.Password(cfg.IMAP.Host, cfg.Auth.Username)
	if err != nil {
		if !errors.Is(err, secrets.ErrSecretNotFound) {
			log.Debug("keyring lookup failed", "error", err)
		}
		return
	}
	cfg.Auth.Password = password
	cfg.Auth.PasswordSource = passwordSourceKeyring
}

func (o *rootOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("user") {
		cfg.Auth.Username = o.user
	}
	if flags.Changed("password") {
		cfg.Auth.Password = o.password
		cfg.Auth.PasswordSource = passwordSourceFlag
	}
	if flags.Changed("folder") {
		cfg.Defaults.Folder = o.folder
	}
	if flags.Changed("tls") {
		cfg.IMAP.TLS = o.tls
		if !flags.Changed("port") {
			// A configured port belongs to the configured transport.
			cfg.IMAP.Port = 0
		}
	}
	if flags.Changed("port") {
		cfg.IMAP.Port = o.port
	}
	if flags.Changed("timeout") {
		cfg.IMAP.Timeout = o.timeout
	}
	if flags.Changed("insecure") {
		cfg.IMAP.InsecureSkipVerify = o.insecure
	}
	if flags.Changed("match") {
		cfg.IMAP.Match = strings.ToLower(strings.TrimSpace(o.match))
	}
}

// invocation is everything a mailbox command needs to run.
type invocation struct {
	cfg  config.Config
	log  *slog.Logger
	svc  *imap.Service
	opts imap.Options
}

func (o *rootOptions) prepare(cmd *cobra.Command, host string) (*invocation, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	o.apply(cmd, &cfg)
	cfg.IMAP.Host = strings.TrimSpace(host)

	level := cfg.Log.Level
	if o.verbose {
		level = "debug"
	}
	log := newLogger(cmd.ErrOrStderr(), level)

	lookupKeyring(&cfg, log)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	log.Debug("config resolved",
		"address", cfg.IMAP.Address(),
		"tls", cfg.IMAP.TLS,
		"user", cfg.Auth.Username,
		"password_source", cfg.Auth.PasswordSource,
		"match", cfg.IMAP.Match,
	)

	return &invocation{
		cfg:  cfg,
		log:  log,
		svc:  imap.NewService(log),
		opts: serviceOptions(cfg, log),
	}, nil
}

func serviceOptions(cfg config.Config, log *slog.Logger) imap.Options {
	var matcher imap.Matcher = imap.StrictMatcher{}
	if cfg.IMAP.Match == config.MatchLegacy {
		matcher = imap.LegacyMatcher{}
	}
	return imap.Options{
		Transport: transport.Options{
			Host:               cfg.IMAP.Host,
			Port:               cfg.IMAP.EffectivePort(),
			TLS:                cfg.IMAP.TLS,
			InsecureSkipVerify: cfg.IMAP.InsecureSkipVerify,
			Timeout:            cfg.IMAP.Timeout,
		},
		Username: cfg.Auth.Username,
		Password: cfg.Auth.Password,
		Folder:   cfg.Defaults.Folder,
		Session: imap.SessionOptions{
			Matcher:           matcher,
			ChunkSize:         cfg.IMAP.ChunkSize,
			LoginConfirmation: cfg.IMAP.LoginConfirmation,
			Logger:            log,
		},
	}
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
