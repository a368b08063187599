package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	AppName = "imapfetch"

	// DirEnv overrides the config directory outright.
	DirEnv = "IMAPFETCH_CONFIG_DIR"
)

// Dir resolves the config directory: $IMAPFETCH_CONFIG_DIR, then
// $XDG_CONFIG_HOME/imapfetch, then ~/.config/imapfetch.
func Dir() (string, error) {
	if dir := os.Getenv(DirEnv); dir != "" {
		return filepath.Clean(dir), nil
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); filepath.IsAbs(xdg) {
		return filepath.Join(xdg, AppName), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home dir: %w", err)
	}
	return filepath.Join(home, ".config", AppName), nil
}

func EnsureDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return dir, ensure(dir, "config dir")
}

// KeyringDir holds the encrypted entries of the keyring "file" backend.
func KeyringDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "keyring"), nil
}

func EnsureKeyringDir() (string, error) {
	dir, err := KeyringDir()
	if err != nil {
		return "", err
	}
	return dir, ensure(dir, "keyring dir")
}

func ensure(dir, what string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("ensure %s: %w", what, err)
	}
	return nil
}
