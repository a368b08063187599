// Package secrets keeps IMAP passwords in the OS keyring, or in an
// encrypted file store where no keyring service is available.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/99designs/keyring"
	"golang.org/x/term"

	"imapfetch/internal/config"
)

const (
	keyringPasswordEnv = "IMAPFETCH_KEYRING_PASSWORD" //nolint:gosec // env var name, not a credential
	keyringBackendEnv  = "IMAPFETCH_KEYRING_BACKEND"  //nolint:gosec // env var name, not a credential
)

var (
	ErrSecretNotFound        = errors.New("secret not found")
	errMissingHost           = errors.New("missing host")
	errMissingUsername       = errors.New("missing username")
	errMissingPassword       = errors.New("missing password")
	errNoTTY                 = errors.New("no TTY available for keyring file backend password prompt")
	errInvalidKeyringBackend = errors.New("invalid keyring backend")
	errKeyringTimeout        = errors.New("keyring connection timed out")
	keyringOpenFunc          = keyring.Open
)

const (
	BackendAuto     = "auto"
	BackendKeychain = "keychain"
	BackendFile     = "file"

	backendSourceEnv     = "env"
	backendSourceConfig  = "config"
	backendSourceDefault = "default"
)

// keyringOpenTimeout bounds keyring.Open. On headless Linux the D-Bus
// SecretService can hang if gnome-keyring is installed but not running.
const keyringOpenTimeout = 5 * time.Second

type BackendInfo struct {
	Value  string
	Source string
}

// ResolveBackend picks the backend from the environment, then the config
// file, then falls back to auto.
func ResolveBackend(configured string) BackendInfo {
	if v := normalize(os.Getenv(keyringBackendEnv)); v != "" {
		return BackendInfo{Value: v, Source: backendSourceEnv}
	}
	if v := normalize(configured); v != "" {
		return BackendInfo{Value: v, Source: backendSourceConfig}
	}
	return BackendInfo{Value: BackendAuto, Source: backendSourceDefault}
}

func allowedBackends(info BackendInfo) ([]keyring.BackendType, error) {
	switch info.Value {
	case "", BackendAuto:
		return nil, nil
	case BackendKeychain:
		return []keyring.BackendType{keyring.KeychainBackend}, nil
	case BackendFile:
		return []keyring.BackendType{keyring.FileBackend}, nil
	default:
		return nil, fmt.Errorf("%w: %q from %s (expected %s, %s, or %s)",
			errInvalidKeyringBackend, info.Value, info.Source, BackendAuto, BackendKeychain, BackendFile)
	}
}

// IsKeychainLockedError reports whether msg is the macOS error for a
// locked login keychain.
func IsKeychainLockedError(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "user interaction is not allowed") ||
		strings.Contains(msg, "-25308")
}

func wrapKeychainError(err error) error {
	if err == nil {
		return nil
	}
	if IsKeychainLockedError(err.Error()) {
		return fmt.Errorf("%w\n\nYour macOS keychain is locked. To unlock it, run:\n  security unlock-keychain ~/Library/Keychains/login.keychain-db", err)
	}
	return err
}

func filePasswordFuncFrom(password string, passwordSet bool, isTTY bool) keyring.PromptFunc {
	// An empty passphrase is valid when set explicitly.
	if passwordSet {
		return keyring.FixedStringPrompt(password)
	}
	if isTTY {
		return keyring.TerminalPrompt
	}
	return func(_ string) (string, error) {
		return "", fmt.Errorf("%w; set %s", errNoTTY, keyringPasswordEnv)
	}
}

func filePasswordFunc() keyring.PromptFunc {
	password, passwordSet := os.LookupEnv(keyringPasswordEnv)
	return filePasswordFuncFrom(password, passwordSet, term.IsTerminal(int(os.Stdin.Fd())))
}

func shouldForceFileBackend(goos string, info BackendInfo, dbusAddr string) bool {
	return goos == "linux" && info.Value == BackendAuto && dbusAddr == ""
}

func shouldUseTimeout(goos string, info BackendInfo, dbusAddr string) bool {
	return goos == "linux" && info.Value == BackendAuto && dbusAddr != ""
}

// Store reads and writes IMAP passwords keyed by server and account.
type Store struct {
	ring keyring.Keyring
}

func newStore(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// Open opens the keyring selected by cfg (or IMAPFETCH_KEYRING_BACKEND).
func Open(cfg config.KeyringConfig) (*Store, error) {
	dir, err := config.EnsureKeyringDir()
	if err != nil {
		return nil, err
	}

	info := ResolveBackend(cfg.Backend)
	backends, err := allowedBackends(info)
	if err != nil {
		return nil, err
	}

	dbusAddr := os.Getenv("DBUS_SESSION_BUS_ADDRESS")
	if shouldForceFileBackend(runtime.GOOS, info, dbusAddr) {
		backends = []keyring.BackendType{keyring.FileBackend}
	}

	kc := keyring.Config{
		ServiceName:              config.AppName,
		KeychainTrustApplication: false,
		AllowedBackends:          backends,
		FileDir:                  dir,
		FilePasswordFunc:         filePasswordFunc(),
	}

	var ring keyring.Keyring
	if shouldUseTimeout(runtime.GOOS, info, dbusAddr) {
		ring, err = openWithTimeout(kc, keyringOpenTimeout)
	} else {
		ring, err = keyringOpenFunc(kc)
		if err != nil {
			err = fmt.Errorf("open keyring: %w", err)
		}
	}
	if err != nil {
		return nil, err
	}
	return newStore(ring), nil
}

type openResult struct {
	ring keyring.Keyring
	err  error
}

func openWithTimeout(kc keyring.Config, timeout time.Duration) (keyring.Keyring, error) {
	ch := make(chan openResult, 1)
	go func() {
		ring, err := keyringOpenFunc(kc)
		ch <- openResult{ring, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("open keyring: %w", res.err)
		}
		return res.ring, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("%w after %v (D-Bus SecretService may be unresponsive); "+
			"set %s=file and %s=<password> to use encrypted file storage instead",
			errKeyringTimeout, timeout, keyringBackendEnv, keyringPasswordEnv)
	}
}

func (s *Store) SetPassword(host, username, password string) error {
	key, err := passwordKey(host, username)
	if err != nil {
		return err
	}
	if password == "" {
		return errMissingPassword
	}

	item := keyring.Item{
		Key:   key,
		Data:  []byte(password),
		Label: config.AppName + " " + key,
	}
	if err := s.ring.Set(item); err != nil {
		return wrapKeychainError(fmt.Errorf("store password: %w", err))
	}
	return nil
}

// Password returns the stored password, or ErrSecretNotFound.
func (s *Store) Password(host, username string) (string, error) {
	key, err := passwordKey(host, username)
	if err != nil {
		return "", err
	}

	item, err := s.ring.Get(key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", ErrSecretNotFound
		}
		return "", wrapKeychainError(fmt.Errorf("read password: %w", err))
	}
	return string(item.Data), nil
}

func (s *Store) DeletePassword(host, username string) error {
	key, err := passwordKey(host, username)
	if err != nil {
		return err
	}
	if err := s.ring.Remove(key); err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return ErrSecretNotFound
		}
		return wrapKeychainError(fmt.Errorf("remove password: %w", err))
	}
	return nil
}

func passwordKey(host, username string) (string, error) {
	h, u := normalize(host), normalize(username)
	if h == "" {
		return "", errMissingHost
	}
	if u == "" {
		return "", errMissingUsername
	}
	return fmt.Sprintf("imap:%s:%s", h, u), nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
