package cli

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imapfetch/internal/config"
	"imapfetch/internal/imap"
	"imapfetch/internal/secrets"
)

// imapServer answers a single connection with canned replies keyed by
// command name. "$TAG" is replaced with the command's tag.
type imapServer struct {
	ln      net.Listener
	replies map[string]string

	mu  sync.Mutex
	got []string
}

func standardReplies() map[string]string {
	return map[string]string{
		"LOGIN":  "$TAG OK [CAPABILITY IMAP4rev1] Logged in\r\n",
		"SELECT": "* 2 EXISTS\r\n* 0 RECENT\r\n$TAG OK [READ-WRITE] SELECT completed\r\n",
		"LOGOUT": "* BYE Logging out\r\n$TAG OK Logout completed\r\n",
	}
}

func startServer(t *testing.T, replies map[string]string) *imapServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &imapServer{ln: ln, replies: replies}
	go s.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return s
}

func (s *imapServer) serve() {
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	_, _ = io.WriteString(conn, "* OK [CAPABILITY IMAP4rev1] Service Ready\r\n")
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		s.mu.Lock()
		s.got = append(s.got, line)
		s.mu.Unlock()

		fields := strings.Fields(line)
		if len(fields) < 2 {
			return
		}
		tag, verb := fields[0], fields[1]
		_, _ = io.WriteString(conn, strings.ReplaceAll(s.replies[verb], "$TAG", tag))
		if verb == "LOGOUT" {
			return
		}
	}
}

func (s *imapServer) port() string {
	return strconv.Itoa(s.ln.Addr().(*net.TCPAddr).Port)
}

func (s *imapServer) commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.got...)
}

type memoryStore map[string]string

func (m memoryStore) Password(host, username string) (string, error) {
	pw, ok := m[host+"/"+username]
	if !ok {
		return "", secrets.ErrSecretNotFound
	}
	return pw, nil
}

func (m memoryStore) SetPassword(host, username, password string) error {
	m[host+"/"+username] = password
	return nil
}

func (m memoryStore) DeletePassword(host, username string) error {
	if _, ok := m[host+"/"+username]; !ok {
		return secrets.ErrSecretNotFound
	}
	delete(m, host+"/"+username)
	return nil
}

// setup isolates the config directory and the keyring.
func setup(t *testing.T) memoryStore {
	t.Helper()
	t.Setenv(config.DirEnv, t.TempDir())
	t.Setenv(passwordEnv, "")
	require.NoError(t, os.Unsetenv(passwordEnv))
	store := memoryStore{}
	prev := openStore
	openStore = func(config.KeyringConfig) (passwordStore, error) { return store, nil }
	t.Cleanup(func() { openStore = prev })
	return store
}

func execute(args ...string) (code int, stdout, stderr string) {
	var out, errOut bytes.Buffer
	code = run(context.Background(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func fetchLiteral(seq int, item, literal string) string {
	return fmt.Sprintf("* %d FETCH (%s {%d}\r\n%s)\r\n$TAG OK Fetch completed\r\n", seq, item, len(literal), literal)
}

func TestRetrievePrintsMessage(t *testing.T) {
	setup(t)
	body := "From: alice@example.com\r\nSubject: Hi\r\n\r\nhello there\r\n"
	replies := standardReplies()
	replies["FETCH"] = fetchLiteral(1, "BODY[]", body)
	srv := startServer(t, replies)

	code, stdout, stderr := execute("-u", "user", "-p", "secret", "--port", srv.port(), "-n", "1", "retrieve", "127.0.0.1")

	require.Equal(t, imap.ExitOK, code, stderr)
	assert.Equal(t, body, stdout)
	assert.Equal(t, []string{
		"A01 LOGIN user secret",
		"A02 SELECT \"INBOX\"",
		"A03 FETCH 1 BODY.PEEK[]",
		"A04 LOGOUT",
	}, srv.commands())
}

func TestRetrieveDefaultsToLastMessage(t *testing.T) {
	setup(t)
	replies := standardReplies()
	replies["FETCH"] = fetchLiteral(2, "BODY[]", "Subject: last\r\n\r\nx\r\n")
	srv := startServer(t, replies)

	code, _, stderr := execute("-u", "user", "-p", "secret", "--port", srv.port(), "RETRIEVE", "127.0.0.1")

	require.Equal(t, imap.ExitOK, code, stderr)
	assert.Equal(t, "A03 FETCH * BODY.PEEK[]", srv.commands()[2])
}

func TestLoginFailureExitsWithTransportCode(t *testing.T) {
	setup(t)
	replies := standardReplies()
	replies["LOGIN"] = "$TAG NO Login failed\r\n"
	srv := startServer(t, replies)

	code, stdout, stderr := execute("-u", "user", "-p", "wrong", "--port", srv.port(), "retrieve", "127.0.0.1")

	assert.Equal(t, imap.ExitTransport, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "login failure")
	assert.Equal(t, []string{"A01 LOGIN user wrong"}, srv.commands())
}

func TestListPrintsSubjects(t *testing.T) {
	setup(t)
	item := "BODY[HEADER.FIELDS (SUBJECT)]"
	replies := standardReplies()
	replies["FETCH"] = fmt.Sprintf("* 1 FETCH (%s {15}\r\nSubject: Hi\r\n\r\n)\r\n", item) +
		fmt.Sprintf("* 2 FETCH (%s {2}\r\n\r\n)\r\n", item) +
		"$TAG OK Fetch completed\r\n"
	srv := startServer(t, replies)

	code, stdout, stderr := execute("-u", "user", "-p", "secret", "-f", "Archive", "--port", srv.port(), "list", "127.0.0.1")

	require.Equal(t, imap.ExitOK, code, stderr)
	assert.Equal(t, "1:Hi\n2: <No subject>\n", stdout)
	cmds := srv.commands()
	assert.Equal(t, "A02 SELECT \"Archive\"", cmds[1])
	assert.Equal(t, "A03 FETCH 1:* (BODY[HEADER.FIELDS (SUBJECT)])", cmds[2])
}

func TestParseDecodesHeaders(t *testing.T) {
	setup(t)
	headers := "From: alice@example.com\r\nDate: Mon, 1 Jan 2024 10:00:00 +0000\r\nSubject: =?UTF-8?Q?caf=C3=A9?=\r\n\r\n"
	replies := standardReplies()
	replies["FETCH"] = fetchLiteral(3, "BODY[HEADER.FIELDS (FROM TO DATE SUBJECT)]", headers)
	srv := startServer(t, replies)

	code, stdout, stderr := execute("-u", "user", "-p", "secret", "--port", srv.port(), "-n", "3", "parse", "--decode", "127.0.0.1")

	require.Equal(t, imap.ExitOK, code, stderr)
	assert.Equal(t, "From: alice@example.com\nTo:\nDate: Mon, 1 Jan 2024 10:00:00 +0000\nSubject: café\n", stdout)
}

func TestMimeWithoutTextPartExitsWithContentCode(t *testing.T) {
	setup(t)
	replies := standardReplies()
	replies["FETCH"] = fetchLiteral(1, "BODY[]", "Subject: plain\r\n\r\njust text\r\n")
	srv := startServer(t, replies)

	code, _, stderr := execute("-u", "user", "-p", "secret", "--port", srv.port(), "-n", "1", "mime", "127.0.0.1")

	assert.Equal(t, imap.ExitContent, code)
	assert.Contains(t, stderr, "boundary")
	assert.Equal(t, "A04 LOGOUT", srv.commands()[3])
}

func TestMimePrintsTextPart(t *testing.T) {
	setup(t)
	msg := "Content-Type: multipart/alternative; boundary=XYZ\r\n\r\n" +
		"--XYZ\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\nhello\r\n" +
		"--XYZ\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n<p>hello</p>\r\n" +
		"--XYZ--\r\n"
	replies := standardReplies()
	replies["FETCH"] = fetchLiteral(1, "BODY[]", msg)
	srv := startServer(t, replies)

	code, stdout, stderr := execute("-u", "user", "-p", "secret", "--port", srv.port(), "mime", "127.0.0.1")

	require.Equal(t, imap.ExitOK, code, stderr)
	assert.Equal(t, "hello\n", stdout)
}

func TestKeyringPasswordFallback(t *testing.T) {
	store := setup(t)
	require.NoError(t, store.SetPassword("127.0.0.1", "user", "from-keyring"))
	replies := standardReplies()
	replies["FETCH"] = fetchLiteral(1, "BODY[]", "Subject: x\r\n\r\nx\r\n")
	srv := startServer(t, replies)

	code, _, stderr := execute("-u", "user", "--port", srv.port(), "retrieve", "127.0.0.1")

	require.Equal(t, imap.ExitOK, code, stderr)
	assert.Equal(t, "A01 LOGIN user from-keyring", srv.commands()[0])
}

func TestUsageErrors(t *testing.T) {
	setup(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad sequence", []string{"-u", "user", "-p", "secret", "-n", "abc", "retrieve", "127.0.0.1"}, "invalid sequence"},
		{"zero sequence", []string{"-u", "user", "-p", "secret", "-n", "0", "parse", "127.0.0.1"}, "start at 1"},
		{"missing user", []string{"-p", "secret", "retrieve", "127.0.0.1"}, "auth.username is required"},
		{"missing password", []string{"-u", "user", "retrieve", "127.0.0.1"}, "auth.password is required"},
		{"missing server", []string{"-u", "user", "-p", "secret", "retrieve"}, "accepts 1 arg"},
		{"unknown command", []string{"-u", "user", "-p", "secret", "delete", "127.0.0.1"}, "unknown command"},
		{"bad match", []string{"-u", "user", "-p", "secret", "--match", "fuzzy", "list", "127.0.0.1"}, "imap.match"},
		{"non-ascii folder", []string{"-u", "user", "-p", "secret", "-f", "Entwürfe", "list", "127.0.0.1"}, "printable ASCII"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := execute(tt.args...)
			assert.Equal(t, imap.ExitUsage, code)
			assert.Contains(t, stderr, tt.want)
		})
	}
}

func TestConnectionRefused(t *testing.T) {
	setup(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := strconv.Itoa(ln.Addr().(*net.TCPAddr).Port)
	require.NoError(t, ln.Close())

	code, _, stderr := execute("-u", "user", "-p", "secret", "--port", port, "list", "127.0.0.1")

	assert.Equal(t, imap.ExitTransport, code)
	assert.Contains(t, stderr, "connect")
}

func TestAuthLoginStoresPasswordInKeyring(t *testing.T) {
	store := setup(t)

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader("s3cret\n"))
	cmd.SetArgs([]string{"-u", "alice", "-t", "auth", "login", "--host", "imap.example.com"})
	require.NoError(t, cmd.Execute())

	pw, err := store.Password("imap.example.com", "alice")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pw)
	assert.Contains(t, out.String(), "alice@imap.example.com")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "imap.example.com", cfg.IMAP.Host)
	assert.Equal(t, "alice", cfg.Auth.Username)
	assert.True(t, cfg.IMAP.TLS)
	assert.Empty(t, cfg.Auth.Password)
}

func TestAuthLogoutRemovesPassword(t *testing.T) {
	store := setup(t)
	store["imap.example.com/alice"] = "s3cret"
	store["imap.example.com/bob"] = "other"
	t.Setenv("IMAPFETCH_IMAP_HOST", "imap.example.com")

	code, stdout, stderr := execute("-u", "alice", "auth", "logout")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "alice@imap.example.com removed")

	_, err := store.Password("imap.example.com", "alice")
	assert.ErrorIs(t, err, secrets.ErrSecretNotFound)
	pw, err := store.Password("imap.example.com", "bob")
	require.NoError(t, err)
	assert.Equal(t, "other", pw)

	code, stdout, _ = execute("-u", "alice", "auth", "logout", "--host", "imap.example.com")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "No password stored for alice@imap.example.com")
}

func TestAuthLogoutRequiresHostAndUser(t *testing.T) {
	setup(t)

	code, _, stderr := execute("auth", "logout")
	assert.NotEqual(t, 0, code)
	assert.Contains(t, stderr, "--host and --user are required")
}

func TestTLSFlagOverridesConfiguredPort(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"tls derives port", []string{"-t"}, 993},
		{"explicit port wins", []string{"-t", "--port", "1143"}, 1143},
		{"no flags keep config", nil, 143},
		{"tls off keeps default", []string{"--tls=false"}, 143},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := &rootOptions{}
			root := newRootCmd(opts)
			sub, _, err := root.Find([]string{"list"})
			require.NoError(t, err)
			require.NoError(t, sub.ParseFlags(tt.args))

			cfg := config.DefaultConfig()
			cfg.IMAP.Port = 143
			cfg.IMAP.TLS = false
			opts.apply(sub, &cfg)
			assert.Equal(t, tt.want, cfg.IMAP.EffectivePort())
		})
	}
}

func TestConfigShowRedactsPassword(t *testing.T) {
	setup(t)
	t.Setenv("IMAPFETCH_AUTH_USERNAME", "alice")
	t.Setenv(passwordEnv, "topsecret")

	code, stdout, stderr := execute("config", "show")

	require.Equal(t, imap.ExitOK, code, stderr)
	assert.Contains(t, stdout, "username: alice")
	assert.Contains(t, stdout, "****")
	assert.NotContains(t, stdout, "topsecret")
	assert.Contains(t, stdout, "# password source: env")
}

func TestReadPasswordFromPipe(t *testing.T) {
	pw, err := readPassword(strings.NewReader("pa ss\r\n"), io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "pa ss", pw)

	pw, err = readPassword(strings.NewReader("no-newline"), io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "no-newline", pw)
}
