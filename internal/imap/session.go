package imap

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/emersion/go-imap"

	"imapfetch/internal/transport"
)

// State is the position of a Session in the
// LOGIN -> SELECT -> operation -> LOGOUT sequence.
type State int

const (
	Disconnected State = iota
	LoggingIn
	SelectingFolder
	Operating
	LoggingOut
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case LoggingIn:
		return "logging in"
	case SelectingFolder:
		return "selecting folder"
	case Operating:
		return "operating"
	case LoggingOut:
		return "logging out"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const DefaultLoginConfirmation = "Logged in"

type MailboxSelection struct {
	Name  string
	Valid bool
}

type SessionOptions struct {
	Matcher   Matcher
	ChunkSize int
	// LoginConfirmation is the phrase a LOGIN OK must carry. Empty accepts
	// any OK.
	LoginConfirmation string
	Logger            *slog.Logger
}

// Session drives one connection. Commands are strictly sequential.
type Session struct {
	t       transport.Transport
	tags    TagGenerator
	state   State
	mailbox MailboxSelection
	matcher Matcher
	chunk   int
	confirm string
	log     *slog.Logger

	loggedOut bool
	closed    bool
}

func NewSession(t transport.Transport, opts SessionOptions) *Session {
	s := &Session{
		t:       t,
		matcher: opts.Matcher,
		chunk:   opts.ChunkSize,
		confirm: opts.LoginConfirmation,
		log:     opts.Logger,
	}
	if s.matcher == nil {
		s.matcher = StrictMatcher{}
	}
	if s.chunk <= 0 {
		s.chunk = DefaultChunkSize
	}
	if s.log == nil {
		s.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s
}

func (s *Session) State() State {
	return s.state
}

func (s *Session) Mailbox() MailboxSelection {
	return s.mailbox
}

func (s *Session) expect(state State, op string) error {
	if s.state != state {
		return fmt.Errorf("%s: session is %s, want %s", op, s.state, state)
	}
	return nil
}

func (s *Session) fail(err error) error {
	s.state = Failed
	s.mailbox = MailboxSelection{}
	return err
}

// execute sends cmd and accumulates its response.
func (s *Session) execute(op string, cmd *imap.Command, exp Expectation) (*ResponseBlock, Status, error) {
	line, err := encode(cmd)
	if err != nil {
		return nil, Incomplete, usageError(op, err)
	}
	s.log.Debug("imap send", "command", redacted(cmd))
	if _, err := s.t.Send(line); err != nil {
		return nil, Incomplete, transportError(op, fmt.Errorf("send: %w", err))
	}

	block, status, err := Accumulate(s.t, exp, s.matcher, s.chunk)
	if err != nil {
		s.log.Debug("imap receive failed", "tag", cmd.Tag, "bytes", len(block.Data), "error", err)
		return block, status, transportError(op, err)
	}
	attrs := []any{"tag", cmd.Tag, "status", status, "bytes", len(block.Data)}
	if block.Resp != nil {
		attrs = append(attrs, "text", block.Resp.Info)
	}
	s.log.Debug("imap receive", attrs...)
	return block, status, nil
}

// Login authenticates. Any failure is fatal and no LOGOUT is attempted,
// since the connection never reached the authenticated state.
func (s *Session) Login(username, password string) error {
	if err := s.expect(Disconnected, "login"); err != nil {
		return err
	}
	s.state = LoggingIn

	tag := s.tags.Next()
	block, status, err := s.execute("login", loginCommand(tag, username, password), Expectation{Tag: tag, Confirm: s.confirm})
	if err != nil {
		return s.fail(err)
	}
	if status != OK {
		return s.fail(protocolError("login", "login failure", block.Resp))
	}
	s.state = SelectingFolder
	return nil
}

// Select opens folder. On failure a courtesy LOGOUT is attempted before
// the session fails.
func (s *Session) Select(folder string) error {
	if err := s.expect(SelectingFolder, "select"); err != nil {
		return err
	}

	tag := s.tags.Next()
	block, status, err := s.execute("select", selectCommand(tag, folder), Expectation{Tag: tag})
	if err == nil && status != OK {
		msg := "folder not found"
		if status == Bad {
			msg = "invalid command or arguments"
		}
		err = protocolError("select", msg, block.Resp)
	}
	if err != nil {
		s.courtesyLogout()
		return s.fail(err)
	}

	s.mailbox = MailboxSelection{Name: folder, Valid: true}
	s.state = Operating
	return nil
}

// Fetch issues a single FETCH and returns its response block. On failure
// a courtesy LOGOUT is attempted before the session fails.
func (s *Session) Fetch(spec FetchSpec) (*ResponseBlock, error) {
	if err := s.expect(Operating, "fetch"); err != nil {
		return nil, err
	}

	tag := s.tags.Next()
	cmd, err := fetchCommand(tag, spec)
	if err != nil {
		return nil, usageError(spec.Kind.String(), err)
	}
	block, status, err := s.execute(spec.Kind.String(), cmd, Expectation{Tag: tag})
	if err == nil && status != OK {
		msg := "message not found"
		if status == Bad && spec.Kind == FetchSubjects {
			msg = "invalid command or arguments"
		}
		err = protocolError(spec.Kind.String(), msg, block.Resp)
	}
	if err != nil {
		s.courtesyLogout()
		return nil, s.fail(err)
	}
	return block, nil
}

// Logout sends LOGOUT and waits for the server's BYE. The session ends up
// Closed (or stays Failed) whatever the outcome; the returned error is
// informational.
func (s *Session) Logout() error {
	if s.loggedOut || s.closed {
		return nil
	}
	s.loggedOut = true
	failed := s.state == Failed
	s.state = LoggingOut

	tag := s.tags.Next()
	_, _, err := s.execute("logout", logoutCommand(tag), Expectation{Tag: tag, Bye: true})

	s.mailbox = MailboxSelection{}
	s.state = Closed
	if failed {
		s.state = Failed
	}
	return err
}

func (s *Session) courtesyLogout() {
	if err := s.Logout(); err != nil {
		s.log.Warn("logout failed", "error", err)
	}
}

// Close releases the transport. It is safe to call more than once.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.state != Failed {
		s.state = Closed
	}
	return s.t.Close()
}
