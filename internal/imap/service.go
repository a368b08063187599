package imap

import (
	"context"
	"io"
	"log/slog"

	"imapfetch/internal/message"
	"imapfetch/internal/transport"
)

// Dialer opens the byte stream a session runs over.
type Dialer func(ctx context.Context, opts transport.Options) (transport.Transport, error)

// Options is everything one invocation needs to reach and open a mailbox.
type Options struct {
	Transport transport.Options
	Username  string
	Password  string
	Folder    string
	Session   SessionOptions
}

type Service struct {
	Dial   Dialer
	Logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	return &Service{Dial: Dial, Logger: logger}
}

// Dial is the default Dialer.
func Dial(ctx context.Context, opts transport.Options) (transport.Transport, error) {
	conn, err := transport.Dial(ctx, opts)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s.Logger
}

func validateOptions(opts Options) error {
	if err := checkArgument("username", opts.Username); err != nil {
		return usageError("login", err)
	}
	if err := checkArgument("password", opts.Password); err != nil {
		return usageError("login", err)
	}
	if err := checkArgument("folder", opts.Folder); err != nil {
		return usageError("select", err)
	}
	return nil
}

// withSession runs LOGIN, SELECT, fn and LOGOUT over a fresh connection.
// The transport is closed exactly once on every path.
func (s *Service) withSession(ctx context.Context, opts Options, fn func(*Session) error) error {
	if err := validateOptions(opts); err != nil {
		return err
	}

	dial := s.Dial
	if dial == nil {
		dial = Dial
	}
	log := s.logger()
	log.Debug("connecting", "address", opts.Transport.Address(), "tls", opts.Transport.TLS)

	t, err := dial(ctx, opts.Transport)
	if err != nil {
		return transportError("connect", err)
	}

	sessOpts := opts.Session
	if sessOpts.Logger == nil {
		sessOpts.Logger = log
	}
	sess := NewSession(t, sessOpts)
	defer func() {
		if err := sess.Close(); err != nil {
			log.Debug("close transport", "error", err)
		}
	}()

	if err := sess.Login(opts.Username, opts.Password); err != nil {
		return err
	}
	if err := sess.Select(opts.Folder); err != nil {
		return err
	}

	opErr := fn(sess)
	if sess.State() != Failed {
		if err := sess.Logout(); err != nil {
			log.Warn("logout failed", "error", err)
		}
	}
	return opErr
}

func checkSequence(op, seq string) error {
	if _, err := singleMessage(seq); err != nil {
		return usageError(op, err)
	}
	return nil
}

// Retrieve returns the full raw message at seq.
func (s *Service) Retrieve(ctx context.Context, opts Options, seq string) ([]byte, error) {
	if err := checkSequence("retrieve", seq); err != nil {
		return nil, err
	}
	var raw []byte
	err := s.withSession(ctx, opts, func(sess *Session) error {
		block, err := sess.Fetch(FetchSpec{Kind: FetchFull, Sequence: seq})
		if err != nil {
			return err
		}
		content, err := message.ExtractContent(block.Payload())
		if err != nil {
			return contentError("retrieve", err)
		}
		raw = content
		return nil
	})
	return raw, err
}

// ParseHeaders returns the From/To/Date/Subject summary of the message at
// seq.
func (s *Service) ParseHeaders(ctx context.Context, opts Options, seq string) (message.HeaderSet, error) {
	if err := checkSequence("parse", seq); err != nil {
		return message.HeaderSet{}, err
	}
	var hs message.HeaderSet
	err := s.withSession(ctx, opts, func(sess *Session) error {
		block, err := sess.Fetch(FetchSpec{Kind: FetchHeaders, Sequence: seq})
		if err != nil {
			return err
		}
		hs = message.ParseHeaders(block.Payload())
		return nil
	})
	return hs, err
}

// ListSubjects returns one entry per message of the folder, in mailbox
// order.
func (s *Service) ListSubjects(ctx context.Context, opts Options) ([]message.SubjectEntry, error) {
	var entries []message.SubjectEntry
	err := s.withSession(ctx, opts, func(sess *Session) error {
		block, err := sess.Fetch(FetchSpec{Kind: FetchSubjects})
		if err != nil {
			return err
		}
		entries = message.ParseSubjects(block.Payload())
		return nil
	})
	return entries, err
}

// ExtractMIME returns the first text/plain part of the message at seq.
func (s *Service) ExtractMIME(ctx context.Context, opts Options, seq string) (message.MimePart, error) {
	if err := checkSequence("mime", seq); err != nil {
		return message.MimePart{}, err
	}
	var part message.MimePart
	err := s.withSession(ctx, opts, func(sess *Session) error {
		block, err := sess.Fetch(FetchSpec{Kind: FetchFull, Sequence: seq})
		if err != nil {
			return err
		}
		raw, err := message.ExtractContent(block.Payload())
		if err != nil {
			raw = block.Payload()
		}
		p, err := message.DecodeMIME(raw)
		if err != nil {
			return contentError("mime", err)
		}
		part = p
		return nil
	})
	return part, err
}
