package imap

import (
	"errors"
	"fmt"

	"github.com/emersion/go-imap"
)

// Kind classifies failures for reporting and exit codes.
type Kind int

const (
	KindUsage Kind = iota + 1
	KindTransport
	KindProtocol
	KindContent
)

func (k Kind) String() string {
	switch k {
	case KindUsage:
		return "usage"
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindContent:
		return "content"
	default:
		return "unknown"
	}
}

// Process exit codes.
const (
	ExitOK        = 0
	ExitUsage     = 1
	ExitTransport = 3
	ExitContent   = 4
)

var ErrPeerClosed = errors.New("connection closed by server")

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func usageError(op string, err error) error {
	return &Error{Kind: KindUsage, Op: op, Err: err}
}

func transportError(op string, err error) error {
	return &Error{Kind: KindTransport, Op: op, Err: err}
}

func contentError(op string, err error) error {
	return &Error{Kind: KindContent, Op: op, Err: err}
}

// protocolError reports a NO/BAD (or unconfirmed OK) completion.
func protocolError(op, msg string, resp *imap.StatusResp) error {
	var cause error
	if resp != nil {
		cause = resp.Err()
		if cause == nil {
			cause = fmt.Errorf("%s %s", resp.Type, resp.Info)
		}
	} else {
		cause = errors.New("no status response")
	}
	return &Error{Kind: KindProtocol, Op: op, Err: fmt.Errorf("%s: %w", msg, cause)}
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// ExitCode maps err to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch KindOf(err) {
	case KindTransport, KindProtocol:
		return ExitTransport
	case KindContent:
		return ExitContent
	default:
		return ExitUsage
	}
}
