// Package transport provides the byte stream an IMAP session runs over:
// a plaintext TCP connection or a TLS connection whose handshake has
// completed before Dial returns.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"syscall"
	"time"
)

// ErrTimeout is returned by Send and Receive when the per-call deadline
// expires.
var ErrTimeout = errors.New("transport timeout")

// Transport is a bidirectional byte stream with blocking calls.
//
// Receive returns io.EOF once the peer has closed the stream; it never
// returns (0, nil).
type Transport interface {
	Send(p []byte) (int, error)
	Receive(p []byte) (int, error)
	Close() error
}

type Options struct {
	Host               string
	Port               int
	TLS                bool
	InsecureSkipVerify bool
	Timeout            time.Duration
}

func (o Options) Address() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// Conn implements Transport over a net.Conn. Every Send and Receive is
// bounded by Timeout.
type Conn struct {
	conn    net.Conn
	timeout time.Duration
}

func NewConn(conn net.Conn, timeout time.Duration) *Conn {
	return &Conn{conn: conn, timeout: timeout}
}

func Dial(ctx context.Context, opts Options) (*Conn, error) {
	dialer := &net.Dialer{Timeout: opts.Timeout}
	addr := opts.Address()

	if !opts.TLS {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("connect %s: %w", addr, err)
		}
		return NewConn(conn, opts.Timeout), nil
	}

	tlsDialer := &tls.Dialer{
		NetDialer: dialer,
		Config: &tls.Config{
			ServerName:         opts.Host,
			InsecureSkipVerify: opts.InsecureSkipVerify, //nolint:gosec // opt-in via --insecure
			MinVersion:         tls.VersionTLS12,
		},
	}
	conn, err := tlsDialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect tls %s: %w", addr, err)
	}
	return NewConn(conn, opts.Timeout), nil
}

func (c *Conn) Send(p []byte) (int, error) {
	if c.timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	n, err := c.conn.Write(p)
	return n, mapError(err)
}

func (c *Conn) Receive(p []byte) (int, error) {
	if c.timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, receiveError(err)
		}
	}
	n, err := c.conn.Read(p)
	if n == 0 && err == nil {
		return 0, io.EOF
	}
	if n > 0 {
		// The data is usable; a trailing error resurfaces on the next read.
		return n, nil
	}
	return n, receiveError(err)
}

// receiveError reports a stream the peer has torn down as io.EOF, so
// callers see one end-of-stream signal whatever the underlying conn.
func receiveError(err error) error {
	if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) {
		return io.EOF
	}
	return mapError(err)
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
