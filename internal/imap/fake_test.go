package imap

import (
	"context"
	"io"
	"strings"

	"imapfetch/internal/transport"
)

const greeting = "* OK [CAPABILITY IMAP4rev1] Service Ready\r\n"

// fakeServer replays canned responses keyed by command name. "$TAG" in a
// reply is replaced with the tag of the command being answered. Each reply
// string is delivered as a separate read.
type fakeServer struct {
	replies map[string][]string
	sendErr map[string]error

	pending [][]byte
	sent    []string
	closes  int
}

func newFakeServer(replies map[string][]string) *fakeServer {
	return &fakeServer{
		replies: replies,
		pending: [][]byte{[]byte(greeting)},
	}
}

func defaultReplies() map[string][]string {
	return map[string][]string{
		"LOGIN":  {"$TAG OK [CAPABILITY IMAP4rev1] Logged in\r\n"},
		"SELECT": {"* 5 EXISTS\r\n* FLAGS (\\Seen \\Answered)\r\n", "$TAG OK [READ-WRITE] SELECT completed\r\n"},
		"LOGOUT": {"* BYE Logging out\r\n$TAG OK Logout completed\r\n"},
	}
}

func (f *fakeServer) Send(p []byte) (int, error) {
	line := strings.TrimSuffix(string(p), "\r\n")
	f.sent = append(f.sent, line)

	fields := strings.Fields(line)
	tag, verb := fields[0], fields[1]
	if err := f.sendErr[verb]; err != nil {
		return 0, err
	}
	for _, r := range f.replies[verb] {
		f.pending = append(f.pending, []byte(strings.ReplaceAll(r, "$TAG", tag)))
	}
	return len(p), nil
}

func (f *fakeServer) Receive(p []byte) (int, error) {
	if len(f.pending) == 0 {
		return 0, io.EOF
	}
	n := copy(p, f.pending[0])
	f.pending[0] = f.pending[0][n:]
	if len(f.pending[0]) == 0 {
		f.pending = f.pending[1:]
	}
	return n, nil
}

func (f *fakeServer) Close() error {
	f.closes++
	return nil
}

// verbs lists the command names sent, in order.
func (f *fakeServer) verbs() []string {
	out := make([]string, 0, len(f.sent))
	for _, line := range f.sent {
		out = append(out, strings.Fields(line)[1])
	}
	return out
}

func (f *fakeServer) dialer() Dialer {
	return func(context.Context, transport.Options) (transport.Transport, error) {
		return f, nil
	}
}

func testOptions() Options {
	return Options{
		Transport: transport.Options{Host: "imap.example.com", Port: 143},
		Username:  "user",
		Password:  "secret",
		Folder:    "INBOX",
	}
}
