package message

import (
	"bufio"
	"bytes"
	"errors"
	"strings"

	gomessage "github.com/emersion/go-message"
	"github.com/emersion/go-message/textproto"
)

var (
	ErrNoBoundary = errors.New("MIME boundary not found")
	ErrNoParts    = errors.New("no MIME parts found")
	ErrNoTextPart = errors.New("no text/plain MIME part found")
)

const textPlainMarker = "Content-Type: text/plain;"

// MimePart is a single part of a multipart message.
type MimePart struct {
	// Index is the 1-based position of the part after the first delimiter.
	Index       int
	ContentType string
	Header      []byte
	Body        []byte
}

// DecodeMIME returns the first text/plain part of a multipart message.
func DecodeMIME(raw []byte) (MimePart, error) {
	boundary, err := Boundary(raw)
	if err != nil {
		return MimePart{}, err
	}
	delim := []byte("--" + boundary)

	first := bytes.Index(raw, delim)
	if first < 0 {
		return MimePart{}, ErrNoParts
	}
	start := first + len(delim)

	for index := 1; ; index++ {
		next := bytes.Index(raw[start:], delim)
		if next < 0 {
			break
		}
		part := raw[start : start+next]
		if p, ok := textPart(part); ok {
			p.Index = index
			return p, nil
		}
		start += next + len(delim)
	}
	return MimePart{}, ErrNoTextPart
}

// textPart inspects the bytes between two delimiters.
func textPart(part []byte) (MimePart, bool) {
	ct := bytes.Index(part, []byte(textPlainMarker))
	if ct < 0 {
		return MimePart{}, false
	}
	sep := bytes.Index(part[ct:], []byte("\r\n\r\n"))
	if sep < 0 {
		return MimePart{}, false
	}
	headerEnd := ct + sep
	body := part[headerEnd+4:]
	body = bytes.TrimSuffix(body, []byte("\r\n"))

	ctLine, _, _ := bytes.Cut(part[ct+len("Content-Type:"):], []byte("\r\n"))

	return MimePart{
		ContentType: strings.TrimSpace(string(ctLine)),
		Header:      bytes.TrimLeft(part[:headerEnd], "\r\n"),
		Body:        body,
	}, true
}

// Boundary returns the boundary parameter of the top-level Content-Type
// with any surrounding quotes removed.
func Boundary(raw []byte) (string, error) {
	if b := headerBoundary(raw); b != "" {
		return b, nil
	}
	return scanBoundary(raw)
}

func headerBoundary(raw []byte) string {
	h, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return ""
	}
	header := gomessage.Header{Header: h}
	mediaType, params, err := header.ContentType()
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return ""
	}
	return params["boundary"]
}

// scanBoundary locates the first "boundary=" anywhere in raw, for payloads
// that still carry IMAP framing ahead of the message header.
func scanBoundary(raw []byte) (string, error) {
	const key = "boundary="
	i := bytes.Index(raw, []byte(key))
	if i < 0 {
		return "", ErrNoBoundary
	}
	value, _, _ := bytes.Cut(raw[i+len(key):], []byte("\n"))
	v := strings.TrimSpace(string(value))
	if strings.HasPrefix(v, `"`) {
		v = v[1:]
		if end := strings.IndexByte(v, '"'); end >= 0 {
			v = v[:end]
		}
	} else if end := strings.IndexByte(v, ';'); end >= 0 {
		v = v[:end]
	}
	v = strings.Trim(v, `" `)
	if v == "" {
		return "", ErrNoBoundary
	}
	return v, nil
}
