package message

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"mime"

	gomessage "github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/textproto"
)

var wordDecoder = &mime.WordDecoder{CharsetReader: charset.Reader}

// DecodeWords decodes RFC 2047 encoded-words. Undecodable input is
// returned unchanged.
func DecodeWords(s string) string {
	decoded, err := wordDecoder.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}

func (hs HeaderSet) Decoded() HeaderSet {
	decode := func(f Field) Field {
		f.Value = DecodeWords(f.Value)
		return f
	}
	return HeaderSet{
		From:    decode(hs.From),
		To:      decode(hs.To),
		Date:    hs.Date,
		Subject: decode(hs.Subject),
	}
}

func (e SubjectEntry) Decoded() SubjectEntry {
	e.Subject = DecodeWords(e.Subject)
	return e
}

// Decoded returns the part body with its Content-Transfer-Encoding and
// charset undone.
func (p MimePart) Decoded() ([]byte, error) {
	block := make([]byte, 0, len(p.Header)+4)
	block = append(block, p.Header...)
	block = append(block, "\r\n\r\n"...)

	h, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(block)))
	if err != nil {
		return nil, fmt.Errorf("read part header: %w", err)
	}

	entity, err := gomessage.New(gomessage.Header{Header: h}, bytes.NewReader(p.Body))
	if err != nil && !gomessage.IsUnknownCharset(err) && !gomessage.IsUnknownEncoding(err) {
		return nil, fmt.Errorf("decode part: %w", err)
	}
	if entity == nil {
		return p.Body, nil
	}

	data, err := io.ReadAll(entity.Body)
	if err != nil {
		return nil, fmt.Errorf("decode part: %w", err)
	}
	return data, nil
}
