package message

import (
	"bytes"
	"errors"
	"math"
	"strconv"
)

// MaxLiteralSize bounds the literal sizes LiteralSize accepts.
const MaxLiteralSize = math.MaxInt32

var ErrNoContent = errors.New("message content not found in fetch response")

// ExtractContent returns the message carried by a single-message FETCH
// BODY.PEEK[] payload (the bytes preceding the tagged completion line).
// When a FETCH line announces a literal, exactly that many bytes are
// returned, so untagged data sent ahead of it is skipped. Otherwise the
// content runs from the first CRLF to the closing ")" line.
func ExtractContent(payload []byte) ([]byte, error) {
	if body, ok := fetchLiteral(payload); ok {
		if len(body) == 0 {
			return nil, ErrNoContent
		}
		return body, nil
	}

	_, rest, ok := bytes.Cut(payload, []byte("\r\n"))
	if !ok {
		return nil, ErrNoContent
	}
	rest = bytes.TrimSuffix(rest, []byte(")\r\n"))
	if len(rest) == 0 {
		return nil, ErrNoContent
	}
	return rest, nil
}

func fetchLiteral(payload []byte) ([]byte, bool) {
	for len(payload) > 0 {
		line, rest, ok := bytes.Cut(payload, []byte("\r\n"))
		if !ok {
			return nil, false
		}
		if bytes.HasPrefix(line, []byte("* ")) && bytes.Contains(line, []byte(" FETCH ")) {
			n, ok := LiteralSize(line)
			if !ok || n > len(rest) {
				return nil, false
			}
			return rest[:n], true
		}
		payload = rest
	}
	return nil, false
}

// LiteralSize reports whether line (without its CRLF) ends in a literal
// announcement "{n}" with 0 <= n <= MaxLiteralSize, and returns n.
func LiteralSize(line []byte) (int, bool) {
	if !bytes.HasSuffix(line, []byte("}")) {
		return 0, false
	}
	open := bytes.LastIndexByte(line, '{')
	if open < 0 {
		return 0, false
	}
	digits := line[open+1 : len(line)-1]
	if len(digits) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(string(digits))
	if err != nil || n < 0 || n > MaxLiteralSize {
		return 0, false
	}
	return n, true
}
