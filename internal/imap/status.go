package imap

import (
	"bytes"
	"strings"

	"github.com/emersion/go-imap"

	"imapfetch/internal/message"
)

// Status is the classification of an accumulated response.
type Status int

const (
	Incomplete Status = iota
	OK
	No
	Bad
)

func (s Status) String() string {
	switch s {
	case Incomplete:
		return "incomplete"
	case OK:
		return "OK"
	case No:
		return "NO"
	case Bad:
		return "BAD"
	default:
		return "unknown"
	}
}

// Expectation describes how the response to one command terminates.
type Expectation struct {
	Tag string
	// Confirm must appear alongside a positive status for it to count as
	// success. Used for LOGIN.
	Confirm string
	// Bye makes the untagged BYE the terminating marker (LOGOUT).
	Bye bool
}

// Result is a classification together with the status line that produced
// it. Offset is the position of that line within the block; everything
// before it is command data.
type Result struct {
	Status Status
	Resp   *imap.StatusResp
	Offset int
}

// Matcher classifies the whole accumulated block against an expectation.
type Matcher interface {
	Classify(b *ResponseBlock, exp Expectation) Result
}

// StrictMatcher only honours complete lines that start with the expected
// tag. Literal data announced with {n} is skipped, so message content can
// not be taken for a status line.
type StrictMatcher struct{}

func (StrictMatcher) Classify(b *ResponseBlock, exp Expectation) Result {
	data := b.Data
	offset := 0
	for {
		end := bytes.Index(data[offset:], crlf)
		if end < 0 {
			return Result{}
		}
		line := data[offset : offset+end]
		next := offset + end + len(crlf)

		if n, ok := message.LiteralSize(line); ok {
			if n > len(data)-next {
				return Result{}
			}
			offset = next + n
			continue
		}

		if exp.Bye {
			if bytes.HasPrefix(line, []byte("* BYE")) {
				return Result{Status: OK, Resp: parseStatusLine(line, "*"), Offset: offset}
			}
		} else if resp := parseStatusLine(line, exp.Tag); resp != nil {
			return Result{Status: strictStatus(resp, exp), Resp: resp, Offset: offset}
		}
		offset = next
	}
}

func strictStatus(resp *imap.StatusResp, exp Expectation) Status {
	switch resp.Type {
	case imap.StatusRespBad:
		return Bad
	case imap.StatusRespNo:
		return No
	case imap.StatusRespOk:
		if exp.Confirm != "" && !strings.Contains(resp.Info, exp.Confirm) {
			return No
		}
		return OK
	default:
		return Bad
	}
}

// LegacyMatcher scans the whole buffer for tag-bound substrings without
// regard to line structure. When several markers are present BAD wins over
// NO, and NO over OK. A message body containing "<tag> NO" or
// "<tag> OK" fools it; StrictMatcher does not have that weakness.
type LegacyMatcher struct{}

func (LegacyMatcher) Classify(b *ResponseBlock, exp Expectation) Result {
	if exp.Bye {
		if bytes.Contains(b.Last, []byte("BYE")) {
			i := bytes.LastIndex(b.Data, []byte("BYE"))
			return Result{Status: OK, Resp: &imap.StatusResp{Tag: "*", Type: imap.StatusRespBye}, Offset: lineStart(b.Data, i)}
		}
		return Result{}
	}

	markers := []struct {
		status Status
		typ    imap.StatusRespType
	}{
		{Bad, imap.StatusRespBad},
		{No, imap.StatusRespNo},
		{OK, imap.StatusRespOk},
	}
	for _, m := range markers {
		i := bytes.Index(b.Data, []byte(exp.Tag+" "+string(m.typ)))
		if i < 0 {
			continue
		}
		if m.status == OK && exp.Confirm != "" && !bytes.Contains(b.Data, []byte(exp.Confirm)) {
			continue
		}
		line := b.Data[i:]
		if end := bytes.Index(line, crlf); end >= 0 {
			line = line[:end]
		}
		resp := parseStatusLine(line, exp.Tag)
		if resp == nil {
			resp = &imap.StatusResp{Tag: exp.Tag, Type: m.typ}
		}
		resp.Type = m.typ
		return Result{Status: m.status, Resp: resp, Offset: lineStart(b.Data, i)}
	}
	return Result{}
}

var crlf = []byte("\r\n")

func lineStart(data []byte, i int) int {
	if i <= 0 {
		return 0
	}
	return bytes.LastIndexByte(data[:i], '\n') + 1
}

// parseStatusLine parses "<tag> <status> [<code>] <text>" and returns nil
// when line is not a status line for tag.
func parseStatusLine(line []byte, tag string) *imap.StatusResp {
	rest, ok := bytes.CutPrefix(line, []byte(tag+" "))
	if !ok {
		return nil
	}
	word, text, _ := bytes.Cut(rest, []byte(" "))
	typ := imap.StatusRespType(strings.ToUpper(string(word)))
	switch typ {
	case imap.StatusRespOk, imap.StatusRespNo, imap.StatusRespBad, imap.StatusRespBye, imap.StatusRespPreauth:
	default:
		return nil
	}

	resp := &imap.StatusResp{Tag: tag, Type: typ, Info: string(text)}
	if bytes.HasPrefix(text, []byte("[")) {
		if end := bytes.IndexByte(text, ']'); end > 0 {
			code, _, _ := bytes.Cut(text[1:end], []byte(" "))
			resp.Code = imap.StatusRespCode(code)
			resp.Info = strings.TrimSpace(string(text[end+1:]))
		}
	}
	return resp
}
