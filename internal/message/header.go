// Package message extracts structured content from raw FETCH payloads:
// header fields, per-message subjects and text/plain MIME parts.
package message

import (
	"bytes"
	"strings"
)

const NoSubject = "<No subject>"

// Unfold splits raw into logical lines. Line breaks are CRLF (a bare LF is
// tolerated) and blank lines are dropped. A line starting with a space or
// tab continues its predecessor: one leading whitespace character is
// removed and a single space is inserted unless the predecessor already
// ends in a space or colon.
func Unfold(raw []byte) []string {
	var lines []string
	for _, line := range bytes.Split(raw, []byte("\n")) {
		line = bytes.TrimSuffix(line, []byte("\r"))
		if len(line) == 0 {
			continue
		}
		if isContinuation(line) && len(lines) > 0 {
			prev := lines[len(lines)-1]
			if !strings.HasSuffix(prev, " ") && !strings.HasSuffix(prev, ":") {
				prev += " "
			}
			lines[len(lines)-1] = prev + string(line[1:])
			continue
		}
		lines = append(lines, string(line))
	}
	return lines
}

func isContinuation(line []byte) bool {
	return line[0] == ' ' || line[0] == '\t'
}

// Field is one optional header value.
type Field struct {
	Value   string
	Present bool
}

// HeaderSet holds the summary fields of a single message.
type HeaderSet struct {
	From    Field
	To      Field
	Date    Field
	Subject Field
}

// ParseHeaders builds a HeaderSet from a FETCH
// BODY.PEEK[HEADER.FIELDS (FROM TO DATE SUBJECT)] response. Field names
// match case-insensitively and the first occurrence of each wins.
func ParseHeaders(raw []byte) HeaderSet {
	var hs HeaderSet
	for _, line := range Unfold(raw) {
		name, value, ok := splitField(line)
		if !ok {
			continue
		}
		var f *Field
		switch strings.ToLower(name) {
		case "from":
			f = &hs.From
		case "to":
			f = &hs.To
		case "date":
			f = &hs.Date
		case "subject":
			f = &hs.Subject
		default:
			continue
		}
		if !f.Present {
			*f = Field{Value: value, Present: true}
		}
	}
	return hs
}

func splitField(line string) (name, value string, ok bool) {
	name, value, ok = strings.Cut(line, ":")
	if !ok || name == "" || strings.ContainsAny(name, " \t") {
		return "", "", false
	}
	return name, strings.TrimSpace(value), true
}

// Lines renders the four fields in the conventional order. Absent fields
// are rendered as their bare label; an absent subject as the placeholder.
func (hs HeaderSet) Lines() []string {
	subject := hs.Subject
	if !subject.Present {
		subject = Field{Value: NoSubject, Present: true}
	}
	return []string{
		renderField("From", hs.From),
		renderField("To", hs.To),
		renderField("Date", hs.Date),
		renderField("Subject", subject),
	}
}

func (hs HeaderSet) String() string {
	return strings.Join(hs.Lines(), "\n")
}

func renderField(label string, f Field) string {
	if f.Value == "" {
		return label + ":"
	}
	return label + ": " + f.Value
}
