package message

import (
	"fmt"
	"strings"
)

// SubjectEntry is one message of a FETCH 1:* subject listing.
type SubjectEntry struct {
	Index   int
	Subject string
	Present bool
}

func (e SubjectEntry) String() string {
	if !e.Present {
		return fmt.Sprintf("%d: %s", e.Index, NoSubject)
	}
	return fmt.Sprintf("%d:%s", e.Index, e.Subject)
}

// ParseSubjects walks a multi-message FETCH (BODY[HEADER.FIELDS (SUBJECT)])
// response and returns one entry per message in server order. A message
// whose header section is empty shows up as a "*" line directly followed
// by the closing ")" line, or as a FETCH line that closes itself with an
// empty string or NIL, and yields a placeholder entry.
func ParseSubjects(raw []byte) []SubjectEntry {
	lines := Unfold(raw)
	var entries []SubjectEntry
	for i, line := range lines {
		if name, value, ok := splitField(line); ok && strings.EqualFold(name, "subject") {
			entries = append(entries, SubjectEntry{
				Index:   len(entries) + 1,
				Subject: value,
				Present: true,
			})
			continue
		}
		if !strings.HasPrefix(line, "*") {
			continue
		}
		if (i+1 < len(lines) && strings.HasPrefix(lines[i+1], ")")) || isEmptyFetch(line) {
			entries = append(entries, SubjectEntry{Index: len(entries) + 1})
		}
	}
	return entries
}

func isEmptyFetch(line string) bool {
	if !strings.Contains(line, " FETCH ") {
		return false
	}
	return strings.HasSuffix(line, `"")`) || strings.HasSuffix(line, " NIL)")
}
