package imap

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/emersion/go-imap"
)

// LastMessage is the sequence number that addresses the last message of
// the selected mailbox.
const LastMessage = "*"

// IsValidSequence reports whether s is "*" or a non-empty string of
// decimal digits.
func IsValidSequence(s string) bool {
	if s == LastMessage {
		return true
	}
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func singleMessage(seq string) (*imap.SeqSet, error) {
	if !IsValidSequence(seq) {
		return nil, fmt.Errorf("invalid sequence number %q: want %q or a positive integer", seq, LastMessage)
	}
	set := new(imap.SeqSet)
	if seq == LastMessage {
		set.AddNum(0)
		return set, nil
	}
	n, err := strconv.ParseUint(seq, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid sequence number %q: out of range", seq)
	}
	if n == 0 {
		return nil, fmt.Errorf("invalid sequence number %q: sequence numbers start at 1", seq)
	}
	set.AddNum(uint32(n))
	return set, nil
}

func allMessages() *imap.SeqSet {
	set := new(imap.SeqSet)
	set.AddRange(1, 0)
	return set
}

var errUnsafeArgument = errors.New("must be printable ASCII")

// checkArgument rejects values that would need an IMAP literal to be sent.
func checkArgument(name, value string) error {
	for i := 0; i < len(value); i++ {
		if value[i] < 0x20 || value[i] > 0x7e {
			return fmt.Errorf("%s %w", name, errUnsafeArgument)
		}
	}
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", name)
	}
	return nil
}
