package imap

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/emersion/go-imap"
)

const (
	headerFields  = "BODY.PEEK[HEADER.FIELDS (FROM TO DATE SUBJECT)]"
	subjectFields = "(BODY[HEADER.FIELDS (SUBJECT)])"
	fullBody      = "BODY.PEEK[]"
)

type FetchKind int

const (
	FetchFull FetchKind = iota
	FetchHeaders
	FetchSubjects
)

func (k FetchKind) String() string {
	switch k {
	case FetchFull:
		return "fetch"
	case FetchHeaders:
		return "fetch headers"
	case FetchSubjects:
		return "fetch subjects"
	default:
		return "fetch(" + strconv.Itoa(int(k)) + ")"
	}
}

// FetchSpec selects one of the supported FETCH forms. Sequence is ignored
// for FetchSubjects, which always addresses 1:*.
type FetchSpec struct {
	Kind     FetchKind
	Sequence string
}

func loginCommand(tag, username, password string) *imap.Command {
	return &imap.Command{
		Tag:       tag,
		Name:      "LOGIN",
		Arguments: []interface{}{astring(username), astring(password)},
	}
}

// atomSpecials are the characters that force a value into a quoted string.
const atomSpecials = "(){ %*\"]\\"

// astring renders s bare when it is a valid atom and as a quoted string
// otherwise. Values needing a literal are rejected earlier by checkArgument.
func astring(s string) imap.RawString {
	if s == "" || strings.ContainsAny(s, atomSpecials) {
		return imap.RawString(strconv.Quote(s))
	}
	return imap.RawString(s)
}

func selectCommand(tag, folder string) *imap.Command {
	return &imap.Command{
		Tag:       tag,
		Name:      "SELECT",
		Arguments: []interface{}{imap.RawString(strconv.Quote(folder))},
	}
}

func fetchCommand(tag string, spec FetchSpec) (*imap.Command, error) {
	var set *imap.SeqSet
	var item string
	switch spec.Kind {
	case FetchSubjects:
		set, item = allMessages(), subjectFields
	case FetchHeaders, FetchFull:
		s, err := singleMessage(spec.Sequence)
		if err != nil {
			return nil, err
		}
		set, item = s, fullBody
		if spec.Kind == FetchHeaders {
			item = headerFields
		}
	default:
		return nil, fmt.Errorf("unsupported fetch kind %v", spec.Kind)
	}
	return &imap.Command{
		Tag:       tag,
		Name:      "FETCH",
		Arguments: []interface{}{imap.RawString(set.String()), imap.RawString(item)},
	}, nil
}

func logoutCommand(tag string) *imap.Command {
	return &imap.Command{Tag: tag, Name: "LOGOUT"}
}

// encode renders cmd as a single CRLF-terminated line.
func encode(cmd *imap.Command) ([]byte, error) {
	var buf bytes.Buffer
	if err := cmd.WriteTo(imap.NewWriter(&buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// redacted is the loggable form of cmd.
func redacted(cmd *imap.Command) string {
	if cmd.Name == "LOGIN" && len(cmd.Arguments) == 2 {
		safe := *cmd
		safe.Arguments = []interface{}{cmd.Arguments[0], imap.RawString("****")}
		cmd = &safe
	}
	line, err := encode(cmd)
	if err != nil {
		return cmd.Tag + " " + cmd.Name
	}
	return string(bytes.TrimSuffix(line, []byte("\r\n")))
}
