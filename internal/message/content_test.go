package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractContentLiteral(t *testing.T) {
	body := "Subject: hi\r\n\r\nline one\r\n"
	payload := "* 5 FETCH (BODY[] {25}\r\n" + body + ")\r\n"

	got, err := ExtractContent([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, body, string(got))
}

func TestExtractContentSkipsUntaggedData(t *testing.T) {
	body := "Subject: hi\r\n\r\nx\r\n"
	payload := "* 6 EXISTS\r\n* 5 FETCH (BODY[] {18}\r\n" + body + ")\r\n"

	got, err := ExtractContent([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, body, string(got))
}

func TestExtractContentWithoutLiteral(t *testing.T) {
	got, err := ExtractContent([]byte("* 5 FETCH (BODY[]\r\nraw text\r\n)\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "raw text\r\n", string(got))
}

func TestExtractContentMissing(t *testing.T) {
	for _, payload := range []string{"", "no line break", "* 1 FETCH (BODY[] {0}\r\n)\r\n"} {
		_, err := ExtractContent([]byte(payload))
		assert.ErrorIs(t, err, ErrNoContent, "payload %q", payload)
	}
}

func TestLiteralSize(t *testing.T) {
	n, ok := LiteralSize([]byte("* 1 FETCH (BODY[] {1234}"))
	require.True(t, ok)
	assert.Equal(t, 1234, n)

	n, ok = LiteralSize([]byte("{2147483647}"))
	require.True(t, ok)
	assert.Equal(t, MaxLiteralSize, n)

	for _, line := range []string{
		"* 1 FETCH (FLAGS ())",
		"{}",
		"{x}",
		"abc}",
		"{-1}",
		"{2147483648}",
		"* 1 FETCH (BODY[] {9223372036854775807}",
		"* 1 FETCH (BODY[] {99999999999999999999999}",
	} {
		_, ok := LiteralSize([]byte(line))
		assert.False(t, ok, line)
	}
}

func TestExtractContentTruncatedLiteral(t *testing.T) {
	payload := "* 1 FETCH (BODY[] {99999}\r\nshort body\r\n)\r\n"

	got, err := ExtractContent([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, "short body\r\n", string(got))

	_, err = ExtractContent([]byte("* 1 FETCH (BODY[] {9223372036854775807}\r\n"))
	assert.ErrorIs(t, err, ErrNoContent)
}
