package batch_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omercs/odatabatch/batch"
)

func readAllLines(t *testing.T, it *batch.LineIterator) []batch.Line {
	t.Helper()

	var lines []batch.Line
	for it.HasNext() {
		line, err := it.Next()
		require.NoError(t, err)
		lines = append(lines, line)
	}
	return lines
}

func TestUnitTestLineIteratorSplitsLinesKeepingTerminators(t *testing.T) {
	it, err := batch.NewLineIterator(strings.NewReader("first\r\nsecond\nthird"), "")
	require.NoError(t, err)

	lines := readAllLines(t, it)
	require.Len(t, lines, 3)

	assert.Equal(t, "first", lines[0].String())
	assert.Equal(t, "\r\n", string(lines[0].EOL))
	assert.Equal(t, "second", lines[1].String())
	assert.Equal(t, "\n", string(lines[1].EOL))
	assert.Equal(t, "third", lines[2].String())
	assert.Empty(t, lines[2].EOL)
}

func TestUnitTestLineIteratorReturnsFinalEmptyLine(t *testing.T) {
	it, err := batch.NewLineIterator(strings.NewReader("only\r\n"), "")
	require.NoError(t, err)

	lines := readAllLines(t, it)
	require.Len(t, lines, 2)
	assert.True(t, lines[1].IsBlank())
	assert.Empty(t, lines[1].EOL)

	assert.False(t, it.HasNext())
	_, err = it.Next()
	assert.ErrorIs(t, err, batch.ErrNoMoreLines)
}

func TestUnitTestLineIteratorEmptyStream(t *testing.T) {
	it, err := batch.NewLineIterator(strings.NewReader(""), "")
	require.NoError(t, err)

	require.True(t, it.HasNext())
	line, err := it.Next()
	require.NoError(t, err)
	assert.True(t, line.IsBlank())

	_, err = it.Next()
	assert.ErrorIs(t, err, batch.ErrNoMoreLines)
}

type failingReader struct {
	data string
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.data == "" {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestUnitTestLineIteratorSurfacesReadErrors(t *testing.T) {
	readErr := errors.New("connection reset")
	it, err := batch.NewLineIterator(&failingReader{data: "ok\r\npartial", err: readErr}, "")
	require.NoError(t, err)

	line, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, "ok", line.String())

	_, err = it.Next()
	assert.ErrorIs(t, err, readErr)
	assert.False(t, it.HasNext())

	_, err = it.Next()
	assert.ErrorIs(t, err, readErr)
}

func TestUnitTestLineIteratorTranscodesDeclaredCharset(t *testing.T) {
	it, err := batch.NewLineIterator(strings.NewReader("caf\xe9\r\n"), "ISO-8859-1")
	require.NoError(t, err)

	line, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, "café", line.String())
}

func TestUnitTestLineIteratorRejectsUnknownCharset(t *testing.T) {
	_, err := batch.NewLineIterator(strings.NewReader(""), "x-not-a-charset")
	assert.Error(t, err)
}

func TestUnitTestLineDelimiters(t *testing.T) {
	const boundary = "batch_1"

	for _, tc := range []struct {
		name    string
		content string
		open    bool
		close   bool
	}{
		{name: "open", content: "--batch_1", open: true},
		{name: "close", content: "--batch_1--", close: true},
		{name: "open with transport padding", content: "--batch_1 \t", open: true},
		{name: "other boundary", content: "--batch_12"},
		{name: "prefix only", content: "--batch"},
		{name: "body text", content: "batch_1"},
		{name: "blank", content: ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			line := batch.Line{Content: []byte(tc.content)}
			assert.Equal(t, tc.open, line.IsDelimiter(boundary))
			assert.Equal(t, tc.close, line.IsCloseDelimiter(boundary))
		})
	}
}
