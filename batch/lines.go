package batch

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
)

const lineReaderSize = 16 * 1024

// Line is one line of a batch stream
type Line struct {
	// Content is the line without its terminator
	Content []byte
	// EOL is the terminator as read: "\r\n", "\n" or empty for a final
	// unterminated line
	EOL []byte
}

// String returns the line content
func (l Line) String() string {
	return string(l.Content)
}

// IsBlank reports whether the line has no content
func (l Line) IsBlank() bool {
	return len(l.Content) == 0
}

// IsDelimiter reports whether the line opens a part delimited by boundary
func (l Line) IsDelimiter(boundary string) bool {
	content := bytes.TrimRight(l.Content, " \t")
	return len(content) == len(boundary)+2 &&
		bytes.HasPrefix(content, []byte("--")) &&
		string(content[2:]) == boundary
}

// IsCloseDelimiter reports whether the line closes the multipart section
// delimited by boundary
func (l Line) IsCloseDelimiter(boundary string) bool {
	content := bytes.TrimRight(l.Content, " \t")
	return len(content) == len(boundary)+4 &&
		bytes.HasPrefix(content, []byte("--")) &&
		bytes.HasSuffix(content, []byte("--")) &&
		string(content[2:len(content)-2]) == boundary
}

// LineIterator reads a stream one line at a time. It is forward only:
// a line that has been returned cannot be read again.
// When the stream ends without a terminator the remaining bytes, possibly
// none, are returned as a final line.
type LineIterator struct {
	r    *bufio.Reader
	done bool
	err  error
}

// NewLineIterator returns an iterator over r. A charset other than UTF-8 or
// US-ASCII is transcoded to UTF-8 while reading.
func NewLineIterator(r io.Reader, charset string) (*LineIterator, error) {
	decoded, err := decodingReader(r, charset)
	if err != nil {
		return nil, err
	}

	return &LineIterator{
		r: bufio.NewReaderSize(decoded, lineReaderSize),
	}, nil
}

// HasNext reports whether Next will return another line
func (it *LineIterator) HasNext() bool {
	return !it.done && it.err == nil
}

// Next returns the next line. Once the final line has been returned Next
// fails with ErrNoMoreLines; a read error of the underlying stream is
// returned as is and repeated on every later call.
func (it *LineIterator) Next() (Line, error) {
	if it.err != nil {
		return Line{}, it.err
	}
	if it.done {
		return Line{}, ErrNoMoreLines
	}

	raw, err := it.r.ReadBytes('\n')
	switch {
	case err == io.EOF:
		it.done = true
		return Line{Content: raw}, nil
	case err != nil:
		it.err = err
		return Line{}, err
	}

	eol := 1
	if len(raw) >= 2 && raw[len(raw)-2] == '\r' {
		eol = 2
	}

	return Line{
		Content: raw[:len(raw)-eol],
		EOL:     raw[len(raw)-eol:],
	}, nil
}

func decodingReader(r io.Reader, charset string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", "utf-8", "utf8", "us-ascii":
		return r, nil
	}

	enc, err := ianaindex.MIME.Encoding(charset)
	if err != nil {
		return nil, fmt.Errorf("unsupported batch charset %q: %w", charset, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported batch charset %q", charset)
	}

	return enc.NewDecoder().Reader(r), nil
}
