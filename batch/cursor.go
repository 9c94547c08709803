package batch

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"sync/atomic"
)

type cursorState int

const (
	// looking for the next delimiter of the active boundary
	stateScanning cursorState = iota
	// an opening delimiter was just consumed, a part header block follows
	stateAtDelimiter
	// the header blocks of a part were read, its body was not
	stateInPart
	// the closing delimiter of the outer boundary was consumed
	stateExhausted
)

// PartInfo is the metadata of one decoded batch item, available as soon as
// the cursor has scanned the item's header blocks
type PartInfo struct {
	// Seq numbers the items of a batch in stream order, starting at 1
	Seq uint64
	// StartLine is the status line of a response or the request line of a
	// request, empty when the part does not embed an HTTP message
	StartLine string
	// Header holds the headers of the embedded HTTP message
	Header Header
	// PartHeader holds the MIME headers of the part itself
	PartHeader Header
	ContentID  string
	// ChangeSet is the boundary of the enclosing changeset, empty for top
	// level items
	ChangeSet string
}

// Cursor is the forward-only decode position within a batch stream.
// It tracks the active boundary, entering changesets when a nested multipart
// part is found and leaving them on their closing delimiter.
//
// A Cursor must be driven by one goroutine at a time. Only Close may be
// called concurrently with the other methods: it clears the liveness flag and
// every read after that fails with ErrBatchClosed.
type Cursor struct {
	lines *LineIterator
	// boundaries[0] is the outer boundary, the last element is the active one
	boundaries []string
	state      cursorState
	seq        uint64
	err        error
	live       atomic.Bool
}

// NewCursor returns a cursor over lines for a batch delimited by boundary
func NewCursor(lines *LineIterator, boundary string) (*Cursor, error) {
	if boundary == "" {
		return nil, fmt.Errorf("%w: empty batch boundary", ErrInvalidBoundary)
	}

	c := &Cursor{
		lines:      lines,
		boundaries: []string{boundary},
		state:      stateScanning,
	}
	c.live.Store(true)

	return c, nil
}

// Boundary returns the active boundary
func (c *Cursor) Boundary() string {
	return c.boundaries[len(c.boundaries)-1]
}

// Live reports whether the cursor has not been closed
func (c *Cursor) Live() bool {
	return c.live.Load()
}

// Exhausted reports whether the closing delimiter of the batch was reached
func (c *Cursor) Exhausted() bool {
	return c.state == stateExhausted
}

// Close invalidates the cursor
func (c *Cursor) Close() {
	c.live.Store(false)
}

// NextPart scans forward to the next item and returns its metadata, or
// io.EOF once the batch is exhausted. The unread body of the current item,
// if any, is skipped.
func (c *Cursor) NextPart() (*PartInfo, error) {
	if err := c.check(); err != nil {
		return nil, err
	}

	if c.state == stateInPart {
		if _, err := c.copyBody(io.Discard); err != nil {
			return nil, err
		}
	}

	for {
		switch c.state {
		case stateExhausted:
			return nil, io.EOF

		case stateScanning:
			if err := c.scanToDelimiter(); err != nil {
				return nil, c.fail(err)
			}

		case stateAtDelimiter:
			part, err := c.readPart()
			if err != nil {
				return nil, c.fail(err)
			}
			if part == nil {
				// entered a changeset, keep scanning inside it
				continue
			}

			c.seq++
			part.Seq = c.seq
			c.state = stateInPart

			return part, nil
		}
	}
}

// ReadBody copies the body of item seq to w, stopping at the next delimiter
// of the active boundary. The delimiter itself is consumed but not copied.
// If w fails the rest of the body is discarded so that the cursor still ends
// on a boundary, and the write error is returned.
func (c *Cursor) ReadBody(seq uint64, w io.Writer) (int64, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	if c.state != stateInPart || seq != c.seq {
		return 0, ErrBodySkipped
	}

	return c.copyBody(w)
}

func (c *Cursor) check() error {
	if !c.live.Load() {
		return ErrBatchClosed
	}
	return c.err
}

func (c *Cursor) fail(err error) error {
	// a closed cursor is not a framing problem, keep reporting it as closed
	if c.err == nil && !errors.Is(err, ErrBatchClosed) {
		c.err = err
	}
	return err
}

func (c *Cursor) next() (Line, error) {
	if !c.live.Load() {
		return Line{}, ErrBatchClosed
	}

	line, err := c.lines.Next()
	if errors.Is(err, ErrNoMoreLines) {
		return Line{}, fmt.Errorf("%w: stream ended before delimiter --%s--", ErrMalformedBatch, c.Boundary())
	}

	return line, err
}

// delimiter updates the state when line delimits the active boundary
func (c *Cursor) delimiter(line Line) bool {
	boundary := c.Boundary()

	switch {
	case line.IsDelimiter(boundary):
		c.state = stateAtDelimiter
		return true

	case line.IsCloseDelimiter(boundary):
		if len(c.boundaries) > 1 {
			// end of a changeset, back to the enclosing boundary
			c.boundaries = c.boundaries[:len(c.boundaries)-1]
			c.state = stateScanning
		} else {
			c.state = stateExhausted
		}
		return true
	}

	return false
}

func (c *Cursor) scanToDelimiter() error {
	for {
		line, err := c.next()
		if err != nil {
			return err
		}
		if c.delimiter(line) {
			return nil
		}
	}
}

func (c *Cursor) copyBody(w io.Writer) (int64, error) {
	var (
		written int64
		sinkErr error
		pending []byte
	)

	for {
		line, err := c.next()
		if err != nil {
			return written, c.fail(err)
		}

		// the line break before a delimiter belongs to the delimiter
		if c.delimiter(line) {
			return written, sinkErr
		}

		if sinkErr == nil {
			n, err := writeLine(w, pending, line.Content)
			written += n
			sinkErr = err
		}
		pending = line.EOL
	}
}

func writeLine(w io.Writer, eol, content []byte) (int64, error) {
	var total int64
	for _, b := range [][]byte{eol, content} {
		if len(b) == 0 {
			continue
		}
		n, err := w.Write(b)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// readBlock reads lines up to the next blank line
func (c *Cursor) readBlock() ([]string, error) {
	var block []string
	for {
		line, err := c.next()
		if err != nil {
			return nil, err
		}
		if line.IsBlank() {
			return block, nil
		}
		block = append(block, line.String())
	}
}

// readPart reads the header blocks following an opening delimiter.
// It returns nil when the part opens a nested multipart section.
func (c *Cursor) readPart() (*PartInfo, error) {
	block, err := c.readBlock()
	if err != nil {
		return nil, err
	}

	// some services omit the MIME part headers and start with the message
	if len(block) > 0 && isStartLine(block[0]) {
		return c.messagePart(Header{}, block)
	}

	partHeader, err := parseHeaderBlock(block)
	if err != nil {
		return nil, err
	}

	contentType := partHeader.Get(HeaderContentType)
	if contentType == "" {
		return c.readMessagePart(partHeader)
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid part content type %q: %s", ErrMalformedBatch, contentType, err)
	}

	switch {
	case strings.HasPrefix(mediaType, "multipart/"):
		nested := params["boundary"]
		if nested == "" {
			return nil, fmt.Errorf("%w: nested %s part without boundary", ErrMalformedBatch, mediaType)
		}
		c.boundaries = append(c.boundaries, nested)
		c.state = stateScanning
		return nil, nil

	case mediaType == ItemContentType:
		return c.readMessagePart(partHeader)
	}

	// not an embedded HTTP message, the body follows the part headers
	return &PartInfo{
		Header:     partHeader.Clone(),
		PartHeader: partHeader,
		ContentID:  partHeader.Get(HeaderContentID),
		ChangeSet:  c.changeSet(),
	}, nil
}

func (c *Cursor) readMessagePart(partHeader Header) (*PartInfo, error) {
	block, err := c.readBlock()
	if err != nil {
		return nil, err
	}
	return c.messagePart(partHeader, block)
}

func (c *Cursor) messagePart(partHeader Header, block []string) (*PartInfo, error) {
	if len(block) == 0 || !isStartLine(block[0]) {
		return nil, fmt.Errorf("%w: part does not start with an HTTP status or request line", ErrMalformedBatch)
	}

	header, err := parseHeaderBlock(block[1:])
	if err != nil {
		return nil, err
	}

	contentID := header.Get(HeaderContentID)
	if contentID == "" {
		contentID = partHeader.Get(HeaderContentID)
	}

	return &PartInfo{
		StartLine:  block[0],
		Header:     header,
		PartHeader: partHeader,
		ContentID:  contentID,
		ChangeSet:  c.changeSet(),
	}, nil
}

func (c *Cursor) changeSet() string {
	if len(c.boundaries) == 1 {
		return ""
	}
	return c.Boundary()
}

func parseHeaderBlock(lines []string) (Header, error) {
	var header Header
	for _, line := range lines {
		name, value, ok := parseHeaderLine(line)
		if !ok {
			return Header{}, fmt.Errorf("%w: invalid header line %q", ErrMalformedBatch, line)
		}
		header.Add(name, value)
	}
	return header, nil
}

// isStartLine matches "HTTP/1.1 200 OK" and "GET Products(1) HTTP/1.1"
func isStartLine(line string) bool {
	fields := strings.Fields(line)
	if len(fields) >= 2 && strings.HasPrefix(fields[0], "HTTP/") {
		return true
	}
	return len(fields) == 3 && strings.HasPrefix(fields[2], "HTTP/")
}
