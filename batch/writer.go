package batch

import (
	"errors"
	"fmt"
	"io"
	"mime"
)

const crlf = "\r\n"

// Writer encodes batch items as a multipart/mixed stream.
// Writer only produces the request body, sending it is up to the caller.
// The first error encountered is sticky: every later call returns it and
// nothing more is written. Bytes already written are never retracted, so on
// error the whole output must be discarded.
type Writer struct {
	w        io.Writer
	boundary string
	started  bool
	closed   bool
	err      error
}

// NewWriter returns a Writer writing to w with a freshly generated boundary
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w:        w,
		boundary: NewBatchBoundary(),
	}
}

// Boundary returns the outer boundary of the batch
func (w *Writer) Boundary() string {
	return w.boundary
}

// SetBoundary overrides the generated outer boundary. It must be called
// before any item is written.
func (w *Writer) SetBoundary(boundary string) error {
	if w.started {
		return errors.New("batch: SetBoundary called after write")
	}
	if err := ValidateBoundary(boundary); err != nil {
		return err
	}
	w.boundary = boundary
	return nil
}

// ContentType returns the Content-Type of the encoded batch
func (w *Writer) ContentType() string {
	return mime.FormatMediaType("multipart/mixed", map[string]string{"boundary": w.boundary})
}

// WriteItem frames msg as a single top level item. contentID is optional.
func (w *Writer) WriteItem(msg Message, contentID string) error {
	if err := w.check(); err != nil {
		return err
	}
	w.started = true
	return w.fail(writePart(w.w, w.boundary, msg, contentID))
}

// WriteChangeSet frames the members of cs inside a nested multipart part
func (w *Writer) WriteChangeSet(cs *ChangeSet) error {
	if err := w.check(); err != nil {
		return err
	}
	if cs.boundary == w.boundary {
		return ErrBoundaryReuse
	}
	for _, member := range cs.members {
		if err := validatePart(member.Message, member.ContentID); err != nil {
			return w.fail(err)
		}
	}
	w.started = true

	err := writeString(w.w,
		"--"+w.boundary+crlf,
		HeaderContentType+": "+mime.FormatMediaType("multipart/mixed", map[string]string{"boundary": cs.boundary})+crlf,
		crlf,
	)
	if err != nil {
		return w.fail(err)
	}

	for _, member := range cs.members {
		if err := writePart(w.w, cs.boundary, member.Message, member.ContentID); err != nil {
			return w.fail(err)
		}
	}

	return w.fail(writeString(w.w, "--"+cs.boundary+"--"+crlf))
}

// Close writes the closing delimiter of the batch
func (w *Writer) Close() error {
	if err := w.check(); err != nil {
		return err
	}
	w.closed = true
	w.started = true
	return w.fail(writeString(w.w, "--"+w.boundary+"--"+crlf))
}

func (w *Writer) check() error {
	if w.err != nil {
		return w.err
	}
	if w.closed {
		return errors.New("batch: writer already closed")
	}
	return nil
}

func (w *Writer) fail(err error) error {
	if err != nil && w.err == nil {
		w.err = err
	}
	return err
}

// writePart writes one application/http part: delimiter, part headers,
// message head, optional Content-ID, blank line, payload and the CRLF that
// precedes the next delimiter. Nothing is written when msg or contentID
// would break the framing.
func writePart(w io.Writer, boundary string, msg Message, contentID string) error {
	if err := validatePart(msg, contentID); err != nil {
		return err
	}

	err := writeString(w,
		"--"+boundary+crlf,
		HeaderContentType+": "+ItemContentType+crlf,
		HeaderContentTransferEncoding+": "+ItemTransferEncoding+crlf,
		crlf,
	)
	if err != nil {
		return err
	}

	if err := msg.WriteHead(w); err != nil {
		return fmt.Errorf("error writing batch item head: %w", err)
	}

	if contentID != "" {
		if err := writeString(w, HeaderContentID+": "+contentID+crlf); err != nil {
			return err
		}
	}

	if err := writeString(w, crlf); err != nil {
		return err
	}

	if payload := msg.Payload(); payload != nil {
		if _, err := io.Copy(w, payload); err != nil {
			return fmt.Errorf("error writing batch item payload: %w", err)
		}
	}

	return writeString(w, crlf)
}

func writeString(w io.Writer, parts ...string) error {
	for _, part := range parts {
		if _, err := io.WriteString(w, part); err != nil {
			return err
		}
	}
	return nil
}
