package batch

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Response is the response to a single operation. It is built either eagerly
// from a non batched *http.Response or from the metadata of a batch item, in
// which case the body is only streamed from the batch when Body is called.
type Response struct {
	statusCode    int
	statusMessage string
	startLine     string
	header        Header
	contentID     string
	changeSet     string
	initialized   bool

	// set for responses to non batched requests
	httpResponse *http.Response

	// set for batch items
	cursor *Cursor
	seq    uint64
	logger *zerolog.Logger
	// owner is the batch response that handed out this item, if any
	owner *BatchResponse

	mu   sync.Mutex
	body io.ReadCloser
	pipe *itemBody
	done chan struct{}
}

// itemBody is the consumer end of a batch item pipe. Once aborted, reads
// fail with the abort reason instead of io.ErrClosedPipe.
type itemBody struct {
	*io.PipeReader

	mu     sync.Mutex
	reason error
}

func (b *itemBody) Read(p []byte) (int, error) {
	n, err := b.PipeReader.Read(p)
	if errors.Is(err, io.ErrClosedPipe) {
		b.mu.Lock()
		reason := b.reason
		b.mu.Unlock()
		if reason != nil {
			return n, reason
		}
	}
	return n, err
}

func (b *itemBody) abort(reason error) {
	b.mu.Lock()
	if b.reason == nil {
		b.reason = reason
	}
	b.mu.Unlock()
	b.PipeReader.CloseWithError(reason)
}

// NewResponse wraps the response to a non batched request
func NewResponse(res *http.Response) (*Response, error) {
	if res == nil {
		return nil, errors.New("batch: nil http response")
	}

	message := strings.TrimSpace(strings.TrimPrefix(res.Status, strconv.Itoa(res.StatusCode)))
	header := FromHTTP(res.Header)
	header.Del(HeaderContentID)

	return &Response{
		statusCode:    res.StatusCode,
		statusMessage: message,
		startLine:     fmt.Sprintf("%s %s", res.Proto, res.Status),
		header:        header,
		contentID:     res.Header.Get(HeaderContentID),
		initialized:   true,
		httpResponse:  res,
	}, nil
}

// InitFromBatch initializes an empty Response from the metadata of a batch
// item. The body stays in the batch stream until Body is called.
// A Response can only be initialized once.
func (r *Response) InitFromBatch(part *PartInfo, cursor *Cursor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		return ErrAlreadyInitialized
	}

	code, message, err := ParseStatusLine(part.StartLine)
	if err != nil {
		return err
	}

	r.initialized = true
	r.statusCode = code
	r.statusMessage = message
	r.startLine = part.StartLine
	r.header = part.Header.Clone()
	r.header.Del(HeaderContentID)
	r.contentID = part.ContentID
	r.changeSet = part.ChangeSet
	r.cursor = cursor
	r.seq = part.Seq

	if r.logger == nil {
		nop := zerolog.Nop()
		r.logger = &nop
	}

	return nil
}

// StatusCode returns the HTTP status code
func (r *Response) StatusCode() int {
	return r.statusCode
}

// StatusMessage returns the reason phrase of the status line
func (r *Response) StatusMessage() string {
	return r.statusMessage
}

// StartLine returns the status line as received
func (r *Response) StartLine() string {
	return r.startLine
}

// Header returns a copy of the response headers. Content-ID is only
// available through ContentID.
func (r *Response) Header() Header {
	return r.header.Clone()
}

// ContentID returns the Content-ID the item was labelled with, if any
func (r *Response) ContentID() string {
	return r.contentID
}

// ChangeSet returns the boundary of the changeset the item belongs to,
// empty for items outside of a changeset
func (r *Response) ChangeSet() string {
	return r.changeSet
}

// ContentType returns the first Content-Type header value
func (r *Response) ContentType() string {
	return r.header.Get(HeaderContentType)
}

// ETag returns the first ETag header value
func (r *Response) ETag() string {
	return r.header.Get(HeaderETag)
}

// IsBatchItem reports whether the response was decoded from a batch
func (r *Response) IsBatchItem() bool {
	return r.cursor != nil
}

// Body returns the response body. For batch items the first call starts
// streaming the item out of the batch; every later call returns the same
// reader. ErrNoBody is returned when the response carries no entity.
func (r *Response) Body() (io.ReadCloser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.body != nil {
		return r.body, nil
	}

	if r.cursor == nil {
		if r.httpResponse == nil || r.httpResponse.Body == nil || r.httpResponse.Body == http.NoBody {
			return nil, ErrNoBody
		}
		r.body = r.httpResponse.Body
		return r.body, nil
	}

	if !r.cursor.Live() {
		return nil, ErrBatchClosed
	}
	if r.statusCode == http.StatusNoContent || r.statusCode == http.StatusNotModified {
		return nil, ErrNoBody
	}
	if r.owner != nil {
		if r.owner.current != r {
			return nil, ErrBodySkipped
		}
	} else if r.cursor.state != stateInPart || r.cursor.seq != r.seq {
		return nil, ErrBodySkipped
	}

	pr, pw := io.Pipe()
	r.pipe = &itemBody{PipeReader: pr}
	r.body = r.pipe
	r.done = make(chan struct{})

	go r.produce(pw)

	return r.body, nil
}

// Bytes reads the whole body. A response without entity yields nil.
func (r *Response) Bytes() ([]byte, error) {
	body, err := r.Body()
	if errors.Is(err, ErrNoBody) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer body.Close()

	return io.ReadAll(body)
}

// produce streams the item body from the batch into the pipe.
// When the reader goes away early the cursor discards the rest of the body,
// leaving the batch positioned on the next delimiter.
func (r *Response) produce(pw *io.PipeWriter) {
	defer close(r.done)

	n, err := r.cursor.ReadBody(r.seq, pw)
	if err != nil && !isAbandoned(err) && r.cursor.Live() {
		r.logger.Error().
			Err(err).
			Uint64("item", r.seq).
			Msg("error streaming batch item body")
	}

	r.logger.Trace().
		Uint64("item", r.seq).
		Int64("bytes", n).
		Msg("batch item body streamed")

	pw.CloseWithError(err)
}

// Close releases the body. For a batch item whose body is still being
// streamed the rest of the body is discarded.
func (r *Response) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cursor == nil {
		if r.httpResponse != nil && r.httpResponse.Body != nil {
			return r.httpResponse.Body.Close()
		}
		return nil
	}

	if r.pipe != nil {
		return r.pipe.Close()
	}

	return nil
}

// interrupt fails any pending read of the body with err and waits for the
// producer, if one was started, to release the cursor
func (r *Response) interrupt(err error) {
	r.mu.Lock()
	pipe, done := r.pipe, r.done
	r.mu.Unlock()

	if pipe == nil {
		return
	}

	pipe.abort(err)
	<-done
}

// isAbandoned reports whether err only means the consumer stopped reading
func isAbandoned(err error) bool {
	return errors.Is(err, io.ErrClosedPipe) || errors.Is(err, ErrBodySkipped) || errors.Is(err, ErrBatchClosed)
}

// ParseStatusLine splits "HTTP/1.1 200 OK" into its code and reason phrase
func ParseStatusLine(line string) (int, string, error) {
	proto, rest, ok := strings.Cut(strings.TrimSpace(line), " ")
	if !ok || !strings.HasPrefix(proto, "HTTP/") {
		return 0, "", fmt.Errorf("%w: invalid status line %q", ErrMalformedBatch, line)
	}

	codeText, message, _ := strings.Cut(rest, " ")
	code, err := strconv.Atoi(codeText)
	if err != nil || code < 100 || code > 999 {
		return 0, "", fmt.Errorf("%w: invalid status code in %q", ErrMalformedBatch, line)
	}

	return code, strings.TrimSpace(message), nil
}

// ParseRequestLine splits "GET Products(1) HTTP/1.1" into method and target
func ParseRequestLine(line string) (string, string, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 || !strings.HasPrefix(fields[2], "HTTP/") {
		return "", "", fmt.Errorf("%w: invalid request line %q", ErrMalformedBatch, line)
	}
	return fields[0], fields[1], nil
}
