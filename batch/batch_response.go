package batch

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Option configures a BatchResponse
type Option func(*BatchResponse)

// WithLogger sets the logger used to report item streaming failures
func WithLogger(logger *zerolog.Logger) Option {
	return func(b *BatchResponse) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// BatchResponse is the decoded response of a batch exchange.
// Items are handed out in stream order by Next. Only one item body can be
// read at a time: calling Next abandons the unread part of the previous
// item's body, which then fails with ErrBodySkipped.
type BatchResponse struct {
	statusCode    int
	statusMessage string
	header        Header
	boundary      string

	body    io.ReadCloser
	cursor  *Cursor
	current *Response
	logger  *zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewBatchResponse decodes the response to a batch request.
// ErrNotMultipart is returned when the Content-Type does not declare a
// multipart boundary.
func NewBatchResponse(res *http.Response, opts ...Option) (*BatchResponse, error) {
	if res == nil {
		return nil, errors.New("batch: nil http response")
	}

	b, err := Decode(res.Body, res.Header.Get(HeaderContentType), opts...)
	if err != nil {
		return nil, err
	}

	b.statusCode = res.StatusCode
	b.statusMessage = strings.TrimSpace(strings.TrimPrefix(res.Status, fmt.Sprint(res.StatusCode)))
	b.header = FromHTTP(res.Header)

	return b, nil
}

// Decode reads a batch response body declared with contentType
func Decode(body io.ReadCloser, contentType string, opts ...Option) (*BatchResponse, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotMultipart, err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return nil, fmt.Errorf("%w: content type %s", ErrNotMultipart, mediaType)
	}

	boundary := params["boundary"]
	if boundary == "" {
		return nil, fmt.Errorf("%w: content type %s declares no boundary", ErrNotMultipart, contentType)
	}

	lines, err := NewLineIterator(body, params["charset"])
	if err != nil {
		return nil, err
	}

	cursor, err := NewCursor(lines, boundary)
	if err != nil {
		return nil, err
	}

	nop := zerolog.Nop()
	b := &BatchResponse{
		statusCode: http.StatusOK,
		boundary:   boundary,
		body:       body,
		cursor:     cursor,
		logger:     &nop,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b, nil
}

// StatusCode returns the status of the batch exchange itself
func (b *BatchResponse) StatusCode() int {
	return b.statusCode
}

// StatusMessage returns the reason phrase of the batch exchange
func (b *BatchResponse) StatusMessage() string {
	return b.statusMessage
}

// Header returns the headers of the batch exchange
func (b *BatchResponse) Header() Header {
	return b.header.Clone()
}

// Boundary returns the outer boundary declared by the response
func (b *BatchResponse) Boundary() string {
	return b.boundary
}

// Next returns the next item of the batch, or io.EOF once the closing
// delimiter has been read. Any body streaming for the previous item is
// stopped first and what is left of it is skipped.
func (b *BatchResponse) Next() (*Response, error) {
	if b.current != nil {
		b.current.interrupt(ErrBodySkipped)
	}

	part, err := b.cursor.NextPart()
	if err != nil {
		return nil, err
	}

	item := &Response{logger: b.logger}
	if err := item.InitFromBatch(part, b.cursor); err != nil {
		return nil, err
	}
	item.owner = b
	b.current = item

	b.logger.Trace().
		Uint64("item", part.Seq).
		Str("status", part.StartLine).
		Str("content_id", part.ContentID).
		Str("changeset", part.ChangeSet).
		Msg("decoded batch item")

	return item, nil
}

// Exhausted reports whether every item of the batch has been handed out
func (b *BatchResponse) Exhausted() bool {
	return b.cursor.Exhausted()
}

// Close invalidates the batch: any later read of an item body fails with
// ErrBatchClosed. The underlying response body is closed.
func (b *BatchResponse) Close() error {
	b.cursor.Close()

	b.closeOnce.Do(func() {
		// closing the body unblocks a producer waiting on the network
		b.closeErr = b.body.Close()
		if b.current != nil {
			b.current.interrupt(ErrBatchClosed)
		}
	})

	return b.closeErr
}

// Result is a batch item with its body read into memory
type Result struct {
	StatusCode    int
	StatusMessage string
	Header        Header
	ContentID     string
	ChangeSet     string
	Body          []byte
}

// All reads every remaining item and its body. The batch is closed on
// return.
func (b *BatchResponse) All() ([]*Result, error) {
	defer b.Close()

	var results []*Result
	for {
		item, err := b.Next()
		if err == io.EOF {
			return results, nil
		}
		if err != nil {
			return results, err
		}

		body, err := item.Bytes()
		if err != nil {
			return results, fmt.Errorf("error reading body of batch item %d: %w", len(results)+1, err)
		}

		results = append(results, &Result{
			StatusCode:    item.StatusCode(),
			StatusMessage: item.StatusMessage(),
			Header:        item.Header(),
			ContentID:     item.ContentID(),
			ChangeSet:     item.ChangeSet(),
			Body:          body,
		})
	}
}
