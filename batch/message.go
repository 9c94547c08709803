package batch

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
)

const (
	HTTPVersion = "HTTP/1.1"

	HeaderContentType             = "Content-Type"
	HeaderContentTransferEncoding = "Content-Transfer-Encoding"
	HeaderContentID               = "Content-ID"
	HeaderETag                    = "ETag"
	HeaderIfMatch                 = "If-Match"
	HeaderAccept                  = "Accept"

	ItemContentType      = "application/http"
	ItemTransferEncoding = "binary"
)

// Message is an HTTP message that can be framed as one part of a batch.
type Message interface {
	// WriteHead writes the start line followed by one line per header,
	// each terminated by CRLF, without the blank line ending the block.
	WriteHead(w io.Writer) error
	// Payload returns the message body, or nil when there is none.
	Payload() io.Reader
}

// Request is a single operation sent as part of a batch
type Request struct {
	Method string
	// URL is written verbatim in the request line, absolute or relative
	// to the service root
	URL    string
	Header Header
	Body   []byte
}

var _ Message = (*Request)(nil)

// NewRequest creates a request for method and url with an optional body
func NewRequest(method, url string, body []byte) *Request {
	return &Request{
		Method: method,
		URL:    url,
		Body:   body,
	}
}

// NewGet creates a retrieve request
func NewGet(url string) *Request {
	return NewRequest(http.MethodGet, url, nil)
}

// NewCreate creates a POST request carrying a serialized entity
func NewCreate(url, contentType string, entity []byte) *Request {
	req := NewRequest(http.MethodPost, url, entity)
	req.Header.Set(HeaderContentType, contentType)
	return req
}

// UpdateType selects the method used to apply changes to an entity
type UpdateType string

const (
	UpdateReplace UpdateType = http.MethodPut
	UpdatePatch   UpdateType = http.MethodPatch
	UpdateMerge   UpdateType = "MERGE"
)

// NewUpdate creates an update request applying changes with the given update type
func NewUpdate(url string, updateType UpdateType, contentType string, changes []byte) *Request {
	req := NewRequest(string(updateType), url, changes)
	req.Header.Set(HeaderContentType, contentType)
	return req
}

// NewDelete creates a delete request
func NewDelete(url string) *Request {
	return NewRequest(http.MethodDelete, url, nil)
}

// WriteHead implements Message
func (r *Request) WriteHead(w io.Writer) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%s %s %s\r\n", r.Method, r.URL, HTTPVersion); err != nil {
		return err
	}
	_, err := r.Header.WriteTo(w)
	return err
}

// Payload implements Message
func (r *Request) Payload() io.Reader {
	if len(r.Body) == 0 {
		return nil
	}
	return bytes.NewReader(r.Body)
}

// Reply is the response to a single batch operation. It is encoded by
// servers and by tests; clients decode replies into Response values.
type Reply struct {
	StatusCode int
	// StatusMessage defaults to the standard text for StatusCode
	StatusMessage string
	Header        Header
	Body          io.Reader
}

var _ Message = (*Reply)(nil)

// NewReply creates a reply with a byte body
func NewReply(statusCode int, header Header, body []byte) *Reply {
	reply := &Reply{
		StatusCode: statusCode,
		Header:     header,
	}
	if len(body) > 0 {
		reply.Body = bytes.NewReader(body)
	}
	return reply
}

// WriteHead implements Message
func (r *Reply) WriteHead(w io.Writer) error {
	if err := r.Validate(); err != nil {
		return err
	}
	message := r.StatusMessage
	if message == "" {
		message = http.StatusText(r.StatusCode)
	}
	if _, err := fmt.Fprintf(w, "%s %03d %s\r\n", HTTPVersion, r.StatusCode, message); err != nil {
		return err
	}
	_, err := r.Header.WriteTo(w)
	return err
}

// Payload implements Message
func (r *Reply) Payload() io.Reader {
	return r.Body
}
