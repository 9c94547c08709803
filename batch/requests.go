package batch

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"strings"
)

// RequestPart is an operation decoded from a batch request
type RequestPart struct {
	Request   *Request
	ContentID string
	// ChangeSet is the boundary of the enclosing changeset, empty for top
	// level operations
	ChangeSet string
}

// DecodeRequests reads every operation of an encoded batch request. It is
// the server side counterpart of Writer and buffers each operation body.
func DecodeRequests(body io.Reader, contentType string) ([]*RequestPart, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		return nil, fmt.Errorf("%w: content type %q", ErrNotMultipart, contentType)
	}

	lines, err := NewLineIterator(body, params["charset"])
	if err != nil {
		return nil, err
	}

	cursor, err := NewCursor(lines, params["boundary"])
	if err != nil {
		return nil, err
	}

	var parts []*RequestPart
	for {
		part, err := cursor.NextPart()
		if err == io.EOF {
			return parts, nil
		}
		if err != nil {
			return nil, err
		}

		method, target, err := ParseRequestLine(part.StartLine)
		if err != nil {
			return nil, err
		}

		var payload bytes.Buffer
		if _, err := cursor.ReadBody(part.Seq, &payload); err != nil {
			return nil, err
		}

		header := part.Header.Clone()
		header.Del(HeaderContentID)

		req := NewRequest(method, target, nil)
		req.Header = header
		if payload.Len() > 0 {
			req.Body = payload.Bytes()
		}

		parts = append(parts, &RequestPart{
			Request:   req,
			ContentID: part.ContentID,
			ChangeSet: part.ChangeSet,
		})
	}
}
