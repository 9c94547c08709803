package batch

import "errors"

// Errors that might result from encoding or decoding a batch
var (
	ErrMalformedBatch     = errors.New("malformed batch framing")
	ErrBatchClosed        = errors.New("batch no longer readable")
	ErrAlreadyInitialized = errors.New("response already initialized")
	ErrNoBody             = errors.New("response has no entity body")
	ErrNotMultipart       = errors.New("response is not a multipart batch")
	ErrBodySkipped        = errors.New("batch item body is no longer available, the batch has moved past it")
	ErrNoMoreLines        = errors.New("no more lines to read")
	ErrBoundaryReuse      = errors.New("changeset boundary must differ from the batch boundary")
	ErrInvalidBoundary    = errors.New("invalid multipart boundary")
	ErrInvalidItem        = errors.New("batch item cannot be framed")
)
