// package decode provides the json envelope accepted by the batch gateway
// and its conversion into an encodable batch
package decode

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/omercs/odatabatch/batch"
)

// Errors that might result from decoding parts or the whole of
// a batch envelope
var (
	ErrInvalidBatchEnvelope = errors.New("request body is not a valid batch envelope")
	ErrInvalidOperation     = errors.New("invalid batch operation")
	ErrReadInChangeSet      = errors.New("changesets may only contain modifying operations")
)

// MethodMerge is the legacy OData update method
const MethodMerge = "MERGE"

// List of methods an operation may use
var SupportedMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	MethodMerge,
	http.MethodDelete,
}

// Operation is one request of a batch envelope
type Operation struct {
	Method string `json:"method"`
	// URL is absolute or relative to the upstream service root, it may
	// reference an earlier changeset operation as $<content id>
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	// Body is sent verbatim, a json document by default
	Body      json.RawMessage `json:"body,omitempty"`
	ContentID string          `json:"content_id,omitempty"`
}

// EnvelopeItem is either a single operation or a changeset
type EnvelopeItem struct {
	Operation
	ChangeSet []Operation `json:"changeset,omitempty"`
}

// IsChangeSet reports whether the item groups operations in a changeset
func (i EnvelopeItem) IsChangeSet() bool {
	return i.ChangeSet != nil
}

// BatchEnvelope is the ordered list of items posted to the gateway
type BatchEnvelope []EnvelopeItem

// DecodeBatchEnvelope parses and validates a json batch envelope
func DecodeBatchEnvelope(body []byte) (BatchEnvelope, error) {
	var envelope BatchEnvelope

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBatchEnvelope, err)
	}

	if err := envelope.Validate(); err != nil {
		return nil, err
	}

	return envelope, nil
}

// Validate checks every operation of the envelope, returning
// all problems found joined together
func (e BatchEnvelope) Validate() error {
	var allErrs error

	for i, item := range e {
		if !item.IsChangeSet() {
			allErrs = errors.Join(allErrs, item.Operation.validate(fmt.Sprintf("item %d", i)))
			continue
		}

		if item.Method != "" || item.URL != "" {
			allErrs = errors.Join(allErrs, fmt.Errorf("%w: item %d is both an operation and a changeset", ErrInvalidOperation, i))
		}
		for j, op := range item.ChangeSet {
			name := fmt.Sprintf("item %d changeset operation %d", i, j)
			if err := op.validate(name); err != nil {
				allErrs = errors.Join(allErrs, err)
				continue
			}
			if op.IsRead() {
				allErrs = errors.Join(allErrs, fmt.Errorf("%w: %s is a %s", ErrReadInChangeSet, name, op.Method))
			}
		}
	}

	return allErrs
}

func (o Operation) validate(name string) error {
	if o.URL == "" {
		return fmt.Errorf("%w: %s has no url", ErrInvalidOperation, name)
	}
	if !o.hasSupportedMethod() {
		return fmt.Errorf("%w: %s uses unsupported method %q, supported methods are %s", ErrInvalidOperation, name, o.Method, SupportedMethods)
	}
	if err := batch.ValidateURL(o.URL); err != nil {
		return fmt.Errorf("%w: %s: %s", ErrInvalidOperation, name, err)
	}
	for header, value := range o.Headers {
		if err := batch.ValidateHeaderField(header, value); err != nil {
			return fmt.Errorf("%w: %s: %s", ErrInvalidOperation, name, err)
		}
	}
	if err := batch.ValidateContentID(o.ContentID); err != nil {
		return fmt.Errorf("%w: %s: %s", ErrInvalidOperation, name, err)
	}
	return nil
}

func (o Operation) hasSupportedMethod() bool {
	for _, method := range SupportedMethods {
		if strings.EqualFold(o.Method, method) {
			return true
		}
	}
	return false
}

// IsRead reports whether the operation only retrieves data
func (o Operation) IsRead() bool {
	return strings.EqualFold(o.Method, http.MethodGet)
}

// IsCacheable reports whether the response to the operation may be
// served from cache: a read that does not reference another operation
func (o Operation) IsCacheable() bool {
	return o.IsRead() && !strings.HasPrefix(o.URL, "$")
}

// Request converts the operation into a batch request
func (o Operation) Request() *batch.Request {
	req := batch.NewRequest(strings.ToUpper(o.Method), o.URL, nil)

	names := make([]string, 0, len(o.Headers))
	for name := range o.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		req.Header.Set(name, o.Headers[name])
	}

	if len(o.Body) > 0 && !bytes.Equal(o.Body, []byte("null")) {
		req.Body = []byte(o.Body)
		if !req.Header.Has(batch.HeaderContentType) {
			req.Header.Set(batch.HeaderContentType, "application/json")
		}
	}

	return req
}

// Len returns the number of operations in the envelope
func (e BatchEnvelope) Len() int {
	var count int
	for _, item := range e {
		if item.IsChangeSet() {
			count += len(item.ChangeSet)
			continue
		}
		count++
	}
	return count
}

// Operations returns every operation in stream order
func (e BatchEnvelope) Operations() []Operation {
	operations := make([]Operation, 0, e.Len())
	for _, item := range e {
		if item.IsChangeSet() {
			operations = append(operations, item.ChangeSet...)
			continue
		}
		operations = append(operations, item.Operation)
	}
	return operations
}

// Batch builds the batch encoding the envelope items in order
func (e BatchEnvelope) Batch() *batch.Batch {
	b := batch.New()

	for _, item := range e {
		if !item.IsChangeSet() {
			b.AddWithContentID(item.Operation.Request(), item.ContentID)
			continue
		}

		cs := b.AddChangeSet()
		for _, op := range item.ChangeSet {
			cs.Add(op.Request(), op.ContentID)
		}
	}

	return b
}
