package batch

import (
	"fmt"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// ValidateMethod reports whether method can be written in a request line
func ValidateMethod(method string) error {
	if method == "" || !httpguts.ValidHeaderFieldName(method) {
		return fmt.Errorf("%w: method %q is not a token", ErrInvalidItem, method)
	}
	return nil
}

// ValidateURL reports whether url can be written in a request line. Spaces
// and control characters are rejected, they would end the line early.
func ValidateURL(url string) error {
	if url == "" {
		return fmt.Errorf("%w: empty url", ErrInvalidItem)
	}
	for i := 0; i < len(url); i++ {
		if c := url[i]; c <= ' ' || c == 0x7f {
			return fmt.Errorf("%w: url %q contains a space or control character", ErrInvalidItem, url)
		}
	}
	return nil
}

// ValidateHeaderField reports whether name and value can be written as a
// single header line
func ValidateHeaderField(name, value string) error {
	if !httpguts.ValidHeaderFieldName(name) {
		return fmt.Errorf("%w: invalid header name %q", ErrInvalidItem, name)
	}
	if !validFieldValue(value) {
		return fmt.Errorf("%w: invalid value for header %s", ErrInvalidItem, name)
	}
	return nil
}

// ValidateContentID reports whether id can be written as a Content-ID
// header and read back unchanged
func ValidateContentID(id string) error {
	if !validFieldValue(id) {
		return fmt.Errorf("%w: invalid content id %q", ErrInvalidItem, id)
	}
	return nil
}

// leading and trailing whitespace does not survive decoding
func validFieldValue(value string) bool {
	return httpguts.ValidHeaderFieldValue(value) && value == strings.Trim(value, " \t")
}

func validateHeader(h Header) error {
	for _, entry := range h.entries {
		for _, value := range entry.values {
			if err := ValidateHeaderField(entry.name, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// Validate reports whether the request can be framed without altering
// the structure of the batch
func (r *Request) Validate() error {
	if err := ValidateMethod(r.Method); err != nil {
		return err
	}
	if err := ValidateURL(r.URL); err != nil {
		return err
	}
	return validateHeader(r.Header)
}

// Validate reports whether the reply can be framed without altering
// the structure of the batch
func (r *Reply) Validate() error {
	if r.StatusCode < 100 || r.StatusCode > 999 {
		return fmt.Errorf("%w: status code %d out of range", ErrInvalidItem, r.StatusCode)
	}
	for i := 0; i < len(r.StatusMessage); i++ {
		if c := r.StatusMessage[i]; (c < ' ' && c != '\t') || c == 0x7f {
			return fmt.Errorf("%w: status message %q contains a control character", ErrInvalidItem, r.StatusMessage)
		}
	}
	return validateHeader(r.Header)
}

type validator interface {
	Validate() error
}

func validatePart(msg Message, contentID string) error {
	if v, ok := msg.(validator); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return ValidateContentID(contentID)
}
