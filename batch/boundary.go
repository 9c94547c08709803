package batch

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	BatchBoundaryPrefix     = "batch"
	ChangeSetBoundaryPrefix = "changeset"

	// RFC 2046 limits boundaries to 70 characters
	maxBoundaryLength = 70
)

// NewBoundary returns a unique multipart boundary starting with prefix
func NewBoundary(prefix string) string {
	return prefix + "_" + uuid.New().String()
}

// NewBatchBoundary returns a unique boundary for the outer batch
func NewBatchBoundary() string {
	return NewBoundary(BatchBoundaryPrefix)
}

// NewChangeSetBoundary returns a unique boundary for a changeset
func NewChangeSetBoundary() string {
	return NewBoundary(ChangeSetBoundaryPrefix)
}

// ValidateBoundary checks that boundary can be written unquoted in a
// delimiter line
func ValidateBoundary(boundary string) error {
	if boundary == "" || len(boundary) > maxBoundaryLength {
		return fmt.Errorf("%w: length of %q must be between 1 and %d", ErrInvalidBoundary, boundary, maxBoundaryLength)
	}
	for _, c := range boundary {
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		case strings.ContainsRune("'()+_,-./:=?", c):
		default:
			return fmt.Errorf("%w: %q contains %q", ErrInvalidBoundary, boundary, c)
		}
	}
	return nil
}
