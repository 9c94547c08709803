package routines

import "errors"

var (
	errInvalidInterval = errors.New("routine interval must be positive")
	errNoDatabase      = errors.New("routine requires a metrics database")
)
