// package logging provides the structured leveled logger
// shared by the batch gateway, the batch client and the cli
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// ServiceLogger is a json structured leveled logger
// used by the service to log messages to stdout
type ServiceLogger struct {
	*zerolog.Logger
}

var (
	serviceLogLevelToZeroLogLevel = map[string]zerolog.Level{
		"TRACE": zerolog.TraceLevel,
		"DEBUG": zerolog.DebugLevel,
		"INFO":  zerolog.InfoLevel,
		"ERROR": zerolog.ErrorLevel,
	}
)

// New creates and returns a new ServiceLogger writing to stdout
// and error (if any).
func New(logLevel string) (ServiceLogger, error) {
	return NewWithWriter(logLevel, os.Stdout)
}

// NewWithWriter creates a ServiceLogger writing json lines to w
// and error (if any).
func NewWithWriter(logLevel string, w io.Writer) (ServiceLogger, error) {
	zerologLevel, exists := serviceLogLevelToZeroLogLevel[logLevel]
	if !exists {
		return ServiceLogger{}, fmt.Errorf("invalid zero log level provided %s ", logLevel)
	}

	// the global level defaults to DEBUG and would drop TRACE messages
	if zerologLevel < zerolog.GlobalLevel() {
		zerolog.SetGlobalLevel(zerologLevel)
	}

	serviceLog := zerolog.New(w).With().Timestamp().Caller().Logger().Level(zerologLevel)

	return ServiceLogger{
		Logger: &serviceLog,
	}, nil
}

// Nop returns a ServiceLogger that discards every message
func Nop() *ServiceLogger {
	nop := zerolog.Nop()
	return &ServiceLogger{Logger: &nop}
}

// ValidLevel reports whether logLevel is a level accepted by New
func ValidLevel(logLevel string) bool {
	_, exists := serviceLogLevelToZeroLogLevel[logLevel]
	return exists
}
