package service

import (
	"net/http"
	"time"

	"github.com/urfave/negroni"

	"github.com/omercs/odatabatch/logging"
)

// createRequestLoggingMiddleware returns a middleware that logs every
// request with the status and size of its response once it was served
func createRequestLoggingMiddleware(serviceLogger *logging.ServiceLogger) func(http.ResponseWriter, *http.Request, http.HandlerFunc) {
	return func(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		start := time.Now()

		next(w, r)

		event := serviceLogger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Dur("latency", time.Since(start))

		// negroni hands its own ResponseWriter to middleware
		if rw, ok := w.(negroni.ResponseWriter); ok {
			event = event.Int("status", rw.Status()).Int("size", rw.Size())
		}

		event.Msg("request served")
	}
}
