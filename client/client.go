// package client sends encoded batches and single requests to an
// OData service and hands back the decoded responses
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/omercs/odatabatch/batch"
	"github.com/omercs/odatabatch/logging"
)

const (
	// BatchPath is appended to the service root to address the batch endpoint
	BatchPath = "/$batch"
	// maximum number of bytes of an error response kept in a RequestError
	maxErrorBodyBytes = 4096
)

// Config wraps values used to create a new Client
type Config struct {
	ServiceRootURL string
	// Timeout bounds a whole exchange, including reading the batch body.
	// Zero means no timeout.
	Timeout time.Duration
	// RetryMaxAttempts is the number of times a request is sent when the
	// transport fails before any response is received. Values below 2
	// disable retries.
	RetryMaxAttempts int
	RetryInterval    time.Duration
	// DebugLogResponses logs the status line and headers of every response
	DebugLogResponses bool
	// Transport overrides http.DefaultTransport when set
	Transport http.RoundTripper
}

// Client issues batch and single requests against one service root
type Client struct {
	*http.Client
	config      Config
	serviceRoot *url.URL
	logger      *logging.ServiceLogger
}

// New creates a new Client using the provided config,
// returning the client and error (if any)
func New(config Config, logger *logging.ServiceLogger) (*Client, error) {
	serviceRoot, err := url.Parse(strings.TrimSuffix(config.ServiceRootURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid service root url %s: %w", config.ServiceRootURL, err)
	}
	if serviceRoot.Scheme == "" || serviceRoot.Host == "" {
		return nil, fmt.Errorf("service root url %s must be absolute", config.ServiceRootURL)
	}

	if logger == nil {
		logger = logging.Nop()
	}

	return &Client{
		Client: &http.Client{
			Timeout:   config.Timeout,
			Transport: config.Transport,
		},
		config:      config,
		serviceRoot: serviceRoot,
		logger:      logger,
	}, nil
}

// ServiceRoot returns the service root url without trailing slash
func (c *Client) ServiceRoot() string {
	return c.serviceRoot.String()
}

// BatchURL returns the address batches are posted to
func (c *Client) BatchURL() string {
	return c.serviceRoot.String() + BatchPath
}

// ResolveURL resolves target against the service root. Absolute targets
// are returned unchanged.
func (c *Client) ResolveURL(target string) string {
	if parsed, err := url.Parse(target); err == nil && parsed.IsAbs() {
		return target
	}
	return c.serviceRoot.String() + "/" + strings.TrimPrefix(target, "/")
}

// Execute encodes b, posts it to the batch endpoint and returns the
// decoded batch response. The caller must Close the returned response.
// A non 2xx status of the batch exchange itself is returned as a
// *RequestError.
func (c *Client) Execute(ctx context.Context, b *batch.Batch) (*batch.BatchResponse, error) {
	payload, err := b.Encode()
	if err != nil {
		return nil, fmt.Errorf("error encoding batch: %w", err)
	}

	requestURL := c.BatchURL()
	response, err := c.send(ctx, func() (*http.Request, error) {
		request, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		request.Header.Set(batch.HeaderContentType, b.ContentType())
		request.Header.Set(batch.HeaderAccept, "multipart/mixed")
		return request, nil
	})
	if err != nil {
		return nil, err
	}

	if err := checkStatus(requestURL, response); err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("url", requestURL).
		Str("boundary", b.Boundary()).
		Int("items", b.Len()).
		Int("status", response.StatusCode).
		Msg("batch sent")

	batchResponse, err := batch.NewBatchResponse(response, batch.WithLogger(c.logger.Logger))
	if err != nil {
		response.Body.Close()
		return nil, err
	}

	return batchResponse, nil
}

// ExecuteSingle sends req on its own, outside of any batch. The response is
// returned whatever its status; transport failures are *RequestError.
func (c *Client) ExecuteSingle(ctx context.Context, req *batch.Request) (*batch.Response, error) {
	requestURL := c.ResolveURL(req.URL)

	response, err := c.send(ctx, func() (*http.Request, error) {
		var body io.Reader
		if len(req.Body) > 0 {
			body = bytes.NewReader(req.Body)
		}
		request, err := http.NewRequestWithContext(ctx, req.Method, requestURL, body)
		if err != nil {
			return nil, err
		}
		request.Header = req.Header.HTTP()
		return request, nil
	})
	if err != nil {
		return nil, err
	}

	return batch.NewResponse(response)
}

// Result is the outcome of an asynchronous batch execution
type Result struct {
	Response *batch.BatchResponse
	Err      error
}

// AsyncExecute runs Execute in the background. The returned channel
// receives exactly one Result and is then closed.
func (c *Client) AsyncExecute(ctx context.Context, b *batch.Batch) <-chan Result {
	results := make(chan Result, 1)

	go func() {
		defer close(results)
		response, err := c.Execute(ctx, b)
		results <- Result{Response: response, Err: err}
	}()

	return results
}

// send issues the request built by newRequest, retrying transport
// failures as configured. Once a response is received it is returned
// whatever its status.
func (c *Client) send(ctx context.Context, newRequest func() (*http.Request, error)) (*http.Response, error) {
	var (
		response *http.Response
		attempt  int
	)

	retries := uint64(0)
	if c.config.RetryMaxAttempts > 1 {
		retries = uint64(c.config.RetryMaxAttempts - 1)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(c.config.RetryInterval), retries), ctx)

	err := backoff.Retry(func() error {
		attempt++

		request, err := newRequest()
		if err != nil {
			return backoff.Permanent(&RequestError{
				message: err.Error(),
				err:     err,
			})
		}

		response, err = c.Do(request)
		if err != nil {
			c.logger.Debug().
				Err(err).
				Int("attempt", attempt).
				Str("url", request.URL.String()).
				Msg("upstream request failed")

			return &RequestError{
				URL:     request.URL.String(),
				message: err.Error(),
				err:     err,
			}
		}

		if c.config.DebugLogResponses {
			c.logger.Debug().
				Str("url", request.URL.String()).
				Str("status", response.Status).
				Interface("headers", response.Header).
				Msg("upstream response")
		}

		return nil
	}, policy)
	if err != nil {
		return nil, err
	}

	return response, nil
}

// checkStatus turns a non 2xx response into a *RequestError, consuming
// and closing its body
func checkStatus(requestURL string, response *http.Response) error {
	if response.StatusCode >= 200 && response.StatusCode <= 299 {
		return nil
	}
	defer response.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBodyBytes))

	return &RequestError{
		StatusCode: response.StatusCode,
		URL:        requestURL,
		Body:       string(body),
		message:    fmt.Sprintf("request to %s error server http error %d", requestURL, response.StatusCode),
	}
}

// RequestError provides additional details about the failed request.
type RequestError struct {
	message    string
	URL        string
	StatusCode int
	// Body holds the start of the error response, if any
	Body string
	err  error
}

// Error implements the error interface for RequestError.
func (err *RequestError) Error() string {
	return err.message
}

// Unwrap returns the transport error, if any
func (err *RequestError) Unwrap() error {
	return err.err
}

// NewError creates a new RequestError
func NewError(message, url string, statusCode int) error {
	return &RequestError{message: message, URL: url, StatusCode: statusCode}
}

// IsStatusError reports whether err is a RequestError carrying an
// upstream http status, and returns that status
func IsStatusError(err error) (int, bool) {
	var requestErr *RequestError
	if errors.As(err, &requestErr) && requestErr.StatusCode != 0 {
		return requestErr.StatusCode, true
	}
	return 0, false
}
