package client_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omercs/odatabatch/batch"
	"github.com/omercs/odatabatch/client"
	"github.com/omercs/odatabatch/logging"
)

// echoBatchHandler answers every operation of a batch with a 200 reply
// whose body is the operation's request line
func echoBatchHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/service"+client.BatchPath, r.URL.Path)

		parts, err := batch.DecodeRequests(r.Body, r.Header.Get(batch.HeaderContentType))
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		writer := batch.NewWriter(w)
		w.Header().Set(batch.HeaderContentType, writer.ContentType())
		w.WriteHeader(http.StatusAccepted)

		var changeSet *batch.ChangeSet
		flush := func() {
			if changeSet != nil {
				assert.NoError(t, writer.WriteChangeSet(changeSet))
				changeSet = nil
			}
		}

		for _, part := range parts {
			reply := batch.NewReply(http.StatusOK, batch.NewHeader("Content-Type", "text/plain"),
				[]byte(part.Request.Method+" "+part.Request.URL))

			if part.ChangeSet == "" {
				flush()
				assert.NoError(t, writer.WriteItem(reply, part.ContentID))
				continue
			}
			if changeSet == nil {
				changeSet = batch.NewChangeSet()
			}
			changeSet.Add(reply, part.ContentID)
		}
		flush()
		assert.NoError(t, writer.Close())
	}
}

func newClient(t *testing.T, serverURL string, config client.Config) *client.Client {
	t.Helper()

	config.ServiceRootURL = serverURL + "/service/"
	c, err := client.New(config, logging.Nop())
	require.NoError(t, err)

	return c
}

func TestUnitTestExecuteRoundTrip(t *testing.T) {
	server := httptest.NewServer(echoBatchHandler(t))
	defer server.Close()

	c := newClient(t, server.URL, client.Config{})

	b := batch.New()
	b.Add(batch.NewGet("Products(1)"))
	b.AddChangeSet().
		Add(batch.NewCreate("Products", "application/json", []byte(`{}`)), "1").
		Add(batch.NewDelete("Products(2)"), "2")

	res, err := c.Execute(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, res.StatusCode())

	results, err := res.All()
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "GET Products(1)", string(results[0].Body))
	assert.Empty(t, results[0].ContentID)

	assert.Equal(t, "POST Products", string(results[1].Body))
	assert.Equal(t, "1", results[1].ContentID)
	assert.NotEmpty(t, results[1].ChangeSet)

	assert.Equal(t, "DELETE Products(2)", string(results[2].Body))
	assert.Equal(t, "2", results[2].ContentID)
	assert.Equal(t, results[1].ChangeSet, results[2].ChangeSet)
}

func TestUnitTestExecuteReturnsRequestErrorForFailedBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "maintenance")
	}))
	defer server.Close()

	c := newClient(t, server.URL, client.Config{})

	_, err := c.Execute(context.Background(), batch.New())
	require.Error(t, err)

	var requestErr *client.RequestError
	require.True(t, errors.As(err, &requestErr))
	assert.Equal(t, http.StatusServiceUnavailable, requestErr.StatusCode)
	assert.Equal(t, "maintenance", requestErr.Body)
	assert.Equal(t, c.BatchURL(), requestErr.URL)

	status, ok := client.IsStatusError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestUnitTestExecuteRejectsNonMultipartResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"error":"nope"}`)
	}))
	defer server.Close()

	c := newClient(t, server.URL, client.Config{})

	_, err := c.Execute(context.Background(), batch.New())
	assert.ErrorIs(t, err, batch.ErrNotMultipart)
}

// flakyTransport fails the first failures round trips
type flakyTransport struct {
	failures int32
	calls    atomic.Int32
}

func (f *flakyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, errors.New("connection reset by peer")
	}
	return http.DefaultTransport.RoundTrip(r)
}

func TestUnitTestExecuteRetriesTransportFailures(t *testing.T) {
	server := httptest.NewServer(echoBatchHandler(t))
	defer server.Close()

	transport := &flakyTransport{failures: 2}
	c := newClient(t, server.URL, client.Config{
		RetryMaxAttempts: 3,
		RetryInterval:    time.Millisecond,
		Transport:        transport,
	})

	b := batch.New()
	b.Add(batch.NewGet("Products"))

	res, err := c.Execute(context.Background(), b)
	require.NoError(t, err)
	defer res.Close()

	assert.Equal(t, int32(3), transport.calls.Load())

	results, err := res.All()
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "GET Products", string(results[0].Body))
}

func TestUnitTestExecuteDoesNotRetryByDefault(t *testing.T) {
	server := httptest.NewServer(echoBatchHandler(t))
	defer server.Close()

	transport := &flakyTransport{failures: 1}
	c := newClient(t, server.URL, client.Config{Transport: transport})

	_, err := c.Execute(context.Background(), batch.New())
	require.Error(t, err)
	assert.Equal(t, int32(1), transport.calls.Load())

	var requestErr *client.RequestError
	require.True(t, errors.As(err, &requestErr))
	assert.Zero(t, requestErr.StatusCode)
	assert.Contains(t, err.Error(), "connection reset by peer")
}

func TestUnitTestExecuteSingle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/service/Products(1)", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("ETag", `W/"7"`)
		fmt.Fprint(w, `{"ID":1}`)
	}))
	defer server.Close()

	c := newClient(t, server.URL, client.Config{})

	req := batch.NewGet("/Products(1)")
	req.Header.Set(batch.HeaderAccept, "application/json")

	res, err := c.ExecuteSingle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode())
	assert.Equal(t, `W/"7"`, res.ETag())
	assert.False(t, res.IsBatchItem())

	body, err := res.Body()
	require.NoError(t, err)
	defer body.Close()

	content, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, `{"ID":1}`, string(content))
}

func TestUnitTestAsyncExecute(t *testing.T) {
	server := httptest.NewServer(echoBatchHandler(t))
	defer server.Close()

	c := newClient(t, server.URL, client.Config{})

	b := batch.New()
	b.Add(batch.NewGet("Orders"))

	result, ok := <-c.AsyncExecute(context.Background(), b)
	require.True(t, ok)
	require.NoError(t, result.Err)

	results, err := result.Response.All()
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "GET Orders", string(results[0].Body))
}

func TestUnitTestNewRejectsRelativeServiceRoot(t *testing.T) {
	_, err := client.New(client.Config{ServiceRootURL: "service/root"}, nil)
	assert.Error(t, err)
}

func TestUnitTestResolveURL(t *testing.T) {
	c, err := client.New(client.Config{ServiceRootURL: "http://host/odata/"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "http://host/odata/$batch", c.BatchURL())
	assert.Equal(t, "http://host/odata/Products", c.ResolveURL("Products"))
	assert.Equal(t, "http://host/odata/Products", c.ResolveURL("/Products"))
	assert.Equal(t, "http://other/Products", c.ResolveURL("http://other/Products"))
}
