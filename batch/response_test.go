package batch_test

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omercs/odatabatch/batch"
)

func TestUnitTestNewResponseReadsEagerly(t *testing.T) {
	httpResponse := &http.Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Proto:      "HTTP/1.1",
		Header: http.Header{
			"Content-Type": []string{"application/json"},
			"Etag":         []string{`W/"1"`},
			"Content-Id":   []string{"7"},
		},
		Body: io.NopCloser(strings.NewReader(`{"value":[]}`)),
	}

	res, err := batch.NewResponse(httpResponse)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, res.StatusCode())
	assert.Equal(t, "OK", res.StatusMessage())
	assert.Equal(t, "HTTP/1.1 200 OK", res.StartLine())
	assert.Equal(t, "application/json", res.ContentType())
	assert.Equal(t, `W/"1"`, res.ETag())
	assert.False(t, res.IsBatchItem())
	assert.Equal(t, "7", res.ContentID())
	assert.False(t, res.Header().Has(batch.HeaderContentID))

	first, err := res.Body()
	require.NoError(t, err)
	second, err := res.Body()
	require.NoError(t, err)
	require.Same(t, first, second)

	body, err := res.Bytes()
	require.NoError(t, err)
	assert.Equal(t, `{"value":[]}`, string(body))
	assert.NoError(t, res.Close())
}

func TestUnitTestNewResponseWithoutBody(t *testing.T) {
	for _, body := range []io.ReadCloser{nil, http.NoBody} {
		res, err := batch.NewResponse(&http.Response{
			StatusCode: http.StatusNoContent,
			Status:     "204 No Content",
			Header:     http.Header{},
			Body:       body,
		})
		require.NoError(t, err)

		_, err = res.Body()
		assert.ErrorIs(t, err, batch.ErrNoBody)
	}

	_, err := batch.NewResponse(nil)
	assert.Error(t, err)
}

func TestUnitTestParseStatusLine(t *testing.T) {
	testCases := []struct {
		name            string
		line            string
		expectedCode    int
		expectedMessage string
		expectErr       bool
	}{
		{name: "ok", line: "HTTP/1.1 200 OK", expectedCode: 200, expectedMessage: "OK"},
		{name: "multi word reason", line: "HTTP/1.1 412 Precondition Failed", expectedCode: 412, expectedMessage: "Precondition Failed"},
		{name: "no reason", line: "HTTP/1.1 204", expectedCode: 204},
		{name: "trailing space", line: "HTTP/1.0 404 Not Found  ", expectedCode: 404, expectedMessage: "Not Found"},
		{name: "request line", line: "GET Products HTTP/1.1", expectErr: true},
		{name: "non numeric code", line: "HTTP/1.1 abc OK", expectErr: true},
		{name: "code out of range", line: "HTTP/1.1 42 Odd", expectErr: true},
		{name: "empty", line: "", expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			code, message, err := batch.ParseStatusLine(tc.line)
			if tc.expectErr {
				assert.ErrorIs(t, err, batch.ErrMalformedBatch)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedCode, code)
			assert.Equal(t, tc.expectedMessage, message)
		})
	}
}

func TestUnitTestParseRequestLine(t *testing.T) {
	method, target, err := batch.ParseRequestLine("PATCH Customers('ALFKI') HTTP/1.1")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, method)
	assert.Equal(t, "Customers('ALFKI')", target)

	for _, line := range []string{"", "GET", "GET Products", "HTTP/1.1 200 OK", "GET a b HTTP/1.1"} {
		_, _, err := batch.ParseRequestLine(line)
		assert.ErrorIs(t, err, batch.ErrMalformedBatch, line)
	}
}
