package batch_test

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omercs/odatabatch/batch"
)

type encodedBatch struct {
	body        []byte
	contentType string
}

func encodeReplies(t *testing.T, write func(w *batch.Writer)) encodedBatch {
	t.Helper()

	var buf bytes.Buffer
	w := batch.NewWriter(&buf)
	write(w)
	require.NoError(t, w.Close())

	return encodedBatch{body: buf.Bytes(), contentType: w.ContentType()}
}

func (e encodedBatch) decode(t *testing.T) *batch.BatchResponse {
	t.Helper()

	res, err := batch.Decode(io.NopCloser(bytes.NewReader(e.body)), e.contentType)
	require.NoError(t, err)
	t.Cleanup(func() { res.Close() })

	return res
}

func decodeString(t *testing.T, body, contentType string) *batch.BatchResponse {
	t.Helper()

	return encodedBatch{body: []byte(body), contentType: contentType}.decode(t)
}

func nextItem(t *testing.T, res *batch.BatchResponse) *batch.Response {
	t.Helper()

	item, err := res.Next()
	require.NoError(t, err)
	require.NotNil(t, item)

	return item
}

func readBody(t *testing.T, item *batch.Response) string {
	t.Helper()

	body, err := item.Bytes()
	require.NoError(t, err)

	return string(body)
}

func TestUnitTestDecodeSingleAndChangeSetItemsInOrder(t *testing.T) {
	singleHeader := batch.NewHeader(
		"Content-Type", "application/json;odata.metadata=minimal",
		"OData-Version", "4.0",
	)
	firstHeader := batch.NewHeader(
		"Location", "http://host/service/Products(10)",
		"Content-Type", "application/json",
	)
	secondHeader := batch.NewHeader(
		"ETag", `W/"2"`,
		"Content-Type", "application/json",
	)

	var changeSet *batch.ChangeSet
	encoded := encodeReplies(t, func(w *batch.Writer) {
		require.NoError(t, w.WriteItem(batch.NewReply(http.StatusOK, singleHeader, []byte(`{"ID":1}`)), ""))

		changeSet = batch.NewChangeSet().
			Add(batch.NewReply(http.StatusCreated, firstHeader, []byte(`{"ID":10}`)), "1").
			Add(batch.NewReply(http.StatusOK, secondHeader, []byte(`{"ID":2,"Rating":3}`)), "2")
		require.NoError(t, w.WriteChangeSet(changeSet))
	})

	res := encoded.decode(t)

	single := nextItem(t, res)
	assert.Equal(t, http.StatusOK, single.StatusCode())
	assert.Equal(t, "OK", single.StatusMessage())
	assert.Equal(t, singleHeader, single.Header())
	assert.Empty(t, single.ContentID())
	assert.Empty(t, single.ChangeSet())
	assert.True(t, single.IsBatchItem())
	assert.Equal(t, `{"ID":1}`, readBody(t, single))

	first := nextItem(t, res)
	assert.Equal(t, http.StatusCreated, first.StatusCode())
	assert.Equal(t, "Created", first.StatusMessage())
	assert.Equal(t, "1", first.ContentID())
	assert.Equal(t, changeSet.Boundary(), first.ChangeSet())
	assert.Equal(t, firstHeader, first.Header())
	assert.False(t, first.Header().Has(batch.HeaderContentID))
	assert.Equal(t, `{"ID":10}`, readBody(t, first))

	second := nextItem(t, res)
	assert.Equal(t, http.StatusOK, second.StatusCode())
	assert.Equal(t, "2", second.ContentID())
	assert.Equal(t, changeSet.Boundary(), second.ChangeSet())
	assert.Equal(t, secondHeader, second.Header())
	assert.Equal(t, `W/"2"`, second.ETag())
	assert.Equal(t, "application/json", second.ContentType())
	assert.Equal(t, `{"ID":2,"Rating":3}`, readBody(t, second))

	_, err := res.Next()
	assert.Equal(t, io.EOF, err)
	assert.True(t, res.Exhausted())
}

func TestUnitTestDecodeReproducesBodiesByteForByte(t *testing.T) {
	bodies := []string{
		"",
		"single line",
		"line one\r\nline two",
		"ends with a line break\r\n",
		"unix\nline\nbreaks\n",
		"\r\n\r\nleading blank lines",
		"looks like a delimiter\r\n--batch_other\r\n--changeset_other--",
	}

	encoded := encodeReplies(t, func(w *batch.Writer) {
		cs := batch.NewChangeSet()
		for i, body := range bodies {
			reply := batch.NewReply(http.StatusOK, batch.NewHeader("X-Index", string(rune('a'+i))), []byte(body))
			if i%2 == 0 {
				require.NoError(t, w.WriteItem(reply, ""))
				continue
			}
			cs.Add(reply, "")
		}
		require.NoError(t, w.WriteChangeSet(cs))
	})

	results, err := encoded.decode(t).All()
	require.NoError(t, err)
	require.Len(t, results, len(bodies))

	// singles are written first, changeset members after them
	var expected []string
	for i, body := range bodies {
		if i%2 == 0 {
			expected = append(expected, body)
		}
	}
	for i, body := range bodies {
		if i%2 == 1 {
			expected = append(expected, body)
		}
	}

	for i, result := range results {
		assert.Equal(t, expected[i], string(result.Body), "body of item %d", i)
	}
}

func TestUnitTestDecodeEmptyChangeSetYieldsNoItems(t *testing.T) {
	encoded := encodeReplies(t, func(w *batch.Writer) {
		require.NoError(t, w.WriteItem(batch.NewReply(http.StatusOK, batch.Header{}, []byte("before")), ""))
		require.NoError(t, w.WriteChangeSet(batch.NewChangeSet()))
		require.NoError(t, w.WriteItem(batch.NewReply(http.StatusOK, batch.Header{}, []byte("after")), ""))
	})

	results, err := encoded.decode(t).All()
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "before", string(results[0].Body))
	assert.Equal(t, "after", string(results[1].Body))
}

func TestUnitTestDecodeBatchWithoutItemsIsExhausted(t *testing.T) {
	encoded := encodeReplies(t, func(w *batch.Writer) {})

	res := encoded.decode(t)
	_, err := res.Next()
	assert.Equal(t, io.EOF, err)
	assert.True(t, res.Exhausted())

	_, err = res.Next()
	assert.Equal(t, io.EOF, err)
}

func TestUnitTestDecodeFailsWhenBoundaryNeverOccurs(t *testing.T) {
	res := decodeString(t, "HTTP/1.1 200 OK\r\n\r\nno delimiters here", "multipart/mixed; boundary=batch_missing")

	_, err := res.Next()
	assert.ErrorIs(t, err, batch.ErrMalformedBatch)

	// framing errors are sticky
	_, err = res.Next()
	assert.ErrorIs(t, err, batch.ErrMalformedBatch)
}

func TestUnitTestDecodeTruncatedBodyFails(t *testing.T) {
	res := decodeString(t, "--b\r\nHTTP/1.1 200 OK\r\n\r\npartial body", "multipart/mixed; boundary=b")

	item := nextItem(t, res)
	_, err := item.Bytes()
	assert.ErrorIs(t, err, batch.ErrMalformedBatch)
}

func TestUnitTestDecodeRejectsNonMultipartContent(t *testing.T) {
	for _, contentType := range []string{
		"application/json",
		"multipart/mixed",
		"not a media type;;",
	} {
		_, err := batch.Decode(io.NopCloser(strings.NewReader("")), contentType)
		assert.ErrorIs(t, err, batch.ErrNotMultipart, contentType)
	}
}

func TestUnitTestDecodeAcceptsPartsWithoutPartHeaders(t *testing.T) {
	body := strings.Join([]string{
		"this preamble is ignored",
		"--b",
		"HTTP/1.1 200 OK",
		"Content-Type: text/plain",
		"",
		"hello",
		"--b",
		"Content-Type: multipart/mixed; boundary=cs",
		"",
		"--cs",
		"Content-Type: application/http",
		"Content-ID: 7",
		"",
		"HTTP/1.1 201 Created",
		"",
		"created",
		"--cs--",
		"--b--",
		"this epilogue is ignored",
	}, "\n")

	results, err := decodeString(t, body, `multipart/mixed; boundary="b"`).All()
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, http.StatusOK, results[0].StatusCode)
	assert.Equal(t, "text/plain", results[0].Header.Get("content-type"))
	assert.Equal(t, "hello", string(results[0].Body))

	assert.Equal(t, http.StatusCreated, results[1].StatusCode)
	assert.Equal(t, "7", results[1].ContentID)
	assert.Equal(t, "cs", results[1].ChangeSet)
	assert.Equal(t, "created", string(results[1].Body))
}

func TestUnitTestDecodeTranscodesDeclaredCharset(t *testing.T) {
	body := "--b\r\nHTTP/1.1 200 OK\r\n\r\ncaf\xe9\r\n--b--\r\n"
	res := decodeString(t, body, "multipart/mixed; boundary=b; charset=ISO-8859-1")

	assert.Equal(t, "café", readBody(t, nextItem(t, res)))
}

func TestUnitTestBodyIsMaterializedOnce(t *testing.T) {
	encoded := encodeReplies(t, func(w *batch.Writer) {
		require.NoError(t, w.WriteItem(batch.NewReply(http.StatusOK, batch.Header{}, []byte("payload")), ""))
	})
	item := nextItem(t, encoded.decode(t))

	first, err := item.Body()
	require.NoError(t, err)
	second, err := item.Body()
	require.NoError(t, err)
	require.Same(t, first, second)

	content, err := io.ReadAll(second)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(content))
}

func TestUnitTestNoContentItemHasNoBody(t *testing.T) {
	encoded := encodeReplies(t, func(w *batch.Writer) {
		require.NoError(t, w.WriteItem(batch.NewReply(http.StatusNoContent, batch.Header{}, nil), ""))
		require.NoError(t, w.WriteItem(batch.NewReply(http.StatusOK, batch.Header{}, []byte("next")), ""))
	})
	res := encoded.decode(t)

	item := nextItem(t, res)
	_, err := item.Body()
	assert.ErrorIs(t, err, batch.ErrNoBody)

	body, err := item.Bytes()
	require.NoError(t, err)
	assert.Nil(t, body)

	assert.Equal(t, "next", readBody(t, nextItem(t, res)))
}

func TestUnitTestClosingBodyEarlyKeepsNextItemIntact(t *testing.T) {
	encoded := encodeReplies(t, func(w *batch.Writer) {
		require.NoError(t, w.WriteItem(batch.NewReply(http.StatusOK, batch.Header{}, []byte("abcdefgh\r\nijklmnop\r\nqrstuvwx")), ""))
		require.NoError(t, w.WriteItem(batch.NewReply(http.StatusAccepted, batch.Header{}, []byte("second")), ""))
	})
	res := encoded.decode(t)

	first := nextItem(t, res)
	body, err := first.Body()
	require.NoError(t, err)

	buf := make([]byte, 3)
	_, err = io.ReadFull(body, buf)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(buf))
	require.NoError(t, body.Close())

	second := nextItem(t, res)
	assert.Equal(t, http.StatusAccepted, second.StatusCode())
	assert.Equal(t, "second", readBody(t, second))
}

func TestUnitTestAdvancingAbandonsPreviousBody(t *testing.T) {
	encoded := encodeReplies(t, func(w *batch.Writer) {
		for _, body := range []string{"one", "two", "three"} {
			require.NoError(t, w.WriteItem(batch.NewReply(http.StatusOK, batch.Header{}, []byte(body)), ""))
		}
	})
	res := encoded.decode(t)

	first := nextItem(t, res)
	firstBody, err := first.Body()
	require.NoError(t, err)

	// never materialized before moving on
	second := nextItem(t, res)

	third := nextItem(t, res)
	assert.Equal(t, "three", readBody(t, third))

	_, err = io.ReadAll(firstBody)
	assert.ErrorIs(t, err, batch.ErrBodySkipped)

	_, err = second.Body()
	assert.ErrorIs(t, err, batch.ErrBodySkipped)
}

func TestUnitTestReadsAfterCloseFail(t *testing.T) {
	encoded := encodeReplies(t, func(w *batch.Writer) {
		require.NoError(t, w.WriteItem(batch.NewReply(http.StatusOK, batch.Header{}, []byte("first")), ""))
		require.NoError(t, w.WriteItem(batch.NewReply(http.StatusOK, batch.Header{}, []byte("second")), ""))
	})

	t.Run("body requested before close", func(t *testing.T) {
		res := encoded.decode(t)
		item := nextItem(t, res)
		body, err := item.Body()
		require.NoError(t, err)

		require.NoError(t, res.Close())

		_, err = io.ReadAll(body)
		assert.ErrorIs(t, err, batch.ErrBatchClosed)
	})

	t.Run("body requested after close", func(t *testing.T) {
		res := encoded.decode(t)
		item := nextItem(t, res)

		require.NoError(t, res.Close())

		_, err := item.Body()
		assert.ErrorIs(t, err, batch.ErrBatchClosed)

		_, err = res.Next()
		assert.ErrorIs(t, err, batch.ErrBatchClosed)
	})
}

func TestUnitTestResponseCanOnlyBeInitializedOnce(t *testing.T) {
	part := &batch.PartInfo{Seq: 1, StartLine: "HTTP/1.1 200 OK"}

	var res batch.Response
	require.NoError(t, res.InitFromBatch(part, nil))
	assert.ErrorIs(t, res.InitFromBatch(part, nil), batch.ErrAlreadyInitialized)

	eager, err := batch.NewResponse(&http.Response{StatusCode: http.StatusOK, Status: "200 OK", Header: http.Header{}})
	require.NoError(t, err)
	assert.ErrorIs(t, eager.InitFromBatch(part, nil), batch.ErrAlreadyInitialized)
}

func TestUnitTestDuplicateContentIDsArePassedThrough(t *testing.T) {
	// Content-ID uniqueness is left to the caller
	encoded := encodeReplies(t, func(w *batch.Writer) {
		cs := batch.NewChangeSet().
			Add(batch.NewReply(http.StatusCreated, batch.Header{}, nil), "1").
			Add(batch.NewReply(http.StatusCreated, batch.Header{}, nil), "1")
		require.NoError(t, w.WriteChangeSet(cs))
	})

	results, err := encoded.decode(t).All()
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "1", results[0].ContentID)
	assert.Equal(t, "1", results[1].ContentID)
}

func TestUnitTestNewBatchResponseUsesHTTPResponse(t *testing.T) {
	encoded := encodeReplies(t, func(w *batch.Writer) {
		require.NoError(t, w.WriteItem(batch.NewReply(http.StatusNotFound, batch.Header{}, []byte("missing")), ""))
	})

	httpResponse := &http.Response{
		StatusCode: http.StatusAccepted,
		Status:     "202 Accepted",
		Header:     http.Header{"Content-Type": []string{encoded.contentType}},
		Body:       io.NopCloser(bytes.NewReader(encoded.body)),
	}

	res, err := batch.NewBatchResponse(httpResponse)
	require.NoError(t, err)
	defer res.Close()

	assert.Equal(t, http.StatusAccepted, res.StatusCode())
	assert.Equal(t, "Accepted", res.StatusMessage())
	assert.Equal(t, encoded.contentType, res.Header().Get("Content-Type"))

	item := nextItem(t, res)
	assert.Equal(t, http.StatusNotFound, item.StatusCode())
	assert.Equal(t, "Not Found", item.StatusMessage())
	assert.Equal(t, "missing", readBody(t, item))
}
