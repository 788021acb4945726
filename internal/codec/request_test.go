package codec_test

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/areq-dev/areq/internal/codec"
	"github.com/areq-dev/areq/internal/headers"
	"github.com/areq-dev/areq/internal/model"
)

func serialize(t *testing.T, req *model.Request) string {
	t.Helper()
	pr, err := req.Prepare()
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, codec.WriteRequest(&buf, pr))
	return buf.String()
}

func TestWriteRequestGet(t *testing.T) {
	got := serialize(t, &model.Request{URL: "http://example.com/"})
	assert.Equal(t,
		"GET / HTTP/1.1\r\n"+
			"Host: example.com\r\n"+
			"User-Agent: areq/1.1.0\r\n"+
			"Accept-Encoding: gzip; q=1, deflate; q=1\r\n"+
			"\r\n",
		got)
}

func TestWriteRequestTarget(t *testing.T) {
	got := serialize(t, &model.Request{
		URL:    "http://example.com/search",
		Params: [][2]string{{"q", "a b"}},
	})
	assert.True(t, strings.HasPrefix(got, "GET /search?q=a+b HTTP/1.1\r\n"), got)
}

func TestWriteRequestBody(t *testing.T) {
	got := serialize(t, &model.Request{
		Method: "POST",
		URL:    "http://example.com/submit",
		Body:   "hello",
	})
	assert.True(t, strings.Contains(got, "\r\nContent-Length: 5\r\n"), got)
	assert.True(t, strings.HasSuffix(got, "\r\n\r\nhello"), got)
}

func TestWriteRequestEmptyPostBody(t *testing.T) {
	got := serialize(t, &model.Request{Method: "POST", URL: "http://example.com/"})
	assert.True(t, strings.Contains(got, "\r\nContent-Length: 0\r\n"), got)

	got = serialize(t, &model.Request{URL: "http://example.com/"})
	assert.False(t, strings.Contains(got, "Content-Length"), "bodiless GET carries no length")
}

type producer struct{ io.Reader }

func TestWriteRequestChunksProducers(t *testing.T) {
	got := serialize(t, &model.Request{
		Method: "POST",
		URL:    "http://example.com/upload",
		Body:   producer{strings.NewReader("streamed")},
	})
	assert.True(t, strings.Contains(got, "\r\nTransfer-Encoding: chunked\r\n"), got)
	assert.False(t, strings.Contains(got, "Content-Length"), got)
	assert.True(t, strings.HasSuffix(got, "\r\n\r\n8\r\nstreamed\r\n0\r\n\r\n"), got)
}

func TestWriteRequestUserHeadersWinOverDefaults(t *testing.T) {
	got := serialize(t, &model.Request{
		URL:    "http://example.com/",
		Header: headers.New("User-Agent", "custom/2.0", "X-Extra", "yes"),
	})
	assert.Equal(t, 1, strings.Count(got, "User-Agent:"), got)
	assert.True(t, strings.Contains(got, "User-Agent: custom/2.0\r\n"), got)
	assert.True(t, strings.Contains(got, "X-Extra: yes\r\n"), got)
}

func TestWriteRequestHostOverride(t *testing.T) {
	got := serialize(t, &model.Request{
		URL:    "http://example.com/",
		Header: headers.New("Host", "virtual.example"),
	})
	assert.True(t, strings.Contains(got, "\r\nHost: virtual.example\r\n"), got)
	assert.Equal(t, 1, strings.Count(got, "Host:"), got)
}
