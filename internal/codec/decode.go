package codec

import (
	"bufio"
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"io"
	"strings"

	"github.com/areq-dev/areq/internal/errcore"
	"github.com/areq-dev/areq/internal/headers"
	"github.com/areq-dev/areq/internal/model"
)

// chunkedBody classifies chunked-framing failures as protocol errors.
type chunkedBody struct {
	r io.Reader
}

func newChunkedBody(r io.Reader) io.Reader {
	return &chunkedBody{r: r}
}

func (c *chunkedBody) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if err != nil && err != io.EOF {
		err = errcore.Wrap(errcore.ProtocolError, err, "decoding chunked body")
	}
	return n, err
}

// ContentEncodings lists the codings applied to a response body, in
// the order the server applied them.
func ContentEncodings(hdr *headers.Headers) []string {
	var out []string
	for _, v := range hdr.Values("Content-Encoding") {
		for _, tok := range headers.SplitList(v) {
			out = append(out, strings.ToLower(tok))
		}
	}
	return out
}

// NewDecoder stacks decompressors over r so that codings apply
// right-to-left. Unknown codings fail with DecodeError. Construction
// is lazy: no bytes are consumed until the first Read, so a decoder
// can wrap a streaming body before any payload has arrived.
func NewDecoder(r io.Reader, encodings []string) (io.Reader, error) {
	for i := len(encodings) - 1; i >= 0; i-- {
		switch encodings[i] {
		case "identity", "":
			continue
		case "gzip", "x-gzip":
			r = &lazyReader{src: r, build: func(src io.Reader) (io.Reader, error) {
				zr, err := gzip.NewReader(src)
				if err != nil {
					return nil, errcore.Wrap(errcore.DecodeError, err, "opening gzip stream")
				}
				return zr, nil
			}}
		case "deflate":
			r = &lazyReader{src: r, build: newDeflateReader}
		default:
			return nil, errcore.Newf(errcore.DecodeError, "unknown content coding %q", encodings[i])
		}
	}
	return r, nil
}

// newDeflateReader sniffs the first byte to accept both the RFC 9110
// zlib-wrapped form and the bare deflate streams some servers send.
func newDeflateReader(src io.Reader) (io.Reader, error) {
	br := bufio.NewReader(src)
	head, err := br.Peek(1)
	if err != nil {
		return nil, errcore.Wrap(errcore.DecodeError, err, "sniffing deflate stream")
	}
	if head[0]&0x0f == 8 {
		zr, err := zlib.NewReader(br)
		if err != nil {
			return nil, errcore.Wrap(errcore.DecodeError, err, "opening zlib stream")
		}
		return zr, nil
	}
	return flate.NewReader(br), nil
}

type lazyReader struct {
	src   io.Reader
	build func(io.Reader) (io.Reader, error)
	r     io.Reader
	err   error
}

func (l *lazyReader) Read(p []byte) (int, error) {
	if l.err != nil {
		return 0, l.err
	}
	if l.r == nil {
		l.r, l.err = l.build(l.src)
		if l.err != nil {
			return 0, l.err
		}
	}
	n, err := l.r.Read(p)
	if err != nil && err != io.EOF {
		err = errcore.Wrap(errcore.DecodeError, err, "decompressing body")
	}
	return n, err
}

// DecodeBytes decompresses a materialized body according to the
// response's Content-Encoding and strips the then-stale framing
// headers.
func DecodeBytes(resp *model.Response) error {
	encodings := ContentEncodings(resp.Header)
	if len(encodings) == 0 {
		return nil
	}
	dec, err := NewDecoder(bytes.NewReader(resp.Content), encodings)
	if err != nil {
		return err
	}
	out, err := io.ReadAll(dec)
	if err != nil {
		return errcore.Wrap(errcore.DecodeError, err, "decompressing body")
	}
	resp.Content = out
	resp.ContentLength = int64(len(out))
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	return nil
}
