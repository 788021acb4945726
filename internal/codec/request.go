// Package codec speaks the HTTP/1.1 wire format: request
// serialization, response parsing, transfer codings and content
// codings.
package codec

import (
	"bufio"
	"io"
	"strconv"

	"github.com/areq-dev/areq/internal/codec/chunked"
	"github.com/areq-dev/areq/internal/errcore"
	"github.com/areq-dev/areq/internal/model"
)

// DefaultAcceptEncoding is offered on every request unless the caller
// already set the header (or suppressed it with an empty value).
const DefaultAcceptEncoding = "gzip; q=1, deflate; q=1"

// DefaultUserAgent is sent when no User-Agent was configured.
const DefaultUserAgent = "areq/1.1.0"

// WriteRequest serializes r onto w. Finite bodies go out with a
// Content-Length; producer bodies of unknown length are chunked.
func WriteRequest(w io.Writer, r *model.PreparedRequest) error {
	body, err := r.GetBody()
	if err != nil {
		return errcore.Wrap(errcore.WriteError, err, "opening request body")
	}
	if body != nil {
		defer body.Close() // request body is ALWAYS closed
	}

	chunk := r.ContentLength < 0 && !r.Header.Has("Transfer-Encoding")
	if err := writeHeader(w, r, chunk); err != nil {
		return err
	}
	if body == nil {
		return nil
	}
	if chunk {
		cw := chunked.NewWriter(w)
		if _, err := io.Copy(cw, body); err != nil {
			return errcore.Wrap(errcore.WriteError, err, "writing chunked body")
		}
		if err := cw.Close(); err != nil {
			return errcore.Wrap(errcore.WriteError, err, "terminating chunked body")
		}
		return nil
	}
	if _, err := io.Copy(w, body); err != nil {
		return errcore.Wrap(errcore.WriteError, err, "writing body")
	}
	return nil
}

// writeHeader writes the request line and header section:
//
//	GET /path HTTP/1.1\r\n
//	Host: example.com\r\n
//	...\r\n
//	\r\n
func writeHeader(w io.Writer, r *model.PreparedRequest, chunk bool) error {
	header := bufio.NewWriter(w)

	header.WriteString(r.Method)
	header.WriteByte(' ')
	header.WriteString(r.U.RequestTarget())
	header.WriteString(" HTTP/1.1\r\n")

	header.WriteString("Host: ")
	header.WriteString(r.HeaderHost)
	header.WriteString("\r\n")

	switch {
	case chunk:
		header.WriteString("Transfer-Encoding: chunked\r\n")
	case r.ContentLength > 0 || (r.ContentLength == 0 && methodExpectsBody(r.Method)):
		header.WriteString("Content-Length: ")
		header.WriteString(strconv.FormatInt(r.ContentLength, 10))
		header.WriteString("\r\n")
	}

	if !r.Header.Has("User-Agent") {
		header.WriteString("User-Agent: " + DefaultUserAgent + "\r\n")
	}
	if !r.Header.Has("Accept-Encoding") {
		header.WriteString("Accept-Encoding: " + DefaultAcceptEncoding + "\r\n")
	}

	var werr error
	r.Header.Range(func(name, value string) bool {
		header.WriteString(name)
		header.WriteString(": ")
		header.WriteString(value)
		_, werr = header.WriteString("\r\n")
		return werr == nil
	})
	if werr != nil {
		return errcore.Wrap(errcore.WriteError, werr, "writing headers")
	}
	header.WriteString("\r\n")
	if err := header.Flush(); err != nil {
		return errcore.Wrap(errcore.WriteError, err, "flushing request head")
	}
	return nil
}

// methodExpectsBody reports whether an explicit zero Content-Length
// should be sent even without body bytes.
func methodExpectsBody(method string) bool {
	switch method {
	case "POST", "PUT", "PATCH":
		return true
	}
	return false
}
