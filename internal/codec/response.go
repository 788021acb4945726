package codec

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/areq-dev/areq/internal/codec/chunked"
	"github.com/areq-dev/areq/internal/errcore"
	"github.com/areq-dev/areq/internal/headers"
	"github.com/areq-dev/areq/internal/model"
)

const (
	maxLineLength   = 64 << 10
	maxHeaderCount  = 1 << 10
	maxInterimCount = 8
)

// readLine reads one CRLF-terminated line. A bare LF is tolerated on
// the head section; the chunked framing has its own stricter reader.
func readLine(br *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		part, isPrefix, err := br.ReadLine()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		line = append(line, part...)
		if len(line) > maxLineLength {
			return nil, errcore.New(errcore.ProtocolError, "header line exceeds limit")
		}
		if !isPrefix {
			return line, nil
		}
	}
}

// ReadResponse parses the head of one response from br and sets up
// the body reader according to the framing rules. The body is not
// decoded here; content codings are applied by NewDecoder. Interim
// 1xx responses are consumed and discarded.
func ReadResponse(br *bufio.Reader, method string) (*model.Response, error) {
	resp := &model.Response{}
	for interim := 0; ; interim++ {
		if interim > maxInterimCount {
			return nil, errcore.New(errcore.ProtocolError, "too many interim responses")
		}
		if err := readStatusLine(br, resp); err != nil {
			return nil, err
		}
		hdr, err := readHeaders(br)
		if err != nil {
			return nil, err
		}
		resp.Header = hdr
		if resp.StatusCode >= 100 && resp.StatusCode < 200 {
			// 1xx carries no body; wait for the final status line
			continue
		}
		break
	}
	return resp, readTransfer(br, resp, method)
}

func readStatusLine(br *bufio.Reader, resp *model.Response) error {
	line, err := readLine(br)
	if err != nil {
		return errcore.Wrap(errcore.ReadError, err, "reading status line")
	}
	proto, rest, ok := strings.Cut(string(line), " ")
	if !ok {
		return errcore.Newf(errcore.ProtocolError, "malformed status line %q", line)
	}
	if proto != "HTTP/1.1" && proto != "HTTP/1.0" {
		return errcore.Newf(errcore.ProtocolError, "unsupported protocol %q", proto)
	}
	code, reason, _ := strings.Cut(strings.TrimLeft(rest, " "), " ")
	if len(code) != 3 {
		return errcore.Newf(errcore.ProtocolError, "malformed status code %q", code)
	}
	n, err := strconv.Atoi(code)
	if err != nil || n < 100 || n > 599 {
		return errcore.Newf(errcore.ProtocolError, "malformed status code %q", code)
	}
	resp.Proto = proto
	resp.StatusCode = n
	resp.Status = reason
	return nil
}

func readHeaders(br *bufio.Reader) (*headers.Headers, error) {
	hdr := &headers.Headers{}
	count := 0
	for {
		line, err := readLine(br)
		if err != nil {
			return nil, errcore.Wrap(errcore.ReadError, err, "reading header line")
		}
		if len(line) == 0 {
			return hdr, nil
		}
		if line[0] == ' ' || line[0] == '\t' {
			return nil, errcore.New(errcore.ProtocolError, "obsolete header line folding")
		}
		if count++; count > maxHeaderCount {
			return nil, errcore.New(errcore.ProtocolError, "too many header fields")
		}
		name, value, found := bytes.Cut(line, []byte{':'})
		if !found {
			return nil, errcore.Newf(errcore.ProtocolError, "malformed header line %q", line)
		}
		if len(name) == 0 || name[len(name)-1] == ' ' || name[len(name)-1] == '\t' {
			return nil, errcore.Newf(errcore.ProtocolError, "whitespace before colon in %q", line)
		}
		if err := hdr.Add(string(name), string(bytes.Trim(value, " \t"))); err != nil {
			return nil, errcore.Wrap(errcore.ProtocolError, err, "storing header")
		}
	}
}

// readTransfer selects the body framing, in order: bodiless statuses
// and HEAD, chunked transfer coding, Content-Length, read-to-EOF.
func readTransfer(br *bufio.Reader, resp *model.Response, method string) error {
	resp.Reusable = resp.Proto == "HTTP/1.1"
	for _, tok := range headers.SplitList(resp.Header.Value("Connection")) {
		if strings.EqualFold(tok, "close") {
			resp.Reusable = false
		}
	}

	if method == "HEAD" || resp.StatusCode == 204 || resp.StatusCode == 304 {
		resp.ContentLength = 0
		resp.Body = io.NopCloser(bytes.NewReader(nil))
		return nil
	}

	if codings := transferCodings(resp.Header); len(codings) > 0 {
		for i, c := range codings {
			if c != "chunked" || i != len(codings)-1 {
				return errcore.Newf(errcore.DecodeError, "unsupported transfer coding %q", c)
			}
		}
		resp.ContentLength = -1
		resp.Body = io.NopCloser(newChunkedBody(chunked.NewReader(br)))
		return nil
	}

	cl, err := contentLength(resp.Header)
	if err != nil {
		return err
	}
	if cl >= 0 {
		resp.ContentLength = cl
		resp.Body = io.NopCloser(io.LimitReader(br, cl))
		return nil
	}

	// No framing information: the body runs to EOF and the
	// connection cannot be reused.
	resp.ContentLength = -1
	resp.Reusable = false
	resp.Body = io.NopCloser(br)
	return nil
}

func transferCodings(hdr *headers.Headers) []string {
	var out []string
	for _, v := range hdr.Values("Transfer-Encoding") {
		for _, tok := range headers.SplitList(v) {
			out = append(out, strings.ToLower(tok))
		}
	}
	return out
}

// contentLength returns the declared length, or -1 when absent.
// Multiple differing Content-Length fields are a protocol error
// (request-smuggling hardening).
func contentLength(hdr *headers.Headers) (int64, error) {
	values := hdr.Values("Content-Length")
	if len(values) == 0 {
		return -1, nil
	}
	first := strings.TrimSpace(values[0])
	for _, v := range values[1:] {
		if strings.TrimSpace(v) != first {
			return 0, errcore.Newf(errcore.ProtocolError,
				"message cannot contain multiple content-length headers; got %v", values)
		}
	}
	n, err := strconv.ParseUint(first, 10, 63)
	if err != nil {
		return 0, errcore.Newf(errcore.ProtocolError, "malformed content-length %q", first)
	}
	return int64(n), nil
}
