// Package chunked implements HTTP/1.1 chunked transfer coding.
package chunked

import (
	"bufio"
	"io"

	"github.com/pkg/errors"
)

// NewReader decodes a chunked body read from r. The reader returns
// io.EOF after the terminating zero-size chunk, its trailer section
// and final CRLF have been consumed, so the underlying stream is left
// positioned at the next response.
func NewReader(r io.Reader) io.Reader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(byteReader{r})
	}
	return &chunkedReader{Reader: br}
}

// byteReader hands out at most one byte per Read, so the bufio.Reader
// wrapped around it never buffers past the end of the chunked body.
type byteReader struct{ r io.Reader }

func (b byteReader) Read(p []byte) (int, error) {
	if len(p) > 1 {
		p = p[:1]
	}
	return b.r.Read(p)
}

type chunkedReader struct {
	*bufio.Reader
	currentChunk     io.Reader
	currentCount     int64
	currentChunkSize int64
	done             bool
}

// readChunkHeader parses "<hex-size>[;ext]CRLF". A size line ending in a
// bare LF is rejected, as are sizes of 16 or more hex digits.
func (c *chunkedReader) readChunkHeader() (size uint64, err error) {
	cnt := 0
	isPref := true
	ext := false
	for isPref {
		var line []byte
		line, err = c.ReadSlice('\n')
		isPref = err == bufio.ErrBufferFull
		if err != nil && !isPref {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return 0, err
		}
		err = nil
		if !isPref {
			line = line[:len(line)-1]
			if len(line) > 0 {
				if line[len(line)-1] != '\r' {
					return 0, errors.New("chunk length line not terminated by CRLF")
				}
				line = line[:len(line)-1]
			}
		}
		for _, b := range line {
			if ext {
				continue // chunk extensions are ignored
			}
			if b == ';' {
				ext = true
				continue
			}
			cnt++
			switch {
			case '0' <= b && b <= '9':
				b = b - '0'
			case 'a' <= b && b <= 'f':
				b = b - 'a' + 10
			case 'A' <= b && b <= 'F':
				b = b - 'A' + 10
			default:
				return 0, errors.New("invalid byte in chunk length")
			}
			size <<= 4
			size |= uint64(b)
		}
		if cnt >= 16 {
			return 0, errors.New("http chunk length too large")
		}
	}
	if cnt == 0 {
		return 0, errors.New("empty chunk length")
	}
	return size, nil
}

// consumeTrailer discards optional trailer fields after the last
// chunk, up to and including the blank line.
func (c *chunkedReader) consumeTrailer() error {
	for {
		line, isPref, err := c.ReadLine()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return err
		}
		if isPref {
			continue
		}
		if len(line) == 0 {
			return nil
		}
	}
}

func (c *chunkedReader) Read(p []byte) (n int, err error) {
	if c.done {
		return 0, io.EOF
	}
	if c.currentChunk == nil {
		size, err := c.readChunkHeader()
		if err != nil {
			return 0, err
		}
		if size == 0 {
			if err := c.consumeTrailer(); err != nil {
				return 0, err
			}
			c.done = true
			return 0, io.EOF
		}
		c.currentChunk = io.LimitReader(c.Reader, int64(size))
		c.currentChunkSize = int64(size)
	}
	n, err = c.currentChunk.Read(p)
	c.currentCount += int64(n)
	if err == io.EOF {
		if c.currentCount != c.currentChunkSize {
			return n, io.ErrUnexpectedEOF
		}
		err = nil
		cr, _ := c.Reader.ReadByte()
		lf, rerr := c.Reader.ReadByte()
		if rerr != nil {
			if rerr == io.EOF {
				rerr = io.ErrUnexpectedEOF
			}
			return n, rerr
		}
		if cr != '\r' || lf != '\n' {
			return n, errors.New("malformed chunked encoding")
		}
		c.currentChunk = nil
		c.currentCount = 0
	}
	return
}
