package ingest

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ChunkedReader decodes the chunked PUT body framing spec.md §4.5.1
// describes: a hex chunk-length line (optionally followed by
// ";chunk-signature=..." extensions, which are ignored — signature
// verification of individual chunks is out of scope per spec.md §1), the
// chunk payload, a trailing CRLF, repeated until a zero-length chunk
// terminates the stream.
type ChunkedReader struct {
	r         *bufio.Reader
	remaining int64
	done      bool
}

// NewChunkedReader wraps r, decoding the chunked framing transparently.
func NewChunkedReader(r io.Reader) *ChunkedReader {
	return &ChunkedReader{r: bufio.NewReader(r)}
}

// Read implements io.Reader, returning decoded payload bytes.
func (c *ChunkedReader) Read(p []byte) (int, error) {
	if c.done {
		return 0, io.EOF
	}
	if c.remaining == 0 {
		size, err := c.readChunkHeader()
		if err != nil {
			return 0, err
		}
		if size == 0 {
			if err := c.consumeTrailerCRLF(); err != nil {
				return 0, err
			}
			c.done = true
			return 0, io.EOF
		}
		c.remaining = size
	}

	if int64(len(p)) > c.remaining {
		p = p[:c.remaining]
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	if err != nil {
		return n, err
	}
	if c.remaining == 0 {
		if err := c.consumeTrailerCRLF(); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (c *ChunkedReader) readChunkHeader() (int64, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		return 0, fmt.Errorf("ingest: chunked: read chunk header: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if idx := strings.IndexByte(line, ';'); idx >= 0 {
		line = line[:idx]
	}
	size, err := strconv.ParseInt(strings.TrimSpace(line), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("ingest: chunked: malformed chunk size %q: %w", line, err)
	}
	return size, nil
}

func (c *ChunkedReader) consumeTrailerCRLF() error {
	cr, err := c.r.ReadByte()
	if err != nil {
		return err
	}
	lf, err := c.r.ReadByte()
	if err != nil {
		return err
	}
	if cr != '\r' || lf != '\n' {
		return fmt.Errorf("ingest: chunked: malformed chunk trailer")
	}
	return nil
}
