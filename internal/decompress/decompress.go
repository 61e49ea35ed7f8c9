// Package decompress wraps the dump's fixed bzip2 compression scheme
// as a forward-read stage.
package decompress

import (
	"compress/bzip2"
	"errors"
	"io"
	"sync/atomic"

	"wikidump/internal/domain"
)

// Reader decompresses a bzip2 stream incrementally. It keeps the plain
// io.Reader contract so the record extractor composes with it directly.
type Reader struct {
	z io.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{z: bzip2.NewReader(r)}
}

func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.z.Read(p)
	if err == nil || err == io.EOF {
		return n, err
	}
	return n, classify(err)
}

// classify separates a truncated upstream stream (retryable by
// re-downloading) from corrupt encoded data (fatal for these bytes).
func classify(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return &domain.DecompressionError{Truncated: true, Err: err}
	}
	var structural bzip2.StructuralError
	if errors.As(err, &structural) {
		return &domain.DecompressionError{Truncated: false, Err: err}
	}
	// Plain I/O failures from the underlying reader pass through.
	return err
}

// CountingReader counts the bytes handed downstream. The pipeline uses
// it on both sides of a stage to assert that no bytes are silently
// dropped between stages.
type CountingReader struct {
	r io.Reader
	n atomic.Int64
}

func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{r: r}
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}

// Count returns the total bytes read so far. Safe to call while
// another goroutine reads.
func (c *CountingReader) Count() int64 {
	return c.n.Load()
}
