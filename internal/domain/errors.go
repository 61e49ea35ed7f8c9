package domain

import (
	"errors"
	"fmt"
)

// Resolution failures.
var (
	// ErrNotFound indicates no dump satisfied the language/date constraint.
	ErrNotFound = errors.New("no matching dump found")

	// ErrIndexUnreachable indicates a transport failure while fetching
	// the index or a status document.
	ErrIndexUnreachable = errors.New("dump index unreachable")

	// ErrAmbiguousIndex indicates the index was reachable but its
	// checksum metadata could not be located in any candidate.
	ErrAmbiguousIndex = errors.New("ambiguous dump index")
)

// ErrTruncatedTransfer indicates the download ended before the declared
// byte size was reached.
var ErrTruncatedTransfer = errors.New("truncated transfer")

// NetworkError wraps a transient transport failure during a download.
// It is the only download failure callers should auto-retry.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ChecksumMismatchError indicates the downloaded bytes do not match the
// advertised digest. The local file has already been removed when this
// is returned.
type ChecksumMismatchError struct {
	Algo     Algo
	Expected string
	Actual   string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("%s checksum mismatch: expected %s, got %s",
		e.Algo, e.Expected, e.Actual)
}

// DecompressionError classifies a failure in the decompression stage.
// Truncated means the upstream stream ended mid-block (retryable by
// re-downloading); otherwise the compressed data itself is corrupt and
// retrying the same bytes is pointless.
type DecompressionError struct {
	Truncated bool
	Err       error
}

func (e *DecompressionError) Error() string {
	if e.Truncated {
		return fmt.Sprintf("decompression failed: truncated input: %v", e.Err)
	}
	return fmt.Sprintf("decompression failed: corrupt data: %v", e.Err)
}

func (e *DecompressionError) Unwrap() error { return e.Err }

// MalformedStructureError indicates mismatched tag nesting in the dump
// stream. Offset is the absolute byte position in the decompressed
// stream where the problem was detected.
type MalformedStructureError struct {
	Offset int64
	Tag    string
}

func (e *MalformedStructureError) Error() string {
	return fmt.Sprintf("malformed structure at byte %d: unexpected tag %q", e.Offset, e.Tag)
}

// UnexpectedEOFError indicates the stream ended mid-record. A
// well-formed archive never does this.
type UnexpectedEOFError struct {
	Offset int64
}

func (e *UnexpectedEOFError) Error() string {
	return fmt.Sprintf("unexpected end of stream at byte %d", e.Offset)
}
