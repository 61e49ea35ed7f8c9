// Package checksum computes and compares digests of byte streams.
package checksum

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"wikidump/internal/domain"
)

// DefaultPreference orders algorithms strongest first.
var DefaultPreference = []domain.Algo{domain.AlgoSHA256, domain.AlgoSHA1, domain.AlgoMD5}

// ParseAlgo converts a configured algorithm name to a domain.Algo.
func ParseAlgo(name string) (domain.Algo, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "md5":
		return domain.AlgoMD5, nil
	case "sha1":
		return domain.AlgoSHA1, nil
	case "sha256":
		return domain.AlgoSHA256, nil
	}
	return "", fmt.Errorf("unknown digest algorithm %q", name)
}

// InferAlgo guesses the algorithm of a bare hex digest from its length.
// Checksum listings key digests by filename without naming the algorithm.
func InferAlgo(hexDigest string) (domain.Algo, bool) {
	switch len(hexDigest) {
	case md5.Size * 2:
		return domain.AlgoMD5, true
	case sha1.Size * 2:
		return domain.AlgoSHA1, true
	case sha256.Size * 2:
		return domain.AlgoSHA256, true
	}
	return "", false
}

// Select picks the advertised checksum the caller should verify
// against, honoring the preference order. Returns false when nothing
// advertised matches a known algorithm.
func Select(advertised []domain.Checksum, preference []domain.Algo) (domain.Checksum, bool) {
	for _, algo := range preference {
		for _, c := range advertised {
			if c.Algo == algo {
				return c, true
			}
		}
	}
	return domain.Checksum{}, false
}

// Accumulator feeds streamed chunks into a digest. It implements
// io.Writer so it can tee off a download stream; the incremental sum
// equals a one-shot digest over the assembled bytes.
type Accumulator struct {
	algo domain.Algo
	h    hash.Hash
}

func New(algo domain.Algo) (*Accumulator, error) {
	var h hash.Hash
	switch algo {
	case domain.AlgoMD5:
		h = md5.New()
	case domain.AlgoSHA1:
		h = sha1.New()
	case domain.AlgoSHA256:
		h = sha256.New()
	default:
		return nil, fmt.Errorf("unsupported digest algorithm %q", algo)
	}
	return &Accumulator{algo: algo, h: h}, nil
}

func (a *Accumulator) Algo() domain.Algo { return a.algo }

func (a *Accumulator) Write(p []byte) (int, error) {
	return a.h.Write(p)
}

// HexSum returns the digest of everything written so far.
func (a *Accumulator) HexSum() string {
	return hex.EncodeToString(a.h.Sum(nil))
}

// Verify compares the accumulated digest against the expected checksum.
func (a *Accumulator) Verify(expected domain.Checksum) domain.VerificationResult {
	actual := a.HexSum()
	status := domain.Verified
	if !strings.EqualFold(actual, expected.Hex) {
		status = domain.Mismatch
	}
	return domain.VerificationResult{
		Status:   status,
		Algo:     a.algo,
		Expected: strings.ToLower(expected.Hex),
		Actual:   actual,
	}
}
