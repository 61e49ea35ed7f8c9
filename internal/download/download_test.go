package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wikidump/internal/domain"
	"wikidump/internal/logging"
)

var payload = []byte(strings.Repeat("wiki dump payload block. ", 100))

func payloadDescriptor(url string) domain.DumpDescriptor {
	sum := sha256.Sum256(payload)
	return domain.DumpDescriptor{
		Site:     "en",
		Date:     "20240110",
		Filename: "enwiktionary-20240110-pages-articles.xml.bz2",
		URL:      url,
		Size:     int64(len(payload)),
		Checksums: []domain.Checksum{
			{Algo: domain.AlgoSHA256, Hex: hex.EncodeToString(sum[:])},
		},
	}
}

// payloadServer serves the payload with range support, the way the
// real mirror answers resume requests.
func payloadServer(t *testing.T, requests *[]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests != nil {
			*requests = append(*requests, r.Header.Get("Range"))
		}
		from := 0
		if rng := r.Header.Get("Range"); rng != "" {
			fmt.Sscanf(rng, "bytes=%d-", &from)
			w.Header().Set("Content-Range",
				fmt.Sprintf("bytes %d-%d/%d", from, len(payload)-1, len(payload)))
			w.WriteHeader(http.StatusPartialContent)
		}
		w.Write(payload[from:])
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestDownloader(client *http.Client) *Downloader {
	return New(client, 5*time.Second, time.Hour, nil, logging.NewNop())
}

func TestFetchFreshDownload(t *testing.T) {
	srv := payloadServer(t, nil)
	dest := filepath.Join(t.TempDir(), "dump.xml.bz2")

	res, err := newTestDownloader(srv.Client()).Fetch(context.Background(), payloadDescriptor(srv.URL), dest)
	require.NoError(t, err)
	assert.Equal(t, domain.Verified, res.Status)
	assert.Equal(t, domain.AlgoSHA256, res.Algo)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	_, err = os.Stat(dest + ".part")
	assert.True(t, os.IsNotExist(err), "partial file must be renamed away")
}

func TestFetchResumesPartialFile(t *testing.T) {
	var requests []string
	srv := payloadServer(t, &requests)
	dest := filepath.Join(t.TempDir(), "dump.xml.bz2")

	// A previous run left the first 100 bytes behind.
	require.NoError(t, os.WriteFile(dest+".part", payload[:100], 0644))

	res, err := newTestDownloader(srv.Client()).Fetch(context.Background(), payloadDescriptor(srv.URL), dest)
	require.NoError(t, err)
	assert.Equal(t, domain.Verified, res.Status)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	require.Len(t, requests, 1)
	assert.Equal(t, "bytes=100-", requests[0])
}

func TestFetchRestartsWhenRangeIgnored(t *testing.T) {
	// Serve the full payload with 200 regardless of the Range header.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	dest := filepath.Join(t.TempDir(), "dump.xml.bz2")

	// Stale partial content that must not end up stitched into the file.
	require.NoError(t, os.WriteFile(dest+".part", []byte("stale stale stale"), 0644))

	res, err := newTestDownloader(srv.Client()).Fetch(context.Background(), payloadDescriptor(srv.URL), dest)
	require.NoError(t, err)
	assert.Equal(t, domain.Verified, res.Status)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestFetchChecksumMismatchRemovesFile(t *testing.T) {
	srv := payloadServer(t, nil)
	dest := filepath.Join(t.TempDir(), "dump.xml.bz2")

	desc := payloadDescriptor(srv.URL)
	desc.Checksums[0].Hex = strings.Repeat("0", 64)

	res, err := newTestDownloader(srv.Client()).Fetch(context.Background(), desc, dest)
	var mismatch *domain.ChecksumMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, domain.Mismatch, res.Status)
	assert.Equal(t, domain.AlgoSHA256, mismatch.Algo)

	// Neither the final file nor the partial survives a mismatch.
	_, err = os.Stat(dest)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(dest + ".part")
	assert.True(t, os.IsNotExist(err))
}

func TestFetchTruncatedTransferKeepsPartial(t *testing.T) {
	// The server advertises the full length but hangs up early.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Write(payload[:200])
	}))
	t.Cleanup(srv.Close)
	dest := filepath.Join(t.TempDir(), "dump.xml.bz2")

	_, err := newTestDownloader(srv.Client()).Fetch(context.Background(), payloadDescriptor(srv.URL), dest)
	require.Error(t, err)

	// The partial remains so the next run resumes instead of starting
	// over.
	info, statErr := os.Stat(dest + ".part")
	require.NoError(t, statErr)
	assert.Equal(t, int64(200), info.Size())
	_, statErr = os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

func TestFetchVerifiesExistingFile(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "dump.xml.bz2")
	require.NoError(t, os.WriteFile(dest, payload, 0644))

	// No server at all: a finished file is verified without network
	// access.
	desc := payloadDescriptor("http://127.0.0.1:0/unreachable")
	res, err := newTestDownloader(nil).Fetch(context.Background(), desc, dest)
	require.NoError(t, err)
	assert.Equal(t, domain.Verified, res.Status)
}

func TestFetchExistingFileMismatchRemoved(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "dump.xml.bz2")
	require.NoError(t, os.WriteFile(dest, []byte("rotted bytes"), 0644))

	desc := payloadDescriptor("http://127.0.0.1:0/unreachable")
	_, err := newTestDownloader(nil).Fetch(context.Background(), desc, dest)
	var mismatch *domain.ChecksumMismatchError
	require.ErrorAs(t, err, &mismatch)

	_, err = os.Stat(dest)
	assert.True(t, os.IsNotExist(err))
}

func TestFetchNoChecksumIsUnavailable(t *testing.T) {
	srv := payloadServer(t, nil)
	dest := filepath.Join(t.TempDir(), "dump.xml.bz2")

	desc := payloadDescriptor(srv.URL)
	desc.Checksums = nil

	res, err := newTestDownloader(srv.Client()).Fetch(context.Background(), desc, dest)
	require.NoError(t, err)
	assert.Equal(t, domain.Unavailable, res.Status)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestFetchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "shard down", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	dest := filepath.Join(t.TempDir(), "dump.xml.bz2")

	_, err := newTestDownloader(srv.Client()).Fetch(context.Background(), payloadDescriptor(srv.URL), dest)
	var netErr *domain.NetworkError
	require.ErrorAs(t, err, &netErr)
}

func TestFetchIdleTimeout(t *testing.T) {
	stall := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Write(payload[:50])
		w.(http.Flusher).Flush()
		<-stall
	}))
	t.Cleanup(func() { close(stall); srv.Close() })
	dest := filepath.Join(t.TempDir(), "dump.xml.bz2")

	d := New(srv.Client(), 50*time.Millisecond, time.Hour, nil, logging.NewNop())
	_, err := d.Fetch(context.Background(), payloadDescriptor(srv.URL), dest)
	var netErr *domain.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, "read", netErr.Op)
}
