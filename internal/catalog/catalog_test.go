package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wikidump/internal/domain"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRecordAndFind(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	dl := Download{
		ID:         ksuid.New().String(),
		Site:       "en",
		Date:       "20240110",
		Filename:   "enwiktionary-20240110-pages-articles.xml.bz2",
		Size:       557,
		Algo:       domain.AlgoSHA1,
		Digest:     "250451635784d073e45075ac6b437f4e2f5d50d0",
		Path:       "/data/en/20240110/enwiktionary-20240110-pages-articles.xml.bz2",
		VerifiedAt: time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, c.RecordDownload(ctx, dl))

	got, err := c.FindVerified(ctx, dl.Site, dl.Date, dl.Filename)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, dl.ID, got.ID)
	assert.Equal(t, dl.Size, got.Size)
	assert.Equal(t, dl.Algo, got.Algo)
	assert.Equal(t, dl.Digest, got.Digest)
	assert.Equal(t, dl.Path, got.Path)
	assert.True(t, dl.VerifiedAt.Equal(got.VerifiedAt))
}

func TestFindUnknownReturnsNil(t *testing.T) {
	c := openTestCatalog(t)

	got, err := c.FindVerified(context.Background(), "fi", "20240101", "missing.xml.bz2")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRecordDownloadUpserts(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	dl := Download{
		ID:         ksuid.New().String(),
		Site:       "de",
		Date:       "20240110",
		Filename:   "dewiktionary-20240110-pages-articles.xml.bz2",
		Size:       100,
		Algo:       domain.AlgoMD5,
		Digest:     "5feaf6a5547aae18408c7cf189eb5968",
		Path:       "/data/a",
		VerifiedAt: time.Now().UTC(),
	}
	require.NoError(t, c.RecordDownload(ctx, dl))

	// Re-verifying the same file updates the row in place; the key is
	// site/date/filename, not the run id.
	updated := dl
	updated.ID = ksuid.New().String()
	updated.Size = 200
	updated.Path = "/data/b"
	require.NoError(t, c.RecordDownload(ctx, updated))

	got, err := c.FindVerified(ctx, dl.Site, dl.Date, dl.Filename)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, dl.ID, got.ID, "original id survives the upsert")
	assert.Equal(t, int64(200), got.Size)
	assert.Equal(t, "/data/b", got.Path)
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "catalog.db")
	c, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	c, err = Open(path)
	require.NoError(t, err)
	assert.NoError(t, c.Close())
}
