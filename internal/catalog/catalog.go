// Package catalog persists the set of verified downloads so repeated
// runs can skip work they have already done. It is advisory: deleting
// the database only forces re-verification.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"wikidump/internal/domain"
)

type Catalog struct {
	db *sql.DB
}

// Download is one verified local dump file.
type Download struct {
	ID         string
	Site       string
	Date       string
	Filename   string
	Size       int64
	Algo       domain.Algo
	Digest     string
	Path       string
	VerifiedAt time.Time
}

func Open(dbPath string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create catalog directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// Ping makes sure the file is actually accessible and the DSN is valid
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
	}

	c := &Catalog{db: db}
	if err := c.runMigrations(); err != nil {
		return nil, fmt.Errorf("could not migrate catalog: %w", err)
	}
	return c, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

// RecordDownload upserts the row for a verified file, keyed by
// site/date/filename.
func (c *Catalog) RecordDownload(ctx context.Context, dl Download) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO downloads (
			id, site, dump_date, filename, size, algo, digest, path, verified_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(site, dump_date, filename) DO UPDATE SET
			size = excluded.size,
			algo = excluded.algo,
			digest = excluded.digest,
			path = excluded.path,
			verified_at = excluded.verified_at`,
		dl.ID, dl.Site, dl.Date, dl.Filename, dl.Size,
		string(dl.Algo), dl.Digest, dl.Path, dl.VerifiedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to record download %s: %w", dl.Filename, err)
	}
	return nil
}

// FindVerified returns the catalog row for a file, or (nil, nil) when
// it has never been verified.
func (c *Catalog) FindVerified(ctx context.Context, site, date, filename string) (*Download, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, site, dump_date, filename, size, algo, digest, path, verified_at
		FROM downloads
		WHERE site = ? AND dump_date = ? AND filename = ?
		LIMIT 1`, site, date, filename)

	var dl Download
	var algo, verifiedAt string
	err := row.Scan(&dl.ID, &dl.Site, &dl.Date, &dl.Filename, &dl.Size,
		&algo, &dl.Digest, &dl.Path, &verifiedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up download %s: %w", filename, err)
	}
	dl.Algo = domain.Algo(algo)
	if t, err := time.Parse(time.RFC3339, verifiedAt); err == nil {
		dl.VerifiedAt = t
	}
	return &dl, nil
}
