// Package pipeline wires resolve, download, decompress and extract
// into the end-to-end flow.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"wikidump/internal/catalog"
	"wikidump/internal/decompress"
	"wikidump/internal/domain"
	"wikidump/internal/download"
	"wikidump/internal/extract"
	"wikidump/internal/language"
	"wikidump/internal/resolver"
)

// ErrStop is returned by a record handler that has seen enough. The
// stream shuts down cleanly and Run reports success.
var ErrStop = errors.New("record handler requested stop")

// Handler receives each extracted record. Ownership of the record
// transfers to the handler.
type Handler func(*domain.Record) error

const (
	parseChunkSize = 128 * 1024
	// chunkChannelDepth bounds how far the file reader may run ahead
	// of the parser, capping memory at depth+1 chunks.
	chunkChannelDepth = 8
)

type Pipeline struct {
	resolver   *resolver.Resolver
	downloader *download.Downloader
	catalog    *catalog.Catalog
	dataDir    string
	logger     *zap.Logger
}

// New assembles a pipeline. The catalog is optional; without it every
// run re-verifies the local file.
func New(res *resolver.Resolver, dl *download.Downloader, cat *catalog.Catalog,
	dataDir string, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		resolver:   res,
		downloader: dl,
		catalog:    cat,
		dataDir:    dataDir,
		logger:     logger,
	}
}

// Options select which dump a run targets.
type Options struct {
	Language     language.Code
	NotOlderThan string
}

// Run executes resolve → download+verify → decompress → extract and
// hands each record to the handler. Any stage failure aborts the rest
// of the pipeline and is surfaced unmodified; there is no retry here.
func (p *Pipeline) Run(ctx context.Context, opts Options, handler Handler) error {
	destPath, err := p.Download(ctx, opts)
	if err != nil {
		// A failed or mismatched download never reaches the
		// decompression stage.
		return err
	}
	return p.Parse(ctx, destPath, handler)
}

// Download resolves the dump and produces the verified local file,
// returning its path.
func (p *Pipeline) Download(ctx context.Context, opts Options) (string, error) {
	runID := ksuid.New().String()
	log := p.logger.With(zap.String("run_id", runID))

	desc, err := p.resolver.Resolve(ctx, opts.Language, opts.NotOlderThan)
	if err != nil {
		return "", err
	}
	log.Info("resolved dump",
		zap.String("site", desc.Site),
		zap.String("date", desc.Date),
		zap.String("file", desc.Filename))

	destPath := filepath.Join(p.dataDir, desc.Site, desc.Date, desc.Filename)

	if p.alreadyVerified(ctx, desc, destPath) {
		log.Info("file already verified, skipping download", zap.String("path", destPath))
		return destPath, nil
	}

	res, err := p.downloader.Fetch(ctx, desc, destPath)
	if err != nil {
		return "", err
	}
	p.recordVerified(ctx, runID, desc, destPath, res, log)
	return destPath, nil
}

// alreadyVerified checks the catalog so a repeated run makes no
// network reads and no re-hash for a file it has already verified.
func (p *Pipeline) alreadyVerified(ctx context.Context, desc domain.DumpDescriptor, destPath string) bool {
	if p.catalog == nil {
		return false
	}
	row, err := p.catalog.FindVerified(ctx, desc.Site, desc.Date, desc.Filename)
	if err != nil || row == nil {
		return false
	}
	info, err := os.Stat(destPath)
	if err != nil {
		return false
	}
	return row.Size == 0 || info.Size() == row.Size
}

func (p *Pipeline) recordVerified(ctx context.Context, runID string, desc domain.DumpDescriptor,
	destPath string, res domain.VerificationResult, log *zap.Logger) {
	if p.catalog == nil || res.Status != domain.Verified {
		return
	}
	err := p.catalog.RecordDownload(ctx, catalog.Download{
		ID:         runID,
		Site:       desc.Site,
		Date:       desc.Date,
		Filename:   desc.Filename,
		Size:       desc.Size,
		Algo:       res.Algo,
		Digest:     res.Actual,
		Path:       destPath,
		VerifiedAt: time.Now(),
	})
	if err != nil {
		log.Warn("failed to record download in catalog", zap.Error(err))
	}
}

// Parse streams a verified local dump file through decompression and
// extraction. File reads and the CPU-bound decompress/parse work run
// as two goroutines joined by a bounded chunk channel, so network or
// disk wait overlaps parsing while memory stays capped at a few
// chunks.
func (p *Pipeline) Parse(ctx context.Context, path string, handler Handler) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open dump file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat dump file: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	chunks := make(chan []byte, chunkChannelDepth)

	g.Go(func() error {
		defer close(chunks)
		for {
			buf := make([]byte, parseChunkSize)
			n, rerr := f.Read(buf)
			if n > 0 {
				select {
				case chunks <- buf[:n]:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			if rerr == io.EOF {
				return nil
			}
			if rerr != nil {
				return fmt.Errorf("read dump file: %w", rerr)
			}
		}
	})

	compressed := decompress.NewCountingReader(&chunkReader{ch: chunks})
	plain := decompress.NewCountingReader(decompress.NewReader(compressed))
	ex := extract.NewExtractor(plain)

	var records int64
	g.Go(func() error {
		for {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := ex.Next()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			records++
			if err := handler(rec); err != nil {
				return err
			}
		}
	})

	err = g.Wait()
	if errors.Is(err, ErrStop) {
		p.logger.Info("record handler stopped the stream early",
			zap.Int64("records", records))
		return nil
	}
	if err != nil {
		return err
	}

	// Stream accounting: every compressed byte the file produced must
	// have been consumed, and every decompressed byte parsed.
	if got := compressed.Count(); got != info.Size() {
		return fmt.Errorf("%w: consumed %d of %d compressed bytes",
			domain.ErrTruncatedTransfer, got, info.Size())
	}
	p.logger.Info("parse complete",
		zap.Int64("records", records),
		zap.Int64("compressed_bytes", compressed.Count()),
		zap.Int64("decompressed_bytes", plain.Count()))
	return nil
}

// chunkReader adapts the bounded channel back into an io.Reader for
// the decompressor.
type chunkReader struct {
	ch  <-chan []byte
	rem []byte
}

func (r *chunkReader) Read(p []byte) (int, error) {
	for len(r.rem) == 0 {
		chunk, ok := <-r.ch
		if !ok {
			return 0, io.EOF
		}
		r.rem = chunk
	}
	n := copy(p, r.rem)
	r.rem = r.rem[n:]
	return n, nil
}
