// Package download streams a resolved dump file to local storage with
// resume support and checksum verification.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"wikidump/internal/checksum"
	"wikidump/internal/domain"
)

const copyBufferSize = 256 * 1024

type Downloader struct {
	client           *http.Client
	idleTimeout      time.Duration
	progressInterval time.Duration
	preference       []domain.Algo
	logger           *zap.Logger

	// bytesWritten covers the download currently in flight, including
	// any resumed prefix. Reporting only; a Downloader runs one Fetch
	// at a time.
	bytesWritten atomic.Int64
}

func New(client *http.Client, idleTimeout, progressInterval time.Duration,
	preference []domain.Algo, logger *zap.Logger) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	if len(preference) == 0 {
		preference = checksum.DefaultPreference
	}
	return &Downloader{
		client:           client,
		idleTimeout:      idleTimeout,
		progressInterval: progressInterval,
		preference:       preference,
		logger:           logger,
	}
}

// BytesWritten is the monotonically increasing progress counter of the
// in-flight download.
func (d *Downloader) BytesWritten() int64 { return d.bytesWritten.Load() }

// Fetch produces a verified local file at destPath whose bytes match
// the remote resource. A partial file at destPath+".part" is resumed
// with a range request; a server that ignores the range restarts the
// transfer from zero. On checksum mismatch the local file is removed
// before the error is returned.
func (d *Downloader) Fetch(ctx context.Context, desc domain.DumpDescriptor, destPath string) (domain.VerificationResult, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return domain.VerificationResult{}, fmt.Errorf("create destination directory: %w", err)
	}

	expected, hasChecksum := checksum.Select(desc.Checksums, d.preference)

	// A finished file needs no network reads, only re-verification.
	if _, err := os.Stat(destPath); err == nil {
		d.logger.Info("file already downloaded, verifying", zap.String("path", destPath))
		return d.verifyExisting(destPath, expected, hasChecksum)
	}

	partPath := destPath + ".part"
	f, err := os.OpenFile(partPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return domain.VerificationResult{}, fmt.Errorf("open partial file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return domain.VerificationResult{}, fmt.Errorf("stat partial file: %w", err)
	}
	resumeFrom := info.Size()

	var acc *checksum.Accumulator
	if hasChecksum {
		if acc, err = checksum.New(expected.Algo); err != nil {
			return domain.VerificationResult{}, err
		}
		// The digest must cover the resumed prefix too.
		if resumeFrom > 0 {
			if _, err := io.Copy(acc, f); err != nil {
				return domain.VerificationResult{}, fmt.Errorf("rehash partial file: %w", err)
			}
		}
	}
	d.bytesWritten.Store(resumeFrom)

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, desc.URL, nil)
	if err != nil {
		return domain.VerificationResult{}, &domain.NetworkError{Op: "request", Err: err}
	}
	if resumeFrom > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", resumeFrom))
		d.logger.Info("resuming download",
			zap.String("url", desc.URL),
			zap.String("resume_from", humanize.IBytes(uint64(resumeFrom))))
	} else {
		d.logger.Info("starting download", zap.String("url", desc.URL))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return domain.VerificationResult{}, &domain.NetworkError{Op: "request", Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			return domain.VerificationResult{}, fmt.Errorf("seek partial file: %w", err)
		}
	case http.StatusOK:
		// Server ignored the range: restart from zero rather than
		// stitching untrusted bytes onto the partial.
		if resumeFrom > 0 {
			d.logger.Warn("server ignored range request, restarting from zero")
			if err := f.Truncate(0); err != nil {
				return domain.VerificationResult{}, fmt.Errorf("truncate partial file: %w", err)
			}
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return domain.VerificationResult{}, fmt.Errorf("seek partial file: %w", err)
			}
			if hasChecksum {
				if acc, err = checksum.New(expected.Algo); err != nil {
					return domain.VerificationResult{}, err
				}
			}
			d.bytesWritten.Store(0)
		}
	default:
		return domain.VerificationResult{}, &domain.NetworkError{
			Op:  "request",
			Err: fmt.Errorf("server returned status %d", resp.StatusCode),
		}
	}

	body := newIdleReader(resp.Body, d.idleTimeout, cancel)
	if err := d.stream(ctx, body, f, acc, desc.Size); err != nil {
		return domain.VerificationResult{}, err
	}

	written := d.bytesWritten.Load()
	if desc.Size > 0 && written != desc.Size {
		// Keep the partial so a later run can resume it.
		return domain.VerificationResult{}, fmt.Errorf("%w: received %d of %d bytes",
			domain.ErrTruncatedTransfer, written, desc.Size)
	}

	if !hasChecksum {
		d.logger.Warn("no checksum advertised, accepting download unverified",
			zap.String("file", desc.Filename))
		if err := d.finalize(f, partPath, destPath); err != nil {
			return domain.VerificationResult{}, err
		}
		return domain.VerificationResult{Status: domain.Unavailable}, nil
	}

	res := acc.Verify(expected)
	if res.Status == domain.Mismatch {
		f.Close()
		if err := os.Remove(partPath); err != nil {
			d.logger.Error("failed to remove mismatched download", zap.Error(err))
		}
		return res, &domain.ChecksumMismatchError{
			Algo:     res.Algo,
			Expected: res.Expected,
			Actual:   res.Actual,
		}
	}

	if err := d.finalize(f, partPath, destPath); err != nil {
		return domain.VerificationResult{}, err
	}
	d.logger.Info("download verified",
		zap.String("path", destPath),
		zap.String("algo", string(res.Algo)),
		zap.String("size", humanize.IBytes(uint64(written))))
	return res, nil
}

// stream copies the response body into the file and digest, logging
// progress periodically.
func (d *Downloader) stream(ctx context.Context, body *idleReader, f *os.File,
	acc *checksum.Accumulator, expectedSize int64) error {
	buf := make([]byte, copyBufferSize)
	start := time.Now()
	startBytes := d.bytesWritten.Load()
	lastLog := start

	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return fmt.Errorf("write partial file: %w", werr)
			}
			if acc != nil {
				acc.Write(buf[:n])
			}
			total := d.bytesWritten.Add(int64(n))

			if now := time.Now(); now.Sub(lastLog) >= d.progressInterval {
				d.logProgress(total, startBytes, expectedSize, start, now)
				lastLog = now
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			if body.timedOut() {
				return &domain.NetworkError{
					Op:  "read",
					Err: fmt.Errorf("no data for %s: %w", d.idleTimeout, rerr),
				}
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &domain.NetworkError{Op: "read", Err: rerr}
		}
	}
}

func (d *Downloader) logProgress(total, startBytes, expectedSize int64, start, now time.Time) {
	fields := []zap.Field{
		zap.String("written", humanize.IBytes(uint64(total))),
	}
	elapsed := now.Sub(start).Seconds()
	if elapsed > 0 {
		rate := float64(total-startBytes) / elapsed
		fields = append(fields, zap.String("rate", humanize.IBytes(uint64(rate))+"/s"))
		if expectedSize > 0 && rate > 0 {
			fields = append(fields,
				zap.String("total", humanize.IBytes(uint64(expectedSize))),
				zap.String("percent", fmt.Sprintf("%.1f%%", float64(total)/float64(expectedSize)*100)),
				zap.Duration("eta", time.Duration(float64(expectedSize-total)/rate)*time.Second),
			)
		}
	}
	d.logger.Info("downloading", fields...)
}

func (d *Downloader) finalize(f *os.File, partPath, destPath string) error {
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync partial file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close partial file: %w", err)
	}
	if err := os.Rename(partPath, destPath); err != nil {
		return fmt.Errorf("finalize download: %w", err)
	}
	return nil
}

// verifyExisting re-hashes a completed file in place. A mismatched
// file is removed so the next run downloads it fresh.
func (d *Downloader) verifyExisting(destPath string, expected domain.Checksum, hasChecksum bool) (domain.VerificationResult, error) {
	if !hasChecksum {
		return domain.VerificationResult{Status: domain.Unavailable}, nil
	}
	acc, err := checksum.New(expected.Algo)
	if err != nil {
		return domain.VerificationResult{}, err
	}
	f, err := os.Open(destPath)
	if err != nil {
		return domain.VerificationResult{}, fmt.Errorf("open existing file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(acc, f); err != nil {
		return domain.VerificationResult{}, fmt.Errorf("hash existing file: %w", err)
	}

	res := acc.Verify(expected)
	if res.Status == domain.Mismatch {
		f.Close()
		if err := os.Remove(destPath); err != nil {
			d.logger.Error("failed to remove mismatched file", zap.Error(err))
		}
		return res, &domain.ChecksumMismatchError{
			Algo:     res.Algo,
			Expected: res.Expected,
			Actual:   res.Actual,
		}
	}
	return res, nil
}

// idleReader cancels the request when no bytes arrive within the idle
// window. Only per-read activity is bounded; there is no overall
// transfer deadline.
type idleReader struct {
	r       io.Reader
	timeout time.Duration
	timer   *time.Timer
	tripped atomic.Bool
}

func newIdleReader(r io.Reader, timeout time.Duration, cancel context.CancelFunc) *idleReader {
	ir := &idleReader{r: r, timeout: timeout}
	if timeout > 0 {
		ir.timer = time.AfterFunc(timeout, func() {
			ir.tripped.Store(true)
			cancel()
		})
	}
	return ir
}

func (ir *idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if ir.timer != nil {
		if err != nil {
			ir.timer.Stop()
		} else {
			ir.timer.Reset(ir.timeout)
		}
	}
	return n, err
}

func (ir *idleReader) timedOut() bool { return ir.tripped.Load() }
