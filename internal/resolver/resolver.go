// Package resolver locates the most recent complete dump for a site
// from the remote index.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"go.uber.org/zap"

	"wikidump/internal/domain"
	"wikidump/internal/language"
)

// statusVersion is the only dump status file format we understand.
const statusVersion = "0.8"

// articlesJob is the status file job entry describing the single-file
// articles dump.
const articlesJob = "articlesdump"

type Resolver struct {
	client *http.Client

	// indexURL lists every site; baseURL is the mirror root per-site
	// listings and files hang off of.
	indexURL string
	baseURL  string

	// project is the site suffix appended to the language
	// abbreviation, e.g. "en" + "wiktionary".
	project string

	logger *zap.Logger
}

func New(client *http.Client, indexURL, baseURL string, logger *zap.Logger) *Resolver {
	if client == nil {
		client = http.DefaultClient
	}
	return &Resolver{
		client:   client,
		indexURL: indexURL,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		project:  "wiktionary",
		logger:   logger,
	}
}

// Languages lists the site languages present in the global index.
func (r *Resolver) Languages(ctx context.Context) ([]language.Code, error) {
	body, err := r.get(ctx, r.indexURL)
	if err != nil {
		return nil, err
	}

	var codes []language.Code
	for _, abbr := range ParseLanguages(body) {
		code, err := language.FromAbbreviation(abbr)
		if err != nil {
			r.logger.Warn("unknown language abbreviation in index", zap.String("abbr", abbr))
			continue
		}
		codes = append(codes, code)
	}
	return codes, nil
}

// Resolve returns the descriptor of the most recent complete dump for
// the given language, optionally constrained to dates not older than
// notOlderThan (YYYYMMDD, empty for no constraint).
func (r *Resolver) Resolve(ctx context.Context, code language.Code, notOlderThan string) (domain.DumpDescriptor, error) {
	site := code.String() + r.project

	listing, err := r.get(ctx, fmt.Sprintf("%s/%s/", r.baseURL, site))
	if err != nil {
		return domain.DumpDescriptor{}, err
	}

	dates := ParseDates(listing)
	if len(dates) == 0 {
		return domain.DumpDescriptor{}, fmt.Errorf("%w: no dump dates listed for %s", domain.ErrNotFound, site)
	}
	// Newest first. The newest date may still be in progress, so each
	// candidate's status file decides whether it is usable.
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	sawCandidate := false
	ambiguous := 0
	for _, date := range dates {
		if notOlderThan != "" && date < notOlderThan {
			break
		}
		sawCandidate = true

		desc, err := r.resolveDate(ctx, code, site, date)
		if err == nil {
			return desc, nil
		}
		switch {
		case isSkippable(err):
			r.logger.Debug("skipping dump date",
				zap.String("site", site), zap.String("date", date), zap.Error(err))
		default:
			ambiguous++
			r.logger.Warn("unusable dump status",
				zap.String("site", site), zap.String("date", date), zap.Error(err))
		}
	}

	if sawCandidate && ambiguous > 0 {
		return domain.DumpDescriptor{}, fmt.Errorf("%w: no candidate date had usable checksum metadata", domain.ErrAmbiguousIndex)
	}
	return domain.DumpDescriptor{}, fmt.Errorf("%w: no complete dump for %s not older than %q",
		domain.ErrNotFound, site, notOlderThan)
}

// errDumpIncomplete marks a candidate date that is simply not done yet.
var errDumpIncomplete = errors.New("dump not complete")

func isSkippable(err error) bool {
	return errors.Is(err, errDumpIncomplete)
}

func (r *Resolver) resolveDate(ctx context.Context, code language.Code, site, date string) (domain.DumpDescriptor, error) {
	body, err := r.get(ctx, fmt.Sprintf("%s/%s/%s/dumpstatus.json", r.baseURL, site, date))
	if err != nil {
		return domain.DumpDescriptor{}, fmt.Errorf("%w: %v", errDumpIncomplete, err)
	}

	var status statusFile
	if err := json.Unmarshal(body, &status); err != nil {
		return domain.DumpDescriptor{}, fmt.Errorf("parse dump status: %w", err)
	}
	if status.Version != statusVersion {
		return domain.DumpDescriptor{}, fmt.Errorf("unsupported dump status version %q", status.Version)
	}

	job, ok := status.Jobs[articlesJob]
	if !ok {
		return domain.DumpDescriptor{}, fmt.Errorf("dump status misses %q job", articlesJob)
	}
	if job.Status != "done" {
		return domain.DumpDescriptor{}, fmt.Errorf("%w: job status %q", errDumpIncomplete, job.Status)
	}
	if len(job.Files) != 1 {
		return domain.DumpDescriptor{}, fmt.Errorf("expected exactly one articles file, got %d", len(job.Files))
	}

	// The exact filename the articles dump must carry. A prefix or
	// suffix variant (multistream, partial) is not accepted.
	want := fmt.Sprintf("%s-%s-pages-articles.xml.bz2", site, date)
	for name, props := range job.Files {
		if name != want {
			return domain.DumpDescriptor{}, fmt.Errorf("unexpected articles filename %q, want %q", name, want)
		}

		desc := domain.DumpDescriptor{
			Site:     code.String(),
			Date:     date,
			Filename: name,
			URL:      r.baseURL + props.URL,
			Size:     props.Size,
		}
		if props.URL == "" {
			desc.URL = fmt.Sprintf("%s/%s/%s/%s", r.baseURL, site, date, name)
		}
		if props.MD5 != "" {
			desc.Checksums = append(desc.Checksums, domain.Checksum{Algo: domain.AlgoMD5, Hex: props.MD5})
		}
		if props.SHA1 != "" {
			desc.Checksums = append(desc.Checksums, domain.Checksum{Algo: domain.AlgoSHA1, Hex: props.SHA1})
		}

		// Older deployments leave the digests out of the status file
		// and publish a companion checksum listing instead.
		if len(desc.Checksums) == 0 {
			desc.Checksums = r.companionChecksums(ctx, site, date, name)
		}
		if len(desc.Checksums) == 0 {
			r.logger.Warn("no checksum advertised, verification will be advisory",
				zap.String("file", name))
		}
		return desc, nil
	}
	return domain.DumpDescriptor{}, fmt.Errorf("expected exactly one articles file")
}

// companionChecksums consults the per-date checksum listings. A missing
// listing is not an error: the descriptor is still usable, verification
// just becomes advisory.
func (r *Resolver) companionChecksums(ctx context.Context, site, date, filename string) []domain.Checksum {
	var sums []domain.Checksum
	for _, listing := range []string{"sha1sums", "md5sums"} {
		url := fmt.Sprintf("%s/%s/%s/%s-%s-%s.txt", r.baseURL, site, date, site, date, listing)
		body, err := r.get(ctx, url)
		if err != nil {
			continue
		}
		for name, entry := range ParseChecksumListing(body) {
			if name == filename {
				sums = append(sums, entry...)
			}
		}
	}
	return sums
}

func (r *Resolver) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIndexUnreachable, err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIndexUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %d", domain.ErrIndexUnreachable, url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

type statusFile struct {
	Version string               `json:"version"`
	Jobs    map[string]statusJob `json:"jobs"`
}

type statusJob struct {
	Status  string                     `json:"status"`
	Updated string                     `json:"updated"`
	Files   map[string]statusFileEntry `json:"files"`
}

type statusFileEntry struct {
	Size int64  `json:"size"`
	URL  string `json:"url"`
	MD5  string `json:"md5"`
	SHA1 string `json:"sha1"`
}
