package resolver

import (
	"bufio"
	"bytes"
	"regexp"
	"sort"
	"strings"

	"wikidump/internal/checksum"
	"wikidump/internal/domain"
)

// The index documents are loosely structured HTML listings, so
// candidates are extracted by pattern matching rather than a parsed
// document tree. These functions are pure so they can be tested
// against recorded sample documents.

var (
	languageRe = regexp.MustCompile(`<a href="([a-z\-]{2,20})wiktionary/[0-9]{8}">`)
	dateRe     = regexp.MustCompile(`<a href="[^"]*?([0-9]{8})/?">`)
)

// ParseLanguages extracts the site language abbreviations from the
// global backup index listing. Duplicates are collapsed.
func ParseLanguages(body []byte) []string {
	seen := make(map[string]bool)
	var abbrs []string
	for _, m := range languageRe.FindAllSubmatch(body, -1) {
		abbr := string(m[1])
		if !seen[abbr] {
			seen[abbr] = true
			abbrs = append(abbrs, abbr)
		}
	}
	return abbrs
}

// ParseDates extracts the YYYYMMDD dump dates from a per-site listing,
// sorted ascending, unique.
func ParseDates(body []byte) []string {
	seen := make(map[string]bool)
	var dates []string
	for _, m := range dateRe.FindAllSubmatch(body, -1) {
		date := string(m[1])
		if !seen[date] {
			seen[date] = true
			dates = append(dates, date)
		}
	}
	sort.Strings(dates)
	return dates
}

// ParseChecksumListing parses a companion checksum resource: one
// "<hex>  <filename>" line per file. The digest algorithm is inferred
// from the digest length. Unparseable lines are skipped.
func ParseChecksumListing(body []byte) map[string][]domain.Checksum {
	sums := make(map[string][]domain.Checksum)
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		hexDigest, name := fields[0], fields[1]
		algo, ok := checksum.InferAlgo(hexDigest)
		if !ok {
			continue
		}
		sums[name] = append(sums[name], domain.Checksum{Algo: algo, Hex: strings.ToLower(hexDigest)})
	}
	return sums
}
