package domain

// Algo identifies a digest algorithm advertised by the dump index.
type Algo string

const (
	AlgoMD5    Algo = "md5"
	AlgoSHA1   Algo = "sha1"
	AlgoSHA256 Algo = "sha256"
)

// Checksum is one advertised digest for a dump file.
type Checksum struct {
	Algo Algo
	Hex  string
}

// DumpDescriptor identifies a single downloadable dump file. It is
// immutable once resolved: the resolver builds it, the downloader and
// catalog only read it.
type DumpDescriptor struct {
	// Site is the wiki subdomain abbreviation, e.g. "en" or "de".
	Site string

	// Date is the dump run date in YYYYMMDD form.
	Date string

	Filename string
	URL      string

	// Size is the declared byte size, or 0 when the index does not
	// state one.
	Size int64

	// Checksums holds every digest the index advertises for this file.
	// Empty means verification is advisory only.
	Checksums []Checksum
}

// Checksum returns the advertised digest for the given algorithm and
// whether one exists.
func (d DumpDescriptor) Checksum(algo Algo) (Checksum, bool) {
	for _, c := range d.Checksums {
		if c.Algo == algo {
			return c, true
		}
	}
	return Checksum{}, false
}
