package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wikidump/internal/domain"
)

const indexListing = `<html><body>
<ul>
<li><a href="enwiktionary/20240120">enwiktionary</a></li>
<li><a href="dewiktionary/20240118">dewiktionary</a></li>
<li><a href="enwiki/20240120">enwiki</a></li>
<li><a href="bat-smgwiktionary/20240115">bat-smgwiktionary</a></li>
<li><a href="enwiktionary/20240101">enwiktionary (old)</a></li>
</ul>
</body></html>`

const siteListing = `<html><body><pre>
<a href="../">../</a>
<a href="20240101/">20240101/</a>
<a href="20240120/">20240120/</a>
<a href="20240110/">20240110/</a>
<a href="latest/">latest/</a>
</pre></body></html>`

func TestParseLanguages(t *testing.T) {
	abbrs := ParseLanguages([]byte(indexListing))
	// wiki (non-wiktionary) links are ignored, duplicates collapse,
	// hyphenated abbreviations survive.
	assert.Equal(t, []string{"en", "de", "bat-smg"}, abbrs)
}

func TestParseDates(t *testing.T) {
	dates := ParseDates([]byte(siteListing))
	assert.Equal(t, []string{"20240101", "20240110", "20240120"}, dates)
}

func TestParseDatesEmptyListing(t *testing.T) {
	assert.Empty(t, ParseDates([]byte(`<html><body>nothing here</body></html>`)))
}

func TestParseChecksumListing(t *testing.T) {
	listing := `5feaf6a5547aae18408c7cf189eb5968  enwiktionary-20240120-pages-articles.xml.bz2
250451635784d073e45075ac6b437f4e2f5d50d0  enwiktionary-20240120-pages-articles.xml.bz2
not-a-digest  some-file.bz2
trailing garbage line with too many fields
`
	sums := ParseChecksumListing([]byte(listing))
	require.Len(t, sums, 1)

	entries := sums["enwiktionary-20240120-pages-articles.xml.bz2"]
	require.Len(t, entries, 2)
	assert.Equal(t, domain.Checksum{Algo: domain.AlgoMD5, Hex: "5feaf6a5547aae18408c7cf189eb5968"}, entries[0])
	assert.Equal(t, domain.Checksum{Algo: domain.AlgoSHA1, Hex: "250451635784d073e45075ac6b437f4e2f5d50d0"}, entries[1])
}
