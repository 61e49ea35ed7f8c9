// Package extract yields one record at a time from a continuous
// decompressed dump stream. The parser is a small explicit state
// machine fed by chunks of unspecified size, so it never needs the
// whole document in memory and never assumes tag or text boundaries
// align with chunk boundaries.
package extract

import (
	"fmt"
	"html"
	"io"
	"strconv"

	"wikidump/internal/domain"
)

// recordTag opens one logical record in the articles dump.
const recordTag = "page"

const readChunkSize = 32 * 1024

type state int

const (
	stateSeeking state = iota
	stateInRecord
	stateInField
	stateDone
)

// Extractor consumes a forward byte stream and produces records in
// archive order. It is forward-only: the source is not seekable, so
// the sequence cannot be restarted after the first pass.
type Extractor struct {
	r     io.Reader
	tok   tokenizer
	chunk []byte

	state state
	// stack holds the open container tags of the current record
	// (page, revision, contributor). The top entry decides how a
	// field name is interpreted.
	stack []string
	// skip counts open unrecognized tags being discarded. Dump
	// formats grow optional metadata fields over time; siblings we
	// do not know are depth-tracked and dropped, not rejected.
	skip     int
	field    string
	fieldBuf []byte
	rec      *domain.Record

	srcDone bool
}

func NewExtractor(r io.Reader) *Extractor {
	return &Extractor{r: r, chunk: make([]byte, readChunkSize)}
}

// Offset is the absolute byte position consumed from the decompressed
// stream, for diagnostics only.
func (x *Extractor) Offset() int64 { return x.tok.offset }

// Next returns the next record, io.EOF at clean stream end, or an
// error describing where the stream went wrong. After io.EOF or any
// error the extractor is exhausted.
func (x *Extractor) Next() (*domain.Record, error) {
	if x.state == stateDone {
		return nil, io.EOF
	}

	for {
		ev, ok, err := x.tok.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			if x.srcDone {
				if x.state == stateSeeking {
					x.state = stateDone
					return nil, io.EOF
				}
				x.state = stateDone
				return nil, &domain.UnexpectedEOFError{Offset: x.tok.end()}
			}
			n, err := x.r.Read(x.chunk)
			if n > 0 {
				x.tok.feed(x.chunk[:n])
			}
			if err == io.EOF {
				x.srcDone = true
			} else if err != nil {
				return nil, err
			}
			continue
		}

		rec, err := x.apply(ev)
		if err != nil {
			x.state = stateDone
			return nil, err
		}
		if rec != nil {
			return rec, nil
		}
	}
}

func (x *Extractor) apply(ev event) (*domain.Record, error) {
	switch x.state {
	case stateSeeking:
		// Everything outside a record (siteinfo, the toplevel
		// element, whitespace) streams past until the next record
		// opens.
		if ev.kind == evStart && ev.name == recordTag {
			x.rec = &domain.Record{}
			x.stack = append(x.stack[:0], recordTag)
			x.skip = 0
			x.state = stateInRecord
		}
		return nil, nil
	case stateInRecord:
		return x.applyInRecord(ev)
	case stateInField:
		return nil, x.applyInField(ev)
	}
	return nil, nil
}

func (x *Extractor) applyInRecord(ev event) (*domain.Record, error) {
	if x.skip > 0 {
		switch ev.kind {
		case evStart:
			x.skip++
		case evEnd:
			x.skip--
		}
		return nil, nil
	}

	ctx := x.stack[len(x.stack)-1]

	switch ev.kind {
	case evStart:
		if isContainer(ctx, ev.name) {
			x.stack = append(x.stack, ev.name)
			return nil, nil
		}
		if isScalarField(ctx, ev.name) {
			x.field = ev.name
			x.fieldBuf = x.fieldBuf[:0]
			x.state = stateInField
			return nil, nil
		}
		x.skip = 1
		return nil, nil

	case evEmpty:
		x.applyEmpty(ctx, ev)
		return nil, nil

	case evEnd:
		if ev.name != ctx {
			return nil, &domain.MalformedStructureError{Offset: ev.offset, Tag: ev.name}
		}
		x.stack = x.stack[:len(x.stack)-1]
		if len(x.stack) == 0 {
			rec := x.rec
			x.rec = nil
			x.state = stateSeeking
			return rec, nil
		}
		return nil, nil

	case evText:
		// Whitespace between tags; anything else is tolerated and
		// dropped.
		return nil, nil
	}
	return nil, nil
}

func (x *Extractor) applyInField(ev event) error {
	switch ev.kind {
	case evText:
		x.fieldBuf = append(x.fieldBuf, ev.text...)
		return nil
	case evEnd:
		if ev.name != x.field {
			return &domain.MalformedStructureError{Offset: ev.offset, Tag: ev.name}
		}
		ctx := x.stack[len(x.stack)-1]
		if err := x.setField(ctx, x.field, unescape(x.fieldBuf), ev.offset); err != nil {
			return err
		}
		x.state = stateInRecord
		return nil
	default:
		// Scalar fields hold character data only.
		return &domain.MalformedStructureError{Offset: ev.offset, Tag: ev.name}
	}
}

func (x *Extractor) applyEmpty(ctx string, ev event) {
	switch {
	case ctx == recordTag && ev.name == "redirect":
		x.rec.Redirect = ev.attrs["title"]
	case ctx == "revision" && ev.name == "minor":
		x.rec.Revision.Minor = true
	case ctx == "revision" && ev.name == "text":
		// Empty body: the field is present with an empty string.
		x.rec.Revision.Text = ""
	}
	// Other empty tags (empty comment, empty contributor) carry no data.
}

func isContainer(ctx, name string) bool {
	switch ctx {
	case recordTag:
		return name == "revision"
	case "revision":
		return name == "contributor"
	}
	return false
}

func isScalarField(ctx, name string) bool {
	switch ctx {
	case recordTag:
		switch name {
		case "title", "ns", "id":
			return true
		}
	case "revision":
		switch name {
		case "id", "parentid", "timestamp", "comment", "model", "format", "sha1", "text":
			return true
		}
	case "contributor":
		switch name {
		case "username", "id", "ip":
			return true
		}
	}
	return false
}

func (x *Extractor) setField(ctx, name, value string, offset int64) error {
	switch ctx {
	case recordTag:
		switch name {
		case "title":
			x.rec.Title = value
		case "ns":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("ns is not an integer at byte %d: %q", offset, value)
			}
			x.rec.Namespace = n
		case "id":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("id is not an integer at byte %d: %q", offset, value)
			}
			x.rec.ID = n
		}
	case "revision":
		rev := &x.rec.Revision
		switch name {
		case "id", "parentid":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("%s is not an integer at byte %d: %q", name, offset, value)
			}
			if name == "id" {
				rev.ID = n
			} else {
				rev.ParentID = n
			}
		case "timestamp":
			rev.Timestamp = value
		case "comment":
			rev.Comment = value
		case "model":
			rev.Model = value
		case "format":
			rev.Format = value
		case "sha1":
			rev.SHA1 = value
		case "text":
			rev.Text = value
		}
	case "contributor":
		c := &x.rec.Revision.Contributor
		switch name {
		case "username":
			c.Username = value
		case "id":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("contributor id is not an integer at byte %d: %q", offset, value)
			}
			c.ID = n
		case "ip":
			c.IP = value
		}
	}
	return nil
}

// unescape resolves character entities (&amp; &lt; &#65; ...) in text
// content before it is exposed to the caller. Entities split across
// chunk boundaries are whole by the time the field closes, because
// unescaping happens on the assembled field value.
func unescape(raw []byte) string {
	return html.UnescapeString(string(raw))
}
