package extract

import (
	"bytes"
	"fmt"
	"strings"
)

type eventKind int

const (
	evStart eventKind = iota
	evEnd
	evEmpty
	evText
)

// event is one complete structural token from the stream. Text events
// may cover only part of a text node; the builder accumulates them.
type event struct {
	kind   eventKind
	name   string
	attrs  map[string]string
	text   []byte
	offset int64
}

// tokenizer turns arbitrarily sized byte chunks into events. It is the
// boundary state carried between extraction calls: buf holds the
// unconsumed suffix of everything fed so far and offset is the
// absolute stream position of buf[0]. A tag or entity split across
// chunks stays in buf until the rest arrives, so no byte is dropped or
// duplicated regardless of how the input is chunked.
type tokenizer struct {
	buf    []byte
	offset int64
}

func (t *tokenizer) feed(p []byte) {
	t.buf = append(t.buf, p...)
}

// pending reports whether unconsumed bytes are buffered.
func (t *tokenizer) pending() bool { return len(t.buf) > 0 }

// end is the absolute offset just past everything fed so far.
func (t *tokenizer) end() int64 { return t.offset + int64(len(t.buf)) }

func (t *tokenizer) consume(n int) {
	t.buf = t.buf[n:]
	t.offset += int64(n)
}

// next returns the next complete event. ok is false when the buffered
// suffix does not yet contain a complete token; feed more input and
// call again.
func (t *tokenizer) next() (event, bool, error) {
	if len(t.buf) == 0 {
		return event{}, false, nil
	}

	if t.buf[0] != '<' {
		// Text run up to the next tag. Emitting the available prefix
		// immediately keeps memory bounded on huge text nodes.
		end := bytes.IndexByte(t.buf, '<')
		if end == -1 {
			end = len(t.buf)
		}
		ev := event{kind: evText, text: append([]byte(nil), t.buf[:end]...), offset: t.offset}
		t.consume(end)
		return ev, true, nil
	}

	// Markup declarations and processing instructions are skipped.
	if bytes.HasPrefix(t.buf, []byte("<!--")) {
		end := bytes.Index(t.buf, []byte("-->"))
		if end == -1 {
			return event{}, false, nil
		}
		t.consume(end + 3)
		return t.next()
	}
	if bytes.HasPrefix(t.buf, []byte("<?")) {
		end := bytes.Index(t.buf, []byte("?>"))
		if end == -1 {
			return event{}, false, nil
		}
		t.consume(end + 2)
		return t.next()
	}

	end := t.tagEnd()
	if end == -1 {
		return event{}, false, nil
	}

	ev, err := parseTag(t.buf[1:end], t.offset)
	if err != nil {
		return event{}, false, err
	}
	t.consume(end + 1)
	return ev, true, nil
}

// tagEnd finds the index of the closing '>' of the tag starting at
// buf[0], honoring quoted attribute values. Returns -1 when the tag is
// still incomplete.
func (t *tokenizer) tagEnd() int {
	var quote byte
	for i := 1; i < len(t.buf); i++ {
		c := t.buf[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '>':
			return i
		}
	}
	return -1
}

// parseTag interprets the bytes between '<' and '>'.
func parseTag(raw []byte, offset int64) (event, error) {
	content := strings.TrimSpace(string(raw))
	if content == "" {
		return event{}, fmt.Errorf("empty tag at byte %d", offset)
	}

	if content[0] == '/' {
		return event{kind: evEnd, name: strings.TrimSpace(content[1:]), offset: offset}, nil
	}

	kind := evStart
	if strings.HasSuffix(content, "/") {
		kind = evEmpty
		content = strings.TrimSpace(content[:len(content)-1])
	}

	name := content
	var attrs map[string]string
	if i := strings.IndexAny(content, " \t\r\n"); i != -1 {
		name = content[:i]
		var err error
		attrs, err = parseAttrs(content[i+1:], offset)
		if err != nil {
			return event{}, err
		}
	}
	return event{kind: kind, name: name, attrs: attrs, offset: offset}, nil
}

// parseAttrs reads space-separated key="value" pairs.
func parseAttrs(s string, offset int64) (map[string]string, error) {
	attrs := make(map[string]string)
	for {
		s = strings.TrimLeft(s, " \t\r\n")
		if s == "" {
			return attrs, nil
		}
		eq := strings.IndexByte(s, '=')
		if eq == -1 {
			return nil, fmt.Errorf("malformed attribute %q at byte %d", s, offset)
		}
		key := strings.TrimSpace(s[:eq])
		rest := strings.TrimLeft(s[eq+1:], " \t\r\n")
		if rest == "" || (rest[0] != '"' && rest[0] != '\'') {
			return nil, fmt.Errorf("unquoted attribute value for %q at byte %d", key, offset)
		}
		quote := rest[0]
		closing := strings.IndexByte(rest[1:], quote)
		if closing == -1 {
			return nil, fmt.Errorf("unterminated attribute value for %q at byte %d", key, offset)
		}
		attrs[key] = unescape([]byte(rest[1 : 1+closing]))
		s = rest[closing+2:]
	}
}
