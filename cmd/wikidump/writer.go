package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"wikidump/internal/domain"
)

// recordWriter serializes records as JSON lines, one per record.
type recordWriter struct {
	f   *os.File
	buf *bufio.Writer
	enc *json.Encoder
}

// newRecordWriter writes to the given path, or stdout when empty.
func newRecordWriter(path string) (*recordWriter, error) {
	w := &recordWriter{}
	if path == "" {
		w.buf = bufio.NewWriter(os.Stdout)
	} else {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("create output file: %w", err)
		}
		w.f = f
		w.buf = bufio.NewWriter(f)
	}
	w.enc = json.NewEncoder(w.buf)
	return w, nil
}

func (w *recordWriter) Write(rec *domain.Record) error {
	return w.enc.Encode(rec)
}

func (w *recordWriter) Close() error {
	if err := w.buf.Flush(); err != nil {
		return err
	}
	if w.f != nil {
		return w.f.Close()
	}
	return nil
}
