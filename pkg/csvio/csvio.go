// Package csvio provides the CSV plumbing shared by all Cumulus stages:
// header capture, row normalization, and file writers with exactly-once
// header semantics.
//
// Every stage works with the same row shape: a slice of string fields
// aligned to an immutable Header captured once from the input stream.
// Rows longer than the header are truncated, shorter rows are padded with
// empty fields, so downstream code can index by column position safely.
package csvio

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"

	"github.com/ajitpratap0/cumulus/pkg/pipeerrors"
)

// Header is the ordered, immutable column set of a CSV stream.
type Header []string

// Index returns the position of the named column, or -1 if absent.
func (h Header) Index(name string) int {
	for i, col := range h {
		if col == name {
			return i
		}
	}
	return -1
}

// Contains reports whether the named column is present.
func (h Header) Contains(name string) bool {
	return h.Index(name) >= 0
}

// With returns a new header extended by the given columns. The receiver is
// not modified; partition and quarantine outputs share the original header.
func (h Header) With(extra ...string) Header {
	out := make(Header, 0, len(h)+len(extra))
	out = append(out, h...)
	out = append(out, extra...)
	return out
}

// Normalize aligns a row to the given width: extra fields are dropped,
// missing fields become empty strings. The input slice is reused when it
// already has the right length.
func Normalize(row []string, width int) []string {
	if len(row) == width {
		return row
	}
	if len(row) > width {
		return row[:width]
	}
	out := make([]string, width)
	copy(out, row)
	return out
}

// Reader streams rows from a CSV file. The header row is consumed at open
// time and every subsequent row is normalized to it.
type Reader struct {
	file   *os.File
	reader *csv.Reader
	header Header
}

// Open opens a CSV file and captures its header.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path) //nolint:gosec // G304: path comes from validated config
	if err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.ErrorTypeIO, "failed to open input CSV").
			WithDetail("path", path)
	}

	reader := csv.NewReader(file)
	// Row field count may legitimately differ from the header length.
	reader.FieldsPerRecord = -1

	headerRow, err := reader.Read()
	if err != nil {
		_ = file.Close()
		if err == io.EOF {
			return nil, pipeerrors.New(pipeerrors.ErrorTypeData, "CSV appears to have no header row").
				WithDetail("path", path)
		}
		return nil, pipeerrors.Wrap(err, pipeerrors.ErrorTypeData, "failed to read CSV header").
			WithDetail("path", path)
	}

	return &Reader{
		file:   file,
		reader: reader,
		header: Header(headerRow),
	}, nil
}

// Header returns the captured header. It is immutable for the run.
func (r *Reader) Header() Header {
	return r.header
}

// Next returns the next row normalized to the header, or io.EOF at stream end.
func (r *Reader) Next() ([]string, error) {
	row, err := r.reader.Read()
	if err != nil {
		return nil, err
	}
	return Normalize(row, len(r.header)), nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// AppendWriter writes CSV rows to a file opened in append mode. The header
// is written only when the file did not previously exist or was empty, so a
// segment reopened after eviction never duplicates its header.
type AppendWriter struct {
	file   *os.File
	writer *csv.Writer
}

// OpenAppend opens (or creates) path for appending, creating parent
// directories as needed, and writes the header iff the file is new or empty.
func OpenAppend(path string, header Header) (*AppendWriter, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, pipeerrors.Wrap(err, pipeerrors.ErrorTypeIO, "failed to create output directory").
				WithDetail("dir", dir)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // G304
	if err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.ErrorTypeIO, "failed to open output file").
			WithDetail("path", path)
	}

	writer := csv.NewWriter(file)

	// Header decision is based on file state, not cache state: a segment
	// reopened after eviction keeps its original header.
	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, pipeerrors.Wrap(err, pipeerrors.ErrorTypeIO, "failed to stat output file").
			WithDetail("path", path)
	}
	if stat.Size() == 0 {
		if err := writer.Write(header); err != nil {
			_ = file.Close()
			return nil, pipeerrors.Wrap(err, pipeerrors.ErrorTypeIO, "failed to write CSV header").
				WithDetail("path", path)
		}
	}

	return &AppendWriter{file: file, writer: writer}, nil
}

// Create truncates (or creates) path and writes the header immediately.
// Used by stages whose outputs are rewritten whole on every run.
func Create(path string, header Header) (*AppendWriter, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, pipeerrors.Wrap(err, pipeerrors.ErrorTypeIO, "failed to create output directory").
				WithDetail("dir", dir)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) //nolint:gosec // G304
	if err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.ErrorTypeIO, "failed to create output file").
			WithDetail("path", path)
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		_ = file.Close()
		return nil, pipeerrors.Wrap(err, pipeerrors.ErrorTypeIO, "failed to write CSV header").
			WithDetail("path", path)
	}

	return &AppendWriter{file: file, writer: writer}, nil
}

// Write appends one row.
func (w *AppendWriter) Write(row []string) error {
	if err := w.writer.Write(row); err != nil {
		return pipeerrors.Wrap(err, pipeerrors.ErrorTypeIO, "failed to write CSV row")
	}
	return nil
}

// Flush forces buffered rows to the underlying file.
func (w *AppendWriter) Flush() error {
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		return pipeerrors.Wrap(err, pipeerrors.ErrorTypeIO, "failed to flush CSV writer")
	}
	return nil
}

// Close flushes and closes the file. Safe to call once per writer; the
// partitioner guarantees it on every exit path.
func (w *AppendWriter) Close() error {
	flushErr := w.Flush()
	closeErr := w.file.Close()
	if flushErr != nil {
		return flushErr
	}
	if closeErr != nil {
		return pipeerrors.Wrap(closeErr, pipeerrors.ErrorTypeIO, "failed to close output file")
	}
	return nil
}
