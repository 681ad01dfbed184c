// Package split implements the streaming year partitioner: a single forward
// pass over a large weather CSV that fans rows out into per-year segment
// files while holding only a bounded number of file handles open.
//
// The package is organized around four pieces:
//   - ParseYear extracts the partition key from the datetime column.
//   - WriterCache is the bounded LRU pool of open segment writers.
//   - BadRowSink quarantines rows whose key could not be extracted.
//   - Splitter drives the pass and ties the pieces together.
package split

import (
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/cumulus/pkg/pipeerrors"
)

// yearLayouts are tried in fixed order after the ISO fast path. Order
// matters: earlier layouts can mask later ones on ambiguous input.
var yearLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
}

// ParseYear extracts the partition year from a raw datetime string such as
// "1996-08-09 13:30:00", "1996-08-09T13:30:00", or "1996-08-09".
//
// Attempts, in order: the ISO-ish fast path (space or T separated datetime),
// the explicit fallback layouts, and finally the first four characters when
// they are ASCII digits. All layout matches are full-string. The function is
// pure and performs no I/O.
func ParseYear(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, pipeerrors.New(pipeerrors.ErrorTypeParse, "empty datetime string")
	}

	// Fast-path: ISO-ish formats with either separator
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t.Year(), nil
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t.Year(), nil
	}

	// Fallback layouts if the CSV is inconsistent
	for _, layout := range yearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Year(), nil
		}
	}

	// Last-resort: take the first 4 chars if they look like a year
	if len(s) >= 4 && isASCIIDigits(s[:4]) {
		year, err := strconv.Atoi(s[:4])
		if err == nil {
			return year, nil
		}
	}

	return 0, pipeerrors.Newf(pipeerrors.ErrorTypeParse, "unrecognized datetime format: %q", raw)
}

func isASCIIDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
