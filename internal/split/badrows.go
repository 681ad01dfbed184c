package split

import (
	"github.com/ajitpratap0/cumulus/pkg/csvio"
)

// errorColumn is the diagnostic column appended to the quarantine header.
const errorColumn = "_error"

// BadRowSink is a durable quarantine for rows whose partition key could not
// be extracted. Its header is the input header plus one diagnostic column,
// written once at creation.
type BadRowSink struct {
	writer *csvio.AppendWriter
	width  int
	count  int64
}

// NewBadRowSink creates (truncating) the quarantine file and writes its
// header.
func NewBadRowSink(path string, header csvio.Header) (*BadRowSink, error) {
	writer, err := csvio.Create(path, header.With(errorColumn))
	if err != nil {
		return nil, err
	}
	return &BadRowSink{writer: writer, width: len(header)}, nil
}

// Write appends the offending row tagged with its failure reason.
func (s *BadRowSink) Write(row []string, reason error) error {
	tagged := make([]string, 0, s.width+1)
	tagged = append(tagged, csvio.Normalize(row, s.width)...)
	tagged = append(tagged, reason.Error())
	if err := s.writer.Write(tagged); err != nil {
		return err
	}
	s.count++
	return nil
}

// Count returns the number of quarantined rows.
func (s *BadRowSink) Count() int64 {
	return s.count
}

// Close flushes and closes the quarantine file.
func (s *BadRowSink) Close() error {
	return s.writer.Close()
}
