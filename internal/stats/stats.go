// Package stats computes the derived climate statistics of the pipeline:
// monthly heat index aggregates and heat wave streaks, both per state,
// from cleaned per-year observation files.
package stats

import (
	"math"
	"time"

	"github.com/ajitpratap0/cumulus/pkg/csvio"
	"github.com/ajitpratap0/cumulus/pkg/pipeerrors"
)

// datetimeLayouts are the accepted observation timestamp formats.
var datetimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseDatetime parses an observation timestamp. Rows with timestamps
// outside the accepted formats are dropped by the callers, mirroring the
// split stage's tolerance for dirty data.
func parseDatetime(s string) (time.Time, bool) {
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// round2 rounds to two decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// requireColumns resolves the named columns in the header, failing with a
// config error naming the first missing one.
func requireColumns(header csvio.Header, names ...string) ([]int, error) {
	idx := make([]int, len(names))
	for i, name := range names {
		idx[i] = header.Index(name)
		if idx[i] < 0 {
			return nil, pipeerrors.Newf(pipeerrors.ErrorTypeConfig,
				"missing required column %q", name).
				WithDetail("columns", []string(header))
		}
	}
	return idx, nil
}
