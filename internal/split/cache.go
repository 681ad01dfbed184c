package split

import (
	"container/list"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ajitpratap0/cumulus/pkg/csvio"
	"github.com/ajitpratap0/cumulus/pkg/metrics"
)

// segmentState is the durable per-year routing state. It outlives cache
// entries: eviction closes the file but keeps the row counter and segment
// index, so a reopened year continues where it left off.
type segmentState struct {
	rows    int // rows written to the current segment
	segment int // current segment index, monotonically increasing
}

// cacheEntry binds one year to one open segment file. Entries are owned
// exclusively by the cache and are closed exactly once.
type cacheEntry struct {
	year   int
	writer *csvio.AppendWriter
	elem   *list.Element
}

// WriterCache is a bounded, keyed cache of open partition writers with
// strict LRU eviction and size-based segment rollover.
//
// The motivating shared resource is the OS limit on simultaneously open
// file descriptors: at most maxOpen entries exist at any point. Eviction is
// lossless; the evicted file is flushed and closed, and a later Acquire for
// the same year transparently reopens it in append mode. The header-exists
// decision is made from file state, so reopen never duplicates a header.
//
// The cache is not safe for concurrent use. The split pass is a single
// thread of control and is the only mutator.
type WriterCache struct {
	outDir         string
	prefix         string
	header         csvio.Header
	maxOpen        int
	maxRowsPerFile int // 0 disables rollover

	states  map[int]*segmentState
	entries map[int]*cacheEntry
	recency *list.List // front = most recently used

	logger *zap.Logger
	closed bool
}

// NewWriterCache creates a writer cache for the given output directory and
// header. maxOpen must be at least 1; maxRowsPerFile of 0 disables rollover.
func NewWriterCache(outDir, prefix string, header csvio.Header, maxOpen, maxRowsPerFile int, logger *zap.Logger) *WriterCache {
	return &WriterCache{
		outDir:         outDir,
		prefix:         prefix,
		header:         header,
		maxOpen:        maxOpen,
		maxRowsPerFile: maxRowsPerFile,
		states:         make(map[int]*segmentState),
		entries:        make(map[int]*cacheEntry),
		recency:        list.New(),
		logger:         logger,
	}
}

// Acquire returns an open writer for the year's active segment, rolling the
// segment over when its row budget is exhausted and evicting the
// least-recently-used entry when the cache is full. The returned writer
// remains owned by the cache.
func (c *WriterCache) Acquire(year int) (*csvio.AppendWriter, error) {
	state, ok := c.states[year]
	if !ok {
		state = &segmentState{}
		c.states[year] = state
	}

	// Roll over to the next segment once the row budget is reached. The old
	// entry is closed explicitly before the new segment is opened. Segment
	// indices are never reused, even if an earlier segment file is later
	// removed by an external process.
	if c.maxRowsPerFile > 0 && state.rows >= c.maxRowsPerFile {
		if entry, open := c.entries[year]; open {
			if err := c.remove(entry); err != nil {
				return nil, err
			}
		}
		state.segment++
		state.rows = 0
		metrics.SegmentRollovers.Inc()
		c.logger.Debug("segment rollover",
			zap.Int("year", year),
			zap.Int("segment", state.segment))
	}

	if entry, open := c.entries[year]; open {
		c.recency.MoveToFront(entry.elem)
		return entry.writer, nil
	}

	// Evict LRU entries until there is room for one more
	for len(c.entries) >= c.maxOpen {
		if err := c.evictOldest(); err != nil {
			return nil, err
		}
	}

	path := c.segmentPath(year, state.segment)
	writer, err := csvio.OpenAppend(path, c.header)
	if err != nil {
		return nil, err
	}

	entry := &cacheEntry{year: year, writer: writer}
	entry.elem = c.recency.PushFront(entry)
	c.entries[year] = entry
	metrics.OpenWriters.Set(float64(len(c.entries)))

	return writer, nil
}

// RecordRow increments the year's in-segment row counter. The counter only
// informs future rollover decisions; it does not touch the file.
func (c *WriterCache) RecordRow(year int) {
	if state, ok := c.states[year]; ok {
		state.rows++
	}
}

// Len returns the number of currently open writers.
func (c *WriterCache) Len() int {
	return len(c.entries)
}

// CloseAll flushes and closes every open entry. It is idempotent and must
// run on every exit path, success or failure. All entries are closed even
// when earlier closes fail; the first error is returned.
func (c *WriterCache) CloseAll() error {
	if c.closed {
		return nil
	}
	c.closed = true

	var firstErr error
	for _, entry := range c.entries {
		if err := entry.writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.entries = make(map[int]*cacheEntry)
	c.recency.Init()
	metrics.OpenWriters.Set(0)

	return firstErr
}

// evictOldest removes the least-recently-used entry, flushing and closing
// its file before removal.
func (c *WriterCache) evictOldest() error {
	oldest := c.recency.Back()
	if oldest == nil {
		return nil
	}
	entry := oldest.Value.(*cacheEntry)

	metrics.CacheEvictions.Inc()
	c.logger.Debug("evicting writer",
		zap.Int("year", entry.year),
		zap.Int("open", len(c.entries)))

	return c.remove(entry)
}

// remove closes an entry and drops it from the cache.
func (c *WriterCache) remove(entry *cacheEntry) error {
	c.recency.Remove(entry.elem)
	delete(c.entries, entry.year)
	metrics.OpenWriters.Set(float64(len(c.entries)))
	return entry.writer.Close()
}

// segmentPath constructs the output path for a (year, segment) pair. The
// part suffix appears only when rollover is enabled.
func (c *WriterCache) segmentPath(year, segment int) string {
	var name string
	if c.maxRowsPerFile > 0 {
		name = fmt.Sprintf("%s_%d_part_%02d.csv", c.prefix, year, segment)
	} else {
		name = fmt.Sprintf("%s_%d.csv", c.prefix, year)
	}
	return filepath.Join(c.outDir, name)
}
