package rotate

import (
	"sort"
	"time"
)

// Entry is one previously written file tracked for retention.
type Entry struct {
	Filename   string
	SizeBytes  int64
	CreatedUTC time.Time
}

// Catalog is the in-memory index of a destination's completed files,
// kept in creation-time order with incrementally maintained aggregates.
// It decides which files to evict; actually removing them from storage is
// the engine's job.
type Catalog struct {
	maxAge  time.Duration
	maxSize int64

	entries   []Entry
	totalSize int64
}

// NewCatalog builds a catalog with the given retention policy. A zero
// limit disables that policy.
func NewCatalog(maxAge time.Duration, maxSize int64) *Catalog {
	return &Catalog{maxAge: maxAge, maxSize: maxSize}
}

// Enabled reports whether any retention policy is configured.
func (c *Catalog) Enabled() bool {
	return c.maxAge != 0 || c.maxSize != 0
}

// Len returns the number of cataloged files.
func (c *Catalog) Len() int { return len(c.entries) }

// TotalSize returns the running byte total across the catalog.
func (c *Catalog) TotalSize() int64 { return c.totalSize }

// Oldest returns the oldest entry; ok is false on an empty catalog.
func (c *Catalog) Oldest() (Entry, bool) {
	if len(c.entries) == 0 {
		return Entry{}, false
	}
	return c.entries[0], true
}

// Newest returns the newest entry; ok is false on an empty catalog.
func (c *Catalog) Newest() (Entry, bool) {
	if len(c.entries) == 0 {
		return Entry{}, false
	}
	return c.entries[len(c.entries)-1], true
}

// Entries returns a copy of the catalog in creation-time order.
func (c *Catalog) Entries() []Entry {
	return append([]Entry(nil), c.entries...)
}

// Insert adds an entry in creation-time order, then runs eviction.
// It returns the entries the caller must delete from storage.
func (c *Catalog) Insert(e Entry) []Entry {
	pos := sort.Search(len(c.entries), func(i int) bool {
		return c.entries[i].CreatedUTC.After(e.CreatedUTC)
	})
	c.entries = append(c.entries, Entry{})
	copy(c.entries[pos+1:], c.entries[pos:])
	c.entries[pos] = e
	c.totalSize += e.SizeBytes

	return c.evict()
}

// evict pops oldest entries while either configured policy is violated,
// so eviction only stops once BOTH limits are satisfied. It never reduces
// the catalog below one entry: the most recent non-active file survives
// even if policy is still violated.
func (c *Catalog) evict() []Entry {
	var evicted []Entry
	for c.violated() {
		if len(c.entries) <= 1 {
			break
		}
		oldest := c.entries[0]
		c.entries = c.entries[1:]
		c.totalSize -= oldest.SizeBytes
		evicted = append(evicted, oldest)
	}
	return evicted
}

func (c *Catalog) violated() bool {
	if len(c.entries) == 0 {
		return false
	}
	if c.maxSize != 0 && c.totalSize > c.maxSize {
		return true
	}
	if c.maxAge != 0 {
		span := c.entries[len(c.entries)-1].CreatedUTC.Sub(c.entries[0].CreatedUTC)
		if span > c.maxAge {
			return true
		}
	}
	return false
}
