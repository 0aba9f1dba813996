// Package correlate reassembles multi-event activities into composite
// records. A record enters the incomplete bucket, moves to the complete
// bucket the moment it reports completeness, and is expired from either
// bucket once it has gone unmodified for longer than that bucket's
// maximum age. The cache tolerates lossy and bounded out-of-order
// delivery: partial records simply age out.
//
// The cache carries no internal synchronization. It is built for a single
// ingesting goroutine processing events in the order a source delivers
// them.
package correlate

import (
	"fmt"
	"time"
)

// Record is a composite activity under reconstruction.
type Record[E any] interface {
	// ApplyEvent folds one event into the record.
	ApplyEvent(event E)
	// IsComplete reports whether the activity has all its parts.
	IsComplete() bool
	// LastModified returns the timestamp of the last applied event.
	LastModified() time.Time
}

// EvictFunc is invoked exactly once per record leaving a bucket through
// expiry or flush.
type EvictFunc[K comparable, R any] func(key K, record R)

// Options configure a cache.
type Options[K comparable, E any, R Record[E]] struct {
	// NewRecord constructs the empty record for a previously unseen key.
	NewRecord func(key K) R
	// MaxIncompleteAge and MaxCompleteAge bound how long an unmodified
	// record survives in each bucket. Both must be strictly positive.
	MaxIncompleteAge time.Duration
	MaxCompleteAge   time.Duration
	// OnEvictIncomplete and OnEvictComplete are the per-bucket eviction
	// callbacks. Either may be nil.
	OnEvictIncomplete EvictFunc[K, R]
	OnEvictComplete   EvictFunc[K, R]
}

// Cache joins events sharing a key into composite records across two
// age-bounded buckets.
type Cache[K comparable, E any, R Record[E]] struct {
	newRecord  func(K) R
	incomplete bucket[K, E, R]
	complete   bucket[K, E, R]
}

// bucket tracks records plus a conservative lower bound on the oldest
// LastModified among them. The bound is monotonically non-decreasing and
// only recomputed exactly during a sweep, which keeps steady-state
// processing O(1).
type bucket[K comparable, E any, R Record[E]] struct {
	records   map[K]R
	oldest    time.Time
	hasOldest bool
	maxAge    time.Duration
	onEvict   EvictFunc[K, R]
}

// New builds a cache. Both bucket ages must be strictly positive.
func New[K comparable, E any, R Record[E]](opts Options[K, E, R]) (*Cache[K, E, R], error) {
	if opts.NewRecord == nil {
		return nil, fmt.Errorf("correlate: NewRecord is required")
	}
	if opts.MaxIncompleteAge <= 0 || opts.MaxCompleteAge <= 0 {
		return nil, fmt.Errorf("correlate: bucket ages must be strictly positive")
	}
	return &Cache[K, E, R]{
		newRecord: opts.NewRecord,
		incomplete: bucket[K, E, R]{
			records: map[K]R{},
			maxAge:  opts.MaxIncompleteAge,
			onEvict: opts.OnEvictIncomplete,
		},
		complete: bucket[K, E, R]{
			records: map[K]R{},
			maxAge:  opts.MaxCompleteAge,
			onEvict: opts.OnEvictComplete,
		},
	}, nil
}

// ProcessEvent folds one event into the record for key, creating the
// record if the key is unseen, moving it between buckets on completion,
// and then running expiry at the event's timestamp. A key occupies at
// most one bucket at a time.
func (c *Cache[K, E, R]) ProcessEvent(key K, event E, now time.Time) {
	if record, ok := c.incomplete.records[key]; ok {
		record.ApplyEvent(event)
		if record.IsComplete() {
			delete(c.incomplete.records, key)
			c.complete.put(key, record)
		} else {
			c.incomplete.touch(record)
		}
	} else if record, ok := c.complete.records[key]; ok {
		// Completed activities may still receive late detail events.
		record.ApplyEvent(event)
		c.complete.touch(record)
	} else {
		record := c.newRecord(key)
		record.ApplyEvent(event)
		if record.IsComplete() {
			c.complete.put(key, record)
		} else {
			c.incomplete.put(key, record)
		}
	}

	c.Expire(now)
}

// Expire sweeps each bucket whose conservative oldest bound has aged
// past the bucket's maximum, evicting every record unmodified for longer
// than that maximum.
func (c *Cache[K, E, R]) Expire(now time.Time) {
	c.incomplete.expire(now)
	c.complete.expire(now)
}

// FlushComplete evicts every complete record through the complete-bucket
// callback. Used when a source session has ended and no further
// completions are expected.
func (c *Cache[K, E, R]) FlushComplete() {
	for key, record := range c.complete.records {
		if c.complete.onEvict != nil {
			c.complete.onEvict(key, record)
		}
		delete(c.complete.records, key)
	}
	c.complete.hasOldest = false
}

// QueuedIncomplete returns the number of records awaiting completion.
func (c *Cache[K, E, R]) QueuedIncomplete() int { return len(c.incomplete.records) }

// QueuedComplete returns the number of completed records awaiting flush
// or expiry.
func (c *Cache[K, E, R]) QueuedComplete() int { return len(c.complete.records) }

// Get returns the record for key from whichever bucket holds it.
func (c *Cache[K, E, R]) Get(key K) (R, bool) {
	if record, ok := c.incomplete.records[key]; ok {
		return record, true
	}
	record, ok := c.complete.records[key]
	return record, ok
}

func (b *bucket[K, E, R]) put(key K, record R) {
	b.records[key] = record
	b.touch(record)
}

// touch lowers the bucket's oldest bound if the record now defines the
// minimum. The bound stays conservative: records modified later never
// raise it.
func (b *bucket[K, E, R]) touch(record R) {
	modified := record.LastModified()
	if !b.hasOldest || modified.Before(b.oldest) {
		b.oldest = modified
		b.hasOldest = true
	}
}

func (b *bucket[K, E, R]) expire(now time.Time) {
	if !b.hasOldest || now.Sub(b.oldest) <= b.maxAge {
		return
	}

	var newOldest time.Time
	var survivors bool
	for key, record := range b.records {
		if now.Sub(record.LastModified()) > b.maxAge {
			if b.onEvict != nil {
				b.onEvict(key, record)
			}
			delete(b.records, key)
			continue
		}
		if !survivors || record.LastModified().Before(newOldest) {
			newOldest = record.LastModified()
			survivors = true
		}
	}
	b.oldest = newOldest
	b.hasOldest = survivors
}
