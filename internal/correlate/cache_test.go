package correlate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type phaseEvent struct {
	phase string // "start", "detail", "stop"
	at    time.Time
}

type activity struct {
	key      string
	phases   []string
	started  bool
	stopped  bool
	modified time.Time
}

func (a *activity) ApplyEvent(e phaseEvent) {
	a.phases = append(a.phases, e.phase)
	switch e.phase {
	case "start":
		a.started = true
	case "stop":
		a.stopped = true
	}
	a.modified = e.at
}

func (a *activity) IsComplete() bool        { return a.started && a.stopped }
func (a *activity) LastModified() time.Time { return a.modified }

type evictLog struct {
	incomplete []string
	complete   []string
}

func newTestCache(t *testing.T, incompleteAge, completeAge time.Duration, log *evictLog) *Cache[string, phaseEvent, *activity] {
	t.Helper()
	c, err := New(Options[string, phaseEvent, *activity]{
		NewRecord:        func(key string) *activity { return &activity{key: key} },
		MaxIncompleteAge: incompleteAge,
		MaxCompleteAge:   completeAge,
		OnEvictIncomplete: func(key string, _ *activity) {
			log.incomplete = append(log.incomplete, key)
		},
		OnEvictComplete: func(key string, _ *activity) {
			log.complete = append(log.complete, key)
		},
	})
	require.NoError(t, err)
	return c
}

func TestCacheRejectsNonPositiveAges(t *testing.T) {
	_, err := New(Options[string, phaseEvent, *activity]{
		NewRecord:        func(key string) *activity { return &activity{key: key} },
		MaxIncompleteAge: 0,
		MaxCompleteAge:   time.Second,
	})
	require.Error(t, err)

	_, err = New(Options[string, phaseEvent, *activity]{
		NewRecord:        func(key string) *activity { return &activity{key: key} },
		MaxIncompleteAge: time.Second,
		MaxCompleteAge:   -time.Second,
	})
	require.Error(t, err)
}

func TestCacheMovesRecordOnCompletion(t *testing.T) {
	var log evictLog
	c := newTestCache(t, time.Minute, time.Minute, &log)
	base := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

	c.ProcessEvent("act-1", phaseEvent{phase: "start", at: base}, base)
	assert.Equal(t, 1, c.QueuedIncomplete())
	assert.Zero(t, c.QueuedComplete())

	c.ProcessEvent("act-1", phaseEvent{phase: "stop", at: base.Add(time.Second)}, base.Add(time.Second))
	assert.Zero(t, c.QueuedIncomplete())
	assert.Equal(t, 1, c.QueuedComplete())

	rec, ok := c.Get("act-1")
	require.True(t, ok)
	assert.Equal(t, []string{"start", "stop"}, rec.phases)
}

func TestCacheExpiresStaleIncomplete(t *testing.T) {
	var log evictLog
	c := newTestCache(t, 2*time.Second, time.Minute, &log)
	base := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

	c.ProcessEvent("orphan", phaseEvent{phase: "start", at: base}, base)
	require.Equal(t, 1, c.QueuedIncomplete())

	c.Expire(base.Add(5 * time.Second))
	assert.Zero(t, c.QueuedIncomplete())
	assert.Equal(t, []string{"orphan"}, log.incomplete)

	_, ok := c.Get("orphan")
	assert.False(t, ok)

	// A second sweep never re-fires the callback.
	c.Expire(base.Add(10 * time.Second))
	assert.Len(t, log.incomplete, 1)
}

func TestCacheExpiryKeepsFreshRecords(t *testing.T) {
	var log evictLog
	c := newTestCache(t, 2*time.Second, time.Minute, &log)
	base := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

	c.ProcessEvent("old", phaseEvent{phase: "start", at: base}, base)
	c.ProcessEvent("new", phaseEvent{phase: "start", at: base.Add(4 * time.Second)}, base.Add(4*time.Second))

	c.Expire(base.Add(5 * time.Second))
	assert.Equal(t, []string{"old"}, log.incomplete)
	assert.Equal(t, 1, c.QueuedIncomplete())

	_, ok := c.Get("new")
	assert.True(t, ok)
}

func TestCacheExpiresStaleComplete(t *testing.T) {
	var log evictLog
	c := newTestCache(t, time.Minute, 3*time.Second, &log)
	base := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

	c.ProcessEvent("done", phaseEvent{phase: "start", at: base}, base)
	c.ProcessEvent("done", phaseEvent{phase: "stop", at: base}, base)
	require.Equal(t, 1, c.QueuedComplete())

	c.Expire(base.Add(10 * time.Second))
	assert.Zero(t, c.QueuedComplete())
	assert.Equal(t, []string{"done"}, log.complete)
}

func TestCacheLateEventsTouchCompletedRecord(t *testing.T) {
	var log evictLog
	c := newTestCache(t, time.Minute, time.Minute, &log)
	base := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

	c.ProcessEvent("act", phaseEvent{phase: "start", at: base}, base)
	c.ProcessEvent("act", phaseEvent{phase: "stop", at: base}, base)
	c.ProcessEvent("act", phaseEvent{phase: "detail", at: base.Add(time.Second)}, base.Add(time.Second))

	require.Equal(t, 1, c.QueuedComplete())
	rec, ok := c.Get("act")
	require.True(t, ok)
	assert.Equal(t, []string{"start", "stop", "detail"}, rec.phases)
	assert.Equal(t, base.Add(time.Second), rec.LastModified())
}

func TestCacheSingleEventCompletion(t *testing.T) {
	// A record complete after its first event lands directly in the
	// complete bucket.
	var log evictLog
	c, err := New(Options[string, phaseEvent, *activity]{
		NewRecord: func(key string) *activity {
			return &activity{key: key, started: true}
		},
		MaxIncompleteAge: time.Minute,
		MaxCompleteAge:   time.Minute,
		OnEvictComplete: func(key string, _ *activity) {
			log.complete = append(log.complete, key)
		},
	})
	require.NoError(t, err)

	base := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	c.ProcessEvent("one-shot", phaseEvent{phase: "stop", at: base}, base)
	assert.Zero(t, c.QueuedIncomplete())
	assert.Equal(t, 1, c.QueuedComplete())
}

func TestCacheFlushComplete(t *testing.T) {
	var log evictLog
	c := newTestCache(t, time.Minute, time.Minute, &log)
	base := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

	for _, key := range []string{"a", "b"} {
		c.ProcessEvent(key, phaseEvent{phase: "start", at: base}, base)
		c.ProcessEvent(key, phaseEvent{phase: "stop", at: base}, base)
	}
	c.ProcessEvent("pending", phaseEvent{phase: "start", at: base}, base)

	c.FlushComplete()
	assert.ElementsMatch(t, []string{"a", "b"}, log.complete)
	assert.Zero(t, c.QueuedComplete())
	// Incomplete records stay put.
	assert.Equal(t, 1, c.QueuedIncomplete())
}

func TestCacheExpirySweepIsLazy(t *testing.T) {
	// The oldest bound gates the sweep: events younger than the bucket
	// age never trigger per-record scans that would evict fresh records.
	var log evictLog
	c := newTestCache(t, 10*time.Second, time.Minute, &log)
	base := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * time.Second)
		c.ProcessEvent("steady", phaseEvent{phase: "detail", at: at}, at)
	}
	assert.Empty(t, log.incomplete)
	assert.Equal(t, 1, c.QueuedIncomplete())
}
