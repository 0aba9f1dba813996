package rotate

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(i int, size int64, created time.Time) Entry {
	return Entry{
		Filename:   fmt.Sprintf("app_%03d.log", i),
		SizeBytes:  size,
		CreatedUTC: created,
	}
}

func TestCatalogSizePolicyKeepsNewest(t *testing.T) {
	// Four 40-byte files against a 100-byte limit: the two oldest go,
	// the two newest survive at a total of 80.
	c := NewCatalog(0, 100)
	base := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	var evicted []Entry
	for i := 0; i < 4; i++ {
		evicted = append(evicted, c.Insert(entry(i, 40, base.Add(time.Duration(i)*time.Hour)))...)
	}

	require.Len(t, evicted, 2)
	assert.Equal(t, "app_000.log", evicted[0].Filename)
	assert.Equal(t, "app_001.log", evicted[1].Filename)

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, int64(80), c.TotalSize())
	oldest, ok := c.Oldest()
	require.True(t, ok)
	assert.Equal(t, "app_002.log", oldest.Filename)
}

func TestCatalogNeverEvictsSoleEntry(t *testing.T) {
	// 200 bytes against a 100-byte limit: policy stays violated, but the
	// last completed file must survive.
	c := NewCatalog(0, 100)
	evicted := c.Insert(entry(0, 200, time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)))
	assert.Empty(t, evicted)
	assert.Equal(t, 1, c.Len())
}

func TestCatalogAgeSpanPolicy(t *testing.T) {
	c := NewCatalog(2*time.Hour, 0)
	base := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	assert.Empty(t, c.Insert(entry(0, 10, base)))
	assert.Empty(t, c.Insert(entry(1, 10, base.Add(time.Hour))))
	assert.Empty(t, c.Insert(entry(2, 10, base.Add(2*time.Hour))))

	// Entry 3 stretches the span to 3h: entries age out until the span
	// fits again.
	evicted := c.Insert(entry(3, 10, base.Add(3*time.Hour)))
	require.Len(t, evicted, 1)
	assert.Equal(t, "app_000.log", evicted[0].Filename)
}

func TestCatalogEvictionSatisfiesBothPolicies(t *testing.T) {
	// Size is satisfied after one eviction but the age span still is
	// not: eviction continues until both limits hold.
	c := NewCatalog(time.Hour, 100)
	base := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	assert.Empty(t, c.Insert(entry(0, 40, base)))
	assert.Empty(t, c.Insert(entry(1, 40, base.Add(30*time.Minute))))

	evicted := c.Insert(entry(2, 40, base.Add(4*time.Hour)))
	require.Len(t, evicted, 2)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int64(40), c.TotalSize())
}

func TestCatalogZeroLimitsDisableEviction(t *testing.T) {
	c := NewCatalog(0, 0)
	assert.False(t, c.Enabled())

	base := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		assert.Empty(t, c.Insert(entry(i, 1<<20, base.Add(time.Duration(i)*24*time.Hour))))
	}
	assert.Equal(t, 10, c.Len())
}

func TestCatalogOrdersOutOfOrderInserts(t *testing.T) {
	c := NewCatalog(0, 0)
	base := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	c.Insert(entry(2, 10, base.Add(2*time.Hour)))
	c.Insert(entry(0, 10, base))
	c.Insert(entry(1, 10, base.Add(time.Hour)))

	entries := c.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "app_000.log", entries[0].Filename)
	assert.Equal(t, "app_001.log", entries[1].Filename)
	assert.Equal(t, "app_002.log", entries[2].Filename)
}
