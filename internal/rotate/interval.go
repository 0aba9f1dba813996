package rotate

import "time"

// Interval computes the rotation interval containing now. The start is
// now truncated toward zero to the nearest multiple of the interval
// (integer floor, not rounding), computed on the local wall clock when
// local is true, and the end is start plus one interval.
func Interval(now time.Time, interval time.Duration, local bool) (start, end time.Time) {
	loc := time.UTC
	if local {
		loc = now.Local().Location()
	}
	now = now.In(loc)

	_, offset := now.Zone()
	step := int64(interval / time.Second)
	wall := now.Unix() + int64(offset)
	floored := wall - wall%step

	start = time.Unix(floored-int64(offset), 0).In(loc)
	return start, start.Add(interval)
}

// MillisSinceMidnight returns the milliseconds elapsed since midnight on
// the wall clock the engine renders timestamps in.
func MillisSinceMidnight(now time.Time, local bool) int {
	loc := time.UTC
	if local {
		loc = now.Local().Location()
	}
	now = now.In(loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	return int(now.Sub(midnight) / time.Millisecond)
}
