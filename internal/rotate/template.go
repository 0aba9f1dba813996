package rotate

import (
	"fmt"
	"strings"
	"time"

	"github.com/vburojevic/tracesink/internal/domain"
)

// Filename templates use positional placeholders:
//
//	{0} base name
//	{1} interval start
//	{2} interval end
//	{3} host identifier
//	{4} milliseconds since local midnight
//
// DefaultTemplate yields lexicographically sortable, ISO-8601-like names.
const DefaultTemplate = "{0}_{1}.log"

// stampLayoutUTC avoids characters that are illegal in filenames. The
// local variant appends the numeric UTC offset so names stay unambiguous
// across daylight-saving transitions.
const (
	stampLayoutUTC   = "2006-01-02T15-04-05"
	stampLayoutLocal = "2006-01-02T15-04-05-0700"
)

// CreateFilename renders a template. It is pure: identical inputs always
// yield an identical string.
func CreateFilename(template, base string, start, end time.Time, host string, millis int, local bool) string {
	return strings.NewReplacer(
		"{0}", base,
		"{1}", formatStamp(start, local),
		"{2}", formatStamp(end, local),
		"{3}", host,
		"{4}", fmt.Sprintf("%08d", millis),
	).Replace(template)
}

func formatStamp(t time.Time, local bool) string {
	if local {
		return t.Local().Format(stampLayoutLocal)
	}
	return t.UTC().Format(stampLayoutUTC)
}

// ValidateTemplate checks the minimum contract of a template: it must
// contain the base-name placeholder, and when rotation is enabled,
// advancing time by exactly one interval must change the rendered name.
func ValidateTemplate(template, base string, interval time.Duration, local bool) error {
	if !strings.Contains(template, "{0}") {
		return fmt.Errorf("%w: template %q lacks the {0} base-name placeholder", domain.ErrInvalidConfiguration, template)
	}
	if interval > 0 {
		start := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
		a := CreateFilename(template, base, start, start.Add(interval), "host", 0, local)
		b := CreateFilename(template, base, start.Add(interval), start.Add(2*interval), "host", 0, local)
		if a == b {
			return fmt.Errorf("%w: template %q does not change across a rotation interval", domain.ErrInvalidConfiguration, template)
		}
	}
	return nil
}

// sampleTimes spans year/month/day/hour/minute/second granularity so
// length checks catch templates whose digit counts vary with the calendar.
var sampleTimes = []time.Time{
	time.Date(1999, 12, 31, 23, 59, 59, 0, time.UTC),
	time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC),
	time.Date(2010, 2, 3, 4, 5, 6, 0, time.UTC),
	time.Date(2024, 10, 9, 8, 7, 6, 0, time.UTC),
	time.Date(2031, 6, 15, 12, 30, 45, 0, time.UTC),
}

// ValidateTemplateForRetention applies the stricter rules that make a
// rendered name reconstructible by a fixed-width wildcard scan: the
// template must start with the base-name placeholder and the rendered
// length must be invariant across host/millisecond values and across
// widely varying calendar points.
func ValidateTemplateForRetention(template, base string, interval time.Duration, host string, local bool) error {
	if err := ValidateTemplate(template, base, interval, local); err != nil {
		return err
	}
	if !strings.HasPrefix(template, "{0}") {
		return fmt.Errorf("%w: retention requires the template to start with {0}", domain.ErrInvalidConfiguration)
	}

	if interval <= 0 {
		interval = time.Hour
	}
	hostSamples := []string{host, "h", "host-with-a-longer-identifier"}
	want := -1
	for _, start := range sampleTimes {
		for _, sampleHost := range hostSamples {
			for _, millis := range []int{0, 86_399_999} {
				name := CreateFilename(template, base, start, start.Add(interval), sampleHost, millis, local)
				if want == -1 {
					want = len(name)
				} else if len(name) != want {
					return fmt.Errorf("%w: template %q renders variable-length names", domain.ErrInvalidConfiguration, template)
				}
			}
		}
	}
	return nil
}
