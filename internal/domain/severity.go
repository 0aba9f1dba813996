package domain

// Severity is an ordered verbosity classification for trace events.
// A larger ordinal is MORE verbose: a subscription at SeverityVerbose
// receives everything a SeverityError subscription would, plus more.
type Severity uint8

const (
	SeverityAlways   Severity = 0
	SeverityCritical Severity = 1
	SeverityError    Severity = 2
	SeverityWarning  Severity = 3
	SeverityInfo     Severity = 4
	SeverityVerbose  Severity = 5
)

// String returns the canonical lowercase name for the severity.
func (s Severity) String() string {
	switch s {
	case SeverityAlways:
		return "always"
	case SeverityCritical:
		return "critical"
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	case SeverityVerbose:
		return "verbose"
	default:
		return "info"
	}
}

// ParseSeverity converts a string to a Severity. Unknown values map to
// SeverityInfo.
func ParseSeverity(s string) Severity {
	switch s {
	case "always", "Always":
		return SeverityAlways
	case "critical", "Critical":
		return SeverityCritical
	case "error", "Error":
		return SeverityError
	case "warning", "Warning", "warn":
		return SeverityWarning
	case "info", "Info", "informational", "Informational":
		return SeverityInfo
	case "verbose", "Verbose", "debug", "Debug":
		return SeverityVerbose
	default:
		return SeverityInfo
	}
}

// MostVerbose returns the more verbose of two severities.
func MostVerbose(a, b Severity) Severity {
	if a > b {
		return a
	}
	return b
}
