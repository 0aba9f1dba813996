package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vburojevic/tracesink/internal/domain"
)

// pathIllegal holds characters that never appear in a destination name,
// since file-backed names become filename stems.
const pathIllegal = `/\:*?"<>|`

// Validate checks one destination descriptor against the capability
// matrix. Every failure wraps domain.ErrInvalidConfiguration.
func Validate(d *Destination) error {
	if !d.Type.Known() {
		return invalidf("unknown destination type %q", d.Type)
	}

	if d.Type == TypeConsole {
		if d.Name != "" && d.Name != ConsoleName {
			return invalidf("console destinations are unnamed")
		}
	} else {
		if d.Name == "" {
			return invalidf("destination name is required for type %q", d.Type)
		}
		if strings.ContainsAny(d.Name, pathIllegal) {
			return invalidf("destination name %q contains path-illegal characters", d.Name)
		}
	}

	if len(d.Subscriptions) == 0 {
		return invalidf("destination %q has no subscriptions", d.Name)
	}
	for _, sub := range d.Subscriptions {
		if !sub.HasIdentity() {
			return invalidf("destination %q has a subscription with neither name nor provider id", d.Name)
		}
	}

	caps := d.Type.Capabilities()

	if len(d.Filters) > 0 {
		if caps&CapTextFilter == 0 {
			return invalidf("destination %q: type %q does not support text filters", d.Name, d.Type)
		}
		for _, pattern := range d.Filters {
			if _, err := regexp.Compile(pattern); err != nil {
				return invalidf("destination %q: bad filter pattern %q: %v", d.Name, pattern, err)
			}
		}
	}

	if caps&CapFileBacked == 0 {
		if d.Directory != "" || d.FilenameTemplate != "" || d.RotationInterval != 0 ||
			d.MaximumAge != 0 || d.MaximumSizeBytes != 0 {
			return invalidf("destination %q: type %q is not file-backed", d.Name, d.Type)
		}
	} else {
		if d.Directory == "" {
			return invalidf("destination %q: directory is required for type %q", d.Name, d.Type)
		}
		if d.RotationInterval < 0 || d.MaximumAge < 0 || d.MaximumSizeBytes < 0 {
			return invalidf("destination %q: rotation and retention limits must be non-negative", d.Name)
		}
	}

	if d.Type == TypeNetwork {
		if d.Hostname == "" || d.Port <= 0 || d.Port > 65535 {
			return invalidf("destination %q: network destinations require hostname and a nonzero port", d.Name)
		}
	} else if d.Hostname != "" || d.Port != 0 {
		return invalidf("destination %q: hostname/port are only valid for network destinations", d.Name)
	}

	if d.BufferSizeMB != 0 && d.Type != TypeMemoryBuffer {
		return invalidf("destination %q: bufferSizeMB is only valid for memory destinations", d.Name)
	}
	if d.BufferSizeMB < 0 {
		return invalidf("destination %q: bufferSizeMB must be non-negative", d.Name)
	}

	return nil
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}
