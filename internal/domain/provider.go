package domain

import (
	"strings"

	"github.com/google/uuid"
)

// SystemProviderName is the designated system-level provider. When a
// capture session subscribes to it, it must be enabled before any other
// provider in the same batch.
const SystemProviderName = "system.runtime"

// Provider identifies an in-process event source by name and a stable
// 128-bit identifier.
type Provider struct {
	Name string
	ID   uuid.UUID
}

// MatchesName compares provider names case-insensitively.
func (p Provider) MatchesName(name string) bool {
	return name != "" && strings.EqualFold(p.Name, name)
}

// MatchesID reports whether the provider carries the given non-nil ID.
func (p Provider) MatchesID(id uuid.UUID) bool {
	return id != uuid.Nil && p.ID == id
}

// IsSystem reports whether this is the designated system provider.
func (p Provider) IsSystem() bool {
	return p.MatchesName(SystemProviderName)
}
