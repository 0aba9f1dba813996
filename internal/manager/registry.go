package manager

import (
	"strings"

	"github.com/google/uuid"

	"github.com/vburojevic/tracesink/internal/domain"
)

// providerRegistry tracks the concrete providers observed in-process.
// Subscriptions start Unresolved{name|id} and move to Resolved once a
// matching provider appears; the manager then issues the now-concrete
// subscription to the interested destinations.
type providerRegistry struct {
	providers []domain.Provider
}

// register records a provider; it reports whether the provider was new.
func (r *providerRegistry) register(p domain.Provider) bool {
	for _, known := range r.providers {
		if known.MatchesID(p.ID) || known.MatchesName(p.Name) {
			return false
		}
	}
	r.providers = append(r.providers, p)
	return true
}

// find locates a provider by name (case-insensitive) or by the string
// form of its identifier.
func (r *providerRegistry) find(nameOrID string) (domain.Provider, bool) {
	id, idErr := uuid.Parse(nameOrID)
	for _, p := range r.providers {
		if strings.EqualFold(p.Name, nameOrID) {
			return p, true
		}
		if idErr == nil && p.MatchesID(id) {
			return p, true
		}
	}
	return domain.Provider{}, false
}

// match returns the provider satisfying a subscription identity, if any.
func (r *providerRegistry) match(name string, id uuid.UUID) (domain.Provider, bool) {
	for _, p := range r.providers {
		if p.MatchesName(name) || p.MatchesID(id) {
			return p, true
		}
	}
	return domain.Provider{}, false
}
