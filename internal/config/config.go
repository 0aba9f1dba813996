package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vburojevic/tracesink/internal/domain"
)

// DestinationType enumerates the supported destination kinds.
type DestinationType string

const (
	TypeConsole      DestinationType = "console"
	TypeMemoryBuffer DestinationType = "memory"
	TypeText         DestinationType = "text"
	TypeBinaryTrace  DestinationType = "binary"
	TypeNetwork      DestinationType = "network"
)

// ConsoleName is the reserved sentinel name used internally for the
// console destination. Console descriptors carry no name of their own.
const ConsoleName = "@console"

// TraceOverride is the document-level tri-state controlling whether
// binary-trace capture is permitted regardless of per-destination config.
type TraceOverride int

const (
	OverrideUnset TraceOverride = iota
	OverrideForceDisabled
	OverrideForceEnabled
)

// Subscription describes what a destination wants to receive from one
// provider: an identity (name or 128-bit ID), a minimum severity and a
// keyword mask. Resolved flips to true once a concrete in-process
// provider matching the identity has been observed.
type Subscription struct {
	Name         string
	ProviderID   uuid.UUID
	MinimumLevel domain.Severity
	Keywords     uint64
	Resolved     bool
}

// SubscriptionKey is the deduplication identity of a subscription:
// provider ID plus case-folded name.
type SubscriptionKey struct {
	ProviderID uuid.UUID
	Name       string
}

// Key returns the deduplication key for the subscription.
func (s Subscription) Key() SubscriptionKey {
	return SubscriptionKey{ProviderID: s.ProviderID, Name: strings.ToLower(s.Name)}
}

// HasIdentity reports whether the subscription names a provider by name
// or by ID.
func (s Subscription) HasIdentity() bool {
	return s.Name != "" || s.ProviderID != uuid.Nil
}

// IsSystem reports whether the subscription targets the designated
// system provider, which must be enabled before any sibling in a batch.
func (s Subscription) IsSystem() bool {
	return strings.EqualFold(s.Name, domain.SystemProviderName)
}

// Destination is the declarative description of one log destination.
// It becomes immutable once bound to a live destination; mutation
// attempts after Seal fail.
type Destination struct {
	Name             string
	Type             DestinationType
	BufferSizeMB     int
	Directory        string
	FilenameTemplate string
	RotationInterval time.Duration
	TimestampLocal   bool
	Hostname         string
	Port             int
	MaximumAge       time.Duration
	MaximumSizeBytes int64
	Filters          []string
	Subscriptions    []Subscription

	sealed bool
}

// Normalize fills derived fields: console destinations take the reserved
// sentinel name.
func (d *Destination) Normalize() {
	if d.Type == TypeConsole && d.Name == "" {
		d.Name = ConsoleName
	}
}

// Seal marks the config as bound to a live destination. Subsequent
// mutation attempts fail.
func (d *Destination) Seal() { d.sealed = true }

// Sealed reports whether the config is bound to a live destination.
func (d *Destination) Sealed() bool { return d.sealed }

// AddSubscription appends a subscription, deduplicating by key. Fails
// once the config is sealed.
func (d *Destination) AddSubscription(sub Subscription) error {
	if d.sealed {
		return fmt.Errorf("%w: %q is bound to a live destination", domain.ErrInvalidConfiguration, d.Name)
	}
	for i, existing := range d.Subscriptions {
		if existing.Key() == sub.Key() {
			d.Subscriptions[i] = mergeSubscriptions(existing, sub)
			return nil
		}
	}
	d.Subscriptions = append(d.Subscriptions, sub)
	return nil
}

// AddFilter appends a regex filter pattern, deduplicating exact strings.
// Fails once the config is sealed.
func (d *Destination) AddFilter(pattern string) error {
	if d.sealed {
		return fmt.Errorf("%w: %q is bound to a live destination", domain.ErrInvalidConfiguration, d.Name)
	}
	for _, existing := range d.Filters {
		if existing == pattern {
			return nil
		}
	}
	d.Filters = append(d.Filters, pattern)
	return nil
}

// Clone returns an unsealed deep copy of the destination config.
func (d *Destination) Clone() *Destination {
	out := *d
	out.sealed = false
	out.Filters = append([]string(nil), d.Filters...)
	out.Subscriptions = append([]Subscription(nil), d.Subscriptions...)
	return &out
}

// Global is a snapshot of all configured destinations plus the
// document-level trace override.
type Global struct {
	Destinations  map[string]*Destination
	TraceOverride TraceOverride
}

// NewGlobal returns an empty snapshot.
func NewGlobal() Global {
	return Global{Destinations: map[string]*Destination{}}
}

// Add inserts a destination keyed by its (normalized) name. An existing
// entry with the same name is combined per the merge rules.
func (g *Global) Add(d *Destination) {
	if g.Destinations == nil {
		g.Destinations = map[string]*Destination{}
	}
	d.Normalize()
	if existing, ok := g.Destinations[d.Name]; ok {
		g.Destinations[d.Name] = combineDestinations(existing, d)
		return
	}
	g.Destinations[d.Name] = d
}
