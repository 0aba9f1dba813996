// Package sink holds the live destination implementations. Each
// destination owns its write handle and serializes its write path with a
// per-destination lock distinct from the lifecycle manager's lock, so
// writing an event and rotating the file never interleave unsafely.
package sink

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vburojevic/tracesink/internal/config"
	"github.com/vburojevic/tracesink/internal/domain"
	"github.com/vburojevic/tracesink/internal/observe"
)

// Destination is a live, resource-owning event destination bound 1:1 to
// a sealed config.Destination.
type Destination interface {
	Name() string
	Type() config.DestinationType
	Config() *config.Destination

	// Write formats and persists or forwards one event. Events not
	// matching the destination's subscriptions or filters are dropped
	// silently.
	Write(event *domain.TraceEvent) error

	// ApplySubscriptions replaces the active subscription set with one
	// batch. The caller orders the batch (system provider first).
	ApplySubscriptions(batch []config.Subscription) error

	// ApplyFilters replaces the regex text filters. Fails with
	// ErrUnsupportedOperation on types lacking the text-filter capability.
	ApplyFilters(patterns []string) error

	// RotateIfDue rotates when the active interval has elapsed. Non
	// file-backed types report false.
	RotateIfDue(now time.Time) (bool, error)

	// Rotate rotates unconditionally. Fails with ErrUnsupportedOperation
	// on types that are not file-backed.
	Rotate(now time.Time) error

	// Close releases the write handle and the retention catalog.
	Close() error
}

// base carries the state and matching logic shared by every destination
// type.
type base struct {
	mu      sync.Mutex
	cfg     *config.Destination
	subs    []config.Subscription
	filters []*regexp.Regexp
	log     *zap.Logger
	metrics *observe.Metrics
	closed  bool
}

func newBase(cfg *config.Destination, log *zap.Logger, metrics *observe.Metrics) base {
	if log == nil {
		log = zap.NewNop()
	}
	return base{
		cfg:     cfg,
		log:     log.With(zap.String("destination", cfg.Name), zap.String("type", string(cfg.Type))),
		metrics: metrics,
	}
}

func (b *base) Name() string                 { return b.cfg.Name }
func (b *base) Type() config.DestinationType { return b.cfg.Type }
func (b *base) Config() *config.Destination  { return b.cfg }

// ApplySubscriptions replaces the subscription set. A subscription that
// can only be resolved by a mechanism outside the type's capability
// matrix is a contract violation.
func (b *base) ApplySubscriptions(batch []config.Subscription) error {
	caps := b.cfg.Type.Capabilities()
	for _, sub := range batch {
		byName := sub.Name != ""
		byID := sub.ProviderID != uuid.Nil
		if byName && !byID && caps&config.CapSubscribeByName == 0 {
			return fmt.Errorf("%w: %q cannot subscribe by name on type %q",
				domain.ErrUnsupportedOperation, sub.Name, b.cfg.Type)
		}
		if byID && !byName && caps&config.CapSubscribeByID == 0 {
			return fmt.Errorf("%w: cannot subscribe by provider id on type %q",
				domain.ErrUnsupportedOperation, b.cfg.Type)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append([]config.Subscription(nil), batch...)
	return nil
}

// ApplyFilters compiles and installs the regex text filters.
func (b *base) ApplyFilters(patterns []string) error {
	if len(patterns) > 0 && !b.cfg.Type.Has(config.CapTextFilter) {
		return fmt.Errorf("%w: type %q does not support text filters",
			domain.ErrUnsupportedOperation, b.cfg.Type)
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("%w: bad filter pattern %q: %v", domain.ErrInvalidConfiguration, pattern, err)
		}
		compiled = append(compiled, re)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.filters = compiled
	return nil
}

// accepts reports whether the event passes any subscription and, for
// filtered types, any regex over its formatted text. Called under mu.
func (b *base) accepts(e *domain.TraceEvent) bool {
	matched := false
	for _, sub := range b.subs {
		if !subscriptionMatches(sub, e) {
			continue
		}
		matched = true
		break
	}
	if !matched {
		return false
	}

	if len(b.filters) == 0 {
		return true
	}
	text := e.FormatText()
	for _, re := range b.filters {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func subscriptionMatches(sub config.Subscription, e *domain.TraceEvent) bool {
	byName := sub.Name != "" && strings.EqualFold(sub.Name, e.ProviderName)
	byID := sub.ProviderID != uuid.Nil && sub.ProviderID == e.ProviderID
	if !byName && !byID {
		return false
	}
	if !e.MatchesSubscriptionLevel(sub.MinimumLevel) {
		return false
	}
	return sub.Keywords == 0 || e.Keywords&sub.Keywords != 0
}

// notFileBacked is the shared rotation stub for console, memory and
// network destinations.
type notFileBacked struct{}

func (notFileBacked) RotateIfDue(time.Time) (bool, error) { return false, nil }

func (n notFileBacked) Rotate(time.Time) error {
	return fmt.Errorf("%w: destination is not file-backed", domain.ErrUnsupportedOperation)
}
