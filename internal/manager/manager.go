// Package manager orchestrates the live destination set: it applies
// configuration snapshots atomically, runs the periodic rotation tick,
// resolves late-bound subscriptions as providers appear, and owns
// creation and disposal of every destination.
package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vburojevic/tracesink/internal/config"
	"github.com/vburojevic/tracesink/internal/domain"
	"github.com/vburojevic/tracesink/internal/observe"
	"github.com/vburojevic/tracesink/internal/sink"
)

const (
	tickInterval        = time.Minute
	forceRotateCooldown = 5 * time.Second
)

// ErrNotOwned is returned by DestroyDestination for a handle this
// manager did not create.
var ErrNotOwned = errors.New("destination not owned by this manager")

// Defect reports one destination descriptor rejected during apply.
type Defect struct {
	Name string
	Err  error
}

func (d Defect) Error() string {
	return fmt.Sprintf("destination %q: %v", d.Name, d.Err)
}

func (d Defect) Unwrap() error { return d.Err }

// Options configure a Manager. The zero value is usable.
type Options struct {
	Console io.Writer // console destination output, default os.Stdout
	Logger  *zap.Logger
	Metrics *observe.Metrics
	Clock   clock.Clock
}

// liveEntry pairs a live destination with its runtime subscription
// state. The sealed config keeps the declared subscriptions; the runtime
// copy tracks Unresolved -> Resolved transitions.
type liveEntry struct {
	dest sink.Destination
	cfg  *config.Destination
	subs []config.Subscription
}

// Manager holds the current configuration snapshot and the map of live
// destinations. One exclusive lock guards both; every mutating operation
// takes it, so no caller observes a destination set that mixes old and
// new configuration.
type Manager struct {
	log     *zap.Logger
	metrics *observe.Metrics
	clk     clock.Clock
	console io.Writer

	mu        sync.Mutex
	cfg       config.Global
	live      map[string]*liveEntry
	registry  providerRegistry
	lastForce time.Time
	closed    bool

	ticker *scheduler
}

// New constructs a manager and starts its rotation scheduler. Managers
// are independent; construct as many per process as needed.
func New(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Console == nil {
		opts.Console = os.Stdout
	}

	m := &Manager{
		log:     opts.Logger.Named("manager"),
		metrics: opts.Metrics,
		clk:     opts.Clock,
		console: opts.Console,
		cfg:     config.NewGlobal(),
		live:    map[string]*liveEntry{},
	}
	m.ticker = newScheduler(m.clk, tickInterval, m.rotationTick)
	return m
}

// Shutdown stops the rotation scheduler, then disposes every live
// destination and clears state under one lock acquisition.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	ticker := m.ticker
	m.ticker = nil
	m.mu.Unlock()

	// The tick callback takes the manager lock, so the scheduler must be
	// joined outside it.
	if ticker != nil {
		ticker.stop()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Destinations own independent handles (files, sockets, buffers), so
	// they flush and close in parallel.
	var group errgroup.Group
	for name, entry := range m.live {
		name, entry := name, entry
		group.Go(func() error {
			if err := entry.dest.Close(); err != nil {
				m.log.Warn("closing destination failed", zap.String("destination", name), zap.Error(err))
			}
			return nil
		})
	}
	_ = group.Wait()
	m.live = map[string]*liveEntry{}
	m.cfg = config.NewGlobal()
}

// ApplyConfiguration diffs the desired snapshot against the live set and
// converges to it atomically. Invalid descriptors are reported as defects
// and excluded while the valid remainder still applies. If the new
// configuration is entirely unusable the previous good live set is kept.
func (m *Manager) ApplyConfiguration(next config.Global) []Defect {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return []Defect{{Err: errors.New("manager is shut down")}}
	}

	var defects []Defect
	valid := map[string]*config.Destination{}
	for name, d := range next.Destinations {
		d := d.Clone()
		d.Normalize()
		if err := config.Validate(d); err != nil {
			defects = append(defects, Defect{Name: name, Err: err})
			m.metrics.ApplyDefect(context.Background())
			m.log.Error("rejecting destination descriptor", zap.String("destination", name), zap.Error(err))
			continue
		}
		if d.Type == config.TypeBinaryTrace && next.TraceOverride == config.OverrideForceDisabled {
			defects = append(defects, Defect{Name: name, Err: fmt.Errorf(
				"%w: binary trace capture is force-disabled", domain.ErrUnsupportedOperation)})
			m.log.Warn("binary trace destination suppressed by override", zap.String("destination", name))
			continue
		}
		valid[d.Name] = d
	}

	// A new config with no usable destination never tears down the
	// previous good live set.
	if len(valid) == 0 {
		return defects
	}

	// Destroy live destinations that are absent from the new config or
	// whose type changed.
	for name, entry := range m.live {
		desired, keep := valid[name]
		if keep && desired.Type == entry.cfg.Type {
			continue
		}
		if err := entry.dest.Close(); err != nil {
			m.log.Warn("closing destination failed", zap.String("destination", name), zap.Error(err))
		}
		delete(m.live, name)
	}

	for name, d := range valid {
		if entry, ok := m.live[name]; ok {
			// Same identity: only re-apply subscriptions and filters.
			d.Seal()
			entry.cfg = d
			entry.subs = m.resolveSubscriptions(d.Subscriptions)
			if err := m.issueSubscriptions(entry); err != nil {
				defects = append(defects, Defect{Name: name, Err: err})
				continue
			}
			if err := entry.dest.ApplyFilters(d.Filters); err != nil {
				defects = append(defects, Defect{Name: name, Err: err})
			}
			continue
		}

		entry, err := m.createLocked(d)
		if err != nil {
			defects = append(defects, Defect{Name: name, Err: err})
			m.log.Error("creating destination failed", zap.String("destination", name), zap.Error(err))
			continue
		}
		m.live[name] = entry
	}

	snapshot := config.NewGlobal()
	snapshot.TraceOverride = next.TraceOverride
	for _, entry := range m.live {
		snapshot.Destinations[entry.cfg.Name] = entry.cfg
	}
	m.cfg = snapshot
	return defects
}

// CreateDestination validates and creates one destination outside a full
// apply. The returned handle is the argument for DestroyDestination.
func (m *Manager) CreateDestination(d *config.Destination) (sink.Destination, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New("manager is shut down")
	}

	d = d.Clone()
	d.Normalize()
	if err := config.Validate(d); err != nil {
		return nil, err
	}
	if _, taken := m.live[d.Name]; taken {
		return nil, fmt.Errorf("%w: %q", domain.ErrAlreadyExists, d.Name)
	}

	entry, err := m.createLocked(d)
	if err != nil {
		return nil, err
	}
	m.live[d.Name] = entry
	m.cfg.Add(d)
	return entry.dest, nil
}

// DestroyDestination disposes a destination by reference identity.
// Destroying the reserved console destination is rejected.
func (m *Manager) DestroyDestination(handle sink.Destination) error {
	if handle == nil {
		return ErrNotOwned
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, entry := range m.live {
		if entry.dest != handle {
			continue
		}
		if name == config.ConsoleName {
			return fmt.Errorf("%w: the console destination cannot be destroyed", domain.ErrUnsupportedOperation)
		}
		err := entry.dest.Close()
		delete(m.live, name)
		delete(m.cfg.Destinations, name)
		if err != nil {
			m.log.Warn("closing destination failed", zap.String("destination", name), zap.Error(err))
		}
		return nil
	}
	return ErrNotOwned
}

// ForceRotate immediately rotates every file-backed destination. A call
// within the cool-down window of the previous one is a no-op reporting
// false, so accidental call storms cannot churn files.
func (m *Manager) ForceRotate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}

	now := m.clk.Now()
	if !m.lastForce.IsZero() && now.Sub(m.lastForce) < forceRotateCooldown {
		return false
	}
	m.lastForce = now

	for name, entry := range m.live {
		if !entry.cfg.Type.Has(config.CapFileBacked) {
			continue
		}
		if err := entry.dest.Rotate(now); err != nil {
			m.handleRotateError(name, entry, err)
			continue
		}
		m.metrics.Rotation(context.Background(), name)
	}
	return true
}

// RegisterProvider records a newly observable in-process event source
// and resolves every matching unresolved subscription across the live
// set, issuing the now-concrete subscriptions to their destinations.
func (m *Manager) RegisterProvider(p domain.Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.registry.register(p)

	for name, entry := range m.live {
		changed := false
		for i, sub := range entry.subs {
			if sub.Resolved {
				continue
			}
			if !p.MatchesName(sub.Name) && !p.MatchesID(sub.ProviderID) {
				continue
			}
			entry.subs[i].Resolved = true
			entry.subs[i].Name = p.Name
			entry.subs[i].ProviderID = p.ID
			changed = true
		}
		if !changed {
			continue
		}
		if err := m.issueSubscriptions(entry); err != nil {
			m.log.Error("re-issuing subscriptions failed",
				zap.String("destination", name), zap.Error(err))
		}
	}
}

// FindProvider reports whether a provider matching the name or ID has
// been observed.
func (m *Manager) FindProvider(nameOrID string) (domain.Provider, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry.find(nameOrID)
}

// Destination returns the live destination with the given name.
func (m *Manager) Destination(name string) (sink.Destination, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.live[name]
	if !ok {
		return nil, false
	}
	return entry.dest, true
}

// DestinationNames returns the names of the live set, sorted.
func (m *Manager) DestinationNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.live))
	for name := range m.live {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Write fans one event out to every live destination. The live set is
// snapshotted first: destination writes can block on slow storage or a
// stalled network peer, and must not do so under the manager lock. The
// per-destination locks already serialize writes against rotation.
func (m *Manager) Write(event *domain.TraceEvent) {
	m.mu.Lock()
	dests := make(map[string]sink.Destination, len(m.live))
	for name, entry := range m.live {
		dests[name] = entry.dest
	}
	m.mu.Unlock()

	for name, dest := range dests {
		if err := dest.Write(event); err != nil {
			m.log.Warn("event write failed", zap.String("destination", name), zap.Error(err))
		}
	}
}

// rotationTick asks every file-backed destination whether it is due for
// rotation. A destination that is not due is a no-op.
func (m *Manager) rotationTick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	now := m.clk.Now()
	for name, entry := range m.live {
		if !entry.cfg.Type.Has(config.CapFileBacked) {
			continue
		}
		rotated, err := entry.dest.RotateIfDue(now)
		if err != nil {
			m.handleRotateError(name, entry, err)
			continue
		}
		if rotated {
			m.metrics.Rotation(context.Background(), name)
		}
	}
}

// handleRotateError escalates an exhausted rename conflict to fatal for
// that destination; siblings are unaffected.
func (m *Manager) handleRotateError(name string, entry *liveEntry, err error) {
	m.log.Error("rotation failed", zap.String("destination", name), zap.Error(err))
	if !errors.Is(err, domain.ErrRenameConflict) {
		return
	}
	if cerr := entry.dest.Close(); cerr != nil {
		m.log.Warn("closing destination failed", zap.String("destination", name), zap.Error(cerr))
	}
	delete(m.live, name)
	delete(m.cfg.Destinations, name)
}

// createLocked seals the config, builds the concrete destination and
// applies its subscription batch and filters.
func (m *Manager) createLocked(d *config.Destination) (*liveEntry, error) {
	d.Seal()

	var (
		dest sink.Destination
		err  error
	)
	switch d.Type {
	case config.TypeConsole:
		dest = sink.NewConsole(d, m.console, m.log, m.metrics)
	case config.TypeMemoryBuffer:
		dest = sink.NewMemory(d, m.log, m.metrics)
	case config.TypeText:
		dest, err = sink.NewTextFile(d, m.clk, m.log, m.metrics)
	case config.TypeBinaryTrace:
		dest, err = sink.NewBinaryTrace(d, m.clk, m.log, m.metrics)
	case config.TypeNetwork:
		dest, err = sink.NewNetwork(d, m.log, m.metrics)
	default:
		err = fmt.Errorf("%w: unknown destination type %q", domain.ErrInvalidConfiguration, d.Type)
	}
	if err != nil {
		return nil, err
	}

	entry := &liveEntry{
		dest: dest,
		cfg:  d,
		subs: m.resolveSubscriptions(d.Subscriptions),
	}
	if err := m.issueSubscriptions(entry); err != nil {
		dest.Close()
		return nil, err
	}
	if err := dest.ApplyFilters(d.Filters); err != nil {
		dest.Close()
		return nil, err
	}
	return entry, nil
}

// resolveSubscriptions copies the declared subscriptions, marking those
// whose provider is already observable.
func (m *Manager) resolveSubscriptions(declared []config.Subscription) []config.Subscription {
	subs := append([]config.Subscription(nil), declared...)
	for i, sub := range subs {
		if sub.Resolved {
			continue
		}
		if p, ok := m.registry.match(sub.Name, sub.ProviderID); ok {
			subs[i].Resolved = true
			subs[i].Name = p.Name
			subs[i].ProviderID = p.ID
		}
	}
	return subs
}

// issueSubscriptions sends the subscription state to the destination as
// one ordered batch: the designated system provider, if subscribed, must
// be enabled before any other provider in the same capture session.
func (m *Manager) issueSubscriptions(entry *liveEntry) error {
	batch := append([]config.Subscription(nil), entry.subs...)
	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].IsSystem() && !batch[j].IsSystem()
	})
	return entry.dest.ApplySubscriptions(batch)
}
