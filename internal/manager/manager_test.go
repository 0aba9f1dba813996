package manager

import (
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vburojevic/tracesink/internal/config"
	"github.com/vburojevic/tracesink/internal/domain"
	"github.com/vburojevic/tracesink/internal/sink"
)

func newTestManager(t *testing.T) (*Manager, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC))
	m := New(Options{Clock: mock, Console: io.Discard})
	t.Cleanup(m.Shutdown)
	return m, mock
}

func memoryDesc(name string) *config.Destination {
	return &config.Destination{
		Name:         name,
		Type:         config.TypeMemoryBuffer,
		BufferSizeMB: 1,
		Subscriptions: []config.Subscription{
			{Name: "app.core", MinimumLevel: domain.SeverityInfo},
		},
	}
}

func textDesc(name, dir string) *config.Destination {
	return &config.Destination{
		Name:             name,
		Type:             config.TypeText,
		Directory:        dir,
		RotationInterval: time.Hour,
		Subscriptions: []config.Subscription{
			{Name: "app.core", MinimumLevel: domain.SeverityInfo},
		},
	}
}

func snapshot(dests ...*config.Destination) config.Global {
	g := config.NewGlobal()
	for _, d := range dests {
		g.Add(d)
	}
	return g
}

func TestApplyConfigurationRejectsDefectsIndividually(t *testing.T) {
	m, _ := newTestManager(t)

	bad := &config.Destination{Name: "bad", Type: config.TypeMemoryBuffer}
	defects := m.ApplyConfiguration(snapshot(memoryDesc("good"), bad))

	require.Len(t, defects, 1)
	assert.Equal(t, "bad", defects[0].Name)
	assert.True(t, errors.Is(defects[0], domain.ErrInvalidConfiguration))

	assert.Equal(t, []string{"good"}, m.DestinationNames())
}

func TestApplyUnusableConfigurationKeepsLiveSet(t *testing.T) {
	m, _ := newTestManager(t)

	require.Empty(t, m.ApplyConfiguration(snapshot(memoryDesc("keep"))))

	bad := &config.Destination{Name: "bad", Type: config.TypeMemoryBuffer}
	defects := m.ApplyConfiguration(snapshot(bad))
	require.Len(t, defects, 1)

	// The previous good set survives an entirely unusable snapshot.
	_, ok := m.Destination("keep")
	assert.True(t, ok)
}

func TestApplyTypeChangeRecreatesDestination(t *testing.T) {
	m, _ := newTestManager(t)
	dir := t.TempDir()

	require.Empty(t, m.ApplyConfiguration(snapshot(textDesc("d", dir))))
	before, ok := m.Destination("d")
	require.True(t, ok)
	require.Equal(t, config.TypeText, before.Type())

	require.Empty(t, m.ApplyConfiguration(snapshot(memoryDesc("d"))))
	after, ok := m.Destination("d")
	require.True(t, ok)
	assert.Equal(t, config.TypeMemoryBuffer, after.Type())
	assert.NotSame(t, before, after)
}

func TestApplySameTypeRebindsInPlace(t *testing.T) {
	m, _ := newTestManager(t)

	require.Empty(t, m.ApplyConfiguration(snapshot(memoryDesc("d"))))
	before, _ := m.Destination("d")

	updated := memoryDesc("d")
	updated.Subscriptions = append(updated.Subscriptions,
		config.Subscription{Name: "app.aux", MinimumLevel: domain.SeverityVerbose})
	require.Empty(t, m.ApplyConfiguration(snapshot(updated)))

	after, _ := m.Destination("d")
	assert.Same(t, before, after)
}

func TestBinaryTraceSuppressedByOverride(t *testing.T) {
	m, _ := newTestManager(t)

	binary := &config.Destination{
		Name:      "trace",
		Type:      config.TypeBinaryTrace,
		Directory: t.TempDir(),
		Subscriptions: []config.Subscription{
			{ProviderID: uuid.New(), MinimumLevel: domain.SeverityInfo},
		},
	}
	g := snapshot(memoryDesc("buf"), binary)
	g.TraceOverride = config.OverrideForceDisabled

	defects := m.ApplyConfiguration(g)
	require.Len(t, defects, 1)
	assert.Equal(t, "trace", defects[0].Name)
	assert.True(t, errors.Is(defects[0], domain.ErrUnsupportedOperation))

	_, ok := m.Destination("trace")
	assert.False(t, ok)
	_, ok = m.Destination("buf")
	assert.True(t, ok)
}

func TestWriteFansOutToMatchingDestinations(t *testing.T) {
	m, _ := newTestManager(t)
	require.Empty(t, m.ApplyConfiguration(snapshot(memoryDesc("buf"))))

	m.Write(&domain.TraceEvent{
		Timestamp:    time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC),
		ProviderName: "app.core",
		Severity:     domain.SeverityError,
		Message:      "boom",
	})

	dest, ok := m.Destination("buf")
	require.True(t, ok)
	mem, ok := dest.(*sink.Memory)
	require.True(t, ok)
	assert.Equal(t, 1, mem.Count())
}

func TestForceRotateCooldown(t *testing.T) {
	m, mock := newTestManager(t)
	require.Empty(t, m.ApplyConfiguration(snapshot(textDesc("d", t.TempDir()))))

	assert.True(t, m.ForceRotate())
	// Within the cool-down window the call is a no-op.
	assert.False(t, m.ForceRotate())

	mock.Add(6 * time.Second)
	assert.True(t, m.ForceRotate())
}

func TestScheduledRotationTick(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 6, 15, 10, 59, 30, 0, time.UTC))
	m := New(Options{Clock: mock, Console: io.Discard})
	t.Cleanup(m.Shutdown)

	require.Empty(t, m.ApplyConfiguration(snapshot(textDesc("d", t.TempDir()))))
	dest, _ := m.Destination("d")
	text := dest.(*sink.TextFile)
	require.Contains(t, text.CurrentFilename(), "10-00-00")

	// The minute-aligned tick at 11:00 crosses the hour boundary and
	// rotates the file.
	mock.Add(time.Minute)
	require.Eventually(t, func() bool {
		return strings.Contains(text.CurrentFilename(), "11-00-00")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCreateDestinationRejectsDuplicate(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.CreateDestination(memoryDesc("x"))
	require.NoError(t, err)

	_, err = m.CreateDestination(memoryDesc("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAlreadyExists))
}

func TestDestroyDestinationByHandle(t *testing.T) {
	m, _ := newTestManager(t)

	handle, err := m.CreateDestination(memoryDesc("x"))
	require.NoError(t, err)

	require.NoError(t, m.DestroyDestination(handle))
	_, ok := m.Destination("x")
	assert.False(t, ok)

	// The handle is gone; a second destroy is a foreign handle.
	assert.ErrorIs(t, m.DestroyDestination(handle), ErrNotOwned)
}

func TestDestroyConsoleRejected(t *testing.T) {
	m, _ := newTestManager(t)

	console := &config.Destination{
		Type: config.TypeConsole,
		Subscriptions: []config.Subscription{
			{Name: "app.core", MinimumLevel: domain.SeverityInfo},
		},
	}
	handle, err := m.CreateDestination(console)
	require.NoError(t, err)
	require.Equal(t, config.ConsoleName, handle.Name())

	err = m.DestroyDestination(handle)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnsupportedOperation))
}

// stalledDest blocks every write until released, standing in for a
// destination whose peer has stopped reading.
type stalledDest struct {
	sink.Destination
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *stalledDest) Write(*domain.TraceEvent) error {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return nil
}

func (s *stalledDest) Close() error { return nil }

func TestWriteDoesNotHoldManagerLock(t *testing.T) {
	m, _ := newTestManager(t)

	stalled := &stalledDest{entered: make(chan struct{}), release: make(chan struct{})}
	m.mu.Lock()
	m.live["slow"] = &liveEntry{
		dest: stalled,
		cfg:  &config.Destination{Name: "slow", Type: config.TypeNetwork},
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.Write(&domain.TraceEvent{
			Timestamp:    time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC),
			ProviderName: "app.core",
			Severity:     domain.SeverityInfo,
			Message:      "stuck",
		})
		close(done)
	}()

	// Once the write is provably stalled inside the destination,
	// lock-taking operations must still complete.
	<-stalled.entered
	assert.Equal(t, []string{"slow"}, m.DestinationNames())
	assert.True(t, m.ForceRotate())

	close(stalled.release)
	<-done
}

func TestDestroyForeignConsoleHandleNotOwned(t *testing.T) {
	m, _ := newTestManager(t)
	other, _ := newTestManager(t)

	console := &config.Destination{
		Type: config.TypeConsole,
		Subscriptions: []config.Subscription{
			{Name: "app.core", MinimumLevel: domain.SeverityInfo},
		},
	}
	foreign, err := other.CreateDestination(console)
	require.NoError(t, err)

	// A console handle owned by another manager is a foreign handle, not
	// a protected console.
	assert.ErrorIs(t, m.DestroyDestination(foreign), ErrNotOwned)
}

func TestRegisterProviderResolvesLateBoundSubscriptions(t *testing.T) {
	m, _ := newTestManager(t)
	require.Empty(t, m.ApplyConfiguration(snapshot(memoryDesc("buf"))))

	provider := domain.Provider{Name: "app.core", ID: uuid.New()}
	m.RegisterProvider(provider)

	found, ok := m.FindProvider("APP.CORE")
	require.True(t, ok)
	assert.Equal(t, provider.ID, found.ID)

	found, ok = m.FindProvider(provider.ID.String())
	require.True(t, ok)
	assert.Equal(t, provider.Name, found.Name)

	// The resolved subscription now carries the provider ID, so events
	// identified only by ID reach the destination.
	m.Write(&domain.TraceEvent{
		Timestamp:  time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC),
		ProviderID: provider.ID,
		Severity:   domain.SeverityInfo,
		Message:    "by-id",
	})

	dest, _ := m.Destination("buf")
	assert.Equal(t, 1, dest.(*sink.Memory).Count())
}

// batchRecorder captures the subscription batches a destination receives.
type batchRecorder struct {
	sink.Destination
	batches [][]config.Subscription
}

func (r *batchRecorder) ApplySubscriptions(batch []config.Subscription) error {
	r.batches = append(r.batches, batch)
	return nil
}

func TestSystemProviderOrderedFirst(t *testing.T) {
	m, _ := newTestManager(t)

	entry := &liveEntry{
		dest: &batchRecorder{},
		subs: []config.Subscription{
			{Name: "app.core", MinimumLevel: domain.SeverityInfo},
			{Name: "app.aux", MinimumLevel: domain.SeverityVerbose},
			{Name: domain.SystemProviderName, MinimumLevel: domain.SeverityWarning},
		},
	}
	require.NoError(t, m.issueSubscriptions(entry))

	recorder := entry.dest.(*batchRecorder)
	require.Len(t, recorder.batches, 1)
	batch := recorder.batches[0]
	require.Len(t, batch, 3)
	assert.True(t, batch[0].IsSystem())
	// Sibling order is preserved behind the system provider.
	assert.Equal(t, "app.core", batch[1].Name)
	assert.Equal(t, "app.aux", batch[2].Name)
}

func TestShutdownDisposesEverything(t *testing.T) {
	defer goleak.VerifyNone(t)

	mock := clock.NewMock()
	mock.Set(time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC))
	m := New(Options{Clock: mock, Console: io.Discard})

	require.Empty(t, m.ApplyConfiguration(snapshot(memoryDesc("buf"), textDesc("d", t.TempDir()))))

	m.Shutdown()
	assert.Empty(t, m.DestinationNames())

	// Post-shutdown operations degrade, never panic.
	defects := m.ApplyConfiguration(snapshot(memoryDesc("late")))
	require.Len(t, defects, 1)
	assert.False(t, m.ForceRotate())
	m.Shutdown() // idempotent
}
