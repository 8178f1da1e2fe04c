package cycle

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbital/orbwatch/internal/catalog"
	"github.com/orbital/orbwatch/internal/collab"
	"github.com/orbital/orbwatch/internal/elements"
	"github.com/orbital/orbwatch/internal/propagation"
	"github.com/orbital/orbwatch/internal/reconcile"
	"github.com/orbital/orbwatch/internal/signal"
	"github.com/orbital/orbwatch/internal/source"
	"github.com/orbital/orbwatch/internal/view"
)

const (
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005"
	issLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09"
)

type fakeAdapter struct {
	name  catalog.Source
	snaps []catalog.ElementSnapshot
	err   error
	calls atomic.Int32
}

var _ source.Adapter = (*fakeAdapter)(nil)

func (f *fakeAdapter) Name() catalog.Source { return f.name }

func (f *fakeAdapter) Fetch(ctx context.Context, catalogIDs []int) ([]catalog.ElementSnapshot, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.snaps, nil
}

func issSnap(t *testing.T, src catalog.Source) catalog.ElementSnapshot {
	t.Helper()
	snap, err := catalog.ParseLines("ISS (ZARYA)", issLine1, issLine2)
	require.NoError(t, err)
	snap.Source = src
	snap.FetchedAt = time.Now().UTC()
	return snap
}

func newTestRunner(t *testing.T, adapters []source.Adapter, store elements.Store, reader collab.Reader) (*Runner, *signal.MemoryStore, *view.Tracker) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	signals := signal.NewMemory()
	engine, err := signal.NewEngine(signals, signal.Registry(), logger)
	require.NoError(t, err)

	tracker := view.NewTracker(nil, logger)
	pool := propagation.NewPool(2, logger)

	cfg := Config{
		CatalogIDs:     []int{25544},
		CollabLookback: 90 * 24 * time.Hour,
	}
	return NewRunner(cfg, adapters, store, reader, engine, tracker, pool, logger), signals, tracker
}

func TestIngestDegradesOnSourceFailure(t *testing.T) {
	store := elements.NewMemory()
	primary := &fakeAdapter{name: catalog.SourcePrimary, snaps: []catalog.ElementSnapshot{issSnap(t, catalog.SourcePrimary)}}
	authoritative := &fakeAdapter{name: catalog.SourceAuthoritative, err: errors.New("upstream down")}

	runner, _, _ := newTestRunner(t, []source.Adapter{primary, authoritative}, store, collab.NewMemory())

	// One source dark degrades; the cycle as a whole still succeeds.
	require.NoError(t, runner.Ingest(context.Background()))

	avail := runner.Availability()
	assert.True(t, avail[catalog.SourcePrimary])
	assert.False(t, avail[catalog.SourceAuthoritative])
	assert.Equal(t, int32(1), primary.calls.Load())
	assert.Equal(t, int32(1), authoritative.calls.Load())

	// The healthy source's data landed.
	latest, err := store.Latest(context.Background(), 25544, catalog.SourcePrimary)
	require.NoError(t, err)
	assert.Equal(t, 25544, latest.CatalogID)

	// And the object identity row followed the snapshot's name.
	objects, err := store.Objects(context.Background())
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "ISS (ZARYA)", objects[0].Name)
}

func TestIngestRecovery(t *testing.T) {
	store := elements.NewMemory()
	flaky := &fakeAdapter{name: catalog.SourcePrimary, err: errors.New("down")}
	runner, _, _ := newTestRunner(t, []source.Adapter{flaky}, store, collab.NewMemory())

	require.NoError(t, runner.Ingest(context.Background()))
	assert.False(t, runner.Availability()[catalog.SourcePrimary])

	flaky.err = nil
	flaky.snaps = []catalog.ElementSnapshot{issSnap(t, catalog.SourcePrimary)}
	require.NoError(t, runner.Ingest(context.Background()))
	assert.True(t, runner.Availability()[catalog.SourcePrimary])
}

func TestReconcilePopulatesViews(t *testing.T) {
	store := elements.NewMemory()
	primary := &fakeAdapter{name: catalog.SourcePrimary, snaps: []catalog.ElementSnapshot{issSnap(t, catalog.SourcePrimary)}}
	runner, _, tracker := newTestRunner(t, []source.Adapter{primary}, store, collab.NewMemory())

	require.NoError(t, runner.Ingest(context.Background()))
	require.NoError(t, runner.Reconcile(context.Background()))

	v, ok := tracker.Get(25544)
	require.True(t, ok, "reconcile should install a view for the tracked object")
	assert.Equal(t, "ISS (ZARYA)", v.Name)

	ps := v.Health.PerSource[catalog.SourcePrimary]
	assert.True(t, ps.Present)
	as := v.Health.PerSource[catalog.SourceAuthoritative]
	assert.Equal(t, reconcile.FreshnessMissing, as.Freshness)

	_, updatedAt := tracker.All()
	assert.False(t, updatedAt.IsZero())
}

func TestReconcileWithoutData(t *testing.T) {
	store := elements.NewMemory()
	runner, _, tracker := newTestRunner(t, nil, store, collab.NewMemory())

	require.NoError(t, runner.Reconcile(context.Background()))

	// Configured ids still get a (fully missing) health view.
	v, ok := tracker.Get(25544)
	require.True(t, ok)
	assert.Equal(t, reconcile.FreshnessMissing, v.Health.PerSource[catalog.SourcePrimary].Freshness)
	assert.Nil(t, v.Position)
}

// maneuverHistory seeds a primary-source history whose last snapshot jumps
// mean motion enough to read as an orbit-lowering burn.
func maneuverHistory(t *testing.T, store elements.Store) {
	t.Helper()
	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	var batch []catalog.ElementSnapshot
	for i := 0; i < 10; i++ {
		jitter := 0.00005
		if i%2 == 0 {
			jitter = -jitter
		}
		batch = append(batch, catalog.ElementSnapshot{
			CatalogID:  25544,
			Source:     catalog.SourcePrimary,
			Epoch:      base.Add(time.Duration(i) * 24 * time.Hour),
			MeanMotion: 15.0 + jitter,
		})
	}
	batch = append(batch, catalog.ElementSnapshot{
		CatalogID:  25544,
		Source:     catalog.SourcePrimary,
		Epoch:      base.Add(10 * 24 * time.Hour),
		MeanMotion: 15.3,
	})

	_, err := store.Append(context.Background(), batch)
	require.NoError(t, err)
	require.NoError(t, store.UpsertObject(context.Background(), catalog.TrackedObject{CatalogID: 25544, Name: "ISS"}))
}

func TestSynthesizeIdempotent(t *testing.T) {
	store := elements.NewMemory()
	maneuverHistory(t, store)

	runner, signals, _ := newTestRunner(t, nil, store, collab.NewMemory())
	ctx := context.Background()

	require.NoError(t, runner.Synthesize(ctx))
	firstActive, err := signals.Active(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, firstActive, "maneuver history should yield at least one signal")

	var maneuverSeen bool
	for _, ev := range firstActive {
		if ev.Type == signal.TypeManeuver {
			maneuverSeen = true
		}
	}
	assert.True(t, maneuverSeen, "expected an orbital-maneuver signal, got %v", firstActive)

	// Unchanged data: a second run adds nothing.
	require.NoError(t, runner.Synthesize(ctx))
	secondActive, err := signals.Active(ctx)
	require.NoError(t, err)
	assert.Len(t, secondActive, len(firstActive))
}

func TestStartRespectsContext(t *testing.T) {
	store := elements.NewMemory()
	runner, _, _ := newTestRunner(t, nil, store, collab.NewMemory())
	runner.cfg.IngestInterval = time.Hour
	runner.cfg.ReconcileInterval = time.Hour
	runner.cfg.SynthesizeInterval = time.Hour
	runner.cfg.IngestBudget = time.Second
	runner.cfg.ReconcileBudget = time.Second
	runner.cfg.SynthesizeBudget = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runner.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not stop after context cancellation")
	}
}
