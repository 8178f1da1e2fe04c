// Package cycle runs the batch cycles the core is built from: ingestion,
// reconciliation, and signal synthesis, each on its own cadence with its
// own wall-clock budget. Cycles share no long-lived state beyond the
// stores; every operation is append-only or idempotent, so a cycle cut off
// by its budget simply resumes next time.
package cycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/orbital/orbwatch/internal/catalog"
	"github.com/orbital/orbwatch/internal/collab"
	"github.com/orbital/orbwatch/internal/elements"
	"github.com/orbital/orbwatch/internal/maneuver"
	"github.com/orbital/orbwatch/internal/metrics"
	"github.com/orbital/orbwatch/internal/propagation"
	"github.com/orbital/orbwatch/internal/reconcile"
	"github.com/orbital/orbwatch/internal/signal"
	"github.com/orbital/orbwatch/internal/source"
	"github.com/orbital/orbwatch/internal/view"
)

// Config holds cycle cadences, budgets, and scan parameters.
type Config struct {
	CatalogIDs []int

	IngestInterval     time.Duration
	ReconcileInterval  time.Duration
	SynthesizeInterval time.Duration

	IngestBudget     time.Duration
	ReconcileBudget  time.Duration
	SynthesizeBudget time.Duration

	// HistoryLimit bounds how many snapshots the maneuver detector reads
	// per object.
	HistoryLimit int

	// CollabLookback bounds how far back filings/patents are materialized.
	CollabLookback time.Duration

	// MarketSymbol and MarketBarLimit select the price/volume series.
	MarketSymbol   string
	MarketBarLimit int
}

// Runner wires the adapters, stores, and engine into scheduled cycles.
type Runner struct {
	cfg      Config
	adapters []source.Adapter
	store    elements.Store
	reader   collab.Reader
	engine   *signal.Engine
	tracker  *view.Tracker
	pool     *propagation.Pool
	logger   *slog.Logger

	mu        sync.RWMutex
	available map[catalog.Source]bool
}

// NewRunner creates a cycle runner.
func NewRunner(cfg Config, adapters []source.Adapter, store elements.Store, reader collab.Reader,
	engine *signal.Engine, tracker *view.Tracker, pool *propagation.Pool, logger *slog.Logger) *Runner {
	return &Runner{
		cfg:       cfg,
		adapters:  adapters,
		store:     store,
		reader:    reader,
		engine:    engine,
		tracker:   tracker,
		pool:      pool,
		logger:    logger.With("component", "cycle"),
		available: make(map[catalog.Source]bool),
	}
}

// Availability reports which sources succeeded on their last fetch. The
// health surface exposes this so degraded mode is visible, not silent.
func (r *Runner) Availability() map[catalog.Source]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[catalog.Source]bool, len(r.available))
	for k, v := range r.available {
		out[k] = v
	}
	return out
}

func (r *Runner) setAvailable(src catalog.Source, ok bool) {
	r.mu.Lock()
	r.available[src] = ok
	r.mu.Unlock()
}

// Start runs all cycles on their configured cadences until ctx is done.
// Each cycle fires once immediately so a fresh process is useful without
// waiting a full interval.
func (r *Runner) Start(ctx context.Context) {
	r.runIngestCycle(ctx)
	r.runReconcileCycle(ctx)
	r.runSynthesizeCycle(ctx)

	ingest := time.NewTicker(r.cfg.IngestInterval)
	reconcileTick := time.NewTicker(r.cfg.ReconcileInterval)
	synthesize := time.NewTicker(r.cfg.SynthesizeInterval)
	defer ingest.Stop()
	defer reconcileTick.Stop()
	defer synthesize.Stop()

	for {
		select {
		case <-ingest.C:
			r.runIngestCycle(ctx)
		case <-reconcileTick.C:
			r.runReconcileCycle(ctx)
		case <-synthesize.C:
			r.runSynthesizeCycle(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runner) runIngestCycle(ctx context.Context) {
	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, r.cfg.IngestBudget)
	defer cancel()

	if err := r.Ingest(cctx); err != nil {
		r.logger.Error("ingest cycle failed", "error", err)
	}
	metrics.RecordCycle("ingest", time.Since(start))
}

func (r *Runner) runReconcileCycle(ctx context.Context) {
	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, r.cfg.ReconcileBudget)
	defer cancel()

	if err := r.Reconcile(cctx); err != nil {
		r.logger.Error("reconcile cycle failed", "error", err)
	}
	metrics.RecordCycle("reconcile", time.Since(start))
}

func (r *Runner) runSynthesizeCycle(ctx context.Context) {
	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, r.cfg.SynthesizeBudget)
	defer cancel()

	if err := r.Synthesize(cctx); err != nil {
		r.logger.Error("synthesize cycle failed", "error", err)
	}
	metrics.RecordCycle("synthesize", time.Since(start))
}

// Ingest fetches from every adapter concurrently and appends the results.
// Adapters fail independently: one source going dark degrades, never aborts.
func (r *Runner) Ingest(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, adapter := range r.adapters {
		adapter := adapter
		g.Go(func() error {
			src := adapter.Name()
			snaps, err := adapter.Fetch(gctx, r.cfg.CatalogIDs)
			if err != nil {
				r.setAvailable(src, false)
				metrics.RecordFetchError(string(src))
				r.logger.Warn("source fetch failed, continuing degraded",
					"source", string(src), "error", err)
				return nil
			}
			r.setAvailable(src, true)

			inserted, err := r.store.Append(gctx, snaps)
			if err != nil {
				r.logger.Error("element append failed", "source", string(src), "error", err)
				return nil
			}
			metrics.RecordIngest(string(src), inserted)

			// Refresh object identity rows from whatever names came back.
			for _, snap := range snaps {
				if snap.Name == "" {
					continue
				}
				obj := catalog.TrackedObject{CatalogID: snap.CatalogID, Name: snap.Name}
				if err := r.store.UpsertObject(gctx, obj); err != nil {
					r.logger.Warn("object upsert failed", "catalog_id", snap.CatalogID, "error", err)
				}
			}

			r.logger.Info("ingest complete",
				"source", string(src),
				"fetched", len(snaps),
				"inserted", inserted,
			)
			return nil
		})
	}

	return g.Wait()
}

// Reconcile recomputes every object's health and current position and
// installs the result as the new view snapshot.
func (r *Runner) Reconcile(ctx context.Context) error {
	now := time.Now().UTC()

	objects, err := r.store.Objects(ctx)
	if err != nil {
		return err
	}

	names := make(map[int]string, len(objects))
	ids := make([]int, 0, len(objects))
	for _, obj := range objects {
		names[obj.CatalogID] = obj.Name
		ids = append(ids, obj.CatalogID)
	}
	if len(ids) == 0 {
		ids = r.cfg.CatalogIDs
	}

	views := make(map[int]view.ObjectView, len(ids))
	var toPropagate []catalog.ElementSnapshot
	worstAge := make(map[catalog.Source]float64)

	for _, id := range ids {
		primary := r.latestOrNil(ctx, id, catalog.SourcePrimary)
		authoritative := r.latestOrNil(ctx, id, catalog.SourceAuthoritative)

		health := reconcile.Evaluate(id, primary, authoritative, now)
		views[id] = view.ObjectView{
			CatalogID: id,
			Name:      names[id],
			Health:    health,
			UpdatedAt: now,
		}

		for src, sh := range health.PerSource {
			if sh.Present && sh.AgeHours > worstAge[src] {
				worstAge[src] = sh.AgeHours
			}
		}

		// Position comes from the primary source; fall back to the
		// authoritative one rather than showing nothing.
		switch {
		case primary != nil:
			toPropagate = append(toPropagate, *primary)
		case authoritative != nil:
			toPropagate = append(toPropagate, *authoritative)
		}
	}

	propStart := time.Now()
	states, success, failures := r.pool.PropagateBatch(ctx, toPropagate, now)
	metrics.RecordPropagation(time.Since(propStart), success, failures)

	for i := range states {
		state := states[i]
		if v, ok := views[state.CatalogID]; ok {
			v.Position = &state
			views[state.CatalogID] = v
		}
	}

	for src, age := range worstAge {
		metrics.SetElementAge(string(src), age)
	}

	r.tracker.Replace(ctx, views, now)
	r.logger.Info("reconcile complete",
		"objects", len(ids),
		"positions", success,
		"position_failures", failures,
	)
	return nil
}

// Synthesize materializes the current state snapshot and runs the signal
// engine over it.
func (r *Runner) Synthesize(ctx context.Context) error {
	now := time.Now().UTC()

	snap, err := r.materialize(ctx, now)
	if err != nil {
		return err
	}

	stats, err := r.engine.Run(ctx, snap)
	if err != nil {
		return err
	}
	metrics.RecordSignals(stats.Inserted, stats.Duplicates, stats.Reactivated, stats.Expired)

	r.logger.Info("synthesize complete",
		"candidates", stats.Candidates,
		"inserted", stats.Inserted,
		"duplicates", stats.Duplicates,
		"reactivated", stats.Reactivated,
		"expired", stats.Expired,
		"detector_errors", stats.DetectorErrors,
	)
	return nil
}

func (r *Runner) materialize(ctx context.Context, now time.Time) (signal.Snapshot, error) {
	snap := signal.Snapshot{Now: now}

	ids := r.cfg.CatalogIDs
	if objects, err := r.store.Objects(ctx); err == nil && len(objects) > 0 {
		ids = ids[:0:0]
		for _, obj := range objects {
			ids = append(ids, obj.CatalogID)
		}
	}

	for _, id := range ids {
		primary := r.latestOrNil(ctx, id, catalog.SourcePrimary)
		authoritative := r.latestOrNil(ctx, id, catalog.SourceAuthoritative)
		snap.Health = append(snap.Health, reconcile.Evaluate(id, primary, authoritative, now))

		// Maneuver detection reads primary-source history exclusively.
		history, err := r.store.History(ctx, id, catalog.SourcePrimary, r.cfg.HistoryLimit)
		if err != nil {
			r.logger.Warn("history read failed", "catalog_id", id, "error", err)
			continue
		}
		snap.Maneuvers = append(snap.Maneuvers, maneuver.Detect(history, now)...)
	}

	since := now.Add(-r.cfg.CollabLookback)
	filings, err := r.reader.FilingsSince(ctx, since)
	if err != nil {
		r.logger.Warn("filings read failed", "error", err)
	} else {
		snap.Filings = filings
	}

	patents, err := r.reader.PatentsSince(ctx, since)
	if err != nil {
		r.logger.Warn("patents read failed", "error", err)
	} else {
		snap.Patents = patents
	}

	if r.cfg.MarketSymbol != "" {
		bars, err := r.reader.MarketBars(ctx, r.cfg.MarketSymbol, r.cfg.MarketBarLimit)
		if err != nil {
			r.logger.Warn("market bars read failed", "error", err)
		} else {
			snap.Bars = bars
		}
	}

	return snap, nil
}

func (r *Runner) latestOrNil(ctx context.Context, catalogID int, src catalog.Source) *catalog.ElementSnapshot {
	snap, err := r.store.Latest(ctx, catalogID, src)
	if err != nil {
		if !errors.Is(err, elements.ErrNoSnapshot) {
			r.logger.Warn("latest snapshot read failed",
				"catalog_id", catalogID, "source", string(src), "error", err)
		}
		return nil
	}
	return &snap
}
