package signal

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
)

// Engine runs the detector battery over a materialized snapshot and
// persists the deduplicated results. Safe to re-run arbitrarily: unchanged
// underlying data produces zero new rows.
type Engine struct {
	store     Store
	detectors []Detector
	logger    *slog.Logger
}

// RunStats summarizes one synthesis run.
type RunStats struct {
	Candidates     int
	Inserted       int
	Duplicates     int
	Reactivated    int
	Expired        int
	DetectorErrors int
}

// NewEngine builds an engine over the given detector battery.
// Every detector type must have a policy row; a missing one is a
// construction error rather than a surprise at persistence time.
func NewEngine(store Store, detectors []Detector, logger *slog.Logger) (*Engine, error) {
	for _, d := range detectors {
		if _, ok := Policies[d.Type]; !ok {
			return nil, fmt.Errorf("detector type %q has no policy entry", d.Type)
		}
	}
	return &Engine{
		store:     store,
		detectors: detectors,
		logger:    logger.With("component", "signal-engine"),
	}, nil
}

// Run executes every detector, fingerprints and persists the candidates,
// then sweeps expired signals. One detector's panic is isolated and logged;
// the others still run.
func (e *Engine) Run(ctx context.Context, snap Snapshot) (RunStats, error) {
	var stats RunStats

	var candidates []Candidate
	for _, det := range e.detectors {
		out, err := e.runDetector(det, snap)
		if err != nil {
			stats.DetectorErrors++
			e.logger.Error("detector failed", "type", det.Type, "error", err)
			continue
		}
		candidates = append(candidates, out...)
	}
	stats.Candidates = len(candidates)

	// Sort by fingerprint so persistence order (and thus output) does not
	// depend on detector execution order.
	type fingered struct {
		c  Candidate
		fp string
	}
	ordered := make([]fingered, len(candidates))
	for i, c := range candidates {
		ordered[i] = fingered{c: c, fp: Fingerprint(c)}
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].fp < ordered[j].fp })

	for _, f := range ordered {
		policy := Policies[f.c.Type]
		expiresAt := snap.Now.Add(policy.TTL)

		ev := Event{
			ID:          uuid.New(),
			Type:        f.c.Type,
			Severity:    policy.Severity,
			Category:    policy.Category,
			Title:       f.c.Title,
			Metrics:     f.c.Metrics,
			SourceRefs:  f.c.SourceRefs,
			Fingerprint: f.fp,
			DetectedAt:  snap.Now,
			ExpiresAt:   &expiresAt,
			Status:      StatusActive,
		}

		outcome, err := e.store.Insert(ctx, ev)
		if err != nil {
			return stats, fmt.Errorf("persist signal %s: %w", f.fp, err)
		}
		switch outcome {
		case OutcomeInserted:
			stats.Inserted++
			e.logger.Info("signal emitted",
				"type", ev.Type,
				"severity", string(ev.Severity),
				"fingerprint", ev.Fingerprint,
				"title", ev.Title,
			)
		case OutcomeDuplicate:
			stats.Duplicates++
		case OutcomeReactivated:
			stats.Reactivated++
			e.logger.Info("signal reactivated", "type", ev.Type, "fingerprint", ev.Fingerprint)
		}
	}

	expired, err := e.store.ExpireDue(ctx, snap.Now)
	if err != nil {
		return stats, fmt.Errorf("expiry sweep: %w", err)
	}
	stats.Expired = expired

	return stats, nil
}

// runDetector isolates one detector invocation, converting panics to errors.
func (e *Engine) runDetector(det Detector, snap Snapshot) (out []Candidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("detector panic: %v", r)
		}
	}()
	return det.Run(snap), nil
}
