package signal

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/orbital/orbwatch/internal/catalog"
	"github.com/orbital/orbwatch/internal/maneuver"
)

func engineLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func maneuverSnapshot(now time.Time) Snapshot {
	after := catalog.ElementSnapshot{CatalogID: 25544, Source: catalog.SourcePrimary, Epoch: now.Add(-2 * time.Hour), MeanMotion: 15.3}
	return Snapshot{
		Now: now,
		Maneuvers: []maneuver.Event{{
			CatalogID:       25544,
			DetectedAt:      now,
			Class:           maneuver.ClassLower,
			AltitudeDeltaKm: -91,
			After:           after,
		}},
	}
}

func TestNewEngineRejectsUnknownDetectorType(t *testing.T) {
	bad := []Detector{{Type: "no-such-type", Run: func(Snapshot) []Candidate { return nil }}}
	if _, err := NewEngine(NewMemory(), bad, engineLogger()); err == nil {
		t.Fatal("expected error for detector without a policy")
	}
}

func TestEngineRunIdempotent(t *testing.T) {
	store := NewMemory()
	engine, err := NewEngine(store, Registry(), engineLogger())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	now := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)
	snap := maneuverSnapshot(now)

	stats, err := engine.Run(context.Background(), snap)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if stats.Inserted != 1 || stats.Duplicates != 0 {
		t.Errorf("first run: inserted=%d duplicates=%d, want 1/0", stats.Inserted, stats.Duplicates)
	}

	// Same underlying data: zero new rows.
	stats, err = engine.Run(context.Background(), snap)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if stats.Inserted != 0 || stats.Duplicates != 1 {
		t.Errorf("second run: inserted=%d duplicates=%d, want 0/1", stats.Inserted, stats.Duplicates)
	}

	active, err := store.Active(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 {
		t.Errorf("got %d active signals, want 1", len(active))
	}
	ev := active[0]
	if ev.Severity != SeverityHigh || ev.Category != "orbital" {
		t.Errorf("policy not applied: severity=%q category=%q", ev.Severity, ev.Category)
	}
	if ev.ExpiresAt == nil || !ev.ExpiresAt.Equal(now.Add(Policies[TypeManeuver].TTL)) {
		t.Errorf("ExpiresAt = %v, want now+TTL", ev.ExpiresAt)
	}
}

func TestEngineExpiryAndReactivation(t *testing.T) {
	store := NewMemory()
	engine, err := NewEngine(store, Registry(), engineLogger())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	now := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)
	snap := maneuverSnapshot(now)

	if _, err := engine.Run(context.Background(), snap); err != nil {
		t.Fatal(err)
	}

	// Re-run past the TTL: the existing row is still active at insert time,
	// then the sweep expires it.
	later := snap
	later.Now = now.Add(Policies[TypeManeuver].TTL + time.Hour)
	stats, err := engine.Run(context.Background(), later)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Duplicates != 1 || stats.Expired != 1 {
		t.Errorf("stats = %+v, want duplicates=1 expired=1", stats)
	}

	// The anomaly persists into a third run: the expired row reactivates
	// rather than spawning a second row.
	stats, err = engine.Run(context.Background(), later)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Reactivated != 1 || stats.Inserted != 0 {
		t.Errorf("stats = %+v, want reactivated=1 inserted=0", stats)
	}

	active, _ := store.Active(context.Background())
	expired, _ := store.Expired(context.Background())
	if len(active) != 1 || len(expired) != 0 {
		t.Errorf("active=%d expired=%d, want 1/0", len(active), len(expired))
	}
	if !active[0].DetectedAt.Equal(later.Now) {
		t.Errorf("reactivation did not refresh DetectedAt: %v", active[0].DetectedAt)
	}
}

func TestEngineIsolatesDetectorPanic(t *testing.T) {
	store := NewMemory()
	detectors := []Detector{
		{Type: TypeManeuver, Run: detectManeuvers},
		{Type: TypeDivergence, Run: func(Snapshot) []Candidate { panic("boom") }},
	}
	engine, err := NewEngine(store, detectors, engineLogger())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	now := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)
	stats, err := engine.Run(context.Background(), maneuverSnapshot(now))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.DetectorErrors != 1 {
		t.Errorf("DetectorErrors = %d, want 1", stats.DetectorErrors)
	}
	if stats.Inserted != 1 {
		t.Errorf("Inserted = %d, want 1 (surviving detector still ran)", stats.Inserted)
	}
}

// Detector execution order must not affect which signals exist.
func TestEngineOrderIndependent(t *testing.T) {
	now := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)
	snap := maneuverSnapshot(now)
	// Add a second maneuver so two fingerprints are in play.
	second := snap.Maneuvers[0]
	second.CatalogID = 44713
	second.After.CatalogID = 44713
	snap.Maneuvers = append(snap.Maneuvers, second)

	fingerprints := func(detectors []Detector) map[string]bool {
		store := NewMemory()
		engine, err := NewEngine(store, detectors, engineLogger())
		if err != nil {
			t.Fatalf("NewEngine failed: %v", err)
		}
		if _, err := engine.Run(context.Background(), snap); err != nil {
			t.Fatal(err)
		}
		active, _ := store.Active(context.Background())
		out := make(map[string]bool, len(active))
		for _, ev := range active {
			out[ev.Fingerprint] = true
		}
		return out
	}

	forward := Registry()
	reversed := make([]Detector, len(forward))
	for i, d := range forward {
		reversed[len(forward)-1-i] = d
	}

	a, b := fingerprints(forward), fingerprints(reversed)
	if len(a) != 2 || len(b) != 2 {
		t.Fatalf("fingerprint counts = %d/%d, want 2/2", len(a), len(b))
	}
	for fp := range a {
		if !b[fp] {
			t.Errorf("fingerprint %s missing from reversed run", fp)
		}
	}
}
