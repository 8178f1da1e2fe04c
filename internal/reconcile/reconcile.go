// Package reconcile compares the two element sources per object: how stale
// each one is, and whether their drag estimates disagree. Both sources can
// be simultaneously stale, so "latest known" is never treated as ground
// truth — freshness is reported per source.
package reconcile

import (
	"math"
	"time"

	"github.com/orbital/orbwatch/internal/catalog"
)

// Freshness classifies age-since-epoch for one source's latest snapshot.
type Freshness string

const (
	FreshnessFresh    Freshness = "FRESH"    // < 6h
	FreshnessOK       Freshness = "OK"       // 6-12h
	FreshnessStale    Freshness = "STALE"    // 12-24h
	FreshnessCritical Freshness = "CRITICAL" // > 24h
	FreshnessMissing  Freshness = "MISSING"  // no snapshot at all
)

// Freshness bucket boundaries.
const (
	freshLimit = 6 * time.Hour
	okLimit    = 12 * time.Hour
	staleLimit = 24 * time.Hour
)

// CompareWindow is the maximum epoch gap across sources for which a drag
// comparison is statistically meaningful. Beyond it the comparison is
// suppressed, reported as not comparable — never as "not diverged".
const CompareWindow = 6 * time.Hour

// DragDivergenceThreshold is the minimum relative drag disagreement
// (|Δbstar| / max(|bstar|)) above which two comparable sources are flagged
// as diverged. Relative rather than absolute: bstar spans orders of
// magnitude across orbit regimes, so a fixed absolute delta would either
// never fire for small-drag objects or always fire for large-drag ones.
const DragDivergenceThreshold = 1e-4

// SourceHealth is the freshness judgment for one source of one object.
type SourceHealth struct {
	Present   bool
	Epoch     time.Time
	AgeHours  float64
	Freshness Freshness
}

// DivergenceRecord is the cross-source drag comparison for one object.
// DragDelta and Diverged are only meaningful when Comparable is true.
type DivergenceRecord struct {
	Comparable    bool
	EpochGapHours float64
	DragDelta     float64 // absolute |Δbstar|
	DragRatio     float64 // |Δbstar| / max(|bstar|)
	Diverged      bool
}

// ObjectHealth is the recomputed-per-cycle health view for one object.
type ObjectHealth struct {
	CatalogID   int
	EvaluatedAt time.Time
	PerSource   map[catalog.Source]SourceHealth
	Divergence  DivergenceRecord
}

// Classify buckets an age-since-epoch into the four freshness grades.
func Classify(age time.Duration) Freshness {
	switch {
	case age < freshLimit:
		return FreshnessFresh
	case age < okLimit:
		return FreshnessOK
	case age < staleLimit:
		return FreshnessStale
	default:
		return FreshnessCritical
	}
}

// Evaluate computes the health record for one object from the latest
// snapshot per source. Either snapshot may be nil (source unavailable or no
// data yet); the record degrades gracefully rather than failing.
//
// Pure and symmetric: swapping which source is evaluated "first" cannot
// change the divergence outcome.
func Evaluate(catalogID int, primary, authoritative *catalog.ElementSnapshot, now time.Time) ObjectHealth {
	health := ObjectHealth{
		CatalogID:   catalogID,
		EvaluatedAt: now,
		PerSource:   make(map[catalog.Source]SourceHealth, 2),
	}

	health.PerSource[catalog.SourcePrimary] = sourceHealth(primary, now)
	health.PerSource[catalog.SourceAuthoritative] = sourceHealth(authoritative, now)

	if primary != nil && authoritative != nil {
		gap := primary.Epoch.Sub(authoritative.Epoch)
		if gap < 0 {
			gap = -gap
		}
		health.Divergence.EpochGapHours = gap.Hours()

		if gap <= CompareWindow {
			delta := math.Abs(primary.Bstar - authoritative.Bstar)
			scale := math.Max(math.Abs(primary.Bstar), math.Abs(authoritative.Bstar))

			health.Divergence.Comparable = true
			health.Divergence.DragDelta = delta
			if scale > 0 {
				health.Divergence.DragRatio = delta / scale
			}
			health.Divergence.Diverged = health.Divergence.DragRatio > DragDivergenceThreshold
		}
	}

	return health
}

func sourceHealth(snap *catalog.ElementSnapshot, now time.Time) SourceHealth {
	if snap == nil {
		return SourceHealth{Freshness: FreshnessMissing}
	}
	age := now.Sub(snap.Epoch)
	return SourceHealth{
		Present:   true,
		Epoch:     snap.Epoch,
		AgeHours:  age.Hours(),
		Freshness: Classify(age),
	}
}
