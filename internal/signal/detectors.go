package signal

import (
	"fmt"
	"math"
	"time"

	"github.com/orbital/orbwatch/internal/catalog"
	"github.com/orbital/orbwatch/internal/collab"
	"github.com/orbital/orbwatch/internal/maneuver"
	"github.com/orbital/orbwatch/internal/reconcile"
)

// Cross-domain detection constants.
const (
	// CooccurrenceWindow: filings and patents both landing inside this
	// trailing window count as co-occurring activity.
	CooccurrenceWindow = 14 * 24 * time.Hour
	// CadenceRecentWindow / CadenceBaselineWindow: recent filing count is
	// compared against the per-window average over the baseline.
	CadenceRecentWindow   = 30 * 24 * time.Hour
	CadenceBaselineWindow = 90 * 24 * time.Hour
	// CadenceRatioThreshold: recent cadence must exceed baseline by this
	// factor (and CadenceMinFilings in absolute terms) to flag.
	CadenceRatioThreshold = 2.0
	CadenceMinFilings     = 3
	// MarketZThreshold: |z| of the latest close or volume against the
	// trailing baseline above which price/volume deviation flags.
	MarketZThreshold  = 2.0
	MarketMinBaseline = 10
)

// Snapshot is the materialized state a synthesis run operates on. Built
// once per cycle; detectors only read it.
type Snapshot struct {
	Now       time.Time
	Health    []reconcile.ObjectHealth
	Maneuvers []maneuver.Event
	Filings   []collab.Filing
	Patents   []collab.Patent
	Bars      []collab.MarketBar
}

// Detector is one pure detection function. Registered in a static list;
// the engine runs the whole battery each cycle.
type Detector struct {
	Type string
	Run  func(snap Snapshot) []Candidate
}

// Registry returns the full detector battery in its fixed order. Order does
// not affect output: the engine sorts candidates by fingerprint before
// persisting.
func Registry() []Detector {
	return []Detector{
		{Type: TypeManeuver, Run: detectManeuvers},
		{Type: TypeDivergence, Run: detectDivergence},
		{Type: TypeFreshnessCritical, Run: detectFreshnessCritical},
		{Type: TypeDragUnverifiable, Run: detectDragUnverifiable},
		{Type: TypeRegulatoryPatent, Run: detectRegulatoryPatent},
		{Type: TypeFilingCadence, Run: detectFilingCadence},
		{Type: TypePriceVolume, Run: detectPriceVolume},
	}
}

func detectManeuvers(snap Snapshot) []Candidate {
	var out []Candidate
	for _, ev := range snap.Maneuvers {
		out = append(out, Candidate{
			Type:          TypeManeuver,
			EntityKey:     fmt.Sprintf("%d", ev.CatalogID),
			WindowBucket:  ev.DayBucket(),
			IdentityParts: []string{string(ev.Class)},
			Title:         fmt.Sprintf("Orbital %s maneuver detected on object %d", ev.Class, ev.CatalogID),
			Metrics: map[string]float64{
				"mean_motion_delta": ev.MeanMotionDelta,
				"altitude_delta_km": ev.AltitudeDeltaKm,
				"inclination_delta": ev.InclinationDelta,
			},
			SourceRefs: []SourceRef{
				elementRef(ev.Before),
				elementRef(ev.After),
			},
		})
	}
	return out
}

func detectDivergence(snap Snapshot) []Candidate {
	var out []Candidate
	for _, h := range snap.Health {
		if !h.Divergence.Comparable || !h.Divergence.Diverged {
			continue
		}
		out = append(out, Candidate{
			Type:      TypeDivergence,
			EntityKey: fmt.Sprintf("%d", h.CatalogID),
			// The epoch pair is the identity: a fresh pair of snapshots is
			// a new comparison, the same pair re-examined is not.
			WindowBucket: epochPairBucket(h),
			Title:        fmt.Sprintf("Element sources disagree on drag term for object %d", h.CatalogID),
			Metrics: map[string]float64{
				"drag_delta":      h.Divergence.DragDelta,
				"epoch_gap_hours": h.Divergence.EpochGapHours,
			},
			SourceRefs: healthRefs(h),
		})
	}
	return out
}

func detectFreshnessCritical(snap Snapshot) []Candidate {
	var out []Candidate
	for _, h := range snap.Health {
		for _, src := range catalog.Sources {
			sh, ok := h.PerSource[src]
			if !ok || !sh.Present || sh.Freshness != reconcile.FreshnessCritical {
				continue
			}
			out = append(out, Candidate{
				Type:          TypeFreshnessCritical,
				EntityKey:     fmt.Sprintf("%d", h.CatalogID),
				WindowBucket:  snap.Now.UTC().Format("2006-01-02"),
				IdentityParts: []string{string(src)},
				Title:         fmt.Sprintf("Object %d has no fresh elements from %s source", h.CatalogID, src),
				Metrics: map[string]float64{
					"age_hours": sh.AgeHours,
				},
				SourceRefs: []SourceRef{{
					Domain:     "elements",
					Identifier: fmt.Sprintf("%d/%s", h.CatalogID, src),
					Timestamp:  sh.Epoch,
				}},
			})
		}
	}
	return out
}

// detectDragUnverifiable fires when both sources report but their epochs
// are too far apart to compare drag terms. A silent gap in verification is
// itself worth a (low-severity) look.
func detectDragUnverifiable(snap Snapshot) []Candidate {
	var out []Candidate
	for _, h := range snap.Health {
		p, a := h.PerSource[catalog.SourcePrimary], h.PerSource[catalog.SourceAuthoritative]
		if !p.Present || !a.Present || h.Divergence.Comparable {
			continue
		}
		out = append(out, Candidate{
			Type:         TypeDragUnverifiable,
			EntityKey:    fmt.Sprintf("%d", h.CatalogID),
			WindowBucket: epochPairBucket(h),
			Title:        fmt.Sprintf("Drag divergence for object %d cannot be verified (epoch gap %.1fh)", h.CatalogID, h.Divergence.EpochGapHours),
			Metrics: map[string]float64{
				"epoch_gap_hours": h.Divergence.EpochGapHours,
			},
			SourceRefs: healthRefs(h),
		})
	}
	return out
}

func detectRegulatoryPatent(snap Snapshot) []Candidate {
	cutoff := snap.Now.Add(-CooccurrenceWindow)

	var filings []collab.Filing
	for _, f := range snap.Filings {
		if !f.FiledAt.Before(cutoff) {
			filings = append(filings, f)
		}
	}
	var patents []collab.Patent
	for _, p := range snap.Patents {
		if !p.FiledAt.Before(cutoff) {
			patents = append(patents, p)
		}
	}
	if len(filings) == 0 || len(patents) == 0 {
		return nil
	}

	lastFiling := filings[len(filings)-1]
	lastPatent := patents[len(patents)-1]

	refs := make([]SourceRef, 0, len(filings)+len(patents))
	for _, f := range filings {
		refs = append(refs, SourceRef{Domain: "filings", Identifier: f.ID, Timestamp: f.FiledAt})
	}
	for _, p := range patents {
		refs = append(refs, SourceRef{Domain: "patents", Identifier: p.ID, Timestamp: p.FiledAt})
	}

	return []Candidate{{
		Type:      TypeRegulatoryPatent,
		EntityKey: "company",
		// Newest record on each side defines the occurrence; more records
		// arriving later is a new co-occurrence.
		WindowBucket:  lastFiling.FiledAt.UTC().Format("2006-01-02"),
		IdentityParts: []string{lastFiling.ID, lastPatent.ID},
		Title:         fmt.Sprintf("Co-occurring regulatory and patent activity (%d filings, %d patents in 14d)", len(filings), len(patents)),
		Metrics: map[string]float64{
			"filing_count": float64(len(filings)),
			"patent_count": float64(len(patents)),
		},
		SourceRefs: refs,
	}}
}

func detectFilingCadence(snap Snapshot) []Candidate {
	recentCutoff := snap.Now.Add(-CadenceRecentWindow)
	baseCutoff := snap.Now.Add(-CadenceBaselineWindow)

	var recent, baseline int
	var latest *collab.Filing
	for i := range snap.Filings {
		f := snap.Filings[i]
		if f.FiledAt.Before(baseCutoff) {
			continue
		}
		baseline++
		if !f.FiledAt.Before(recentCutoff) {
			recent++
			latest = &snap.Filings[i]
		}
	}
	if latest == nil || recent < CadenceMinFilings {
		return nil
	}

	// Average filings per recent-window-length across the baseline.
	windows := float64(CadenceBaselineWindow) / float64(CadenceRecentWindow)
	expected := float64(baseline) / windows
	if expected > 0 && float64(recent) < CadenceRatioThreshold*expected {
		return nil
	}

	return []Candidate{{
		Type:          TypeFilingCadence,
		EntityKey:     "company",
		WindowBucket:  latest.FiledAt.UTC().Format("2006-01-02"),
		IdentityParts: []string{latest.ID},
		Title:         fmt.Sprintf("Unusual filing cadence: %d filings in 30 days", recent),
		Metrics: map[string]float64{
			"recent_count":   float64(recent),
			"expected_count": expected,
		},
		SourceRefs: []SourceRef{{Domain: "filings", Identifier: latest.ID, Timestamp: latest.FiledAt}},
	}}
}

func detectPriceVolume(snap Snapshot) []Candidate {
	if len(snap.Bars) < MarketMinBaseline+1 {
		return nil
	}

	latest := snap.Bars[len(snap.Bars)-1]
	baseline := snap.Bars[:len(snap.Bars)-1]

	closeZ := zScore(latest.Close, baseline, func(b collab.MarketBar) float64 { return b.Close })
	volumeZ := zScore(latest.Volume, baseline, func(b collab.MarketBar) float64 { return b.Volume })

	if math.Abs(closeZ) < MarketZThreshold && math.Abs(volumeZ) < MarketZThreshold {
		return nil
	}

	axis := "price"
	if math.Abs(volumeZ) > math.Abs(closeZ) {
		axis = "volume"
	}

	return []Candidate{{
		Type:          TypePriceVolume,
		EntityKey:     latest.Symbol,
		WindowBucket:  latest.Day.UTC().Format("2006-01-02"),
		IdentityParts: []string{axis},
		Title:         fmt.Sprintf("%s %s deviates from trailing baseline", latest.Symbol, axis),
		Metrics: map[string]float64{
			"close_z":  closeZ,
			"volume_z": volumeZ,
			"close":    latest.Close,
			"volume":   latest.Volume,
		},
		SourceRefs: []SourceRef{{
			Domain:     "market",
			Identifier: fmt.Sprintf("%s/%s", latest.Symbol, latest.Day.UTC().Format("2006-01-02")),
			Timestamp:  latest.Day,
		}},
	}}
}

func zScore(v float64, baseline []collab.MarketBar, pick func(collab.MarketBar) float64) float64 {
	n := float64(len(baseline))
	var mean float64
	for _, b := range baseline {
		mean += pick(b)
	}
	mean /= n

	var variance float64
	for _, b := range baseline {
		d := pick(b) - mean
		variance += d * d
	}
	variance /= n

	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return (v - mean) / std
}

func elementRef(snap catalog.ElementSnapshot) SourceRef {
	return SourceRef{
		Domain:     "elements",
		Identifier: fmt.Sprintf("%d/%s", snap.CatalogID, snap.Source),
		Timestamp:  snap.Epoch,
	}
}

func healthRefs(h reconcile.ObjectHealth) []SourceRef {
	refs := make([]SourceRef, 0, 2)
	for _, src := range catalog.Sources {
		sh, ok := h.PerSource[src]
		if !ok || !sh.Present {
			continue
		}
		refs = append(refs, SourceRef{
			Domain:     "elements",
			Identifier: fmt.Sprintf("%d/%s", h.CatalogID, src),
			Timestamp:  sh.Epoch,
		})
	}
	return refs
}

// epochPairBucket identifies a cross-source comparison by the two epochs it
// compared, so re-running on unchanged snapshots is a no-op while any new
// snapshot pair is a distinct comparison.
func epochPairBucket(h reconcile.ObjectHealth) string {
	p := h.PerSource[catalog.SourcePrimary]
	a := h.PerSource[catalog.SourceAuthoritative]
	return p.Epoch.UTC().Format(time.RFC3339) + "/" + a.Epoch.UTC().Format(time.RFC3339)
}
