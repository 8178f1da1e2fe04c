// Package maneuver flags statistically significant jumps in an object's
// element history. Stateless between invocations: each run recomputes from
// stored history, so the detector is safe to re-run arbitrarily.
//
// Only primary-source history is examined. The high-cadence source has the
// positional accuracy needed for timely detection; the authoritative source
// updates too infrequently to see short-timescale events and is reserved for
// drag judgments.
package maneuver

import (
	"math"
	"time"

	"github.com/orbital/orbwatch/internal/catalog"
)

// Class labels the kind of orbit change a flagged jump represents.
type Class string

const (
	ClassRaise       Class = "raise"
	ClassLower       Class = "lower"
	ClassPlaneChange Class = "plane-change"
)

// Detection thresholds, named so behavior stays auditable.
const (
	// ZScoreThreshold: a delta is an outlier when it sits more than this
	// many standard deviations from the trailing window's mean delta.
	ZScoreThreshold = 2.0
	// TrailingWindow is how many prior deltas form the baseline.
	TrailingWindow = 10
	// MinWindow is the minimum baseline size before any flagging happens.
	MinWindow = 4
	// AltitudeThresholdKm separates raise/lower from noise.
	AltitudeThresholdKm = 5.0
	// InclinationThresholdDeg separates plane changes from noise.
	InclinationThresholdDeg = 0.05
)

// Event is one detected maneuver.
type Event struct {
	CatalogID        int
	DetectedAt       time.Time
	Class            Class
	MeanMotionDelta  float64
	AltitudeDeltaKm  float64
	InclinationDelta float64
	Before           catalog.ElementSnapshot
	After            catalog.ElementSnapshot
}

// DayBucket returns the UTC calendar day of the snapshot that triggered the
// event, used to deduplicate: one event per object per day, regardless of
// how many snapshots arrive that day.
func (e Event) DayBucket() string {
	return e.After.Epoch.UTC().Format("2006-01-02")
}

type delta struct {
	meanMotion  float64
	altitudeKm  float64
	inclination float64
	before      int // index into history
	after       int
}

// Detect scans an epoch-ascending, same-source element history for one
// object and returns flagged maneuvers, at most one per UTC calendar day.
func Detect(history []catalog.ElementSnapshot, now time.Time) []Event {
	if len(history) < MinWindow+2 {
		return nil
	}

	deltas := consecutiveDeltas(history)

	var events []Event
	seenDays := make(map[string]struct{})

	for i := range deltas {
		if i < MinWindow {
			continue
		}

		start := i - TrailingWindow
		if start < 0 {
			start = 0
		}
		window := deltas[start:i]

		d := deltas[i]
		if !isOutlier(d, window) {
			continue
		}

		class, ok := classify(d)
		if !ok {
			continue
		}

		ev := Event{
			CatalogID:        history[d.after].CatalogID,
			DetectedAt:       now,
			Class:            class,
			MeanMotionDelta:  d.meanMotion,
			AltitudeDeltaKm:  d.altitudeKm,
			InclinationDelta: d.inclination,
			Before:           history[d.before],
			After:            history[d.after],
		}

		day := ev.DayBucket()
		if _, dup := seenDays[day]; dup {
			continue
		}
		seenDays[day] = struct{}{}
		events = append(events, ev)
	}

	return events
}

func consecutiveDeltas(history []catalog.ElementSnapshot) []delta {
	deltas := make([]delta, 0, len(history)-1)
	for i := 1; i < len(history); i++ {
		prev, cur := history[i-1], history[i]
		deltas = append(deltas, delta{
			meanMotion:  cur.MeanMotion - prev.MeanMotion,
			altitudeKm:  catalog.MeanAltitudeKm(cur.MeanMotion) - catalog.MeanAltitudeKm(prev.MeanMotion),
			inclination: cur.InclinationDeg - prev.InclinationDeg,
			before:      i - 1,
			after:       i,
		})
	}
	return deltas
}

// isOutlier checks each delta axis against the trailing window's 2σ band.
func isOutlier(d delta, window []delta) bool {
	mmMean, mmStd := meanStd(window, func(d delta) float64 { return d.meanMotion })
	altMean, altStd := meanStd(window, func(d delta) float64 { return d.altitudeKm })
	incMean, incStd := meanStd(window, func(d delta) float64 { return d.inclination })

	return exceeds(d.meanMotion, mmMean, mmStd) ||
		exceeds(d.altitudeKm, altMean, altStd) ||
		exceeds(d.inclination, incMean, incStd)
}

func exceeds(v, mean, std float64) bool {
	if std == 0 {
		// A flat baseline means any movement at all is a jump; require a
		// nonzero delta rather than dividing by zero.
		return v != mean
	}
	return math.Abs(v-mean) > ZScoreThreshold*std
}

func meanStd(window []delta, pick func(delta) float64) (mean, std float64) {
	n := float64(len(window))
	for _, d := range window {
		mean += pick(d)
	}
	mean /= n

	var variance float64
	for _, d := range window {
		diff := pick(d) - mean
		variance += diff * diff
	}
	variance /= n

	return mean, math.Sqrt(variance)
}

// classify maps delta magnitudes to a maneuver class. Altitude dominates:
// a big altitude move is a raise or lower even if inclination also moved.
// Inclination-only movement is a plane change. Deltas under both thresholds
// are statistical noise and produce no event.
func classify(d delta) (Class, bool) {
	switch {
	case d.altitudeKm >= AltitudeThresholdKm:
		return ClassRaise, true
	case d.altitudeKm <= -AltitudeThresholdKm:
		return ClassLower, true
	case math.Abs(d.inclination) >= InclinationThresholdDeg:
		return ClassPlaneChange, true
	default:
		return "", false
	}
}
