// Package propagation turns stored element snapshots into position/velocity
// states. It is a pure computation layer: no network, no storage, safe to
// call per-object on a sub-second cadence.
package propagation

import (
	"time"

	"github.com/orbital/orbwatch/internal/catalog"
	"github.com/orbital/orbwatch/internal/transform"
)

// Confidence grades how far a propagation target sits from the element epoch.
// SGP4 accuracy degrades with distance from epoch: sub-km near epoch,
// multi-km by +24h, unreliable beyond about a week. This is a documented
// property of the model, surfaced as a caveat rather than papered over.
type Confidence string

const (
	ConfidenceHigh       Confidence = "high"       // within 6h of epoch
	ConfidenceDegraded   Confidence = "degraded"   // within 24h
	ConfidenceLow        Confidence = "low"        // within 7 days
	ConfidenceUnreliable Confidence = "unreliable" // beyond 7 days
)

// Confidence grading boundaries.
const (
	highWindow = 6 * time.Hour
	degWindow  = 24 * time.Hour
	lowWindow  = 7 * 24 * time.Hour
)

// GradeConfidence classifies the epoch-to-target distance.
func GradeConfidence(epoch, target time.Time) Confidence {
	gap := target.Sub(epoch)
	if gap < 0 {
		gap = -gap
	}
	switch {
	case gap <= highWindow:
		return ConfidenceHigh
	case gap <= degWindow:
		return ConfidenceDegraded
	case gap <= lowWindow:
		return ConfidenceLow
	default:
		return ConfidenceUnreliable
	}
}

// State is a propagated object state at a single instant.
type State struct {
	CatalogID  int
	At         time.Time
	Epoch      time.Time
	Source     catalog.Source
	TEME       transform.PositionTEME
	ECEF       transform.PositionECEF
	Geodetic   transform.GeodeticPoint
	Confidence Confidence
}

// PropagateSnapshot computes the state of one snapshot at target time t.
// Deterministic: the same snapshot and t always yield bit-identical output.
func PropagateSnapshot(snap catalog.ElementSnapshot, t time.Time) (State, error) {
	return propagateWithGMST(snap, t, transform.GMST(t))
}

func propagateWithGMST(snap catalog.ElementSnapshot, t time.Time, gmst float64) (State, error) {
	prop, err := NewSGP4(snap.Line1, snap.Line2, snap.CatalogID)
	if err != nil {
		return State{}, err
	}

	u := t.UTC()
	teme, err := prop.At(u.Year(), int(u.Month()), u.Day(), u.Hour(), u.Minute(), u.Second())
	if err != nil {
		return State{}, err
	}

	ecef := transform.TEMEToECEFWithGMST(teme, gmst)
	geo := transform.ECEFToGeodetic(ecef.X, ecef.Y, ecef.Z)

	return State{
		CatalogID:  snap.CatalogID,
		At:         u,
		Epoch:      snap.Epoch,
		Source:     snap.Source,
		TEME:       teme,
		ECEF:       ecef,
		Geodetic:   geo,
		Confidence: GradeConfidence(snap.Epoch, u),
	}, nil
}
