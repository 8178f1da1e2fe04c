// Package catalog defines the tracked-object identity model and the
// orbital-element snapshot schema shared by every other component.
package catalog

import "time"

// Source identifies which external catalog an element snapshot came from.
// The tag is load-bearing: drag judgments must use the authoritative source
// and short-timescale position judgments must use the primary source.
type Source string

const (
	// SourcePrimary is the high-cadence supplemental catalog (CelesTrak).
	SourcePrimary Source = "primary"
	// SourceAuthoritative is the low-cadence authoritative catalog (Space-Track).
	SourceAuthoritative Source = "authoritative"
)

// Sources lists all known sources in a fixed order.
var Sources = []Source{SourcePrimary, SourceAuthoritative}

// TrackedObject identifies one physical object under observation.
// Created once per object; naming and decay status may be updated by
// source adapters, the row is never deleted while tracking continues.
type TrackedObject struct {
	CatalogID     int
	Name          string
	Constellation string
	LaunchedAt    *time.Time
	DecayedAt     *time.Time
}

// ElementSnapshot is one orbital-element set valid at Epoch, from one source.
// Unique per (CatalogID, Epoch, Source); append-only and immutable, which is
// what makes trend analysis and "what did we believe at time T" queries work.
//
// Line1/Line2 carry the verbatim encoded element lines so downstream
// propagation is bit-compatible with independent consumers of the same lines.
type ElementSnapshot struct {
	CatalogID int
	Name      string
	Epoch     time.Time
	Source    Source

	InclinationDeg float64
	RAANDeg        float64
	Eccentricity   float64
	ArgPerigeeDeg  float64
	MeanAnomalyDeg float64
	MeanMotion     float64 // revolutions per day
	MeanMotionDot  float64 // rev/day^2 (first derivative / 2, as encoded)
	MeanMotionDDot float64 // rev/day^3 (second derivative / 6, as encoded)
	Bstar          float64 // drag term, 1/earth-radii

	ApoapsisKm  float64
	PeriapsisKm float64
	PeriodMin   float64

	Line1 string
	Line2 string

	FetchedAt time.Time
}
