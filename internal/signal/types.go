// Package signal synthesizes deduplicated anomaly events from a fixed
// battery of detectors. The engine owns fingerprinting, severity assignment,
// expiry, and persistence; detectors are pure functions over materialized
// state and carry no I/O of their own.
package signal

import (
	"time"

	"github.com/google/uuid"
)

// Signal types, one per detector family.
const (
	TypeManeuver          = "orbital-maneuver"
	TypeDivergence        = "source-divergence"
	TypeFreshnessCritical = "freshness-critical"
	TypeDragUnverifiable  = "drag-unverifiable"
	TypeRegulatoryPatent  = "regulatory-patent-cooccurrence"
	TypeFilingCadence     = "filing-cadence-outlier"
	TypePriceVolume       = "price-volume-deviation"
)

// Severity grades a signal for triage.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Status is the soft lifecycle state. Signals are never hard-deleted; the
// expiry sweep flips active to expired so the audit trail survives.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
)

// SourceRef points back into upstream collaborator data, letting consumers
// deep-link a signal to its evidence.
type SourceRef struct {
	Domain     string    `json:"domain"`
	Identifier string    `json:"identifier"`
	Timestamp  time.Time `json:"timestamp"`
}

// Candidate is what a detector emits: the identity-defining inputs plus the
// presentation payload. The engine turns it into a persisted Event.
//
// EntityKey, WindowBucket and IdentityParts feed the fingerprint; volatile
// numeric results belong in Metrics, which is deliberately excluded, so two
// runs seeing "the same" anomaly with slightly different scores still
// collapse to one event.
type Candidate struct {
	Type          string
	EntityKey     string
	WindowBucket  string
	IdentityParts []string
	Title         string
	Metrics       map[string]float64
	SourceRefs    []SourceRef
}

// Event is the persisted, deduplicated signal the rest of the platform
// consumes. Fingerprint is unique: a second run producing the same
// fingerprint is a no-op, never a duplicate row.
type Event struct {
	ID          uuid.UUID          `json:"id"`
	Type        string             `json:"type"`
	Severity    Severity           `json:"severity"`
	Category    string             `json:"category"`
	Title       string             `json:"title"`
	Metrics     map[string]float64 `json:"metrics"`
	SourceRefs  []SourceRef        `json:"source_refs"`
	Fingerprint string             `json:"fingerprint"`
	DetectedAt  time.Time          `json:"detected_at"`
	ExpiresAt   *time.Time         `json:"expires_at,omitempty"`
	Status      Status             `json:"status"`
}
