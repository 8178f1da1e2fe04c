package signal

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no signal exists for an id.
var ErrNotFound = errors.New("signal not found")

// InsertOutcome describes what an Insert actually did.
type InsertOutcome string

const (
	// OutcomeInserted: the fingerprint was new; a row was created.
	OutcomeInserted InsertOutcome = "inserted"
	// OutcomeDuplicate: an active row with this fingerprint already
	// existed. Defined as a successful no-op, not an error.
	OutcomeDuplicate InsertOutcome = "duplicate"
	// OutcomeReactivated: an expired row with this fingerprint existed;
	// the anomaly recurred and the row went active again.
	OutcomeReactivated InsertOutcome = "reactivated"
)

// Store persists signal events. Insert must be an atomic upsert on the
// fingerprint: two concurrent runs racing on the same fingerprint must not
// both create a row — the storage layer's unique constraint enforces it.
type Store interface {
	Insert(ctx context.Context, ev Event) (InsertOutcome, error)

	// ExpireDue marks active events expired once expires_at has passed.
	// Soft lifecycle only; nothing is deleted.
	ExpireDue(ctx context.Context, now time.Time) (int, error)

	// Active returns active events, newest first.
	Active(ctx context.Context) ([]Event, error)

	// Expired returns expired events, newest first.
	Expired(ctx context.Context) ([]Event, error)

	// ByID returns an event regardless of status.
	ByID(ctx context.Context, id uuid.UUID) (Event, error)
}
