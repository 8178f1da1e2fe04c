// Package elements persists the append-only, versioned history of element
// snapshots per object and source. Snapshots are never overwritten: each
// fetch appends, and the latest row per (object, source) acts as the
// "current" pointer.
package elements

import (
	"context"
	"errors"

	"github.com/orbital/orbwatch/internal/catalog"
)

// ErrNoSnapshot is returned when no snapshot exists for an object/source pair.
var ErrNoSnapshot = errors.New("no element snapshot")

// Store is the element history contract. Append must silently skip rows that
// already exist for the same (catalog id, epoch, source) — re-fetching the
// same elements is routine, not an error.
type Store interface {
	// Append inserts new snapshots, skipping duplicates.
	// Returns how many rows were actually inserted.
	Append(ctx context.Context, snaps []catalog.ElementSnapshot) (int, error)

	// Latest returns the snapshot with the newest epoch for one object and
	// source, or ErrNoSnapshot.
	Latest(ctx context.Context, catalogID int, source catalog.Source) (catalog.ElementSnapshot, error)

	// History returns up to limit snapshots for one object and source in
	// ascending epoch order (limit <= 0 means no limit).
	History(ctx context.Context, catalogID int, source catalog.Source, limit int) ([]catalog.ElementSnapshot, error)

	// UpsertObject creates or refreshes a tracked object's identity row.
	UpsertObject(ctx context.Context, obj catalog.TrackedObject) error

	// Objects lists all tracked objects.
	Objects(ctx context.Context) ([]catalog.TrackedObject, error)
}
