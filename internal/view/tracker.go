// Package view holds the queryable "current health/position" state per
// object, refreshed by reconciliation cycles and read by the API layer.
// The dashboard consumes this as plain read queries; no wire protocol
// beyond that is prescribed.
package view

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/orbital/orbwatch/internal/propagation"
	"github.com/orbital/orbwatch/internal/reconcile"
)

// ObjectView is the per-object record the presentation layer reads.
type ObjectView struct {
	CatalogID int                    `json:"catalog_id"`
	Name      string                 `json:"name"`
	Health    reconcile.ObjectHealth `json:"health"`
	Position  *propagation.State     `json:"position,omitempty"`
	UpdatedAt time.Time              `json:"updated_at"`
}

type snapshot struct {
	views     map[int]ObjectView
	updatedAt time.Time
}

// Tracker is the atomic in-memory view store. Writes replace the whole
// snapshot per cycle; reads are lock-free. When a Redis client is supplied
// the snapshot is mirrored there so other processes can read it too.
type Tracker struct {
	current atomic.Pointer[snapshot]
	rdb     *redis.Client
	logger  *slog.Logger
}

// Redis mirror settings.
const (
	redisViewKey = "orbwatch:view"
	redisViewTTL = 30 * time.Minute
)

// NewTracker creates a view tracker. rdb may be nil (memory only).
func NewTracker(rdb *redis.Client, logger *slog.Logger) *Tracker {
	return &Tracker{rdb: rdb, logger: logger.With("component", "view")}
}

// Replace installs a freshly computed view snapshot.
func (t *Tracker) Replace(ctx context.Context, views map[int]ObjectView, now time.Time) {
	t.current.Store(&snapshot{views: views, updatedAt: now})

	if t.rdb == nil {
		return
	}
	payload, err := json.Marshal(views)
	if err != nil {
		t.logger.Warn("view mirror marshal failed", "error", err)
		return
	}
	if err := t.rdb.Set(ctx, redisViewKey, payload, redisViewTTL).Err(); err != nil {
		// The in-memory view stays authoritative; a mirror failure only
		// degrades cross-process reads.
		t.logger.Warn("view mirror write failed", "error", err)
	}
}

// Get returns one object's view.
func (t *Tracker) Get(catalogID int) (ObjectView, bool) {
	s := t.current.Load()
	if s == nil {
		return ObjectView{}, false
	}
	v, ok := s.views[catalogID]
	return v, ok
}

// All returns every object's view plus the snapshot time.
func (t *Tracker) All() ([]ObjectView, time.Time) {
	s := t.current.Load()
	if s == nil {
		return nil, time.Time{}
	}
	out := make([]ObjectView, 0, len(s.views))
	for _, v := range s.views {
		out = append(out, v)
	}
	return out, s.updatedAt
}
