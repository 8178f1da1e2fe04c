package elements

import (
	"context"
	"sort"
	"sync"

	"github.com/orbital/orbwatch/internal/catalog"
)

// MemoryStore is an in-memory Store used in tests and single-process runs.
type MemoryStore struct {
	mu      sync.RWMutex
	snaps   map[snapSeries][]catalog.ElementSnapshot // epoch ascending
	seen    map[snapKey]struct{}
	objects map[int]catalog.TrackedObject
}

type snapSeries struct {
	catalogID int
	source    catalog.Source
}

type snapKey struct {
	catalogID int
	epochUnix int64
	source    catalog.Source
}

var _ Store = (*MemoryStore)(nil)

// NewMemory creates an empty in-memory element store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		snaps:   make(map[snapSeries][]catalog.ElementSnapshot),
		seen:    make(map[snapKey]struct{}),
		objects: make(map[int]catalog.TrackedObject),
	}
}

func (s *MemoryStore) Append(ctx context.Context, snaps []catalog.ElementSnapshot) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, snap := range snaps {
		key := snapKey{snap.CatalogID, snap.Epoch.UnixNano(), snap.Source}
		if _, dup := s.seen[key]; dup {
			continue
		}
		s.seen[key] = struct{}{}

		series := snapSeries{snap.CatalogID, snap.Source}
		list := append(s.snaps[series], snap)
		sort.Slice(list, func(i, j int) bool { return list[i].Epoch.Before(list[j].Epoch) })
		s.snaps[series] = list
		inserted++
	}
	return inserted, nil
}

func (s *MemoryStore) Latest(ctx context.Context, catalogID int, source catalog.Source) (catalog.ElementSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.snaps[snapSeries{catalogID, source}]
	if len(list) == 0 {
		return catalog.ElementSnapshot{}, ErrNoSnapshot
	}
	return list[len(list)-1], nil
}

func (s *MemoryStore) History(ctx context.Context, catalogID int, source catalog.Source, limit int) ([]catalog.ElementSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.snaps[snapSeries{catalogID, source}]
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	out := make([]catalog.ElementSnapshot, len(list))
	copy(out, list)
	return out, nil
}

func (s *MemoryStore) UpsertObject(ctx context.Context, obj catalog.TrackedObject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[obj.CatalogID] = obj
	return nil
}

func (s *MemoryStore) Objects(ctx context.Context) ([]catalog.TrackedObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]catalog.TrackedObject, 0, len(s.objects))
	for _, obj := range s.objects {
		out = append(out, obj)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CatalogID < out[j].CatalogID })
	return out, nil
}
