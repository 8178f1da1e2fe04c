package signal

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store used in tests and single-process runs.
type MemoryStore struct {
	mu            sync.Mutex
	byFingerprint map[string]*Event
	byID          map[uuid.UUID]*Event
}

var _ Store = (*MemoryStore)(nil)

// NewMemory creates an empty in-memory signal store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		byFingerprint: make(map[string]*Event),
		byID:          make(map[uuid.UUID]*Event),
	}
}

func (s *MemoryStore) Insert(ctx context.Context, ev Event) (InsertOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byFingerprint[ev.Fingerprint]; ok {
		if existing.Status == StatusActive {
			return OutcomeDuplicate, nil
		}
		existing.Status = StatusActive
		existing.DetectedAt = ev.DetectedAt
		existing.ExpiresAt = ev.ExpiresAt
		return OutcomeReactivated, nil
	}

	stored := ev
	s.byFingerprint[ev.Fingerprint] = &stored
	s.byID[ev.ID] = &stored
	return OutcomeInserted, nil
}

func (s *MemoryStore) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := 0
	for _, ev := range s.byFingerprint {
		if ev.Status == StatusActive && ev.ExpiresAt != nil && !ev.ExpiresAt.After(now) {
			ev.Status = StatusExpired
			expired++
		}
	}
	return expired, nil
}

func (s *MemoryStore) Active(ctx context.Context) ([]Event, error) {
	return s.byStatus(StatusActive), nil
}

func (s *MemoryStore) Expired(ctx context.Context) ([]Event, error) {
	return s.byStatus(StatusExpired), nil
}

func (s *MemoryStore) byStatus(status Status) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Event
	for _, ev := range s.byFingerprint {
		if ev.Status == status {
			out = append(out, *ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.After(out[j].DetectedAt) })
	return out
}

func (s *MemoryStore) ByID(ctx context.Context, id uuid.UUID) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.byID[id]
	if !ok {
		return Event{}, ErrNotFound
	}
	return *ev, nil
}
