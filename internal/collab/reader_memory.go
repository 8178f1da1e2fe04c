package collab

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryReader is an in-memory Reader used in tests.
type MemoryReader struct {
	mu      sync.RWMutex
	filings []Filing
	patents []Patent
	bars    map[string][]MarketBar
}

var _ Reader = (*MemoryReader)(nil)

// NewMemory creates an empty in-memory collaborator reader.
func NewMemory() *MemoryReader {
	return &MemoryReader{bars: make(map[string][]MarketBar)}
}

// AddFilings seeds filing records.
func (r *MemoryReader) AddFilings(filings ...Filing) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filings = append(r.filings, filings...)
	sort.Slice(r.filings, func(i, j int) bool { return r.filings[i].FiledAt.Before(r.filings[j].FiledAt) })
}

// AddPatents seeds patent records.
func (r *MemoryReader) AddPatents(patents ...Patent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patents = append(r.patents, patents...)
	sort.Slice(r.patents, func(i, j int) bool { return r.patents[i].FiledAt.Before(r.patents[j].FiledAt) })
}

// AddBars seeds market bars for a symbol.
func (r *MemoryReader) AddBars(symbol string, bars ...MarketBar) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := append(r.bars[symbol], bars...)
	sort.Slice(list, func(i, j int) bool { return list[i].Day.Before(list[j].Day) })
	r.bars[symbol] = list
}

func (r *MemoryReader) FilingsSince(ctx context.Context, since time.Time) ([]Filing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Filing
	for _, f := range r.filings {
		if !f.FiledAt.Before(since) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *MemoryReader) PatentsSince(ctx context.Context, since time.Time) ([]Patent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Patent
	for _, p := range r.patents {
		if !p.FiledAt.Before(since) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *MemoryReader) MarketBars(ctx context.Context, symbol string, limit int) ([]MarketBar, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.bars[symbol]
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	out := make([]MarketBar, len(list))
	copy(out, list)
	return out, nil
}
