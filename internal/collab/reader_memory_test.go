package collab

import (
	"context"
	"testing"
	"time"
)

func TestMemoryReaderFilingsSince(t *testing.T) {
	ctx := context.Background()
	reader := NewMemory()
	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	// Seeded out of order; reads come back ascending.
	reader.AddFilings(
		Filing{ID: "F-3", FiledAt: base.Add(20 * 24 * time.Hour)},
		Filing{ID: "F-1", FiledAt: base},
		Filing{ID: "F-2", FiledAt: base.Add(10 * 24 * time.Hour)},
	)

	filings, err := reader.FilingsSince(ctx, base.Add(5*24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(filings) != 2 {
		t.Fatalf("got %d filings, want 2", len(filings))
	}
	if filings[0].ID != "F-2" || filings[1].ID != "F-3" {
		t.Errorf("filings = %v, want F-2 then F-3", filings)
	}

	// The boundary is inclusive.
	filings, err = reader.FilingsSince(ctx, base)
	if err != nil {
		t.Fatal(err)
	}
	if len(filings) != 3 {
		t.Errorf("got %d filings at the boundary, want 3", len(filings))
	}
}

func TestMemoryReaderPatentsSince(t *testing.T) {
	ctx := context.Background()
	reader := NewMemory()
	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	granted := base.Add(30 * 24 * time.Hour)
	reader.AddPatents(
		Patent{ID: "P-1", FiledAt: base, GrantedAt: &granted},
		Patent{ID: "P-2", FiledAt: base.Add(40 * 24 * time.Hour)},
	)

	patents, err := reader.PatentsSince(ctx, base.Add(35*24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(patents) != 1 || patents[0].ID != "P-2" {
		t.Errorf("patents = %v, want only P-2", patents)
	}
}

func TestMemoryReaderMarketBars(t *testing.T) {
	ctx := context.Background()
	reader := NewMemory()
	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		reader.AddBars("ORBX", MarketBar{
			Symbol: "ORBX",
			Day:    base.Add(time.Duration(i) * 24 * time.Hour),
			Close:  100 + float64(i),
			Volume: 10_000,
		})
	}

	// A limit keeps the newest bars, ascending.
	bars, err := reader.MarketBars(ctx, "ORBX", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 3 {
		t.Fatalf("got %d bars, want 3", len(bars))
	}
	if bars[0].Close != 102 || bars[2].Close != 104 {
		t.Errorf("bars = %v, want the newest three ascending", bars)
	}

	// Unknown symbols are empty, not an error.
	bars, err = reader.MarketBars(ctx, "NOPE", 10)
	if err != nil || len(bars) != 0 {
		t.Errorf("unknown symbol: bars=%v err=%v", bars, err)
	}
}
