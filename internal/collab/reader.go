// Package collab gives detectors read-only access to the upstream
// collaborator records (regulatory filings, patents, market data). The
// scraping workers that produce these rows live outside this system; only
// the fields the detectors actually consume are mapped.
package collab

import (
	"context"
	"time"
)

// Filing is one regulatory filing record.
type Filing struct {
	ID         string
	Authority  string
	FilingType string
	Title      string
	FiledAt    time.Time
}

// Patent is one patent-activity record.
type Patent struct {
	ID        string
	Title     string
	FiledAt   time.Time
	GrantedAt *time.Time
}

// MarketBar is one daily price/volume bar for the tracked company.
type MarketBar struct {
	Symbol string
	Day    time.Time
	Close  float64
	Volume float64
}

// Reader is the read-only view the cross-domain detectors consume.
type Reader interface {
	// FilingsSince returns filings with FiledAt >= since, ascending.
	FilingsSince(ctx context.Context, since time.Time) ([]Filing, error)

	// PatentsSince returns patents with FiledAt >= since, ascending.
	PatentsSince(ctx context.Context, since time.Time) ([]Patent, error)

	// MarketBars returns the most recent bars for a symbol, ascending by
	// day, at most limit rows.
	MarketBars(ctx context.Context, symbol string, limit int) ([]MarketBar, error)
}
