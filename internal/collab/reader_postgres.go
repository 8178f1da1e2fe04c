package collab

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresReader reads collaborator tables populated by the upstream
// scraping workers. This side never writes them.
type PostgresReader struct {
	pool *pgxpool.Pool
}

var _ Reader = (*PostgresReader)(nil)

// NewPostgres constructs a PostgreSQL-backed collaborator reader.
func NewPostgres(pool *pgxpool.Pool) *PostgresReader {
	return &PostgresReader{pool: pool}
}

func (r *PostgresReader) FilingsSince(ctx context.Context, since time.Time) ([]Filing, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, authority, filing_type, title, filed_at
		FROM filings
		WHERE filed_at >= $1
		ORDER BY filed_at`, since)
	if err != nil {
		return nil, fmt.Errorf("query filings: %w", err)
	}
	defer rows.Close()

	var filings []Filing
	for rows.Next() {
		var f Filing
		if err := rows.Scan(&f.ID, &f.Authority, &f.FilingType, &f.Title, &f.FiledAt); err != nil {
			return nil, fmt.Errorf("scan filing: %w", err)
		}
		filings = append(filings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query filings: %w", err)
	}
	return filings, nil
}

func (r *PostgresReader) PatentsSince(ctx context.Context, since time.Time) ([]Patent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, title, filed_at, granted_at
		FROM patents
		WHERE filed_at >= $1
		ORDER BY filed_at`, since)
	if err != nil {
		return nil, fmt.Errorf("query patents: %w", err)
	}
	defer rows.Close()

	var patents []Patent
	for rows.Next() {
		var p Patent
		if err := rows.Scan(&p.ID, &p.Title, &p.FiledAt, &p.GrantedAt); err != nil {
			return nil, fmt.Errorf("scan patent: %w", err)
		}
		patents = append(patents, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query patents: %w", err)
	}
	return patents, nil
}

func (r *PostgresReader) MarketBars(ctx context.Context, symbol string, limit int) ([]MarketBar, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT symbol, day, close, volume FROM (
			SELECT symbol, day, close, volume
			FROM market_bars
			WHERE symbol = $1
			ORDER BY day DESC
			LIMIT $2
		) recent
		ORDER BY day`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("query market bars: %w", err)
	}
	defer rows.Close()

	var bars []MarketBar
	for rows.Next() {
		var b MarketBar
		if err := rows.Scan(&b.Symbol, &b.Day, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan market bar: %w", err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query market bars: %w", err)
	}
	return bars, nil
}
