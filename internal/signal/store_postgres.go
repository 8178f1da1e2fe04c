package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists signal events in PostgreSQL. The unique index on
// fingerprint is the dedup enforcement mechanism for concurrent runs.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgres constructs a PostgreSQL-backed signal store.
func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const signalsSchema = `
CREATE TABLE IF NOT EXISTS signal_events (
	id          UUID PRIMARY KEY,
	type        TEXT NOT NULL,
	severity    TEXT NOT NULL,
	category    TEXT NOT NULL,
	title       TEXT NOT NULL,
	metrics     JSONB NOT NULL DEFAULT '{}',
	source_refs JSONB NOT NULL DEFAULT '[]',
	fingerprint TEXT NOT NULL UNIQUE,
	detected_at TIMESTAMPTZ NOT NULL,
	expires_at  TIMESTAMPTZ,
	status      TEXT NOT NULL DEFAULT 'active'
);

CREATE INDEX IF NOT EXISTS signal_events_status_idx ON signal_events (status, detected_at DESC);
`

// EnsureSchema creates the signal table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, signalsSchema); err != nil {
		return fmt.Errorf("ensure signals schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, ev Event) (InsertOutcome, error) {
	metrics, err := json.Marshal(ev.Metrics)
	if err != nil {
		return "", fmt.Errorf("marshal signal metrics: %w", err)
	}
	refs, err := json.Marshal(ev.SourceRefs)
	if err != nil {
		return "", fmt.Errorf("marshal signal source refs: %w", err)
	}

	// First try a plain insert; a fingerprint conflict is a defined no-op.
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO signal_events
			(id, type, severity, category, title, metrics, source_refs, fingerprint, detected_at, expires_at, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (fingerprint) DO NOTHING`,
		ev.ID, ev.Type, string(ev.Severity), ev.Category, ev.Title,
		metrics, refs, ev.Fingerprint, ev.DetectedAt, ev.ExpiresAt, string(ev.Status),
	)
	if err != nil {
		return "", fmt.Errorf("insert signal: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return OutcomeInserted, nil
	}

	// Row exists. If it expired, the anomaly recurred: reactivate it.
	tag, err = s.pool.Exec(ctx, `
		UPDATE signal_events
		SET status = 'active', detected_at = $2, expires_at = $3
		WHERE fingerprint = $1 AND status = 'expired'`,
		ev.Fingerprint, ev.DetectedAt, ev.ExpiresAt,
	)
	if err != nil {
		return "", fmt.Errorf("reactivate signal: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return OutcomeReactivated, nil
	}
	return OutcomeDuplicate, nil
}

func (s *PostgresStore) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE signal_events
		SET status = 'expired'
		WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("expire signals: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

const eventColumns = `id, type, severity, category, title, metrics, source_refs, fingerprint, detected_at, expires_at, status`

func (s *PostgresStore) Active(ctx context.Context) ([]Event, error) {
	return s.byStatus(ctx, StatusActive)
}

func (s *PostgresStore) Expired(ctx context.Context) ([]Event, error) {
	return s.byStatus(ctx, StatusExpired)
}

func (s *PostgresStore) byStatus(ctx context.Context, status Status) ([]Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM signal_events WHERE status = $1 ORDER BY detected_at DESC`,
		string(status))
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("query signals: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	return events, nil
}

func (s *PostgresStore) ByID(ctx context.Context, id uuid.UUID) (Event, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM signal_events WHERE id = $1`, id)
	ev, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Event{}, ErrNotFound
		}
		return Event{}, fmt.Errorf("signal by id: %w", err)
	}
	return ev, nil
}

func scanEvent(row pgx.Row) (Event, error) {
	var ev Event
	var severity, status string
	var metrics, refs []byte

	err := row.Scan(&ev.ID, &ev.Type, &severity, &ev.Category, &ev.Title,
		&metrics, &refs, &ev.Fingerprint, &ev.DetectedAt, &ev.ExpiresAt, &status)
	if err != nil {
		return Event{}, err
	}

	ev.Severity = Severity(severity)
	ev.Status = Status(status)
	if err := json.Unmarshal(metrics, &ev.Metrics); err != nil {
		return Event{}, fmt.Errorf("unmarshal signal metrics: %w", err)
	}
	if err := json.Unmarshal(refs, &ev.SourceRefs); err != nil {
		return Event{}, fmt.Errorf("unmarshal signal source refs: %w", err)
	}
	return ev, nil
}
