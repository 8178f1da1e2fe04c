package elements

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orbital/orbwatch/internal/catalog"
)

// PostgresStore persists element history in PostgreSQL. The unique index on
// (catalog_id, epoch, source) is what enforces the append-only invariant.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgres constructs a PostgreSQL-backed element store.
func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const elementsSchema = `
CREATE TABLE IF NOT EXISTS tracked_objects (
	catalog_id    INTEGER PRIMARY KEY,
	name          TEXT NOT NULL DEFAULT '',
	constellation TEXT NOT NULL DEFAULT '',
	launched_at   TIMESTAMPTZ,
	decayed_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS element_snapshots (
	catalog_id       INTEGER NOT NULL,
	epoch            TIMESTAMPTZ NOT NULL,
	source           TEXT NOT NULL,
	name             TEXT NOT NULL DEFAULT '',
	inclination_deg  DOUBLE PRECISION NOT NULL,
	raan_deg         DOUBLE PRECISION NOT NULL,
	eccentricity     DOUBLE PRECISION NOT NULL,
	arg_perigee_deg  DOUBLE PRECISION NOT NULL,
	mean_anomaly_deg DOUBLE PRECISION NOT NULL,
	mean_motion      DOUBLE PRECISION NOT NULL,
	mean_motion_dot  DOUBLE PRECISION NOT NULL,
	mean_motion_ddot DOUBLE PRECISION NOT NULL,
	bstar            DOUBLE PRECISION NOT NULL,
	apoapsis_km      DOUBLE PRECISION NOT NULL,
	periapsis_km     DOUBLE PRECISION NOT NULL,
	period_min       DOUBLE PRECISION NOT NULL,
	line1            TEXT NOT NULL,
	line2            TEXT NOT NULL,
	fetched_at       TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (catalog_id, epoch, source)
);
`

// EnsureSchema creates the element tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, elementsSchema); err != nil {
		return fmt.Errorf("ensure elements schema: %w", err)
	}
	return nil
}

const insertSnapshot = `
INSERT INTO element_snapshots (
	catalog_id, epoch, source, name,
	inclination_deg, raan_deg, eccentricity, arg_perigee_deg, mean_anomaly_deg,
	mean_motion, mean_motion_dot, mean_motion_ddot, bstar,
	apoapsis_km, periapsis_km, period_min, line1, line2, fetched_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
ON CONFLICT (catalog_id, epoch, source) DO NOTHING
`

func (s *PostgresStore) Append(ctx context.Context, snaps []catalog.ElementSnapshot) (int, error) {
	if len(snaps) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, snap := range snaps {
		batch.Queue(insertSnapshot,
			snap.CatalogID, snap.Epoch, string(snap.Source), snap.Name,
			snap.InclinationDeg, snap.RAANDeg, snap.Eccentricity, snap.ArgPerigeeDeg, snap.MeanAnomalyDeg,
			snap.MeanMotion, snap.MeanMotionDot, snap.MeanMotionDDot, snap.Bstar,
			snap.ApoapsisKm, snap.PeriapsisKm, snap.PeriodMin, snap.Line1, snap.Line2, snap.FetchedAt,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range snaps {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("append element snapshot: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

const snapshotColumns = `
	catalog_id, epoch, source, name,
	inclination_deg, raan_deg, eccentricity, arg_perigee_deg, mean_anomaly_deg,
	mean_motion, mean_motion_dot, mean_motion_ddot, bstar,
	apoapsis_km, periapsis_km, period_min, line1, line2, fetched_at
`

func (s *PostgresStore) Latest(ctx context.Context, catalogID int, source catalog.Source) (catalog.ElementSnapshot, error) {
	query := `SELECT ` + snapshotColumns + `
		FROM element_snapshots
		WHERE catalog_id = $1 AND source = $2
		ORDER BY epoch DESC
		LIMIT 1`

	row := s.pool.QueryRow(ctx, query, catalogID, string(source))
	snap, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.ElementSnapshot{}, ErrNoSnapshot
		}
		return catalog.ElementSnapshot{}, fmt.Errorf("latest element snapshot: %w", err)
	}
	return snap, nil
}

func (s *PostgresStore) History(ctx context.Context, catalogID int, source catalog.Source, limit int) ([]catalog.ElementSnapshot, error) {
	// Grab the newest rows, then flip to ascending epoch order.
	query := `SELECT ` + snapshotColumns + `
		FROM element_snapshots
		WHERE catalog_id = $1 AND source = $2
		ORDER BY epoch DESC`
	args := []any{catalogID, string(source)}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("element history: %w", err)
	}
	defer rows.Close()

	var snaps []catalog.ElementSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("element history: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("element history: %w", err)
	}

	for i, j := 0, len(snaps)-1; i < j; i, j = i+1, j-1 {
		snaps[i], snaps[j] = snaps[j], snaps[i]
	}
	return snaps, nil
}

func (s *PostgresStore) UpsertObject(ctx context.Context, obj catalog.TrackedObject) error {
	query := `
		INSERT INTO tracked_objects (catalog_id, name, constellation, launched_at, decayed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (catalog_id) DO UPDATE SET
			name = EXCLUDED.name,
			constellation = EXCLUDED.constellation,
			launched_at = COALESCE(EXCLUDED.launched_at, tracked_objects.launched_at),
			decayed_at = COALESCE(EXCLUDED.decayed_at, tracked_objects.decayed_at)`

	if _, err := s.pool.Exec(ctx, query, obj.CatalogID, obj.Name, obj.Constellation, obj.LaunchedAt, obj.DecayedAt); err != nil {
		return fmt.Errorf("upsert tracked object: %w", err)
	}
	return nil
}

func (s *PostgresStore) Objects(ctx context.Context) ([]catalog.TrackedObject, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT catalog_id, name, constellation, launched_at, decayed_at
		FROM tracked_objects
		ORDER BY catalog_id`)
	if err != nil {
		return nil, fmt.Errorf("list tracked objects: %w", err)
	}
	defer rows.Close()

	var objs []catalog.TrackedObject
	for rows.Next() {
		var obj catalog.TrackedObject
		if err := rows.Scan(&obj.CatalogID, &obj.Name, &obj.Constellation, &obj.LaunchedAt, &obj.DecayedAt); err != nil {
			return nil, fmt.Errorf("list tracked objects: %w", err)
		}
		objs = append(objs, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tracked objects: %w", err)
	}
	return objs, nil
}

func scanSnapshot(row pgx.Row) (catalog.ElementSnapshot, error) {
	var snap catalog.ElementSnapshot
	var source string
	err := row.Scan(
		&snap.CatalogID, &snap.Epoch, &source, &snap.Name,
		&snap.InclinationDeg, &snap.RAANDeg, &snap.Eccentricity, &snap.ArgPerigeeDeg, &snap.MeanAnomalyDeg,
		&snap.MeanMotion, &snap.MeanMotionDot, &snap.MeanMotionDDot, &snap.Bstar,
		&snap.ApoapsisKm, &snap.PeriapsisKm, &snap.PeriodMin, &snap.Line1, &snap.Line2, &snap.FetchedAt,
	)
	if err != nil {
		return catalog.ElementSnapshot{}, err
	}
	snap.Source = catalog.Source(source)
	return snap, nil
}
