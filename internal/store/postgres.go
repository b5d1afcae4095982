package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/business-finder/internal/db"
	"github.com/sells-group/business-finder/internal/model"
)

// PostgresStore implements Store on PostGIS using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var preparedStatements = map[string]string{
	"update_run_status": `UPDATE runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
	"get_run":           `SELECT ` + postgresRunColumns + ` FROM runs WHERE id = $1`,
	"list_businesses":   `SELECT name, address, category, website, latitude, longitude, complete FROM businesses WHERE run_id = $1 ORDER BY position`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	location_query TEXT NOT NULL,
	radius_km      DOUBLE PRECISION NOT NULL,
	business_type  TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'queued',
	center_query   TEXT,
	center         geometry(Point, 4326),
	enriched       INTEGER NOT NULL DEFAULT 0,
	error          TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS businesses (
	run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	position  INTEGER NOT NULL,
	name      TEXT NOT NULL,
	address   TEXT NOT NULL,
	category  TEXT NOT NULL,
	website   TEXT,
	latitude  DOUBLE PRECISION NOT NULL,
	longitude DOUBLE PRECISION NOT NULL,
	complete  BOOLEAN NOT NULL DEFAULT false,
	geom      geometry(Point, 4326) GENERATED ALWAYS AS (ST_SetSRID(ST_MakePoint(longitude, latitude), 4326)) STORED,
	PRIMARY KEY (run_id, name)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_businesses_run_position ON businesses(run_id, position);
CREATE INDEX IF NOT EXISTS idx_businesses_geom ON businesses USING GIST (geom);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, params model.SearchParameters) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, location_query, radius_km, business_type, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, params.LocationQuery, params.RadiusKM, string(params.BusinessType), string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Params:    params,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(status), errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

// encodeCenter renders a Location as EWKB for ST_GeomFromEWKB.
func encodeCenter(loc model.Location) ([]byte, error) {
	pt := geom.NewPointFlat(geom.XY, []float64{loc.Longitude, loc.Latitude}).SetSRID(4326)
	data, err := ewkb.Marshal(pt, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: encode center")
	}
	return data, nil
}

var businessColumns = []string{"run_id", "position", "name", "address", "category", "website", "latitude", "longitude", "complete"}

// SaveResult replaces the run's businesses via COPY and stamps the center in one transaction.
func (s *PostgresStore) SaveResult(ctx context.Context, runID string, status model.RunStatus, result *model.DiscoveryResult, enriched int) error {
	center, err := encodeCenter(result.Center)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE runs SET status = $1, center_query = $2, center = ST_GeomFromEWKB($3), enriched = $4, error = '', updated_at = $5 WHERE id = $6`,
		string(status), result.Center.Query, center, enriched, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run result %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM businesses WHERE run_id = $1`, runID); err != nil {
		return eris.Wrapf(err, "postgres: clear businesses %s", runID)
	}

	rows := make([][]any, 0, len(result.Businesses))
	for i, b := range result.Businesses {
		rows = append(rows, []any{runID, int32(i), b.Name, b.Address, b.Category, b.Website, b.Latitude, b.Longitude, b.Complete})
	}
	if _, err := db.CopyFrom(ctx, tx, "businesses", businessColumns, rows); err != nil {
		return eris.Wrapf(err, "postgres: copy businesses %s", runID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit result")
}

func (s *PostgresStore) UpdateWebsite(ctx context.Context, runID, name string, website *string) error {
	b := model.Business{}
	b.SetWebsite(website)

	tag, err := s.pool.Exec(ctx,
		`UPDATE businesses SET website = $1, complete = $2 WHERE run_id = $3 AND name = $4`,
		b.Website, b.Complete, runID, name,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update website %s/%s", runID, name)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "business %s/%s", runID, name)
	}
	_, err = s.pool.Exec(ctx, `UPDATE runs SET updated_at = $1 WHERE id = $2`, time.Now().UTC(), runID)
	return eris.Wrap(err, "postgres: touch run")
}

const postgresRunColumns = `id, location_query, radius_km, business_type, status, center_query, ST_Y(center), ST_X(center), enriched, error, created_at, updated_at`

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanPostgresRun(s.pool.QueryRow(ctx, `SELECT `+postgresRunColumns+` FROM runs WHERE id = $1`, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT name, address, category, website, latitude, longitude, complete FROM businesses WHERE run_id = $1 ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list businesses %s", runID)
	}
	defer rows.Close()

	for rows.Next() {
		var b model.Business
		if err := rows.Scan(&b.Name, &b.Address, &b.Category, &b.Website, &b.Latitude, &b.Longitude, &b.Complete); err != nil {
			return nil, eris.Wrap(err, "postgres: scan business")
		}
		r.Businesses = append(r.Businesses, b)
	}
	return r, eris.Wrap(rows.Err(), "postgres: list businesses iterate")
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + postgresRunColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, defaultLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func scanPostgresRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var businessType, status string
	var centerQuery *string
	var lat, lon *float64

	if err := row.Scan(&r.ID, &r.Params.LocationQuery, &r.Params.RadiusKM, &businessType, &status,
		&centerQuery, &lat, &lon, &r.Enriched, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Params.BusinessType = model.BusinessType(businessType)
	r.Status = model.RunStatus(status)
	if lat != nil && lon != nil {
		r.Center = &model.Location{Latitude: *lat, Longitude: *lon}
		if centerQuery != nil {
			r.Center.Query = *centerQuery
		}
	}
	return &r, nil
}
