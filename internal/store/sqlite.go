package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/business-finder/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY,
	location_query TEXT NOT NULL,
	radius_km      REAL NOT NULL,
	business_type  TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'queued',
	center_query   TEXT,
	center_lat     REAL,
	center_lon     REAL,
	enriched       INTEGER NOT NULL DEFAULT 0,
	error          TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS businesses (
	run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	position  INTEGER NOT NULL,
	name      TEXT NOT NULL,
	address   TEXT NOT NULL,
	category  TEXT NOT NULL,
	website   TEXT,
	latitude  REAL NOT NULL,
	longitude REAL NOT NULL,
	complete  INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, name)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_businesses_run_position ON businesses(run_id, position);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, params model.SearchParameters) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, location_query, radius_km, business_type, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, params.LocationQuery, params.RadiusKM, string(params.BusinessType), string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Params:    params,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

// SaveResult replaces the run's center and businesses in one transaction.
func (s *SQLiteStore) SaveResult(ctx context.Context, runID string, status model.RunStatus, result *model.DiscoveryResult, enriched int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE runs SET status = ?, center_query = ?, center_lat = ?, center_lon = ?, enriched = ?, error = '', updated_at = ? WHERE id = ?`,
		string(status), result.Center.Query, result.Center.Latitude, result.Center.Longitude, enriched, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run result %s", runID)
	}
	if err := checkRowsAffected(res, "run", runID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM businesses WHERE run_id = ?`, runID); err != nil {
		return eris.Wrapf(err, "sqlite: clear businesses %s", runID)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO businesses (run_id, position, name, address, category, website, latitude, longitude, complete) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare business insert")
	}
	defer stmt.Close() //nolint:errcheck

	for i, b := range result.Businesses {
		if _, err := stmt.ExecContext(ctx,
			runID, i, b.Name, b.Address, b.Category, nullString(b.Website), b.Latitude, b.Longitude, b.Complete,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert business %q", b.Name)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit result")
}

func (s *SQLiteStore) UpdateWebsite(ctx context.Context, runID, name string, website *string) error {
	b := model.Business{}
	b.SetWebsite(website)

	res, err := s.db.ExecContext(ctx,
		`UPDATE businesses SET website = ?, complete = ? WHERE run_id = ? AND name = ?`,
		nullString(b.Website), b.Complete, runID, name,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update website %s/%s", runID, name)
	}
	if err := checkRowsAffected(res, "business", runID+"/"+name); err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE runs SET updated_at = ? WHERE id = ?`, time.Now().UTC(), runID)
	return eris.Wrap(err, "sqlite: touch run")
}

const sqliteRunColumns = `id, location_query, radius_km, business_type, status, center_query, center_lat, center_lon, enriched, error, created_at, updated_at`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteRunColumns+` FROM runs WHERE id = ?`, runID)
	r, err := scanRun(row)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, address, category, website, latitude, longitude, complete FROM businesses WHERE run_id = ? ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list businesses %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var b model.Business
		var website sql.NullString
		if err := rows.Scan(&b.Name, &b.Address, &b.Category, &website, &b.Latitude, &b.Longitude, &b.Complete); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan business")
		}
		if website.Valid {
			b.Website = &website.String
		}
		r.Businesses = append(r.Businesses, b)
	}
	return r, eris.Wrap(rows.Err(), "sqlite: list businesses iterate")
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, defaultLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var centerQuery sql.NullString
	var lat, lon sql.NullFloat64

	err := row.Scan(&r.ID, &r.Params.LocationQuery, &r.Params.RadiusKM, &r.Params.BusinessType, &r.Status,
		&centerQuery, &lat, &lon, &r.Enriched, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "run")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if lat.Valid && lon.Valid {
		r.Center = &model.Location{Query: centerQuery.String, Latitude: lat.Float64, Longitude: lon.Float64}
	}
	return &r, nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
