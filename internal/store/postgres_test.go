package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/business-finder/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var runRowColumns = []string{"id", "location_query", "radius_km", "business_type", "status", "center_query", "st_y", "st_x", "enriched", "error", "created_at", "updated_at"}

func float64Ptr(f float64) *float64 { return &f }

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), "Boulder", 1.0, "all", "queued", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), boulderParams())
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusQueued, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRunStatus_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status = \$1, error = \$2`).
		WithArgs("failed", "boom", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateRunStatus(context.Background(), "missing", model.RunStatusFailed, "boom")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, location_query, .* FROM runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get run")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_WithBusinesses(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, location_query, .*ST_Y\(center\), ST_X\(center\).* FROM runs WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows(runRowColumns).AddRow(
			"run-1", "Boulder", 1.0, "all", "complete", strPtr("Boulder, CO"),
			float64Ptr(40.0150), float64Ptr(-105.2705), 0, "", now, now,
		))
	mock.ExpectQuery(`SELECT name, address, category, website, latitude, longitude, complete FROM businesses WHERE run_id = \$1 ORDER BY position`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"name", "address", "category", "website", "latitude", "longitude", "complete"}).
			AddRow("Cafe A", "Pearl St 1", "cafe", (*string)(nil), 40.01, -105.27, false).
			AddRow("Shop B", "", "books", strPtr("https://shopb.com"), 40.02, -105.28, true))

	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, model.BusinessTypeAll, run.Params.BusinessType)
	require.NotNil(t, run.Center)
	assert.InDelta(t, 40.0150, run.Center.Latitude, 1e-9)
	assert.InDelta(t, -105.2705, run.Center.Longitude, 1e-9)
	require.Len(t, run.Businesses, 2)
	assert.Equal(t, "Cafe A", run.Businesses[0].Name)
	assert.Equal(t, "https://shopb.com", run.Businesses[1].WebsiteOrEmpty())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveResult(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE runs SET status = \$1, center_query = \$2, center = ST_GeomFromEWKB\(\$3\)`).
		WithArgs("complete", "Boulder, CO", pgxmock.AnyArg(), 0, pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`DELETE FROM businesses WHERE run_id = \$1`).
		WithArgs("run-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"businesses"}, businessColumns).WillReturnResult(2)
	mock.ExpectCommit()

	err := s.SaveResult(context.Background(), "run-1", model.RunStatusComplete, boulderResult(), 0)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveResult_UnknownRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE runs SET status`).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := s.SaveResult(context.Background(), "missing", model.RunStatusComplete, boulderResult(), 0)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveResult_CopyError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE runs SET status`).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`DELETE FROM businesses`).WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectCopyFrom(pgx.Identifier{"businesses"}, businessColumns).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.SaveResult(context.Background(), "run-1", model.RunStatusComplete, boulderResult(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy businesses")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateWebsite(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE businesses SET website = \$1, complete = \$2`).
		WithArgs(pgxmock.AnyArg(), true, "run-1", "Cafe A").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE runs SET updated_at`).
		WithArgs(pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.UpdateWebsite(context.Background(), "run-1", "Cafe A", strPtr("https://cafea.com")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_Filter(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM runs WHERE true AND status = \$1 ORDER BY created_at DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("complete", 10, 20).
		WillReturnRows(pgxmock.NewRows(runRowColumns).AddRow(
			"run-1", "Boulder", 1.0, "all", "complete", (*string)(nil),
			(*float64)(nil), (*float64)(nil), 0, "", now, now,
		))

	runs, err := s.ListRuns(context.Background(), RunFilter{Status: model.RunStatusComplete, Limit: 10, Offset: 20})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Nil(t, runs[0].Center)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEncodeCenter(t *testing.T) {
	data, err := encodeCenter(model.Location{Latitude: 40.0150, Longitude: -105.2705})
	require.NoError(t, err)

	g, err := ewkb.Unmarshal(data)
	require.NoError(t, err)
	pt, ok := g.(*geom.Point)
	require.True(t, ok)
	assert.Equal(t, 4326, pt.SRID())
	assert.InDelta(t, -105.2705, pt.X(), 1e-9)
	assert.InDelta(t, 40.0150, pt.Y(), 1e-9)
}
