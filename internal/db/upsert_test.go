package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stationCols = []string{"code", "latitude", "longitude", "elevation", "location"}

func stationUpsert() Upsert {
	return Upsert{Table: "stations", Columns: stationCols, Keys: []string{"code"}}
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, stationUpsert(), nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_Invalid(t *testing.T) {
	tests := []struct {
		name string
		u    Upsert
		want string
	}{
		{"no columns", Upsert{Table: "stations", Keys: []string{"code"}}, "no columns specified"},
		{"no keys", Upsert{Table: "stations", Columns: stationCols}, "no conflict keys specified"},
		{"key not a column", Upsert{Table: "stations", Columns: stationCols, Keys: []string{"id"}}, `key "id" is not a column`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BulkUpsert(context.Background(), nil, tt.u, [][]any{{"IU.ANMO"}})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestUpsertStatements(t *testing.T) {
	create, merge := stationUpsert().statements()
	assert.Equal(t,
		`CREATE TEMP TABLE "_stage_stations" (LIKE "stations" INCLUDING DEFAULTS) ON COMMIT DROP`,
		create)
	assert.Equal(t,
		`INSERT INTO "stations" ("code", "latitude", "longitude", "elevation", "location") `+
			`SELECT "code", "latitude", "longitude", "elevation", "location" FROM "_stage_stations" `+
			`ON CONFLICT ("code") DO UPDATE SET "latitude" = EXCLUDED."latitude", "longitude" = EXCLUDED."longitude", `+
			`"elevation" = EXCLUDED."elevation", "location" = EXCLUDED."location"`,
		merge)

	_, merge = Upsert{Table: "archive.stations", Columns: []string{"code"}, Keys: []string{"code"}}.statements()
	assert.Contains(t, merge, `INSERT INTO "archive"."stations"`)
	assert.Contains(t, merge, `FROM "_stage_archive_stations"`)
	assert.Contains(t, merge, `ON CONFLICT ("code") DO NOTHING`)
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_stage_stations"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_stations"}, stationCols).WillReturnResult(2)
	mock.ExpectExec(`ON CONFLICT \("code"\) DO UPDATE SET "latitude" = EXCLUDED."latitude"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, stationUpsert(), [][]any{
		{"IU.ANMO", 34.9, -106.5, 1850.0, []byte{1}},
		{"AU.NWAO", -32.9, 117.2, 265.0, []byte{1}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_stations"}, stationCols).WillReturnError(fmt.Errorf("disk full"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, stationUpsert(), [][]any{{"IU.ANMO", 34.9, -106.5, 1850.0, []byte{1}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db: upsert: copy stations")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentifier(t *testing.T) {
	assert.Equal(t, `"stations"`, identifier("stations").Sanitize())
	assert.Equal(t, `"archive"."stations"`, identifier("archive.stations").Sanitize())
}
