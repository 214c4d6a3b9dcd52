package ingest

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/county-health/internal/database"
	"github.com/iliyamo/county-health/internal/model"
)

func openTestStore(t *testing.T) *database.Store {
	t.Helper()
	store, err := database.Open(context.Background(), database.Options{
		Driver: database.SQLite,
		Path:   filepath.Join(t.TempDir(), "data.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func writeCSV(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func tableSchema(t *testing.T, store *database.Store, table string) model.TableSchema {
	t.Helper()
	schema, err := store.Schema(context.Background(), store.DB(), table)
	require.NoError(t, err)
	return schema
}

func countRows(t *testing.T, store *database.Store, table string) int {
	t.Helper()
	var n int
	err := store.DB().QueryRow("SELECT COUNT(*) FROM " + store.Dialect().Quote(table)).Scan(&n)
	require.NoError(t, err)
	return n
}

const zipSample = `zip,county,state_abbreviation,county_code
02138,Middlesex County,MA,25017
06457,Middlesex County,CT,09007
10001,New York County,NY,36061
`

func TestLoadFileCreatesTypedTable(t *testing.T) {
	store := openTestStore(t)
	loader := NewLoader(store, Options{}, nil)

	res, err := loader.LoadFile(context.Background(), writeCSV(t, "zip_county.csv", zipSample))
	require.NoError(t, err)

	assert.Equal(t, "zip_county", res.Table)
	assert.Equal(t, 3, res.Rows)
	assert.Zero(t, res.NullSubstitutions)

	schema := tableSchema(t, store, "zip_county")
	assert.Equal(t, []model.Column{
		{Name: "zip", Type: model.ColumnInteger},
		{Name: "county", Type: model.ColumnText},
		{Name: "state_abbreviation", Type: model.ColumnText},
		{Name: "county_code", Type: model.ColumnInteger},
	}, schema.Columns)

	var zip int64
	var county string
	err = store.DB().QueryRow(`SELECT zip, county FROM zip_county WHERE county_code = ?`, 9007).Scan(&zip, &county)
	require.NoError(t, err)
	assert.Equal(t, int64(6457), zip)
	assert.Equal(t, "Middlesex County", county)
}

func TestLoadStoresEmptyCellsAsNull(t *testing.T) {
	store := openTestStore(t)
	loader := NewLoader(store, Options{}, nil)

	_, err := loader.Load(context.Background(), "m", strings.NewReader("name,value\na,\nb,2.5\n"))
	require.NoError(t, err)

	var v sql.NullFloat64
	require.NoError(t, store.DB().QueryRow(`SELECT value FROM m WHERE name = 'a'`).Scan(&v))
	assert.False(t, v.Valid)
}

func TestLoadSubstitutesNullForMalformedValues(t *testing.T) {
	store := openTestStore(t)
	// Inference only sees the first two records, so "oops" does not turn the
	// column into TEXT and has to be stored as NULL.
	loader := NewLoader(store, Options{SampleRows: 2}, nil)

	res, err := loader.Load(context.Background(), "m", strings.NewReader("n\n1\n2\noops\n4\n"))
	require.NoError(t, err)
	assert.Equal(t, 4, res.Rows)
	assert.Equal(t, 1, res.NullSubstitutions)

	var nulls int
	require.NoError(t, store.DB().QueryRow(`SELECT COUNT(*) FROM m WHERE n IS NULL`).Scan(&nulls))
	assert.Equal(t, 1, nulls)
}

func TestLoadPadsAndTruncatesRaggedRows(t *testing.T) {
	store := openTestStore(t)
	loader := NewLoader(store, Options{}, nil)

	res, err := loader.Load(context.Background(), "r", strings.NewReader("a,b\n1\n2,x,extra\n3,y\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Rows)
	assert.Equal(t, 2, res.RaggedRows)

	var b sql.NullString
	require.NoError(t, store.DB().QueryRow(`SELECT b FROM r WHERE a = 1`).Scan(&b))
	assert.False(t, b.Valid)
	require.NoError(t, store.DB().QueryRow(`SELECT b FROM r WHERE a = 2`).Scan(&b))
	assert.Equal(t, "x", b.String)
}

func TestLoadIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	loader := NewLoader(store, Options{}, nil)
	path := writeCSV(t, "zip_county.csv", zipSample)

	first, err := loader.LoadFile(context.Background(), path)
	require.NoError(t, err)
	second, err := loader.LoadFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, first.Columns, second.Columns)
	assert.Equal(t, 3, countRows(t, store, "zip_county"))
	assert.Equal(t, tableSchema(t, store, "zip_county").Columns, first.Columns)
}

func TestLoadReplacesPreviousTable(t *testing.T) {
	store := openTestStore(t)
	loader := NewLoader(store, Options{}, nil)
	ctx := context.Background()

	_, err := loader.Load(ctx, "t", strings.NewReader("a,b\n1,2\n3,4\n"))
	require.NoError(t, err)
	_, err = loader.Load(ctx, "t", strings.NewReader("c\nx\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"c"}, tableSchema(t, store, "t").ColumnNames())
	assert.Equal(t, 1, countRows(t, store, "t"))
}

func TestLoadLeavesNoStagingTable(t *testing.T) {
	store := openTestStore(t)
	loader := NewLoader(store, Options{}, nil)

	_, err := loader.Load(context.Background(), "t", strings.NewReader("a\n1\n"))
	require.NoError(t, err)

	tables, err := store.Tables(context.Background(), store.DB())
	require.NoError(t, err)
	assert.Equal(t, []string{"t"}, tables)
}

func TestLoadFailureKeepsPreviousTable(t *testing.T) {
	store := openTestStore(t)
	loader := NewLoader(store, Options{}, nil)
	ctx := context.Background()

	_, err := loader.Load(ctx, "t", strings.NewReader("a\n1\n2\n"))
	require.NoError(t, err)

	_, err = loader.Load(ctx, "t", strings.NewReader(""))
	require.ErrorIs(t, err, ErrNoHeader)
	assert.Equal(t, 2, countRows(t, store, "t"))
}

func TestLoadCreatesIndexes(t *testing.T) {
	store := openTestStore(t)
	loader := NewLoader(store, Options{}, nil)

	res, err := loader.LoadFile(context.Background(), writeCSV(t, "zip_county.csv", zipSample))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"idx_zip_county_zip",
		"idx_zip_county_county",
		"idx_zip_county_county_code",
	}, res.Indexes)

	rows, err := store.DB().Query(`SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = 'zip_county'`)
	require.NoError(t, err)
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		require.NoError(t, rows.Scan(&n))
		names = append(names, n)
	}
	require.NoError(t, rows.Err())
	assert.ElementsMatch(t, res.Indexes, names)
}

func TestLoadSmallBatches(t *testing.T) {
	store := openTestStore(t)
	loader := NewLoader(store, Options{BatchSize: 2}, nil)

	var b strings.Builder
	b.WriteString("n,label\n")
	for i := 0; i < 7; i++ {
		b.WriteString("1,x\n")
	}
	res, err := loader.Load(context.Background(), "batches", strings.NewReader(b.String()))
	require.NoError(t, err)
	assert.Equal(t, 7, res.Rows)
	assert.Equal(t, 7, countRows(t, store, "batches"))
}

func TestBatchRowsRespectsParameterLimit(t *testing.T) {
	store := openTestStore(t)
	loader := NewLoader(store, Options{BatchSize: 100000}, nil)
	assert.Equal(t, store.Dialect().MaxParams()/10, loader.batchRows(10))

	loader = NewLoader(store, Options{BatchSize: 50}, nil)
	assert.Equal(t, 50, loader.batchRows(10))
}

func TestLoadFileMissing(t *testing.T) {
	store := openTestStore(t)
	_, err := NewLoader(store, Options{}, nil).LoadFile(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}

func TestLoadRejectsStagingName(t *testing.T) {
	store := openTestStore(t)
	loader := NewLoader(store, Options{}, nil)

	_, err := loader.Load(context.Background(), "rankings"+database.StagingSuffix, strings.NewReader("a\n1\n"))
	require.ErrorIs(t, err, ErrStagingName)

	names, err := store.Tables(context.Background(), store.DB())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestLoadFileRenamesStagingLikeFile(t *testing.T) {
	store := openTestStore(t)
	loader := NewLoader(store, Options{}, nil)

	res, err := loader.LoadFile(context.Background(), writeCSV(t, "rankings__staging.csv", "a\n1\n"))
	require.NoError(t, err)
	assert.Equal(t, "rankings__staging_", res.Table)
	assert.Len(t, tableSchema(t, store, "rankings__staging_").Columns, 1)
}
