package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/county-health/internal/model"
	"github.com/iliyamo/county-health/internal/testutil"
)

func TestSchemaTables(t *testing.T) {
	store := testutil.SampleStore(t)
	_, err := store.DB().Exec(`CREATE TABLE "leftover__staging" (x TEXT)`)
	require.NoError(t, err)

	tables, err := NewSchemaRepo(store).Tables(context.Background())
	require.NoError(t, err)

	require.Contains(t, tables, model.ZipCountyTable)
	require.Contains(t, tables, model.RankingsTable)
	assert.NotContains(t, tables, "leftover__staging")

	zips := tables[model.ZipCountyTable]
	assert.Equal(t, []string{
		"zip", "default_state", "county", "county_state", "state_abbreviation",
		"county_code", "zip_pop", "zip_pop_in_county", "n_counties", "default_city",
	}, zips.Columns)
	assert.Equal(t, model.ColumnInteger, zips.Types["zip"])
	assert.Equal(t, model.ColumnText, zips.Types["county"])

	rankings := tables[model.RankingsTable]
	assert.Equal(t, model.ColumnReal, rankings.Types["raw_value"])
	assert.Equal(t, model.ColumnText, rankings.Types["year_span"])
	assert.Equal(t, model.ColumnInteger, rankings.Types["fipscode"])
}

func TestSchemaTablesEmptyStore(t *testing.T) {
	tables, err := NewSchemaRepo(testutil.OpenStore(t)).Tables(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tables)
}
