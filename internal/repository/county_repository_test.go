package repository

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/county-health/internal/ingest"
	"github.com/iliyamo/county-health/internal/model"
	"github.com/iliyamo/county-health/internal/testutil"
)

func TestMeasures(t *testing.T) {
	repo := NewCountyRepo(testutil.SampleStore(t))

	measures, err := repo.Measures(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Adult obesity", "Unemployment", "Violent crime rate"}, measures)
}

func TestMeasureExists(t *testing.T) {
	repo := NewCountyRepo(testutil.SampleStore(t))
	ctx := context.Background()

	ok, err := repo.MeasureExists(ctx, "Adult obesity")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MeasureExists(ctx, "adult obesity")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCountyDataMiddlesexMA(t *testing.T) {
	repo := NewCountyRepo(testutil.SampleStore(t))

	rows, err := repo.CountyData(context.Background(), "02138", "Adult obesity")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	first := rows[0]
	assert.Equal(t, "Middlesex County", first["county"])
	assert.Equal(t, "MA", first["state"])
	assert.Equal(t, "0.23", first["raw_value"])
	assert.Equal(t, "2017-2019", first["year_span"])
	assert.Equal(t, "25017", first["fipscode"])
	assert.Equal(t, "2016-2018", rows[1]["year_span"])

	for _, r := range rows {
		assert.Len(t, r, len(countyDataColumns))
		assert.Equal(t, "MA", r["state"], "no rows from other states' Middlesex County")
	}
}

func TestCountyDataOtherStates(t *testing.T) {
	repo := NewCountyRepo(testutil.SampleStore(t))

	rows, err := repo.CountyData(context.Background(), "06457", "Adult obesity")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "CT", rows[0]["state"])
	assert.Equal(t, "0.29", rows[0]["raw_value"])
}

func TestCountyDataNullRendersEmpty(t *testing.T) {
	repo := NewCountyRepo(testutil.SampleStore(t))

	rows, err := repo.CountyData(context.Background(), "02139", "Unemployment")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "", rows[0]["confidence_interval_lower_bound"])
	assert.Equal(t, "0.031", rows[0]["raw_value"])
}

func TestCountyDataNotFound(t *testing.T) {
	repo := NewCountyRepo(testutil.SampleStore(t))
	ctx := context.Background()

	_, err := repo.CountyData(ctx, "00000", "Adult obesity")
	assert.ErrorIs(t, err, ErrZipNotFound)

	_, err = repo.CountyData(ctx, "02108", "Unemployment")
	assert.ErrorIs(t, err, ErrNoData)
}

func TestCountyDataMatchesByNameWithoutFips(t *testing.T) {
	store := testutil.OpenStore(t)
	loader := ingest.NewLoader(store, ingest.Options{}, nil)
	ctx := context.Background()

	_, err := loader.Load(ctx, model.RankingsTable, strings.NewReader(
		"state,county,measure_name,raw_value\nMA,  middlesex county ,Adult obesity,0.23\nCT,Middlesex County,Adult obesity,0.29\n"))
	require.NoError(t, err)
	_, err = loader.Load(ctx, model.ZipCountyTable, strings.NewReader(
		"zip,county,state_abbreviation,county_code\n02138,Middlesex County,MA,25017\n"))
	require.NoError(t, err)

	rows, err := NewCountyRepo(store).CountyData(ctx, "02138", "Adult obesity")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.Row{
		"state":        "MA",
		"county":       "  middlesex county ",
		"measure_name": "Adult obesity",
		"raw_value":    "0.23",
	}, rows[0])
}

func TestCountyDataMissingTable(t *testing.T) {
	repo := NewCountyRepo(testutil.OpenStore(t))
	_, err := repo.CountyData(context.Background(), "02138", "Adult obesity")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrZipNotFound)
}

func TestCountyDataRealsMirrorStoreText(t *testing.T) {
	store := testutil.OpenStore(t)
	loader := ingest.NewLoader(store, ingest.Options{}, nil)
	ctx := context.Background()

	_, err := loader.Load(ctx, model.RankingsTable, strings.NewReader(
		"state,county,measure_name,denominator,raw_value,fipscode\n"+
			"MA,Middlesex County,Adult obesity,1213000,12.0,25017\n"+
			"MA,Middlesex County,Adult obesity,626000.5,0.23,25017\n"))
	require.NoError(t, err)
	_, err = loader.Load(ctx, model.ZipCountyTable, strings.NewReader(
		"zip,county,state_abbreviation,county_code\n02138,Middlesex County,MA,25017\n"))
	require.NoError(t, err)

	tables, err := NewSchemaRepo(store).Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ColumnReal, tables[model.RankingsTable].Types["denominator"])
	assert.Equal(t, model.ColumnReal, tables[model.RankingsTable].Types["raw_value"])

	rows, err := NewCountyRepo(store).CountyData(ctx, "02138", "Adult obesity")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	got := map[string]string{}
	for _, r := range rows {
		got[r["denominator"]] = r["raw_value"]
	}
	assert.Equal(t, map[string]string{"1213000.0": "12.0", "626000.5": "0.23"}, got)
}

func TestRenderValue(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{int64(25017), "25017"},
		{1213000.0, "1213000.0"},
		{12.0, "12.0"},
		{0.031, "0.031"},
		{-2.5, "-2.5"},
		{[]byte("0.23"), "0.23"},
		{"2017-2019", "2017-2019"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, renderValue(tc.in), "%v", tc.in)
	}
}
