// Package testutil builds throwaway SQLite stores loaded with the sample
// county health data.
package testutil

import (
	"context"
	"embed"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/county-health/internal/database"
	"github.com/iliyamo/county-health/internal/ingest"
)

//go:embed testdata/*.csv
var samples embed.FS

// Sample file names, which are also the table names they load into.
const (
	RankingsCSV  = "county_health_rankings.csv"
	ZipCountyCSV = "zip_county.csv"
)

// OpenStore returns an empty SQLite store in a temporary directory.
func OpenStore(t testing.TB) *database.Store {
	t.Helper()
	store, err := database.Open(context.Background(), database.Options{
		Driver: database.SQLite,
		Path:   filepath.Join(t.TempDir(), "data.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// WriteSample copies an embedded sample CSV into dir and returns its path.
func WriteSample(t testing.TB, dir, name string) string {
	t.Helper()
	data, err := samples.ReadFile("testdata/" + name)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// SampleStore returns a store with both sample tables ingested.
func SampleStore(t testing.TB) *database.Store {
	t.Helper()
	store := OpenStore(t)
	dir := t.TempDir()
	loader := ingest.NewLoader(store, ingest.Options{}, nil)
	for _, name := range []string{RankingsCSV, ZipCountyCSV} {
		_, err := loader.LoadFile(context.Background(), WriteSample(t, dir, name))
		require.NoError(t, err)
	}
	return store
}
