package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/county-health/internal/model"
)

func mustDialect(t *testing.T, name string) *Dialect {
	t.Helper()
	d, err := NewDialect(name)
	require.NoError(t, err)
	return d
}

func TestNewDialectAliases(t *testing.T) {
	for in, want := range map[string]string{
		"":           SQLite,
		"SQLite3":    SQLite,
		"mariadb":    MySQL,
		"postgresql": Postgres,
		"pgx":        Postgres,
	} {
		assert.Equal(t, want, mustDialect(t, in).Name(), in)
	}
	_, err := NewDialect("oracle")
	assert.Error(t, err)
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `"raw_value"`, mustDialect(t, SQLite).Quote("raw_value"))
	assert.Equal(t, `"a""b"`, mustDialect(t, Postgres).Quote(`a"b`))
	assert.Equal(t, "`a``b`", mustDialect(t, MySQL).Quote("a`b"))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "(?, ?, ?)", mustDialect(t, SQLite).Placeholders(4, 3))
	assert.Equal(t, "($4, $5, $6)", mustDialect(t, Postgres).Placeholders(4, 3))
	assert.Equal(t, "?", mustDialect(t, MySQL).Placeholder(9))
}

func TestCreateTable(t *testing.T) {
	schema := model.TableSchema{Name: "zip_county", Columns: []model.Column{
		{Name: "zip", Type: model.ColumnInteger},
		{Name: "county", Type: model.ColumnText},
		{Name: "share", Type: model.ColumnReal},
	}}
	assert.Equal(t,
		`CREATE TABLE "zip_county" ("zip" INTEGER, "county" TEXT, "share" REAL)`,
		mustDialect(t, SQLite).CreateTable(schema))
	assert.Equal(t,
		`CREATE TABLE "zip_county" ("zip" BIGINT, "county" TEXT, "share" DOUBLE PRECISION)`,
		mustDialect(t, Postgres).CreateTable(schema))
	assert.Equal(t,
		"CREATE TABLE `zip_county` (`zip` BIGINT, `county` TEXT, `share` DOUBLE)",
		mustDialect(t, MySQL).CreateTable(schema))
}

func TestRenameTable(t *testing.T) {
	assert.Equal(t, `ALTER TABLE "t__staging" RENAME TO "t"`, mustDialect(t, SQLite).RenameTable("t__staging", "t"))
	assert.Equal(t, "RENAME TABLE `t__staging` TO `t`", mustDialect(t, MySQL).RenameTable("t__staging", "t"))
}

func TestCreateIndex(t *testing.T) {
	col := model.Column{Name: "county", Type: model.ColumnText}
	assert.Equal(t,
		`CREATE INDEX "idx_zip_county_county" ON "zip_county" ("county")`,
		mustDialect(t, SQLite).CreateIndex("zip_county", col))
	assert.Equal(t,
		"CREATE INDEX `idx_zip_county_county` ON `zip_county` (`county`(191))",
		mustDialect(t, MySQL).CreateIndex("zip_county", col))
}

func TestDriverName(t *testing.T) {
	assert.Equal(t, "sqlite", mustDialect(t, SQLite).DriverName())
	assert.Equal(t, "mysql", mustDialect(t, MySQL).DriverName())
	assert.Equal(t, "pgx", mustDialect(t, Postgres).DriverName())
}
