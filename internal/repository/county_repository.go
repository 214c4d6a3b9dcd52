package repository

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/iliyamo/county-health/internal/database"
	"github.com/iliyamo/county-health/internal/model"
)

// countyDataColumns is the projection returned by CountyData, in response
// order.  Columns missing from the live table are dropped.
var countyDataColumns = []string{
	"confidence_interval_lower_bound",
	"confidence_interval_upper_bound",
	"county",
	"county_code",
	"data_release_year",
	"denominator",
	"fipscode",
	"measure_id",
	"measure_name",
	"numerator",
	"raw_value",
	"state",
	"state_code",
	"year_span",
}

// CountyRepo answers the county health queries.  It joins zip_county to
// county_health_rankings at query time; neither table has a fixed schema so
// every call introspects the columns it needs.
type CountyRepo struct {
	store    *database.Store
	rankings string
	zips     string
}

// NewCountyRepo constructs a CountyRepo over the conventional table names.
func NewCountyRepo(store *database.Store) *CountyRepo {
	return &CountyRepo{store: store, rankings: model.RankingsTable, zips: model.ZipCountyTable}
}

// Measures returns the distinct non-empty measure names, sorted.
func (r *CountyRepo) Measures(ctx context.Context) ([]string, error) {
	d := r.store.Dialect()
	q := "SELECT DISTINCT " + d.Quote("measure_name") + " FROM " + d.Quote(r.rankings) +
		" WHERE " + d.Quote("measure_name") + " IS NOT NULL AND " + d.Quote("measure_name") + " <> ''" +
		" ORDER BY " + d.Quote("measure_name")

	out := []string{}
	err := r.store.WithConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, q)
		if err != nil {
			return errors.Wrap(err, "list measures")
		}
		defer rows.Close()
		for rows.Next() {
			var m string
			if err := rows.Scan(&m); err != nil {
				return errors.Wrap(err, "scan measure")
			}
			out = append(out, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MeasureExists reports whether any rankings row carries the measure name.
func (r *CountyRepo) MeasureExists(ctx context.Context, measure string) (bool, error) {
	d := r.store.Dialect()
	q := "SELECT 1 FROM " + d.Quote(r.rankings) + " WHERE " + d.Quote("measure_name") + " = " + d.Placeholder(1) + " LIMIT 1"

	var found bool
	err := r.store.WithConn(ctx, func(conn *sql.Conn) error {
		var one int
		err := conn.QueryRowContext(ctx, q, measure).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "lookup measure")
		}
		found = true
		return nil
	})
	return found, err
}

// CountyData resolves zip to its counties and returns the rankings rows for
// measure in those counties, newest year span first.  All values are
// rendered as strings; NULL becomes "".  ErrZipNotFound and ErrNoData signal
// the two not-found cases.
func (r *CountyRepo) CountyData(ctx context.Context, zip, measure string) ([]model.Row, error) {
	var out []model.Row
	err := r.store.WithConn(ctx, func(conn *sql.Conn) error {
		counties, err := r.resolveZip(ctx, conn, zip)
		if err != nil {
			return err
		}
		if len(counties) == 0 {
			return ErrZipNotFound
		}
		out, err = r.rankingRows(ctx, conn, counties, measure)
		if err != nil {
			return err
		}
		if len(out) == 0 {
			return ErrNoData
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// resolveZip returns the distinct counties a ZIP code belongs to.
func (r *CountyRepo) resolveZip(ctx context.Context, conn *sql.Conn, zip string) ([]model.County, error) {
	d := r.store.Dialect()
	schema, err := r.store.Schema(ctx, conn, r.zips)
	if err != nil {
		return nil, err
	}
	zipCol, ok := schema.Lookup("zip")
	if !ok {
		return nil, errors.Wrapf(ErrMissingColumn, "%s.zip", r.zips)
	}

	// Optional columns are selected as NULL when absent so the scan below
	// stays fixed.
	sel := func(name string) string {
		if schema.Has(name) {
			return d.Quote(name)
		}
		return "NULL"
	}
	q := "SELECT DISTINCT " + sel("county") + ", " + sel("state_abbreviation") + ", " + sel("county_code") +
		" FROM " + d.Quote(r.zips) + " WHERE " + d.Quote(zipCol.Name) + " = " + d.Placeholder(1)

	rows, err := conn.QueryContext(ctx, q, typedArg(zipCol.Type, zip))
	if err != nil {
		return nil, errors.Wrap(err, "resolve zip")
	}
	defer rows.Close()

	var out []model.County
	for rows.Next() {
		var county, state, code sql.NullString
		if err := rows.Scan(&county, &state, &code); err != nil {
			return nil, errors.Wrap(err, "scan county")
		}
		out = append(out, model.County{Name: county.String, StateAbbr: state.String, CountyCode: code.String})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "resolve zip")
	}
	return out, nil
}

// rankingRows selects the rankings rows for measure that belong to any of
// the counties.  A county matches on FIPS code, or on its normalized name
// together with the state abbreviation or the state FIPS prefix.  Matching
// every county in one statement keeps each row in the result exactly once.
func (r *CountyRepo) rankingRows(ctx context.Context, conn *sql.Conn, counties []model.County, measure string) ([]model.Row, error) {
	d := r.store.Dialect()
	schema, err := r.store.Schema(ctx, conn, r.rankings)
	if err != nil {
		return nil, err
	}
	measureCol, ok := schema.Lookup("measure_name")
	if !ok {
		return nil, errors.Wrapf(ErrMissingColumn, "%s.measure_name", r.rankings)
	}

	var args []any
	bind := func(v any) string {
		args = append(args, v)
		return d.Placeholder(len(args))
	}

	where := d.Quote(measureCol.Name) + " = " + bind(measure)
	var alts []string
	for _, c := range counties {
		if cond := r.countyCondition(schema, c, bind); cond != "" {
			alts = append(alts, cond)
		}
	}
	if len(alts) == 0 {
		return nil, nil
	}
	where += " AND (" + strings.Join(alts, " OR ") + ")"

	cols := projection(schema)
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.Quote(c)
	}
	q := "SELECT " + strings.Join(quoted, ", ") + " FROM " + d.Quote(r.rankings) + " WHERE " + where
	if schema.Has("year_span") {
		q += " ORDER BY " + d.Quote("year_span") + " DESC"
	}

	rows, err := conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select county data")
	}
	defer rows.Close()
	return scanStringRows(rows, cols)
}

func (r *CountyRepo) countyCondition(schema model.TableSchema, c model.County, bind func(any) string) string {
	d := r.store.Dialect()
	var parts []string

	if col, ok := schema.Lookup("fipscode"); ok && c.CountyCode != "" {
		parts = append(parts, d.Quote(col.Name)+" = "+bind(typedArg(col.Type, c.CountyCode)))
	}

	if schema.Has("county") && strings.TrimSpace(c.Name) != "" {
		var states []string
		if schema.Has("state") && c.StateAbbr != "" {
			states = append(states, "UPPER(TRIM("+d.Quote("state")+")) = "+bind(strings.ToUpper(strings.TrimSpace(c.StateAbbr))))
		}
		if col, ok := schema.Lookup("state_code"); ok {
			if code, err := strconv.Atoi(strings.TrimSpace(c.CountyCode)); err == nil {
				states = append(states, d.Quote(col.Name)+" = "+bind(typedArg(col.Type, strconv.Itoa(code/1000))))
			}
		}
		// A county name alone is ambiguous across states.
		if len(states) > 0 {
			name := "LOWER(TRIM(" + d.Quote("county") + ")) = " + bind(strings.ToLower(strings.TrimSpace(c.Name)))
			parts = append(parts, "("+name+" AND ("+strings.Join(states, " OR ")+"))")
		}
	}

	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

// projection returns the response columns present in schema.  A rankings
// table without any of them is returned whole.
func projection(schema model.TableSchema) []string {
	var cols []string
	for _, c := range countyDataColumns {
		if schema.Has(c) {
			cols = append(cols, c)
		}
	}
	if len(cols) == 0 {
		return schema.ColumnNames()
	}
	return cols
}

// typedArg converts a textual value into the Go type matching the column so
// the comparison works the same way on every backend.
func typedArg(t model.ColumnType, s string) any {
	s = strings.TrimSpace(s)
	switch t {
	case model.ColumnInteger:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case model.ColumnReal:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}

// scanStringRows reads every row into a string map keyed by lower-cased
// column name.
func scanStringRows(rows *sql.Rows, cols []string) ([]model.Row, error) {
	out := []model.Row{}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, "scan county data")
		}
		row := make(model.Row, len(cols))
		for i, c := range cols {
			row[strings.ToLower(c)] = renderValue(vals[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "scan county data")
	}
	return out, nil
}

// renderValue formats a scanned value the way SQLite casts it to TEXT.
// Reals are never written in exponent form and whole reals keep ".0".
func renderValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return formatReal(x, 64)
	case float32:
		return formatReal(float64(x), 32)
	case bool:
		if x {
			return "1"
		}
		return "0"
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}

func formatReal(f float64, bits int) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'g', -1, bits)
	}
	s := strconv.FormatFloat(f, 'f', -1, bits)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
