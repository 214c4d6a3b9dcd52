package ingest

import (
	"context"
	"database/sql"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/iliyamo/county-health/internal/database"
	"github.com/iliyamo/county-health/internal/model"
)

// indexedColumns are indexed after a load when the table has them.
var indexedColumns = []string{"zip", "county", "state", "county_code", "state_code", "measure_name", "fipscode"}

// Logger is the subset of the gommon logger the loader writes to.
type Logger interface {
	Infof(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// Options tune a load.
type Options struct {
	// BatchSize is the number of rows per INSERT statement.  It is lowered
	// when the statement would exceed the backend's bind-parameter limit.
	BatchSize int
	// SampleRows limits the inference pass to the first N records; 0 scans
	// every record.
	SampleRows int
	// Table overrides the name derived from the file.
	Table string
}

// Result summarizes a finished load.
type Result struct {
	Table             string
	Columns           []model.Column
	Rows              int
	NullSubstitutions int // non-empty cells that did not fit their column type
	RaggedRows        int // records with more or fewer cells than the header
	SkippedRows       int // records the CSV parser rejected
	Indexes           []string
}

// Loader replaces a store table with the contents of a CSV file.
type Loader struct {
	store *database.Store
	opts  Options
	log   Logger
}

// NewLoader builds a Loader.  A nil logger discards output.
func NewLoader(store *database.Store, opts Options, log Logger) *Loader {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	if log == nil {
		log = nopLogger{}
	}
	return &Loader{store: store, opts: opts, log: log}
}

// LoadFile ingests the CSV at path.  The target table is only replaced once
// the staging copy is fully loaded, so a failed run leaves the previous
// table intact.
func (l *Loader) LoadFile(ctx context.Context, path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, errors.Wrap(err, "open csv")
	}
	defer f.Close()

	table := l.opts.Table
	if table == "" {
		table = TableName(path)
	}
	return l.Load(ctx, table, f)
}

// Load ingests CSV data from src into table.  src is read twice: once to
// infer the schema and once to insert rows.
func (l *Loader) Load(ctx context.Context, table string, src io.ReadSeeker) (Result, error) {
	if strings.HasSuffix(table, database.StagingSuffix) {
		return Result{}, errors.Wrap(ErrStagingName, table)
	}
	schema, err := InferSchema(table, NewReader(src), l.opts.SampleRows)
	if err != nil {
		return Result{}, err
	}
	l.log.Debugf("ingest: %s inferred %d columns", table, len(schema.Columns))

	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return Result{}, errors.Wrap(err, "rewind csv")
	}
	r := NewReader(src)
	if _, err := ReadHeader(r); err != nil {
		return Result{}, err
	}

	res := Result{Table: table, Columns: schema.Columns}
	tx, err := l.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return Result{}, errors.Wrap(err, "begin load")
	}
	defer func() { _ = tx.Rollback() }()

	if err := l.loadStaging(ctx, tx, schema, r, &res); err != nil {
		return Result{}, err
	}
	if err := l.swap(ctx, tx, schema, &res); err != nil {
		return Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return Result{}, errors.Wrap(err, "commit load")
	}
	l.log.Infof("ingest: %s loaded rows=%d nulls=%d ragged=%d skipped=%d",
		table, res.Rows, res.NullSubstitutions, res.RaggedRows, res.SkippedRows)
	return res, nil
}

func (l *Loader) loadStaging(ctx context.Context, tx *sql.Tx, schema model.TableSchema, r *csv.Reader, res *Result) error {
	d := l.store.Dialect()
	staging := model.TableSchema{Name: stagingName(schema.Name), Columns: schema.Columns}

	if _, err := tx.ExecContext(ctx, d.DropTable(staging.Name)); err != nil {
		return errors.Wrapf(err, "drop %s", staging.Name)
	}
	if _, err := tx.ExecContext(ctx, d.CreateTable(staging)); err != nil {
		return errors.Wrapf(err, "create %s", staging.Name)
	}

	w := newBatchWriter(tx, d, staging, l.batchRows(len(schema.Columns)))
	defer w.close()

	width := len(schema.Columns)
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				res.SkippedRows++
				continue
			}
			return errors.Wrap(err, "read csv")
		}
		if len(rec) != width {
			res.RaggedRows++
		}
		row := make([]any, width)
		for i, c := range schema.Columns {
			if i >= len(rec) {
				continue
			}
			v, ok := Coerce(c.Type, rec[i])
			if !ok {
				res.NullSubstitutions++
			}
			row[i] = v
		}
		if err := w.add(ctx, row); err != nil {
			return err
		}
		res.Rows++
	}
	return w.flush(ctx)
}

// swap drops the old table, renames the staging table into place and builds
// the indexes, all inside the load transaction.
func (l *Loader) swap(ctx context.Context, tx *sql.Tx, schema model.TableSchema, res *Result) error {
	d := l.store.Dialect()
	if _, err := tx.ExecContext(ctx, d.DropTable(schema.Name)); err != nil {
		return errors.Wrapf(err, "drop %s", schema.Name)
	}
	if _, err := tx.ExecContext(ctx, d.RenameTable(stagingName(schema.Name), schema.Name)); err != nil {
		return errors.Wrapf(err, "rename staging to %s", schema.Name)
	}
	for _, name := range indexedColumns {
		c, ok := schema.Lookup(name)
		if !ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, d.CreateIndex(schema.Name, c)); err != nil {
			return errors.Wrapf(err, "index %s.%s", schema.Name, name)
		}
		res.Indexes = append(res.Indexes, database.IndexName(schema.Name, name))
	}
	return nil
}

func (l *Loader) batchRows(cols int) int {
	if cols == 0 {
		return l.opts.BatchSize
	}
	limit := l.store.Dialect().MaxParams() / cols
	if limit < 1 {
		limit = 1
	}
	if l.opts.BatchSize < limit {
		return l.opts.BatchSize
	}
	return limit
}

// batchWriter buffers rows and writes them with multi-row INSERTs.  The
// statement for a full batch is prepared once and reused.
type batchWriter struct {
	tx     *sql.Tx
	d      *database.Dialect
	schema model.TableSchema
	size   int
	buf    []any
	n      int
	full   *sql.Stmt
}

func newBatchWriter(tx *sql.Tx, d *database.Dialect, schema model.TableSchema, size int) *batchWriter {
	return &batchWriter{tx: tx, d: d, schema: schema, size: size, buf: make([]any, 0, size*len(schema.Columns))}
}

func (w *batchWriter) add(ctx context.Context, row []any) error {
	w.buf = append(w.buf, row...)
	w.n++
	if w.n < w.size {
		return nil
	}
	if w.full == nil {
		stmt, err := w.tx.PrepareContext(ctx, w.insertSQL(w.size))
		if err != nil {
			return errors.Wrapf(err, "prepare insert into %s", w.schema.Name)
		}
		w.full = stmt
	}
	if _, err := w.full.ExecContext(ctx, w.buf...); err != nil {
		return errors.Wrapf(err, "insert into %s", w.schema.Name)
	}
	w.reset()
	return nil
}

func (w *batchWriter) flush(ctx context.Context) error {
	if w.n == 0 {
		return nil
	}
	if _, err := w.tx.ExecContext(ctx, w.insertSQL(w.n), w.buf...); err != nil {
		return errors.Wrapf(err, "insert into %s", w.schema.Name)
	}
	w.reset()
	return nil
}

func (w *batchWriter) reset() {
	w.buf = w.buf[:0]
	w.n = 0
}

func (w *batchWriter) close() {
	if w.full != nil {
		_ = w.full.Close()
	}
}

func (w *batchWriter) insertSQL(rows int) string {
	cols := make([]string, len(w.schema.Columns))
	for i, c := range w.schema.Columns {
		cols[i] = w.d.Quote(c.Name)
	}
	width := len(cols)
	tuples := make([]string, rows)
	for i := range tuples {
		tuples[i] = w.d.Placeholders(i*width+1, width)
	}
	return "INSERT INTO " + w.d.Quote(w.schema.Name) +
		" (" + strings.Join(cols, ", ") + ") VALUES " + strings.Join(tuples, ", ")
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Debugf(string, ...interface{}) {}
