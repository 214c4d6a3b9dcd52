package ingest

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/iliyamo/county-health/internal/model"
)

// ErrNoHeader is returned when a CSV has no header row.
var ErrNoHeader = errors.New("csv has no header row")

// ErrStagingName is returned when a load targets a name reserved for
// staging tables.
var ErrStagingName = errors.New("table name is reserved for staging")

// columnStats tracks what the non-empty values of one column looked like.
type columnStats struct {
	nonEmpty int
	allInt   bool
	allReal  bool
}

// Inferrer accumulates per-column evidence one record at a time and turns it
// into column types.  It knows nothing about the store.
type Inferrer struct {
	names []string
	stats []columnStats
	rows  int
}

// NewInferrer starts inference for a header.  Names are sanitized with
// ColumnNames.
func NewInferrer(header []string) *Inferrer {
	in := &Inferrer{
		names: ColumnNames(header),
		stats: make([]columnStats, len(header)),
	}
	for i := range in.stats {
		in.stats[i] = columnStats{allInt: true, allReal: true}
	}
	return in
}

// Observe folds one data record into the statistics.  Cells beyond the
// header width are ignored and missing cells count as empty.
func (in *Inferrer) Observe(record []string) {
	in.rows++
	for i := range in.stats {
		if i >= len(record) {
			continue
		}
		v := strings.TrimSpace(record[i])
		if v == "" {
			continue
		}
		st := &in.stats[i]
		st.nonEmpty++
		if st.allInt && !isInteger(v) {
			st.allInt = false
		}
		if st.allReal && !isDecimal(v) {
			st.allReal = false
		}
	}
}

// Rows is the number of records observed.
func (in *Inferrer) Rows() int { return in.rows }

// Columns returns the inferred columns in header order.  A column with no
// non-empty value is TEXT.
func (in *Inferrer) Columns() []model.Column {
	out := make([]model.Column, len(in.names))
	for i, name := range in.names {
		st := in.stats[i]
		t := model.ColumnText
		switch {
		case st.nonEmpty == 0:
		case st.allInt:
			t = model.ColumnInteger
		case st.allReal:
			t = model.ColumnReal
		}
		out[i] = model.Column{Name: name, Type: t}
	}
	return out
}

// InferSchema reads the header and up to sampleRows records from r (all
// records when sampleRows <= 0) and returns the inferred schema for table.
// Records the CSV parser rejects are skipped.
func InferSchema(table string, r *csv.Reader, sampleRows int) (model.TableSchema, error) {
	header, err := ReadHeader(r)
	if err != nil {
		return model.TableSchema{}, err
	}
	in := NewInferrer(header)
	for sampleRows <= 0 || in.Rows() < sampleRows {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				continue
			}
			return model.TableSchema{}, errors.Wrap(err, "read csv")
		}
		in.Observe(rec)
	}
	return model.TableSchema{Name: table, Columns: in.Columns()}, nil
}

// ReadHeader reads the first record and strips a UTF-8 byte order mark.
func ReadHeader(r *csv.Reader) ([]string, error) {
	header, err := r.Read()
	if err == io.EOF {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, errors.Wrap(err, "read csv header")
	}
	if len(header) == 0 {
		return nil, ErrNoHeader
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")
	return header, nil
}

// NewReader configures a csv.Reader for ragged, loosely quoted input.
func NewReader(src io.Reader) *csv.Reader {
	r := csv.NewReader(src)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r
}

// Coerce converts a raw cell to the Go value stored for a column of type t.
// Empty cells are NULL.  ok is false when a non-empty cell does not fit the
// column type; the value is then NULL as well.
func Coerce(t model.ColumnType, raw string) (v any, ok bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, true
	}
	switch t {
	case model.ColumnInteger:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, false
		}
		return n, true
	case model.ColumnReal:
		if !isDecimal(s) {
			return nil, false
		}
		f, _ := strconv.ParseFloat(s, 64)
		return f, true
	}
	return raw, true
}

func isInteger(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

// isDecimal accepts plain decimal and exponent notation only; ParseFloat
// alone would also take "Inf", "NaN" and hex floats.
func isDecimal(s string) bool {
	digits := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits = true
		case r == '.' || r == '-' || r == '+' || r == 'e' || r == 'E':
		default:
			return false
		}
	}
	if !digits {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
