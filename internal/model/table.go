package model

import "strings"

// ColumnType is the storage class inferred for an ingested CSV column.  Only
// three classes exist; anything that is not uniformly numeric is TEXT.
type ColumnType int

const (
	ColumnText    ColumnType = iota // TEXT
	ColumnInteger                   // INTEGER (64-bit)
	ColumnReal                      // REAL (double precision)
)

// String returns the SQL spelling of the column type.
func (t ColumnType) String() string {
	switch t {
	case ColumnInteger:
		return "INTEGER"
	case ColumnReal:
		return "REAL"
	default:
		return "TEXT"
	}
}

// MarshalText lets ColumnType appear as "TEXT"/"INTEGER"/"REAL" in JSON.
func (t ColumnType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ParseColumnType maps a declared database type (as reported by the store's
// catalog) onto one of the three column classes.  Driver specific spellings
// such as BIGINT or DOUBLE PRECISION are folded using SQLite's affinity rules.
func ParseColumnType(declared string) ColumnType {
	d := strings.ToUpper(strings.TrimSpace(declared))
	switch {
	case strings.Contains(d, "INT"):
		return ColumnInteger
	case strings.Contains(d, "REAL"), strings.Contains(d, "DOUB"), strings.Contains(d, "FLOA"),
		strings.Contains(d, "NUMERIC"), strings.Contains(d, "DECIMAL"):
		return ColumnReal
	default:
		return ColumnText
	}
}

// Column is one column of an ingested table.
type Column struct {
	Name string
	Type ColumnType
}

// TableSchema describes an ingested table: its name and ordered columns.
type TableSchema struct {
	Name    string
	Columns []Column
}

// ColumnNames returns the column names in table order.
func (s TableSchema) ColumnNames() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

// Has reports whether the table has a column with the given name.
func (s TableSchema) Has(name string) bool {
	_, ok := s.Lookup(name)
	return ok
}

// Lookup returns the named column.
func (s TableSchema) Lookup(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// TableInfo is the public view of a table returned by GET /tables.
type TableInfo struct {
	Columns []string              `json:"columns"`
	Types   map[string]ColumnType `json:"types"`
}

// Info converts a schema into its public representation.
func (s TableSchema) Info() TableInfo {
	info := TableInfo{
		Columns: s.ColumnNames(),
		Types:   make(map[string]ColumnType, len(s.Columns)),
	}
	for _, c := range s.Columns {
		info.Types[c.Name] = c.Type
	}
	return info
}
