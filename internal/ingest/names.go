package ingest

import (
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/iliyamo/county-health/internal/database"
)

// reserved holds keywords that cannot be used as bare identifiers in at
// least one of the supported backends.  A sanitized name that collides gets
// a trailing underscore.
var reserved = map[string]bool{
	"add": true, "all": true, "alter": true, "and": true, "as": true, "asc": true,
	"between": true, "by": true, "case": true, "check": true, "column": true,
	"constraint": true, "create": true, "cross": true, "default": true, "delete": true,
	"desc": true, "distinct": true, "drop": true, "else": true, "end": true,
	"exists": true, "foreign": true, "from": true, "full": true, "group": true,
	"having": true, "in": true, "index": true, "inner": true, "insert": true,
	"into": true, "is": true, "join": true, "key": true, "left": true, "like": true,
	"limit": true, "not": true, "null": true, "offset": true, "on": true, "or": true,
	"order": true, "outer": true, "primary": true, "range": true, "rank": true,
	"references": true, "right": true, "rows": true, "select": true, "set": true,
	"table": true, "then": true, "to": true, "union": true, "unique": true,
	"update": true, "user": true, "using": true, "values": true, "when": true,
	"where": true, "with": true,
}

// SanitizeIdentifier turns an arbitrary CSV header cell or file name into a
// lower-case identifier made of [a-z0-9_].  Runs of other characters become
// a single underscore, a leading digit gets an underscore prefix and SQL
// keywords get an underscore suffix.  The result is empty only when the
// input has no letters or digits at all.
func SanitizeIdentifier(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	pendingSep := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	out := b.String()
	if out == "" {
		return ""
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	if reserved[out] {
		out += "_"
	}
	return out
}

// ColumnNames sanitizes a CSV header.  Empty names become column_<n>
// (1-based position) and repeated names get _2, _3, ... suffixes so every
// column stays addressable.
func ColumnNames(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		name := SanitizeIdentifier(h)
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		if seen[name] {
			for n := 2; ; n++ {
				cand := name + "_" + strconv.Itoa(n)
				if !seen[cand] {
					name = cand
					break
				}
			}
		}
		seen[name] = true
		out[i] = name
	}
	return out
}

// TableName derives the table name from a CSV location: the last path
// element without its final extension, sanitized.  Both local paths and
// s3:// URLs are accepted.  A name that would read as a staging table gets
// a trailing underscore.
func TableName(location string) string {
	base := filepath.Base(location)
	if strings.HasPrefix(location, "s3://") {
		base = path.Base(location)
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	name := SanitizeIdentifier(base)
	if name == "" {
		name = "data"
	}
	if strings.HasSuffix(name, database.StagingSuffix) {
		name += "_"
	}
	return name
}

// stagingName is the table a load writes into before it replaces the target.
func stagingName(table string) string {
	return table + database.StagingSuffix
}
