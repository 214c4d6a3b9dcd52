package model

// Table names produced by ingesting the two source CSVs.  Ingestion derives
// the name from the file, so these only hold when the files keep their
// conventional names.
const (
	RankingsTable  = "county_health_rankings"
	ZipCountyTable = "zip_county"
)

// Row is a single result row with every value rendered as a string.  NULL
// values are rendered as the empty string.
type Row map[string]string

// County is a county resolved from the ZIP mapping table.
//
// Fields:
//  Name       – county name as written in zip_county.county.
//  StateAbbr  – two-letter state abbreviation.
//  CountyCode – five digit county FIPS code, empty when unknown.
type County struct {
	Name       string
	StateAbbr  string
	CountyCode string
}

