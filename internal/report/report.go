// Package report turns collected listings into a cleaned, price-ranked table.
package report

import (
	"fmt"

	"sjsage522/listingharvester/internal/listing"
)

// Report is the cleaned and ranked view of one collection run
type Report struct {
	Rows    []Row
	Columns []Column
	// Stats is nil when too few records were priced to judge outliers
	Stats *OutlierStats
	Count int
}

// Produce filters low price outliers from records and ranks what remains
func Produce(records []listing.Record, factor float64) Report {
	filtered, stats := RemoveLowOutliers(records, factor)
	rows, columns := RankAndExport(filtered)
	return Report{
		Rows:    rows,
		Columns: columns,
		Stats:   stats,
		Count:   len(rows),
	}
}

// Caption is the short summary sent along with an exported report
func (r Report) Caption() string {
	return fmt.Sprintf("Found %d priced ads.", r.Count)
}

// Encode serializes the report rows with s
func (r Report) Encode(s Serializer) ([]byte, error) {
	return s.Serialize(r.Rows, r.Columns)
}
