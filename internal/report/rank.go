package report

import (
	"cmp"
	"slices"

	"sjsage522/listingharvester/internal/listing"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Column names one exported field
type Column string

const (
	ColumnTitle             Column = "title"
	ColumnPrice             Column = "price"
	ColumnPriceFormatted    Column = "price_formatted"
	ColumnDistance          Column = "km"
	ColumnDistanceFormatted Column = "km_formatted"
	ColumnBottomNote        Column = "bottom"
	ColumnTag               Column = "tag"
	ColumnURL               Column = "url"
	ColumnImage             Column = "image"
	ColumnPriceText         Column = "price_text"
	ColumnDistanceText      Column = "km_text"
)

// Columns is the export schema in output order
var Columns = []Column{
	ColumnTitle,
	ColumnPrice,
	ColumnPriceFormatted,
	ColumnDistance,
	ColumnDistanceFormatted,
	ColumnBottomNote,
	ColumnTag,
	ColumnURL,
	ColumnImage,
	ColumnPriceText,
	ColumnDistanceText,
}

var grouping = message.NewPrinter(language.English)

// Row is one exported listing with its display-only columns
type Row struct {
	listing.Record
	PriceFormatted    string `json:"price_formatted"`
	DistanceFormatted string `json:"km_formatted"`
}

// Value returns the cell value of column c. Absent numbers are nil.
func (r Row) Value(c Column) any {
	switch c {
	case ColumnTitle:
		return r.Title
	case ColumnPrice:
		if r.Price == nil {
			return nil
		}
		return *r.Price
	case ColumnPriceFormatted:
		return r.PriceFormatted
	case ColumnDistance:
		if r.Distance == nil {
			return nil
		}
		return *r.Distance
	case ColumnDistanceFormatted:
		return r.DistanceFormatted
	case ColumnBottomNote:
		return r.BottomNote
	case ColumnTag:
		return r.Tag
	case ColumnURL:
		return r.URL
	case ColumnImage:
		return r.ImageURL
	case ColumnPriceText:
		return r.PriceText
	case ColumnDistanceText:
		return r.DistanceText
	default:
		return nil
	}
}

// Values returns the cells of r in the order of columns
func (r Row) Values(columns []Column) []any {
	values := make([]any, len(columns))
	for i, c := range columns {
		values[i] = r.Value(c)
	}
	return values
}

// RankAndExport keeps priced records only and orders them by ascending price.
// Equal prices keep their input order.
func RankAndExport(records []listing.Record) ([]Row, []Column) {
	rows := make([]Row, 0, len(records))
	for _, r := range records {
		if !r.HasPrice() {
			continue
		}
		row := Row{Record: r, PriceFormatted: FormatGrouped(*r.Price)}
		if r.Distance != nil {
			row.DistanceFormatted = FormatGrouped(*r.Distance)
		}
		rows = append(rows, row)
	}

	slices.SortStableFunc(rows, func(a, b Row) int {
		return cmp.Compare(*a.Price, *b.Price)
	})

	return rows, slices.Clone(Columns)
}

// FormatGrouped renders n with comma thousands separators
func FormatGrouped(n int64) string {
	return grouping.Sprintf("%d", n)
}
