package report

import (
	"fmt"

	errs "sjsage522/listingharvester/pkg/errors"

	"github.com/xuri/excelize/v2"
)

// DefaultSheet is the worksheet name of exported spreadsheets
const DefaultSheet = "cars"

// Serializer encodes ranked rows into a document
type Serializer interface {
	Serialize(rows []Row, columns []Column) ([]byte, error)
	// ContentType is the MIME type of the encoded document
	ContentType() string
}

// XLSXSerializer writes rows to a single-sheet Excel workbook
type XLSXSerializer struct {
	Sheet string
}

// NewXLSXSerializer creates a serializer writing to the default sheet
func NewXLSXSerializer() *XLSXSerializer {
	return &XLSXSerializer{Sheet: DefaultSheet}
}

// ContentType returns the Office Open XML spreadsheet MIME type
func (s *XLSXSerializer) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Serialize writes a header row of column names followed by one row per record.
// Absent numbers are left as empty cells.
func (s *XLSXSerializer) Serialize(rows []Row, columns []Column) ([]byte, error) {
	sheet := s.Sheet
	if sheet == "" {
		sheet = DefaultSheet
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, errs.NewSerialization("failed to name sheet", err)
	}

	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = string(c)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, errs.NewSerialization("failed to write header", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, errs.NewSerialization("failed to address row", err)
		}
		values := row.Values(columns)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, errs.NewSerialization(fmt.Sprintf("failed to write row %d", i+1), err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, errs.NewSerialization("failed to encode workbook", err)
	}
	return buf.Bytes(), nil
}
