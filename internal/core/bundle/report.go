package bundle

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/payslip-splitter/constants"
	"github.com/joseph-ayodele/payslip-splitter/internal/entity"
)

const (
	sheetPages    = "Pages"
	sheetFailures = "Failures"
)

// buildReport returns an XLSX workbook listing renamed pages and failures.
func buildReport(snap entity.BatchSnapshot, m Manifest) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	// the default sheet becomes the pages sheet
	if err := f.SetSheetName("Sheet1", sheetPages); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(sheetFailures); err != nil {
		return nil, fmt.Errorf("new sheet: %w", err)
	}
	activeIndex, _ := f.GetSheetIndex(sheetPages)
	f.SetActiveSheet(activeIndex)

	fieldsByPage := make(map[int]*entity.ExtractedFields, len(snap.Pages))
	for _, p := range snap.Pages {
		fieldsByPage[p.Index] = p.Fields
	}

	writeRow(f, sheetPages, 1, "Page", "Filename", "Path", "Identifier", "Surname", "Given Name", "Period", "Method", "Low Confidence")
	row := 2
	for _, file := range m.Files {
		var id, surname, given, period, method, low string
		if fl := fieldsByPage[file.Page]; fl != nil {
			id, surname, given, period = fl.Identifier.Value, fl.Surname.Value, fl.GivenName.Value, fl.Period.Value
			method = fl.Method
			low = lowConfidenceFields(fl)
		}
		writeRow(f, sheetPages, row, file.Page, file.Filename, file.Path, id, surname, given, period, method, low)
		row++
	}

	writeRow(f, sheetFailures, 1, "Page", "Kind", "Detail")
	row = 2
	for _, fail := range m.Failures {
		writeRow(f, sheetFailures, row, fail.Page, string(fail.Kind), truncate(fail.Detail, 500))
		row++
	}

	// Widen a few columns
	_ = f.SetColWidth(sheetPages, "A", "A", 8)  // page
	_ = f.SetColWidth(sheetPages, "B", "C", 44) // filename, path
	_ = f.SetColWidth(sheetPages, "D", "G", 16) // fields
	_ = f.SetColWidth(sheetPages, "H", "I", 18)
	_ = f.SetColWidth(sheetFailures, "A", "B", 20)
	_ = f.SetColWidth(sheetFailures, "C", "C", 80) // detail

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func lowConfidenceFields(fl *entity.ExtractedFields) string {
	var out string
	add := func(name string, fld entity.Field) {
		if fld.State != constants.FieldLowConfidence {
			return
		}
		if out != "" {
			out += ", "
		}
		out += name
	}
	add("identifier", fl.Identifier)
	add("surname", fl.Surname)
	add("given_name", fl.GivenName)
	add("period", fl.Period)
	return out
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
