package exporter

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/YKarmar/JobTracker/internal/types"
)

// SheetName is the single worksheet in the spreadsheet export.
const SheetName = "Applications"

// XLSXExporter writes records to one worksheet of an .xlsx workbook.
type XLSXExporter struct {
	filename string
}

// NewXLSXExporter writes to filename.
func NewXLSXExporter(filename string) *XLSXExporter {
	return &XLSXExporter{filename: filename}
}

// Path returns the output file.
func (xe *XLSXExporter) Path() string { return xe.filename }

// ExportJobApplications writes one sheet with a header row and one row per record.
func (xe *XLSXExporter) ExportJobApplications(records []types.ApplicationRecord) error {
	if err := xe.write(records); err != nil {
		return &types.WriteError{Path: xe.filename, Err: err}
	}
	return nil
}

func (xe *XLSXExporter) write(records []types.ApplicationRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return fmt.Errorf("open stream writer: %w", err)
	}
	if err := sw.SetColWidth(1, 2, 28); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := sw.SetColWidth(5, 5, 80); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if err := sw.SetRow("A1", toCells(Header), excelize.RowOpts{}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, toCells(row(rec))); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}

	if err := f.SaveAs(xe.filename); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}
