package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/YKarmar/JobTracker/internal/types"
)

// Header is the column row shared by every export format.
var Header = []string{"Company", "Job Title", "Date", "Status", "Snippet"}

const dateLayout = "2006-01-02"

// CSVExporter writes records to a single CSV file.
type CSVExporter struct {
	filename string
}

// NewCSVExporter writes to filename.
func NewCSVExporter(filename string) *CSVExporter {
	return &CSVExporter{
		filename: filename,
	}
}

// Path returns the output file.
func (ce *CSVExporter) Path() string { return ce.filename }

// ExportJobApplications writes the header and one row per record.
func (ce *CSVExporter) ExportJobApplications(records []types.ApplicationRecord) error {
	file, err := os.Create(ce.filename)
	if err != nil {
		return &types.WriteError{Path: ce.filename, Err: fmt.Errorf("create CSV file: %w", err)}
	}

	if err := WriteCSV(file, records); err != nil {
		file.Close()
		return &types.WriteError{Path: ce.filename, Err: err}
	}
	if err := file.Close(); err != nil {
		return &types.WriteError{Path: ce.filename, Err: fmt.Errorf("close CSV file: %w", err)}
	}
	return nil
}

// WriteCSV encodes records with standard CSV quoting.
func WriteCSV(w io.Writer, records []types.ApplicationRecord) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(Header); err != nil {
		return fmt.Errorf("write CSV headers: %w", err)
	}
	for _, rec := range records {
		if err := writer.Write(row(rec)); err != nil {
			return fmt.Errorf("write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush CSV: %w", err)
	}
	return nil
}

// ReadCSV parses a file produced by WriteCSV. MessageID is not exported and
// stays empty.
func ReadCSV(r io.Reader) ([]types.ApplicationRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(Header)

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read CSV: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("read CSV: missing header row")
	}

	records := make([]types.ApplicationRecord, 0, len(rows)-1)
	for i, r := range rows[1:] {
		rec := types.ApplicationRecord{
			Company:  r[0],
			JobTitle: r[1],
			Status:   types.ParseStatus(r[3]),
			Snippet:  r[4],
		}
		if r[2] != "" {
			d, err := time.Parse(dateLayout, r[2])
			if err != nil {
				return nil, fmt.Errorf("row %d: parse date %q: %w", i+2, r[2], err)
			}
			rec.Date = d
		}
		records = append(records, rec)
	}
	return records, nil
}

func row(rec types.ApplicationRecord) []string {
	return []string{
		rec.Company,
		rec.JobTitle,
		formatDate(rec),
		string(rec.Status),
		rec.Snippet,
	}
}

func formatDate(rec types.ApplicationRecord) string {
	if !rec.HasDate() {
		return ""
	}
	return rec.Date.Format(dateLayout)
}
