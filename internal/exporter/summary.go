package exporter

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/YKarmar/JobTracker/internal/types"
)

var statusOrder = []types.Status{
	types.StatusApplied,
	types.StatusInterview,
	types.StatusOffer,
	types.StatusRejected,
	types.StatusUnknown,
}

const recentLimit = 5

// WriteSummary prints per-status counts, the distinct company count and the
// most recent records. records are expected in export order.
func WriteSummary(w io.Writer, records []types.ApplicationRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No job application emails found.")
		return
	}

	fmt.Fprintf(w, "\n=== Job application summary ===\n")
	fmt.Fprintf(w, "%d application emails\n\n", len(records))

	statusCount := make(map[types.Status]int)
	companyCount := make(map[string]int)
	for _, rec := range records {
		statusCount[rec.Status]++
		if rec.Company != "" {
			companyCount[rec.Company]++
		}
	}

	fmt.Fprintln(w, "By status:")
	for _, s := range statusOrder {
		if n := statusCount[s]; n > 0 {
			fmt.Fprintf(w, "  %-10s %d\n", s, n)
		}
	}

	fmt.Fprintf(w, "\nCompanies: %d\n", len(companyCount))
	if len(companyCount) > 0 {
		type companyStats struct {
			name  string
			count int
		}
		companies := make([]companyStats, 0, len(companyCount))
		for name, n := range companyCount {
			companies = append(companies, companyStats{name, n})
		}
		slices.SortFunc(companies, func(a, b companyStats) int {
			if a.count != b.count {
				return b.count - a.count
			}
			return strings.Compare(a.name, b.name)
		})
		for _, c := range companies[:min(len(companies), recentLimit)] {
			fmt.Fprintf(w, "  %s: %d\n", c.name, c.count)
		}
	}

	fmt.Fprintln(w, "\nMost recent:")
	for _, rec := range records[:min(len(records), recentLimit)] {
		date := formatDate(rec)
		if date == "" {
			date = "----------"
		}
		fmt.Fprintf(w, "  %s  %s - %s [%s]\n", date, orDash(rec.Company), orDash(rec.JobTitle), rec.Status)
	}
	if len(records) > recentLimit {
		fmt.Fprintf(w, "  ... %d more in the export files\n", len(records)-recentLimit)
	}
}

func orDash(s string) string {
	if s == "" {
		return "?"
	}
	return s
}
