// Package pipeline runs one fetch, extract, aggregate and export pass.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/YKarmar/JobTracker/internal/aggregator"
	"github.com/YKarmar/JobTracker/internal/analyzer"
	"github.com/YKarmar/JobTracker/internal/client"
	"github.com/YKarmar/JobTracker/internal/exporter"
	"github.com/YKarmar/JobTracker/internal/types"
)

const progressEvery = 25

// Options selects the query and the output files. An empty XLSXPath skips
// the spreadsheet.
type Options struct {
	Query    types.Query
	CSVPath  string
	XLSXPath string
}

// Result summarizes a finished run.
type Result struct {
	RunID      string
	Fetched    int
	Relevant   int
	Duplicates int
	Records    []types.ApplicationRecord
	Outputs    []string
	Elapsed    time.Duration
}

// Run streams messages from src through the analyzer into the aggregator
// and writes the ordered records once the sequence ends. Any source or
// export error aborts the run; nothing is written after a fetch failure.
func Run(ctx context.Context, src client.Source, ja *analyzer.JobAnalyzer, opts Options, logger zerolog.Logger) (Result, error) {
	res := Result{RunID: uuid.NewString()}
	start := time.Now()
	logger = logger.With().Str("run_id", res.RunID).Str("source", src.Name()).Logger()

	q := opts.Query
	if len(q.Keywords) == 0 {
		q.Keywords = ja.Keywords()
	}
	logger.Info().Strs("keywords", q.Keywords).Time("since", q.Since).Time("until", q.Until).Int("max", q.MaxMessages).Msg("starting run")

	agg := aggregator.New()
	for msg, err := range src.Fetch(ctx, q) {
		if err != nil {
			logger.Error().Err(err).Int("fetched", res.Fetched).Msg("fetch failed")
			return res, err
		}
		res.Fetched++
		if res.Fetched%progressEvery == 0 {
			logger.Info().Int("fetched", res.Fetched).Int("relevant", res.Relevant).Msg("progress")
		}

		rec, ok := ja.Analyze(msg)
		if !ok {
			logger.Debug().Str("id", msg.ID).Str("subject", msg.Subject).Msg("not job related")
			continue
		}
		res.Relevant++
		if !agg.Add(rec) {
			res.Duplicates++
			logger.Debug().Str("id", msg.ID).Msg("duplicate message")
		}
	}

	res.Records = agg.Records()
	exporters := []exporter.Exporter{exporter.NewCSVExporter(opts.CSVPath)}
	if opts.XLSXPath != "" {
		exporters = append(exporters, exporter.NewXLSXExporter(opts.XLSXPath))
	}
	if err := exporter.Export(opts.CSVPath, res.Records, exporters...); err != nil {
		logger.Error().Err(err).Msg("export failed")
		return res, err
	}
	for _, e := range exporters {
		res.Outputs = append(res.Outputs, e.Path())
	}

	res.Elapsed = time.Since(start)
	logger.Info().
		Int("fetched", res.Fetched).
		Int("relevant", res.Relevant).
		Int("records", len(res.Records)).
		Strs("outputs", res.Outputs).
		Dur("elapsed", res.Elapsed).
		Msg("run finished")
	return res, nil
}
