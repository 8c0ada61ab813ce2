package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/YKarmar/JobTracker/internal/analyzer"
	"github.com/YKarmar/JobTracker/internal/auth"
	"github.com/YKarmar/JobTracker/internal/client"
	"github.com/YKarmar/JobTracker/internal/config"
	"github.com/YKarmar/JobTracker/internal/exporter"
	"github.com/YKarmar/JobTracker/internal/logging"
	"github.com/YKarmar/JobTracker/internal/pipeline"
	"github.com/YKarmar/JobTracker/internal/types"
)

type flags struct {
	config        string
	provider      string
	mbox          string
	keywords      string
	since         string
	until         string
	max           int
	csv           string
	xlsx          string
	noXLSX        bool
	storePassword bool
	set           map[string]bool
}

func parseFlags(args []string) (*flags, error) {
	f := &flags{set: map[string]bool{}}
	fs := flag.NewFlagSet("jobtracker", flag.ContinueOnError)
	fs.StringVar(&f.config, "config", "config.yaml", "config file")
	fs.StringVar(&f.provider, "provider", "", "mail source: gmail, imap, mbox or mcp")
	fs.StringVar(&f.mbox, "mbox", "", "read this mbox file instead of a mailbox")
	fs.StringVar(&f.keywords, "keywords", "", "comma separated search keywords")
	fs.StringVar(&f.since, "since", "", "earliest date, YYYY-MM-DD")
	fs.StringVar(&f.until, "until", "", "latest date, YYYY-MM-DD (inclusive)")
	fs.IntVar(&f.max, "max", 0, "maximum messages to fetch")
	fs.StringVar(&f.csv, "csv", "", "CSV output path")
	fs.StringVar(&f.xlsx, "xlsx", "", "spreadsheet output path")
	fs.BoolVar(&f.noXLSX, "no-xlsx", false, "skip the spreadsheet")
	fs.BoolVar(&f.storePassword, "store-imap-password", false, "read the IMAP password from stdin and save it in the keychain")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	return f, nil
}

// apply layers command line overrides on top of the config file.
func (f *flags) apply(cfg *config.Config) {
	if f.mbox != "" {
		cfg.Mbox.Path = f.mbox
		if f.provider == "" {
			cfg.Source.Provider = config.ProviderMbox
		}
	}
	if f.provider != "" {
		cfg.Source.Provider = strings.ToLower(f.provider)
	}
	if f.keywords != "" {
		var kws []string
		for _, kw := range strings.Split(f.keywords, ",") {
			if kw = strings.TrimSpace(kw); kw != "" {
				kws = append(kws, kw)
			}
		}
		cfg.Extract.Keywords = kws
	}
	if f.since != "" {
		cfg.Fetch.Start = f.since
	}
	if f.until != "" {
		cfg.Fetch.End = f.until
	}
	if f.max > 0 {
		cfg.Fetch.MaxEmails = f.max
	}
	if f.csv != "" {
		cfg.Export.CSV = f.csv
	}
	if f.xlsx != "" {
		cfg.Export.XLSX = f.xlsx
	}
	if f.noXLSX {
		cfg.Export.XLSX = ""
	}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	// A missing .env is normal.
	_ = godotenv.Load()

	f, err := parseFlags(args)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		return 1
	}

	cfg, err := config.Load(f.config, !f.set["config"])
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	f.apply(cfg)

	logger, closer, err := logging.New(stderr, logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	defer closer.Close()

	if f.storePassword {
		return storePassword(cfg, stdin, stderr, logger)
	}

	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return 1
	}
	loc, _ := cfg.Location()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	src, err := client.Open(ctx, cfg, &auth.Prompt{In: stdin, Out: stderr}, logger)
	if err != nil {
		logFailure(logger, "open source", err)
		return 1
	}
	defer src.Close()

	ja := analyzer.NewJobAnalyzer(analyzer.Config{
		Keywords:          cfg.Extract.Keywords,
		SnippetLength:     cfg.Extract.SnippetLength,
		Location:          loc,
		CompanyFromSender: cfg.Extract.CompanyFromSender,
	})
	res, err := pipeline.Run(ctx, src, ja, pipeline.Options{
		Query:    client.QueryFromConfig(cfg, ja.Keywords()),
		CSVPath:  cfg.Export.CSV,
		XLSXPath: cfg.Export.XLSX,
	}, logger)
	if err != nil {
		logFailure(logger, "run", err)
		return 1
	}

	exporter.WriteSummary(stdout, res.Records)
	for _, path := range res.Outputs {
		fmt.Fprintf(stdout, "Wrote %s\n", path)
	}
	return 0
}

func storePassword(cfg *config.Config, stdin io.Reader, stderr io.Writer, logger zerolog.Logger) int {
	fmt.Fprintf(stderr, "IMAP password for %s: ", cfg.IMAP.Email)
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		logger.Error().Err(err).Msg("read password")
		return 1
	}
	if err := auth.StoreIMAPPassword(cfg.IMAP.Email, cfg.IMAP.Host, strings.TrimSpace(line)); err != nil {
		logger.Error().Err(err).Msg("store password")
		return 1
	}
	logger.Info().Str("account", auth.KeyringAccount(cfg.IMAP.Email, cfg.IMAP.Host)).Msg("password saved to keychain")
	return 0
}

func logFailure(logger zerolog.Logger, op string, err error) {
	var ae *types.AuthError
	var fe *types.FetchError
	var we *types.WriteError
	switch {
	case errors.As(err, &ae):
		logger.Error().Err(err).Str("kind", "auth").Msg(op + " failed; check credentials or delete the token file to sign in again")
	case errors.As(err, &fe):
		logger.Error().Err(err).Str("kind", "fetch").Msg(op + " failed while fetching mail")
	case errors.As(err, &we):
		logger.Error().Err(err).Str("kind", "write").Str("path", we.Path).Msg(op + " failed while writing output")
	default:
		logger.Error().Err(err).Msg(op + " failed")
	}
}
