package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/YKarmar/JobTracker/internal/auth"
	"github.com/YKarmar/JobTracker/internal/bridge"
	"github.com/YKarmar/JobTracker/internal/client"
	"github.com/YKarmar/JobTracker/internal/config"
	"github.com/YKarmar/JobTracker/internal/logging"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "config file")
	listen := flag.String("listen", "", "listen address, overrides mcp.listen")
	flag.Parse()

	cfg, err := config.Load(*configPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.MCP.Listen = *listen
	}

	logger, closer, err := logging.New(os.Stderr, logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	if cfg.Source.Provider == config.ProviderMCP {
		logger.Fatal().Msg("the bridge needs a local source.provider (gmail, imap or mbox), not mcp")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// The consent prompt runs once at startup, before serving.
	src, err := client.Open(ctx, cfg, &auth.Prompt{In: os.Stdin, Out: os.Stderr}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open source")
	}
	defer src.Close()

	l, err := net.Listen("tcp", cfg.MCP.Listen)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.MCP.Listen).Msg("listen")
	}
	srv := &http.Server{
		Handler:           bridge.NewMCPServer(src, cfg.MCP.APIKey, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info().Str("addr", l.Addr().String()).Str("source", src.Name()).Msg("mail bridge listening on /mcp")
	if err := serve(ctx, srv, l, 5*time.Second, logger); err != nil {
		logger.Error().Err(err).Msg("serve")
	}
}

// serve runs srv on l until ctx is cancelled, then drains it for at most
// grace.
func serve(ctx context.Context, srv *http.Server, l net.Listener, grace time.Duration, logger zerolog.Logger) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown")
		}
	}()

	err := srv.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		<-done
		return nil
	}
	return err
}
