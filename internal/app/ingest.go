package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/finsift/finsift/internal/cli"
	"github.com/finsift/finsift/internal/config"
	"github.com/finsift/finsift/internal/db"
	"github.com/finsift/finsift/internal/ingest"
	"github.com/finsift/finsift/internal/logging"
)

func runIngest(args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	downloadURL := fs.String("url", "", "Download URL of the export CSV (required)")
	scheduleID := fs.String("schedule", "", "Schedule id the run belongs to (required)")
	runID := fs.String("run", "", "Run id for this download (required)")
	timeout := fs.Duration("timeout", 5*time.Minute, "Overall ingestion timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if strings.TrimSpace(*downloadURL) == "" || strings.TrimSpace(*scheduleID) == "" || strings.TrimSpace(*runID) == "" {
		fmt.Fprintln(os.Stderr, "--url, --schedule and --run are required")
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("ingest failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	result, err := ingest.NewService(pool, logger).ProcessDownload(ctx, *downloadURL, *scheduleID, *runID)
	if err != nil {
		logger.Error().Err(err).Str("run_id", *runID).Msg("ingest failed")
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		return 1
	}

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode result: %v\n", err)
		return 1
	}
	fmt.Println(string(encoded))
	return 0
}
