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

	"github.com/finsift/finsift/internal/classify"
	"github.com/finsift/finsift/internal/cli"
	"github.com/finsift/finsift/internal/config"
	"github.com/finsift/finsift/internal/db"
	"github.com/finsift/finsift/internal/logging"
	"github.com/finsift/finsift/internal/normalize"
	"github.com/finsift/finsift/internal/pipeline"
)

func runClassify(args []string) int {
	fs := flag.NewFlagSet("classify", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	tweetIDs := fs.String("tweet-ids", "", "Comma-separated tweet ids to classify")
	runID := fs.String("run", "", "Classify every tweet stored under this run id")
	limit := fs.Int("limit", 0, "Maximum tweets to classify from the run (0 for all)")
	promptFile := fs.String("prompt-file", "", "Path to a custom prompt template")
	preview := fs.Bool("preview", false, "Print the prompts instead of calling the model")
	timeout := fs.Duration("timeout", 5*time.Minute, "Overall classification timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	ids := splitIDs(*tweetIDs)
	useRun := strings.TrimSpace(*runID) != ""
	if len(ids) == 0 && !useRun {
		fmt.Fprintln(os.Stderr, "one of --tweet-ids or --run is required")
		return 2
	}
	if len(ids) > 0 && useRun {
		fmt.Fprintln(os.Stderr, "--tweet-ids and --run are mutually exclusive")
		return 2
	}
	if *limit < 0 {
		fmt.Fprintln(os.Stderr, "--limit must not be negative")
		return 2
	}
	if *preview && useRun {
		fmt.Fprintln(os.Stderr, "--preview requires --tweet-ids")
		return 2
	}

	customPrompt := ""
	if strings.TrimSpace(*promptFile) != "" {
		content, err := os.ReadFile(*promptFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read prompt file: %v\n", err)
			return 2
		}
		customPrompt = string(content)
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
		logger.Error().Err(err).Msg("classify failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	normalizer := normalize.NewService(pool, logger)
	classifier := classify.NewService(cfg, logger)
	pipelineSvc := pipeline.NewService(pool, normalizer, classifier, logger)

	var output any
	if *preview {
		previews, err := pipelineSvc.PreviewPrompts(ctx, ids)
		if err != nil {
			logger.Error().Err(err).Msg("prompt preview failed")
			fmt.Fprintf(os.Stderr, "Prompt preview failed: %v\n", err)
			return 1
		}
		output = previews
	} else {
		var result pipeline.Result
		if useRun {
			result, err = pipelineSvc.ClassifyRun(ctx, strings.TrimSpace(*runID), *limit, customPrompt)
		} else {
			result, err = pipelineSvc.ClassifyTweets(ctx, ids, customPrompt)
		}
		if err != nil {
			if errors.Is(err, classify.ErrNotConfigured) {
				fmt.Fprintln(os.Stderr, "OPENAI_API_KEY is not set, cannot classify")
				return 1
			}
			logger.Error().Err(err).Msg("classification failed")
			fmt.Fprintf(os.Stderr, "Classification failed: %v\n", err)
			return 1
		}
		output = result
	}

	encoded, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode result: %v\n", err)
		return 1
	}
	fmt.Println(string(encoded))
	return 0
}

func splitIDs(raw string) []string {
	parts := strings.Split(raw, ",")
	ids := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	return ids
}
