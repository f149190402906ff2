// Package ingest downloads export CSVs from the collection provider,
// extracts tweets, and persists them idempotently. Re-running a run id
// replays it: previously stored rows for that run are dropped first.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/finsift/finsift/internal/db"
	"github.com/finsift/finsift/internal/globaltime"
)

const (
	batchSize       = 50
	maxSkipDetails  = 50
	defaultTimezone = "Asia/Jerusalem"
	defaultLookback = 4
)

// Result summarizes one processed download.
type Result struct {
	TotalRows         int      `json:"total_rows"`
	Processed         int      `json:"processed"`
	DuplicatesSkipped int      `json:"duplicates_skipped"`
	RowsSkipped       int      `json:"rows_skipped"`
	SkipDetails       []string `json:"skip_details,omitempty"`
}

type Service struct {
	pool   *db.Pool
	client *http.Client
	logger zerolog.Logger
}

func NewService(pool *db.Pool, logger zerolog.Logger) *Service {
	return &Service{
		pool:   pool,
		client: &http.Client{Timeout: downloadTimeout},
		logger: logger.With().Str("component", "ingest").Logger(),
	}
}

// ProcessDownload fetches the CSV at downloadURL and stores its tweets under
// the given schedule and run. The schedule is created on first sight; an
// existing run id is replayed from scratch.
func (s *Service) ProcessDownload(ctx context.Context, downloadURL, scheduleID, runID string) (Result, error) {
	if strings.TrimSpace(downloadURL) == "" || strings.TrimSpace(scheduleID) == "" || strings.TrimSpace(runID) == "" {
		return Result{}, fmt.Errorf("download_url, schedule_id and run_id are required")
	}

	body, err := downloadCSV(ctx, s.client, downloadURL)
	if err != nil {
		return Result{}, err
	}
	defer body.Close()

	posts, skipDetails, err := ParseCSV(body)
	if err != nil {
		return Result{}, err
	}

	result, err := s.savePosts(ctx, posts, scheduleID, runID, skipDetails)
	if err != nil {
		s.logger.Error().Str("run_id", runID).Err(err).Msg("failed to process download")
		return Result{}, err
	}

	s.logger.Info().
		Str("run_id", runID).
		Str("schedule_id", scheduleID).
		Int("total_rows", result.TotalRows).
		Int("processed", result.Processed).
		Int("duplicates_skipped", result.DuplicatesSkipped).
		Int("rows_skipped", result.RowsSkipped).
		Msg("processed download")
	return result, nil
}

func (s *Service) savePosts(ctx context.Context, posts []Post, scheduleID, runID string, skipDetails []string) (Result, error) {
	tx, err := s.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return Result{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	lookbackHours, err := ensureSchedule(ctx, tx, scheduleID)
	if err != nil {
		return Result{}, err
	}
	if err := resetRun(ctx, tx, scheduleID, runID, len(posts), lookbackHours); err != nil {
		return Result{}, err
	}

	processed := 0
	duplicates := 0
	for start := 0; start < len(posts); start += batchSize {
		end := min(start+batchSize, len(posts))
		batchProcessed, batchDuplicates, err := insertBatch(ctx, tx, posts[start:end], scheduleID, runID)
		if err != nil {
			return Result{}, err
		}
		processed += batchProcessed
		duplicates += batchDuplicates
	}

	now := globaltime.UTC()
	_, err = tx.Exec(ctx, `
		UPDATE finsift.ingestion_runs
		SET status = 'completed', processed_count = $1, duplicate_count = $2, skipped_count = $3, finished_at = $4, updated_at = $4
		WHERE run_id = $5`,
		processed, duplicates, len(skipDetails), now, runID,
	)
	if err != nil {
		return Result{}, fmt.Errorf("finalize ingestion run: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("commit ingestion: %w", err)
	}

	return Result{
		TotalRows:         len(posts),
		Processed:         processed,
		DuplicatesSkipped: duplicates,
		RowsSkipped:       len(skipDetails),
		SkipDetails:       capDetails(skipDetails),
	}, nil
}

// ensureSchedule finds or creates the schedule and returns its lookback
// window in hours.
func ensureSchedule(ctx context.Context, tx db.Tx, scheduleID string) (int, error) {
	var lookbackHours int
	err := tx.QueryRow(ctx,
		"SELECT lookback_hours FROM finsift.schedules WHERE schedule_id = $1",
		scheduleID,
	).Scan(&lookbackHours)
	if err == nil {
		return lookbackHours, nil
	}
	if !db.IsNoRows(err) {
		return 0, fmt.Errorf("look up schedule: %w", err)
	}

	now := globaltime.UTC()
	_, err = tx.Exec(ctx, `
		INSERT INTO finsift.schedules (schedule_id, name, is_active, timezone, lookback_hours, created_at, updated_at)
		VALUES ($1, $2, TRUE, $3, $4, $5, $5)`,
		scheduleID, "Schedule "+scheduleID, defaultTimezone, defaultLookback, now,
	)
	if err != nil {
		return 0, fmt.Errorf("create schedule: %w", err)
	}
	return defaultLookback, nil
}

// resetRun creates the run record, or replays an existing one by deleting
// its raw posts and zeroing its counters. The run window is the schedule's
// lookback ending now.
func resetRun(ctx context.Context, tx db.Tx, scheduleID, runID string, totalRows, lookbackHours int) error {
	now := globaltime.UTC()
	windowStart := now.Add(-time.Duration(lookbackHours) * time.Hour)

	var existing string
	err := tx.QueryRow(ctx,
		"SELECT run_id FROM finsift.ingestion_runs WHERE run_id = $1",
		runID,
	).Scan(&existing)
	if err == nil {
		if _, err := tx.Exec(ctx, "DELETE FROM finsift.raw_posts WHERE run_id = $1", runID); err != nil {
			return fmt.Errorf("clear replayed run posts: %w", err)
		}
		_, err = tx.Exec(ctx, `
			UPDATE finsift.ingestion_runs
			SET total_rows = $1, status = 'running', processed_count = 0, duplicate_count = 0,
			    skipped_count = 0, window_start = $2, window_end = $3, finished_at = NULL, updated_at = $3
			WHERE run_id = $4`,
			totalRows, windowStart, now, runID,
		)
		if err != nil {
			return fmt.Errorf("reset ingestion run: %w", err)
		}
		return nil
	}
	if !db.IsNoRows(err) {
		return fmt.Errorf("look up ingestion run: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO finsift.ingestion_runs (run_id, schedule_id, run_type, status, started_at, total_rows,
			processed_count, duplicate_count, skipped_count, window_start, window_end, created_at, updated_at)
		VALUES ($1, $2, 'manual', 'running', $3, $4, 0, 0, 0, $5, $3, $3, $3)`,
		runID, scheduleID, now, totalRows, windowStart,
	)
	if err != nil {
		return fmt.Errorf("create ingestion run: %w", err)
	}
	return nil
}

func insertBatch(ctx context.Context, tx db.Tx, batch []Post, scheduleID, runID string) (processed, duplicates int, err error) {
	postIDs := make([]string, 0, len(batch))
	externalIDs := make([]string, 0, len(batch))
	for _, post := range batch {
		postIDs = append(postIDs, post.PostID)
		externalIDs = append(externalIDs, post.ExternalID)
	}

	rows, err := tx.Query(ctx, `
		SELECT post_id, external_id FROM finsift.raw_posts
		WHERE post_id = ANY($1) OR (external_id = ANY($2) AND source = 'lobstr')`,
		postIDs, externalIDs,
	)
	if err != nil {
		return 0, 0, fmt.Errorf("check existing posts: %w", err)
	}

	existingPostIDs := map[string]struct{}{}
	existingExternalIDs := map[string]struct{}{}
	for rows.Next() {
		var postID string
		var externalID *string
		if err := rows.Scan(&postID, &externalID); err != nil {
			rows.Close()
			return 0, 0, fmt.Errorf("scan existing post: %w", err)
		}
		existingPostIDs[postID] = struct{}{}
		if externalID != nil && *externalID != "" {
			existingExternalIDs[*externalID] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, 0, fmt.Errorf("iterate existing posts: %w", err)
	}
	rows.Close()

	now := globaltime.UTC()
	for _, post := range batch {
		if _, dup := existingPostIDs[post.PostID]; dup {
			duplicates++
			continue
		}
		if post.ExternalID != "" {
			if _, dup := existingExternalIDs[post.ExternalID]; dup {
				duplicates++
				continue
			}
		}

		if err := insertPost(ctx, tx, post, scheduleID, runID, now); err != nil {
			return 0, 0, err
		}
		// Guard against duplicate rows inside the same file.
		existingPostIDs[post.PostID] = struct{}{}
		if post.ExternalID != "" {
			existingExternalIDs[post.ExternalID] = struct{}{}
		}
		processed++
	}

	return processed, duplicates, nil
}

func insertPost(ctx context.Context, tx db.Tx, post Post, scheduleID, runID string, now time.Time) error {
	urlsJSON, err := json.Marshal(post.URLs)
	if err != nil {
		return fmt.Errorf("marshal urls: %w", err)
	}
	symbolsJSON, err := json.Marshal(post.Symbols)
	if err != nil {
		return fmt.Errorf("marshal symbols: %w", err)
	}

	payload := "null"
	if len(post.Payload) > 0 {
		payload = string(post.Payload)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO finsift.raw_posts (
			post_id, external_id, source, run_id, schedule_id, content,
			published_at, collected_at, user_id, username, in_reply_to_screen_name,
			is_retweet, views_count, retweet_count, likes_count, quote_count,
			reply_count, bookmarks_count, tweet_url, original_tweet_url,
			urls, symbols, payload, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16,
			$17, $18, $19, $20,
			$21::jsonb, $22::jsonb, $23::jsonb, $24
		)`,
		post.PostID, nullable(post.ExternalID), post.Source, runID, scheduleID, post.Content,
		post.PublishedAt, post.CollectedAt, nullable(post.UserID), nullable(post.Username), nullable(post.InReplyToScreenName),
		post.IsRetweet, post.Metrics.Views, post.Metrics.Retweets, post.Metrics.Likes, post.Metrics.Quotes,
		post.Metrics.Replies, post.Metrics.Bookmarks, nullable(post.TweetURL), nullable(post.OriginalTweetURL),
		string(urlsJSON), string(symbolsJSON), payload, now,
	)
	if err != nil {
		return fmt.Errorf("insert raw post %s: %w", post.PostID, err)
	}
	return nil
}

func nullable(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func capDetails(details []string) []string {
	if len(details) <= maxSkipDetails {
		return details
	}
	return details[:maxSkipDetails]
}
