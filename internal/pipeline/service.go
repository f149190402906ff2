// Package pipeline wires normalization, classification, and persistence
// into the classify-tweets flow: load raw tweets, ask the model, reconcile
// the structured posts table, and report the actionable results.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/finsift/finsift/internal/classify"
	"github.com/finsift/finsift/internal/db"
	"github.com/finsift/finsift/internal/globaltime"
	"github.com/finsift/finsift/internal/normalize"
)

type execer interface {
	Exec(ctx context.Context, query string, args ...any) (db.CommandTag, error)
}

type Service struct {
	pool       *db.Pool
	normalizer *normalize.Service
	classifier *classify.Service
	logger     zerolog.Logger
}

func NewService(pool *db.Pool, normalizer *normalize.Service, classifier *classify.Service, logger zerolog.Logger) *Service {
	return &Service{
		pool:       pool,
		normalizer: normalizer,
		classifier: classifier,
		logger:     logger.With().Str("component", "pipeline").Logger(),
	}
}

// Result reports one classify-tweets invocation. Items holds only the
// actionable classifications (those with tickers or sectors) and Count is
// their number; the other counters cover everything that happened.
type Result struct {
	Count      int                       `json:"count"`
	Items      []classify.Classification `json:"items"`
	Classified int                       `json:"classified"`
	Saved      int                       `json:"saved"`
	Deleted    int                       `json:"deleted"`
}

// ClassifyTweets runs the full flow for the given tweet ids. Persistence is
// reconciling: a classification with tickers or sectors upserts the
// structured post, one without deletes any stale structured post for that
// tweet.
func (s *Service) ClassifyTweets(ctx context.Context, tweetIDs []string, customPrompt string) (Result, error) {
	if len(tweetIDs) == 0 {
		return Result{}, fmt.Errorf("%w: tweet_ids must be provided", normalize.ErrValidation)
	}
	return s.classifySelection(ctx, normalize.Selector{TweetIDs: tweetIDs}, customPrompt)
}

// ClassifyRun classifies every tweet stored under an ingestion run, up to
// limit (0 for all of them).
func (s *Service) ClassifyRun(ctx context.Context, runID string, limit int, customPrompt string) (Result, error) {
	return s.classifySelection(ctx, normalize.Selector{RunID: runID, Limit: limit}, customPrompt)
}

func (s *Service) classifySelection(ctx context.Context, selector normalize.Selector, customPrompt string) (Result, error) {
	if !s.classifier.Configured() {
		return Result{}, classify.ErrNotConfigured
	}

	tweets, err := s.normalizer.FetchAndNormalize(ctx, selector)
	if err != nil {
		return Result{}, err
	}
	if len(tweets) == 0 {
		s.logger.Info().Msg("no tweets available for classification")
		return Result{Items: []classify.Classification{}}, nil
	}

	if customPrompt != "" {
		s.logger.Info().Msg("using custom prompt for classification")
	}

	classifications, err := s.classifier.ClassifyTweets(ctx, tweets, customPrompt)
	if err != nil {
		return Result{}, err
	}
	if len(classifications) == 0 {
		s.logger.Warn().Msg("classification did not produce any results")
		return Result{Items: []classify.Classification{}}, nil
	}

	byID := make(map[string]normalize.Tweet, len(tweets))
	for _, tweet := range tweets {
		byID[tweet.TweetID] = tweet
	}

	saved, deleted := persistClassifications(ctx, s.pool, classifications, byID, s.classifier.Model(), s.logger)

	items := make([]classify.Classification, 0, len(classifications))
	for _, item := range classifications {
		if len(item.Tickers) > 0 || len(item.Sectors) > 0 {
			items = append(items, item)
		}
	}

	s.logger.Info().
		Int("classified", len(classifications)).
		Int("saved", saved).
		Int("deleted", deleted).
		Int("returned", len(items)).
		Msg("classification pipeline finished")

	return Result{
		Count:      len(items),
		Items:      items,
		Classified: len(classifications),
		Saved:      saved,
		Deleted:    deleted,
	}, nil
}

// persistClassifications reconciles structured posts one item at a time.
// Per-item failures are logged and skipped so one bad row cannot sink an
// otherwise good batch.
func persistClassifications(ctx context.Context, ex execer, items []classify.Classification, tweets map[string]normalize.Tweet, model string, logger zerolog.Logger) (saved, deleted int) {
	for _, item := range items {
		if item.TweetID == "" {
			logger.Warn().Msg("skipping classification without tweet id")
			continue
		}
		if len(item.Categories) == 0 && len(item.SubCategories) == 0 {
			logger.Warn().Str("tweet_id", item.TweetID).Msg("skipping classification without categories")
			continue
		}

		if len(item.Tickers) == 0 && len(item.Sectors) == 0 {
			if _, err := ex.Exec(ctx,
				"DELETE FROM finsift.structured_posts WHERE post_id = $1",
				item.TweetID,
			); err != nil {
				logger.Error().Str("tweet_id", item.TweetID).Err(err).Msg("failed to delete structured post")
				continue
			}
			deleted++
			continue
		}

		if err := upsertStructuredPost(ctx, ex, item, tweets[item.TweetID], model); err != nil {
			logger.Error().Str("tweet_id", item.TweetID).Err(err).Msg("failed to save structured post")
			continue
		}
		saved++
	}
	return saved, deleted
}

func upsertStructuredPost(ctx context.Context, ex execer, item classify.Classification, tweet normalize.Tweet, model string) error {
	categories, err := marshalJSON(item.Categories)
	if err != nil {
		return err
	}
	subCategories, err := marshalJSON(item.SubCategories)
	if err != nil {
		return err
	}
	tickers, err := marshalJSON(item.Tickers)
	if err != nil {
		return err
	}
	sectors, err := marshalJSON(item.Sectors)
	if err != nil {
		return err
	}
	urls, err := marshalJSON(emptyIfNil(tweet.URLs))
	if err != nil {
		return err
	}
	symbols, err := marshalJSON(emptyIfNil(tweet.SymbolsRaw))
	if err != nil {
		return err
	}

	var publishedAt *time.Time
	if tweet.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, tweet.Timestamp); err == nil {
			utc := parsed.UTC()
			publishedAt = &utc
		}
	}

	now := globaltime.UTC()
	_, err = ex.Exec(ctx, `
		INSERT INTO finsift.structured_posts (
			post_id, content, published_at, urls, symbols,
			categories, sub_categories, tickers, sectors,
			model, classified_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4::jsonb, $5::jsonb,
			$6::jsonb, $7::jsonb, $8::jsonb, $9::jsonb,
			$10, $11, $11, $11
		)
		ON CONFLICT (post_id) DO UPDATE SET
			content = EXCLUDED.content,
			published_at = EXCLUDED.published_at,
			urls = EXCLUDED.urls,
			symbols = EXCLUDED.symbols,
			categories = EXCLUDED.categories,
			sub_categories = EXCLUDED.sub_categories,
			tickers = EXCLUDED.tickers,
			sectors = EXCLUDED.sectors,
			model = EXCLUDED.model,
			classified_at = EXCLUDED.classified_at,
			updated_at = EXCLUDED.updated_at`,
		item.TweetID, tweet.Text, publishedAt, urls, symbols,
		categories, subCategories, tickers, sectors,
		model, now,
	)
	if err != nil {
		return fmt.Errorf("upsert structured post %s: %w", item.TweetID, err)
	}
	return nil
}

// PreviewPrompts renders the exact model request each selected tweet would
// produce, without calling the model.
func (s *Service) PreviewPrompts(ctx context.Context, tweetIDs []string) ([]classify.PromptPreview, error) {
	if len(tweetIDs) == 0 {
		return nil, fmt.Errorf("%w: tweet_ids must be provided", normalize.ErrValidation)
	}

	tweets, err := s.normalizer.FetchAndNormalize(ctx, normalize.Selector{TweetIDs: tweetIDs})
	if err != nil {
		return nil, err
	}

	previews := make([]classify.PromptPreview, 0, len(tweets))
	for _, tweet := range tweets {
		previews = append(previews, s.classifier.PreviewPrompt(tweet))
	}
	return previews, nil
}

func marshalJSON(value any) (string, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("marshal json value: %w", err)
	}
	return string(encoded), nil
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
