// Package normalize loads raw tweets from storage and prepares them for
// classification: NFKC text normalization, UTC timestamps, and decoded
// URL and cashtag lists.
package normalize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/unicode/norm"

	"github.com/finsift/finsift/internal/db"
)

// ErrValidation marks selector errors the caller should surface as bad input.
var ErrValidation = errors.New("invalid tweet selection")

// Selector picks which raw tweets to load. Exactly one of RunID or TweetIDs
// must be set; Limit zero means no limit and only applies to RunID selection.
type Selector struct {
	RunID    string
	TweetIDs []string
	Limit    int
}

func (s Selector) validate() error {
	hasRun := strings.TrimSpace(s.RunID) != ""
	if !hasRun && len(s.TweetIDs) == 0 {
		return fmt.Errorf("%w: run_id or tweet_ids must be provided", ErrValidation)
	}
	if s.Limit < 0 {
		return fmt.Errorf("%w: limit must not be negative", ErrValidation)
	}
	return nil
}

// Tweet is a normalized tweet ready for prompt building. Timestamp is
// RFC3339 UTC with a Z suffix, or empty when the publish time is unknown.
type Tweet struct {
	TweetID    string   `json:"tweet_id"`
	Text       string   `json:"text"`
	Timestamp  string   `json:"timestamp,omitempty"`
	URLs       []string `json:"urls"`
	SymbolsRaw []string `json:"symbols_raw"`
	RunID      string   `json:"run_id,omitempty"`
	ScheduleID string   `json:"schedule_id,omitempty"`
}

type Service struct {
	pool   *db.Pool
	logger zerolog.Logger
}

func NewService(pool *db.Pool, logger zerolog.Logger) *Service {
	return &Service{
		pool:   pool,
		logger: logger.With().Str("component", "normalize").Logger(),
	}
}

// FetchAndNormalize loads the selected raw tweets ordered by publish time
// and normalizes each. Rows without a post id are skipped.
func (s *Service) FetchAndNormalize(ctx context.Context, selector Selector) ([]Tweet, error) {
	if err := selector.validate(); err != nil {
		return nil, err
	}
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("normalize service is not initialized")
	}

	rows, err := s.fetchRows(ctx, selector)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tweets := make([]Tweet, 0, 16)
	for rows.Next() {
		var (
			postID      string
			content     string
			publishedAt *time.Time
			urlsJSON    []byte
			symbolsJSON []byte
			runID       *string
			scheduleID  *string
		)
		if err := rows.Scan(&postID, &content, &publishedAt, &urlsJSON, &symbolsJSON, &runID, &scheduleID); err != nil {
			return nil, fmt.Errorf("scan raw post: %w", err)
		}

		tweet, ok := buildTweet(postID, content, publishedAt, urlsJSON, symbolsJSON, runID, scheduleID)
		if !ok {
			continue
		}
		tweets = append(tweets, tweet)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate raw posts: %w", err)
	}

	if len(tweets) == 0 && len(selector.TweetIDs) > 0 {
		s.logger.Warn().
			Strs("tweet_ids", head(selector.TweetIDs, 3)).
			Msg("no raw posts found for requested tweet ids")
	}
	s.logger.Info().Int("count", len(tweets)).Msg("prepared tweets for classification")
	return tweets, nil
}

func (s *Service) fetchRows(ctx context.Context, selector Selector) (*db.Rows, error) {
	const columns = "post_id, content, published_at, urls, symbols, run_id, schedule_id"

	if len(selector.TweetIDs) > 0 {
		ids := make([]string, 0, len(selector.TweetIDs))
		for _, id := range selector.TweetIDs {
			ids = append(ids, strings.TrimSpace(id))
		}
		return s.pool.Query(ctx,
			"SELECT "+columns+" FROM finsift.raw_posts WHERE post_id = ANY($1) ORDER BY published_at ASC, id ASC",
			ids,
		)
	}

	if selector.Limit > 0 {
		return s.pool.Query(ctx,
			"SELECT "+columns+" FROM finsift.raw_posts WHERE run_id = $1 ORDER BY published_at ASC, id ASC LIMIT $2",
			selector.RunID, selector.Limit,
		)
	}
	return s.pool.Query(ctx,
		"SELECT "+columns+" FROM finsift.raw_posts WHERE run_id = $1 ORDER BY published_at ASC, id ASC",
		selector.RunID,
	)
}

func buildTweet(postID, content string, publishedAt *time.Time, urlsJSON, symbolsJSON []byte, runID, scheduleID *string) (Tweet, bool) {
	id := strings.TrimSpace(postID)
	if id == "" {
		return Tweet{}, false
	}

	tweet := Tweet{
		TweetID:    id,
		Text:       NormalizeText(content),
		URLs:       DecodeURLs(urlsJSON),
		SymbolsRaw: DecodeSymbols(symbolsJSON),
	}
	if publishedAt != nil {
		tweet.Timestamp = FormatUTC(*publishedAt)
	}
	if runID != nil {
		tweet.RunID = *runID
	}
	if scheduleID != nil {
		tweet.ScheduleID = *scheduleID
	}
	return tweet, true
}

// NormalizeText applies NFKC, strips invalid UTF-8, and trims whitespace.
func NormalizeText(text string) string {
	normalized := norm.NFKC.String(text)
	return strings.TrimSpace(strings.ToValidUTF8(normalized, ""))
}

// FormatUTC renders a timestamp as RFC3339 in UTC with a trailing Z.
func FormatUTC(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// DecodeURLs decodes a JSON array of URL entries. Entries may be plain
// strings or objects; for objects the first non-empty of expanded_url, url,
// display_url wins. Anything undecodable yields an empty list.
func DecodeURLs(raw []byte) []string {
	urls := []string{}
	if len(raw) == 0 {
		return urls
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return urls
	}

	for _, entry := range entries {
		var asString string
		if err := json.Unmarshal(entry, &asString); err == nil {
			if cleaned := strings.TrimSpace(asString); cleaned != "" {
				urls = append(urls, cleaned)
			}
			continue
		}

		var asObject map[string]any
		if err := json.Unmarshal(entry, &asObject); err != nil {
			continue
		}
		for _, key := range []string{"expanded_url", "url", "display_url"} {
			value, ok := asObject[key].(string)
			if !ok {
				continue
			}
			if cleaned := strings.TrimSpace(value); cleaned != "" {
				urls = append(urls, cleaned)
				break
			}
		}
	}
	return urls
}

// DecodeSymbols decodes a JSON array of cashtag symbols, trimmed and
// upper-cased. Undecodable input yields an empty list.
func DecodeSymbols(raw []byte) []string {
	symbols := []string{}
	if len(raw) == 0 {
		return symbols
	}

	var entries []string
	if err := json.Unmarshal(raw, &entries); err != nil {
		return symbols
	}
	for _, entry := range entries {
		cleaned := strings.ToUpper(strings.TrimSpace(entry))
		if cleaned == "" {
			continue
		}
		symbols = append(symbols, cleaned)
	}
	return symbols
}

func head(values []string, n int) []string {
	if len(values) <= n {
		return values
	}
	return values[:n]
}
