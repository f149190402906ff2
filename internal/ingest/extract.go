package ingest

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/finsift/finsift/internal/globaltime"
)

// Column names as they appear in the export CSV header.
const (
	colOriginalTweetID     = "ORIGINAL TWEET ID"
	colInternalUniqueID    = "INTERNAL UNIQUE ID"
	colExternalID          = "ID"
	colContent             = "CONTENT"
	colPublishedAt         = "PUBLISHED AT"
	colCollectedAt         = "COLLECTED AT"
	colUserID              = "USER ID"
	colUsername            = "USERNAME"
	colInReplyToScreenName = "IN REPLY TO SCREEN NAME"
	colIsRetweeted         = "IS RETWEETED"
	colViewsCount          = "VIEWS COUNT"
	colRetweetCount        = "RETWEET COUNT"
	colLikes               = "LIKES"
	colQuoteCount          = "QUOTE COUNT"
	colReplyCount          = "REPLY COUNT"
	colBookmarksCount      = "BOOKMARKS COUNT"
	colJSON                = "JSON"
	colTweetURL            = "TWEET URL"
	colOriginalTweetURL    = "ORIGINAL TWEET URL"
)

var (
	shortLinkPattern = regexp.MustCompile(`https?://t\.co/[a-zA-Z0-9]+`)
	cashtagPattern   = regexp.MustCompile(`\$([A-Z]{1,5})`)
)

// Row is one CSV record keyed by header name. Missing columns read as "".
type Row map[string]string

func (r Row) get(column string) string {
	return strings.TrimSpace(r[column])
}

// Post is an extracted tweet ready for persistence.
type Post struct {
	PostID              string
	ExternalID          string
	Source              string
	Content             string
	PublishedAt         *time.Time
	CollectedAt         *time.Time
	UserID              string
	Username            string
	InReplyToScreenName string
	IsRetweet           bool
	Metrics             Metrics
	URLs                []string
	Symbols             []string
	TweetURL            string
	OriginalTweetURL    string
	Payload             json.RawMessage
}

type Metrics struct {
	Views     int64 `json:"views"`
	Retweets  int64 `json:"retweets"`
	Likes     int64 `json:"likes"`
	Quotes    int64 `json:"quotes"`
	Replies   int64 `json:"replies"`
	Bookmarks int64 `json:"bookmarks"`
}

// ExtractPost turns a CSV row into a Post. Identifier fallbacks mirror the
// export format: the original tweet id wins, then the internal unique id,
// then a synthesized id that keeps the row ingestible. A non-empty
// timestamp that matches no known layout fails the row.
func ExtractPost(row Row, idx int) (Post, error) {
	payload := decodePayload(row.get(colJSON))

	publishedAt, err := parseTimestamp(row.get(colPublishedAt))
	if err != nil {
		return Post{}, fmt.Errorf("published at: %w", err)
	}
	collectedAt, err := parseTimestamp(row.get(colCollectedAt))
	if err != nil {
		return Post{}, fmt.Errorf("collected at: %w", err)
	}

	postID := row.get(colOriginalTweetID)
	if postID == "" {
		postID = row.get(colInternalUniqueID)
	}
	if postID == "" {
		postID = fmt.Sprintf("tweet_%d_%d", idx, globaltime.UTC().Unix())
	}

	externalID := row.get(colExternalID)
	if externalID == "" {
		externalID = fmt.Sprintf("ext_%d_%d", idx, globaltime.UTC().Unix())
	}

	content := row.get(colContent)

	tweetURL := row.get(colTweetURL)
	originalTweetURL := row.get(colOriginalTweetURL)
	primaryURL := tweetURL
	if primaryURL == "" {
		primaryURL = originalTweetURL
	}

	return Post{
		PostID:              postID,
		ExternalID:          externalID,
		Source:              "lobstr",
		Content:             content,
		PublishedAt:         publishedAt,
		CollectedAt:         collectedAt,
		UserID:              row.get(colUserID),
		Username:            row.get(colUsername),
		InReplyToScreenName: row.get(colInReplyToScreenName),
		IsRetweet:           strings.EqualFold(row.get(colIsRetweeted), "TRUE"),
		Metrics: Metrics{
			Views:     parseCount(row.get(colViewsCount)),
			Retweets:  parseCount(row.get(colRetweetCount)),
			Likes:     parseCount(row.get(colLikes)),
			Quotes:    parseCount(row.get(colQuoteCount)),
			Replies:   parseCount(row.get(colReplyCount)),
			Bookmarks: parseCount(row.get(colBookmarksCount)),
		},
		URLs:             ExtractURLs(content, payload, primaryURL),
		Symbols:          ExtractSymbols(content, payload),
		TweetURL:         tweetURL,
		OriginalTweetURL: originalTweetURL,
		Payload:          payload,
	}, nil
}

func decodePayload(raw string) json.RawMessage {
	if raw == "" {
		return nil
	}
	if !json.Valid([]byte(raw)) {
		return nil
	}
	return json.RawMessage(raw)
}

// timestampLayouts cover the formats seen in export CSVs.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"Mon Jan 02 15:04:05 -0700 2006",
}

// parseTimestamp interprets zone-less timestamps as UTC. An empty value is
// simply absent; a non-empty value matching no layout is an error.
func parseTimestamp(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range timestampLayouts {
		parsed, err := time.ParseInLocation(layout, raw, time.UTC)
		if err != nil {
			continue
		}
		utc := parsed.UTC()
		return &utc, nil
	}
	return nil, fmt.Errorf("unrecognized timestamp %q", raw)
}

func parseCount(raw string) int64 {
	if raw == "" {
		return 0
	}
	if value, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return value
	}
	// Some exports render counts as floats.
	if value, err := strconv.ParseFloat(raw, 64); err == nil {
		return int64(value)
	}
	return 0
}

// ExtractURLs resolves tweet URLs with a fixed precedence: the tweet URL
// column, then legacy entities, current entities, a flat urls list, and as
// a last resort t.co short links found in the text. Order of first
// appearance is kept, duplicates dropped.
func ExtractURLs(content string, payload json.RawMessage, tweetURL string) []string {
	urls := []string{}
	if cleaned := strings.TrimSpace(tweetURL); cleaned != "" {
		urls = append(urls, cleaned)
	}

	var decoded map[string]any
	if len(payload) > 0 {
		_ = json.Unmarshal(payload, &decoded)
	}

	if decoded != nil {
		urls = append(urls, entityURLs(nestedMap(decoded, "legacy", "entities"))...)
		if len(urls) == 0 {
			urls = append(urls, entityURLs(nestedMap(decoded, "entities"))...)
		}
		if len(urls) == 0 {
			if flat, ok := decoded["urls"].([]any); ok {
				for _, entry := range flat {
					if value, ok := entry.(string); ok && strings.TrimSpace(value) != "" {
						urls = append(urls, strings.TrimSpace(value))
					}
				}
			}
		}
	}

	if len(urls) == 0 && content != "" {
		urls = append(urls, shortLinkPattern.FindAllString(content, -1)...)
	}

	return dedupe(urls)
}

// ExtractSymbols pulls cashtags out of the text, falling back to entity
// symbols from the payload when the text carries none.
func ExtractSymbols(content string, payload json.RawMessage) []string {
	symbols := []string{}
	for _, match := range cashtagPattern.FindAllStringSubmatch(content, -1) {
		symbols = append(symbols, strings.ToUpper(match[1]))
	}

	if len(symbols) == 0 && len(payload) > 0 {
		var decoded map[string]any
		if err := json.Unmarshal(payload, &decoded); err == nil {
			symbols = append(symbols, entitySymbols(nestedMap(decoded, "legacy", "entities"))...)
			if len(symbols) == 0 {
				symbols = append(symbols, entitySymbols(nestedMap(decoded, "entities"))...)
			}
		}
	}

	return dedupe(symbols)
}

func entityURLs(entities map[string]any) []string {
	urls := []string{}
	if entities == nil {
		return urls
	}
	list, ok := entities["urls"].([]any)
	if !ok {
		return urls
	}
	for _, entry := range list {
		switch item := entry.(type) {
		case string:
			if cleaned := strings.TrimSpace(item); cleaned != "" {
				urls = append(urls, cleaned)
			}
		case map[string]any:
			for _, key := range []string{"expanded_url", "url", "display_url"} {
				if value, ok := item[key].(string); ok && strings.TrimSpace(value) != "" {
					urls = append(urls, strings.TrimSpace(value))
					break
				}
			}
		}
	}
	return urls
}

func entitySymbols(entities map[string]any) []string {
	symbols := []string{}
	if entities == nil {
		return symbols
	}
	list, ok := entities["symbols"].([]any)
	if !ok {
		return symbols
	}
	for _, entry := range list {
		switch item := entry.(type) {
		case string:
			if cleaned := strings.ToUpper(strings.TrimSpace(item)); cleaned != "" {
				symbols = append(symbols, cleaned)
			}
		case map[string]any:
			for _, key := range []string{"text", "symbol"} {
				if value, ok := item[key].(string); ok && strings.TrimSpace(value) != "" {
					symbols = append(symbols, strings.ToUpper(strings.TrimSpace(value)))
					break
				}
			}
		}
	}
	return symbols
}

func nestedMap(root map[string]any, keys ...string) map[string]any {
	current := root
	for _, key := range keys {
		next, ok := current[key].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return current
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	unique := make([]string, 0, len(values))
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		unique = append(unique, value)
	}
	return unique
}
