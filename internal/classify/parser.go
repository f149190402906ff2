package classify

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/finsift/finsift/internal/taxonomy"
	resultschema "github.com/finsift/finsift/schema"
)

// Classification is the taxonomy-filtered result for a single tweet. A
// result with empty Categories and SubCategories is still returned so the
// caller can see which tweets the model could not place.
type Classification struct {
	TweetID       string              `json:"tweet_id"`
	Categories    []string            `json:"categories"`
	SubCategories map[string][]string `json:"sub_categories"`
	Tickers       []string            `json:"tickers"`
	Sectors       []string            `json:"sectors"`
}

var (
	categoriesArrayPattern = regexp.MustCompile(`(?s)"categories"\s*:\s*\[(.*?)\]`)
	tickersArrayPattern    = regexp.MustCompile(`(?s)"tickers"\s*:\s*\[(.*?)\]`)
)

// ParseResponse turns raw model output into a taxonomy-filtered
// Classification. It tolerates markdown fences and prose around the JSON
// object; when the payload is unrecoverable it returns ok=false.
func ParseResponse(tweetID, responseText string, logger zerolog.Logger) (Classification, bool) {
	if strings.TrimSpace(responseText) == "" {
		logger.Error().Str("tweet_id", tweetID).Msg("empty classification response")
		return Classification{}, false
	}

	cleaned := isolateJSONObject(stripMarkdownFences(responseText))

	result, err := resultschema.ValidateClassificationResult(json.RawMessage(cleaned))
	if err != nil {
		logger.Error().Str("tweet_id", tweetID).Err(err).Msg("failed to parse classification JSON")
		return recoverPartial(tweetID, cleaned, responseText, logger)
	}

	classification := Classification{
		TweetID:       tweetID,
		Categories:    taxonomy.FilterCategories(result.Categories),
		SubCategories: taxonomy.FilterSubCategories(result.SubCategories),
		Tickers:       taxonomy.NormalizeTickers(result.Tickers),
		Sectors:       taxonomy.FilterSectors(result.Sectors),
	}

	if len(classification.Categories) == 0 && len(classification.SubCategories) == 0 {
		logger.Warn().Str("tweet_id", tweetID).Msg("no valid categories or sub-categories in response")
	}
	return classification, true
}

// stripMarkdownFences removes a leading ``` or ```json fence and the
// matching trailing fence, if present.
func stripMarkdownFences(text string) string {
	cleaned := strings.TrimSpace(text)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}

	cleaned = cleaned[3:]
	if len(cleaned) >= 4 && strings.EqualFold(cleaned[:4], "json") {
		cleaned = cleaned[4:]
	}
	cleaned = strings.TrimSpace(cleaned)
	if strings.HasSuffix(cleaned, "```") {
		cleaned = strings.TrimSpace(cleaned[:len(cleaned)-3])
	}
	return cleaned
}

// isolateJSONObject cuts the text down to the first '{' through the last
// '}' when both exist, discarding any prose the model wrapped around the
// object.
func isolateJSONObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end != -1 && end > start {
		return text[start : end+1]
	}
	return text
}

// recoverPartial salvages categories and tickers from malformed output by
// locating their arrays directly. Sub-categories and sectors are not worth
// guessing at. A response that is still a JSON object, just with
// wrong-typed fields, is kept with empty labels rather than dropped.
func recoverPartial(tweetID, cleaned, responseText string, logger zerolog.Logger) (Classification, bool) {
	categories := recoverStringArray(categoriesArrayPattern, responseText)
	categories = taxonomy.FilterCategories(categories)

	tickers := recoverStringArray(tickersArrayPattern, responseText)
	tickers = taxonomy.NormalizeTickers(tickers)

	if len(categories) == 0 && len(tickers) == 0 {
		var obj map[string]json.RawMessage
		if json.Unmarshal([]byte(cleaned), &obj) == nil {
			logger.Warn().Str("tweet_id", tweetID).Msg("response is a JSON object with no usable labels, keeping empty result")
			return Classification{
				TweetID:       tweetID,
				Categories:    []string{},
				SubCategories: map[string][]string{},
				Tickers:       []string{},
				Sectors:       []string{},
			}, true
		}
		return Classification{}, false
	}

	logger.Info().
		Str("tweet_id", tweetID).
		Int("categories", len(categories)).
		Int("tickers", len(tickers)).
		Msg("recovered partial classification from malformed response")

	return Classification{
		TweetID:       tweetID,
		Categories:    categories,
		SubCategories: map[string][]string{},
		Tickers:       tickers,
		Sectors:       []string{},
	}, true
}

func recoverStringArray(pattern *regexp.Regexp, text string) []string {
	match := pattern.FindStringSubmatch(text)
	if match == nil {
		return nil
	}

	var values []string
	if err := json.Unmarshal([]byte("["+match[1]+"]"), &values); err != nil {
		return nil
	}
	return values
}
