package classify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/finsift/finsift/internal/normalize"
	"github.com/finsift/finsift/internal/taxonomy"
)

// SystemMessage is sent with every classification request.
const SystemMessage = "You are a financial tweet classifier. Always respond with valid JSON."

const (
	// Temperature pins the model to deterministic output.
	Temperature = 0.0
	// MaxTokens leaves room for the full taxonomy echo in degenerate
	// responses; normal answers are far smaller.
	MaxTokens = 2000
)

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

var knownPlaceholders = map[string]struct{}{
	"text":        {},
	"timestamp":   {},
	"urls":        {},
	"symbols":     {},
	"symbols_raw": {},
}

// BuildPrompt renders the default classification prompt for a tweet. The
// taxonomy and sector list are embedded verbatim so the model can only pick
// from known labels.
func BuildPrompt(tweet normalize.Tweet) string {
	urls := joinOrNone(tweet.URLs)
	symbols := joinOrNone(tweet.SymbolsRaw)

	timestamp := tweet.Timestamp
	if timestamp == "" {
		timestamp = "N/A"
	}

	return fmt.Sprintf(
		"You are an expert financial markets analyst. Your task is to CLASSIFY the tweet below into categories and sub-categories.\n\n"+
			"## TAXONOMY (Use this to classify the tweet):\n"+
			"%s\n\n"+
			"## VALID SECTORS (Use EXACT names only):\n"+
			"%s\n\n"+
			"## YOUR TASK:\n"+
			"Analyze the tweet below and classify it using the taxonomy above. Return ONLY a JSON object with this exact structure:\n"+
			"{\n"+
			"  \"categories\": [\"CategoryName1\", \"CategoryName2\"],\n"+
			"  \"sub_categories\": {\n"+
			"    \"CategoryName1\": [\"SubCategory1\", \"SubCategory2\"],\n"+
			"    \"CategoryName2\": [\"SubCategory3\"]\n"+
			"  },\n"+
			"  \"tickers\": [\"NVDA\", \"AMD\"],\n"+
			"  \"sectors\": [\"Information Technology\"]\n"+
			"}\n\n"+
			"## RULES:\n"+
			"- Select 1-3 categories from the taxonomy that match the tweet\n"+
			"- For each category, select relevant sub-categories from that category's list\n"+
			"- Extract tickers (stock symbols) mentioned in the tweet\n"+
			"- Identify sectors based on tickers or content\n"+
			"- Use EXACT names from taxonomy and sectors list\n"+
			"- Return ONLY the JSON object, nothing else\n\n"+
			"## TWEET TO CLASSIFY:\n"+
			"ID: %s\n"+
			"Text: %s\n"+
			"Timestamp: %s\n"+
			"Symbols: %s\n"+
			"URLs: %s\n\n"+
			"## YOUR RESPONSE (JSON only, no other text):",
		taxonomy.PromptJSON(),
		taxonomy.PromptSectorList(),
		tweet.TweetID,
		tweet.Text,
		timestamp,
		symbols,
		urls,
	)
}

// BuildCustomPrompt substitutes tweet fields into a caller-provided
// template. Templates with no recognized placeholder, or with an unknown
// one, fall back to the default prompt with a warning so a broken template
// never silently drops the taxonomy.
func BuildCustomPrompt(tweet normalize.Tweet, template string, logger zerolog.Logger) string {
	matches := placeholderPattern.FindAllStringSubmatch(template, -1)

	hasKnown := false
	for _, match := range matches {
		if _, ok := knownPlaceholders[match[1]]; ok {
			hasKnown = true
		} else {
			logger.Warn().
				Str("placeholder", match[1]).
				Msg("unknown placeholder in custom prompt, using default prompt")
			return BuildPrompt(tweet)
		}
	}
	if !hasKnown {
		logger.Warn().Msg("custom prompt has no recognized placeholders, using default prompt")
		return BuildPrompt(tweet)
	}

	symbols := joinOrNone(tweet.SymbolsRaw)
	replacer := strings.NewReplacer(
		"{text}", tweet.Text,
		"{timestamp}", tweet.Timestamp,
		"{urls}", joinOrNone(tweet.URLs),
		"{symbols}", symbols,
		"{symbols_raw}", symbols,
	)
	return replacer.Replace(template)
}

func joinOrNone(values []string) string {
	if len(values) == 0 {
		return "None"
	}
	return strings.Join(values, ", ")
}
