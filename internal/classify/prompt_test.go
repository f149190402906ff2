package classify

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/finsift/finsift/internal/normalize"
)

func sampleTweet() normalize.Tweet {
	return normalize.Tweet{
		TweetID:    "1234567890",
		Text:       "NVDA beats earnings expectations",
		Timestamp:  "2025-06-01T12:30:00Z",
		URLs:       []string{"https://example.com/article"},
		SymbolsRaw: []string{"NVDA"},
	}
}

func TestBuildPromptContainsTweetFields(t *testing.T) {
	t.Parallel()

	prompt := BuildPrompt(sampleTweet())

	for _, want := range []string{
		"ID: 1234567890",
		"Text: NVDA beats earnings expectations",
		"Timestamp: 2025-06-01T12:30:00Z",
		"Symbols: NVDA",
		"URLs: https://example.com/article",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
}

func TestBuildPromptEmbedsTaxonomyAndSectors(t *testing.T) {
	t.Parallel()

	prompt := BuildPrompt(sampleTweet())

	for _, want := range []string{
		`"Company"`,
		`"Macro & Economy"`,
		`"Data & Sentiment"`,
		"- Information Technology",
		"- Real Estate",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
	if !strings.HasSuffix(prompt, "## YOUR RESPONSE (JSON only, no other text):") {
		t.Fatalf("prompt does not end with the response marker")
	}
}

func TestBuildPromptEmptyFieldsRenderPlaceholders(t *testing.T) {
	t.Parallel()

	prompt := BuildPrompt(normalize.Tweet{TweetID: "1"})

	for _, want := range []string{
		"Timestamp: N/A",
		"Symbols: None",
		"URLs: None",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
}

func TestBuildCustomPromptSubstitutesPlaceholders(t *testing.T) {
	t.Parallel()

	template := "Classify this: {text} at {timestamp}. Symbols: {symbols_raw}. Links: {urls}."
	prompt := BuildCustomPrompt(sampleTweet(), template, zerolog.Nop())

	want := "Classify this: NVDA beats earnings expectations at 2025-06-01T12:30:00Z. Symbols: NVDA. Links: https://example.com/article."
	if prompt != want {
		t.Fatalf("unexpected custom prompt:\n got: %q\nwant: %q", prompt, want)
	}
}

func TestBuildCustomPromptWithoutPlaceholdersFallsBack(t *testing.T) {
	t.Parallel()

	prompt := BuildCustomPrompt(sampleTweet(), "just classify financial tweets please", zerolog.Nop())
	if !strings.Contains(prompt, "## TAXONOMY") {
		t.Fatalf("expected fallback to default prompt, got %q", prompt)
	}
}

func TestBuildCustomPromptUnknownPlaceholderFallsBack(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		template string
	}{
		{name: "unknown name", template: "Classify {text} for {audience}"},
		{name: "uppercase variant", template: "Classify {Text} carefully"},
		{name: "digits", template: "Classify {text} with {model2}"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			prompt := BuildCustomPrompt(sampleTweet(), tc.template, zerolog.Nop())
			if !strings.Contains(prompt, "## TAXONOMY") {
				t.Fatalf("expected fallback to default prompt for %q, got %q", tc.template, prompt)
			}
		})
	}
}
