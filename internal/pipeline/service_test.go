package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/finsift/finsift/internal/classify"
	"github.com/finsift/finsift/internal/db"
	"github.com/finsift/finsift/internal/normalize"
)

type recordedExec struct {
	query string
	args  []any
}

type fakeExecer struct {
	execs   []recordedExec
	failFor map[string]error
}

func (f *fakeExecer) Exec(_ context.Context, query string, args ...any) (db.CommandTag, error) {
	f.execs = append(f.execs, recordedExec{query: query, args: args})
	if f.failFor != nil && len(args) > 0 {
		if id, ok := args[0].(string); ok {
			if err, ok := f.failFor[id]; ok {
				return db.CommandTag{}, err
			}
		}
	}
	return db.CommandTag{}, nil
}

func classification(tweetID string, tickers, sectors []string) classify.Classification {
	return classify.Classification{
		TweetID:       tweetID,
		Categories:    []string{"Company"},
		SubCategories: map[string][]string{"Company": {"Earnings"}},
		Tickers:       tickers,
		Sectors:       sectors,
	}
}

func TestResultJSONCarriesCountOfItems(t *testing.T) {
	t.Parallel()

	result := Result{
		Count:      1,
		Items:      []classify.Classification{classification("1", []string{"NVDA"}, nil)},
		Classified: 3,
		Saved:      1,
		Deleted:    1,
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	count, ok := decoded["count"].(float64)
	if !ok || int(count) != 1 {
		t.Fatalf("expected count=1 in response, got %v", decoded["count"])
	}
	items, ok := decoded["items"].([]any)
	if !ok || len(items) != int(count) {
		t.Fatalf("expected count to match items length, got %v", decoded)
	}
}

func TestPersistClassificationsUpsertsActionable(t *testing.T) {
	t.Parallel()

	ex := &fakeExecer{}
	items := []classify.Classification{
		classification("1", []string{"NVDA"}, []string{"Information Technology"}),
	}
	tweets := map[string]normalize.Tweet{
		"1": {TweetID: "1", Text: "NVDA beats", Timestamp: "2025-05-01T10:00:00Z"},
	}

	saved, deleted := persistClassifications(context.Background(), ex, items, tweets, "gpt-4o-mini", zerolog.Nop())
	if saved != 1 || deleted != 0 {
		t.Fatalf("expected 1 saved, got saved=%d deleted=%d", saved, deleted)
	}
	if len(ex.execs) != 1 {
		t.Fatalf("expected 1 exec, got %d", len(ex.execs))
	}
	query := ex.execs[0].query
	if !strings.Contains(query, "INSERT INTO finsift.structured_posts") || !strings.Contains(query, "ON CONFLICT (post_id) DO UPDATE") {
		t.Fatalf("expected upsert query, got %q", query)
	}
	if got := ex.execs[0].args[0]; got != "1" {
		t.Fatalf("expected post id arg, got %v", got)
	}
}

func TestPersistClassificationsDeletesNonActionable(t *testing.T) {
	t.Parallel()

	ex := &fakeExecer{}
	items := []classify.Classification{
		classification("2", nil, nil),
	}

	saved, deleted := persistClassifications(context.Background(), ex, items, map[string]normalize.Tweet{}, "gpt-4o-mini", zerolog.Nop())
	if saved != 0 || deleted != 1 {
		t.Fatalf("expected 1 deleted, got saved=%d deleted=%d", saved, deleted)
	}
	if len(ex.execs) != 1 || !strings.Contains(ex.execs[0].query, "DELETE FROM finsift.structured_posts") {
		t.Fatalf("expected delete query, got %+v", ex.execs)
	}
}

func TestPersistClassificationsSkipsUnlabeled(t *testing.T) {
	t.Parallel()

	ex := &fakeExecer{}
	items := []classify.Classification{
		{TweetID: "3", Tickers: []string{"TSLA"}},
		{TweetID: ""},
	}

	saved, deleted := persistClassifications(context.Background(), ex, items, map[string]normalize.Tweet{}, "gpt-4o-mini", zerolog.Nop())
	if saved != 0 || deleted != 0 {
		t.Fatalf("expected nothing persisted, got saved=%d deleted=%d", saved, deleted)
	}
	if len(ex.execs) != 0 {
		t.Fatalf("expected no execs, got %+v", ex.execs)
	}
}

func TestPersistClassificationsIsolatesFailures(t *testing.T) {
	t.Parallel()

	ex := &fakeExecer{failFor: map[string]error{"5": context.DeadlineExceeded}}
	items := []classify.Classification{
		classification("4", []string{"NVDA"}, nil),
		classification("5", []string{"AMD"}, nil),
		classification("6", nil, nil),
	}

	saved, deleted := persistClassifications(context.Background(), ex, items, map[string]normalize.Tweet{}, "gpt-4o-mini", zerolog.Nop())
	if saved != 1 || deleted != 1 {
		t.Fatalf("expected saved=1 deleted=1, got saved=%d deleted=%d", saved, deleted)
	}
}

func TestUpsertStructuredPostEncodesLabels(t *testing.T) {
	t.Parallel()

	ex := &fakeExecer{}
	item := classification("7", []string{"NVDA"}, []string{"Information Technology"})
	tweet := normalize.Tweet{
		TweetID:    "7",
		Text:       "NVDA earnings",
		Timestamp:  "2025-05-01T10:00:00Z",
		URLs:       []string{"https://example.com"},
		SymbolsRaw: []string{"NVDA"},
	}

	if err := upsertStructuredPost(context.Background(), ex, item, tweet, "gpt-4o-mini"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	args := ex.execs[0].args

	// post_id, content, published_at, urls, symbols, categories,
	// sub_categories, tickers, sectors, model, now
	if args[1] != "NVDA earnings" {
		t.Fatalf("unexpected content arg: %v", args[1])
	}
	if args[2] == nil {
		t.Fatalf("expected published_at to be parsed")
	}
	if args[5] != `["Company"]` {
		t.Fatalf("unexpected categories json: %v", args[5])
	}
	if args[6] != `{"Company":["Earnings"]}` {
		t.Fatalf("unexpected sub_categories json: %v", args[6])
	}
	if args[9] != "gpt-4o-mini" {
		t.Fatalf("unexpected model arg: %v", args[9])
	}
}

func TestUpsertStructuredPostMissingTweetStillWrites(t *testing.T) {
	t.Parallel()

	// A classification can come back for a tweet the normalizer did not
	// return (deleted between steps); the labels are still written.
	ex := &fakeExecer{}
	item := classification("8", []string{"SPY"}, nil)

	if err := upsertStructuredPost(context.Background(), ex, item, normalize.Tweet{}, "gpt-4o-mini"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	args := ex.execs[0].args
	if args[1] != "" {
		t.Fatalf("expected empty content, got %v", args[1])
	}
	if publishedAt, ok := args[2].(*time.Time); !ok || publishedAt != nil {
		t.Fatalf("expected nil published_at, got %v", args[2])
	}
	if args[3] != `[]` || args[4] != `[]` {
		t.Fatalf("expected empty json arrays, got urls=%v symbols=%v", args[3], args[4])
	}
}
