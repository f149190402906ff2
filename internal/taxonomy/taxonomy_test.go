package taxonomy

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestFilterCategoriesDropsUnknownAndBlank(t *testing.T) {
	t.Parallel()

	got := FilterCategories([]string{
		"Company",
		"  Macro & Economy  ",
		"Made Up Category",
		"",
		"company",
	})

	want := []string{"Company", "Macro & Economy"}
	if len(got) != len(want) {
		t.Fatalf("expected %d categories, got %d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("category %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestFilterSubCategoriesDropsEmptyGroups(t *testing.T) {
	t.Parallel()

	got := FilterSubCategories(map[string][]string{
		"Company":         {"Earnings", "Not A Sub"},
		"Macro & Economy": {"Not A Sub Either"},
		"Unknown":         {"Earnings"},
	})

	if len(got) != 1 {
		t.Fatalf("expected 1 category group, got %d (%v)", len(got), got)
	}
	subs, ok := got["Company"]
	if !ok {
		t.Fatalf("expected Company group to survive, got %v", got)
	}
	if len(subs) != 1 || subs[0] != "Earnings" {
		t.Fatalf("expected [Earnings], got %v", subs)
	}
}

func TestFilterSubCategoriesRejectsCrossCategorySubs(t *testing.T) {
	t.Parallel()

	// Crypto belongs to Commodities, FX & Crypto, not Company.
	got := FilterSubCategories(map[string][]string{
		"Company": {"Crypto"},
	})
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
}

func TestFilterSectorsIsExactMatch(t *testing.T) {
	t.Parallel()

	got := FilterSectors([]string{
		"Information Technology",
		"information technology",
		"Tech",
		" Energy ",
	})

	want := []string{"Information Technology", "Energy"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sector %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestNormalizeTickersUppercases(t *testing.T) {
	t.Parallel()

	got := NormalizeTickers([]string{" nvda ", "AMD", "", "  "})
	want := []string{"NVDA", "AMD"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ticker %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestPromptJSONIsValidAndOrdered(t *testing.T) {
	t.Parallel()

	rendered := PromptJSON()

	var decoded map[string][]string
	if err := json.Unmarshal([]byte(rendered), &decoded); err != nil {
		t.Fatalf("prompt taxonomy is not valid JSON: %v", err)
	}
	if len(decoded) != len(Categories) {
		t.Fatalf("expected %d categories in prompt JSON, got %d", len(Categories), len(decoded))
	}
	for _, category := range Categories {
		subs, ok := decoded[category.Name]
		if !ok {
			t.Fatalf("category %q missing from prompt JSON", category.Name)
		}
		if len(subs) != len(category.SubCategories) {
			t.Fatalf("category %q: expected %d sub-categories, got %d", category.Name, len(category.SubCategories), len(subs))
		}
	}

	// Declaration order must survive rendering.
	first := strings.Index(rendered, `"Company"`)
	last := strings.Index(rendered, `"Data & Sentiment"`)
	if first == -1 || last == -1 || first > last {
		t.Fatalf("categories rendered out of declaration order")
	}
}

func TestPromptSectorList(t *testing.T) {
	t.Parallel()

	list := PromptSectorList()
	lines := strings.Split(list, "\n")
	if len(lines) != len(Sectors) {
		t.Fatalf("expected %d sector lines, got %d", len(Sectors), len(lines))
	}
	if lines[0] != "- Information Technology" {
		t.Fatalf("unexpected first sector line: %q", lines[0])
	}
}
