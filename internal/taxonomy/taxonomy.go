// Package taxonomy holds the fixed classification taxonomy for financial
// tweets: top-level categories, their sub-categories, and the valid GICS
// sector names. Filtering is case-sensitive; labels the taxonomy does not
// know are dropped, never corrected.
package taxonomy

import (
	"strings"
)

type Category struct {
	Name          string
	SubCategories []string
}

// Categories is declaration-ordered. Prompt rendering depends on this order
// staying stable, so new entries go at the end of their group.
var Categories = []Category{
	{
		Name: "Company",
		SubCategories: []string{
			"Earnings",
			"Guidance",
			"Analysts Rating",
			"M&A",
			"Capital Actions",
			"Management & Board",
			"Product / Technology",
			"Partnership / Contracts",
			"Legal / Compliance",
			"Operations / KPIs",
		},
	},
	{
		Name: "Macro & Economy",
		SubCategories: []string{
			"Central Banks",
			"Inflation",
			"Labor",
			"Growth / Activity",
			"Fiscal / Policy",
			"Trade / Geopolitics",
			"Housing",
		},
	},
	{
		Name: "Market Structure & Flows",
		SubCategories: []string{
			"Options & Gamma",
			"CTA / Systematic",
			"ETF & Index",
			"Short Interest",
			"Dark Pools / Block Trades",
			"Fund Flows",
			"Insider Transactions",
		},
	},
	{
		Name: "Commodities, FX & Crypto",
		SubCategories: []string{
			"Oil & Gas",
			"Metals / Agriculture",
			"FX / Rates",
			"Crypto",
		},
	},
	{
		Name: "Technical & Market Dynamics",
		SubCategories: []string{
			"Breakouts / Levels",
			"Volatility",
			"Breadth / Momentum",
			"Seasonality / Patterns",
		},
	},
	{
		Name: "Data & Sentiment",
		SubCategories: []string{
			"Alt-Data",
			"Surveys / Sentiment",
			"Media / PR",
		},
	},
}

var Sectors = []string{
	"Information Technology",
	"Communication Services",
	"Consumer Discretionary",
	"Consumer Staples",
	"Financials",
	"Health Care",
	"Industrials",
	"Energy",
	"Materials",
	"Utilities",
	"Real Estate",
}

var (
	categoryIndex = buildCategoryIndex()
	sectorIndex   = buildSectorIndex()
)

func buildCategoryIndex() map[string]map[string]struct{} {
	index := make(map[string]map[string]struct{}, len(Categories))
	for _, category := range Categories {
		subs := make(map[string]struct{}, len(category.SubCategories))
		for _, sub := range category.SubCategories {
			subs[sub] = struct{}{}
		}
		index[category.Name] = subs
	}
	return index
}

func buildSectorIndex() map[string]struct{} {
	index := make(map[string]struct{}, len(Sectors))
	for _, sector := range Sectors {
		index[sector] = struct{}{}
	}
	return index
}

func IsCategory(name string) bool {
	_, ok := categoryIndex[name]
	return ok
}

func IsSubCategory(category, sub string) bool {
	subs, ok := categoryIndex[category]
	if !ok {
		return false
	}
	_, ok = subs[sub]
	return ok
}

func IsSector(name string) bool {
	_, ok := sectorIndex[name]
	return ok
}

// FilterCategories trims entries and keeps only known category names,
// preserving input order.
func FilterCategories(raw []string) []string {
	filtered := make([]string, 0, len(raw))
	for _, entry := range raw {
		name := strings.TrimSpace(entry)
		if name == "" || !IsCategory(name) {
			continue
		}
		filtered = append(filtered, name)
	}
	return filtered
}

// FilterSubCategories keeps only known category keys, and within each the
// sub-categories that belong to that category. Categories whose sub-category
// list filters down to empty are dropped entirely.
func FilterSubCategories(raw map[string][]string) map[string][]string {
	filtered := make(map[string][]string, len(raw))
	for category, subs := range raw {
		if !IsCategory(category) {
			continue
		}
		kept := make([]string, 0, len(subs))
		for _, entry := range subs {
			sub := strings.TrimSpace(entry)
			if sub == "" || !IsSubCategory(category, sub) {
				continue
			}
			kept = append(kept, sub)
		}
		if len(kept) > 0 {
			filtered[category] = kept
		}
	}
	return filtered
}

// FilterSectors keeps only exact matches against the sector list.
func FilterSectors(raw []string) []string {
	filtered := make([]string, 0, len(raw))
	for _, entry := range raw {
		name := strings.TrimSpace(entry)
		if name == "" || !IsSector(name) {
			continue
		}
		filtered = append(filtered, name)
	}
	return filtered
}

// NormalizeTickers trims and upper-cases ticker symbols, dropping blanks.
// Tickers are not validated against any universe.
func NormalizeTickers(raw []string) []string {
	normalized := make([]string, 0, len(raw))
	for _, entry := range raw {
		ticker := strings.ToUpper(strings.TrimSpace(entry))
		if ticker == "" {
			continue
		}
		normalized = append(normalized, ticker)
	}
	return normalized
}

// PromptJSON renders the taxonomy as a two-space indented JSON object in
// declaration order, matching what the classification prompt embeds.
func PromptJSON() string {
	var b strings.Builder
	b.WriteString("{\n")
	for i, category := range Categories {
		b.WriteString("  ")
		b.WriteString(quote(category.Name))
		b.WriteString(": [\n")
		for j, sub := range category.SubCategories {
			b.WriteString("    ")
			b.WriteString(quote(sub))
			if j < len(category.SubCategories)-1 {
				b.WriteString(",")
			}
			b.WriteString("\n")
		}
		b.WriteString("  ]")
		if i < len(Categories)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("}")
	return b.String()
}

// PromptSectorList renders the sectors as a dashed list for prompt use.
func PromptSectorList() string {
	lines := make([]string, 0, len(Sectors))
	for _, sector := range Sectors {
		lines = append(lines, "- "+sector)
	}
	return strings.Join(lines, "\n")
}

func quote(s string) string {
	// Taxonomy labels never contain characters that need JSON escaping.
	return `"` + s + `"`
}
