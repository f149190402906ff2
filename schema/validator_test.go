package resultschema

import (
	"encoding/json"
	"testing"
)

func TestValidateClassificationResultAccepted(t *testing.T) {
	t.Parallel()

	payload := json.RawMessage(`{
		"categories": ["Company"],
		"sub_categories": {"Company": ["Earnings", "Guidance"]},
		"tickers": ["NVDA"],
		"sectors": ["Information Technology"]
	}`)

	result, err := ValidateClassificationResult(payload)
	if err != nil {
		t.Fatalf("expected payload to validate, got error: %v", err)
	}
	if len(result.Categories) != 1 || result.Categories[0] != "Company" {
		t.Fatalf("unexpected categories: %v", result.Categories)
	}
	if len(result.SubCategories["Company"]) != 2 {
		t.Fatalf("unexpected sub_categories: %v", result.SubCategories)
	}
}

func TestValidateClassificationResultMissingFieldsOK(t *testing.T) {
	t.Parallel()

	// All fields are optional at the schema level; an empty object is a
	// valid (if useless) result.
	result, err := ValidateClassificationResult(json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("expected empty object to validate, got error: %v", err)
	}
	if result.Categories != nil || result.Tickers != nil {
		t.Fatalf("expected zero-value fields, got %+v", result)
	}
}

func TestValidateClassificationResultNullFieldsOK(t *testing.T) {
	t.Parallel()

	payload := json.RawMessage(`{"categories": null, "sub_categories": null, "tickers": null, "sectors": null}`)
	result, err := ValidateClassificationResult(payload)
	if err != nil {
		t.Fatalf("expected null fields to validate, got error: %v", err)
	}
	if result.Categories != nil || result.SubCategories != nil {
		t.Fatalf("expected null fields to decode as zero values, got %+v", result)
	}
}

func TestValidateClassificationResultExtraFieldsIgnored(t *testing.T) {
	t.Parallel()

	payload := json.RawMessage(`{"categories": [], "confidence": 0.92}`)
	if _, err := ValidateClassificationResult(payload); err != nil {
		t.Fatalf("expected extra fields to be ignored, got error: %v", err)
	}
}

func TestValidateClassificationResultRejected(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		payload string
	}{
		{name: "empty input", payload: ""},
		{name: "not json", payload: "certainly! here is the json"},
		{name: "top-level array", payload: `["Company"]`},
		{name: "categories not array", payload: `{"categories": "Company"}`},
		{name: "categories mixed types", payload: `{"categories": ["Company", 7]}`},
		{name: "sub_categories not object", payload: `{"sub_categories": ["Earnings"]}`},
		{name: "sub_categories value not array", payload: `{"sub_categories": {"Company": "Earnings"}}`},
		{name: "trailing content", payload: `{"categories": []} {"categories": []}`},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ValidateClassificationResult(json.RawMessage(tc.payload)); err == nil {
				t.Fatalf("expected %s to be rejected", tc.name)
			}
		})
	}
}
