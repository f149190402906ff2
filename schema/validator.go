// Package resultschema validates the raw JSON a classification model
// returns before any taxonomy filtering happens. The schema is
// intentionally lenient about values: it pins the container shapes
// (arrays of strings, string-keyed map of string arrays) so that a
// malformed response fails early instead of producing garbage labels.
package resultschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed classification_result.schema.json
var classificationResultSchemaJSON string

// ClassificationResult mirrors the JSON object the model is prompted to
// return. Unknown extra fields are ignored.
type ClassificationResult struct {
	Categories    []string            `json:"categories"`
	SubCategories map[string][]string `json:"sub_categories"`
	Tickers       []string            `json:"tickers"`
	Sectors       []string            `json:"sectors"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidateClassificationResult checks raw model output against the result
// schema and decodes it. It does not consult the taxonomy.
func ValidateClassificationResult(payload json.RawMessage) (*ClassificationResult, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode result JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize result JSON: %w", err)
	}

	var result ClassificationResult
	if err := json.Unmarshal(normalized, &result); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}

	return &result, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020

		if err := compiler.AddResource("classification_result.schema.json", strings.NewReader(classificationResultSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("classification_result.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("result is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("result contains trailing content")
	}

	return value, nil
}
