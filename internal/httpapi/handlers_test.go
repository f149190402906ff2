package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/finsift/finsift/internal/classify"
	"github.com/finsift/finsift/internal/config"
	"github.com/finsift/finsift/internal/normalize"
	"github.com/finsift/finsift/internal/pipeline"
)

// newTestServer wires a server with no database and no OpenAI credential.
// Handlers that validate input or bail on the missing credential never
// reach either.
func newTestServer() *Server {
	logger := zerolog.Nop()
	cfg := &config.Config{ClassificationModel: "gpt-4o-mini", ClassifyConcurrency: 5}
	classifier := classify.NewService(cfg, logger)
	normalizer := normalize.NewService(nil, logger)
	pipelineSvc := pipeline.NewService(nil, normalizer, classifier, logger)
	return NewServer(nil, pipelineSvc, nil, logger, Options{})
}

func doRequest(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, jsendResponse) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.buildEcho().ServeHTTP(rec, req)

	var envelope jsendResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("response is not valid jsend JSON: %v (%s)", err, rec.Body.String())
	}
	return rec, envelope
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	rec, envelope := doRequest(t, newTestServer(), http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if envelope.Status != "success" {
		t.Fatalf("expected success envelope, got %+v", envelope)
	}
}

func TestClassifyRejectsInvalidBody(t *testing.T) {
	t.Parallel()

	rec, envelope := doRequest(t, newTestServer(), http.MethodPost, "/api/v1/tweets/classify", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if envelope.Status != "fail" {
		t.Fatalf("expected fail envelope, got %+v", envelope)
	}
}

func TestClassifyRejectsEmptyTweetIDs(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
	}{
		{name: "missing field", body: `{}`},
		{name: "empty list", body: `{"tweet_ids": []}`},
		{name: "blank ids", body: `{"tweet_ids": ["", "   "]}`},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec, envelope := doRequest(t, newTestServer(), http.MethodPost, "/api/v1/tweets/classify", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
			}
			if envelope.Status != "fail" {
				t.Fatalf("expected fail envelope, got %+v", envelope)
			}
		})
	}
}

func TestClassifyRequestBindsPromptField(t *testing.T) {
	t.Parallel()

	var req classifyTweetsRequest
	if err := json.Unmarshal([]byte(`{"tweet_ids": ["1"], "prompt": "Classify {text}"}`), &req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.CustomPrompt != "Classify {text}" {
		t.Fatalf("expected prompt field to bind, got %q", req.CustomPrompt)
	}
}

func TestClassifyUnconfiguredLLMReturns503(t *testing.T) {
	t.Parallel()

	rec, envelope := doRequest(t, newTestServer(), http.MethodPost, "/api/v1/tweets/classify", `{"tweet_ids": ["1"]}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d (%s)", rec.Code, rec.Body.String())
	}
	if envelope.Status != "fail" || !strings.Contains(envelope.Message, "not configured") {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}
}

func TestPreviewPromptRejectsEmptyTweetIDs(t *testing.T) {
	t.Parallel()

	rec, _ := doRequest(t, newTestServer(), http.MethodPost, "/api/v1/tweets/preview-prompt", `{"tweet_ids": []}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestIngestionJobRejectsMissingFields(t *testing.T) {
	t.Parallel()

	rec, envelope := doRequest(t, newTestServer(), http.MethodPost, "/api/v1/ingestion/jobs", `{"download_url": " "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	data, ok := envelope.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected validation data, got %+v", envelope)
	}
	fieldErrors, ok := data["validation_errors"].(map[string]any)
	if !ok {
		t.Fatalf("expected validation_errors, got %+v", data)
	}
	for _, field := range []string{"download_url", "schedule_id", "run_id"} {
		if _, present := fieldErrors[field]; !present {
			t.Fatalf("expected error for %s, got %+v", field, fieldErrors)
		}
	}
}

func TestUnknownRouteReturnsJSENDFail(t *testing.T) {
	t.Parallel()

	rec, envelope := doRequest(t, newTestServer(), http.MethodGet, "/api/v1/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if envelope.Status != "fail" {
		t.Fatalf("expected fail envelope, got %+v", envelope)
	}
}
