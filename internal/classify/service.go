// Package classify sends normalized tweets to an OpenAI chat model and
// turns the responses into taxonomy-filtered classifications.
package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/semaphore"

	"github.com/finsift/finsift/internal/config"
	"github.com/finsift/finsift/internal/normalize"
)

// ErrNotConfigured is returned when classification is requested but no
// OpenAI credential was provided.
var ErrNotConfigured = errors.New("openai client is not configured")

type Service struct {
	client      *openai.Client
	model       string
	concurrency int64
	logger      zerolog.Logger
}

func NewService(cfg *config.Config, logger zerolog.Logger) *Service {
	s := &Service{
		model:       cfg.ClassificationModel,
		concurrency: int64(max(1, cfg.ClassifyConcurrency)),
		logger:      logger.With().Str("component", "classify").Logger(),
	}
	if cfg.LLMConfigured() {
		s.client = openai.NewClient(strings.TrimSpace(cfg.OpenAIAPIKey))
	}
	return s
}

func (s *Service) Configured() bool {
	return s != nil && s.client != nil
}

func (s *Service) Model() string {
	if s == nil {
		return ""
	}
	return s.model
}

// ClassifyTweets classifies the given tweets concurrently, bounded by the
// configured concurrency. One tweet failing (API error, unparseable
// response) never affects its siblings; failed tweets are simply absent
// from the result. Input order is preserved for the tweets that succeed.
func (s *Service) ClassifyTweets(ctx context.Context, tweets []normalize.Tweet, customPrompt string) ([]Classification, error) {
	if !s.Configured() {
		s.logger.Error().Msg("openai client is not configured")
		return nil, ErrNotConfigured
	}
	if len(tweets) == 0 {
		return []Classification{}, nil
	}

	sem := semaphore.NewWeighted(s.concurrency)
	results := make([]*Classification, len(tweets))

	var wg sync.WaitGroup
	for i, tweet := range tweets {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("acquire classification slot: %w", err)
		}

		wg.Add(1)
		go func(idx int, tweet normalize.Tweet) {
			defer wg.Done()
			defer sem.Release(1)

			classification, ok := s.classifySingle(ctx, tweet, customPrompt)
			if ok {
				results[idx] = &classification
			}
		}(i, tweet)
	}
	wg.Wait()

	classifications := make([]Classification, 0, len(tweets))
	for _, result := range results {
		if result != nil {
			classifications = append(classifications, *result)
		}
	}
	return classifications, nil
}

func (s *Service) classifySingle(ctx context.Context, tweet normalize.Tweet, customPrompt string) (Classification, bool) {
	var prompt string
	if strings.TrimSpace(customPrompt) != "" {
		prompt = BuildCustomPrompt(tweet, customPrompt, s.logger)
	} else {
		prompt = BuildPrompt(tweet)
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemMessage},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: Temperature,
		MaxTokens:   MaxTokens,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 429 {
			s.logger.Error().Str("tweet_id", tweet.TweetID).Err(err).Msg("openai rate limit error")
		} else {
			s.logger.Error().Str("tweet_id", tweet.TweetID).Err(err).Msg("openai classification error")
		}
		return Classification{}, false
	}
	if len(resp.Choices) == 0 {
		s.logger.Error().Str("tweet_id", tweet.TweetID).Msg("openai response has no choices")
		return Classification{}, false
	}

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonLength {
		s.logger.Warn().
			Str("tweet_id", tweet.TweetID).
			Msg("response truncated at max tokens")
	}

	return ParseResponse(tweet.TweetID, choice.Message.Content, s.logger)
}

// PromptPreview describes the exact request a tweet would produce, without
// calling the model.
type PromptPreview struct {
	TweetID       string  `json:"tweet_id"`
	SystemMessage string  `json:"system_message"`
	UserPrompt    string  `json:"user_prompt"`
	Model         string  `json:"model"`
	Temperature   float32 `json:"temperature"`
	MaxTokens     int     `json:"max_tokens"`
}

// PreviewPrompt renders the default prompt for a tweet. Works whether or
// not a client is configured.
func (s *Service) PreviewPrompt(tweet normalize.Tweet) PromptPreview {
	return PromptPreview{
		TweetID:       tweet.TweetID,
		SystemMessage: SystemMessage,
		UserPrompt:    BuildPrompt(tweet),
		Model:         s.Model(),
		Temperature:   Temperature,
		MaxTokens:     MaxTokens,
	}
}
