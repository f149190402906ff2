package httpapi

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/finsift/finsift/internal/classify"
	"github.com/finsift/finsift/internal/normalize"
)

type classifyTweetsRequest struct {
	TweetIDs     []string `json:"tweet_ids"`
	CustomPrompt string   `json:"prompt"`
}

type previewPromptRequest struct {
	TweetIDs []string `json:"tweet_ids"`
}

type ingestionJobRequest struct {
	DownloadURL string `json:"download_url"`
	ScheduleID  string `json:"schedule_id"`
	RunID       string `json:"run_id"`
}

func (s *Server) handleClassifyTweets(c echo.Context) error {
	var req classifyTweetsRequest
	if err := c.Bind(&req); err != nil {
		return failValidation(c, map[string]string{"body": "must be valid JSON"})
	}

	tweetIDs := cleanIDs(req.TweetIDs)
	if len(tweetIDs) == 0 {
		return failValidation(c, map[string]string{"tweet_ids": "must be a non-empty list"})
	}

	result, err := s.pipeline.ClassifyTweets(c.Request().Context(), tweetIDs, strings.TrimSpace(req.CustomPrompt))
	if err != nil {
		switch {
		case errors.Is(err, classify.ErrNotConfigured):
			return failUnavailable(c, "OpenAI client is not configured")
		case errors.Is(err, normalize.ErrValidation):
			return failValidation(c, map[string]string{"tweet_ids": err.Error()})
		default:
			s.logger.Error().Err(err).Msg("classify tweets failed")
			return internalError(c, "Classification failed")
		}
	}

	return success(c, result)
}

func (s *Server) handlePreviewPrompt(c echo.Context) error {
	var req previewPromptRequest
	if err := c.Bind(&req); err != nil {
		return failValidation(c, map[string]string{"body": "must be valid JSON"})
	}

	tweetIDs := cleanIDs(req.TweetIDs)
	if len(tweetIDs) == 0 {
		return failValidation(c, map[string]string{"tweet_ids": "must be a non-empty list"})
	}

	previews, err := s.pipeline.PreviewPrompts(c.Request().Context(), tweetIDs)
	if err != nil {
		if errors.Is(err, normalize.ErrValidation) {
			return failValidation(c, map[string]string{"tweet_ids": err.Error()})
		}
		s.logger.Error().Err(err).Msg("preview prompt failed")
		return internalError(c, "Failed to build prompt preview")
	}
	if len(previews) == 0 {
		return failNotFound(c, "No tweets found for the requested ids")
	}

	return success(c, map[string]any{
		"count": len(previews),
		"items": previews,
	})
}

func (s *Server) handleIngestionJob(c echo.Context) error {
	var req ingestionJobRequest
	if err := c.Bind(&req); err != nil {
		return failValidation(c, map[string]string{"body": "must be valid JSON"})
	}

	fieldErrors := map[string]string{}
	if strings.TrimSpace(req.DownloadURL) == "" {
		fieldErrors["download_url"] = "is required"
	}
	if strings.TrimSpace(req.ScheduleID) == "" {
		fieldErrors["schedule_id"] = "is required"
	}
	if strings.TrimSpace(req.RunID) == "" {
		fieldErrors["run_id"] = "is required"
	}
	if len(fieldErrors) > 0 {
		return failValidation(c, fieldErrors)
	}

	result, err := s.ingester.ProcessDownload(
		c.Request().Context(),
		strings.TrimSpace(req.DownloadURL),
		strings.TrimSpace(req.ScheduleID),
		strings.TrimSpace(req.RunID),
	)
	if err != nil {
		s.logger.Error().Err(err).Str("run_id", req.RunID).Msg("ingestion job failed")
		return internalError(c, "Failed to process download")
	}

	return success(c, result)
}

func cleanIDs(raw []string) []string {
	cleaned := make([]string, 0, len(raw))
	for _, id := range raw {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}
