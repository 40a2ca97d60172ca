package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"pulsefeed/internal/logger"
	"pulsefeed/internal/model"
)

// Analyzer produces an AI analysis for one message.
type Analyzer interface {
	Analyze(ctx context.Context, msg model.UnifiedMessage) (*model.AnalysisResult, error)
}

const (
	ProviderOpenAI   = "openai"
	ProviderDeepSeek = "deepseek"
)

type aiClient struct {
	provider   string
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates an analyzer backed by an OpenAI-compatible chat API.
// baseURL overrides the provider default when non-empty (used by tests).
func NewClient(provider, apiKey, baseURL string, log *logger.Logger) Analyzer {
	if baseURL == "" {
		baseURL = defaultBaseURL(provider)
	}
	return &aiClient{
		provider:   provider,
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log.With("component", "analyzer"),
	}
}

func defaultBaseURL(provider string) string {
	switch provider {
	case ProviderDeepSeek:
		return "https://api.deepseek.com"
	default:
		return "https://api.openai.com/v1"
	}
}

func defaultModel(provider string) string {
	switch provider {
	case ProviderDeepSeek:
		return "deepseek-chat"
	default:
		return "gpt-4o-mini"
	}
}

type chatCompletionRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// analysisPayload is the JSON shape the model is asked to return.
// Pointer fields distinguish "absent" from zero values during validation.
type analysisPayload struct {
	PriorityScore    *float64 `json:"priority_score"`
	Category         string   `json:"category"`
	Summary          string   `json:"summary"`
	KeyPoints        []string `json:"key_points"`
	SuggestedActions []string `json:"suggested_actions"`
	Sentiment        string   `json:"sentiment"`
	Confidence       *float64 `json:"confidence"`
}

const analysisPrompt = `Analyze the following message for a priority inbox. Respond with JSON only, no prose, using this schema:
{"priority_score": <0-10 float>, "category": "urgent"|"important"|"follow_up"|"fyi"|"spam", "summary": "<one sentence>", "key_points": [...], "suggested_actions": [...], "sentiment": "positive"|"neutral"|"negative", "confidence": <0-1 float>}

From: %s
Subject: %s
Body:
%s`

func (a *aiClient) Analyze(ctx context.Context, msg model.UnifiedMessage) (*model.AnalysisResult, error) {
	prompt := fmt.Sprintf(analysisPrompt, msg.Sender, msg.Subject, truncate(msg.Snippet, 4000))

	content, err := a.complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze message %s: %w", msg.ID, err)
	}

	var payload analysisPayload
	if err := json.Unmarshal([]byte(extractJSON(content)), &payload); err != nil {
		return nil, &model.AnalysisValidationError{MessageID: msg.ID, Field: "body", Reason: "response is not valid JSON"}
	}

	return BuildResult(msg.ID, payload)
}

// BuildResult validates a raw analysis payload into an AnalysisResult.
// priority_score and category are mandatory; an out-of-range score or an
// unknown category rejects the whole analysis. sentiment and confidence
// are optional and defaulted when absent or malformed.
func BuildResult(messageID string, payload analysisPayload) (*model.AnalysisResult, error) {
	if payload.PriorityScore == nil {
		return nil, &model.AnalysisValidationError{MessageID: messageID, Field: "priority_score", Reason: "missing"}
	}
	score := *payload.PriorityScore
	if score < 0 || score > 10 {
		return nil, &model.AnalysisValidationError{
			MessageID: messageID,
			Field:     "priority_score",
			Reason:    fmt.Sprintf("%.2f outside [0,10]", score),
		}
	}

	category := model.Category(payload.Category)
	if !category.IsValid() {
		return nil, &model.AnalysisValidationError{
			MessageID: messageID,
			Field:     "category",
			Reason:    fmt.Sprintf("unknown category %q", payload.Category),
		}
	}

	sentiment := model.Sentiment(payload.Sentiment)
	if !sentiment.IsValid() {
		sentiment = model.SentimentNeutral
	}

	confidence := 0.5
	if payload.Confidence != nil && *payload.Confidence >= 0 && *payload.Confidence <= 1 {
		confidence = *payload.Confidence
	}

	return &model.AnalysisResult{
		MessageID:        messageID,
		PriorityScore:    score,
		Tier:             model.TierForScore(score),
		Category:         category,
		Summary:          payload.Summary,
		KeyPoints:        payload.KeyPoints,
		SuggestedActions: payload.SuggestedActions,
		Sentiment:        sentiment,
		Confidence:       math.Round(confidence*100) / 100,
		CreatedAt:        time.Now().UTC(),
	}, nil
}

func (a *aiClient) complete(ctx context.Context, prompt string) (string, error) {
	reqBody := chatCompletionRequest{
		Model: defaultModel(a.provider),
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		MaxTokens: 600,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("analysis API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var completion chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", fmt.Errorf("failed to decode completion response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("completion response has no choices")
	}
	return completion.Choices[0].Message.Content, nil
}

// extractJSON strips markdown code fences some models wrap around JSON.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}
	return content
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
