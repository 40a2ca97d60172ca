package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsefeed/internal/logger"
	"pulsefeed/internal/model"
)

func floatPtr(v float64) *float64 { return &v }

func TestBuildResultValid(t *testing.T) {
	result, err := BuildResult("mail:1", analysisPayload{
		PriorityScore: floatPtr(8.4),
		Category:      "important",
		Summary:       "budget approval needed",
		KeyPoints:     []string{"Q3 budget"},
		Sentiment:     "negative",
		Confidence:    floatPtr(0.914),
	})

	require.NoError(t, err)
	assert.Equal(t, 8.4, result.PriorityScore)
	assert.Equal(t, model.TierSilver, result.Tier)
	assert.Equal(t, model.CategoryImportant, result.Category)
	assert.Equal(t, model.SentimentNegative, result.Sentiment)
	assert.Equal(t, 0.91, result.Confidence)
}

func TestBuildResultRejectsMissingScore(t *testing.T) {
	_, err := BuildResult("mail:1", analysisPayload{Category: "fyi"})

	var verr *model.AnalysisValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "priority_score", verr.Field)
}

func TestBuildResultRejectsOutOfRangeScore(t *testing.T) {
	_, err := BuildResult("mail:1", analysisPayload{
		PriorityScore: floatPtr(10.5),
		Category:      "urgent",
	})

	var verr *model.AnalysisValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "priority_score", verr.Field)

	_, err = BuildResult("mail:1", analysisPayload{
		PriorityScore: floatPtr(-0.1),
		Category:      "urgent",
	})
	require.ErrorAs(t, err, &verr)
}

func TestBuildResultRejectsUnknownCategory(t *testing.T) {
	_, err := BuildResult("mail:1", analysisPayload{
		PriorityScore: floatPtr(5),
		Category:      "banana",
	})

	var verr *model.AnalysisValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "category", verr.Field)
}

func TestBuildResultDefaultsOptionalFields(t *testing.T) {
	result, err := BuildResult("mail:1", analysisPayload{
		PriorityScore: floatPtr(5),
		Category:      "fyi",
		Sentiment:     "confused", // unknown, defaulted
	})

	require.NoError(t, err)
	assert.Equal(t, model.SentimentNeutral, result.Sentiment)
	assert.Equal(t, 0.5, result.Confidence)

	result, err = BuildResult("mail:1", analysisPayload{
		PriorityScore: floatPtr(5),
		Category:      "fyi",
		Confidence:    floatPtr(1.7), // out of range, defaulted
	})
	require.NoError(t, err)
	assert.Equal(t, 0.5, result.Confidence)
}

func TestAnalyzeAgainstCompletionAPI(t *testing.T) {
	payload := `{"priority_score": 7.2, "category": "follow_up", "summary": "ok", "sentiment": "positive", "confidence": 0.8}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "```json\n" + payload + "\n```"}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient(ProviderOpenAI, "test-key", server.URL, logger.New("test"))

	result, err := client.Analyze(context.Background(), model.UnifiedMessage{
		ID:      "mail:42",
		Subject: "follow up",
		Sender:  "alice",
	})

	require.NoError(t, err)
	assert.Equal(t, "mail:42", result.MessageID)
	assert.Equal(t, 7.2, result.PriorityScore)
	assert.Equal(t, model.TierSilver, result.Tier)
	assert.Equal(t, model.CategoryFollowUp, result.Category)
}

func TestAnalyzeRejectsNonJSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "sorry, I cannot help"}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient(ProviderOpenAI, "test-key", server.URL, logger.New("test"))

	_, err := client.Analyze(context.Background(), model.UnifiedMessage{ID: "mail:42"})

	var verr *model.AnalysisValidationError
	require.ErrorAs(t, err, &verr)
}
