package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsefeed/internal/ai"
	"pulsefeed/internal/cache"
	"pulsefeed/internal/logger"
	"pulsefeed/internal/model"
	"pulsefeed/internal/provider"
	"pulsefeed/internal/resilience"
	"pulsefeed/internal/scoring"
)

type fakeAdapter struct {
	name   string
	source model.Source

	mu    sync.Mutex
	raws  []provider.RawMessage
	err   error
	calls int
}

func (f *fakeAdapter) Name() string         { return f.name }
func (f *fakeAdapter) Source() model.Source { return f.source }

func (f *fakeAdapter) Fetch(_ context.Context, _ string, _ int) ([]provider.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.raws, nil
}

type fakeResolver struct {
	tokens map[string]string // provider -> token
}

func (f *fakeResolver) ValidCredential(_ context.Context, _, providerName string) (string, error) {
	token, ok := f.tokens[providerName]
	if !ok {
		return "", &model.CredentialError{Provider: providerName, Reason: "not connected"}
	}
	return token, nil
}

func (f *fakeResolver) Connections(_ context.Context, _ string) map[string]bool {
	out := make(map[string]bool)
	for name := range f.tokens {
		out[name] = true
	}
	return out
}

func newTestService(t *testing.T, adapters []provider.Adapter, resolver *fakeResolver, analyzer ai.Analyzer) (FeedService, *cache.Manager) {
	t.Helper()
	log := logger.New("test")

	manager := cache.NewManager(cache.DefaultTTLs(), log)
	breakers := resilience.NewBreakerRegistry(log)
	for _, adapter := range adapters {
		breakers.Register(adapter.Name(), resilience.DefaultBreakerConfig())
	}
	breakers.Register("analysis", resilience.BreakerConfig{FailureThreshold: 3, RecoveryTimeout: time.Minute})

	retryCfg := resilience.RetryConfig{
		MaxAttempts:       2,
		BaseDelay:         time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffFactor:     2,
		Jitter:            0.3,
		PerAttemptTimeout: time.Second,
	}

	scorer := scoring.New(log)
	svc := NewFeedService(adapters, resolver, analyzer, scorer, manager, breakers, retryCfg, 7, log)
	return svc, manager
}

func TestUnifiedFeedMergesAndDeduplicates(t *testing.T) {
	now := time.Now()
	mailAdapter := &fakeAdapter{name: "gmail", source: model.SourceMail, raws: []provider.RawMessage{
		{ProviderID: "m1", Subject: "URGENT: deadline today", Sender: "peer", Timestamp: now},
		{ProviderID: "m1", Subject: "URGENT: deadline today", Sender: "peer", Timestamp: now}, // duplicate
	}}
	chatAdapter := &fakeAdapter{name: "slack", source: model.SourceChat, raws: []provider.RawMessage{
		{ProviderID: "C1:1.0", Sender: "bob", Snippet: "lunch?", Timestamp: now},
	}}
	resolver := &fakeResolver{tokens: map[string]string{"gmail": "t1", "slack": "t2"}}

	svc, _ := newTestService(t, []provider.Adapter{mailAdapter, chatAdapter}, resolver, nil)

	result, err := svc.UnifiedFeed(context.Background(), "u1")

	require.NoError(t, err)
	assert.False(t, result.CacheHit)
	require.Len(t, result.Messages, 2)
	assert.True(t, result.Connections["gmail"])
	assert.True(t, result.Connections["slack"])
	// Urgent mail outranks the chat question.
	assert.Equal(t, "mail:m1", result.Messages[0].ID)
	assert.Equal(t, "chat:C1:1.0", result.Messages[1].ID)
	assert.Equal(t, 2, result.Stats.Total)
	assert.Equal(t, 1, result.Stats.BySource[model.SourceMail])
}

func TestUnifiedFeedServesFromCache(t *testing.T) {
	mailAdapter := &fakeAdapter{name: "gmail", source: model.SourceMail, raws: []provider.RawMessage{
		{ProviderID: "m1", Subject: "hello", Sender: "peer", Timestamp: time.Now()},
	}}
	resolver := &fakeResolver{tokens: map[string]string{"gmail": "t1"}}

	svc, _ := newTestService(t, []provider.Adapter{mailAdapter}, resolver, nil)

	first, err := svc.UnifiedFeed(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := svc.UnifiedFeed(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, 1, mailAdapter.calls)
}

func TestRefreshFeedBypassesCache(t *testing.T) {
	mailAdapter := &fakeAdapter{name: "gmail", source: model.SourceMail, raws: []provider.RawMessage{
		{ProviderID: "m1", Subject: "hello", Sender: "peer", Timestamp: time.Now()},
	}}
	resolver := &fakeResolver{tokens: map[string]string{"gmail": "t1"}}

	svc, _ := newTestService(t, []provider.Adapter{mailAdapter}, resolver, nil)

	_, err := svc.UnifiedFeed(context.Background(), "u1")
	require.NoError(t, err)
	_, err = svc.RefreshFeed(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, 2, mailAdapter.calls)
}

func TestProviderFailureDegradesConnection(t *testing.T) {
	mailAdapter := &fakeAdapter{name: "gmail", source: model.SourceMail, raws: []provider.RawMessage{
		{ProviderID: "m1", Subject: "hello", Sender: "peer", Timestamp: time.Now()},
	}}
	chatAdapter := &fakeAdapter{
		name:   "slack",
		source: model.SourceChat,
		err:    provider.NewError("slack", provider.Unavailable, errors.New("down")),
	}
	resolver := &fakeResolver{tokens: map[string]string{"gmail": "t1", "slack": "t2"}}

	svc, _ := newTestService(t, []provider.Adapter{mailAdapter, chatAdapter}, resolver, nil)

	result, err := svc.UnifiedFeed(context.Background(), "u1")

	require.NoError(t, err)
	require.Len(t, result.Messages, 1)
	assert.True(t, result.Connections["gmail"])
	assert.False(t, result.Connections["slack"])
	// Retried before giving up.
	assert.Equal(t, 2, chatAdapter.calls)
}

func TestDisconnectedProviderIsSkipped(t *testing.T) {
	mailAdapter := &fakeAdapter{name: "gmail", source: model.SourceMail}
	resolver := &fakeResolver{tokens: map[string]string{}} // nothing connected

	svc, _ := newTestService(t, []provider.Adapter{mailAdapter}, resolver, nil)

	result, err := svc.UnifiedFeed(context.Background(), "u1")

	require.NoError(t, err)
	assert.Empty(t, result.Messages)
	assert.False(t, result.Connections["gmail"])
	assert.Equal(t, 0, mailAdapter.calls)
}

func TestInvalidAnalysisExcludesMessage(t *testing.T) {
	now := time.Now()
	mailAdapter := &fakeAdapter{name: "gmail", source: model.SourceMail, raws: []provider.RawMessage{
		{ProviderID: "good", Subject: "hello", Sender: "peer", Timestamp: now},
		{ProviderID: "bad", Subject: "world", Sender: "peer", Timestamp: now},
	}}
	resolver := &fakeResolver{tokens: map[string]string{"gmail": "t1"}}

	analyzer := ai.NewMockAnalyzer()
	analyzer.Results["mail:good"] = &model.AnalysisResult{
		MessageID:     "mail:good",
		PriorityScore: 8.0,
		Tier:          model.TierSilver,
		Category:      model.CategoryImportant,
		Sentiment:     model.SentimentNeutral,
		Confidence:    0.8,
	}
	analyzer.Errs["mail:bad"] = &model.AnalysisValidationError{
		MessageID: "mail:bad",
		Field:     "priority_score",
		Reason:    "missing",
	}

	svc, _ := newTestService(t, []provider.Adapter{mailAdapter}, resolver, analyzer)

	result, err := svc.UnifiedFeed(context.Background(), "u1")

	require.NoError(t, err)
	require.Len(t, result.Messages, 1)
	assert.Equal(t, "mail:good", result.Messages[0].ID)
	require.NotNil(t, result.Messages[0].Analysis)
	assert.Equal(t, 8.0, result.Messages[0].Analysis.PriorityScore)
}

func TestAnalysisResultsAreCached(t *testing.T) {
	now := time.Now()
	mailAdapter := &fakeAdapter{name: "gmail", source: model.SourceMail, raws: []provider.RawMessage{
		{ProviderID: "m1", Subject: "hello", Sender: "peer", Timestamp: now},
	}}
	resolver := &fakeResolver{tokens: map[string]string{"gmail": "t1"}}

	analyzer := ai.NewMockAnalyzer()
	analyzer.Results["mail:m1"] = &model.AnalysisResult{
		MessageID:     "mail:m1",
		PriorityScore: 6.0,
		Tier:          model.TierBronze,
		Category:      model.CategoryFYI,
		Sentiment:     model.SentimentNeutral,
		Confidence:    0.7,
	}

	svc, _ := newTestService(t, []provider.Adapter{mailAdapter}, resolver, analyzer)

	_, err := svc.RefreshFeed(context.Background(), "u1")
	require.NoError(t, err)
	_, err = svc.RefreshFeed(context.Background(), "u1")
	require.NoError(t, err)

	// Second refresh reuses the cached analysis.
	assert.Len(t, analyzer.Calls, 1)
}

func TestTransientAnalysisFailureFallsBackToHeuristic(t *testing.T) {
	now := time.Now()
	mailAdapter := &fakeAdapter{name: "gmail", source: model.SourceMail, raws: []provider.RawMessage{
		{ProviderID: "m1", Subject: "URGENT: deadline", Sender: "peer", Timestamp: now},
	}}
	resolver := &fakeResolver{tokens: map[string]string{"gmail": "t1"}}

	analyzer := ai.NewMockAnalyzer()
	analyzer.Errs["mail:m1"] = errors.New("analysis service down")

	svc, _ := newTestService(t, []provider.Adapter{mailAdapter}, resolver, analyzer)

	result, err := svc.UnifiedFeed(context.Background(), "u1")

	require.NoError(t, err)
	require.Len(t, result.Messages, 1)
	assert.Nil(t, result.Messages[0].Analysis)
	assert.Equal(t, model.PriorityUrgent, result.Messages[0].Priority)
	assert.Greater(t, result.Messages[0].Score, 7.0)
}
