package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"pulsefeed/internal/ai"
	"pulsefeed/internal/cache"
	"pulsefeed/internal/credentials"
	"pulsefeed/internal/logger"
	"pulsefeed/internal/metrics"
	"pulsefeed/internal/model"
	"pulsefeed/internal/normalize"
	"pulsefeed/internal/provider"
	"pulsefeed/internal/resilience"
	"pulsefeed/internal/scoring"
)

// providerFanout bounds concurrent provider fetches within one cycle.
const providerFanout = 5

type feedService struct {
	adapters   []provider.Adapter
	resolver   credentials.Resolver
	analyzer   ai.Analyzer // nil disables AI enrichment
	scorer     *scoring.Scorer
	cache      *cache.Manager
	breakers   *resilience.BreakerRegistry
	retryCfg   resilience.RetryConfig
	windowDays int
	logger     *logger.Logger
}

func NewFeedService(
	adapters []provider.Adapter,
	resolver credentials.Resolver,
	analyzer ai.Analyzer,
	scorer *scoring.Scorer,
	cacheManager *cache.Manager,
	breakers *resilience.BreakerRegistry,
	retryCfg resilience.RetryConfig,
	windowDays int,
	log *logger.Logger,
) FeedService {
	return &feedService{
		adapters:   adapters,
		resolver:   resolver,
		analyzer:   analyzer,
		scorer:     scorer,
		cache:      cacheManager,
		breakers:   breakers,
		retryCfg:   retryCfg,
		windowDays: windowDays,
		logger:     log.With("component", "feed"),
	}
}

func feedKey(userID string) string {
	return "feed:" + userID
}

func analysisKey(userID, messageID string) string {
	return "analysis:" + userID + ":" + messageID
}

func (s *feedService) UnifiedFeed(ctx context.Context, userID string) (*model.FeedResult, error) {
	if cached, ok := cache.GetAs[*model.FeedResult](s.cache.Messages(), feedKey(userID)); ok {
		result := *cached
		result.CacheHit = true
		// Connection status has its own, shorter-lived cache.
		result.Connections = s.resolver.Connections(ctx, userID)
		return &result, nil
	}
	return s.RefreshFeed(ctx, userID)
}

func (s *feedService) RefreshFeed(ctx context.Context, userID string) (*model.FeedResult, error) {
	connections := s.resolver.Connections(ctx, userID)
	messages := s.fetchAll(ctx, userID, connections)
	messages = normalize.Dedupe(messages)

	analyses := s.analyzeAll(ctx, userID, messages)
	messages = dropInvalid(messages, analyses)

	scored := s.scorer.ScoreBatch(ctx, messages, validAnalyses(analyses))

	result := &model.FeedResult{
		Messages:    scored,
		Stats:       model.NewFeedStats(scored),
		Connections: connections,
		FetchedAt:   time.Now().UTC(),
	}
	s.cache.Messages().Set(feedKey(userID), result, 0)
	return result, nil
}

// fetchAll fans out to every connected provider and joins the results.
// A provider failure degrades that provider to disconnected with zero
// messages; it never fails the whole feed.
func (s *feedService) fetchAll(ctx context.Context, userID string, connections map[string]bool) []model.UnifiedMessage {
	perAdapter := make([][]model.UnifiedMessage, len(s.adapters))
	var mu sync.Mutex

	// Snapshot which adapters run before any goroutine can mutate the
	// connections map.
	run := make([]bool, len(s.adapters))
	for i, adapter := range s.adapters {
		run[i] = connections[adapter.Name()]
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, providerFanout)
	for i, adapter := range s.adapters {
		if !run[i] {
			continue
		}
		i, adapter := i, adapter
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			raws, err := s.fetchProvider(ctx, userID, adapter)
			if err != nil {
				s.logger.Error("Provider fetch failed for user", userID, "provider", adapter.Name(), ":", err)
				metrics.ProviderFetchFailures.WithLabelValues(adapter.Name()).Inc()
				mu.Lock()
				connections[adapter.Name()] = false
				mu.Unlock()
				return
			}
			perAdapter[i] = normalize.Normalize(raws, adapter.Source())
		}()
	}
	wg.Wait()

	var all []model.UnifiedMessage
	for _, msgs := range perAdapter {
		all = append(all, msgs...)
	}
	return all
}

// fetchProvider wraps one provider fetch in the resilience layer:
// circuit breaker outside, retry-with-backoff inside.
func (s *feedService) fetchProvider(ctx context.Context, userID string, adapter provider.Adapter) ([]provider.RawMessage, error) {
	credential, err := s.resolver.ValidCredential(ctx, userID, adapter.Name())
	if err != nil {
		return nil, err
	}

	return resilience.Guard(s.breakers, adapter.Name(), func() ([]provider.RawMessage, error) {
		result := resilience.Execute(ctx, s.retryCfg, s.logger, adapter.Name(), nil,
			func(ctx context.Context) ([]provider.RawMessage, error) {
				return adapter.Fetch(ctx, credential, s.windowDays)
			})
		if result.Failed() {
			s.logger.Warnf("%s fetch gave up after %d attempts in %s", adapter.Name(), result.Attempts, result.Elapsed)
			return nil, result.Err
		}
		return result.Value, nil
	})
}

// analysisOutcome distinguishes "no analysis" (transient failure or
// analyzer disabled, message scored heuristically) from "invalid
// analysis" (message excluded from scored output).
type analysisOutcome struct {
	result  *model.AnalysisResult
	invalid bool
}

func (s *feedService) analyzeAll(ctx context.Context, userID string, messages []model.UnifiedMessage) map[string]analysisOutcome {
	outcomes := make(map[string]analysisOutcome, len(messages))
	if s.analyzer == nil {
		return outcomes
	}

	for _, msg := range messages {
		value, err := s.cache.Priority().GetOrSet(analysisKey(userID, msg.ID), func() (any, error) {
			return resilience.Guard(s.breakers, "analysis", func() (*model.AnalysisResult, error) {
				return s.analyzer.Analyze(ctx, msg)
			})
		}, 0)

		if err != nil {
			var verr *model.AnalysisValidationError
			if errors.As(err, &verr) {
				s.logger.Error("Excluding message with invalid analysis:", msg.ID, err)
				outcomes[msg.ID] = analysisOutcome{invalid: true}
				continue
			}
			// Transient analysis failure: fall back to the heuristic.
			s.logger.Warn("Analysis unavailable for message", msg.ID, ":", err)
			continue
		}
		if result, ok := value.(*model.AnalysisResult); ok && result != nil {
			outcomes[msg.ID] = analysisOutcome{result: result}
		}
	}
	return outcomes
}

func dropInvalid(messages []model.UnifiedMessage, outcomes map[string]analysisOutcome) []model.UnifiedMessage {
	kept := messages[:0:0]
	for _, msg := range messages {
		if outcomes[msg.ID].invalid {
			continue
		}
		kept = append(kept, msg)
	}
	return kept
}

func validAnalyses(outcomes map[string]analysisOutcome) map[string]*model.AnalysisResult {
	analyses := make(map[string]*model.AnalysisResult, len(outcomes))
	for id, outcome := range outcomes {
		if outcome.result != nil {
			analyses[id] = outcome.result
		}
	}
	return analyses
}
