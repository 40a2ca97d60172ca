package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsefeed/internal/cache"
	"pulsefeed/internal/logger"
	"pulsefeed/internal/model"
	"pulsefeed/internal/resilience"
	"pulsefeed/internal/stream"
)

type stubFeed struct {
	result *model.FeedResult
	err    error
}

func (s *stubFeed) UnifiedFeed(_ context.Context, _ string) (*model.FeedResult, error) {
	return s.result, s.err
}

func (s *stubFeed) RefreshFeed(_ context.Context, _ string) (*model.FeedResult, error) {
	return s.result, s.err
}

func feedResult() *model.FeedResult {
	messages := []model.ScoredMessage{
		{
			UnifiedMessage: model.UnifiedMessage{ID: "mail:1", Source: model.SourceMail, Subject: "hello"},
			Score:          7.5,
			Tier:           model.TierSilver,
		},
	}
	return &model.FeedResult{
		Messages:    messages,
		Stats:       model.NewFeedStats(messages),
		Connections: map[string]bool{"gmail": true},
		FetchedAt:   time.Now(),
	}
}

func newTestHandler(t *testing.T, feed *stubFeed, lifetime time.Duration) (*FeedHandler, *cache.Manager) {
	t.Helper()
	log := logger.New("test")
	manager := cache.NewManager(cache.DefaultTTLs(), log)
	breakers := resilience.NewBreakerRegistry(log)
	breakers.Register("gmail", resilience.DefaultBreakerConfig())
	coordinator := stream.NewCoordinator(feed, manager, time.Hour, lifetime, log)
	t.Cleanup(coordinator.Close)
	return NewFeedHandler(feed, coordinator, manager, breakers, log), manager
}

func TestGetFeedRequiresUserID(t *testing.T) {
	h, _ := newTestHandler(t, &stubFeed{result: feedResult()}, time.Hour)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/feed", nil)
	rec := httptest.NewRecorder()

	err := h.GetFeed(e.NewContext(req, rec))

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.Code)
}

func TestGetFeedReturnsScoredMessages(t *testing.T) {
	h, _ := newTestHandler(t, &stubFeed{result: feedResult()}, time.Hour)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/feed?user_id=u1", nil)
	rec := httptest.NewRecorder()

	require.NoError(t, h.GetFeed(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)

	var result model.FeedResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Messages, 1)
	assert.Equal(t, "mail:1", result.Messages[0].ID)
	assert.Equal(t, 7.5, result.Messages[0].Score)
	assert.True(t, result.Connections["gmail"])
}

func TestStreamFeedEmitsNDJSON(t *testing.T) {
	// A short lifetime ends the stream so the handler returns.
	h, _ := newTestHandler(t, &stubFeed{result: feedResult()}, 100*time.Millisecond)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/feed/stream?user_id=u1", nil)
	rec := httptest.NewRecorder()

	require.NoError(t, h.StreamFeed(e.NewContext(req, rec)))
	assert.Equal(t, "application/x-ndjson", rec.Header().Get(echo.HeaderContentType))

	scanner := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	var events []stream.Event
	for scanner.Scan() {
		var event stream.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &event))
		events = append(events, event)
	}

	require.GreaterOrEqual(t, len(events), 2)
	assert.Equal(t, stream.EventConnected, events[0].Type)
	assert.Equal(t, stream.EventUpdate, events[1].Type)
	assert.Equal(t, 1, events[1].NewCount)
}

func TestCacheReportCoversAllNamespaces(t *testing.T) {
	h, manager := newTestHandler(t, &stubFeed{result: feedResult()}, time.Hour)
	manager.Messages().Set("feed:u1", "v", 0)
	manager.Messages().Get("feed:u1")

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/cache/report", nil)
	rec := httptest.NewRecorder()

	require.NoError(t, h.CacheReport(e.NewContext(req, rec)))

	var report map[string]cache.NamespaceReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Len(t, report, 4)
	assert.Equal(t, 1, report[cache.NamespaceMessages].Entries)
	assert.Equal(t, 1.0, report[cache.NamespaceMessages].HitRate)
}

func TestInvalidateUserCache(t *testing.T) {
	h, manager := newTestHandler(t, &stubFeed{result: feedResult()}, time.Hour)
	manager.Messages().Set("feed:u1", "v", 0)
	manager.Priority().Set("analysis:u1:mail:1", "v", 0)
	manager.Messages().Set("feed:u2", "v", 0)

	e := echo.New()
	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/cache/users/:user_id")
	c.SetParamNames("user_id")
	c.SetParamValues("u1")

	require.NoError(t, h.InvalidateUserCache(c))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "u1", body["user_id"])
	assert.Equal(t, float64(2), body["deleted"])
	assert.True(t, manager.Messages().Has("feed:u2"))
}

func TestHealthReportsCircuits(t *testing.T) {
	h, _ := newTestHandler(t, &stubFeed{result: feedResult()}, time.Hour)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	require.NoError(t, h.Health(e.NewContext(req, rec)))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	circuits, ok := body["circuits"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "closed", circuits["gmail"])
}
