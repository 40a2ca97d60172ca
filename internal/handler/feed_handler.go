package handler

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"pulsefeed/internal/cache"
	"pulsefeed/internal/logger"
	"pulsefeed/internal/resilience"
	"pulsefeed/internal/service"
	"pulsefeed/internal/stream"
)

// FeedHandler serves the unified feed, the streaming subscription, and
// the cache administration surface.
type FeedHandler struct {
	feedService service.FeedService
	coordinator *stream.Coordinator
	cache       *cache.Manager
	breakers    *resilience.BreakerRegistry
	logger      *logger.Logger
}

func NewFeedHandler(
	feedService service.FeedService,
	coordinator *stream.Coordinator,
	cacheManager *cache.Manager,
	breakers *resilience.BreakerRegistry,
	log *logger.Logger,
) *FeedHandler {
	return &FeedHandler{
		feedService: feedService,
		coordinator: coordinator,
		cache:       cacheManager,
		breakers:    breakers,
		logger:      log.With("component", "handler"),
	}
}

// GetFeed handles GET /api/feed?user_id=...
func (h *FeedHandler) GetFeed(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}

	result, err := h.feedService.UnifiedFeed(c.Request().Context(), userID)
	if err != nil {
		h.logger.Error("Failed to build unified feed for user", userID, ":", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to build feed")
	}
	return c.JSON(http.StatusOK, result)
}

// StreamFeed handles GET /api/feed/stream?user_id=... It emits
// newline-delimited JSON events until the client disconnects or the
// session lifetime elapses.
func (h *FeedHandler) StreamFeed(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "application/x-ndjson")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	resp.Flush()

	// The request context is the session parent: a client disconnect
	// cancels it and triggers session teardown.
	session := h.coordinator.Subscribe(c.Request().Context(), userID)
	defer session.Close()

	encoder := json.NewEncoder(resp)
	for event := range session.Events() {
		if err := encoder.Encode(event); err != nil {
			h.logger.Warn("Client write failed for session", session.ID, ":", err)
			return nil
		}
		resp.Flush()
	}
	return nil
}

// CacheReport handles GET /api/cache/report.
func (h *FeedHandler) CacheReport(c echo.Context) error {
	return c.JSON(http.StatusOK, h.cache.Report())
}

// InvalidateUserCache handles DELETE /api/cache/users/:user_id.
func (h *FeedHandler) InvalidateUserCache(c echo.Context) error {
	userID := c.Param("user_id")
	count := h.cache.InvalidateUser(userID)
	return c.JSON(http.StatusOK, map[string]any{
		"user_id": userID,
		"deleted": count,
	})
}

// Health handles GET /healthz with breaker states as a degradation
// signal.
func (h *FeedHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": h.coordinator.SessionCount(),
		"circuits": h.breakers.States(),
	})
}
