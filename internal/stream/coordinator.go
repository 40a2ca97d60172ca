package stream

import (
	"context"
	"sync"
	"time"

	"pulsefeed/internal/cache"
	"pulsefeed/internal/logger"
	"pulsefeed/internal/metrics"
	"pulsefeed/internal/model"
	"pulsefeed/internal/service"
)

// Coordinator owns all active subscriber sessions. One goroutine per
// session runs the periodic re-fetch cycle and is the sole writer of
// that session's event channel, which guarantees per-session event
// ordering.
type Coordinator struct {
	feed     service.FeedService
	cache    *cache.Manager
	logger   *logger.Logger
	interval time.Duration
	lifetime time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

func NewCoordinator(feed service.FeedService, cacheManager *cache.Manager, interval, lifetime time.Duration, log *logger.Logger) *Coordinator {
	return &Coordinator{
		feed:     feed,
		cache:    cacheManager,
		logger:   log.With("component", "stream"),
		interval: interval,
		lifetime: lifetime,
		sessions: make(map[string]*Session),
	}
}

// Subscribe opens a session for a user and starts its update loop. The
// session ends when parent is cancelled (client disconnect), Close is
// called, or the hard session lifetime elapses, whichever comes first.
func (c *Coordinator) Subscribe(parent context.Context, userID string) *Session {
	session := newSession(parent, userID)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		session.cancel()
		close(session.events)
		return session
	}
	c.sessions[session.ID] = session
	count := len(c.sessions)
	c.mu.Unlock()

	metrics.ActiveSessions.Set(float64(count))
	c.logger.Info("Subscribed user", userID, "session", session.ID, "active sessions:", count)

	go c.run(session)
	return session
}

// SessionCount returns the number of active sessions.
func (c *Coordinator) SessionCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

// Close tears down every active session. Used on shutdown.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	sessions := make([]*Session, 0, len(c.sessions))
	for _, session := range c.sessions {
		sessions = append(sessions, session)
	}
	c.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
}

// run is the per-session loop: connected event, initial feed, then a
// periodic cycle emitting update or heartbeat until teardown.
func (c *Coordinator) run(session *Session) {
	defer c.teardown(session)

	session.emit(newEvent(EventConnected))

	// Initial feed goes through the cache read path; a miss populates it.
	result, err := c.feed.UnifiedFeed(session.ctx, session.UserID)
	if err != nil {
		c.emitError(session, err)
	} else {
		session.setBaseline(messageIDs(result.Messages))
		event := newEvent(EventUpdate)
		event.Messages = result.Messages
		event.NewCount = len(result.Messages)
		session.emit(event)
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	deadline := time.NewTimer(c.lifetime)
	defer deadline.Stop()

	for {
		select {
		case <-ticker.C:
			c.cycle(session)
		case <-deadline.C:
			c.logger.Info("Session lifetime reached for", session.ID)
			return
		case <-session.ctx.Done():
			return
		}
	}
}

// cycle re-runs the fetch pipeline and emits an update when new message
// ids appeared since the baseline, a heartbeat otherwise. A failed cycle
// is reported as an error event; the session persists and the next tick
// retries independently.
func (c *Coordinator) cycle(session *Session) {
	result, err := c.feed.RefreshFeed(session.ctx, session.UserID)
	if err != nil {
		c.emitError(session, err)
		return
	}

	ids := messageIDs(result.Messages)
	newCount := session.diff(ids)
	if newCount == 0 {
		session.emit(newEvent(EventHeartbeat))
		return
	}

	session.setBaseline(ids)
	event := newEvent(EventUpdate)
	event.Messages = result.Messages
	event.NewCount = newCount
	session.emit(event)
}

func (c *Coordinator) emitError(session *Session, err error) {
	c.logger.Error("Cycle failed for session", session.ID, ":", err)
	event := newEvent(EventError)
	event.Error = err.Error()
	session.emit(event)
}

// teardown runs exactly once per session: it cancels the loop context,
// unregisters the session, closes the event channel, and invalidates the
// user's cached state.
func (c *Coordinator) teardown(session *Session) {
	session.closeOnce.Do(func() {
		session.cancel()

		c.mu.Lock()
		delete(c.sessions, session.ID)
		count := len(c.sessions)
		c.mu.Unlock()

		close(session.events)
		metrics.ActiveSessions.Set(float64(count))

		// Scope invalidation to this user's feed state; tokens survive.
		c.cache.Messages().InvalidatePattern(cache.NamespaceMessages + ":*:" + session.UserID)
		c.cache.Priority().InvalidatePattern(cache.NamespacePriority + ":*:" + session.UserID + ":*")

		c.logger.Info("Session closed:", session.ID, "user:", session.UserID, "active sessions:", count)
	})
}

func messageIDs(messages []model.ScoredMessage) []string {
	ids := make([]string, len(messages))
	for i, msg := range messages {
		ids[i] = msg.ID
	}
	return ids
}
