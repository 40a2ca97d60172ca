package stream

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one subscriber's long-lived subscription. Owned exclusively
// by the coordinator; lastSeen is only touched from the session's own
// run goroutine.
type Session struct {
	ID     string
	UserID string

	events   chan Event
	lastSeen map[string]struct{}

	createdAt    time.Time
	lastActivity time.Time

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newSession(parent context.Context, userID string) *Session {
	ctx, cancel := context.WithCancel(parent)
	now := time.Now()
	return &Session{
		ID:           uuid.New().String(),
		UserID:       userID,
		events:       make(chan Event, 16),
		lastSeen:     make(map[string]struct{}),
		createdAt:    now,
		lastActivity: now,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Events is the channel the transport layer drains. Closed when the
// session ends.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Close requests teardown. Idempotent and safe to call from any
// goroutine; actual cleanup happens once inside the run loop.
func (s *Session) Close() {
	s.cancel()
}

// emit delivers an event in order, giving up when the session is being
// torn down.
func (s *Session) emit(event Event) {
	event.SessionID = s.ID
	select {
	case s.events <- event:
		s.lastActivity = time.Now()
	case <-s.ctx.Done():
	}
}

// baseline replaces the last-seen id set with the ids of the given
// messages.
func (s *Session) setBaseline(ids []string) {
	s.lastSeen = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s.lastSeen[id] = struct{}{}
	}
}

// diff returns how many of ids are not in the baseline.
func (s *Session) diff(ids []string) int {
	count := 0
	for _, id := range ids {
		if _, seen := s.lastSeen[id]; !seen {
			count++
		}
	}
	return count
}
