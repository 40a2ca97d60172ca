package service

import (
	"context"

	"pulsefeed/internal/model"
)

// FeedService aggregates provider messages into a prioritized feed.
type FeedService interface {
	// UnifiedFeed returns the user's feed, read through the message
	// cache: a live cached feed is returned as-is with CacheHit set.
	UnifiedFeed(ctx context.Context, userID string) (*model.FeedResult, error)
	// RefreshFeed re-runs the full fetch pipeline, updates the cache,
	// and returns the fresh feed. Used by the stream coordinator's
	// periodic cycles.
	RefreshFeed(ctx context.Context, userID string) (*model.FeedResult, error)
}
