package model

import (
	"time"
)

// Source identifies which provider a message came from.
type Source string

const (
	SourceMail Source = "mail"
	SourceChat Source = "chat"
)

// Priority is the heuristic classification applied when no AI analysis
// is available for a message.
type Priority string

const (
	PriorityUrgent   Priority = "urgent"
	PriorityQuestion Priority = "question"
	PriorityNormal   Priority = "normal"
)

// UnifiedMessage is the provider-independent message shape every adapter's
// output is normalized into. ID is stable: normalizing the same underlying
// provider message twice yields the same ID.
type UnifiedMessage struct {
	ID             string         `json:"id"`
	Source         Source         `json:"source"`
	Subject        string         `json:"subject,omitempty"`
	Sender         string         `json:"sender"`
	SenderEmail    string         `json:"sender_email,omitempty"`
	Recipients     string         `json:"recipients,omitempty"`
	Snippet        string         `json:"snippet"`
	Timestamp      time.Time      `json:"timestamp"`
	Priority       Priority       `json:"priority"`
	HasAttachments bool           `json:"has_attachments"`
	Labels         []string       `json:"labels,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// HasLabel reports whether the message carries the given label.
// Label comparison is case-sensitive; providers emit canonical names.
func (m *UnifiedMessage) HasLabel(label string) bool {
	for _, l := range m.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// ScoredMessage is a UnifiedMessage with its computed priority score,
// tier, and the boost reasons that fired during scoring.
type ScoredMessage struct {
	UnifiedMessage
	Score    float64         `json:"score"`
	Tier     Tier            `json:"tier"`
	Boosts   []string        `json:"boosts,omitempty"`
	Analysis *AnalysisResult `json:"analysis,omitempty"`
}

// FeedStats summarizes a scored feed for the synchronous query endpoint.
type FeedStats struct {
	Total    int            `json:"total"`
	BySource map[Source]int `json:"by_source"`
	ByTier   map[Tier]int   `json:"by_tier"`
}

// FeedResult is the response of the unified feed query.
type FeedResult struct {
	Messages    []ScoredMessage `json:"messages"`
	Stats       FeedStats       `json:"stats"`
	Connections map[string]bool `json:"connections"`
	CacheHit    bool            `json:"cache_hit"`
	FetchedAt   time.Time       `json:"fetched_at"`
}

// NewFeedStats tallies tier and source counts for a scored message list.
func NewFeedStats(messages []ScoredMessage) FeedStats {
	stats := FeedStats{
		Total:    len(messages),
		BySource: make(map[Source]int),
		ByTier:   make(map[Tier]int),
	}
	for _, m := range messages {
		stats.BySource[m.Source]++
		stats.ByTier[m.Tier]++
	}
	return stats
}
