package model

import (
	"time"
)

// Tier is the coarse bucket a numeric priority score maps into.
type Tier string

const (
	TierGold     Tier = "gold"
	TierSilver   Tier = "silver"
	TierBronze   Tier = "bronze"
	TierStandard Tier = "standard"
)

// TierForScore maps a priority score to its tier. Boundaries are
// inclusive on the lower bound.
func TierForScore(score float64) Tier {
	switch {
	case score >= 9.0:
		return TierGold
	case score >= 7.0:
		return TierSilver
	case score >= 4.0:
		return TierBronze
	default:
		return TierStandard
	}
}

// Category is the AI classification of a message.
type Category string

const (
	CategoryUrgent    Category = "urgent"
	CategoryImportant Category = "important"
	CategoryFollowUp  Category = "follow_up"
	CategoryFYI       Category = "fyi"
	CategorySpam      Category = "spam"
)

// IsValid reports whether the category is a known value.
func (c Category) IsValid() bool {
	switch c {
	case CategoryUrgent, CategoryImportant, CategoryFollowUp, CategoryFYI, CategorySpam:
		return true
	}
	return false
}

// Sentiment is the AI-detected tone of a message.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// IsValid reports whether the sentiment is a known value.
func (s Sentiment) IsValid() bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return true
	}
	return false
}

// AnalysisResult is the outcome of one AI analysis of a message.
// PriorityScore and Category are mandatory and validated at the boundary;
// Sentiment and Confidence are defaulted when absent or malformed.
type AnalysisResult struct {
	MessageID        string    `json:"message_id"`
	PriorityScore    float64   `json:"priority_score"`
	Tier             Tier      `json:"tier"`
	Category         Category  `json:"category"`
	Summary          string    `json:"summary,omitempty"`
	KeyPoints        []string  `json:"key_points,omitempty"`
	SuggestedActions []string  `json:"suggested_actions,omitempty"`
	Sentiment        Sentiment `json:"sentiment"`
	Confidence       float64   `json:"confidence"`
	CreatedAt        time.Time `json:"created_at"`
}
