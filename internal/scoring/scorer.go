package scoring

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"pulsefeed/internal/logger"
	"pulsefeed/internal/model"
	"pulsefeed/internal/normalize"
)

const (
	// batchSize bounds concurrent scoring to respect downstream limits.
	batchSize = 5
	// batchDelay is the pause between batches.
	batchDelay = 100 * time.Millisecond

	boostVIP           = 0.8
	boostTimeKeyword   = 0.5
	boostPriorityLabel = 0.4
	boostUnread        = 0.2
	boostRecent        = 0.1
	boostAttachment    = 0.1

	// attachmentFloor is the minimum base score for the attachment boost.
	attachmentFloor = 6.0
	recentWindow    = 4 * time.Hour
)

// Heuristic base scores used when no analysis is available.
var heuristicBase = map[model.Priority]float64{
	model.PriorityUrgent:   7.5,
	model.PriorityQuestion: 5.5,
	model.PriorityNormal:   3.0,
}

// Labels treated as a high-priority marker by the label boost.
var priorityLabels = []string{"IMPORTANT", "STARRED", "priority", "high"}

// Scorer computes priority scores with additive contextual boosts.
type Scorer struct {
	logger *logger.Logger
	now    func() time.Time
}

func New(log *logger.Logger) *Scorer {
	return &Scorer{
		logger: log.With("component", "scorer"),
		now:    time.Now,
	}
}

// NewWithClock creates a scorer with a fixed clock for tests.
func NewWithClock(log *logger.Logger, now func() time.Time) *Scorer {
	s := New(log)
	s.now = now
	return s
}

// Score computes the final score for one message. When analysis is
// present its priority score is the base; an out-of-range base is a
// validation error, not silently clamped. Boosts are additive and only
// the final score is clamped to [0,10].
func (s *Scorer) Score(msg model.UnifiedMessage, analysis *model.AnalysisResult) (model.ScoredMessage, error) {
	var base float64
	if analysis != nil {
		if analysis.PriorityScore < 0 || analysis.PriorityScore > 10 {
			return model.ScoredMessage{}, &model.AnalysisValidationError{
				MessageID: msg.ID,
				Field:     "priority_score",
				Reason:    "score outside [0,10]",
			}
		}
		base = analysis.PriorityScore
	} else {
		base = heuristicBase[msg.Priority]
	}

	score := base
	var boosts []string
	apply := func(amount float64, reason string) {
		score += amount
		boosts = append(boosts, reason)
		s.logger.Debugf("boost %+.1f (%s) for message %s", amount, reason, msg.ID)
	}

	if normalize.HasVIPParticipant(msg) {
		apply(boostVIP, "vip_participant")
	}
	if normalize.HasUrgentKeyword(msg) {
		apply(boostTimeKeyword, "time_sensitive_keyword")
	}
	if hasPriorityLabel(&msg) {
		apply(boostPriorityLabel, "high_priority_label")
	}
	if msg.HasLabel("UNREAD") {
		apply(boostUnread, "unread")
	}
	if age := s.now().Sub(msg.Timestamp); age >= 0 && age < recentWindow {
		apply(boostRecent, "recent_activity")
	}
	if msg.HasAttachments && base >= attachmentFloor {
		apply(boostAttachment, "attachment_on_high_score")
	}

	score = clamp(score, 0, 10)

	return model.ScoredMessage{
		UnifiedMessage: msg,
		Score:          round1(score),
		Tier:           model.TierForScore(score),
		Boosts:         boosts,
		Analysis:       analysis,
	}, nil
}

// ScoreBatch scores messages in fixed-size concurrent batches with a
// short delay between batches. A failure scoring one message drops that
// message with a logged error; the rest of the batch proceeds. The result
// is sorted descending by score; ties keep input order.
func (s *Scorer) ScoreBatch(ctx context.Context, messages []model.UnifiedMessage, analyses map[string]*model.AnalysisResult) []model.ScoredMessage {
	scored := make([]*model.ScoredMessage, len(messages))

batches:
	for start := 0; start < len(messages); start += batchSize {
		end := start + batchSize
		if end > len(messages) {
			end = len(messages)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				msg := messages[i]
				result, err := s.Score(msg, analyses[msg.ID])
				if err != nil {
					s.logger.Error("Dropping message from scored output:", msg.ID, err)
					return
				}
				scored[i] = &result
			}()
		}
		wg.Wait()

		if end < len(messages) {
			select {
			case <-time.After(batchDelay):
			case <-ctx.Done():
				break batches
			}
		}
	}

	result := make([]model.ScoredMessage, 0, len(scored))
	for _, sm := range scored {
		if sm != nil {
			result = append(result, *sm)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Score > result[j].Score
	})
	return result
}

func hasPriorityLabel(msg *model.UnifiedMessage) bool {
	for _, label := range priorityLabels {
		if msg.HasLabel(label) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
