package normalize

import (
	"strings"

	"pulsefeed/internal/model"
	"pulsefeed/internal/provider"
)

const (
	placeholderSubject = "(no subject)"
	placeholderSender  = "Unknown"
)

// Keyword sets driving the heuristic classifier. Matching is
// case-insensitive substring matching.
var (
	urgentKeywords = []string{"urgent", "asap", "critical", "deadline", "emergency", "immediately"}

	vipKeywords = []string{"ceo", "cto", "cfo", "coo", "founder", "president", "director", "vp"}

	questionMarkers = []string{"?", "can you", "could you", "please", "how to", "what is", "when is"}
)

// Normalize converts provider-native records into unified messages.
// Deterministic: the same raw input always yields the same output,
// including IDs, so refetching a message never produces a duplicate.
func Normalize(raws []provider.RawMessage, source model.Source) []model.UnifiedMessage {
	messages := make([]model.UnifiedMessage, 0, len(raws))
	for _, raw := range raws {
		messages = append(messages, normalizeOne(raw, source))
	}
	return messages
}

func normalizeOne(raw provider.RawMessage, source model.Source) model.UnifiedMessage {
	msg := model.UnifiedMessage{
		ID:             MessageID(source, raw.ProviderID),
		Source:         source,
		Subject:        raw.Subject,
		Sender:         raw.Sender,
		SenderEmail:    raw.SenderEmail,
		Recipients:     raw.Recipients,
		Snippet:        raw.Snippet,
		Timestamp:      raw.Timestamp,
		HasAttachments: raw.HasAttachments,
		Labels:         raw.Labels,
		Metadata:       raw.Metadata,
	}
	if msg.Subject == "" {
		msg.Subject = placeholderSubject
	}
	if msg.Sender == "" {
		msg.Sender = placeholderSender
	}
	msg.Priority = Classify(msg)
	return msg
}

// MessageID builds the stable provider-prefixed message id.
func MessageID(source model.Source, providerID string) string {
	return string(source) + ":" + providerID
}

// Classify applies the deterministic priority heuristic. Check order is
// the tie-break: urgent keyword beats VIP sender beats question marker
// beats default.
func Classify(msg model.UnifiedMessage) model.Priority {
	subject := strings.ToLower(msg.Subject)
	body := strings.ToLower(msg.Snippet)
	sender := strings.ToLower(msg.Sender + " " + msg.SenderEmail)

	for _, kw := range urgentKeywords {
		if strings.Contains(subject, kw) || strings.Contains(body, kw) {
			return model.PriorityUrgent
		}
	}
	for _, kw := range vipKeywords {
		if strings.Contains(sender, kw) {
			return model.PriorityUrgent
		}
	}
	for _, marker := range questionMarkers {
		if strings.Contains(subject, marker) || strings.Contains(body, marker) {
			return model.PriorityQuestion
		}
	}
	return model.PriorityNormal
}

// HasUrgentKeyword reports whether the message text contains a
// time-sensitive keyword. Used by the scorer's boost rules.
func HasUrgentKeyword(msg model.UnifiedMessage) bool {
	subject := strings.ToLower(msg.Subject)
	body := strings.ToLower(msg.Snippet)
	for _, kw := range urgentKeywords {
		if strings.Contains(subject, kw) || strings.Contains(body, kw) {
			return true
		}
	}
	return false
}

// HasVIPParticipant reports whether a C-level or VIP-role keyword appears
// in the sender fields.
func HasVIPParticipant(msg model.UnifiedMessage) bool {
	sender := strings.ToLower(msg.Sender + " " + msg.SenderEmail)
	for _, kw := range vipKeywords {
		if strings.Contains(sender, kw) {
			return true
		}
	}
	return false
}

// Dedupe drops messages whose id was already seen, keeping the first
// occurrence. Input order is preserved.
func Dedupe(messages []model.UnifiedMessage) []model.UnifiedMessage {
	seen := make(map[string]struct{}, len(messages))
	out := messages[:0:0]
	for _, msg := range messages {
		if _, dup := seen[msg.ID]; dup {
			continue
		}
		seen[msg.ID] = struct{}{}
		out = append(out, msg)
	}
	return out
}
