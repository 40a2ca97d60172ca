package cache

import (
	"time"

	"pulsefeed/internal/logger"
)

// Namespace names. Each namespace has its own default TTL and isolated
// key space.
const (
	NamespaceMessages   = "messages"
	NamespaceTokens     = "tokens"
	NamespacePriority   = "priority"
	NamespaceConnStatus = "connstatus"
)

// TTLs carries the per-namespace default TTLs.
type TTLs struct {
	Messages   time.Duration
	Tokens     time.Duration
	Priority   time.Duration
	ConnStatus time.Duration
}

// DefaultTTLs returns the production defaults.
func DefaultTTLs() TTLs {
	return TTLs{
		Messages:   5 * time.Minute,
		Tokens:     60 * time.Minute,
		Priority:   10 * time.Minute,
		ConnStatus: 15 * time.Minute,
	}
}

// Manager owns the four cache namespaces. Constructed once at startup
// and injected; shared read/write across all sessions.
type Manager struct {
	stores map[string]*Store
	logger *logger.Logger
}

func NewManager(ttls TTLs, log *logger.Logger) *Manager {
	return &Manager{
		logger: log,
		stores: map[string]*Store{
			NamespaceMessages:   newStore(NamespaceMessages, ttls.Messages, log),
			NamespaceTokens:     newStore(NamespaceTokens, ttls.Tokens, log),
			NamespacePriority:   newStore(NamespacePriority, ttls.Priority, log),
			NamespaceConnStatus: newStore(NamespaceConnStatus, ttls.ConnStatus, log),
		},
	}
}

// Namespace returns the store for a namespace name. Panics on an unknown
// name: namespaces are fixed at construction.
func (m *Manager) Namespace(name string) *Store {
	s, ok := m.stores[name]
	if !ok {
		panic("unknown cache namespace: " + name)
	}
	return s
}

func (m *Manager) Messages() *Store   { return m.stores[NamespaceMessages] }
func (m *Manager) Tokens() *Store     { return m.stores[NamespaceTokens] }
func (m *Manager) Priority() *Store   { return m.stores[NamespacePriority] }
func (m *Manager) ConnStatus() *Store { return m.stores[NamespaceConnStatus] }

// InvalidateUser deletes every cached entry scoped to the user across
// all namespaces and returns the total count deleted.
func (m *Manager) InvalidateUser(userID string) int {
	total := 0
	for name, store := range m.stores {
		total += store.InvalidatePattern(name + ":*:" + userID)
		total += store.InvalidatePattern(name + ":*:" + userID + ":*")
	}
	if total > 0 {
		m.logger.Info("Invalidated", total, "cache entries for user", userID)
	}
	return total
}

// NamespaceReport is the performance summary for one namespace.
type NamespaceReport struct {
	HitRate           float64 `json:"hit_rate"`
	TotalRequests     uint64  `json:"total_requests"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
	Entries           int     `json:"entries"`
	MemoryUsageBytes  int     `json:"memory_usage_bytes"`
}

// Report returns per-namespace performance numbers for the cache
// administration surface.
func (m *Manager) Report() map[string]NamespaceReport {
	report := make(map[string]NamespaceReport, len(m.stores))
	for name, store := range m.stores {
		report[name] = store.report()
	}
	return report
}

func (s *Store) report() NamespaceReport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := s.hits + s.misses
	rate := 0.0
	if total > 0 {
		rate = float64(s.hits) / float64(total)
	}

	avg := 0.0
	if len(s.samples) > 0 {
		sum := 0.0
		for _, v := range s.samples {
			sum += v
		}
		avg = sum / float64(len(s.samples))
	}

	return NamespaceReport{
		HitRate:           rate,
		TotalRequests:     total,
		AvgResponseTimeMs: avg,
		Entries:           len(s.entries),
		// Rough estimate: entries are heap values of varying size, so
		// only key bytes plus fixed per-entry overhead are counted.
		MemoryUsageBytes: s.approxMemoryLocked(),
	}
}

func (s *Store) approxMemoryLocked() int {
	const entryOverhead = 64
	bytes := 0
	for k := range s.entries {
		bytes += len(k) + entryOverhead
	}
	return bytes
}
