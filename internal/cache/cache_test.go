package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsefeed/internal/logger"
	"pulsefeed/internal/model"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(TTLs{
		Messages:   time.Minute,
		Tokens:     time.Minute,
		Priority:   time.Minute,
		ConnStatus: time.Minute,
	}, logger.New("test"))
}

func TestSetGetBeforeTTL(t *testing.T) {
	m := newTestManager(t)
	store := m.Messages()

	store.Set("feed:u1", "payload", time.Minute)

	v, ok := store.Get("feed:u1")
	require.True(t, ok)
	assert.Equal(t, "payload", v)
	assert.True(t, store.Has("feed:u1"))
}

func TestGetAfterTTLExpires(t *testing.T) {
	m := newTestManager(t)
	store := m.Messages()

	store.Set("feed:u1", "payload", 10*time.Millisecond)
	time.Sleep(25 * time.Millisecond)

	_, ok := store.Get("feed:u1")
	assert.False(t, ok)
	assert.False(t, store.Has("feed:u1"))
}

func TestNamespaceIsolation(t *testing.T) {
	m := newTestManager(t)

	m.Messages().Set("k", "from-messages", 0)
	m.Tokens().Set("k", "from-tokens", 0)

	v, ok := m.Messages().Get("k")
	require.True(t, ok)
	assert.Equal(t, "from-messages", v)

	v, ok = m.Tokens().Get("k")
	require.True(t, ok)
	assert.Equal(t, "from-tokens", v)
}

func TestMGetMSetDel(t *testing.T) {
	m := newTestManager(t)
	store := m.Priority()

	store.MSet(map[string]any{"a": 1, "b": 2, "c": 3}, 0)

	got := store.MGet([]string{"a", "b", "missing"})
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, got)

	assert.Equal(t, 2, store.Del("a", "b", "missing"))
	assert.False(t, store.Has("a"))
	assert.True(t, store.Has("c"))
}

func TestGetOrSetComputesOnceOnMiss(t *testing.T) {
	m := newTestManager(t)
	store := m.Messages()

	calls := 0
	compute := func() (any, error) {
		calls++
		return "computed", nil
	}

	v, err := store.GetOrSet("feed:u1", compute, 0)
	require.NoError(t, err)
	assert.Equal(t, "computed", v)

	v, err = store.GetOrSet("feed:u1", compute, 0)
	require.NoError(t, err)
	assert.Equal(t, "computed", v)
	assert.Equal(t, 1, calls)
}

func TestGetOrSetFailurePropagatesAndCachesNothing(t *testing.T) {
	m := newTestManager(t)
	store := m.Messages()

	boom := errors.New("boom")
	_, err := store.GetOrSet("feed:u1", func() (any, error) {
		return nil, boom
	}, 0)

	var cerr *model.CacheComputeError
	require.ErrorAs(t, err, &cerr)
	assert.ErrorIs(t, err, boom)
	assert.False(t, store.Has("feed:u1"))
}

func TestInvalidatePatternScopedToUser(t *testing.T) {
	m := newTestManager(t)
	store := m.Messages()

	store.Set("feed:u1", "one", 0)
	store.Set("feed:u2", "two", 0)

	count := store.InvalidatePattern("messages:*:u1")

	assert.Equal(t, 1, count)
	assert.False(t, store.Has("feed:u1"))
	assert.True(t, store.Has("feed:u2"))
}

func TestInvalidateUserSpansNamespaces(t *testing.T) {
	m := newTestManager(t)

	m.Messages().Set("feed:u1", "feed", 0)
	m.Priority().Set("analysis:u1:mail:x", "analysis", 0)
	m.Tokens().Set("access:gmail:u1", "token", 0)
	m.ConnStatus().Set("conn:u1", "status", 0)
	m.Messages().Set("feed:u2", "other", 0)

	count := m.InvalidateUser("u1")

	assert.Equal(t, 4, count)
	assert.True(t, m.Messages().Has("feed:u2"))
}

func TestReportTracksHitsAndMisses(t *testing.T) {
	m := newTestManager(t)
	store := m.Messages()

	store.Set("feed:u1", "x", 0)
	store.Get("feed:u1") // hit
	store.Get("feed:u1") // hit
	store.Get("nope")    // miss

	report := m.Report()[NamespaceMessages]
	assert.Equal(t, uint64(3), report.TotalRequests)
	assert.InDelta(t, 2.0/3.0, report.HitRate, 0.001)
	assert.Equal(t, 1, report.Entries)
	assert.Greater(t, report.MemoryUsageBytes, 0)
}

func TestLastWriterWins(t *testing.T) {
	m := newTestManager(t)
	store := m.Messages()

	store.Set("k", "first", 0)
	store.Set("k", "second", 0)

	v, ok := store.Get("k")
	require.True(t, ok)
	assert.Equal(t, "second", v)
}
