package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultMaxKeys bounds the number of identities tracked in memory.
	DefaultMaxKeys = 100_000
	// sweepEvery triggers an opportunistic sweep every n checks.
	sweepEvery = 1000
)

// Memory is an in-process sliding-window limiter. It is safe for concurrent
// use; all state is guarded by a single mutex, which makes a check and its
// record one atomic step.
type Memory struct {
	cfg     Config
	maxKeys int

	mu     sync.Mutex
	hits   map[string][]time.Time // ascending timestamps inside the window
	checks int
}

// NewMemory returns an in-memory limiter. maxKeys <= 0 uses DefaultMaxKeys.
func NewMemory(cfg Config, maxKeys int) *Memory {
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	return &Memory{
		cfg:     cfg.withDefaults(),
		maxKeys: maxKeys,
		hits:    make(map[string][]time.Time),
	}
}

// Check implements Limiter. It never returns an error.
func (m *Memory) Check(_ context.Context, identity string, now time.Time) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checks++
	if m.checks%sweepEvery == 0 {
		m.sweepLocked(now)
	}

	ts := prune(m.hits[identity], now, m.cfg.Window)
	if len(ts) >= m.cfg.Limit {
		m.hits[identity] = ts
		return Decision{RetryAfter: retryAfter(ts[0], now, m.cfg.Window)}, nil
	}

	if _, tracked := m.hits[identity]; !tracked && len(m.hits) >= m.maxKeys {
		m.sweepLocked(now)
		if len(m.hits) >= m.maxKeys {
			m.evictStalestLocked()
		}
	}

	ts = append(ts, now)
	m.hits[identity] = ts
	return Decision{Allowed: true, Remaining: m.cfg.Limit - len(ts)}, nil
}

// Sweep drops every identity with no attempt left inside the window and
// returns how many were removed.
func (m *Memory) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked(now)
}

// Len returns the number of tracked identities.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hits)
}

func (m *Memory) sweepLocked(now time.Time) int {
	removed := 0
	for id, ts := range m.hits {
		ts = prune(ts, now, m.cfg.Window)
		if len(ts) == 0 {
			delete(m.hits, id)
			removed++
			continue
		}
		m.hits[id] = ts
	}
	return removed
}

// evictStalestLocked removes the identity whose newest attempt is oldest.
func (m *Memory) evictStalestLocked() {
	var (
		victim string
		newest time.Time
		found  bool
	)
	for id, ts := range m.hits {
		last := ts[len(ts)-1]
		if !found || last.Before(newest) {
			victim, newest, found = id, last, true
		}
	}
	if found {
		delete(m.hits, victim)
	}
}

// prune drops timestamps at or before now-window. ts is ascending.
func prune(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	// copy so the backing array does not grow without bound
	return append([]time.Time(nil), ts[i:]...)
}
