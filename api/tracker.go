package api

import (
	"sync"
	"time"
)

// TrackerEntry counts gameplays of one fid on one date.
type TrackerEntry struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// GameplayTracker keeps an in-memory count of started gameplays per
// fid and day, for the operations dashboard. Counts reset when the
// process restarts.
type GameplayTracker struct {
	mu     sync.Mutex
	counts map[string]TrackerEntry
	now    func() time.Time
}

func NewGameplayTracker() *GameplayTracker {
	return &GameplayTracker{
		counts: make(map[string]TrackerEntry),
		now:    time.Now,
	}
}

// RecordGame bumps today's count for an fid. The count restarts when
// the entry's date rolls over.
func (t *GameplayTracker) RecordGame(fid string) {
	today := t.now().Format("2006-01-02")

	t.mu.Lock()
	defer t.mu.Unlock()

	entry := t.counts[fid]
	if entry.Date != today {
		entry = TrackerEntry{Date: today}
	}
	entry.Count++
	t.counts[fid] = entry
}

// Snapshot copies the current counts.
func (t *GameplayTracker) Snapshot() map[string]TrackerEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]TrackerEntry, len(t.counts))
	for fid, entry := range t.counts {
		out[fid] = entry
	}
	return out
}
