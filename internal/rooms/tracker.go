package rooms

import (
	"sync"
	"time"
)

const (
	DefaultTTL        = 72 * time.Hour
	DefaultMaxEntries = 10000
)

type entry struct {
	room      string
	scannedAt time.Time
}

// Tracker remembers the room asserted by each requester's most recent QR scan.
// Entries live in memory only. A TTL of zero keeps them until overwritten.
type Tracker struct {
	mu         sync.RWMutex
	entries    map[int64]entry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

type TrackerOption func(*Tracker)

func WithTTL(ttl time.Duration) TrackerOption {
	return func(t *Tracker) {
		t.ttl = ttl
	}
}

func WithMaxEntries(n int) TrackerOption {
	return func(t *Tracker) {
		t.maxEntries = n
	}
}

func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.now = now
	}
}

func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{
		entries:    make(map[int64]entry),
		ttl:        DefaultTTL,
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// RecordScan associates requesterID with room, replacing any earlier association.
func (t *Tracker) RecordScan(requesterID int64, room string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if _, exists := t.entries[requesterID]; !exists && t.maxEntries > 0 && len(t.entries) >= t.maxEntries {
		t.pruneLocked(now)
		if len(t.entries) >= t.maxEntries {
			t.evictOldestLocked()
		}
	}

	t.entries[requesterID] = entry{room: room, scannedAt: now}
}

// Lookup returns the last scanned room for requesterID. It never mutates the tracker.
func (t *Tracker) Lookup(requesterID int64) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.entries[requesterID]
	if !ok || t.expired(e, t.now()) {
		return "", false
	}
	return e.room, true
}

func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

func (t *Tracker) expired(e entry, now time.Time) bool {
	return t.ttl > 0 && now.Sub(e.scannedAt) >= t.ttl
}

func (t *Tracker) pruneLocked(now time.Time) {
	for id, e := range t.entries {
		if t.expired(e, now) {
			delete(t.entries, id)
		}
	}
}

func (t *Tracker) evictOldestLocked() {
	var (
		oldestID int64
		oldestAt time.Time
		found    bool
	)
	for id, e := range t.entries {
		if !found || e.scannedAt.Before(oldestAt) {
			oldestID, oldestAt, found = id, e.scannedAt, true
		}
	}
	if found {
		delete(t.entries, oldestID)
	}
}
