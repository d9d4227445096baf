package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxHistory bounds the log when WithMaxHistory is not given.
const DefaultMaxHistory = 100

// HistoryEntry is one recorded snapshot. Active marks the entry the cursor
// currently points at.
type HistoryEntry struct {
	ID        string
	State     Snapshot
	Timestamp time.Time
	Active    bool
}

func newHistoryEntry(snapshot Snapshot) HistoryEntry {
	return HistoryEntry{
		ID:        uuid.NewString(),
		State:     snapshot,
		Timestamp: time.Now(),
	}
}

// TimeTravelOption configures the TimeTravel middleware.
type TimeTravelOption func(*timeTravelConfig)

type timeTravelConfig struct {
	maxHistory int
	enabled    bool
}

// WithMaxHistory bounds the number of retained entries, oldest evicted first.
// Values below 1 abort the middleware.
func WithMaxHistory(n int) TimeTravelOption {
	return func(cfg *timeTravelConfig) {
		cfg.maxHistory = n
	}
}

// WithHistoryEnabled toggles recording. Travel operations keep working against
// whatever the log already holds.
func WithHistoryEnabled(enabled bool) TimeTravelOption {
	return func(cfg *timeTravelConfig) {
		cfg.enabled = enabled
	}
}

func applyTimeTravelOptions(opts []TimeTravelOption) timeTravelConfig {
	cfg := timeTravelConfig{maxHistory: DefaultMaxHistory, enabled: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.maxHistory < 1 {
		panic(fmt.Errorf("state: history size must be at least 1, got %d", cfg.maxHistory))
	}
	return cfg
}

// TimeTravel installs a bounded undo/redo log over the store. The creator's
// snapshot seeds entry zero; each committed write that actually changed the
// snapshot appends an entry. Writing after traveling backward truncates the
// abandoned future before appending.
func TimeTravel(opts ...TimeTravelOption) Middleware {
	return func(next Creator) Creator {
		cfg := applyTimeTravelOptions(opts)
		return func(set SetFn, get GetFn, st *Store) Snapshot {
			initial := next(set, get, st)
			h := &History{
				store:   st,
				entries: []HistoryEntry{newHistoryEntry(initial)},
				max:     cfg.maxHistory,
				enabled: cfg.enabled,
			}
			st.attachHistory(h)
			st.WrapWrite(func(inner WriteFn) WriteFn {
				return func(update any) {
					before := st.GetState()
					inner(update)
					after := st.GetState()
					if sameSnapshot(before, after) {
						return
					}
					h.record(after)
				}
			})
			return initial
		}
	}
}

// History is the log installed by the TimeTravel middleware. The cursor
// tracks which entry the live state corresponds to; it trails the tail only
// after traveling backward.
type History struct {
	mu      sync.Mutex
	store   *Store
	entries []HistoryEntry
	cursor  int
	max     int
	enabled bool
}

// record appends the committed snapshot. Nothing is recorded before the store
// activates, while a travel write is in flight, or when recording is off.
func (h *History) record(snapshot Snapshot) {
	if !h.enabled {
		return
	}
	if !h.store.Active() || h.store.flags.isTraveling() {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) > 0 && sameSnapshot(h.entries[len(h.entries)-1].State, snapshot) {
		return
	}
	if h.cursor < len(h.entries)-1 {
		h.entries = h.entries[:h.cursor+1]
	}
	h.entries = append(h.entries, newHistoryEntry(snapshot))
	if overflow := len(h.entries) - h.max; overflow > 0 {
		h.entries = append(h.entries[:0], h.entries[overflow:]...)
	}
	h.cursor = len(h.entries) - 1
}

// Back moves the cursor one entry toward the oldest snapshot and applies it.
// It reports false at the beginning of the log.
func (h *History) Back() bool {
	h.mu.Lock()
	target := h.cursor - 1
	h.mu.Unlock()
	return h.JumpTo(target)
}

// Forward moves the cursor one entry toward the newest snapshot and applies
// it. It reports false at the end of the log.
func (h *History) Forward() bool {
	h.mu.Lock()
	target := h.cursor + 1
	h.mu.Unlock()
	return h.JumpTo(target)
}

// JumpTo applies the entry at index and moves the cursor there. The entry's
// snapshot replaces the live state wholesale, so keys added since then do not
// linger. Out-of-range indexes report false without touching the store.
func (h *History) JumpTo(index int) bool {
	h.mu.Lock()
	if index < 0 || index >= len(h.entries) {
		h.mu.Unlock()
		return false
	}
	entry := h.entries[index]
	h.mu.Unlock()

	h.travel(entry)

	h.mu.Lock()
	h.cursor = index
	h.mu.Unlock()
	h.store.emitTraveled(context.Background(), index, entry.ID)
	return true
}

// travel writes the entry through the store's full write path under the
// traveling guard, so interceptors observe it but the log does not re-record.
// The guard nests: a travel started by a listener leaves it raised until the
// outermost write returns.
func (h *History) travel(entry HistoryEntry) {
	h.store.flags.beginTravel()
	defer h.store.flags.endTravel()
	h.store.write(replaceUpdate{snapshot: entry.State})
}

// Clear drops the log and reseeds it with the live snapshot.
func (h *History) Clear() {
	live := h.store.GetState()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = []HistoryEntry{newHistoryEntry(live)}
	h.cursor = 0
}

// Entries returns a copy of the log, oldest first, with Active set on the
// cursor entry.
func (h *History) Entries() []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]HistoryEntry, len(h.entries))
	copy(out, h.entries)
	for i := range out {
		out[i].Active = i == h.cursor
	}
	return out
}

// Len returns the number of retained entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Cursor returns the index of the entry the live state corresponds to.
func (h *History) Cursor() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor
}

// Enabled reports whether the log records writes.
func (h *History) Enabled() bool {
	return h.enabled
}
