package activity

import (
	"context"
	"sync"
)

// CaptureHook retains every event a store emits, in delivery order. Tests
// point a store at one and assert on the recorded verbs and payloads; a
// non-nil Err simulates a failing sink.
type CaptureHook struct {
	Events []Event
	Err    error
	mu     sync.Mutex
}

// Notify appends the normalized event and returns the configured Err.
func (h *CaptureHook) Notify(_ context.Context, event Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Events = append(h.Events, NormalizeEvent(event))
	return h.Err
}

// Last returns the most recently captured event. The bool reports whether
// anything has been captured yet.
func (h *CaptureHook) Last() (Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.Events) == 0 {
		return Event{}, false
	}
	return h.Events[len(h.Events)-1], true
}
