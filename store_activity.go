package state

import (
	"context"
	"sort"

	"github.com/goliatone/go-state/pkg/activity"
)

// WithActivityHooks attaches activity hooks to the store. Hooks are cloned
// and nil entries dropped to preserve immutability.
func WithActivityHooks(hooks activity.Hooks) Option {
	normalized := cloneActivityHooks(hooks)
	return func(cfg *storeConfig) {
		cfg.activityHooks = normalized
	}
}

// ActivityHooks returns a cloned slice of the hooks configured on the store.
// The returned slice can be safely mutated by the caller.
func (s *Store) ActivityHooks() activity.Hooks {
	if s == nil {
		return nil
	}
	return cloneActivityHooks(s.cfg.activityHooks)
}

func cloneActivityHooks(hooks activity.Hooks) activity.Hooks {
	if len(hooks) == 0 {
		return nil
	}
	normalized := make([]activity.ActivityHook, 0, len(hooks))
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		normalized = append(normalized, hook)
	}
	if len(normalized) == 0 {
		return nil
	}
	return activity.Hooks(normalized)
}

func (s *Store) emitUpdated(ctx context.Context, changed []string) {
	if !s.events.Enabled() {
		return
	}
	keys := append([]string(nil), changed...)
	sort.Strings(keys)
	s.emit(ctx, activity.BuildStateUpdatedEvent(activity.StateEventInput{
		Store: s.cfg.name,
		Keys:  keys,
	}))
}

func (s *Store) emitTraveled(ctx context.Context, cursor int, entryID string) {
	if !s.events.Enabled() {
		return
	}
	s.emit(ctx, activity.BuildStateTraveledEvent(activity.StateEventInput{
		Store:   s.cfg.name,
		Cursor:  cursor,
		EntryID: entryID,
	}))
}

func (s *Store) emitRehydrated(ctx context.Context, version int, err error) {
	if !s.events.Enabled() {
		return
	}
	s.emit(ctx, activity.BuildStateRehydratedEvent(activity.StateEventInput{
		Store:   s.cfg.name,
		Version: version,
		Err:     err,
	}))
}

func (s *Store) emitStorageCleared(ctx context.Context) {
	if !s.events.Enabled() {
		return
	}
	s.emit(ctx, activity.BuildStateStorageClearedEvent(activity.StateEventInput{
		Store: s.cfg.name,
	}))
}

// emit forwards the event to the configured hooks; hook failures are logged,
// never surfaced to the writer.
func (s *Store) emit(ctx context.Context, event activity.Event) {
	if err := s.events.Emit(ctx, event); err != nil {
		s.logger().Log(LogEvent{Op: "activity", Store: s.cfg.name, Err: err})
	}
}
