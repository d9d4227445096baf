package state

import (
	"context"
	"fmt"
	"sync"

	"github.com/goliatone/go-state/pkg/activity"
)

// Store is a mutable state cell with synchronous change notification. Writes
// enter through an interceptor chain installed by middleware; committed
// snapshots are replaced wholesale, never mutated in place.
type Store struct {
	mu        sync.RWMutex
	state     Snapshot
	initial   Snapshot
	listeners []listenerEntry
	lastID    int
	dispatch  WriteFn
	hooks     []commitHook
	flags     *lifecycle
	events    *activity.Emitter

	computed *ComputedCache
	history  *History
	persist  *Persistence

	cfg storeConfig
}

type listenerEntry struct {
	id int
	fn Listener
}

// lifecycle tracks per-store flags shared between the cell and the
// controllers attached by middleware.
type lifecycle struct {
	mu        sync.RWMutex
	active    bool
	hydrated  bool
	traveling int // travel depth; listeners can start a nested travel
}

func (l *lifecycle) activate() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active {
		return false
	}
	l.active = true
	return true
}

func (l *lifecycle) isActive() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

func (l *lifecycle) markHydrated() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.hydrated {
		return false
	}
	l.hydrated = true
	return true
}

func (l *lifecycle) isHydrated() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.hydrated
}

func (l *lifecycle) beginTravel() {
	l.mu.Lock()
	l.traveling++
	l.mu.Unlock()
}

func (l *lifecycle) endTravel() {
	l.mu.Lock()
	if l.traveling > 0 {
		l.traveling--
	}
	l.mu.Unlock()
}

func (l *lifecycle) isTraveling() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.traveling > 0
}

// New builds a store from creator, applying configured middleware in reverse
// list order. A middleware that panics while composing is skipped; if the
// composed creator panics when invoked, the unmodified base creator runs
// instead so the store always starts in a usable shape.
func New(creator Creator, opts ...Option) *Store {
	cfg := applyStoreOptions(opts)
	st := &Store{
		cfg:   cfg,
		flags: &lifecycle{},
	}
	st.dispatch = st.applyUpdate
	if len(cfg.activityHooks) > 0 {
		st.events = activity.NewEmitter(cfg.activityHooks, activity.Config{Enabled: true})
	}

	set := SetFn(func(update any) { st.write(update) })
	get := GetFn(func() Snapshot { return st.GetState() })

	base := creator
	if base == nil {
		base = func(SetFn, GetFn, *Store) Snapshot { return nil }
	}
	composed := composeWith(cfg.middleware, st.logger(), cfg.name)(base)
	initial, err := st.invokeCreator(composed, set, get)
	if err != nil {
		st.logger().Log(LogEvent{Op: "init", Store: cfg.name, Err: err})
		st.resetMiddleware()
		initial, err = st.invokeCreator(base, set, get)
		if err != nil {
			st.logger().Log(LogEvent{Op: "init", Store: cfg.name, Err: err})
			initial = nil
		}
	}
	if initial != nil {
		st.mu.Lock()
		st.state = initial
		st.initial = initial.Clone()
		st.mu.Unlock()
	}
	return st
}

func (s *Store) invokeCreator(creator Creator, set SetFn, get GetFn) (snapshot Snapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			snapshot = nil
			err = fmt.Errorf("state: creator panic: %v", r)
		}
	}()
	if creator == nil {
		return nil, nil
	}
	return creator(set, get, s), nil
}

// resetMiddleware drops everything middleware installed so the base creator
// can run on a clean store after a composition failure.
func (s *Store) resetMiddleware() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatch = s.applyUpdate
	s.hooks = nil
	s.listeners = nil
	s.computed = nil
	s.history = nil
	s.persist = nil
}

// Name returns the configured store label.
func (s *Store) Name() string {
	return s.cfg.name
}

func (s *Store) logger() Logger {
	if s.cfg.logger != nil {
		return s.cfg.logger
	}
	return noopLogger{}
}

// GetState returns the current snapshot without copying. Callers must treat
// it as read-only; it is nil until a creator or write establishes state.
func (s *Store) GetState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// InitialState returns a copy of the snapshot the creator produced.
// Rehydrated state merges over this, not over the live snapshot.
func (s *Store) InitialState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initial.Clone()
}

// SetState merges partial into the current snapshot. Keys whose values
// already match (SameValue) are ignored; when nothing differs the write is
// dropped without creating a snapshot or notifying listeners.
func (s *Store) SetState(partial Partial) {
	s.write(partial)
}

// UpdateState computes a partial from the current snapshot and merges it with
// SetState semantics.
func (s *Store) UpdateState(fn Updater) {
	if fn == nil {
		return
	}
	s.write(fn)
}

// Hydrate merges partial directly into the cell, bypassing the write
// interceptors. Commit hooks and listeners still run, so computed caches stay
// correct; history does not record hydration writes. Intended for SSR seeds
// and rehydration.
func (s *Store) Hydrate(partial Partial) {
	s.commitMerge(partial)
}

// Subscribe registers fn to observe committed snapshots and returns its
// unsubscribe function. The same function may be registered more than once,
// each registration independent; unsubscribing twice is harmless.
func (s *Store) Subscribe(fn Listener) func() {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	s.lastID++
	id := s.lastID
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, entry := range s.listeners {
			if entry.id == id {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// Activate marks the store live, exactly once. Persistence commits and
// history recording start after activation; if a persistence controller is
// attached and not configured for manual hydration, activation rehydrates.
func (s *Store) Activate() {
	if !s.flags.activate() {
		return
	}
	s.mu.RLock()
	persist := s.persist
	s.mu.RUnlock()
	if persist != nil {
		persist.autoHydrate()
	}
}

// Active reports whether Activate has been called.
func (s *Store) Active() bool {
	return s.flags.isActive()
}

// WrapWrite layers an interceptor around the store's write path. Interceptors
// installed later sit outermost; middleware that want first sight of external
// writes install after delegating to the inner creator.
func (s *Store) WrapWrite(wrap func(next WriteFn) WriteFn) {
	if wrap == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.dispatch
	if next == nil {
		next = s.applyUpdate
	}
	if wrapped := wrap(next); wrapped != nil {
		s.dispatch = wrapped
	}
}

// onCommit registers a hook that observes every committed snapshot swap,
// including hydration writes, before listeners run.
func (s *Store) onCommit(hook commitHook) {
	if hook == nil {
		return
	}
	s.mu.Lock()
	s.hooks = append(s.hooks, hook)
	s.mu.Unlock()
}

// ComputedCache returns the cache installed by the Computed middleware, or
// nil when absent.
func (s *Store) ComputedCache() *ComputedCache {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.computed
}

// History returns the log installed by the TimeTravel middleware, or nil when
// absent.
func (s *Store) History() *History {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history
}

// Persistence returns the controller installed by the Persist middleware, or
// nil when absent.
func (s *Store) Persistence() *Persistence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persist
}

func (s *Store) attachComputed(cache *ComputedCache) {
	s.mu.Lock()
	s.computed = cache
	s.mu.Unlock()
}

func (s *Store) attachHistory(history *History) {
	s.mu.Lock()
	s.history = history
	s.mu.Unlock()
}

func (s *Store) attachPersist(persist *Persistence) {
	s.mu.Lock()
	s.persist = persist
	s.mu.Unlock()
}

// write routes an update through the current interceptor chain.
func (s *Store) write(update any) {
	s.mu.RLock()
	dispatch := s.dispatch
	s.mu.RUnlock()
	if dispatch == nil {
		dispatch = s.applyUpdate
	}
	dispatch(update)
}

// replaceUpdate swaps the whole snapshot instead of merging. Travel
// operations use it so removed keys do not linger.
type replaceUpdate struct {
	snapshot Snapshot
}

// applyUpdate is the innermost write stage: it resolves the update form and
// commits against the cell.
func (s *Store) applyUpdate(update any) {
	switch u := update.(type) {
	case nil:
		return
	case replaceUpdate:
		s.commitReplace(u.snapshot)
	case Partial:
		s.commitMerge(u)
	case Snapshot:
		s.commitMerge(Partial(u))
	case map[string]any:
		s.commitMerge(Partial(u))
	case Updater:
		s.commitUpdater(u)
	case func(Snapshot) Partial:
		s.commitUpdater(u)
	default:
		s.logger().Log(LogEvent{
			Op:     "write",
			Store:  s.cfg.name,
			Detail: fmt.Sprintf("unsupported update type %T", update),
		})
	}
}

func (s *Store) commitUpdater(fn Updater) {
	if fn == nil {
		return
	}
	s.commitMerge(fn(s.GetState()))
}

func (s *Store) commitMerge(partial Partial) {
	if len(partial) == 0 {
		return
	}
	s.mu.Lock()
	current := s.state
	if current != nil && len(changedKeys(current, partial)) == 0 {
		s.mu.Unlock()
		return
	}
	var next Snapshot
	if current == nil {
		next = make(Snapshot, len(partial))
	} else {
		next = current.Clone()
	}
	for key, value := range partial {
		next[key] = value
	}
	s.commitLocked(current, next)
}

func (s *Store) commitReplace(snapshot Snapshot) {
	next := snapshot.Clone()
	if next == nil {
		next = Snapshot{}
	}
	s.mu.Lock()
	s.commitLocked(s.state, next)
}

// commitLocked swaps the snapshot and releases the store lock before running
// commit hooks and listeners, so both may reenter the store.
func (s *Store) commitLocked(old, next Snapshot) {
	s.state = next
	hooks := append([]commitHook(nil), s.hooks...)
	listeners := make([]Listener, 0, len(s.listeners))
	for _, entry := range s.listeners {
		listeners = append(listeners, entry.fn)
	}
	s.mu.Unlock()

	changed := diffKeys(old, next)
	for _, hook := range hooks {
		hook(old, next, changed)
	}
	for _, fn := range listeners {
		if fn != nil {
			fn(next)
		}
	}
	s.emitUpdated(context.Background(), changed)
}
