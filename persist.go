package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/goliatone/go-state/merge"
	"github.com/goliatone/go-state/pkg/storage"
)

// PartializeFn selects the portion of a snapshot worth persisting.
type PartializeFn func(Snapshot) Snapshot

// MigrateFn upgrades a persisted snapshot written by an older version. It
// receives the stored state and the version that wrote it.
type MigrateFn func(persisted Snapshot, version int) (Snapshot, error)

// MergeFn reconciles a persisted snapshot with the creator's initial state
// during rehydration. The result is what gets hydrated into the store.
type MergeFn func(initial, persisted Snapshot) Snapshot

// RehydrateCallback observes the end of a rehydration attempt. On success it
// receives the store's snapshot after hydration; on failure, the error.
type RehydrateCallback func(state Snapshot, err error)

// PersistOption configures the Persist middleware.
type PersistOption func(*persistConfig)

type persistConfig struct {
	name          string
	storage       storage.Storage
	partialize    PartializeFn
	version       int
	migrate       MigrateFn
	onRehydrate   RehydrateCallback
	skipHydration bool
	merge         MergeFn
}

// PersistOptions is a read-only view of a controller's configuration.
type PersistOptions struct {
	Name          string
	Version       int
	SkipHydration bool
}

// WithStorage overrides the backend records are written to. The default is
// file storage under the user config directory.
func WithStorage(backend storage.Storage) PersistOption {
	return func(cfg *persistConfig) {
		cfg.storage = backend
	}
}

// WithPartialize narrows what gets persisted. The default drops function
// values and keys prefixed with "_".
func WithPartialize(fn PartializeFn) PersistOption {
	return func(cfg *persistConfig) {
		cfg.partialize = fn
	}
}

// WithVersion stamps saved records. A loaded record whose version differs
// goes through the configured migration before hydration.
func WithVersion(version int) PersistOption {
	return func(cfg *persistConfig) {
		cfg.version = version
	}
}

// WithMigration upgrades records written by older versions. Without one, a
// stale record hydrates unchanged.
func WithMigration(fn MigrateFn) PersistOption {
	return func(cfg *persistConfig) {
		cfg.migrate = fn
	}
}

// WithOnRehydrate registers a callback for rehydration completion.
func WithOnRehydrate(fn RehydrateCallback) PersistOption {
	return func(cfg *persistConfig) {
		cfg.onRehydrate = fn
	}
}

// WithSkipHydration leaves rehydration to the caller; Activate will not load
// the persisted record.
func WithSkipHydration() PersistOption {
	return func(cfg *persistConfig) {
		cfg.skipHydration = true
	}
}

// WithMerge overrides how the persisted snapshot reconciles with the initial
// state. The default is DefaultMerge.
func WithMerge(fn MergeFn) PersistOption {
	return func(cfg *persistConfig) {
		cfg.merge = fn
	}
}

// DefaultPartialize drops function values and keys prefixed with "_"; both
// are runtime wiring, not state worth writing to disk.
func DefaultPartialize(snapshot Snapshot) Snapshot {
	out := make(Snapshot, len(snapshot))
	for key, value := range snapshot {
		if strings.HasPrefix(key, "_") {
			continue
		}
		if value != nil && reflect.TypeOf(value).Kind() == reflect.Func {
			continue
		}
		out[key] = value
	}
	return out
}

// DefaultMerge overlays persisted keys onto the initial snapshot, key by key.
func DefaultMerge(initial, persisted Snapshot) Snapshot {
	return Snapshot(merge.Shallow(map[string]any(initial), map[string]any(persisted)))
}

// DeepMerge reconciles nested maps recursively instead of replacing them.
// Pass it to WithMerge when persisted state carries nested structures.
func DeepMerge(initial, persisted Snapshot) Snapshot {
	return Snapshot(merge.Deep(map[string]any(initial), map[string]any(persisted)))
}

// identityMigration passes stale records through unchanged.
func identityMigration(persisted Snapshot, _ int) (Snapshot, error) {
	return persisted, nil
}

func newPersistConfig(name string, opts []PersistOption) persistConfig {
	cfg := persistConfig{name: strings.TrimSpace(name)}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.name == "" {
		panic(fmt.Errorf("state: persist middleware needs a record name"))
	}
	if cfg.storage == nil {
		cfg.storage = defaultStorage()
	}
	if cfg.partialize == nil {
		cfg.partialize = DefaultPartialize
	}
	if cfg.migrate == nil {
		cfg.migrate = identityMigration
	}
	if cfg.merge == nil {
		cfg.merge = DefaultMerge
	}
	return cfg
}

// defaultStorage puts records under the user config directory, falling back
// to the temp directory when the platform reports none.
func defaultStorage() storage.Storage {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return storage.NewFileStorage(filepath.Join(dir, "go-state"))
}

// Persist installs a persistence controller over the store: every committed
// snapshot after activation is partialized and saved under name, and
// activation loads the saved record back, migrating and merging it over the
// initial state. Storage failures are logged and swallowed; a failed save or
// load never breaks a write.
func Persist(name string, opts ...PersistOption) Middleware {
	return func(next Creator) Creator {
		cfg := newPersistConfig(name, opts)
		return func(set SetFn, get GetFn, st *Store) Snapshot {
			initial := next(set, get, st)
			p := &Persistence{
				store:    st,
				cfg:      cfg,
				callback: cfg.onRehydrate,
			}
			st.attachPersist(p)
			st.Subscribe(p.handleCommit)
			return initial
		}
	}
}

// Persistence saves committed snapshots and rehydrates them on activation.
type Persistence struct {
	mu        sync.RWMutex
	store     *Store
	cfg       persistConfig
	callback  RehydrateCallback
	hydrating bool
}

// Options returns the controller's configuration.
func (p *Persistence) Options() PersistOptions {
	return PersistOptions{
		Name:          p.cfg.name,
		Version:       p.cfg.version,
		SkipHydration: p.cfg.skipHydration,
	}
}

// HasHydrated reports whether a rehydration attempt has completed, successful
// or not.
func (p *Persistence) HasHydrated() bool {
	return p.store.flags.isHydrated()
}

// SetOnRehydrate replaces the rehydration callback. It only matters before
// the first rehydration completes.
func (p *Persistence) SetOnRehydrate(fn RehydrateCallback) {
	p.mu.Lock()
	p.callback = fn
	p.mu.Unlock()
}

// handleCommit persists the committed snapshot. Commits before activation and
// the hydration write itself are skipped.
func (p *Persistence) handleCommit(snapshot Snapshot) {
	if !p.store.Active() || p.isHydrating() {
		return
	}
	p.save(context.Background(), snapshot)
}

func (p *Persistence) save(ctx context.Context, snapshot Snapshot) {
	partial, err := p.partialize(snapshot)
	if err != nil {
		p.logError("persist", err)
		return
	}
	record := PersistedRecord{State: partial, Version: p.cfg.version}
	payload, err := record.ToJSON()
	if err != nil {
		p.logError("persist", fmt.Errorf("state: persist %q: encode record: %w", p.cfg.name, err))
		return
	}
	if err := p.cfg.storage.Save(ctx, p.cfg.name, payload); err != nil {
		p.logError("persist", fmt.Errorf("state: persist %q: %w", p.cfg.name, err))
	}
}

// Rehydrate loads the persisted record, migrates it if its version is stale,
// merges it over the initial state, and hydrates the store. Only the first
// call does anything; later calls return nil immediately. The callback fires
// once per attempt, with a nil snapshot when nothing was stored or loading
// failed.
func (p *Persistence) Rehydrate(ctx context.Context) error {
	if !p.store.flags.markHydrated() {
		return nil
	}
	p.setHydrating(true)
	defer p.setHydrating(false)

	payload, ok, err := p.cfg.storage.Load(ctx, p.cfg.name)
	if err != nil {
		return p.finish(ctx, nil, fmt.Errorf("state: rehydrate %q: %w", p.cfg.name, err))
	}
	if !ok {
		return p.finish(ctx, nil, nil)
	}

	record, err := RecordFromJSON(payload)
	if err != nil {
		return p.finish(ctx, nil, fmt.Errorf("state: rehydrate %q: decode record: %w", p.cfg.name, err))
	}

	persisted := record.State
	if persisted == nil {
		persisted = Snapshot{}
	}
	if record.Version != p.cfg.version {
		persisted, err = p.runMigration(persisted, record.Version)
		if err != nil {
			return p.finish(ctx, nil, fmt.Errorf("state: rehydrate %q: %w", p.cfg.name, err))
		}
	}

	merged, err := p.runMerge(p.store.InitialState(), persisted)
	if err != nil {
		return p.finish(ctx, nil, fmt.Errorf("state: rehydrate %q: %w", p.cfg.name, err))
	}
	p.store.Hydrate(Partial(merged))
	return p.finish(ctx, p.store.GetState(), nil)
}

// finish reports the attempt to the callback, the logger, and activity hooks,
// then hands the error back to the caller.
func (p *Persistence) finish(ctx context.Context, snapshot Snapshot, err error) error {
	if err != nil {
		p.logError("rehydrate", err)
	}
	p.mu.RLock()
	callback := p.callback
	p.mu.RUnlock()
	if callback != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logError("rehydrate", fmt.Errorf("state: rehydrate callback panic: %v", r))
				}
			}()
			callback(snapshot, err)
		}()
	}
	p.store.emitRehydrated(ctx, p.cfg.version, err)
	return err
}

// ClearStorage deletes the persisted record. The live snapshot is untouched.
func (p *Persistence) ClearStorage(ctx context.Context) error {
	if err := p.cfg.storage.Delete(ctx, p.cfg.name); err != nil {
		return fmt.Errorf("state: clear storage %q: %w", p.cfg.name, err)
	}
	p.store.emitStorageCleared(ctx)
	return nil
}

// autoHydrate runs on activation; failures were already logged by Rehydrate.
func (p *Persistence) autoHydrate() {
	if p.cfg.skipHydration {
		return
	}
	_ = p.Rehydrate(context.Background())
}

func (p *Persistence) partialize(snapshot Snapshot) (out Snapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("state: persist %q: partialize panic: %v", p.cfg.name, r)
		}
	}()
	return p.cfg.partialize(snapshot), nil
}

func (p *Persistence) runMigration(persisted Snapshot, from int) (out Snapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("state: migration panic: %v", r)
		}
	}()
	migrated, err := p.cfg.migrate(persisted, from)
	if err != nil {
		return nil, fmt.Errorf("state: migration from version %d: %w", from, err)
	}
	if migrated == nil {
		return nil, fmt.Errorf("state: migration from version %d returned nil", from)
	}
	return migrated, nil
}

func (p *Persistence) runMerge(initial, persisted Snapshot) (out Snapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("state: merge panic: %v", r)
		}
	}()
	return p.cfg.merge(initial, persisted), nil
}

func (p *Persistence) setHydrating(hydrating bool) {
	p.mu.Lock()
	p.hydrating = hydrating
	p.mu.Unlock()
}

func (p *Persistence) isHydrating() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.hydrating
}

func (p *Persistence) logError(op string, err error) {
	p.store.logger().Log(LogEvent{Op: op, Store: p.store.Name(), Err: err})
}
