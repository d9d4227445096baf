package state

import (
	"fmt"
	"sort"
	"sync"
)

// ComputeFn derives a value from a snapshot. The snapshot it receives carries
// the definition's computed dependencies materialized as regular keys; a
// function may also call Get on the cache for anything it did not declare.
type ComputeFn func(Snapshot) (any, error)

// Definition declares one computed value: a name, a compute function or an
// expression, and the dependency keys that invalidate it. A definition with
// no dependencies goes stale on every committed change.
type Definition struct {
	Name string
	Fn   ComputeFn
	Expr string
	Deps []string
}

// Define builds a function-backed definition.
func Define(name string, fn ComputeFn, deps ...string) Definition {
	return Definition{Name: name, Fn: fn, Deps: deps}
}

// DefineExpr builds an expression-backed definition, evaluated by the cache's
// configured engine (expr-lang unless overridden). Declared dependencies that
// name other computed values are injected into the expression environment.
func DefineExpr(name, expression string, deps ...string) Definition {
	return Definition{Name: name, Expr: expression, Deps: deps}
}

type ComputedOption func(*computedConfig)

type computedConfig struct {
	evaluator Evaluator
	cache     ProgramCache
	functions *FunctionRegistry
	logger    EvaluatorLogger
}

func applyComputedOptions(opts []ComputedOption) computedConfig {
	cfg := computedConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// ComputedWithEvaluator overrides the expression engine used by
// expression-backed definitions.
func ComputedWithEvaluator(e Evaluator) ComputedOption {
	return func(cfg *computedConfig) {
		cfg.evaluator = e
	}
}

// Computed installs a lazy computed-value cache over the store. Definitions
// are validated when the middleware is applied; duplicate names, dependency
// cycles, and empty definitions abort the middleware rather than the store.
func Computed(defs []Definition, opts ...ComputedOption) Middleware {
	return func(next Creator) Creator {
		cache := newComputedCache(defs, opts...)
		return func(set SetFn, get GetFn, st *Store) Snapshot {
			initial := next(set, get, st)
			cache.bind(st)
			st.attachComputed(cache)
			st.onCommit(cache.handleCommit)
			return initial
		}
	}
}

type computedEntry struct {
	def   Definition
	value any
	fresh bool
	// gen counts invalidations; a derivation that raced a commit must not
	// mark its result fresh.
	gen uint64
}

// ComputedCache lazily derives named values from the snapshot, keeping each
// result until one of its declared dependencies changes. Entries start stale.
type ComputedCache struct {
	mu        sync.Mutex
	store     *Store
	entries   map[string]*computedEntry
	order     []string
	graph     dependencyGraph
	computing map[string]bool
	eval      *computedEvaluator
}

// newComputedCache panics on invalid definition sets so the composition layer
// can skip the middleware.
func newComputedCache(defs []Definition, opts ...ComputedOption) *ComputedCache {
	graph, err := buildGraph(defs)
	if err != nil {
		panic(err)
	}
	cfg := applyComputedOptions(opts)
	entries := make(map[string]*computedEntry, len(defs))
	order := make([]string, 0, len(defs))
	for _, def := range defs {
		entries[def.Name] = &computedEntry{def: def}
		order = append(order, def.Name)
	}
	return &ComputedCache{
		entries:   entries,
		order:     order,
		graph:     graph,
		computing: make(map[string]bool),
		eval: &computedEvaluator{
			evaluator: cfg.evaluator,
			cache:     cfg.cache,
			functions: cfg.functions,
			logger:    cfg.logger,
		},
	}
}

func (c *ComputedCache) bind(store *Store) {
	c.mu.Lock()
	c.store = store
	c.mu.Unlock()
}

// handleCommit marks definitions stale for the changed keys, transitively.
// It runs before listeners observe the committed snapshot.
func (c *ComputedCache) handleCommit(_, _ Snapshot, changed []string) {
	if len(changed) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for name := range c.graph.staleSet(changed) {
		if entry, ok := c.entries[name]; ok {
			entry.fresh = false
			entry.gen++
		}
	}
}

// Get returns the named computed value, deriving it only when a dependency
// changed since the last derivation. Failed derivations are not cached. The
// lock is not held while deriving, so compute functions may call Get; a
// derivation that reaches back into itself fails with ErrComputedCycle.
func (c *ComputedCache) Get(name string) (any, error) {
	c.mu.Lock()
	entry, ok := c.entries[name]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrUnknownComputed, name)
	}
	if entry.fresh {
		value := entry.value
		c.mu.Unlock()
		return value, nil
	}
	if c.computing[name] {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: through %q", ErrComputedCycle, name)
	}
	c.computing[name] = true
	def := entry.def
	gen := entry.gen
	c.mu.Unlock()

	value, err := c.derive(def)

	c.mu.Lock()
	delete(c.computing, name)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	entry.value = value
	if entry.gen == gen {
		entry.fresh = true
	}
	c.mu.Unlock()
	return value, nil
}

// environment builds the snapshot a definition computes against: the live
// state plus the values of its computed dependencies.
func (c *ComputedCache) environment(def Definition) (Snapshot, error) {
	env := c.baseSnapshot()
	for _, dep := range def.Deps {
		c.mu.Lock()
		_, isComputed := c.entries[dep]
		c.mu.Unlock()
		if !isComputed {
			continue
		}
		value, err := c.Get(dep)
		if err != nil {
			return nil, fmt.Errorf("state: computed %q dependency %q: %w", def.Name, dep, err)
		}
		env[dep] = value
	}
	return env, nil
}

func (c *ComputedCache) baseSnapshot() Snapshot {
	c.mu.Lock()
	store := c.store
	c.mu.Unlock()
	var base Snapshot
	if store != nil {
		base = store.GetState()
	}
	env := base.Clone()
	if env == nil {
		env = Snapshot{}
	}
	return env
}

func (c *ComputedCache) derive(def Definition) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = fmt.Errorf("state: computed %q panic: %v", def.Name, r)
		}
	}()
	env, err := c.environment(def)
	if err != nil {
		return nil, err
	}
	if def.Fn != nil {
		value, err := def.Fn(env)
		if err != nil {
			return nil, fmt.Errorf("state: computed %q: %w", def.Name, err)
		}
		return value, nil
	}
	return c.eval.evaluate(def.Name, def.Expr, env)
}

// Recompute forces name stale and derives it immediately.
func (c *ComputedCache) Recompute(name string) (any, error) {
	c.mu.Lock()
	entry, ok := c.entries[name]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrUnknownComputed, name)
	}
	entry.fresh = false
	entry.gen++
	c.mu.Unlock()
	return c.Get(name)
}

// RecomputeAll forces every definition stale and derives them in definition
// order, stopping at the first failure.
func (c *ComputedCache) RecomputeAll() error {
	c.mu.Lock()
	for _, entry := range c.entries {
		entry.fresh = false
		entry.gen++
	}
	order := append([]string(nil), c.order...)
	c.mu.Unlock()

	for _, name := range order {
		if _, err := c.Get(name); err != nil {
			return err
		}
	}
	return nil
}

// SnapshotWithComputed returns the live state merged with every computed
// value as one flat map, deriving stale entries on the way through. Computed
// names shadow state keys of the same name.
func (c *ComputedCache) SnapshotWithComputed() (Snapshot, error) {
	out := c.baseSnapshot()
	c.mu.Lock()
	order := append([]string(nil), c.order...)
	c.mu.Unlock()

	for _, name := range order {
		value, err := c.Get(name)
		if err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, nil
}

// Names returns the defined computed names sorted alphabetically.
func (c *ComputedCache) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
