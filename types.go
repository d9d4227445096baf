package state

import (
	"time"

	"github.com/goliatone/go-state/pkg/activity"
)

// Snapshot is the full state of a store at one point in time. Committed
// snapshots are immutable by convention: every write that changes anything
// replaces the map instead of mutating it, so a snapshot handed to a listener
// or stored in history never changes underneath the holder.
type Snapshot map[string]any

// Partial holds the keys a write wants merged into the current snapshot.
type Partial map[string]any

// Updater computes a Partial from the current snapshot.
type Updater func(Snapshot) Partial

// Listener observes committed snapshots. Listeners run synchronously on the
// writing goroutine, in registration order.
type Listener func(Snapshot)

// SetFn is the write entry point handed to creators. It accepts a Partial or
// an Updater and routes the write through the store's interceptor chain.
type SetFn func(update any)

// GetFn returns the current snapshot.
type GetFn func() Snapshot

// WriteFn is one stage of the store's write path. Middleware layers
// interceptors around it via Store.WrapWrite.
type WriteFn func(update any)

// Creator produces the initial snapshot for a store. Action closures that
// capture set and get belong in the returned snapshot as function values.
type Creator func(set SetFn, get GetFn, store *Store) Snapshot

// Middleware transforms a creator into an augmented creator. Transforms are
// applied in reverse list order, so the first middleware in the list wraps
// outermost and intercepts external writes first.
type Middleware func(next Creator) Creator

// commitHook observes a committed snapshot swap before listeners run.
// changed carries the top-level keys whose values differ between old and
// next.
type commitHook func(old, next Snapshot, changed []string)

// EvalContext carries inputs needed when evaluating a computed expression.
type EvalContext struct {
	Snapshot any
	Computed string
	Now      *time.Time
	Args     map[string]any
	Metadata map[string]any
}

func (ctx EvalContext) withDefaultNow() EvalContext {
	if ctx.Now != nil {
		return ctx
	}
	now := time.Now()
	ctx.Now = &now
	return ctx
}

func (ctx EvalContext) timestamp() time.Time {
	ctx = ctx.withDefaultNow()
	return *ctx.Now
}

func (ctx EvalContext) withDefaultMaps() EvalContext {
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	if ctx.Metadata == nil {
		ctx.Metadata = map[string]any{}
	}
	return ctx
}

func (ctx EvalContext) withDefaults() EvalContext {
	return ctx.withDefaultNow().withDefaultMaps()
}

func (ctx EvalContext) computedLabel() string {
	if ctx.Computed != "" {
		return ctx.Computed
	}
	return "unknown"
}

// Evaluator executes expressions against an evaluation context.
type Evaluator interface {
	Evaluate(ctx EvalContext, expr string) (any, error)
	Compile(expr string, opts ...CompileOption) (CompiledExpr, error)
}

// CompiledExpr represents a reusable expression program.
type CompiledExpr interface {
	Evaluate(ctx EvalContext) (any, error)
}

// CompileOption configures evaluator compile behaviour.
type CompileOption interface {
	applyCompileOption(*compileConfig)
}

type compileConfig struct{}

type compileOptionFunc func(*compileConfig)

func (f compileOptionFunc) applyCompileOption(cfg *compileConfig) {
	if f != nil {
		f(cfg)
	}
}

// Option configures a store at construction time.
type Option func(*storeConfig)

type storeConfig struct {
	name          string
	middleware    []Middleware
	logger        Logger
	activityHooks activity.Hooks
}

func applyStoreOptions(opts []Option) storeConfig {
	cfg := storeConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithName labels the store for diagnostics and activity events. Unnamed
// stores log without a label and emit no activity.
func WithName(name string) Option {
	return func(cfg *storeConfig) {
		cfg.name = name
	}
}

// WithMiddleware appends middleware to the composition list.
func WithMiddleware(middleware ...Middleware) Option {
	return func(cfg *storeConfig) {
		cfg.middleware = append(cfg.middleware, middleware...)
	}
}
