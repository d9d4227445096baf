package state

// ProgramCache stores compiled expression programs keyed by expression strings.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// ComputedWithProgramCache shares compiled programs across caches and engines.
func ComputedWithProgramCache(cache ProgramCache) ComputedOption {
	return func(cfg *computedConfig) {
		cfg.cache = cache
	}
}
