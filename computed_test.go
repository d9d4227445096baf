package state

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func computedStore(t *testing.T, initial Snapshot, defs []Definition, opts ...ComputedOption) (*Store, *ComputedCache) {
	t.Helper()
	st := New(func(SetFn, GetFn, *Store) Snapshot {
		return initial.Clone()
	}, WithMiddleware(Computed(defs, opts...)))
	cache := st.ComputedCache()
	if cache == nil {
		t.Fatalf("expected computed cache to be installed")
	}
	return st, cache
}

func TestComputedDerivesLazilyAndMemoizes(t *testing.T) {
	calls := 0
	_, cache := computedStore(t, Snapshot{"count": 4}, []Definition{
		Define("doubled", func(s Snapshot) (any, error) {
			calls++
			count, _ := s["count"].(int)
			return count * 2, nil
		}, "count"),
	})

	if calls != 0 {
		t.Fatalf("expected no derivation before the first Get, got %d", calls)
	}

	value, err := cache.Get("doubled")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != 8 {
		t.Fatalf("expected 8, got %v", value)
	}

	if _, err := cache.Get("doubled"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected cached value on second Get, got %d derivations", calls)
	}
}

func TestComputedInvalidatesOnDependencyChange(t *testing.T) {
	calls := 0
	st, cache := computedStore(t, Snapshot{"count": 1}, []Definition{
		Define("doubled", func(s Snapshot) (any, error) {
			calls++
			count, _ := s["count"].(int)
			return count * 2, nil
		}, "count"),
	})

	if _, err := cache.Get("doubled"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	st.SetState(Partial{"count": 3})

	value, err := cache.Get("doubled")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != 6 {
		t.Fatalf("expected recomputed value 6, got %v", value)
	}
	if calls != 2 {
		t.Fatalf("expected exactly two derivations, got %d", calls)
	}
}

func TestComputedIgnoresUnrelatedChanges(t *testing.T) {
	calls := 0
	st, cache := computedStore(t, Snapshot{"count": 2, "theme": "dark"}, []Definition{
		Define("doubled", func(s Snapshot) (any, error) {
			calls++
			count, _ := s["count"].(int)
			return count * 2, nil
		}, "count"),
	})

	if _, err := cache.Get("doubled"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	st.SetState(Partial{"theme": "light"})

	if _, err := cache.Get("doubled"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected cache to survive unrelated writes, got %d derivations", calls)
	}
}

func TestComputedWithoutDepsStalesEveryCommit(t *testing.T) {
	calls := 0
	st, cache := computedStore(t, Snapshot{"count": 1}, []Definition{
		Define("keys", func(s Snapshot) (any, error) {
			calls++
			return len(s), nil
		}),
	})

	if _, err := cache.Get("keys"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st.SetState(Partial{"theme": "dark"})
	if _, err := cache.Get("keys"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if calls != 2 {
		t.Fatalf("expected dependency-free definitions to recompute per commit, got %d", calls)
	}
}

func TestComputedTransitiveStaleness(t *testing.T) {
	subtotalCalls, totalCalls := 0, 0
	st, cache := computedStore(t, Snapshot{"items": []int{1, 2, 3}, "shipping": 5}, []Definition{
		Define("subtotal", func(s Snapshot) (any, error) {
			subtotalCalls++
			items, _ := s["items"].([]int)
			sum := 0
			for _, item := range items {
				sum += item
			}
			return sum, nil
		}, "items"),
		Define("total", func(s Snapshot) (any, error) {
			totalCalls++
			subtotal, _ := s["subtotal"].(int)
			shipping, _ := s["shipping"].(int)
			return subtotal + shipping, nil
		}, "subtotal", "shipping"),
	})

	value, err := cache.Get("total")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != 11 {
		t.Fatalf("expected total 11, got %v", value)
	}

	st.SetState(Partial{"items": []int{10, 10}})

	value, err = cache.Get("total")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != 25 {
		t.Fatalf("expected total 25 after item change, got %v", value)
	}
	if subtotalCalls != 2 || totalCalls != 2 {
		t.Fatalf("expected change to cascade, got subtotal=%d total=%d", subtotalCalls, totalCalls)
	}
}

func TestComputedDependencyValueInjected(t *testing.T) {
	_, cache := computedStore(t, Snapshot{"count": 3}, []Definition{
		Define("doubled", func(s Snapshot) (any, error) {
			count, _ := s["count"].(int)
			return count * 2, nil
		}, "count"),
		Define("label", func(s Snapshot) (any, error) {
			return fmt.Sprintf("doubled=%v", s["doubled"]), nil
		}, "doubled"),
	})

	value, err := cache.Get("label")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "doubled=6" {
		t.Fatalf("expected injected dependency value, got %v", value)
	}
}

func TestComputedReentrantGetFromComputeFn(t *testing.T) {
	var cache *ComputedCache
	st := New(func(SetFn, GetFn, *Store) Snapshot {
		return Snapshot{"count": 2}
	}, WithMiddleware(Computed([]Definition{
		Define("base", func(s Snapshot) (any, error) {
			count, _ := s["count"].(int)
			return count + 1, nil
		}, "count"),
		Define("undeclared", func(Snapshot) (any, error) {
			value, err := cache.Get("base")
			if err != nil {
				return nil, err
			}
			return value.(int) * 10, nil
		}),
	})))
	cache = st.ComputedCache()
	if cache == nil {
		t.Fatalf("expected computed cache to be installed")
	}

	value, err := cache.Get("undeclared")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != 30 {
		t.Fatalf("expected reentrant Get to work, got %v", value)
	}
}

func TestComputedSelfReferenceFails(t *testing.T) {
	var cache *ComputedCache
	st := New(func(SetFn, GetFn, *Store) Snapshot {
		return Snapshot{}
	}, WithMiddleware(Computed([]Definition{
		Define("loop", func(Snapshot) (any, error) {
			return cache.Get("loop")
		}),
	})))
	cache = st.ComputedCache()
	if cache == nil {
		t.Fatalf("expected computed cache to be installed")
	}

	_, err := cache.Get("loop")
	if !errors.Is(err, ErrComputedCycle) {
		t.Fatalf("expected ErrComputedCycle, got %v", err)
	}
}

func TestComputedDeclaredCycleAbortsMiddleware(t *testing.T) {
	var events []LogEvent
	st := New(counterCreator,
		WithLogger(LoggerFunc(func(event LogEvent) { events = append(events, event) })),
		WithMiddleware(Computed([]Definition{
			Define("a", func(Snapshot) (any, error) { return 1, nil }, "b"),
			Define("b", func(Snapshot) (any, error) { return 2, nil }, "a"),
		})),
	)

	if st.ComputedCache() != nil {
		t.Fatalf("expected cyclic definitions to abort the middleware")
	}
	st.SetState(Partial{"count": 1})
	if st.GetState()["count"] != 1 {
		t.Fatalf("expected store to stay usable")
	}

	found := false
	for _, event := range events {
		if event.Op == "compose" && event.Err != nil && errors.Is(event.Err, ErrComputedCycle) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a compose diagnostic with the cycle error, got %+v", events)
	}
}

func TestComputedDuplicateNameAbortsMiddleware(t *testing.T) {
	st := New(counterCreator, WithMiddleware(Computed([]Definition{
		Define("x", func(Snapshot) (any, error) { return 1, nil }),
		Define("x", func(Snapshot) (any, error) { return 2, nil }),
	})))

	if st.ComputedCache() != nil {
		t.Fatalf("expected duplicate names to abort the middleware")
	}
}

func TestComputedEmptyDefinitionAbortsMiddleware(t *testing.T) {
	st := New(counterCreator, WithMiddleware(Computed([]Definition{
		{Name: "hollow"},
	})))

	if st.ComputedCache() != nil {
		t.Fatalf("expected a definition without fn or expression to abort the middleware")
	}
}

func TestComputedUnknownName(t *testing.T) {
	_, cache := computedStore(t, Snapshot{}, []Definition{
		Define("known", func(Snapshot) (any, error) { return 1, nil }),
	})

	_, err := cache.Get("missing")
	if !errors.Is(err, ErrUnknownComputed) {
		t.Fatalf("expected ErrUnknownComputed, got %v", err)
	}
}

func TestComputedFailedDerivationNotCached(t *testing.T) {
	calls := 0
	_, cache := computedStore(t, Snapshot{}, []Definition{
		Define("flaky", func(Snapshot) (any, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("not ready")
			}
			return "ok", nil
		}),
	})

	if _, err := cache.Get("flaky"); err == nil {
		t.Fatalf("expected first derivation to fail")
	}

	value, err := cache.Get("flaky")
	if err != nil {
		t.Fatalf("unexpected error on retry: %v", err)
	}
	if value != "ok" {
		t.Fatalf("expected retry to succeed, got %v", value)
	}

	if _, err := cache.Get("flaky"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected success to be cached, got %d derivations", calls)
	}
}

func TestComputedPanicBecomesError(t *testing.T) {
	_, cache := computedStore(t, Snapshot{}, []Definition{
		Define("risky", func(Snapshot) (any, error) {
			panic("boom")
		}),
	})

	_, err := cache.Get("risky")
	if err == nil {
		t.Fatalf("expected panic to surface as error")
	}
	if !strings.Contains(err.Error(), `computed "risky" panic`) {
		t.Fatalf("expected panic detail, got %v", err)
	}
}

func TestComputedRecomputeForcesDerivation(t *testing.T) {
	calls := 0
	_, cache := computedStore(t, Snapshot{"count": 1}, []Definition{
		Define("doubled", func(s Snapshot) (any, error) {
			calls++
			count, _ := s["count"].(int)
			return count * 2, nil
		}, "count"),
	})

	if _, err := cache.Get("doubled"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := cache.Recompute("doubled"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected Recompute to rederive, got %d calls", calls)
	}

	if _, err := cache.Recompute("missing"); !errors.Is(err, ErrUnknownComputed) {
		t.Fatalf("expected ErrUnknownComputed, got %v", err)
	}
}

func TestComputedRecomputeAllStopsAtFailure(t *testing.T) {
	fail := true
	_, cache := computedStore(t, Snapshot{}, []Definition{
		Define("first", func(Snapshot) (any, error) {
			if fail {
				return nil, errors.New("first broken")
			}
			return 1, nil
		}),
		Define("second", func(Snapshot) (any, error) { return 2, nil }),
	})

	if err := cache.RecomputeAll(); err == nil {
		t.Fatalf("expected failure to surface")
	}

	fail = false
	if err := cache.RecomputeAll(); err != nil {
		t.Fatalf("unexpected error once fixed: %v", err)
	}
}

func TestComputedSnapshotWithComputedShadowsState(t *testing.T) {
	_, cache := computedStore(t, Snapshot{"total": "raw", "count": 4}, []Definition{
		Define("total", func(s Snapshot) (any, error) {
			count, _ := s["count"].(int)
			return count * 10, nil
		}, "count"),
	})

	combined, err := cache.SnapshotWithComputed()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if combined["total"] != 40 {
		t.Fatalf("expected computed value to shadow the state key, got %v", combined["total"])
	}
	if combined["count"] != 4 {
		t.Fatalf("expected state keys alongside computed values, got %v", combined["count"])
	}
}

func TestComputedNamesSorted(t *testing.T) {
	_, cache := computedStore(t, Snapshot{}, []Definition{
		Define("zeta", func(Snapshot) (any, error) { return 1, nil }),
		Define("alpha", func(Snapshot) (any, error) { return 2, nil }),
	})

	names := cache.Names()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Fatalf("expected sorted names, got %v", names)
	}
}

func TestComputedExpressionUsesDefaultEngine(t *testing.T) {
	st, cache := computedStore(t, Snapshot{"count": 3}, []Definition{
		DefineExpr("over", "count > 2", "count"),
	})

	value, err := cache.Get("over")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != true {
		t.Fatalf("expected true, got %v", value)
	}

	st.SetState(Partial{"count": 1})
	value, err = cache.Get("over")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != false {
		t.Fatalf("expected false after the write, got %v", value)
	}
}

func TestComputedListenersObserveFreshValues(t *testing.T) {
	var cache *ComputedCache
	st := New(func(SetFn, GetFn, *Store) Snapshot {
		return Snapshot{"count": 1}
	}, WithMiddleware(Computed([]Definition{
		Define("doubled", func(s Snapshot) (any, error) {
			count, _ := s["count"].(int)
			return count * 2, nil
		}, "count"),
	})))
	cache = st.ComputedCache()
	if cache == nil {
		t.Fatalf("expected computed cache to be installed")
	}

	var observed []any
	st.Subscribe(func(Snapshot) {
		value, err := cache.Get("doubled")
		if err != nil {
			t.Errorf("unexpected error inside listener: %v", err)
			return
		}
		observed = append(observed, value)
	})

	st.SetState(Partial{"count": 5})

	if len(observed) != 1 || observed[0] != 10 {
		t.Fatalf("expected listener to see the recomputed value, got %v", observed)
	}
}
