//go:build js_eval

package state

import (
	"testing"
)

func TestJSEvaluatorAvailableUnderTag(t *testing.T) {
	if !jsEvaluatorAvailable() {
		t.Fatalf("expected the goja engine to be linked in")
	}
	if NewJSEvaluator() == nil {
		t.Fatalf("expected a usable evaluator")
	}
}

func TestJSEvaluatorDerivesComputedValues(t *testing.T) {
	st := New(func(SetFn, GetFn, *Store) Snapshot {
		return Snapshot{"count": 5, "width": 1280, "height": 720}
	}, WithMiddleware(Computed(
		[]Definition{
			DefineExpr("tier", `count >= 3 ? "high" : "low"`, "count"),
			DefineExpr("landscape", `Math.max(width, height) === width`, "width", "height"),
		},
		ComputedWithEvaluator(NewJSEvaluator()),
	)))

	cache := st.ComputedCache()
	tier, err := cache.Get("tier")
	if err != nil {
		t.Fatalf("tier: %v", err)
	}
	if tier != "high" {
		t.Fatalf("expected the ternary branch, got %v", tier)
	}

	landscape, err := cache.Get("landscape")
	if err != nil {
		t.Fatalf("landscape: %v", err)
	}
	if landscape != true {
		t.Fatalf("expected Math to be available, got %v", landscape)
	}

	st.SetState(Partial{"count": 1})
	tier, err = cache.Get("tier")
	if err != nil {
		t.Fatalf("tier after write: %v", err)
	}
	if tier != "low" {
		t.Fatalf("expected recomputation after the dependency changed, got %v", tier)
	}
}

func TestJSEvaluatorReusesCompiledPrograms(t *testing.T) {
	cache := &fakeProgramCache{}
	computed := expressionStore(t, Snapshot{"count": 2}, "count * 2 === 4",
		ComputedWithEvaluator(NewJSEvaluator(JSWithProgramCache(cache))),
	)

	if _, err := computed.Get("result"); err != nil {
		t.Fatalf("first evaluation: %v", err)
	}
	if cache.misses != 1 || cache.hits != 0 {
		t.Fatalf("expected a single compile, got hits=%d misses=%d", cache.hits, cache.misses)
	}

	if _, err := computed.Recompute("result"); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if cache.misses != 1 || cache.hits != 1 {
		t.Fatalf("expected the cached program reused, got hits=%d misses=%d", cache.hits, cache.misses)
	}
}

func TestJSEvaluatorCallsRegisteredFunctionsByName(t *testing.T) {
	registry := NewFunctionRegistry()
	if err := registry.Register("shout", func(args ...any) (any, error) {
		name, _ := args[0].(string)
		return name + "!", nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	computed := expressionStore(t, Snapshot{"name": "ada"}, `shout(name) === "ada!"`,
		ComputedWithEvaluator(NewJSEvaluator(JSWithFunctionRegistry(registry))),
	)

	value, err := computed.Get("result")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if value != true {
		t.Fatalf("expected the registered function callable as a bare name, got %v", value)
	}
}
