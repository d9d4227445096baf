package state

import (
	"math"
	"sort"
	"testing"
)

func TestSameValue(t *testing.T) {
	sharedMap := map[string]any{"a": 1}
	sharedSlice := []string{"a", "b"}
	sharedFn := func() {}
	type unhashable struct{ Items []int }

	cases := []struct {
		name string
		a, b any
		want bool
	}{
		{name: "both_nil", a: nil, b: nil, want: true},
		{name: "nil_vs_value", a: nil, b: 1, want: false},
		{name: "equal_ints", a: 3, b: 3, want: true},
		{name: "unequal_ints", a: 3, b: 4, want: false},
		{name: "int_vs_int64", a: 3, b: int64(3), want: false},
		{name: "int_vs_float", a: 3, b: 3.0, want: false},
		{name: "equal_strings", a: "dark", b: "dark", want: true},
		{name: "equal_bools", a: true, b: true, want: true},
		{name: "nan_equals_nan", a: math.NaN(), b: math.NaN(), want: true},
		{name: "positive_vs_negative_zero", a: 0.0, b: math.Copysign(0, -1), want: false},
		{name: "equal_floats", a: 1.5, b: 1.5, want: true},
		{name: "same_map_instance", a: sharedMap, b: sharedMap, want: true},
		{name: "equal_but_distinct_maps", a: map[string]any{"a": 1}, b: map[string]any{"a": 1}, want: false},
		{name: "same_slice_instance", a: sharedSlice, b: sharedSlice, want: true},
		{name: "equal_but_distinct_slices", a: []string{"a"}, b: []string{"a"}, want: false},
		{name: "same_func_instance", a: sharedFn, b: sharedFn, want: true},
		{name: "incomparable_structs", a: unhashable{Items: []int{1}}, b: unhashable{Items: []int{1}}, want: false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := SameValue(tc.a, tc.b); got != tc.want {
				t.Fatalf("SameValue(%v, %v) = %v, expected %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestSameValueSlicePrefixStaysDistinct(t *testing.T) {
	backing := []int{1, 2, 3}
	full := backing[:3]
	prefix := backing[:2]

	if SameValue(full, prefix) {
		t.Fatalf("expected slices of different lengths over the same array to differ")
	}
	if !SameValue(full, backing) {
		t.Fatalf("expected identical slice headers to match")
	}
}

func TestChangedKeys(t *testing.T) {
	current := Snapshot{"count": 1, "label": "x", "ratio": math.NaN()}
	update := Partial{
		"count": 1,
		"label": "y",
		"ratio": math.NaN(),
		"added": true,
	}

	got := changedKeys(current, update)
	sort.Strings(got)

	want := []string{"added", "label"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected changed keys %v, got %v", want, got)
	}
}

func TestDiffKeysIncludesRemovals(t *testing.T) {
	old := Snapshot{"a": 1, "b": 2, "c": 3}
	next := Snapshot{"b": 20, "c": 3, "d": 4}

	got := diffKeys(old, next)
	sort.Strings(got)

	want := []string{"a", "b", "d"}
	if len(got) != len(want) {
		t.Fatalf("expected diff keys %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected diff keys %v, got %v", want, got)
		}
	}
}

func TestSameSnapshotComparesIdentity(t *testing.T) {
	a := Snapshot{"k": 1}
	b := Snapshot{"k": 1}

	if !sameSnapshot(a, a) {
		t.Fatalf("expected a snapshot to match itself")
	}
	if sameSnapshot(a, b) {
		t.Fatalf("expected distinct instances to differ even with equal contents")
	}
	if !sameSnapshot(nil, nil) {
		t.Fatalf("expected two nil snapshots to match")
	}
	if sameSnapshot(a, nil) {
		t.Fatalf("expected nil to differ from a live snapshot")
	}
}
