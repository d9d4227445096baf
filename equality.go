package state

import (
	"math"
	"reflect"
)

// SameValue reports whether two values are indistinguishable for write
// diffing: NaN equals NaN, positive and negative zero differ, and composite
// values (maps, slices, funcs, pointers) compare by identity, not structure.
// Values of different dynamic types never compare equal.
func SameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	av := reflect.ValueOf(a)
	bv := reflect.ValueOf(b)
	if av.Type() != bv.Type() {
		return false
	}
	switch av.Kind() {
	case reflect.Float32, reflect.Float64:
		return sameFloat(av.Float(), bv.Float())
	case reflect.Map, reflect.Func, reflect.Chan, reflect.Pointer, reflect.UnsafePointer:
		return av.Pointer() == bv.Pointer()
	case reflect.Slice:
		return av.Pointer() == bv.Pointer() && av.Len() == bv.Len()
	default:
		if !av.Type().Comparable() {
			return false
		}
		return a == b
	}
}

func sameFloat(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	if a == 0 && b == 0 {
		return math.Signbit(a) == math.Signbit(b)
	}
	return a == b
}

// changedKeys returns the partial's keys whose values differ from current.
func changedKeys(current Snapshot, update Partial) []string {
	keys := make([]string, 0, len(update))
	for key, value := range update {
		if existing, ok := current[key]; ok && SameValue(existing, value) {
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

// diffKeys returns every top-level key whose value differs between old and
// next, including keys present on only one side.
func diffKeys(old, next Snapshot) []string {
	keys := make([]string, 0, len(next))
	for key, value := range next {
		if existing, ok := old[key]; !ok || !SameValue(existing, value) {
			keys = append(keys, key)
		}
	}
	for key := range old {
		if _, ok := next[key]; !ok {
			keys = append(keys, key)
		}
	}
	return keys
}

// sameSnapshot reports whether two snapshots are the same map instance.
func sameSnapshot(a, b Snapshot) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}
