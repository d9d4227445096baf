// Package merge provides the snapshot merge and clone primitives used by the
// state container: shallow persisted-over-initial merges for rehydration,
// deep merges for nested persisted payloads, and defensive deep copies for
// history entries and other read-only views.
package merge

import "reflect"

// Shallow returns a new map holding every key of base overwritten by every
// key of overlay. Values are shared with the inputs, not copied; only the
// top-level map is new. A nil base and nil overlay produce nil.
func Shallow(base, overlay map[string]any) map[string]any {
	if base == nil && overlay == nil {
		return nil
	}
	out := make(map[string]any, len(base)+len(overlay))
	for key, value := range base {
		out[key] = value
	}
	for key, value := range overlay {
		out[key] = value
	}
	return out
}

// Deep merges overlay into base recursively: when both sides hold a
// map[string]any under the same key the maps are merged, otherwise the
// overlay value wins. The result is a fully independent copy; neither input
// is mutated or aliased.
func Deep(base, overlay map[string]any) map[string]any {
	if base == nil && overlay == nil {
		return nil
	}
	out := make(map[string]any, len(base)+len(overlay))
	for key, value := range base {
		out[key] = Clone(value)
	}
	for key, value := range overlay {
		if existing, ok := out[key]; ok {
			if baseMap, ok := existing.(map[string]any); ok {
				if overlayMap, ok := value.(map[string]any); ok {
					out[key] = Deep(baseMap, overlayMap)
					continue
				}
			}
		}
		out[key] = Clone(value)
	}
	return out
}

// CloneSnapshot deep-copies a snapshot map. Nil stays nil.
func CloneSnapshot(snapshot map[string]any) map[string]any {
	if snapshot == nil {
		return nil
	}
	out := make(map[string]any, len(snapshot))
	for key, value := range snapshot {
		out[key] = Clone(value)
	}
	return out
}

// Clone deep-copies value through reflection: maps, slices, pointers, and
// exported struct fields are duplicated recursively, so mutating the copy
// never reaches the original. Unexported struct fields are dropped, and
// function and channel values are shared as-is.
func Clone[T any](value T) T {
	cloned := clone(reflect.ValueOf(value))
	if !cloned.IsValid() {
		var zero T
		return zero
	}
	if result, ok := cloned.Interface().(T); ok {
		return result
	}
	var zero T
	return zero
}

func clone(v reflect.Value) reflect.Value {
	if !v.IsValid() {
		return v
	}

	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		out := reflect.New(v.Type().Elem())
		out.Elem().Set(clone(v.Elem()))
		return out
	case reflect.Interface:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		elem := clone(v.Elem())
		if !elem.IsValid() {
			return reflect.Zero(v.Type())
		}
		return elem.Convert(v.Type())
	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.NumField(); i++ {
			field := out.Field(i)
			if !field.CanSet() {
				continue
			}
			field.Set(clone(v.Field(i)))
		}
		return out
	case reflect.Map:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), clone(iter.Value()))
		}
		return out
	case reflect.Slice:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(clone(v.Index(i)))
		}
		return out
	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(clone(v.Index(i)))
		}
		return out
	default:
		return v
	}
}
