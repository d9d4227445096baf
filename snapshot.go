package state

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/goliatone/go-state/internal/hydrate"
)

// Clone returns a shallow copy of the snapshot. Function values and nested
// structures are shared with the original.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	for key, value := range s {
		out[key] = value
	}
	return out
}

// Keys returns the snapshot's keys sorted alphabetically.
func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s))
	for key := range s {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether key is present in the snapshot.
func (s Snapshot) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Clone returns a shallow copy of the partial.
func (p Partial) Clone() Partial {
	return Partial(Snapshot(p).Clone())
}

// Encode converts a typed value into a Snapshot through its JSON field names.
func Encode[T any](value T) (Snapshot, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("state: encode snapshot: %w", err)
	}
	var out Snapshot
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("state: encode snapshot: %w", err)
	}
	return out, nil
}

// Decode converts a snapshot into a typed view. Keys without a matching field
// are dropped; missing keys leave their fields at the zero value.
func Decode[T any](snapshot Snapshot) (T, error) {
	return hydrate.NewDecoder[T]().Decode(hydrate.Context{}, snapshot)
}

// DecodeState decodes the store's current snapshot into a typed view.
func DecodeState[T any](store *Store) (T, error) {
	var zero T
	if store == nil {
		return zero, fmt.Errorf("state: decode state: store is nil")
	}
	decoder := hydrate.NewDecoder[T]()
	return decoder.Decode(hydrate.Context{Store: store.Name()}, store.GetState())
}
