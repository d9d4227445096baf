package state

import (
	"encoding/json"
)

// PersistedRecord is the wire form of a persisted snapshot: the partialized
// state alongside the version of the code that wrote it.
type PersistedRecord struct {
	State   Snapshot `json:"state"`
	Version int      `json:"version"`
}

// ToJSON serialises the record for storage.
func (r PersistedRecord) ToJSON() ([]byte, error) {
	type alias PersistedRecord
	return json.Marshal(alias(r))
}

// RecordFromJSON deserialises a payload that was previously generated via
// ToJSON.
func RecordFromJSON(payload []byte) (PersistedRecord, error) {
	type alias PersistedRecord
	var record alias
	if err := json.Unmarshal(payload, &record); err != nil {
		return PersistedRecord{}, err
	}
	return PersistedRecord(record), nil
}
