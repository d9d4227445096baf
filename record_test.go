package state

import (
	"testing"
)

func TestPersistedRecordJSONShape(t *testing.T) {
	record := PersistedRecord{
		State:   Snapshot{"count": 3, "theme": "dark"},
		Version: 2,
	}

	payload, err := record.ToJSON()
	if err != nil {
		t.Fatalf("unexpected error from ToJSON: %v", err)
	}

	want := `{"state":{"count":3,"theme":"dark"},"version":2}`
	if string(payload) != want {
		t.Fatalf("expected record %s, got %s", want, payload)
	}
}

func TestPersistedRecordRoundTrip(t *testing.T) {
	original := PersistedRecord{
		State:   Snapshot{"enabled": true, "limit": 5.5},
		Version: 7,
	}

	payload, err := original.ToJSON()
	if err != nil {
		t.Fatalf("unexpected error from ToJSON: %v", err)
	}

	decoded, err := RecordFromJSON(payload)
	if err != nil {
		t.Fatalf("unexpected error from RecordFromJSON: %v", err)
	}
	if decoded.Version != 7 {
		t.Fatalf("expected version 7, got %d", decoded.Version)
	}
	if decoded.State["enabled"] != true {
		t.Fatalf("expected enabled flag preserved, got %v", decoded.State["enabled"])
	}
	if decoded.State["limit"] != 5.5 {
		t.Fatalf("expected limit preserved as JSON number, got %v", decoded.State["limit"])
	}
}

func TestRecordFromJSONRejectsGarbage(t *testing.T) {
	if _, err := RecordFromJSON([]byte("not json")); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
	if _, err := RecordFromJSON([]byte(`{"state": 12}`)); err == nil {
		t.Fatalf("expected error when state is not an object")
	}
}

func TestRecordFromJSONToleratesMissingFields(t *testing.T) {
	record, err := RecordFromJSON([]byte(`{}`))
	if err != nil {
		t.Fatalf("unexpected error for empty object: %v", err)
	}
	if record.Version != 0 || record.State != nil {
		t.Fatalf("expected zero record, got %+v", record)
	}
}
