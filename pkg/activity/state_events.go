package activity

import (
	"strings"
	"time"
)

// StateEventInput describes the common fields for store lifecycle events.
// Store carries the store name and becomes the event's ObjectID; unnamed
// stores produce an empty ObjectID, which Hooks.Notify drops.
type StateEventInput struct {
	ActorID    string
	UserID     string
	TenantID   string
	Store      string
	Channel    string
	Keys       []string
	Metadata   map[string]any
	OccurredAt time.Time

	Cursor  int
	EntryID string
	Version int
	Err     error
}

// BuildStateUpdatedEvent constructs an activity event for a committed write.
func BuildStateUpdatedEvent(input StateEventInput) Event {
	return buildStateEvent("state.updated", input, nil)
}

// BuildStateTraveledEvent constructs an activity event for a history jump.
func BuildStateTraveledEvent(input StateEventInput) Event {
	extra := map[string]any{"cursor": input.Cursor}
	if input.EntryID != "" {
		extra["entry_id"] = input.EntryID
	}
	return buildStateEvent("state.traveled", input, extra)
}

// BuildStateRehydratedEvent constructs an activity event for a completed
// rehydration, successful or not.
func BuildStateRehydratedEvent(input StateEventInput) Event {
	extra := map[string]any{"version": input.Version}
	if input.Err != nil {
		extra["error"] = input.Err.Error()
	}
	return buildStateEvent("state.rehydrated", input, extra)
}

// BuildStateStorageClearedEvent constructs an activity event for a cleared
// persisted record.
func BuildStateStorageClearedEvent(input StateEventInput) Event {
	return buildStateEvent("state.storage_cleared", input, nil)
}

func buildStateEvent(verb string, input StateEventInput, extra map[string]any) Event {
	metadata := cloneMap(input.Metadata)
	for key, value := range extra {
		metadata = ensureMetadata(metadata)
		metadata[key] = value
	}

	keys := input.Keys
	if len(keys) > 0 {
		keys = append([]string{}, input.Keys...)
	}

	return Event{
		Verb:       verb,
		ActorID:    strings.TrimSpace(input.ActorID),
		UserID:     strings.TrimSpace(input.UserID),
		TenantID:   strings.TrimSpace(input.TenantID),
		ObjectType: "state",
		ObjectID:   strings.TrimSpace(input.Store),
		Channel:    strings.TrimSpace(input.Channel),
		Keys:       keys,
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

func ensureMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	return meta
}
