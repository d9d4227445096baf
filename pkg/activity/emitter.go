package activity

import (
	"context"
	"strings"
)

// DefaultChannel is stamped on events that do not name their own channel.
const DefaultChannel = "state"

// Config controls a store's event emission. Enabled gates emission as a
// whole; Channel overrides DefaultChannel.
type Config struct {
	Enabled bool
	Channel string
}

// Emitter stamps store events with defaults and fans them out to hooks. A
// nil *Emitter is valid and emits nothing.
type Emitter struct {
	hooks   Hooks
	enabled bool
	channel string
}

// NewEmitter builds an emitter over hooks. Nil hooks are dropped; an emitter
// left with nothing to notify reports disabled regardless of cfg.
func NewEmitter(hooks Hooks, cfg Config) *Emitter {
	kept := make(Hooks, 0, len(hooks))
	for _, hook := range hooks {
		if hook != nil {
			kept = append(kept, hook)
		}
	}
	if len(kept) == 0 {
		kept = nil
	}
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		channel = DefaultChannel
	}
	return &Emitter{
		hooks:   kept,
		enabled: cfg.Enabled && len(kept) > 0,
		channel: channel,
	}
}

// Enabled reports whether Emit would deliver anything.
func (e *Emitter) Enabled() bool {
	return e != nil && e.enabled && len(e.hooks) > 0
}

// Emit applies the channel default and forwards the event to every hook.
func (e *Emitter) Emit(ctx context.Context, event Event) error {
	if !e.Enabled() {
		return nil
	}
	if strings.TrimSpace(event.Channel) == "" {
		event.Channel = e.channel
	}
	return e.hooks.Notify(ctx, event)
}
