package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/classroomlive/classroomd/internal/rooms"
)

// RoomRef names a fan-out target.
type RoomRef struct {
	Type rooms.Type
	Name string
}

// Result is what a handler hands back to the dispatcher: the payload to
// echo to the caller (Event defaults to the inbound verb when empty, but
// FEEDBACK_* and presence events name their own outbound verb), plus any
// additional rooms the same payload fans out to.
type Result struct {
	Event   string
	Payload any
	FanOut  []RoomRef
	// NoCallerEcho suppresses the direct reply to the caller, used by
	// handlers whose entire effect is a fan-out (none currently need it,
	// kept for handlers that answer purely via a broadcast).
	NoCallerEcho bool
}

// HandlerFunc implements one protocol verb.
type HandlerFunc func(ctx context.Context, env *Env, conn *Conn, data json.RawMessage) (*Result, error)

// Descriptor is the static per-event metadata dispatch runs on: required
// top-level fields, whether the session must already be in a lesson, and
// whether the connection must be an admin/monitor session. Validation is
// data-driven, not reflective.
type Descriptor struct {
	Name          string
	Required      []string
	NeedsInLesson bool
	NeedsAdmin    bool
	Handle        HandlerFunc
}

var (
	registryMu sync.RWMutex
	registry   = map[string]*Descriptor{}
)

// Register adds d to the dispatch table. Handler packages call this from
// an init() func so the table is fully built before any connection is
// served.
func Register(d *Descriptor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[d.Name]; exists {
		panic(fmt.Sprintf("dispatcher: duplicate registration for %q", d.Name))
	}
	registry[d.Name] = d
}

func lookup(event string) (*Descriptor, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	d, ok := registry[event]
	return d, ok
}

// validateRequired checks that every required field is present as a
// top-level key of data. Presence, not type, is checked here; handlers
// validate shape/type themselves when decoding into their typed request
// struct.
func validateRequired(required []string, data json.RawMessage) error {
	if len(required) == 0 {
		return nil
	}
	var obj map[string]json.RawMessage
	if len(data) > 0 {
		if err := json.Unmarshal(data, &obj); err != nil {
			return NewError(KindMissingField, "data is not an object")
		}
	}
	for _, field := range required {
		if _, ok := obj[field]; !ok {
			return NewError(KindMissingField, fmt.Sprintf("missing field %q", field))
		}
	}
	return nil
}
