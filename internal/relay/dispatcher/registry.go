package dispatcher

import (
	"sort"

	"github.com/autopeer-io/flightrelay/internal/relay/core/model"
	"github.com/autopeer-io/flightrelay/internal/relay/operation"
)

// Factory builds the operation behind a command token.
type Factory func(e *operation.Executor) operation.Operation

// Entry is one registered command.
type Entry struct {
	Token       string
	Description string
	Factory     Factory
}

// DefaultEntries is the relay's command set. Tokens are matched exactly.
func DefaultEntries() []Entry {
	setMode := func(mode string) Factory {
		return func(e *operation.Executor) operation.Operation { return e.SetModeOp(mode) }
	}

	return []Entry{
		{Token: "LAND", Description: "Switch to LAND and wait for the mode", Factory: setMode(model.ModeLand)},
		{Token: "RTL", Description: "Switch to RTL and wait for the mode", Factory: setMode(model.ModeRTL)},
		{Token: "STABILIZE", Description: "Switch to STABILIZE and wait for the mode", Factory: setMode(model.ModeStabilize)},
		{Token: "AUTO", Description: "Switch to AUTO and wait for the mode", Factory: setMode(model.ModeAuto)},
		{Token: "ARM", Description: "Switch to GUIDED, then arm", Factory: (*operation.Executor).ArmOp},
		{Token: "DISARM", Description: "Disarm and wait until disarmed", Factory: (*operation.Executor).DisarmOp},
		{Token: "TAKEOFF", Description: "GUIDED, arm, climb to the default takeoff altitude", Factory: (*operation.Executor).TakeoffOp},
		{Token: "START_MISSION", Description: "GUIDED, arm, climb, then AUTO to fly the uploaded mission", Factory: (*operation.Executor).StartMissionOp},
	}
}

// Registry maps command tokens to entries.
type Registry struct {
	entries map[string]Entry
}

// NewRegistry indexes entries by token. Later entries replace earlier ones.
func NewRegistry(entries ...Entry) *Registry {
	r := &Registry{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		r.entries[e.Token] = e
	}
	return r
}

// Lookup finds the entry for token.
func (r *Registry) Lookup(token string) (Entry, bool) {
	e, ok := r.entries[token]
	return e, ok
}

// Entries lists the registry sorted by token.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out
}
