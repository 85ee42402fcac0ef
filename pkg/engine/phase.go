package engine

import (
	"fmt"

	"github.com/vanderheijden86/epimap/pkg/debug"
)

// Phase is the data-loading state of the controller.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// trigger is an input to the phase machine.
type trigger int

const (
	trigFetchStart  trigger = iota // a new batch was planned
	trigCacheHit                   // the active partition is already cached
	trigBatchLatest                // the newest batch reported
	trigBatchStale                 // an older batch reported
	trigCleared                    // no diagnosis is active any more
	trigReset                      // clear-all
)

func (t trigger) String() string {
	return [...]string{"fetch-start", "cache-hit", "batch-latest", "batch-stale", "cleared", "reset"}[t]
}

// transitions is the complete phase table. A missing entry is a bug and is
// logged; the phase then stays unchanged.
var transitions = map[Phase]map[trigger]Phase{
	PhaseIdle: {
		trigFetchStart:  PhaseLoading,
		trigCacheHit:    PhaseIdle,
		trigBatchLatest: PhaseIdle,
		trigBatchStale:  PhaseIdle,
		trigCleared:     PhaseIdle,
		trigReset:       PhaseIdle,
	},
	PhaseLoading: {
		trigFetchStart:  PhaseLoading,
		trigCacheHit:    PhaseIdle,
		trigBatchLatest: PhaseIdle,
		trigBatchStale:  PhaseLoading,
		trigCleared:     PhaseIdle,
		trigReset:       PhaseIdle,
	},
}

func (c *Controller) fire(t trigger) {
	next, ok := transitions[c.phase][t]
	if !ok {
		debug.Log("engine: no transition from %s on %s", c.phase, t)
		return
	}
	if next != c.phase {
		debug.Log("engine: %s -> %s (%s)", c.phase, next, t)
	}
	c.phase = next
}
