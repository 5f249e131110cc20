package topic

import (
	"fmt"
	"slices"
	"sync"
)

// State is a tab's position in the detection lifecycle. The cache is
// process-local: nothing here is persisted.
type State string

const (
	Unanalyzed        State = "UNANALYZED"
	Eligible          State = "ELIGIBLE"
	Analyzing         State = "ANALYZING"
	Renamed           State = "RENAMED"
	SkippedCustomName State = "SKIPPED_CUSTOM_NAME"
	SkippedNoFit      State = "SKIPPED_NO_FIT"
)

// validTransitions defines allowed per-tab state transitions. The three
// result states are terminal until an explicit reset.
var validTransitions = map[State][]State{
	Unanalyzed: {Eligible, SkippedCustomName},
	Eligible:   {Analyzing},
	Analyzing:  {Renamed, SkippedCustomName, SkippedNoFit, Unanalyzed},
}

// IsTerminal reports whether a tab in this state is skipped by the engine
// for the rest of the process lifetime.
func (s State) IsTerminal() bool {
	return s == Renamed || s == SkippedCustomName || s == SkippedNoFit
}

// Cache tracks the per-tab analysis state machine. All transitions are
// checked; an invalid one indicates a bug in the engine's sequencing.
type Cache struct {
	mu     sync.RWMutex
	states map[string]State
}

// NewCache creates an empty analysis cache.
func NewCache() *Cache {
	return &Cache{states: make(map[string]State)}
}

// Current returns the tab's state, Unanalyzed if never seen.
func (c *Cache) Current(tabID string) State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.states[tabID]; ok {
		return s
	}
	return Unanalyzed
}

// Transition moves the tab to a new state, enforcing the lifecycle.
func (c *Cache) Transition(tabID string, to State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	from, ok := c.states[tabID]
	if !ok {
		from = Unanalyzed
	}
	if !slices.Contains(validTransitions[from], to) {
		return fmt.Errorf("invalid topic state transition %s -> %s for tab %s", from, to, tabID)
	}
	c.states[tabID] = to
	return nil
}

// Reset clears the tab's cached state so a manual re-run starts fresh.
func (c *Cache) Reset(tabID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, tabID)
}
