package lifecycle

import (
	"fmt"

	"github.com/matthewbaird/propmaint/internal/types"
)

// ValidTaskTransitions lists the statuses each status may move to. Staying in
// the same status is always allowed and is a no-op.
var ValidTaskTransitions = map[types.Status][]types.Status{
	types.StatusPredicted: {types.StatusPending},
	types.StatusPending:   {types.StatusActive, types.StatusResolved},
	types.StatusActive:    {types.StatusResolved},
	types.StatusResolved:  {},
}

// ValidateTransition checks whether transitioning from current to target is
// allowed according to the given transition map. It returns nil if the
// transition is valid, or a descriptive error otherwise.
func ValidateTransition(transitions map[types.Status][]types.Status, current, target types.Status) error {
	allowed, ok := transitions[current]
	if !ok {
		return fmt.Errorf("unknown current state: %s", current)
	}
	for _, s := range allowed {
		if s == target {
			return nil
		}
	}
	return fmt.Errorf("transition from %q to %q is not allowed", current, target)
}
