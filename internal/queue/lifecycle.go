package queue

import (
	"fmt"
	"slices"

	"github.com/dusk-indust/adqueue/internal/request"
)

// transitions lists the allowed forward edges of the request lifecycle.
// Built has no outgoing edge. Staying in the same state is always allowed.
var transitions = map[request.State][]request.State{
	request.StateDrafting:          {request.StateProcessing},
	request.StateProcessing:        {request.StateAwaitingSelection, request.StateReady},
	request.StateAwaitingSelection: {request.StateAnnotating},
	request.StateAnnotating:        {request.StateReady},
	request.StateReady:             {request.StateBuilt},
}

// CanTransition reports whether a request may move from one state to another.
func CanTransition(from, to request.State) bool {
	if from == to {
		return !from.IsTerminal()
	}
	return slices.Contains(transitions[from], to)
}

// checkTransition returns ErrInvalidTransition for an edge outside the table.
func checkTransition(from, to request.State) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", request.ErrInvalidTransition, from, to)
	}
	return nil
}

// checkInvariants verifies the rules every mutation must preserve: the
// category is locked outside drafting and the level scope matches the
// category policy.
func checkInvariants(before, after *request.ChangeRequest) error {
	if after.ID != before.ID {
		return fmt.Errorf("queue: request id is immutable")
	}
	if before.State.CategoryLocked() && after.Category != before.Category {
		return fmt.Errorf("%w: category is locked once %s", request.ErrInvalidTransition, before.State)
	}
	if err := checkTransition(before.State, after.State); err != nil {
		return err
	}
	requiresLevel := after.Policy().RequiresLevel
	if requiresLevel && after.Level == nil {
		return &request.ValidationError{Field: "level", Reason: fmt.Sprintf("%s requires a level", after.Category)}
	}
	if !requiresLevel && after.Level != nil {
		return &request.ValidationError{Field: "level", Reason: fmt.Sprintf("%s is global and cannot target a level", after.Category)}
	}
	return nil
}
