package lifecycle

import (
	"errors"
	"fmt"

	"github.com/semanticallynull/rentaldesk-backend/reservation"
)

var ErrInvalidTransition = errors.New("invalid status transition")

// Trigger names the sub-flow that must run before a status is final.
type Trigger string

const (
	TriggerNone   Trigger = ""
	TriggerPickup Trigger = "pickup"
	TriggerReturn Trigger = "return"
)

// Status is the status the trigger finalises.
func (t Trigger) Status() reservation.Status {
	switch t {
	case TriggerPickup:
		return reservation.StatusPickedUp
	case TriggerReturn:
		return reservation.StatusReturned
	}
	return ""
}

// PlanStatus decides which status is written by the save and which
// sub-flow, if any, has to follow it. persisted is nil for a reservation
// that does not exist yet. picked_up and returned are never written here:
// the reservation keeps its current status and the matching trigger is
// returned instead.
func PlanStatus(persisted *reservation.Status, intended reservation.Status) (reservation.Status, Trigger, error) {
	current := reservation.StatusBooked
	if persisted != nil {
		current = *persisted
	}

	if !intended.IsValid() {
		return "", TriggerNone, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, intended)
	}

	switch intended {
	case reservation.StatusPickedUp:
		if current == reservation.StatusPickedUp {
			return current, TriggerNone, nil
		}
		if !current.CanAdvanceTo(intended) {
			return "", TriggerNone, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current, intended)
		}
		return current, TriggerPickup, nil

	case reservation.StatusReturned:
		if current == reservation.StatusReturned || current == reservation.StatusCompleted {
			return current, TriggerNone, nil
		}
		if !current.CanAdvanceTo(intended) {
			return "", TriggerNone, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current, intended)
		}
		return current, TriggerReturn, nil
	}

	if !current.CanAdvanceTo(intended) {
		return "", TriggerNone, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current, intended)
	}
	return intended, TriggerNone, nil
}

var errTriggerPending = errors.New("a trigger is already recorded for this save")

// triggerCell carries the pending trigger from before the save into the
// save's completion path. It is written once per save and cleared on read.
type triggerCell struct {
	v   Trigger
	set bool
}

// Set records t. A second Set before Take is refused.
func (c *triggerCell) Set(t Trigger) error {
	if c.set {
		return errTriggerPending
	}
	c.v, c.set = t, true
	return nil
}

// Take returns the stored trigger and empties the cell.
func (c *triggerCell) Take() Trigger {
	t := c.v
	c.v, c.set = TriggerNone, false
	return t
}
