package reservation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

type Status string

const (
	StatusBooked    Status = "booked"
	StatusPickedUp  Status = "picked_up"
	StatusReturned  Status = "returned"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

var ErrUnknownStatus = errors.New("unknown reservation status")

// rank orders the forward chain. Cancelled sits outside it.
var rank = map[Status]int{
	StatusBooked:    0,
	StatusPickedUp:  1,
	StatusReturned:  2,
	StatusCompleted: 3,
}

// ParseStatus accepts both status sets the rental API has used. The older
// pending and confirmed values both describe a booking that has not started
// and map to booked.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "booked", "pending", "confirmed":
		return StatusBooked, nil
	case "picked_up":
		return StatusPickedUp, nil
	case "returned":
		return StatusReturned, nil
	case "completed":
		return StatusCompleted, nil
	case "cancelled", "canceled":
		return StatusCancelled, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// IsValid reports whether s is one of the canonical statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusBooked, StatusPickedUp, StatusReturned, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanAdvanceTo reports whether the lifecycle allows moving from s to next.
// The chain only moves forward and cancelled is reachable from any
// non-terminal status. Staying on the same status is always allowed.
func (s Status) CanAdvanceTo(next Status) bool {
	if s == next {
		return true
	}
	if s.IsTerminal() {
		return false
	}
	if next == StatusCancelled {
		return true
	}
	from, ok := rank[s]
	if !ok {
		return false
	}
	to, ok := rank[next]
	return ok && to > from
}

// DirectlySettable reports whether the status can be written without the
// pickup or return sub-flow.
func (s Status) DirectlySettable() bool {
	return s == StatusBooked || s == StatusCancelled || s == StatusCompleted
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// FuelLevel is the tank level noted at pickup and return.
type FuelLevel string

const (
	FuelUnknown      FuelLevel = ""
	FuelQuarter      FuelLevel = "1/4"
	FuelHalf         FuelLevel = "1/2"
	FuelThreeQuarter FuelLevel = "3/4"
	FuelFull         FuelLevel = "full"
)

func (f FuelLevel) IsValid() bool {
	switch f {
	case FuelUnknown, FuelQuarter, FuelHalf, FuelThreeQuarter, FuelFull:
		return true
	}
	return false
}
