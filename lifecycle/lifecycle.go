// Package lifecycle drives a reservation through booking, pickup, return
// and completion for a single booking form.
package lifecycle

import (
	"context"

	"github.com/semanticallynull/rentaldesk-backend/calendar"
	"github.com/semanticallynull/rentaldesk-backend/customer"
	"github.com/semanticallynull/rentaldesk-backend/document"
	"github.com/semanticallynull/rentaldesk-backend/reservation"
	"github.com/semanticallynull/rentaldesk-backend/vehicle"
)

// Backend is the part of the rental API the controller calls.
type Backend interface {
	GetReservation(ctx context.Context, id int64) (reservation.Reservation, error)
	OverdueReservations(ctx context.Context, vehicleID int64) ([]reservation.Reservation, error)
	CheckConflicts(ctx context.Context, vehicleID int64, r calendar.Range, excludeID int64) ([]reservation.Reservation, error)
	CreateReservation(ctx context.Context, p reservation.Payload, attachment *document.File) (reservation.Reservation, error)
	UpdateReservation(ctx context.Context, id int64, p reservation.Payload, attachment *document.File) (reservation.Reservation, error)
	UpdateStatus(ctx context.Context, id int64, status reservation.Status) (reservation.Reservation, error)
	DeleteReservation(ctx context.Context, id int64) error
	GetVehicle(ctx context.Context, id int64) (vehicle.Vehicle, error)
	GetCustomer(ctx context.Context, id int64) (customer.Customer, error)
}

// Notifier shows short, non-blocking messages to the user.
type Notifier interface {
	Success(msg string)
	Warn(msg string)
	Error(msg string)
}

// Invalidator drops cached query results whose key starts with one of keys.
type Invalidator interface {
	Invalidate(ctx context.Context, keys ...string)
}

// PostSaveHook runs after a reservation reached its final state for a save.
// Hook errors are logged and never fail the save.
type PostSaveHook interface {
	ReservationSaved(ctx context.Context, r reservation.Reservation, created bool) error
}

// Query keys invalidated after a successful save. Overdue and reservation
// keys are also dropped when an overdue reservation is resolved.
const (
	KeyAvailability     = "vehicles/available"
	KeyReservationRange = "reservations/range"
	KeyReservations     = "reservations/list"
	KeyOverdue          = "reservations/overdue"
	KeyVehicles         = "vehicles/list"
	KeyDocuments        = "documents"
)

type OutcomeKind string

const (
	OutcomeInvalid        OutcomeKind = "invalid"
	OutcomeOverdue        OutcomeKind = "overdue"
	OutcomeConflict       OutcomeKind = "conflict"
	OutcomeAwaitingPickup OutcomeKind = "awaiting_pickup"
	OutcomeAwaitingReturn OutcomeKind = "awaiting_return"
	OutcomeSaved          OutcomeKind = "saved"
)

// Outcome is the result of a submission step that did not fail outright.
type Outcome struct {
	Kind        OutcomeKind                  `json:"kind"`
	Reservation *reservation.Reservation     `json:"reservation,omitempty"`
	Errors      reservation.ValidationErrors `json:"errors,omitempty"`
	Overdue     []reservation.Reservation    `json:"overdue,omitempty"`
	Conflicts   []reservation.Reservation    `json:"conflicts,omitempty"`
}

// SubFlow is an open pickup or return sub-flow.
type SubFlow struct {
	Trigger     Trigger                 `json:"trigger"`
	Reservation reservation.Reservation `json:"reservation"`
	Created     bool                    `json:"created"`
	// Saving is set while the sub-flow's fields are being written.
	Saving bool `json:"saving"`
}

// State is a snapshot of the controller.
type State struct {
	Persisted       *reservation.Reservation  `json:"persisted"`
	DisplayedStatus reservation.Status        `json:"displayedStatus"`
	SubFlow         *SubFlow                  `json:"subFlow,omitempty"`
	PendingOverdue  []reservation.Reservation `json:"pendingOverdue,omitempty"`
}

type OverdueAction string

const (
	ActionComplete OverdueAction = "complete"
	ActionDelete   OverdueAction = "delete"
)
