// Package handover records what is collected when a vehicle is picked up
// and returned, and moves the reservation to the matching status.
package handover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/snowflake"

	"github.com/semanticallynull/rentaldesk-backend/document"
	"github.com/semanticallynull/rentaldesk-backend/rentalapi"
	"github.com/semanticallynull/rentaldesk-backend/reservation"
)

var (
	ErrMileageRequired   = errors.New("mileage is required")
	ErrFuelLevelRequired = errors.New("fuel level is required")
	ErrMileageDecreased  = errors.New("return mileage is lower than pickup mileage")
	ErrWrongStatus       = errors.New("reservation is not in the right status")
)

// Backend is the part of the rental API the service needs.
type Backend interface {
	PatchHandover(ctx context.Context, id int64, p rentalapi.HandoverPatch) (reservation.Reservation, error)
	document.Uploader
}

type PickupDetails struct {
	Mileage          *int                 `json:"mileage"`
	DepartureMileage *int                 `json:"departureMileage"`
	FuelLevel        reservation.FuelLevel `json:"fuelLevel"`
	FuelCardNumber   string               `json:"fuelCardNumber"`
	ContractNumber   string               `json:"contractNumber"`
	Notes            string               `json:"notes"`
}

type ReturnDetails struct {
	Mileage   *int                  `json:"mileage"`
	FuelLevel reservation.FuelLevel `json:"fuelLevel"`
	FuelCost  *reservation.Decimal  `json:"fuelCost"`
	Notes     string                `json:"notes"`
}

// Result is a finished handover. UploadErr is set when the damage check
// could not be stored; the status change still went through.
type Result struct {
	Reservation reservation.Reservation `json:"reservation"`
	DamageCheck *document.Document      `json:"damageCheck,omitempty"`
	UploadErr   error                   `json:"-"`
}

type Service struct {
	backend Backend
	node    *snowflake.Node
	logger  *slog.Logger
}

// NewService creates a service that numbers contracts with the given
// snowflake node id.
func NewService(b Backend, nodeID int64, logger *slog.Logger) (*Service, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("contract number generator: %w", err)
	}
	return &Service{
		backend: b,
		node:    node,
		logger:  logger,
	}, nil
}

// NewContractNumber returns a fresh, unique contract number.
func (s *Service) NewContractNumber() string {
	return "RC-" + s.node.Generate().Base36()
}

// CompletePickup stores the pickup details and marks the reservation picked
// up. A contract number is generated when none was entered.
func (s *Service) CompletePickup(ctx context.Context, r reservation.Reservation, d PickupDetails) (Result, error) {
	if r.Status != reservation.StatusBooked {
		return Result{}, fmt.Errorf("%w: pickup needs %s, got %s", ErrWrongStatus, reservation.StatusBooked, r.Status)
	}
	if d.Mileage == nil || *d.Mileage < 0 {
		return Result{}, ErrMileageRequired
	}
	if d.FuelLevel == reservation.FuelUnknown || !d.FuelLevel.IsValid() {
		return Result{}, ErrFuelLevelRequired
	}

	contract := strings.TrimSpace(d.ContractNumber)
	if contract == "" {
		contract = s.NewContractNumber()
	}

	h := r.Handover
	h.PickupMileage = d.Mileage
	if d.DepartureMileage != nil {
		h.DepartureMileage = d.DepartureMileage
	}
	h.FuelLevelPickup = d.FuelLevel
	h.FuelCardNumber = d.FuelCardNumber
	h.ContractNumber = contract
	if d.Notes != "" {
		h.FuelNotes = d.Notes
	}

	updated, err := s.backend.PatchHandover(ctx, r.ID, rentalapi.HandoverPatch{
		Status:   reservation.StatusPickedUp,
		Handover: h,
	})
	if err != nil {
		return Result{}, fmt.Errorf("complete pickup: %w", err)
	}

	s.logger.InfoContext(ctx, "pickup completed", "reservation_id", r.ID, "contract_number", contract)
	return Result{Reservation: updated}, nil
}

// CompleteReturn stores the return details, uploads the optional damage
// check and marks the reservation returned.
func (s *Service) CompleteReturn(ctx context.Context, r reservation.Reservation, d ReturnDetails, damageCheck *document.File) (Result, error) {
	if r.Status != reservation.StatusPickedUp && r.Status != reservation.StatusBooked {
		return Result{}, fmt.Errorf("%w: cannot return a %s reservation", ErrWrongStatus, r.Status)
	}
	if d.Mileage == nil || *d.Mileage < 0 {
		return Result{}, ErrMileageRequired
	}
	if r.PickupMileage != nil && *d.Mileage < *r.PickupMileage {
		return Result{}, fmt.Errorf("%w: %d < %d", ErrMileageDecreased, *d.Mileage, *r.PickupMileage)
	}
	if d.FuelLevel == reservation.FuelUnknown || !d.FuelLevel.IsValid() {
		return Result{}, ErrFuelLevelRequired
	}

	var res Result
	if damageCheck != nil {
		results := document.UploadAll(ctx, s.backend, r.ID, document.TypeDamageCheck, []document.File{*damageCheck})
		if err := results[0].Err; err != nil {
			s.logger.WarnContext(ctx, "damage check upload failed", "reservation_id", r.ID, "error", err)
			res.UploadErr = err
		} else {
			res.DamageCheck = results[0].Document
		}
	}

	h := r.Handover
	h.ReturnMileage = d.Mileage
	h.FuelLevelReturn = d.FuelLevel
	if d.FuelCost != nil {
		h.FuelCost = d.FuelCost
	}
	if d.Notes != "" {
		h.FuelNotes = d.Notes
	}

	updated, err := s.backend.PatchHandover(ctx, r.ID, rentalapi.HandoverPatch{
		Status:   reservation.StatusReturned,
		Handover: h,
	})
	if err != nil {
		return Result{}, fmt.Errorf("complete return: %w", err)
	}
	res.Reservation = updated

	s.logger.InfoContext(ctx, "return completed", "reservation_id", r.ID)
	return res, nil
}
