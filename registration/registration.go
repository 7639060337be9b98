// Package registration converts company registered vehicles to a personal
// registration once they are rented out.
package registration

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/semanticallynull/rentaldesk-backend/reservation"
	"github.com/semanticallynull/rentaldesk-backend/vehicle"
)

type Vehicles interface {
	GetVehicle(ctx context.Context, id int64) (vehicle.Vehicle, error)
	UpdateVehicleRegistration(ctx context.Context, id int64, reg vehicle.Registration) (vehicle.Vehicle, error)
}

// Hook switches a "BV" vehicle to "opnaam" when a reservation for it is
// created. Edits of existing reservations leave the vehicle alone.
type Hook struct {
	vehicles Vehicles
	logger   *slog.Logger
}

func NewHook(v Vehicles, logger *slog.Logger) *Hook {
	return &Hook{
		vehicles: v,
		logger:   logger,
	}
}

func (h *Hook) ReservationSaved(ctx context.Context, r reservation.Reservation, created bool) error {
	if !created {
		return nil
	}

	v := r.Vehicle
	if v == nil {
		fetched, err := h.vehicles.GetVehicle(ctx, r.VehicleID)
		if err != nil {
			return fmt.Errorf("load vehicle %d: %w", r.VehicleID, err)
		}
		v = &fetched
	}

	if v.RegisteredTo != vehicle.Company {
		return nil
	}

	if _, err := h.vehicles.UpdateVehicleRegistration(ctx, v.ID, vehicle.Personal); err != nil {
		return fmt.Errorf("convert registration of vehicle %d: %w", v.ID, err)
	}
	h.logger.InfoContext(ctx, "vehicle registration converted",
		"vehicle_id", v.ID,
		"license_plate", v.LicensePlate,
		"from", vehicle.Company.String(),
		"to", vehicle.Personal.String(),
	)
	return nil
}
