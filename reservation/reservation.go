package reservation

import (
	"github.com/semanticallynull/rentaldesk-backend/calendar"
	"github.com/semanticallynull/rentaldesk-backend/customer"
	"github.com/semanticallynull/rentaldesk-backend/vehicle"
)

// OverdueGrace is the number of days after the end date before an
// unfinished reservation counts as overdue.
const OverdueGrace = 3

// DefaultRentalDays is the length proposed for a new dated reservation.
const DefaultRentalDays = 3

type Reservation struct {
	ID         int64          `json:"id"`
	VehicleID  int64          `json:"vehicleId"`
	CustomerID int64          `json:"customerId"`
	DriverID   *int64         `json:"driverId"`
	StartDate  calendar.Date  `json:"startDate"`
	EndDate    *calendar.Date `json:"endDate"`
	Status     Status         `json:"status"`
	TotalPrice *Decimal       `json:"totalPrice"`
	Delivery
	Handover
	Notes string `json:"notes,omitempty"`

	Vehicle  *vehicle.Vehicle   `json:"vehicle,omitempty"`
	Customer *customer.Customer `json:"customer,omitempty"`
}

// Delivery fields are only meaningful when DeliveryRequired is set.
type Delivery struct {
	DeliveryRequired   bool     `json:"deliveryRequired"`
	DeliveryAddress    string   `json:"deliveryAddress,omitempty" validate:"required_if=DeliveryRequired true"`
	DeliveryCity       string   `json:"deliveryCity,omitempty" validate:"required_if=DeliveryRequired true"`
	DeliveryPostalCode string   `json:"deliveryPostalCode,omitempty"`
	DeliveryFee        *Decimal `json:"deliveryFee,omitempty" validate:"omitempty,numeric"`
	DeliveryNotes      string   `json:"deliveryNotes,omitempty"`
}

// Handover holds what is collected when the vehicle leaves and comes back.
// DepartureMileage is read when the vehicle leaves the depot for a delivery,
// PickupMileage when it is handed to the customer.
type Handover struct {
	PickupMileage    *int      `json:"pickupMileage,omitempty" validate:"omitempty,gte=0"`
	DepartureMileage *int      `json:"departureMileage,omitempty" validate:"omitempty,gte=0"`
	ReturnMileage    *int      `json:"returnMileage,omitempty" validate:"omitempty,gte=0"`
	FuelLevelPickup  FuelLevel `json:"fuelLevelPickup,omitempty" validate:"omitempty,oneof=1/4 1/2 3/4 full"`
	FuelLevelReturn  FuelLevel `json:"fuelLevelReturn,omitempty" validate:"omitempty,oneof=1/4 1/2 3/4 full"`
	FuelCost         *Decimal  `json:"fuelCost,omitempty" validate:"omitempty,numeric"`
	FuelCardNumber   string    `json:"fuelCardNumber,omitempty"`
	FuelNotes        string    `json:"fuelNotes,omitempty"`
	ContractNumber   string    `json:"contractNumber,omitempty"`
}

func (r Reservation) IsOpenEnded() bool {
	return r.EndDate == nil
}

func (r Reservation) Range() calendar.Range {
	return calendar.Range{Start: r.StartDate, End: r.EndDate}
}

// IsOverdue reports whether r ended more than OverdueGrace days before today
// and was neither completed nor cancelled. Open-ended reservations are never
// overdue.
func IsOverdue(r Reservation, today calendar.Date) bool {
	if r.EndDate == nil || r.Status.IsTerminal() {
		return false
	}
	return today.After(r.EndDate.AddDays(OverdueGrace))
}

// DaysOverdue is the number of days past the end date, or 0.
func DaysOverdue(r Reservation, today calendar.Date) int {
	if r.EndDate == nil {
		return 0
	}
	return max(today.DaysSince(*r.EndDate), 0)
}

// SuggestEndDate proposes an end date when an open-ended reservation is
// turned into a dated one. A rental that is already running ends today,
// anything else gets the default rental length.
func SuggestEndDate(today, start calendar.Date, wasOpenEnded, editingActiveRental bool) calendar.Date {
	if wasOpenEnded && editingActiveRental && start.Before(today) {
		return today
	}
	return start.AddDays(DefaultRentalDays)
}
