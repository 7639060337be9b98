// Package vehicle describes the rentable fleet.
package vehicle

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

type AvailabilityStatus string

const (
	Available    AvailabilityStatus = "available"
	Scheduled    AvailabilityStatus = "scheduled"
	NeedsFixing  AvailabilityStatus = "needs_fixing"
	NotForRental AvailabilityStatus = "not_for_rental"
	Rented       AvailabilityStatus = "rented"
)

// Registration is the legal registration state of a vehicle.
type Registration int

const (
	// Personal is a registration in the name of a private person ("opnaam").
	Personal Registration = iota
	// Company is a registration owned by the company ("BV").
	Company
)

func (r Registration) String() string {
	return [...]string{"opnaam", "bv"}[r]
}

func (r Registration) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Registration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch strings.ToLower(s) {
	case "", "opnaam", "personal":
		*r = Personal
	case "bv", "company":
		*r = Company
	default:
		return fmt.Errorf("unknown registration %q", s)
	}
	return nil
}

// Vehicle is a fleet asset that can be offered in a reservation.
type Vehicle struct {
	ID           int64  `json:"id"`
	LicensePlate string `json:"licensePlate"`
	Brand        string `json:"brand"`
	Model        string `json:"model"`
	// VehicleType is a free-form category such as "van" or "car".
	VehicleType        string             `json:"vehicleType"`
	CurrentMileage     *int               `json:"currentMileage,omitempty"`
	AvailabilityStatus AvailabilityStatus `json:"availabilityStatus"`
	// Remarks are shown to the user before the vehicle is selected.
	Remarks      string       `json:"remarks,omitempty"`
	Company      string       `json:"company,omitempty"`
	RegisteredTo Registration `json:"registeredTo"`
}

// HasRemarks reports whether selecting the vehicle should show a warning.
func (v Vehicle) HasRemarks() bool {
	return strings.TrimSpace(v.Remarks) != ""
}

// DisplayName is the label used in lists, e.g. "AB-123-C Ford Transit".
func (v Vehicle) DisplayName() string {
	name := strings.TrimSpace(v.Brand + " " + v.Model)
	if name == "" {
		return v.LicensePlate
	}
	return v.LicensePlate + " " + name
}
