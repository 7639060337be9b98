package reservation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/semanticallynull/rentaldesk-backend/calendar"
	"github.com/semanticallynull/rentaldesk-backend/customer"
	"github.com/semanticallynull/rentaldesk-backend/document"
)

// RawForm is the booking form as the dashboard posts it. Numeric fields may
// arrive as numbers or strings; Parse turns them into a Form once.
type RawForm struct {
	ID          FlexInt `json:"id"`
	VehicleID   FlexInt `json:"vehicleId"`
	CustomerID  FlexInt `json:"customerId"`
	DriverID    FlexInt `json:"driverId"`
	StartDate   string  `json:"startDate"`
	EndDate     string  `json:"endDate"`
	IsOpenEnded bool    `json:"isOpenEnded"`
	TotalPrice  Decimal `json:"totalPrice"`

	DeliveryRequired   bool    `json:"deliveryRequired"`
	DeliveryAddress    string  `json:"deliveryAddress"`
	DeliveryCity       string  `json:"deliveryCity"`
	DeliveryPostalCode string  `json:"deliveryPostalCode"`
	DeliveryFee        Decimal `json:"deliveryFee"`
	DeliveryNotes      string  `json:"deliveryNotes"`

	PickupMileage    FlexInt   `json:"pickupMileage"`
	DepartureMileage FlexInt   `json:"departureMileage"`
	ReturnMileage    FlexInt   `json:"returnMileage"`
	FuelLevelPickup  FuelLevel `json:"fuelLevelPickup"`
	FuelLevelReturn  FuelLevel `json:"fuelLevelReturn"`
	FuelCost         Decimal   `json:"fuelCost"`
	FuelCardNumber   string    `json:"fuelCardNumber"`
	FuelNotes        string    `json:"fuelNotes"`
	ContractNumber   string    `json:"contractNumber"`

	Notes string `json:"notes"`
}

// Form is the normalised booking form. Only Forms reach the lifecycle.
type Form struct {
	ID         int64          `json:"id"`
	VehicleID  int64          `json:"vehicleId" validate:"required"`
	CustomerID int64          `json:"customerId" validate:"required"`
	DriverID   *int64         `json:"driverId"`
	StartDate  calendar.Date  `json:"startDate"`
	EndDate    *calendar.Date `json:"endDate"`
	OpenEnded  bool           `json:"isOpenEnded"`
	TotalPrice *Decimal       `json:"totalPrice" validate:"omitempty,numeric"`
	Delivery
	Handover
	Notes string `json:"notes"`

	DamageCheck *document.File `json:"-"`
}

// ValidationErrors maps a form field to a message.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+" "+v[f])
	}
	return "invalid reservation: " + strings.Join(parts, ", ")
}

// FieldErrors extracts the per-field messages from err.
func FieldErrors(err error) (ValidationErrors, bool) {
	var verr ValidationErrors
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}

func optionalDecimal(d Decimal) *Decimal {
	if d == "" {
		return nil
	}
	return &d
}

// Parse normalises the raw form. Unparseable dates are reported as
// ValidationErrors; everything else is checked by Form.Validate.
func (r RawForm) Parse() (Form, error) {
	verr := ValidationErrors{}

	f := Form{
		ID:         r.ID.V,
		VehicleID:  r.VehicleID.V,
		CustomerID: r.CustomerID.V,
		DriverID:   r.DriverID.Int64Ptr(),
		OpenEnded:  r.IsOpenEnded,
		TotalPrice: optionalDecimal(r.TotalPrice),
		Delivery: Delivery{
			DeliveryRequired: r.DeliveryRequired,
		},
		Handover: Handover{
			PickupMileage:    r.PickupMileage.IntPtr(),
			DepartureMileage: r.DepartureMileage.IntPtr(),
			ReturnMileage:    r.ReturnMileage.IntPtr(),
			FuelLevelPickup:  r.FuelLevelPickup,
			FuelLevelReturn:  r.FuelLevelReturn,
			FuelCost:         optionalDecimal(r.FuelCost),
			FuelCardNumber:   strings.TrimSpace(r.FuelCardNumber),
			FuelNotes:        r.FuelNotes,
			ContractNumber:   strings.TrimSpace(r.ContractNumber),
		},
		Notes: r.Notes,
	}

	if r.DeliveryRequired {
		f.DeliveryAddress = strings.TrimSpace(r.DeliveryAddress)
		f.DeliveryCity = strings.TrimSpace(r.DeliveryCity)
		f.DeliveryPostalCode = strings.TrimSpace(r.DeliveryPostalCode)
		f.DeliveryFee = optionalDecimal(r.DeliveryFee)
		f.DeliveryNotes = r.DeliveryNotes
	}

	if s := strings.TrimSpace(r.StartDate); s != "" {
		d, err := calendar.Parse(s)
		if err != nil {
			verr["startDate"] = "is not a valid date"
		}
		f.StartDate = d
	}

	if s := strings.TrimSpace(r.EndDate); s != "" && !r.IsOpenEnded {
		d, err := calendar.Parse(s)
		if err != nil {
			verr["endDate"] = "is not a valid date"
		} else {
			f.EndDate = &d
		}
	}

	if len(verr) > 0 {
		return f, verr
	}
	return f, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "gte":
		return "must not be negative"
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "numeric":
		return "must be a number"
	}
	return fmt.Sprintf("failed %s", fe.Tag())
}

// Validate checks the form invariants. It returns ValidationErrors or nil.
func (f Form) Validate() error {
	verr := ValidationErrors{}

	if err := validate.Struct(f); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			verr[fe.Field()] = messageFor(fe)
		}
	}

	if f.StartDate.IsZero() {
		verr["startDate"] = "is required"
	}
	switch {
	case f.OpenEnded && f.EndDate != nil:
		verr["endDate"] = "must be empty for an open-ended reservation"
	case !f.OpenEnded && f.EndDate == nil:
		verr["endDate"] = "is required unless the reservation is open-ended"
	case f.EndDate != nil && !f.StartDate.IsZero() && f.EndDate.Before(f.StartDate):
		verr["endDate"] = "must not be before the start date"
	}

	if len(verr) > 0 {
		return verr
	}
	return nil
}

func (f Form) IsNew() bool {
	return f.ID == 0
}

func (f Form) Range() calendar.Range {
	return calendar.Range{Start: f.StartDate, End: f.EndDate}
}

// SetCustomer selects c and drops the driver when it is not one of c's.
func (f *Form) SetCustomer(c customer.Customer) {
	f.CustomerID = c.ID
	f.DriverID = c.ReconcileDriver(f.DriverID)
}

// SetOpenEnded toggles the open-ended flag. Turning it off installs end as
// the end date; turning it on clears the end date.
func (f *Form) SetOpenEnded(openEnded bool, end calendar.Date) {
	f.OpenEnded = openEnded
	if openEnded {
		f.EndDate = nil
		return
	}
	f.EndDate = &end
}

// Payload is the body of a create or update call.
type Payload struct {
	VehicleID  int64          `json:"vehicleId"`
	CustomerID int64          `json:"customerId"`
	DriverID   *int64         `json:"driverId"`
	StartDate  calendar.Date  `json:"startDate"`
	EndDate    *calendar.Date `json:"endDate"`
	Status     Status         `json:"status"`
	TotalPrice *Decimal       `json:"totalPrice"`
	Delivery
	Handover
	Notes string `json:"notes"`
}

// Payload builds the save body for status. EndDate is always present so that
// an open-ended reservation clears a previously stored end date.
func (f Form) Payload(status Status) Payload {
	p := Payload{
		VehicleID:  f.VehicleID,
		CustomerID: f.CustomerID,
		DriverID:   f.DriverID,
		StartDate:  f.StartDate,
		EndDate:    f.EndDate,
		Status:     status,
		TotalPrice: f.TotalPrice,
		Delivery:   f.Delivery,
		Handover:   f.Handover,
		Notes:      f.Notes,
	}
	if f.OpenEnded {
		p.EndDate = nil
	}
	return p
}

// FormFromReservation loads a persisted reservation into the form.
func FormFromReservation(r Reservation) Form {
	return Form{
		ID:         r.ID,
		VehicleID:  r.VehicleID,
		CustomerID: r.CustomerID,
		DriverID:   r.DriverID,
		StartDate:  r.StartDate,
		EndDate:    r.EndDate,
		OpenEnded:  r.IsOpenEnded(),
		TotalPrice: r.TotalPrice,
		Delivery:   r.Delivery,
		Handover:   r.Handover,
		Notes:      r.Notes,
	}
}
