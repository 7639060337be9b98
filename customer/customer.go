package customer

// Customer is a renter. Drivers belong to exactly one customer.
type Customer struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	CompanyName string   `json:"companyName,omitempty"`
	Email       string   `json:"email,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	Drivers     []Driver `json:"drivers,omitempty"`
}

type Driver struct {
	ID         int64  `json:"id"`
	CustomerID int64  `json:"customerId"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Email      string `json:"email,omitempty"`
}

// HasDriver reports whether driverID is one of c's drivers.
func (c Customer) HasDriver(driverID int64) bool {
	for _, d := range c.Drivers {
		if d.ID == driverID {
			return true
		}
	}
	return false
}

// ReconcileDriver returns driverID when it belongs to c and nil otherwise.
func (c Customer) ReconcileDriver(driverID *int64) *int64 {
	if driverID == nil || !c.HasDriver(*driverID) {
		return nil
	}
	return driverID
}
