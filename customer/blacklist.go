package customer

// BlacklistEntry pairs a customer with a vehicle they must not be offered.
type BlacklistEntry struct {
	ID         int64  `json:"id"`
	CustomerID int64  `json:"customerId"`
	VehicleID  int64  `json:"vehicleId"`
	Reason     string `json:"reason,omitempty"`
}

// Blacklist indexes blacklist entries in both directions.
type Blacklist struct {
	byCustomer map[int64]map[int64]struct{}
	byVehicle  map[int64]map[int64]struct{}
}

func NewBlacklist(entries []BlacklistEntry) Blacklist {
	b := Blacklist{
		byCustomer: make(map[int64]map[int64]struct{}),
		byVehicle:  make(map[int64]map[int64]struct{}),
	}
	for _, e := range entries {
		if b.byCustomer[e.CustomerID] == nil {
			b.byCustomer[e.CustomerID] = make(map[int64]struct{})
		}
		b.byCustomer[e.CustomerID][e.VehicleID] = struct{}{}

		if b.byVehicle[e.VehicleID] == nil {
			b.byVehicle[e.VehicleID] = make(map[int64]struct{})
		}
		b.byVehicle[e.VehicleID][e.CustomerID] = struct{}{}
	}
	return b
}

// VehiclesFor returns the ids of vehicles blacklisted for customerID. The
// returned map must not be modified.
func (b Blacklist) VehiclesFor(customerID int64) map[int64]struct{} {
	return b.byCustomer[customerID]
}

// CustomersFor returns the ids of customers blacklisted for vehicleID. The
// returned map must not be modified.
func (b Blacklist) CustomersFor(vehicleID int64) map[int64]struct{} {
	return b.byVehicle[vehicleID]
}

func (b Blacklist) Contains(customerID, vehicleID int64) bool {
	_, ok := b.byCustomer[customerID][vehicleID]
	return ok
}

// Selectable returns the customers that may be offered for the selected
// vehicle, preserving order.
func Selectable(all []Customer, blacklisted map[int64]struct{}) []Customer {
	out := make([]Customer, 0, len(all))
	for _, c := range all {
		if _, ok := blacklisted[c.ID]; ok {
			continue
		}
		out = append(out, c)
	}
	return out
}
