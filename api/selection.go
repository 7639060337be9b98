package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/semanticallynull/rentaldesk-backend/calendar"
	"github.com/semanticallynull/rentaldesk-backend/customer"
	"github.com/semanticallynull/rentaldesk-backend/internal/middleware"
	"github.com/semanticallynull/rentaldesk-backend/internal/querycache"
	"github.com/semanticallynull/rentaldesk-backend/lifecycle"
	"github.com/semanticallynull/rentaldesk-backend/vehicle"
)

const (
	keyCustomers = "customers/list"
	keyBlacklist = "blacklist"
)

type selectableVehicle struct {
	vehicle.Vehicle
	// WarnRemarks asks the dashboard to show the remarks before selecting.
	WarnRemarks bool `json:"warnRemarks"`
}

type selectableVehiclesResponse struct {
	Filtered bool                `json:"filtered"`
	Vehicles []selectableVehicle `json:"vehicles"`
}

func optionalDate(c *gin.Context, name string) (*calendar.Date, bool) {
	s := c.Query(name)
	if s == "" {
		return nil, true
	}
	d, err := calendar.Parse(s)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "Invalid " + name})
		return nil, false
	}
	return &d, true
}

func optionalID(c *gin.Context, name string) (int64, bool) {
	s := c.Query(name)
	if s == "" {
		return 0, true
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "Invalid " + name})
		return 0, false
	}
	return id, true
}

func availabilityKey(r calendar.Range) string {
	key := lifecycle.KeyAvailability + ":" + r.Start.String() + ":"
	if r.End != nil {
		key += r.End.String()
	}
	return key
}

func (a *API) selectableVehiclesHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)
	ctx := c.Request.Context()

	start, ok := optionalDate(c, "startDate")
	if !ok {
		return
	}
	end, ok := optionalDate(c, "endDate")
	if !ok {
		return
	}
	customerID, ok := optionalID(c, "customerId")
	if !ok {
		return
	}
	showAll := c.Query("showAll") == "true"
	openEnded := c.Query("isOpenEnded") == "true"

	all, err := querycache.Fetch(ctx, a.cache, lifecycle.KeyVehicles, a.backend.ListVehicles)
	if err != nil {
		a.respondError(c, err, nil)
		return
	}

	window, filtered := vehicle.Window(showAll, start, end, openEnded)
	var available []vehicle.Vehicle
	if filtered {
		available, err = querycache.Fetch(ctx, a.cache, availabilityKey(window), func(ctx context.Context) ([]vehicle.Vehicle, error) {
			return a.backend.AvailableVehicles(ctx, window)
		})
		if err != nil {
			a.respondError(c, err, nil)
			return
		}
	}

	var blacklisted map[int64]struct{}
	if customerID != 0 {
		bl, err := querycache.Fetch(ctx, a.cache, keyBlacklist, a.backend.Blacklist)
		if err != nil {
			a.respondError(c, err, nil)
			return
		}
		blacklisted = bl.VehiclesFor(customerID)
	}

	vehicles := vehicle.Selectable(all, available, blacklisted, filtered)
	logger.DebugContext(c, "selectable vehicles", "filtered", filtered, "count", len(vehicles))

	resp := selectableVehiclesResponse{
		Filtered: filtered,
		Vehicles: make([]selectableVehicle, 0, len(vehicles)),
	}
	for _, v := range vehicles {
		resp.Vehicles = append(resp.Vehicles, selectableVehicle{Vehicle: v, WarnRemarks: v.HasRemarks()})
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) selectableCustomersHandler(c *gin.Context) {
	ctx := c.Request.Context()

	vehicleID, ok := optionalID(c, "vehicleId")
	if !ok {
		return
	}

	all, err := querycache.Fetch(ctx, a.cache, keyCustomers, a.backend.ListCustomers)
	if err != nil {
		a.respondError(c, err, nil)
		return
	}

	var blacklisted map[int64]struct{}
	if vehicleID != 0 {
		bl, err := querycache.Fetch(ctx, a.cache, keyBlacklist, a.backend.Blacklist)
		if err != nil {
			a.respondError(c, err, nil)
			return
		}
		blacklisted = bl.CustomersFor(vehicleID)
	}

	c.JSON(http.StatusOK, customer.Selectable(all, blacklisted))
}

// customer loads a customer with its drivers.
func (a *API) customer(ctx context.Context, id int64) (customer.Customer, error) {
	return querycache.Fetch(ctx, a.cache, "customers/"+strconv.FormatInt(id, 10), func(ctx context.Context) (customer.Customer, error) {
		return a.backend.GetCustomer(ctx, id)
	})
}
