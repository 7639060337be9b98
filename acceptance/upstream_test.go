package acceptance

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/semanticallynull/rentaldesk-backend/calendar"
	"github.com/semanticallynull/rentaldesk-backend/customer"
	"github.com/semanticallynull/rentaldesk-backend/document"
	"github.com/semanticallynull/rentaldesk-backend/reservation"
	"github.com/semanticallynull/rentaldesk-backend/vehicle"
)

// FakeUpstream is an in-memory rental API.
type FakeUpstream struct {
	mu sync.Mutex

	Server *httptest.Server
	Today  calendar.Date

	Vehicles     map[int64]vehicle.Vehicle
	Customers    map[int64]customer.Customer
	Blacklist    []customer.BlacklistEntry
	Reservations map[int64]reservation.Reservation
	Documents    map[int64]document.Document

	// RejectOverdueOnCreate makes POST /reservations answer with the
	// structured overdue body when the vehicle has overdue reservations.
	RejectOverdueOnCreate bool
	// HideOverdueList makes the overdue listing come back empty.
	HideOverdueList bool

	patchArrived chan<- struct{}
	patchRelease <-chan struct{}

	calls       []string
	lastAuth    string
	lastPayload map[string]json.RawMessage
	nextID      int64
}

func NewFakeUpstream(t *testing.T, today calendar.Date) *FakeUpstream {
	t.Helper()

	f := &FakeUpstream{
		Today:        today,
		Vehicles:     make(map[int64]vehicle.Vehicle),
		Customers:    make(map[int64]customer.Customer),
		Reservations: make(map[int64]reservation.Reservation),
		Documents:    make(map[int64]document.Document),
		nextID:       1000,
	}

	r := gin.New()
	r.Use(f.record)
	api := r.Group("/api")
	{
		api.GET("/vehicles", f.listVehicles)
		api.GET("/vehicles/available", f.availableVehicles)
		api.GET("/vehicles/:id", f.getVehicle)
		api.PATCH("/vehicles/:id", f.patchVehicle)
		api.GET("/customers", f.listCustomers)
		api.GET("/customers/:id", f.getCustomer)
		api.GET("/blacklist", f.getBlacklist)

		api.GET("/reservations", f.listReservations)
		api.GET("/reservations/check-conflicts", f.checkConflicts)
		api.GET("/reservations/overdue/:vehicleId", f.overdue)
		api.GET("/reservations/:id", f.getReservation)
		api.POST("/reservations", f.createReservation)
		api.PATCH("/reservations/:id", f.patchReservation)
		api.PATCH("/reservations/:id/status", f.patchStatus)
		api.DELETE("/reservations/:id", f.deleteReservation)

		api.GET("/documents", f.listDocuments)
		api.POST("/documents", f.uploadDocument)
		api.DELETE("/documents/:id", f.deleteDocument)
	}

	f.Server = httptest.NewServer(r)
	t.Cleanup(f.Server.Close)
	return f
}

func (f *FakeUpstream) URL() string {
	return f.Server.URL + "/api/"
}

func (f *FakeUpstream) record(c *gin.Context) {
	f.mu.Lock()
	f.calls = append(f.calls, c.Request.Method+" "+c.Request.URL.Path)
	f.lastAuth = c.GetHeader("Authorization")
	f.mu.Unlock()
	c.Next()
}

// Calls returns the requests received so far as "METHOD /path".
func (f *FakeUpstream) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func (f *FakeUpstream) CallCount(call string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (f *FakeUpstream) LastAuthorization() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastAuth
}

// LastPayload is the raw body of the last reservation create or update.
func (f *FakeUpstream) LastPayload() map[string]json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastPayload
}

func (f *FakeUpstream) AddVehicle(v vehicle.Vehicle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Vehicles[v.ID] = v
}

func (f *FakeUpstream) AddCustomer(c customer.Customer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Customers[c.ID] = c
}

func (f *FakeUpstream) AddReservation(r reservation.Reservation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reservations[r.ID] = r
}

func (f *FakeUpstream) Vehicle(id int64) vehicle.Vehicle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Vehicles[id]
}

func (f *FakeUpstream) Reservation(id int64) (reservation.Reservation, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.Reservations[id]
	return r, ok
}

// ReservationsFor returns the reservations of a vehicle ordered by id.
func (f *FakeUpstream) ReservationsFor(vehicleID int64) []reservation.Reservation {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []reservation.Reservation
	for _, r := range f.Reservations {
		if r.VehicleID == vehicleID {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b reservation.Reservation) int {
		return int(a.ID - b.ID)
	})
	return out
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "bad id"})
		return 0, false
	}
	return id, true
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"message": "not found"})
}

func (f *FakeUpstream) listVehicles(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]vehicle.Vehicle, 0, len(f.Vehicles))
	for _, v := range f.Vehicles {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b vehicle.Vehicle) int { return int(a.ID - b.ID) })
	c.JSON(http.StatusOK, out)
}

func (f *FakeUpstream) availableVehicles(c *gin.Context) {
	start, err := calendar.Parse(c.Query("startDate"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "startDate required"})
		return
	}
	want := calendar.Range{Start: start}
	if s := c.Query("endDate"); s != "" {
		end, err := calendar.Parse(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "bad endDate"})
			return
		}
		want.End = &end
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	out := []vehicle.Vehicle{}
	for _, v := range f.Vehicles {
		if !f.booked(v.ID, want, 0) {
			out = append(out, v)
		}
	}
	slices.SortFunc(out, func(a, b vehicle.Vehicle) int { return int(a.ID - b.ID) })
	c.JSON(http.StatusOK, out)
}

// booked reports whether vehicleID has an active reservation overlapping r.
func (f *FakeUpstream) booked(vehicleID int64, r calendar.Range, excludeID int64) bool {
	return len(f.conflicts(vehicleID, r, excludeID)) > 0
}

func (f *FakeUpstream) conflicts(vehicleID int64, r calendar.Range, excludeID int64) []reservation.Reservation {
	out := []reservation.Reservation{}
	for _, res := range f.Reservations {
		if res.VehicleID != vehicleID || res.ID == excludeID || res.Status.IsTerminal() {
			continue
		}
		if calendar.Overlaps(r, res.Range()) {
			out = append(out, res)
		}
	}
	return out
}

func (f *FakeUpstream) getVehicle(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	v, ok := f.Vehicles[id]
	if !ok {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (f *FakeUpstream) patchVehicle(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	v, ok := f.Vehicles[id]
	if !ok {
		notFound(c)
		return
	}
	if err := c.ShouldBindJSON(&v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	f.Vehicles[id] = v
	c.JSON(http.StatusOK, v)
}

func (f *FakeUpstream) listCustomers(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]customer.Customer, 0, len(f.Customers))
	for _, cu := range f.Customers {
		out = append(out, cu)
	}
	slices.SortFunc(out, func(a, b customer.Customer) int { return int(a.ID - b.ID) })
	c.JSON(http.StatusOK, out)
}

func (f *FakeUpstream) getCustomer(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	cu, ok := f.Customers[id]
	if !ok {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, cu)
}

func (f *FakeUpstream) getBlacklist(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := append([]customer.BlacklistEntry{}, f.Blacklist...)
	c.JSON(http.StatusOK, out)
}

func (f *FakeUpstream) listReservations(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]reservation.Reservation, 0, len(f.Reservations))
	for _, r := range f.Reservations {
		out = append(out, r)
	}
	c.JSON(http.StatusOK, out)
}

func (f *FakeUpstream) overdueFor(vehicleID int64) []reservation.Reservation {
	out := []reservation.Reservation{}
	for _, r := range f.Reservations {
		if r.VehicleID == vehicleID && reservation.IsOverdue(r, f.Today) {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b reservation.Reservation) int { return int(a.ID - b.ID) })
	return out
}

func (f *FakeUpstream) overdue(c *gin.Context) {
	id, ok := idParam(c, "vehicleId")
	if !ok {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.HideOverdueList {
		c.JSON(http.StatusOK, []reservation.Reservation{})
		return
	}
	c.JSON(http.StatusOK, f.overdueFor(id))
}

func (f *FakeUpstream) checkConflicts(c *gin.Context) {
	vehicleID, err := strconv.ParseInt(c.Query("vehicleId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "vehicleId required"})
		return
	}
	start, err := calendar.Parse(c.Query("startDate"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "startDate required"})
		return
	}
	r := calendar.Range{Start: start}
	if s := c.Query("endDate"); s != "" {
		end, err := calendar.Parse(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "bad endDate"})
			return
		}
		r.End = &end
	}
	exclude, _ := strconv.ParseInt(c.Query("excludeReservationId"), 10, 64)

	f.mu.Lock()
	defer f.mu.Unlock()
	c.JSON(http.StatusOK, f.conflicts(vehicleID, r, exclude))
}

func (f *FakeUpstream) getReservation(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.Reservations[id]
	if !ok {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, r)
}

// body returns the JSON of a create or update, which arrives either as the
// request body or as the "data" part of a multipart request.
func body(c *gin.Context) ([]byte, error) {
	if c.ContentType() == "multipart/form-data" {
		return []byte(c.PostForm("data")), nil
	}
	return io.ReadAll(c.Request.Body)
}

func (f *FakeUpstream) createReservation(c *gin.Context) {
	b, err := body(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var r reservation.Reservation
	if err := json.Unmarshal(b, &r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	_ = json.Unmarshal(b, &f.lastPayload)

	if f.RejectOverdueOnCreate {
		if overdue := f.overdueFor(r.VehicleID); len(overdue) > 0 {
			c.JSON(http.StatusConflict, gin.H{
				"message":             "Vehicle has overdue reservations",
				"isOverdueError":      true,
				"overdueReservations": overdue,
			})
			return
		}
	}

	f.nextID++
	r.ID = f.nextID
	f.Reservations[r.ID] = r
	c.JSON(http.StatusCreated, r)
}

// HoldPatches parks every PATCH /reservations/:id, reports it on arrived
// and lets it continue once release is closed.
func (f *FakeUpstream) HoldPatches(arrived chan<- struct{}, release <-chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patchArrived, f.patchRelease = arrived, release
}

func (f *FakeUpstream) patchReservation(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	f.mu.Lock()
	arrived, release := f.patchArrived, f.patchRelease
	f.mu.Unlock()
	if release != nil {
		arrived <- struct{}{}
		<-release
	}
	b, err := body(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.Reservations[id]
	if !ok {
		notFound(c)
		return
	}
	// fields missing from the body keep their value, explicit nulls clear it
	if err := json.Unmarshal(b, &r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	_ = json.Unmarshal(b, &f.lastPayload)

	r.ID = id
	f.Reservations[id] = r
	c.JSON(http.StatusOK, r)
}

func (f *FakeUpstream) patchStatus(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Status reservation.Status `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.Reservations[id]
	if !ok {
		notFound(c)
		return
	}
	r.Status = req.Status
	f.Reservations[id] = r
	c.JSON(http.StatusOK, r)
}

func (f *FakeUpstream) deleteReservation(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.Reservations[id]; !ok {
		notFound(c)
		return
	}
	delete(f.Reservations, id)
	c.Status(http.StatusNoContent)
}

func (f *FakeUpstream) listDocuments(c *gin.Context) {
	reservationID, _ := strconv.ParseInt(c.Query("reservationId"), 10, 64)

	f.mu.Lock()
	defer f.mu.Unlock()

	out := []document.Document{}
	for _, d := range f.Documents {
		if d.ReservationID != nil && *d.ReservationID == reservationID {
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(a, b document.Document) int { return int(a.ID - b.ID) })
	c.JSON(http.StatusOK, out)
}

func (f *FakeUpstream) uploadDocument(c *gin.Context) {
	var meta struct {
		ReservationID int64  `json:"reservationId"`
		DocumentType  string `json:"documentType"`
	}
	if err := json.Unmarshal([]byte(c.PostForm("data")), &meta); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	d := document.Document{
		ID:            f.nextID,
		ReservationID: &meta.ReservationID,
		DocumentType:  meta.DocumentType,
		FileName:      fh.Filename,
		FilePath:      "/uploads/" + fh.Filename,
		ContentType:   fh.Header.Get("Content-Type"),
		CreatedAt:     time.Date(2024, 6, 20, 12, 0, 0, 0, time.UTC),
	}
	f.Documents[d.ID] = d
	c.JSON(http.StatusCreated, d)
}

func (f *FakeUpstream) deleteDocument(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.Documents[id]; !ok {
		notFound(c)
		return
	}
	delete(f.Documents, id)
	c.Status(http.StatusNoContent)
}
