package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/semanticallynull/rentaldesk-backend/calendar"
	"github.com/semanticallynull/rentaldesk-backend/customer"
	"github.com/semanticallynull/rentaldesk-backend/document"
	"github.com/semanticallynull/rentaldesk-backend/rentalapi"
	"github.com/semanticallynull/rentaldesk-backend/reservation"
	"github.com/semanticallynull/rentaldesk-backend/vehicle"
)

// fakeBackend is an in-memory rental API that answers the overdue and
// conflict queries from the reservations it holds.
type fakeBackend struct {
	mu    sync.Mutex
	today calendar.Date

	reservations map[int64]reservation.Reservation
	nextID       int64

	calls    []string
	payloads []reservation.Payload

	saveErr     error
	conflictErr error
}

func newFakeBackend(today calendar.Date, existing ...reservation.Reservation) *fakeBackend {
	b := &fakeBackend{
		today:        today,
		reservations: make(map[int64]reservation.Reservation),
		nextID:       100,
	}
	for _, r := range existing {
		b.reservations[r.ID] = r
	}
	return b
}

func (b *fakeBackend) record(call string) {
	b.calls = append(b.calls, call)
}

func (b *fakeBackend) called(call string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, c := range b.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (b *fakeBackend) GetReservation(_ context.Context, id int64) (reservation.Reservation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("get")

	r, ok := b.reservations[id]
	if !ok {
		return reservation.Reservation{}, &rentalapi.APIError{Status: 404, Message: "not found"}
	}
	return r, nil
}

func (b *fakeBackend) OverdueReservations(_ context.Context, vehicleID int64) ([]reservation.Reservation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("overdue")

	var out []reservation.Reservation
	for _, r := range b.sorted() {
		if r.VehicleID == vehicleID && reservation.IsOverdue(r, b.today) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (b *fakeBackend) CheckConflicts(_ context.Context, vehicleID int64, rng calendar.Range, excludeID int64) ([]reservation.Reservation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("conflicts")

	if b.conflictErr != nil {
		return nil, b.conflictErr
	}

	var out []reservation.Reservation
	for _, r := range b.sorted() {
		if r.VehicleID != vehicleID || r.ID == excludeID || r.Status == reservation.StatusCancelled {
			continue
		}
		if calendar.Overlaps(rng, r.Range()) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (b *fakeBackend) store(id int64, p reservation.Payload) reservation.Reservation {
	r := reservation.Reservation{
		ID:         id,
		VehicleID:  p.VehicleID,
		CustomerID: p.CustomerID,
		DriverID:   p.DriverID,
		StartDate:  p.StartDate,
		EndDate:    p.EndDate,
		Status:     p.Status,
		TotalPrice: p.TotalPrice,
		Delivery:   p.Delivery,
		Handover:   p.Handover,
		Notes:      p.Notes,
	}
	b.reservations[id] = r
	return r
}

func (b *fakeBackend) CreateReservation(_ context.Context, p reservation.Payload, _ *document.File) (reservation.Reservation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("create")
	b.payloads = append(b.payloads, p)

	if b.saveErr != nil {
		return reservation.Reservation{}, b.saveErr
	}
	b.nextID++
	return b.store(b.nextID, p), nil
}

func (b *fakeBackend) UpdateReservation(_ context.Context, id int64, p reservation.Payload, _ *document.File) (reservation.Reservation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("update")
	b.payloads = append(b.payloads, p)

	if b.saveErr != nil {
		return reservation.Reservation{}, b.saveErr
	}
	return b.store(id, p), nil
}

func (b *fakeBackend) UpdateStatus(_ context.Context, id int64, status reservation.Status) (reservation.Reservation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("status")

	r, ok := b.reservations[id]
	if !ok {
		return reservation.Reservation{}, &rentalapi.APIError{Status: 404, Message: "not found"}
	}
	r.Status = status
	b.reservations[id] = r
	return r, nil
}

func (b *fakeBackend) DeleteReservation(_ context.Context, id int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("delete")

	delete(b.reservations, id)
	return nil
}

func (b *fakeBackend) GetVehicle(_ context.Context, id int64) (vehicle.Vehicle, error) {
	return vehicle.Vehicle{ID: id, LicensePlate: fmt.Sprintf("V-%d", id)}, nil
}

func (b *fakeBackend) GetCustomer(_ context.Context, id int64) (customer.Customer, error) {
	return customer.Customer{ID: id, Name: fmt.Sprintf("Customer %d", id)}, nil
}

func (b *fakeBackend) sorted() []reservation.Reservation {
	out := make([]reservation.Reservation, 0, len(b.reservations))
	for _, r := range b.reservations {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b reservation.Reservation) int {
		return int(a.ID - b.ID)
	})
	return out
}

type recordingNotifier struct {
	mu       sync.Mutex
	success  []string
	warnings []string
	errors   []string
}

func (n *recordingNotifier) Success(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.success = append(n.success, msg)
}

func (n *recordingNotifier) Warn(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.warnings = append(n.warnings, msg)
}

func (n *recordingNotifier) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}

type recordingInvalidator struct {
	mu   sync.Mutex
	keys []string
}

func (i *recordingInvalidator) Invalidate(_ context.Context, keys ...string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.keys = append(i.keys, keys...)
}

func (i *recordingInvalidator) invalidated() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return slices.Clone(i.keys)
}

var errUpstreamDown = errors.New("connection refused")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock(d calendar.Date) func() time.Time {
	return func() time.Time {
		return time.Date(d.Time().Year(), d.Time().Month(), d.Time().Day(), 12, 0, 0, 0, time.Local)
	}
}
