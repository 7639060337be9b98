package rentalapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/semanticallynull/rentaldesk-backend/calendar"
	"github.com/semanticallynull/rentaldesk-backend/document"
	"github.com/semanticallynull/rentaldesk-backend/reservation"
)

func (c *Client) GetReservation(ctx context.Context, id int64) (reservation.Reservation, error) {
	var r reservation.Reservation
	err := c.getJSON(ctx, fmt.Sprintf("reservations/%d", id), nil, &r)
	return r, err
}

func (c *Client) ListReservations(ctx context.Context) ([]reservation.Reservation, error) {
	var rs []reservation.Reservation
	err := c.getJSON(ctx, "reservations", nil, &rs)
	return rs, err
}

// OverdueReservations lists the unfinished reservations of a vehicle that
// ended more than the grace period ago.
func (c *Client) OverdueReservations(ctx context.Context, vehicleID int64) ([]reservation.Reservation, error) {
	var rs []reservation.Reservation
	err := c.getJSON(ctx, fmt.Sprintf("reservations/overdue/%d", vehicleID), nil, &rs)
	return rs, err
}

// CheckConflicts lists reservations of the vehicle that overlap r. A zero
// excludeID excludes nothing.
func (c *Client) CheckConflicts(ctx context.Context, vehicleID int64, r calendar.Range, excludeID int64) ([]reservation.Reservation, error) {
	q := url.Values{}
	q.Set("vehicleId", strconv.FormatInt(vehicleID, 10))
	q.Set("startDate", r.Start.String())
	if r.End != nil {
		q.Set("endDate", r.End.String())
	}
	if excludeID != 0 {
		q.Set("excludeReservationId", strconv.FormatInt(excludeID, 10))
	}

	var rs []reservation.Reservation
	err := c.getJSON(ctx, "reservations/check-conflicts", q, &rs)
	return rs, err
}

func (c *Client) CreateReservation(ctx context.Context, p reservation.Payload, attachment *document.File) (reservation.Reservation, error) {
	var r reservation.Reservation
	err := c.send(ctx, http.MethodPost, "reservations", p, attachment, &r)
	return r, err
}

func (c *Client) UpdateReservation(ctx context.Context, id int64, p reservation.Payload, attachment *document.File) (reservation.Reservation, error) {
	var r reservation.Reservation
	err := c.send(ctx, http.MethodPatch, fmt.Sprintf("reservations/%d", id), p, attachment, &r)
	return r, err
}

// HandoverPatch finalises a pickup or return: the collected fields and the
// status they unlock.
type HandoverPatch struct {
	Status reservation.Status `json:"status"`
	reservation.Handover
}

func (c *Client) PatchHandover(ctx context.Context, id int64, p HandoverPatch) (reservation.Reservation, error) {
	var r reservation.Reservation
	err := c.sendJSON(ctx, http.MethodPatch, fmt.Sprintf("reservations/%d", id), p, &r)
	return r, err
}

func (c *Client) UpdateStatus(ctx context.Context, id int64, status reservation.Status) (reservation.Reservation, error) {
	var r reservation.Reservation
	body := struct {
		Status reservation.Status `json:"status"`
	}{Status: status}
	err := c.sendJSON(ctx, http.MethodPatch, fmt.Sprintf("reservations/%d/status", id), body, &r)
	return r, err
}

func (c *Client) DeleteReservation(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("reservations/%d", id), nil, nil, "", nil)
}
