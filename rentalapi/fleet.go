package rentalapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/semanticallynull/rentaldesk-backend/calendar"
	"github.com/semanticallynull/rentaldesk-backend/customer"
	"github.com/semanticallynull/rentaldesk-backend/document"
	"github.com/semanticallynull/rentaldesk-backend/vehicle"
)

func (c *Client) ListVehicles(ctx context.Context) ([]vehicle.Vehicle, error) {
	var vs []vehicle.Vehicle
	err := c.getJSON(ctx, "vehicles", nil, &vs)
	return vs, err
}

// AvailableVehicles lists vehicles free during r. An open-ended r asks for
// vehicles free from its start onward.
func (c *Client) AvailableVehicles(ctx context.Context, r calendar.Range) ([]vehicle.Vehicle, error) {
	q := url.Values{}
	q.Set("startDate", r.Start.String())
	if r.End != nil {
		q.Set("endDate", r.End.String())
	}

	var vs []vehicle.Vehicle
	err := c.getJSON(ctx, "vehicles/available", q, &vs)
	return vs, err
}

func (c *Client) GetVehicle(ctx context.Context, id int64) (vehicle.Vehicle, error) {
	var v vehicle.Vehicle
	err := c.getJSON(ctx, fmt.Sprintf("vehicles/%d", id), nil, &v)
	return v, err
}

func (c *Client) UpdateVehicleRegistration(ctx context.Context, id int64, reg vehicle.Registration) (vehicle.Vehicle, error) {
	var v vehicle.Vehicle
	body := struct {
		RegisteredTo vehicle.Registration `json:"registeredTo"`
	}{RegisteredTo: reg}
	err := c.sendJSON(ctx, http.MethodPatch, fmt.Sprintf("vehicles/%d", id), body, &v)
	return v, err
}

func (c *Client) ListCustomers(ctx context.Context) ([]customer.Customer, error) {
	var cs []customer.Customer
	err := c.getJSON(ctx, "customers", nil, &cs)
	return cs, err
}

func (c *Client) GetCustomer(ctx context.Context, id int64) (customer.Customer, error) {
	var cu customer.Customer
	err := c.getJSON(ctx, fmt.Sprintf("customers/%d", id), nil, &cu)
	return cu, err
}

func (c *Client) Blacklist(ctx context.Context) (customer.Blacklist, error) {
	var entries []customer.BlacklistEntry
	if err := c.getJSON(ctx, "blacklist", nil, &entries); err != nil {
		return customer.Blacklist{}, err
	}
	return customer.NewBlacklist(entries), nil
}

func (c *Client) ListDocuments(ctx context.Context, reservationID int64) ([]document.Document, error) {
	q := url.Values{}
	q.Set("reservationId", strconv.FormatInt(reservationID, 10))

	var ds []document.Document
	err := c.getJSON(ctx, "documents", q, &ds)
	return ds, err
}

func (c *Client) UploadDocument(ctx context.Context, reservationID int64, documentType string, f document.File) (document.Document, error) {
	meta := struct {
		ReservationID int64  `json:"reservationId"`
		DocumentType  string `json:"documentType"`
	}{ReservationID: reservationID, DocumentType: documentType}

	var d document.Document
	err := c.sendMultipart(ctx, http.MethodPost, "documents", meta, "file", f, &d)
	return d, err
}

func (c *Client) DeleteDocument(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("documents/%d", id), nil, nil, "", nil)
}
