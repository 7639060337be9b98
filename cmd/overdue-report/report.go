package main

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/xuri/excelize/v2"

	"github.com/semanticallynull/rentaldesk-backend/calendar"
	"github.com/semanticallynull/rentaldesk-backend/customer"
	"github.com/semanticallynull/rentaldesk-backend/reservation"
	"github.com/semanticallynull/rentaldesk-backend/vehicle"
)

const sheet = "Overdue"

type row struct {
	ReservationID int64
	LicensePlate  string
	Vehicle       string
	Customer      string
	Status        reservation.Status
	EndDate       string
	DaysOverdue   int
}

// overdueRows lists the overdue reservations, longest overdue first.
func overdueRows(all []reservation.Reservation, vehicles []vehicle.Vehicle, customers []customer.Customer, today calendar.Date) []row {
	vs := make(map[int64]vehicle.Vehicle, len(vehicles))
	for _, v := range vehicles {
		vs[v.ID] = v
	}
	cs := make(map[int64]customer.Customer, len(customers))
	for _, c := range customers {
		cs[c.ID] = c
	}

	var rows []row
	for _, r := range all {
		if !reservation.IsOverdue(r, today) {
			continue
		}
		v := vs[r.VehicleID]
		c := cs[r.CustomerID]
		name := c.Name
		if c.CompanyName != "" {
			name = c.CompanyName + " (" + c.Name + ")"
		}
		rows = append(rows, row{
			ReservationID: r.ID,
			LicensePlate:  v.LicensePlate,
			Vehicle:       v.DisplayName(),
			Customer:      name,
			Status:        r.Status,
			EndDate:       r.EndDate.String(),
			DaysOverdue:   reservation.DaysOverdue(r, today),
		})
	}

	slices.SortStableFunc(rows, func(a, b row) int {
		return cmp.Compare(b.DaysOverdue, a.DaysOverdue)
	})
	return rows
}

var header = []string{"Reservation", "License plate", "Vehicle", "Customer", "Status", "End date", "Days overdue"}

func workbook(rows []row) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
		return nil, err
	}

	for i, r := range rows {
		cell := fmt.Sprintf("A%d", i+2)
		values := []any{r.ReservationID, r.LicensePlate, r.Vehicle, r.Customer, string(r.Status), r.EndDate, r.DaysOverdue}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, err
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return nil, err
	}
	return f, nil
}
