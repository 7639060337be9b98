package reservation

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semanticallynull/rentaldesk-backend/calendar"
)

func date(y int, m time.Month, d int) calendar.Date {
	return calendar.New(y, m, d)
}

func TestIsOverdue(t *testing.T) {
	end := date(2024, time.January, 1)

	tests := []struct {
		name   string
		r      Reservation
		today  calendar.Date
		expect bool
	}{
		{
			name:   "picked up and ten days late",
			r:      Reservation{EndDate: &end, Status: StatusPickedUp},
			today:  date(2024, time.January, 10),
			expect: true,
		},
		{
			name:   "inside grace window",
			r:      Reservation{EndDate: &end, Status: StatusPickedUp},
			today:  date(2024, time.January, 4),
			expect: false,
		},
		{
			name:   "first day after grace window",
			r:      Reservation{EndDate: &end, Status: StatusBooked},
			today:  date(2024, time.January, 5),
			expect: true,
		},
		{
			name:   "completed",
			r:      Reservation{EndDate: &end, Status: StatusCompleted},
			today:  date(2024, time.January, 10),
			expect: false,
		},
		{
			name:   "cancelled",
			r:      Reservation{EndDate: &end, Status: StatusCancelled},
			today:  date(2024, time.January, 10),
			expect: false,
		},
		{
			name:   "open ended",
			r:      Reservation{Status: StatusPickedUp},
			today:  date(2024, time.January, 10),
			expect: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, IsOverdue(tt.r, tt.today))
		})
	}
}

func TestDaysOverdue(t *testing.T) {
	end := date(2024, time.January, 1)
	assert.Equal(t, 9, DaysOverdue(Reservation{EndDate: &end}, date(2024, time.January, 10)))
	assert.Equal(t, 0, DaysOverdue(Reservation{EndDate: &end}, date(2023, time.December, 30)))
	assert.Equal(t, 0, DaysOverdue(Reservation{}, date(2024, time.January, 10)))
}

func TestSuggestEndDate(t *testing.T) {
	today := date(2024, time.March, 10)

	t.Run("running rental ends today", func(t *testing.T) {
		got := SuggestEndDate(today, date(2024, time.March, 1), true, true)
		assert.True(t, got.Equal(today), "got %s", got)
	})

	t.Run("future start gets default length", func(t *testing.T) {
		got := SuggestEndDate(today, date(2024, time.March, 20), true, true)
		assert.True(t, got.Equal(date(2024, time.March, 23)), "got %s", got)
	})

	t.Run("start today is not in the past", func(t *testing.T) {
		got := SuggestEndDate(today, today, true, true)
		assert.True(t, got.Equal(date(2024, time.March, 13)), "got %s", got)
	})

	t.Run("not previously open ended", func(t *testing.T) {
		got := SuggestEndDate(today, date(2024, time.March, 1), false, true)
		assert.True(t, got.Equal(date(2024, time.March, 4)), "got %s", got)
	})

	t.Run("not an active rental", func(t *testing.T) {
		got := SuggestEndDate(today, date(2024, time.March, 1), true, false)
		assert.True(t, got.Equal(date(2024, time.March, 4)), "got %s", got)
	})
}

func TestReservation_UnmarshalJSON(t *testing.T) {
	body := `{
		"id": 7,
		"vehicleId": 3,
		"customerId": 9,
		"driverId": null,
		"startDate": "2024-06-01T00:00:00.000Z",
		"endDate": null,
		"status": "pending",
		"totalPrice": "120.50",
		"deliveryRequired": true,
		"deliveryCity": "Utrecht",
		"pickupMileage": 1200,
		"fuelLevelPickup": "3/4",
		"vehicle": {"id": 3, "licensePlate": "AB-123-C", "registeredTo": "BV"}
	}`

	var r Reservation
	require.NoError(t, json.Unmarshal([]byte(body), &r))

	assert.Equal(t, int64(7), r.ID)
	assert.True(t, r.IsOpenEnded())
	assert.Equal(t, StatusBooked, r.Status)
	assert.Equal(t, "2024-06-01", r.StartDate.String())
	require.NotNil(t, r.TotalPrice)
	assert.Equal(t, Decimal("120.50"), *r.TotalPrice)
	assert.Equal(t, "Utrecht", r.DeliveryCity)
	require.NotNil(t, r.PickupMileage)
	assert.Equal(t, 1200, *r.PickupMileage)
	require.NotNil(t, r.Vehicle)
	assert.Equal(t, "AB-123-C", r.Vehicle.LicensePlate)
}
