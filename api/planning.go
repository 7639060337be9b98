package api

import (
	"cmp"
	"context"
	"net/http"
	"slices"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/semanticallynull/rentaldesk-backend/calendar"
	"github.com/semanticallynull/rentaldesk-backend/internal/middleware"
	"github.com/semanticallynull/rentaldesk-backend/internal/querycache"
	"github.com/semanticallynull/rentaldesk-backend/lifecycle"
	"github.com/semanticallynull/rentaldesk-backend/reservation"
)

func reservationRangeKey(r calendar.Range) string {
	key := lifecycle.KeyReservationRange + ":" + r.Start.String() + ":"
	if r.End != nil {
		key += r.End.String()
	}
	return key
}

func overdueKey(vehicleID int64) string {
	return lifecycle.KeyOverdue + ":" + strconv.FormatInt(vehicleID, 10)
}

func byStart(a, b reservation.Reservation) int {
	if c := a.StartDate.Time().Compare(b.StartDate.Time()); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// reservationsHandler feeds the planning calendar. Without a period every
// reservation is listed, with startDate only those overlapping the period.
func (a *API) reservationsHandler(c *gin.Context) {
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

	if start == nil {
		if end != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "endDate needs a startDate"})
			return
		}
		all, err := querycache.Fetch(ctx, a.cache, lifecycle.KeyReservations, a.sortedReservations)
		if err != nil {
			a.respondError(c, err, nil)
			return
		}
		c.JSON(http.StatusOK, all)
		return
	}

	if end != nil && end.Before(*start) {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "endDate is before startDate"})
		return
	}
	period := calendar.Range{Start: *start, End: end}

	// built from a fresh list: only the range keys are dropped before a save returns
	rs, err := querycache.Fetch(ctx, a.cache, reservationRangeKey(period), func(ctx context.Context) ([]reservation.Reservation, error) {
		all, err := a.sortedReservations(ctx)
		if err != nil {
			return nil, err
		}
		return slices.DeleteFunc(all, func(r reservation.Reservation) bool {
			return !calendar.Overlaps(r.Range(), period)
		}), nil
	})
	if err != nil {
		a.respondError(c, err, nil)
		return
	}

	logger.DebugContext(c, "reservations in period", "start", period.Start.String(), "count", len(rs))
	c.JSON(http.StatusOK, rs)
}

func (a *API) sortedReservations(ctx context.Context) ([]reservation.Reservation, error) {
	rs, err := a.backend.ListReservations(ctx)
	if err != nil {
		return nil, err
	}
	if rs == nil {
		rs = []reservation.Reservation{}
	}
	slices.SortFunc(rs, byStart)
	return rs, nil
}

// vehicleOverdueHandler lists the overdue reservations of a vehicle for the
// fleet overview.
func (a *API) vehicleOverdueHandler(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "Invalid vehicle id"})
		return
	}

	rs, err := querycache.Fetch(c.Request.Context(), a.cache, overdueKey(id), func(ctx context.Context) ([]reservation.Reservation, error) {
		return a.backend.OverdueReservations(ctx, id)
	})
	if err != nil {
		a.respondError(c, err, nil)
		return
	}
	if rs == nil {
		rs = []reservation.Reservation{}
	}
	c.JSON(http.StatusOK, rs)
}
