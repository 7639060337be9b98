package rentalapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/semanticallynull/rentaldesk-backend/reservation"
)

var ErrRequestFailed = errors.New("rental api request failed")

// APIError is a generic failure reported by the rental API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("rental api: %d %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the rental API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// overdueError is returned when a save is rejected because the vehicle
// still has unfinished reservations past their end date.
type overdueError struct {
	message      string
	reservations []reservation.Reservation
}

func (e *overdueError) Error() string {
	if e.message != "" {
		return "vehicle has overdue reservations: " + e.message
	}
	return fmt.Sprintf("vehicle has %d overdue reservations", len(e.reservations))
}

// OverdueReservationsFromError returns the overdue reservations carried by a
// structured overdue rejection.
func OverdueReservationsFromError(err error) ([]reservation.Reservation, bool) {
	var oerr *overdueError
	if errors.As(err, &oerr) {
		return oerr.reservations, true
	}
	return nil, false
}

// NewOverdueError builds the error the client returns for a structured
// overdue rejection. Backends other than Client use it to report the same
// condition.
func NewOverdueError(message string, reservations []reservation.Reservation) error {
	return &overdueError{message: message, reservations: reservations}
}

type errorBody struct {
	Message             string                    `json:"message"`
	Error               string                    `json:"error"`
	IsOverdueError      bool                      `json:"isOverdueError"`
	OverdueReservations []reservation.Reservation `json:"overdueReservations"`
}

func decodeError(status int, body []byte) error {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return &APIError{Status: status, Message: http.StatusText(status)}
	}

	if eb.IsOverdueError {
		return &overdueError{message: eb.Message, reservations: eb.OverdueReservations}
	}

	msg := eb.Message
	if msg == "" {
		msg = eb.Error
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{Status: status, Message: msg}
}
