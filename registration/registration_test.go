package registration

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/semanticallynull/rentaldesk-backend/reservation"
	"github.com/semanticallynull/rentaldesk-backend/vehicle"
)

type vehiclesMock struct {
	mock.Mock
}

func (m *vehiclesMock) GetVehicle(ctx context.Context, id int64) (vehicle.Vehicle, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(vehicle.Vehicle), args.Error(1)
}

func (m *vehiclesMock) UpdateVehicleRegistration(ctx context.Context, id int64, reg vehicle.Registration) (vehicle.Vehicle, error) {
	args := m.Called(ctx, id, reg)
	return args.Get(0).(vehicle.Vehicle), args.Error(1)
}

func newHook(m *vehiclesMock) *Hook {
	return NewHook(m, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHook_ConvertsCompanyVehicleOnCreate(t *testing.T) {
	m := &vehiclesMock{}
	m.On("GetVehicle", mock.Anything, int64(4)).Return(vehicle.Vehicle{ID: 4, RegisteredTo: vehicle.Company}, nil)
	m.On("UpdateVehicleRegistration", mock.Anything, int64(4), vehicle.Personal).Return(vehicle.Vehicle{ID: 4}, nil)

	err := newHook(m).ReservationSaved(context.Background(), reservation.Reservation{ID: 1, VehicleID: 4}, true)
	require.NoError(t, err)
	m.AssertExpectations(t)
}

func TestHook_UsesDenormalisedVehicle(t *testing.T) {
	m := &vehiclesMock{}
	m.On("UpdateVehicleRegistration", mock.Anything, int64(4), vehicle.Personal).Return(vehicle.Vehicle{ID: 4}, nil)

	r := reservation.Reservation{ID: 1, VehicleID: 4, Vehicle: &vehicle.Vehicle{ID: 4, RegisteredTo: vehicle.Company}}
	require.NoError(t, newHook(m).ReservationSaved(context.Background(), r, true))

	m.AssertNotCalled(t, "GetVehicle", mock.Anything, mock.Anything)
	m.AssertExpectations(t)
}

func TestHook_IgnoresPersonalVehiclesAndUpdates(t *testing.T) {
	m := &vehiclesMock{}
	m.On("GetVehicle", mock.Anything, int64(4)).Return(vehicle.Vehicle{ID: 4, RegisteredTo: vehicle.Personal}, nil)

	h := newHook(m)
	assert.NoError(t, h.ReservationSaved(context.Background(), reservation.Reservation{VehicleID: 4}, true))
	assert.NoError(t, h.ReservationSaved(context.Background(), reservation.Reservation{VehicleID: 4, Vehicle: &vehicle.Vehicle{ID: 4, RegisteredTo: vehicle.Company}}, false))

	m.AssertNotCalled(t, "UpdateVehicleRegistration", mock.Anything, mock.Anything, mock.Anything)
}
