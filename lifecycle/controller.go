package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/semanticallynull/rentaldesk-backend/calendar"
	"github.com/semanticallynull/rentaldesk-backend/rentalapi"
	"github.com/semanticallynull/rentaldesk-backend/reservation"
)

var (
	ErrNoSubFlow       = errors.New("no pickup or return in progress")
	ErrSubFlowOpen     = errors.New("a pickup or return is in progress")
	ErrNothingPending  = errors.New("no submission is waiting for overdue reservations")
	ErrNotOverdue      = errors.New("reservation is not among the overdue reservations")
	ErrUnknownAction   = errors.New("unknown overdue action")
	ErrSubFlowMismatch = errors.New("sub-flow result belongs to another reservation")
	ErrSubFlowBusy     = errors.New("the pickup or return is being saved")
)

const genericErrorMessage = "Saving the reservation failed, please try again"

type submission struct {
	form     reservation.Form
	intended reservation.Status
}

// Controller runs the lifecycle of the reservation behind one booking form.
// It is safe for concurrent use; calls are serialised.
type Controller struct {
	mu sync.Mutex

	backend     Backend
	notifier    Notifier
	invalidator Invalidator
	hooks       []PostSaveHook
	logger      *slog.Logger
	now         func() time.Time

	persisted *reservation.Reservation
	displayed reservation.Status
	trigger   triggerCell
	pending   *submission
	overdue   []reservation.Reservation
	subflow   *SubFlow

	background sync.WaitGroup
}

type Option func(*Controller)

// Editing loads an existing reservation into the controller.
func Editing(r reservation.Reservation) Option {
	return func(c *Controller) {
		c.persisted = &r
		c.displayed = r.Status
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

func WithHooks(hooks ...PostSaveHook) Option {
	return func(c *Controller) {
		c.hooks = append(c.hooks, hooks...)
	}
}

func New(b Backend, n Notifier, inv Invalidator, logger *slog.Logger, opts ...Option) *Controller {
	c := &Controller{
		backend:     b,
		notifier:    n,
		invalidator: inv,
		logger:      logger,
		now:         time.Now,
		displayed:   reservation.StatusBooked,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit validates the form, runs the overdue and conflict checks and saves
// the reservation. A non-nil error means a generic failure that has already
// been reported to the user; every other result is described by Outcome.
func (c *Controller) Submit(ctx context.Context, form reservation.Form, intended reservation.Status) (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subflow != nil {
		return Outcome{}, ErrSubFlowOpen
	}
	return c.submit(ctx, submission{form: form, intended: intended}, true)
}

func (c *Controller) submit(ctx context.Context, s submission, checkOverdue bool) (Outcome, error) {
	creating := c.persisted == nil
	if !creating {
		s.form.ID = c.persisted.ID
	}

	logger := c.logger.With(
		slog.Int64("vehicle_id", s.form.VehicleID),
		slog.Int64("reservation_id", s.form.ID),
		slog.String("intended_status", string(s.intended)),
	)

	if err := s.form.Validate(); err != nil {
		verr, ok := reservation.FieldErrors(err)
		if !ok {
			return c.fail(ctx, "validate", err)
		}
		logger.DebugContext(ctx, "reservation form invalid", "error", err)
		return Outcome{Kind: OutcomeInvalid, Errors: verr}, nil
	}

	if creating && checkOverdue {
		overdue, err := c.backend.OverdueReservations(ctx, s.form.VehicleID)
		if err != nil {
			return c.fail(ctx, "check overdue reservations", err)
		}
		if len(overdue) > 0 {
			logger.InfoContext(ctx, "vehicle has overdue reservations", "count", len(overdue))
			return c.holdForOverdue(s, overdue), nil
		}
	}
	c.pending, c.overdue = nil, nil

	var persistedStatus *reservation.Status
	if !creating {
		persistedStatus = &c.persisted.Status
	}
	statusForSave, trigger, err := PlanStatus(persistedStatus, s.intended)
	if err != nil {
		return Outcome{Kind: OutcomeInvalid, Errors: reservation.ValidationErrors{"status": err.Error()}}, nil
	}

	if !s.form.OpenEnded {
		conflicts, err := c.backend.CheckConflicts(ctx, s.form.VehicleID, s.form.Range(), s.form.ID)
		if err != nil {
			return c.fail(ctx, "check conflicts", err)
		}
		if len(conflicts) > 0 {
			logger.InfoContext(ctx, "reservation conflicts with existing bookings", "count", len(conflicts))
			c.notifier.Warn("The vehicle is already booked in this period")
			return Outcome{Kind: OutcomeConflict, Conflicts: conflicts}, nil
		}
	}

	if err := c.trigger.Set(trigger); err != nil {
		return c.fail(ctx, "record trigger", err)
	}
	saved, err := c.save(ctx, s.form, statusForSave)
	if err != nil {
		c.trigger.Take()
		if overdue, ok := rentalapi.OverdueReservationsFromError(err); ok {
			logger.InfoContext(ctx, "save rejected for overdue reservations", "count", len(overdue))
			return c.holdForOverdue(s, overdue), nil
		}
		return c.fail(ctx, "save reservation", err)
	}
	c.persisted = &saved

	if t := c.trigger.Take(); t != TriggerNone {
		c.subflow = &SubFlow{Trigger: t, Reservation: c.withParties(ctx, saved), Created: creating}
		c.displayed = t.Status()
		logger.InfoContext(ctx, "reservation saved, waiting for sub-flow", "trigger", string(t))

		kind := OutcomeAwaitingPickup
		if t == TriggerReturn {
			kind = OutcomeAwaitingReturn
		}
		shown := c.subflow.Reservation
		return Outcome{Kind: kind, Reservation: &shown}, nil
	}

	c.displayed = saved.Status
	logger.InfoContext(ctx, "reservation saved", "status", string(saved.Status), "created", creating)
	c.finish(ctx, saved, creating, "Reservation saved")
	return Outcome{Kind: OutcomeSaved, Reservation: &saved}, nil
}

func (c *Controller) save(ctx context.Context, f reservation.Form, status reservation.Status) (reservation.Reservation, error) {
	p := f.Payload(status)
	if f.IsNew() {
		return c.backend.CreateReservation(ctx, p, f.DamageCheck)
	}
	return c.backend.UpdateReservation(ctx, f.ID, p, f.DamageCheck)
}

func (c *Controller) holdForOverdue(s submission, overdue []reservation.Reservation) Outcome {
	c.pending = &s
	c.overdue = overdue
	return Outcome{Kind: OutcomeOverdue, Overdue: overdue}
}

// withParties fills in the vehicle and customer for display when the save
// response did not carry them.
func (c *Controller) withParties(ctx context.Context, r reservation.Reservation) reservation.Reservation {
	if r.Vehicle == nil {
		if v, err := c.backend.GetVehicle(ctx, r.VehicleID); err == nil {
			r.Vehicle = &v
		} else {
			c.logger.WarnContext(ctx, "failed to load vehicle for sub-flow", "vehicle_id", r.VehicleID, "error", err)
		}
	}
	if r.Customer == nil {
		if cu, err := c.backend.GetCustomer(ctx, r.CustomerID); err == nil {
			r.Customer = &cu
		} else {
			c.logger.WarnContext(ctx, "failed to load customer for sub-flow", "customer_id", r.CustomerID, "error", err)
		}
	}
	return r
}

// finish runs the post-save work of a final save.
func (c *Controller) finish(ctx context.Context, r reservation.Reservation, created bool, msg string) {
	for _, h := range c.hooks {
		if err := h.ReservationSaved(ctx, r, created); err != nil {
			c.logger.ErrorContext(ctx, "post-save hook failed", "reservation_id", r.ID, "error", err)
		}
	}

	c.invalidator.Invalidate(ctx, KeyAvailability, KeyReservationRange)

	c.background.Add(1)
	go func() {
		defer c.background.Done()
		c.invalidator.Invalidate(context.WithoutCancel(ctx), KeyReservations, KeyOverdue, KeyVehicles, KeyDocuments)
	}()

	c.notifier.Success(msg)
}

func (c *Controller) fail(ctx context.Context, op string, err error) (Outcome, error) {
	c.logger.ErrorContext(ctx, "reservation "+op+" failed", "error", err)

	msg := genericErrorMessage
	var apiErr *rentalapi.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		msg = apiErr.Message
	}
	c.notifier.Error(msg)

	return Outcome{}, fmt.Errorf("%s: %w", op, err)
}

// ResolveOverdue completes or deletes one overdue reservation, then asks the
// rental API again. Once nothing is overdue the held submission continues.
func (c *Controller) ResolveOverdue(ctx context.Context, id int64, action OverdueAction) (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil {
		return Outcome{}, ErrNothingPending
	}
	if !c.isOverdue(id) {
		return Outcome{}, ErrNotOverdue
	}

	var err error
	switch action {
	case ActionComplete:
		_, err = c.backend.UpdateStatus(ctx, id, reservation.StatusCompleted)
	case ActionDelete:
		err = c.backend.DeleteReservation(ctx, id)
	default:
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if err != nil {
		_, err = c.fail(ctx, "resolve overdue reservation", err)
		return Outcome{Kind: OutcomeOverdue, Overdue: c.overdue}, err
	}
	c.logger.InfoContext(ctx, "overdue reservation resolved", "reservation_id", id, "action", string(action))
	c.invalidator.Invalidate(ctx, KeyOverdue, KeyReservationRange, KeyReservations)

	overdue, err := c.backend.OverdueReservations(ctx, c.pending.form.VehicleID)
	if err != nil {
		_, err = c.fail(ctx, "check overdue reservations", err)
		return Outcome{Kind: OutcomeOverdue, Overdue: c.overdue}, err
	}
	if len(overdue) > 0 {
		c.overdue = overdue
		return Outcome{Kind: OutcomeOverdue, Overdue: overdue}, nil
	}

	s := *c.pending
	return c.submit(ctx, s, false)
}

func (c *Controller) isOverdue(id int64) bool {
	return slices.ContainsFunc(c.overdue, func(r reservation.Reservation) bool {
		return r.ID == id
	})
}

// OverdueDetails loads one of the overdue reservations.
func (c *Controller) OverdueDetails(ctx context.Context, id int64) (reservation.Reservation, error) {
	c.mu.Lock()
	known := c.isOverdue(id)
	c.mu.Unlock()

	if !known {
		return reservation.Reservation{}, ErrNotOverdue
	}
	return c.backend.GetReservation(ctx, id)
}

// BeginSubFlow claims the open sub-flow of trigger while its fields are
// written to the rental API. Until CompleteSubFlow or ReleaseSubFlow the
// sub-flow cannot be cancelled or claimed again.
func (c *Controller) BeginSubFlow(trigger Trigger) (reservation.Reservation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subflow == nil || c.subflow.Trigger != trigger {
		return reservation.Reservation{}, ErrNoSubFlow
	}
	if c.subflow.Saving {
		return reservation.Reservation{}, ErrSubFlowBusy
	}
	c.subflow.Saving = true
	return c.subflow.Reservation, nil
}

// ReleaseSubFlow gives up the claim of BeginSubFlow after a failed write.
// The sub-flow stays open.
func (c *Controller) ReleaseSubFlow() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subflow != nil {
		c.subflow.Saving = false
	}
}

// CompleteSubFlow finalises the transition after the sub-flow persisted its
// fields. updated is trusted as-is.
func (c *Controller) CompleteSubFlow(ctx context.Context, updated reservation.Reservation) (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subflow == nil {
		return Outcome{}, ErrNoSubFlow
	}
	if updated.ID != c.subflow.Reservation.ID {
		c.subflow.Saving = false
		return Outcome{}, ErrSubFlowMismatch
	}

	sf := c.subflow
	c.subflow = nil
	c.persisted = &updated
	c.displayed = updated.Status

	msg := "Pickup registered"
	if sf.Trigger == TriggerReturn {
		msg = "Return registered"
	}
	c.logger.InfoContext(ctx, "sub-flow completed", "reservation_id", updated.ID, "trigger", string(sf.Trigger))
	c.finish(ctx, updated, sf.Created, msg)

	return Outcome{Kind: OutcomeSaved, Reservation: &updated}, nil
}

// CancelSubFlow closes the open sub-flow and shows the last persisted status
// again.
func (c *Controller) CancelSubFlow() (reservation.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subflow == nil {
		return "", ErrNoSubFlow
	}
	if c.subflow.Saving {
		return "", ErrSubFlowBusy
	}
	c.subflow = nil
	c.displayed = c.persisted.Status
	return c.displayed, nil
}

// ToggleOpenEnded switches the form between open-ended and dated. When the
// form becomes dated an end date is proposed.
func (c *Controller) ToggleOpenEnded(f reservation.Form, openEnded bool) reservation.Form {
	if openEnded {
		f.SetOpenEnded(true, calendar.Date{})
		return f
	}

	wasOpenEnded := f.OpenEnded
	if f.StartDate.IsZero() {
		f.OpenEnded = false
		return f
	}
	if !wasOpenEnded && f.EndDate != nil {
		return f
	}

	c.mu.Lock()
	active := c.persisted != nil && c.persisted.Status == reservation.StatusPickedUp
	c.mu.Unlock()

	end := reservation.SuggestEndDate(calendar.Today(c.now), f.StartDate, wasOpenEnded, active)
	f.SetOpenEnded(false, end)
	return f
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := State{
		DisplayedStatus: c.displayed,
		PendingOverdue:  slices.Clone(c.overdue),
	}
	if c.persisted != nil {
		p := *c.persisted
		s.Persisted = &p
	}
	if c.subflow != nil {
		sf := *c.subflow
		s.SubFlow = &sf
	}
	return s
}

// Wait blocks until background invalidations have finished.
func (c *Controller) Wait() {
	c.background.Wait()
}
