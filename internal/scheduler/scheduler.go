// Package scheduler runs the periodic jobs of the backend.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/semanticallynull/rentaldesk-backend/calendar"
	"github.com/semanticallynull/rentaldesk-backend/reservation"
)

type Reservations interface {
	ListReservations(ctx context.Context) ([]reservation.Reservation, error)
}

type OverduePublisher interface {
	ReservationOverdue(ctx context.Context, r reservation.Reservation, daysOverdue int) error
}

// Sessions drops form sessions that have not been used since the cutoff.
type Sessions interface {
	EvictIdle(cutoff time.Time) int
}

type Config struct {
	// Cron specs with a leading seconds field.
	OverdueSweep    string
	SessionEviction string
	SessionIdle     time.Duration
}

type Scheduler struct {
	cron         *cron.Cron
	cfg          Config
	reservations Reservations
	publisher    OverduePublisher
	sessions     Sessions
	logger       *slog.Logger
	now          func() time.Time

	// prepares the context jobs talk to the upstream with
	jobContext func(context.Context) context.Context

	overdue prometheus.Gauge
}

type Option func(*Scheduler)

// WithPublisher announces every overdue reservation found by the sweep.
func WithPublisher(p OverduePublisher) Option {
	return func(s *Scheduler) {
		s.publisher = p
	}
}

func WithJobContext(f func(context.Context) context.Context) Option {
	return func(s *Scheduler) {
		s.jobContext = f
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

func New(cfg Config, res Reservations, sessions Sessions, reg prometheus.Registerer, logger *slog.Logger, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		cron:         cron.New(cron.WithLocation(time.UTC), cron.WithSeconds()),
		cfg:          cfg,
		reservations: res,
		sessions:     sessions,
		logger:       logger,
		now:          time.Now,
		jobContext:   func(ctx context.Context) context.Context { return ctx },
		overdue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "overdue_reservations",
			Help: "Reservations past their end date plus the grace period, as of the last sweep",
		}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := reg.Register(s.overdue); err != nil {
		return nil, fmt.Errorf("register overdue gauge: %w", err)
	}

	if _, err := s.cron.AddFunc(cfg.OverdueSweep, s.runOverdueSweep); err != nil {
		return nil, fmt.Errorf("register overdue sweep %q: %w", cfg.OverdueSweep, err)
	}
	if _, err := s.cron.AddFunc(cfg.SessionEviction, s.runSessionEviction); err != nil {
		return nil, fmt.Errorf("register session eviction %q: %w", cfg.SessionEviction, err)
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.logger.Info("starting scheduler", "jobs", len(s.cron.Entries()))
	s.cron.Start()
}

// Stop waits for running jobs or until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stopped before jobs finished")
	}
}

func (s *Scheduler) runOverdueSweep() {
	ctx, cancel := context.WithTimeout(s.jobContext(context.Background()), time.Minute)
	defer cancel()

	n, err := s.SweepOverdue(ctx)
	if err != nil {
		s.logger.Error("overdue sweep failed", "error", err)
		return
	}
	s.logger.Info("overdue sweep finished", "overdue", n)
}

// SweepOverdue counts the overdue reservations of the whole fleet and
// publishes an event for each of them.
func (s *Scheduler) SweepOverdue(ctx context.Context) (int, error) {
	all, err := s.reservations.ListReservations(ctx)
	if err != nil {
		return 0, fmt.Errorf("list reservations: %w", err)
	}

	today := calendar.Today(s.now)
	n := 0
	for _, r := range all {
		if !reservation.IsOverdue(r, today) {
			continue
		}
		n++
		if s.publisher == nil {
			continue
		}
		if err := s.publisher.ReservationOverdue(ctx, r, reservation.DaysOverdue(r, today)); err != nil {
			s.logger.Warn("failed to publish overdue event", "reservation_id", r.ID, "error", err)
		}
	}

	s.overdue.Set(float64(n))
	return n, nil
}

func (s *Scheduler) runSessionEviction() {
	if n := s.EvictSessions(); n > 0 {
		s.logger.Info("evicted idle form sessions", "count", n)
	}
}

func (s *Scheduler) EvictSessions() int {
	return s.sessions.EvictIdle(s.now().Add(-s.cfg.SessionIdle))
}
