package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/semanticallynull/rentaldesk-backend/calendar"
	"github.com/semanticallynull/rentaldesk-backend/customer"
	"github.com/semanticallynull/rentaldesk-backend/document"
	"github.com/semanticallynull/rentaldesk-backend/handover"
	"github.com/semanticallynull/rentaldesk-backend/internal/middleware"
	"github.com/semanticallynull/rentaldesk-backend/internal/o11y"
	"github.com/semanticallynull/rentaldesk-backend/internal/querycache"
	"github.com/semanticallynull/rentaldesk-backend/lifecycle"
	"github.com/semanticallynull/rentaldesk-backend/recents"
	"github.com/semanticallynull/rentaldesk-backend/rentalapi"
	"github.com/semanticallynull/rentaldesk-backend/reservation"
	"github.com/semanticallynull/rentaldesk-backend/vehicle"
)

// Backend is the rental API as the dashboard backend uses it.
type Backend interface {
	lifecycle.Backend
	handover.Backend
	ListReservations(ctx context.Context) ([]reservation.Reservation, error)
	ListVehicles(ctx context.Context) ([]vehicle.Vehicle, error)
	AvailableVehicles(ctx context.Context, r calendar.Range) ([]vehicle.Vehicle, error)
	ListCustomers(ctx context.Context) ([]customer.Customer, error)
	Blacklist(ctx context.Context) (customer.Blacklist, error)
	ListDocuments(ctx context.Context, reservationID int64) ([]document.Document, error)
	DeleteDocument(ctx context.Context, id int64) error
}

type Config struct {
	// Auth0Domain empty means the X-User-ID header is trusted.
	Auth0Domain string
	Audience    string

	MetricsUsername string
	MetricsPassword string

	AllowedOrigins []string

	// Clock defaults to time.Now.
	Clock func() time.Time
}

type API struct {
	r        *gin.Engine
	backend  Backend
	handover *handover.Service
	recents  *recents.Service
	cache    *querycache.Cache
	hooks    []lifecycle.PostSaveHook
	sessions *Sessions
	obs      *o11y.Observability
	now      func() time.Time

	submissions *prometheus.CounterVec
}

func New(b Backend, hs *handover.Service, rs *recents.Service, cache *querycache.Cache, hooks []lifecycle.PostSaveHook, obs *o11y.Observability, cfg Config) (*API, error) {
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	a := &API{
		r:        gin.New(),
		backend:  b,
		handover: hs,
		recents:  rs,
		cache:    cache,
		hooks:    hooks,
		sessions: NewSessions(now),
		obs:      obs,
		now:      now,
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservation_submissions_total",
				Help: "Reservation form submissions by outcome",
			},
			[]string{"outcome"},
		),
	}
	obs.Registry.MustRegister(a.submissions, cache.Collector())

	a.r.Use(gin.Recovery(), middleware.Tracing(), middleware.Logging(obs.Logger), middleware.Metrics(obs.Registry))
	if len(cfg.AllowedOrigins) > 0 {
		a.r.Use(middleware.CORS(cfg.AllowedOrigins))
	}

	a.r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	metrics := gin.WrapH(promhttp.HandlerFor(obs.Registry, promhttp.HandlerOpts{}))
	if cfg.MetricsUsername != "" {
		a.r.GET("/metrics", gin.BasicAuth(gin.Accounts{cfg.MetricsUsername: cfg.MetricsPassword}), metrics)
	} else {
		a.r.GET("/metrics", metrics)
	}

	auth := middleware.HeaderAuth()
	if cfg.Auth0Domain != "" {
		jwt, err := middleware.JWT(cfg.Auth0Domain, cfg.Audience)
		if err != nil {
			return nil, err
		}
		auth = jwt
	} else {
		obs.Logger.Warn("no auth0 domain configured, trusting X-User-ID header")
	}

	protected := a.r.Group("/")
	protected.Use(auth, middleware.ForwardToken())
	{
		protected.POST("/sessions", a.openSessionHandler)
		protected.GET("/sessions/:id", a.sessionStateHandler)
		protected.DELETE("/sessions/:id", a.closeSessionHandler)
		protected.POST("/sessions/:id/submit", a.submitHandler)
		protected.POST("/sessions/:id/toggle-open-ended", a.toggleOpenEndedHandler)
		protected.GET("/sessions/:id/overdue/:reservationId", a.overdueDetailsHandler)
		protected.POST("/sessions/:id/overdue/:reservationId/complete", a.completeOverdueHandler)
		protected.DELETE("/sessions/:id/overdue/:reservationId", a.deleteOverdueHandler)
		protected.POST("/sessions/:id/pickup", a.pickupHandler)
		protected.POST("/sessions/:id/return", a.returnHandler)
		protected.POST("/sessions/:id/subflow/cancel", a.cancelSubFlowHandler)

		protected.GET("/reservations", a.reservationsHandler)
		protected.GET("/vehicles/:id/overdue", a.vehicleOverdueHandler)

		protected.GET("/vehicles/selectable", a.selectableVehiclesHandler)
		protected.GET("/customers/selectable", a.selectableCustomersHandler)

		protected.GET("/recents/:kind", a.recentsHandler)
		protected.POST("/recents/:kind", a.addRecentHandler)

		protected.GET("/reservations/:id/documents", a.documentsHandler)
		protected.POST("/reservations/:id/documents", a.uploadDocumentsHandler)
		protected.DELETE("/documents/:id", a.deleteDocumentHandler)
	}

	return a, nil
}

func (a *API) Router() *gin.Engine {
	return a.r
}

// Sessions exposes the open form sessions to the idle eviction job.
func (a *API) Sessions() *Sessions {
	return a.sessions
}

// errorStatus maps an error to the HTTP status and error code of the
// response.
func errorStatus(err error) (int, string) {
	var apiErr *rentalapi.APIError
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound, "SESSION_NOT_FOUND"
	case errors.Is(err, lifecycle.ErrNotOverdue):
		return http.StatusNotFound, "NOT_OVERDUE"
	case errors.Is(err, lifecycle.ErrNoSubFlow):
		return http.StatusConflict, "NO_SUBFLOW"
	case errors.Is(err, lifecycle.ErrSubFlowOpen):
		return http.StatusConflict, "SUBFLOW_OPEN"
	case errors.Is(err, lifecycle.ErrSubFlowBusy):
		return http.StatusConflict, "SUBFLOW_BUSY"
	case errors.Is(err, lifecycle.ErrSubFlowMismatch):
		return http.StatusConflict, "SUBFLOW_MISMATCH"
	case errors.Is(err, lifecycle.ErrNothingPending):
		return http.StatusConflict, "NOTHING_PENDING"
	case errors.Is(err, lifecycle.ErrUnknownAction):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, handover.ErrMileageRequired),
		errors.Is(err, handover.ErrFuelLevelRequired),
		errors.Is(err, handover.ErrMileageDecreased):
		return http.StatusBadRequest, "INVALID_HANDOVER"
	case errors.Is(err, handover.ErrWrongStatus):
		return http.StatusConflict, "WRONG_STATUS"
	case rentalapi.IsNotFound(err):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, "UPSTREAM_ERROR"
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

// respondError writes the error body. Server side failures are reported to
// sentry when it is enabled.
func (a *API) respondError(c *gin.Context, err error, extra gin.H) {
	status, code := errorStatus(err)
	logger := middleware.GetLogger(c)

	msg := err.Error()
	var apiErr *rentalapi.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		msg = apiErr.Message
	}

	if status >= http.StatusInternalServerError {
		logger.ErrorContext(c, "request failed", "error", err)
		a.capture(c, err)
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	} else {
		logger.InfoContext(c, "request rejected", "code", code, "error", err)
	}

	body := gin.H{"code": code, "message": msg}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}

func (a *API) capture(c *gin.Context, err error) {
	if !a.obs.Sentry {
		return
	}
	hub := sentry.CurrentHub().Clone()
	hub.Scope().SetTag("route", c.FullPath())
	if userID, ok := middleware.GetUserID(c); ok {
		hub.Scope().SetUser(sentry.User{ID: userID})
	}
	hub.CaptureException(err)
}
