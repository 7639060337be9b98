package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"

	"github.com/semanticallynull/rentaldesk-backend/api"
	"github.com/semanticallynull/rentaldesk-backend/events"
	"github.com/semanticallynull/rentaldesk-backend/handover"
	"github.com/semanticallynull/rentaldesk-backend/internal/o11y"
	"github.com/semanticallynull/rentaldesk-backend/internal/querycache"
	"github.com/semanticallynull/rentaldesk-backend/internal/scheduler"
	"github.com/semanticallynull/rentaldesk-backend/lifecycle"
	"github.com/semanticallynull/rentaldesk-backend/recents"
	"github.com/semanticallynull/rentaldesk-backend/registration"
	"github.com/semanticallynull/rentaldesk-backend/rentalapi"
)

var cli = struct {
	Port int `name:"port" env:"PORT" default:"8080"`

	RentalAPIURL     string        `name:"rental-api-url" env:"RENTAL_API_URL" default:"http://localhost:3000/api/"`
	RentalAPITimeout time.Duration `name:"rental-api-timeout" env:"RENTAL_API_TIMEOUT" default:"15s"`
	// ServiceToken authenticates the background jobs against the rental API.
	ServiceToken string `name:"service-token" env:"SERVICE_TOKEN"`

	DatabaseURL string `name:"database-url" env:"DATABASE_URL" help:"Postgres URL for recents; kept in memory when empty."`

	Auth0Domain string `name:"auth0-domain" env:"AUTH0_DOMAIN"`
	Audience    string `name:"audience" env:"AUDIENCE"`

	MetricsUsername string `name:"metrics-username" env:"METRICS_USERNAME"`
	MetricsPassword string `name:"metrics-password" env:"METRICS_PASSWORD"`

	AMQPURL      string `name:"amqp-url" env:"AMQP_URL" help:"RabbitMQ URL for lifecycle events; disabled when empty."`
	AMQPExchange string `name:"amqp-exchange" env:"AMQP_EXCHANGE" default:"rentaldesk.reservations"`

	SentryDSN    string  `name:"sentry-dsn" env:"SENTRY_DSN"`
	Environment  string  `name:"environment" env:"ENVIRONMENT" default:"development"`
	LogLevel     string  `name:"log-level" env:"LOG_LEVEL" default:"info"`
	LogFormat    string  `name:"log-format" env:"LOG_FORMAT" enum:"json,text" default:"json"`
	OTLPEndpoint string  `name:"otlp-endpoint" env:"OTLP_ENDPOINT" default:"localhost:4318"`
	TraceRatio   float64 `name:"trace-ratio" env:"TRACE_RATIO" default:"0.1"`

	OverdueSweep    string        `name:"overdue-sweep" env:"OVERDUE_SWEEP" default:"0 0 2 * * *"`
	SessionEviction string        `name:"session-eviction" env:"SESSION_EVICTION" default:"0 */5 * * * *"`
	SessionIdle     time.Duration `name:"session-idle" env:"SESSION_IDLE" default:"30m"`
	CacheTTL        time.Duration `name:"cache-ttl" env:"CACHE_TTL" default:"30s"`

	AllowedOrigins []string `name:"allowed-origins" env:"ALLOWED_ORIGINS" sep:","`
	NodeID         int64    `name:"node-id" env:"NODE_ID" default:"1" help:"Snowflake node id used for contract numbers."`
}{}

func main() {
	if err := run(); err != nil {
		log.Fatalf("unexpected error: %v", err)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// a missing .env is fine, the environment may be set by other means
	_ = godotenv.Load()
	kong.Parse(&cli)

	obs, cleanup, err := o11y.Setup(ctx, o11y.Options{
		ServiceName:  "rentaldesk-bff",
		LogFormat:    cli.LogFormat,
		LogLevel:     cli.LogLevel,
		OTLPEndpoint: cli.OTLPEndpoint,
		SampleRatio:  cli.TraceRatio,
		SentryDSN:    cli.SentryDSN,
		Environment:  cli.Environment,
	})
	defer cleanup()
	if err != nil {
		return err
	}
	logger := obs.Logger

	client := rentalapi.New(cli.RentalAPIURL, cli.RentalAPITimeout, logger)

	var store recents.Store = recents.NewMemoryStore()
	if cli.DatabaseURL != "" {
		db, err := sqlx.ConnectContext(ctx, "pgx", cli.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()

		s := recents.NewSQLStore(db)
		if err := s.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate recents store: %w", err)
		}
		store = s
	} else {
		logger.Warn("no database configured, recents are kept in memory")
	}

	hooks := []lifecycle.PostSaveHook{registration.NewHook(client, logger)}
	var schedOpts []scheduler.Option
	if cli.AMQPURL != "" {
		pub, closeAMQP, err := events.Dial(cli.AMQPURL, cli.AMQPExchange, logger)
		if err != nil {
			return err
		}
		defer closeAMQP()
		hooks = append(hooks, pub)
		schedOpts = append(schedOpts, scheduler.WithPublisher(pub))
	}

	hs, err := handover.NewService(client, cli.NodeID, logger)
	if err != nil {
		return err
	}

	cache := querycache.New(cli.CacheTTL)
	a, err := api.New(client, hs, recents.NewService(store), cache, hooks, obs, api.Config{
		Auth0Domain:     cli.Auth0Domain,
		Audience:        cli.Audience,
		MetricsUsername: cli.MetricsUsername,
		MetricsPassword: cli.MetricsPassword,
		AllowedOrigins:  cli.AllowedOrigins,
	})
	if err != nil {
		return err
	}

	if cli.ServiceToken != "" {
		schedOpts = append(schedOpts, scheduler.WithJobContext(func(ctx context.Context) context.Context {
			return rentalapi.WithToken(ctx, cli.ServiceToken)
		}))
	}
	sched, err := scheduler.New(scheduler.Config{
		OverdueSweep:    cli.OverdueSweep,
		SessionEviction: cli.SessionEviction,
		SessionIdle:     cli.SessionIdle,
	}, client, a.Sessions(), obs.Registry, logger, schedOpts...)
	if err != nil {
		return err
	}
	sched.Start()

	serv := http.Server{
		Addr:              fmt.Sprintf(":%d", cli.Port),
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", serv.Addr)
		if err := serv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sched.Stop(ctx)
	return serv.Shutdown(ctx)
}
