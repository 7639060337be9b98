// Command overdue-report writes the overdue reservations of the whole fleet
// to an xlsx workbook.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/semanticallynull/rentaldesk-backend/calendar"
	"github.com/semanticallynull/rentaldesk-backend/internal/o11y"
	"github.com/semanticallynull/rentaldesk-backend/rentalapi"
)

var cli = struct {
	RentalAPIURL string        `name:"rental-api-url" env:"RENTAL_API_URL" default:"http://localhost:3000/api/"`
	Timeout      time.Duration `name:"timeout" env:"RENTAL_API_TIMEOUT" default:"30s"`
	ServiceToken string        `name:"service-token" env:"SERVICE_TOKEN"`
	Date         string        `name:"date" help:"Report as of this day (YYYY-MM-DD); defaults to today."`
	LogLevel     string        `name:"log-level" env:"LOG_LEVEL" default:"info"`
	Output       string        `arg:"" name:"output" help:"Path of the xlsx file to write." default:"overdue.xlsx"`
}{}

func main() {
	if err := run(); err != nil {
		log.Fatalf("unexpected error: %v", err)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	_ = godotenv.Load()
	kong.Parse(&cli)

	logger, err := o11y.NewLogger("text", cli.LogLevel)
	if err != nil {
		return err
	}

	today := calendar.Today(time.Now)
	if cli.Date != "" {
		today, err = calendar.Parse(cli.Date)
		if err != nil {
			return err
		}
	}

	ctx = rentalapi.WithToken(ctx, cli.ServiceToken)
	client := rentalapi.New(cli.RentalAPIURL, cli.Timeout, logger)

	reservations, err := client.ListReservations(ctx)
	if err != nil {
		return fmt.Errorf("list reservations: %w", err)
	}
	vehicles, err := client.ListVehicles(ctx)
	if err != nil {
		return fmt.Errorf("list vehicles: %w", err)
	}
	customers, err := client.ListCustomers(ctx)
	if err != nil {
		return fmt.Errorf("list customers: %w", err)
	}

	rows := overdueRows(reservations, vehicles, customers, today)
	f, err := workbook(rows)
	if err != nil {
		return fmt.Errorf("build workbook: %w", err)
	}
	defer f.Close()

	if err := f.SaveAs(cli.Output); err != nil {
		return fmt.Errorf("save %s: %w", cli.Output, err)
	}

	logger.Info("overdue report written", "path", cli.Output, "overdue", len(rows), "date", today.String())
	return nil
}
