package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/fadedpez/spinz/internal/config"
	"github.com/fadedpez/spinz/internal/logging"
	"github.com/fadedpez/spinz/internal/server"
	"github.com/fadedpez/spinz/pkg/money"
)

func main() {
	compensate := flag.Bool("compensate", false, "Refund every failed bet found")
	asJSON := flag.Bool("json", false, "Print the report as JSON")
	timeout := flag.Duration("timeout", 5*time.Minute, "Give up after this long")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := logging.NewLoggerWithWriter(os.Stderr, logging.ParseLevel(cfg.LogLevel), false)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to open stores: %v", err)
	}
	defer srv.Close()

	report, err := srv.Engine.Reconcile(ctx, *compensate)
	if err != nil {
		log.Fatalf("Reconciliation failed: %v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			log.Fatalf("Error writing report: %v", err)
		}
	} else {
		fmt.Printf("Recovered %d orphaned debits\n", report.OrphansRecovered)
		fmt.Printf("Found %d failed bets\n", len(report.Failed))
		for _, result := range report.Failed {
			fmt.Printf("  %s  account=%s wallet=%s bet=%s %s  %s\n", result.ID, result.AccountID, result.WalletID,
				money.Format(result.Bet, result.Currency), result.Currency, result.FailureReason)
		}
		if *compensate {
			fmt.Printf("Compensated %d bets\n", len(report.Compensated))
		}
		for _, msg := range report.Errors {
			fmt.Printf("Error: %s\n", msg)
		}
	}

	if len(report.Errors) > 0 {
		srv.Close()
		os.Exit(1)
	}
}
