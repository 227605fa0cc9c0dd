package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"

	"github.com/fadedpez/spinz/internal/config"
	"github.com/fadedpez/spinz/internal/logging"
	"github.com/fadedpez/spinz/internal/server"
	"github.com/fadedpez/spinz/pkg/money"
	"github.com/fadedpez/spinz/pkg/services/wallet"
)

func main() {
	accounts := flag.Int("accounts", 100, "Number of accounts to seed")
	prefix := flag.String("prefix", "player", "Account id prefix")
	currency := flag.String("currency", "USD", "Wallet currency")
	amount := flag.String("amount", "100.00", "Opening deposit in major units")
	workers := flag.Int("workers", 8, "Concurrent deposits")
	flag.Parse()

	c, err := money.Lookup(*currency)
	if err != nil {
		log.Fatalf("Invalid currency: %v", err)
	}
	minor, err := money.ParseMajor(*amount, c)
	if err != nil || minor <= 0 {
		log.Fatalf("Invalid amount %q", *amount)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.StorageDriver == config.DriverMemory {
		log.Fatalf("Seeding the memory store has no effect, set STORAGE_DRIVER")
	}
	logger := logging.NewLoggerWithWriter(os.Stderr, logging.WARN, false)

	ctx := context.Background()
	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to open stores: %v", err)
	}
	defer srv.Close()

	jobs := make(chan int)
	var wg sync.WaitGroup
	var created, replayed, failed int64

	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range jobs {
				account := fmt.Sprintf("%s-%d", *prefix, n)
				_, isNew, err := srv.Wallets.Deposit(ctx, &wallet.TransferRequest{
					AccountID:      account,
					Currency:       c.Code,
					Amount:         minor,
					IdempotencyKey: "seed-" + account,
					Reference:      "seeder",
				})
				switch {
				case err != nil:
					atomic.AddInt64(&failed, 1)
					log.Printf("Error seeding %s: %v", account, err)
				case isNew:
					atomic.AddInt64(&created, 1)
				default:
					atomic.AddInt64(&replayed, 1)
				}
			}
		}()
	}

	for n := 1; n <= *accounts; n++ {
		jobs <- n
	}
	close(jobs)
	wg.Wait()

	fmt.Printf("Seeded %d accounts with %s %s (%d already seeded, %d failed)\n",
		created, money.FormatMinor(minor, c), c.Code, replayed, failed)
}
