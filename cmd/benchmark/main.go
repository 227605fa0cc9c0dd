package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	accounts    int
	prefix      string
	currency    string
	betAmount   string
	replayRate  float64
)

// Metrics
var (
	totalRequests uint64
	success200    uint64 // Idempotent replays
	success201    uint64 // Settled
	reject422     uint64 // Insufficient funds and validation
	fail409       uint64 // Busy or in progress
	fail503       uint64 // Entropy unavailable
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.IntVar(&accounts, "accounts", 100, "Number of seeded accounts")
	flag.StringVar(&prefix, "prefix", "player", "Seeded account id prefix")
	flag.StringVar(&currency, "currency", "USD", "Wallet currency")
	flag.StringVar(&betAmount, "bet", "0.10", "Bet amount in major units")
	flag.Float64Var(&replayRate, "replay", 0.05, "Fraction of requests that resend the previous key")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	wallets, err := resolveWallets()
	if err != nil {
		log.Fatalf("Error resolving wallets: %v", err)
	}

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, i, start, wallets)
	}

	wg.Wait()
	printResults(time.Since(start))
}

// resolveWallets looks up the seeded wallet of every account
func resolveWallets() ([]string, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	wallets := make([]string, accounts)

	for n := 1; n <= accounts; n++ {
		account := fmt.Sprintf("%s-%d", prefix, n)
		req, _ := http.NewRequest("GET", fmt.Sprintf("%s/api/v1/accounts/%s/wallets", targetURL, account), nil)
		req.Header.Set("X-Account-ID", account)

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		var found []struct {
			ID       string `json:"id"`
			Currency string `json:"currency"`
		}
		err = json.NewDecoder(resp.Body).Decode(&found)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", account, err)
		}
		for _, w := range found {
			if w.Currency == currency {
				wallets[n-1] = w.ID
			}
		}
		if wallets[n-1] == "" {
			return nil, fmt.Errorf("account %s has no %s wallet, run the seeder first", account, currency)
		}
	}
	return wallets, nil
}

func worker(wg *sync.WaitGroup, id int, start time.Time, wallets []string) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	var lastKey string
	var lastAccount int
	for seq := 0; time.Since(start) < duration; seq++ {
		n := pickAccount()
		key := fmt.Sprintf("bench-%d-%d-%d", id, seq, time.Now().UnixNano())

		// Resend the previous request now and then to exercise replays
		if lastKey != "" && rand.Float64() < replayRate {
			n, key = lastAccount, lastKey
		}
		lastKey, lastAccount = key, n

		payload := map[string]interface{}{
			"wallet_id": wallets[n-1],
			"game_id":   "classic",
			"amount":    betAmount,
			"currency":  currency,
		}
		body, _ := json.Marshal(payload)

		req, _ := http.NewRequest("POST", targetURL+"/api/v1/bets", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", key)
		req.Header.Set("X-Account-ID", fmt.Sprintf("%s-%d", prefix, n))

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case 201:
			atomic.AddUint64(&success201, 1)
		case 200:
			atomic.AddUint64(&success200, 1)
		case 422:
			atomic.AddUint64(&reject422, 1)
		case 409:
			atomic.AddUint64(&fail409, 1)
		case 503:
			atomic.AddUint64(&fail503, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

// pickAccount returns a 1-based account number
func pickAccount() int {
	if workload == "hotspot" && rand.Float32() < 0.90 {
		// Hotspot: 90% of traffic goes to the first account
		return 1
	}
	return rand.IntN(accounts) + 1
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	s201 := atomic.LoadUint64(&success201)
	s200 := atomic.LoadUint64(&success200)
	r422 := atomic.LoadUint64(&reject422)
	f409 := atomic.LoadUint64(&fail409)
	f503 := atomic.LoadUint64(&fail503)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()
	var abortRate float64
	if total > 0 {
		abortRate = float64(f409) / float64(total) * 100
	}

	results := map[string]interface{}{
		"workload":         workload,
		"duration_sec":     d.Seconds(),
		"total_requests":   total,
		"throughput_tps":   tps,
		"success_settled":  s201,
		"success_replay":   s200,
		"rejected":         r422,
		"aborts_conflict":  f409,
		"abort_rate_pct":   abortRate,
		"entropy_failures": f503,
		"errors":           fErr,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("results_%s.json", workload)
	file, err := os.Create(filename)
	if err != nil {
		log.Printf("Error saving results: %v", err)
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
