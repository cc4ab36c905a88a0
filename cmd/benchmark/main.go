package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/punchamoorthee/vtuledger/internal/api"
	"github.com/punchamoorthee/vtuledger/internal/models"
)

var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	wallets     int
	jwtSecret   string
)

var (
	totalRequests uint64
	created201    uint64
	replay200     uint64
	processing202 uint64
	funds402      uint64
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot | replay")
	flag.IntVar(&wallets, "wallets", 1000, "Number of seeded bench wallets")
	flag.StringVar(&jwtSecret, "jwt-secret", os.Getenv("JWT_SECRET"), "HS256 secret used to sign owner tokens")
}

func main() {
	flag.Parse()
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()
	if jwtSecret == "" {
		logger.Fatal("-jwt-secret or JWT_SECRET is required")
	}

	tokens := make([]string, wallets)
	for i := range tokens {
		tok, err := api.SignOwner(jwtSecret, owner(i), duration+time.Hour)
		if err != nil {
			logger.Fatal("sign token", zap.Error(err))
		}
		tokens[i] = tok
	}

	logger.Info("starting benchmark",
		zap.String("workload", workload),
		zap.Int("workers", concurrency),
		zap.Duration("duration", duration),
	)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go worker(&wg, start, i, tokens)
	}
	wg.Wait()
	printResults(time.Since(start))
}

func owner(i int) string { return fmt.Sprintf("bench-%05d", i+1) }

func worker(wg *sync.WaitGroup, start time.Time, id int, tokens []string) {
	defer wg.Done()
	client := &http.Client{Timeout: 90 * time.Second}

	for seq := 0; time.Since(start) < duration; seq++ {
		w := pickWallet()
		ref := fmt.Sprintf("bench-%d-%d-%d", id, seq, time.Now().UnixNano())
		sends := 1
		if workload == "replay" {
			// Every reference is sent twice; the second must come back as a replay.
			sends = 2
		}

		body, _ := json.Marshal(models.PurchaseRequest{
			Kind:      "airtime",
			Amount:    "1.00",
			Recipient: fmt.Sprintf("080%08d", w),
			Params:    map[string]string{"network": "mtn"},
		})
		for s := 0; s < sends; s++ {
			send(client, tokens[w], ref, body)
		}
	}
}

func send(client *http.Client, token, ref string, body []byte) {
	req, _ := http.NewRequest("POST", targetURL+"/api/v1/purchases", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Idempotency-Key", ref)

	resp, err := client.Do(req)
	if err != nil {
		atomic.AddUint64(&failOther, 1)
		return
	}
	defer resp.Body.Close()

	atomic.AddUint64(&totalRequests, 1)
	switch resp.StatusCode {
	case http.StatusCreated:
		atomic.AddUint64(&created201, 1)
	case http.StatusOK:
		atomic.AddUint64(&replay200, 1)
	case http.StatusAccepted:
		atomic.AddUint64(&processing202, 1)
	case http.StatusPaymentRequired:
		atomic.AddUint64(&funds402, 1)
	default:
		atomic.AddUint64(&failOther, 1)
	}
}

func pickWallet() int {
	// Hotspot: 90% of traffic hits the first two wallets.
	if workload == "hotspot" && rand.Float32() < 0.90 {
		return rand.Intn(2)
	}
	return rand.Intn(wallets)
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	results := map[string]interface{}{
		"workload":           workload,
		"duration_sec":       d.Seconds(),
		"total_requests":     total,
		"throughput_tps":     float64(total) / d.Seconds(),
		"success_created":    atomic.LoadUint64(&created201),
		"success_replay":     atomic.LoadUint64(&replay200),
		"processing":         atomic.LoadUint64(&processing202),
		"insufficient_funds": atomic.LoadUint64(&funds402),
		"errors":             atomic.LoadUint64(&failOther),
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	file, err := os.Create(fmt.Sprintf("results_%s.json", workload))
	if err != nil {
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
