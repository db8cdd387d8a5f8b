package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/poyrazK/keypanel/internal/adapters/api"
	"github.com/poyrazK/keypanel/internal/protocol"
)

type Stats struct {
	Total          uint64
	Success        uint64
	Rejected       uint64
	Errors         uint64
	MaxDevicesSeen int64
	Latencies      chan time.Duration

	mu      sync.Mutex
	reasons map[string]int
}

func newStats(capacity int) *Stats {
	return &Stats{Latencies: make(chan time.Duration, capacity), reasons: make(map[string]int)}
}

func (s *Stats) reject(reason string) {
	atomic.AddUint64(&s.Rejected, 1)
	s.mu.Lock()
	s.reasons[reason]++
	s.mu.Unlock()
}

func (s *Stats) observeDevices(n int64) {
	for {
		cur := atomic.LoadInt64(&s.MaxDevicesSeen)
		if n <= cur || atomic.CompareAndSwapInt64(&s.MaxDevicesSeen, cur, n) {
			return
		}
	}
}

// benchConfig describes one burst of redemptions of a single key, each from a fresh device.
type benchConfig struct {
	Server      string
	Endpoint    string
	APIKey      string
	Secret      string
	Key         string
	Count       int
	Concurrency int
}

func main() {
	mode := flag.String("mode", "bench", "Mode: bench, seed or race")
	server := flag.String("server", "http://127.0.0.1:8080", "keypanel base URL")
	endpoint := flag.String("endpoint", "bench", "Reseller username in the connect path")
	apiKey := flag.String("api-key", "", "Panel API key")
	secret := flag.String("secret", "", "Panel secret key")
	key := flag.String("key", "", "License key to redeem")
	count := flag.Int("n", 100, "Total number of redemptions")
	concurrency := flag.Int("c", 10, "Number of concurrent workers")
	maxDevices := flag.Int("devices", 1, "Max devices for seeded keys")
	flag.Parse()

	cfg := benchConfig{
		Server: *server, Endpoint: *endpoint, APIKey: *apiKey, Secret: *secret, Key: *key,
		Count: *count, Concurrency: *concurrency,
	}

	var err error
	switch *mode {
	case "seed":
		err = runSeed(context.Background(), *endpoint, *maxDevices, os.Stdout)
	case "race":
		err = runRaceTest(context.Background(), cfg, *maxDevices, os.Stdout)
	default:
		start := time.Now()
		stats := runBenchmark(cfg)
		printReport(os.Stdout, time.Since(start), stats, cfg.Concurrency)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", *mode, err)
		os.Exit(1)
	}
}

func runBenchmark(cfg benchConfig) *Stats {
	stats := newStats(cfg.Count)
	client := &http.Client{Timeout: 5 * time.Second}

	var wg sync.WaitGroup
	perWorker := cfg.Count / cfg.Concurrency
	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				redeemOnce(client, cfg, stats)
			}
		}()
	}
	wg.Wait()
	close(stats.Latencies)
	return stats
}

type connectResponse struct {
	Status        bool   `json:"status"`
	EncryptedData string `json:"encryptedData"`
	Reason        string `json:"reason"`
}

func redeemOnce(client *http.Client, cfg benchConfig, stats *Stats) {
	defer atomic.AddUint64(&stats.Total, 1)

	body, _ := json.Marshal(map[string]string{
		"encryptedData": protocol.EncodeRedemption(cfg.Key, uuid.New().String(), cfg.Secret),
	})
	req, err := http.NewRequest(http.MethodPost, cfg.Server+"/connect/"+cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		atomic.AddUint64(&stats.Errors, 1)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(api.APIKeyHeader, cfg.APIKey)

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		atomic.AddUint64(&stats.Errors, 1)
		return
	}
	defer resp.Body.Close()

	var cr connectResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		atomic.AddUint64(&stats.Errors, 1)
		return
	}
	stats.Latencies <- time.Since(start)

	if !cr.Status {
		stats.reject(cr.Reason)
		return
	}
	atomic.AddUint64(&stats.Success, 1)

	env, err := protocol.Open(cr.EncryptedData, cfg.Secret)
	if err != nil {
		stats.reject("bad signature")
		return
	}
	var payload struct {
		CurrentDevices int64 `json:"currentDevices"`
	}
	if json.Unmarshal([]byte(env.DataString), &payload) == nil {
		stats.observeDevices(payload.CurrentDevices)
	}
}

func printReport(out io.Writer, duration time.Duration, stats *Stats, concurrency int) {
	var latencies []time.Duration
	for l := range stats.Latencies {
		latencies = append(latencies, l)
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	fmt.Fprintln(out, "\n============================================")
	fmt.Fprintln(out, "        KEY REDEMPTION BENCHMARK REPORT      ")
	fmt.Fprintln(out, "============================================")
	fmt.Fprintf(out, "Test Duration:    %v\n", duration)
	fmt.Fprintf(out, "Concurrency:      %d workers\n", concurrency)
	if duration > 0 {
		fmt.Fprintf(out, "Throughput:       %.2f requests/sec\n", float64(stats.Total)/duration.Seconds())
	}

	fmt.Fprintln(out, "\n--- Outcomes ---")
	fmt.Fprintf(out, "Total Attempted:  %d\n", stats.Total)
	fmt.Fprintf(out, "Admitted:         %d\n", stats.Success)
	fmt.Fprintf(out, "Rejected:         %d\n", stats.Rejected)
	fmt.Fprintf(out, "Transport Errors: %d\n", stats.Errors)
	fmt.Fprintf(out, "Peak Devices:     %d\n", stats.MaxDevicesSeen)

	stats.mu.Lock()
	reasons := make([]string, 0, len(stats.reasons))
	for r := range stats.reasons {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		fmt.Fprintf(out, "  %-28s %d\n", r, stats.reasons[r])
	}
	stats.mu.Unlock()

	if len(latencies) > 0 {
		fmt.Fprintln(out, "\n--- Latency Percentiles ---")
		fmt.Fprintf(out, "P50 (Median):     %v\n", latencies[len(latencies)/2])
		fmt.Fprintf(out, "P90:              %v\n", latencies[int(float64(len(latencies))*0.90)])
		fmt.Fprintf(out, "P99:              %v\n", latencies[int(float64(len(latencies))*0.99)])
		fmt.Fprintf(out, "Min:              %v\n", latencies[0])
		fmt.Fprintf(out, "Max:              %v\n", latencies[len(latencies)-1])
	}
	fmt.Fprintln(out, "============================================")
}
