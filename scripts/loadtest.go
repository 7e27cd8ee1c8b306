// Loadtest is a concurrent HTTP load testing tool for the middleware: it
// measures throughput, latency percentiles, and the 200/429 split of the
// rate-limited endpoints.
//
// Usage:
//
//	go run loadtest.go -url http://localhost:8080/api/tag/g/collect?v=2 -concurrency 10 -requests 1000
//	go run loadtest.go -url http://localhost:8080/api/lead -method POST -clients 50
//
// The -clients flag rotates fake client IPs via X-Forwarded-For so per-key
// limits can be exercised independently.
package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

func main() {
	var (
		url         = flag.String("url", "http://localhost:8080/api/tag/g/collect?v=2&tid=G-X", "Target URL")
		concurrency = flag.Int("concurrency", 10, "Number of concurrent workers")
		requests    = flag.Int("requests", 100, "Total number of requests to send")
		method      = flag.String("method", "GET", "HTTP method")
		body        = flag.String("body", `{"email":"load@example.com"}`, "Request body for POST")
		clients     = flag.Int("clients", 1, "Number of distinct fake client IPs to rotate")
		timeoutSec  = flag.Int("timeout", 10, "Per-request timeout in seconds")
	)
	flag.Parse()

	client := &http.Client{Timeout: time.Duration(*timeoutSec) * time.Second}

	jobs := make(chan int)
	var wg sync.WaitGroup

	var total, allowed, limited, failed int32
	var mu sync.Mutex
	var latencies []time.Duration

	for w := 0; w < *concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range jobs {
				var payload io.Reader
				if *method == http.MethodPost {
					payload = strings.NewReader(*body)
				}

				req, err := http.NewRequest(*method, *url, payload)
				if err != nil {
					atomic.AddInt32(&failed, 1)
					continue
				}
				req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.1.%d.%d", n%*clients/250, n%*clients%250))
				if *method == http.MethodPost {
					req.Header.Set("Content-Type", "application/json")
				}

				start := time.Now()
				res, err := client.Do(req)
				elapsed := time.Since(start)

				atomic.AddInt32(&total, 1)
				if err != nil {
					atomic.AddInt32(&failed, 1)
					continue
				}

				io.Copy(io.Discard, res.Body)
				res.Body.Close()

				switch {
				case res.StatusCode == http.StatusTooManyRequests:
					atomic.AddInt32(&limited, 1)
				case res.StatusCode >= 200 && res.StatusCode < 300:
					atomic.AddInt32(&allowed, 1)
				default:
					atomic.AddInt32(&failed, 1)
				}

				mu.Lock()
				latencies = append(latencies, elapsed)
				mu.Unlock()
			}
		}()
	}

	begin := time.Now()
	for i := 0; i < *requests; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	duration := time.Since(begin)

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	fmt.Printf("requests:   %d in %s (%.1f req/s)\n", total, duration.Round(time.Millisecond), float64(total)/duration.Seconds())
	fmt.Printf("allowed:    %d\n", allowed)
	fmt.Printf("limited:    %d\n", limited)
	fmt.Printf("failed:     %d\n", failed)
	if len(latencies) > 0 {
		fmt.Printf("p50:        %s\n", pct(latencies, 0.50))
		fmt.Printf("p95:        %s\n", pct(latencies, 0.95))
		fmt.Printf("p99:        %s\n", pct(latencies, 0.99))
	}
}

func pct(sorted []time.Duration, p float64) time.Duration {
	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
