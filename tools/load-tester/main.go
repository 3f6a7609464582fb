// Command load-tester floods a running relay with synthetic webhook events
// and tallies the responses by delivery outcome. Purchases are mixed in so
// the pending-cache path sees traffic too.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

type counters struct {
	delivered atomic.Int64 // 200
	partial   atomic.Int64 // 207
	failed    atomic.Int64 // 502
	throttled atomic.Int64 // 429
	other     atomic.Int64
	transport atomic.Int64
}

func (c *counters) record(status int) {
	switch status {
	case http.StatusOK:
		c.delivered.Add(1)
	case http.StatusMultiStatus:
		c.partial.Add(1)
	case http.StatusBadGateway:
		c.failed.Add(1)
	case http.StatusTooManyRequests:
		c.throttled.Add(1)
	default:
		c.other.Add(1)
	}
}

func (c *counters) total() int64 {
	return c.delivered.Load() + c.partial.Load() + c.failed.Load() +
		c.throttled.Load() + c.other.Load() + c.transport.Load()
}

func buildEvent(workerID, seq int) ([]byte, error) {
	name := "Lead"
	custom := map[string]any{"value": "0", "currency": "SEK"}
	// Every fifth event is a Purchase so dedup lookups get exercised.
	if seq%5 == 0 {
		name = "Purchase"
		custom["value"] = "297"
	}
	return json.Marshal(map[string]any{
		"event_id":      uuid.NewString(),
		"event_name":    name,
		"event_time":    time.Now().Unix(),
		"action_source": "website",
		"user_data":     map[string]any{"email": fmt.Sprintf("worker%d@example.com", workerID)},
		"custom_data":   custom,
	})
}

func worker(ctx context.Context, id int, url string, limiter *rate.Limiter, tally *counters) {
	client := &http.Client{Timeout: 5 * time.Second}

	for seq := 0; ; seq++ {
		if err := limiter.Wait(ctx); err != nil {
			return // context expired
		}

		body, err := buildEvent(id, seq)
		if err != nil {
			log.Fatalf("building event payload: %v", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			tally.transport.Add(1)
			continue
		}
		tally.record(resp.StatusCode)
		resp.Body.Close()
	}
}

func main() {
	targetURL := flag.String("url", "http://localhost:8080/process-event", "Relay endpoint to hit")
	concurrency := flag.Int("c", 10, "Number of concurrent workers")
	duration := flag.Duration("d", 30*time.Second, "How long to run")
	rps := flag.Int("rps", 200, "Request rate ceiling")
	flag.Parse()

	log.Printf("firing at %s: %d workers, %s, %d rps ceiling", *targetURL, *concurrency, *duration, *rps)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(*rps), *rps)
	var tally counters

	// Progress line every 5s so a stalled relay is obvious mid-run.
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.Printf("progress: %d requests so far (%d delivered)", tally.total(), tally.delivered.Load())
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			worker(ctx, id, *targetURL, limiter, &tally)
		}(i)
	}
	wg.Wait()

	total := tally.total()
	log.Printf("done: %d requests, %.2f effective rps", total, float64(total)/duration.Seconds())
	log.Printf("  delivered (200): %d", tally.delivered.Load())
	log.Printf("  partial   (207): %d", tally.partial.Load())
	log.Printf("  failed    (502): %d", tally.failed.Load())
	log.Printf("  throttled (429): %d", tally.throttled.Load())
	log.Printf("  other statuses:  %d", tally.other.Load())
	log.Printf("  transport errors: %d", tally.transport.Load())
}
