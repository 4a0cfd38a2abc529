package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/goccy/go-json"
	"github.com/spf13/pflag"

	harrow "github.com/VanDung-dev/HieraTime-Engine/arrow"
	"github.com/VanDung-dev/HieraTime-Engine/api"
	"github.com/VanDung-dev/HieraTime-Engine/compute/temporal"
	"github.com/VanDung-dev/HieraTime-Engine/network"
)

// StressTestConfig holds configuration for the stress test.
type StressTestConfig struct {
	Address     string
	ZmqEndpoint string
	Concurrency int
	Rows        int
	Duration    time.Duration
	AuthToken   string
	Compression string
	ReportFile  string
}

// StressTestResult holds the results of a stress test.
type StressTestResult struct {
	TotalRequests  int64
	SuccessfulReqs int64
	FailedReqs     int64
	TotalRows      int64
	TotalDuration  time.Duration
	AvgLatency     time.Duration
	MinLatency     time.Duration
	MaxLatency     time.Duration
	RequestsPerSec float64
	RowsPerSec     float64
}

// caller sends one encoded request and returns the result IPC stream.
type caller func(ctx context.Context, payload []byte) ([]byte, error)

func main() {
	config := parseFlags()

	transport := "tcp " + config.Address
	if config.ZmqEndpoint != "" {
		transport = "zmq " + config.ZmqEndpoint
	}

	fmt.Println("=== HieraTime Compute Server Stress Test ===")
	fmt.Printf("Target: %s\n", transport)
	fmt.Printf("Concurrency: %d workers\n", config.Concurrency)
	fmt.Printf("Rows per request: %d\n", config.Rows)
	fmt.Printf("Duration: %v\n", config.Duration)
	fmt.Printf("Auth: %v\n", config.AuthToken != "")
	fmt.Println()

	payload, err := buildPayload(config)
	if err != nil {
		log.Fatalf("Failed to build request: %v", err)
	}

	result := runStressTest(config, payload)

	printResults(result)

	if config.ReportFile != "" {
		saveReport(config, result)
	}
}

func parseFlags() StressTestConfig {
	config := StressTestConfig{}

	pflag.StringVarP(&config.Address, "addr", "a", "127.0.0.1:50051", "TCP compute server address")
	pflag.StringVar(&config.ZmqEndpoint, "zmq", "", "ZeroMQ endpoint (overrides --addr)")
	pflag.IntVarP(&config.Concurrency, "concurrency", "c", 10, "Number of concurrent workers")
	pflag.IntVarP(&config.Rows, "rows", "r", 1024, "Rows per add_duration request")
	pflag.DurationVarP(&config.Duration, "duration", "d", 30*time.Second, "Duration of test")
	pflag.StringVar(&config.AuthToken, "token", "", "Authentication token (TCP only)")
	pflag.StringVar(&config.Compression, "compression", harrow.CompressionNone, "IPC compression (none, lz4, zstd)")
	pflag.StringVarP(&config.ReportFile, "output", "o", "", "Output report file (JSON)")

	pflag.Parse()

	return config
}

// buildPayload encodes an add_duration request of config.Rows millisecond
// timestamps against a broadcast one-hour duration.
func buildPayload(config StressTestConfig) ([]byte, error) {
	codec, err := harrow.NewIPCCodec(nil, config.Compression)
	if err != nil {
		return nil, err
	}

	mem := memory.DefaultAllocator
	tb := array.NewTimestampBuilder(mem, &arrow.TimestampType{Unit: arrow.Millisecond, TimeZone: "UTC"})
	defer tb.Release()
	base := time.Now().UnixMilli()
	for i := 0; i < config.Rows; i++ {
		tb.Append(arrow.Timestamp(base + int64(i)))
	}
	lhs := tb.NewArray()
	defer lhs.Release()

	db := array.NewDurationBuilder(mem, &arrow.DurationType{Unit: arrow.Second})
	defer db.Release()
	db.Append(arrow.Duration(3600))
	rhs := db.NewArray()
	defer rhs.Release()

	return codec.EncodeRequest(temporal.OpAddDuration, lhs, rhs)
}

func dial(config StressTestConfig) (caller, func(), error) {
	if config.ZmqEndpoint != "" {
		client, err := network.DialZmq(config.ZmqEndpoint, nil)
		if err != nil {
			return nil, nil, err
		}
		return client.Call, func() { client.Close() }, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := api.Dial(ctx, config.Address, api.ClientOptions{
		Token:   config.AuthToken,
		Timeout: 10 * time.Second,
	})
	if err != nil {
		return nil, nil, err
	}
	call := func(_ context.Context, payload []byte) ([]byte, error) {
		return client.Call(payload)
	}
	return call, func() { client.Close() }, nil
}

func runStressTest(config StressTestConfig, payload []byte) StressTestResult {
	var (
		totalReqs    int64
		successReqs  int64
		failedReqs   int64
		totalLatency int64
		minLatency   int64 = 1<<63 - 1
		maxLatency   int64
		wg           sync.WaitGroup
	)

	ctx, cancel := context.WithTimeout(context.Background(), config.Duration)
	defer cancel()

	startTime := time.Now()

	for i := 0; i < config.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			call, closeFn, err := dial(config)
			if err != nil {
				log.Printf("worker %d: %v", workerID, err)
				return
			}
			defer closeFn()

			for ctx.Err() == nil {
				start := time.Now()
				_, err := call(ctx, payload)
				latency := int64(time.Since(start))
				atomic.AddInt64(&totalReqs, 1)

				if err != nil {
					atomic.AddInt64(&failedReqs, 1)
					if ctx.Err() != nil {
						return
					}
					// Small sleep on error to avoid hammering
					time.Sleep(10 * time.Millisecond)
					continue
				}

				atomic.AddInt64(&successReqs, 1)
				atomic.AddInt64(&totalLatency, latency)
				for {
					old := atomic.LoadInt64(&minLatency)
					if latency >= old || atomic.CompareAndSwapInt64(&minLatency, old, latency) {
						break
					}
				}
				for {
					old := atomic.LoadInt64(&maxLatency)
					if latency <= old || atomic.CompareAndSwapInt64(&maxLatency, old, latency) {
						break
					}
				}
			}
		}(i)
	}

	wg.Wait()

	duration := time.Since(startTime)
	total := atomic.LoadInt64(&totalReqs)
	success := atomic.LoadInt64(&successReqs)

	var avgLatency time.Duration
	if success > 0 {
		avgLatency = time.Duration(atomic.LoadInt64(&totalLatency) / success)
	}
	minLat := atomic.LoadInt64(&minLatency)
	if success == 0 {
		minLat = 0
	}

	return StressTestResult{
		TotalRequests:  total,
		SuccessfulReqs: success,
		FailedReqs:     atomic.LoadInt64(&failedReqs),
		TotalRows:      success * int64(config.Rows),
		TotalDuration:  duration,
		AvgLatency:     avgLatency,
		MinLatency:     time.Duration(minLat),
		MaxLatency:     time.Duration(atomic.LoadInt64(&maxLatency)),
		RequestsPerSec: float64(total) / duration.Seconds(),
		RowsPerSec:     float64(success*int64(config.Rows)) / duration.Seconds(),
	}
}

func percent(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func printResults(result StressTestResult) {
	fmt.Println("=== Results ===")
	fmt.Printf("Duration:        %v\n", result.TotalDuration.Round(time.Millisecond))
	fmt.Printf("Total Requests:  %d\n", result.TotalRequests)
	fmt.Printf("Successful:      %d (%.2f%%)\n", result.SuccessfulReqs, percent(result.SuccessfulReqs, result.TotalRequests))
	fmt.Printf("Failed:          %d (%.2f%%)\n", result.FailedReqs, percent(result.FailedReqs, result.TotalRequests))
	fmt.Printf("Requests/sec:    %.2f\n", result.RequestsPerSec)
	fmt.Printf("Rows/sec:        %.0f\n", result.RowsPerSec)
	fmt.Printf("Avg Latency:     %v\n", result.AvgLatency.Round(time.Microsecond))
	fmt.Printf("Min Latency:     %v\n", result.MinLatency.Round(time.Microsecond))
	fmt.Printf("Max Latency:     %v\n", result.MaxLatency.Round(time.Microsecond))
}

func saveReport(config StressTestConfig, result StressTestResult) {
	report := map[string]interface{}{
		"config": map[string]interface{}{
			"address":     config.Address,
			"zmq":         config.ZmqEndpoint,
			"concurrency": config.Concurrency,
			"rows":        config.Rows,
			"compression": config.Compression,
			"duration":    config.Duration.String(),
		},
		"results": map[string]interface{}{
			"total_requests":   result.TotalRequests,
			"successful":       result.SuccessfulReqs,
			"failed":           result.FailedReqs,
			"total_rows":       result.TotalRows,
			"requests_per_sec": result.RequestsPerSec,
			"rows_per_sec":     result.RowsPerSec,
			"avg_latency_ms":   float64(result.AvgLatency.Microseconds()) / 1000,
			"min_latency_ms":   float64(result.MinLatency.Microseconds()) / 1000,
			"max_latency_ms":   float64(result.MaxLatency.Microseconds()) / 1000,
		},
		"timestamp": time.Now().Format(time.RFC3339),
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Printf("Failed to encode report: %v", err)
		return
	}
	if err := os.WriteFile(config.ReportFile, data, 0644); err != nil {
		log.Printf("Failed to write report: %v", err)
	} else {
		fmt.Printf("Report saved to: %s\n", config.ReportFile)
	}
}
