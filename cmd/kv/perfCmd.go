package kv

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/rKV/cmd/util"
	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for rKV nodes",
		Long:    "Runs a set of workloads against the leader given by --endpoints and reports latency percentiles and throughput per workload.",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfDuration         = 5 * time.Second
	perfSkip             = make([]string, 0)
)

// perfTest is one workload. op runs a single operation on key number i.
type perfTest struct {
	name    string
	prepare bool // set all keys before the run
	op      func(key string, i int) error
}

// perfResult holds the measurements of one workload
type perfResult struct {
	name    string
	timer   metrics.Timer
	errors  metrics.Counter
	elapsed time.Duration
}

func init() {
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the set-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "duration"
	perfTestCmd.Flags().Duration(key, 5*time.Second, util.WrapString("How long each benchmark runs"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfDuration = viper.GetDuration("duration")
	perfSkip = util.SplitList(viper.GetString("skip"))
	return nil
}

func runPerf(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for rKV nodes")

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d, Duration: %s\n", perfNumThreads, perfDuration)
	fmt.Println()

	largeValue := make([]byte, perfLargeValueSizeKB*1024)
	tests := []perfTest{
		{name: "set", op: func(k string, _ int) error { return rpcStore.Set(k, []byte("test")) }},
		{name: "set-large", op: func(k string, _ int) error { return rpcStore.Set(k, largeValue) }},
		{name: "get", prepare: true, op: func(k string, _ int) error { _, _, err := rpcStore.Get(k); return err }},
		{name: "has", prepare: true, op: func(k string, _ int) error { _, err := rpcStore.Has(k); return err }},
		{name: "delete", prepare: true, op: func(k string, _ int) error { return rpcStore.Delete(k) }},
		{name: "incr", op: func(k string, _ int) error { _, err := rpcStore.Exec([]byte("INCR"), []byte(k)); return err }},
		{name: "mixed", prepare: true, op: func(k string, i int) error {
			var err error
			switch i % 4 {
			case 0:
				err = rpcStore.Set(k, []byte("test"))
			case 1:
				_, _, err = rpcStore.Get(k)
			case 2:
				err = rpcStore.Delete(k)
			case 3:
				_, err = rpcStore.Has(k)
			}
			return err
		}},
	}

	fmt.Println("starting tests...")
	fmt.Printf("%-12s%10s%12s%12s%12s%14s%8s\n", "test", "ops", "mean", "p50", "p99", "ops/sec", "errors")

	registry := metrics.NewRegistry()
	var results []perfResult
	for _, test := range tests {
		if shouldSkip(test.name) {
			fmt.Printf("%-12sskipped\n", test.name)
			continue
		}
		res := runTest(registry, test)
		printResult(res)
		results = append(results, res)
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, util.GetClientConfig()); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// runTest runs test with perfNumThreads workers for perfDuration
func runTest(registry metrics.Registry, test perfTest) perfResult {
	res := perfResult{
		name:   test.name,
		timer:  metrics.GetOrRegisterTimer(test.name+".latency", registry),
		errors: metrics.GetOrRegisterCounter(test.name+".errors", registry),
	}
	getKey, iter := getKeys(test.name)

	if test.prepare {
		iter(func(k string) {
			if err := rpcStore.Set(k, []byte("test")); err != nil {
				log.Printf("(%s) - error setting key: %v\n", test.name, err)
			}
		})
	}
	defer iter(func(k string) {
		if err := rpcStore.Delete(k); err != nil {
			log.Printf("(%s) - error deleting key: %v\n", test.name, err)
		}
	})

	deadline := time.Now().Add(perfDuration)
	start := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < perfNumThreads; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := worker; time.Now().Before(deadline); i += perfNumThreads {
				opStart := time.Now()
				if err := test.op(getKey(i), i); err != nil {
					res.errors.Inc(1)
					continue
				}
				res.timer.UpdateSince(opStart)
			}
		}(w)
	}
	wg.Wait()
	res.elapsed = time.Since(start)
	return res
}

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// creates an array of test keys and functions to work with them
func getKeys(prefix string) (func(int) string, func(func(string))) {
	keys := make([]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i)
	}

	getKey := func(i int) string {
		return keys[i%perfKeySpread]
	}

	iterateKeys := func(fn func(string)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

// stats returns count, mean, p50, p99 and throughput of a result
func (r perfResult) stats() (int64, time.Duration, time.Duration, time.Duration, float64) {
	snap := r.timer.Snapshot()
	ps := snap.Percentiles([]float64{0.5, 0.99})
	opsPerSec := 0.0
	if r.elapsed > 0 {
		opsPerSec = float64(snap.Count()) / r.elapsed.Seconds()
	}
	return snap.Count(), time.Duration(snap.Mean()), time.Duration(ps[0]), time.Duration(ps[1]), opsPerSec
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(r perfResult) {
	count, mean, p50, p99, opsPerSec := r.stats()
	fmt.Printf("%-12s%10d%12s%12s%12s%14.0f%8d\n", r.name, count,
		mean.Round(time.Microsecond), p50.Round(time.Microsecond), p99.Round(time.Microsecond),
		opsPerSec, r.errors.Count())
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results []perfResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "Ops", "MeanNs", "P50Ns", "P99Ns", "OpsPerSec", "Errors",
		"Endpoints", "TimeoutSec", "RetryCount", "ConnectionsPerEndpoint", "Serializer",
		"Threads", "DurationSec", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].name < results[j].name })
	for _, r := range results {
		count, mean, p50, p99, opsPerSec := r.stats()
		row := []string{
			r.name,
			strconv.FormatInt(count, 10),
			strconv.FormatInt(mean.Nanoseconds(), 10),
			strconv.FormatInt(p50.Nanoseconds(), 10),
			strconv.FormatInt(p99.Nanoseconds(), 10),
			fmt.Sprintf("%.0f", opsPerSec),
			strconv.FormatInt(r.errors.Count(), 10),
			strings.Join(config.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.RetryCount),
			strconv.Itoa(config.ConnectionsPerEndpoint),
			viper.GetString("serializer"),
			strconv.Itoa(perfNumThreads),
			fmt.Sprintf("%.0f", perfDuration.Seconds()),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", r.name, err)
		}
	}
	return nil
}
