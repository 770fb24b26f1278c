// Command credkit-loadtest drives concurrent traffic through a credkit
// engine and reports latency percentiles and correctness counters.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/credkit"
	"github.com/MrEthical07/credkit/delivery"
	"github.com/MrEthical07/credkit/hashing"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	var (
		sessions    = flag.Int("sessions", 10000, "number of sessions to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per phase")
		limit       = flag.Int("limit", 100, "rate-limit budget for the admission phase")
		rotations   = flag.Int("rotations", 50, "key rotations during the rotation phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 || *limit <= 0 || *rotations <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, ops, limit and rotations must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := credkit.DefaultConfig()
	cfg.Audit.Enabled = false
	cfg.Hashing = hashing.Config{Memory: 16 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	// Phases measure the store paths, not the per-user guards.
	cfg.RateLimit = credkit.RateLimitConfig{}

	engine, err := credkit.New().
		WithConfig(cfg).
		WithRedis(client).
		WithDelivery(delivery.Func(func(context.Context, delivery.Message) error { return nil })).
		WithLogger(zap.NewNop()).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("seeding %d sessions...\n", *sessions)
	startSeed := time.Now()
	tokens := make([]string, *sessions)
	for i := range tokens {
		userID := fmt.Sprintf("user-%d", i%1000)
		issued, err := engine.CreateSession(asUser(ctx, userID), credkit.CreateSessionRequest{UserID: userID})
		if err != nil {
			fmt.Fprintf(os.Stderr, "create session failed: %v\n", err)
			os.Exit(1)
		}
		tokens[i] = issued.Token
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	admission := runAdmissionPhase(ctx, engine, *limit, *ops, *concurrency)
	touch := runTouchPhase(ctx, engine, tokens, *ops, *concurrency)
	rotation, stale := runRotationPhase(ctx, engine, *rotations, *concurrency)

	fmt.Println("---- results ----")
	printStats("rate-limit admission", admission)
	fmt.Printf("rate-limit admission: admitted=%d budget=%d\n", admission.ops-int(admission.failures), *limit)
	printStats("session touch", touch)
	printStats("rotate vs authenticate", rotation)
	fmt.Printf("rotate vs authenticate: stale secrets accepted=%d\n", stale)

	if admission.ops-int(admission.failures) != *limit || stale != 0 {
		fmt.Fprintln(os.Stderr, "correctness check failed")
		os.Exit(1)
	}
}

func asUser(ctx context.Context, userID string) context.Context {
	return credkit.WithIdentity(ctx, credkit.Identity{UserID: userID})
}

// runAdmissionPhase sends ops calls against one counter with budget limit.
// Denied calls are counted as failures; exactly limit must be admitted.
func runAdmissionPhase(ctx context.Context, engine *credkit.Engine, limit, ops, concurrency int) phaseStats {
	id := credkit.RateLimitIdentifier{SubjectType: "user", SubjectID: "loadtest", Action: "admission"}
	rule := credkit.RateLimitRule{Max: limit, Window: time.Hour}
	_ = engine.ResetRateLimit(ctx, id)

	return runPhase(ops, concurrency, func(_ *rand.Rand, _ int) bool {
		decision, err := engine.CheckRateLimit(ctx, id, rule)
		return err == nil && decision.Allowed
	})
}

func runTouchPhase(ctx context.Context, engine *credkit.Engine, tokens []string, ops, concurrency int) phaseStats {
	return runPhase(ops, concurrency, func(r *rand.Rand, _ int) bool {
		_, err := engine.TouchSession(ctx, tokens[r.Intn(len(tokens))])
		return err == nil
	})
}

// runRotationPhase rotates one key repeatedly while workers authenticate
// with whatever token they last saw. It returns how often a token older
// than the previous rotation was still accepted.
func runRotationPhase(ctx context.Context, engine *credkit.Engine, rotations, concurrency int) (phaseStats, int64) {
	owner := asUser(ctx, "rotation-owner")
	key, err := engine.GenerateAPIKey(owner, credkit.GenerateAPIKeyRequest{Name: "loadtest", Scopes: []string{"read:reports"}})
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate key failed: %v\n", err)
		os.Exit(1)
	}

	var (
		mu         sync.RWMutex
		generation int
		current    = key.Key
		history    = []string{key.Key}
		stale      int64
		done       atomic.Bool
	)

	go func() {
		defer done.Store(true)
		for i := 0; i < rotations; i++ {
			rotated, err := engine.RotateAPIKey(owner, key.ID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "rotate failed: %v\n", err)
				return
			}
			mu.Lock()
			generation++
			current = rotated.Key
			history = append(history, rotated.Key)
			mu.Unlock()
		}
	}()

	stats := runPhase(1<<30, concurrency, func(r *rand.Rand, _ int) bool {
		mu.RLock()
		gen := generation
		token := current
		var old string
		if gen >= 2 && r.Intn(4) == 0 {
			old = history[r.Intn(gen-1)]
		}
		mu.RUnlock()

		if old != "" {
			if _, err := engine.AuthenticateAPIKey(ctx, old); err == nil {
				atomic.AddInt64(&stale, 1)
			}
			return true
		}
		_, err := engine.AuthenticateAPIKey(ctx, token)
		return err == nil || credkit.KindOf(err) == credkit.KindUnauthorized
	}, &done)
	return stats, atomic.LoadInt64(&stale)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

// runPhase runs op ops times across concurrency workers. An optional stop
// flag ends the phase early.
func runPhase(ops, concurrency int, op func(r *rand.Rand, i int) bool, stop ...*atomic.Bool) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, min(ops, 1<<20))
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops || (len(stop) > 0 && stop[0].Load()) {
					return
				}
				t0 := time.Now()
				ok := op(r, i)
				d := time.Since(t0)
				if !ok {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
