// Command authguard-loadtest drives token verification and refresh rotation
// against Redis (REDIS_URL) or an embedded miniredis and prints latency
// percentiles per phase.
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

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/authguard"
	"github.com/MrEthical07/authguard/internal"
	"github.com/MrEthical07/authguard/metrics/export/prometheus"
	"github.com/MrEthical07/authguard/user"
)

type tokenState struct {
	mu      sync.Mutex
	access  string
	refresh string
}

func main() {
	var (
		users       = flag.Int("users", 10000, "number of users to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (verify + refresh)")
		envFile     = flag.String("env", "", "optional dotenv file")
		logLevel    = flag.String("log-level", "warn", "zap log level")
		dumpMetrics = flag.Bool("metrics", false, "print Prometheus metrics after the run")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	logger, err := authguard.NewLogger(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	var files []string
	if *envFile != "" {
		files = append(files, *envFile)
	}
	cfg, raw, err := authguard.LoadConfigFromEnv(files...)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if len(cfg.JWT.AccessSecret) == 0 || len(cfg.JWT.RefreshSecret) == 0 {
		cfg.JWT.AccessSecret = mustSecret(logger)
		cfg.JWT.RefreshSecret = mustSecret(logger)
		logger.Warn("JWT secrets not set; using random secrets for this run")
	}

	client, cleanup := connect(logger, raw.RedisURL)
	defer cleanup()

	m, err := authguard.New().
		WithConfig(cfg).
		WithRedis(client).
		WithLogger(logger).
		WithAuditSink(authguard.NoOpSink{}).
		Build()
	if err != nil {
		logger.Fatal("build manager", zap.Error(err))
	}
	defer m.Close()

	ctx := context.Background()
	states := make([]tokenState, *users)
	fmt.Printf("seeding %d users...\n", *users)
	startSeed := time.Now()
	for i := range states {
		u := &user.User{ID: fmt.Sprintf("u-%d", i), Username: fmt.Sprintf("user%d", i)}
		sess, err := m.CreateSession(ctx, u.ID, authguard.RequestContext{IPAddress: "127.0.0.1", UserAgent: "authguard-loadtest"})
		if err != nil {
			logger.Fatal("seed session", zap.Error(err))
		}
		access, err := m.CreateAccessToken(ctx, u, authguard.AccessTokenOptions{SessionID: sess.ID})
		if err != nil {
			logger.Fatal("seed access token", zap.Error(err))
		}
		refresh, err := m.CreateRefreshToken(ctx, u, sess.ID, false)
		if err != nil {
			logger.Fatal("seed refresh token", zap.Error(err))
		}
		states[i].access, states[i].refresh = access, refresh
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	verifyStats := runPhase(*ops, *concurrency, 7919, func(r *rand.Rand, _ int) error {
		st := &states[r.Intn(len(states))]
		st.mu.Lock()
		token := st.access
		st.mu.Unlock()
		_, err := m.VerifyToken(ctx, token)
		return err
	})
	refreshStats := runPhase(*ops, *concurrency, 6151, func(r *rand.Rand, _ int) error {
		st := &states[r.Intn(len(states))]
		st.mu.Lock()
		defer st.mu.Unlock()
		pair, err := m.RefreshAccessToken(ctx, st.refresh)
		if err != nil {
			return err
		}
		st.access, st.refresh = pair.AccessToken, pair.RefreshToken
		return nil
	})

	fmt.Println("---- results ----")
	printStats("verify", verifyStats)
	printStats("refresh", refreshStats)
	if *dumpMetrics {
		fmt.Print(prometheus.NewExporter(m).Render())
	}
}

func mustSecret(logger *zap.Logger) []byte {
	s, err := internal.RandomToken(48)
	if err != nil {
		logger.Fatal("generate secret", zap.Error(err))
	}
	return []byte(s)
}

func connect(logger *zap.Logger, url string) (redis.UniversalClient, func()) {
	if url == "" {
		mr, err := miniredis.Run()
		if err != nil {
			logger.Fatal("start miniredis", zap.Error(err))
		}
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		fmt.Printf("using miniredis at %s\n", mr.Addr())
		return client, func() {
			_ = client.Close()
			mr.Close()
		}
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		logger.Fatal("parse REDIS_URL", zap.Error(err))
	}
	client := redis.NewClient(opts)
	fmt.Printf("using redis at %s\n", opts.Addr)
	return client, func() { _ = client.Close() }
}

func runPhase(ops, concurrency int, seed int64, op func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
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
	switch {
	case len(samples) == 0:
		return 0
	case p <= 0:
		return samples[0]
	case p >= 100:
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
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
