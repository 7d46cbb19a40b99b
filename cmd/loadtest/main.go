package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orderdesk/backend/internal/cache"
	"orderdesk/backend/internal/config"
	"orderdesk/backend/internal/loadtest"
	"orderdesk/backend/internal/lock"
	"orderdesk/backend/internal/logger"
	"orderdesk/backend/internal/service"
	"orderdesk/backend/internal/store/memory"
)

func main() {
	var (
		target    = flag.String("target", "", "base URL of a running server; empty runs against an in-process memory store")
		username  = flag.String("user", "cashier", "login username for -target")
		password  = flag.String("password", os.Getenv("LOADTEST_PASSWORD"), "login password for -target")
		storeID   = flag.String("store", memory.DefaultStoreID, "store id")
		terminals = flag.Int("terminals", 8, "concurrent terminals")
		orders    = flag.Int("orders", 25, "orders per terminal")
		timeout   = flag.Duration("timeout", 2*time.Second, "per-attempt timeout")
		attempts  = flag.Int("attempts", 5, "attempts per order")
		rps       = flag.Float64("rps", 0, "submission rate cap across terminals, 0 for unlimited")
		dropRate  = flag.Float64("drop", 0.1, "fraction of responses dropped in in-process mode")
		logLevel  = flag.String("log-level", "info", "log level")
		prettyLog = flag.Bool("pretty", true, "human-readable logs")
	)
	flag.Parse()

	_ = config.LoadDotEnv()
	log := logger.New(*logLevel, *prettyLog)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var submitter loadtest.Submitter
	var menu loadtest.MenuSource
	var lookup loadtest.Lookup
	var lossy *loadtest.LossySubmitter

	if *target != "" {
		client := loadtest.NewClient(*target, &http.Client{Timeout: 2 * *timeout})
		if err := client.Login(ctx, *username, *password); err != nil {
			log.Fatal().Err(err).Str("target", *target).Msg("login failed")
		}
		submitter, menu, lookup = client, client, client
	} else {
		svc := service.New(memory.NewSeeded(), service.Options{
			DefaultStoreID: *storeID,
			MenuCache:      cache.NewLocalMenuCache(time.Minute),
			Locker:         lock.NewLocal(),
		})
		lossy = loadtest.NewLossySubmitter(svc, *dropRate, uint64(time.Now().UnixNano()))
		submitter, menu, lookup = lossy, svc, svc
	}

	runner := loadtest.NewRunner(submitter, menu, lookup, loadtest.Config{
		StoreID:           *storeID,
		Terminals:         *terminals,
		OrdersPerTerminal: *orders,
		AttemptTimeout:    *timeout,
		MaxAttempts:       *attempts,
		RatePerSecond:     *rps,
	}, logger.Component(log, "loadtest"))

	res, err := runner.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("load test interrupted")
	}

	fmt.Printf("orders:          %d (%d attempts)\n", res.Orders, res.Attempts)
	fmt.Printf("committed:       %d\n", res.Committed)
	fmt.Printf("duplicates:      %d\n", res.Duplicates)
	fmt.Printf("stock rejected:  %d\n", res.StockRejected)
	fmt.Printf("failed:          %d\n", res.Failed)
	if lossy != nil {
		fmt.Printf("dropped replies: %d\n", lossy.Dropped())
	}
	fmt.Printf("unacknowledged:  %d\n", res.Unacknowledged)
	fmt.Printf("unverified:      %d\n", res.Unverified)
	fmt.Printf("latency:         min %v avg %v max %v\n", res.MinLatency, res.AvgLatency, res.MaxLatency)
	if res.TotalDuration > 0 {
		fmt.Printf("throughput:      %.1f orders/s over %v\n", float64(res.Orders)/res.TotalDuration.Seconds(), res.TotalDuration.Round(time.Millisecond))
	}

	failed := false
	if len(res.DoubleCommits) > 0 {
		log.Error().Strs("keys", res.DoubleCommits).Msg("idempotency keys committed more than once")
		failed = true
	}
	if len(res.PhantomCommits) > 0 {
		log.Error().Strs("keys", res.PhantomCommits).Msg("stock-rejected keys were committed")
		failed = true
	}
	if failed {
		os.Exit(1)
	}
}
