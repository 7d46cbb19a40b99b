// Package loadtest drives concurrent checkout terminals against an order
// submitter and checks that no idempotency key is committed twice.
package loadtest

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"orderdesk/backend/internal/cart"
	"orderdesk/backend/internal/domain"
	"orderdesk/backend/internal/store"
	"orderdesk/backend/internal/xid"
)

type Submitter interface {
	SubmitOrder(ctx context.Context, req domain.SubmitOrderRequest) (domain.OrderResponse, error)
}

type MenuSource interface {
	GetSellableMenu(ctx context.Context, storeID string) (domain.MenuListResponse, error)
}

// Lookup reads back what the server committed for an idempotency key.
type Lookup interface {
	LookupOrderByIdempotency(ctx context.Context, storeID string, key string) (domain.OrderLookupResponse, error)
}

type Config struct {
	StoreID           string
	Terminals         int
	OrdersPerTerminal int
	MaxLines          int
	MaxQuantity       int
	AttemptTimeout    time.Duration
	MaxAttempts       int
	// RatePerSecond caps submissions across all terminals; 0 means unlimited.
	RatePerSecond float64
}

func (c Config) withDefaults() Config {
	if c.Terminals < 1 {
		c.Terminals = 4
	}
	if c.OrdersPerTerminal < 1 {
		c.OrdersPerTerminal = 25
	}
	if c.MaxLines < 1 {
		c.MaxLines = 3
	}
	if c.MaxQuantity < 1 {
		c.MaxQuantity = 2
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 2 * time.Second
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 5
	}
	return c
}

type Results struct {
	Orders        int
	Attempts      int
	Committed     int
	Duplicates    int
	StockRejected int
	Failed        int
	// DoubleCommits lists keys that resolved to more than one transaction,
	// either across replies or between a reply and the server's record.
	DoubleCommits []string
	// PhantomCommits lists keys a terminal saw rejected for stock that the
	// server nevertheless holds a transaction for.
	PhantomCommits []string
	// Unacknowledged counts orders the terminal gave up on that the server
	// did commit.
	Unacknowledged int
	// Unverified counts keys whose server record could not be read back.
	Unverified    int
	TotalDuration time.Duration
	MinLatency    time.Duration
	MaxLatency    time.Duration
	AvgLatency    time.Duration
}

type outcome struct {
	key       string
	txIDs     []string
	fresh     int
	duplicate bool
	stockErr  bool
	failed    bool
	attempts  int
	latencies []time.Duration
}

type Runner struct {
	submitter Submitter
	menu      MenuSource
	lookup    Lookup
	cfg       Config
	logger    zerolog.Logger
}

// NewRunner builds a runner. A nil lookup skips the read-back of each key
// after the run.
func NewRunner(submitter Submitter, menu MenuSource, lookup Lookup, cfg Config, logger zerolog.Logger) *Runner {
	return &Runner{
		submitter: submitter,
		menu:      menu,
		lookup:    lookup,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

func (r *Runner) Run(ctx context.Context) (Results, error) {
	menu, err := r.menu.GetSellableMenu(ctx, r.cfg.StoreID)
	if err != nil {
		return Results{}, fmt.Errorf("load menu: %w", err)
	}
	if len(menu.Menu) == 0 {
		return Results{}, errors.New("menu is empty")
	}

	var limiter *rate.Limiter
	if r.cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(r.cfg.RatePerSecond), r.cfg.Terminals)
	}

	start := time.Now()
	outcomes := make(chan outcome, r.cfg.Terminals*r.cfg.OrdersPerTerminal)

	var wg sync.WaitGroup
	for terminal := 0; terminal < r.cfg.Terminals; terminal++ {
		wg.Add(1)
		go func(terminal int) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(uint64(start.UnixNano()), uint64(terminal)))
			for i := 0; i < r.cfg.OrdersPerTerminal; i++ {
				if ctx.Err() != nil {
					return
				}
				c := r.fillCart(rng, menu.Menu)
				outcomes <- r.checkout(ctx, limiter, c)
			}
		}(terminal)
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	res, seen := r.collect(outcomes)
	res.TotalDuration = time.Since(start)
	if r.lookup != nil {
		r.verify(ctx, seen, &res)
	}
	return res, ctx.Err()
}

func (r *Runner) fillCart(rng *rand.Rand, menu []domain.MenuSnapshotLine) *cart.Cart {
	c := cart.New()
	lines := 1 + rng.IntN(r.cfg.MaxLines)
	for i := 0; i < lines; i++ {
		c.AddItem(menu[rng.IntN(len(menu))])
	}
	for _, line := range c.Lines() {
		c.SetQuantity(line.MenuID, line.Quantity+rng.IntN(r.cfg.MaxQuantity))
	}
	methods := []string{domain.PaymentCard, domain.PaymentCash, domain.PaymentApp}
	c.SetPaymentMethod(methods[rng.IntN(len(methods))])
	return c
}

// checkout submits one cart, retrying timed-out or failed attempts with the
// same idempotency key until a definitive answer arrives.
func (r *Runner) checkout(ctx context.Context, limiter *rate.Limiter, c *cart.Cart) outcome {
	key := xid.IdempotencyKey()
	req := c.SubmitRequest(r.cfg.StoreID, key)
	out := outcome{key: key}

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				out.failed = true
				return out
			}
		}

		out.attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.AttemptTimeout)
		began := time.Now()
		resp, err := r.submitter.SubmitOrder(attemptCtx, req)
		out.latencies = append(out.latencies, time.Since(began))
		cancel()

		switch {
		case err == nil:
			out.txIDs = append(out.txIDs, resp.Transaction.ID)
			if resp.Duplicate {
				out.duplicate = true
			} else {
				out.fresh++
			}
			return out
		case errors.Is(err, store.ErrInsufficientStock):
			out.stockErr = true
			return out
		case errors.Is(err, store.ErrValidation):
			r.logger.Warn().Err(err).Str("idempotency_key", key).Msg("order rejected")
			out.failed = true
			return out
		default:
			r.logger.Debug().Err(err).Str("idempotency_key", key).Int("attempt", attempt).Msg("submit attempt failed, retrying")
		}
	}

	out.failed = true
	return out
}

func (r *Runner) collect(outcomes <-chan outcome) (Results, []outcome) {
	var res Results
	var seen []outcome
	var total time.Duration
	var samples int
	perKey := make(map[string]map[string]struct{})
	freshByKey := make(map[string]int)

	for out := range outcomes {
		seen = append(seen, out)
		res.Orders++
		res.Attempts += out.attempts
		switch {
		case out.stockErr:
			res.StockRejected++
		case out.failed:
			res.Failed++
		case out.duplicate:
			res.Duplicates++
		default:
			res.Committed++
		}

		if perKey[out.key] == nil {
			perKey[out.key] = make(map[string]struct{})
		}
		for _, id := range out.txIDs {
			perKey[out.key][id] = struct{}{}
		}
		freshByKey[out.key] += out.fresh

		for _, latency := range out.latencies {
			if samples == 0 || latency < res.MinLatency {
				res.MinLatency = latency
			}
			if latency > res.MaxLatency {
				res.MaxLatency = latency
			}
			total += latency
			samples++
		}
	}

	for key, ids := range perKey {
		if len(ids) > 1 || freshByKey[key] > 1 {
			res.DoubleCommits = append(res.DoubleCommits, key)
		}
	}
	if samples > 0 {
		res.AvgLatency = total / time.Duration(samples)
	}
	return res, seen
}

// verify reads every key back from the server. A terminal's reply only shows
// what that terminal saw; the server record is what was committed.
func (r *Runner) verify(ctx context.Context, seen []outcome, res *Results) {
	flagged := make(map[string]struct{}, len(res.DoubleCommits))
	for _, key := range res.DoubleCommits {
		flagged[key] = struct{}{}
	}

	for _, out := range seen {
		if ctx.Err() != nil {
			res.Unverified++
			continue
		}
		lookupCtx, cancel := context.WithTimeout(ctx, r.cfg.AttemptTimeout)
		found, err := r.lookup.LookupOrderByIdempotency(lookupCtx, r.cfg.StoreID, out.key)
		cancel()
		if err != nil {
			r.logger.Warn().Err(err).Str("idempotency_key", out.key).Msg("lookup failed")
			res.Unverified++
			continue
		}

		switch {
		case len(out.txIDs) > 0:
			if !found.Found || found.Transaction == nil || !slices.Contains(out.txIDs, found.Transaction.ID) {
				if _, ok := flagged[out.key]; !ok {
					flagged[out.key] = struct{}{}
					res.DoubleCommits = append(res.DoubleCommits, out.key)
				}
			}
		case found.Found && out.stockErr:
			res.PhantomCommits = append(res.PhantomCommits, out.key)
		case found.Found:
			res.Unacknowledged++
		}
	}
}
