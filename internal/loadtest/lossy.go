package loadtest

import (
	"context"
	"math/rand/v2"
	"sync"

	"orderdesk/backend/internal/domain"
)

// LossySubmitter forwards every submission but drops a fraction of the
// responses, the way a terminal sees a checkout that committed on the server
// and then timed out on the wire.
type LossySubmitter struct {
	next     Submitter
	dropRate float64

	mu      sync.Mutex
	rng     *rand.Rand
	dropped int
}

func NewLossySubmitter(next Submitter, dropRate float64, seed uint64) *LossySubmitter {
	return &LossySubmitter{
		next:     next,
		dropRate: dropRate,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (l *LossySubmitter) SubmitOrder(ctx context.Context, req domain.SubmitOrderRequest) (domain.OrderResponse, error) {
	resp, err := l.next.SubmitOrder(ctx, req)
	if err != nil {
		return resp, err
	}

	l.mu.Lock()
	drop := l.rng.Float64() < l.dropRate
	if drop {
		l.dropped++
	}
	l.mu.Unlock()

	if drop {
		return domain.OrderResponse{}, context.DeadlineExceeded
	}
	return resp, nil
}

func (l *LossySubmitter) Dropped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}
