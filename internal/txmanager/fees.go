// Package txmanager builds and submits the two-stage on-chain
// transaction a verified submission needs (§4.6, §4.7): a setup stage
// (only a withdraw's recipient token-account creation) and a program
// stage (the single program instruction), plus the retry and
// fee-bumping policy around submission. See Plan for what is not built.
package txmanager

import "sync"

// FundingCushion tracks recent on-chain submission costs and maintains a
// priority-fee cushion so a retried submission bids enough above the
// last attempt to get included, without bidding indefinitely high.
// Adapted from the teacher's windowed base-fee tracker: the windowed
// moving average and min/max clamps are the same shape, re-targeted at
// compute-unit price (micro-lamports) instead of gas.
type FundingCushion struct {
	mu sync.RWMutex

	basePriorityFee uint64 // micro-lamports per compute unit, steady-state
	recentFees      []uint64
	windowSize      int

	minFee uint64
	maxFee uint64
}

// FundingCushionConfig configures a FundingCushion's steady-state and bounds.
type FundingCushionConfig struct {
	InitialPriorityFee uint64
	WindowSize         int
	MinFee             uint64
	MaxFee             uint64
}

// DefaultFundingCushionConfig returns conservative defaults: a small
// steady-state priority fee with headroom to bump up to 100x on retry.
func DefaultFundingCushionConfig() FundingCushionConfig {
	return FundingCushionConfig{
		InitialPriorityFee: 1_000,
		WindowSize:         10,
		MinFee:             1,
		MaxFee:             100_000,
	}
}

// NewFundingCushion constructs a FundingCushion from config.
func NewFundingCushion(cfg FundingCushionConfig) *FundingCushion {
	return &FundingCushion{
		basePriorityFee: cfg.InitialPriorityFee,
		recentFees:      make([]uint64, 0, cfg.WindowSize),
		windowSize:      cfg.WindowSize,
		minFee:          cfg.MinFee,
		maxFee:          cfg.MaxFee,
	}
}

// Observe records the priority fee an accepted submission actually paid,
// nudging the steady-state estimate toward recent reality.
func (f *FundingCushion) Observe(paidFee uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.recentFees = append(f.recentFees, paidFee)
	if len(f.recentFees) > f.windowSize {
		f.recentFees = f.recentFees[1:]
	}

	var sum uint64
	for _, v := range f.recentFees {
		sum += v
	}
	f.basePriorityFee = sum / uint64(len(f.recentFees))
	f.clamp()
}

// CurrentFee returns the priority fee to use for a fresh (non-retry) submission.
func (f *FundingCushion) CurrentFee() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.basePriorityFee
}

// BumpedFee returns the priority fee to use for the Nth retry (N=1 is the
// first retry after an initial failure), doubling each attempt up to the
// configured ceiling — the same "bid more each time, but bounded" shape
// as the teacher's MaxFeeMultiplier clamp.
func (f *FundingCushion) BumpedFee(attempt int) uint64 {
	f.mu.RLock()
	base := f.basePriorityFee
	f.mu.RUnlock()

	fee := base
	for i := 0; i < attempt; i++ {
		fee *= 2
		if fee > f.maxFee {
			return f.maxFee
		}
	}
	return fee
}

func (f *FundingCushion) clamp() {
	if f.basePriorityFee < f.minFee {
		f.basePriorityFee = f.minFee
	}
	if f.basePriorityFee > f.maxFee {
		f.basePriorityFee = f.maxFee
	}
}
