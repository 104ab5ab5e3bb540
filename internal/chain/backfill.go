package chain

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrBackfillSourceUnavailable is server-visible (§7 ChainUnavailable):
// the backfiller could not reach the RPC endpoint to fetch historical
// slots.
var ErrBackfillSourceUnavailable = errors.New("chain: backfill source unreachable")

// SlotFetcher retrieves the events that occurred at a single slot,
// implemented by whatever historical-log source is available (the same
// RPC endpoint the Watcher streams from, queried one block per slot for
// its program logs; the program's signatures are not enumerated).
type SlotFetcher interface {
	EventsAtSlot(ctx context.Context, programID string, slot uint64) ([]Event, error)
}

// BackfillConfig mirrors the shape of the teacher's sync configuration:
// a batch size for how many slots to request per round, and a timeout
// for any single batch.
type BackfillConfig struct {
	BatchSize      uint64
	RequestTimeout time.Duration
}

// DefaultBackfillConfig returns sane defaults for catching up a relayer
// that was offline for a bounded amount of time.
func DefaultBackfillConfig() BackfillConfig {
	return BackfillConfig{BatchSize: 200, RequestTimeout: 30 * time.Second}
}

// Backfiller replays program events between a last-known slot and the
// chain's current slot, emitting them to the same Events channel the
// live Watcher feeds, so the relayer's consumer code doesn't need two
// code paths. Adapted from the block-DAG SyncManager's progress-tracked
// batch loop.
type Backfiller struct {
	mu sync.RWMutex

	client    *Client
	fetcher   SlotFetcher
	programID string
	cfg       BackfillConfig
	log       *logrus.Entry

	backfilling   bool
	targetSlot    uint64
	progressSlot  uint64

	Events chan Event
}

// NewBackfiller constructs a Backfiller sharing an RPC client with the
// rest of the chain package.
func NewBackfiller(client *Client, fetcher SlotFetcher, programID string, cfg BackfillConfig, log *logrus.Entry) *Backfiller {
	return &Backfiller{
		client:    client,
		fetcher:   fetcher,
		programID: programID,
		cfg:       cfg,
		log:       log,
		Events:    make(chan Event, 256),
	}
}

// Run replays events from fromSlot up to the chain's current slot,
// emitting them to Events in batches of cfg.BatchSize. Unlike the live
// Watcher, it returns once it reaches the tip — callers resume the live
// Watcher from there, treating any overlap as an idempotent replay
// (§4.5: benign NextIndexMismatch on already-applied events).
func (b *Backfiller) Run(ctx context.Context, fromSlot uint64) error {
	target, err := b.client.GetSlot(ctx)
	if err != nil {
		return ErrBackfillSourceUnavailable
	}

	b.mu.Lock()
	b.backfilling = true
	b.targetSlot = uint64(target)
	b.progressSlot = fromSlot
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.backfilling = false
		b.mu.Unlock()
	}()

	current := fromSlot
	for current < uint64(target) {
		end := current + b.cfg.BatchSize
		if end > uint64(target) {
			end = uint64(target)
		}

		batchCtx, cancel := context.WithTimeout(ctx, b.cfg.RequestTimeout)
		for slot := current; slot < end; slot++ {
			events, err := b.fetcher.EventsAtSlot(batchCtx, b.programID, slot)
			if err != nil {
				cancel()
				return ErrBackfillSourceUnavailable
			}
			for _, evt := range events {
				select {
				case b.Events <- evt:
				case <-ctx.Done():
					cancel()
					return ctx.Err()
				}
			}
		}
		cancel()

		b.mu.Lock()
		b.progressSlot = end
		b.mu.Unlock()
		current = end
	}

	return nil
}

// Progress reports how far the current (or most recent) backfill has
// gotten, for the admin CLI's status output.
func (b *Backfiller) Progress() (current, target uint64, running bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.progressSlot, b.targetSlot, b.backfilling
}
