package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/steam-achievements/internal/config"
	"github.com/steam-achievements/internal/domain"
)

// ChainReader is the subset of the chain client the watcher needs
type ChainReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	MintEvents(ctx context.Context, fromBlock, toBlock uint64) ([]domain.MintEvent, error)
}

// EventSink persists reconciled mint events. Delivery is at-least-once: the
// sink must dedupe on (tx hash, log index).
type EventSink interface {
	UpsertMintEvents(ctx context.Context, events []domain.MintEvent) (int, error)
}

// Broadcaster fans reconciled events out to live subscribers
type Broadcaster interface {
	BroadcastMintEvent(ev domain.MintEvent)
}

// Watcher tails the mint contract's event log in bounded block windows and
// advances a watermark. Each cycle is scheduled only after the previous one
// fully completes; on any failure the watermark stays put and the same window
// is retried next cycle.
type Watcher struct {
	chain     ChainReader
	sink      EventSink
	hub       Broadcaster
	config    *config.ChainConfig
	logger    *slog.Logger
	stopCh    chan struct{}
	doneCh    chan struct{}
	mu        sync.Mutex
	running   bool
	seeded    bool
	watermark uint64
}

// NewWatcher creates a new mint event watcher. hub may be nil.
func NewWatcher(
	chain ChainReader,
	sink EventSink,
	hub Broadcaster,
	cfg *config.ChainConfig,
	logger *slog.Logger,
) *Watcher {
	return &Watcher{
		chain:  chain,
		sink:   sink,
		hub:    hub,
		config: cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the background reconciliation loop
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("mint watcher started",
		"interval", w.config.PollInterval,
		"window_size", w.config.WindowSize,
	)

	go w.run(ctx)
	return nil
}

// Stop stops the background reconciliation loop
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("mint watcher stopped")
	return nil
}

// run is the main worker loop. Cycles never overlap: the next tick is only
// consumed after the previous cycle returns, success or failure alike.
func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.cycle(ctx)
		}
	}
}

// RunOnce runs a single reconciliation cycle (useful for manual triggers)
func (w *Watcher) RunOnce(ctx context.Context) {
	w.cycle(ctx)
}

// Watermark returns the highest fully processed block
func (w *Watcher) Watermark() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watermark
}

// cycle processes one bounded block window. All failure is absorbed: log,
// leave the watermark, retry the same window next cycle.
func (w *Watcher) cycle(ctx context.Context) {
	head, err := w.chain.BlockNumber(ctx)
	if err != nil {
		w.logger.Error("failed to query chain head", "error", err)
		return
	}

	w.mu.Lock()
	if !w.seeded {
		// Cold start: begin a bounded distance behind head rather than at
		// genesis. Mints older than the offset need a manual backfill.
		if head > w.config.StartOffset {
			w.watermark = head - w.config.StartOffset
		} else {
			w.watermark = 0
		}
		w.seeded = true
		w.logger.Info("seeded watermark", "watermark", w.watermark, "head", head)
	}
	watermark := w.watermark
	w.mu.Unlock()

	if watermark >= head {
		// Nothing new; just reschedule.
		return
	}

	fromBlock := watermark + 1
	toBlock := watermark + w.config.WindowSize
	if toBlock > head {
		toBlock = head
	}

	events, err := w.chain.MintEvents(ctx, fromBlock, toBlock)
	if err != nil {
		w.logger.Error("failed to fetch mint events",
			"from_block", fromBlock,
			"to_block", toBlock,
			"error", err,
		)
		return
	}

	if len(events) > 0 {
		inserted, err := w.sink.UpsertMintEvents(ctx, events)
		if err != nil {
			w.logger.Error("failed to persist mint events",
				"from_block", fromBlock,
				"to_block", toBlock,
				"error", err,
			)
			return
		}
		w.logger.Info("reconciled mint events",
			"from_block", fromBlock,
			"to_block", toBlock,
			"events", len(events),
			"new", inserted,
		)

		if w.hub != nil {
			for _, ev := range events {
				w.hub.BroadcastMintEvent(ev)
			}
		}
	}

	// The whole window succeeded; only now does the watermark advance.
	w.mu.Lock()
	w.watermark = toBlock
	w.mu.Unlock()
}
