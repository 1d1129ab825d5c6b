package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/steam-achievements/internal/config"
	"github.com/steam-achievements/internal/domain"
)

// ----- Fakes -----

type fakeChain struct {
	head    uint64
	headErr error

	events    []domain.MintEvent
	eventsErr error

	// captured windows, one per MintEvents call
	windows [][2]uint64
}

func (c *fakeChain) BlockNumber(ctx context.Context) (uint64, error) {
	return c.head, c.headErr
}

func (c *fakeChain) MintEvents(ctx context.Context, fromBlock, toBlock uint64) ([]domain.MintEvent, error) {
	c.windows = append(c.windows, [2]uint64{fromBlock, toBlock})
	return c.events, c.eventsErr
}

type fakeSink struct {
	err      error
	received []domain.MintEvent
}

func (s *fakeSink) UpsertMintEvents(ctx context.Context, events []domain.MintEvent) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.received = append(s.received, events...)
	return len(events), nil
}

type fakeHub struct {
	broadcasts []domain.MintEvent
}

func (h *fakeHub) BroadcastMintEvent(ev domain.MintEvent) {
	h.broadcasts = append(h.broadcasts, ev)
}

func testWatcher(chain ChainReader, sink EventSink, hub Broadcaster) *Watcher {
	cfg := &config.ChainConfig{
		PollInterval: time.Second,
		WindowSize:   500,
		StartOffset:  100,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewWatcher(chain, sink, hub, cfg, logger)
}

// ----- Tests -----

func TestColdStartSeedsNearHead(t *testing.T) {
	chain := &fakeChain{head: 10_000}
	w := testWatcher(chain, &fakeSink{}, nil)

	w.RunOnce(context.Background())

	// Seeded at head-100, then one 100-block window processed up to head
	if got := w.Watermark(); got != 10_000 {
		t.Errorf("watermark = %d, want 10000", got)
	}
	if len(chain.windows) != 1 {
		t.Fatalf("MintEvents called %d times, want 1", len(chain.windows))
	}
	if chain.windows[0] != [2]uint64{9_901, 10_000} {
		t.Errorf("window = %v, want [9901 10000]", chain.windows[0])
	}
}

func TestWindowBoundedByWindowSize(t *testing.T) {
	chain := &fakeChain{head: 10_000}
	w := testWatcher(chain, &fakeSink{}, nil)
	w.seeded = true
	w.watermark = 1_000

	w.RunOnce(context.Background())

	if chain.windows[0] != [2]uint64{1_001, 1_500} {
		t.Errorf("window = %v, want [1001 1500]", chain.windows[0])
	}
	if got := w.Watermark(); got != 1_500 {
		t.Errorf("watermark = %d, want 1500", got)
	}
}

func TestEmptyWindowSkipsFetch(t *testing.T) {
	chain := &fakeChain{head: 500}
	w := testWatcher(chain, &fakeSink{}, nil)
	w.seeded = true
	w.watermark = 500

	w.RunOnce(context.Background())

	if len(chain.windows) != 0 {
		t.Errorf("MintEvents called with an empty window")
	}
	if got := w.Watermark(); got != 500 {
		t.Errorf("watermark = %d, want unchanged 500", got)
	}
}

func TestHeadQueryFailureDoesNotAdvance(t *testing.T) {
	chain := &fakeChain{headErr: domain.ErrChainQueryFailure}
	w := testWatcher(chain, &fakeSink{}, nil)
	w.seeded = true
	w.watermark = 42

	w.RunOnce(context.Background())

	if got := w.Watermark(); got != 42 {
		t.Errorf("watermark = %d, want unchanged 42", got)
	}
}

func TestFetchFailureRetriesSameWindow(t *testing.T) {
	chain := &fakeChain{head: 2_000, eventsErr: domain.ErrChainQueryFailure}
	w := testWatcher(chain, &fakeSink{}, nil)
	w.seeded = true
	w.watermark = 1_000

	w.RunOnce(context.Background())
	w.RunOnce(context.Background())

	if got := w.Watermark(); got != 1_000 {
		t.Errorf("watermark = %d, want unchanged 1000", got)
	}
	if len(chain.windows) != 2 || chain.windows[0] != chain.windows[1] {
		t.Errorf("windows = %v, want the same window retried", chain.windows)
	}
}

func TestSinkFailureDoesNotAdvance(t *testing.T) {
	chain := &fakeChain{
		head:   2_000,
		events: []domain.MintEvent{{TxHash: "0x1", BlockNumber: 1_100}},
	}
	sink := &fakeSink{err: errors.New("db down")}
	w := testWatcher(chain, sink, nil)
	w.seeded = true
	w.watermark = 1_000

	w.RunOnce(context.Background())

	if got := w.Watermark(); got != 1_000 {
		t.Errorf("watermark = %d, want unchanged 1000", got)
	}
}

func TestWatermarkMonotonicAcrossMixedCycles(t *testing.T) {
	chain := &fakeChain{head: 3_000}
	sink := &fakeSink{}
	w := testWatcher(chain, sink, nil)
	w.seeded = true
	w.watermark = 1_000

	prev := w.Watermark()
	fail := []bool{false, true, false, true, true, false, false}
	for i, shouldFail := range fail {
		if shouldFail {
			chain.eventsErr = domain.ErrChainQueryFailure
		} else {
			chain.eventsErr = nil
		}
		w.RunOnce(context.Background())

		got := w.Watermark()
		if got < prev {
			t.Fatalf("cycle %d: watermark went backwards %d -> %d", i, prev, got)
		}
		if shouldFail && got != prev {
			t.Fatalf("cycle %d: watermark advanced on a failed cycle", i)
		}
		if !shouldFail && got <= prev && prev < chain.head {
			t.Fatalf("cycle %d: watermark did not advance on a successful cycle", i)
		}
		prev = got
	}
}

func TestEventsDeliveredAndBroadcast(t *testing.T) {
	events := []domain.MintEvent{
		{TxHash: "0x1", LogIndex: 0, AppID: 440, BlockNumber: 1_050},
		{TxHash: "0x1", LogIndex: 1, AppID: 440, BlockNumber: 1_050},
	}
	chain := &fakeChain{head: 1_200, events: events}
	sink := &fakeSink{}
	hub := &fakeHub{}
	w := testWatcher(chain, sink, hub)
	w.seeded = true
	w.watermark = 1_000

	w.RunOnce(context.Background())

	if len(sink.received) != 2 {
		t.Errorf("sink received %d events, want 2", len(sink.received))
	}
	if len(hub.broadcasts) != 2 {
		t.Errorf("hub got %d broadcasts, want 2", len(hub.broadcasts))
	}
	if got := w.Watermark(); got != 1_200 {
		t.Errorf("watermark = %d, want 1200", got)
	}
}

func TestStartStop(t *testing.T) {
	chain := &fakeChain{head: 100}
	w := testWatcher(chain, &fakeSink{}, nil)
	w.config.PollInterval = 10 * time.Millisecond

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(35 * time.Millisecond)
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if got := w.Watermark(); got != 100 {
		t.Errorf("watermark = %d, want 100 after running cycles", got)
	}
}
