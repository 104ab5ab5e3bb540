package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/cipherpay/relayer/internal/zkp"
)

// fakeSlotFetcher hands back a fixed event per slot for slots it knows
// about, and nothing otherwise, mimicking a validator that skipped some
// leader slots.
type fakeSlotFetcher struct {
	events map[uint64][]Event
	calls  []uint64
}

func (f *fakeSlotFetcher) EventsAtSlot(ctx context.Context, programID string, slot uint64) ([]Event, error) {
	f.calls = append(f.calls, slot)
	return f.events[slot], nil
}

func newGetSlotServer(t *testing.T, slot uint64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding rpc request: %v", err)
		}
		if req.Method != "getSlot" {
			t.Fatalf("unexpected rpc method %q", req.Method)
		}
		resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(itoa(slot))}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func itoa(v uint64) []byte {
	b, _ := json.Marshal(v)
	return b
}

func TestBackfiller_ReplaysEventsUpToTip(t *testing.T) {
	srv := newGetSlotServer(t, 5)
	defer srv.Close()

	fetcher := &fakeSlotFetcher{events: map[uint64][]Event{
		2: {{Kind: EventDepositCompleted, TreeID: 1, DepositCommitment: zkp.FeFromUint64(42)}},
		4: {{Kind: EventWithdrawCompleted, TreeID: 1}},
	}}

	client := NewClient(srv.Client(), srv.URL)
	log := logrus.NewEntry(logrus.New())
	bf := NewBackfiller(client, fetcher, "prog", BackfillConfig{BatchSize: 10, RequestTimeout: 5e9}, log)

	var got []Event
	done := make(chan struct{})
	go func() {
		defer close(done)
		for evt := range bf.Events {
			got = append(got, evt)
		}
	}()

	if err := bf.Run(context.Background(), 0); err != nil {
		t.Fatalf("Run: %v", err)
	}
	close(bf.Events)
	<-done

	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if len(fetcher.calls) != 5 {
		t.Fatalf("fetcher called %d times, want 5 (slots 0..4)", len(fetcher.calls))
	}

	progress, target, running := bf.Progress()
	if running {
		t.Fatalf("Progress() reports running after Run returned")
	}
	if progress != 5 || target != 5 {
		t.Fatalf("Progress() = (%d, %d), want (5, 5)", progress, target)
	}
}

func TestBackfiller_BatchesAcrossMultipleRounds(t *testing.T) {
	srv := newGetSlotServer(t, 25)
	defer srv.Close()

	fetcher := &fakeSlotFetcher{events: map[uint64][]Event{}}
	client := NewClient(srv.Client(), srv.URL)
	log := logrus.NewEntry(logrus.New())
	bf := NewBackfiller(client, fetcher, "prog", BackfillConfig{BatchSize: 10, RequestTimeout: 5e9}, log)

	go func() {
		for range bf.Events {
		}
	}()

	if err := bf.Run(context.Background(), 0); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(fetcher.calls) != 25 {
		t.Fatalf("fetcher called %d times, want 25 across 3 batches", len(fetcher.calls))
	}
}
