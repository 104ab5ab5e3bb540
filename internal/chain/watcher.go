package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/cipherpay/relayer/internal/zkp"
)

// logsSubscribe is the JSON-RPC-over-websocket method the watcher
// subscribes with, mentioning only the program id so the node filters
// log notifications down to this program's transactions.
const logsSubscribeMethod = "logsSubscribe"

type wsEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Result  json.RawMessage `json:"result"`
	ID      uint64          `json:"id"`
}

type logsNotificationParams struct {
	Result struct {
		Context struct {
			Slot uint64 `json:"slot"`
		} `json:"context"`
		Value struct {
			Signature string   `json:"signature"`
			Err       any      `json:"err"`
			Logs      []string `json:"logs"`
		} `json:"value"`
	} `json:"result"`
}

// Watcher subscribes to the on-chain program's log stream and decodes
// DepositCompleted/TransferCompleted/WithdrawCompleted events, pushing
// them to Events in slot order. On disconnect it reconnects with
// exponential backoff and full jitter (250ms base, 30s cap) and lets the
// caller's Backfiller close any gap (§4.5).
type Watcher struct {
	wsURL     string
	programID string
	log       *logrus.Entry

	Events chan Event
}

// NewWatcher constructs a Watcher for the given websocket RPC endpoint
// and base58 program id.
func NewWatcher(wsURL, programID string, log *logrus.Entry) *Watcher {
	return &Watcher{
		wsURL:     wsURL,
		programID: programID,
		log:       log,
		Events:    make(chan Event, 256),
	}
}

// Run connects and processes log notifications until ctx is canceled,
// reconnecting on any error. It never returns except when ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxInterval = 30 * time.Second
	bo.RandomizationFactor = 0 // full jitter is applied below instead
	bo.MaxElapsedTime = 0      // retry forever; only ctx cancellation stops us

	for {
		if ctx.Err() != nil {
			return
		}
		if err := w.runOnce(ctx); err != nil {
			// Full jitter: wait a uniformly random time up to the ceiling.
			wait := time.Duration(rand.Int63n(int64(bo.NextBackOff()) + 1))
			w.log.WithError(err).WithField("retry_in", wait).Warn("chain log watcher disconnected")
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()
	}
}

func (w *Watcher) runOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("chain: dialing log stream: %w", err)
	}
	defer conn.Close()

	sub := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  logsSubscribeMethod,
		Params: []interface{}{
			map[string]interface{}{"mentions": []string{w.programID}},
			map[string]interface{}{"commitment": "confirmed"},
		},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("chain: sending logsSubscribe: %w", err)
	}

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		conn.Close()
		close(done)
	}()

	for {
		var env wsEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			select {
			case <-done:
				return ctx.Err()
			default:
			}
			return fmt.Errorf("chain: reading log stream: %w", err)
		}
		if env.Method != "logsNotification" {
			continue // subscription ack or unrelated notification
		}

		var params logsNotificationParams
		if err := json.Unmarshal(env.Params, &params); err != nil {
			w.log.WithError(err).Warn("chain: malformed logsNotification, skipping")
			continue
		}
		if params.Result.Value.Err != nil {
			continue // failed transaction, no state change to mirror
		}

		for _, evt := range parseProgramLogs(params.Result.Context.Slot, params.Result.Value.Signature, params.Result.Value.Logs) {
			select {
			case w.Events <- evt:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// parseProgramLogs decodes this program's structured log lines. The
// program emits one line per completed operation in the form
// "Program log: EVENT <kind> <field>=<value> ...", which this function
// tokenizes into Event values; malformed lines are skipped rather than
// treated as fatal, since an unrelated program's logs can appear
// interleaved with ours under the same "mentions" filter.
func parseProgramLogs(slot uint64, sig string, logs []string) []Event {
	var events []Event
	for _, line := range logs {
		const prefix = "Program log: EVENT "
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		fields := strings.Fields(strings.TrimPrefix(line, prefix))
		if len(fields) == 0 {
			continue
		}
		kind := fields[0]
		kv := make(map[string]string, len(fields)-1)
		for _, f := range fields[1:] {
			parts := strings.SplitN(f, "=", 2)
			if len(parts) == 2 {
				kv[parts[0]] = parts[1]
			}
		}

		evt, err := decodeEvent(kind, kv)
		if err != nil {
			continue
		}
		evt.Slot = slot
		evt.TxSig = sig
		events = append(events, evt)
	}
	return events
}

func decodeEvent(kind string, kv map[string]string) (Event, error) {
	treeID, err := parseUint32(kv["tree"])
	if err != nil {
		return Event{}, err
	}

	switch kind {
	case "DEPOSIT":
		index, err := parseUint64(kv["index"])
		if err != nil {
			return Event{}, err
		}
		commitment, err := parseFe(kv["commitment"])
		if err != nil {
			return Event{}, err
		}
		oldRoot, err := parseFe(kv["old_root"])
		if err != nil {
			return Event{}, err
		}
		newRoot, err := parseFe(kv["new_root"])
		if err != nil {
			return Event{}, err
		}
		depositHash, err := parseFe(kv["deposit_hash"])
		if err != nil {
			return Event{}, err
		}
		return Event{
			Kind:              EventDepositCompleted,
			TreeID:            treeID,
			DepositIndex:      index,
			DepositCommitment: commitment,
			DepositHash:       depositHash,
			OldRoot:           oldRoot,
			NewRoot:           newRoot,
		}, nil

	case "TRANSFER":
		start, err := parseUint64(kv["start_index"])
		if err != nil {
			return Event{}, err
		}
		out1, err := parseFe(kv["out1"])
		if err != nil {
			return Event{}, err
		}
		out2, err := parseFe(kv["out2"])
		if err != nil {
			return Event{}, err
		}
		nullifier, err := parseFe(kv["nullifier"])
		if err != nil {
			return Event{}, err
		}
		oldRoot, err := parseFe(kv["old_root"])
		if err != nil {
			return Event{}, err
		}
		newRoot1, err := parseFe(kv["new_root1"])
		if err != nil {
			return Event{}, err
		}
		newRoot2, err := parseFe(kv["new_root2"])
		if err != nil {
			return Event{}, err
		}
		return Event{
			Kind:               EventTransferCompleted,
			TreeID:             treeID,
			TransferStartIndex: start,
			TransferOut1:       out1,
			TransferOut2:       out2,
			TransferNullifier:  nullifier,
			OldRoot:            oldRoot,
			TransferNewRoot1:   newRoot1,
			NewRoot:            newRoot2,
		}, nil

	case "WITHDRAW":
		nullifier, err := parseFe(kv["nullifier"])
		if err != nil {
			return Event{}, err
		}
		return Event{
			Kind:              EventWithdrawCompleted,
			TreeID:            treeID,
			WithdrawNullifier: nullifier,
		}, nil

	default:
		return Event{}, fmt.Errorf("chain: unknown event kind %q", kind)
	}
}

func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	return uint32(v), err
}

func parseUint64(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

func parseFe(s string) (zkp.Fe, error) {
	return zkp.FeFromDecimalString(s)
}
