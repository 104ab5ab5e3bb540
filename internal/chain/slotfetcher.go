package chain

import "context"

// blockResult is the subset of getBlock's response the backfiller needs:
// each transaction's program log lines.
type blockResult struct {
	Transactions []struct {
		Transaction struct {
			Signatures []string `json:"signatures"`
		} `json:"transaction"`
		Meta struct {
			LogMessages []string `json:"logMessages"`
			Err         any      `json:"err"`
		} `json:"meta"`
	} `json:"transactions"`
}

// ClientSlotFetcher implements SlotFetcher over a Client's getBlock RPC,
// letting the Backfiller replay historical events through the same
// parseProgramLogs path the live Watcher uses.
type ClientSlotFetcher struct {
	client *Client
}

// NewClientSlotFetcher wraps a Client as a SlotFetcher.
func NewClientSlotFetcher(client *Client) *ClientSlotFetcher {
	return &ClientSlotFetcher{client: client}
}

func (f *ClientSlotFetcher) EventsAtSlot(ctx context.Context, programID string, slot uint64) ([]Event, error) {
	var block blockResult
	params := []interface{}{
		slot,
		map[string]interface{}{
			"encoding":                       "json",
			"transactionDetails":             "full",
			"maxSupportedTransactionVersion": 0,
		},
	}
	if err := f.client.Call(ctx, "getBlock", params, &block); err != nil {
		// A slot with no block (skipped leader slot) is not an error the
		// backfiller should fail on; callers tolerate an empty result.
		return nil, nil
	}

	var events []Event
	for _, tx := range block.Transactions {
		if tx.Meta.Err != nil {
			continue
		}
		sig := ""
		if len(tx.Transaction.Signatures) > 0 {
			sig = tx.Transaction.Signatures[0]
		}
		events = append(events, parseProgramLogs(slot, sig, tx.Meta.LogMessages)...)
	}
	return events, nil
}
