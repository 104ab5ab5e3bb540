package chain

import "testing"

func TestParseProgramLogs_DecodesDepositEvent(t *testing.T) {
	logs := []string{
		"Program log: Instruction: Deposit",
		"Program log: EVENT DEPOSIT tree=1 index=0 commitment=42 old_root=0 new_root=7 deposit_hash=99",
		"Program log: some unrelated program's log line",
	}

	events := parseProgramLogs(123, "sig-abc", logs)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}

	evt := events[0]
	if evt.Kind != EventDepositCompleted {
		t.Fatalf("Kind = %v, want EventDepositCompleted", evt.Kind)
	}
	if evt.Slot != 123 || evt.TxSig != "sig-abc" {
		t.Fatalf("slot/sig not attached to decoded event")
	}
	if evt.TreeID != 1 || evt.DepositIndex != 0 {
		t.Fatalf("tree/index not decoded correctly: %+v", evt)
	}
}

func TestParseProgramLogs_SkipsMalformedLines(t *testing.T) {
	logs := []string{
		"Program log: EVENT DEPOSIT tree=1", // missing required fields
		"not a program log at all",
	}
	events := parseProgramLogs(1, "sig", logs)
	if len(events) != 0 {
		t.Fatalf("got %d events from malformed input, want 0", len(events))
	}
}

func TestParseProgramLogs_DecodesWithdrawEvent(t *testing.T) {
	logs := []string{
		"Program log: EVENT WITHDRAW tree=2 nullifier=55",
	}
	events := parseProgramLogs(5, "sig-w", logs)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Kind != EventWithdrawCompleted {
		t.Fatalf("Kind = %v, want EventWithdrawCompleted", events[0].Kind)
	}
}
