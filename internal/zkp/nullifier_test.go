package zkp

import (
	"context"
	"testing"
)

func TestNullifierSet_MarkAndCheck(t *testing.T) {
	ctx := context.Background()
	ns := NewNullifierSet(NewInMemoryMarkerStore())

	n := FeFromUint64(7)
	spent, err := ns.IsSpent(ctx, n)
	if err != nil {
		t.Fatalf("IsSpent: %v", err)
	}
	if spent {
		t.Fatalf("fresh nullifier reported spent")
	}

	if err := ns.MarkSpent(ctx, n, SpendRecord{SubmissionID: "sub-1", SpentAtSlot: 10}); err != nil {
		t.Fatalf("MarkSpent: %v", err)
	}

	spent, err = ns.IsSpent(ctx, n)
	if err != nil {
		t.Fatalf("IsSpent after mark: %v", err)
	}
	if !spent {
		t.Fatalf("marked nullifier reported unspent")
	}

	// Scenario 5: a second mark of the same nullifier is rejected, not silently accepted.
	if err := ns.MarkSpent(ctx, n, SpendRecord{SubmissionID: "sub-2", SpentAtSlot: 11}); err != ErrNullifierAlreadyUsed {
		t.Fatalf("second MarkSpent: got %v, want ErrNullifierAlreadyUsed", err)
	}
}

func TestDepositMarkerSet_MarkAndCheck(t *testing.T) {
	ctx := context.Background()
	ds := NewDepositMarkerSet(NewInMemoryMarkerStore())

	h := FeFromUint64(99)
	used, err := ds.IsUsed(ctx, h)
	if err != nil {
		t.Fatalf("IsUsed: %v", err)
	}
	if used {
		t.Fatalf("fresh deposit hash reported used")
	}

	if err := ds.MarkUsed(ctx, h, SpendRecord{SubmissionID: "sub-1"}); err != nil {
		t.Fatalf("MarkUsed: %v", err)
	}
	if err := ds.MarkUsed(ctx, h, SpendRecord{SubmissionID: "sub-2"}); err != ErrDepositAlreadyUsed {
		t.Fatalf("second MarkUsed: got %v, want ErrDepositAlreadyUsed", err)
	}
}

func TestDeriveNullifier_Deterministic(t *testing.T) {
	hasher := mustHasher(t)
	a := DeriveNullifier(hasher, FeFromUint64(1), FeFromUint64(2), FeFromUint64(3))
	b := DeriveNullifier(hasher, FeFromUint64(1), FeFromUint64(2), FeFromUint64(3))
	if !a.Equal(b) {
		t.Fatalf("DeriveNullifier is not deterministic")
	}
	c := DeriveNullifier(hasher, FeFromUint64(1), FeFromUint64(2), FeFromUint64(4))
	if a.Equal(c) {
		t.Fatalf("DeriveNullifier collided for distinct position")
	}
}
