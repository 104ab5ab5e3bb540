package relayer

import (
	"context"
	"testing"

	"github.com/cipherpay/relayer/internal/zkp"
)

func newTestStore(t *testing.T, treeID uint32, depth uint8) (*zkp.MemoryMerkleStore, *zkp.Hasher) {
	t.Helper()
	hasher, err := zkp.NewHasher()
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	zeros := zkp.NewZeroCache(hasher)
	store := zkp.NewMemoryMerkleStore(hasher, zeros)
	if err := store.InitializeTree(context.Background(), treeID, depth); err != nil {
		t.Fatalf("InitializeTree: %v", err)
	}
	return store, hasher
}

func TestPrepareDeposit_FreshTreeWalksToNextIndexZero(t *testing.T) {
	store, _ := newTestStore(t, 1, 10)

	resp, err := PrepareDeposit(context.Background(), store, 1)
	if err != nil {
		t.Fatalf("PrepareDeposit: %v", err)
	}
	if resp.NextLeafIndex != 0 {
		t.Fatalf("NextLeafIndex = %d, want 0", resp.NextLeafIndex)
	}
	if len(resp.InPathElements) != 10 || len(resp.InPathIndices) != 10 {
		t.Fatalf("path length = %d/%d, want 10/10", len(resp.InPathElements), len(resp.InPathIndices))
	}
	for i, bit := range resp.InPathIndices {
		if bit {
			t.Fatalf("in_path_indices[%d] = true on a fresh tree", i)
		}
	}
}

func TestPrepareWithdraw_LocatesDepositedCommitment(t *testing.T) {
	store, hasher := newTestStore(t, 2, 4)
	ctx := context.Background()

	zeros := zkp.NewZeroCache(hasher)
	oldRoot := zeros.At(4)
	commitment := zkp.FeFromUint64(777)

	path, err := zkp.WalkPath(zeros, 4, 0, func(uint8, uint64) (zkp.Fe, bool, error) { return zkp.Fe{}, false, nil })
	if err != nil {
		t.Fatalf("WalkPath: %v", err)
	}
	newRoot := path.Fold(hasher, commitment)

	if err := store.ApplyDepositFromEvent(ctx, 2, 0, commitment, oldRoot, newRoot); err != nil {
		t.Fatalf("ApplyDepositFromEvent: %v", err)
	}

	resp, err := PrepareWithdraw(ctx, store, 2, commitment)
	if err != nil {
		t.Fatalf("PrepareWithdraw: %v", err)
	}
	if resp.LeafIndex != 0 {
		t.Fatalf("LeafIndex = %d, want 0", resp.LeafIndex)
	}
	if resp.MerkleRoot != newRoot.BytesLE() {
		t.Fatalf("PrepareWithdraw root does not match the tree's current root")
	}
}

func TestPrepareWithdraw_UnknownCommitmentFails(t *testing.T) {
	store, _ := newTestStore(t, 3, 4)
	_, err := PrepareWithdraw(context.Background(), store, 3, zkp.FeFromUint64(999))
	if err == nil {
		t.Fatalf("PrepareWithdraw succeeded for a commitment never deposited")
	}
}
