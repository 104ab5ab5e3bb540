package zkp

import (
	"context"
	"testing"
)

func mustHasher(t *testing.T) *Hasher {
	t.Helper()
	h, err := NewHasher()
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	return h
}

// Scenario 1: a fresh tree returns zero root and all-zero path to next_index 0.
func TestMemoryMerkleStore_FreshTree(t *testing.T) {
	ctx := context.Background()
	hasher := mustHasher(t)
	zeros := NewZeroCache(hasher)
	store := NewMemoryMerkleStore(hasher, zeros)

	if err := store.InitializeTree(ctx, 1, 20); err != nil {
		t.Fatalf("InitializeTree: %v", err)
	}

	root, err := store.Root(ctx, 1)
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	if !root.Equal(zeros.At(20)) {
		t.Fatalf("fresh tree root = %s, want zeros[20]", root)
	}

	path, err := store.PathByIndex(ctx, 1, 0)
	if err != nil {
		t.Fatalf("PathByIndex: %v", err)
	}
	for i, bit := range path.Bits {
		if bit {
			t.Fatalf("in_path_indices[%d] = true, want false for a fresh tree", i)
		}
	}
	for i, s := range path.Siblings {
		if !s.Equal(zeros.At(i)) {
			t.Fatalf("sibling[%d] = %s, want zeros[%d]", i, s, i)
		}
	}
}

// Snapshot must hand back a reader whose RootAndNextIndex/PathByIndex
// agree with each other, matching what the unlocked direct calls report.
func TestMemoryMerkleStore_Snapshot_ReadsAgreeWithDirectCalls(t *testing.T) {
	ctx := context.Background()
	hasher := mustHasher(t)
	zeros := NewZeroCache(hasher)
	store := NewMemoryMerkleStore(hasher, zeros)

	if err := store.InitializeTree(ctx, 1, 4); err != nil {
		t.Fatalf("InitializeTree: %v", err)
	}

	wantRoot, wantNextIndex, err := store.RootAndNextIndex(ctx, 1)
	if err != nil {
		t.Fatalf("RootAndNextIndex: %v", err)
	}
	wantPath, err := store.PathByIndex(ctx, 1, 0)
	if err != nil {
		t.Fatalf("PathByIndex: %v", err)
	}

	err = store.Snapshot(ctx, 1, func(r SnapshotReader) error {
		root, nextIndex, err := r.RootAndNextIndex(ctx, 1)
		if err != nil {
			return err
		}
		if !root.Equal(wantRoot) || nextIndex != wantNextIndex {
			t.Fatalf("snapshot root/next_index = %s/%d, want %s/%d", root, nextIndex, wantRoot, wantNextIndex)
		}
		path, err := r.PathByIndex(ctx, 1, 0)
		if err != nil {
			return err
		}
		if len(path.Siblings) != len(wantPath.Siblings) {
			t.Fatalf("snapshot path length = %d, want %d", len(path.Siblings), len(wantPath.Siblings))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
}

func TestMemoryMerkleStore_Snapshot_UnknownTreeFails(t *testing.T) {
	ctx := context.Background()
	hasher := mustHasher(t)
	store := NewMemoryMerkleStore(hasher, NewZeroCache(hasher))

	err := store.Snapshot(ctx, 99, func(SnapshotReader) error {
		t.Fatal("fn should not run for an uninitialized tree")
		return nil
	})
	if err != ErrTreeNotFound {
		t.Fatalf("Snapshot err = %v, want ErrTreeNotFound", err)
	}
}

// Scenario 2/3: applying a deposit then a transfer advances next_index,
// root, and the recent-roots ring exactly as specified.
func TestMemoryMerkleStore_DepositThenTransfer(t *testing.T) {
	ctx := context.Background()
	hasher := mustHasher(t)
	zeros := NewZeroCache(hasher)
	store := NewMemoryMerkleStore(hasher, zeros)

	const depth = 4
	if err := store.InitializeTree(ctx, 7, depth); err != nil {
		t.Fatalf("InitializeTree: %v", err)
	}

	commitA := FeFromUint64(42)
	oldRoot := zeros.At(depth)
	pathAtZero, err := store.PathByIndex(ctx, 7, 0)
	if err != nil {
		t.Fatalf("PathByIndex: %v", err)
	}
	newRoot := pathAtZero.Fold(hasher, commitA)

	if err := store.ApplyDepositFromEvent(ctx, 7, 0, commitA, oldRoot, newRoot); err != nil {
		t.Fatalf("ApplyDepositFromEvent: %v", err)
	}

	root, nextIndex, err := store.RootAndNextIndex(ctx, 7)
	if err != nil {
		t.Fatalf("RootAndNextIndex: %v", err)
	}
	if nextIndex != 1 {
		t.Fatalf("next_index = %d, want 1", nextIndex)
	}
	if !root.Equal(newRoot) {
		t.Fatalf("root = %s, want %s", root, newRoot)
	}

	// A second deposit at the wrong index is rejected and leaves state untouched.
	if err := store.ApplyDepositFromEvent(ctx, 7, 0, commitA, oldRoot, newRoot); err != ErrNextIndexMismatch {
		t.Fatalf("ApplyDepositFromEvent at stale index: got %v, want ErrNextIndexMismatch", err)
	}

	commitB := FeFromUint64(2)
	commitC := FeFromUint64(3)
	out1Path, err := store.PathByIndex(ctx, 7, 1)
	if err != nil {
		t.Fatalf("PathByIndex(1): %v", err)
	}
	afterOut1 := out1Path.Fold(hasher, commitB)

	out2Path, err := store.PathByIndex(ctx, 7, 2)
	if err != nil {
		t.Fatalf("PathByIndex(2): %v", err)
	}
	finalRoot := out2Path.Fold(hasher, commitC)

	if err := store.ApplyTransferFromEvent(ctx, 7, 1, commitB, commitC, newRoot, afterOut1, finalRoot); err != nil {
		t.Fatalf("ApplyTransferFromEvent: %v", err)
	}

	root, nextIndex, err = store.RootAndNextIndex(ctx, 7)
	if err != nil {
		t.Fatalf("RootAndNextIndex: %v", err)
	}
	if nextIndex != 3 {
		t.Fatalf("next_index = %d, want 3", nextIndex)
	}
	if !root.Equal(finalRoot) {
		t.Fatalf("root = %s, want %s", root, finalRoot)
	}

	recent, err := store.RecentRoots(ctx, 7)
	if err != nil {
		t.Fatalf("RecentRoots: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("len(recent_roots) = %d, want 3", len(recent))
	}
	if !recent[2].Equal(finalRoot) {
		t.Fatalf("recent_roots[2] = %s, want %s", recent[2], finalRoot)
	}

	// Round-trip: path_by_commitment for B folds to the final root.
	pathB, leafIndex, err := store.PathByCommitment(ctx, 7, commitB)
	if err != nil {
		t.Fatalf("PathByCommitment: %v", err)
	}
	if leafIndex != 1 {
		t.Fatalf("leaf_index = %d, want 1", leafIndex)
	}
	if !pathB.Fold(hasher, commitB).Equal(finalRoot) {
		t.Fatalf("fold(path_by_commitment(B)) != final root")
	}
}

// Boundary: a deposit at 2^depth is rejected.
func TestWalkPath_IndexOutOfRange(t *testing.T) {
	hasher := mustHasher(t)
	zeros := NewZeroCache(hasher)
	_, err := WalkPath(zeros, 3, 8, func(uint8, uint64) (Fe, bool, error) { return Fe{}, false, nil })
	if err != ErrIndexOutOfRange {
		t.Fatalf("WalkPath at 2^depth: got %v, want ErrIndexOutOfRange", err)
	}
}

// Missing sibling rows are indistinguishable from the zero-hash cache.
func TestWalkPath_AbsentSiblingFallsBackToZero(t *testing.T) {
	hasher := mustHasher(t)
	zeros := NewZeroCache(hasher)
	path, err := WalkPath(zeros, 5, 3, func(uint8, uint64) (Fe, bool, error) { return Fe{}, false, nil })
	if err != nil {
		t.Fatalf("WalkPath: %v", err)
	}
	for i, s := range path.Siblings {
		if !s.Equal(zeros.At(i)) {
			t.Fatalf("sibling[%d] = %s, want zeros[%d]", i, s, i)
		}
	}
}

func TestAppendLeaf_RejectsOutOfRangeIndex(t *testing.T) {
	hasher := mustHasher(t)
	zeros := NewZeroCache(hasher)
	_, err := AppendLeaf(hasher, zeros, 2, 4, FeFromUint64(1), func(uint8, uint64) (Fe, bool, error) { return Fe{}, false, nil })
	if err != ErrIndexOutOfRange {
		t.Fatalf("AppendLeaf at 2^depth: got %v, want ErrIndexOutOfRange", err)
	}
}
