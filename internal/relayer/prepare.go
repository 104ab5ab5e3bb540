package relayer

import (
	"context"
	"fmt"

	"github.com/cipherpay/relayer/internal/zkp"
)

// DepositPrepareResponse is the witness data a client needs to prove a
// deposit circuit (§4.8): the sibling path from the zero leaf at the
// tree's current insertion point.
type DepositPrepareResponse struct {
	MerkleRoot     zkp.FeLE
	NextLeafIndex  uint64
	InPathElements []string // big-endian hex
	InPathIndices  []bool
}

// TransferPrepareResponse is the witness data for a transfer circuit: the
// spent commitment's path plus the two pre-insertion sibling paths the
// circuit needs to fold in its two new outputs.
type TransferPrepareResponse struct {
	MerkleRoot       zkp.FeLE
	InPathElements   []string
	InPathIndices    []bool
	LeafIndex        uint64
	NextLeafIndex    uint64
	Out1PathElements []string
	Out2PathElements []string
}

// WithdrawPrepareResponse is the witness data for a withdraw circuit: the
// spent commitment's path.
type WithdrawPrepareResponse struct {
	MerkleRoot   zkp.FeLE
	PathElements []string
	PathIndices  []bool
	LeafIndex    uint64
}

// PrepareDeposit returns the sibling path a not-yet-inserted leaf at the
// tree's current next_index would have, read from a single consistent
// snapshot (§4.8: "must not observe a partial write").
func PrepareDeposit(ctx context.Context, store zkp.MerkleStore, treeID uint32) (*DepositPrepareResponse, error) {
	var resp *DepositPrepareResponse
	err := store.Snapshot(ctx, treeID, func(r zkp.SnapshotReader) error {
		root, nextIndex, err := r.RootAndNextIndex(ctx, treeID)
		if err != nil {
			return fmt.Errorf("relayer: reading tree state: %w", err)
		}

		path, err := r.PathByIndex(ctx, treeID, nextIndex)
		if err != nil {
			return fmt.Errorf("relayer: walking path to next_index: %w", err)
		}

		resp = &DepositPrepareResponse{
			MerkleRoot:     root.BytesLE(),
			NextLeafIndex:  nextIndex,
			InPathElements: hexPath(path.Siblings),
			InPathIndices:  path.Bits,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// PrepareTransfer returns the spent commitment's path plus the two
// pre-insertion output paths the transfer circuit needs, all read from a
// single snapshot so a commit landing mid-computation can't mix an old
// root with a path derived from after it (§4.8).
func PrepareTransfer(ctx context.Context, store zkp.MerkleStore, treeID uint32, inCommitment zkp.Fe) (*TransferPrepareResponse, error) {
	var resp *TransferPrepareResponse
	err := store.Snapshot(ctx, treeID, func(r zkp.SnapshotReader) error {
		root, nextIndex, err := r.RootAndNextIndex(ctx, treeID)
		if err != nil {
			return fmt.Errorf("relayer: reading tree state: %w", err)
		}

		inPath, leafIndex, err := r.PathByCommitment(ctx, treeID, inCommitment)
		if err != nil {
			return fmt.Errorf("relayer: locating spent commitment: %w", err)
		}

		out1Path, err := r.PathByIndex(ctx, treeID, nextIndex)
		if err != nil {
			return fmt.Errorf("relayer: walking out1 path: %w", err)
		}
		out2Path, err := r.PathByIndex(ctx, treeID, nextIndex+1)
		if err != nil {
			return fmt.Errorf("relayer: walking out2 path: %w", err)
		}

		resp = &TransferPrepareResponse{
			MerkleRoot:       root.BytesLE(),
			InPathElements:   hexPath(inPath.Siblings),
			InPathIndices:    inPath.Bits,
			LeafIndex:        leafIndex,
			NextLeafIndex:    nextIndex,
			Out1PathElements: hexPath(out1Path.Siblings),
			Out2PathElements: hexPath(out2Path.Siblings),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// PrepareWithdraw returns the spent commitment's path, read from a
// single snapshot alongside the root it is proven against (§4.8).
func PrepareWithdraw(ctx context.Context, store zkp.MerkleStore, treeID uint32, spendCommitment zkp.Fe) (*WithdrawPrepareResponse, error) {
	var resp *WithdrawPrepareResponse
	err := store.Snapshot(ctx, treeID, func(r zkp.SnapshotReader) error {
		root, err := r.Root(ctx, treeID)
		if err != nil {
			return fmt.Errorf("relayer: reading tree root: %w", err)
		}

		path, leafIndex, err := r.PathByCommitment(ctx, treeID, spendCommitment)
		if err != nil {
			return fmt.Errorf("relayer: locating spent commitment: %w", err)
		}

		resp = &WithdrawPrepareResponse{
			MerkleRoot:   root.BytesLE(),
			PathElements: hexPath(path.Siblings),
			PathIndices:  path.Bits,
			LeafIndex:    leafIndex,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func hexPath(siblings []zkp.Fe) []string {
	out := make([]string, len(siblings))
	for i, s := range siblings {
		out[i] = s.HexBE()
	}
	return out
}
