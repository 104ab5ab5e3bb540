package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/cipherpay/relayer/internal/zkp"
)

// MerkleStore adapts Store to zkp.MerkleStore. Per §4.3's concurrency
// requirement, every write takes a row lock on merkle_meta via
// "SELECT ... FOR UPDATE", serializing all appends to a given tree_id
// without needing an in-process mutex — multiple relayer instances can
// share one Postgres database safely.
type MerkleStore struct {
	hasher *zkp.Hasher
	zeros  *zkp.ZeroCache
	store  *Store
}

// NewMerkleStore wraps a Store as a zkp.MerkleStore.
func NewMerkleStore(store *Store, hasher *zkp.Hasher, zeros *zkp.ZeroCache) *MerkleStore {
	return &MerkleStore{hasher: hasher, zeros: zeros, store: store}
}

func (m *MerkleStore) InitializeTree(ctx context.Context, treeID uint32, depth uint8) error {
	if depth < 1 || depth > 32 {
		return zkp.ErrInvalidDepth
	}

	var exists bool
	err := m.store.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM merkle_meta WHERE tree_id=$1)`, treeID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("storage: checking tree existence: %w", err)
	}
	if exists {
		return zkp.ErrTreeAlreadyExists
	}

	root := m.zeros.At(int(depth))
	be := root.BytesBE()
	_, err = m.store.pool.Exec(ctx,
		`INSERT INTO merkle_meta (tree_id, depth, next_index, root) VALUES ($1, $2, 0, $3)`,
		treeID, depth, be[:],
	)
	if err != nil {
		return fmt.Errorf("storage: initializing tree: %w", err)
	}
	return nil
}

func (m *MerkleStore) Depth(ctx context.Context, treeID uint32) (uint8, error) {
	var depth int16
	err := m.store.pool.QueryRow(ctx, `SELECT depth FROM merkle_meta WHERE tree_id=$1`, treeID).Scan(&depth)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, zkp.ErrTreeNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("storage: reading depth: %w", err)
	}
	return uint8(depth), nil
}

func (m *MerkleStore) Root(ctx context.Context, treeID uint32) (zkp.Fe, error) {
	root, _, err := m.RootAndNextIndex(ctx, treeID)
	return root, err
}

func (m *MerkleStore) RootAndNextIndex(ctx context.Context, treeID uint32) (zkp.Fe, uint64, error) {
	var rootBytes []byte
	var nextIndex int64
	err := m.store.pool.QueryRow(ctx,
		`SELECT root, next_index FROM merkle_meta WHERE tree_id=$1`, treeID,
	).Scan(&rootBytes, &nextIndex)
	if errors.Is(err, pgx.ErrNoRows) {
		return zkp.Fe{}, 0, zkp.ErrTreeNotFound
	}
	if err != nil {
		return zkp.Fe{}, 0, fmt.Errorf("storage: reading root: %w", err)
	}

	root, err := decodeFe(rootBytes)
	if err != nil {
		return zkp.Fe{}, 0, err
	}
	return root, uint64(nextIndex), nil
}

func (m *MerkleStore) RecentRoots(ctx context.Context, treeID uint32) ([]zkp.Fe, error) {
	rows, err := m.store.pool.Query(ctx,
		`SELECT root FROM merkle_roots WHERE tree_id=$1 ORDER BY seq ASC LIMIT $2`,
		treeID, zkp.MaxRoots,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: reading recent roots: %w", err)
	}
	defer rows.Close()

	var out []zkp.Fe
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		fe, err := decodeFe(b)
		if err != nil {
			return nil, err
		}
		out = append(out, fe)
	}
	return out, rows.Err()
}

func (m *MerkleStore) siblingLookup(ctx context.Context, tx pgx.Tx, treeID uint32) zkp.SiblingLookup {
	return func(layer uint8, index uint64) (zkp.Fe, bool, error) {
		var b []byte
		var err error
		if layer == 0 {
			err = tx.QueryRow(ctx,
				`SELECT commitment FROM merkle_leaves WHERE tree_id=$1 AND leaf_index=$2`,
				treeID, index,
			).Scan(&b)
		} else {
			err = tx.QueryRow(ctx,
				`SELECT value FROM merkle_nodes WHERE tree_id=$1 AND layer=$2 AND node_index=$3`,
				treeID, layer, index,
			).Scan(&b)
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return zkp.Fe{}, false, nil
		}
		if err != nil {
			return zkp.Fe{}, false, err
		}
		fe, err := decodeFe(b)
		return fe, true, err
	}
}

func (m *MerkleStore) PathByIndex(ctx context.Context, treeID uint32, index uint64) (*zkp.MerklePath, error) {
	tx, err := m.store.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: beginning tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var depth int16
	var nextIndex int64
	if err := tx.QueryRow(ctx, `SELECT depth, next_index FROM merkle_meta WHERE tree_id=$1`, treeID).Scan(&depth, &nextIndex); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, zkp.ErrTreeNotFound
		}
		return nil, err
	}
	if index > uint64(nextIndex) {
		return nil, zkp.ErrIndexOutOfRange
	}

	path, err := zkp.WalkPath(m.zeros, uint8(depth), index, m.siblingLookup(ctx, tx, treeID))
	if err != nil {
		return nil, err
	}
	return path, tx.Commit(ctx)
}

func (m *MerkleStore) PathByCommitment(ctx context.Context, treeID uint32, commitment zkp.Fe) (*zkp.MerklePath, uint64, error) {
	be := commitment.BytesBE()
	var index int64
	err := m.store.pool.QueryRow(ctx,
		`SELECT leaf_index FROM merkle_leaves WHERE tree_id=$1 AND commitment=$2`,
		treeID, be[:],
	).Scan(&index)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, zkp.ErrCommitmentNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("storage: looking up commitment: %w", err)
	}

	path, err := m.PathByIndex(ctx, treeID, uint64(index))
	return path, uint64(index), err
}

// appendWithinTx runs the shared append-one algorithm inside an
// already-open, already-row-locked transaction.
func (m *MerkleStore) appendWithinTx(ctx context.Context, tx pgx.Tx, treeID uint32, depth uint8, index uint64, leaf, expectedOldRoot, expectedNewRoot zkp.Fe) error {
	var currentRoot []byte
	var nextIndex int64
	if err := tx.QueryRow(ctx,
		`SELECT root, next_index FROM merkle_meta WHERE tree_id=$1 FOR UPDATE`, treeID,
	).Scan(&currentRoot, &nextIndex); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return zkp.ErrTreeNotFound
		}
		return err
	}

	if uint64(nextIndex) != index {
		return zkp.ErrNextIndexMismatch
	}
	root, err := decodeFe(currentRoot)
	if err != nil {
		return err
	}
	if !root.Equal(expectedOldRoot) {
		return zkp.ErrOldRootMismatch
	}

	result, err := zkp.AppendLeaf(m.hasher, m.zeros, depth, index, leaf, m.siblingLookup(ctx, tx, treeID))
	if err != nil {
		return err
	}
	if !result.NewRoot.Equal(expectedNewRoot) {
		return zkp.ErrRecomputedRootMismatch
	}

	leafBE := leaf.BytesBE()
	if _, err := tx.Exec(ctx,
		`INSERT INTO merkle_leaves (tree_id, leaf_index, commitment) VALUES ($1,$2,$3)`,
		treeID, index, leafBE[:],
	); err != nil {
		return err
	}

	for _, w := range result.NodeWrites {
		valBE := w.Value.BytesBE()
		if _, err := tx.Exec(ctx,
			`INSERT INTO merkle_nodes (tree_id, layer, node_index, value) VALUES ($1,$2,$3,$4)
			 ON CONFLICT (tree_id, layer, node_index) DO UPDATE SET value = EXCLUDED.value`,
			treeID, w.Layer, w.Index, valBE[:],
		); err != nil {
			return err
		}
	}

	newRootBE := result.NewRoot.BytesBE()
	if _, err := tx.Exec(ctx,
		`UPDATE merkle_meta SET root=$1, next_index=$2 WHERE tree_id=$3`,
		newRootBE[:], index+1, treeID,
	); err != nil {
		return err
	}

	var seq int64
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(seq), -1) + 1 FROM merkle_roots WHERE tree_id=$1`, treeID).Scan(&seq); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO merkle_roots (tree_id, seq, root) VALUES ($1,$2,$3)`,
		treeID, seq, newRootBE[:],
	); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM merkle_roots WHERE tree_id=$1 AND seq <= $2`,
		treeID, seq-int64(zkp.MaxRoots),
	); err != nil {
		return err
	}

	return nil
}

func (m *MerkleStore) ApplyDepositFromEvent(ctx context.Context, treeID uint32, index uint64, commitment, oldRoot, newRoot zkp.Fe) error {
	tx, err := m.store.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: beginning tx: %w", err)
	}
	defer tx.Rollback(ctx)

	depth, err := m.depthWithinTx(ctx, tx, treeID)
	if err != nil {
		return err
	}
	if err := m.appendWithinTx(ctx, tx, treeID, depth, index, commitment, oldRoot, newRoot); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (m *MerkleStore) ApplyTransferFromEvent(ctx context.Context, treeID uint32, startIndex uint64, out1, out2, oldRoot, newRoot1, newRoot2 zkp.Fe) error {
	tx, err := m.store.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: beginning tx: %w", err)
	}
	defer tx.Rollback(ctx)

	depth, err := m.depthWithinTx(ctx, tx, treeID)
	if err != nil {
		return err
	}
	if err := m.appendWithinTx(ctx, tx, treeID, depth, startIndex, out1, oldRoot, newRoot1); err != nil {
		return err
	}
	if err := m.appendWithinTx(ctx, tx, treeID, depth, startIndex+1, out2, newRoot1, newRoot2); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Snapshot opens a REPEATABLE READ, read-only transaction and runs fn
// against a reader bound to it, so a multi-call prepare response (§4.8)
// sees one consistent view of the tree even if a concurrent append
// commits in between what would otherwise be independent queries.
func (m *MerkleStore) Snapshot(ctx context.Context, treeID uint32, fn func(zkp.SnapshotReader) error) error {
	tx, err := m.store.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("storage: beginning snapshot tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&txSnapshot{m: m, tx: tx, treeID: treeID}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// txSnapshot is the zkp.SnapshotReader bound to one Snapshot call's
// transaction; every read it serves comes from that transaction's
// REPEATABLE READ view rather than a fresh connection from the pool.
type txSnapshot struct {
	m      *MerkleStore
	tx     pgx.Tx
	treeID uint32
}

func (s *txSnapshot) RootAndNextIndex(ctx context.Context, treeID uint32) (zkp.Fe, uint64, error) {
	var rootBytes []byte
	var nextIndex int64
	err := s.tx.QueryRow(ctx,
		`SELECT root, next_index FROM merkle_meta WHERE tree_id=$1`, treeID,
	).Scan(&rootBytes, &nextIndex)
	if errors.Is(err, pgx.ErrNoRows) {
		return zkp.Fe{}, 0, zkp.ErrTreeNotFound
	}
	if err != nil {
		return zkp.Fe{}, 0, fmt.Errorf("storage: reading root: %w", err)
	}
	root, err := decodeFe(rootBytes)
	if err != nil {
		return zkp.Fe{}, 0, err
	}
	return root, uint64(nextIndex), nil
}

func (s *txSnapshot) Root(ctx context.Context, treeID uint32) (zkp.Fe, error) {
	root, _, err := s.RootAndNextIndex(ctx, treeID)
	return root, err
}

func (s *txSnapshot) PathByIndex(ctx context.Context, treeID uint32, index uint64) (*zkp.MerklePath, error) {
	var depth int16
	var nextIndex int64
	if err := s.tx.QueryRow(ctx, `SELECT depth, next_index FROM merkle_meta WHERE tree_id=$1`, treeID).Scan(&depth, &nextIndex); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, zkp.ErrTreeNotFound
		}
		return nil, err
	}
	if index > uint64(nextIndex) {
		return nil, zkp.ErrIndexOutOfRange
	}
	return zkp.WalkPath(s.m.zeros, uint8(depth), index, s.m.siblingLookup(ctx, s.tx, treeID))
}

func (s *txSnapshot) PathByCommitment(ctx context.Context, treeID uint32, commitment zkp.Fe) (*zkp.MerklePath, uint64, error) {
	be := commitment.BytesBE()
	var index int64
	err := s.tx.QueryRow(ctx,
		`SELECT leaf_index FROM merkle_leaves WHERE tree_id=$1 AND commitment=$2`,
		treeID, be[:],
	).Scan(&index)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, zkp.ErrCommitmentNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("storage: looking up commitment: %w", err)
	}
	path, err := s.PathByIndex(ctx, treeID, uint64(index))
	return path, uint64(index), err
}

func (m *MerkleStore) depthWithinTx(ctx context.Context, tx pgx.Tx, treeID uint32) (uint8, error) {
	var depth int16
	err := tx.QueryRow(ctx, `SELECT depth FROM merkle_meta WHERE tree_id=$1`, treeID).Scan(&depth)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, zkp.ErrTreeNotFound
	}
	return uint8(depth), err
}

func decodeFe(b []byte) (zkp.Fe, error) {
	var be zkp.FeBE
	if len(b) != len(be) {
		return zkp.Fe{}, fmt.Errorf("storage: expected %d-byte field element, got %d", len(be), len(b))
	}
	copy(be[:], b)
	return zkp.FeFromBE(be)
}
