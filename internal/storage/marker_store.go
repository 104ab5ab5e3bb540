package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/cipherpay/relayer/internal/zkp"
)

// MarkerStore implements zkp.MarkerStore over a single Postgres table,
// either nullifiers or deposit_markers (§3). One instance per table: the
// relayer constructs two (see NewNullifierMarkerStore /
// NewDepositMarkerStore) so a bug can never check a nullifier against the
// deposit table or vice versa.
type MarkerStore struct {
	store *Store
	table string
	col   string
}

// NewNullifierMarkerStore backs a zkp.NullifierSet with the nullifiers table.
func NewNullifierMarkerStore(store *Store) *MarkerStore {
	return &MarkerStore{store: store, table: "nullifiers", col: "nullifier"}
}

// NewDepositMarkerStore backs a zkp.DepositMarkerSet with the
// deposit_markers table.
func NewDepositMarkerStore(store *Store) *MarkerStore {
	return &MarkerStore{store: store, table: "deposit_markers", col: "deposit_hash"}
}

func (m *MarkerStore) Has(ctx context.Context, value zkp.Fe) (bool, error) {
	be := value.BytesBE()
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE %s=$1)`, m.table, m.col)
	if err := m.store.pool.QueryRow(ctx, query, be[:]).Scan(&exists); err != nil {
		return false, fmt.Errorf("storage: checking %s: %w", m.table, err)
	}
	return exists, nil
}

func (m *MarkerStore) Mark(ctx context.Context, value zkp.Fe, record zkp.SpendRecord, alreadyUsed error) error {
	be := value.BytesBE()
	query := fmt.Sprintf(
		`INSERT INTO %s (%s, submission_id, tx_signature, spent_at_slot) VALUES ($1,$2,$3,$4) ON CONFLICT (%s) DO NOTHING`,
		m.table, m.col, m.col,
	)
	tag, err := m.store.pool.Exec(ctx, query, be[:], record.SubmissionID, record.TxSignature, record.SpentAtSlot)
	if err != nil {
		return fmt.Errorf("storage: marking %s: %w", m.table, err)
	}
	if tag.RowsAffected() == 0 {
		return alreadyUsed
	}
	return nil
}

func (m *MarkerStore) Get(ctx context.Context, value zkp.Fe) (*zkp.SpendRecord, error) {
	be := value.BytesBE()
	query := fmt.Sprintf(`SELECT submission_id, tx_signature, spent_at_slot FROM %s WHERE %s=$1`, m.table, m.col)
	var rec zkp.SpendRecord
	err := m.store.pool.QueryRow(ctx, query, be[:]).Scan(&rec.SubmissionID, &rec.TxSignature, &rec.SpentAtSlot)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, zkp.ErrMarkerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: reading %s: %w", m.table, err)
	}
	return &rec, nil
}
