package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/cipherpay/relayer/internal/relayer"
)

// LedgerStore implements relayer.Ledger over the submissions table.
type LedgerStore struct {
	store *Store
}

// NewLedgerStore wraps a Store as a relayer.Ledger.
func NewLedgerStore(store *Store) *LedgerStore {
	return &LedgerStore{store: store}
}

func (l *LedgerStore) Create(ctx context.Context, sub *relayer.Submission) error {
	tag, err := l.store.pool.Exec(ctx,
		`INSERT INTO submissions (submission_id, kind, state, tree_id, tx_signature, error_kind, error_message)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (submission_id) DO NOTHING`,
		sub.ID, sub.Kind, string(sub.State), sub.TreeID, nullIfEmptyString(sub.TxSignature),
		nullIfEmptyString(sub.ErrorKind), nullIfEmptyString(sub.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("storage: creating submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return relayer.ErrSubmissionAlreadyExists
	}
	return nil
}

func (l *LedgerStore) Get(ctx context.Context, id string) (*relayer.Submission, error) {
	var sub relayer.Submission
	var txSig, errKind, errMsg *string
	err := l.store.pool.QueryRow(ctx,
		`SELECT submission_id, kind, state, tree_id, tx_signature, error_kind, error_message, created_at, updated_at
		 FROM submissions WHERE submission_id=$1`,
		id,
	).Scan(&sub.ID, &sub.Kind, &sub.State, &sub.TreeID, &txSig, &errKind, &errMsg, &sub.CreatedAt, &sub.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, relayer.ErrSubmissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: reading submission: %w", err)
	}
	sub.TxSignature = derefOr(txSig, "")
	sub.ErrorKind = derefOr(errKind, "")
	sub.ErrorMessage = derefOr(errMsg, "")
	return &sub, nil
}

func (l *LedgerStore) Update(ctx context.Context, sub *relayer.Submission) error {
	_, err := l.store.pool.Exec(ctx,
		`UPDATE submissions SET state=$1, tx_signature=$2, error_kind=$3, error_message=$4, updated_at=now()
		 WHERE submission_id=$5`,
		string(sub.State), nullIfEmptyString(sub.TxSignature),
		nullIfEmptyString(sub.ErrorKind), nullIfEmptyString(sub.ErrorMessage), sub.ID,
	)
	if err != nil {
		return fmt.Errorf("storage: updating submission: %w", err)
	}
	return nil
}

func nullIfEmptyString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
