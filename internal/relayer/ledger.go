package relayer

import (
	"context"
	"errors"
)

// ErrSubmissionNotFound is returned by Ledger.Get for a submission id the
// ledger has never seen; the orchestrator treats it as a new submission.
var ErrSubmissionNotFound = errors.New("relayer: submission not found")

// Ledger persists one Submission per client request, giving the HTTP
// layer idempotency: a client retrying the exact same submission id gets
// back the existing record instead of the relayer redoing (and possibly
// double-spending against) on-chain work.
type Ledger interface {
	Create(ctx context.Context, sub *Submission) error
	Get(ctx context.Context, id string) (*Submission, error)
	Update(ctx context.Context, sub *Submission) error
}

// ErrSubmissionAlreadyExists signals a Create call racing an existing
// record; callers treat this as "fetch and return the existing one"
// rather than an error.
var ErrSubmissionAlreadyExists = errors.New("relayer: submission already exists")
