package relayer

import (
	"context"
	"errors"
	"testing"
)

type fakeLedger struct {
	records map[string]*Submission
	creates int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{records: map[string]*Submission{}}
}

func (f *fakeLedger) Create(ctx context.Context, sub *Submission) error {
	f.creates++
	if _, ok := f.records[sub.ID]; ok {
		return ErrSubmissionAlreadyExists
	}
	cp := *sub
	f.records[sub.ID] = &cp
	return nil
}

func (f *fakeLedger) Get(ctx context.Context, id string) (*Submission, error) {
	sub, ok := f.records[id]
	if !ok {
		return nil, ErrSubmissionNotFound
	}
	return sub, nil
}

func (f *fakeLedger) Update(ctx context.Context, sub *Submission) error {
	cp := *sub
	f.records[sub.ID] = &cp
	return nil
}

func TestOrchestrator_FetchExisting_NewIDCreatesRecord(t *testing.T) {
	ledger := newFakeLedger()
	o := &Orchestrator{ledger: ledger}

	sub := &Submission{ID: "sub-1", State: StateReceived}
	existing, err := o.fetchExisting(context.Background(), sub)
	if err != nil {
		t.Fatalf("fetchExisting: %v", err)
	}
	if existing != nil {
		t.Fatalf("fetchExisting returned a record for a brand new submission id")
	}
	if ledger.creates != 1 {
		t.Fatalf("fetchExisting did not record the new submission")
	}
}

func TestOrchestrator_FetchExisting_KnownIDReturnsRecordedOutcome(t *testing.T) {
	ledger := newFakeLedger()
	recorded := &Submission{ID: "sub-2", State: StateAcknowledged, TxSignature: "abc123"}
	ledger.records["sub-2"] = recorded

	o := &Orchestrator{ledger: ledger}
	sub := &Submission{ID: "sub-2", State: StateReceived}

	existing, err := o.fetchExisting(context.Background(), sub)
	if err != nil {
		t.Fatalf("fetchExisting: %v", err)
	}
	if existing == nil || existing.TxSignature != "abc123" {
		t.Fatalf("fetchExisting did not return the previously recorded submission")
	}
}

type brokenLedger struct{ fakeLedger }

func (b *brokenLedger) Get(ctx context.Context, id string) (*Submission, error) {
	return nil, errors.New("connection refused")
}

func TestOrchestrator_FetchExisting_WrapsUnexpectedLedgerError(t *testing.T) {
	o := &Orchestrator{ledger: &brokenLedger{*newFakeLedger()}}
	_, err := o.fetchExisting(context.Background(), &Submission{ID: "sub-3"})
	if err == nil {
		t.Fatalf("fetchExisting swallowed an unexpected ledger error")
	}
}
