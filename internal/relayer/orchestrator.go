package relayer

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/cipherpay/relayer/internal/txmanager"
	"github.com/cipherpay/relayer/internal/zkp"
)

// Orchestrator errors (§7, client-visible unless noted).
var (
	ErrPayloadBindingMismatch = errors.New("relayer: public signals do not match resolved values")
	ErrUnknownMerkleRoot      = errors.New("relayer: old_merkle_root is not in the recent-roots ring")
	ErrInvalidProof           = errors.New("relayer: proof failed verification")
)

// DepositRequest is the bound input for a deposit submission (§4.7, §6).
type DepositRequest struct {
	SubmissionID  string
	TreeID        uint32
	Proof         zkp.Groth16Proof
	PublicSignals []zkp.Fe // order: new_commitment, owner_cp_pk, new_merkle_root, new_next_leaf_index, amount, deposit_hash, old_merkle_root
	Commitment    zkp.Fe
	DepositHash   zkp.Fe
	OldRoot       zkp.Fe
	NewRoot       zkp.Fe
	TokenMint     [32]byte
}

// TransferRequest is the bound input for a transfer submission.
type TransferRequest struct {
	SubmissionID  string
	TreeID        uint32
	Proof         zkp.Groth16Proof
	PublicSignals []zkp.Fe // order: out1, out2, nullifier, merkle_root_before, new_root_1, new_root_2, new_next_leaf_index, enc_note_1_hash, enc_note_2_hash
	Out1          zkp.Fe
	Out2          zkp.Fe
	Nullifier     zkp.Fe
	OldRoot       zkp.Fe
	NewRoot1      zkp.Fe
	NewRoot2      zkp.Fe
	TokenMint     [32]byte
}

// WithdrawRequest is the bound input for a withdraw submission.
type WithdrawRequest struct {
	SubmissionID           string
	TreeID                 uint32
	Proof                  zkp.Groth16Proof
	PublicSignals          []zkp.Fe // order: nullifier, merkle_root, recipient_wallet_pubkey, amount, token_id
	Nullifier              zkp.Fe
	Root                   zkp.Fe
	RecipientHash          zkp.Fe
	Amount                 zkp.Fe
	TokenMint              [32]byte
	RecipientToken         [32]byte
	RecipientAccountExists bool
}

// Orchestrator drives every submission through the state machine in §4.9,
// wiring together the verifier, the Merkle mirror, the replay markers,
// the transaction builder, and the idempotency ledger. It holds no
// per-request state; one Orchestrator serves every request concurrently.
type Orchestrator struct {
	verifier    *zkp.Verifier
	tree        zkp.MerkleStore
	nullifiers  *zkp.NullifierSet
	deposits    *zkp.DepositMarkerSet
	builder     *txmanager.Builder
	ledger      Ledger
	log         *logrus.Entry
	maxAttempts int
}

// NewOrchestrator wires an Orchestrator from its collaborators.
func NewOrchestrator(verifier *zkp.Verifier, tree zkp.MerkleStore, nullifiers *zkp.NullifierSet, deposits *zkp.DepositMarkerSet, builder *txmanager.Builder, ledger Ledger, log *logrus.Entry) *Orchestrator {
	return &Orchestrator{
		verifier:    verifier,
		tree:        tree,
		nullifiers:  nullifiers,
		deposits:    deposits,
		builder:     builder,
		ledger:      ledger,
		log:         log,
		maxAttempts: 3,
	}
}

// SubmitDeposit drives one deposit submission end to end (§4.7).
func (o *Orchestrator) SubmitDeposit(ctx context.Context, req DepositRequest) (*Submission, error) {
	sub := &Submission{ID: req.SubmissionID, Kind: string(txmanager.KindDeposit), TreeID: req.TreeID, State: StateReceived}

	existing, ferr := o.fetchExisting(ctx, sub)
	if ferr != nil {
		return nil, ferr
	}
	if existing != nil {
		return existing, nil
	}

	used, err := o.deposits.IsUsed(ctx, req.DepositHash)
	if err != nil {
		return o.persistFailure(ctx, sub, "StoreUnavailable", err)
	}
	if used {
		rec, _ := o.deposits.Get(ctx, req.DepositHash)
		return o.replayOutcome(ctx, sub, rec, "DepositAlreadyUsed", errors.New("deposit hash already processed"))
	}
	sub.advance(StateValidated)

	// Prepare: read the current root and next_index, and accept the
	// caller's old root only if it is the current root or a recent one.
	// The new root is not re-derived here.
	root, nextIndex, err := o.tree.RootAndNextIndex(ctx, req.TreeID)
	if err != nil {
		return o.persistFailure(ctx, sub, "StoreUnavailable", err)
	}
	if !root.Equal(req.OldRoot) {
		recent, err := o.tree.RecentRoots(ctx, req.TreeID)
		if err != nil {
			return o.persistFailure(ctx, sub, "StoreUnavailable", err)
		}
		if !containsRoot(recent, req.OldRoot) {
			return o.persistFailure(ctx, sub, "UnknownMerkleRoot", ErrUnknownMerkleRoot)
		}
	}
	sub.advance(StatePrepared)

	// Bind: the request's resolved values must match the circuit's
	// declared public signal order exactly.
	expected := []zkp.Fe{req.Commitment, zkp.FeZero, req.NewRoot, zkp.FeFromUint64(nextIndex), zkp.FeZero, req.DepositHash, req.OldRoot}
	if !bindSubset(req.PublicSignals, expected, 0, 2, 3, 5, 6) {
		return o.persistFailure(ctx, sub, "PayloadBindingMismatch", ErrPayloadBindingMismatch)
	}
	sub.advance(StateBound)

	result, err := o.verifier.Verify(zkp.CircuitDeposit, req.Proof, req.PublicSignals)
	if err != nil {
		return o.persistFailure(ctx, sub, verifyErrKind(err), err)
	}
	if !result.Valid {
		return o.persistFailure(ctx, sub, "InvalidProof", ErrInvalidProof)
	}
	sub.advance(StateVerified)

	plan, err := o.builder.BuildDeposit(req.Proof, req.Commitment, req.OldRoot, req.NewRoot, req.DepositHash.BytesBE())
	if err != nil {
		return o.persistFailure(ctx, sub, "ChainUnavailable", err)
	}
	submitResult, err := o.builder.Submit(ctx, plan, o.maxAttempts, nil)
	if err != nil {
		sub.fail(StateSubmissionFailed, "ChainUnavailable", err.Error())
		_ = o.ledger.Update(ctx, sub)
		return sub, nil
	}
	sub.advance(StateSubmitted)
	sub.TxSignature = submitResult.TxSignature
	sub.advance(StateAcknowledged)

	if err := o.ledger.Update(ctx, sub); err != nil {
		o.log.WithError(err).Warn("relayer: updating submission ledger after deposit")
	}
	return sub, nil
}

// SubmitTransfer drives one transfer submission end to end (§4.7).
func (o *Orchestrator) SubmitTransfer(ctx context.Context, req TransferRequest) (*Submission, error) {
	sub := &Submission{ID: req.SubmissionID, Kind: string(txmanager.KindTransfer), TreeID: req.TreeID, State: StateReceived}

	existing, ferr := o.fetchExisting(ctx, sub)
	if ferr != nil {
		return nil, ferr
	}
	if existing != nil {
		return existing, nil
	}

	used, err := o.nullifiers.IsSpent(ctx, req.Nullifier)
	if err != nil {
		return o.persistFailure(ctx, sub, "StoreUnavailable", err)
	}
	if used {
		rec, _ := o.nullifiers.Get(ctx, req.Nullifier)
		return o.replayOutcome(ctx, sub, rec, "NullifierAlreadyUsed", errors.New("nullifier already spent"))
	}
	sub.advance(StateValidated)

	root, err := o.tree.Root(ctx, req.TreeID)
	if err != nil {
		return o.persistFailure(ctx, sub, "StoreUnavailable", err)
	}
	if !root.Equal(req.OldRoot) {
		recent, err := o.tree.RecentRoots(ctx, req.TreeID)
		if err != nil {
			return o.persistFailure(ctx, sub, "StoreUnavailable", err)
		}
		if !containsRoot(recent, req.OldRoot) {
			return o.persistFailure(ctx, sub, "UnknownMerkleRoot", ErrUnknownMerkleRoot)
		}
	}
	sub.advance(StatePrepared)

	expected := []zkp.Fe{req.Out1, req.Out2, req.Nullifier, req.OldRoot, req.NewRoot1, req.NewRoot2}
	if !bindSubset(req.PublicSignals, expected, 0, 1, 2, 3, 4, 5) {
		return o.persistFailure(ctx, sub, "PayloadBindingMismatch", ErrPayloadBindingMismatch)
	}
	sub.advance(StateBound)

	result, err := o.verifier.Verify(zkp.CircuitTransfer, req.Proof, req.PublicSignals)
	if err != nil {
		return o.persistFailure(ctx, sub, verifyErrKind(err), err)
	}
	if !result.Valid {
		return o.persistFailure(ctx, sub, "InvalidProof", ErrInvalidProof)
	}
	sub.advance(StateVerified)

	plan, err := o.builder.BuildTransfer(req.Proof, req.Nullifier, req.Out1, req.Out2, req.OldRoot, req.NewRoot1, req.NewRoot2, req.Nullifier.BytesBE())
	if err != nil {
		return o.persistFailure(ctx, sub, "ChainUnavailable", err)
	}
	submitResult, err := o.builder.Submit(ctx, plan, o.maxAttempts, nil)
	if err != nil {
		sub.fail(StateSubmissionFailed, "ChainUnavailable", err.Error())
		_ = o.ledger.Update(ctx, sub)
		return sub, nil
	}
	sub.advance(StateSubmitted)
	sub.TxSignature = submitResult.TxSignature
	sub.advance(StateAcknowledged)

	if err := o.ledger.Update(ctx, sub); err != nil {
		o.log.WithError(err).Warn("relayer: updating submission ledger after transfer")
	}
	return sub, nil
}

// SubmitWithdraw drives one withdraw submission end to end (§4.7).
func (o *Orchestrator) SubmitWithdraw(ctx context.Context, req WithdrawRequest) (*Submission, error) {
	sub := &Submission{ID: req.SubmissionID, Kind: string(txmanager.KindWithdraw), TreeID: req.TreeID, State: StateReceived}

	existing, ferr := o.fetchExisting(ctx, sub)
	if ferr != nil {
		return nil, ferr
	}
	if existing != nil {
		return existing, nil
	}

	used, err := o.nullifiers.IsSpent(ctx, req.Nullifier)
	if err != nil {
		return o.persistFailure(ctx, sub, "StoreUnavailable", err)
	}
	if used {
		rec, _ := o.nullifiers.Get(ctx, req.Nullifier)
		return o.replayOutcome(ctx, sub, rec, "NullifierAlreadyUsed", errors.New("nullifier already spent"))
	}
	sub.advance(StateValidated)

	root, err := o.tree.Root(ctx, req.TreeID)
	if err != nil {
		return o.persistFailure(ctx, sub, "StoreUnavailable", err)
	}
	if !root.Equal(req.Root) {
		recent, err := o.tree.RecentRoots(ctx, req.TreeID)
		if err != nil {
			return o.persistFailure(ctx, sub, "StoreUnavailable", err)
		}
		if !containsRoot(recent, req.Root) {
			return o.persistFailure(ctx, sub, "UnknownMerkleRoot", ErrUnknownMerkleRoot)
		}
	}
	sub.advance(StatePrepared)

	expected := []zkp.Fe{req.Nullifier, req.Root, req.RecipientHash, req.Amount}
	if !bindSubset(req.PublicSignals, expected, 0, 1, 2, 3) {
		return o.persistFailure(ctx, sub, "PayloadBindingMismatch", ErrPayloadBindingMismatch)
	}
	sub.advance(StateBound)

	result, err := o.verifier.Verify(zkp.CircuitWithdraw, req.Proof, req.PublicSignals)
	if err != nil {
		return o.persistFailure(ctx, sub, verifyErrKind(err), err)
	}
	if !result.Valid {
		return o.persistFailure(ctx, sub, "InvalidProof", ErrInvalidProof)
	}
	sub.advance(StateVerified)

	var mintPtr *[32]byte
	if req.TokenMint != ([32]byte{}) {
		mintPtr = &req.TokenMint
	}
	plan, err := o.builder.BuildWithdraw(req.Proof, req.Nullifier, req.RecipientHash, req.Amount, req.Root, req.Nullifier.BytesBE(), req.RecipientAccountExists, mintPtr)
	if err != nil {
		return o.persistFailure(ctx, sub, "ChainUnavailable", err)
	}
	submitResult, err := o.builder.Submit(ctx, plan, o.maxAttempts, nil)
	if err != nil {
		sub.fail(StateSubmissionFailed, "ChainUnavailable", err.Error())
		_ = o.ledger.Update(ctx, sub)
		return sub, nil
	}
	sub.advance(StateSubmitted)
	sub.TxSignature = submitResult.TxSignature
	sub.advance(StateAcknowledged)

	if err := o.ledger.Update(ctx, sub); err != nil {
		o.log.WithError(err).Warn("relayer: updating submission ledger after withdraw")
	}
	return sub, nil
}

// fetchExisting implements the idempotency contract: a submission id the
// ledger has already seen returns its recorded outcome instead of
// re-running the pipeline. Returns (nil, nil) when the id is genuinely new.
func (o *Orchestrator) fetchExisting(ctx context.Context, sub *Submission) (*Submission, error) {
	existing, err := o.ledger.Get(ctx, sub.ID)
	if err == nil {
		return existing, nil
	}
	if errors.Is(err, ErrSubmissionNotFound) {
		if cerr := o.ledger.Create(ctx, sub); cerr != nil && !errors.Is(cerr, ErrSubmissionAlreadyExists) {
			return nil, fmt.Errorf("relayer: recording submission: %w", cerr)
		}
		return nil, nil
	}
	return nil, fmt.Errorf("relayer: reading submission ledger: %w", err)
}

// replayOutcome handles a losing replay check (a deposit hash or
// nullifier already marked used): if the original SpendRecord is still
// available, the submission is reported Acknowledged with the
// previously recorded transaction signature rather than rejected, per
// §4.7's idempotency contract. A missing or unreadable record (should
// not happen in practice, since Has/IsSpent just returned true) falls
// back to an ordinary rejection.
func (o *Orchestrator) replayOutcome(ctx context.Context, sub *Submission, rec *zkp.SpendRecord, errKind string, cause error) (*Submission, error) {
	if rec == nil {
		return o.persistFailure(ctx, sub, errKind, cause)
	}
	sub.advance(StateAcknowledged)
	sub.TxSignature = rec.TxSignature
	if err := o.ledger.Update(ctx, sub); err != nil {
		o.log.WithError(err).Warn("relayer: updating submission ledger after replay")
	}
	return sub, nil
}

func (o *Orchestrator) persistFailure(ctx context.Context, sub *Submission, errKind string, cause error) (*Submission, error) {
	sub.fail(StateRejected, errKind, cause.Error())
	if err := o.ledger.Update(ctx, sub); err != nil {
		o.log.WithError(err).Warn("relayer: updating submission ledger after rejection")
	}
	return sub, nil
}

// verifyErrKind maps a Verify error to the client-visible error kind §7
// assigns it, the same distinctions internal/httpapi's statusFor draws:
// a malformed proof or public-signal slice is the caller's fault, while
// a missing verifying key is ours.
func verifyErrKind(err error) string {
	switch {
	case errors.Is(err, zkp.ErrInvalidProofBytesLength):
		return "InvalidProofBytesLength"
	case errors.Is(err, zkp.ErrInvalidPublicInputsLength):
		return "InvalidPublicInputsLength"
	default:
		return "VerifierKeyMissing"
	}
}

func containsRoot(roots []zkp.Fe, want zkp.Fe) bool {
	for _, r := range roots {
		if r.Equal(want) {
			return true
		}
	}
	return false
}

// bindSubset checks that signals[indices[i]] equals expected[i] for each
// i, implementing the §4.7 step-3 cross-check against a fixed subset of
// the circuit's full public-signal order (signals the relayer does not
// independently resolve, like owner_cp_pk or the encrypted-note hashes,
// are left unchecked here and trusted to the proof itself).
func bindSubset(signals []zkp.Fe, expected []zkp.Fe, indices ...int) bool {
	if len(indices) != len(expected) {
		return false
	}
	for i, idx := range indices {
		if idx >= len(signals) || !signals[idx].Equal(expected[i]) {
			return false
		}
	}
	return true
}
