package txmanager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/cipherpay/relayer/internal/chain"
	"github.com/cipherpay/relayer/internal/zkp"
)

// AccountMeta mirrors a Solana-style transaction account reference: a
// pubkey plus the signer/writable flags the runtime needs to lock it.
type AccountMeta struct {
	Pubkey     [32]byte
	IsSigner   bool
	IsWritable bool
}

// Instruction is one program call within a transaction: the program id,
// the accounts it touches, and its opaque instruction data.
type Instruction struct {
	ProgramID [32]byte
	Accounts  []AccountMeta
	Data      []byte
}

// Instruction discriminants for the program's submit entrypoints. These
// are the first byte of each instruction's data, matching the on-chain
// program's dispatch table.
const (
	DiscriminantDeposit  byte = 1
	DiscriminantTransfer byte = 2
	DiscriminantWithdraw byte = 3
)

// SubmissionKind names which of the three proof kinds a Plan carries,
// distinct from zkp.CircuitKind because a transfer plan always pairs a
// Transfer proof with the Merkle tree's current root accounts, never a
// bare circuit kind on its own.
type SubmissionKind string

const (
	KindDeposit  SubmissionKind = "deposit"
	KindTransfer SubmissionKind = "transfer"
	KindWithdraw SubmissionKind = "withdraw"
)

// ErrUnknownSubmissionKind is server-visible: a Plan was requested for a
// kind the builder doesn't know how to assemble.
var ErrUnknownSubmissionKind = errors.New("txmanager: unknown submission kind")

// Plan is the two-stage transaction a verified submission needs (§4.6,
// §4.7): an optional Setup stage and the Program stage that always runs.
// The builders put exactly one instruction, the program instruction, in
// Program; Setup holds only the recipient token-account creation a
// withdraw adds when that account is missing. No memo, token-transfer,
// native-token-wrap, root-cache-init or compute-budget instruction is
// built; the priority fee travels in the wire header instead.
type Plan struct {
	Setup   []Instruction
	Program []Instruction
}

// Builder assembles Plans and submits them through a chain.Client,
// retrying with a bumped priority fee on any send error, up to the
// caller's attempt limit; it does not tell transient errors apart from
// permanent ones. It holds no per-request
// state, so one Builder is shared across every submission.
type Builder struct {
	client    *chain.Client
	programID [32]byte
	cushion   *FundingCushion
}

// NewBuilder constructs a Builder bound to one program id and chain client.
func NewBuilder(client *chain.Client, programID [32]byte, cushion *FundingCushion) *Builder {
	return &Builder{client: client, programID: programID, cushion: cushion}
}

// BuildDeposit assembles the program-stage instruction for a verified
// deposit: one instruction carrying the proof, the new commitment, and
// the pre/post roots, writing into the tree and root-cache PDAs.
func (b *Builder) BuildDeposit(proof zkp.Groth16Proof, newCommitment, oldRoot, newRoot zkp.Fe, depositHashBE [32]byte) (Plan, error) {
	data, err := EncodeProgramInstructionData(DiscriminantDeposit, proof, []zkp.Fe{newCommitment, oldRoot, newRoot})
	if err != nil {
		return Plan{}, err
	}

	treeAddr, _, err := DerivePDA(b.programID, TreeAccountSeeds()...)
	if err != nil {
		return Plan{}, fmt.Errorf("txmanager: deriving tree PDA: %w", err)
	}
	rootCacheAddr, _, err := DerivePDA(b.programID, RootCacheSeeds()...)
	if err != nil {
		return Plan{}, fmt.Errorf("txmanager: deriving root-cache PDA: %w", err)
	}
	markerAddr, _, err := DerivePDA(b.programID, DepositMarkerSeeds(depositHashBE)...)
	if err != nil {
		return Plan{}, fmt.Errorf("txmanager: deriving deposit-marker PDA: %w", err)
	}

	ix := Instruction{
		ProgramID: b.programID,
		Accounts: []AccountMeta{
			{Pubkey: treeAddr, IsWritable: true},
			{Pubkey: rootCacheAddr, IsWritable: true},
			{Pubkey: markerAddr, IsWritable: true},
		},
		Data: data,
	}
	return Plan{Program: []Instruction{ix}}, nil
}

// BuildTransfer assembles the program-stage instruction for a verified
// transfer: nullifier plus the two output commitments and the
// pre/post-insertion roots.
func (b *Builder) BuildTransfer(proof zkp.Groth16Proof, nullifier, out1, out2, oldRoot, newRoot1, newRoot2 zkp.Fe, nullifierBE [32]byte) (Plan, error) {
	data, err := EncodeProgramInstructionData(DiscriminantTransfer, proof,
		[]zkp.Fe{nullifier, out1, out2, oldRoot, newRoot1, newRoot2})
	if err != nil {
		return Plan{}, err
	}

	treeAddr, _, err := DerivePDA(b.programID, TreeAccountSeeds()...)
	if err != nil {
		return Plan{}, fmt.Errorf("txmanager: deriving tree PDA: %w", err)
	}
	rootCacheAddr, _, err := DerivePDA(b.programID, RootCacheSeeds()...)
	if err != nil {
		return Plan{}, fmt.Errorf("txmanager: deriving root-cache PDA: %w", err)
	}
	nullifierAddr, _, err := DerivePDA(b.programID, NullifierMarkerSeeds(nullifierBE)...)
	if err != nil {
		return Plan{}, fmt.Errorf("txmanager: deriving nullifier PDA: %w", err)
	}

	ix := Instruction{
		ProgramID: b.programID,
		Accounts: []AccountMeta{
			{Pubkey: treeAddr, IsWritable: true},
			{Pubkey: rootCacheAddr, IsWritable: true},
			{Pubkey: nullifierAddr, IsWritable: true},
		},
		Data: data,
	}
	return Plan{Program: []Instruction{ix}}, nil
}

// BuildWithdraw assembles the program-stage instruction for a verified
// withdraw, plus a Setup instruction the first time a recipient's token
// account doesn't yet exist (the teacher's pattern of separating
// one-time account bootstrapping from the recurring program call).
func (b *Builder) BuildWithdraw(proof zkp.Groth16Proof, nullifier, recipientHash, amount, oldRoot zkp.Fe, nullifierBE [32]byte, recipientTokenAccountExists bool, vaultMint *[32]byte) (Plan, error) {
	data, err := EncodeProgramInstructionData(DiscriminantWithdraw, proof,
		[]zkp.Fe{nullifier, recipientHash, amount, oldRoot})
	if err != nil {
		return Plan{}, err
	}

	nullifierAddr, _, err := DerivePDA(b.programID, NullifierMarkerSeeds(nullifierBE)...)
	if err != nil {
		return Plan{}, fmt.Errorf("txmanager: deriving nullifier PDA: %w", err)
	}
	vaultAddr, _, err := DerivePDA(b.programID, VaultSeeds(vaultMint)...)
	if err != nil {
		return Plan{}, fmt.Errorf("txmanager: deriving vault PDA: %w", err)
	}

	plan := Plan{
		Program: []Instruction{{
			ProgramID: b.programID,
			Accounts: []AccountMeta{
				{Pubkey: nullifierAddr, IsWritable: true},
				{Pubkey: vaultAddr, IsWritable: true},
			},
			Data: data,
		}},
	}
	if !recipientTokenAccountExists {
		plan.Setup = append(plan.Setup, Instruction{
			ProgramID: b.programID,
			Accounts:  []AccountMeta{{Pubkey: vaultAddr, IsWritable: true}},
			Data:      []byte{0}, // create-associated-token-account discriminant
		})
	}
	return plan, nil
}

// SubmitResult is what a successful on-chain submission reports back to
// the orchestrator for ledger persistence.
type SubmitResult struct {
	TxSignature string
	PriorityFee uint64
	Attempt     int
}

// ErrSubmissionGaveUp is client-visible (maps to SubmissionFailed): every
// retry attempt was exhausted without the chain accepting the transaction.
var ErrSubmissionGaveUp = errors.New("txmanager: submission retries exhausted")

// Submit serializes and sends a Plan's instructions, bumping the
// priority fee on each retry via the FundingCushion and backing off
// between attempts (same escalate-then-give-up shape as the chain
// watcher's reconnect loop, bounded here since a client is waiting on
// the HTTP response).
func (b *Builder) Submit(ctx context.Context, plan Plan, maxAttempts int, encode func(Plan, uint64) ([]byte, error)) (SubmitResult, error) {
	if encode == nil {
		encode = EncodeWireTransaction
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 0

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		fee := b.cushion.CurrentFee()
		if attempt > 0 {
			fee = b.cushion.BumpedFee(attempt)
		}

		rawTx, err := encode(plan, fee)
		if err != nil {
			return SubmitResult{}, fmt.Errorf("txmanager: encoding transaction: %w", err)
		}

		sig, err := b.client.SendRawTransaction(ctx, rawTx, "base64")
		if err == nil {
			b.cushion.Observe(fee)
			return SubmitResult{TxSignature: sig, PriorityFee: fee, Attempt: attempt}, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return SubmitResult{}, ctx.Err()
		case <-time.After(bo.NextBackOff()):
		}
	}
	return SubmitResult{}, fmt.Errorf("%w: %v", ErrSubmissionGaveUp, lastErr)
}
