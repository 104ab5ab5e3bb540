package zkp

import "fmt"

// Auxiliary circuit kinds beyond the core deposit/transfer/withdraw path
// (§4.4): streaming payments, multi-way splits, conditional releases, and
// third-party audit views. Each is still verify-only — the relayer never
// builds a witness for these, it only checks a proof the client already
// produced — but each has a distinct public-signal shape, so requests are
// validated against that shape before a CircuitKind dispatch reaches the
// Verifier.

// StreamSignals are the public inputs to a zk_stream proof: a commitment
// to a continuously-vesting note plus the parameters a recipient needs to
// claim against it without revealing the underlying schedule.
type StreamSignals struct {
	StreamID   Fe
	Rate       Fe
	StartTime  Fe
	Commitment Fe
}

func (s StreamSignals) toSlice() []Fe { return []Fe{s.StreamID, s.Rate, s.StartTime, s.Commitment} }

// SplitSignals are the public inputs to a zk_split proof: one input
// commitment proven equal in value to the sum of three output
// commitments, anchored to a tree root.
type SplitSignals struct {
	InCommitment Fe
	Out1         Fe
	Out2         Fe
	Out3         Fe
	Root         Fe
}

func (s SplitSignals) toSlice() []Fe {
	return []Fe{s.InCommitment, s.Out1, s.Out2, s.Out3, s.Root}
}

// ConditionSignals are the public inputs to a zk_condition proof: a note
// may only be spent once an external condition (encoded as a hash the
// circuit constrains against) is satisfied.
type ConditionSignals struct {
	Commitment    Fe
	ConditionHash Fe
	Root          Fe
}

func (s ConditionSignals) toSlice() []Fe { return []Fe{s.Commitment, s.ConditionHash, s.Root} }

// AuditSignals are the public inputs to an audit proof: a holder proves a
// commitment opens under a specific viewing key, without revealing the
// spending key, for a designated auditor.
type AuditSignals struct {
	ViewKeyHash Fe
	Commitment  Fe
	Root        Fe
	AuditorID   Fe
}

func (s AuditSignals) toSlice() []Fe { return []Fe{s.ViewKeyHash, s.Commitment, s.Root, s.AuditorID} }

// VerifyStream, VerifySplit, VerifyCondition, and VerifyAudit are thin,
// type-safe wrappers over Verifier.Verify for the auxiliary circuit
// kinds: they exist so a handler can pass a typed signal struct instead
// of assembling a []Fe in the right order by hand.

func (v *Verifier) VerifyStream(proof Groth16Proof, signals StreamSignals) (VerifyResult, error) {
	return v.Verify(CircuitZkStream, proof, signals.toSlice())
}

func (v *Verifier) VerifySplit(proof Groth16Proof, signals SplitSignals) (VerifyResult, error) {
	return v.Verify(CircuitZkSplit, proof, signals.toSlice())
}

func (v *Verifier) VerifyCondition(proof Groth16Proof, signals ConditionSignals) (VerifyResult, error) {
	return v.Verify(CircuitZkCondition, proof, signals.toSlice())
}

func (v *Verifier) VerifyAudit(proof Groth16Proof, signals AuditSignals) (VerifyResult, error) {
	return v.Verify(CircuitAudit, proof, signals.toSlice())
}

// describeCircuit renders a one-line description of a circuit kind's
// public signals, in the order circuitSignalCount lists them. Nothing in
// the repository calls it.
func describeCircuit(kind CircuitKind) string {
	switch kind {
	case CircuitDeposit:
		return "new_commitment, owner_cp_pk, new_merkle_root, new_next_leaf_index, amount, deposit_hash, old_merkle_root"
	case CircuitTransfer:
		return "out1, out2, nullifier, merkle_root_before, new_root_1, new_root_2, new_next_leaf_index, enc_note_1_hash, enc_note_2_hash"
	case CircuitWithdraw:
		return "nullifier, merkle_root, recipient_wallet_pubkey, amount, token_id"
	case CircuitMerkle:
		return "leaf, root"
	case CircuitNullifier:
		return "nullifier, commitment, spending_key_hash"
	case CircuitZkStream:
		return "stream_id, rate, start_time, commitment"
	case CircuitZkSplit:
		return "in_commitment, out1, out2, out3, root"
	case CircuitZkCondition:
		return "commitment, condition_hash, root"
	case CircuitAudit:
		return "view_key_hash, commitment, root, auditor_id"
	default:
		return fmt.Sprintf("unknown(%d)", kind)
	}
}
