package zkp

import "testing"

func TestDeriveCommitment_Deterministic(t *testing.T) {
	hasher := mustHasher(t)
	sig := CommitmentSignals{
		Amount:     FeFromUint64(100),
		OwnerCPPk:  FeFromUint64(1),
		Randomness: FeFromUint64(42),
		TokenID:    FeFromUint64(0),
		Memo:       FeFromUint64(0),
	}
	a := DeriveCommitment(hasher, sig)
	b := DeriveCommitment(hasher, sig)
	if !a.Equal(b) {
		t.Fatalf("DeriveCommitment is not deterministic")
	}

	sig.Amount = FeFromUint64(101)
	c := DeriveCommitment(hasher, sig)
	if a.Equal(c) {
		t.Fatalf("DeriveCommitment collided across distinct values")
	}
}

func TestRandomFe_ProducesDistinctCanonicalValues(t *testing.T) {
	a, err := RandomFe()
	if err != nil {
		t.Fatalf("RandomFe: %v", err)
	}
	b, err := RandomFe()
	if err != nil {
		t.Fatalf("RandomFe: %v", err)
	}
	if a.Equal(b) {
		t.Fatalf("two RandomFe calls returned the same value (probability ~0)")
	}
	if _, err := FeFromBE(a.BytesBE()); err != nil {
		t.Fatalf("RandomFe produced a non-canonical value: %v", err)
	}
}
