package zkp

import "testing"

func TestVerifier_RejectsWrongSignalCount(t *testing.T) {
	v := NewVerifier()
	_, err := v.Verify(CircuitDeposit, Groth16Proof{0x01}, []Fe{FeFromUint64(1)})
	if err != ErrInvalidPublicInputsLength {
		t.Fatalf("Verify with wrong signal count: got %v, want ErrInvalidPublicInputsLength", err)
	}
}

func TestVerifier_RejectsEmptyProof(t *testing.T) {
	v := NewVerifier()
	signals := make([]Fe, circuitSignalCount[CircuitDeposit])
	_, err := v.Verify(CircuitDeposit, Groth16Proof{}, signals)
	if err != ErrInvalidProofBytesLength {
		t.Fatalf("Verify with empty proof: got %v, want ErrInvalidProofBytesLength", err)
	}
}

func TestVerifier_RejectsMissingKey(t *testing.T) {
	v := NewVerifier()
	signals := make([]Fe, circuitSignalCount[CircuitDeposit])
	_, err := v.Verify(CircuitDeposit, Groth16Proof{0x01}, signals)
	if err != ErrVerifierKeyMissing {
		t.Fatalf("Verify with no loaded key: got %v, want ErrVerifierKeyMissing", err)
	}
}

func TestVerifier_ReadyReportsMissingKinds(t *testing.T) {
	v := NewVerifier()
	ready, missing := v.Ready()
	if ready {
		t.Fatalf("empty Verifier reported Ready")
	}
	if len(missing) != len(circuitKinds) {
		t.Fatalf("missing = %d kinds, want %d", len(missing), len(circuitKinds))
	}
}

func TestCircuitKind_String(t *testing.T) {
	cases := map[CircuitKind]string{
		CircuitDeposit:  "deposit",
		CircuitTransfer: "transfer",
		CircuitWithdraw: "withdraw",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Fatalf("%d.String() = %q, want %q", kind, got, want)
		}
	}
}
