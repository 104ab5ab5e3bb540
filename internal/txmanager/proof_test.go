package txmanager

import (
	"bytes"
	"testing"

	"github.com/cipherpay/relayer/internal/zkp"
)

func TestEncodeDecodeProgramInstructionData_RoundTrip(t *testing.T) {
	proof := make(zkp.Groth16Proof, ProofWireSize)
	for i := range proof {
		proof[i] = byte(i)
	}
	signals := []zkp.Fe{zkp.FeFromUint64(1), zkp.FeFromUint64(2), zkp.FeFromUint64(3)}

	data, err := EncodeProgramInstructionData(DiscriminantDeposit, proof, signals)
	if err != nil {
		t.Fatalf("EncodeProgramInstructionData: %v", err)
	}

	discriminant, decodedProof, decodedSignals, err := DecodeProgramInstructionData(data)
	if err != nil {
		t.Fatalf("DecodeProgramInstructionData: %v", err)
	}
	if discriminant != DiscriminantDeposit {
		t.Fatalf("discriminant = %d, want %d", discriminant, DiscriminantDeposit)
	}
	if !bytes.Equal(decodedProof, proof) {
		t.Fatalf("decoded proof does not match original")
	}
	if len(decodedSignals) != len(signals) {
		t.Fatalf("decoded %d signals, want %d", len(decodedSignals), len(signals))
	}
	for i, s := range signals {
		if !decodedSignals[i].Equal(s) {
			t.Fatalf("signal[%d] = %s, want %s", i, decodedSignals[i], s)
		}
	}
}

func TestEncodeProgramInstructionData_RejectsWrongProofSize(t *testing.T) {
	_, err := EncodeProgramInstructionData(DiscriminantDeposit, zkp.Groth16Proof{0x01}, []zkp.Fe{zkp.FeFromUint64(1)})
	if err != ErrProofWireSize {
		t.Fatalf("got %v, want ErrProofWireSize", err)
	}
}

func TestEncodeProgramInstructionData_RejectsEmptySignals(t *testing.T) {
	proof := make(zkp.Groth16Proof, ProofWireSize)
	_, err := EncodeProgramInstructionData(DiscriminantDeposit, proof, nil)
	if err != ErrPublicInputsEmpty {
		t.Fatalf("got %v, want ErrPublicInputsEmpty", err)
	}
}
