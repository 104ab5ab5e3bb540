package txmanager

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cipherpay/relayer/internal/zkp"
)

// ProofWireSize is the fixed size of a serialized Groth16 proof as the
// on-chain program expects it (BN254: 2 G1 + 1 G2 point, uncompressed:
// 64 + 128 + 64 bytes).
const ProofWireSize = 256

// ErrProofWireSize is client-visible: the proof blob attached to a
// submission doesn't match the fixed on-chain layout.
var ErrProofWireSize = fmt.Errorf("txmanager: proof must be exactly %d bytes", ProofWireSize)

// ErrPublicInputsEmpty is server-visible: a program instruction was asked
// to encode zero public inputs, which never happens for any real circuit.
var ErrPublicInputsEmpty = errors.New("txmanager: no public inputs to encode")

// EncodeProgramInstructionData packs a verified proof and its public
// signals into the byte layout the on-chain program instruction expects:
// a one-byte instruction discriminant, the fixed 256-byte proof, a
// 2-byte little-endian public-input count, then each input as a 32-byte
// little-endian limb (§4.6/§4.7 public-input wire format).
func EncodeProgramInstructionData(discriminant byte, proof zkp.Groth16Proof, publicSignals []zkp.Fe) ([]byte, error) {
	if len(proof) != ProofWireSize {
		return nil, ErrProofWireSize
	}
	if len(publicSignals) == 0 {
		return nil, ErrPublicInputsEmpty
	}
	if len(publicSignals) > 0xffff {
		return nil, fmt.Errorf("txmanager: too many public inputs (%d)", len(publicSignals))
	}

	out := make([]byte, 0, 1+ProofWireSize+2+32*len(publicSignals))
	out = append(out, discriminant)
	out = append(out, proof...)

	countBuf := make([]byte, 2)
	binary.LittleEndian.PutUint16(countBuf, uint16(len(publicSignals)))
	out = append(out, countBuf...)

	for _, s := range publicSignals {
		le := s.BytesLE()
		out = append(out, le[:]...)
	}
	return out, nil
}

// DecodeProgramInstructionData is the inverse of EncodeProgramInstructionData,
// for inspecting a transaction's instruction data. Only the package's
// round-trip test calls it; the backfiller and the admin CLI do not.
func DecodeProgramInstructionData(data []byte) (discriminant byte, proof zkp.Groth16Proof, publicSignals []zkp.Fe, err error) {
	const headerSize = 1 + ProofWireSize + 2
	if len(data) < headerSize {
		return 0, nil, nil, fmt.Errorf("txmanager: instruction data too short (%d bytes)", len(data))
	}

	discriminant = data[0]
	proof = append(zkp.Groth16Proof(nil), data[1:1+ProofWireSize]...)
	count := binary.LittleEndian.Uint16(data[1+ProofWireSize : headerSize])

	want := headerSize + 32*int(count)
	if len(data) != want {
		return 0, nil, nil, fmt.Errorf("txmanager: instruction data length %d does not match declared input count %d", len(data), count)
	}

	publicSignals = make([]zkp.Fe, count)
	for i := 0; i < int(count); i++ {
		var le zkp.FeLE
		copy(le[:], data[headerSize+32*i:headerSize+32*(i+1)])
		fe, err := zkp.FeFromLE(le)
		if err != nil {
			return 0, nil, nil, fmt.Errorf("txmanager: decoding public input %d: %w", i, err)
		}
		publicSignals[i] = fe
	}
	return discriminant, proof, publicSignals, nil
}
