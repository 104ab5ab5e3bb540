package zkp

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
)

// CircuitKind is the closed set of circuits the relayer knows how to
// verify (§4.4). Unlike the teacher's CircuitManager, which compiled and
// proved circuits at runtime, the relayer only ever verifies — proving
// happens client-side — so there is no registration path: a verifying
// key is either loaded for a CircuitKind at startup, or that kind is
// unusable for the lifetime of the process.
type CircuitKind uint8

const (
	CircuitDeposit CircuitKind = iota
	CircuitTransfer
	CircuitWithdraw
	CircuitMerkle
	CircuitNullifier
	CircuitZkStream
	CircuitZkSplit
	CircuitZkCondition
	CircuitAudit
)

func (k CircuitKind) String() string {
	switch k {
	case CircuitDeposit:
		return "deposit"
	case CircuitTransfer:
		return "transfer"
	case CircuitWithdraw:
		return "withdraw"
	case CircuitMerkle:
		return "merkle"
	case CircuitNullifier:
		return "nullifier"
	case CircuitZkStream:
		return "zk_stream"
	case CircuitZkSplit:
		return "zk_split"
	case CircuitZkCondition:
		return "zk_condition"
	case CircuitAudit:
		return "audit"
	default:
		return "unknown"
	}
}

// circuitKinds is the fixed enumeration order used when a caller needs to
// iterate every kind (startup VK loading, admin CLI status reporting).
var circuitKinds = []CircuitKind{
	CircuitDeposit, CircuitTransfer, CircuitWithdraw, CircuitMerkle,
	CircuitNullifier, CircuitZkStream, CircuitZkSplit, CircuitZkCondition, CircuitAudit,
}

// Verifier errors (§7).
var (
	// ErrVerifierKeyMissing is server-visible: a circuit kind has no
	// loaded verifying key.
	ErrVerifierKeyMissing = errors.New("zkp: verifying key not loaded for circuit kind")
	// ErrInvalidProofBytesLength is client-visible.
	ErrInvalidProofBytesLength = errors.New("zkp: proof bytes are malformed or wrong length")
	// ErrInvalidPublicInputsLength is client-visible.
	ErrInvalidPublicInputsLength = errors.New("zkp: public input count does not match circuit kind")
)

// circuitSignalCount is the expected public-signal count per kind. These
// mirror the cipherpay circuit layouts (merkle root, nullifier(s),
// commitment(s), and any auxiliary public values); kept as a closed table
// rather than inferred from the verifying key so a malformed request is
// rejected before touching gnark at all.
var circuitSignalCount = map[CircuitKind]int{
	// new_commitment, owner_cp_pk, new_merkle_root, new_next_leaf_index,
	// amount, deposit_hash, old_merkle_root
	CircuitDeposit: 7,
	// out1, out2, nullifier, merkle_root_before, new_root_1, new_root_2,
	// new_next_leaf_index, enc_note_1_hash, enc_note_2_hash
	CircuitTransfer: 9,
	// nullifier, merkle_root, recipient_wallet_pubkey, amount, token_id
	CircuitWithdraw:    5,
	CircuitMerkle:      2, // leaf, root
	CircuitNullifier:   3, // nullifier, commitment, spending_key_hash
	CircuitZkStream:    4, // stream_id, rate, start_time, commitment
	CircuitZkSplit:     5, // in_commitment, out1, out2, out3, root
	CircuitZkCondition: 3, // commitment, condition_hash, root
	CircuitAudit:       4, // view_key_hash, commitment, root, auditor_id
}

// Groth16Proof is the wire form of a proof as submitted over HTTP:
// raw gnark-serialized bytes, opaque to everything except the Verifier.
type Groth16Proof []byte

// publicInputsCircuit is a minimal frontend.Circuit whose only purpose is
// to let gnark's witness builder serialize a flat list of public field
// elements in the same order the original proving circuit declared them.
// It is never compiled or proved, only used to shape a witness for
// groth16.Verify.
type publicInputsCircuit struct {
	Inputs []frontend.Variable `gnark:",public"`
}

func (c *publicInputsCircuit) Define(_ frontend.API) error { return nil }

// VerifyResult carries the verification outcome plus the latency the
// on-chain event pipeline and HTTP layer report in telemetry (§4.4).
type VerifyResult struct {
	Valid    bool
	Duration time.Duration
}

// Verifier holds the process's verifying keys, one per CircuitKind,
// loaded once at startup. It has no mutable state after construction, so
// it is safe to share across every request goroutine.
type Verifier struct {
	mu  sync.RWMutex
	vks map[CircuitKind]groth16.VerifyingKey
}

// NewVerifier constructs an empty Verifier; call LoadKey (or
// LoadKeysFromDir) before serving traffic.
func NewVerifier() *Verifier {
	return &Verifier{vks: make(map[CircuitKind]groth16.VerifyingKey)}
}

// LoadKey reads a single gnark-serialized verifying key from path and
// registers it for kind. A load failure here is meant to be fatal at
// startup (§4.4): the caller should abort the process rather than start
// serving requests with an incomplete verifier.
func (v *Verifier) LoadKey(kind CircuitKind, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("zkp: opening verifying key for %s: %w", kind, err)
	}
	defer f.Close()

	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(f); err != nil {
		return fmt.Errorf("zkp: parsing verifying key for %s: %w", kind, err)
	}

	v.mu.Lock()
	v.vks[kind] = vk
	v.mu.Unlock()
	return nil
}

// LoadKeysFromDir loads every circuit kind's verifying key from dir,
// expecting files named "<kind>.vk" (e.g. "deposit.vk"). It returns an
// error naming the first missing or malformed key; the caller is
// expected to treat this as fatal.
func (v *Verifier) LoadKeysFromDir(dir string) error {
	for _, kind := range circuitKinds {
		path := filepath.Join(dir, kind.String()+".vk")
		if err := v.LoadKey(kind, path); err != nil {
			return err
		}
	}
	return nil
}

// Ready reports whether every known circuit kind has a loaded key, used
// by the admin CLI's "vk verify" subcommand. The HTTP health endpoint
// does not consult it.
func (v *Verifier) Ready() (bool, []CircuitKind) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var missing []CircuitKind
	for _, kind := range circuitKinds {
		if _, ok := v.vks[kind]; !ok {
			missing = append(missing, kind)
		}
	}
	return len(missing) == 0, missing
}

// Verify checks a Groth16 proof against the public signals for the given
// circuit kind (§4.4). Returns (false, nil) for a well-formed proof that
// simply fails verification — a client-visible InvalidProof, not a server
// error — and a non-nil error only for malformed input or missing
// infrastructure.
func (v *Verifier) Verify(kind CircuitKind, proof Groth16Proof, publicSignals []Fe) (VerifyResult, error) {
	start := time.Now()

	expected, known := circuitSignalCount[kind]
	if !known {
		return VerifyResult{}, fmt.Errorf("zkp: unknown circuit kind %d", kind)
	}
	if len(publicSignals) != expected {
		return VerifyResult{}, ErrInvalidPublicInputsLength
	}
	if len(proof) == 0 {
		return VerifyResult{}, ErrInvalidProofBytesLength
	}

	v.mu.RLock()
	vk, ok := v.vks[kind]
	v.mu.RUnlock()
	if !ok {
		return VerifyResult{}, ErrVerifierKeyMissing
	}

	gProof := groth16.NewProof(ecc.BN254)
	if _, err := gProof.ReadFrom(bytes.NewReader(proof)); err != nil {
		return VerifyResult{}, fmt.Errorf("%w: %v", ErrInvalidProofBytesLength, err)
	}

	assignment := &publicInputsCircuit{Inputs: make([]frontend.Variable, len(publicSignals))}
	for i, s := range publicSignals {
		assignment.Inputs[i] = new(big.Int).Set(s.BigInt())
	}
	publicWitness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return VerifyResult{}, fmt.Errorf("zkp: building public witness: %w", err)
	}

	err = groth16.Verify(gProof, vk, publicWitness)
	result := VerifyResult{Valid: err == nil, Duration: time.Since(start)}
	if err != nil {
		return result, nil
	}
	return result, nil
}
