// Package zkp implements the field, hash, Merkle and proof-verification
// primitives the relayer is built on: BN254 scalar field elements, the
// Poseidon hash, the canonical commitment tree, and Groth16 verification.
package zkp

import (
	"errors"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// ErrNotCanonical is returned when a 32-byte blob does not encode a value
// strictly less than the BN254 scalar field modulus.
var ErrNotCanonical = errors.New("zkp: value is not a canonical field element")

// ModulusDecimal is the BN254 scalar field modulus, reproduced here (rather
// than trusted only to gnark-crypto's internal constant) because the wire
// format's canonicality check is security-relevant and worth stating
// explicitly at the boundary.
const ModulusDecimal = "21888242871839275222246405745257275088548364400416034343698204186575808495617"

var modulus = mustModulus()

func mustModulus() *big.Int {
	m, ok := new(big.Int).SetString(ModulusDecimal, 10)
	if !ok {
		panic("zkp: invalid modulus constant")
	}
	return m
}

// Fe is a BN254 scalar field element. It is the unit of value the tree,
// the commitments, and the nullifiers are expressed in.
type Fe struct {
	e fr.Element
}

// FeZero is the additive identity.
var FeZero = Fe{}

// FeFromUint64 lifts a uint64 into the field.
func FeFromUint64(v uint64) Fe {
	var f Fe
	f.e.SetUint64(v)
	return f
}

// FeFromBigInt reduces an arbitrary big.Int into the field. Unlike the
// canonical wire decoders below, this never rejects input — it is for
// internal arithmetic, not for parsing untrusted bytes.
func FeFromBigInt(v *big.Int) Fe {
	var f Fe
	f.e.SetBigInt(v)
	return f
}

// BigInt returns the element's canonical representative in [0, p).
func (f Fe) BigInt() *big.Int {
	out := new(big.Int)
	f.e.BigInt(out)
	return out
}

// Equal reports whether two elements are the same residue.
func (f Fe) Equal(other Fe) bool {
	return f.e.Equal(&other.e)
}

// IsZero reports whether f is the additive identity.
func (f Fe) IsZero() bool {
	return f.e.IsZero()
}

// String renders the element as a decimal string, matching the API's
// decimal-string commitment/nullifier wire format (§6 of the spec).
func (f Fe) String() string {
	return f.BigInt().String()
}

// FeFromDecimalString parses a decimal-string field element as used on the
// `prepare/*` and `submit/*` HTTP bodies. Rejects values >= the modulus.
func FeFromDecimalString(s string) (Fe, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Fe{}, errors.New("zkp: malformed decimal field element")
	}
	if v.Sign() < 0 || v.Cmp(modulus) >= 0 {
		return Fe{}, ErrNotCanonical
	}
	return FeFromBigInt(v), nil
}

// FeBE is a big-endian 32-byte encoding of a field element: the canonical
// wire form for tree data (leaves, nodes, roots) and API responses.
type FeBE [32]byte

// FeLE is a little-endian 32-byte encoding: the wire form the on-chain
// verifier expects for public-input limbs.
type FeLE [32]byte

// BytesBE encodes f as 32-byte big-endian, the canonical form for tree
// storage and external interop (§3, §6).
func (f Fe) BytesBE() FeBE {
	bi := f.BigInt()
	var out FeBE
	bi.FillBytes(out[:])
	return out
}

// BytesLE encodes f as 32-byte little-endian limbs, the form the on-chain
// program's public inputs use.
func (f Fe) BytesLE() FeLE {
	be := f.BytesBE()
	var le FeLE
	for i := range be {
		le[i] = be[len(be)-1-i]
	}
	return le
}

// FeFromBE decodes a big-endian 32-byte blob, rejecting non-canonical
// (>= modulus) values.
func FeFromBE(b FeBE) (Fe, error) {
	bi := new(big.Int).SetBytes(b[:])
	if bi.Cmp(modulus) >= 0 {
		return Fe{}, ErrNotCanonical
	}
	return FeFromBigInt(bi), nil
}

// FeFromLE decodes a little-endian 32-byte blob (on-chain public-input
// limb form), rejecting non-canonical values.
func FeFromLE(b FeLE) (Fe, error) {
	var be FeBE
	for i := range b {
		be[i] = b[len(b)-1-i]
	}
	return FeFromBE(be)
}

// HexBE renders the big-endian encoding as a 0x-prefixed hex string, the
// form `in_path_elements` etc. use in the prepare responses.
func (f Fe) HexBE() string {
	b := f.BytesBE()
	return "0x" + hexEncode(b[:])
}

func hexEncode(b []byte) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexdigits[c>>4]
		out[i*2+1] = hexdigits[c&0xf]
	}
	return string(out)
}
