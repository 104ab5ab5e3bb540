package zkp

import (
	"errors"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// ErrRandomScalarFailed is server-visible: the field's random sampler
// failed, which would indicate a broken entropy source.
var ErrRandomScalarFailed = errors.New("zkp: failed to sample random field element")

// Note describes a shielded note the relayer reasons about server-side:
// enough to validate a client's public signals against the tree and
// marker stores, never enough to spend it (the spending key and value
// blinder never reach this type).
type Note struct {
	Commitment Fe
	Index      uint64
	TreeID     uint32
}

// CommitmentSignals are the fields a Poseidon commitment binds, arity 5
// (§3, §9): commitment = H(amount, owner_cp_pk, randomness, token_id, memo).
type CommitmentSignals struct {
	Amount     Fe
	OwnerCPPk  Fe
	Randomness Fe
	TokenID    Fe
	Memo       Fe
}

// DeriveCommitment computes the note commitment the relayer expects the
// tree to contain at the index a deposit or transfer event claims.
func DeriveCommitment(hasher *Hasher, s CommitmentSignals) Fe {
	return hasher.H(s.Amount, s.OwnerCPPk, s.Randomness, s.TokenID, s.Memo)
}

// DerivePubkey computes a cipher-pay public key, arity 2 (§9):
// cipher_pay_pubkey = H2(wallet_pub, wallet_priv).
func DerivePubkey(hasher *Hasher, walletPub, walletPriv Fe) Fe {
	return hasher.H2(walletPub, walletPriv)
}

// RandomFe samples a uniformly random field element, used for blinders
// and salts that never need to be reproducible.
func RandomFe() (Fe, error) {
	var e fr.Element
	if _, err := e.SetRandom(); err != nil {
		return Fe{}, ErrRandomScalarFailed
	}
	return FeFromBigInt(e.BigInt(new(big.Int))), nil
}
