package zkp

import (
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/poseidon2"
)

// Hasher is the process-wide Poseidon-over-BN254 context. It carries no
// mutable state of its own — each call builds a fresh Merkle-Damgard
// sponge from poseidon2.NewMerkleDamgardHasher — and exists as a named
// singleton so callers depend on an injected value rather than an
// ambient package function, per the design note on avoiding globals (§9).
type Hasher struct{}

var (
	hasherOnce sync.Once
	hasherInst *Hasher
	hasherErr  error
)

// NewHasher returns the process-wide Poseidon context, building it exactly
// once. A Poseidon initialization failure is fatal — the caller is expected
// to abort startup (§4.1: "Fails only if the underlying library cannot be
// initialized (fatal, at startup)").
func NewHasher() (*Hasher, error) {
	hasherOnce.Do(func() {
		// gnark-crypto's poseidon2 implementation has no explicit init
		// step, but we still probe it once here so a broken build
		// (e.g. incompatible round-constant table) fails at startup
		// rather than on the first request.
		defer func() {
			if r := recover(); r != nil {
				hasherErr = errPoseidonInit(r)
			}
		}()
		h := poseidon2.NewMerkleDamgardHasher()
		h.Write(make([]byte, fr.Bytes))
		_ = h.Sum(nil)
		hasherInst = &Hasher{}
	})
	return hasherInst, hasherErr
}

func errPoseidonInit(r interface{}) error {
	return &poseidonInitError{r}
}

type poseidonInitError struct{ cause interface{} }

func (e *poseidonInitError) Error() string {
	return "zkp: poseidon hash library failed to initialize"
}

// H2 is the arity-2 Poseidon hash used for tree nodes: H2(a, b) =
// hash(&[a, b]) (§4.1).
func (h *Hasher) H2(a, b Fe) Fe {
	return h.H(a, b)
}

// H is the variadic Poseidon hash used for commitments (arity 5),
// nullifiers (arity 3), cipher-pay pubkeys (arity 2), and deposit hashes
// (arity 3) (§4.1, §3). It builds a fresh Merkle-Damgard sponge per call
// and feeds each input's canonical big-endian encoding to it, matching
// the real gnark-crypto poseidon2 API (hash.Hash-shaped: Write then Sum).
func (h *Hasher) H(xs ...Fe) Fe {
	sponge := poseidon2.NewMerkleDamgardHasher()
	for _, x := range xs {
		be := x.e.Bytes()
		sponge.Write(be[:])
	}
	digest := sponge.Sum(nil)

	var be FeBE
	copy(be[:], digest)
	// The sponge's output is already a reduced field element's canonical
	// encoding; FeFromBE only re-validates that invariant.
	fe, err := FeFromBE(be)
	if err != nil {
		// Unreachable unless gnark-crypto's poseidon2 stops returning a
		// reduced digest; treat as a library contract violation.
		panic("zkp: poseidon digest was not a canonical field element: " + err.Error())
	}
	return fe
}

// ZeroCache precomputes and memoizes the zero-hash ladder used as the
// default value for absent tree nodes and leaves (§4.2):
// zeros[0] = 0, zeros[i] = H2(zeros[i-1], zeros[i-1]).
type ZeroCache struct {
	mu     sync.Mutex
	hasher *Hasher
	layers []Fe // layers[i] is the empty-subtree root at height i
}

// NewZeroCache creates an empty, lazily-populated zero-hash cache.
func NewZeroCache(hasher *Hasher) *ZeroCache {
	return &ZeroCache{
		hasher: hasher,
		layers: []Fe{FeZero},
	}
}

// Zeros returns zeros[0..d] inclusive, extending and memoizing the cache
// as needed. The slice returned is a private copy; callers may not mutate
// the cache through it.
func (z *ZeroCache) Zeros(d int) []Fe {
	z.mu.Lock()
	defer z.mu.Unlock()

	for len(z.layers) <= d {
		prev := z.layers[len(z.layers)-1]
		z.layers = append(z.layers, z.hasher.H2(prev, prev))
	}

	out := make([]Fe, d+1)
	copy(out, z.layers[:d+1])
	return out
}

// At returns the single zero-hash at layer i (memoizing through the
// cache), equivalent to Zeros(i)[i] but avoiding the full-slice copy.
func (z *ZeroCache) At(i int) Fe {
	return z.Zeros(i)[i]
}
