package zkp

import (
	"context"
	"errors"
	"sync"
)

// Nullifier/deposit-marker errors (§7).
var (
	// ErrNullifierAlreadyUsed is client-visible.
	ErrNullifierAlreadyUsed = errors.New("zkp: nullifier already spent")
	// ErrDepositAlreadyUsed is client-visible.
	ErrDepositAlreadyUsed = errors.New("zkp: deposit hash already used")
	ErrMarkerNotFound     = errors.New("zkp: marker not found")
)

// SpendRecord is what the store keeps for a consumed nullifier or deposit
// hash: which submission consumed it, so a benign replay of the same
// submission can be told apart from an actual double-spend attempt (§8,
// idempotent replay).
type SpendRecord struct {
	SubmissionID string
	TxSignature  string
	SpentAtSlot  uint64
}

// MarkerStore is the persistence contract shared by the nullifier set and
// the deposit-marker set: both are "has this value been consumed, and by
// what" lookups keyed by a single field element, differing only in which
// table backs them (§3: nullifiers, deposit_markers). Mark takes the
// caller's alreadyUsed error so a losing race on insert reports the
// table-specific conflict (ErrNullifierAlreadyUsed vs
// ErrDepositAlreadyUsed) rather than one hardcoded sentinel.
type MarkerStore interface {
	Has(ctx context.Context, value Fe) (bool, error)
	Mark(ctx context.Context, value Fe, record SpendRecord, alreadyUsed error) error
	Get(ctx context.Context, value Fe) (*SpendRecord, error)
}

// markerSet is the shared in-process cache + store wrapper underlying both
// NullifierSet and DepositMarkerSet. It is unexported: the two public
// types exist so callers can't accidentally check a nullifier against the
// deposit-marker table or vice versa.
type markerSet struct {
	mu    sync.RWMutex
	cache map[Fe]struct{}
	store MarkerStore
}

func newMarkerSet(store MarkerStore) *markerSet {
	return &markerSet{cache: make(map[Fe]struct{}), store: store}
}

func (m *markerSet) isSpent(ctx context.Context, value Fe) (bool, error) {
	m.mu.RLock()
	_, cached := m.cache[value]
	m.mu.RUnlock()
	if cached {
		return true, nil
	}
	return m.store.Has(ctx, value)
}

func (m *markerSet) mark(ctx context.Context, value Fe, record SpendRecord, alreadyUsed error) error {
	spent, err := m.isSpent(ctx, value)
	if err != nil {
		return err
	}
	if spent {
		return alreadyUsed
	}
	if err := m.store.Mark(ctx, value, record, alreadyUsed); err != nil {
		return err
	}
	m.mu.Lock()
	m.cache[value] = struct{}{}
	m.mu.Unlock()
	return nil
}

func (m *markerSet) get(ctx context.Context, value Fe) (*SpendRecord, error) {
	return m.store.Get(ctx, value)
}

func (m *markerSet) batchCheck(ctx context.Context, values []Fe) ([]bool, error) {
	out := make([]bool, len(values))
	for i, v := range values {
		spent, err := m.isSpent(ctx, v)
		if err != nil {
			return nil, err
		}
		out[i] = spent
	}
	return out, nil
}

// NullifierSet tracks spent note nullifiers, preventing a shielded note
// from being consumed twice (§4.2, §3 nullifiers table).
type NullifierSet struct{ inner *markerSet }

// NewNullifierSet wraps a MarkerStore backed by the nullifiers table.
func NewNullifierSet(store MarkerStore) *NullifierSet {
	return &NullifierSet{inner: newMarkerSet(store)}
}

func (ns *NullifierSet) IsSpent(ctx context.Context, nullifier Fe) (bool, error) {
	return ns.inner.isSpent(ctx, nullifier)
}

func (ns *NullifierSet) MarkSpent(ctx context.Context, nullifier Fe, record SpendRecord) error {
	return ns.inner.mark(ctx, nullifier, record, ErrNullifierAlreadyUsed)
}

func (ns *NullifierSet) BatchCheck(ctx context.Context, nullifiers []Fe) ([]bool, error) {
	return ns.inner.batchCheck(ctx, nullifiers)
}

// Get returns the SpendRecord a spent nullifier was marked with, so a
// replayed submission can surface the original transaction signature
// instead of a bare rejection (§4.7 idempotency).
func (ns *NullifierSet) Get(ctx context.Context, nullifier Fe) (*SpendRecord, error) {
	return ns.inner.get(ctx, nullifier)
}

// DepositMarkerSet tracks deposit hashes that have already been relayed
// on-chain, the deposit-side analogue of NullifierSet (§3 deposit_markers
// table). A deposit hash binds a specific (owner_cp_pk, amount, nonce)
// tuple (see DeriveDepositHash) to one-time use so a client cannot replay
// the same deposit proof against the program twice.
type DepositMarkerSet struct{ inner *markerSet }

func NewDepositMarkerSet(store MarkerStore) *DepositMarkerSet {
	return &DepositMarkerSet{inner: newMarkerSet(store)}
}

func (ds *DepositMarkerSet) IsUsed(ctx context.Context, depositHash Fe) (bool, error) {
	return ds.inner.isSpent(ctx, depositHash)
}

func (ds *DepositMarkerSet) MarkUsed(ctx context.Context, depositHash Fe, record SpendRecord) error {
	return ds.inner.mark(ctx, depositHash, record, ErrDepositAlreadyUsed)
}

func (ds *DepositMarkerSet) BatchCheck(ctx context.Context, depositHashes []Fe) ([]bool, error) {
	return ds.inner.batchCheck(ctx, depositHashes)
}

// Get returns the SpendRecord a used deposit hash was marked with, so a
// replayed submission can surface the original transaction signature
// instead of a bare rejection (§4.7 idempotency).
func (ds *DepositMarkerSet) Get(ctx context.Context, depositHash Fe) (*SpendRecord, error) {
	return ds.inner.get(ctx, depositHash)
}

// DeriveNullifier computes nullifier = H(cipher_pay_pubkey, randomness,
// token_id), the arity-3 Poseidon derivation shared by transfer and
// withdraw (§3, §9).
func DeriveNullifier(hasher *Hasher, cipherPayPubkey, randomness, tokenID Fe) Fe {
	return hasher.H(cipherPayPubkey, randomness, tokenID)
}

// DeriveDepositHash computes deposit_hash = H(owner_cp_pk, amount, nonce),
// the arity-3 derivation binding a deposit's public parameters to a
// single use (§3, §9). Depositor-bound uniqueness comes from `nonce`,
// which the client is expected to generate fresh per deposit.
func DeriveDepositHash(hasher *Hasher, ownerCPPk, amount, nonce Fe) Fe {
	return hasher.H(ownerCPPk, amount, nonce)
}

// InMemoryMarkerStore is a MarkerStore used by tests; one instance backs either a
// NullifierSet or a DepositMarkerSet depending on which table it is
// constructed to stand in for.
type InMemoryMarkerStore struct {
	mu      sync.RWMutex
	entries map[Fe]SpendRecord
}

func NewInMemoryMarkerStore() *InMemoryMarkerStore {
	return &InMemoryMarkerStore{entries: make(map[Fe]SpendRecord)}
}

func (s *InMemoryMarkerStore) Has(_ context.Context, value Fe) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[value]
	return ok, nil
}

func (s *InMemoryMarkerStore) Mark(_ context.Context, value Fe, record SpendRecord, alreadyUsed error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[value]; exists {
		return alreadyUsed
	}
	s.entries[value] = record
	return nil
}

func (s *InMemoryMarkerStore) Get(_ context.Context, value Fe) (*SpendRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.entries[value]
	if !ok {
		return nil, ErrMarkerNotFound
	}
	return &rec, nil
}

func (s *InMemoryMarkerStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
