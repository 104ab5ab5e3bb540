package zkp

import (
	"context"
	"errors"
	"sync"
)

// Merkle store errors (§7: server-visible unless noted).
var (
	// ErrIndexOutOfRange is client-visible (maps to InvalidInput): a
	// deposit at 2^depth is rejected (§8 boundary).
	ErrIndexOutOfRange = errors.New("zkp: leaf index out of range for tree depth")
	// ErrCommitmentNotFound is client-visible.
	ErrCommitmentNotFound    = errors.New("zkp: commitment not present in tree")
	ErrNextIndexMismatch     = errors.New("zkp: event index does not match tree next_index")
	ErrOldRootMismatch       = errors.New("zkp: event old_root does not match tree root")
	ErrRecomputedRootMismatch = errors.New("zkp: recomputed root does not match event new_root")
	ErrTreeNotFound          = errors.New("zkp: tree_id not initialized")
	ErrTreeAlreadyExists     = errors.New("zkp: tree_id already initialized")
	ErrInvalidDepth          = errors.New("zkp: tree depth must be in [1,32]")
)

// MaxRoots is the default capacity of the recent-roots ring (§3). The
// design allows 64 or 128; this relayer fixes 64, matching scenario 4 in
// §8 ("MAX_ROOTS=64").
const MaxRoots = 64

// MerklePath is a sibling path from a leaf to the root (§3, §4.3).
type MerklePath struct {
	// Siblings[k] is the sibling at layer k (0-indexed from the leaf).
	Siblings []Fe
	// Bits[k] is true if the path node at layer k is a right child.
	Bits []bool
	// LeafIndex is the position the path was computed for.
	LeafIndex uint64
}

// Fold recomputes the root by folding leaf up through the path, used both
// by the store's internal consistency checks and by tests exercising the
// round-trip law in §8 ("path_by_commitment returns a path whose fold
// equals the committed root").
func (p *MerklePath) Fold(hasher *Hasher, leaf Fe) Fe {
	cur := leaf
	for i, sib := range p.Siblings {
		if p.Bits[i] {
			cur = hasher.H2(sib, cur)
		} else {
			cur = hasher.H2(cur, sib)
		}
	}
	return cur
}

// SiblingLookup resolves the sibling hash at a given layer and index.
// layer 0 addresses the leaf level; layers 1..depth address internal
// nodes. ok=false means absent (caller falls back to the zero-hash for
// that layer) — this is how "missing nodes[layer][i] rows are
// indistinguishable from zeros[layer]" (§8) is implemented: the store
// simply never materializes zero rows.
type SiblingLookup func(layer uint8, index uint64) (Fe, bool, error)

// WalkPath computes the sibling path to `index` in a tree of the given
// depth, consulting `sibling` for each layer and falling back to the
// zero-hash cache when a node is absent.
func WalkPath(zeros *ZeroCache, depth uint8, index uint64, sibling SiblingLookup) (*MerklePath, error) {
	if index >= uint64(1)<<depth {
		return nil, ErrIndexOutOfRange
	}

	siblings := make([]Fe, depth)
	bits := make([]bool, depth)
	cur := index
	for layer := uint8(0); layer < depth; layer++ {
		siblingIndex := cur ^ 1
		s, ok, err := sibling(layer, siblingIndex)
		if err != nil {
			return nil, err
		}
		if !ok {
			s = zeros.At(int(layer))
		}
		siblings[layer] = s
		bits[layer] = cur%2 == 1
		cur /= 2
	}

	return &MerklePath{Siblings: siblings, Bits: bits, LeafIndex: index}, nil
}

// NodeWrite is one (layer, index) -> value assignment produced by
// appending a leaf; layer is in 1..depth (internal nodes only — the leaf
// write itself is the caller's responsibility since leaves and nodes are
// typically distinct tables/maps).
type NodeWrite struct {
	Layer uint8
	Index uint64
	Value Fe
}

// AppendResult is the outcome of walking a single leaf append to the root,
// per §4.3 step 4.
type AppendResult struct {
	NewRoot    Fe
	NodeWrites []NodeWrite
}

// AppendLeaf recomputes the path from `index` to the root after writing
// `leaf` at the leaf layer, exactly per §4.3 step 4: "Walk layers 1..=depth:
// read current sibling ..., compute parent = h2(left, right) using the
// child orientation derived from index bits, write nodes[layer][parent_index]".
//
// It does not itself persist anything — callers (the store implementations)
// apply NodeWrites and the leaf write inside their own transaction, which is
// what lets this function stay pure and unit-testable without a database.
func AppendLeaf(hasher *Hasher, zeros *ZeroCache, depth uint8, index uint64, leaf Fe, sibling SiblingLookup) (*AppendResult, error) {
	if index >= uint64(1)<<depth {
		return nil, ErrIndexOutOfRange
	}

	writes := make([]NodeWrite, 0, depth)
	currentHash := leaf
	currentIndex := index

	for layer := uint8(1); layer <= depth; layer++ {
		siblingIndex := currentIndex ^ 1
		siblingHash, ok, err := sibling(layer-1, siblingIndex)
		if err != nil {
			return nil, err
		}
		if !ok {
			siblingHash = zeros.At(int(layer - 1))
		}

		var parent Fe
		if currentIndex%2 == 0 {
			parent = hasher.H2(currentHash, siblingHash)
		} else {
			parent = hasher.H2(siblingHash, currentHash)
		}

		currentIndex /= 2
		currentHash = parent
		writes = append(writes, NodeWrite{Layer: layer, Index: currentIndex, Value: parent})
	}

	return &AppendResult{NewRoot: currentHash, NodeWrites: writes}, nil
}

// MerkleStore is the canonical Merkle store contract (§4.3): a relational
// (or, for tests, in-memory) backend keyed by tree_id, exposing read paths
// and a single transactional writer per append.
//
// Implementations MUST serialize ApplyDepositFromEvent/
// ApplyTransferFromEvent per tree_id (e.g. via a row lock on the meta row)
// — §4.3's "Concurrency" paragraph and §5 depend on it.
type MerkleStore interface {
	// InitializeTree performs the administrative lifecycle init (§3
	// "Lifecycle"): writes depth and sets root = zeros[depth], next_index
	// = 0. Fails with ErrTreeAlreadyExists if tree_id is already present.
	InitializeTree(ctx context.Context, treeID uint32, depth uint8) error

	Depth(ctx context.Context, treeID uint32) (uint8, error)
	Root(ctx context.Context, treeID uint32) (Fe, error)
	RootAndNextIndex(ctx context.Context, treeID uint32) (Fe, uint64, error)

	// RecentRoots returns the ring buffer contents, oldest first, used to
	// validate a submission's old_merkle_root against recent history
	// (§7 UnknownMerkleRoot, §8 scenario 4).
	RecentRoots(ctx context.Context, treeID uint32) ([]Fe, error)

	PathByIndex(ctx context.Context, treeID uint32, index uint64) (*MerklePath, error)
	PathByCommitment(ctx context.Context, treeID uint32, commitment Fe) (*MerklePath, uint64, error)

	// ApplyDepositFromEvent is the sole writer for deposits (§4.3
	// algorithm). Returns ErrNextIndexMismatch / ErrOldRootMismatch /
	// ErrRecomputedRootMismatch on the respective invariant violations;
	// on any error the transaction is rolled back and the tree is left
	// untouched.
	ApplyDepositFromEvent(ctx context.Context, treeID uint32, index uint64, commitment, oldRoot, newRoot Fe) error

	// ApplyTransferFromEvent applies the two sequential appends from a
	// transfer event atomically: the same algorithm run twice, at
	// startIndex then startIndex+1, checking newRoot1 after the first
	// append and newRoot2 after the second.
	ApplyTransferFromEvent(ctx context.Context, treeID uint32, startIndex uint64, out1, out2, oldRoot, newRoot1, newRoot2 Fe) error

	// Snapshot runs fn against a single consistent point-in-time view of
	// treeID, so a caller composing several reads into one response (the
	// prepare endpoints, §4.8) never observes a root from before a
	// concurrent append alongside a path computed from after it.
	Snapshot(ctx context.Context, treeID uint32, fn func(SnapshotReader) error) error
}

// SnapshotReader is the read subset of MerkleStore bound to one
// Snapshot call; it must not be retained past the fn call it was
// passed to.
type SnapshotReader interface {
	RootAndNextIndex(ctx context.Context, treeID uint32) (Fe, uint64, error)
	Root(ctx context.Context, treeID uint32) (Fe, error)
	PathByIndex(ctx context.Context, treeID uint32, index uint64) (*MerklePath, error)
	PathByCommitment(ctx context.Context, treeID uint32, commitment Fe) (*MerklePath, uint64, error)
}

// MemoryMerkleStore is an in-process MerkleStore used by tests. It does
// not need a row lock — a single mutex
// serializes the whole store, which is strictly stronger than the
// per-tree contract requires.
type MemoryMerkleStore struct {
	hasher *Hasher
	zeros  *ZeroCache

	mu    sync.Mutex
	trees map[uint32]*memTree
}

type memTree struct {
	depth         uint8
	nextIndex     uint64
	root          Fe
	leaves        map[uint64]Fe
	nodes         map[uint8]map[uint64]Fe
	commitToIndex map[Fe]uint64
	roots         []Fe // ring, oldest first, capped at MaxRoots
}

// NewMemoryMerkleStore creates an empty in-memory store.
func NewMemoryMerkleStore(hasher *Hasher, zeros *ZeroCache) *MemoryMerkleStore {
	return &MemoryMerkleStore{
		hasher: hasher,
		zeros:  zeros,
		trees:  make(map[uint32]*memTree),
	}
}

func (s *MemoryMerkleStore) tree(treeID uint32) (*memTree, error) {
	t, ok := s.trees[treeID]
	if !ok {
		return nil, ErrTreeNotFound
	}
	return t, nil
}

func (s *MemoryMerkleStore) InitializeTree(_ context.Context, treeID uint32, depth uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if depth < 1 || depth > 32 {
		return ErrInvalidDepth
	}
	if _, exists := s.trees[treeID]; exists {
		return ErrTreeAlreadyExists
	}

	s.trees[treeID] = &memTree{
		depth:         depth,
		root:          s.zeros.At(int(depth)),
		leaves:        make(map[uint64]Fe),
		nodes:         make(map[uint8]map[uint64]Fe),
		commitToIndex: make(map[Fe]uint64),
	}
	return nil
}

func (s *MemoryMerkleStore) Depth(_ context.Context, treeID uint32) (uint8, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.tree(treeID)
	if err != nil {
		return 0, err
	}
	return t.depth, nil
}

func (s *MemoryMerkleStore) Root(ctx context.Context, treeID uint32) (Fe, error) {
	root, _, err := s.RootAndNextIndex(ctx, treeID)
	return root, err
}

func (s *MemoryMerkleStore) RootAndNextIndex(_ context.Context, treeID uint32) (Fe, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rootAndNextIndexLocked(treeID)
}

func (s *MemoryMerkleStore) rootAndNextIndexLocked(treeID uint32) (Fe, uint64, error) {
	t, err := s.tree(treeID)
	if err != nil {
		return Fe{}, 0, err
	}
	return t.root, t.nextIndex, nil
}

func (s *MemoryMerkleStore) RecentRoots(_ context.Context, treeID uint32) ([]Fe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.tree(treeID)
	if err != nil {
		return nil, err
	}
	out := make([]Fe, len(t.roots))
	copy(out, t.roots)
	return out, nil
}

func (s *MemoryMerkleStore) sibling(t *memTree, layer uint8, index uint64) (Fe, bool, error) {
	if layer == 0 {
		v, ok := t.leaves[index]
		return v, ok, nil
	}
	byIndex, ok := t.nodes[layer]
	if !ok {
		return Fe{}, false, nil
	}
	v, ok := byIndex[index]
	return v, ok, nil
}

func (s *MemoryMerkleStore) PathByIndex(_ context.Context, treeID uint32, index uint64) (*MerklePath, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pathByIndexLocked(treeID, index)
}

func (s *MemoryMerkleStore) pathByIndexLocked(treeID uint32, index uint64) (*MerklePath, error) {
	t, err := s.tree(treeID)
	if err != nil {
		return nil, err
	}
	if index > t.nextIndex {
		return nil, ErrIndexOutOfRange
	}
	return WalkPath(s.zeros, t.depth, index, func(layer uint8, idx uint64) (Fe, bool, error) {
		return s.sibling(t, layer, idx)
	})
}

func (s *MemoryMerkleStore) PathByCommitment(_ context.Context, treeID uint32, commitment Fe) (*MerklePath, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pathByCommitmentLocked(treeID, commitment)
}

func (s *MemoryMerkleStore) pathByCommitmentLocked(treeID uint32, commitment Fe) (*MerklePath, uint64, error) {
	t, err := s.tree(treeID)
	if err != nil {
		return nil, 0, err
	}
	idx, ok := t.commitToIndex[commitment]
	if !ok {
		return nil, 0, ErrCommitmentNotFound
	}
	path, err := s.pathByIndexLocked(treeID, idx)
	return path, idx, err
}

// Snapshot holds the store's single mutex for the duration of fn, so the
// reads fn issues through the returned SnapshotReader can't interleave
// with a concurrent append.
func (s *MemoryMerkleStore) Snapshot(_ context.Context, treeID uint32, fn func(SnapshotReader) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.tree(treeID); err != nil {
		return err
	}
	return fn(&memorySnapshot{s: s, treeID: treeID})
}

// memorySnapshot is the SnapshotReader bound to one locked Snapshot call;
// its methods assume s.mu is already held and call the *Locked variants
// directly rather than the public, self-locking ones.
type memorySnapshot struct {
	s      *MemoryMerkleStore
	treeID uint32
}

func (m *memorySnapshot) RootAndNextIndex(_ context.Context, treeID uint32) (Fe, uint64, error) {
	return m.s.rootAndNextIndexLocked(treeID)
}

func (m *memorySnapshot) Root(ctx context.Context, treeID uint32) (Fe, error) {
	root, _, err := m.RootAndNextIndex(ctx, treeID)
	return root, err
}

func (m *memorySnapshot) PathByIndex(_ context.Context, treeID uint32, index uint64) (*MerklePath, error) {
	return m.s.pathByIndexLocked(treeID, index)
}

func (m *memorySnapshot) PathByCommitment(_ context.Context, treeID uint32, commitment Fe) (*MerklePath, uint64, error) {
	return m.s.pathByCommitmentLocked(treeID, commitment)
}

func (s *MemoryMerkleStore) pushRoot(t *memTree, root Fe) {
	t.roots = append(t.roots, root)
	if len(t.roots) > MaxRoots {
		t.roots = t.roots[len(t.roots)-MaxRoots:]
	}
}

func (s *MemoryMerkleStore) appendOne(t *memTree, index uint64, leaf Fe, expectedOldRoot, expectedNewRoot Fe) error {
	if t.nextIndex != index {
		return ErrNextIndexMismatch
	}
	if !t.root.Equal(expectedOldRoot) {
		return ErrOldRootMismatch
	}

	result, err := AppendLeaf(s.hasher, s.zeros, t.depth, index, leaf, func(layer uint8, idx uint64) (Fe, bool, error) {
		return s.sibling(t, layer, idx)
	})
	if err != nil {
		return err
	}
	if !result.NewRoot.Equal(expectedNewRoot) {
		return ErrRecomputedRootMismatch
	}

	t.leaves[index] = leaf
	t.commitToIndex[leaf] = index
	for _, w := range result.NodeWrites {
		if t.nodes[w.Layer] == nil {
			t.nodes[w.Layer] = make(map[uint64]Fe)
		}
		t.nodes[w.Layer][w.Index] = w.Value
	}
	t.nextIndex = index + 1
	t.root = result.NewRoot
	s.pushRoot(t, result.NewRoot)
	return nil
}

func (s *MemoryMerkleStore) ApplyDepositFromEvent(_ context.Context, treeID uint32, index uint64, commitment, oldRoot, newRoot Fe) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.tree(treeID)
	if err != nil {
		return err
	}
	return s.appendOne(t, index, commitment, oldRoot, newRoot)
}

func (s *MemoryMerkleStore) ApplyTransferFromEvent(_ context.Context, treeID uint32, startIndex uint64, out1, out2, oldRoot, newRoot1, newRoot2 Fe) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.tree(treeID)
	if err != nil {
		return err
	}
	if err := s.appendOne(t, startIndex, out1, oldRoot, newRoot1); err != nil {
		return err
	}
	return s.appendOne(t, startIndex+1, out2, newRoot1, newRoot2)
}
