package relayer

import (
	"testing"

	"github.com/cipherpay/relayer/internal/zkp"
)

func TestContainsRoot(t *testing.T) {
	roots := []zkp.Fe{zkp.FeFromUint64(1), zkp.FeFromUint64(2), zkp.FeFromUint64(3)}
	if !containsRoot(roots, zkp.FeFromUint64(2)) {
		t.Fatalf("containsRoot missed a present root")
	}
	if containsRoot(roots, zkp.FeFromUint64(99)) {
		t.Fatalf("containsRoot matched an absent root")
	}
	if containsRoot(nil, zkp.FeFromUint64(1)) {
		t.Fatalf("containsRoot matched against an empty ring")
	}
}

func TestBindSubset_MatchesSelectedIndices(t *testing.T) {
	signals := []zkp.Fe{zkp.FeFromUint64(10), zkp.FeFromUint64(20), zkp.FeFromUint64(30)}
	expected := []zkp.Fe{zkp.FeFromUint64(10), zkp.FeFromUint64(30)}
	if !bindSubset(signals, expected, 0, 2) {
		t.Fatalf("bindSubset rejected a matching subset")
	}
}

func TestBindSubset_RejectsMismatch(t *testing.T) {
	signals := []zkp.Fe{zkp.FeFromUint64(10), zkp.FeFromUint64(20)}
	expected := []zkp.Fe{zkp.FeFromUint64(999)}
	if bindSubset(signals, expected, 0) {
		t.Fatalf("bindSubset accepted a mismatched value")
	}
}

func TestBindSubset_RejectsIndexOutOfRange(t *testing.T) {
	signals := []zkp.Fe{zkp.FeFromUint64(10)}
	expected := []zkp.Fe{zkp.FeFromUint64(10)}
	if bindSubset(signals, expected, 5) {
		t.Fatalf("bindSubset accepted an out-of-range index")
	}
}

func TestBindSubset_RejectsLengthMismatch(t *testing.T) {
	if bindSubset([]zkp.Fe{zkp.FeFromUint64(1)}, []zkp.Fe{zkp.FeFromUint64(1), zkp.FeFromUint64(2)}, 0) {
		t.Fatalf("bindSubset accepted mismatched indices/expected lengths")
	}
}
