package txmanager

import "testing"

func TestDerivePDA_Deterministic(t *testing.T) {
	var programID [32]byte
	for i := range programID {
		programID[i] = byte(i)
	}

	addr1, bump1, err := DerivePDA(programID, TreeAccountSeeds()...)
	if err != nil {
		t.Fatalf("DerivePDA: %v", err)
	}
	addr2, bump2, err := DerivePDA(programID, TreeAccountSeeds()...)
	if err != nil {
		t.Fatalf("DerivePDA: %v", err)
	}
	if addr1 != addr2 || bump1 != bump2 {
		t.Fatalf("DerivePDA is not deterministic for identical seeds")
	}

	rootAddr, _, err := DerivePDA(programID, RootCacheSeeds()...)
	if err != nil {
		t.Fatalf("DerivePDA(root_cache): %v", err)
	}
	if rootAddr == addr1 {
		t.Fatalf("distinct seed sets produced the same PDA")
	}
}

func TestVaultSeeds_DiffersByMint(t *testing.T) {
	native := VaultSeeds(nil)
	var mint [32]byte
	mint[0] = 0xAB
	withMint := VaultSeeds(&mint)
	if len(native) == len(withMint) {
		t.Fatalf("native and mint-scoped vault seeds should differ in shape")
	}
}
