package zkp

import "testing"

func TestFe_BigEndianRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 42, 1 << 40} {
		fe := FeFromUint64(v)
		decoded, err := FeFromBE(fe.BytesBE())
		if err != nil {
			t.Fatalf("FeFromBE(%d): %v", v, err)
		}
		if !decoded.Equal(fe) {
			t.Fatalf("BE round trip mismatch for %d", v)
		}
	}
}

func TestFe_LittleEndianRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 42, 1 << 40} {
		fe := FeFromUint64(v)
		decoded, err := FeFromLE(fe.BytesLE())
		if err != nil {
			t.Fatalf("FeFromLE(%d): %v", v, err)
		}
		if !decoded.Equal(fe) {
			t.Fatalf("LE round trip mismatch for %d", v)
		}
	}
}

func TestFeFromBE_RejectsNonCanonical(t *testing.T) {
	var blob FeBE
	for i := range blob {
		blob[i] = 0xff
	}
	if _, err := FeFromBE(blob); err != ErrNotCanonical {
		t.Fatalf("FeFromBE(all-0xff): got %v, want ErrNotCanonical", err)
	}
}

func TestFeFromDecimalString_RoundTrip(t *testing.T) {
	fe := FeFromUint64(123456789)
	decoded, err := FeFromDecimalString(fe.String())
	if err != nil {
		t.Fatalf("FeFromDecimalString: %v", err)
	}
	if !decoded.Equal(fe) {
		t.Fatalf("decimal round trip mismatch")
	}
}

func TestFeFromDecimalString_RejectsModulusOrAbove(t *testing.T) {
	if _, err := FeFromDecimalString(ModulusDecimal); err != ErrNotCanonical {
		t.Fatalf("FeFromDecimalString(modulus): got %v, want ErrNotCanonical", err)
	}
}
