package storage

import (
	"testing"

	"github.com/cipherpay/relayer/internal/zkp"
)

func TestNullIfEmptyString(t *testing.T) {
	if got := nullIfEmptyString(""); got != nil {
		t.Fatalf("nullIfEmptyString(\"\") = %v, want nil", got)
	}
	if got := nullIfEmptyString("abc"); got != "abc" {
		t.Fatalf("nullIfEmptyString(\"abc\") = %v, want \"abc\"", got)
	}
}

func TestDerefOr(t *testing.T) {
	if got := derefOr(nil, "fallback"); got != "fallback" {
		t.Fatalf("derefOr(nil, ...) = %q, want fallback", got)
	}
	v := "present"
	if got := derefOr(&v, "fallback"); got != "present" {
		t.Fatalf("derefOr(&v, ...) = %q, want present", got)
	}
}

func TestDecodeFe_RoundTripsCanonicalBytes(t *testing.T) {
	want := zkp.FeFromUint64(12345)
	be := want.BytesBE()

	got, err := decodeFe(be[:])
	if err != nil {
		t.Fatalf("decodeFe: %v", err)
	}
	if !got.Equal(want) {
		t.Fatalf("decodeFe round trip mismatch")
	}
}

func TestDecodeFe_RejectsWrongLength(t *testing.T) {
	if _, err := decodeFe([]byte{0x01, 0x02}); err == nil {
		t.Fatalf("decodeFe accepted a short byte slice")
	}
}
