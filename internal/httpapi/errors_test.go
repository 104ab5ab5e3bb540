package httpapi

import (
	"errors"
	"net/http"
	"testing"

	"github.com/cipherpay/relayer/internal/relayer"
	"github.com/cipherpay/relayer/internal/zkp"
)

func TestStatusFor_MapsKnownErrors(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
		wantKind   string
	}{
		{zkp.ErrIndexOutOfRange, http.StatusBadRequest, "InvalidInput"},
		{zkp.ErrCommitmentNotFound, http.StatusNotFound, "CommitmentNotFound"},
		{relayer.ErrInvalidProof, http.StatusBadRequest, "InvalidProof"},
		{relayer.ErrPayloadBindingMismatch, http.StatusBadRequest, "PayloadBindingMismatch"},
		{zkp.ErrDepositAlreadyUsed, http.StatusConflict, "DepositAlreadyUsed"},
		{zkp.ErrNullifierAlreadyUsed, http.StatusConflict, "NullifierAlreadyUsed"},
		{relayer.ErrUnknownMerkleRoot, http.StatusBadRequest, "UnknownMerkleRoot"},
		{zkp.ErrVerifierKeyMissing, http.StatusInternalServerError, "VerifierKeyMissing"},
		{errors.New("boom"), http.StatusInternalServerError, "StoreUnavailable"},
	}
	for _, tc := range cases {
		status, kind := statusFor(tc.err)
		if status != tc.wantStatus || kind != tc.wantKind {
			t.Errorf("statusFor(%v) = (%d, %q), want (%d, %q)", tc.err, status, kind, tc.wantStatus, tc.wantKind)
		}
	}
}

func TestErrKindStatus(t *testing.T) {
	cases := map[string]int{
		"InvalidInput":         http.StatusBadRequest,
		"CommitmentNotFound":   http.StatusNotFound,
		"DepositAlreadyUsed":   http.StatusConflict,
		"NullifierAlreadyUsed": http.StatusConflict,
		"ChainUnavailable":     http.StatusInternalServerError,
		"":                     http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := errKindStatus(kind); got != want {
			t.Errorf("errKindStatus(%q) = %d, want %d", kind, got, want)
		}
	}
}
