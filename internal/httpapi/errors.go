package httpapi

import (
	"errors"
	"net/http"

	"github.com/cipherpay/relayer/internal/relayer"
	"github.com/cipherpay/relayer/internal/zkp"
)

// statusFor maps an error to the HTTP status and client-visible error
// kind §7 assigns it. Unrecognized errors are treated as server faults.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, zkp.ErrIndexOutOfRange),
		errors.Is(err, zkp.ErrNotCanonical):
		return http.StatusBadRequest, "InvalidInput"
	case errors.Is(err, zkp.ErrCommitmentNotFound):
		return http.StatusNotFound, "CommitmentNotFound"
	case errors.Is(err, relayer.ErrInvalidProof):
		return http.StatusBadRequest, "InvalidProof"
	case errors.Is(err, relayer.ErrPayloadBindingMismatch):
		return http.StatusBadRequest, "PayloadBindingMismatch"
	case errors.Is(err, zkp.ErrDepositAlreadyUsed):
		return http.StatusConflict, "DepositAlreadyUsed"
	case errors.Is(err, zkp.ErrNullifierAlreadyUsed):
		return http.StatusConflict, "NullifierAlreadyUsed"
	case errors.Is(err, zkp.ErrInvalidProofBytesLength):
		return http.StatusBadRequest, "InvalidProofBytesLength"
	case errors.Is(err, zkp.ErrInvalidPublicInputsLength):
		return http.StatusBadRequest, "InvalidPublicInputsLength"
	case errors.Is(err, relayer.ErrUnknownMerkleRoot):
		return http.StatusBadRequest, "UnknownMerkleRoot"
	case errors.Is(err, zkp.ErrVerifierKeyMissing):
		return http.StatusInternalServerError, "VerifierKeyMissing"
	case errors.Is(err, zkp.ErrRecomputedRootMismatch):
		return http.StatusInternalServerError, "RecomputedRootMismatch"
	case errors.Is(err, zkp.ErrNextIndexMismatch):
		return http.StatusInternalServerError, "NextIndexMismatch"
	case errors.Is(err, zkp.ErrOldRootMismatch):
		return http.StatusInternalServerError, "OldRootMismatch"
	default:
		return http.StatusInternalServerError, "StoreUnavailable"
	}
}

// errKindStatus maps a Submission's recorded ErrorKind string (as set by
// the orchestrator, which doesn't always have a typed error value handy
// once persisted) to an HTTP status.
func errKindStatus(kind string) int {
	switch kind {
	case "InvalidInput", "PayloadBindingMismatch", "InvalidProof",
		"InvalidProofBytesLength", "InvalidPublicInputsLength", "UnknownMerkleRoot":
		return http.StatusBadRequest
	case "CommitmentNotFound":
		return http.StatusNotFound
	case "DepositAlreadyUsed", "NullifierAlreadyUsed":
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
