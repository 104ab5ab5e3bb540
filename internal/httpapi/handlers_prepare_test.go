package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/cipherpay/relayer/internal/zkp"
)

func newTestServer(t *testing.T, treeID uint32, depth uint8) *Server {
	t.Helper()
	hasher, err := zkp.NewHasher()
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	zeros := zkp.NewZeroCache(hasher)
	store := zkp.NewMemoryMerkleStore(hasher, zeros)
	if err := store.InitializeTree(context.Background(), treeID, depth); err != nil {
		t.Fatalf("InitializeTree: %v", err)
	}
	log := logrus.NewEntry(logrus.New())
	return NewServer(store, nil, treeID, log)
}

func TestHandleHealth_ReturnsOK(t *testing.T) {
	srv := newTestServer(t, 1, 10)
	req := httptest.NewRequest("GET", "/api/v1/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandlePrepareDeposit_ReturnsFreshTreePath(t *testing.T) {
	srv := newTestServer(t, 1, 10)

	body, _ := json.Marshal(prepareDepositRequest{Commitment: "42"})
	req := httptest.NewRequest("POST", "/api/v1/prepare/deposit", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp prepareDepositResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.NextLeafIndex != 0 {
		t.Fatalf("NextLeafIndex = %d, want 0", resp.NextLeafIndex)
	}
	if len(resp.InPathElements) != 10 {
		t.Fatalf("got %d path elements, want 10", len(resp.InPathElements))
	}
}

func TestHandlePrepareDeposit_RejectsMalformedCommitment(t *testing.T) {
	srv := newTestServer(t, 1, 10)

	body, _ := json.Marshal(prepareDepositRequest{Commitment: "not-a-number"})
	req := httptest.NewRequest("POST", "/api/v1/prepare/deposit", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandlePrepareWithdraw_UnknownCommitmentReturns404(t *testing.T) {
	srv := newTestServer(t, 2, 10)

	body, _ := json.Marshal(prepareWithdrawRequest{SpendCommitment: "7"})
	req := httptest.NewRequest("POST", "/api/v1/prepare/withdraw", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != 404 {
		t.Fatalf("status = %d, want 404, body = %s", rec.Code, rec.Body.String())
	}
}
