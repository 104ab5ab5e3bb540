package httpapi

import (
	"errors"
	"net/http"

	"github.com/cipherpay/relayer/internal/relayer"
)

func (s *Server) handlePrepareDeposit(w http.ResponseWriter, r *http.Request) {
	var req prepareDepositRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidInput", err.Error())
		return
	}
	commitment, err := parseFe(req.Commitment)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidInput", err.Error())
		return
	}
	_ = commitment // the deposit's commitment is client-chosen; only next_index matters here

	resp, err := relayer.PrepareDeposit(r.Context(), s.tree, s.treeID)
	if err != nil {
		status, kind := statusFor(errors.Unwrap(err))
		writeError(w, status, kind, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, prepareDepositResponse{
		MerkleRoot:     leHex(resp.MerkleRoot),
		NextLeafIndex:  resp.NextLeafIndex,
		InPathElements: resp.InPathElements,
		InPathIndices:  resp.InPathIndices,
	})
}

func (s *Server) handlePrepareTransfer(w http.ResponseWriter, r *http.Request) {
	var req prepareTransferRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidInput", err.Error())
		return
	}
	inCommitment, err := parseFe(req.InCommitment)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidInput", err.Error())
		return
	}

	resp, err := relayer.PrepareTransfer(r.Context(), s.tree, s.treeID, inCommitment)
	if err != nil {
		status, kind := statusFor(errors.Unwrap(err))
		writeError(w, status, kind, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, prepareTransferResponse{
		MerkleRoot:       leHex(resp.MerkleRoot),
		InPathElements:   resp.InPathElements,
		InPathIndices:    resp.InPathIndices,
		LeafIndex:        resp.LeafIndex,
		NextLeafIndex:    resp.NextLeafIndex,
		Out1PathElements: resp.Out1PathElements,
		Out2PathElements: resp.Out2PathElements,
	})
}

func (s *Server) handlePrepareWithdraw(w http.ResponseWriter, r *http.Request) {
	var req prepareWithdrawRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidInput", err.Error())
		return
	}
	spendCommitment, err := parseFe(req.SpendCommitment)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidInput", err.Error())
		return
	}

	resp, err := relayer.PrepareWithdraw(r.Context(), s.tree, s.treeID, spendCommitment)
	if err != nil {
		status, kind := statusFor(errors.Unwrap(err))
		writeError(w, status, kind, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, prepareWithdrawResponse{
		MerkleRoot:   leHex(resp.MerkleRoot),
		PathElements: resp.PathElements,
		PathIndices:  resp.PathIndices,
		LeafIndex:    resp.LeafIndex,
	})
}
