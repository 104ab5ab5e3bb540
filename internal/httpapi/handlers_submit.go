package httpapi

import (
	"encoding/hex"
	"net/http"

	"github.com/google/uuid"

	"github.com/cipherpay/relayer/internal/relayer"
	"github.com/cipherpay/relayer/internal/zkp"
)

func (s *Server) handleSubmitDeposit(w http.ResponseWriter, r *http.Request) {
	var req submitDepositRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidInput", err.Error())
		return
	}

	proof, err := hex.DecodeString(req.Proof)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidProofBytesLength", err.Error())
		return
	}
	signals, err := parseFeList(req.PublicSignals)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidInput", err.Error())
		return
	}
	commitment, err := parseFe(req.Commitment)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidInput", err.Error())
		return
	}
	depositHash, err := parseFe(req.DepositHash)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidInput", err.Error())
		return
	}
	oldRoot, err := parseFe(req.OldMerkleRoot)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidInput", err.Error())
		return
	}
	newRoot, err := parseFe(req.NewMerkleRoot)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidInput", err.Error())
		return
	}

	submissionID := req.SubmissionID
	if submissionID == "" {
		submissionID = uuid.NewString()
	}

	sub, err := s.orchestrator.SubmitDeposit(r.Context(), relayer.DepositRequest{
		SubmissionID:  submissionID,
		TreeID:        req.TreeID,
		Proof:         zkp.Groth16Proof(proof),
		PublicSignals: signals,
		Commitment:    commitment,
		DepositHash:   depositHash,
		OldRoot:       oldRoot,
		NewRoot:       newRoot,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "StoreUnavailable", err.Error())
		return
	}
	s.respondSubmission(w, sub)
}

func (s *Server) handleSubmitTransfer(w http.ResponseWriter, r *http.Request) {
	var req submitTransferRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidInput", err.Error())
		return
	}

	proof, err := hex.DecodeString(req.Proof)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidProofBytesLength", err.Error())
		return
	}
	signals, err := parseFeList(req.PublicSignals)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidInput", err.Error())
		return
	}
	out1, err := parseFe(req.Out1Commitment)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidInput", err.Error())
		return
	}
	out2, err := parseFe(req.Out2Commitment)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidInput", err.Error())
		return
	}
	nullifier, err := parseFe(req.Nullifier)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidInput", err.Error())
		return
	}
	oldRoot, err := parseFe(req.OldMerkleRoot)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidInput", err.Error())
		return
	}
	newRoot1, err := parseFe(req.NewMerkleRoot1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidInput", err.Error())
		return
	}
	newRoot2, err := parseFe(req.NewMerkleRoot2)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidInput", err.Error())
		return
	}

	submissionID := req.SubmissionID
	if submissionID == "" {
		submissionID = uuid.NewString()
	}

	sub, err := s.orchestrator.SubmitTransfer(r.Context(), relayer.TransferRequest{
		SubmissionID:  submissionID,
		TreeID:        req.TreeID,
		Proof:         zkp.Groth16Proof(proof),
		PublicSignals: signals,
		Out1:          out1,
		Out2:          out2,
		Nullifier:     nullifier,
		OldRoot:       oldRoot,
		NewRoot1:      newRoot1,
		NewRoot2:      newRoot2,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "StoreUnavailable", err.Error())
		return
	}
	s.respondSubmission(w, sub)
}

func (s *Server) handleSubmitWithdraw(w http.ResponseWriter, r *http.Request) {
	var req submitWithdrawRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidInput", err.Error())
		return
	}

	proof, err := hex.DecodeString(req.Proof)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidProofBytesLength", err.Error())
		return
	}
	signals, err := parseFeList(req.PublicSignals)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidInput", err.Error())
		return
	}
	nullifier, err := parseFe(req.Nullifier)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidInput", err.Error())
		return
	}
	root, err := parseFe(req.OldMerkleRoot)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidInput", err.Error())
		return
	}
	amount, err := parseFe(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidInput", err.Error())
		return
	}

	// recipient_wallet_pubkey is bound from recipient_owner, which the
	// client sends already hashed as a decimal field element; it is parsed
	// here, not hashed.
	recipientHash, err := parseFe(req.RecipientOwner)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidInput", "recipient_owner: "+err.Error())
		return
	}

	submissionID := req.SubmissionID
	if submissionID == "" {
		submissionID = uuid.NewString()
	}

	sub, err := s.orchestrator.SubmitWithdraw(r.Context(), relayer.WithdrawRequest{
		SubmissionID:  submissionID,
		TreeID:        req.TreeID,
		Proof:         zkp.Groth16Proof(proof),
		PublicSignals: signals,
		Nullifier:     nullifier,
		Root:          root,
		RecipientHash: recipientHash,
		Amount:        amount,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "StoreUnavailable", err.Error())
		return
	}
	s.respondSubmission(w, sub)
}

func (s *Server) respondSubmission(w http.ResponseWriter, sub *relayer.Submission) {
	if sub.State == relayer.StateAcknowledged || sub.TxSignature != "" {
		writeJSON(w, http.StatusOK, submitResponse{Signature: sub.TxSignature})
		return
	}
	writeError(w, errKindStatus(sub.ErrorKind), sub.ErrorKind, sub.ErrorMessage)
}
