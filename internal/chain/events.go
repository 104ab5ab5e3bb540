package chain

import "github.com/cipherpay/relayer/internal/zkp"

// EventKind distinguishes the three program log events the watcher
// understands (§4.5).
type EventKind uint8

const (
	EventDepositCompleted EventKind = iota
	EventTransferCompleted
	EventWithdrawCompleted
)

// Event is the parsed form of a single program log line. Only the fields
// relevant to the event's Kind are populated; the rest are zero.
type Event struct {
	Kind   EventKind
	Slot   uint64
	TxSig  string
	TreeID uint32

	// Deposit
	DepositIndex      uint64
	DepositCommitment zkp.Fe
	DepositHash       zkp.Fe

	// Transfer
	TransferStartIndex uint64
	TransferOut1       zkp.Fe
	TransferOut2       zkp.Fe
	TransferNullifier  zkp.Fe
	TransferNewRoot1   zkp.Fe

	// Shared root-transition fields, used by deposit and (as root2) transfer
	OldRoot zkp.Fe
	NewRoot zkp.Fe

	// Withdraw
	WithdrawNullifier zkp.Fe
}
