package txmanager

import "encoding/binary"

// EncodeWireTransaction is the default, unsigned-wrapper serialization
// of a Plan into a raw transaction suitable for sendTransaction: the
// setup instructions followed by the program instructions, each framed
// with a length prefix, preceded by the requested priority fee. Signing
// is out of scope here — the relayer is a fee payer/submitter, not a
// custodian of the end-user's keys, so the caller is expected to have
// already attached the required signatures before the plan reaches
// Submit in a deployment with a real wallet adapter; this encoder exists
// so Submit always has a concrete default rather than requiring every
// caller to supply one.
func EncodeWireTransaction(plan Plan, priorityFeeMicroLamports uint64) ([]byte, error) {
	out := make([]byte, 0, 256)

	feeBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(feeBuf, priorityFeeMicroLamports)
	out = append(out, feeBuf...)

	out = appendInstructions(out, plan.Setup)
	out = appendInstructions(out, plan.Program)
	return out, nil
}

func appendInstructions(out []byte, ixs []Instruction) []byte {
	countBuf := make([]byte, 2)
	binary.LittleEndian.PutUint16(countBuf, uint16(len(ixs)))
	out = append(out, countBuf...)

	for _, ix := range ixs {
		out = append(out, ix.ProgramID[:]...)

		acctCountBuf := make([]byte, 2)
		binary.LittleEndian.PutUint16(acctCountBuf, uint16(len(ix.Accounts)))
		out = append(out, acctCountBuf...)
		for _, acct := range ix.Accounts {
			out = append(out, acct.Pubkey[:]...)
			flags := byte(0)
			if acct.IsSigner {
				flags |= 1
			}
			if acct.IsWritable {
				flags |= 2
			}
			out = append(out, flags)
		}

		dataLenBuf := make([]byte, 4)
		binary.LittleEndian.PutUint32(dataLenBuf, uint32(len(ix.Data)))
		out = append(out, dataLenBuf...)
		out = append(out, ix.Data...)
	}
	return out
}
