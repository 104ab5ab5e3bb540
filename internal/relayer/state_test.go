package relayer

import "testing"

func TestSubmissionState_IsTerminal(t *testing.T) {
	terminal := []SubmissionState{StateAcknowledged, StateSubmissionFailed, StateRejected}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Fatalf("%s.IsTerminal() = false, want true", s)
		}
	}

	nonTerminal := []SubmissionState{StateReceived, StateValidated, StatePrepared, StateBound, StateVerified, StateSubmitted}
	for _, s := range nonTerminal {
		if s.IsTerminal() {
			t.Fatalf("%s.IsTerminal() = true, want false", s)
		}
	}
}

func TestSubmission_AdvanceAndFail(t *testing.T) {
	sub := &Submission{State: StateReceived}
	sub.advance(StateValidated)
	if sub.State != StateValidated {
		t.Fatalf("advance did not move state, got %s", sub.State)
	}

	sub.fail(StateRejected, "InvalidProof", "proof failed verification")
	if sub.State != StateRejected {
		t.Fatalf("fail did not move to terminal state, got %s", sub.State)
	}
	if sub.ErrorKind != "InvalidProof" || sub.ErrorMessage != "proof failed verification" {
		t.Fatalf("fail did not record error fields: %+v", sub)
	}
}
