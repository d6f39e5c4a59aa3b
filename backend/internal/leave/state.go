package leave

import "schoolledger/backend/internal/shared"

// Transition checks a leave status change. Pending is the only state with
// outgoing edges; Approved and Rejected are terminal.
func Transition(from, to string) error {
	if from == shared.LeavePending && (to == shared.LeaveApproved || to == shared.LeaveRejected) {
		return nil
	}
	return &shared.StateError{Entity: "leave", From: from, To: to}
}

