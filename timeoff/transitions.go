package timeoff

import (
	"fmt"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// STATUS TRANSITIONS - current status x action -> next status
// =============================================================================
//
//   PENDING   --approve--> APPROVED
//   PENDING   --reject---> REJECTED
//   PENDING   --cancel---> CANCELLED
//   APPROVED  --cancel---> CANCELLED   (balance credited back)
//   REJECTED  --cancel---> CANCELLED   (no balance change)
//   CANCELLED --cancel---> CANCELLED   (no balance change)
//
// Cancel is accepted from every status: existing clients cancel closed
// requests and expect success. Decisions are accepted only from PENDING.

type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionCancel  Action = "cancel"
)

var transitions = map[Status]map[Action]Status{
	StatusPending: {
		ActionApprove: StatusApproved,
		ActionReject:  StatusRejected,
		ActionCancel:  StatusCancelled,
	},
	StatusApproved: {
		ActionCancel: StatusCancelled,
	},
	StatusRejected: {
		ActionCancel: StatusCancelled,
	},
	StatusCancelled: {
		ActionCancel: StatusCancelled,
	},
}

// TransitionError reports an action the table does not allow from a status.
type TransitionError struct {
	From   Status
	Action Action
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s a %s leave request", e.Action, e.From)
}

// Unwrap classifies every rejected transition as AlreadyDecided: only
// decisions can be rejected, and only because the request left PENDING.
func (e *TransitionError) Unwrap() error {
	return generic.ErrAlreadyDecided
}

// NextStatus looks up the status reached by applying action to current.
func NextStatus(current Status, action Action) (Status, error) {
	next, ok := transitions[current][action]
	if !ok {
		return "", &TransitionError{From: current, Action: action}
	}
	return next, nil
}

// decisionAction maps a requested decision status to its action.
func decisionAction(s Status) (Action, bool) {
	switch s {
	case StatusApproved:
		return ActionApprove, true
	case StatusRejected:
		return ActionReject, true
	}
	return "", false
}
