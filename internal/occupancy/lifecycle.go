package occupancy

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"

	"parking-occupancy-backend/internal/model"
	"parking-occupancy-backend/internal/store"
)

const eventExit = "exit"

// newTicketLifecycle returns the state machine of a ticket currently in status.
// Both freshly admitted and restored tickets close the same way; EXITED is terminal.
func newTicketLifecycle(status model.TicketStatus) *fsm.FSM {
	return fsm.NewFSM(
		string(status),
		fsm.Events{
			{
				Name: eventExit,
				Src:  []string{string(model.TicketActive), string(model.TicketRestored)},
				Dst:  string(model.TicketExited),
			},
		},
		fsm.Callbacks{},
	)
}

// transition applies event to a ticket status and returns the new status.
func transition(ctx context.Context, status model.TicketStatus, event string) (model.TicketStatus, error) {
	f := newTicketLifecycle(status)
	if err := f.Event(ctx, event); err != nil {
		return status, fmt.Errorf("%w: ticket in status %s cannot %s: %v", store.ErrIntegrity, status, event, err)
	}
	return model.TicketStatus(f.Current()), nil
}
