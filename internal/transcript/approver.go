package transcript

import (
	"context"

	"github.com/fixmate-app/fixmate/internal/approval"
)

// AnnouncingApprover broadcasts each approval request to the transcript
// before parking on the gate, so every connected client sees the prompt.
type AnnouncingApprover struct {
	hub  *Hub
	gate *approval.Gate
}

func NewAnnouncingApprover(hub *Hub, gate *approval.Gate) *AnnouncingApprover {
	return &AnnouncingApprover{hub: hub, gate: gate}
}

func (a *AnnouncingApprover) Ask(ctx context.Context, prompt, command string) (approval.Decision, error) {
	a.hub.Broadcast(NewApprovalItem(approval.Request{Prompt: prompt, Command: command}))
	return a.gate.Ask(ctx, prompt, command)
}
