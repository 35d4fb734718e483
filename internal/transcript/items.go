// Package transcript defines the live UI event contract and its fan-out.
//
// Everything the user sees flows through here as items: chat messages, step
// cards, status changes and approval prompts. The hub broadcasts items to
// connected websocket clients and keeps a bounded replay buffer so a client
// that reconnects mid-run catches up.
package transcript

import (
	"time"

	"github.com/fixmate-app/fixmate/internal/approval"
	"github.com/fixmate-app/fixmate/internal/domain"
)

// Item types.
const (
	TypeMessage  = "message"
	TypeStep     = "step"
	TypeStatus   = "status"
	TypeApproval = "approval"
)

// Item is one user-visible transcript event.
type Item struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`

	// message
	Role string `json:"role,omitempty"`
	Text string `json:"text,omitempty"`

	// step
	Num         int    `json:"num,omitempty"`
	Total       int    `json:"total,omitempty"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`

	// status
	State string `json:"state,omitempty"`
	Label string `json:"label,omitempty"`

	// approval
	Prompt  string `json:"prompt,omitempty"`
	Command string `json:"command,omitempty"`
}

// NewMessageItem builds a chat message item.
func NewMessageItem(role domain.Role, text string) Item {
	return Item{Type: TypeMessage, Time: time.Now(), Role: string(role), Text: text}
}

// NewStepItem builds a step card from run-scoped step state.
func NewStepItem(run domain.StepRun) Item {
	return Item{
		Type:        TypeStep,
		Time:        time.Now(),
		Num:         run.Index,
		Total:       run.Total,
		Description: run.Description,
		Status:      string(run.Status),
	}
}

// NewStatusItem builds a process-state change item.
func NewStatusItem(state, label string) Item {
	return Item{Type: TypeStatus, Time: time.Now(), State: state, Label: label}
}

// NewApprovalItem announces a pending approval request.
func NewApprovalItem(req approval.Request) Item {
	return Item{Type: TypeApproval, Time: time.Now(), Prompt: req.Prompt, Command: req.Command}
}
