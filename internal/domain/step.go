package domain

// RemediationStep is one proposed fix action produced by the external
// brain or the screen-diagnosis path. The command is an opaque descriptor:
// the orchestrator never interprets it, only forwards it to the executor.
type RemediationStep struct {
	Description    string `json:"description"`
	Command        string `json:"command"`
	NeedsPrivilege bool   `json:"needs_admin"`
}

// StepStatus is the lifecycle state of one step within a run.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepRunning StepStatus = "running"
	StepDone    StepStatus = "done"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// Terminal reports whether the status is a terminal state.
func (s StepStatus) Terminal() bool {
	return s == StepDone || s == StepFailed || s == StepSkipped
}

// StepRun is the run-scoped state of one remediation step. It is created
// when the step is announced and never deleted; only its status moves.
type StepRun struct {
	Index       int        `json:"num"`
	Total       int        `json:"total"`
	Description string     `json:"description"`
	Status      StepStatus `json:"status"`
}

// RunResult aggregates the outcome of one remediation run.
type RunResult struct {
	Applied int `json:"applied"`
	Total   int `json:"total"`
}
