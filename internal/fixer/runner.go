// Package fixer drives approval-gated remediation runs.
//
// A run takes an ordered list of proposed steps and walks each one through
// the approval gate and the executor: approve executes, skip moves on, deny
// ends the run. Step commands are opaque; the runner forwards them to the
// executor without interpretation.
package fixer

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/fixmate-app/fixmate/internal/approval"
	"github.com/fixmate-app/fixmate/internal/domain"
	"github.com/fixmate-app/fixmate/internal/sidecar"
)

// State is the orchestrator's process state, queryable while a run is in
// flight.
type State int32

const (
	StateIdle State = iota
	StateAwaitingApproval
	StateExecuting
	StateVerifying
)

// String returns the wire name of the state.
func (s State) String() string {
	switch s {
	case StateAwaitingApproval:
		return "awaiting_approval"
	case StateExecuting:
		return "executing"
	case StateVerifying:
		return "verifying"
	default:
		return "idle"
	}
}

// Executor performs remediation actions and side-channel output. Implemented
// by the sidecar client.
type Executor interface {
	ExecuteStep(ctx context.Context, command string, admin bool) (*sidecar.ExecuteResult, error)
	Verify(ctx context.Context) (*sidecar.DiagnoseResult, error)
	Speak(ctx context.Context, text, lang string) error
}

// Approver suspends until a human answers one proposed action.
type Approver interface {
	Ask(ctx context.Context, prompt, command string) (approval.Decision, error)
}

// Emitter receives the run's user-visible output. Message text is assistant
// narrative that the owner persists into the active session; step cards and
// status changes are transient UI state.
type Emitter interface {
	Message(text string)
	Step(run domain.StepRun)
	Status(state State, label string)
}

// Runner executes remediation runs one at a time. Callers serialize runs
// through the single-flight busy gate; the runner itself only tracks state.
type Runner struct {
	executor Executor
	approver Approver
	state    atomic.Int32
}

// NewRunner creates a runner over the given executor and approval gate.
func NewRunner(executor Executor, approver Approver) *Runner {
	return &Runner{executor: executor, approver: approver}
}

// State returns the current run state.
func (r *Runner) State() State {
	return State(r.state.Load())
}

func (r *Runner) setState(s State) {
	r.state.Store(int32(s))
}

// Run walks the step list through the approval gate and executor, then
// summarizes and, when anything was applied, verifies the fix. Each step is
// attempted exactly once; a failed step does not abort the run, a denied
// step does.
func (r *Runner) Run(ctx context.Context, emitter Emitter, steps []domain.RemediationStep, lang string) domain.RunResult {
	result := domain.RunResult{Total: len(steps)}
	if len(steps) == 0 {
		return result
	}
	defer r.setState(StateIdle)

	emitter.Message(fmt.Sprintf("I have %d fix steps. I'll ask permission for each.", len(steps)))

	for i, step := range steps {
		run := domain.StepRun{
			Index:       i + 1,
			Total:       len(steps),
			Description: step.Description,
			Status:      domain.StepRunning,
		}
		emitter.Step(run)

		label := fmt.Sprintf("Step %d/%d", run.Index, run.Total)
		r.setState(StateAwaitingApproval)
		emitter.Status(StateAwaitingApproval, label)

		decision, err := r.approver.Ask(ctx, fmt.Sprintf("Step %d: %s", run.Index, step.Description), step.Command)
		if err != nil {
			// Only an abandoned context lands here; the run is over and
			// nobody is left to read a summary.
			slog.Warn("Approval wait abandoned", "step", run.Index, "error", err)
			return result
		}

		switch decision {
		case approval.Approve:
			r.setState(StateExecuting)
			emitter.Status(StateExecuting, label)
			if r.executeStep(ctx, emitter, run, step) {
				result.Applied++
			}
		case approval.Deny:
			run.Status = domain.StepSkipped
			emitter.Step(run)
			return r.finish(ctx, emitter, result, lang)
		case approval.Skip:
			run.Status = domain.StepSkipped
			emitter.Step(run)
		}
	}

	return r.finish(ctx, emitter, result, lang)
}

// executeStep runs one approved step and reports whether it succeeded.
func (r *Runner) executeStep(ctx context.Context, emitter Emitter, run domain.StepRun, step domain.RemediationStep) bool {
	execResult, err := r.executor.ExecuteStep(ctx, step.Command, step.NeedsPrivilege)
	switch {
	case err != nil:
		run.Status = domain.StepFailed
		emitter.Step(run)
		emitter.Message(fmt.Sprintf("Error: %s", err))
		return false
	case !execResult.Success:
		run.Status = domain.StepFailed
		emitter.Step(run)
		msg := execResult.Message
		if msg == "" {
			msg = "step failed"
		}
		emitter.Message(fmt.Sprintf("Error: %s", msg))
		return false
	default:
		run.Status = domain.StepDone
		emitter.Step(run)
		msg := execResult.Message
		if msg == "" {
			msg = "Done"
		}
		emitter.Message(fmt.Sprintf("Result: %s", msg))
		return true
	}
}

// finish emits the summary, speaks it best-effort, and verifies the fix
// when anything was applied.
func (r *Runner) finish(ctx context.Context, emitter Emitter, result domain.RunResult, lang string) domain.RunResult {
	summary := "No fixes applied."
	if result.Applied > 0 {
		summary = fmt.Sprintf("Done! %d/%d steps applied.", result.Applied, result.Total)
	}
	emitter.Message(summary)

	if err := r.executor.Speak(ctx, summary, lang); err != nil {
		slog.Debug("Summary speech failed", "error", err)
	}

	if result.Applied > 0 {
		r.verify(ctx, emitter)
	}
	return result
}

// verify asks the executor to re-check the screen. Verification is
// best-effort: a failed call emits nothing.
func (r *Runner) verify(ctx context.Context, emitter Emitter) {
	r.setState(StateVerifying)
	emitter.Status(StateVerifying, "Verifying fix")
	emitter.Message("Verifying if the fix worked...")

	verifyResult, err := r.executor.Verify(ctx)
	if err != nil {
		slog.Debug("Verification failed", "error", err)
		return
	}
	if len(verifyResult.Steps) == 0 {
		emitter.Message("Looks good! No issues detected on screen.")
		return
	}
	diagnosis := verifyResult.Diagnosis
	if diagnosis == "" {
		diagnosis = "Unknown"
	}
	emitter.Message(fmt.Sprintf("Still seeing an issue: %s. You can try Diagnose again.", diagnosis))
}
