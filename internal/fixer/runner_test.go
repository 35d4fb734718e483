package fixer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/fixmate-app/fixmate/internal/approval"
	"github.com/fixmate-app/fixmate/internal/domain"
	"github.com/fixmate-app/fixmate/internal/sidecar"
)

type scriptedApprover struct {
	t         *testing.T
	decisions []approval.Decision
	prompts   []string
	err       error
}

func (a *scriptedApprover) Ask(_ context.Context, prompt, _ string) (approval.Decision, error) {
	a.prompts = append(a.prompts, prompt)
	if a.err != nil {
		return "", a.err
	}
	if len(a.decisions) == 0 {
		a.t.Fatalf("unexpected approval prompt %q", prompt)
	}
	d := a.decisions[0]
	a.decisions = a.decisions[1:]
	return d, nil
}

type execOutcome struct {
	result *sidecar.ExecuteResult
	err    error
}

type fakeExecutor struct {
	outcomes     []execOutcome
	executed     []string
	spoken       []string
	speakErr     error
	verifyResult *sidecar.DiagnoseResult
	verifyErr    error
	verifyCalls  int
}

func (e *fakeExecutor) ExecuteStep(_ context.Context, command string, _ bool) (*sidecar.ExecuteResult, error) {
	e.executed = append(e.executed, command)
	if len(e.outcomes) == 0 {
		return &sidecar.ExecuteResult{Success: true, Message: "ok"}, nil
	}
	out := e.outcomes[0]
	e.outcomes = e.outcomes[1:]
	return out.result, out.err
}

func (e *fakeExecutor) Verify(_ context.Context) (*sidecar.DiagnoseResult, error) {
	e.verifyCalls++
	if e.verifyErr != nil {
		return nil, e.verifyErr
	}
	if e.verifyResult == nil {
		return &sidecar.DiagnoseResult{}, nil
	}
	return e.verifyResult, nil
}

func (e *fakeExecutor) Speak(_ context.Context, text, _ string) error {
	e.spoken = append(e.spoken, text)
	return e.speakErr
}

type captureEmitter struct {
	messages []string
	steps    []domain.StepRun
	statuses []State
}

func (e *captureEmitter) Message(text string) { e.messages = append(e.messages, text) }
func (e *captureEmitter) Step(run domain.StepRun) { e.steps = append(e.steps, run) }
func (e *captureEmitter) Status(s State, _ string) { e.statuses = append(e.statuses, s) }

func (e *captureEmitter) finalStepStatuses() map[int]domain.StepStatus {
	out := make(map[int]domain.StepStatus)
	for _, run := range e.steps {
		out[run.Index] = run.Status
	}
	return out
}

func stepsOf(n int) []domain.RemediationStep {
	steps := make([]domain.RemediationStep, n)
	for i := range steps {
		steps[i] = domain.RemediationStep{
			Description: "step",
			Command:     "cmd",
		}
	}
	return steps
}

func TestAllApprovedAndSucceeding(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{}
	approver := &scriptedApprover{t: t, decisions: []approval.Decision{approval.Approve, approval.Approve, approval.Approve}}
	emitter := &captureEmitter{}
	runner := NewRunner(exec, approver)

	result := runner.Run(context.Background(), emitter, stepsOf(3), "en")

	if result.Applied != 3 || result.Total != 3 {
		t.Errorf("result = %+v, want 3/3", result)
	}
	for i, status := range emitter.finalStepStatuses() {
		if status != domain.StepDone {
			t.Errorf("step %d status = %q, want done", i, status)
		}
	}
	if exec.verifyCalls != 1 {
		t.Errorf("verify called %d times, want 1", exec.verifyCalls)
	}
	if emitter.messages[len(emitter.messages)-2] != "Done! 3/3 steps applied." {
		t.Errorf("summary missing, messages = %v", emitter.messages)
	}
	if runner.State() != StateIdle {
		t.Errorf("runner state = %v after run, want idle", runner.State())
	}
}

func TestFlushDNSScenario(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{
		outcomes: []execOutcome{{result: &sidecar.ExecuteResult{Success: true, Message: "Command completed successfully"}}},
	}
	approver := &scriptedApprover{t: t, decisions: []approval.Decision{approval.Approve}}
	emitter := &captureEmitter{}
	runner := NewRunner(exec, approver)

	steps := []domain.RemediationStep{{Description: "Flush DNS", Command: "ipconfig /flushdns"}}
	result := runner.Run(context.Background(), emitter, steps, "en")

	if result.Applied != 1 {
		t.Fatalf("applied = %d, want 1", result.Applied)
	}
	if exec.executed[0] != "ipconfig /flushdns" {
		t.Errorf("executed command = %q", exec.executed[0])
	}
	if approver.prompts[0] != "Step 1: Flush DNS" {
		t.Errorf("approval prompt = %q", approver.prompts[0])
	}

	joined := strings.Join(emitter.messages, "\n")
	for _, want := range []string{
		"I have 1 fix steps. I'll ask permission for each.",
		"Result: Command completed successfully",
		"Done! 1/1 steps applied.",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("transcript missing %q:\n%s", want, joined)
		}
	}
	if exec.verifyCalls != 1 {
		t.Errorf("verify called %d times, want 1", exec.verifyCalls)
	}
}

func TestDenyTerminatesRun(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{}
	approver := &scriptedApprover{t: t, decisions: []approval.Decision{approval.Deny}}
	emitter := &captureEmitter{}
	runner := NewRunner(exec, approver)

	result := runner.Run(context.Background(), emitter, stepsOf(2), "en")

	if result.Applied != 0 {
		t.Errorf("applied = %d, want 0", result.Applied)
	}
	if len(approver.prompts) != 1 {
		t.Errorf("steps after deny were still prompted: %v", approver.prompts)
	}
	statuses := emitter.finalStepStatuses()
	if len(statuses) != 1 || statuses[1] != domain.StepSkipped {
		t.Errorf("step statuses = %v, want only step 1 skipped", statuses)
	}
	if emitter.messages[len(emitter.messages)-1] != "No fixes applied." {
		t.Errorf("summary = %q", emitter.messages[len(emitter.messages)-1])
	}
	if len(exec.executed) != 0 {
		t.Error("deny must not execute anything")
	}
	if exec.verifyCalls != 0 {
		t.Error("verification must not run when nothing was applied")
	}
}

func TestSkipContinuesToNextStep(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{}
	approver := &scriptedApprover{t: t, decisions: []approval.Decision{approval.Skip, approval.Approve}}
	emitter := &captureEmitter{}
	runner := NewRunner(exec, approver)

	result := runner.Run(context.Background(), emitter, stepsOf(2), "en")

	if result.Applied != 1 {
		t.Errorf("applied = %d, want 1 (skipped step excluded)", result.Applied)
	}
	statuses := emitter.finalStepStatuses()
	if statuses[1] != domain.StepSkipped || statuses[2] != domain.StepDone {
		t.Errorf("statuses = %v", statuses)
	}
	if len(approver.prompts) != 2 {
		t.Errorf("prompt count = %d, want 2", len(approver.prompts))
	}
}

func TestStepFailureDoesNotAbortRun(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{
		outcomes: []execOutcome{
			{err: errors.New("sidecar unreachable")},
			{result: &sidecar.ExecuteResult{Success: false, Message: "exit code 1"}},
			{result: &sidecar.ExecuteResult{Success: true}},
		},
	}
	approver := &scriptedApprover{t: t, decisions: []approval.Decision{approval.Approve, approval.Approve, approval.Approve}}
	emitter := &captureEmitter{}
	runner := NewRunner(exec, approver)

	result := runner.Run(context.Background(), emitter, stepsOf(3), "en")

	if result.Applied != 1 {
		t.Errorf("applied = %d, want 1", result.Applied)
	}
	statuses := emitter.finalStepStatuses()
	if statuses[1] != domain.StepFailed || statuses[2] != domain.StepFailed || statuses[3] != domain.StepDone {
		t.Errorf("statuses = %v", statuses)
	}

	joined := strings.Join(emitter.messages, "\n")
	if !strings.Contains(joined, "Error: sidecar unreachable") || !strings.Contains(joined, "Error: exit code 1") {
		t.Errorf("failure details missing from transcript:\n%s", joined)
	}
	if !strings.Contains(joined, "Result: Done") {
		t.Errorf("default result message missing:\n%s", joined)
	}
	if !strings.Contains(joined, "Done! 1/3 steps applied.") {
		t.Errorf("summary missing:\n%s", joined)
	}
}

func TestSpeakAndVerifyFailuresAreSwallowed(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{
		speakErr:  errors.New("tts offline"),
		verifyErr: errors.New("capture failed"),
	}
	approver := &scriptedApprover{t: t, decisions: []approval.Decision{approval.Approve}}
	emitter := &captureEmitter{}
	runner := NewRunner(exec, approver)

	runner.Run(context.Background(), emitter, stepsOf(1), "en")

	last := emitter.messages[len(emitter.messages)-1]
	if last != "Verifying if the fix worked..." {
		t.Errorf("verify failure leaked a message after %q", last)
	}
	if len(exec.spoken) != 1 || exec.spoken[0] != "Done! 1/1 steps applied." {
		t.Errorf("summary was not spoken: %v", exec.spoken)
	}
}

func TestVerifyReportsRemainingIssue(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{
		verifyResult: &sidecar.DiagnoseResult{
			Diagnosis: "Wi-Fi still disconnected",
			Steps:     stepsOf(1),
		},
	}
	approver := &scriptedApprover{t: t, decisions: []approval.Decision{approval.Approve}}
	emitter := &captureEmitter{}
	runner := NewRunner(exec, approver)

	runner.Run(context.Background(), emitter, stepsOf(1), "en")

	last := emitter.messages[len(emitter.messages)-1]
	if last != "Still seeing an issue: Wi-Fi still disconnected. You can try Diagnose again." {
		t.Errorf("verify issue message = %q", last)
	}
}

func TestVerifyCleanScreen(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{verifyResult: &sidecar.DiagnoseResult{Diagnosis: "all clear"}}
	approver := &scriptedApprover{t: t, decisions: []approval.Decision{approval.Approve}}
	emitter := &captureEmitter{}
	runner := NewRunner(exec, approver)

	runner.Run(context.Background(), emitter, stepsOf(1), "en")

	last := emitter.messages[len(emitter.messages)-1]
	if last != "Looks good! No issues detected on screen." {
		t.Errorf("verify success message = %q", last)
	}
}

func TestEmptyStepListIsNoop(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{}
	emitter := &captureEmitter{}
	runner := NewRunner(exec, &scriptedApprover{t: t})

	result := runner.Run(context.Background(), emitter, nil, "en")

	if result.Total != 0 || len(emitter.messages) != 0 {
		t.Errorf("empty run produced output: %+v %v", result, emitter.messages)
	}
}

func TestAbandonedApprovalEndsRunQuietly(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{}
	approver := &scriptedApprover{t: t, err: context.Canceled}
	emitter := &captureEmitter{}
	runner := NewRunner(exec, approver)

	result := runner.Run(context.Background(), emitter, stepsOf(2), "en")

	if result.Applied != 0 {
		t.Errorf("applied = %d, want 0", result.Applied)
	}
	for _, msg := range emitter.messages {
		if strings.Contains(msg, "steps applied") || msg == "No fixes applied." {
			t.Errorf("abandoned run still emitted a summary: %q", msg)
		}
	}
	if exec.verifyCalls != 0 {
		t.Error("abandoned run must not verify")
	}
}
