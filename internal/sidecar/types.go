// Package sidecar implements the client for the external sidecar process.
//
// The sidecar performs every privileged or platform-specific action on
// behalf of the core: model calls, command execution, screen capture,
// text-to-speech and microphone capture. It speaks newline-delimited
// JSON-RPC 2.0 over stdin/stdout.
package sidecar

import (
	"github.com/fixmate-app/fixmate/internal/domain"
)

// HistoryMessage is one prior transcript entry sent with a chat request.
type HistoryMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// ChatRequest carries one user utterance plus bounded recent history.
type ChatRequest struct {
	Text    string           `json:"text"`
	Lang    string           `json:"lang"`
	History []HistoryMessage `json:"history"`
}

// ChatResult is the assistant reply, optionally with remediation steps.
type ChatResult struct {
	Reply    string                   `json:"reply"`
	Commands []domain.RemediationStep `json:"commands"`
}

// DiagnoseResult is a screen diagnosis: issue text plus proposed steps.
// Verify reuses the same shape; an empty step list means no issues remain.
type DiagnoseResult struct {
	Diagnosis string                   `json:"diagnosis"`
	Steps     []domain.RemediationStep `json:"steps"`
}

// ExecuteResult reports the outcome of one executed step.
type ExecuteResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ScreenshotResult references a captured screenshot on disk.
type ScreenshotResult struct {
	Path string `json:"path"`
}

// ListenResult is a microphone transcription. Error is non-empty when the
// capture or transcription failed in a user-explainable way.
type ListenResult struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}
