package sidecar

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
)

// maxResponseLine bounds a single JSON-RPC response line (1MB).
const maxResponseLine = 1 << 20

// ErrClosed is returned for calls issued after the sidecar shut down.
var ErrClosed = errors.New("sidecar connection closed")

// RPCError is a structured error returned by the sidecar.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("sidecar rpc error %d: %s", e.Code, e.Message)
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Client is a JSON-RPC client to the sidecar process. All methods are safe
// for concurrent use; responses are routed back by request id, so slow calls
// do not block fast ones.
type Client struct {
	cmd    *exec.Cmd
	logger *slog.Logger

	writeMu sync.Mutex
	stdin   io.WriteCloser

	pendingMu sync.Mutex
	pending   map[uint64]chan *rpcResponse

	nextID    atomic.Uint64
	closed    chan struct{}
	closeOnce sync.Once
}

// Spawn starts the sidecar process from a shell-style command line and
// attaches to its stdio. The process is expected to outlive the client; it
// is killed on Close.
func Spawn(command string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("sidecar command is empty")
	}

	cmd := exec.Command(fields[0], fields[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open sidecar stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open sidecar stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("open sidecar stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start sidecar %q: %w", command, err)
	}

	c := newClient(stdin, stdout, logger)
	c.cmd = cmd
	go c.forwardStderr(stderr)

	logger.Info("Sidecar process started", "command", command, "pid", cmd.Process.Pid)
	return c, nil
}

// newClient wires a client over arbitrary pipes. Split out from Spawn so
// tests can drive the protocol without a real process.
func newClient(stdin io.WriteCloser, stdout io.Reader, logger *slog.Logger) *Client {
	c := &Client{
		logger:  logger,
		stdin:   stdin,
		pending: make(map[uint64]chan *rpcResponse),
		closed:  make(chan struct{}),
	}
	go c.readLoop(stdout)
	return c
}

// Close terminates the sidecar process and fails all in-flight calls.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)

		c.writeMu.Lock()
		_ = c.stdin.Close()
		c.writeMu.Unlock()

		if c.cmd != nil && c.cmd.Process != nil {
			if err := c.cmd.Process.Kill(); err != nil {
				c.logger.Debug("Failed to kill sidecar process", "error", err)
			}
			_ = c.cmd.Wait()
		}
		c.failPending(ErrClosed)
	})
	return nil
}

func (c *Client) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxResponseLine)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			c.logger.Warn("Sidecar sent malformed response line", "error", err)
			continue
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.pendingMu.Unlock()

		if !ok {
			c.logger.Debug("Sidecar response with no pending call", "id", resp.ID)
			continue
		}
		ch <- &resp
	}

	if err := scanner.Err(); err != nil {
		c.logger.Warn("Sidecar stdout closed with error", "error", err)
	}
	c.failPending(ErrClosed)
}

func (c *Client) forwardStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		c.logger.Debug("sidecar stderr", "line", scanner.Text())
	}
}

func (c *Client) failPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		delete(c.pending, id)
		ch <- &rpcResponse{Error: &RPCError{Code: -32000, Message: err.Error()}}
	}
}

// call issues one JSON-RPC request and decodes its result into out.
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	id := c.nextID.Add(1)
	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}
	data = append(data, '\n')

	ch := make(chan *rpcResponse, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	c.writeMu.Lock()
	_, err = c.stdin.Write(data)
	c.writeMu.Unlock()
	if err != nil {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return fmt.Errorf("write %s request: %w", method, err)
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return resp.Error
		}
		if out == nil || resp.Result == nil {
			return nil
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return ctx.Err()
	}
}

// Chat sends a user utterance with bounded history and returns the reply
// plus any proposed remediation steps.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	var res ChatResult
	if err := c.call(ctx, "chat", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Diagnose captures the screen and returns the model's diagnosis.
func (c *Client) Diagnose(ctx context.Context) (*DiagnoseResult, error) {
	var res DiagnoseResult
	if err := c.call(ctx, "diagnose", struct{}{}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ExecuteStep runs one remediation command. The command descriptor is
// passed through opaque.
func (c *Client) ExecuteStep(ctx context.Context, command string, admin bool) (*ExecuteResult, error) {
	params := map[string]any{"command": command, "admin": admin}
	var res ExecuteResult
	if err := c.call(ctx, "execute_step", params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Verify re-captures the screen and reports remaining issues.
func (c *Client) Verify(ctx context.Context) (*DiagnoseResult, error) {
	var res DiagnoseResult
	if err := c.call(ctx, "verify", struct{}{}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Speak synthesizes speech for the given text. Best-effort at call sites.
func (c *Client) Speak(ctx context.Context, text, lang string) error {
	params := map[string]any{"text": text, "lang": lang}
	return c.call(ctx, "speak", params, nil)
}

// Screenshot captures the screen and returns the stored file path.
func (c *Client) Screenshot(ctx context.Context) (*ScreenshotResult, error) {
	var res ScreenshotResult
	if err := c.call(ctx, "screenshot", struct{}{}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Listen records from the microphone and transcribes the audio. Blocks
// until StopListen is called or the sidecar's recording window elapses.
func (c *Client) Listen(ctx context.Context, lang string) (*ListenResult, error) {
	params := map[string]any{"lang": lang}
	var res ListenResult
	if err := c.call(ctx, "listen", params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// StopListen ends an in-progress recording and triggers transcription.
func (c *Client) StopListen(ctx context.Context) error {
	return c.call(ctx, "stop_listen", struct{}{}, nil)
}
