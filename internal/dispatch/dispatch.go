// Package dispatch spawns external agent CLIs as child processes and
// parses their final YAML-block output against a caller-supplied
// schema. The dispatcher is single-shot; retries are the caller's
// responsibility (internal/gate, internal/workerpool).
package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	ctxpkg "github.com/johnplanow/substrate/internal/context"
	"github.com/johnplanow/substrate/internal/utils"
)

// Status is the terminal state of one dispatch.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusTimeout   Status = "timeout"
)

// TokenEstimate is the heuristic input/output token count for a
// dispatch, computed with the same counter used for prompt budgeting.
type TokenEstimate struct {
	Input  int
	Output int
}

// Input describes one agent invocation.
type Input struct {
	Agent         string
	TaskType      string
	Prompt        string
	OutputSchema  Schema
	Stdin         string
	EnvOverrides  map[string]string
	Timeout       time.Duration
	Cwd           string
}

// Result is the awaited outcome of a dispatch.
type Result struct {
	Status        Status
	Output        string
	Parsed        map[string]interface{}
	ParseError    string
	TokenEstimate TokenEstimate
	Duration      time.Duration
	ExitCode      int
}

// Dispatcher spawns agent binaries. AgentBinary resolves an agent name
// to the executable path/name to run, and AgentArgs to the argv that
// follows it; tests substitute these with a fake command (e.g. `cat`
// to echo stdin back as stdout).
type Dispatcher struct {
	AgentBinary func(agent string) string
	AgentArgs   func(agent string) []string
}

// New creates a Dispatcher that resolves agent names to identically
// named executables on PATH, invoked with no arguments.
func New() *Dispatcher {
	return &Dispatcher{
		AgentBinary: func(agent string) string { return agent },
		AgentArgs:   func(agent string) []string { return nil },
	}
}

// Dispatch spawns the agent, writes the prompt (and optional extra
// stdin) to its stdin, then closes it; stdout/stderr accumulate to
// completion or until ctx/Timeout elapses, at which point the process
// is force-killed and the result synthesized as a timeout failure.
func (d *Dispatcher) Dispatch(ctx context.Context, in Input) (*Result, error) {
	if !utils.IsValidAgentName(in.Agent) {
		return nil, fmt.Errorf("invalid agent name %q", in.Agent)
	}

	start := time.Now()

	timeout := in.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	bin := d.AgentBinary(in.Agent)
	var args []string
	if d.AgentArgs != nil {
		args = d.AgentArgs(in.Agent)
	}
	cmd := exec.CommandContext(runCtx, bin, args...)
	if in.Cwd != "" {
		cmd.Dir = in.Cwd
	}
	if len(in.EnvOverrides) > 0 {
		env := cmd.Environ()
		for k, v := range in.EnvOverrides {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = env
	}

	stdinPayload := in.Prompt
	if in.Stdin != "" {
		stdinPayload = in.Prompt + "\n" + in.Stdin
	}
	cmd.Stdin = strings.NewReader(stdinPayload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	duration := time.Since(start)

	result := &Result{
		Duration: duration,
		TokenEstimate: TokenEstimate{
			Input:  ctxpkg.CountTokens(in.Prompt),
			Output: ctxpkg.CountTokens(stdout.String()),
		},
	}

	if runCtx.Err() == context.DeadlineExceeded {
		result.Status = StatusTimeout
		result.Output = stderr.String()
		result.ExitCode = -1
		return result, nil
	}

	if err != nil {
		result.Status = StatusFailed
		result.Output = stderr.String()
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
		return result, nil
	}

	result.Output = stdout.String()
	result.ExitCode = 0

	block, found := ExtractLastYAMLBlock(result.Output)
	if !found {
		result.Status = StatusFailed
		result.ParseError = "no YAML block found in output"
		return result, nil
	}

	parsed, err := ParseYAML(block)
	if err != nil {
		result.Status = StatusFailed
		result.ParseError = fmt.Sprintf("invalid YAML: %v", err)
		return result, nil
	}

	if err := in.OutputSchema.Validate(parsed); err != nil {
		result.Status = StatusFailed
		result.ParseError = err.Error()
		return result, nil
	}

	result.Status = StatusCompleted
	result.Parsed = parsed
	return result, nil
}
