// Package cloudcli executes provider command-line tools and captures their
// output.
//
// Every remote operation imageport performs is expressed as an invocation
// of a provider CLI (aws, az, gcloud, gsutil). Runner is the seam between
// backends and those processes: backends deal in argument lists and
// Results, never in os/exec directly, so tests can substitute scripted
// runners.
package cloudcli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Result captures one tool invocation.
//
// A non-zero exit is not an error at this layer: callers decide what a
// failed invocation means for their operation. Err from Run is reserved
// for failures to execute at all (tool missing, context cancelled).
type Result struct {
	// Stdout is the captured standard output.
	Stdout []byte

	// Stderr is the captured standard error.
	Stderr []byte

	// ExitCode is the process exit status.
	ExitCode int
}

// Ok reports whether the invocation exited zero.
func (r *Result) Ok() bool {
	return r.ExitCode == 0
}

// Diagnostic returns the tool's error text, preferring stderr.
func (r *Result) Diagnostic() string {
	if s := strings.TrimSpace(string(r.Stderr)); s != "" {
		return s
	}
	return strings.TrimSpace(string(r.Stdout))
}

// Runner runs one configured tool with varying arguments.
type Runner interface {
	// Run invokes the tool with args and waits for completion.
	Run(ctx context.Context, args ...string) (*Result, error)

	// Tool returns the executable name or path this runner invokes.
	Tool() string
}

// ExecRunner invokes a real executable via os/exec.
type ExecRunner struct {
	tool     string
	extraEnv []string
}

var _ Runner = (*ExecRunner)(nil)

// NewExecRunner creates a runner for the given tool. The tool is resolved
// through PATH unless given as an absolute or relative path.
func NewExecRunner(tool string, extraEnv ...string) *ExecRunner {
	return &ExecRunner{tool: tool, extraEnv: extraEnv}
}

// Tool returns the configured executable.
func (r *ExecRunner) Tool() string {
	return r.tool
}

// Run invokes the tool and captures stdout/stderr.
//
// Non-zero exits are returned as a Result with the exit code set and a nil
// error. Only failures to start or be waited on (missing binary, killed by
// context) surface as errors.
func (r *ExecRunner) Run(ctx context.Context, args ...string) (*Result, error) {
	cmd := exec.CommandContext(ctx, r.tool, args...)
	cmd.Env = append(os.Environ(), r.extraEnv...)

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	res := &Result{
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// The tool ran and exited non-zero; that is data, not a failure.
		return res, nil
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		return res, fmt.Errorf("failed to run %s: %w", r.tool, err)
	}

	return res, nil
}
