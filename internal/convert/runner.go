package convert

import (
	"bytes"
	"context"
	"os/exec"
)

// CommandRunner abstracts external process execution so backends can be
// tested without real subprocesses.
type CommandRunner interface {
	// Run executes name with args, working directory dir, and returns the
	// captured stdout and stderr. Output is never inherited from the host
	// process: diagnostics must be capturable so they can be surfaced to
	// the caller.
	Run(ctx context.Context, dir, name string, args ...string) (stdout, stderr string, err error)
}

// ExecRunner implements CommandRunner using os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// Compile-time interface check.
var _ CommandRunner = ExecRunner{}
