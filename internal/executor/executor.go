// Package executor runs external binaries with captured output and a hard timeout.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"
)

// CommandRunner is the seam tests replace.
type CommandRunner interface {
	Run(ctx context.Context, name string, args []string, stdin io.Reader) (stdout, stderr []byte, err error)
}

// ExecCommandRunner uses os/exec.
type ExecCommandRunner struct{}

func (ExecCommandRunner) Run(ctx context.Context, name string, args []string, stdin io.Reader) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err := cmd.Run()
	if ctxErr := ctx.Err(); err != nil && ctxErr != nil {
		err = fmt.Errorf("%w: %v", ctxErr, err)
	}
	return outBuf.Bytes(), errBuf.Bytes(), err
}

// Executor binds a command line prefix to a timeout.
type Executor struct {
	runner  CommandRunner
	command []string
	timeout time.Duration
}

var ErrNoCommand = errors.New("executor: empty command")

// New creates an executor for command (binary followed by fixed leading args).
func New(command []string, timeout time.Duration, runner CommandRunner) (*Executor, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, ErrNoCommand
	}
	if runner == nil {
		runner = ExecCommandRunner{}
	}
	return &Executor{runner: runner, command: command, timeout: timeout}, nil
}

// Name is the binary the executor invokes.
func (e *Executor) Name() string { return e.command[0] }

// Execute runs the command with extra args appended.
func (e *Executor) Execute(ctx context.Context, args []string, stdin io.Reader) (stdout, stderr []byte, err error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	full := make([]string, 0, len(e.command)-1+len(args))
	full = append(full, e.command[1:]...)
	full = append(full, args...)
	return e.runner.Run(ctx, e.command[0], full, stdin)
}
