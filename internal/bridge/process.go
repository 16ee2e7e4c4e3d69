package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
)

// Process is one generation of the running agent subprocess. Exactly one
// Process is live per bridge at any time; the bridge replaces (never
// mutates) it on restart.
type Process interface {
	// Stdin returns the writer for framed requests.
	Stdin() io.Writer

	// Stdout returns the reader carrying framed responses and events.
	Stdout() io.Reader

	// Stderr returns the reader carrying diagnostic text.
	Stderr() io.Reader

	// Wait blocks until the process exits and returns its exit error,
	// nil for a clean exit.
	Wait() error

	// Kill terminates the process. Wait unblocks afterwards.
	Kill() error
}

// Launcher starts a new agent process generation.
type Launcher interface {
	Launch(ctx context.Context) (Process, error)
}

// ExecLauncher launches the agent with os/exec and wires up its three
// standard streams.
type ExecLauncher struct {
	// Command is the agent executable.
	Command string
	// Args are passed to the command verbatim.
	Args []string
	// Dir is the working directory; empty means inherit.
	Dir string
}

// Launch starts the agent process. The returned Process outlives ctx:
// the bridge owns the subprocess lifetime, ctx only bounds the launch
// itself.
func (l *ExecLauncher) Launch(ctx context.Context) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(l.Command, l.Args...)
	cmd.Dir = l.Dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open agent stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open agent stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open agent stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start agent %q: %w", l.Command, err)
	}

	return &execProcess{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}, nil
}

// execProcess wraps a started exec.Cmd as a Process.
type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
}

func (p *execProcess) Stdin() io.Writer  { return p.stdin }
func (p *execProcess) Stdout() io.Reader { return p.stdout }
func (p *execProcess) Stderr() io.Reader { return p.stderr }

func (p *execProcess) Wait() error {
	return p.cmd.Wait()
}

func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

// exitCode extracts an exit code from a Wait error: 0 for nil, the
// process's code for *exec.ExitError, -1 otherwise.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
