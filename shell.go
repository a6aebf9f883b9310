package bgtask

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// RunOption configures Run and RunOutput.
type RunOption func(*runConfig)

type runConfig struct {
	timeout time.Duration
	show    bool
	strip   bool
}

// WithTimeout kills the command after d.
func WithTimeout(d time.Duration) RunOption { return func(c *runConfig) { c.timeout = d } }

// ShowCommand echoes the command line before running it.
func ShowCommand() RunOption { return func(c *runConfig) { c.show = true } }

// StripOutput trims leading and trailing whitespace from RunOutput's result.
func StripOutput() RunOption { return func(c *runConfig) { c.strip = true } }

func buildCommand(cmd string, cfg runConfig) (*exec.Cmd, context.CancelFunc) {
	if cfg.show {
		fmt.Fprintf(os.Stderr, "$ %s\n", cmd)
	}
	if cfg.timeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
		return exec.CommandContext(ctx, "sh", "-c", cmd), cancel
	}
	return exec.Command("sh", "-c", cmd), func() {}
}

// Run executes cmd via the shell with the caller's stdin/stdout/stderr and
// returns its exit code. A command that cannot be started returns -1.
func Run(cmd string, opts ...RunOption) int {
	var cfg runConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	c, cancel := buildCommand(cmd, cfg)
	defer cancel()
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr

	if err := c.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode()
		}
		return -1
	}
	return 0
}

// RunOrExit executes cmd via the shell and exits the process with the
// command's exit code when it is non-zero.
func RunOrExit(cmd string, opts ...RunOption) {
	if code := Run(cmd, opts...); code != 0 {
		os.Exit(code)
	}
}

// RunOutput executes cmd via the shell and returns its combined stdout and
// stderr. Error text from a failed command is part of the returned output,
// the way callers piping through the tool wrappers expect to inspect it.
func RunOutput(cmd string, opts ...RunOption) string {
	var cfg runConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	c, cancel := buildCommand(cmd, cfg)
	defer cancel()

	out, err := c.CombinedOutput()
	text := string(out)
	if err != nil && len(out) == 0 {
		text = err.Error()
	}
	if cfg.strip {
		text = strings.TrimSpace(text)
	}
	return text
}

// ShellRunner adapts the package-level shell primitives to the narrow
// interfaces the tool packages accept, so tests can substitute a fake.
type ShellRunner struct{}

func (ShellRunner) Run(cmd string, opts ...RunOption) int { return Run(cmd, opts...) }

func (ShellRunner) RunOutput(cmd string, opts ...RunOption) string { return RunOutput(cmd, opts...) }
