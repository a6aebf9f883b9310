// Package pip wraps pip command lines, guarded so they only touch an
// activated virtualenv unless the caller opts out.
package pip

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tvandergeer/bgtask"
)

// ErrNotInVenv is returned by venv-only operations outside a virtualenv.
var ErrNotInVenv = errors.New("not in a venv")

// Runner is the subset of the shell primitives the client needs.
type Runner interface {
	Run(cmd string, opts ...bgtask.RunOption) int
}

// Client wraps pip CLI invocations.
type Client struct {
	sh       Runner
	pipPath  string
	venvOnly bool
	show     bool
}

// Option configures a Client.
type Option func(*Client)

// WithRunner substitutes the shell runner (tests pass a fake).
func WithRunner(r Runner) Option { return func(c *Client) { c.sh = r } }

// WithPipPath overrides the discovered pip executable path.
func WithPipPath(path string) Option { return func(c *Client) { c.pipPath = path } }

// AllowGlobal lifts the venv-only guard.
func AllowGlobal() Option { return func(c *Client) { c.venvOnly = false } }

// Show echoes each pip command before it runs.
func Show() Option { return func(c *Client) { c.show = true } }

// New constructs a Client. The pip executable is looked for inside the
// active virtualenv first.
func New(opts ...Option) *Client {
	c := &Client{sh: bgtask.ShellRunner{}, venvOnly: true, pipPath: discoverPip()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// InVenv reports whether a virtualenv is active.
func InVenv() bool { return os.Getenv("VIRTUAL_ENV") != "" }

func discoverPip() string {
	venv := os.Getenv("VIRTUAL_ENV")
	if venv == "" {
		return "pip"
	}
	for _, sub := range []string{"bin", "Scripts"} {
		p := filepath.Join(venv, sub, "pip")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return "pip"
}

func (c *Client) guard() error {
	if c.venvOnly && !InVenv() {
		return ErrNotInVenv
	}
	return nil
}

func (c *Client) runOpts() []bgtask.RunOption {
	if c.show {
		return []bgtask.RunOption{bgtask.ShowCommand()}
	}
	return nil
}

// Freeze runs `pip freeze`.
func (c *Client) Freeze() error {
	if err := c.guard(); err != nil {
		return err
	}
	return c.run(c.pipPath + " freeze")
}

// InstallEditable installs the given local project paths in editable mode.
func (c *Client) InstallEditable(paths ...string) error {
	if err := c.guard(); err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.New("no paths given")
	}
	parts := make([]string, len(paths))
	for i, p := range paths {
		parts[i] = fmt.Sprintf("-e %q", p)
	}
	return c.run(fmt.Sprintf("%s install %s", c.pipPath, strings.Join(parts, " ")))
}

func (c *Client) run(cmd string) error {
	if code := c.sh.Run(cmd, c.runOpts()...); code != 0 {
		return fmt.Errorf("%q exited with code %d", cmd, code)
	}
	return nil
}
