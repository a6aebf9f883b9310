// Package pyenv wraps pyenv command lines for installing and listing Python
// versions under ~/.pyenv.
package pyenv

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"

	"github.com/tvandergeer/bgtask"
	"github.com/tvandergeer/bgtask/tools/grep"
)

var (
	versionGroups = regexp.MustCompile(`^([a-z][^-]+-)?(\d+\.\d+).*`)
	nonRelease    = regexp.MustCompile(`.*(\d+.*[a-z]+|-dev$|-latest$)`)
)

// Runner is the subset of the shell primitives the client needs.
type Runner interface {
	Run(cmd string, opts ...bgtask.RunOption) int
	RunOutput(cmd string, opts ...bgtask.RunOption) string
}

// Client wraps pyenv CLI invocations.
type Client struct {
	sh   Runner
	root string
}

// Option configures a Client.
type Option func(*Client)

// WithRunner substitutes the shell runner (tests pass a fake).
func WithRunner(r Runner) Option { return func(c *Client) { c.sh = r } }

// WithRoot overrides the pyenv root directory (default ~/.pyenv).
func WithRoot(root string) Option { return func(c *Client) { c.root = root } }

// New constructs a Client.
func New(opts ...Option) *Client {
	c := &Client{sh: bgtask.ShellRunner{}}
	for _, opt := range opts {
		opt(c)
	}
	if c.root == "" {
		home, _ := os.UserHomeDir()
		c.root = filepath.Join(home, ".pyenv")
	}
	return c
}

func (c *Client) bin() string { return filepath.Join(c.root, "bin", "pyenv") }

// Available reports whether the pyenv executable exists under the root.
func (c *Client) Available() bool {
	_, err := os.Stat(c.bin())
	return err == nil
}

// InstallResult is the outcome of one version install.
type InstallResult struct {
	Version string
	OK      bool
}

// InstallVersions installs each of the given Python versions, continuing
// past failures, and reports per-version outcomes.
func (c *Client) InstallVersions(versions ...string) []InstallResult {
	results := make([]InstallResult, 0, len(versions))
	for _, version := range versions {
		cmd := fmt.Sprintf("%s install %s", c.bin(), version)
		code := c.sh.Run(cmd, bgtask.ShowCommand())
		results = append(results, InstallResult{Version: version, OK: code == 0})
	}
	return results
}

// Update updates the pyenv installation itself: brew on macOS, a git pull of
// the root checkout elsewhere.
func (c *Client) Update() error {
	var cmd string
	if runtime.GOOS == "darwin" {
		cmd = "brew upgrade pyenv"
	} else {
		cmd = fmt.Sprintf("git -C %q pull", c.root)
	}
	if code := c.sh.Run(cmd, bgtask.ShowCommand()); code != 0 {
		return fmt.Errorf("%q exited with code %d", cmd, code)
	}
	return nil
}

// InstalledVersions returns the versions present under the root's versions
// directory.
func (c *Client) InstalledVersions() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(c.root, "versions"))
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	versions := make([]string, 0, len(entries))
	for _, e := range entries {
		versions = append(versions, e.Name())
	}
	sort.Strings(versions)
	return versions, nil
}

// ListOptions filters InstallableVersions.
type ListOptions struct {
	All               bool // include non-Python-3 entries
	AllPerGroup       bool // keep every version, not just the latest per major.minor group
	IncludePrerelease bool // include alpha/beta/rc/dev/src entries
	OnlyPrerelease    bool // keep only alpha/beta/rc/dev/src entries
}

// InstallableVersions returns the versions `pyenv install --list` offers,
// filtered per opts. The default keeps released Python 3 versions, latest
// per major.minor group.
func (c *Client) InstallableVersions(opts ListOptions) ([]string, error) {
	output := c.sh.RunOutput(c.bin() + " install --list")

	var versions []string
	var err error
	if opts.All {
		versions, err = grep.Output(output, `^\s*(\S+)\s*$`, grep.Strip())
	} else {
		versions, err = grep.Output(output, `^  (3.*)`, grep.MatchCase())
	}
	if err != nil {
		return nil, err
	}

	if opts.OnlyPrerelease {
		versions = filter(versions, func(v string) bool { return nonRelease.MatchString(v) })
	} else if !opts.IncludePrerelease {
		versions = filter(versions, func(v string) bool { return !nonRelease.MatchString(v) })
	}

	if !opts.AllPerGroup {
		versions = latestPerGroup(versions)
	}
	return versions, nil
}

// latestPerGroup keeps the last entry of each major.minor group, preserving
// the list order (pyenv emits versions oldest-first within a group).
func latestPerGroup(versions []string) []string {
	type group struct {
		key     string
		version string
	}
	var groups []group
	index := make(map[string]int)
	for _, v := range versions {
		m := versionGroups.FindStringSubmatch(v)
		if m == nil {
			continue
		}
		key := m[1] + m[2]
		if i, ok := index[key]; ok {
			groups[i].version = v
			continue
		}
		index[key] = len(groups)
		groups = append(groups, group{key: key, version: v})
	}
	out := make([]string, len(groups))
	for i, g := range groups {
		out[i] = g.version
	}
	return out
}

func filter(in []string, keep func(string) bool) []string {
	var out []string
	for _, v := range in {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}
