// Package docker builds and runs docker command lines through the shell
// primitives. The docker CLI is the interface here, not the daemon API: the
// wrappers exist for hosts where that is all you can count on.
package docker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/tvandergeer/bgtask"
)

const daemonError = "Error response from daemon:"

// Runner is the subset of the shell primitives the client needs.
type Runner interface {
	Run(cmd string, opts ...bgtask.RunOption) int
	RunOutput(cmd string, opts ...bgtask.RunOption) string
}

// Client wraps docker CLI invocations.
type Client struct {
	sh   Runner
	show bool
}

// Option configures a Client.
type Option func(*Client)

// WithRunner substitutes the shell runner (tests pass a fake).
func WithRunner(r Runner) Option { return func(c *Client) { c.sh = r } }

// Show echoes each docker command before it runs.
func Show() Option { return func(c *Client) { c.show = true } }

// New constructs a Client backed by the real shell by default.
func New(opts ...Option) *Client {
	c := &Client{sh: bgtask.ShellRunner{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) runOpts() []bgtask.RunOption {
	if c.show {
		return []bgtask.RunOption{bgtask.ShowCommand()}
	}
	return nil
}

// OK returns nil when docker is available and the daemon is running.
func (c *Client) OK() error {
	output := c.sh.RunOutput("docker ps", c.runOpts()...)
	if !strings.Contains(output, "CONTAINER ID") {
		return fmt.Errorf("docker not available: %s", strings.TrimSpace(output))
	}
	return nil
}

// StopOptions controls Stop.
type StopOptions struct {
	Kill   bool   // kill instead of stop
	Signal string // signal for Kill (default KILL)
	Remove bool   // remove the container afterwards
}

// Stop stops (or kills) the named container.
func (c *Client) Stop(name string, opts StopOptions) error {
	var cmd string
	if opts.Kill {
		signal := opts.Signal
		if signal == "" {
			signal = "KILL"
		}
		cmd = fmt.Sprintf("docker kill --signal %s %s", signal, name)
	} else {
		cmd = fmt.Sprintf("docker stop %s", name)
	}
	if err := c.checkOutput(cmd); err != nil {
		return err
	}

	if opts.Remove {
		return c.checkOutput(fmt.Sprintf("docker rm %s", name))
	}
	return nil
}

// ContainerOptions controls StartOrRun when a new container must be created.
type ContainerOptions struct {
	Image       string            // image:tag, required when the container must be created
	Command     string            // command to run in the container
	Detach      bool              // run in the background (forced off by Interactive)
	Remove      bool              // delete the container when it exits
	Interactive bool              // keep stdin open and allocate a tty
	Ports       []string          // host-port:container-port pairs
	Volumes     []string          // host-path:container-path pairs
	EnvVars     map[string]string // environment to set in the container
	Force       bool              // stop and remove an existing container first
}

// StartOrRun starts the named container if it exists, otherwise creates and
// runs it from opts.Image.
func (c *Client) StartOrRun(name string, opts ContainerOptions) error {
	if opts.Force {
		if opts.Image == "" {
			return fmt.Errorf("image is required when forcing recreation of %q", name)
		}
		_ = c.Stop(name, StopOptions{Remove: true})
	} else {
		output := c.sh.RunOutput("docker start "+name, c.runOpts()...)
		if !strings.Contains(output, daemonError) {
			return nil
		}
		if opts.Image == "" {
			return fmt.Errorf("could not start %q and no image given to create it", name)
		}
	}

	cmd := buildRunCommand(name, opts)
	if opts.Interactive {
		if code := c.sh.Run(cmd, c.runOpts()...); code != 0 {
			return fmt.Errorf("docker run %q exited with code %d", name, code)
		}
		return nil
	}
	return c.checkOutput(cmd)
}

func buildRunCommand(name string, opts ContainerOptions) string {
	var b strings.Builder
	fmt.Fprintf(&b, "docker run --name %s", name)
	if opts.Remove {
		b.WriteString(" --rm")
	}
	detach := opts.Detach
	if opts.Interactive {
		b.WriteString(" --tty --interactive")
		detach = false
	}
	if detach {
		b.WriteString(" --detach")
	}
	for _, p := range opts.Ports {
		fmt.Fprintf(&b, " --publish %s", p)
	}
	for _, v := range opts.Volumes {
		fmt.Fprintf(&b, " --volume %s", v)
	}
	for _, k := range sortedKeys(opts.EnvVars) {
		fmt.Fprintf(&b, " --env %s=%s", k, opts.EnvVars[k])
	}
	fmt.Fprintf(&b, " %s", opts.Image)
	if opts.Command != "" {
		fmt.Fprintf(&b, " %s", opts.Command)
	}
	return b.String()
}

// ContainerID returns the ID of the named running container, empty when it
// is not running.
func (c *Client) ContainerID(name string) string {
	cmd := fmt.Sprintf("docker ps | grep '\\b%s\\b$' | awk '{print $1}'", name)
	return c.sh.RunOutput(cmd, append(c.runOpts(), bgtask.StripOutput())...)
}

// Inspect returns the `docker container inspect` JSON for the named
// container (a one-element array).
func (c *Client) Inspect(name string) (gjson.Result, error) {
	output := c.sh.RunOutput("docker container inspect "+name, c.runOpts()...)
	parsed := gjson.Parse(output)
	if !parsed.IsArray() || len(parsed.Array()) == 0 {
		return gjson.Result{}, fmt.Errorf("inspect %q: %s", name, strings.TrimSpace(output))
	}
	return parsed, nil
}

// Config returns the Config section of the container's inspect output.
func (c *Client) Config(name string) (gjson.Result, error) {
	parsed, err := c.Inspect(name)
	if err != nil {
		return gjson.Result{}, err
	}
	return parsed.Get("0.Config"), nil
}

// EnvVars returns the container's environment as a map.
func (c *Client) EnvVars(name string) (map[string]string, error) {
	config, err := c.Config(name)
	if err != nil {
		return nil, err
	}
	envVars := make(map[string]string)
	for _, item := range config.Get("Env").Array() {
		key, value, found := strings.Cut(item.String(), "=")
		if !found {
			continue
		}
		envVars[key] = value
	}
	return envVars, nil
}

// Shell starts an interactive shell on the named container, starting the
// container first if needed. Returns the shell's exit code.
func (c *Client) Shell(name, shell string, envVars map[string]string) int {
	if shell == "" {
		shell = "sh"
	}
	var b strings.Builder
	b.WriteString("docker exec --tty --interactive")
	for _, k := range sortedKeys(envVars) {
		fmt.Fprintf(&b, " --env %s=%s", k, envVars[k])
	}
	fmt.Fprintf(&b, " %s %s", name, shell)

	_ = c.StartOrRun(name, ContainerOptions{})
	return c.sh.Run(b.String(), c.runOpts()...)
}

// CleanupVolumes runs the docker-cleanup-volumes container to reclaim space
// from orphaned volumes.
func (c *Client) CleanupVolumes() error {
	return c.StartOrRun("cleanup-volumes", ContainerOptions{
		Image:  "martin/docker-cleanup-volumes",
		Remove: true,
		Volumes: []string{
			"/var/run/docker.sock:/var/run/docker.sock:ro",
			"/var/lib/docker:/var/lib/docker",
		},
	})
}

func (c *Client) checkOutput(cmd string) error {
	output := c.sh.RunOutput(cmd, c.runOpts()...)
	if strings.Contains(output, daemonError) {
		return fmt.Errorf("%s", strings.TrimSpace(output))
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
