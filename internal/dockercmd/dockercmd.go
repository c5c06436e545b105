// Package dockercmd builds docker run invocations. It exists so the harness
// can re-execute itself inside a container image with the shared directory
// bind-mounted, instead of string-concatenating shell commands.
package dockercmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Command is a fluent builder for a single docker run invocation.
// Builder methods record the first validation error; Argv surfaces it.
type Command struct {
	dockerExec string
	options    []string
	image      string
	args       []string
	err        error
}

// New creates a builder using the given docker executable. An empty exec
// resolves "docker" from PATH at run time.
func New(dockerExec string) *Command {
	if dockerExec == "" {
		dockerExec = "docker"
	}
	return &Command{dockerExec: dockerExec}
}

// Image sets the container image. Required.
func (c *Command) Image(image string) *Command {
	c.image = image
	return c
}

// Args sets the command and arguments run inside the container.
func (c *Command) Args(args ...string) *Command {
	c.args = args
	return c
}

// Env adds an environment variable visible inside the container.
func (c *Command) Env(key, value string) *Command {
	c.options = append(c.options, fmt.Sprintf("--env=%s=%s", key, value))
	return c
}

// Rm removes the container when it exits.
func (c *Command) Rm() *Command {
	c.options = append(c.options, "--rm")
	return c
}

// Privileged runs the container with extended privileges. Needed when the
// self-test starts a nested daemon.
func (c *Command) Privileged() *Command {
	c.options = append(c.options, "--privileged")
	return c
}

// Init runs an init process as PID 1 inside the container.
func (c *Command) Init() *Command {
	c.options = append(c.options, "--init")
	return c
}

// Tmpfs mounts a tmpfs at the given absolute container path.
func (c *Command) Tmpfs(guestDir string) *Command {
	if !filepath.IsAbs(guestDir) {
		c.fail(fmt.Errorf("tmpfs path %q must be absolute", guestDir))
		return c
	}
	c.options = append(c.options, "--tmpfs="+guestDir)
	return c
}

// Workdir sets the working directory inside the container.
func (c *Command) Workdir(guestDir string) *Command {
	if !filepath.IsAbs(guestDir) {
		c.fail(fmt.Errorf("workdir %q must be absolute", guestDir))
		return c
	}
	c.options = append(c.options, "--workdir="+guestDir)
	return c
}

// BindMountDir mounts hostDir at guestDir. hostDir must be an existing
// directory, guestDir an absolute path.
func (c *Command) BindMountDir(hostDir, guestDir string, readOnly bool) *Command {
	info, err := os.Stat(hostDir)
	if err != nil {
		c.fail(fmt.Errorf("bind mount %q: %w", hostDir, err))
		return c
	}
	if !info.IsDir() {
		c.fail(fmt.Errorf("bind mount %q: not a directory", hostDir))
		return c
	}
	return c.bindMount(hostDir, guestDir, readOnly)
}

// BindMountFile mounts hostFile at guestFile. hostFile must be an existing
// regular file, guestFile an absolute path.
func (c *Command) BindMountFile(hostFile, guestFile string, readOnly bool) *Command {
	info, err := os.Stat(hostFile)
	if err != nil {
		c.fail(fmt.Errorf("bind mount %q: %w", hostFile, err))
		return c
	}
	if info.IsDir() {
		c.fail(fmt.Errorf("bind mount %q: not a file", hostFile))
		return c
	}
	return c.bindMount(hostFile, guestFile, readOnly)
}

func (c *Command) bindMount(host, guest string, readOnly bool) *Command {
	if !filepath.IsAbs(guest) {
		c.fail(fmt.Errorf("mount target %q must be absolute", guest))
		return c
	}
	abs, err := filepath.Abs(host)
	if err != nil {
		c.fail(fmt.Errorf("bind mount %q: %w", host, err))
		return c
	}
	opt := fmt.Sprintf("--volume=%s:%s:z", abs, guest)
	if readOnly {
		opt += ",ro"
	}
	c.options = append(c.options, opt)
	return c
}

// Argv materializes the full docker run argv. Options appear once each, in
// first-set order.
func (c *Command) Argv() ([]string, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.image == "" {
		return nil, fmt.Errorf("image must be set")
	}

	argv := []string{c.dockerExec, "run"}
	seen := make(map[string]struct{}, len(c.options))
	for _, opt := range c.options {
		if _, dup := seen[opt]; dup {
			continue
		}
		seen[opt] = struct{}{}
		argv = append(argv, opt)
	}
	argv = append(argv, c.image)
	argv = append(argv, c.args...)
	return argv, nil
}

// Pull fetches the image ahead of the run. With ignoreErrors, a failed pull
// is logged and deferred to the subsequent run (the image may only exist
// locally).
func (c *Command) Pull(ctx context.Context, ignoreErrors bool) error {
	if c.image == "" {
		return fmt.Errorf("image must be set")
	}

	cmd := exec.CommandContext(ctx, c.dockerExec, "pull", c.image)
	out, err := cmd.CombinedOutput()
	if err != nil {
		err = fmt.Errorf("pull %s: %s: %w", c.image, strings.TrimSpace(string(out)), err)
		if ignoreErrors {
			slog.Warn("image pull failed, continuing", "image", c.image, "error", err)
			return nil
		}
		return err
	}
	return nil
}

// RunInteractive launches the container inheriting this process's stdio and
// returns the container command's exit code.
func (c *Command) RunInteractive(ctx context.Context) (int, error) {
	argv, err := c.Argv()
	if err != nil {
		return 1, err
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), err
		}
		return 1, fmt.Errorf("exec %s: %w", argv[0], err)
	}
	return 0, nil
}

func (c *Command) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}
