package backend

import (
	"context"
	"errors"
	"fmt"
	osexec "os/exec"
	"strings"

	"github.com/mwaldrip/foreman/internal/exec"
)

// Sandbox manages isolated agent environments. The real implementation
// is docker-backed; names are docker container names.
type Sandbox interface {
	// Prepare creates (or with force, recreates) a sandbox.
	Prepare(ctx context.Context, name string, force bool) error
	// Exec runs a shell command inside the sandbox and returns its
	// exit code and combined output. A non-zero exit code is not an
	// error; err is reserved for failures to reach the sandbox at all.
	Exec(ctx context.Context, name, command string) (exitCode int, output string, err error)
	// Remove tears down a sandbox.
	Remove(ctx context.Context, name string) error
	// List returns the names of sandboxes this tool manages.
	List(ctx context.Context) ([]string, error)
}

// DefaultSandboxImage is the container image agents run in.
const DefaultSandboxImage = "foreman-agent:latest"

// sandboxLabel marks containers as managed by this tool so List and
// cleanup never touch unrelated containers.
const sandboxLabel = "dev.foreman.sandbox=1"

// DockerSandbox implements Sandbox on the docker CLI.
type DockerSandbox struct {
	Runner exec.Runner
	// Image overrides DefaultSandboxImage when non-empty.
	Image string
}

func (d *DockerSandbox) image() string {
	if d.Image != "" {
		return d.Image
	}
	return DefaultSandboxImage
}

func (d *DockerSandbox) Prepare(ctx context.Context, name string, force bool) error {
	if force {
		// Ignore failure: the container may simply not exist yet.
		_, _ = d.Runner.Run(ctx, "", "docker", "rm", "-f", name)
	} else if d.exists(ctx, name) {
		return nil
	}

	out, err := d.Runner.Run(ctx, "", "docker", "run", "-d",
		"--name", name,
		"--label", sandboxLabel,
		d.image(), "sleep", "infinity")
	if err != nil {
		return fmt.Errorf("docker run: %s", strings.TrimSpace(string(out)))
	}
	return nil
}

func (d *DockerSandbox) Exec(ctx context.Context, name, command string) (int, string, error) {
	out, err := d.Runner.Run(ctx, "", "docker", "exec", name, "sh", "-c", command)
	if err == nil {
		return 0, string(out), nil
	}
	var exitErr *osexec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), string(out), nil
	}
	return -1, string(out), fmt.Errorf("docker exec %s: %w", name, err)
}

func (d *DockerSandbox) Remove(ctx context.Context, name string) error {
	out, err := d.Runner.Run(ctx, "", "docker", "rm", "-f", name)
	if err != nil {
		return fmt.Errorf("docker rm: %s", strings.TrimSpace(string(out)))
	}
	return nil
}

func (d *DockerSandbox) List(ctx context.Context) ([]string, error) {
	out, err := d.Runner.Output(ctx, "", "docker", "ps", "-a",
		"--filter", "label="+sandboxLabel,
		"--format", "{{.Names}}")
	if err != nil {
		return nil, fmt.Errorf("docker ps: %w", err)
	}
	var names []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

func (d *DockerSandbox) exists(ctx context.Context, name string) bool {
	_, err := d.Runner.Run(ctx, "", "docker", "inspect", name)
	return err == nil
}

var _ Sandbox = (*DockerSandbox)(nil)
