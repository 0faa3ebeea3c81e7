package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Auth injects credentials into an agent environment so the agent can
// authenticate without interactive login.
type Auth interface {
	Authenticate(ctx context.Context, sandboxName string) error
}

// credentialFiles are copied into the sandbox home when present on the
// host.
var credentialFiles = []string{
	".gitconfig",
	".config/agent/credentials.json",
}

// SandboxAuth copies host credentials into a docker sandbox.
type SandboxAuth struct {
	Sandbox *DockerSandbox
	// Home overrides the host home directory in tests.
	Home string
}

func (a *SandboxAuth) Authenticate(ctx context.Context, sandboxName string) error {
	home := a.Home
	if home == "" {
		var err error
		home, err = os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home directory: %w", err)
		}
	}

	copied := 0
	for _, rel := range credentialFiles {
		src := filepath.Join(home, rel)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		dst := sandboxName + ":/root/" + rel
		if out, err := a.Sandbox.Runner.Run(ctx, "", "docker", "cp", src, dst); err != nil {
			return fmt.Errorf("copy %s into sandbox: %s", rel, string(out))
		}
		copied++
	}
	if copied == 0 {
		return fmt.Errorf("no credentials found under %s", home)
	}
	return nil
}

var _ Auth = (*SandboxAuth)(nil)
