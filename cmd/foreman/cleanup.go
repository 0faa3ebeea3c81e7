package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mwaldrip/foreman/internal/state"
)

var (
	cleanupForce  bool
	cleanupDryRun bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove leftover worktrees and sandboxes",
	Long: `Remove worktrees and sandboxes left behind by finished or
interrupted runs.

This command:
  - Lists every worktree registered in the state database
  - Removes each worktree (and its sandbox, if one exists)
  - Removes foreman-labeled sandboxes with no registry entry

Worktrees with uncommitted changes are kept unless --force is given.

Examples:
  foreman cleanup              # interactive cleanup with confirmation
  foreman cleanup --force      # skip confirmation, discard dirty worktrees
  foreman cleanup --dry-run    # show what would be removed`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().BoolVarP(&cleanupForce, "force", "f", false, "Skip confirmation and discard dirty worktrees")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Show what would be removed without removing")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	db, err := state.OpenGlobal()
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate state database: %w", err)
	}

	entries, err := db.ListWorktrees()
	if err != nil {
		return fmt.Errorf("list worktrees: %w", err)
	}

	ctx := context.Background()
	backends := realBackends()

	sandboxes, err := backends.Sandbox.List(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: list sandboxes: %v\n", err)
	}
	registered := make(map[string]bool)
	for _, e := range entries {
		if e.SandboxName != "" {
			registered[e.SandboxName] = true
		}
	}
	var strays []string
	for _, name := range sandboxes {
		if !registered[name] {
			strays = append(strays, name)
		}
	}

	if len(entries) == 0 && len(strays) == 0 {
		fmt.Println("Nothing to clean up.")
		return nil
	}

	if len(entries) > 0 {
		fmt.Printf("Found %d registered worktree(s):\n", len(entries))
		for _, e := range entries {
			line := fmt.Sprintf("  - %s (branch: %s)", e.WorktreePath, e.Branch)
			if e.SandboxName != "" {
				line += " + sandbox " + e.SandboxName
			}
			fmt.Println(line)
		}
	}
	if len(strays) > 0 {
		fmt.Printf("Found %d unregistered sandbox(es): %s\n", len(strays), strings.Join(strays, ", "))
	}

	if cleanupDryRun {
		fmt.Println("Dry run; nothing removed.")
		return nil
	}

	if !cleanupForce && !confirm("Remove all of the above?") {
		fmt.Println("Aborted.")
		return nil
	}

	var failures int
	for _, e := range entries {
		if !cleanupForce && backends.Git.HasUncommittedChanges(ctx, e.WorktreePath) {
			fmt.Printf("keeping %s: uncommitted changes (use --force to discard)\n", e.WorktreePath)
			continue
		}
		if err := backends.Git.RemoveWorktree(ctx, e.Repo, e.WorktreePath); err != nil {
			fmt.Fprintf(os.Stderr, "warning: remove worktree %s: %v\n", e.WorktreePath, err)
			failures++
			continue
		}
		if e.SandboxName != "" {
			if err := backends.Sandbox.Remove(ctx, e.SandboxName); err != nil {
				fmt.Fprintf(os.Stderr, "warning: remove sandbox %s: %v\n", e.SandboxName, err)
				failures++
			}
		}
		if err := db.RemoveWorktree(e.Name); err != nil {
			fmt.Fprintf(os.Stderr, "warning: unregister %s: %v\n", e.Name, err)
			failures++
			continue
		}
		fmt.Printf("removed %s\n", e.WorktreePath)
	}

	for _, name := range strays {
		if err := backends.Sandbox.Remove(ctx, name); err != nil {
			fmt.Fprintf(os.Stderr, "warning: remove sandbox %s: %v\n", name, err)
			failures++
			continue
		}
		fmt.Printf("removed sandbox %s\n", name)
	}

	if failures > 0 {
		return fmt.Errorf("cleanup finished with %d failure(s)", failures)
	}
	return nil
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
