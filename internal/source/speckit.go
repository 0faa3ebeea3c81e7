package source

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/mwaldrip/foreman/pkg/models"
)

// Spec-kit task lines look like: - [ ] [T001] [P] [US1] Description.
// [P] marks a task as parallel (no sibling dependency), [USn] labels
// the user story. Sequential tasks within a story depend on the
// previous sequential task of that story.
var (
	specKitLine     = regexp.MustCompile(`^-\s+\[([ xX])\]\s+\[([^\]]+)\]\s+(.+)$`)
	parallelMarker  = regexp.MustCompile(`^\[P\]\s+(.+)$`)
	storyLabel      = regexp.MustCompile(`^\[US(\d+)\]\s+(.+)$`)
	phaseHeader     = regexp.MustCompile(`^##\s+(?:Phase\s+\d+:\s+)?(.+)$`)
	specKitSentinel = regexp.MustCompile(`(?m)^-\s+\[[ xX]\]\s+\[T\d+\]\s+`)
)

// specKitDetect reports whether repoRoot/tasks.md is in spec-kit
// format.
func specKitDetect(repoRoot string) bool {
	content, err := os.ReadFile(repoRoot + "/tasks.md")
	if err != nil {
		return false
	}
	return specKitSentinel.Match(content)
}

// SpecKitSource parses tasks from spec-kit's tasks.md format.
type SpecKitSource struct {
	path string
}

// NewSpecKitSource creates a source backed by a spec-kit tasks file.
func NewSpecKitSource(path string) *SpecKitSource {
	return &SpecKitSource{path: path}
}

func (s *SpecKitSource) SourceName() string { return "speckit" }

// Path returns the backing file, used for cache invalidation.
func (s *SpecKitSource) Path() string { return s.path }

func (s *SpecKitSource) Tasks() ([]models.Task, error) {
	content, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read task file: %w", err)
	}
	return s.parse(string(content)), nil
}

func (s *SpecKitSource) ReadyTasks() ([]models.Task, error) {
	tasks, err := s.Tasks()
	if err != nil {
		return nil, err
	}
	return readyOf(tasks), nil
}

func (s *SpecKitSource) UpdateStatus(taskID string, status models.TaskStatus) error {
	content, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read task file: %w", err)
	}

	lines := strings.Split(string(content), "\n")
	changed := false
	for i, line := range lines {
		m := specKitLine.FindStringSubmatch(line)
		if m == nil || m[2] != taskID {
			continue
		}
		check := " "
		if status == models.TaskCompleted {
			check = "x"
		}
		lines[i] = fmt.Sprintf("- [%s] [%s] %s", check, m[2], m[3])
		changed = true
	}

	if !changed {
		return nil
	}
	out := strings.Join(lines, "\n")
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return os.WriteFile(s.path, []byte(out), 0o644)
}

func (s *SpecKitSource) ClaimTask(taskID string) (bool, error) {
	return true, nil
}

func (s *SpecKitSource) parse(content string) []models.Task {
	var tasks []models.Task
	currentPhase := ""
	lastSequential := make(map[string]string)

	for _, line := range strings.Split(content, "\n") {
		if m := phaseHeader.FindStringSubmatch(line); m != nil {
			currentPhase = strings.TrimSpace(m[1])
			continue
		}

		m := specKitLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		checkbox, id, rest := m[1], m[2], m[3]

		status := models.TaskPending
		if checkbox == "x" || checkbox == "X" {
			status = models.TaskCompleted
		}

		parallel := false
		if pm := parallelMarker.FindStringSubmatch(rest); pm != nil {
			parallel = true
			rest = pm[1]
		}

		story := ""
		if sm := storyLabel.FindStringSubmatch(rest); sm != nil {
			story = "US" + sm[1]
			rest = sm[2]
		}

		description := strings.TrimSpace(rest)
		labels := make(map[string]string)
		if story != "" {
			labels["story"] = story
		}
		if currentPhase != "" {
			labels["phase"] = currentPhase
		}
		if parallel {
			labels["parallel"] = "true"
		}

		var deps []string
		if story != "" && !parallel {
			if prev, ok := lastSequential[story]; ok {
				deps = append(deps, prev)
			}
		}

		tasks = append(tasks, models.Task{
			TaskID:       id,
			Title:        description,
			Description:  description,
			Status:       status,
			Dependencies: deps,
			Labels:       labels,
			SourceRef:    s.path,
		})

		if story != "" && !parallel {
			lastSequential[story] = id
		}
	}
	return tasks
}

var _ TaskSource = (*SpecKitSource)(nil)
