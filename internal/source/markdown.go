package source

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mwaldrip/foreman/pkg/models"
)

// taskLinePattern matches checklist lines like "- [ ] Task",
// "- [x] Task", and "- [ ] [T001] Task" with optional indentation.
var taskLinePattern = regexp.MustCompile(`^(\s*)-\s+\[([ xX])\]\s+(?:\[([^\]]+)\]\s+)?(.+)$`)

var markdownCandidates = []string{"tasks.md", "TODO.md"}

func findMarkdownFile(repoRoot string) string {
	for _, name := range markdownCandidates {
		path := filepath.Join(repoRoot, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// MarkdownSource parses tasks from a markdown checklist file. Nested
// items depend on their parent; status updates toggle checkboxes in
// the file.
type MarkdownSource struct {
	path string
}

// NewMarkdownSource creates a source backed by a checklist file.
func NewMarkdownSource(path string) *MarkdownSource {
	return &MarkdownSource{path: path}
}

func (s *MarkdownSource) SourceName() string { return "markdown" }

// Path returns the backing file, used for cache invalidation.
func (s *MarkdownSource) Path() string { return s.path }

func (s *MarkdownSource) Tasks() ([]models.Task, error) {
	content, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read task file: %w", err)
	}
	return s.parse(string(content)), nil
}

func (s *MarkdownSource) ReadyTasks() ([]models.Task, error) {
	tasks, err := s.Tasks()
	if err != nil {
		return nil, err
	}
	return readyOf(tasks), nil
}

// UpdateStatus toggles the checkbox of the matching line. Only the
// completed status checks the box; everything else unchecks it.
func (s *MarkdownSource) UpdateStatus(taskID string, status models.TaskStatus) error {
	content, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read task file: %w", err)
	}

	lines := strings.Split(string(content), "\n")
	changed := false
	for i, line := range lines {
		m := taskLinePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		indent, _, explicitID, text := m[1], m[2], m[3], m[4]
		lineID := explicitID
		if lineID == "" {
			lineID = markdownID(text)
		}
		if lineID != taskID {
			continue
		}
		check := " "
		if status == models.TaskCompleted {
			check = "x"
		}
		idPart := ""
		if explicitID != "" {
			idPart = fmt.Sprintf("[%s] ", explicitID)
		}
		lines[i] = fmt.Sprintf("%s- [%s] %s%s", indent, check, idPart, text)
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

func (s *MarkdownSource) ClaimTask(taskID string) (bool, error) {
	return true, nil
}

func (s *MarkdownSource) parse(content string) []models.Task {
	var tasks []models.Task

	type frame struct {
		indent int
		id     string
	}
	var parents []frame

	for _, line := range strings.Split(content, "\n") {
		m := taskLinePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		indent, checkbox, explicitID, text := len(m[1]), m[2], m[3], strings.TrimSpace(m[4])

		id := explicitID
		if id == "" {
			id = markdownID(text)
		}
		status := models.TaskPending
		if checkbox == "x" || checkbox == "X" {
			status = models.TaskCompleted
		}

		for len(parents) > 0 && parents[len(parents)-1].indent >= indent {
			parents = parents[:len(parents)-1]
		}
		var deps []string
		if len(parents) > 0 {
			deps = []string{parents[len(parents)-1].id}
		}

		tasks = append(tasks, models.Task{
			TaskID:       id,
			Title:        text,
			Description:  text,
			Status:       status,
			Dependencies: deps,
			SourceRef:    s.path,
		})
		parents = append(parents, frame{indent: indent, id: id})
	}
	return tasks
}

// markdownID derives a stable ID from task text for lines without an
// explicit [ID] tag.
func markdownID(text string) string {
	digest := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return fmt.Sprintf("md-%x", digest[:4])
}

var _ TaskSource = (*MarkdownSource)(nil)
