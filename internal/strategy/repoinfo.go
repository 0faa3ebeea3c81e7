package strategy

import (
	"fmt"
	"os"
	"path/filepath"
)

// RepoInfo is gathered context about a repository, used to pick an
// execution target and estimate batch complexity.
type RepoInfo struct {
	HasDockerfile       bool
	HasDevcontainer     bool
	HasEnvFile          bool
	NeedsAuth           bool
	Languages           []string
	EstimatedComplexity string
}

// ScanRepo analyzes a repository directory and returns its RepoInfo.
func ScanRepo(repo string) (RepoInfo, error) {
	info, err := os.Stat(repo)
	if err != nil {
		if os.IsNotExist(err) {
			return RepoInfo{}, fmt.Errorf("repository path does not exist: %s", repo)
		}
		return RepoInfo{}, fmt.Errorf("stat repository: %w", err)
	}
	if !info.IsDir() {
		return RepoInfo{}, fmt.Errorf("repository path is not a directory: %s", repo)
	}

	ri := RepoInfo{
		HasDockerfile:   anyExists(repo, "Dockerfile", "docker-compose.yml", "docker-compose.yaml", "compose.yml", "compose.yaml"),
		HasDevcontainer: dirExists(filepath.Join(repo, ".devcontainer")),
		HasEnvFile:      anyExists(repo, ".env", ".env.example", ".env.local", ".env.sample"),
		NeedsAuth:       anyExists(repo, ".npmrc", "pip.conf", ".pypirc"),
		Languages:       detectLanguages(repo),
	}
	ri.EstimatedComplexity = estimateComplexity(ri)
	return ri, nil
}

func anyExists(dir string, names ...string) bool {
	for _, name := range names {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func detectLanguages(repo string) []string {
	var languages []string
	if anyExists(repo, "pyproject.toml", "setup.py", "setup.cfg", "requirements.txt", "Pipfile") {
		languages = append(languages, "python")
	}
	if anyExists(repo, "package.json") {
		languages = append(languages, "javascript")
	}
	if anyExists(repo, "tsconfig.json") {
		languages = append(languages, "typescript")
	}
	if anyExists(repo, "Cargo.toml") {
		languages = append(languages, "rust")
	}
	if anyExists(repo, "go.mod") {
		languages = append(languages, "go")
	}
	if anyExists(repo, "pom.xml", "build.gradle", "build.gradle.kts") {
		languages = append(languages, "java")
	}
	return languages
}

func estimateComplexity(ri RepoInfo) string {
	score := 0
	if ri.HasDockerfile {
		score++
	}
	if ri.HasDevcontainer {
		score++
	}
	if ri.HasEnvFile {
		score++
	}
	if ri.NeedsAuth {
		score++
	}
	if extra := len(ri.Languages) - 1; extra > 0 {
		score += extra
	}

	switch {
	case score >= 3:
		return "complex"
	case score >= 1:
		return "moderate"
	default:
		return "simple"
	}
}
