package main

import (
	"testing"

	"github.com/mwaldrip/foreman/pkg/models"
)

func TestTaskInfos(t *testing.T) {
	tasks := []models.Task{
		{
			TaskID:       "T1",
			Dependencies: []string{"T0"},
			Labels:       map[string]string{"complexity": "complex", "story": "US1"},
		},
		{
			TaskID: "T2",
			Labels: map[string]string{"destructive": "true"},
		},
		{
			TaskID: "T3",
			Labels: map[string]string{"complexity": "trivial"},
		},
		{
			TaskID: "T4",
		},
	}

	infos := taskInfos(tasks)
	if len(infos) != 4 {
		t.Fatalf("expected 4 infos, got %d", len(infos))
	}

	if infos[0].Name != "T1" || infos[0].Complexity != "complex" {
		t.Errorf("expected T1 complex, got %+v", infos[0])
	}
	if len(infos[0].DependsOn) != 1 || infos[0].DependsOn[0] != "T0" {
		t.Errorf("expected T1 to depend on T0, got %v", infos[0].DependsOn)
	}
	if infos[0].Labels["story"] != "US1" {
		t.Errorf("expected story label carried through, got %v", infos[0].Labels)
	}

	if !infos[1].IsDestructive {
		t.Error("expected T2 marked destructive")
	}
	if infos[1].Complexity != "" {
		t.Errorf("expected no complexity for T2, got %q", infos[1].Complexity)
	}

	// Unknown complexity values are ignored, not passed through.
	if infos[2].Complexity != "" {
		t.Errorf("expected unknown complexity dropped, got %q", infos[2].Complexity)
	}

	if infos[3].IsDestructive || infos[3].Complexity != "" || len(infos[3].Labels) != 0 {
		t.Errorf("expected bare info for unlabeled task, got %+v", infos[3])
	}
}
