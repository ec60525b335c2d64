package stats

import (
	"os"
	"path/filepath"
	"testing"

	"geodash/internal/model"
)

func TestWriteRunArtifacts(t *testing.T) {
	baseDir := t.TempDir()

	runID := "run-123"
	artifacts := RunArtifacts{
		Config: RunConfig{
			RunID:          runID,
			Course:         "classic",
			PopulationSize: 20,
			Generations:    5,
			MutationRate:   0.2,
			EliteFraction:  0.1,
			EliteCount:     2,
			Seed:           1,
			Workers:        2,
		},
		BestByGeneration: []float64{1.8, 2.4, 4.1, 4.1, 6.3},
		Diagnostics: []model.GenerationDiagnostics{
			{Generation: 0, BestFitness: 1.8, MeanFitness: 1.1, MinFitness: 0.7},
		},
		FinalBestFitness: 6.3,
		TopPolicies: []model.TopPolicyRecord{{
			Rank:    1,
			Fitness: 6.3,
			Policy:  model.Policy{ID: "pol-1"},
		}},
	}

	runDir, err := WriteRunArtifacts(baseDir, artifacts)
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}

	for _, file := range []string{"run_config.json", "fitness_history.json", "fitness_history.csv", "diagnostics.json", "top_policies.json"} {
		if _, err := os.Stat(filepath.Join(runDir, file)); err != nil {
			t.Fatalf("expected file %s: %v", file, err)
		}
	}

	cfg, ok, err := ReadRunConfig(baseDir, runID)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if !ok || cfg.Course != "classic" || cfg.PopulationSize != 20 {
		t.Fatalf("unexpected config: ok=%v cfg=%+v", ok, cfg)
	}

	top, ok, err := ReadTopPolicies(baseDir, runID)
	if err != nil {
		t.Fatalf("read top policies: %v", err)
	}
	if !ok || len(top) != 1 || top[0].Policy.ID != "pol-1" {
		t.Fatalf("unexpected top policies: ok=%v top=%+v", ok, top)
	}

	diagnostics, ok, err := ReadDiagnostics(baseDir, runID)
	if err != nil {
		t.Fatalf("read diagnostics: %v", err)
	}
	if !ok || len(diagnostics) != 1 {
		t.Fatalf("unexpected diagnostics: ok=%v diagnostics=%+v", ok, diagnostics)
	}
}

func TestWriteRunArtifactsRequiresRunID(t *testing.T) {
	_, err := WriteRunArtifacts(t.TempDir(), RunArtifacts{})
	if err == nil {
		t.Fatal("expected missing run id error")
	}
}

func TestFitnessSeriesRoundTrip(t *testing.T) {
	baseDir := t.TempDir()
	runID := "run-series"
	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	input := []float64{0.5, 3.25, 30}
	if err := WriteFitnessSeries(runDir, input); err != nil {
		t.Fatalf("write series: %v", err)
	}

	output, ok, err := ReadFitnessSeries(baseDir, runID)
	if err != nil {
		t.Fatalf("read series: %v", err)
	}
	if !ok {
		t.Fatal("expected fitness series")
	}
	if len(output) != len(input) || output[1] != input[1] {
		t.Fatalf("unexpected series: %+v", output)
	}
}

func TestReadFitnessSeriesMissing(t *testing.T) {
	_, ok, err := ReadFitnessSeries(t.TempDir(), "missing-run")
	if err != nil {
		t.Fatalf("read series: %v", err)
	}
	if ok {
		t.Fatal("expected miss for absent series")
	}
}

func TestRunIndexAppendAndUpdate(t *testing.T) {
	baseDir := t.TempDir()

	first := RunIndexEntry{RunID: "run-1", Course: "classic", FinalBestFitness: 4.2, CreatedAtUTC: "2026-08-30T10:00:00Z"}
	second := RunIndexEntry{RunID: "run-2", Course: "fast", FinalBestFitness: 2.1, CreatedAtUTC: "2026-08-30T11:00:00Z"}

	if err := AppendRunIndex(baseDir, first); err != nil {
		t.Fatalf("append first: %v", err)
	}
	if err := AppendRunIndex(baseDir, second); err != nil {
		t.Fatalf("append second: %v", err)
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list index: %v", err)
	}
	if len(index) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(index))
	}
	if index[0].RunID != "run-2" {
		t.Fatalf("expected newest first, got %+v", index)
	}

	first.FinalBestFitness = 9.9
	if err := AppendRunIndex(baseDir, first); err != nil {
		t.Fatalf("update first: %v", err)
	}
	index, err = ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list index after update: %v", err)
	}
	if len(index) != 2 {
		t.Fatalf("update must not duplicate entries, got %d", len(index))
	}
	for _, entry := range index {
		if entry.RunID == "run-1" && entry.FinalBestFitness != 9.9 {
			t.Fatalf("expected updated entry, got %+v", entry)
		}
	}
}

func TestListRunIndexEmpty(t *testing.T) {
	index, err := ListRunIndex(t.TempDir())
	if err != nil {
		t.Fatalf("list index: %v", err)
	}
	if len(index) != 0 {
		t.Fatalf("expected empty index, got %+v", index)
	}
}
