package stats

import (
	"math"
	"testing"
)

func TestBuildExperimentReport(t *testing.T) {
	outcomes := []SeedOutcome{
		{Seed: 1, RunID: "run-1", FinalBestFitness: 30},
		{Seed: 2, RunID: "run-2", FinalBestFitness: 12},
		{Seed: 3, RunID: "run-3", FinalBestFitness: 30},
		{Seed: 4, RunID: "run-4", FinalBestFitness: 6},
	}

	report, err := BuildExperimentReport("exp-1", "classic", 40, 25, 30, outcomes)
	if err != nil {
		t.Fatalf("build report: %v", err)
	}

	if report.SolveRate != 0.5 {
		t.Fatalf("expected solve rate 0.5, got %f", report.SolveRate)
	}
	if report.FinalBestMax != 30 || report.FinalBestMin != 6 {
		t.Fatalf("unexpected extremes: max=%f min=%f", report.FinalBestMax, report.FinalBestMin)
	}
	if math.Abs(report.FinalBestMean-19.5) > 1e-9 {
		t.Fatalf("unexpected mean: %f", report.FinalBestMean)
	}
	if !report.Outcomes[0].Solved || report.Outcomes[1].Solved {
		t.Fatalf("unexpected solved flags: %+v", report.Outcomes)
	}
}

func TestBuildExperimentReportValidation(t *testing.T) {
	if _, err := BuildExperimentReport("", "classic", 10, 5, 30, []SeedOutcome{{Seed: 1}}); err == nil {
		t.Fatal("expected missing id error")
	}
	if _, err := BuildExperimentReport("exp-1", "classic", 10, 5, 30, nil); err == nil {
		t.Fatal("expected empty outcomes error")
	}
}

func TestExperimentReportRoundTrip(t *testing.T) {
	baseDir := t.TempDir()

	report, err := BuildExperimentReport("exp-rt", "fast", 20, 10, 30, []SeedOutcome{
		{Seed: 7, RunID: "run-7", FinalBestFitness: 14.5},
	})
	if err != nil {
		t.Fatalf("build report: %v", err)
	}
	report.StartedAtUTC = "2026-08-30T09:00:00Z"

	if _, err := WriteExperimentReport(baseDir, report); err != nil {
		t.Fatalf("write report: %v", err)
	}

	loaded, ok, err := ReadExperimentReport(baseDir, "exp-rt")
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted report")
	}
	if loaded.Course != "fast" || len(loaded.Outcomes) != 1 {
		t.Fatalf("unexpected report: %+v", loaded)
	}

	reports, err := ListExperimentReports(baseDir)
	if err != nil {
		t.Fatalf("list reports: %v", err)
	}
	if len(reports) != 1 || reports[0].ID != "exp-rt" {
		t.Fatalf("unexpected report list: %+v", reports)
	}
}

func TestSeriesStats(t *testing.T) {
	mean, std, max, min := SeriesStats([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if mean != 5 {
		t.Fatalf("unexpected mean: %f", mean)
	}
	if std != 2 {
		t.Fatalf("unexpected std: %f", std)
	}
	if max != 9 || min != 2 {
		t.Fatalf("unexpected extremes: max=%f min=%f", max, min)
	}

	mean, std, max, min = SeriesStats(nil)
	if mean != 0 || std != 0 || max != 0 || min != 0 {
		t.Fatal("expected zeros for empty input")
	}
}
